package suppression

import (
	"context"
	"time"

	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
)

// FailMode decides what a broken matcher (malformed regex) means.
type FailMode string

const (
	// FailClosed treats an unevaluable matcher as "not suppressed", so a
	// broken silence rule can never silently block notifications.
	FailClosed FailMode = "fail-closed"
	// FailOpen treats an unevaluable matcher as matching, suppressing the
	// notification.
	FailOpen FailMode = "fail-open"
)

// Store supplies the suppression rules active at an instant.
type Store interface {
	ActiveSilences(ctx context.Context, now time.Time) ([]model.AlertSilence, error)
	ActiveMaintenanceWindows(ctx context.Context, now time.Time) ([]model.MaintenanceWindow, error)
}

// SilenceWriter owns silence mutations; split from Store so the evaluator
// path stays read-only.
type SilenceWriter interface {
	CreateSilence(ctx context.Context, s *model.AlertSilence) error
	ExpireSilence(ctx context.Context, id string, at time.Time) error
}
