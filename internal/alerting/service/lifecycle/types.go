package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
)

// ErrNotFound is returned when the referenced alert or silence does not exist.
var ErrNotFound = errors.New("not found")

// AlertStore is the lifecycle manager's view of alert persistence.
type AlertStore interface {
	// GetOpenByAlertID returns the unresolved row for the external alert id,
	// or ErrNotFound.
	GetOpenByAlertID(ctx context.Context, alertID string) (*model.ActiveAlert, error)
	// Get returns the row by internal id, or ErrNotFound.
	Get(ctx context.Context, id string) (*model.ActiveAlert, error)
	Insert(ctx context.Context, a *model.ActiveAlert) error
	// Acknowledge marks the row acknowledged; false when already resolved or
	// acknowledged.
	Acknowledge(ctx context.Context, id string, at time.Time) (bool, error)
	// Resolve marks the row resolved; false when already resolved.
	Resolve(ctx context.Context, id string, at time.Time) (bool, error)
	List(ctx context.Context, opts ListOptions) ([]model.ActiveAlert, error)
}

// ListOptions narrows an alert listing.
type ListOptions struct {
	IncludeResolved bool
	Severity        string
	InstanceName    string
	Limit           int
}

// ResolutionNotifier sends the one-shot resolved notice through a tier's
// channels.
type ResolutionNotifier interface {
	DispatchResolution(ctx context.Context, alert *model.ActiveAlert, tier *model.EscalationTier) ([]model.NotificationResult, error)
}

// StateCache mirrors alert state for cheap cross-service reads. All methods
// are best effort; cache failures never fail the lifecycle operation.
type StateCache interface {
	SetState(ctx context.Context, alert *model.ActiveAlert)
	DropState(ctx context.Context, alertID string)
}
