package escalation

import (
	"context"
	"time"

	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/service/policy"
)

// AlertStore is the engine's view of alert persistence.
type AlertStore interface {
	// OpenAlerts returns unresolved, unacknowledged alerts, oldest first.
	OpenAlerts(ctx context.Context, limit int) ([]model.ActiveAlert, error)
	// AdvanceTier commits one escalation step with compare-and-set
	// semantics: the update applies only while the row still carries
	// fromTier and fromVersion. Returns false when another engine instance
	// advanced first.
	AdvanceTier(ctx context.Context, id string, fromTier, toTier, repeatsUsed int, fromVersion int64, notifiedAt time.Time) (bool, error)
	// DeleteResolvedBefore removes resolved alerts older than the cutoff.
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SuppressionGate answers whether notifications for an alert are withheld.
type SuppressionGate interface {
	Suppressed(ctx context.Context, alert *model.ActiveAlert, now time.Time) (bool, error)
}

// Notifier fans a tier notification out to its channels. seq distinguishes
// repeat-after-top re-fires of the same tier from its first delivery.
type Notifier interface {
	Dispatch(ctx context.Context, alert *model.ActiveAlert, tier *model.EscalationTier, seq int) ([]model.NotificationResult, error)
}

// Deps carries everything one engine instance needs.
type Deps struct {
	Alerts     AlertStore
	Policies   policy.Store
	Gate       SuppressionGate
	Dispatcher Notifier
	Clock      model.Clock

	Interval time.Duration // scheduler tick, default 30s
	Batch    int           // alerts per cycle, default 200
	Workers  int           // concurrent alerts per cycle, default 4

	Retention     time.Duration // resolved alert retention, default 30d
	SweepInterval time.Duration // retention sweep tick, default 1h
}
