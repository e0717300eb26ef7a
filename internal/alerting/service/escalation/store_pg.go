package escalation

import (
	"context"
	"fmt"
	"time"

	adb "github.com/bovinemagnet/pg-console-sub007/internal/alerting/database"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
)

// PgAlertStore is the engine's PostgreSQL alert store. Tier advancement is a
// single conditional UPDATE, so concurrent engine instances never double-step
// the same alert.
type PgAlertStore struct {
	DB *adb.Database
}

func NewPgAlertStore(db *adb.Database) *PgAlertStore { return &PgAlertStore{DB: db} }

func (s *PgAlertStore) OpenAlerts(ctx context.Context, limit int) ([]model.ActiveAlert, error) {
	const q = `
	SELECT id, alert_id, alert_type, severity, message, instance_name,
	       fired_at, last_notification_at, current_tier, policy_id,
	       repeats_used, acknowledged, resolved, version
	FROM active_alerts
	WHERE resolved = false AND acknowledged = false
	ORDER BY fired_at ASC
	LIMIT $1`
	rows, err := s.DB.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query open alerts: %w", err)
	}
	defer rows.Close()

	var out []model.ActiveAlert
	for rows.Next() {
		var a model.ActiveAlert
		if err := rows.Scan(&a.ID, &a.AlertID, &a.AlertType, &a.Severity, &a.Message,
			&a.InstanceName, &a.FiredAt, &a.LastNotificationAt, &a.CurrentTier,
			&a.PolicyID, &a.RepeatsUsed, &a.Acknowledged, &a.Resolved, &a.Version); err != nil {
			return nil, fmt.Errorf("scan open alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PgAlertStore) AdvanceTier(ctx context.Context, id string, fromTier, toTier, repeatsUsed int, fromVersion int64, notifiedAt time.Time) (bool, error) {
	const q = `
	UPDATE active_alerts
	SET current_tier = $1,
	    repeats_used = $2,
	    last_notification_at = $3,
	    version = version + 1
	WHERE id = $4 AND current_tier = $5 AND version = $6
	  AND resolved = false AND acknowledged = false`
	res, err := s.DB.ExecContext(ctx, q, toTier, repeatsUsed, notifiedAt, id, fromTier, fromVersion)
	if err != nil {
		return false, fmt.Errorf("advance tier for alert %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance tier rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *PgAlertStore) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM active_alerts WHERE resolved = true AND resolved_at < $1`
	res, err := s.DB.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete resolved alerts: %w", err)
	}
	return res.RowsAffected()
}
