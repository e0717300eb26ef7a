package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	adb "github.com/bovinemagnet/pg-console-sub007/internal/alerting/database"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
)

// PgAlertStore persists alerts in the active_alerts table. Metadata rides in
// a jsonb column.
type PgAlertStore struct {
	DB *adb.Database
}

func NewPgAlertStore(db *adb.Database) *PgAlertStore { return &PgAlertStore{DB: db} }

const alertColumns = `id, alert_id, alert_type, severity, message, instance_name,
	fired_at, last_notification_at, current_tier, policy_id, repeats_used,
	acknowledged, acknowledged_at, resolved, resolved_at, metadata, version`

func (s *PgAlertStore) GetOpenByAlertID(ctx context.Context, alertID string) (*model.ActiveAlert, error) {
	q := `SELECT ` + alertColumns + ` FROM active_alerts WHERE alert_id = $1 AND resolved = false`
	return s.scanOne(s.DB.QueryRowContext(ctx, q, alertID))
}

func (s *PgAlertStore) Get(ctx context.Context, id string) (*model.ActiveAlert, error) {
	q := `SELECT ` + alertColumns + ` FROM active_alerts WHERE id = $1`
	return s.scanOne(s.DB.QueryRowContext(ctx, q, id))
}

func (s *PgAlertStore) Insert(ctx context.Context, a *model.ActiveAlert) error {
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("marshal alert metadata: %w", err)
	}
	const q = `
	INSERT INTO active_alerts
		(id, alert_id, alert_type, severity, message, instance_name, fired_at,
		 current_tier, policy_id, repeats_used, acknowledged, resolved, metadata, version)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14)`
	_, err = s.DB.ExecContext(ctx, q, a.ID, a.AlertID, a.AlertType, a.Severity,
		a.Message, a.InstanceName, a.FiredAt, a.CurrentTier, a.PolicyID,
		a.RepeatsUsed, a.Acknowledged, a.Resolved, string(metadata), a.Version)
	return err
}

func (s *PgAlertStore) Acknowledge(ctx context.Context, id string, at time.Time) (bool, error) {
	const q = `
	UPDATE active_alerts
	SET acknowledged = true, acknowledged_at = $1, version = version + 1
	WHERE id = $2 AND acknowledged = false AND resolved = false`
	res, err := s.DB.ExecContext(ctx, q, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *PgAlertStore) Resolve(ctx context.Context, id string, at time.Time) (bool, error) {
	const q = `
	UPDATE active_alerts
	SET resolved = true, resolved_at = $1, version = version + 1
	WHERE id = $2 AND resolved = false`
	res, err := s.DB.ExecContext(ctx, q, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *PgAlertStore) List(ctx context.Context, opts ListOptions) ([]model.ActiveAlert, error) {
	q := `SELECT ` + alertColumns + ` FROM active_alerts WHERE 1 = 1`
	args := make([]any, 0, 3)
	if !opts.IncludeResolved {
		q += ` AND resolved = false`
	}
	if opts.Severity != "" {
		args = append(args, opts.Severity)
		q += fmt.Sprintf(` AND severity = $%d`, len(args))
	}
	if opts.InstanceName != "" {
		args = append(args, opts.InstanceName)
		q += fmt.Sprintf(` AND instance_name = $%d`, len(args))
	}
	q += ` ORDER BY fired_at DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []model.ActiveAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PgAlertStore) scanOne(row *sql.Row) (*model.ActiveAlert, error) {
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func scanAlert(r rowScanner) (*model.ActiveAlert, error) {
	var a model.ActiveAlert
	var metadata []byte
	err := r.Scan(&a.ID, &a.AlertID, &a.AlertType, &a.Severity, &a.Message,
		&a.InstanceName, &a.FiredAt, &a.LastNotificationAt, &a.CurrentTier,
		&a.PolicyID, &a.RepeatsUsed, &a.Acknowledged, &a.AcknowledgedAt,
		&a.Resolved, &a.ResolvedAt, &metadata, &a.Version)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal alert metadata: %w", err)
		}
	}
	return &a, nil
}
