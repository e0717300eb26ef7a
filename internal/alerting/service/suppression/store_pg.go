package suppression

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	adb "github.com/bovinemagnet/pg-console-sub007/internal/alerting/database"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
	"github.com/lib/pq"
)

// PgStore reads and writes suppression rules in PostgreSQL.
type PgStore struct {
	DB *adb.Database
}

func NewPgStore(db *adb.Database) *PgStore { return &PgStore{DB: db} }

func (s *PgStore) ActiveSilences(ctx context.Context, now time.Time) ([]model.AlertSilence, error) {
	const q = `
	SELECT id, matchers, starts_at, ends_at, comment, created_by, expired_at
	FROM alert_silences
	WHERE starts_at <= $1 AND ends_at > $1 AND (expired_at IS NULL OR expired_at > $1)`
	rows, err := s.DB.QueryContext(ctx, q, now)
	if err != nil {
		return nil, fmt.Errorf("query active silences: %w", err)
	}
	defer rows.Close()
	var out []model.AlertSilence
	for rows.Next() {
		var sil model.AlertSilence
		var matchersJSON string
		if err := rows.Scan(&sil.ID, &matchersJSON, &sil.StartsAt, &sil.EndsAt, &sil.Comment, &sil.CreatedBy, &sil.ExpiredAt); err != nil {
			return nil, fmt.Errorf("scan silence: %w", err)
		}
		if err := json.Unmarshal([]byte(matchersJSON), &sil.Matchers); err != nil {
			return nil, fmt.Errorf("parse silence %s matchers: %w", sil.ID, err)
		}
		out = append(out, sil)
	}
	return out, rows.Err()
}

func (s *PgStore) ActiveMaintenanceWindows(ctx context.Context, now time.Time) ([]model.MaintenanceWindow, error) {
	const q = `
	SELECT id, name, starts_at, ends_at, instance_filter, alert_type_filter, recurring, recurrence_pattern
	FROM maintenance_windows
	WHERE starts_at <= $1 AND ends_at > $1`
	rows, err := s.DB.QueryContext(ctx, q, now)
	if err != nil {
		return nil, fmt.Errorf("query active maintenance windows: %w", err)
	}
	defer rows.Close()
	var out []model.MaintenanceWindow
	for rows.Next() {
		var w model.MaintenanceWindow
		if err := rows.Scan(&w.ID, &w.Name, &w.StartsAt, &w.EndsAt,
			pq.Array(&w.InstanceFilter), pq.Array(&w.AlertTypeFilter),
			&w.Recurring, &w.RecurrencePattern); err != nil {
			return nil, fmt.Errorf("scan maintenance window: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PgStore) CreateSilence(ctx context.Context, sil *model.AlertSilence) error {
	matchersJSON, err := json.Marshal(sil.Matchers)
	if err != nil {
		return fmt.Errorf("marshal silence matchers: %w", err)
	}
	const q = `
	INSERT INTO alert_silences (id, matchers, starts_at, ends_at, comment, created_by)
	VALUES ($1, $2::jsonb, $3, $4, $5, $6)`
	if _, err := s.DB.ExecContext(ctx, q, sil.ID, string(matchersJSON), sil.StartsAt, sil.EndsAt, sil.Comment, sil.CreatedBy); err != nil {
		return fmt.Errorf("insert silence: %w", err)
	}
	return nil
}

func (s *PgStore) ExpireSilence(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE alert_silences SET expired_at = $2 WHERE id = $1 AND expired_at IS NULL`
	res, err := s.DB.ExecContext(ctx, q, id, at)
	if err != nil {
		return fmt.Errorf("expire silence: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("expire silence rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("silence not found or already expired: %s", id)
	}
	return nil
}
