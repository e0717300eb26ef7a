package dispatch

import (
	"context"
	"fmt"
	"time"

	adb "github.com/bovinemagnet/pg-console-sub007/internal/alerting/database"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
	"github.com/lib/pq"
)

// PgChannelStore reads notification channels from PostgreSQL.
type PgChannelStore struct {
	DB *adb.Database
}

func NewPgChannelStore(db *adb.Database) *PgChannelStore { return &PgChannelStore{DB: db} }

func (s *PgChannelStore) GetChannels(ctx context.Context, ids []string) ([]model.NotificationChannel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `
	SELECT id, name, type, config, severity_filter, alert_type_filter, instance_filter,
	       rate_limit_per_hour, enabled, test_mode, last_used_at
	FROM notification_channels
	WHERE id = ANY($1)`
	rows, err := s.DB.QueryContext(ctx, q, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()
	var out []model.NotificationChannel
	for rows.Next() {
		var ch model.NotificationChannel
		var configJSON []byte
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Type, &configJSON,
			pq.Array(&ch.SeverityFilter), pq.Array(&ch.AlertTypeFilter), pq.Array(&ch.InstanceFilter),
			&ch.RateLimitPerHour, &ch.Enabled, &ch.TestMode, &ch.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		if err := unmarshalConfig(configJSON, &ch); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *PgChannelStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE notification_channels SET last_used_at = $2 WHERE id = $1`
	if _, err := s.DB.ExecContext(ctx, q, id, at); err != nil {
		return fmt.Errorf("touch channel last_used_at: %w", err)
	}
	return nil
}

// PgResultStore is the append-only notification history in PostgreSQL.
type PgResultStore struct {
	DB *adb.Database
}

func NewPgResultStore(db *adb.Database) *PgResultStore { return &PgResultStore{DB: db} }

func (s *PgResultStore) Insert(ctx context.Context, r *model.NotificationResult) error {
	const q = `
	INSERT INTO notification_results
		(id, channel_id, alert_id, tier, sent_at, status, success, response_code, error_message, dedup_key)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.DB.ExecContext(ctx, q, r.ID, r.ChannelID, r.AlertID, r.Tier, r.SentAt,
		r.Status, r.Success, r.ResponseCode, r.ErrorMessage, r.DedupKey)
	if err != nil {
		return fmt.Errorf("insert notification result: %w", err)
	}
	return nil
}

func (s *PgResultStore) ReserveAttempt(ctx context.Context, r *model.NotificationResult, limit int, since time.Time) (bool, error) {
	if limit <= 0 {
		if err := s.Insert(ctx, r); err != nil {
			return false, err
		}
		return true, nil
	}

	tx, err := s.DB.BeginTx(ctx)
	if err != nil {
		return false, fmt.Errorf("begin attempt reservation: %w", err)
	}
	defer tx.Rollback()

	// Serialize reservations per channel for the scope of this transaction,
	// so the count below and the insert commit as one unit even across
	// engine instances.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, r.ChannelID); err != nil {
		return false, fmt.Errorf("lock channel %s: %w", r.ChannelID, err)
	}

	const cq = `
	SELECT COUNT(*) FROM notification_results
	WHERE channel_id = $1 AND status = $2 AND sent_at >= $3`
	var count int
	if err := tx.QueryRowContext(ctx, cq, r.ChannelID, model.ResultAttempted, since).Scan(&count); err != nil {
		return false, fmt.Errorf("count channel results: %w", err)
	}
	if count >= limit {
		return false, nil
	}

	const iq = `
	INSERT INTO notification_results
		(id, channel_id, alert_id, tier, sent_at, status, success, response_code, error_message, dedup_key)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := tx.ExecContext(ctx, iq, r.ID, r.ChannelID, r.AlertID, r.Tier, r.SentAt,
		r.Status, r.Success, r.ResponseCode, r.ErrorMessage, r.DedupKey); err != nil {
		return false, fmt.Errorf("insert notification result: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit attempt reservation: %w", err)
	}
	return true, nil
}

func (s *PgResultStore) FinalizeAttempt(ctx context.Context, id string, success bool, responseCode int, errorMessage string) error {
	const q = `
	UPDATE notification_results
	SET success = $2, response_code = $3, error_message = $4
	WHERE id = $1`
	if _, err := s.DB.ExecContext(ctx, q, id, success, responseCode, errorMessage); err != nil {
		return fmt.Errorf("finalize notification result: %w", err)
	}
	return nil
}

func (s *PgResultStore) HasSuccess(ctx context.Context, dedupKey string) (bool, error) {
	const q = `SELECT 1 FROM notification_results WHERE dedup_key = $1 AND success = true LIMIT 1`
	rows, err := s.DB.QueryContext(ctx, q, dedupKey)
	if err != nil {
		return false, fmt.Errorf("query dedup key: %w", err)
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}

func (s *PgResultStore) CountAttemptedSince(ctx context.Context, channelID string, since time.Time) (int, error) {
	const q = `
	SELECT COUNT(*) FROM notification_results
	WHERE channel_id = $1 AND status = $2 AND sent_at >= $3`
	var count int
	row := s.DB.QueryRowContext(ctx, q, channelID, model.ResultAttempted, since)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count channel results: %w", err)
	}
	return count, nil
}

func (s *PgResultStore) FailedSince(ctx context.Context, since time.Time) ([]model.NotificationResult, error) {
	const q = `
	SELECT id, channel_id, alert_id, tier, sent_at, status, success, response_code, error_message, dedup_key
	FROM notification_results
	WHERE status = $1 AND success = false AND sent_at >= $2
	ORDER BY sent_at ASC`
	rows, err := s.DB.QueryContext(ctx, q, model.ResultAttempted, since)
	if err != nil {
		return nil, fmt.Errorf("query failed results: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

func (s *PgResultStore) ListForAlert(ctx context.Context, alertID string) ([]model.NotificationResult, error) {
	const q = `
	SELECT id, channel_id, alert_id, tier, sent_at, status, success, response_code, error_message, dedup_key
	FROM notification_results
	WHERE alert_id = $1
	ORDER BY sent_at ASC`
	rows, err := s.DB.QueryContext(ctx, q, alertID)
	if err != nil {
		return nil, fmt.Errorf("query alert results: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}
