package policy

import (
	"context"
	"fmt"
	"time"

	adb "github.com/bovinemagnet/pg-console-sub007/internal/alerting/database"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lib/pq"
)

// PgStore is the PostgreSQL-backed policy store. Tier delays are stored as
// native intervals.
type PgStore struct {
	DB *adb.Database
}

func NewPgStore(db *adb.Database) *PgStore { return &PgStore{DB: db} }

func (s *PgStore) GetPolicy(ctx context.Context, id string) (*model.EscalationPolicy, error) {
	const q = `SELECT id, name, repeat_count FROM escalation_policies WHERE id = $1`
	row := s.DB.QueryRowContext(ctx, q, id)
	var p model.EscalationPolicy
	if err := row.Scan(&p.ID, &p.Name, &p.RepeatCount); err != nil {
		return nil, fmt.Errorf("get policy %s: %w", id, err)
	}
	tiers, err := s.loadTiers(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Tiers = tiers
	return &p, nil
}

func (s *PgStore) ListPolicies(ctx context.Context) ([]*model.EscalationPolicy, error) {
	const q = `SELECT id, name, repeat_count FROM escalation_policies ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()
	var out []*model.EscalationPolicy
	for rows.Next() {
		var p model.EscalationPolicy
		if err := rows.Scan(&p.ID, &p.Name, &p.RepeatCount); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range out {
		tiers, err := s.loadTiers(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		p.Tiers = tiers
	}
	return out, nil
}

func (s *PgStore) loadTiers(ctx context.Context, policyID string) ([]model.EscalationTier, error) {
	const q = `
	SELECT tier_order, delay, channel_ids
	FROM escalation_tiers
	WHERE policy_id = $1
	ORDER BY tier_order ASC`
	rows, err := s.DB.QueryContext(ctx, q, policyID)
	if err != nil {
		return nil, fmt.Errorf("query tiers for policy %s: %w", policyID, err)
	}
	defer rows.Close()
	var tiers []model.EscalationTier
	for rows.Next() {
		var t model.EscalationTier
		var iv pgtype.Interval
		if err := rows.Scan(&t.Order, &iv, pq.Array(&t.ChannelIDs)); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		t.Delay = intervalToDuration(iv)
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func (s *PgStore) upsertPolicy(ctx context.Context, p *model.EscalationPolicy) error {
	const q = `
	INSERT INTO escalation_policies (id, name, repeat_count)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO NOTHING`
	if _, err := s.DB.ExecContext(ctx, q, p.ID, p.Name, p.RepeatCount); err != nil {
		return fmt.Errorf("insert policy %s: %w", p.ID, err)
	}
	const tq = `
	INSERT INTO escalation_tiers (policy_id, tier_order, delay, channel_ids)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (policy_id, tier_order) DO NOTHING`
	for _, t := range p.Tiers {
		if _, err := s.DB.ExecContext(ctx, tq, p.ID, t.Order, durationToInterval(t.Delay), pq.Array(t.ChannelIDs)); err != nil {
			return fmt.Errorf("insert tier %d of policy %s: %w", t.Order, p.ID, err)
		}
	}
	return nil
}

// durationToInterval converts a Go duration to a pgtype.Interval with the
// whole span expressed in microseconds.
func durationToInterval(d time.Duration) pgtype.Interval {
	return pgtype.Interval{Microseconds: d.Microseconds(), Valid: true}
}

func intervalToDuration(iv pgtype.Interval) time.Duration {
	if !iv.Valid {
		return 0
	}
	d := time.Duration(iv.Microseconds) * time.Microsecond
	d += time.Duration(iv.Days) * 24 * time.Hour
	d += time.Duration(iv.Months) * 30 * 24 * time.Hour
	return d
}
