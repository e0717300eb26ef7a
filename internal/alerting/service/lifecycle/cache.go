package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	stateKeyPrefix = "alert:state:"
	stateTTL       = 24 * time.Hour
)

// RedisStateCache mirrors open-alert state into Redis keyed by the external
// alert id, for dashboards that poll state without hitting PostgreSQL.
type RedisStateCache struct {
	client *redis.Client
}

func NewRedisStateCache(client *redis.Client) *RedisStateCache {
	return &RedisStateCache{client: client}
}

func (c *RedisStateCache) SetState(ctx context.Context, alert *model.ActiveAlert) {
	data, err := json.Marshal(alert)
	if err != nil {
		log.Warn().Err(err).Str("alert_id", alert.AlertID).Msg("alert state cache marshal failed")
		return
	}
	if err := c.client.Set(ctx, stateKeyPrefix+alert.AlertID, data, stateTTL).Err(); err != nil {
		log.Warn().Err(err).Str("alert_id", alert.AlertID).Msg("alert state cache write failed")
	}
}

func (c *RedisStateCache) DropState(ctx context.Context, alertID string) {
	if err := c.client.Del(ctx, stateKeyPrefix+alertID).Err(); err != nil {
		log.Warn().Err(err).Str("alert_id", alertID).Msg("alert state cache delete failed")
	}
}

// NoopStateCache stands in when Redis is not configured.
type NoopStateCache struct{}

func (NoopStateCache) SetState(context.Context, *model.ActiveAlert) {}
func (NoopStateCache) DropState(context.Context, string)           {}
