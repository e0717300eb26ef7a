package dispatch

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisDedupCache marks dedup keys with SET NX so overlapping engine
// instances rarely reach the transport for the same (alert, tier, channel).
// Best-effort only: the history table remains the authoritative guard.
type RedisDedupCache struct {
	rdb *redis.Client
}

func NewRedisDedupCache(rdb *redis.Client) *RedisDedupCache { return &RedisDedupCache{rdb: rdb} }

func (c *RedisDedupCache) TryMark(ctx context.Context, dedupKey string, ttl time.Duration) bool {
	if c.rdb == nil {
		return true
	}
	ok, err := c.rdb.SetNX(ctx, "alert:dispatch:dedup:"+dedupKey, 1, ttl).Result()
	if err != nil {
		// Cache unavailable must not block delivery.
		log.Warn().Err(err).Msg("dedup cache mark failed; proceeding")
		return true
	}
	return ok
}

func (c *RedisDedupCache) Unmark(ctx context.Context, dedupKey string) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, "alert:dispatch:dedup:"+dedupKey).Err(); err != nil {
		log.Warn().Err(err).Msg("dedup cache unmark failed")
	}
}

// NoopDedupCache is used when Redis is not configured.
type NoopDedupCache struct{}

func (NoopDedupCache) TryMark(ctx context.Context, dedupKey string, ttl time.Duration) bool { return true }
func (NoopDedupCache) Unmark(ctx context.Context, dedupKey string)                          {}
