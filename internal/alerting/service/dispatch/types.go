package dispatch

import (
	"context"
	"time"

	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
)

// ChannelStore resolves notification channel configuration.
type ChannelStore interface {
	GetChannels(ctx context.Context, ids []string) ([]model.NotificationChannel, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// ResultStore is the append-only notification history plus the queries the
// dispatcher needs: the dedup guard, rate-limit reservation, and failed-result
// discovery for retries.
type ResultStore interface {
	Insert(ctx context.Context, r *model.NotificationResult) error
	HasSuccess(ctx context.Context, dedupKey string) (bool, error)
	// ReserveAttempt persists r as a pending attempted row if and only if the
	// channel holds fewer than limit attempted rows with sent_at >= since. The
	// count and the insert must commit as one atomic unit so that concurrent
	// dispatches cannot both slip under the limit. A limit <= 0 reserves
	// unconditionally. Returns false when the channel is at its limit.
	ReserveAttempt(ctx context.Context, r *model.NotificationResult, limit int, since time.Time) (bool, error)
	// FinalizeAttempt records the transport outcome on a previously reserved
	// row.
	FinalizeAttempt(ctx context.Context, id string, success bool, responseCode int, errorMessage string) error
	// CountAttemptedSince counts attempted rows (success or failure) for the
	// channel with sent_at >= since. Rate-limited and skipped rows do not
	// count.
	CountAttemptedSince(ctx context.Context, channelID string, since time.Time) (int, error)
	FailedSince(ctx context.Context, since time.Time) ([]model.NotificationResult, error)
	ListForAlert(ctx context.Context, alertID string) ([]model.NotificationResult, error)
}

// SendResult is the transport's diagnostic payload for one delivery attempt.
type SendResult struct {
	Success      bool
	ResponseCode int
	Body         string
	Err          string
}

// Transport performs the outbound call for one channel.
type Transport interface {
	Send(ctx context.Context, ch *model.NotificationChannel, payload []byte) *SendResult
}

// DedupCache is a best-effort distributed fast path in front of the
// authoritative history-table dedup query. Implementations must never block
// delivery on cache failure.
type DedupCache interface {
	// TryMark marks the dedup key; false means another instance already
	// delivered for this key recently.
	TryMark(ctx context.Context, dedupKey string, ttl time.Duration) bool
	// Unmark releases the key after a failed attempt so a retry can pass.
	Unmark(ctx context.Context, dedupKey string)
}

// Kind tags the notification being rendered.
type Kind string

const (
	KindEscalation Kind = "escalation"
	KindResolution Kind = "resolution"
)
