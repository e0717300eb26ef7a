package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/metrics"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// dedupMarkTTL bounds how long the Redis fast-path remembers a delivery.
// The history table is authoritative beyond that.
const dedupMarkTTL = 2 * time.Hour

// Dispatcher fans an alert's tier notification out to the tier's channels,
// enforcing filters, the dedup guard, and per-channel rate limits. Channel
// outcomes are independent: one failure never blocks the others or the
// caller's tier advance.
type Dispatcher struct {
	Channels  ChannelStore
	Results   ResultStore
	Transport Transport
	Cache     DedupCache
	Clock     model.Clock
}

// NewDispatcher wires a dispatcher. A nil cache degrades to no fast path and
// a nil clock to the system clock.
func NewDispatcher(channels ChannelStore, results ResultStore, transport Transport, cache DedupCache, clock model.Clock) *Dispatcher {
	if cache == nil {
		cache = NoopDedupCache{}
	}
	if clock == nil {
		clock = model.SystemClock{}
	}
	return &Dispatcher{Channels: channels, Results: results, Transport: transport, Cache: cache, Clock: clock}
}

// Dispatch notifies the tier's channels about the alert. seq is 0 for the
// first pass over a tier and counts up for repeat-after-top re-fires, which
// get their own dedup scope (a retry of the same pass keeps seq and is
// caught by the guard; an intentional repeat is not). Returned results
// include rate-limited and dedup-skipped channels. The error is non-nil only
// for persistence failures; transport failures are recorded per channel.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *model.ActiveAlert, tier *model.EscalationTier, seq int) ([]model.NotificationResult, error) {
	return d.dispatch(ctx, alert, tier, KindEscalation, seq)
}

// DispatchResolution sends the one-shot "resolved" notice through the tier's
// channels. Resolution notices use their own dedup scope so they are not
// swallowed by the tier's earlier escalation delivery.
func (d *Dispatcher) DispatchResolution(ctx context.Context, alert *model.ActiveAlert, tier *model.EscalationTier) ([]model.NotificationResult, error) {
	return d.dispatch(ctx, alert, tier, KindResolution, 0)
}

func (d *Dispatcher) dispatch(ctx context.Context, alert *model.ActiveAlert, tier *model.EscalationTier, kind Kind, seq int) ([]model.NotificationResult, error) {
	channels, err := d.Channels.GetChannels(ctx, tier.ChannelIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve tier %d channels: %w", tier.Order, err)
	}

	eligible := make([]model.NotificationChannel, 0, len(channels))
	for _, ch := range channels {
		if !ch.Enabled {
			continue
		}
		if !ch.Accepts(alert) {
			continue
		}
		eligible = append(eligible, ch)
	}
	if len(eligible) == 0 {
		log.Warn().Str("alert_id", alert.ID).Int("tier", tier.Order).Msg("no eligible channels for tier")
		return nil, nil
	}

	// Transport calls are I/O-bound and independent; run them concurrently.
	results := make([]*model.NotificationResult, len(eligible))
	errs := make([]error, len(eligible))
	var wg sync.WaitGroup
	for i := range eligible {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = d.dispatchOne(ctx, alert, tier, &eligible[i], kind, seq)
		}(i)
	}
	wg.Wait()

	out := make([]model.NotificationResult, 0, len(eligible))
	for i := range eligible {
		if errs[i] != nil {
			// Persistence failure: surface it, the cycle owner aborts and
			// retries next tick.
			return out, errs[i]
		}
		if results[i] != nil {
			out = append(out, *results[i])
		}
	}
	return out, nil
}

// dispatchOne runs the full decision ladder for a single channel. The
// returned error is reserved for storage failures.
func (d *Dispatcher) dispatchOne(ctx context.Context, alert *model.ActiveAlert, tier *model.EscalationTier, ch *model.NotificationChannel, kind Kind, seq int) (*model.NotificationResult, error) {
	now := d.Clock.Now()
	dedupKey := dedupKeyFor(alert, tier, ch, kind, seq)

	// Idempotent redelivery guard: a prior successful delivery for this
	// (alert, tier, channel) is final.
	done, err := d.Results.HasSuccess(ctx, dedupKey)
	if err != nil {
		return nil, fmt.Errorf("dedup lookup for channel %s: %w", ch.ID, err)
	}
	if done {
		metrics.Dispatches.WithLabelValues(string(ch.Type), "dedup_skip").Inc()
		return skipResult(alert, tier, ch, dedupKey, now, "already delivered"), nil
	}

	renderer, err := RendererFor(ch.Type)
	if err != nil {
		// Misconfigured channel type: log and skip, never fail the tier.
		log.Error().Err(err).Str("channel_id", ch.ID).Msg("channel renderer unavailable")
		return skipResult(alert, tier, ch, dedupKey, now, err.Error()), nil
	}
	payload, err := renderer.Render(alert, tier.Order, kind, now)
	if err != nil {
		log.Error().Err(err).Str("channel_id", ch.ID).Msg("payload render failed")
		return skipResult(alert, tier, ch, dedupKey, now, err.Error()), nil
	}

	// Cross-instance fast path; the authoritative guard above already ran.
	if !d.Cache.TryMark(ctx, dedupKey, dedupMarkTTL) {
		metrics.Dispatches.WithLabelValues(string(ch.Type), "dedup_skip").Inc()
		return skipResult(alert, tier, ch, dedupKey, now, "delivery in flight elsewhere"), nil
	}

	// Claim a rate-limit slot and the history row in one atomic step before
	// touching the transport. Concurrent dispatches for the same channel
	// contend on the store, not on a read-then-write race.
	row := &model.NotificationResult{
		ID:        uuid.NewString(),
		ChannelID: ch.ID,
		AlertID:   alert.ID,
		Tier:      tier.Order,
		SentAt:    now,
		Status:    model.ResultAttempted,
		DedupKey:  dedupKey,
	}
	reserved, err := d.Results.ReserveAttempt(ctx, row, ch.RateLimitPerHour, now.Add(-time.Hour))
	if err != nil {
		d.Cache.Unmark(ctx, dedupKey)
		return nil, fmt.Errorf("reserve delivery attempt for channel %s: %w", ch.ID, err)
	}
	if !reserved {
		d.Cache.Unmark(ctx, dedupKey)
		log.Warn().Str("channel_id", ch.ID).Int("limit", ch.RateLimitPerHour).Msg("channel rate limit reached; recording rate-limited result")
		metrics.Dispatches.WithLabelValues(string(ch.Type), "rate_limited").Inc()
		rl := &model.NotificationResult{
			ID:        uuid.NewString(),
			ChannelID: ch.ID,
			AlertID:   alert.ID,
			Tier:      tier.Order,
			SentAt:    now,
			Status:    model.ResultRateLimited,
			DedupKey:  dedupKey,
		}
		if err := d.Results.Insert(ctx, rl); err != nil {
			return nil, fmt.Errorf("record rate-limited result: %w", err)
		}
		return rl, nil
	}

	var sr *SendResult
	if ch.TestMode {
		sr = &SendResult{Success: true}
	} else {
		start := time.Now()
		sr = d.Transport.Send(ctx, ch, payload)
		metrics.DispatchDuration.WithLabelValues(string(ch.Type)).Observe(time.Since(start).Seconds())
	}

	row.Success = sr.Success
	row.ResponseCode = sr.ResponseCode
	row.ErrorMessage = sr.Err
	if err := d.Results.FinalizeAttempt(ctx, row.ID, sr.Success, sr.ResponseCode, sr.Err); err != nil {
		d.Cache.Unmark(ctx, dedupKey)
		return nil, fmt.Errorf("record notification result: %w", err)
	}

	if sr.Success {
		metrics.Dispatches.WithLabelValues(string(ch.Type), "success").Inc()
		if err := d.Channels.TouchLastUsed(ctx, ch.ID, now); err != nil {
			log.Warn().Err(err).Str("channel_id", ch.ID).Msg("update channel last_used_at failed")
		}
	} else {
		metrics.Dispatches.WithLabelValues(string(ch.Type), "failure").Inc()
		// Let a retry cycle reach the transport again.
		d.Cache.Unmark(ctx, dedupKey)
		log.Error().
			Str("alert_id", alert.ID).
			Str("channel_id", ch.ID).
			Int("tier", tier.Order).
			Int("response_code", sr.ResponseCode).
			Str("error", sr.Err).
			Msg("notification delivery failed")
	}
	return row, nil
}

// dedupKeyFor scopes resolution notices and repeat passes separately from the
// first escalation delivery of a tier.
func dedupKeyFor(alert *model.ActiveAlert, tier *model.EscalationTier, ch *model.NotificationChannel, kind Kind, seq int) string {
	switch {
	case kind == KindResolution:
		return model.DedupKey(alert.ID+":resolved", tier.Order, ch.ID)
	case seq > 0:
		return model.DedupKey(alert.ID+":r"+strconv.Itoa(seq), tier.Order, ch.ID)
	default:
		return model.DedupKey(alert.ID, tier.Order, ch.ID)
	}
}

// skipResult is returned to the caller but not persisted: skip rows carry no
// audit value beyond the existing successful row and would bloat the history.
func skipResult(alert *model.ActiveAlert, tier *model.EscalationTier, ch *model.NotificationChannel, dedupKey string, at time.Time, reason string) *model.NotificationResult {
	return &model.NotificationResult{
		ChannelID:    ch.ID,
		AlertID:      alert.ID,
		Tier:         tier.Order,
		SentAt:       at,
		Status:       model.ResultSkipped,
		ErrorMessage: reason,
		DedupKey:     dedupKey,
	}
}
