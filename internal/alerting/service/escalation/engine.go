package escalation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/metrics"
	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
	"github.com/rs/zerolog/log"
)

// Engine is the escalation scheduler: each cycle it finds alerts due for
// tier advancement, gates them through suppression, dispatches, and commits
// the advance with compare-and-set.
type Engine struct {
	deps Deps
}

func NewEngine(deps Deps) *Engine {
	if deps.Interval <= 0 {
		deps.Interval = 30 * time.Second
	}
	if deps.Batch <= 0 {
		deps.Batch = 200
	}
	if deps.Workers <= 0 {
		deps.Workers = 4
	}
	if deps.Retention <= 0 {
		deps.Retention = 30 * 24 * time.Hour
	}
	if deps.SweepInterval <= 0 {
		deps.SweepInterval = time.Hour
	}
	if deps.Clock == nil {
		deps.Clock = model.SystemClock{}
	}
	return &Engine{deps: deps}
}

// StartScheduler ticks RunCycle until the context ends.
func (e *Engine) StartScheduler(ctx context.Context) {
	t := time.NewTicker(e.deps.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := e.RunCycle(ctx); err != nil {
				log.Error().Err(err).Msg("escalation cycle failed")
			}
		}
	}
}

// StartRetentionSweeper periodically removes resolved alerts past retention.
func (e *Engine) StartRetentionSweeper(ctx context.Context) {
	t := time.NewTicker(e.deps.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cutoff := e.deps.Clock.Now().Add(-e.deps.Retention)
			n, err := e.deps.Alerts.DeleteResolvedBefore(ctx, cutoff)
			if err != nil {
				log.Error().Err(err).Msg("retention sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("removed", n).Time("cutoff", cutoff).Msg("retention sweep removed resolved alerts")
			}
		}
	}
}

// RunCycle executes one escalation pass. A storage failure on the selection
// query is fatal to the cycle; per-alert failures are logged, retried
// naturally on the next tick, and reported as a "partial" cycle outcome.
func (e *Engine) RunCycle(ctx context.Context) error {
	alerts, err := e.deps.Alerts.OpenAlerts(ctx, e.deps.Batch)
	if err != nil {
		metrics.EscalationCycles.WithLabelValues("error").Inc()
		return fmt.Errorf("select open alerts: %w", err)
	}

	// Fan out across alert IDs; per-alert ordering is protected by the
	// AdvanceTier compare-and-set, not by in-process locks.
	sem := make(chan struct{}, e.deps.Workers)
	var wg sync.WaitGroup
	var failed atomic.Int64
	for i := range alerts {
		sem <- struct{}{}
		wg.Add(1)
		go func(a *model.ActiveAlert) {
			defer func() {
				<-sem
				wg.Done()
			}()
			if err := e.processAlert(ctx, a); err != nil {
				failed.Add(1)
			}
		}(&alerts[i])
	}
	wg.Wait()

	if n := failed.Load(); n > 0 {
		metrics.EscalationCycles.WithLabelValues("partial").Inc()
		log.Warn().Int64("failed_alerts", n).Int("batch", len(alerts)).Msg("escalation cycle completed with per-alert failures")
	} else {
		metrics.EscalationCycles.WithLabelValues("ok").Inc()
	}
	return nil
}

// processAlert advances one alert by at most one tier step per cycle. The
// returned error marks the alert as failed for the cycle outcome; skips that
// are normal behavior (not due, suppressed, lost compare-and-set) return nil.
func (e *Engine) processAlert(ctx context.Context, alert *model.ActiveAlert) error {
	now := e.deps.Clock.Now()

	pol, err := e.deps.Policies.GetPolicy(ctx, alert.PolicyID)
	if err != nil {
		// Broken policy reference: nothing to compute a delay from, so the
		// alert waits for an operator instead of spinning.
		log.Error().Err(err).Str("alert_id", alert.ID).Str("policy_id", alert.PolicyID).Msg("escalation policy unavailable")
		return fmt.Errorf("policy %s: %w", alert.PolicyID, err)
	}

	step, due := nextStep(alert, pol, now)
	if !due {
		return nil
	}

	suppressed, err := e.deps.Gate.Suppressed(ctx, alert, now)
	if err != nil {
		log.Error().Err(err).Str("alert_id", alert.ID).Msg("suppression gate failed; skipping alert this cycle")
		return fmt.Errorf("suppression gate for alert %s: %w", alert.ID, err)
	}
	if suppressed {
		// Full skip: no state mutation, no repeat consumed; the alert is
		// re-evaluated next cycle.
		metrics.Suppressed.Inc()
		log.Info().Str("alert_id", alert.ID).Int("tier", step.tier.Order).Msg("escalation suppressed")
		return nil
	}

	results, err := e.deps.Dispatcher.Dispatch(ctx, alert, step.tier, step.seq)
	if err != nil {
		log.Error().Err(err).Str("alert_id", alert.ID).Int("tier", step.tier.Order).Msg("dispatch persistence failure; tier not advanced")
		return fmt.Errorf("dispatch alert %s: %w", alert.ID, err)
	}
	logOutcomes(alert, step.tier, results)

	// Partial delivery failure does not block escalation: the tier advances
	// regardless of per-channel outcomes.
	ok, err := e.deps.Alerts.AdvanceTier(ctx, alert.ID, alert.CurrentTier, step.toTier, step.repeatsUsed, alert.Version, now)
	if err != nil {
		log.Error().Err(err).Str("alert_id", alert.ID).Msg("tier advance failed")
		return fmt.Errorf("advance alert %s: %w", alert.ID, err)
	}
	if !ok {
		log.Debug().Str("alert_id", alert.ID).Int("from_tier", alert.CurrentTier).Msg("tier advance lost compare-and-set; another instance advanced")
		return nil
	}
	metrics.TierAdvances.Inc()
	log.Info().
		Str("alert_id", alert.ID).
		Str("alert_type", alert.AlertType).
		Int("tier", step.toTier).
		Int("notified_channels", len(results)).
		Msg("alert escalated")
	return nil
}

// step describes one due escalation: the tier to notify and the state to
// commit afterwards.
type step struct {
	tier        *model.EscalationTier
	toTier      int
	repeatsUsed int
	seq         int
}

// nextStep applies the transition rule: advance to tier current+1 when its
// delay has elapsed since the last notification (FiredAt when none yet); at
// the top of the policy, re-fire the last tier up to RepeatCount times using
// the last tier's delay; beyond that the alert is quiescent.
func nextStep(alert *model.ActiveAlert, pol *model.EscalationPolicy, now time.Time) (step, bool) {
	base := alert.NotifiedBase()

	if next := pol.Tier(alert.CurrentTier + 1); next != nil {
		if now.Before(base.Add(next.Delay)) {
			return step{}, false
		}
		return step{tier: next, toTier: next.Order, repeatsUsed: alert.RepeatsUsed}, true
	}

	last := pol.LastTier()
	if last == nil {
		return step{}, false
	}
	if alert.CurrentTier < last.Order {
		// Tier gap from a policy edit. Step through it with an empty tier so
		// the alert is not stuck forever on broken config; the dispatcher
		// sees no eligible channels and the advance still commits.
		return step{tier: &model.EscalationTier{Order: alert.CurrentTier + 1}, toTier: alert.CurrentTier + 1, repeatsUsed: alert.RepeatsUsed}, true
	}
	if pol.RepeatCount <= 0 || alert.RepeatsUsed >= pol.RepeatCount {
		return step{}, false
	}
	if now.Before(base.Add(last.Delay)) {
		return step{}, false
	}
	return step{tier: last, toTier: alert.CurrentTier, repeatsUsed: alert.RepeatsUsed + 1, seq: alert.RepeatsUsed + 1}, true
}

func logOutcomes(alert *model.ActiveAlert, tier *model.EscalationTier, results []model.NotificationResult) {
	for _, r := range results {
		if r.Status == model.ResultAttempted && !r.Success {
			log.Warn().
				Str("alert_id", alert.ID).
				Str("channel_id", r.ChannelID).
				Int("tier", tier.Order).
				Str("error", r.ErrorMessage).
				Msg("channel delivery failed; escalation continues")
		}
	}
}
