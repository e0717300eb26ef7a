package suppression

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
	"github.com/rs/zerolog/log"
)

// Evaluator decides whether notifications for an alert must be withheld at a
// given instant. It is pure: no side effects, safe to call repeatedly.
type Evaluator struct {
	failMode FailMode

	mu    sync.RWMutex
	cache map[string]*compiledMatcher
}

type compiledMatcher struct {
	re  *regexp.Regexp
	err error
}

// NewEvaluator builds an evaluator with the given matcher fail mode.
func NewEvaluator(mode FailMode) *Evaluator {
	if mode != FailOpen {
		mode = FailClosed
	}
	return &Evaluator{failMode: mode, cache: make(map[string]*compiledMatcher)}
}

// IsSuppressed reports whether any active silence or maintenance window
// covers the alert at now.
func (e *Evaluator) IsSuppressed(alert *model.ActiveAlert, silences []model.AlertSilence, windows []model.MaintenanceWindow, now time.Time) bool {
	for i := range silences {
		if e.silenceMatches(&silences[i], alert, now) {
			return true
		}
	}
	for i := range windows {
		w := &windows[i]
		if w.ActiveAt(now) && w.Covers(alert) {
			return true
		}
	}
	return false
}

// silenceMatches requires the silence to be active and every matcher to hold.
func (e *Evaluator) silenceMatches(s *model.AlertSilence, alert *model.ActiveAlert, now time.Time) bool {
	if !s.ActiveAt(now) {
		return false
	}
	if len(s.Matchers) == 0 {
		return false
	}
	for _, m := range s.Matchers {
		ok, err := e.matcherHolds(&m, alert)
		if err != nil {
			log.Warn().Err(err).Str("silence_id", s.ID).Str("field", m.Field).Msg("silence matcher unevaluable")
			if e.failMode == FailOpen {
				continue
			}
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

func (e *Evaluator) matcherHolds(m *model.Matcher, alert *model.ActiveAlert) (bool, error) {
	value, ok := alert.Field(m.Field)
	if !ok {
		// Unknown field is a plain non-match, not an evaluation failure.
		return false, nil
	}
	switch m.Kind {
	case model.MatchExact:
		return value == m.Value, nil
	case model.MatchRegex:
		re, err := e.compile(m.Value)
		if err != nil {
			return false, fmt.Errorf("compile matcher regex: %w", err)
		}
		return re.MatchString(value), nil
	default:
		return false, fmt.Errorf("unknown matcher kind %q", m.Kind)
	}
}

// compile caches anchored patterns. Anchoring to \A...\z avoids partial-match
// false positives; std regexp (RE2) gives linear-time evaluation, so a hostile
// pattern cannot stall the evaluator.
func (e *Evaluator) compile(pattern string) (*regexp.Regexp, error) {
	e.mu.RLock()
	c, ok := e.cache[pattern]
	e.mu.RUnlock()
	if !ok {
		re, err := regexp.Compile(`\A(?:` + pattern + `)\z`)
		c = &compiledMatcher{re: re, err: err}
		e.mu.Lock()
		e.cache[pattern] = c
		e.mu.Unlock()
	}
	return c.re, c.err
}

// Gate couples the evaluator to a Store so callers get a one-call check.
type Gate struct {
	Store     Store
	Evaluator *Evaluator
}

// NewGate builds a storage-backed suppression gate.
func NewGate(store Store, eval *Evaluator) *Gate {
	return &Gate{Store: store, Evaluator: eval}
}

// Suppressed loads the active rules and evaluates them against the alert.
// Storage errors propagate so the caller can treat them as a cycle failure.
func (g *Gate) Suppressed(ctx context.Context, alert *model.ActiveAlert, now time.Time) (bool, error) {
	silences, err := g.Store.ActiveSilences(ctx, now)
	if err != nil {
		return false, fmt.Errorf("load active silences: %w", err)
	}
	windows, err := g.Store.ActiveMaintenanceWindows(ctx, now)
	if err != nil {
		return false, fmt.Errorf("load active maintenance windows: %w", err)
	}
	return g.Evaluator.IsSuppressed(alert, silences, windows, now), nil
}
