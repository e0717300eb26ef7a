package suppression

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bovinemagnet/pg-console-sub007/internal/alerting/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testAlert() *model.ActiveAlert {
	return &model.ActiveAlert{
		ID:           "row-1",
		AlertID:      "cpu-high-pg-primary",
		AlertType:    "cpu_usage",
		Severity:     model.SeverityP1,
		Message:      "cpu above 90%",
		InstanceName: "pg-primary-1",
	}
}

func activeSilence(matchers ...model.Matcher) model.AlertSilence {
	return model.AlertSilence{
		ID:       "sil-1",
		Matchers: matchers,
		StartsAt: testNow.Add(-time.Hour),
		EndsAt:   testNow.Add(time.Hour),
	}
}

func TestEvaluatorExactMatcher(t *testing.T) {
	e := NewEvaluator(FailClosed)
	alert := testAlert()

	t.Run("match_suppresses", func(t *testing.T) {
		s := activeSilence(model.Matcher{Field: "alertType", Kind: model.MatchExact, Value: "cpu_usage"})
		assert.True(t, e.IsSuppressed(alert, []model.AlertSilence{s}, nil, testNow))
	})

	t.Run("mismatch_passes", func(t *testing.T) {
		s := activeSilence(model.Matcher{Field: "alertType", Kind: model.MatchExact, Value: "disk_usage"})
		assert.False(t, e.IsSuppressed(alert, []model.AlertSilence{s}, nil, testNow))
	})

	t.Run("all_matchers_must_hold", func(t *testing.T) {
		s := activeSilence(
			model.Matcher{Field: "alertType", Kind: model.MatchExact, Value: "cpu_usage"},
			model.Matcher{Field: "instanceName", Kind: model.MatchExact, Value: "pg-replica-9"},
		)
		assert.False(t, e.IsSuppressed(alert, []model.AlertSilence{s}, nil, testNow))
	})

	t.Run("unknown_field_is_non_match", func(t *testing.T) {
		s := activeSilence(model.Matcher{Field: "nonexistent", Kind: model.MatchExact, Value: "x"})
		assert.False(t, e.IsSuppressed(alert, []model.AlertSilence{s}, nil, testNow))
	})
}

func TestEvaluatorRegexMatcher(t *testing.T) {
	e := NewEvaluator(FailClosed)
	alert := testAlert()

	t.Run("full_match_suppresses", func(t *testing.T) {
		s := activeSilence(model.Matcher{Field: "instanceName", Kind: model.MatchRegex, Value: `pg-primary-\d+`})
		assert.True(t, e.IsSuppressed(alert, []model.AlertSilence{s}, nil, testNow))
	})

	t.Run("partial_match_is_anchored_out", func(t *testing.T) {
		// "primary" occurs inside the instance name but the pattern must
		// cover the whole value.
		s := activeSilence(model.Matcher{Field: "instanceName", Kind: model.MatchRegex, Value: `primary`})
		assert.False(t, e.IsSuppressed(alert, []model.AlertSilence{s}, nil, testNow))
	})

	t.Run("alternation", func(t *testing.T) {
		s := activeSilence(model.Matcher{Field: "severity", Kind: model.MatchRegex, Value: `P0|P1`})
		assert.True(t, e.IsSuppressed(alert, []model.AlertSilence{s}, nil, testNow))
	})
}

func TestEvaluatorFailModes(t *testing.T) {
	alert := testAlert()
	broken := activeSilence(model.Matcher{Field: "message", Kind: model.MatchRegex, Value: `([unclosed`})

	t.Run("fail_closed_does_not_suppress", func(t *testing.T) {
		e := NewEvaluator(FailClosed)
		assert.False(t, e.IsSuppressed(alert, []model.AlertSilence{broken}, nil, testNow))
	})

	t.Run("fail_open_suppresses", func(t *testing.T) {
		e := NewEvaluator(FailOpen)
		assert.True(t, e.IsSuppressed(alert, []model.AlertSilence{broken}, nil, testNow))
	})

	t.Run("fail_open_still_requires_other_matchers", func(t *testing.T) {
		e := NewEvaluator(FailOpen)
		s := activeSilence(
			model.Matcher{Field: "message", Kind: model.MatchRegex, Value: `([unclosed`},
			model.Matcher{Field: "alertType", Kind: model.MatchExact, Value: "disk_usage"},
		)
		assert.False(t, e.IsSuppressed(alert, []model.AlertSilence{s}, nil, testNow))
	})
}

func TestEvaluatorSilenceWindow(t *testing.T) {
	e := NewEvaluator(FailClosed)
	alert := testAlert()
	m := model.Matcher{Field: "alertType", Kind: model.MatchExact, Value: "cpu_usage"}

	t.Run("inactive_before_start", func(t *testing.T) {
		s := activeSilence(m)
		s.StartsAt = testNow.Add(time.Minute)
		assert.False(t, e.IsSuppressed(alert, []model.AlertSilence{s}, nil, testNow))
	})

	t.Run("inactive_at_end", func(t *testing.T) {
		s := activeSilence(m)
		s.EndsAt = testNow
		assert.False(t, e.IsSuppressed(alert, []model.AlertSilence{s}, nil, testNow))
	})

	t.Run("manually_expired", func(t *testing.T) {
		s := activeSilence(m)
		expired := testNow.Add(-time.Minute)
		s.ExpiredAt = &expired
		assert.False(t, e.IsSuppressed(alert, []model.AlertSilence{s}, nil, testNow))
	})
}

func TestEvaluatorMaintenanceWindows(t *testing.T) {
	e := NewEvaluator(FailClosed)
	alert := testAlert()

	t.Run("covering_window_suppresses", func(t *testing.T) {
		w := model.MaintenanceWindow{
			StartsAt:       testNow.Add(-time.Hour),
			EndsAt:         testNow.Add(time.Hour),
			InstanceFilter: []string{"pg-primary-1"},
		}
		assert.True(t, e.IsSuppressed(alert, nil, []model.MaintenanceWindow{w}, testNow))
	})

	t.Run("filter_excludes_instance", func(t *testing.T) {
		w := model.MaintenanceWindow{
			StartsAt:       testNow.Add(-time.Hour),
			EndsAt:         testNow.Add(time.Hour),
			InstanceFilter: []string{"pg-replica-2"},
		}
		assert.False(t, e.IsSuppressed(alert, nil, []model.MaintenanceWindow{w}, testNow))
	})

	t.Run("window_outside_range", func(t *testing.T) {
		w := model.MaintenanceWindow{
			StartsAt: testNow.Add(time.Hour),
			EndsAt:   testNow.Add(2 * time.Hour),
		}
		assert.False(t, e.IsSuppressed(alert, nil, []model.MaintenanceWindow{w}, testNow))
	})
}

type fakeStore struct {
	silences []model.AlertSilence
	windows  []model.MaintenanceWindow
	err      error
}

func (f *fakeStore) ActiveSilences(ctx context.Context, now time.Time) ([]model.AlertSilence, error) {
	return f.silences, f.err
}

func (f *fakeStore) ActiveMaintenanceWindows(ctx context.Context, now time.Time) ([]model.MaintenanceWindow, error) {
	return f.windows, f.err
}

func TestGate(t *testing.T) {
	alert := testAlert()

	t.Run("propagates_storage_error", func(t *testing.T) {
		g := NewGate(&fakeStore{err: fmt.Errorf("connection refused")}, NewEvaluator(FailClosed))
		_, err := g.Suppressed(context.Background(), alert, testNow)
		require.Error(t, err)
	})

	t.Run("evaluates_loaded_rules", func(t *testing.T) {
		store := &fakeStore{
			silences: []model.AlertSilence{
				activeSilence(model.Matcher{Field: "severity", Kind: model.MatchExact, Value: "P1"}),
			},
		}
		g := NewGate(store, NewEvaluator(FailClosed))
		suppressed, err := g.Suppressed(context.Background(), alert, testNow)
		require.NoError(t, err)
		assert.True(t, suppressed)
	})
}
