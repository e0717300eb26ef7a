package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EscalationCycles counts escalation engine cycles by outcome.
	EscalationCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pgconsole",
		Subsystem: "alerting",
		Name:      "escalation_cycles_total",
		Help:      "Escalation cycles run, by outcome.",
	}, []string{"outcome"})

	// TierAdvances counts successful tier advancements.
	TierAdvances = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pgconsole",
		Subsystem: "alerting",
		Name:      "tier_advances_total",
		Help:      "Alert tier advancements committed.",
	})

	// Suppressed counts escalations withheld by silences or windows.
	Suppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pgconsole",
		Subsystem: "alerting",
		Name:      "suppressed_escalations_total",
		Help:      "Due escalations skipped because the alert was suppressed.",
	})

	// Dispatches counts per-channel dispatch outcomes.
	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pgconsole",
		Subsystem: "alerting",
		Name:      "dispatches_total",
		Help:      "Per-channel notification dispatch outcomes.",
	}, []string{"channel_type", "outcome"})

	// DispatchDuration observes transport latency per channel type.
	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pgconsole",
		Subsystem: "alerting",
		Name:      "dispatch_duration_seconds",
		Help:      "Transport call latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"channel_type"})
)
