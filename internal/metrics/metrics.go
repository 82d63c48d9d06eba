package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Engine metrics
	Verdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signup_guard_verdicts_total",
			Help: "Total number of signup verdicts by recommendation",
		},
		[]string{"kind", "recommendation"}, // kind: "evaluate", "quick"
	)

	EvaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signup_guard_evaluation_duration_seconds",
			Help:    "Duration of signup evaluations in seconds",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"kind"},
	)

	HoneypotTriggers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signup_guard_honeypot_triggers_total",
			Help: "Total number of signups rejected by the honeypot field",
		},
	)

	DetectorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signup_guard_detector_failures_total",
			Help: "Total number of detector errors that were failed open",
		},
		[]string{"detector"}, // "reputation", "block_check", "timing"
	)

	// Reputation metrics
	ReputationEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signup_guard_reputation_events_total",
			Help: "Total number of IP reputation events recorded",
		},
		[]string{"event"},
	)

	// Timing metrics
	TimingTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signup_guard_timing_tokens_total",
			Help: "Timing token lifecycle events",
		},
		[]string{"outcome"}, // "issued", "consumed", "fallback", "unparseable"
	)

	// Store metrics
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signup_guard_store_operations_total",
			Help: "Total number of key-value store operations",
		},
		[]string{"backend", "operation", "result"}, // result: "ok", "miss", "error"
	)

	StoreFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signup_guard_store_fallbacks_total",
			Help: "Operations served by the in-memory fallback store",
		},
		[]string{"operation"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "signup_guard_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Audit metrics
	AuditEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signup_guard_audit_events_total",
			Help: "Audit entries by outcome",
		},
		[]string{"outcome"}, // "written", "dropped", "failed"
	)

	Reviews = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signup_guard_reviews_total",
			Help: "Advisory reviews by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// HTTP metrics
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signup_guard_rate_limit_hits_total",
			Help: "Total number of evaluate requests rejected by the rate limiter",
		},
	)
)
