package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// PlansTotal tracks plans created.
	PlansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mempool_engine_execution_plans_total",
			Help: "Total number of execution plans created",
		},
		[]string{"purpose", "kind", "channel"},
	)

	// PlanFailuresTotal tracks planning refusals.
	PlanFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mempool_engine_execution_plan_failures_total",
			Help: "Total number of opportunities or exits that could not be planned",
		},
		[]string{"reason"},
	)

	// AttemptsTotal tracks submission attempts per channel and outcome.
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mempool_engine_execution_attempts_total",
			Help: "Total number of submission attempts",
		},
		[]string{"channel", "outcome"},
	)

	// TerminalTotal tracks terminal plan states.
	TerminalTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mempool_engine_execution_terminal_total",
			Help: "Total number of plans reaching a terminal state",
		},
		[]string{"purpose", "state"},
	)

	// RelayFallbacksTotal tracks relay failures that fell back to public broadcast.
	RelayFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_execution_relay_fallbacks_total",
		Help: "Total number of bundle submissions that fell back to public broadcast",
	})

	// RealizedCost tracks realized gas cost per plan (base asset).
	RealizedCost = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mempool_engine_execution_realized_cost",
		Help:    "Realized gas cost per plan (base asset)",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	// ExecutionDurationSeconds tracks time from submission to terminal state.
	ExecutionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mempool_engine_execution_duration_seconds",
		Help:    "Duration of plan submission until a terminal state",
		Buckets: prometheus.DefBuckets,
	})

	// ExecutionErrorsTotal tracks execution failures.
	ExecutionErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_execution_errors_total",
		Help: "Total number of execution errors",
	})

	// EntriesPausedTotal tracks entries skipped while the circuit breaker is open.
	EntriesPausedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_execution_entries_paused_total",
		Help: "Total number of entries skipped by the balance circuit breaker",
	})

	// KillSwitchEngaged reports whether submissions are blocked.
	KillSwitchEngaged = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_execution_kill_switch_engaged",
		Help: "Whether the kill switch blocks submissions (1=engaged)",
	})
)
