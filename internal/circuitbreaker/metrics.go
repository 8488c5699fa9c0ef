package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// Enabled indicates whether the breaker allows new entries.
	Enabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_circuit_breaker_enabled",
		Help: "Whether new entries are allowed (1=enabled, 0=paused)",
	})

	// Balance tracks the last checked native balance.
	Balance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_circuit_breaker_balance",
		Help: "Last checked native balance of the signer",
	})

	// DisableThreshold tracks the balance below which entries pause.
	DisableThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_circuit_breaker_disable_threshold",
		Help: "Native balance below which entries are paused",
	})

	// EnableThreshold tracks the balance at which entries resume.
	EnableThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_circuit_breaker_enable_threshold",
		Help: "Native balance at which entries resume",
	})

	// AvgTradeSize tracks the rolling average entry size.
	AvgTradeSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_circuit_breaker_avg_trade_size",
		Help: "Rolling average base-asset size of confirmed entries",
	})

	// StateChanges counts enable/disable transitions.
	StateChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_circuit_breaker_state_changes_total",
		Help: "Total number of circuit breaker state changes",
	})

	// CheckDuration tracks balance check latency.
	CheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mempool_engine_circuit_breaker_check_duration_seconds",
		Help:    "Time taken to check the wallet balance",
		Buckets: prometheus.DefBuckets,
	})
)
