package position

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// OpenPositions tracks positions not yet CLOSED or FAILED.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_positions_open",
		Help: "Number of positions being managed",
	})

	// ExitOrdersTotal counts emitted exit orders by reason.
	ExitOrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mempool_engine_exit_orders_total",
			Help: "Total number of exit orders emitted by reason",
		},
		[]string{"reason"},
	)

	// ExitFailuresTotal counts exit orders that did not confirm.
	ExitFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_exit_failures_total",
		Help: "Total number of exit orders that failed",
	})

	// TransitionsTotal counts position status changes.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mempool_engine_position_transitions_total",
			Help: "Total number of position status transitions",
		},
		[]string{"to"},
	)

	// PriceErrorsTotal counts failed price reads in the tick loop.
	PriceErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_position_price_errors_total",
		Help: "Total number of failed price reads for open positions",
	})

	// TickDuration tracks one pass of the tick loop.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mempool_engine_position_tick_duration_seconds",
		Help:    "Time taken to tick every open position",
		Buckets: prometheus.DefBuckets,
	})
)
