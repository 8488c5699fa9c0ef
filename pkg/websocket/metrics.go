package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics are package-level by convention
var (
	// ActiveConnections tracks live pending-transaction subscriptions.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_stream_active_connections",
		Help: "Number of live pending-transaction subscriptions",
	})

	// ReconnectAttemptsTotal tracks reconnection attempts.
	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_stream_reconnect_attempts_total",
		Help: "Total number of stream reconnection attempts",
	})

	// ReconnectFailuresTotal tracks reconnection failures.
	ReconnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_stream_reconnect_failures_total",
		Help: "Total number of stream reconnection failures",
	})

	// MessagesReceivedTotal tracks messages received by type.
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mempool_engine_stream_messages_received_total",
			Help: "Total number of stream messages received",
		},
		[]string{"type"},
	)

	// MessagesDroppedTotal tracks messages that never reached the pipeline.
	MessagesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mempool_engine_stream_messages_dropped_total",
			Help: "Total number of stream messages dropped",
		},
		[]string{"reason"},
	)

	// MessageLatencySeconds tracks per-notification handling latency.
	MessageLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mempool_engine_stream_message_latency_seconds",
		Help:    "Stream notification handling latency",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
	})

	// ConnectionDuration tracks subscription lifetime.
	ConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mempool_engine_stream_connection_duration_seconds",
		Help:    "Duration of stream connections before disconnect",
		Buckets: []float64{60, 300, 600, 1800, 3600, 7200, 14400, 28800, 43200, 86400},
	})

	// PoolActiveEndpoints tracks endpoints started by the pool.
	PoolActiveEndpoints = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_stream_pool_endpoints",
		Help: "Number of node endpoints in the stream pool",
	})

	// PoolDuplicatesTotal tracks transactions already seen from another endpoint.
	PoolDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_stream_pool_duplicates_total",
		Help: "Total number of pending transactions suppressed as cross-endpoint duplicates",
	})

	// PoolMessageMultiplexLatency tracks latency added by fan-in.
	PoolMessageMultiplexLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mempool_engine_stream_pool_multiplex_latency_seconds",
		Help:    "Latency added by fan-in of endpoint streams",
		Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20),
	})
)
