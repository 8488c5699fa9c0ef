package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TxsReceivedTotal tracks raw transactions taken off the stream.
	TxsReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_pipeline_txs_received_total",
		Help: "Total number of raw pending transactions received",
	})

	// DecodeMissesTotal tracks transactions that decoded to no intent.
	DecodeMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_pipeline_decode_misses_total",
		Help: "Total number of pending transactions not recognized as intents",
	})

	// EvaluationsTotal tracks scoring outcomes by reason.
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mempool_engine_pipeline_evaluations_total",
			Help: "Total number of token evaluations by outcome",
		},
		[]string{"reason"},
	)

	// SkippedTotal tracks intents dropped before scoring.
	SkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mempool_engine_pipeline_skipped_total",
			Help: "Total number of intents skipped before scoring",
		},
		[]string{"reason"},
	)

	// QueuedTotal tracks opportunities pushed to the execution queue.
	QueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_pipeline_queued_total",
		Help: "Total number of opportunities pushed to the execution queue",
	})

	// ProcessDuration tracks the decode-to-verdict latency of one transaction.
	ProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mempool_engine_pipeline_process_duration_seconds",
		Help:    "Time from receipt of a pending transaction to its scoring verdict",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	// BlocksHandledTotal tracks block events applied to the engine state.
	BlocksHandledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_pipeline_blocks_handled_total",
		Help: "Total number of block events handled",
	})

	// IntentsConfirmedTotal tracks intents removed because their tx was mined.
	IntentsConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_pipeline_intents_confirmed_total",
		Help: "Total number of window intents removed on inclusion",
	})

	// IntentsExpiredTotal tracks intents removed by age.
	IntentsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_pipeline_intents_expired_total",
		Help: "Total number of window intents removed by TTL",
	})
)
