package scoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CandidatesTotal counts scored candidates by kind and outcome.
	CandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mempool_engine_scoring_candidates_total",
			Help: "Total number of scored candidates",
		},
		[]string{"kind", "outcome"}, // outcome: accepted, rejected, disqualified
	)

	// DisqualifiedTotal counts hard safety failures by reason.
	DisqualifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mempool_engine_scoring_disqualified_total",
			Help: "Total number of candidates disqualified by a hard safety check",
		},
		[]string{"reason"},
	)

	// NetProfit tracks the net profit of accepted opportunities.
	NetProfit = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mempool_engine_scoring_net_profit",
		Help:    "Net profit of accepted opportunities in base-asset units",
		Buckets: []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1},
	})

	// ConfidenceScore tracks the confidence of accepted opportunities.
	ConfidenceScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mempool_engine_scoring_confidence",
		Help:    "Confidence of accepted opportunities",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	})

	// AuditErrorsTotal counts audit log write failures.
	AuditErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_scoring_audit_errors_total",
		Help: "Total number of audit log write failures",
	})

	// QueueDepth tracks ranked opportunities waiting for execution.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_scoring_queue_depth",
		Help: "Number of ranked opportunities waiting for execution",
	})

	// QueueDroppedTotal counts opportunities dropped from the queue by reason:
	// outranked (refused, its token has a better entry), replaced (queued
	// entry displaced by a better one), capacity or stale.
	QueueDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mempool_engine_scoring_queue_dropped_total",
			Help: "Total number of opportunities dropped from the queue",
		},
		[]string{"reason"},
	)
)
