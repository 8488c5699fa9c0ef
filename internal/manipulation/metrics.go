package manipulation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScoreDistribution tracks computed manipulation scores.
	ScoreDistribution = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mempool_engine_manipulation_score",
		Help:    "Distribution of manipulation scores",
		Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})

	// TokensScored tracks the number of live manipulation scores.
	TokensScored = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_manipulation_tokens_scored",
		Help: "Number of tokens with a live manipulation score",
	})

	// SuspectedTotal counts scores at or above the alert threshold.
	SuspectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_manipulation_suspected_total",
		Help: "Total number of manipulation scores at or above the alert threshold",
	})
)
