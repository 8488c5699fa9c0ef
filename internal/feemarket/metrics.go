package feemarket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SamplesTracked tracks the number of tip samples in the sliding window.
	SamplesTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_fee_samples_tracked",
		Help: "Number of priority-fee samples in the fee window",
	})

	// LadderGwei exposes the current priority-fee ladder by percentile.
	LadderGwei = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mempool_engine_fee_ladder_gwei",
			Help: "Priority fee ladder in gwei by percentile",
		},
		[]string{"percentile"},
	)

	// BaseFeeGwei tracks the latest observed base fee.
	BaseFeeGwei = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_fee_base_fee_gwei",
		Help: "Latest block base fee in gwei",
	})

	// Congested is 1 while the fee market is classified as congested.
	Congested = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_fee_congested",
		Help: "Whether the fee market is congested (1) or not (0)",
	})

	// QuotesTotal tracks fee quotes by urgency and confidence.
	QuotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mempool_engine_fee_quotes_total",
			Help: "Total number of fee quotes served",
		},
		[]string{"urgency", "confidence"},
	)
)
