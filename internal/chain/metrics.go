package chain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HeadBlock tracks the latest block processed.
	HeadBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_chain_head_block",
		Help: "Latest block number processed by the block watcher",
	})

	// BlocksProcessedTotal tracks blocks turned into block events.
	BlocksProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_chain_blocks_processed_total",
		Help: "Total number of blocks processed",
	})

	// BlocksBackfilledTotal tracks blocks fetched to fill gaps between heads.
	BlocksBackfilledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_chain_blocks_backfilled_total",
		Help: "Total number of skipped blocks fetched after a head gap",
	})

	// FetchErrorsTotal tracks failed block fetches.
	FetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_chain_fetch_errors_total",
		Help: "Total number of failed block fetches",
	})

	// ResubscriptionsTotal tracks head subscription restarts.
	ResubscriptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_chain_resubscriptions_total",
		Help: "Total number of new-head resubscriptions",
	})

	// FetchDuration tracks block fetch latency.
	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mempool_engine_chain_fetch_duration_seconds",
		Help:    "Block fetch duration",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})
)
