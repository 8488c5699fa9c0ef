package tokens

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SafetyFetchDuration tracks token-safety API latency.
	SafetyFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mempool_engine_tokens_safety_fetch_duration_seconds",
		Help:    "Duration of token-safety report fetches",
		Buckets: prometheus.DefBuckets,
	})

	// SafetyFetchErrorsTotal tracks token-safety fetch failures.
	SafetyFetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_tokens_safety_fetch_errors_total",
		Help: "Total number of token-safety fetch errors",
	})

	// SafetyCacheHitsTotal tracks cached safety reports served.
	SafetyCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_tokens_safety_cache_hits_total",
		Help: "Total number of token-safety cache hits",
	})

	// SafetyCacheMissesTotal tracks safety lookups that went to the API.
	SafetyCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_tokens_safety_cache_misses_total",
		Help: "Total number of token-safety cache misses",
	})

	// BlacklistedTotal counts tokens added to the blacklist by reason.
	BlacklistedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mempool_engine_tokens_blacklisted_total",
			Help: "Total number of tokens blacklisted",
		},
		[]string{"reason"},
	)

	// PriceQuoteErrorsTotal tracks failed on-chain price quotes.
	PriceQuoteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_tokens_price_quote_errors_total",
		Help: "Total number of failed on-chain price quotes",
	})
)
