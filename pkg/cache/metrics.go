package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	LookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mempool_engine_cache_lookups_total",
		Help: "Cache lookups by result (hit, miss)",
	}, []string{"cache", "result"})

	EvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mempool_engine_cache_evictions_total",
		Help: "Entries evicted for capacity or expiry",
	}, []string{"cache"})

	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mempool_engine_cache_rejections_total",
		Help: "Writes refused by the admission policy",
	}, []string{"cache"})
)
