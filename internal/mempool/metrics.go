package mempool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IntentsTracked tracks the number of pending intents held in the window.
	IntentsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_window_intents_tracked",
		Help: "Number of pending intents held in the observation window",
	})

	// TokensTracked tracks the number of tokens with at least one pending intent.
	TokensTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_window_tokens_tracked",
		Help: "Number of tokens with pending intents",
	})

	// WindowEventsTotal counts window mutations by kind.
	WindowEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mempool_engine_window_events_total",
			Help: "Total number of window mutations",
		},
		[]string{"event"}, // added, duplicate, replaced, confirmed, expired, evicted
	)
)
