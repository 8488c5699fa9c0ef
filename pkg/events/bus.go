// Package events fans engine events out to observability subscribers.
package events

import (
	"fmt"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Topics published by the engine.
const (
	TopicOpportunityScored  = "opportunity.scored"
	TopicPlanTerminal       = "plan.terminal"
	TopicPositionTransition = "position.transition"
)

// Topics lists every engine topic.
//
//nolint:gochecknoglobals // static topic list
var Topics = []string{TopicOpportunityScored, TopicPlanTerminal, TopicPositionTransition}

//nolint:gochecknoglobals // Prometheus metrics
var publishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mempool_engine_events_published_total",
		Help: "Total number of events published by topic",
	},
	[]string{"topic"},
)

// Event is one published engine event.
type Event struct {
	Seq     uint64    `json:"seq"`
	Topic   string    `json:"topic"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// Publisher is the narrow interface components publish through.
type Publisher interface {
	Publish(topic string, payload any)
}

// Bus wraps an in-process event bus and keeps a bounded ring of recent events.
type Bus struct {
	bus    evbus.Bus
	logger *zap.Logger

	mu       sync.Mutex
	seq      uint64
	recent   []Event
	next     int
	capacity int
}

// New creates a bus retaining up to capacity recent events. When logger is
// non-nil every event is also written to it.
func New(capacity int, logger *zap.Logger) (*Bus, error) {
	if capacity <= 0 {
		capacity = 256
	}

	b := &Bus{
		bus:      evbus.New(),
		logger:   logger,
		recent:   make([]Event, 0, capacity),
		capacity: capacity,
	}

	if logger != nil {
		for _, topic := range Topics {
			err := b.bus.Subscribe(topic, b.logEvent)
			if err != nil {
				return nil, fmt.Errorf("subscribe log sink to %s: %w", topic, err)
			}
		}
	}

	return b, nil
}

// Publish records and dispatches an event.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.Lock()
	b.seq++
	ev := Event{Seq: b.seq, Topic: topic, At: time.Now(), Payload: payload}
	if len(b.recent) < b.capacity {
		b.recent = append(b.recent, ev)
	} else {
		b.recent[b.next] = ev
	}
	b.next = (b.next + 1) % b.capacity
	b.mu.Unlock()

	publishedTotal.WithLabelValues(topic).Inc()
	b.bus.Publish(topic, ev)
}

// Subscribe registers fn for a topic. Handlers run on the publisher's goroutine.
func (b *Bus) Subscribe(topic string, fn func(Event)) error {
	return b.bus.Subscribe(topic, fn)
}

// SubscribeAsync registers fn to run on its own goroutine per event.
func (b *Bus) SubscribeAsync(topic string, fn func(Event)) error {
	return b.bus.SubscribeAsync(topic, fn, false)
}

// Recent returns up to n of the most recent events, oldest first. n <= 0
// returns everything retained.
func (b *Bus) Recent(n int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := len(b.recent)
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Event, 0, n)
	start := 0
	if size == b.capacity {
		start = b.next
	}
	for i := size - n; i < size; i++ {
		out = append(out, b.recent[(start+i)%size])
	}
	return out
}

// Close waits for asynchronous handlers to finish.
func (b *Bus) Close() {
	b.bus.WaitAsync()
}

func (b *Bus) logEvent(ev Event) {
	b.logger.Info("engine-event",
		zap.String("topic", ev.Topic),
		zap.Uint64("seq", ev.Seq),
		zap.Any("payload", ev.Payload))
}
