package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBus_PublishDeliversToSubscribers(t *testing.T) {
	b, err := New(8, zaptest.NewLogger(t))
	require.NoError(t, err)

	var got []Event
	require.NoError(t, b.Subscribe(TopicPlanTerminal, func(ev Event) {
		got = append(got, ev)
	}))

	b.Publish(TopicPlanTerminal, "confirmed")
	b.Publish(TopicPositionTransition, "other topic")

	require.Len(t, got, 1)
	assert.Equal(t, "confirmed", got[0].Payload)
	assert.Equal(t, uint64(1), got[0].Seq)
}

func TestBus_RecentRingKeepsNewest(t *testing.T) {
	b, err := New(3, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		b.Publish(TopicOpportunityScored, i)
	}

	recent := b.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, []any{2, 3, 4}, []any{recent[0].Payload, recent[1].Payload, recent[2].Payload})

	last := b.Recent(2)
	require.Len(t, last, 2)
	assert.Equal(t, 3, last[0].Payload)
	assert.Equal(t, 4, last[1].Payload)
}

func TestBus_RecentBeforeWrap(t *testing.T) {
	b, err := New(10, nil)
	require.NoError(t, err)

	b.Publish(TopicOpportunityScored, "a")
	b.Publish(TopicOpportunityScored, "b")

	recent := b.Recent(5)
	require.Len(t, recent, 2)
	assert.Equal(t, "a", recent[0].Payload)
}

func TestBus_AsyncSubscriber(t *testing.T) {
	b, err := New(4, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	count := 0
	require.NoError(t, b.SubscribeAsync(TopicPositionTransition, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}))

	b.Publish(TopicPositionTransition, 1)
	b.Publish(TopicPositionTransition, 2)
	b.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, count)
}
