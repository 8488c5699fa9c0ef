package scoring

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/mempool-engine/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queued(tok byte, confidence float64, seq uint64) *types.Opportunity {
	return &types.Opportunity{
		Token:      common.Address{tok},
		Kind:       types.KindFrontrun,
		NetProfit:  0.01,
		Confidence: confidence,
		Seq:        seq,
		ScoredAt:   time.Now(),
	}
}

func TestQueue_BestFirst(t *testing.T) {
	q := NewQueue(10, time.Minute)

	q.Push(queued(1, 0.3, 1))
	q.Push(queued(2, 0.9, 2))
	q.Push(queued(3, 0.6, 3))

	assert.Equal(t, 0.9, q.Pop().Confidence)
	assert.Equal(t, 0.6, q.Pop().Confidence)
	assert.Equal(t, 0.3, q.Pop().Confidence)
	assert.Nil(t, q.Pop())
}

func TestQueue_OnePerToken(t *testing.T) {
	q := NewQueue(10, time.Minute)

	require.True(t, q.Push(queued(1, 0.5, 1)))
	assert.False(t, q.Push(queued(1, 0.4, 2)), "worse entry for the same token is dropped")
	assert.True(t, q.Push(queued(1, 0.8, 3)), "better entry replaces")

	assert.Equal(t, 1, q.Len())
	assert.Equal(t, uint64(3), q.Pop().Seq)
}

func TestQueue_DropReasons(t *testing.T) {
	dropped := func(reason string) float64 {
		return testutil.ToFloat64(QueueDroppedTotal.WithLabelValues(reason))
	}
	outranked, replaced := dropped("outranked"), dropped("replaced")

	q := NewQueue(10, time.Minute)
	require.True(t, q.Push(queued(1, 0.5, 1)))
	assert.Equal(t, outranked, dropped("outranked"))
	assert.Equal(t, replaced, dropped("replaced"))

	require.False(t, q.Push(queued(1, 0.4, 2)))
	assert.Equal(t, outranked+1, dropped("outranked"))
	assert.Equal(t, replaced, dropped("replaced"))

	require.True(t, q.Push(queued(1, 0.8, 3)))
	assert.Equal(t, outranked+1, dropped("outranked"))
	assert.Equal(t, replaced+1, dropped("replaced"), "only the displaced entry counts")
}

func TestQueue_CapacityEvictsWorst(t *testing.T) {
	q := NewQueue(2, time.Minute)

	q.Push(queued(1, 0.5, 1))
	q.Push(queued(2, 0.7, 2))
	assert.False(t, q.Push(queued(3, 0.1, 3)), "worse than everything queued")
	assert.True(t, q.Push(queued(4, 0.9, 4)))

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, uint64(4), q.Pop().Seq)
	assert.Equal(t, uint64(2), q.Pop().Seq)
}

func TestQueue_DropsStale(t *testing.T) {
	q := NewQueue(10, time.Second)

	old := queued(1, 0.9, 1)
	old.ScoredAt = time.Now().Add(-time.Minute)
	q.Push(old)
	q.Push(queued(2, 0.2, 2))

	got := q.Pop()
	require.NotNil(t, got)
	assert.Equal(t, uint64(2), got.Seq)
}

func TestQueue_ReadySignal(t *testing.T) {
	q := NewQueue(10, time.Minute)
	q.Push(queued(1, 0.5, 1))

	select {
	case <-q.Ready():
	default:
		t.Fatal("expected ready signal after push")
	}
}
