package feemarket

import (
	"errors"
	"sync"
	"testing"

	"github.com/mselser95/mempool-engine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestTracker(t *testing.T, window int) *Tracker {
	t.Helper()

	tr, err := New(&Config{
		WindowBlocks:     window,
		CongestionFactor: 3,
		CongestionBoost:  1.25,
		FloorTipGwei:     1.5,
		Logger:           zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return tr
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(&Config{WindowBlocks: 0, CongestionFactor: 3, FloorTipGwei: 1})
	assert.Error(t, err)

	_, err = New(&Config{WindowBlocks: 5, CongestionFactor: 1, FloorTipGwei: 1})
	assert.Error(t, err)

	_, err = New(&Config{WindowBlocks: 5, CongestionFactor: 3, FloorTipGwei: 0})
	assert.Error(t, err)
}

func TestQuote_NoSamplesUsesFloor(t *testing.T) {
	tr := newTestTracker(t, 10)

	q := tr.Quote(types.UrgencyEmergency)

	assert.True(t, q.LowConfidence)
	assert.Equal(t, 1.5, q.PriorityFeeGwei)
	assert.Equal(t, types.UrgencyNormal, q.Urgency, "urgency capped at normal without data")
	assert.False(t, tr.HasData())

	_, err := tr.Percentile(50)
	assert.True(t, errors.Is(err, ErrNoFeeData))
}

func TestQuote_TierPercentiles(t *testing.T) {
	tr := newTestTracker(t, 10)

	tips := make([]float64, 0, 10)
	for i := 1; i <= 10; i++ {
		tips = append(tips, float64(i))
	}
	tr.OnBlock(&types.BlockEvent{Number: 100, BaseFeeGwei: 20, TipsGwei: tips})

	normal := tr.Quote(types.UrgencyNormal)
	priority := tr.Quote(types.UrgencyPriority)
	emergency := tr.Quote(types.UrgencyEmergency)

	assert.Equal(t, 5.0, normal.PriorityFeeGwei)
	assert.Equal(t, 8.0, priority.PriorityFeeGwei)
	assert.Equal(t, 9.0, emergency.PriorityFeeGwei)
	assert.False(t, normal.Congested)
	assert.False(t, normal.LowConfidence)
	assert.Equal(t, 20.0, normal.BaseFeeGwei)
	assert.Equal(t, 42.0, normal.MaxFeeGwei())
	assert.Equal(t, uint64(100), normal.Block)

	p99, ok := normal.Rung(99)
	require.True(t, ok)
	assert.Equal(t, 10.0, p99)
	assert.Len(t, normal.Ladder, len(DefaultPercentiles))
}

func TestQuote_CongestionBoost(t *testing.T) {
	tr := newTestTracker(t, 10)

	tr.OnBlock(&types.BlockEvent{
		Number:      1,
		BaseFeeGwei: 10,
		TipsGwei:    []float64{1, 1, 1, 1, 1, 1, 1, 1, 10, 10},
	})

	normal := tr.Quote(types.UrgencyNormal)
	priority := tr.Quote(types.UrgencyPriority)
	emergency := tr.Quote(types.UrgencyEmergency)

	assert.True(t, normal.Congested)
	assert.Equal(t, 1.0, normal.PriorityFeeGwei, "normal tier is never boosted")
	assert.InDelta(t, 1.25, priority.PriorityFeeGwei, 1e-9)
	assert.InDelta(t, 12.5, emergency.PriorityFeeGwei, 1e-9)
}

func TestObserve_WindowEviction(t *testing.T) {
	tr := newTestTracker(t, 2)

	tr.Observe(100, 1)
	tr.Observe(1, 2)
	tr.Observe(1, 3)

	p99, err := tr.Percentile(99)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p99, "block 1 sample left the window")

	tr.Observe(500, 1)
	p99, err = tr.Percentile(99)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p99, "stale sample ignored")
	assert.Equal(t, uint64(3), tr.LastBlock())
}

func TestObserve_IgnoresInvalidSamples(t *testing.T) {
	tr := newTestTracker(t, 5)

	tr.Observe(-1, 1)
	assert.False(t, tr.HasData())

	tr.OnBlock(&types.BlockEvent{Number: 2, TipsGwei: []float64{-3}})
	assert.False(t, tr.HasData())
	assert.Equal(t, uint64(2), tr.LastBlock())
}

func TestPercentile_NearestRank(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}

	assert.Equal(t, 1.0, percentile(sorted, 10))
	assert.Equal(t, 3.0, percentile(sorted, 50))
	assert.Equal(t, 5.0, percentile(sorted, 90))
	assert.Equal(t, 5.0, percentile(sorted, 100))
	assert.Equal(t, 0.0, percentile(nil, 50))
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tr := newTestTracker(t, 20)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for b := 0; b < 50; b++ {
				tr.Observe(float64(n+b), uint64(b))
			}
		}(i)
		go func() {
			defer wg.Done()
			for b := 0; b < 50; b++ {
				_ = tr.Quote(types.UrgencyPriority)
			}
		}()
	}
	wg.Wait()

	assert.True(t, tr.HasData())
}
