package feemarket

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/mselser95/mempool-engine/pkg/types"
	"go.uber.org/zap"
)

// ErrNoFeeData is returned by Percentile before any sample has been observed.
var ErrNoFeeData = errors.New("no fee samples in window")

// DefaultPercentiles is the ladder published with every quote.
//
//nolint:gochecknoglobals // read-only default
var DefaultPercentiles = []int{10, 25, 50, 75, 90, 95, 99}

// Config holds fee tracker configuration.
type Config struct {
	WindowBlocks     int
	Percentiles      []int
	CongestionFactor float64 // p90 > factor * p50 means congested
	CongestionBoost  float64 // tip multiplier for priority and emergency under congestion
	FloorTipGwei     float64
	Logger           *zap.Logger
}

// Tracker keeps a sliding window of paid priority fees keyed by block number.
type Tracker struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	blocks    map[uint64][]float64
	latest    uint64
	baseFee   float64
	samples   int
	sorted    []float64
	ladder    []types.FeeRung
	congested bool
	dirty     bool
	updatedAt time.Time
}

// New creates a new fee tracker.
func New(cfg *Config) (*Tracker, error) {
	if cfg.WindowBlocks <= 0 {
		return nil, fmt.Errorf("window blocks must be positive, got %d", cfg.WindowBlocks)
	}
	if cfg.CongestionFactor <= 1 {
		return nil, fmt.Errorf("congestion factor must be > 1, got %f", cfg.CongestionFactor)
	}
	if cfg.FloorTipGwei <= 0 {
		return nil, fmt.Errorf("floor tip must be positive, got %f", cfg.FloorTipGwei)
	}

	c := *cfg
	if len(c.Percentiles) == 0 {
		c.Percentiles = DefaultPercentiles
	}
	if c.CongestionBoost < 1 {
		c.CongestionBoost = 1
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	return &Tracker{
		cfg:    c,
		logger: c.Logger,
		blocks: make(map[uint64][]float64),
	}, nil
}

// Observe records one paid priority fee (gwei) from a block.
// Samples older than the window are ignored.
func (t *Tracker) Observe(feeGwei float64, block uint64) {
	if feeGwei < 0 || math.IsNaN(feeGwei) || math.IsInf(feeGwei, 0) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.observeLocked(feeGwei, block)
}

func (t *Tracker) observeLocked(feeGwei float64, block uint64) {
	if t.isStaleLocked(block) {
		return
	}

	if block > t.latest {
		t.latest = block
		t.evictLocked()
	}

	t.blocks[block] = append(t.blocks[block], feeGwei)
	t.samples++
	t.dirty = true
}

// OnBlock folds a whole block into the window and refreshes the ladder.
func (t *Tracker) OnBlock(ev *types.BlockEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.Number >= t.latest {
		t.baseFee = ev.BaseFeeGwei
	}

	for _, tip := range ev.TipsGwei {
		if tip < 0 || math.IsNaN(tip) || math.IsInf(tip, 0) {
			continue
		}
		t.observeLocked(tip, ev.Number)
	}

	if ev.Number > t.latest {
		t.latest = ev.Number
		t.evictLocked()
	}

	t.recomputeLocked()

	BaseFeeGwei.Set(t.baseFee)
	t.logger.Debug("fee-window-updated",
		zap.Uint64("block", ev.Number),
		zap.Float64("base-fee-gwei", t.baseFee),
		zap.Int("samples", t.samples),
		zap.Bool("congested", t.congested))
}

// Quote returns the fee recommendation for an urgency tier.
func (t *Tracker) Quote(urgency types.Urgency) types.FeeQuote {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dirty {
		t.recomputeLocked()
	}

	if t.samples == 0 {
		QuotesTotal.WithLabelValues(urgency.String(), "low").Inc()
		return types.FeeQuote{
			Urgency:         urgency.Cap(types.UrgencyNormal),
			BaseFeeGwei:     t.baseFee,
			PriorityFeeGwei: t.cfg.FloorTipGwei,
			LowConfidence:   true,
			Block:           t.latest,
			UpdatedAt:       t.updatedAt,
		}
	}

	tip := percentile(t.sorted, urgency.TierPercentile())
	if t.congested && urgency >= types.UrgencyPriority {
		tip *= t.cfg.CongestionBoost
	}

	QuotesTotal.WithLabelValues(urgency.String(), "normal").Inc()

	ladder := make([]types.FeeRung, len(t.ladder))
	copy(ladder, t.ladder)

	return types.FeeQuote{
		Urgency:         urgency,
		BaseFeeGwei:     t.baseFee,
		PriorityFeeGwei: tip,
		Ladder:          ladder,
		Congested:       t.congested,
		Block:           t.latest,
		UpdatedAt:       t.updatedAt,
	}
}

// Percentile returns the nearest-rank percentile of the window.
func (t *Tracker) Percentile(p int) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dirty {
		t.recomputeLocked()
	}
	if t.samples == 0 {
		return 0, ErrNoFeeData
	}
	return percentile(t.sorted, p), nil
}

// LastBlock returns the highest block folded into the window.
func (t *Tracker) LastBlock() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}

// HasData reports whether at least one sample is in the window.
func (t *Tracker) HasData() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.samples > 0
}

func (t *Tracker) isStaleLocked(block uint64) bool {
	window := uint64(t.cfg.WindowBlocks)
	return t.latest >= window && block <= t.latest-window
}

func (t *Tracker) evictLocked() {
	for b, fees := range t.blocks {
		if t.isStaleLocked(b) {
			t.samples -= len(fees)
			delete(t.blocks, b)
			t.dirty = true
		}
	}
}

func (t *Tracker) recomputeLocked() {
	sorted := make([]float64, 0, t.samples)
	for _, fees := range t.blocks {
		sorted = append(sorted, fees...)
	}
	sort.Float64s(sorted)
	t.sorted = sorted

	t.ladder = t.ladder[:0]
	if len(sorted) > 0 {
		for _, p := range t.cfg.Percentiles {
			v := percentile(sorted, p)
			t.ladder = append(t.ladder, types.FeeRung{Percentile: p, TipGwei: v})
			LadderGwei.WithLabelValues(strconv.Itoa(p)).Set(v)
		}

		p50, p90 := percentile(sorted, 50), percentile(sorted, 90)
		t.congested = p90 > t.cfg.CongestionFactor*p50
	} else {
		t.congested = false
	}

	if t.congested {
		Congested.Set(1)
	} else {
		Congested.Set(0)
	}
	SamplesTracked.Set(float64(len(sorted)))

	t.dirty = false
	t.updatedAt = time.Now()
}

// percentile is the nearest-rank percentile of an ascending slice.
func percentile(sorted []float64, p int) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := int(math.Ceil(float64(p) / 100 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}
