package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/mempool-engine/pkg/types"
	"go.uber.org/zap"
)

// BalanceFetcher reads balances of an address.
type BalanceFetcher interface {
	GetBalances(ctx context.Context, address common.Address) (*Balances, error)
}

// PositionSource lists the positions currently managed.
type PositionSource interface {
	Positions() []*types.Position
}

// Tracker periodically fetches wallet data and updates Prometheus metrics.
type Tracker struct {
	client       BalanceFetcher
	positions    PositionSource
	address      common.Address
	pollInterval time.Duration
	logger       *zap.Logger
}

// Config holds tracker configuration.
type Config struct {
	Client       BalanceFetcher
	Positions    PositionSource // optional
	Address      common.Address
	PollInterval time.Duration
	Logger       *zap.Logger
}

// New creates a new wallet tracker.
func New(cfg *Config) (t *Tracker, err error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Client == nil {
		return nil, errors.New("balance client cannot be nil")
	}

	if cfg.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}

	tracker := &Tracker{
		client:       cfg.Client,
		positions:    cfg.Positions,
		address:      cfg.Address,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
	}

	return tracker, nil
}

// Run starts the tracker polling loop (blocking).
func (t *Tracker) Run(ctx context.Context) (err error) {
	t.logger.Info("wallet-tracker-starting",
		zap.Duration("poll-interval", t.pollInterval),
		zap.String("address", t.address.Hex()))

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	pollErr := t.poll(ctx)
	if pollErr != nil {
		t.logger.Error("initial-poll-failed", zap.Error(pollErr))
		UpdateErrorsTotal.Inc()
	}

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("wallet-tracker-stopping")
			return ctx.Err()
		case <-ticker.C:
			pollErr = t.poll(ctx)
			if pollErr != nil {
				t.logger.Error("poll-failed", zap.Error(pollErr))
				UpdateErrorsTotal.Inc()
			}
		}
	}
}

func (t *Tracker) poll(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		UpdateDuration.Observe(time.Since(start).Seconds())
	}()

	balCtx, balCancel := context.WithTimeout(ctx, 15*time.Second)
	defer balCancel()

	balances, err := t.client.GetBalances(balCtx, t.address)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}

	var positions []*types.Position
	if t.positions != nil {
		positions = t.positions.Positions()
	}

	t.updateMetrics(balances, positions)
	LastUpdateTimestamp.Set(float64(time.Now().Unix()))

	t.logger.Debug("poll-complete",
		zap.Int("position-count", len(positions)),
		zap.Duration("duration", time.Since(start)))

	return nil
}

// updateMetrics updates Prometheus gauges with wallet data.
func (t *Tracker) updateMetrics(balances *Balances, positions []*types.Position) {
	native := types.FromWei(balances.Native)
	wrapped := types.FromWei(balances.Wrapped)
	NativeBalance.Set(native)
	WrappedBalance.Set(wrapped)

	cost, mark := exposure(positions)
	OpenPositions.Set(float64(len(positions)))
	PositionCostBasis.Set(cost)
	PositionMarkValue.Set(mark)
	UnrealizedPnL.Set(mark - cost)
	PortfolioValue.Set(native + wrapped + mark)
}

// exposure sums cost basis and mark value over the remaining amounts.
func exposure(positions []*types.Position) (cost, mark float64) {
	for _, p := range positions {
		cost += p.RemainingAmount * p.EntryPrice
		price := p.LastPrice
		if price == 0 {
			price = p.EntryPrice
		}
		mark += p.RemainingAmount * price
	}
	return cost, mark
}
