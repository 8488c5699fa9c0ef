// Package circuitbreaker pauses new entries while the signer's native balance
// is too low to fund them. Exits are never gated.
package circuitbreaker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/mempool-engine/pkg/types"
	"github.com/mselser95/mempool-engine/pkg/wallet"
	"go.uber.org/zap"
)

// BalanceFetcher fetches wallet balances. wallet.Client implements it.
type BalanceFetcher interface {
	GetBalances(ctx context.Context, address common.Address) (*wallet.Balances, error)
}

// BalanceCircuitBreaker gates entries on the signer's native balance. The
// disable threshold follows recent entry sizes and re-enabling requires the
// balance to clear a higher threshold.
type BalanceCircuitBreaker struct {
	enabled atomic.Bool

	checkInterval   time.Duration
	walletClient    BalanceFetcher
	address         common.Address
	logger          *zap.Logger
	tradeMultiplier float64
	minAbsolute     float64
	hysteresisRatio float64
	window          int

	mu               sync.RWMutex
	lastBalance      float64
	lastCheck        time.Time
	recentTrades     []float64
	disableThreshold float64
	enableThreshold  float64

	wg sync.WaitGroup
}

// Config holds circuit breaker configuration.
type Config struct {
	CheckInterval   time.Duration
	TradeMultiplier float64 // disable below avg entry size times this
	MinAbsolute     float64 // base-asset floor
	HysteresisRatio float64
	TradeWindow     int // entries averaged, default 20
	WalletClient    BalanceFetcher
	Address         common.Address
	Logger          *zap.Logger
}

// Status is a snapshot for the HTTP API.
type Status struct {
	Enabled          bool      `json:"enabled"`
	LastBalance      float64   `json:"last_balance"`
	LastCheck        time.Time `json:"last_check"`
	DisableThreshold float64   `json:"disable_threshold"`
	EnableThreshold  float64   `json:"enable_threshold"`
	AvgTradeSize     float64   `json:"avg_trade_size"`
	RecentTradeCount int       `json:"recent_trade_count"`
}

// New creates a new circuit breaker with the given configuration.
func New(cfg *Config) (*BalanceCircuitBreaker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.WalletClient == nil {
		return nil, fmt.Errorf("wallet client cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.CheckInterval <= 0 {
		return nil, fmt.Errorf("check interval must be positive")
	}
	if cfg.TradeMultiplier <= 0 {
		return nil, fmt.Errorf("trade multiplier must be positive")
	}
	if cfg.MinAbsolute <= 0 {
		return nil, fmt.Errorf("min absolute must be positive")
	}
	if cfg.HysteresisRatio < 1.0 {
		return nil, fmt.Errorf("hysteresis ratio must be >= 1.0")
	}

	window := cfg.TradeWindow
	if window <= 0 {
		window = 20
	}

	b := &BalanceCircuitBreaker{
		checkInterval:    cfg.CheckInterval,
		walletClient:     cfg.WalletClient,
		address:          cfg.Address,
		logger:           cfg.Logger,
		tradeMultiplier:  cfg.TradeMultiplier,
		minAbsolute:      cfg.MinAbsolute,
		hysteresisRatio:  cfg.HysteresisRatio,
		window:           window,
		recentTrades:     make([]float64, 0, window),
		disableThreshold: cfg.MinAbsolute,
		enableThreshold:  cfg.MinAbsolute * cfg.HysteresisRatio,
	}
	b.enabled.Store(true)

	Enabled.Set(1)
	DisableThreshold.Set(b.disableThreshold)
	EnableThreshold.Set(b.enableThreshold)
	AvgTradeSize.Set(0)

	return b, nil
}

// IsEnabled reports whether new entries may be submitted. Lock-free.
func (b *BalanceCircuitBreaker) IsEnabled() bool {
	return b.enabled.Load()
}

// RecordTrade adds a confirmed entry's base-asset size to the rolling window.
func (b *BalanceCircuitBreaker) RecordTrade(tradeSize float64) {
	if tradeSize <= 0 || math.IsNaN(tradeSize) {
		b.logger.Warn("invalid-trade-size", zap.Float64("size", tradeSize))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.recentTrades = append(b.recentTrades, tradeSize)
	if len(b.recentTrades) > b.window {
		b.recentTrades = b.recentTrades[1:]
	}

	avg := average(b.recentTrades)
	b.disableThreshold = math.Max(avg*b.tradeMultiplier, b.minAbsolute)
	b.enableThreshold = b.disableThreshold * b.hysteresisRatio

	AvgTradeSize.Set(avg)
	DisableThreshold.Set(b.disableThreshold)
	EnableThreshold.Set(b.enableThreshold)

	b.logger.Debug("thresholds-updated",
		zap.Float64("avg-trade-size", avg),
		zap.Int("trade-count", len(b.recentTrades)),
		zap.Float64("disable-threshold", b.disableThreshold),
		zap.Float64("enable-threshold", b.enableThreshold))
}

// CheckBalance reads the native balance and updates the enabled state.
func (b *BalanceCircuitBreaker) CheckBalance(ctx context.Context) error {
	start := time.Now()
	defer func() {
		CheckDuration.Observe(time.Since(start).Seconds())
	}()

	// a read may not outlive the next scheduled check
	readCtx, cancel := context.WithTimeout(ctx, b.checkInterval)
	defer cancel()

	balances, err := b.walletClient.GetBalances(readCtx, b.address)
	if err != nil {
		b.logger.Error("balance-check-failed",
			zap.Error(err),
			zap.String("address", b.address.Hex()))
		return fmt.Errorf("get balances: %w", err)
	}
	balance := types.FromWei(balances.Native)

	b.mu.Lock()
	b.lastBalance = balance
	b.lastCheck = time.Now()
	disable, enable := b.disableThreshold, b.enableThreshold
	b.mu.Unlock()

	Balance.Set(balance)

	enabled := b.enabled.Load()
	switch {
	case enabled && balance < disable:
		b.enabled.Store(false)
		Enabled.Set(0)
		StateChanges.Inc()
		b.logger.Warn("circuit-breaker-disabled",
			zap.Float64("balance", balance),
			zap.Float64("disable-threshold", disable),
			zap.Float64("enable-threshold", enable))

	case !enabled && balance >= enable:
		b.enabled.Store(true)
		Enabled.Set(1)
		StateChanges.Inc()
		b.logger.Info("circuit-breaker-enabled",
			zap.Float64("balance", balance),
			zap.Float64("disable-threshold", disable),
			zap.Float64("enable-threshold", enable))

	default:
		b.logger.Debug("balance-checked",
			zap.Float64("balance", balance),
			zap.Bool("enabled", enabled))
	}

	return nil
}

// Start checks the balance once and then on every interval until ctx is done.
func (b *BalanceCircuitBreaker) Start(ctx context.Context) {
	b.logger.Info("circuit-breaker-started",
		zap.Duration("check-interval", b.checkInterval),
		zap.Float64("trade-multiplier", b.tradeMultiplier),
		zap.Float64("min-absolute", b.minAbsolute),
		zap.Float64("hysteresis-ratio", b.hysteresisRatio))

	if err := b.CheckBalance(ctx); err != nil {
		b.logger.Error("initial-balance-check-failed", zap.Error(err))
	}

	b.wg.Add(1)
	go b.monitorLoop(ctx)
}

func (b *BalanceCircuitBreaker) monitorLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("circuit-breaker-stopped")
			return
		case <-ticker.C:
			// failures keep the previous state
			_ = b.CheckBalance(ctx)
		}
	}
}

// Close waits for the monitor loop to exit.
func (b *BalanceCircuitBreaker) Close() {
	b.wg.Wait()
}

// GetStatus returns the current breaker status.
func (b *BalanceCircuitBreaker) GetStatus() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Status{
		Enabled:          b.enabled.Load(),
		LastBalance:      b.lastBalance,
		LastCheck:        b.lastCheck,
		DisableThreshold: b.disableThreshold,
		EnableThreshold:  b.enableThreshold,
		AvgTradeSize:     average(b.recentTrades),
		RecentTradeCount: len(b.recentTrades),
	}
}

func average(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
