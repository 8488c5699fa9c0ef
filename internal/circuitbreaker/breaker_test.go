package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/mempool-engine/pkg/types"
	"github.com/mselser95/mempool-engine/pkg/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeBalances struct {
	mu     sync.Mutex
	native float64
	err    error
	calls  int
}

func (f *fakeBalances) GetBalances(_ context.Context, _ common.Address) (*wallet.Balances, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &wallet.Balances{Native: types.ToWei(f.native)}, nil
}

func (f *fakeBalances) set(native float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.native = native
}

func (f *fakeBalances) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestBreaker(t *testing.T, fetcher BalanceFetcher) *BalanceCircuitBreaker {
	t.Helper()
	b, err := New(&Config{
		CheckInterval:   10 * time.Millisecond,
		TradeMultiplier: 3,
		MinAbsolute:     0.5,
		HysteresisRatio: 1.5,
		TradeWindow:     3,
		WalletClient:    fetcher,
		Address:         common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678"),
		Logger:          zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return b
}

func TestNew_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	valid := func() *Config {
		return &Config{
			CheckInterval:   time.Minute,
			TradeMultiplier: 3,
			MinAbsolute:     0.5,
			HysteresisRatio: 1.5,
			WalletClient:    &fakeBalances{},
			Logger:          logger,
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"nil-wallet-client", func(c *Config) { c.WalletClient = nil }, "wallet client cannot be nil"},
		{"nil-logger", func(c *Config) { c.Logger = nil }, "logger cannot be nil"},
		{"zero-interval", func(c *Config) { c.CheckInterval = 0 }, "check interval must be positive"},
		{"zero-multiplier", func(c *Config) { c.TradeMultiplier = 0 }, "trade multiplier must be positive"},
		{"zero-min", func(c *Config) { c.MinAbsolute = 0 }, "min absolute must be positive"},
		{"low-hysteresis", func(c *Config) { c.HysteresisRatio = 0.9 }, "hysteresis ratio must be >= 1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			_, err := New(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	_, err := New(nil)
	assert.Error(t, err)

	b, err := New(valid())
	require.NoError(t, err)
	assert.True(t, b.IsEnabled())
}

func TestRecordTrade_RollingWindow(t *testing.T) {
	b := newTestBreaker(t, &fakeBalances{})

	b.RecordTrade(0.1)
	status := b.GetStatus()
	assert.InDelta(t, 0.5, status.DisableThreshold, 1e-12, "floor applies to small entries")

	b.RecordTrade(0.3)
	b.RecordTrade(0.5)
	status = b.GetStatus()
	assert.InDelta(t, 0.3, status.AvgTradeSize, 1e-12)
	assert.InDelta(t, 0.9, status.DisableThreshold, 1e-12)
	assert.InDelta(t, 1.35, status.EnableThreshold, 1e-12)

	b.RecordTrade(0.7) // evicts 0.1
	status = b.GetStatus()
	assert.Equal(t, 3, status.RecentTradeCount)
	assert.InDelta(t, 0.5, status.AvgTradeSize, 1e-12)

	b.RecordTrade(-1)
	assert.Equal(t, 3, b.GetStatus().RecentTradeCount)
}

func TestCheckBalance_Hysteresis(t *testing.T) {
	fetcher := &fakeBalances{native: 2}
	b := newTestBreaker(t, fetcher)
	ctx := context.Background()

	require.NoError(t, b.CheckBalance(ctx))
	assert.True(t, b.IsEnabled())
	assert.InDelta(t, 2.0, b.GetStatus().LastBalance, 1e-12)

	fetcher.set(0.4)
	require.NoError(t, b.CheckBalance(ctx))
	assert.False(t, b.IsEnabled())

	fetcher.set(0.6) // above disable, below enable threshold 0.75
	require.NoError(t, b.CheckBalance(ctx))
	assert.False(t, b.IsEnabled())

	fetcher.set(0.75)
	require.NoError(t, b.CheckBalance(ctx))
	assert.True(t, b.IsEnabled())
}

func TestCheckBalance_ErrorKeepsState(t *testing.T) {
	fetcher := &fakeBalances{err: errors.New("rpc down")}
	b := newTestBreaker(t, fetcher)

	err := b.CheckBalance(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc down")
	assert.True(t, b.IsEnabled())
}

type stalledBalances struct{}

func (stalledBalances) GetBalances(ctx context.Context, _ common.Address) (*wallet.Balances, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCheckBalance_ReadBoundedByInterval(t *testing.T) {
	b := newTestBreaker(t, stalledBalances{})

	start := time.Now()
	err := b.CheckBalance(context.Background())

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, b.IsEnabled())
}

func TestStart_MonitorsUntilCancelled(t *testing.T) {
	fetcher := &fakeBalances{native: 0.1}
	b := newTestBreaker(t, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx)
	assert.False(t, b.IsEnabled(), "initial check runs synchronously")

	require.Eventually(t, func() bool { return fetcher.callCount() >= 3 }, time.Second, 5*time.Millisecond)

	fetcher.set(5)
	require.Eventually(t, b.IsEnabled, time.Second, 5*time.Millisecond)

	cancel()
	b.Close()
	calls := fetcher.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, fetcher.callCount())
}

func TestConcurrentAccess(t *testing.T) {
	fetcher := &fakeBalances{native: 1}
	b := newTestBreaker(t, fetcher)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			b.RecordTrade(0.1)
		}()
		go func() {
			defer wg.Done()
			_ = b.CheckBalance(context.Background())
		}()
		go func() {
			defer wg.Done()
			_ = b.IsEnabled()
			_ = b.GetStatus()
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, b.GetStatus().RecentTradeCount)
}
