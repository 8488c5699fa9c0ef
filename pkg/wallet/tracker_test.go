package wallet

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/mempool-engine/pkg/types"
	"go.uber.org/zap"
)

type fakeBalances struct {
	balances *Balances
	err      error
	calls    int
}

func (f *fakeBalances) GetBalances(_ context.Context, _ common.Address) (*Balances, error) {
	f.calls++
	return f.balances, f.err
}

type fakePositions []*types.Position

func (f fakePositions) Positions() []*types.Position { return f }

func TestNew(t *testing.T) {
	logger := zap.NewNop()
	client := &fakeBalances{}

	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{name: "valid_config", cfg: &Config{Client: client, PollInterval: time.Minute, Logger: logger}},
		{name: "nil_config", cfg: nil, wantErr: true},
		{name: "nil_logger", cfg: &Config{Client: client, PollInterval: time.Minute}, wantErr: true},
		{name: "nil_client", cfg: &Config{PollInterval: time.Minute, Logger: logger}, wantErr: true},
		{name: "zero_poll_interval", cfg: &Config{Client: client, Logger: logger}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tracker == nil {
				t.Error("New() returned nil tracker")
			}
		})
	}
}

func TestTracker_Run_ImmediateCancellation(t *testing.T) {
	client := &fakeBalances{balances: &Balances{Native: big.NewInt(1e18), Wrapped: new(big.Int)}}
	tracker, err := New(&Config{Client: client, PollInterval: time.Minute, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- tracker.Run(ctx)
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not exit after context cancellation")
	}

	if client.calls != 1 {
		t.Errorf("GetBalances calls = %d, want 1 initial poll", client.calls)
	}
}

func TestTracker_PollError(t *testing.T) {
	client := &fakeBalances{err: errors.New("node down")}
	tracker, err := New(&Config{Client: client, PollInterval: time.Minute, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := tracker.poll(context.Background()); err == nil {
		t.Error("poll() expected error")
	}
}

func TestExposure(t *testing.T) {
	positions := []*types.Position{
		{RemainingAmount: 100, EntryPrice: 0.01, LastPrice: 0.02},
		{RemainingAmount: 50, EntryPrice: 0.02},
	}

	cost, mark := exposure(positions)
	if math.Abs(cost-2.0) > 1e-9 {
		t.Errorf("cost = %v, want 2.0", cost)
	}
	if math.Abs(mark-3.0) > 1e-9 {
		t.Errorf("mark = %v, want 3.0", mark)
	}
}

func TestTracker_UpdateMetricsWithPositions(t *testing.T) {
	client := &fakeBalances{balances: &Balances{Native: big.NewInt(1e18), Wrapped: big.NewInt(5e17)}}
	tracker, err := New(&Config{
		Client:       client,
		Positions:    fakePositions{{RemainingAmount: 10, EntryPrice: 0.1}},
		PollInterval: time.Minute,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := tracker.poll(context.Background()); err != nil {
		t.Fatalf("poll() failed: %v", err)
	}
}
