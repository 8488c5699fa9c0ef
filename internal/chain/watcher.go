// Package chain follows the canonical head and turns every new block into a
// types.BlockEvent carrying the base fee, the effective tips paid and the
// hashes it included.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/mselser95/mempool-engine/pkg/types"
	"github.com/mselser95/mempool-engine/pkg/websocket"
	"go.uber.org/zap"
)

// Client is the subset of ethclient.Client the watcher needs.
type Client interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*ethtypes.Block, error)
	Close()
}

// DialFunc opens a fresh node connection. It is called again after the head
// subscription fails.
type DialFunc func(ctx context.Context) (Client, error)

// Config holds block watcher configuration.
type Config struct {
	Dial         DialFunc
	FetchTimeout time.Duration
	MaxBackfill  int // skipped blocks fetched after a gap; older ones are dropped
	BufferSize   int
	Reconnect    websocket.ReconnectConfig
	Logger       *zap.Logger
}

// Watcher subscribes to new heads and publishes block events.
type Watcher struct {
	dial         DialFunc
	fetchTimeout time.Duration
	maxBackfill  int
	reconnect    *websocket.ReconnectManager
	logger       *zap.Logger

	mu     sync.Mutex
	client Client
	sub    ethereum.Subscription
	heads  chan *ethtypes.Header

	events    chan *types.BlockEvent
	last      atomic.Uint64
	connected atomic.Bool
	wg        sync.WaitGroup
}

// New creates a new block watcher.
func New(cfg *Config) (*Watcher, error) {
	if cfg.Dial == nil {
		return nil, types.NewFatalConfigError("block watcher requires a dial function", nil)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 5 * time.Second
	}

	maxBackfill := cfg.MaxBackfill
	if maxBackfill <= 0 {
		maxBackfill = 8
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 64
	}

	return &Watcher{
		dial:         cfg.Dial,
		fetchTimeout: fetchTimeout,
		maxBackfill:  maxBackfill,
		reconnect:    websocket.NewReconnectManager(cfg.Reconnect, logger),
		logger:       logger,
		events:       make(chan *types.BlockEvent, bufferSize),
	}, nil
}

// Start subscribes to new heads. The first subscription is synchronous so a
// bad endpoint fails startup.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("block-watcher-starting")

	err := w.subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe new heads: %w", err)
	}

	w.wg.Add(1)
	go w.run(ctx)

	return nil
}

func (w *Watcher) subscribe(ctx context.Context) error {
	client, err := w.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	heads := make(chan *ethtypes.Header, 16)
	sub, err := client.SubscribeNewHead(ctx, heads)
	if err != nil {
		client.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	w.mu.Lock()
	old := w.client
	w.client, w.sub, w.heads = client, sub, heads
	w.mu.Unlock()

	if old != nil {
		old.Close()
	}

	w.connected.Store(true)
	w.logger.Info("new-head-subscription-open")
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()
	defer close(w.events)
	defer w.teardown()

	for {
		w.mu.Lock()
		sub, heads := w.sub, w.heads
		w.mu.Unlock()

		select {
		case <-ctx.Done():
			w.logger.Info("block-watcher-stopping")
			return

		case head := <-heads:
			w.onHead(ctx, head)

		case err := <-sub.Err():
			w.connected.Store(false)
			sub.Unsubscribe()
			w.logger.Warn("new-head-subscription-lost", zap.Error(err))

			ResubscriptionsTotal.Inc()
			err = w.reconnect.Reconnect(ctx, w.subscribe)
			if err != nil {
				return
			}
		}
	}
}

// onHead emits events for head and, after a gap, for up to maxBackfill of
// the skipped blocks before it.
func (w *Watcher) onHead(ctx context.Context, head *ethtypes.Header) {
	if head == nil || head.Number == nil {
		return
	}

	number := head.Number.Uint64()
	last := w.last.Load()
	if last != 0 && number <= last {
		// Reorg or duplicate: the block is re-fetched so included hashes stay current.
		w.emit(ctx, number)
		return
	}

	from := number
	if last != 0 && number > last+1 {
		from = last + 1
		if number-from > uint64(w.maxBackfill) {
			w.logger.Warn("head-gap-truncated",
				zap.Uint64("last", last),
				zap.Uint64("head", number),
				zap.Int("max-backfill", w.maxBackfill))
			from = number - uint64(w.maxBackfill)
		}
	}

	for n := from; n <= number; n++ {
		if ctx.Err() != nil {
			return
		}
		if n < number {
			BlocksBackfilledTotal.Inc()
		}
		w.emit(ctx, n)
	}
}

func (w *Watcher) emit(ctx context.Context, number uint64) {
	ev, err := w.fetch(ctx, number)
	if err != nil {
		FetchErrorsTotal.Inc()
		w.logger.Warn("block-fetch-failed", zap.Uint64("block", number), zap.Error(err))
		return
	}

	if number > w.last.Load() {
		w.last.Store(number)
		HeadBlock.Set(float64(number))
	}
	BlocksProcessedTotal.Inc()

	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}

func (w *Watcher) fetch(ctx context.Context, number uint64) (*types.BlockEvent, error) {
	start := time.Now()
	defer func() { FetchDuration.Observe(time.Since(start).Seconds()) }()

	w.mu.Lock()
	client := w.client
	w.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, w.fetchTimeout)
	defer cancel()

	block, err := client.BlockByNumber(fetchCtx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, fmt.Errorf("block by number: %w", err)
	}
	if block == nil {
		return nil, errors.New("node returned no block")
	}

	return BlockEvent(block), nil
}

// BlockEvent summarizes a block. Tips are the effective per-gas priority fee
// of each transaction; transactions paying below the base fee are skipped.
func BlockEvent(block *ethtypes.Block) *types.BlockEvent {
	baseFee := block.BaseFee()
	txs := block.Transactions()

	ev := &types.BlockEvent{
		Number:      block.NumberU64(),
		BaseFeeGwei: types.WeiToGwei(baseFee),
		TipsGwei:    make([]float64, 0, len(txs)),
		TxHashes:    make([]common.Hash, 0, len(txs)),
		Timestamp:   time.Unix(int64(block.Time()), 0), //nolint:gosec // block timestamps fit in int64
	}

	for _, tx := range txs {
		ev.TxHashes = append(ev.TxHashes, tx.Hash())

		tip, err := tx.EffectiveGasTip(baseFee)
		if err != nil || tip.Sign() < 0 {
			continue
		}
		ev.TipsGwei = append(ev.TipsGwei, types.WeiToGwei(tip))
	}

	return ev
}

func (w *Watcher) teardown() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sub != nil {
		w.sub.Unsubscribe()
	}
	if w.client != nil {
		w.client.Close()
	}
	w.connected.Store(false)
}

// Events returns the channel of block events. It is closed when the watcher stops.
func (w *Watcher) Events() <-chan *types.BlockEvent {
	return w.events
}

// LastBlock returns the highest block processed so far.
func (w *Watcher) LastBlock() uint64 {
	return w.last.Load()
}

// Connected reports whether the head subscription is live.
func (w *Watcher) Connected() bool {
	return w.connected.Load()
}

// Close waits for the watcher to stop. Cancel the Start context first.
func (w *Watcher) Close() error {
	w.logger.Info("closing-block-watcher")
	w.wg.Wait()
	w.logger.Info("block-watcher-closed", zap.Uint64("last-block", w.last.Load()))
	return nil
}
