package websocket

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/mempool-engine/pkg/cache"
	"github.com/mselser95/mempool-engine/pkg/types"
	"go.uber.org/zap"
)

// PoolConfig holds stream pool configuration.
type PoolConfig struct {
	URLs                  []string      // node endpoints, one subscription each
	SubscribeMethod       string        // eth_subscribe topic
	FullTransactions      bool          // request transaction bodies
	DialTimeout           time.Duration // connection timeout
	PongTimeout           time.Duration // pong timeout
	PingInterval          time.Duration // ping interval
	ReconnectInitialDelay time.Duration // initial reconnect delay
	ReconnectMaxDelay     time.Duration // max reconnect delay
	ReconnectBackoffMult  float64       // reconnect backoff multiplier
	MessageBufferSize     int           // per-endpoint buffer size
	Dedup                 cache.Cache   // optional; suppresses cross-endpoint duplicates
	DedupTTL              time.Duration
	Logger                *zap.Logger
}

// Pool fans several node subscriptions into one stream of raw transactions.
type Pool struct {
	cfg         PoolConfig
	managers    []*Manager
	messageChan chan *types.RawTx
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	logger      *zap.Logger
}

// NewPool creates a new stream pool.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if len(cfg.URLs) == 0 {
		return nil, errors.New("stream pool requires at least one endpoint")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		cfg:         cfg,
		managers:    make([]*Manager, len(cfg.URLs)),
		messageChan: make(chan *types.RawTx, len(cfg.URLs)*cfg.MessageBufferSize),
		ctx:         ctx,
		cancel:      cancel,
		logger:      cfg.Logger,
	}

	for i, url := range cfg.URLs {
		pool.managers[i] = New(Config{
			URL:                   url,
			SubscribeMethod:       cfg.SubscribeMethod,
			FullTransactions:      cfg.FullTransactions,
			DialTimeout:           cfg.DialTimeout,
			PongTimeout:           cfg.PongTimeout,
			PingInterval:          cfg.PingInterval,
			ReconnectInitialDelay: cfg.ReconnectInitialDelay,
			ReconnectMaxDelay:     cfg.ReconnectMaxDelay,
			ReconnectBackoffMult:  cfg.ReconnectBackoffMult,
			MessageBufferSize:     cfg.MessageBufferSize,
			Logger:                cfg.Logger.With(zap.Int("manager-id", i)),
		})
	}

	return pool, nil
}

// Start starts every endpoint. Endpoints that fail their initial connection
// are dropped; Start fails only when none connect.
func (p *Pool) Start() error {
	p.logger.Info("stream-pool-starting", zap.Int("endpoints", len(p.managers)))

	errs := make([]error, len(p.managers))
	var startWg sync.WaitGroup

	for i, mgr := range p.managers {
		startWg.Add(1)
		go func(index int, manager *Manager) {
			defer startWg.Done()
			errs[index] = manager.Start()
		}(i, mgr)
	}

	startWg.Wait()

	started := 0
	var startErrors []error
	for i, err := range errs {
		if err == nil {
			started++
			continue
		}
		p.logger.Error("manager-start-failed",
			zap.Int("manager-id", i),
			zap.String("endpoint", p.managers[i].URL()),
			zap.Error(err))
		startErrors = append(startErrors, fmt.Errorf("endpoint %d: %w", i, err))
		_ = p.managers[i].Close()
	}

	if started == 0 {
		return fmt.Errorf("no stream endpoint connected: %w", errors.Join(startErrors...))
	}

	p.wg.Add(1)
	go p.multiplexMessages()

	PoolActiveEndpoints.Set(float64(started))

	p.logger.Info("stream-pool-started",
		zap.Int("active-endpoints", started),
		zap.Int("failed-endpoints", len(startErrors)))

	return nil
}

// Connected reports whether at least one endpoint subscription is live.
func (p *Pool) Connected() bool {
	for _, m := range p.managers {
		if m.Connected() {
			return true
		}
	}
	return false
}

// MessageChan returns the merged stream.
func (p *Pool) MessageChan() <-chan *types.RawTx {
	return p.messageChan
}

// Close gracefully closes every endpoint.
func (p *Pool) Close() error {
	p.logger.Info("closing-stream-pool")

	p.cancel()

	var closeWg sync.WaitGroup
	for i, mgr := range p.managers {
		closeWg.Add(1)
		go func(index int, manager *Manager) {
			defer closeWg.Done()

			err := manager.Close()
			if err != nil {
				p.logger.Error("manager-close-failed",
					zap.Int("manager-id", index),
					zap.Error(err))
			}
		}(i, mgr)
	}

	closeWg.Wait()
	p.wg.Wait()

	close(p.messageChan)
	PoolActiveEndpoints.Set(0)

	p.logger.Info("stream-pool-closed")

	return nil
}

// multiplexMessages forwards every endpoint's transactions to the pool channel.
func (p *Pool) multiplexMessages() {
	defer p.wg.Done()

	cases := make([]reflect.SelectCase, len(p.managers)+1)
	cases[0] = reflect.SelectCase{
		Dir:  reflect.SelectRecv,
		Chan: reflect.ValueOf(p.ctx.Done()),
	}
	for i, mgr := range p.managers {
		cases[i+1] = reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(mgr.MessageChan()),
		}
	}

	for {
		chosen, value, ok := reflect.Select(cases)

		if chosen == 0 {
			p.logger.Info("stream-multiplexer-stopped")
			return
		}

		if !ok {
			// A nil channel is never selected.
			cases[chosen].Chan = reflect.Zero(cases[chosen].Chan.Type())
			continue
		}

		tx, ok := value.Interface().(*types.RawTx)
		if !ok || tx == nil {
			continue
		}

		start := time.Now()
		if p.seen(tx.Bytes) {
			PoolDuplicatesTotal.Inc()
			continue
		}

		select {
		case p.messageChan <- tx:
		default:
			MessagesDroppedTotal.WithLabelValues("pool_full").Inc()
			p.logger.Warn("dropped-message-from-multiplexer",
				zap.Int("manager-id", chosen-1))
		}

		PoolMessageMultiplexLatency.Observe(time.Since(start).Seconds())
	}
}

// seen records raw in the dedup cache and reports whether it was already there.
func (p *Pool) seen(raw []byte) bool {
	if p.cfg.Dedup == nil {
		return false
	}

	return cache.Mark(p.cfg.Dedup, string(crypto.Keccak256(raw)), p.cfg.DedupTTL)
}
