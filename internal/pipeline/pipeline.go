// Package pipeline drives the hot path: raw pending transactions are decoded,
// windowed, enriched and scored by a bounded worker pool, while block events
// advance the fee tracker, the intent window and the manipulation detector.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/mempool-engine/internal/manipulation"
	"github.com/mselser95/mempool-engine/internal/prediction"
	"github.com/mselser95/mempool-engine/internal/scoring"
	"github.com/mselser95/mempool-engine/pkg/events"
	"github.com/mselser95/mempool-engine/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Decoder turns raw transaction bytes into an intent.
type Decoder interface {
	DecodeAt(raw []byte, observedAt time.Time) (*types.PendingIntent, bool)
}

// Window is the intent observation window.
type Window interface {
	manipulation.IntentSource
	Add(intent *types.PendingIntent) bool
	Confirm(hashes []common.Hash) int
	Expire(now time.Time) int
}

// SafetySource returns a token safety report.
type SafetySource interface {
	Report(ctx context.Context, token common.Address) (*types.TokenSafetyReport, error)
}

// Predictor returns a success probability, or nil when unavailable.
type Predictor interface {
	Predict(ctx context.Context, f prediction.Features) *float64
}

// Evaluator scores a token's pending intents.
type Evaluator interface {
	Evaluate(ctx context.Context, intents []*types.PendingIntent, report *types.TokenSafetyReport, prediction *float64) scoring.Verdict
}

// Sink receives accepted opportunities.
type Sink interface {
	Push(opp *types.Opportunity) bool
}

// Blacklist holds disqualified tokens.
type Blacklist interface {
	Contains(token common.Address) (string, bool)
	Add(token common.Address, reason string)
}

// FeeObserver consumes block fee data.
type FeeObserver interface {
	OnBlock(ev *types.BlockEvent)
}

// Manipulation is the manipulation detector.
type Manipulation interface {
	Score(token common.Address) (types.ManipulationScore, bool)
	Recompute(block uint64, source manipulation.IntentSource) int
	Prune(block uint64) int
}

// Config holds pipeline collaborators.
type Config struct {
	Decoder      Decoder
	Window       Window
	Safety       SafetySource
	Predictor    Predictor // optional
	Scorer       Evaluator
	Queue        Sink
	Blacklist    Blacklist
	Fees         FeeObserver
	Manipulation Manipulation     // optional
	Events       events.Publisher // optional
	Workers      int
	Logger       *zap.Logger
}

// Pipeline wires the stream and the block watcher to the scoring stages.
type Pipeline struct {
	decoder   Decoder
	window    Window
	safety    SafetySource
	predictor Predictor
	scorer    Evaluator
	queue     Sink
	blacklist Blacklist
	fees      FeeObserver
	manip     Manipulation
	events    events.Publisher
	workers   int
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	running map[common.Address]bool
	again   map[common.Address]bool
}

// New creates a new pipeline.
func New(cfg *Config) (*Pipeline, error) {
	switch {
	case cfg.Decoder == nil:
		return nil, types.NewFatalConfigError("pipeline requires a decoder", nil)
	case cfg.Window == nil:
		return nil, types.NewFatalConfigError("pipeline requires an intent window", nil)
	case cfg.Safety == nil:
		return nil, types.NewFatalConfigError("pipeline requires a safety source", nil)
	case cfg.Scorer == nil:
		return nil, types.NewFatalConfigError("pipeline requires a scorer", nil)
	case cfg.Queue == nil:
		return nil, types.NewFatalConfigError("pipeline requires an opportunity queue", nil)
	case cfg.Blacklist == nil:
		return nil, types.NewFatalConfigError("pipeline requires a blacklist", nil)
	case cfg.Fees == nil:
		return nil, types.NewFatalConfigError("pipeline requires a fee observer", nil)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 16
	}

	return &Pipeline{
		decoder:   cfg.Decoder,
		window:    cfg.Window,
		safety:    cfg.Safety,
		predictor: cfg.Predictor,
		scorer:    cfg.Scorer,
		queue:     cfg.Queue,
		blacklist: cfg.Blacklist,
		fees:      cfg.Fees,
		manip:     cfg.Manipulation,
		events:    cfg.Events,
		workers:   workers,
		logger:    logger,
		now:       time.Now,
		running:   make(map[common.Address]bool),
		again:     make(map[common.Address]bool),
	}, nil
}

// Run consumes both channels until ctx is cancelled or both are closed.
func (p *Pipeline) Run(ctx context.Context, txs <-chan *types.RawTx, blocks <-chan *types.BlockEvent) error {
	p.logger.Info("pipeline-starting", zap.Int("workers", p.workers))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.blockLoop(gctx, blocks) })
	g.Go(func() error { return p.ingestLoop(gctx, txs) })

	err := g.Wait()
	p.logger.Info("pipeline-stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Pipeline) ingestLoop(ctx context.Context, txs <-chan *types.RawTx) error {
	var work errgroup.Group
	work.SetLimit(p.workers)
	defer func() { _ = work.Wait() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-txs:
			if !ok {
				return nil
			}
			TxsReceivedTotal.Inc()
			work.Go(func() error {
				p.Process(ctx, raw)
				return nil
			})
		}
	}
}

func (p *Pipeline) blockLoop(ctx context.Context, blocks <-chan *types.BlockEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-blocks:
			if !ok {
				return nil
			}
			p.HandleBlock(ev)
		}
	}
}

// Process runs one raw transaction through decode, window and scoring.
func (p *Pipeline) Process(ctx context.Context, raw *types.RawTx) {
	received := raw.ReceivedAt
	if received.IsZero() {
		received = p.now()
	}

	intent, ok := p.decoder.DecodeAt(raw.Bytes, received)
	if !ok {
		DecodeMissesTotal.Inc()
		return
	}

	if !p.window.Add(intent) {
		SkippedTotal.WithLabelValues("duplicate").Inc()
		return
	}

	token := intent.Token()
	if reason, listed := p.blacklist.Contains(token); listed {
		SkippedTotal.WithLabelValues("blacklisted").Inc()
		p.logger.Debug("intent-token-blacklisted",
			zap.String("token", token.Hex()),
			zap.String("reason", reason))
		return
	}

	// One evaluation per token at a time; intents that arrive meanwhile
	// trigger a single re-run with the updated window.
	if !p.acquire(token) {
		SkippedTotal.WithLabelValues("coalesced").Inc()
		return
	}
	for {
		p.evaluate(ctx, token)
		if !p.release(token) {
			break
		}
	}

	ProcessDuration.Observe(p.now().Sub(received).Seconds())
}

func (p *Pipeline) evaluate(ctx context.Context, token common.Address) {
	intents := p.window.IntentsFor(token)
	if len(intents) == 0 {
		return
	}

	report, err := p.safety.Report(ctx, token)
	if err != nil {
		p.logger.Warn("safety-report-failed", zap.String("token", token.Hex()), zap.Error(err))
		report = nil
	}

	var pred *float64
	if p.predictor != nil {
		pred = p.predictor.Predict(ctx, prediction.BuildFeatures(token, intents, report, p.manipulationScore(token)))
	}

	v := p.scorer.Evaluate(ctx, intents, report, pred)
	EvaluationsTotal.WithLabelValues(v.Reason).Inc()

	if v.Disqualified && permanent(v.Reason) {
		p.blacklist.Add(token, v.Reason)
	}

	if v.Record != nil && p.events != nil {
		p.events.Publish(events.TopicOpportunityScored, v.Record)
	}

	if !v.Accepted() {
		return
	}

	if p.queue.Push(v.Opportunity) {
		QueuedTotal.Inc()
		p.logger.Info("opportunity-queued",
			zap.String("opportunity-id", v.Opportunity.ID),
			zap.String("token", token.Hex()),
			zap.String("kind", v.Opportunity.Kind.String()),
			zap.Float64("net-profit", v.Opportunity.NetProfit),
			zap.Float64("confidence", v.Opportunity.Confidence))
	}
}

func (p *Pipeline) manipulationScore(token common.Address) float64 {
	if p.manip == nil {
		return 0
	}
	s, ok := p.manip.Score(token)
	if !ok {
		return 0
	}
	return s.Score
}

// permanent reports whether a disqualification describes the token itself.
// A missing report or a thin pool can change within the blacklist TTL.
func permanent(reason string) bool {
	switch reason {
	case scoring.ReasonMissingReport, scoring.ReasonLowLiquidity:
		return false
	}
	return true
}

func (p *Pipeline) acquire(token common.Address) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running[token] {
		p.again[token] = true
		return false
	}
	p.running[token] = true
	return true
}

// release ends an evaluation and reports whether another one is owed.
func (p *Pipeline) release(token common.Address) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.again[token] {
		delete(p.again, token)
		return true
	}
	delete(p.running, token)
	return false
}

// HandleBlock applies a block to the fee tracker, the window and the
// manipulation detector, in that order.
func (p *Pipeline) HandleBlock(ev *types.BlockEvent) {
	if ev == nil {
		return
	}
	BlocksHandledTotal.Inc()

	p.fees.OnBlock(ev)

	confirmed := p.window.Confirm(ev.TxHashes)
	expired := p.window.Expire(p.now())
	IntentsConfirmedTotal.Add(float64(confirmed))
	IntentsExpiredTotal.Add(float64(expired))

	var rescored, pruned int
	if p.manip != nil {
		rescored = p.manip.Recompute(ev.Number, p.window)
		pruned = p.manip.Prune(ev.Number)
	}

	p.logger.Debug("block-handled",
		zap.Uint64("block", ev.Number),
		zap.Float64("base-fee-gwei", ev.BaseFeeGwei),
		zap.Int("confirmed", confirmed),
		zap.Int("expired", expired),
		zap.Int("manipulation-scored", rescored),
		zap.Int("manipulation-pruned", pruned))
}
