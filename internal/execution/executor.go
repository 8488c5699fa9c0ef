package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/mempool-engine/pkg/events"
	"github.com/mselser95/mempool-engine/pkg/types"
	"go.uber.org/zap"
)

// ErrExecutorStopped is reported for exits requested after the executor stopped.
var ErrExecutorStopped = errors.New("executor stopped")

// OpportunitySource yields ranked opportunities. scoring.Queue implements it.
type OpportunitySource interface {
	Ready() <-chan struct{}
	Pop() *types.Opportunity
}

// TradeGate pauses entries. The balance circuit breaker implements it.
type TradeGate interface {
	IsEnabled() bool
	RecordTrade(tradeSize float64)
}

// PositionOpener registers confirmed entries with the position manager.
type PositionOpener interface {
	Open(fill *types.Fill) (*types.Position, error)
}

// Executor serializes every submission of the engine: entries pulled from the
// opportunity queue and exits requested by the position manager. Exits are
// served ahead of queued entries but never preempt an entry in flight, so an
// exit can wait for one whole entry: a nonce read, then at most RetryBudget
// attempts each bounded by SendTimeout (twice when a relay bundle falls back
// to public) plus InclusionTimeout, then the audit write. With the defaults
// that is 5s + 2 x (2 x 10s + 36s) + 5s, about two minutes.
type Executor struct {
	planner   *Planner
	submitter *Submitter
	queue     OpportunitySource
	gate      TradeGate
	positions PositionOpener
	events    events.Publisher
	wrapped   common.Address
	logger    *zap.Logger

	exits chan exitRequest
	done  chan struct{}
	wg    sync.WaitGroup

	mu           sync.Mutex
	totalCost    float64
	confirmed    int
	notConfirmed int
}

// Config holds executor configuration.
type Config struct {
	Planner   *Planner
	Submitter *Submitter
	Queue     OpportunitySource
	Gate      TradeGate        // optional
	Positions PositionOpener   // optional
	Events    events.Publisher // optional
	Wrapped   common.Address   // wrapped native token, for exit proceeds
	Logger    *zap.Logger
}

type exitRequest struct {
	ctx   context.Context
	order *types.ExitOrder
	reply chan types.ExitResult
}

// New creates a new executor.
func New(cfg *Config) (*Executor, error) {
	if cfg.Planner == nil || cfg.Submitter == nil {
		return nil, types.NewFatalConfigError("executor requires a planner and submitter", nil)
	}
	if cfg.Queue == nil {
		return nil, types.NewFatalConfigError("executor requires an opportunity source", nil)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Executor{
		planner:   cfg.Planner,
		submitter: cfg.Submitter,
		queue:     cfg.Queue,
		gate:      cfg.Gate,
		positions: cfg.Positions,
		events:    cfg.Events,
		wrapped:   cfg.Wrapped,
		logger:    logger,
		exits:     make(chan exitRequest),
		done:      make(chan struct{}),
	}, nil
}

// SetPositions attaches the position manager after construction. It must be
// called before Start.
func (e *Executor) SetPositions(p PositionOpener) {
	e.positions = p
}

// Start starts the executor.
func (e *Executor) Start(ctx context.Context) error {
	e.logger.Info("executor-starting", zap.String("signer", e.planner.Signer().Hex()))

	e.wg.Add(1)
	go e.executionLoop(ctx)

	return nil
}

// executionLoop processes exits and opportunities one at a time.
func (e *Executor) executionLoop(ctx context.Context) {
	defer e.wg.Done()
	defer close(e.done)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("executor-stopping")
			return

		case req := <-e.exits:
			e.handleExit(req)

		case <-e.queue.Ready():
			e.drainExits()
			for ctx.Err() == nil {
				opp := e.queue.Pop()
				if opp == nil {
					break
				}
				e.enter(ctx, opp)
				e.drainExits()
			}
		}
	}
}

func (e *Executor) drainExits() {
	for {
		select {
		case req := <-e.exits:
			e.handleExit(req)
		default:
			return
		}
	}
}

// enter plans and submits one opportunity and, when it leaves the signer
// holding tokens, opens a position from the confirmed fill.
func (e *Executor) enter(ctx context.Context, opp *types.Opportunity) {
	if e.gate != nil && !e.gate.IsEnabled() {
		EntriesPausedTotal.Inc()
		e.logger.Info("entry-paused-by-circuit-breaker",
			zap.String("opportunity-id", opp.ID),
			zap.String("kind", opp.Kind.String()))
		return
	}

	plan, err := e.planner.Plan(ctx, opp)
	if err != nil {
		ExecutionErrorsTotal.Inc()
		e.logger.Warn("plan-failed",
			zap.String("opportunity-id", opp.ID),
			zap.String("kind", opp.Kind.String()),
			zap.Error(err))
		return
	}

	res := e.submitter.Submit(ctx, plan)
	e.account(res)
	e.publish(res)

	if !res.Confirmed() {
		return
	}

	if e.gate != nil {
		e.gate.RecordTrade(plan.TradeSize)
	}

	if !holdsInventory(opp.Kind) || e.positions == nil {
		return
	}

	fill := entryFill(plan, res)
	if fill == nil {
		e.logger.Warn("entry-fill-unknown", zap.String("plan-id", plan.ID))
		return
	}

	pos, err := e.positions.Open(fill)
	if err != nil {
		ExecutionErrorsTotal.Inc()
		e.logger.Error("position-open-failed",
			zap.String("plan-id", plan.ID),
			zap.Error(err))
		return
	}

	e.logger.Info("entry-executed",
		zap.String("opportunity-id", opp.ID),
		zap.String("position-id", pos.ID),
		zap.String("token", fill.Token.Hex()),
		zap.Float64("amount", fill.Amount),
		zap.Float64("price", fill.Price),
		zap.Float64("realized-cost", res.RealizedCost))
}

// ExecuteExit submits an exit order and blocks until it reaches a terminal
// state. Safe for concurrent use.
func (e *Executor) ExecuteExit(ctx context.Context, order *types.ExitOrder) types.ExitResult {
	req := exitRequest{ctx: ctx, order: order, reply: make(chan types.ExitResult, 1)}

	select {
	case e.exits <- req:
	case <-ctx.Done():
		return types.ExitResult{Reason: ctx.Err().Error()}
	case <-e.done:
		return types.ExitResult{Reason: ErrExecutorStopped.Error()}
	}

	select {
	case res := <-req.reply:
		return res
	case <-ctx.Done():
		return types.ExitResult{Reason: ctx.Err().Error()}
	}
}

func (e *Executor) handleExit(req exitRequest) {
	req.reply <- e.exit(req.ctx, req.order)
}

func (e *Executor) exit(ctx context.Context, order *types.ExitOrder) types.ExitResult {
	plan, err := e.planner.PlanExit(ctx, order)
	if err != nil {
		ExecutionErrorsTotal.Inc()
		e.logger.Warn("exit-plan-failed",
			zap.String("exit-id", order.ID),
			zap.String("position-id", order.PositionID),
			zap.Error(err))
		return types.ExitResult{Reason: err.Error()}
	}

	res := e.submitter.Submit(ctx, plan)
	e.account(res)
	e.publish(res)

	if !res.Confirmed() {
		return types.ExitResult{Reason: fmt.Sprintf("%s: %s", res.State, res.Reason)}
	}

	proceeds := unwrappedProceeds(res.Receipts, e.wrapped)
	if proceeds <= 0 {
		proceeds = order.Amount * order.TriggerPrice
	}

	return types.ExitResult{
		Confirmed:    true,
		FilledAmount: order.Amount,
		Price:        proceeds / order.Amount,
		Reason:       res.Reason,
	}
}

func (e *Executor) account(res *types.SubmissionResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalCost += res.RealizedCost
	if res.Confirmed() {
		e.confirmed++
	} else {
		e.notConfirmed++
	}
}

func (e *Executor) publish(res *types.SubmissionResult) {
	if e.events != nil {
		e.events.Publish(events.TopicPlanTerminal, res)
	}
}

// holdsInventory reports whether a confirmed entry of kind leaves tokens to manage.
func holdsInventory(kind types.OpportunityKind) bool {
	switch kind {
	case types.KindSnipe, types.KindFrontrun, types.KindBackrun:
		return true
	case types.KindSandwich, types.KindCrossVenueArbitrage:
		return false
	}
	return false
}

// Close gracefully closes the executor.
func (e *Executor) Close() error {
	e.logger.Info("closing-executor")
	e.wg.Wait()

	e.mu.Lock()
	totalCost, confirmed, failed := e.totalCost, e.confirmed, e.notConfirmed
	e.mu.Unlock()

	e.logger.Info("executor-closed",
		zap.Float64("total-realized-cost", totalCost),
		zap.Int("confirmed", confirmed),
		zap.Int("not-confirmed", failed))

	return nil
}
