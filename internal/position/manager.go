// Package position manages executed entries through staged exits.
package position

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/mselser95/mempool-engine/pkg/config"
	"github.com/mselser95/mempool-engine/pkg/events"
	"github.com/mselser95/mempool-engine/pkg/types"
	"go.uber.org/zap"
)

var (
	// ErrUnknownPosition is returned for an id the manager does not hold.
	ErrUnknownPosition = errors.New("unknown position")
	// ErrUnknownOrder is returned for an exit result without an in-flight order.
	ErrUnknownOrder = errors.New("unknown exit order")
	// ErrInvalidFill is returned for fills with no amount or price.
	ErrInvalidFill = errors.New("fill has no amount or price")
)

const archiveLimit = 256

// PriceSource reads the latest price of a token on a venue.
type PriceSource interface {
	Price(ctx context.Context, token, venue common.Address) (float64, error)
}

// ExitSubmitter executes an exit order and reports its terminal outcome.
type ExitSubmitter interface {
	ExecuteExit(ctx context.Context, order *types.ExitOrder) types.ExitResult
}

// Policy is the exit rule set applied to positions.
type Policy struct {
	Stages          []types.TakeProfitStage
	TrailPercent    float64 // 0 disables the trailing stop
	StopLossPercent float64 // below entry, 0 disables the stop-loss
	MaxExitFailures int     // consecutive failures before FAILED
	Dust            float64 // remainders at or below this are zero
}

// Validate checks the policy.
func (p Policy) Validate() error {
	err := config.ValidateStages(p.Stages)
	if err != nil {
		return fmt.Errorf("stages: %w", err)
	}
	if p.TrailPercent < 0 || p.TrailPercent >= 100 {
		return fmt.Errorf("trail percent must be in [0, 100), got %f", p.TrailPercent)
	}
	if p.StopLossPercent < 0 || p.StopLossPercent >= 100 {
		return fmt.Errorf("stop-loss percent must be in [0, 100), got %f", p.StopLossPercent)
	}
	if p.MaxExitFailures < 1 {
		return fmt.Errorf("max exit failures must be >= 1, got %d", p.MaxExitFailures)
	}
	if p.Dust < 0 {
		return fmt.Errorf("dust must be non-negative")
	}
	return nil
}

// Config holds position manager configuration.
type Config struct {
	Policy       Policy
	PollInterval time.Duration
	PriceTimeout time.Duration // per price read
	Prices       PriceSource
	Exits        ExitSubmitter
	Events       events.Publisher // optional
	Logger       *zap.Logger
}

// Manager owns every position. Exits for one position are strictly
// serialized: a position with an order in flight emits nothing further until
// the order's outcome is reported.
type Manager struct {
	prices       PriceSource
	exits        ExitSubmitter
	events       events.Publisher
	logger       *zap.Logger
	pollInterval time.Duration
	priceTimeout time.Duration

	mu        sync.Mutex
	policy    Policy
	positions map[string]*types.Position
	inflight  map[string]*types.ExitOrder
	archived  []*types.Position

	wg  sync.WaitGroup
	now func() time.Time
}

// New creates a position manager.
func New(cfg *Config) (*Manager, error) {
	if cfg.Exits == nil {
		return nil, types.NewFatalConfigError("position manager requires an exit submitter", nil)
	}
	err := cfg.Policy.Validate()
	if err != nil {
		return nil, fmt.Errorf("position policy: %w", err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.PriceTimeout <= 0 {
		cfg.PriceTimeout = 2 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		prices:       cfg.Prices,
		exits:        cfg.Exits,
		events:       cfg.Events,
		logger:       logger,
		pollInterval: cfg.PollInterval,
		priceTimeout: cfg.PriceTimeout,
		policy:       clonePolicy(cfg.Policy),
		positions:    make(map[string]*types.Position),
		inflight:     make(map[string]*types.ExitOrder),
		now:          time.Now,
	}, nil
}

// Reconfigure replaces the exit policy after validating it. Stage tables,
// trailing stops and stop-loss prices apply to positions opened afterwards;
// failure limits and dust apply immediately.
func (m *Manager) Reconfigure(p Policy) error {
	err := p.Validate()
	if err != nil {
		return fmt.Errorf("validate position policy: %w", err)
	}

	m.mu.Lock()
	m.policy = clonePolicy(p)
	m.mu.Unlock()

	m.logger.Info("position-policy-reconfigured",
		zap.Int("stages", len(p.Stages)),
		zap.Float64("trail-percent", p.TrailPercent),
		zap.Float64("stop-loss-percent", p.StopLossPercent))
	return nil
}

// Open registers a confirmed entry and returns the new position.
func (m *Manager) Open(fill *types.Fill) (*types.Position, error) {
	if fill == nil || fill.Amount <= 0 || fill.Price <= 0 || math.IsNaN(fill.Price) {
		return nil, ErrInvalidFill
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	pos := &types.Position{
		ID:              uuid.NewString(),
		Token:           fill.Token,
		Venue:           fill.Venue,
		OpportunityID:   fill.OpportunityID,
		EntryPrice:      fill.Price,
		OriginalAmount:  fill.Amount,
		RemainingAmount: fill.Amount,
		Stages:          append([]types.TakeProfitStage(nil), m.policy.Stages...),
		Status:          types.PositionOpen,
		LastPrice:       fill.Price,
		OpenedAt:        now,
		UpdatedAt:       now,
	}
	for i := range pos.Stages {
		pos.Stages[i].Fired = false
	}
	if m.policy.TrailPercent > 0 {
		pos.Trailing = &types.TrailingStop{TrailPercent: m.policy.TrailPercent, HighWater: fill.Price}
	}
	if m.policy.StopLossPercent > 0 {
		pos.StopLossPrice = fill.Price * (1 - m.policy.StopLossPercent/100)
	}

	m.positions[pos.ID] = pos
	OpenPositions.Set(float64(len(m.positions)))

	m.logger.Info("position-opened",
		zap.String("position-id", pos.ID),
		zap.String("token", pos.Token.Hex()),
		zap.Float64("amount", pos.OriginalAmount),
		zap.Float64("entry-price", pos.EntryPrice),
		zap.Float64("stop-loss-price", pos.StopLossPrice))
	m.publishLocked(pos, types.PositionOpen, "opened")

	return clonePosition(pos), nil
}

// Tick evaluates a position against price and returns the exit orders to
// submit: at most one, and none while an earlier order is in flight.
func (m *Manager) Tick(id string, price float64) ([]*types.ExitOrder, error) {
	if price <= 0 || math.IsNaN(price) {
		return nil, fmt.Errorf("tick %s: invalid price %f", id, price)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[id]
	if !ok {
		return nil, fmt.Errorf("tick %s: %w", id, ErrUnknownPosition)
	}

	pos.LastPrice = price
	pos.UpdatedAt = m.now()
	if pos.Trailing != nil && price > pos.Trailing.HighWater {
		pos.Trailing.HighWater = price
	}

	if pos.PendingExit != "" || pos.Status.Terminal() {
		return nil, nil
	}

	order := m.evaluateLocked(pos, price)
	if order == nil {
		return nil, nil
	}

	pos.PendingExit = order.ID
	m.inflight[order.ID] = order
	ExitOrdersTotal.WithLabelValues(string(order.Reason)).Inc()

	m.logger.Info("exit-order-emitted",
		zap.String("position-id", pos.ID),
		zap.String("exit-id", order.ID),
		zap.String("reason", string(order.Reason)),
		zap.Float64("amount", order.Amount),
		zap.Float64("price", price),
		zap.Ints("stages", order.Stages))

	return []*types.ExitOrder{order}, nil
}

// evaluateLocked applies stop-loss, trailing stop and take-profit in that order.
func (m *Manager) evaluateLocked(pos *types.Position, price float64) *types.ExitOrder {
	if pos.RemainingAmount <= m.policy.Dust {
		return nil
	}

	if pos.StopLossPrice > 0 && price <= pos.StopLossPrice {
		return m.orderLocked(pos, pos.RemainingAmount, types.ExitStopLoss, nil, price)
	}

	if t := pos.Trailing; t != nil && price <= t.HighWater*(1-t.TrailPercent/100) {
		return m.orderLocked(pos, pos.RemainingAmount, types.ExitTrailingStop, nil, price)
	}

	var (
		percent float64
		crossed []int
	)
	for i, st := range pos.Stages {
		if !st.Fired && price >= pos.EntryPrice*st.Multiplier {
			percent += st.Percent
			crossed = append(crossed, i)
		}
	}
	if len(crossed) == 0 {
		return nil
	}

	for _, i := range crossed {
		pos.Stages[i].Fired = true
	}
	amount := math.Min(pos.OriginalAmount*percent/100, pos.RemainingAmount)
	return m.orderLocked(pos, amount, types.ExitTakeProfit, crossed, price)
}

func (m *Manager) orderLocked(pos *types.Position, amount float64, reason types.ExitReason, stages []int, price float64) *types.ExitOrder {
	return &types.ExitOrder{
		ID:           uuid.NewString(),
		PositionID:   pos.ID,
		Token:        pos.Token,
		Venue:        pos.Venue,
		Amount:       amount,
		Reason:       reason,
		Stages:       stages,
		TriggerPrice: price,
		CreatedAt:    m.now(),
	}
}

// OnExitConfirmed applies the terminal outcome of an exit order. A confirmed
// exit reduces the remainder and closes the position at zero. A failed exit
// re-arms the stages it covered and leaves the position open.
func (m *Manager) OnExitConfirmed(orderID string, result types.ExitResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.inflight[orderID]
	if !ok {
		return fmt.Errorf("exit %s: %w", orderID, ErrUnknownOrder)
	}
	delete(m.inflight, orderID)

	pos, ok := m.positions[order.PositionID]
	if !ok {
		return fmt.Errorf("exit %s: %w", orderID, ErrUnknownPosition)
	}
	pos.PendingExit = ""
	pos.UpdatedAt = m.now()
	from := pos.Status

	if !result.Confirmed {
		ExitFailuresTotal.Inc()
		pos.ExitFailures++
		for _, i := range order.Stages {
			pos.Stages[i].Fired = false
		}

		m.logger.Warn("exit-failed",
			zap.String("position-id", pos.ID),
			zap.String("exit-id", orderID),
			zap.Int("failures", pos.ExitFailures),
			zap.String("reason", result.Reason))

		if pos.ExitFailures >= m.policy.MaxExitFailures {
			pos.Status = types.PositionFailed
			m.archiveLocked(pos)
			m.publishLocked(pos, from, "exit failures: "+result.Reason)
		}
		return nil
	}

	filled := result.FilledAmount
	if filled <= 0 {
		filled = order.Amount
	}
	filled = math.Min(filled, pos.RemainingAmount)

	pos.RemainingAmount -= filled
	pos.RealizedProceeds += filled * result.Price
	pos.ExitFailures = 0

	if pos.RemainingAmount <= m.policy.Dust {
		pos.RemainingAmount = 0
		pos.Status = types.PositionClosed
		pos.ClosedAt = pos.UpdatedAt
		m.archiveLocked(pos)
	} else {
		pos.Status = types.PositionPartiallyClosed
	}

	m.logger.Info("exit-confirmed",
		zap.String("position-id", pos.ID),
		zap.String("exit-id", orderID),
		zap.Float64("filled", filled),
		zap.Float64("price", result.Price),
		zap.Float64("remaining", pos.RemainingAmount),
		zap.Float64("realized-proceeds", pos.RealizedProceeds))

	if pos.Status != from {
		m.publishLocked(pos, from, string(order.Reason))
	}
	return nil
}

func (m *Manager) archiveLocked(pos *types.Position) {
	delete(m.positions, pos.ID)
	m.archived = append(m.archived, pos)
	if len(m.archived) > archiveLimit {
		m.archived = m.archived[len(m.archived)-archiveLimit:]
	}
	OpenPositions.Set(float64(len(m.positions)))
}

func (m *Manager) publishLocked(pos *types.Position, from types.PositionStatus, reason string) {
	TransitionsTotal.WithLabelValues(pos.Status.String()).Inc()
	m.logger.Info("position-transition",
		zap.String("position-id", pos.ID),
		zap.String("from", from.String()),
		zap.String("to", pos.Status.String()),
		zap.String("reason", reason))

	if m.events == nil {
		return
	}
	m.events.Publish(events.TopicPositionTransition, types.PositionTransition{
		PositionID: pos.ID,
		Token:      pos.Token,
		From:       from,
		To:         pos.Status,
		Remaining:  pos.RemainingAmount,
		Reason:     reason,
		At:         pos.UpdatedAt,
	})
}

// Get returns a copy of a managed or archived position.
func (m *Manager) Get(id string) (*types.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pos, ok := m.positions[id]; ok {
		return clonePosition(pos), true
	}
	for _, pos := range m.archived {
		if pos.ID == id {
			return clonePosition(pos), true
		}
	}
	return nil, false
}

// Positions returns copies of every position not yet archived.
func (m *Manager) Positions() []*types.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.Position, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, clonePosition(pos))
	}
	return out
}

// Archived returns copies of recently CLOSED and FAILED positions, oldest first.
func (m *Manager) Archived() []*types.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.Position, len(m.archived))
	for i, pos := range m.archived {
		out[i] = clonePosition(pos)
	}
	return out
}

// Start starts the tick loop.
func (m *Manager) Start(ctx context.Context) error {
	if m.prices == nil {
		return types.NewFatalConfigError("position manager requires a price source", nil)
	}
	m.logger.Info("position-manager-starting", zap.Duration("poll-interval", m.pollInterval))

	m.wg.Add(1)
	go m.run(ctx)
	return nil
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("position-manager-stopping")
			return
		case <-ticker.C:
			m.tickAll(ctx)
		}
	}
}

// tickAll prices every open position and dispatches the resulting exits.
func (m *Manager) tickAll(ctx context.Context) {
	start := m.now()
	defer func() {
		TickDuration.Observe(time.Since(start).Seconds())
	}()

	for _, pos := range m.Positions() {
		if pos.PendingExit != "" {
			continue
		}

		price, err := m.price(ctx, pos)
		if err != nil {
			PriceErrorsTotal.Inc()
			m.logger.Debug("position-price-failed",
				zap.String("position-id", pos.ID),
				zap.Error(err))
			continue
		}

		orders, err := m.Tick(pos.ID, price)
		if err != nil {
			// archived between snapshot and tick
			continue
		}
		for _, order := range orders {
			m.dispatch(ctx, order)
		}
	}
}

func (m *Manager) price(ctx context.Context, pos *types.Position) (float64, error) {
	readCtx, cancel := context.WithTimeout(ctx, m.priceTimeout)
	defer cancel()
	return m.prices.Price(readCtx, pos.Token, pos.Venue)
}

// dispatch submits an exit without blocking the tick loop.
func (m *Manager) dispatch(ctx context.Context, order *types.ExitOrder) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		result := m.exits.ExecuteExit(ctx, order)
		err := m.OnExitConfirmed(order.ID, result)
		if err != nil {
			m.logger.Error("exit-result-unapplied",
				zap.String("exit-id", order.ID),
				zap.Error(err))
		}
	}()
}

// Close waits for the tick loop and in-flight exits to finish.
func (m *Manager) Close() error {
	m.logger.Info("closing-position-manager")
	m.wg.Wait()

	m.mu.Lock()
	open, archived := len(m.positions), len(m.archived)
	m.mu.Unlock()

	m.logger.Info("position-manager-closed",
		zap.Int("open", open),
		zap.Int("archived", archived))
	return nil
}

func clonePolicy(p Policy) Policy {
	p.Stages = append([]types.TakeProfitStage(nil), p.Stages...)
	return p
}

func clonePosition(p *types.Position) *types.Position {
	c := *p
	c.Stages = append([]types.TakeProfitStage(nil), p.Stages...)
	if p.Trailing != nil {
		t := *p.Trailing
		c.Trailing = &t
	}
	return &c
}
