package execution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/mselser95/mempool-engine/pkg/types"
	"github.com/mselser95/mempool-engine/pkg/wallet"
	"go.uber.org/zap"
)

var (
	// ErrDisqualified is returned for an opportunity carrying a hard risk flag.
	ErrDisqualified = errors.New("opportunity carries a disqualifying risk flag")
	// ErrCostCeiling is returned when the initial fee already exceeds the plan's cost ceiling.
	ErrCostCeiling = errors.New("initial fee exceeds cost ceiling")
	// ErrMissingSigner is returned when no signing capability is configured.
	ErrMissingSigner = errors.New("no signing capability")
	// ErrNoFeeSource is returned when no fee data source is configured.
	ErrNoFeeSource = errors.New("no fee data source")
)

// PlannerConfig holds planner configuration.
type PlannerConfig struct {
	KeyHandle               string
	BaseAsset               common.Address // wrapped native, first hop of every path
	GasLimit                uint64         // per own transaction
	AggressiveMultiplier    float64
	ArbCompetitionThreshold int
	RelayEnabled            bool
	RelayMinValue           float64
	MaxCost                 float64
	MaxCostFraction         float64 // of gross profit
	ExitMaxCost             float64
	SwapDeadline            time.Duration
	EntrySlippagePct        float64
	ExitSlippagePct         float64
	Logger                  *zap.Logger
}

// Planner turns accepted opportunities and exit orders into execution plans.
type Planner struct {
	cfg     PlannerConfig
	fees    FeeSource
	nonces  *NonceManager
	signer  common.Address
	builder *txBuilder
	logger  *zap.Logger
	now     func() time.Time
}

// NewPlanner creates a planner. A missing signer or fee source is a fatal
// configuration error.
func NewPlanner(cfg PlannerConfig, fees FeeSource, signer wallet.Signer, nonces *NonceManager) (*Planner, error) {
	if signer == nil {
		return nil, types.NewFatalConfigError("planner requires a signer", ErrMissingSigner)
	}
	if fees == nil {
		return nil, types.NewFatalConfigError("planner requires fee data", ErrNoFeeSource)
	}
	if nonces == nil {
		return nil, types.NewFatalConfigError("planner requires a nonce manager", nil)
	}

	addr, err := signer.Address(cfg.KeyHandle)
	if err != nil {
		return nil, types.NewFatalConfigError(fmt.Sprintf("signer has no key %q", cfg.KeyHandle), errors.Join(ErrMissingSigner, err))
	}

	if cfg.GasLimit == 0 {
		cfg.GasLimit = 250_000
	}
	if cfg.AggressiveMultiplier < 1 {
		cfg.AggressiveMultiplier = 1
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Planner{
		cfg:    cfg,
		fees:   fees,
		nonces: nonces,
		signer: addr,
		logger: logger,
		now:    time.Now,
	}
	p.builder = &txBuilder{
		base:          cfg.BaseAsset,
		gasLimit:      cfg.GasLimit,
		deadline:      cfg.SwapDeadline,
		entrySlippage: cfg.EntrySlippagePct,
		exitSlippage:  cfg.ExitSlippagePct,
		now:           func() time.Time { return p.now() },
	}
	return p, nil
}

// Signer returns the account plans are signed by.
func (p *Planner) Signer() common.Address {
	return p.signer
}

// Plan builds an entry plan for an accepted opportunity.
func (p *Planner) Plan(ctx context.Context, opp *types.Opportunity) (*types.ExecutionPlan, error) {
	if opp.HasHardFlag() {
		PlanFailuresTotal.WithLabelValues("disqualified").Inc()
		return nil, fmt.Errorf("plan %s: %w", opp.ID, ErrDisqualified)
	}

	urgency := opp.Kind.Urgency(opp.Competition, p.cfg.ArbCompetitionThreshold)
	maxCost := math.Min(p.cfg.MaxCost, opp.GrossProfit*p.cfg.MaxCostFraction)

	plan := &types.ExecutionPlan{
		ID:             uuid.NewString(),
		Purpose:        types.PurposeEntry,
		OpportunityID:  opp.ID,
		Kind:           opp.Kind,
		Token:          opp.Token,
		Signer:         p.signer,
		KeyHandle:      p.cfg.KeyHandle,
		MaxCost:        maxCost,
		EstimatedValue: opp.GrossProfit,
		TradeSize:      opp.TradeSize,
		ExpectedTokens: opp.ExpectedTokens,
		State:          types.StatePlanned,
		CreatedAt:      p.now(),
	}
	if len(opp.Venues) > 0 {
		plan.Venue = opp.Venues[0]
	}

	err := p.price(plan, urgency, opp.Kind.TxCount())
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", opp.ID, err)
	}

	first, err := p.nonces.Reserve(ctx, p.signer, opp.Kind.TxCount())
	if err != nil {
		PlanFailuresTotal.WithLabelValues("nonce").Inc()
		return nil, fmt.Errorf("plan %s: %w", opp.ID, err)
	}

	txs, slots, err := p.builder.entry(opp, p.signer, first)
	if err != nil {
		p.nonces.Resync(p.signer)
		PlanFailuresTotal.WithLabelValues("build").Inc()
		return nil, fmt.Errorf("plan %s: %w", opp.ID, err)
	}
	plan.Txs = txs
	plan.Channel = p.channel(plan.EstimatedValue, slots)
	if plan.Channel == types.ChannelPrivateBundle {
		plan.Bundle = slots
	}

	p.created(plan)
	return plan, nil
}

// PlanExit builds a sell plan for an exit order. Stop-loss exits use emergency urgency.
func (p *Planner) PlanExit(ctx context.Context, order *types.ExitOrder) (*types.ExecutionPlan, error) {
	if order.Amount <= 0 {
		PlanFailuresTotal.WithLabelValues("empty-exit").Inc()
		return nil, fmt.Errorf("exit %s: non-positive amount %f", order.ID, order.Amount)
	}

	urgency := types.UrgencyNormal
	if order.Reason == types.ExitStopLoss {
		urgency = types.UrgencyEmergency
	}

	plan := &types.ExecutionPlan{
		ID:             uuid.NewString(),
		Purpose:        types.PurposeExit,
		ExitOrderID:    order.ID,
		PositionID:     order.PositionID,
		Token:          order.Token,
		Venue:          order.Venue,
		Signer:         p.signer,
		KeyHandle:      p.cfg.KeyHandle,
		MaxCost:        p.cfg.ExitMaxCost,
		EstimatedValue: order.Amount * order.TriggerPrice,
		TradeSize:      order.Amount,
		State:          types.StatePlanned,
		CreatedAt:      p.now(),
	}

	err := p.price(plan, urgency, 1)
	if err != nil {
		return nil, fmt.Errorf("exit %s: %w", order.ID, err)
	}

	nonce, err := p.nonces.Reserve(ctx, p.signer, 1)
	if err != nil {
		PlanFailuresTotal.WithLabelValues("nonce").Inc()
		return nil, fmt.Errorf("exit %s: %w", order.ID, err)
	}

	tx, err := p.builder.exit(order, p.signer, nonce)
	if err != nil {
		p.nonces.Resync(p.signer)
		PlanFailuresTotal.WithLabelValues("build").Inc()
		return nil, fmt.Errorf("exit %s: %w", order.ID, err)
	}
	plan.Txs = []types.PlannedTx{tx}
	slots := []types.BundleSlot{{Own: 0, Label: "exit"}}
	plan.Channel = p.channel(plan.EstimatedValue, slots)
	if plan.Channel == types.ChannelPrivateBundle {
		plan.Bundle = slots
	}

	p.created(plan)
	return plan, nil
}

// price quotes the urgency, picks the strategy and checks the initial fee
// against the cost ceiling.
func (p *Planner) price(plan *types.ExecutionPlan, urgency types.Urgency, txCount int) error {
	quote := p.fees.Quote(urgency)
	strategy, urgency := selectStrategy(urgency, quote, p.cfg.AggressiveMultiplier)

	gasLimit := uint64(txCount) * p.cfg.GasLimit
	tip := tipFor(strategy, quote)
	pr, ok := priceWithin(quote.BaseFeeGwei, tip, plan.MaxCost, gasLimit)
	if !ok || plan.MaxCost <= 0 {
		PlanFailuresTotal.WithLabelValues("cost-ceiling").Inc()
		return fmt.Errorf("%w: fee %.6f > ceiling %.6f", ErrCostCeiling, types.GasCost(gasLimit, quote.BaseFeeGwei+tip), plan.MaxCost)
	}

	plan.Urgency = urgency
	plan.FeeStrategy = strategy
	plan.BaseFeeGwei = quote.BaseFeeGwei
	plan.InitialTipGwei = pr.tipGwei
	plan.FeeCapGwei = pr.feeCapGwei
	plan.EstimatedCost = types.GasCost(gasLimit, quote.BaseFeeGwei+pr.tipGwei)
	return nil
}

func (p *Planner) channel(value float64, slots []types.BundleSlot) types.Channel {
	if p.cfg.RelayEnabled && value >= p.cfg.RelayMinValue && bundleable(slots) {
		return types.ChannelPrivateBundle
	}
	return types.ChannelPublic
}

func (p *Planner) created(plan *types.ExecutionPlan) {
	PlansTotal.WithLabelValues(plan.Purpose.String(), plan.Kind.String(), plan.Channel.String()).Inc()
	p.logger.Info("plan-created",
		zap.String("plan-id", plan.ID),
		zap.String("purpose", plan.Purpose.String()),
		zap.String("kind", plan.Kind.String()),
		zap.String("token", plan.Token.Hex()),
		zap.String("urgency", plan.Urgency.String()),
		zap.String("fee-strategy", plan.FeeStrategy.Kind.String()),
		zap.String("channel", plan.Channel.String()),
		zap.Float64("tip-gwei", plan.InitialTipGwei),
		zap.Float64("max-cost", plan.MaxCost),
		zap.Uint64("first-nonce", plan.Txs[0].Nonce))
}
