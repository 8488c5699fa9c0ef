package scoring

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/mselser95/mempool-engine/internal/storage"
	"github.com/mselser95/mempool-engine/pkg/types"
	"go.uber.org/zap"
)

// Disqualification and rejection reasons recorded in the audit log.
const (
	ReasonMissingReport = "missing-safety-report"
	ReasonSellFails     = "simulated-sell-fails"
	ReasonHoneypot      = "honeypot-suspected"
	ReasonLowLiquidity  = "liquidity-below-floor"
	ReasonConcentration = "holder-concentration-above-ceiling"
	ReasonTax           = "tax-above-ceiling"
	ReasonNoActionable  = "no-actionable-intent"
	ReasonUnprofitable  = "unprofitable"
	ReasonNoDepth       = "no-liquidity-depth"
	ReasonAccepted      = "accepted"
)

// FeeSource quotes fees per urgency tier.
type FeeSource interface {
	Quote(urgency types.Urgency) types.FeeQuote
}

// ManipulationSource returns the latest live manipulation score for a token.
type ManipulationSource interface {
	Score(token common.Address) (types.ManipulationScore, bool)
}

// Verdict is the outcome of evaluating one candidate.
type Verdict struct {
	Opportunity  *types.Opportunity // nil unless accepted
	Token        common.Address
	Reason       string
	Disqualified bool // a hard safety check failed
	Record       *types.AuditRecord
}

// Accepted reports whether an opportunity was produced.
func (v Verdict) Accepted() bool {
	return v.Opportunity != nil
}

// Dependencies holds the scorer's collaborators.
type Dependencies struct {
	Fees         FeeSource
	Manipulation ManipulationSource // optional
	Audit        storage.AuditLog
	BaseAsset    common.Address
	Logger       *zap.Logger
}

// Scorer turns a token's pending intents into at most one ranked opportunity.
type Scorer struct {
	mu  sync.RWMutex
	cfg Config

	seq       atomic.Uint64
	fees      FeeSource
	manip     ManipulationSource
	audit     storage.AuditLog
	baseAsset common.Address
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a new scorer.
func New(cfg Config, deps Dependencies) (*Scorer, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate scoring config: %w", err)
	}

	if deps.Fees == nil {
		return nil, types.NewFatalConfigError("scorer requires a fee source", nil)
	}
	if deps.Audit == nil {
		return nil, types.NewFatalConfigError("scorer requires an audit log", nil)
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scorer{
		cfg:       cfg,
		fees:      deps.Fees,
		manip:     deps.Manipulation,
		audit:     deps.Audit,
		baseAsset: deps.BaseAsset,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Reconfigure replaces the risk surface after validating it.
func (s *Scorer) Reconfigure(cfg Config) error {
	err := cfg.Validate()
	if err != nil {
		return fmt.Errorf("validate scoring config: %w", err)
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.logger.Info("scoring-reconfigured",
		zap.Float64("min-liquidity", cfg.MinLiquidity),
		zap.Float64("max-tax-pct", cfg.MaxTaxPct),
		zap.Float64("min-net-profit", cfg.MinNetProfit))
	return nil
}

// Config returns the active risk surface.
func (s *Scorer) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Score evaluates a candidate and returns the opportunity when accepted.
func (s *Scorer) Score(ctx context.Context, intents []*types.PendingIntent, report *types.TokenSafetyReport, prediction *float64) (*types.Opportunity, bool) {
	v := s.Evaluate(ctx, intents, report, prediction)
	return v.Opportunity, v.Accepted()
}

// Evaluate scores the pending intents of one token. Every evaluated candidate,
// accepted or not, is appended to the audit log.
func (s *Scorer) Evaluate(ctx context.Context, intents []*types.PendingIntent, report *types.TokenSafetyReport, prediction *float64) Verdict {
	if len(intents) == 0 {
		return Verdict{Reason: ReasonNoActionable}
	}

	cfg := s.Config()
	token := intents[0].Token()
	intents = forToken(token, intents)

	c := classify(intents)
	depth := 0.0
	if report != nil {
		depth = report.LiquidityDepth
	}
	if c.kind == types.KindSnipe {
		depth = math.Max(depth, c.addedLiquidity)
	}

	if reason, bad := hardFailure(cfg, report, depth); bad {
		DisqualifiedTotal.WithLabelValues(reason).Inc()
		return s.finish(ctx, Verdict{Token: token, Reason: reason, Disqualified: true}, c, intents, nil)
	}

	if !c.ok {
		return s.finish(ctx, Verdict{Token: token, Reason: ReasonNoActionable}, c, intents, nil)
	}

	if depth <= 0 {
		return s.finish(ctx, Verdict{Token: token, Reason: ReasonNoDepth}, c, intents, nil)
	}

	c = c.resolve(depth, cfg.SandwichImpactThreshold)
	opp := s.economics(cfg, c, token, depth, report, intents)
	opp.RiskFlags = s.softFlags(cfg, token, report, opp.RiskFlags)
	opp.Confidence = confidence(cfg, opp.GrossProfit, opp.NetProfit, prediction)
	opp.Prediction = prediction

	if opp.NetProfit <= cfg.MinNetProfit {
		return s.finish(ctx, Verdict{Token: token, Reason: ReasonUnprofitable}, c, intents, opp)
	}

	return s.finish(ctx, Verdict{Token: token, Reason: ReasonAccepted, Opportunity: opp}, c, intents, opp)
}

func (s *Scorer) finish(ctx context.Context, v Verdict, c classification, intents []*types.PendingIntent, opp *types.Opportunity) Verdict {
	now := s.now()
	seq := s.seq.Add(1)

	rec := &types.AuditRecord{
		ID:           uuid.NewString(),
		Seq:          seq,
		Token:        v.Token.Hex(),
		Kind:         "none",
		Accepted:     v.Opportunity != nil,
		Disqualified: v.Disqualified,
		Reason:       v.Reason,
		IntentCount:  len(intents),
		ObservedAt:   earliest(intents),
		ScoredAt:     now,
	}
	if c.ok {
		rec.Kind = c.kind.String()
	}
	for _, in := range intents {
		rec.TxHashes = append(rec.TxHashes, in.TxHash.Hex())
	}

	if opp != nil {
		rec.GrossProfit = opp.GrossProfit
		rec.EstimatedCost = opp.EstimatedCost
		rec.NetProfit = opp.NetProfit
		rec.Confidence = opp.Confidence
		for _, f := range opp.RiskFlags {
			rec.RiskFlags = append(rec.RiskFlags, string(f))
		}
	}

	if v.Opportunity != nil {
		v.Opportunity.ID = rec.ID
		v.Opportunity.Seq = seq
		v.Opportunity.ScoredAt = now
	}
	v.Record = rec

	err := s.audit.RecordCandidate(ctx, rec)
	if err != nil {
		AuditErrorsTotal.Inc()
		s.logger.Error("audit-record-failed",
			zap.String("token", rec.Token),
			zap.Uint64("seq", seq),
			zap.Error(err))
	}

	outcome := "rejected"
	switch {
	case v.Disqualified:
		outcome = "disqualified"
	case v.Opportunity != nil:
		outcome = "accepted"
	}
	CandidatesTotal.WithLabelValues(rec.Kind, outcome).Inc()

	if v.Opportunity != nil {
		NetProfit.Observe(v.Opportunity.NetProfit)
		ConfidenceScore.Observe(v.Opportunity.Confidence)
		s.logger.Info("opportunity-scored",
			zap.String("id", rec.ID),
			zap.Uint64("seq", seq),
			zap.String("token", rec.Token),
			zap.String("kind", rec.Kind),
			zap.Float64("net-profit", v.Opportunity.NetProfit),
			zap.Float64("confidence", v.Opportunity.Confidence),
			zap.Strings("risk-flags", rec.RiskFlags))
	} else {
		s.logger.Debug("candidate-rejected",
			zap.String("token", rec.Token),
			zap.String("kind", rec.Kind),
			zap.String("reason", v.Reason),
			zap.Bool("disqualified", v.Disqualified))
	}

	return v
}

// hardFailure applies the disqualifying safety checks in a fixed order.
func hardFailure(cfg Config, report *types.TokenSafetyReport, depth float64) (string, bool) {
	switch {
	case report == nil:
		return ReasonMissingReport, true
	case !report.SimulatedSellOK:
		return ReasonSellFails, true
	case report.HoneypotSuspected:
		return ReasonHoneypot, true
	case depth < cfg.MinLiquidity:
		return ReasonLowLiquidity, true
	case report.HolderConcentration > cfg.MaxHolderConcentration:
		return ReasonConcentration, true
	case math.Max(report.BuyTaxPct, report.SellTaxPct) > cfg.MaxTaxPct:
		return ReasonTax, true
	}
	return "", false
}

func (s *Scorer) softFlags(cfg Config, token common.Address, report *types.TokenSafetyReport, flags []types.RiskFlag) []types.RiskFlag {
	if !report.Verified {
		flags = append(flags, types.FlagUnverifiedContract)
	}
	if report.HolderConcentration >= cfg.HighConcentrationPct {
		flags = append(flags, types.FlagHighConcentrationHolder)
	}
	if math.Max(report.BuyTaxPct, report.SellTaxPct) >= cfg.HighTaxPct && cfg.HighTaxPct > 0 {
		flags = append(flags, types.FlagHighTax)
	}
	if s.manip != nil {
		if m, ok := s.manip.Score(token); ok && m.Score >= cfg.ManipulationFlagThreshold {
			flags = append(flags, types.FlagCoordinatedManipulation)
		}
	}
	return flags
}

// economics sizes the entry and estimates gross profit and costs on a
// constant-product pool of the given base-asset depth.
func (s *Scorer) economics(cfg Config, c classification, token common.Address, depth float64, report *types.TokenSafetyReport, intents []*types.PendingIntent) *types.Opportunity {
	size := math.Min(cfg.MaxTradeSize, cfg.MaxTradeFraction*depth)

	var gross float64
	switch c.kind {
	case types.KindSnipe:
		gross = size * cfg.SnipeExpectedReturn
	case types.KindCrossVenueArbitrage:
		gross = size * c.divergence * cfg.CaptureRatio
	case types.KindSandwich:
		gross = size * impact(c.victimNotional, depth)
	case types.KindFrontrun, types.KindBackrun:
		gross = size * impact(c.victimNotional, depth) * cfg.CaptureRatio
	}

	competition := competitors(intents)
	urgency := c.kind.Urgency(competition, cfg.ArbCompetitionThreshold)
	quote := s.fees.Quote(urgency)

	legs := c.kind.TxCount()
	fee := types.GasCost(uint64(legs)*cfg.GasUnitsPerTx, quote.BaseFeeGwei+quote.PriorityFeeGwei)
	slippage := float64(legs) * size * size / (depth + size)
	taxes := size * (report.BuyTaxPct + report.SellTaxPct) / 100
	cost := fee + slippage + taxes

	var expectedTokens float64
	if report.SpotPrice > 0 {
		expectedTokens = size * (1 - size/(depth+size)) * (1 - report.BuyTaxPct/100) / report.SpotPrice
	}

	var flags []types.RiskFlag
	if quote.LowConfidence {
		flags = append(flags, types.FlagLowConfidenceFee)
	}

	return &types.Opportunity{
		Kind:              c.kind,
		Token:             token,
		BaseAsset:         s.baseAsset,
		Venues:            c.venues,
		TradeSize:         size,
		ExpectedTokens:    expectedTokens,
		GrossProfit:       gross,
		EstimatedFee:      fee,
		EstimatedSlippage: slippage,
		EstimatedCost:     cost,
		NetProfit:         gross - cost,
		RiskFlags:         flags,
		Competition:       competition,
		Targets:           c.targets,
		ObservedAt:        observedAt(c.targets),
	}
}

// confidence blends the profit margin with the model probability.
func confidence(cfg Config, gross, net float64, prediction *float64) float64 {
	margin := 0.0
	if gross > 0 {
		margin = clamp01(net / gross)
	}

	if prediction == nil {
		return clamp01(margin * cfg.NoPredictionFactor)
	}

	total := cfg.MarginWeight + cfg.PredictionWeight
	return clamp01((cfg.MarginWeight*margin + cfg.PredictionWeight*clamp01(*prediction)) / total)
}

// impact is the share of a pool's price a trade of size v moves.
func impact(v, depth float64) float64 {
	if v <= 0 || depth+v <= 0 {
		return 0
	}
	return v / (depth + v)
}

func competitors(intents []*types.PendingIntent) int {
	senders := make(map[common.Address]struct{}, len(intents))
	for _, in := range intents {
		senders[in.Sender] = struct{}{}
	}
	return len(senders)
}

func forToken(token common.Address, intents []*types.PendingIntent) []*types.PendingIntent {
	for _, in := range intents {
		if in.Token() != token {
			out := make([]*types.PendingIntent, 0, len(intents))
			for _, x := range intents {
				if x.Token() == token {
					out = append(out, x)
				}
			}
			return out
		}
	}
	return intents
}

func earliest(intents []*types.PendingIntent) time.Time {
	var t time.Time
	for _, in := range intents {
		if t.IsZero() || (!in.ObservedAt.IsZero() && in.ObservedAt.Before(t)) {
			t = in.ObservedAt
		}
	}
	return t
}

func observedAt(targets []*types.PendingIntent) time.Time {
	return earliest(targets)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
