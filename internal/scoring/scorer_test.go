package scoring

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/mempool-engine/internal/storage"
	"github.com/mselser95/mempool-engine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	token  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	weth   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	venueA = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	venueB = common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F")
)

type fixedFees struct {
	base          float64
	tip           float64
	lowConfidence bool
	lastUrgency   types.Urgency
	mu            sync.Mutex
}

func (f *fixedFees) Quote(u types.Urgency) types.FeeQuote {
	f.mu.Lock()
	f.lastUrgency = u
	f.mu.Unlock()
	return types.FeeQuote{Urgency: u, BaseFeeGwei: f.base, PriorityFeeGwei: f.tip, LowConfidence: f.lowConfidence}
}

type fixedManipulation struct {
	score float64
}

func (m fixedManipulation) Score(tok common.Address) (types.ManipulationScore, bool) {
	return types.ManipulationScore{Token: tok, Score: m.score}, m.score > 0
}

func testConfig() Config {
	return Config{
		MinLiquidity:              5,
		MaxHolderConcentration:    30,
		MaxTaxPct:                 15,
		HighTaxPct:                5,
		HighConcentrationPct:      20,
		ManipulationFlagThreshold: 0.6,
		SandwichImpactThreshold:   0.02,
		MaxTradeSize:              1,
		MaxTradeFraction:          0.02,
		SnipeExpectedReturn:       0.25,
		CaptureRatio:              0.5,
		GasUnitsPerTx:             250_000,
		MinNetProfit:              0.001,
		MarginWeight:              0.6,
		PredictionWeight:          0.4,
		NoPredictionFactor:        0.8,
		ArbCompetitionThreshold:   3,
	}
}

func safeReport(depth float64) *types.TokenSafetyReport {
	return &types.TokenSafetyReport{
		Token:               token,
		LiquidityDepth:      depth,
		HolderConcentration: 10,
		SimulatedSellOK:     true,
		Verified:            true,
		SpotPrice:           0.001,
	}
}

func buy(hash byte, venue common.Address, amount float64) *types.PendingIntent {
	return &types.PendingIntent{
		TxHash:     common.Hash{hash},
		Sender:     common.Address{hash},
		Venue:      venue,
		ObservedAt: time.Unix(1700000000, int64(hash)),
		Action:     types.Action{Kind: types.ActionSwapIn, TokenIn: weth, TokenOut: token, AmountIn: types.ToWei(amount)},
	}
}

func sell(hash byte, venue common.Address, amount float64) *types.PendingIntent {
	return &types.PendingIntent{
		TxHash:     common.Hash{hash},
		Sender:     common.Address{hash},
		Venue:      venue,
		ObservedAt: time.Unix(1700000000, int64(hash)),
		Action:     types.Action{Kind: types.ActionSwapOut, TokenIn: token, TokenOut: weth, AmountIn: types.ToWei(1), MinAmountOut: types.ToWei(amount)},
	}
}

func addLiquidity(hash byte, amount float64) *types.PendingIntent {
	return &types.PendingIntent{
		TxHash:     common.Hash{hash},
		Sender:     common.Address{hash},
		Venue:      venueA,
		ObservedAt: time.Unix(1700000000, int64(hash)),
		Action:     types.Action{Kind: types.ActionLiquidityAdd, TokenIn: weth, TokenOut: token, AmountIn: types.ToWei(amount)},
	}
}

func newTestScorer(t *testing.T, cfg Config, fees *fixedFees, manip ManipulationSource) (*Scorer, *storage.MemoryStorage) {
	t.Helper()

	audit := storage.NewMemoryStorage(100)
	s, err := New(cfg, Dependencies{
		Fees:         fees,
		Manipulation: manip,
		Audit:        audit,
		BaseAsset:    weth,
		Logger:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return s, audit
}

func TestNew_MissingCollaboratorIsFatal(t *testing.T) {
	_, err := New(testConfig(), Dependencies{Audit: storage.NewMemoryStorage(1)})
	require.Error(t, err)

	var engineErr *types.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.True(t, engineErr.Fatal())
}

func TestEvaluate_HardFailuresShortCircuit(t *testing.T) {
	tests := []struct {
		name   string
		report func() *types.TokenSafetyReport
		reason string
	}{
		{name: "missing-report", report: func() *types.TokenSafetyReport { return nil }, reason: ReasonMissingReport},
		{
			name: "sell-simulation-before-honeypot",
			report: func() *types.TokenSafetyReport {
				r := safeReport(100)
				r.SimulatedSellOK = false
				r.HoneypotSuspected = true
				return r
			},
			reason: ReasonSellFails,
		},
		{
			name: "honeypot",
			report: func() *types.TokenSafetyReport {
				r := safeReport(100)
				r.HoneypotSuspected = true
				return r
			},
			reason: ReasonHoneypot,
		},
		{name: "liquidity-floor", report: func() *types.TokenSafetyReport { return safeReport(1) }, reason: ReasonLowLiquidity},
		{
			name: "concentration-ceiling",
			report: func() *types.TokenSafetyReport {
				r := safeReport(100)
				r.HolderConcentration = 45
				return r
			},
			reason: ReasonConcentration,
		},
		{
			name: "tax-ceiling",
			report: func() *types.TokenSafetyReport {
				r := safeReport(100)
				r.SellTaxPct = 20
				return r
			},
			reason: ReasonTax,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, audit := newTestScorer(t, testConfig(), &fixedFees{base: 10, tip: 2}, nil)

			v := s.Evaluate(context.Background(), []*types.PendingIntent{buy(1, venueA, 10)}, tt.report(), nil)

			assert.False(t, v.Accepted())
			assert.True(t, v.Disqualified)
			assert.Equal(t, tt.reason, v.Reason)

			records := audit.Candidates()
			require.Len(t, records, 1)
			assert.True(t, records[0].Disqualified)
			assert.Equal(t, 0.0, records[0].GrossProfit, "no economics computed")
		})
	}
}

func TestEvaluate_SandwichLargeVictim(t *testing.T) {
	fees := &fixedFees{base: 10, tip: 2}
	s, _ := newTestScorer(t, testConfig(), fees, nil)

	v := s.Evaluate(context.Background(), []*types.PendingIntent{buy(1, venueA, 10)}, safeReport(100), nil)
	require.True(t, v.Accepted(), v.Reason)

	opp := v.Opportunity
	assert.Equal(t, types.KindSandwich, opp.Kind)
	assert.Equal(t, types.UrgencyEmergency, fees.lastUrgency)
	assert.InDelta(t, 1.0, opp.TradeSize, 1e-9)
	assert.InDelta(t, 10.0/110.0, opp.GrossProfit, 1e-9)
	assert.InDelta(t, 0.006, opp.EstimatedFee, 1e-9)
	assert.InDelta(t, 2.0/101.0, opp.EstimatedSlippage, 1e-9)
	assert.InDelta(t, opp.GrossProfit-opp.EstimatedCost, opp.NetProfit, 1e-12)
	assert.InDelta(t, opp.NetProfit/opp.GrossProfit*0.8, opp.Confidence, 1e-9)
	assert.Equal(t, []common.Address{venueA}, opp.Venues)
	require.Len(t, opp.Targets, 1)
	assert.Greater(t, opp.ExpectedTokens, 0.0)
	assert.NotEmpty(t, opp.ID)
	assert.Equal(t, uint64(1), opp.Seq)
}

func TestEvaluate_FrontrunBelowSandwichThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.SandwichImpactThreshold = 0.5
	s, _ := newTestScorer(t, cfg, &fixedFees{base: 10, tip: 2}, nil)

	v := s.Evaluate(context.Background(), []*types.PendingIntent{buy(1, venueA, 2), buy(2, venueA, 10)}, safeReport(100), nil)
	require.True(t, v.Accepted(), v.Reason)

	assert.Equal(t, types.KindFrontrun, v.Opportunity.Kind)
	assert.Equal(t, common.Hash{2}, v.Opportunity.Targets[0].TxHash, "largest buy is the victim")
	assert.InDelta(t, 10.0/110.0*0.5, v.Opportunity.GrossProfit, 1e-9)
	assert.Equal(t, 2, v.Opportunity.Competition)
}

func TestEvaluate_BackrunOnLargeSell(t *testing.T) {
	fees := &fixedFees{base: 10, tip: 2}
	s, _ := newTestScorer(t, testConfig(), fees, nil)

	v := s.Evaluate(context.Background(), []*types.PendingIntent{sell(1, venueA, 10)}, safeReport(100), nil)
	require.True(t, v.Accepted(), v.Reason)

	assert.Equal(t, types.KindBackrun, v.Opportunity.Kind)
	assert.Equal(t, types.UrgencyNormal, fees.lastUrgency)
}

func TestEvaluate_SnipeUsesPendingLiquidity(t *testing.T) {
	fees := &fixedFees{base: 10, tip: 2}
	s, _ := newTestScorer(t, testConfig(), fees, nil)

	report := safeReport(0)
	v := s.Evaluate(context.Background(), []*types.PendingIntent{addLiquidity(1, 50), buy(2, venueA, 3)}, report, nil)
	require.True(t, v.Accepted(), v.Reason)

	opp := v.Opportunity
	assert.Equal(t, types.KindSnipe, opp.Kind)
	assert.Equal(t, types.UrgencyPriority, fees.lastUrgency)
	assert.InDelta(t, 1.0, opp.TradeSize, 1e-9)
	assert.InDelta(t, 0.25, opp.GrossProfit, 1e-9)
	assert.Equal(t, common.Hash{1}, opp.Targets[0].TxHash)
}

func TestEvaluate_CrossVenueArbitrage(t *testing.T) {
	s, _ := newTestScorer(t, testConfig(), &fixedFees{base: 10, tip: 2}, nil)

	v := s.Evaluate(context.Background(), []*types.PendingIntent{buy(1, venueA, 10), sell(2, venueB, 10)}, safeReport(100), nil)
	require.True(t, v.Accepted(), v.Reason)

	opp := v.Opportunity
	assert.Equal(t, types.KindCrossVenueArbitrage, opp.Kind)
	assert.Equal(t, []common.Address{venueB, venueA}, opp.Venues, "buy on the weak venue, sell on the strong one")
	assert.InDelta(t, 20.0/120.0*0.5, opp.GrossProfit, 1e-9)
	assert.Len(t, opp.Targets, 2)
}

func TestEvaluate_UnprofitableIsAuditedNotDisqualified(t *testing.T) {
	s, audit := newTestScorer(t, testConfig(), &fixedFees{base: 10, tip: 2}, nil)

	v := s.Evaluate(context.Background(), []*types.PendingIntent{buy(1, venueA, 0.01)}, safeReport(100), nil)

	assert.False(t, v.Accepted())
	assert.False(t, v.Disqualified)
	assert.Equal(t, ReasonUnprofitable, v.Reason)

	records := audit.Candidates()
	require.Len(t, records, 1)
	assert.Equal(t, ReasonUnprofitable, records[0].Reason)
	assert.Less(t, records[0].NetProfit, 0.0)
}

func TestEvaluate_SoftFlags(t *testing.T) {
	s, _ := newTestScorer(t, testConfig(), &fixedFees{base: 10, tip: 2, lowConfidence: true}, fixedManipulation{score: 0.9})

	report := safeReport(100)
	report.Verified = false
	report.BuyTaxPct = 6
	report.HolderConcentration = 25

	v := s.Evaluate(context.Background(), []*types.PendingIntent{buy(1, venueA, 10)}, report, nil)
	require.True(t, v.Accepted(), v.Reason)

	assert.ElementsMatch(t, []types.RiskFlag{
		types.FlagLowConfidenceFee,
		types.FlagUnverifiedContract,
		types.FlagHighConcentrationHolder,
		types.FlagHighTax,
		types.FlagCoordinatedManipulation,
	}, v.Opportunity.RiskFlags)
	assert.False(t, v.Opportunity.HasHardFlag())
	assert.Len(t, v.Record.RiskFlags, 5)
}

func TestEvaluate_ConfidenceWithPrediction(t *testing.T) {
	s, _ := newTestScorer(t, testConfig(), &fixedFees{base: 10, tip: 2}, nil)

	p := 1.0
	v := s.Evaluate(context.Background(), []*types.PendingIntent{buy(1, venueA, 10)}, safeReport(100), &p)
	require.True(t, v.Accepted(), v.Reason)

	opp := v.Opportunity
	margin := opp.NetProfit / opp.GrossProfit
	assert.InDelta(t, 0.6*margin+0.4, opp.Confidence, 1e-9)
	require.NotNil(t, opp.Prediction)
	assert.LessOrEqual(t, opp.Confidence, 1.0)
}

func TestEvaluate_EveryCandidateAuditedWithIncreasingSeq(t *testing.T) {
	s, audit := newTestScorer(t, testConfig(), &fixedFees{base: 10, tip: 2}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			report := safeReport(100)
			if n%2 == 0 {
				report = nil
			}
			s.Evaluate(context.Background(), []*types.PendingIntent{buy(byte(n+1), venueA, 10)}, report, nil)
		}(i)
	}
	wg.Wait()

	records := audit.Candidates()
	require.Len(t, records, 20)

	seen := make(map[uint64]bool)
	accepted := 0
	for _, r := range records {
		assert.False(t, seen[r.Seq], "duplicate seq %d", r.Seq)
		seen[r.Seq] = true
		if r.Accepted {
			accepted++
		}
	}
	assert.Equal(t, 10, accepted)
}

func TestEvaluate_EmptyIntentsNotAudited(t *testing.T) {
	s, audit := newTestScorer(t, testConfig(), &fixedFees{base: 10, tip: 2}, nil)

	_, ok := s.Score(context.Background(), nil, safeReport(100), nil)
	assert.False(t, ok)
	assert.Empty(t, audit.Candidates())
}

func TestReconfigure(t *testing.T) {
	s, _ := newTestScorer(t, testConfig(), &fixedFees{base: 10, tip: 2}, nil)

	bad := testConfig()
	bad.MaxTradeFraction = 0
	require.Error(t, s.Reconfigure(bad))
	assert.Equal(t, 0.02, s.Config().MaxTradeFraction, "invalid surface not applied")

	good := testConfig()
	good.MinLiquidity = 500
	require.NoError(t, s.Reconfigure(good))

	v := s.Evaluate(context.Background(), []*types.PendingIntent{buy(1, venueA, 10)}, safeReport(100), nil)
	assert.Equal(t, ReasonLowLiquidity, v.Reason)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "negative-liquidity", mutate: func(c *Config) { c.MinLiquidity = -1 }},
		{name: "flag-above-ceiling", mutate: func(c *Config) { c.HighTaxPct = 20 }},
		{name: "zero-gas", mutate: func(c *Config) { c.GasUnitsPerTx = 0 }},
		{name: "no-weights", mutate: func(c *Config) { c.MarginWeight, c.PredictionWeight = 0, 0 }},
		{name: "capture-above-one", mutate: func(c *Config) { c.CaptureRatio = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := testConfig()
	assert.NoError(t, cfg.Validate())
}
