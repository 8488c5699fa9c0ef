package execution

import (
	"math"

	"github.com/mselser95/mempool-engine/pkg/types"
)

// FeeSource quotes fees per urgency tier.
type FeeSource interface {
	Quote(urgency types.Urgency) types.FeeQuote
}

// pricing is the per-gas price of one submission attempt, in gwei.
type pricing struct {
	tipGwei    float64
	feeCapGwei float64
}

// selectStrategy picks the fee strategy for an urgency. Low-confidence quotes
// are capped at normal urgency and pay the flat floor tip.
func selectStrategy(urgency types.Urgency, q types.FeeQuote, aggressive float64) (types.FeeStrategy, types.Urgency) {
	if q.LowConfidence {
		return types.FeeStrategy{Kind: types.FeeFlat, FlatTipGwei: q.PriorityFeeGwei}, urgency.Cap(types.UrgencyNormal)
	}
	if urgency == types.UrgencyEmergency {
		return types.FeeStrategy{Kind: types.FeeAggressiveMultiplier, Multiplier: aggressive}, urgency
	}
	return types.FeeStrategy{Kind: types.FeeMatchPercentile, Percentile: urgency.TierPercentile()}, urgency
}

// tipFor evaluates a strategy against a quote.
func tipFor(s types.FeeStrategy, q types.FeeQuote) float64 {
	switch s.Kind {
	case types.FeeFlat:
		return s.FlatTipGwei
	case types.FeeAggressiveMultiplier:
		return q.PriorityFeeGwei * s.Multiplier
	case types.FeeMatchPercentile:
		if v, ok := q.Rung(s.Percentile); ok {
			return v
		}
		return q.PriorityFeeGwei
	}
	return q.PriorityFeeGwei
}

// ceilingGwei is the highest per-gas fee that keeps gasLimit within maxCost.
func ceilingGwei(maxCost float64, gasLimit uint64) float64 {
	if gasLimit == 0 {
		return 0
	}
	return maxCost / (float64(gasLimit) * 1e-9)
}

// priceWithin caps a tip and fee cap so that gasLimit times the fee cap never
// exceeds maxCost. It reports false when even the current base fee plus tip
// does not fit.
func priceWithin(baseGwei, tipGwei, maxCost float64, gasLimit uint64) (pricing, bool) {
	ceiling := ceilingGwei(maxCost, gasLimit)
	feeCap := math.Min(2*baseGwei+tipGwei, ceiling)
	tip := math.Min(tipGwei, feeCap)

	if baseGwei+tipGwei > ceiling || feeCap <= baseGwei {
		return pricing{tipGwei: tip, feeCapGwei: feeCap}, false
	}
	return pricing{tipGwei: tip, feeCapGwei: feeCap}, true
}

// escalate raises the price for a retry from a fresh quote. The new tip is the
// larger of the strategy's fresh tip and the previous tip times mult, bounded
// by the cost ceiling. When the previous attempt went to the public mempool
// the new price must clear the replacement bump, otherwise false is returned.
func escalate(prev pricing, fresh types.FeeQuote, s types.FeeStrategy, mult, maxCost float64, gasLimit uint64, replacing bool) (pricing, bool) {
	tip := math.Max(tipFor(s, fresh), prev.tipGwei*mult)
	ceiling := ceilingGwei(maxCost, gasLimit)
	feeCap := math.Min(math.Max(2*fresh.BaseFeeGwei+tip, prev.feeCapGwei*mult), ceiling)
	tip = math.Min(tip, feeCap)

	next := pricing{tipGwei: tip, feeCapGwei: feeCap}
	if feeCap <= fresh.BaseFeeGwei {
		return next, false
	}
	if replacing && (tip < prev.tipGwei*replacementBump || feeCap < prev.feeCapGwei*replacementBump) {
		return next, false
	}
	if !replacing && tip <= prev.tipGwei && feeCap <= prev.feeCapGwei {
		return next, false
	}
	return next, true
}

// replacementBump is the minimum price increase nodes accept for a same-nonce replacement.
const replacementBump = 1.1
