package scoring

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/mempool-engine/pkg/types"
)

type classification struct {
	ok             bool
	kind           types.OpportunityKind
	targets        []*types.PendingIntent
	venues         []common.Address
	victimNotional float64 // base-asset size of the victim trade
	addedLiquidity float64 // base asset added by pending liquidity adds
	divergence     float64 // cross-venue price gap as an impact ratio
}

// classify picks the opportunity kind for a token's intents. Liquidity adds
// take precedence, then flow across venues, then the largest buy, then the
// largest sell.
func classify(intents []*types.PendingIntent) classification {
	var adds, buys, sells []*types.PendingIntent
	for _, in := range intents {
		switch in.Action.Kind {
		case types.ActionLiquidityAdd:
			adds = append(adds, in)
		case types.ActionSwapIn:
			buys = append(buys, in)
		case types.ActionSwapOut:
			sells = append(sells, in)
		case types.ActionUnknown:
		}
	}

	if len(adds) > 0 {
		c := classification{ok: true, kind: types.KindSnipe, targets: adds}
		for _, a := range adds {
			c.addedLiquidity += types.FromWei(a.Action.AmountIn)
		}
		c.venues = []common.Address{largest(adds, buyNotional).Venue}
		return c
	}

	swaps := append(append([]*types.PendingIntent{}, buys...), sells...)
	if c, ok := crossVenue(swaps); ok {
		return c
	}

	if len(buys) > 0 {
		victim := largest(buys, buyNotional)
		return classification{
			ok:             true,
			kind:           types.KindFrontrun, // promoted to sandwich once depth is known
			targets:        []*types.PendingIntent{victim},
			venues:         []common.Address{victim.Venue},
			victimNotional: buyNotional(victim),
		}
	}

	if len(sells) > 0 {
		victim := largest(sells, sellNotional)
		return classification{
			ok:             true,
			kind:           types.KindBackrun,
			targets:        []*types.PendingIntent{victim},
			venues:         []common.Address{victim.Venue},
			victimNotional: sellNotional(victim),
		}
	}

	return classification{}
}

// crossVenue groups swaps by venue. With flow on two or more venues the
// opportunity is to buy where net flow is weakest and sell where it is
// strongest. The divergence is filled in once depth is known.
func crossVenue(swaps []*types.PendingIntent) (classification, bool) {
	net := make(map[common.Address]float64)
	for _, in := range swaps {
		if in.IsBuy() {
			net[in.Venue] += buyNotional(in)
		} else {
			net[in.Venue] -= sellNotional(in)
		}
	}
	if len(net) < 2 {
		return classification{}, false
	}

	venues := make([]common.Address, 0, len(net))
	for v := range net {
		venues = append(venues, v)
	}
	sort.Slice(venues, func(i, j int) bool {
		if net[venues[i]] != net[venues[j]] {
			return net[venues[i]] < net[venues[j]]
		}
		return bytes.Compare(venues[i][:], venues[j][:]) < 0
	})

	low, high := venues[0], venues[len(venues)-1]
	return classification{
		ok:      true,
		kind:    types.KindCrossVenueArbitrage,
		targets: swaps,
		venues:  []common.Address{low, high},
		// gap in net flow between the two venues
		victimNotional: net[high] - net[low],
	}, true
}

// resolve finalizes depth-dependent classification: sandwich promotion and
// cross-venue divergence.
func (c classification) resolve(depth, sandwichThreshold float64) classification {
	switch c.kind {
	case types.KindFrontrun:
		if impact(c.victimNotional, depth) >= sandwichThreshold {
			c.kind = types.KindSandwich
		}
	case types.KindCrossVenueArbitrage:
		c.divergence = impact(c.victimNotional, depth)
	case types.KindSnipe, types.KindSandwich, types.KindBackrun:
	}
	return c
}

func largest(intents []*types.PendingIntent, size func(*types.PendingIntent) float64) *types.PendingIntent {
	best := intents[0]
	for _, in := range intents[1:] {
		if size(in) > size(best) {
			best = in
		}
	}
	return best
}

func buyNotional(in *types.PendingIntent) float64 {
	return types.FromWei(in.Action.AmountIn)
}

func sellNotional(in *types.PendingIntent) float64 {
	return types.FromWei(in.Action.MinAmountOut)
}
