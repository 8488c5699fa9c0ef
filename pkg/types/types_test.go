package types

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBetter_TieBreakChain(t *testing.T) {
	now := time.Now()

	base := func() *Opportunity {
		return &Opportunity{
			Kind:       KindFrontrun,
			NetProfit:  1,
			Confidence: 0.5,
			ObservedAt: now,
			Seq:        10,
		}
	}

	tests := []struct {
		name   string
		mutate func(a, b *Opportunity)
		want   bool
	}{
		{
			name: "fewer-risk-flags-wins",
			mutate: func(a, b *Opportunity) {
				b.RiskFlags = []RiskFlag{FlagUnverifiedContract}
				a.Confidence = 0.1
			},
			want: true,
		},
		{
			name: "higher-confidence-wins",
			mutate: func(a, b *Opportunity) {
				a.Confidence = 0.9
				a.ObservedAt = now.Add(time.Second)
			},
			want: true,
		},
		{
			name: "earlier-observation-wins",
			mutate: func(a, b *Opportunity) {
				b.ObservedAt = now.Add(time.Millisecond)
				a.Seq = 99
			},
			want: true,
		},
		{
			name: "lower-seq-wins-on-full-tie",
			mutate: func(a, b *Opportunity) {
				a.Seq = 11
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := base(), base()
			tt.mutate(a, b)
			assert.Equal(t, tt.want, Better(a, b))
			if a.Seq != b.Seq || tt.want {
				assert.Equal(t, !tt.want, Better(b, a))
			}
		})
	}
}

func TestBetter_AcrossKindsUsesExpectedValue(t *testing.T) {
	snipe := &Opportunity{Kind: KindSnipe, NetProfit: 2, Confidence: 0.5}
	arb := &Opportunity{Kind: KindCrossVenueArbitrage, NetProfit: 1, Confidence: 0.9, RiskFlags: nil}
	snipe.RiskFlags = []RiskFlag{FlagHighTax, FlagUnverifiedContract}

	assert.True(t, Better(snipe, arb), "expected value 1.0 beats 0.9 despite more flags")
}

func TestOpportunity_HasHardFlag(t *testing.T) {
	opp := &Opportunity{RiskFlags: []RiskFlag{FlagUnverifiedContract, FlagHighTax}}
	assert.False(t, opp.HasHardFlag())

	opp.RiskFlags = append(opp.RiskFlags, FlagSimulatedSellFails)
	assert.True(t, opp.HasHardFlag())
	assert.True(t, FlagHoneypotSuspected.Hard())
}

func TestOpportunityKind_Urgency(t *testing.T) {
	assert.Equal(t, UrgencyEmergency, KindFrontrun.Urgency(0, 3))
	assert.Equal(t, UrgencyEmergency, KindSandwich.Urgency(0, 3))
	assert.Equal(t, UrgencyPriority, KindSnipe.Urgency(0, 3))
	assert.Equal(t, UrgencyNormal, KindCrossVenueArbitrage.Urgency(2, 3))
	assert.Equal(t, UrgencyPriority, KindCrossVenueArbitrage.Urgency(3, 3))
	assert.Equal(t, UrgencyNormal, KindBackrun.Urgency(10, 3))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatePlanned, StateSubmitted))
	assert.True(t, CanTransition(StateSubmitted, StateExpired))
	assert.True(t, CanTransition(StateExpired, StateRetry))
	assert.True(t, CanTransition(StateRetry, StateSubmitted))
	assert.False(t, CanTransition(StateConfirmed, StateRetry))
	assert.False(t, CanTransition(StatePlanned, StateConfirmed))
}

func TestUnits(t *testing.T) {
	assert.Equal(t, "1500000000000000000", ToWei(1.5).String())
	assert.InDelta(t, 1.5, FromWei(big.NewInt(1_500_000_000_000_000_000)), 1e-12)
	assert.Equal(t, "2500000000", GweiToWei(2.5).String())
	assert.InDelta(t, 2.5, WeiToGwei(big.NewInt(2_500_000_000)), 1e-12)
	assert.InDelta(t, 0.0021, GasCost(21000, 100), 1e-12)
	assert.Equal(t, "0", ToWei(-1).String())
}
