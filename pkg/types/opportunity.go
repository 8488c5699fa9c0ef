package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OpportunityKind is the closed set of strategies the engine acts on.
type OpportunityKind int

const (
	KindSnipe OpportunityKind = iota
	KindCrossVenueArbitrage
	KindFrontrun
	KindBackrun
	KindSandwich
)

func (k OpportunityKind) String() string {
	switch k {
	case KindSnipe:
		return "snipe"
	case KindCrossVenueArbitrage:
		return "cross-venue-arbitrage"
	case KindFrontrun:
		return "frontrun"
	case KindBackrun:
		return "backrun"
	case KindSandwich:
		return "sandwich"
	}
	return "unknown"
}

// MarshalText renders the kind name in JSON payloads.
func (k OpportunityKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Urgency returns the fee tier implied by the kind. Arbitrage escalates to
// priority once the number of competing senders reaches competitionThreshold.
func (k OpportunityKind) Urgency(competition, competitionThreshold int) Urgency {
	switch k {
	case KindFrontrun, KindSandwich:
		return UrgencyEmergency
	case KindSnipe:
		return UrgencyPriority
	case KindCrossVenueArbitrage:
		if competitionThreshold > 0 && competition >= competitionThreshold {
			return UrgencyPriority
		}
		return UrgencyNormal
	case KindBackrun:
		return UrgencyNormal
	}
	return UrgencyNormal
}

// TxCount is the number of own transactions an entry of this kind needs.
func (k OpportunityKind) TxCount() int {
	switch k {
	case KindSandwich, KindCrossVenueArbitrage:
		return 2
	case KindSnipe, KindFrontrun, KindBackrun:
		return 1
	}
	return 1
}

// RiskFlag annotates an opportunity with a safety concern.
type RiskFlag string

const (
	FlagHoneypotSuspected       RiskFlag = "honeypot-suspected"
	FlagSimulatedSellFails      RiskFlag = "simulated-sell-fails"
	FlagHighConcentrationHolder RiskFlag = "high-concentration-holder"
	FlagUnverifiedContract      RiskFlag = "unverified-contract"
	FlagHighTax                 RiskFlag = "high-tax"
	FlagCoordinatedManipulation RiskFlag = "coordinated-manipulation"
	FlagLowConfidenceFee        RiskFlag = "low-confidence-fee"
)

// Hard reports whether the flag disqualifies an opportunity from execution.
func (f RiskFlag) Hard() bool {
	return f == FlagHoneypotSuspected || f == FlagSimulatedSellFails
}

// TokenSafetyReport is supplied per candidate token by the safety collaborator.
type TokenSafetyReport struct {
	Token               common.Address `json:"token"`
	LiquidityDepth      float64        `json:"liquidity_depth"`      // base-asset reserve of the main pool
	HolderConcentration float64        `json:"holder_concentration"` // percent held by the largest holders
	SimulatedSellOK     bool           `json:"simulated_sell_ok"`
	HoneypotSuspected   bool           `json:"honeypot_suspected"`
	BuyTaxPct           float64        `json:"buy_tax_pct"`
	SellTaxPct          float64        `json:"sell_tax_pct"`
	Verified            bool           `json:"verified"`
	SpotPrice           float64        `json:"spot_price"` // base asset per token, 0 when unknown
	CheckedAt           time.Time      `json:"checked_at"`
}

// ManipulationScore summarizes coordinated activity on one token.
type ManipulationScore struct {
	Token         common.Address   `json:"token"`
	Score         float64          `json:"score"`
	Coordination  float64          `json:"coordination"`
	Concentration float64          `json:"concentration"`
	Directional   float64          `json:"directional"`
	Wallets       []common.Address `json:"wallets"`
	TxCount       int              `json:"tx_count"`
	Block         uint64           `json:"block"`
	ExpiresAt     uint64           `json:"expires_at"` // block number after which the score is discarded
}

// Opportunity is a scored, typed candidate. Immutable once produced.
type Opportunity struct {
	ID                string
	Seq               uint64
	Kind              OpportunityKind
	Token             common.Address
	BaseAsset         common.Address
	Venues            []common.Address
	TradeSize         float64 // base-asset notional of the entry
	ExpectedTokens    float64 // token units the entry is expected to receive
	GrossProfit       float64
	EstimatedFee      float64
	EstimatedSlippage float64
	EstimatedCost     float64
	NetProfit         float64
	Confidence        float64
	Prediction        *float64
	RiskFlags         []RiskFlag
	Competition       int
	Targets           []*PendingIntent
	ObservedAt        time.Time
	ScoredAt          time.Time
}

// HasHardFlag reports whether any attached flag is disqualifying.
func (o *Opportunity) HasHardFlag() bool {
	for _, f := range o.RiskFlags {
		if f.Hard() {
			return true
		}
	}
	return false
}

// ExpectedValue weighs net profit by confidence.
func (o *Opportunity) ExpectedValue() float64 {
	return o.NetProfit * o.Confidence
}

// Better reports whether a ranks ahead of b. Opportunities of the same kind
// are ordered by fewer risk flags, then higher confidence, then earliest
// observation. Across kinds the higher expected value wins first. The
// sequence number breaks any remaining tie.
func Better(a, b *Opportunity) bool {
	if a.Kind != b.Kind {
		ea, eb := a.ExpectedValue(), b.ExpectedValue()
		if ea != eb {
			return ea > eb
		}
	}
	if len(a.RiskFlags) != len(b.RiskFlags) {
		return len(a.RiskFlags) < len(b.RiskFlags)
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if !a.ObservedAt.Equal(b.ObservedAt) {
		return a.ObservedAt.Before(b.ObservedAt)
	}
	return a.Seq < b.Seq
}

// AuditRecord is one append-only entry describing a scored candidate.
type AuditRecord struct {
	ID            string    `json:"id"`
	Seq           uint64    `json:"seq"`
	Token         string    `json:"token"`
	Kind          string    `json:"kind"`
	Accepted      bool      `json:"accepted"`
	Disqualified  bool      `json:"disqualified"`
	Reason        string    `json:"reason"`
	GrossProfit   float64   `json:"gross_profit"`
	EstimatedCost float64   `json:"estimated_cost"`
	NetProfit     float64   `json:"net_profit"`
	Confidence    float64   `json:"confidence"`
	RiskFlags     []string  `json:"risk_flags"`
	IntentCount   int       `json:"intent_count"`
	TxHashes      []string  `json:"tx_hashes"`
	ObservedAt    time.Time `json:"observed_at"`
	ScoredAt      time.Time `json:"scored_at"`
}
