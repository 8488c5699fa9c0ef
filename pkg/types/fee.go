package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Urgency is a named fee-aggressiveness level.
type Urgency int

const (
	UrgencyNormal Urgency = iota
	UrgencyPriority
	UrgencyEmergency
)

func (u Urgency) String() string {
	switch u {
	case UrgencyNormal:
		return "normal"
	case UrgencyPriority:
		return "priority"
	case UrgencyEmergency:
		return "emergency"
	}
	return "normal"
}

// MarshalText renders the tier name in JSON payloads.
func (u Urgency) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// TierPercentile maps an urgency tier to the ladder percentile it tracks.
func (u Urgency) TierPercentile() int {
	switch u {
	case UrgencyPriority:
		return 75
	case UrgencyEmergency:
		return 90
	case UrgencyNormal:
		return 50
	}
	return 50
}

// Cap returns the lower of two urgencies.
func (u Urgency) Cap(limit Urgency) Urgency {
	if u > limit {
		return limit
	}
	return u
}

// FeeRung is one percentile of the priority-fee ladder.
type FeeRung struct {
	Percentile int     `json:"percentile"`
	TipGwei    float64 `json:"tip_gwei"`
}

// FeeQuote is a fee recommendation for one urgency tier.
type FeeQuote struct {
	Urgency         Urgency   `json:"urgency"`
	BaseFeeGwei     float64   `json:"base_fee_gwei"`
	PriorityFeeGwei float64   `json:"priority_fee_gwei"`
	Ladder          []FeeRung `json:"ladder"`
	Congested       bool      `json:"congested"`
	LowConfidence   bool      `json:"low_confidence"`
	Block           uint64    `json:"block"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MaxFeeGwei is the fee cap per gas that survives a doubling of the base fee.
func (q FeeQuote) MaxFeeGwei() float64 {
	return 2*q.BaseFeeGwei + q.PriorityFeeGwei
}

// Rung returns the ladder value for a percentile, if present.
func (q FeeQuote) Rung(percentile int) (float64, bool) {
	for _, r := range q.Ladder {
		if r.Percentile == percentile {
			return r.TipGwei, true
		}
	}
	return 0, false
}

// BlockEvent is a new-block notification with the fees its transactions paid.
type BlockEvent struct {
	Number      uint64
	BaseFeeGwei float64
	TipsGwei    []float64
	TxHashes    []common.Hash
	Timestamp   time.Time
}
