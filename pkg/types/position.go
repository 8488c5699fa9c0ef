package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PositionStatus is the lifecycle state of a position.
type PositionStatus int

const (
	PositionOpen PositionStatus = iota
	PositionPartiallyClosed
	PositionClosed
	PositionFailed
)

func (s PositionStatus) String() string {
	switch s {
	case PositionOpen:
		return "OPEN"
	case PositionPartiallyClosed:
		return "PARTIALLY_CLOSED"
	case PositionClosed:
		return "CLOSED"
	case PositionFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// MarshalText renders the status name in JSON payloads.
func (s PositionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the position is finished and archived.
func (s PositionStatus) Terminal() bool {
	return s == PositionClosed || s == PositionFailed
}

// TakeProfitStage sells Percent of the original amount once price reaches
// Multiplier times the entry price.
type TakeProfitStage struct {
	Multiplier float64 `json:"multiplier"`
	Percent    float64 `json:"percent"`
	Fired      bool    `json:"fired"`
}

// TrailingStop tracks the high-water price of a position.
type TrailingStop struct {
	TrailPercent float64 `json:"trail_percent"`
	HighWater    float64 `json:"high_water"`
}

// Position is one executed entry being managed through exit.
type Position struct {
	ID               string            `json:"id"`
	Token            common.Address    `json:"token"`
	Venue            common.Address    `json:"venue"`
	OpportunityID    string            `json:"opportunity_id"`
	EntryPrice       float64           `json:"entry_price"`
	OriginalAmount   float64           `json:"original_amount"`
	RemainingAmount  float64           `json:"remaining_amount"`
	Stages           []TakeProfitStage `json:"stages"`
	Trailing         *TrailingStop     `json:"trailing,omitempty"`
	StopLossPrice    float64           `json:"stop_loss_price"`
	Status           PositionStatus    `json:"status"`
	PendingExit      string            `json:"pending_exit,omitempty"`
	ExitFailures     int               `json:"exit_failures"`
	RealizedProceeds float64           `json:"realized_proceeds"`
	LastPrice        float64           `json:"last_price"`
	OpenedAt         time.Time         `json:"opened_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	ClosedAt         time.Time         `json:"closed_at,omitempty"`
}

// Fill is a confirmed entry reported by execution.
type Fill struct {
	PlanID        string
	OpportunityID string
	Token         common.Address
	Venue         common.Address
	Amount        float64 // token units received
	Price         float64 // base asset per token
	TxHash        common.Hash
	Block         uint64
	FilledAt      time.Time
}

// ExitReason names the rule that produced an exit order.
type ExitReason string

const (
	ExitTakeProfit   ExitReason = "take-profit"
	ExitTrailingStop ExitReason = "trailing-stop"
	ExitStopLoss     ExitReason = "stop-loss"
)

// ExitOrder asks execution to sell part of a position.
type ExitOrder struct {
	ID           string         `json:"id"`
	PositionID   string         `json:"position_id"`
	Token        common.Address `json:"token"`
	Venue        common.Address `json:"venue"`
	Amount       float64        `json:"amount"`
	Reason       ExitReason     `json:"reason"`
	Stages       []int          `json:"stages,omitempty"` // indexes of the stages this order covers
	TriggerPrice float64        `json:"trigger_price"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ExitResult is the outcome of submitting an exit order.
type ExitResult struct {
	Confirmed    bool
	FilledAmount float64 // 0 means the full order amount
	Price        float64
	Reason       string
}

// PositionTransition is published whenever a position changes status.
type PositionTransition struct {
	PositionID string         `json:"position_id"`
	Token      common.Address `json:"token"`
	From       PositionStatus `json:"from"`
	To         PositionStatus `json:"to"`
	Remaining  float64        `json:"remaining"`
	Reason     string         `json:"reason"`
	At         time.Time      `json:"at"`
}
