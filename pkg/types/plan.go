package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Purpose distinguishes entries from position exits.
type Purpose int

const (
	PurposeEntry Purpose = iota
	PurposeExit
)

func (p Purpose) String() string {
	if p == PurposeExit {
		return "exit"
	}
	return "entry"
}

// FeeStrategyKind is the closed set of fee strategies.
type FeeStrategyKind int

const (
	FeeFlat FeeStrategyKind = iota
	FeeAggressiveMultiplier
	FeeMatchPercentile
)

func (k FeeStrategyKind) String() string {
	switch k {
	case FeeFlat:
		return "flat"
	case FeeAggressiveMultiplier:
		return "aggressive-multiplier"
	case FeeMatchPercentile:
		return "match-percentile"
	}
	return "unknown"
}

// FeeStrategy carries the parameters of the chosen strategy.
type FeeStrategy struct {
	Kind        FeeStrategyKind
	FlatTipGwei float64 // FeeFlat
	Multiplier  float64 // FeeAggressiveMultiplier
	Percentile  int     // FeeMatchPercentile
}

// Channel is the submission route of a plan.
type Channel int

const (
	ChannelPublic Channel = iota
	ChannelPrivateBundle
)

func (c Channel) String() string {
	switch c {
	case ChannelPublic:
		return "public"
	case ChannelPrivateBundle:
		return "private-bundle"
	}
	return "unknown"
}

// PlanState is a node of the submission state machine.
type PlanState int

const (
	StatePlanned PlanState = iota
	StateSubmitted
	StateConfirmed
	StateRejected
	StateExpired
	StateRetry
)

func (s PlanState) String() string {
	switch s {
	case StatePlanned:
		return "PLANNED"
	case StateSubmitted:
		return "SUBMITTED"
	case StateConfirmed:
		return "CONFIRMED"
	case StateRejected:
		return "REJECTED"
	case StateExpired:
		return "EXPIRED"
	case StateRetry:
		return "RETRY"
	}
	return "UNKNOWN"
}

// MarshalText renders the state name in JSON payloads.
func (s PlanState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

//nolint:gochecknoglobals // static transition table
var planTransitions = map[PlanState][]PlanState{
	StatePlanned:   {StateSubmitted, StateRejected},
	StateSubmitted: {StateConfirmed, StateRejected, StateExpired},
	StateRejected:  {StateRetry},
	StateExpired:   {StateRetry, StateRejected},
	StateRetry:     {StateSubmitted, StateRejected},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to PlanState) bool {
	for _, allowed := range planTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition records one state change of a plan.
type Transition struct {
	From   PlanState `json:"from"`
	To     PlanState `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// PlannedTx is one of the signer's own transactions, unsigned and without fees.
type PlannedTx struct {
	Nonce    uint64
	To       common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
}

// BundleSlot orders own and third-party transactions inside a bundle.
type BundleSlot struct {
	Own   int    // index into ExecutionPlan.Txs, -1 for a foreign transaction
	Raw   []byte // signed foreign transaction
	Label string
}

// ExecutionPlan is an ordered set of transactions plus fee and routing decisions.
type ExecutionPlan struct {
	ID             string
	Purpose        Purpose
	OpportunityID  string
	ExitOrderID    string
	PositionID     string
	Kind           OpportunityKind
	Token          common.Address
	Venue          common.Address
	Signer         common.Address
	KeyHandle      string
	Urgency        Urgency
	FeeStrategy    FeeStrategy
	Channel        Channel
	Txs            []PlannedTx
	Bundle         []BundleSlot
	InitialTipGwei float64
	FeeCapGwei     float64 // per-gas cap keeping gas limit x cap within MaxCost
	BaseFeeGwei    float64
	MaxCost        float64 // ceiling on realized cost, base-asset units
	EstimatedCost  float64
	EstimatedValue float64
	TradeSize      float64
	ExpectedTokens float64
	State          PlanState
	Transitions    []Transition
	CreatedAt      time.Time
}

// GasLimit sums the gas limits of the plan's own transactions.
func (p *ExecutionPlan) GasLimit() uint64 {
	var total uint64
	for _, tx := range p.Txs {
		total += tx.GasLimit
	}
	return total
}

// SubmissionResult is the terminal outcome of submitting a plan.
type SubmissionResult struct {
	PlanID       string        `json:"plan_id"`
	Purpose      Purpose       `json:"-"`
	State        PlanState     `json:"state"`
	Channel      Channel       `json:"-"`
	Attempts     int           `json:"attempts"`
	TxHashes     []common.Hash `json:"tx_hashes"`
	BundleHash   string        `json:"bundle_hash,omitempty"`
	Block        uint64        `json:"block,omitempty"`
	GasUsed      uint64        `json:"gas_used,omitempty"`
	RealizedCost float64       `json:"realized_cost"`
	MaxCost      float64       `json:"max_cost"`
	Reason       string        `json:"reason,omitempty"`
	Transitions  []Transition  `json:"transitions"`
	FinishedAt   time.Time     `json:"finished_at"`

	Receipts []*ethtypes.Receipt `json:"-"`
}

// Confirmed reports whether the plan was included successfully.
func (r *SubmissionResult) Confirmed() bool {
	return r.State == StateConfirmed
}
