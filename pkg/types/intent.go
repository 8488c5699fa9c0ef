package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ActionKind is the decoded shape of a pending venue call.
type ActionKind int

const (
	ActionUnknown ActionKind = iota
	// ActionSwapIn spends a base asset to acquire the subject token.
	ActionSwapIn
	// ActionSwapOut sells the subject token for a base asset.
	ActionSwapOut
	// ActionLiquidityAdd seeds or deepens a pool.
	ActionLiquidityAdd
)

func (k ActionKind) String() string {
	switch k {
	case ActionSwapIn:
		return "swap-in"
	case ActionSwapOut:
		return "swap-out"
	case ActionLiquidityAdd:
		return "liquidity-add"
	case ActionUnknown:
		return "unknown"
	}
	return "unknown"
}

// Action is the trade described by a pending transaction.
type Action struct {
	Kind         ActionKind
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	DeclaredFee  *big.Int // priority fee per gas offered by the sender, in wei
}

// PendingIntent is produced once per observed pending transaction and never mutated.
type PendingIntent struct {
	TxHash     common.Hash
	Sender     common.Address
	Venue      common.Address
	VenueName  string
	Action     Action
	Nonce      uint64
	ObservedAt time.Time
	RawSize    int
	Raw        []byte
}

// Token returns the subject token of the intent, i.e. the side that is not the base asset.
func (p *PendingIntent) Token() common.Address {
	switch p.Action.Kind {
	case ActionSwapOut:
		return p.Action.TokenIn
	default:
		return p.Action.TokenOut
	}
}

// IsBuy reports whether the intent acquires the subject token.
func (p *PendingIntent) IsBuy() bool {
	return p.Action.Kind == ActionSwapIn
}

// IsSell reports whether the intent disposes of the subject token.
func (p *PendingIntent) IsSell() bool {
	return p.Action.Kind == ActionSwapOut
}

// RawTx is a pending transaction payload as received from a node feed.
type RawTx struct {
	Bytes      []byte
	ReceivedAt time.Time
	Source     string
}
