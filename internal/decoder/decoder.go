package decoder

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/mselser95/mempool-engine/pkg/types"
)

// Config holds decoder configuration.
type Config struct {
	ChainID       *big.Int
	Venues        map[common.Address]string // router address -> venue name
	BaseAssets    []common.Address
	WrappedNative common.Address
}

// Decoder turns raw pending transactions into PendingIntents.
// It holds only immutable lookup tables and is safe for concurrent use.
type Decoder struct {
	signer        ethtypes.Signer
	venues        map[common.Address]string
	base          map[common.Address]struct{}
	wrappedNative common.Address
}

type handler func(d *Decoder, tx *ethtypes.Transaction, args []interface{}) (types.Action, bool)

//nolint:gochecknoglobals // selector table, built once
var handlers = buildHandlers()

func buildHandlers() map[[4]byte]handler {
	byName := map[string]handler{
		MethodSwapExactETHForTokens:    decodeETHIn,
		MethodSwapETHForExactTokens:    decodeETHIn,
		MethodSwapExactETHForTokensFee: decodeETHIn,
		MethodSwapExactTokensForETH:    decodeTokensIn,
		MethodSwapExactTokensForETHFee: decodeTokensIn,
		MethodSwapExactTokensForTokens: decodeTokensIn,
		MethodAddLiquidity:             decodeAddLiquidity,
		MethodAddLiquidityETH:          decodeAddLiquidityETH,
	}

	out := make(map[[4]byte]handler, len(byName))
	for name, h := range byName {
		out[[4]byte(RouterABI.Methods[name].ID)] = h
	}
	return out
}

// New creates a new decoder.
func New(cfg *Config) *Decoder {
	base := make(map[common.Address]struct{}, len(cfg.BaseAssets)+1)
	for _, a := range cfg.BaseAssets {
		base[a] = struct{}{}
	}
	base[cfg.WrappedNative] = struct{}{}

	venues := make(map[common.Address]string, len(cfg.Venues))
	for addr, name := range cfg.Venues {
		venues[addr] = name
	}

	return &Decoder{
		signer:        ethtypes.LatestSignerForChainID(cfg.ChainID),
		venues:        venues,
		base:          base,
		wrappedNative: cfg.WrappedNative,
	}
}

// IsBase reports whether the address is a configured base asset.
func (d *Decoder) IsBase(a common.Address) bool {
	_, ok := d.base[a]
	return ok
}

// VenueName returns the registered name of a router.
func (d *Decoder) VenueName(router common.Address) (string, bool) {
	name, ok := d.venues[router]
	return name, ok
}

// Decode recognizes a raw signed transaction. Unknown targets, unknown
// selectors and malformed payloads all return (nil, false).
func (d *Decoder) Decode(raw []byte) (*types.PendingIntent, bool) {
	return d.DecodeAt(raw, time.Time{})
}

// DecodeAt is Decode with the observation timestamp set on the intent.
func (d *Decoder) DecodeAt(raw []byte, observedAt time.Time) (*types.PendingIntent, bool) {
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, false
	}
	return d.DecodeTx(tx, raw, observedAt)
}

// DecodeTx decodes an already-parsed transaction. raw is kept on the intent
// so it can be replayed inside a bundle.
func (d *Decoder) DecodeTx(tx *ethtypes.Transaction, raw []byte, observedAt time.Time) (*types.PendingIntent, bool) {
	to := tx.To()
	if to == nil {
		return nil, false
	}

	venueName, ok := d.venues[*to]
	if !ok {
		return nil, false
	}

	data := tx.Data()
	if len(data) < 4 {
		return nil, false
	}

	h, ok := handlers[[4]byte(data[:4])]
	if !ok {
		return nil, false
	}

	method, err := RouterABI.MethodById(data[:4])
	if err != nil {
		return nil, false
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, false
	}

	action, ok := h(d, tx, args)
	if !ok {
		return nil, false
	}
	action.DeclaredFee = tx.GasTipCap()

	sender, err := ethtypes.Sender(d.signer, tx)
	if err != nil {
		return nil, false
	}

	return &types.PendingIntent{
		TxHash:     tx.Hash(),
		Sender:     sender,
		Venue:      *to,
		VenueName:  venueName,
		Action:     action,
		Nonce:      tx.Nonce(),
		ObservedAt: observedAt,
		RawSize:    len(raw),
		Raw:        raw,
	}, true
}

// decodeETHIn handles the payable swaps: (amountOut[Min], path, to, deadline).
func decodeETHIn(d *Decoder, tx *ethtypes.Transaction, args []interface{}) (types.Action, bool) {
	if len(args) != 4 {
		return types.Action{}, false
	}

	minOut, ok1 := args[0].(*big.Int)
	path, ok2 := args[1].([]common.Address)
	if !ok1 || !ok2 || len(path) < 2 {
		return types.Action{}, false
	}

	tokenIn, tokenOut := path[0], path[len(path)-1]
	if !d.IsBase(tokenIn) || d.IsBase(tokenOut) {
		return types.Action{}, false
	}

	return types.Action{
		Kind:         types.ActionSwapIn,
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     new(big.Int).Set(tx.Value()),
		MinAmountOut: minOut,
	}, true
}

// decodeTokensIn handles token-funded swaps: (amountIn, amountOutMin, path, to, deadline).
// Exactly one end of the path must be a base asset.
func decodeTokensIn(d *Decoder, _ *ethtypes.Transaction, args []interface{}) (types.Action, bool) {
	if len(args) != 5 {
		return types.Action{}, false
	}

	amountIn, ok1 := args[0].(*big.Int)
	minOut, ok2 := args[1].(*big.Int)
	path, ok3 := args[2].([]common.Address)
	if !ok1 || !ok2 || !ok3 || len(path) < 2 {
		return types.Action{}, false
	}

	tokenIn, tokenOut := path[0], path[len(path)-1]
	inBase, outBase := d.IsBase(tokenIn), d.IsBase(tokenOut)

	var kind types.ActionKind
	switch {
	case inBase && !outBase:
		kind = types.ActionSwapIn
	case !inBase && outBase:
		kind = types.ActionSwapOut
	default:
		return types.Action{}, false
	}

	return types.Action{
		Kind:         kind,
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     amountIn,
		MinAmountOut: minOut,
	}, true
}

// decodeAddLiquidity normalizes the pair so TokenIn is the base side.
func decodeAddLiquidity(d *Decoder, _ *ethtypes.Transaction, args []interface{}) (types.Action, bool) {
	if len(args) != 8 {
		return types.Action{}, false
	}

	tokenA, ok1 := args[0].(common.Address)
	tokenB, ok2 := args[1].(common.Address)
	amountA, ok3 := args[2].(*big.Int)
	amountB, ok4 := args[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return types.Action{}, false
	}

	switch {
	case d.IsBase(tokenA) && !d.IsBase(tokenB):
		return liquidityAction(tokenA, tokenB, amountA, amountB), true
	case d.IsBase(tokenB) && !d.IsBase(tokenA):
		return liquidityAction(tokenB, tokenA, amountB, amountA), true
	}
	return types.Action{}, false
}

func decodeAddLiquidityETH(d *Decoder, tx *ethtypes.Transaction, args []interface{}) (types.Action, bool) {
	if len(args) != 6 {
		return types.Action{}, false
	}

	token, ok1 := args[0].(common.Address)
	amountToken, ok2 := args[1].(*big.Int)
	if !ok1 || !ok2 || d.IsBase(token) {
		return types.Action{}, false
	}

	return liquidityAction(d.wrappedNative, token, new(big.Int).Set(tx.Value()), amountToken), true
}

func liquidityAction(base, token common.Address, baseAmount, tokenAmount *big.Int) types.Action {
	return types.Action{
		Kind:         types.ActionLiquidityAdd,
		TokenIn:      base,
		TokenOut:     token,
		AmountIn:     baseAmount,
		MinAmountOut: tokenAmount,
	}
}
