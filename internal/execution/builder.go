package execution

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/mempool-engine/internal/decoder"
	"github.com/mselser95/mempool-engine/pkg/types"
)

// ErrNoTokenEstimate is returned when a round trip needs a token amount the
// opportunity does not carry.
var ErrNoTokenEstimate = errors.New("opportunity has no expected token amount")

// txBuilder produces router calldata for the signer's own transactions.
type txBuilder struct {
	base          common.Address
	gasLimit      uint64
	deadline      time.Duration
	entrySlippage float64 // percent
	exitSlippage  float64 // percent
	now           func() time.Time
}

func (b *txBuilder) deadlineArg() *big.Int {
	return big.NewInt(b.now().Add(b.deadline).Unix())
}

func (b *txBuilder) buy(router, token, signer common.Address, nonce uint64, size, minTokens float64) (types.PlannedTx, error) {
	data, err := decoder.PackSwapExactETHForTokens(types.ToWei(minTokens), []common.Address{b.base, token}, signer, b.deadlineArg())
	if err != nil {
		return types.PlannedTx{}, fmt.Errorf("pack buy: %w", err)
	}
	return types.PlannedTx{Nonce: nonce, To: router, Value: types.ToWei(size), Data: data, GasLimit: b.gasLimit}, nil
}

func (b *txBuilder) sell(router, token, signer common.Address, nonce uint64, amount, minOut float64) (types.PlannedTx, error) {
	data, err := decoder.PackSwapExactTokensForETH(types.ToWei(amount), types.ToWei(minOut), []common.Address{token, b.base}, signer, b.deadlineArg())
	if err != nil {
		return types.PlannedTx{}, fmt.Errorf("pack sell: %w", err)
	}
	return types.PlannedTx{Nonce: nonce, To: router, Value: new(big.Int), Data: data, GasLimit: b.gasLimit}, nil
}

// entry builds the own transactions of an opportunity and, when every target
// carries its raw bytes, the bundle ordering around them.
func (b *txBuilder) entry(opp *types.Opportunity, signer common.Address, firstNonce uint64) ([]types.PlannedTx, []types.BundleSlot, error) {
	if len(opp.Venues) == 0 {
		return nil, nil, fmt.Errorf("opportunity %s has no venue", opp.ID)
	}

	minTokens := opp.ExpectedTokens * (1 - b.entrySlippage/100)
	buy, err := b.buy(opp.Venues[0], opp.Token, signer, firstNonce, opp.TradeSize, minTokens)
	if err != nil {
		return nil, nil, err
	}

	own := []types.BundleSlot{{Own: 0, Label: "entry"}}
	txs := []types.PlannedTx{buy}

	switch opp.Kind {
	case types.KindSnipe, types.KindBackrun:
		return txs, append(victimSlots(opp.Targets), own...), nil

	case types.KindFrontrun:
		return txs, append(own, victimSlots(opp.Targets)...), nil

	case types.KindSandwich:
		if opp.ExpectedTokens <= 0 {
			return nil, nil, ErrNoTokenEstimate
		}
		// the back leg must return at least the principal
		sell, err := b.sell(opp.Venues[0], opp.Token, signer, firstNonce+1, opp.ExpectedTokens, opp.TradeSize)
		if err != nil {
			return nil, nil, err
		}
		txs = append(txs, sell)
		slots := append(own, victimSlots(opp.Targets)...)
		return txs, append(slots, types.BundleSlot{Own: 1, Label: "back-leg"}), nil

	case types.KindCrossVenueArbitrage:
		if opp.ExpectedTokens <= 0 {
			return nil, nil, ErrNoTokenEstimate
		}
		if len(opp.Venues) < 2 {
			return nil, nil, fmt.Errorf("arbitrage %s needs two venues", opp.ID)
		}
		sell, err := b.sell(opp.Venues[1], opp.Token, signer, firstNonce+1, opp.ExpectedTokens, opp.TradeSize)
		if err != nil {
			return nil, nil, err
		}
		txs = append(txs, sell)
		slots := append(victimSlots(opp.Targets), own...)
		return txs, append(slots, types.BundleSlot{Own: 1, Label: "sell-leg"}), nil
	}

	return nil, nil, fmt.Errorf("unknown opportunity kind %d", opp.Kind)
}

// exit builds the sell of an exit order.
func (b *txBuilder) exit(order *types.ExitOrder, signer common.Address, nonce uint64) (types.PlannedTx, error) {
	minOut := order.Amount * order.TriggerPrice * (1 - b.exitSlippage/100)
	return b.sell(order.Venue, order.Token, signer, nonce, order.Amount, minOut)
}

func victimSlots(targets []*types.PendingIntent) []types.BundleSlot {
	slots := make([]types.BundleSlot, 0, len(targets))
	for _, t := range targets {
		slots = append(slots, types.BundleSlot{Own: -1, Raw: t.Raw, Label: t.TxHash.Hex()})
	}
	return slots
}

// bundleable reports whether every foreign slot carries raw bytes.
func bundleable(slots []types.BundleSlot) bool {
	for _, s := range slots {
		if s.Own < 0 && len(s.Raw) == 0 {
			return false
		}
	}
	return true
}
