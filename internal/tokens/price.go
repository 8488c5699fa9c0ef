package tokens

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/mempool-engine/internal/decoder"
	"github.com/mselser95/mempool-engine/pkg/types"
)

// ErrNoQuote is returned when the router cannot price the pair.
var ErrNoQuote = errors.New("router returned no quote")

// PriceClient quotes token prices through a router's getAmountsOut.
type PriceClient struct {
	caller    ethereum.ContractCaller
	baseAsset common.Address
	probe     float64 // token units sold in the probe quote
}

// NewPriceClient creates a new price client. probe is the token amount used
// for the quote; a small probe approximates the spot price.
func NewPriceClient(caller ethereum.ContractCaller, baseAsset common.Address, probe float64) *PriceClient {
	if probe <= 0 {
		probe = 1
	}
	return &PriceClient{caller: caller, baseAsset: baseAsset, probe: probe}
}

// Price returns base asset per token on the given router.
func (c *PriceClient) Price(ctx context.Context, token, router common.Address) (float64, error) {
	data, err := decoder.PackGetAmountsOut(types.ToWei(c.probe), []common.Address{token, c.baseAsset})
	if err != nil {
		return 0, err
	}

	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &router, Data: data}, nil)
	if err != nil {
		PriceQuoteErrorsTotal.Inc()
		return 0, fmt.Errorf("call getAmountsOut: %w", err)
	}

	amounts, err := decoder.UnpackAmountsOut(out)
	if err != nil {
		PriceQuoteErrorsTotal.Inc()
		return 0, err
	}

	if len(amounts) < 2 || amounts[len(amounts)-1].Sign() <= 0 {
		PriceQuoteErrorsTotal.Inc()
		return 0, ErrNoQuote
	}

	return types.FromWei(amounts[len(amounts)-1]) / c.probe, nil
}
