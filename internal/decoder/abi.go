package decoder

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Router method names understood by the decoder and the execution builder.
const (
	MethodSwapExactETHForTokens    = "swapExactETHForTokens"
	MethodSwapETHForExactTokens    = "swapETHForExactTokens"
	MethodSwapExactETHForTokensFee = "swapExactETHForTokensSupportingFeeOnTransferTokens"
	MethodSwapExactTokensForETH    = "swapExactTokensForETH"
	MethodSwapExactTokensForETHFee = "swapExactTokensForETHSupportingFeeOnTransferTokens"
	MethodSwapExactTokensForTokens = "swapExactTokensForTokens"
	MethodAddLiquidity             = "addLiquidity"
	MethodAddLiquidityETH          = "addLiquidityETH"
	MethodGetAmountsOut            = "getAmountsOut"
)

const routerABIJSON = `[
{"name":"swapExactETHForTokens","type":"function","stateMutability":"payable","inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
{"name":"swapETHForExactTokens","type":"function","stateMutability":"payable","inputs":[{"name":"amountOut","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
{"name":"swapExactETHForTokensSupportingFeeOnTransferTokens","type":"function","stateMutability":"payable","inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[]},
{"name":"swapExactTokensForETH","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
{"name":"swapExactTokensForETHSupportingFeeOnTransferTokens","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[]},
{"name":"swapExactTokensForTokens","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
{"name":"addLiquidity","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"amountADesired","type":"uint256"},{"name":"amountBDesired","type":"uint256"},{"name":"amountAMin","type":"uint256"},{"name":"amountBMin","type":"uint256"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amountA","type":"uint256"},{"name":"amountB","type":"uint256"},{"name":"liquidity","type":"uint256"}]},
{"name":"addLiquidityETH","type":"function","stateMutability":"payable","inputs":[{"name":"token","type":"address"},{"name":"amountTokenDesired","type":"uint256"},{"name":"amountTokenMin","type":"uint256"},{"name":"amountETHMin","type":"uint256"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amountToken","type":"uint256"},{"name":"amountETH","type":"uint256"},{"name":"liquidity","type":"uint256"}]},
{"name":"getAmountsOut","type":"function","stateMutability":"view","inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

// RouterABI is the parsed constant-product router interface.
//
//nolint:gochecknoglobals // parsed once, read-only
var RouterABI = mustParseABI(routerABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse router abi: %v", err))
	}
	return parsed
}

// PackSwapExactETHForTokens builds calldata for a base-asset buy.
func PackSwapExactETHForTokens(minOut *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	data, err := RouterABI.Pack(MethodSwapExactETHForTokens, minOut, path, to, deadline)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", MethodSwapExactETHForTokens, err)
	}
	return data, nil
}

// PackSwapExactTokensForETH builds calldata for selling a token into the base asset.
// The fee-on-transfer variant is used so taxed tokens do not revert.
func PackSwapExactTokensForETH(amountIn, minOut *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	data, err := RouterABI.Pack(MethodSwapExactTokensForETHFee, amountIn, minOut, path, to, deadline)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", MethodSwapExactTokensForETHFee, err)
	}
	return data, nil
}

// PackGetAmountsOut builds calldata for a router quote.
func PackGetAmountsOut(amountIn *big.Int, path []common.Address) ([]byte, error) {
	data, err := RouterABI.Pack(MethodGetAmountsOut, amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", MethodGetAmountsOut, err)
	}
	return data, nil
}

// UnpackAmountsOut decodes a getAmountsOut return value.
func UnpackAmountsOut(out []byte) ([]*big.Int, error) {
	values, err := RouterABI.Unpack(MethodGetAmountsOut, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", MethodGetAmountsOut, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unpack %s: expected 1 value, got %d", MethodGetAmountsOut, len(values))
	}

	amounts, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", MethodGetAmountsOut, values[0])
	}
	return amounts, nil
}
