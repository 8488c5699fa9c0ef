package types

import (
	"math"
	"math/big"
)

// TokenDecimals is the precision assumed for base assets and traded tokens.
const TokenDecimals = 18

//nolint:gochecknoglobals // constant scale factors
var (
	weiPerUnit = new(big.Float).SetFloat64(1e18)
	weiPerGwei = big.NewInt(1_000_000_000)
)

// FromWei converts an 18-decimal integer amount to units.
func FromWei(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), weiPerUnit).Float64()
	return f
}

// ToWei converts units to an 18-decimal integer amount, truncating.
func ToWei(v float64) *big.Int {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return new(big.Int)
	}
	out, _ := new(big.Float).Mul(big.NewFloat(v), weiPerUnit).Int(nil)
	return out
}

// GweiToWei converts a per-gas price in gwei to wei.
func GweiToWei(gwei float64) *big.Int {
	if gwei <= 0 || math.IsNaN(gwei) || math.IsInf(gwei, 0) {
		return new(big.Int)
	}
	out, _ := new(big.Float).Mul(big.NewFloat(gwei), new(big.Float).SetInt(weiPerGwei)).Int(nil)
	return out
}

// WeiToGwei converts a per-gas price in wei to gwei.
func WeiToGwei(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), new(big.Float).SetInt(weiPerGwei)).Float64()
	return f
}

// GasCost is the base-asset cost of gas units at a per-gas price in gwei.
func GasCost(gas uint64, gweiPerGas float64) float64 {
	return float64(gas) * gweiPerGas * 1e-9
}
