package cmd

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	json "github.com/goccy/go-json"
	"github.com/mselser95/mempool-engine/internal/decoder"
	"github.com/mselser95/mempool-engine/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedBuy(t *testing.T, cfg *config.Config, router, token common.Address) string {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	data, err := decoder.PackSwapExactETHForTokens(big.NewInt(500),
		[]common.Address{common.HexToAddress(cfg.WrappedNative), token}, common.Address{}, big.NewInt(1))
	require.NoError(t, err)

	chainID := big.NewInt(cfg.ChainID)
	tx, err := ethtypes.SignNewTx(key, ethtypes.LatestSignerForChainID(chainID), &ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     7,
		GasTipCap: big.NewInt(2_000_000_000),
		GasFeeCap: big.NewInt(40_000_000_000),
		Gas:       200_000,
		To:        &router,
		Value:     big.NewInt(1e18),
		Data:      data,
	})
	require.NoError(t, err)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return "0x" + hex.EncodeToString(raw)
}

func TestDecodeTo_PrintsIntent(t *testing.T) {
	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)

	var router common.Address
	for addr := range cfg.Venues {
		router = common.HexToAddress(addr)
		break
	}
	token := common.HexToAddress("0x1111111111111111111111111111111111111111")

	var out bytes.Buffer
	require.NoError(t, decodeTo(&out, newDecoder(cfg), signedBuy(t, cfg, router, token)))

	var view intentView
	require.NoError(t, json.Unmarshal(out.Bytes(), &view))
	assert.Equal(t, "swap-in", view.Action)
	assert.Equal(t, token.Hex(), view.Token)
	assert.Equal(t, router.Hex(), view.Venue)
	assert.Equal(t, "1000000000000000000", view.AmountIn)
	assert.Equal(t, "500", view.MinAmountOut)
	assert.Equal(t, uint64(7), view.Nonce)
}

func TestDecodeTo_Rejects(t *testing.T) {
	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)
	d := newDecoder(cfg)

	var out bytes.Buffer
	err = decodeTo(&out, d, "zz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse hex")

	err = decodeTo(&out, d, "0x0102")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not a recognized venue call"))
	assert.Empty(t, out.String())
}

func TestResolveAddress(t *testing.T) {
	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)

	addr, err := resolveAddress(cfg, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"), addr)

	_, err = resolveAddress(cfg, "not-an-address")
	require.Error(t, err)

	t.Setenv("ENGINE_TEST_KEY", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	cfg.SignerKeyEnv = "ENGINE_TEST_KEY"
	addr, err = resolveAddress(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"), addr)
}
