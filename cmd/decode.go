package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
	"github.com/mselser95/mempool-engine/internal/decoder"
	"github.com/mselser95/mempool-engine/pkg/config"
	"github.com/mselser95/mempool-engine/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var decodeCmd = &cobra.Command{
	Use:   "decode <raw-tx-hex>",
	Short: "Decode a raw signed transaction into a pending intent",
	Long: `Decodes a signed transaction with the engine's venue registry and prints
the resulting intent as JSON. Transactions to unknown venues or with
unsupported calldata are reported as not decodable.

Example usage:
  decode 0x02f8b1...`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(decodeCmd)
}

// intentView is the printable form of a pending intent.
type intentView struct {
	TxHash       string `json:"tx_hash"`
	Sender       string `json:"sender"`
	Venue        string `json:"venue"`
	VenueName    string `json:"venue_name"`
	Action       string `json:"action"`
	Token        string `json:"token"`
	TokenIn      string `json:"token_in"`
	TokenOut     string `json:"token_out"`
	AmountIn     string `json:"amount_in"`
	MinAmountOut string `json:"min_amount_out"`
	DeclaredFee  string `json:"declared_fee_wei"`
	Nonce        uint64 `json:"nonce"`
	RawSize      int    `json:"raw_size"`
}

func runDecode(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	return decodeTo(cmd.OutOrStdout(), newDecoder(cfg), args[0])
}

func newDecoder(cfg *config.Config) *decoder.Decoder {
	base := make([]common.Address, 0, len(cfg.BaseAssets))
	for _, s := range cfg.BaseAssets {
		base = append(base, common.HexToAddress(s))
	}

	venues := make(map[common.Address]string, len(cfg.Venues))
	for router, name := range cfg.Venues {
		venues[common.HexToAddress(router)] = name
	}

	return decoder.New(&decoder.Config{
		ChainID:       big.NewInt(cfg.ChainID),
		Venues:        venues,
		BaseAssets:    base,
		WrappedNative: common.HexToAddress(cfg.WrappedNative),
	})
}

func decodeTo(w io.Writer, d *decoder.Decoder, rawHex string) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(rawHex), "0x"))
	if err != nil {
		return fmt.Errorf("parse hex: %w", err)
	}

	intent, ok := d.DecodeAt(raw, time.Now())
	if !ok {
		return fmt.Errorf("transaction is not a recognized venue call")
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(viewOf(intent))
}

func viewOf(p *types.PendingIntent) intentView {
	return intentView{
		TxHash:       p.TxHash.Hex(),
		Sender:       p.Sender.Hex(),
		Venue:        p.Venue.Hex(),
		VenueName:    p.VenueName,
		Action:       p.Action.Kind.String(),
		Token:        p.Token().Hex(),
		TokenIn:      p.Action.TokenIn.Hex(),
		TokenOut:     p.Action.TokenOut.Hex(),
		AmountIn:     bigString(p.Action.AmountIn),
		MinAmountOut: bigString(p.Action.MinAmountOut),
		DeclaredFee:  bigString(p.Action.DeclaredFee),
		Nonce:        p.Nonce,
		RawSize:      p.RawSize,
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
