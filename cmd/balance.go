package cmd

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/mempool-engine/pkg/config"
	"github.com/mselser95/mempool-engine/pkg/types"
	"github.com/mselser95/mempool-engine/pkg/wallet"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the signer's native balance and pending nonce",
	Long: `Display the engine signer's holdings:
- Native balance (for gas and entries)
- Wrapped-native balance (exit proceeds)
- Pending nonce (next nonce the engine will use)

The address is derived from the signing key named by SIGNER_KEY_ENV unless
--address is given.`,
	RunE: runBalance,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	balanceAddress string
	balanceTimeout time.Duration
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(balanceCmd)

	balanceCmd.Flags().StringVarP(&balanceAddress, "address", "a", "", "Address to inspect instead of the signer")
	balanceCmd.Flags().DurationVar(&balanceTimeout, "timeout", 15*time.Second, "RPC timeout")
}

func runBalance(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	address, err := resolveAddress(cfg, balanceAddress)
	if err != nil {
		return err
	}

	client, err := wallet.NewClient(cfg.RPCURL, common.HexToAddress(cfg.WrappedNative), zap.NewNop())
	if err != nil {
		return fmt.Errorf("create wallet client: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), balanceTimeout)
	defer cancel()

	balances, err := client.GetBalances(ctx, address)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}

	nonce, err := client.PendingNonce(ctx, address)
	if err != nil {
		return fmt.Errorf("get pending nonce: %w", err)
	}

	printBalance(cmd.OutOrStdout(), address, balances, nonce)
	return nil
}

// resolveAddress returns the explicit address, or the signer's address
// derived from the configured key.
func resolveAddress(cfg *config.Config, explicit string) (common.Address, error) {
	if explicit != "" {
		if !common.IsHexAddress(explicit) {
			return common.Address{}, fmt.Errorf("invalid address %q", explicit)
		}
		return common.HexToAddress(explicit), nil
	}

	signer, err := wallet.NewLocalSigner(big.NewInt(cfg.ChainID), map[string]string{cfg.SignerKeyHandle: cfg.SignerKeyEnv})
	if err != nil {
		return common.Address{}, fmt.Errorf("load signing key: %w", err)
	}

	return signer.Address(cfg.SignerKeyHandle)
}

func printBalance(w io.Writer, address common.Address, b *wallet.Balances, nonce uint64) {
	fmt.Fprintf(w, "=== Wallet Balance Sheet ===\n\n")
	fmt.Fprintf(w, "Address:         %s\n", address.Hex())
	fmt.Fprintf(w, "Native balance:  %.6f\n", types.FromWei(b.Native))
	fmt.Fprintf(w, "Wrapped balance: %.6f\n", types.FromWei(b.Wrapped))
	fmt.Fprintf(w, "Pending nonce:   %d\n", nonce)
}
