package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const balanceOfABI = `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

//nolint:gochecknoglobals // parsed once
var erc20ABI = mustParseABI(balanceOfABI)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("parse erc20 abi: %v", err))
	}
	return parsed
}

// Client reads balances and nonces for the engine's signer from a node.
type Client struct {
	rpcURL  string
	wrapped common.Address
	logger  *zap.Logger
}

// Balances holds on-chain balances of one address.
type Balances struct {
	Native  *big.Int // in wei
	Wrapped *big.Int // wrapped-native token balance, 18 decimals
}

// NewClient creates a new wallet client. wrapped may be the zero address, in
// which case only the native balance is read.
func NewClient(rpcURL string, wrapped common.Address, logger *zap.Logger) (c *Client, err error) {
	if rpcURL == "" {
		return nil, errors.New("rpcURL cannot be empty")
	}

	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	client := &Client{
		rpcURL:  rpcURL,
		wrapped: wrapped,
		logger:  logger,
	}

	return client, nil
}

// GetBalances fetches the native and wrapped-native balances.
func (c *Client) GetBalances(ctx context.Context, address common.Address) (balances *Balances, err error) {
	client, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	defer client.Close()

	native, err := client.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("get native balance: %w", err)
	}

	balances = &Balances{Native: native, Wrapped: new(big.Int)}

	if c.wrapped != (common.Address{}) {
		wrapped, err := tokenBalance(ctx, client, address, c.wrapped)
		if err != nil {
			return nil, fmt.Errorf("get wrapped balance: %w", err)
		}
		balances.Wrapped = wrapped
	}

	return balances, nil
}

// PendingNonce returns the next nonce of address including pending transactions.
func (c *Client) PendingNonce(ctx context.Context, address common.Address) (uint64, error) {
	client, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		return 0, fmt.Errorf("dial RPC: %w", err)
	}
	defer client.Close()

	nonce, err := client.PendingNonceAt(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("get pending nonce: %w", err)
	}
	return nonce, nil
}

// TokenBalance returns the ERC20 balance of owner.
func (c *Client) TokenBalance(ctx context.Context, owner, token common.Address) (*big.Int, error) {
	client, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	defer client.Close()

	return tokenBalance(ctx, client, owner, token)
}

func tokenBalance(ctx context.Context, caller ethereum.ContractCaller, owner, token common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack ABI: %w", err)
	}

	result, err := caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call contract: %w", err)
	}

	return new(big.Int).SetBytes(result), nil
}
