package execution

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goccy/go-json"
	"github.com/mselser95/mempool-engine/pkg/wallet"
	"go.uber.org/zap"
)

// BundleRelay submits ordered bundles to a private relay.
type BundleRelay interface {
	SendBundle(ctx context.Context, txs [][]byte, block uint64) (string, error)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type bundleParams struct {
	Txs         []string `json:"txs"`
	BlockNumber string   `json:"blockNumber"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type bundleResponse struct {
	Result *struct {
		BundleHash string `json:"bundleHash"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

// RelayClient sends eth_sendBundle requests signed with the relay identity key.
type RelayClient struct {
	url        string
	httpClient *http.Client
	signer     wallet.Signer
	handle     string
	logger     *zap.Logger
}

// NewRelayClient creates a relay client. handle names the identity key used
// for the request signature header.
func NewRelayClient(url string, timeout time.Duration, signer wallet.Signer, handle string, logger *zap.Logger) (*RelayClient, error) {
	if url == "" {
		return nil, fmt.Errorf("relay url cannot be empty")
	}
	if signer == nil {
		return nil, fmt.Errorf("relay signer cannot be nil")
	}
	if _, err := signer.Address(handle); err != nil {
		return nil, fmt.Errorf("relay identity: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RelayClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		signer:     signer,
		handle:     handle,
		logger:     logger,
	}, nil
}

// SendBundle submits txs for inclusion in block and returns the bundle hash.
func (c *RelayClient) SendBundle(ctx context.Context, txs [][]byte, block uint64) (string, error) {
	encoded := make([]string, len(txs))
	for i, raw := range txs {
		encoded[i] = hexutil.Encode(raw)
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_sendBundle",
		Params:  []any{bundleParams{Txs: encoded, BlockNumber: hexutil.EncodeUint64(block)}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal bundle: %w", err)
	}

	signature, err := c.sign(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Flashbots-Signature", signature)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send bundle: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("relay status %d: %s", resp.StatusCode, truncate(payload, 200))
	}

	var out bundleResponse
	err = json.Unmarshal(payload, &out)
	if err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("relay error %d: %s", out.Error.Code, out.Error.Message)
	}
	if out.Result == nil {
		return "", fmt.Errorf("relay returned no result")
	}

	c.logger.Debug("bundle-sent",
		zap.String("bundle-hash", out.Result.BundleHash),
		zap.Uint64("block", block),
		zap.Int("tx-count", len(txs)))

	return out.Result.BundleHash, nil
}

// sign produces the "address:signature" header over the hex keccak of the body.
func (c *RelayClient) sign(body []byte) (string, error) {
	digest := accounts.TextHash([]byte(crypto.Keccak256Hash(body).Hex()))
	sig, err := c.signer.SignHash(c.handle, digest)
	if err != nil {
		return "", fmt.Errorf("sign relay request: %w", err)
	}

	addr, err := c.signer.Address(c.handle)
	if err != nil {
		return "", fmt.Errorf("relay identity: %w", err)
	}
	return addr.Hex() + ":" + hexutil.Encode(sig), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
