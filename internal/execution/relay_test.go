package execution

import (
	"context"
	"crypto/ecdsa"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goccy/go-json"
	"github.com/mselser95/mempool-engine/pkg/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRelayClient_SendBundle(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := wallet.NewLocalSignerFromKeys(big.NewInt(1), map[string]*ecdsa.PrivateKey{"relay": key})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		parts := strings.SplitN(r.Header.Get("X-Flashbots-Signature"), ":", 2)
		require.Len(t, parts, 2)
		sig, err := hexutil.Decode(parts[1])
		require.NoError(t, err)
		digest := accounts.TextHash([]byte(crypto.Keccak256Hash(body).Hex()))
		pub, err := crypto.SigToPub(digest, sig)
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), parts[0])
		assert.Equal(t, parts[0], crypto.PubkeyToAddress(*pub).Hex())

		var req struct {
			Method string         `json:"method"`
			Params []bundleParams `json:"params"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "eth_sendBundle", req.Method)
		require.Len(t, req.Params, 1)
		assert.Equal(t, []string{"0x0102", "0x03"}, req.Params[0].Txs)
		assert.Equal(t, "0x65", req.Params[0].BlockNumber)

		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"bundleHash":"0xabc"}}`))
	}))
	defer srv.Close()

	client, err := NewRelayClient(srv.URL, time.Second, signer, "relay", zaptest.NewLogger(t))
	require.NoError(t, err)

	hash, err := client.SendBundle(context.Background(), [][]byte{{0x01, 0x02}, {0x03}}, 101)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", hash)
}

func TestRelayClient_Errors(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := wallet.NewLocalSignerFromKeys(big.NewInt(1), map[string]*ecdsa.PrivateKey{"relay": key})

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"rpc-error", http.StatusOK, `{"error":{"code":-32000,"message":"bundle too large"}}`, "bundle too large"},
		{"http-error", http.StatusTooManyRequests, `rate limited`, "status 429"},
		{"no-result", http.StatusOK, `{}`, "no result"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, err := NewRelayClient(srv.URL, time.Second, signer, "relay", nil)
			require.NoError(t, err)

			_, err = client.SendBundle(context.Background(), [][]byte{{0x01}}, 5)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err = NewRelayClient("http://relay", time.Second, signer, "missing", nil)
	assert.ErrorIs(t, err, wallet.ErrUnknownHandle)
}
