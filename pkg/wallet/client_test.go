package wallet

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

// newRPCServer answers the handful of JSON-RPC methods the client uses.
func newRPCServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		result, ok := results[req.Method]
		if !ok {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"error":{"code":-32601,"message":"method not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":"` + result + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name    string
		rpcURL  string
		logger  *zap.Logger
		wantErr bool
	}{
		{name: "valid_config", rpcURL: "http://localhost:8545", logger: logger},
		{name: "empty_rpc_url", rpcURL: "", logger: logger, wantErr: true},
		{name: "nil_logger", rpcURL: "http://localhost:8545", logger: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.rpcURL, common.Address{}, tt.logger)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && client.rpcURL != tt.rpcURL {
				t.Errorf("NewClient() rpcURL = %v, want %v", client.rpcURL, tt.rpcURL)
			}
		})
	}
}

func TestClient_GetBalances(t *testing.T) {
	wrappedBalance := common.LeftPadBytes(big.NewInt(3e18).Bytes(), 32)
	srv := newRPCServer(t, map[string]string{
		"eth_getBalance": hexutil.EncodeBig(big.NewInt(2e18)),
		"eth_call":       hexutil.Encode(wrappedBalance),
	})

	client, err := NewClient(srv.URL, common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	balances, err := client.GetBalances(context.Background(), common.HexToAddress("0x1234567890123456789012345678901234567890"))
	if err != nil {
		t.Fatalf("GetBalances() failed: %v", err)
	}

	if balances.Native.Cmp(big.NewInt(2e18)) != 0 {
		t.Errorf("Native = %v, want 2e18", balances.Native)
	}
	if balances.Wrapped.Cmp(big.NewInt(3e18)) != 0 {
		t.Errorf("Wrapped = %v, want 3e18", balances.Wrapped)
	}
}

func TestClient_GetBalances_NoWrappedToken(t *testing.T) {
	srv := newRPCServer(t, map[string]string{
		"eth_getBalance": hexutil.EncodeBig(big.NewInt(1e18)),
	})

	client, err := NewClient(srv.URL, common.Address{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	balances, err := client.GetBalances(context.Background(), common.Address{1})
	if err != nil {
		t.Fatalf("GetBalances() failed: %v", err)
	}
	if balances.Wrapped.Sign() != 0 {
		t.Errorf("Wrapped = %v, want 0", balances.Wrapped)
	}
}

func TestClient_PendingNonce(t *testing.T) {
	srv := newRPCServer(t, map[string]string{
		"eth_getTransactionCount": "0x2a",
	})

	client, err := NewClient(srv.URL, common.Address{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	nonce, err := client.PendingNonce(context.Background(), common.Address{1})
	if err != nil {
		t.Fatalf("PendingNonce() failed: %v", err)
	}
	if nonce != 42 {
		t.Errorf("PendingNonce() = %d, want 42", nonce)
	}
}

func TestClient_RPCError(t *testing.T) {
	srv := newRPCServer(t, map[string]string{})

	client, err := NewClient(srv.URL, common.Address{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	_, err = client.GetBalances(context.Background(), common.Address{1})
	if err == nil {
		t.Error("GetBalances() expected error for failing node")
	}
}
