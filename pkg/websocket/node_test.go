package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
)

// fakeNode is a websocket endpoint that accepts eth_subscribe and pushes
// whatever is queued on its notifications channel.
type fakeNode struct {
	server   *httptest.Server
	subID    string
	reject   atomic.Bool
	dropOnce atomic.Bool // close the first connection after one notification
	conns    atomic.Int32
	params   chan []interface{}
	notes    chan string
	done     chan struct{}

	mu     sync.Mutex
	active []*websocket.Conn
}

func newFakeNode(t *testing.T) *fakeNode {
	t.Helper()

	n := &fakeNode{
		subID:  "0xabc123",
		params: make(chan []interface{}, 8),
		notes:  make(chan string, 64),
		done:   make(chan struct{}),
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	n.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n.mu.Lock()
		n.active = append(n.active, conn)
		n.mu.Unlock()
		n.serve(conn, n.conns.Add(1))
	}))
	t.Cleanup(n.close)

	return n
}

func (n *fakeNode) url() string {
	return "ws" + strings.TrimPrefix(n.server.URL, "http")
}

func (n *fakeNode) serve(conn *websocket.Conn, index int32) {
	defer conn.Close()

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return
	}
	var req rpcRequest
	if json.Unmarshal(raw, &req) != nil {
		return
	}
	n.params <- req.Params

	if n.reject.Load() {
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"jsonrpc":"2.0","id":`+itoa(req.ID)+`,"error":{"code":-32601,"message":"no such subscription"}}`))
		return
	}

	_ = conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":`+itoa(req.ID)+`,"result":"`+n.subID+`"}`))

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-n.done:
			return
		case note := <-n.notes:
			err := conn.WriteMessage(websocket.TextMessage, []byte(note))
			if err != nil {
				return
			}
			if index == 1 && n.dropOnce.Load() {
				return
			}
		}
	}
}

func (n *fakeNode) push(result string) {
	n.pushFor(n.subID, result)
}

func (n *fakeNode) pushFor(sub, result string) {
	n.notes <- `{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"` + sub + `","result":` + result + `}}`
}

func (n *fakeNode) close() {
	close(n.done)
	n.mu.Lock()
	for _, c := range n.active {
		_ = c.Close()
	}
	n.mu.Unlock()
	n.server.CloseClientConnections()
	n.server.Close()
}

func itoa(v uint64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func quoted(raw []byte) string {
	return `"` + hexutil.Encode(raw) + `"`
}

func testConfig(t *testing.T, url string) Config {
	t.Helper()
	return Config{
		URL:                   url,
		SubscribeMethod:       "newPendingTransactions",
		DialTimeout:           2 * time.Second,
		PingInterval:          time.Second,
		ReconnectInitialDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:     50 * time.Millisecond,
		ReconnectBackoffMult:  2,
		MessageBufferSize:     16,
		Logger:                zaptest.NewLogger(t),
	}
}
