package websocket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/mselser95/mempool-engine/pkg/types"
	"go.uber.org/zap"
)

var (
	// ErrHashOnly is returned for notifications that carry a transaction hash
	// instead of the transaction itself.
	ErrHashOnly = errors.New("notification carries a hash only")

	errUnknownPayload = errors.New("unrecognized notification payload")
)

// Manager keeps one pending-transaction subscription open against a node.
type Manager struct {
	url             string
	conn            *websocket.Conn
	logger          *zap.Logger
	reconnectMgr    *ReconnectManager
	config          Config
	messageChan     chan *types.RawTx
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	mu              sync.RWMutex
	writeMu         sync.Mutex
	closeOnce       sync.Once
	subscriptionID  string
	requestID       atomic.Uint64
	connected       atomic.Bool
	lastPongTime    atomic.Int64
	connectionStart atomic.Int64
}

// Config holds stream manager configuration.
type Config struct {
	URL                   string
	SubscribeMethod       string // eth_subscribe topic, e.g. "newPendingTransactions"
	FullTransactions      bool   // ask the node for transaction bodies rather than hashes
	DialTimeout           time.Duration
	PongTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	MessageBufferSize     int
	Logger                *zap.Logger
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcMessage covers both call responses and subscription notifications.
type rpcMessage struct {
	ID     *uint64         `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
	Params *struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params,omitempty"`
}

// New creates a new stream manager.
func New(cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.SubscribeMethod == "" {
		cfg.SubscribeMethod = "newPendingTransactions"
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 10 * time.Second
	}

	reconnectCfg := ReconnectConfig{
		InitialDelay:      cfg.ReconnectInitialDelay,
		MaxDelay:          cfg.ReconnectMaxDelay,
		BackoffMultiplier: cfg.ReconnectBackoffMult,
		JitterPercent:     0.2,
	}

	logger := cfg.Logger.With(zap.String("endpoint", cfg.URL))

	return &Manager{
		url:          cfg.URL,
		logger:       logger,
		reconnectMgr: NewReconnectManager(reconnectCfg, logger),
		config:       cfg,
		messageChan:  make(chan *types.RawTx, cfg.MessageBufferSize),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start dials the node, opens the subscription and starts the read, ping and
// reconnect loops.
func (m *Manager) Start() error {
	m.logger.Info("stream-manager-starting", zap.String("method", m.config.SubscribeMethod))

	err := m.connect(m.ctx)
	if err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	m.wg.Add(3)
	go m.readLoop()
	go m.pingLoop()
	go m.reconnectLoop()

	return nil
}

// connect dials and subscribes. A reconnect therefore always re-subscribes.
func (m *Manager) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: m.config.DialTimeout,
	}

	m.logger.Info("connecting-to-node")

	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		m.lastPongTime.Store(time.Now().Unix())
		return nil
	})

	subID, err := m.subscribe(conn)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	m.mu.Lock()
	old := m.conn
	m.conn = conn
	m.subscriptionID = subID
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	// Close may have run between dial and store.
	if ctx.Err() != nil {
		_ = conn.Close()
		return ctx.Err()
	}

	now := time.Now()
	m.connected.Store(true)
	m.lastPongTime.Store(now.Unix())
	m.connectionStart.Store(now.Unix())
	ActiveConnections.Inc()

	m.logger.Info("stream-subscribed", zap.String("subscription-id", subID))

	return nil
}

// subscribe sends eth_subscribe and waits for the subscription id.
func (m *Manager) subscribe(conn *websocket.Conn) (string, error) {
	params := []interface{}{m.config.SubscribeMethod}
	if m.config.FullTransactions {
		params = append(params, true)
	}

	id := m.requestID.Add(1)
	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: "eth_subscribe", Params: params}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	if m.config.DialTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(m.config.DialTimeout))
		defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	}

	err = conn.WriteMessage(websocket.TextMessage, payload)
	if err != nil {
		return "", fmt.Errorf("write request: %w", err)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}

		var msg rpcMessage
		err = json.Unmarshal(raw, &msg)
		if err != nil || msg.ID == nil || *msg.ID != id {
			continue
		}
		if msg.Error != nil {
			return "", fmt.Errorf("node error %d: %s", msg.Error.Code, msg.Error.Message)
		}

		var subID string
		err = json.Unmarshal(msg.Result, &subID)
		if err != nil || subID == "" {
			return "", fmt.Errorf("invalid subscription id %q", string(msg.Result))
		}
		return subID, nil
	}
}

// readLoop reads notifications until the connection fails.
func (m *Manager) readLoop() {
	defer m.wg.Done()

	m.mu.RLock()
	conn := m.conn
	subID := m.subscriptionID
	m.mu.RUnlock()

	if conn == nil {
		return
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if m.ctx.Err() == nil {
				m.logger.Warn("read-error", zap.Error(err))
			}

			startTime := m.connectionStart.Load()
			if startTime > 0 {
				ConnectionDuration.Observe(time.Since(time.Unix(startTime, 0)).Seconds())
			}

			if m.connected.Swap(false) {
				ActiveConnections.Dec()
			}
			return
		}

		m.handleMessage(message, subID)
	}
}

func (m *Manager) handleMessage(message []byte, subID string) {
	start := time.Now()

	var msg rpcMessage
	err := json.Unmarshal(message, &msg)
	if err != nil {
		MessagesDroppedTotal.WithLabelValues("unparseable").Inc()
		m.logger.Debug("stream-unparseable-message",
			zap.Error(err),
			zap.Int("bytes", len(message)))
		return
	}

	if msg.Params == nil || msg.Method != "eth_subscription" {
		MessagesReceivedTotal.WithLabelValues("control").Inc()
		return
	}
	if subID != "" && msg.Params.Subscription != subID {
		MessagesDroppedTotal.WithLabelValues("foreign_subscription").Inc()
		return
	}

	raw, err := parsePayload(msg.Params.Result)
	if err != nil {
		if errors.Is(err, ErrHashOnly) {
			MessagesDroppedTotal.WithLabelValues("hash_only").Inc()
		} else {
			MessagesDroppedTotal.WithLabelValues("bad_payload").Inc()
			m.logger.Debug("stream-bad-payload", zap.Error(err))
		}
		return
	}

	MessagesReceivedTotal.WithLabelValues("pending_tx").Inc()

	tx := &types.RawTx{Bytes: raw, ReceivedAt: start, Source: m.url}
	select {
	case m.messageChan <- tx:
	default:
		MessagesDroppedTotal.WithLabelValues("channel_full").Inc()
		m.logger.Warn("message-channel-full")
	}

	MessageLatencySeconds.Observe(time.Since(start).Seconds())
}

// parsePayload turns a notification result into raw transaction bytes. Nodes
// send either a hex string (raw bytes, or a bare hash) or a transaction object.
func parsePayload(result json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(result)
	if len(trimmed) == 0 {
		return nil, errUnknownPayload
	}

	switch trimmed[0] {
	case '"':
		var s string
		err := json.Unmarshal(trimmed, &s)
		if err != nil {
			return nil, fmt.Errorf("unmarshal hex: %w", err)
		}
		raw, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("decode hex: %w", err)
		}
		if len(raw) == 32 {
			return nil, ErrHashOnly
		}
		return raw, nil

	case '{':
		var tx ethtypes.Transaction
		err := tx.UnmarshalJSON(trimmed)
		if err != nil {
			return nil, fmt.Errorf("unmarshal transaction: %w", err)
		}
		raw, err := tx.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encode transaction: %w", err)
		}
		return raw, nil
	}

	return nil, errUnknownPayload
}

// pingLoop sends periodic pings and drops connections whose pongs stopped.
func (m *Manager) pingLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if !m.connected.Load() {
				continue
			}

			m.mu.RLock()
			conn := m.conn
			m.mu.RUnlock()

			if conn == nil {
				continue
			}

			if m.config.PongTimeout > 0 {
				last := time.Unix(m.lastPongTime.Load(), 0)
				if time.Since(last) > m.config.PongTimeout {
					m.logger.Warn("pong-timeout", zap.Duration("since-last-pong", time.Since(last)))
					_ = conn.Close()
					continue
				}
			}

			m.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
			m.writeMu.Unlock()
			if err != nil {
				m.logger.Warn("ping-error", zap.Error(err))
			}
		}
	}
}

// reconnectLoop re-dials and re-subscribes whenever the read loop exits.
func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		}

		if m.connected.Load() {
			continue
		}

		m.logger.Warn("connection-lost-initiating-reconnect")

		err := m.reconnectMgr.Reconnect(m.ctx, m.connect)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.logger.Error("reconnection-failed", zap.Error(err))
			continue
		}

		m.logger.Info("reconnection-complete-restarting-read-loop")

		m.wg.Add(1)
		go m.readLoop()
	}
}

// Connected reports whether the subscription is currently live.
func (m *Manager) Connected() bool {
	return m.connected.Load()
}

// URL returns the node endpoint.
func (m *Manager) URL() string {
	return m.url
}

// MessageChan returns the channel of raw pending transactions.
func (m *Manager) MessageChan() <-chan *types.RawTx {
	return m.messageChan
}

// Close gracefully closes the stream manager. It is safe to call more than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.logger.Info("closing-stream-manager")

		m.cancel()

		m.mu.RLock()
		if m.conn != nil {
			_ = m.conn.Close()
		}
		m.mu.RUnlock()

		m.wg.Wait()

		close(m.messageChan)

		if m.connected.Swap(false) {
			ActiveConnections.Dec()
		}

		m.logger.Info("stream-manager-closed")
	})

	return nil
}
