package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WSClient is a logsSubscribe client for Solana with reconnect and resubscribe.
type WSClient struct {
	url    string
	logger logrus.FieldLogger

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	// requests keyed by our request id; active keyed by the node's subscription id
	requests map[int]*Subscription
	active   map[int]*Subscription
	nextID   int

	reconnectDelay time.Duration
	pingInterval   time.Duration
	readTimeout    time.Duration

	messagesReceived atomic.Int64
	reconnectCount   atomic.Int64
	lastActivity     atomic.Int64
}

// Subscription is one logsSubscribe request.
type Subscription struct {
	RequestID      int
	SubscriptionID int
	Mentions       string
	Commitment     string
	Handler        LogsHandler
	Created        time.Time
}

// LogsHandler receives notifications in arrival order on the read goroutine.
// It must not block.
type LogsHandler func(LogsNotification)

// WSMessage is a JSON-RPC frame.
type WSMessage struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      *int              `json:"id,omitempty"`
	Method  string            `json:"method,omitempty"`
	Params  json.RawMessage   `json:"params,omitempty"`
	Result  json.RawMessage   `json:"result,omitempty"`
	Error   *jsonrpc.RPCError `json:"error,omitempty"`
}

// LogsNotification represents a logs notification
type LogsNotification struct {
	Subscription int `json:"subscription"`
	Result       struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Signature string      `json:"signature"`
			Err       interface{} `json:"err"`
			Logs      []string    `json:"logs"`
		} `json:"value"`
	} `json:"result"`
}

// WSOption tunes the client.
type WSOption func(*WSClient)

// WithReconnectDelay sets the pause between reconnect attempts.
func WithReconnectDelay(d time.Duration) WSOption {
	return func(ws *WSClient) { ws.reconnectDelay = d }
}

// WithPingInterval sets the keepalive ping period.
func WithPingInterval(d time.Duration) WSOption {
	return func(ws *WSClient) { ws.pingInterval = d }
}

// NewWSClient creates a new WebSocket client
func NewWSClient(url string, logger logrus.FieldLogger, opts ...WSOption) *WSClient {
	ws := &WSClient{
		url:            url,
		logger:         logger,
		requests:       make(map[int]*Subscription),
		active:         make(map[int]*Subscription),
		nextID:         1,
		reconnectDelay: 5 * time.Second,
		pingInterval:   30 * time.Second,
		readTimeout:    90 * time.Second,
	}
	for _, opt := range opts {
		opt(ws)
	}
	ws.touch()
	return ws
}

func (ws *WSClient) touch() {
	ws.lastActivity.Store(time.Now().UnixNano())
}

// Connect dials the node.
func (ws *WSClient) Connect(ctx context.Context) error {
	ws.logger.WithField("url", ws.url).Info("🔌 Connecting to Solana WebSocket...")

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, resp, err := dialer.DialContext(ctx, ws.url, nil)
	if err != nil {
		if resp != nil {
			ws.logger.WithFields(logrus.Fields{
				"status":      resp.Status,
				"status_code": resp.StatusCode,
				"url":         ws.url,
			}).Error("❌ WebSocket connection failed")
		}
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	conn.SetReadLimit(4 * 1024 * 1024)
	conn.SetPongHandler(func(string) error {
		ws.touch()
		return nil
	})

	ws.mu.Lock()
	ws.conn = conn
	ws.mu.Unlock()
	ws.touch()

	ws.logger.WithField("url", ws.url).Info("✅ WebSocket connected successfully")
	return nil
}

// SubscribeLogs subscribes to logs mentioning a program.
func (ws *WSClient) SubscribeLogs(programID, commitment string, handler LogsHandler) (int, error) {
	if commitment == "" {
		commitment = "confirmed"
	}
	sub := &Subscription{
		Mentions:   programID,
		Commitment: commitment,
		Handler:    handler,
		Created:    time.Now(),
	}
	return ws.sendSubscribe(sub)
}

func (ws *WSClient) sendSubscribe(sub *Subscription) (int, error) {
	ws.mu.Lock()
	id := ws.nextID
	ws.nextID++
	sub.RequestID = id
	ws.requests[id] = sub
	ws.mu.Unlock()

	params := []interface{}{
		map[string]interface{}{"mentions": []string{sub.Mentions}},
		map[string]interface{}{"commitment": sub.Commitment},
	}
	if err := ws.send(id, "logsSubscribe", params); err != nil {
		ws.mu.Lock()
		delete(ws.requests, id)
		ws.mu.Unlock()
		return 0, fmt.Errorf("failed to send subscription: %w", err)
	}

	ws.logger.WithFields(logrus.Fields{
		"program": sub.Mentions,
		"id":      id,
	}).Info("📡 Logs subscription request sent")
	return id, nil
}

func (ws *WSClient) send(id int, method string, params interface{}) error {
	ws.mu.RLock()
	conn := ws.conn
	ws.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("WebSocket not connected")
	}

	data, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Run reads frames until ctx ends, reconnecting and resubscribing on errors.
func (ws *WSClient) Run(ctx context.Context) error {
	go ws.pingLoop(ctx)

	for {
		ws.mu.RLock()
		conn := ws.conn
		ws.mu.RUnlock()

		if conn == nil {
			if err := ws.reconnect(ctx); err != nil {
				ws.logger.WithError(err).Error("❌ Reconnection failed")
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(ws.reconnectDelay):
				}
			}
			continue
		}

		if err := ws.readLoop(ctx, conn); err != nil {
			if ctx.Err() != nil {
				ws.Close()
				return ctx.Err()
			}
			ws.logger.WithError(err).Warn("⚠️ WebSocket read failed, reconnecting")
			ws.dropConn(conn)
		}
	}
}

func (ws *WSClient) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		if ws.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(ws.readTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ws.messagesReceived.Add(1)
		ws.touch()

		var message WSMessage
		if err := json.Unmarshal(data, &message); err != nil {
			ws.logger.WithError(err).Error("❌ Failed to unmarshal WebSocket message")
			continue
		}
		ws.handleMessage(message)
	}
}

func (ws *WSClient) handleMessage(message WSMessage) {
	if message.Error != nil {
		ws.logger.WithFields(logrus.Fields{
			"code":    message.Error.Code,
			"message": message.Error.Message,
		}).Error("❌ WebSocket error received")
		return
	}

	if message.ID != nil {
		var subID int
		if err := json.Unmarshal(message.Result, &subID); err != nil {
			return
		}
		ws.mu.Lock()
		sub, ok := ws.requests[*message.ID]
		if ok {
			delete(ws.requests, *message.ID)
			sub.SubscriptionID = subID
			ws.active[subID] = sub
		}
		ws.mu.Unlock()
		if ok {
			ws.logger.WithFields(logrus.Fields{
				"program":         sub.Mentions,
				"subscription_id": subID,
			}).Info("✅ WebSocket subscription confirmed")
		}
		return
	}

	if message.Method != "logsNotification" {
		return
	}

	var notification LogsNotification
	if err := json.Unmarshal(message.Params, &notification); err != nil {
		ws.logger.WithError(err).Error("❌ Failed to unmarshal logs notification")
		return
	}

	ws.mu.RLock()
	sub, ok := ws.active[notification.Subscription]
	ws.mu.RUnlock()
	if !ok || sub.Handler == nil {
		ws.logger.WithField("subscription_id", notification.Subscription).Warn("⚠️ No handler found for logs notification")
		return
	}
	sub.Handler(notification)
}

func (ws *WSClient) dropConn(conn *websocket.Conn) {
	_ = conn.Close()
	ws.mu.Lock()
	if ws.conn == conn {
		ws.conn = nil
	}
	ws.mu.Unlock()
}

func (ws *WSClient) reconnect(ctx context.Context) error {
	n := ws.reconnectCount.Add(1)
	ws.logger.WithField("attempt", n).Info("🔄 Attempting to reconnect WebSocket...")

	if err := ws.Connect(ctx); err != nil {
		return fmt.Errorf("reconnection failed: %w", err)
	}

	ws.mu.Lock()
	subs := make([]*Subscription, 0, len(ws.active)+len(ws.requests))
	for _, s := range ws.active {
		subs = append(subs, s)
	}
	for _, s := range ws.requests {
		subs = append(subs, s)
	}
	ws.active = make(map[int]*Subscription)
	ws.requests = make(map[int]*Subscription)
	ws.mu.Unlock()

	resubscribed := 0
	for _, sub := range subs {
		if _, err := ws.sendSubscribe(sub); err != nil {
			ws.logger.WithError(err).WithField("program", sub.Mentions).Error("❌ Failed to resubscribe")
			continue
		}
		resubscribed++
	}

	ws.logger.WithFields(logrus.Fields{
		"reconnect_count": n,
		"resubscribed":    resubscribed,
	}).Info("✅ WebSocket reconnected successfully")
	return nil
}

func (ws *WSClient) pingLoop(ctx context.Context) {
	if ws.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(ws.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ws.mu.RLock()
			conn := ws.conn
			ws.mu.RUnlock()
			if conn == nil {
				continue
			}

			ws.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			ws.writeMu.Unlock()
			if err != nil {
				ws.logger.WithError(err).Debug("❌ Failed to send ping")
			}

			last := time.Unix(0, ws.lastActivity.Load())
			if time.Since(last) > 2*time.Minute {
				ws.logger.WithField("last_activity", last).Warn("⚠️ Connection appears stale - no activity for 2+ minutes")
			}
		}
	}
}

// Close closes the connection.
func (ws *WSClient) Close() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.conn != nil {
		err := ws.conn.Close()
		ws.conn = nil
		return err
	}
	return nil
}

// Stats returns connection counters.
func (ws *WSClient) Stats() map[string]interface{} {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	return map[string]interface{}{
		"messages_received":     ws.messagesReceived.Load(),
		"reconnect_count":       ws.reconnectCount.Load(),
		"active_subscriptions":  len(ws.active),
		"pending_subscriptions": len(ws.requests),
		"connection_active":     ws.conn != nil,
		"last_activity":         time.Unix(0, ws.lastActivity.Load()),
	}
}
