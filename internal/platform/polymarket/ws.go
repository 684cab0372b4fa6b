package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voidlabs/voidbot/internal/crypto"
	"github.com/voidlabs/voidbot/internal/domain"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// FillHandler receives trade executions for the authenticated wallet.
type FillHandler func(domain.Fill)

// UserStream subscribes to the CLOB user channel and forwards fill reports
// for our orders. It reconnects with capped exponential backoff until Close.
type UserStream struct {
	wsURL string
	auth  *crypto.HMACAuth
	conn  *websocket.Conn

	mu     sync.Mutex
	closed bool
	done   chan struct{}

	handler FillHandler
	logger  *slog.Logger
}

// NewUserStream creates a user-channel stream client.
//
// wsURL is the subscriptions endpoint root, e.g.
// "wss://ws-subscriptions-clob.polymarket.com".
func NewUserStream(wsURL string, auth *crypto.HMACAuth, handler FillHandler, logger *slog.Logger) *UserStream {
	return &UserStream{
		wsURL:   strings.TrimRight(wsURL, "/") + "/ws/user",
		auth:    auth,
		done:    make(chan struct{}),
		handler: handler,
		logger:  logger.With(slog.String("component", "polymarket.ws")),
	}
}

// Connect dials the endpoint, authenticates, and starts the read and ping
// loops.
func (u *UserStream) Connect(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return fmt.Errorf("polymarket/ws: stream closed")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	u.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	sub := map[string]any{
		"type": "user",
		"auth": map[string]string{
			"apiKey":     u.auth.Key,
			"secret":     u.auth.Secret,
			"passphrase": u.auth.Passphrase,
		},
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("polymarket/ws: subscribe user channel: %w", err)
	}

	go u.readLoop(conn)
	go u.pingLoop(conn)
	return nil
}

// Close shuts the stream down permanently.
func (u *UserStream) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	close(u.done)
	if u.conn != nil {
		return u.conn.Close()
	}
	return nil
}

func (u *UserStream) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-u.done:
				return
			default:
			}
			u.logger.Warn("read failed, reconnecting", slog.String("error", err.Error()))
			u.reconnect()
			return
		}
		u.handleMessage(raw)
	}
}

func (u *UserStream) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-u.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wsTrade is a trade message on the user channel.
type wsTrade struct {
	EventType    string `json:"event_type"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	Size         string `json:"size"`
	Status       string `json:"status"`
	Timestamp    string `json:"timestamp"`
	TakerOrderID string `json:"taker_order_id"`
}

func (u *UserStream) handleMessage(raw []byte) {
	// The channel multiplexes message types; a non-trade message is skipped
	// by the event_type check.
	var messages []wsTrade
	if err := json.Unmarshal(raw, &messages); err != nil {
		var single wsTrade
		if err := json.Unmarshal(raw, &single); err != nil {
			return
		}
		messages = []wsTrade{single}
	}
	for _, msg := range messages {
		if msg.EventType != "trade" {
			continue
		}
		fill, ok := msg.toFill()
		if !ok {
			u.logger.Warn("malformed trade message dropped", slog.String("raw", string(raw)))
			continue
		}
		u.handler(fill)
	}
}

func (t *wsTrade) toFill() (domain.Fill, bool) {
	price, err1 := strconv.ParseFloat(t.Price, 64)
	size, err2 := strconv.ParseFloat(t.Size, 64)
	if err1 != nil || err2 != nil || t.TakerOrderID == "" {
		return domain.Fill{}, false
	}
	side := domain.OrderSideBuy
	if strings.EqualFold(t.Side, "SELL") {
		side = domain.OrderSideSell
	}
	fill := domain.Fill{
		ExternalOrderID: t.TakerOrderID,
		TokenID:         t.AssetID,
		Side:            side,
		Price:           price,
		Size:            size,
		Timestamp:       time.Now().UTC(),
	}
	if ts, err := strconv.ParseInt(t.Timestamp, 10, 64); err == nil && ts > 0 {
		fill.Timestamp = time.UnixMilli(ts).UTC()
	}
	return fill, true
}

// reconnect re-dials with capped exponential backoff.
func (u *UserStream) reconnect() {
	delay := reconnectDelay
	for {
		select {
		case <-u.done:
			return
		case <-time.After(delay):
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := u.Connect(ctx)
		cancel()
		if err == nil {
			u.logger.Info("reconnected")
			return
		}
		u.logger.Warn("reconnect failed", slog.String("error", err.Error()), slog.Duration("next_in", delay))
		if delay *= 2; delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
