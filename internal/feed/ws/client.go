// Package ws implements the upstream feed client over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ScottLogic/epace-sandbox/internal/event"
	"github.com/ScottLogic/epace-sandbox/internal/feed"
	"github.com/ScottLogic/epace-sandbox/internal/model"
)

// Client is a reconnectable WebSocket connection to the exchange feed.
// It satisfies feed.Client. A Client may be connected, disconnected and
// connected again; each Connect starts a fresh read loop and heartbeat.
type Client struct {
	cfg    Config
	logger *slog.Logger

	trades   *event.Emitter[model.Trade]
	subsUpds *event.Emitter[model.SubscriptionUpdate]
	lost     *event.Emitter[struct{}]
	restored *event.Emitter[struct{}]

	// Write serialization
	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	wasLost   bool // last disconnect was a transport failure
	lastPong  time.Time
	done      chan struct{} // per-connection
}

var _ feed.Client = (*Client)(nil)

// NewClient creates a new feed client. It does not connect.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:      cfg,
		logger:   logger,
		trades:   event.NewEmitter[model.Trade](),
		subsUpds: event.NewEmitter[model.SubscriptionUpdate](),
		lost:     event.NewEmitter[struct{}](),
		restored: event.NewEmitter[struct{}](),
	}
}

// Connect establishes the WebSocket connection. Connecting an already
// connected client is a no-op. A successful Connect after a lost
// connection fires the connection-restored event.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}

	conn.SetPingHandler(func(data string) error {
		c.mu.Lock()
		c.lastPong = time.Now()
		c.mu.Unlock()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})
	conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPong = time.Now()
		c.mu.Unlock()
		return nil
	})

	c.mu.Lock()
	if c.connected {
		// A racing Connect won; this dial is surplus.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.connected = true
	c.lastPong = time.Now()
	c.done = make(chan struct{})
	reconnected := c.wasLost
	c.wasLost = false
	done := c.done
	c.mu.Unlock()

	go c.readLoop(conn, done)
	go c.heartbeatLoop(conn, done)

	c.logger.Debug("feed connected", "url", c.cfg.URL)

	if reconnected {
		c.restored.Emit(struct{}{})
	}
	return nil
}

// Disconnect closes the connection without firing connection-lost.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	c.connected = false
	c.conn = nil
	c.wasLost = false
	close(c.done)
	c.mu.Unlock()

	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	err := conn.Close()

	c.logger.Debug("feed disconnected")
	return err
}

// IsConnected reports the live transport state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SubscribeTrades sends a subscribe command for symbol. The feed answers
// with a subscription update event; the command itself is fire-and-wire.
func (c *Client) SubscribeTrades(ctx context.Context, symbol model.Symbol) error {
	return c.sendCommand(command{
		Type:     "subscribe",
		Channels: []string{"trades"},
		Symbols:  []string{string(symbol)},
	})
}

// UnsubscribeTrades sends an unsubscribe command for symbol.
func (c *Client) UnsubscribeTrades(ctx context.Context, symbol model.Symbol) error {
	return c.sendCommand(command{
		Type:     "unsubscribe",
		Channels: []string{"trades"},
		Symbols:  []string{string(symbol)},
	})
}

// OnTrade implements feed.Client.
func (c *Client) OnTrade(fn func(model.Trade)) event.Handle {
	return c.trades.Subscribe(fn)
}

// OnSubscriptionUpdate implements feed.Client.
func (c *Client) OnSubscriptionUpdate(fn func(model.SubscriptionUpdate)) event.Handle {
	return c.subsUpds.Subscribe(fn)
}

// OnConnectionLost implements feed.Client.
func (c *Client) OnConnectionLost(fn func()) event.Handle {
	return c.lost.Subscribe(func(struct{}) { fn() })
}

// OnConnectionRestored implements feed.Client.
func (c *Client) OnConnectionRestored(fn func()) event.Handle {
	return c.restored.Subscribe(func(struct{}) { fn() })
}

func (c *Client) sendCommand(cmd command) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads and dispatches messages until the connection fails or
// is closed.
func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// Intentional close.
			default:
				c.transportLost(conn, err)
			}
			return
		}
		c.dispatch(data)
	}
}

// dispatch parses one inbound message and emits the matching event.
// Unparseable messages are logged and dropped; they never reach the
// Trade model half-built.
func (c *Client) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("unparseable feed message", "error", err)
		return
	}

	switch env.Type {
	case "trade", "snapshot":
		trade, err := env.toTrade()
		if err != nil {
			c.logger.Warn("malformed trade message", "error", err)
			return
		}
		c.trades.Emit(trade)

	case "subscriptions", "rejected":
		upd, err := env.toSubscriptionUpdate()
		if err != nil {
			c.logger.Warn("malformed subscription message", "error", err)
			return
		}
		c.subsUpds.Emit(upd)

	case "heartbeat":
		c.mu.Lock()
		c.lastPong = time.Now()
		c.mu.Unlock()

	default:
		c.logger.Debug("skipping message type", "type", env.Type)
	}
}

// heartbeatLoop pings the server and flags a stale connection when
// nothing has been heard within the ping timeout.
func (c *Client) heartbeatLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.mu.Lock()
			silent := time.Since(c.lastPong)
			c.mu.Unlock()

			if silent > c.cfg.PingTimeout {
				c.logger.Warn("connection stale", "silent_for", silent)
				c.transportLost(conn, ErrStaleConnection)
				return
			}
		}
	}
}

// transportLost records an unexpected disconnect and fires the
// connection-lost event exactly once per connection.
func (c *Client) transportLost(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A newer connection superseded this one.
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.conn = nil
	c.wasLost = true
	close(c.done)
	c.mu.Unlock()

	conn.Close()
	c.logger.Warn("feed connection lost", "error", err)
	c.lost.Emit(struct{}{})
}
