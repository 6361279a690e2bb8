package ws

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ScottLogic/epace-sandbox/internal/model"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrStaleConnection  = errors.New("connection stale (no pong)")
)

// Config configures the WebSocket feed client.
type Config struct {
	URL              string        // Feed URL (e.g., wss://feed.example.com/ws)
	Token            string        // Bearer token, opaque to the relay
	HandshakeTimeout time.Duration // Dial handshake deadline
	WriteTimeout     time.Duration // Write deadline for sends
	PingInterval     time.Duration // Keepalive ping cadence
	PingTimeout      time.Duration // Max silence before the connection is stale
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     15 * time.Second,
		PingTimeout:      60 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = def.PingInterval
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = def.PingTimeout
	}
}

// command is an outbound subscribe/unsubscribe message.
type command struct {
	Type     string   `json:"type"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
	Symbols  []string `json:"symbols"`
}

// envelope carries every inbound message; Type selects the schema.
type envelope struct {
	Type      string `json:"type"` // "trade", "snapshot", "subscriptions", "rejected", "heartbeat"
	Sequence  int64  `json:"sequence"`
	Symbol    string `json:"symbol"`
	Timestamp string `json:"timestamp"` // RFC 3339, microsecond precision
	Side      string `json:"side"`
	Quantity  string `json:"quantity"`
	Price     string `json:"price"`
	TradeID   string `json:"trade_id"`
	Status    string `json:"status"` // "subscribed" or "unsubscribed"
	Reason    string `json:"reason"`
}

// toTrade validates and maps a trade/snapshot envelope. It returns an
// error rather than a partially populated Trade.
func (e envelope) toTrade() (model.Trade, error) {
	var kind model.EventKind
	switch e.Type {
	case "trade":
		kind = model.EventUpdated
	case "snapshot":
		kind = model.EventSnapshot
	default:
		return model.Trade{}, fmt.Errorf("not a trade message: %q", e.Type)
	}

	if e.Symbol == "" {
		return model.Trade{}, errors.New("missing symbol")
	}
	if e.TradeID == "" {
		return model.Trade{}, errors.New("missing trade_id")
	}

	ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return model.Trade{}, fmt.Errorf("parse timestamp: %w", err)
	}

	var side model.Side
	switch e.Side {
	case "buy":
		side = model.SideBuy
	case "sell":
		side = model.SideSell
	default:
		return model.Trade{}, fmt.Errorf("unknown side: %q", e.Side)
	}

	qty, err := decimal.NewFromString(e.Quantity)
	if err != nil {
		return model.Trade{}, fmt.Errorf("parse quantity: %w", err)
	}
	price, err := decimal.NewFromString(e.Price)
	if err != nil {
		return model.Trade{}, fmt.Errorf("parse price: %w", err)
	}

	return model.Trade{
		Sequence:  e.Sequence,
		Kind:      kind,
		Symbol:    model.Symbol(e.Symbol),
		Timestamp: ts.UTC().Truncate(time.Microsecond),
		Side:      side,
		Quantity:  qty,
		Price:     price,
		TradeID:   e.TradeID,
	}, nil
}

// toSubscriptionUpdate maps a subscriptions/rejected envelope.
func (e envelope) toSubscriptionUpdate() (model.SubscriptionUpdate, error) {
	if e.Symbol == "" {
		return model.SubscriptionUpdate{}, errors.New("missing symbol")
	}

	var kind model.EventKind
	switch {
	case e.Type == "rejected":
		kind = model.EventRejected
	case e.Status == "subscribed":
		kind = model.EventSubscribed
	case e.Status == "unsubscribed":
		kind = model.EventUnsubscribed
	default:
		return model.SubscriptionUpdate{}, fmt.Errorf("unknown subscription status: %q", e.Status)
	}

	return model.SubscriptionUpdate{
		Symbol:   model.Symbol(e.Symbol),
		Kind:     kind,
		Reason:   e.Reason,
		Sequence: e.Sequence,
	}, nil
}
