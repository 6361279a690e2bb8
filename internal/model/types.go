package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Symbol identifies a tradeable instrument on the upstream exchange.
type Symbol string

// Known instruments. The feed accepts any symbol string; these cover the
// pairs the relay is deployed against.
const (
	SymbolBTCUSD Symbol = "BTC-USD"
	SymbolETHUSD Symbol = "ETH-USD"
	SymbolLTCUSD Symbol = "LTC-USD"
	SymbolXRPUSD Symbol = "XRP-USD"
)

// Side is the taker side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// EventKind classifies the feed message a trade arrived in.
type EventKind string

const (
	EventSubscribed   EventKind = "subscribed"
	EventUnsubscribed EventKind = "unsubscribed"
	EventRejected     EventKind = "rejected"
	EventSnapshot     EventKind = "snapshot"
	EventUpdated      EventKind = "updated"
)

// Trade represents one executed transaction on the upstream exchange feed.
// Immutable once constructed. TradeID is the dedup key within a symbol;
// the upstream feed does not guarantee uniqueness, the cache enforces it.
type Trade struct {
	Sequence  int64           `json:"sequence"`  // Feed sequence number
	Kind      EventKind       `json:"kind"`      // Message kind the trade arrived in
	Symbol    Symbol          `json:"symbol"`    // Instrument
	Timestamp time.Time       `json:"timestamp"` // Execution time (UTC, microsecond precision)
	Side      Side            `json:"side"`      // Taker side
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	TradeID   string          `json:"trade_id"`
}

// SubscriptionUpdate is the upstream acknowledgement of a subscribe or
// unsubscribe command.
type SubscriptionUpdate struct {
	Symbol   Symbol    `json:"symbol"`
	Kind     EventKind `json:"kind"`             // subscribed, unsubscribed or rejected
	Reason   string    `json:"reason,omitempty"` // Populated on rejection
	Sequence int64     `json:"sequence"`
}
