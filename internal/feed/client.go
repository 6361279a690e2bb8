// Package feed defines the upstream trade feed client contract.
//
// The relay core treats the upstream purely as this interface; the wire
// format and channel negotiation live in the implementing adapter. Any
// adapter guarantees fully populated Trade values or none at all —
// malformed input never reaches the model.
package feed

import (
	"context"

	"github.com/ScottLogic/epace-sandbox/internal/event"
	"github.com/ScottLogic/epace-sandbox/internal/model"
)

// Client is a connection to the upstream exchange feed.
type Client interface {
	// Connect establishes the upstream connection.
	Connect(ctx context.Context) error

	// Disconnect closes the connection. No-op when not connected.
	Disconnect(ctx context.Context) error

	// IsConnected reports the live transport state.
	IsConnected() bool

	// SubscribeTrades asks the feed to stream trades for symbol.
	SubscribeTrades(ctx context.Context, symbol model.Symbol) error

	// UnsubscribeTrades stops the stream for symbol.
	UnsubscribeTrades(ctx context.Context, symbol model.Symbol) error

	// OnTrade registers a handler for incoming trades.
	OnTrade(fn func(model.Trade)) event.Handle

	// OnSubscriptionUpdate registers a handler for subscribe and
	// unsubscribe acknowledgements.
	OnSubscriptionUpdate(fn func(model.SubscriptionUpdate)) event.Handle

	// OnConnectionLost registers a handler fired when the transport
	// drops. Intentional Disconnect does not fire it.
	OnConnectionLost(fn func()) event.Handle

	// OnConnectionRestored registers a handler fired when a Connect
	// succeeds after a lost connection. The upstream feed does not
	// remember subscriptions across a reconnect; listeners must
	// resubscribe.
	OnConnectionRestored(fn func()) event.Handle
}
