// Package feedtest provides a scriptable in-memory feed client for
// tests.
package feedtest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ScottLogic/epace-sandbox/internal/event"
	"github.com/ScottLogic/epace-sandbox/internal/feed"
	"github.com/ScottLogic/epace-sandbox/internal/model"
)

// ErrConnectRefused is the scripted connect failure.
var ErrConnectRefused = errors.New("feedtest: connect refused")

// Client is a fake feed.Client. Events are fired explicitly via the
// Fire* methods; connect outcomes are scripted with FailConnects.
type Client struct {
	// ConnectDelay stalls each Connect call, for overlap detection.
	ConnectDelay time.Duration

	trades   *event.Emitter[model.Trade]
	subsUpds *event.Emitter[model.SubscriptionUpdate]
	lost     *event.Emitter[struct{}]
	restored *event.Emitter[struct{}]

	inFlight    int32
	maxInFlight int32

	mu             sync.Mutex
	connected      bool
	remainingFails int
	connectCalls   int
	disconnects    int
	subscribed     []model.Symbol
	unsubscribed   []model.Symbol
	subscribeErr   error
}

var _ feed.Client = (*Client)(nil)

// NewClient creates a fake that connects successfully by default.
func NewClient() *Client {
	return &Client{
		trades:   event.NewEmitter[model.Trade](),
		subsUpds: event.NewEmitter[model.SubscriptionUpdate](),
		lost:     event.NewEmitter[struct{}](),
		restored: event.NewEmitter[struct{}](),
	}
}

// FailConnects scripts the next n Connect calls to fail.
func (c *Client) FailConnects(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remainingFails = n
}

// SetSubscribeErr makes SubscribeTrades/UnsubscribeTrades return err.
func (c *Client) SetSubscribeErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeErr = err
}

// Connect implements feed.Client.
func (c *Client) Connect(ctx context.Context) error {
	cur := atomic.AddInt32(&c.inFlight, 1)
	for {
		max := atomic.LoadInt32(&c.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&c.maxInFlight, max, cur) {
			break
		}
	}
	defer atomic.AddInt32(&c.inFlight, -1)

	if c.ConnectDelay > 0 {
		timer := time.NewTimer(c.ConnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.connectCalls++
	if c.remainingFails > 0 {
		c.remainingFails--
		return ErrConnectRefused
	}
	c.connected = true
	return nil
}

// Disconnect implements feed.Client.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	c.disconnects++
	return nil
}

// IsConnected implements feed.Client.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SubscribeTrades implements feed.Client.
func (c *Client) SubscribeTrades(ctx context.Context, symbol model.Symbol) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.subscribed = append(c.subscribed, symbol)
	return nil
}

// UnsubscribeTrades implements feed.Client.
func (c *Client) UnsubscribeTrades(ctx context.Context, symbol model.Symbol) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.unsubscribed = append(c.unsubscribed, symbol)
	return nil
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

// FireTrade emits a trade event as if it arrived from the feed.
func (c *Client) FireTrade(tr model.Trade) { c.trades.Emit(tr) }

// FireSubscriptionUpdate emits a subscription acknowledgement.
func (c *Client) FireSubscriptionUpdate(u model.SubscriptionUpdate) { c.subsUpds.Emit(u) }

// FireConnectionLost marks the fake disconnected and emits the event.
func (c *Client) FireConnectionLost() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.lost.Emit(struct{}{})
}

// FireConnectionRestored emits the restored event.
func (c *Client) FireConnectionRestored() { c.restored.Emit(struct{}{}) }

// ConnectCalls returns how many times Connect ran.
func (c *Client) ConnectCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectCalls
}

// Disconnects returns how many times Disconnect ran while connected.
func (c *Client) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// MaxInFlightConnects returns the peak number of overlapping Connect
// calls.
func (c *Client) MaxInFlightConnects() int {
	return int(atomic.LoadInt32(&c.maxInFlight))
}

// Subscribed returns the symbols passed to SubscribeTrades, in order.
func (c *Client) Subscribed() []model.Symbol {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Symbol, len(c.subscribed))
	copy(out, c.subscribed)
	return out
}

// Unsubscribed returns the symbols passed to UnsubscribeTrades, in order.
func (c *Client) Unsubscribed() []model.Symbol {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Symbol, len(c.unsubscribed))
	copy(out, c.unsubscribed)
	return out
}
