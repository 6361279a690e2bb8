// Package service wires the feed client, connection manager, subscription
// tracker and trade cache into the relay's public surface.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ScottLogic/epace-sandbox/internal/cache"
	"github.com/ScottLogic/epace-sandbox/internal/conn"
	"github.com/ScottLogic/epace-sandbox/internal/event"
	"github.com/ScottLogic/epace-sandbox/internal/feed"
	"github.com/ScottLogic/epace-sandbox/internal/model"
	"github.com/ScottLogic/epace-sandbox/internal/subs"
)

// TradeSink receives every newly cached trade, e.g. for archival.
// Enqueue must not block.
type TradeSink interface {
	Enqueue(model.Trade) bool
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithTradeSink attaches a sink for newly cached trades.
func WithTradeSink(sink TradeSink) Option {
	return func(s *Service) { s.sink = sink }
}

// Service relays upstream trades to downstream consumers.
//
// Received trades are deduplicated through the cache before re-emission:
// consumers see each trade ID at most once. Re-emission follows arrival
// order; cached retrieval is timestamp-ordered.
type Service struct {
	client  feed.Client
	manager *conn.Manager
	store   *cache.Store
	tracker *subs.Tracker
	sink    TradeSink
	logger  *slog.Logger

	trades   *event.Emitter[model.Trade]
	subsUpds *event.Emitter[model.SubscriptionUpdate]
	lost     *event.Emitter[struct{}]
	restored *event.Emitter[struct{}]

	mu      sync.Mutex
	handles []event.Handle
	runCtx  context.Context
	started bool
}

// NewService creates the orchestrator. Ownership of the manager, store
// and tracker passes to the service for its lifetime.
func NewService(client feed.Client, manager *conn.Manager, store *cache.Store, tracker *subs.Tracker, opts ...Option) *Service {
	s := &Service{
		client:   client,
		manager:  manager,
		store:    store,
		tracker:  tracker,
		logger:   slog.Default(),
		trades:   event.NewEmitter[model.Trade](),
		subsUpds: event.NewEmitter[model.SubscriptionUpdate](),
		lost:     event.NewEmitter[struct{}](),
		restored: event.NewEmitter[struct{}](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start attaches the upstream event handlers, then connects. ctx scopes
// the service's lifetime: it propagates to the retry loop and any
// in-flight backoff sleep.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.runCtx = ctx
	s.handles = []event.Handle{
		s.client.OnTrade(s.handleTrade),
		s.client.OnSubscriptionUpdate(s.handleSubscriptionUpdate),
		s.client.OnConnectionLost(s.handleConnectionLost),
		s.client.OnConnectionRestored(s.handleConnectionRestored),
	}
	s.mu.Unlock()

	s.logger.Info("data service starting")
	return s.manager.Start(ctx)
}

// Stop detaches the upstream event handlers, then disconnects. After
// Stop returns, late upstream events are discarded: no trade is recorded
// or re-emitted.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.started = false
	s.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}

	s.logger.Info("data service stopping")
	return s.manager.Stop(ctx)
}

// IsConnected reports the upstream transport state.
func (s *Service) IsConnected() bool {
	return s.manager.IsConnected()
}

// SubscribeToTrades registers downstream interest in symbol. The real
// upstream subscribe is sent only when this is the symbol's first
// subscriber.
func (s *Service) SubscribeToTrades(ctx context.Context, symbol model.Symbol) error {
	if !s.tracker.Acquire(symbol) {
		return nil
	}
	if err := s.client.SubscribeTrades(ctx, symbol); err != nil {
		// Roll back so the next subscriber retries the upstream call.
		s.tracker.Release(symbol)
		return err
	}
	s.logger.Debug("subscribed upstream", "symbol", symbol)
	return nil
}

// UnsubscribeFromTrades drops downstream interest in symbol. The real
// upstream unsubscribe is sent only when the last subscriber leaves.
func (s *Service) UnsubscribeFromTrades(ctx context.Context, symbol model.Symbol) error {
	if !s.tracker.Release(symbol) {
		return nil
	}
	if err := s.client.UnsubscribeTrades(ctx, symbol); err != nil {
		return err
	}
	s.logger.Debug("unsubscribed upstream", "symbol", symbol)
	return nil
}

// RecentTrades returns up to count cached trades for symbol, most
// recent first.
func (s *Service) RecentTrades(symbol model.Symbol, count int) ([]model.Trade, error) {
	return s.store.Recent(symbol, count)
}

// RecentTradesBefore returns up to count cached trades strictly before
// the given instant, most recent first.
func (s *Service) RecentTradesBefore(symbol model.Symbol, count int, before time.Time) ([]model.Trade, error) {
	return s.store.RecentBefore(symbol, count, before)
}

// TradesSince returns the most recent count cached trades strictly
// after the given instant.
func (s *Service) TradesSince(symbol model.Symbol, count int, after time.Time) ([]model.Trade, error) {
	return s.store.Since(symbol, count, after)
}

// ClearTrades drops the cached trades for symbol.
func (s *Service) ClearTrades(symbol model.Symbol) {
	s.store.Clear(symbol)
}

// OnTrade registers a consumer for newly cached trades.
func (s *Service) OnTrade(fn func(model.Trade)) event.Handle {
	return s.trades.Subscribe(fn)
}

// OnSubscriptionUpdate registers a consumer for upstream subscription
// acknowledgements.
func (s *Service) OnSubscriptionUpdate(fn func(model.SubscriptionUpdate)) event.Handle {
	return s.subsUpds.Subscribe(fn)
}

// OnConnectionLost registers a consumer for connection-lost events.
func (s *Service) OnConnectionLost(fn func()) event.Handle {
	return s.lost.Subscribe(func(struct{}) { fn() })
}

// OnConnectionRestored registers a consumer for connection-restored
// events, fired after resubscription completes.
func (s *Service) OnConnectionRestored(fn func()) event.Handle {
	return s.restored.Subscribe(func(struct{}) { fn() })
}

// handleTrade records an incoming trade and re-emits it unless its ID
// was already cached for the symbol. Duplicates are dropped silently.
func (s *Service) handleTrade(tr model.Trade) {
	if !s.store.TryAdd(tr) {
		return
	}
	if s.sink != nil {
		s.sink.Enqueue(tr)
	}
	s.trades.Emit(tr)
}

func (s *Service) handleSubscriptionUpdate(u model.SubscriptionUpdate) {
	if u.Kind == model.EventRejected {
		s.logger.Warn("subscription rejected", "symbol", u.Symbol, "reason", u.Reason)
	}
	s.subsUpds.Emit(u)
}

func (s *Service) handleConnectionLost() {
	s.lost.Emit(struct{}{})
}

// handleConnectionRestored reissues the upstream subscribe for every
// symbol with a positive refcount — the feed does not remember
// subscriptions across a reconnect — then notifies consumers.
func (s *Service) handleConnectionRestored() {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	active := s.tracker.Active()
	for _, symbol := range active {
		if err := s.client.SubscribeTrades(ctx, symbol); err != nil {
			s.logger.Error("resubscribe failed", "symbol", symbol, "error", err)
		}
	}
	if len(active) > 0 {
		s.logger.Info("resubscribed after reconnect", "symbols", len(active))
	}
	s.restored.Emit(struct{}{})
}
