// Package cache stores recent trades per symbol for query-on-demand.
//
// Each symbol owns a bounded, deduplicated, time-ordered collection.
// Retrieval is always timestamp-descending regardless of arrival order.
// Entries never auto-expire; retention beyond the per-symbol bound is a
// documented future extension.
package cache

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ScottLogic/epace-sandbox/internal/model"
)

// ErrInvalidCount is returned when a query asks for a negative number of
// trades.
var ErrInvalidCount = errors.New("count must be non-negative")

// Config holds cache limits.
type Config struct {
	// MaxTradesPerSymbol bounds each symbol's entry. When full, the
	// oldest trade is evicted and its ID leaves the dedup set.
	MaxTradesPerSymbol int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MaxTradesPerSymbol: 10000}
}

// entry holds one symbol's trades, ascending by timestamp, plus the set
// of trade IDs already stored.
type entry struct {
	trades []model.Trade
	seen   map[string]struct{}
}

// Store is the keyed per-symbol trade cache. A single lock guards the
// whole store; expected symbol cardinality is small.
type Store struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[model.Symbol]*entry
}

// NewStore creates an empty store.
func NewStore(cfg Config, logger *slog.Logger) *Store {
	if cfg.MaxTradesPerSymbol < 1 {
		cfg.MaxTradesPerSymbol = DefaultConfig().MaxTradesPerSymbol
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		cfg:     cfg,
		logger:  logger,
		entries: make(map[model.Symbol]*entry),
	}
}

// TryAdd inserts the trade unless its ID is already present for the
// symbol. It returns true iff the trade was newly inserted.
func (s *Store) TryAdd(trade model.Trade) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[trade.Symbol]
	if !ok {
		e = &entry{seen: make(map[string]struct{})}
		s.entries[trade.Symbol] = e
	}

	if _, dup := e.seen[trade.TradeID]; dup {
		return false
	}

	// Insert keeping ascending timestamp order. Arrival order is not
	// trusted; equal timestamps keep arrival order among themselves.
	idx := sort.Search(len(e.trades), func(i int) bool {
		return e.trades[i].Timestamp.After(trade.Timestamp)
	})
	e.trades = append(e.trades, model.Trade{})
	copy(e.trades[idx+1:], e.trades[idx:])
	e.trades[idx] = trade
	e.seen[trade.TradeID] = struct{}{}

	if len(e.trades) > s.cfg.MaxTradesPerSymbol {
		evicted := e.trades[0]
		e.trades = e.trades[1:]
		delete(e.seen, evicted.TradeID)
		s.logger.Debug("evicted oldest trade",
			"symbol", trade.Symbol,
			"trade_id", evicted.TradeID,
		)
	}

	return true
}

// Recent returns up to count trades for symbol, most recent first. An
// unknown symbol yields an empty slice, not an error.
func (s *Store) Recent(symbol model.Symbol, count int) ([]model.Trade, error) {
	if count < 0 {
		return nil, ErrInvalidCount
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[symbol]
	if !ok {
		return []model.Trade{}, nil
	}
	return lastDescending(e.trades, count), nil
}

// RecentBefore returns up to count trades with timestamp strictly before
// the given instant, most recent first. Enables backward pagination.
func (s *Store) RecentBefore(symbol model.Symbol, count int, before time.Time) ([]model.Trade, error) {
	if count < 0 {
		return nil, ErrInvalidCount
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[symbol]
	if !ok {
		return []model.Trade{}, nil
	}

	// First index with timestamp >= before; everything left of it is
	// strictly earlier.
	idx := sort.Search(len(e.trades), func(i int) bool {
		return !e.trades[i].Timestamp.Before(before)
	})
	return lastDescending(e.trades[:idx], count), nil
}

// Since returns the most recent count trades with timestamp strictly
// after the given instant, most recent first.
func (s *Store) Since(symbol model.Symbol, count int, after time.Time) ([]model.Trade, error) {
	if count < 0 {
		return nil, ErrInvalidCount
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[symbol]
	if !ok {
		return []model.Trade{}, nil
	}

	// First index with timestamp > after.
	idx := sort.Search(len(e.trades), func(i int) bool {
		return e.trades[i].Timestamp.After(after)
	})
	return lastDescending(e.trades[idx:], count), nil
}

// Clear drops all trades and the dedup set for symbol. Idempotent.
func (s *Store) Clear(symbol model.Symbol) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, symbol)
}

// Count returns the number of distinct trades stored for symbol.
func (s *Store) Count(symbol model.Symbol) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[symbol]
	if !ok {
		return 0
	}
	return len(e.trades)
}

// Symbols returns every symbol with at least one cached trade.
func (s *Store) Symbols() []model.Symbol {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Symbol, 0, len(s.entries))
	for sym := range s.entries {
		out = append(out, sym)
	}
	return out
}

// lastDescending copies the newest count trades from an ascending slice,
// reversed to most-recent-first.
func lastDescending(asc []model.Trade, count int) []model.Trade {
	if count > len(asc) {
		count = len(asc)
	}
	out := make([]model.Trade, count)
	for i := 0; i < count; i++ {
		out[i] = asc[len(asc)-1-i]
	}
	return out
}
