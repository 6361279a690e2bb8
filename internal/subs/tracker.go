// Package subs reference-counts downstream symbol subscriptions.
//
// Many downstream subscribers can share one physical upstream subscription
// per symbol. The tracker's refcount alone gates whether a real upstream
// subscribe or unsubscribe message is needed.
package subs

import (
	"sync"

	"github.com/ScottLogic/epace-sandbox/internal/model"
)

// Tracker maps symbols to their active subscriber counts.
type Tracker struct {
	mu   sync.Mutex
	refs map[model.Symbol]int
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{refs: make(map[model.Symbol]int)}
}

// Acquire increments the refcount for symbol. It returns true iff the
// count transitioned from 0 to 1, i.e. the caller must issue the real
// upstream subscribe.
func (t *Tracker) Acquire(symbol model.Symbol) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refs[symbol]++
	return t.refs[symbol] == 1
}

// Release decrements the refcount for symbol, never below zero. It
// returns true iff the count transitioned to exactly 0, i.e. the caller
// must issue the real upstream unsubscribe. Releasing a symbol with no
// subscribers is a no-op that returns false.
func (t *Tracker) Release(symbol model.Symbol) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.refs[symbol]
	if !ok || n == 0 {
		return false
	}
	if n == 1 {
		delete(t.refs, symbol)
		return true
	}
	t.refs[symbol] = n - 1
	return false
}

// Count returns the current refcount for symbol.
func (t *Tracker) Count(symbol model.Symbol) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refs[symbol]
}

// Active returns every symbol with a positive refcount.
func (t *Tracker) Active() []model.Symbol {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.Symbol, 0, len(t.refs))
	for s := range t.refs {
		out = append(out, s)
	}
	return out
}
