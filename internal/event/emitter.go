package event

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultBufferSize is the per-subscriber channel capacity.
const DefaultBufferSize = 256

// Handle identifies one registered subscriber. Cancelling the handle
// detaches the subscriber; further emissions are not delivered to it.
type Handle struct {
	id     uuid.UUID
	cancel func()
}

// ID returns the subscriber's capability token.
func (h Handle) ID() uuid.UUID { return h.id }

// Cancel detaches the subscriber and waits for its dispatch goroutine
// to stop. Safe to call more than once; a zero Handle is a no-op.
func (h Handle) Cancel() {
	if h.cancel != nil {
		h.cancel()
	}
}

type subscriber[T any] struct {
	ch      chan T
	done    chan struct{}
	stopped chan struct{}
}

// Emitter fans events out to registered subscribers. Each subscriber owns
// a buffered channel drained by its own goroutine, so Emit never blocks:
// when a subscriber's buffer is full the event is dropped for that
// subscriber only. Within one subscriber, delivery preserves emit order.
type Emitter[T any] struct {
	mu      sync.Mutex
	subs    map[uuid.UUID]*subscriber[T]
	dropped int64
}

// NewEmitter creates an empty emitter.
func NewEmitter[T any]() *Emitter[T] {
	return &Emitter[T]{subs: make(map[uuid.UUID]*subscriber[T])}
}

// Subscribe registers fn and returns its handle. fn runs on a dedicated
// goroutine; it must not be assumed to run on the emitting goroutine.
func (e *Emitter[T]) Subscribe(fn func(T)) Handle {
	return e.SubscribeBuffered(fn, DefaultBufferSize)
}

// SubscribeBuffered registers fn with an explicit buffer capacity.
//
// The returned handle's Cancel waits for the subscriber's goroutine to
// stop, so once Cancel returns no further fn invocation starts — events
// still sitting in the buffer are discarded. Do not call Cancel from
// inside fn.
func (e *Emitter[T]) SubscribeBuffered(fn func(T), buffer int) Handle {
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscriber[T]{
		ch:      make(chan T, buffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	id := uuid.New()

	e.mu.Lock()
	e.subs[id] = sub
	e.mu.Unlock()

	go func() {
		defer close(sub.stopped)
		for {
			select {
			case <-sub.done:
				return
			case v := <-sub.ch:
				// Prefer done over a buffered event.
				select {
				case <-sub.done:
					return
				default:
				}
				fn(v)
			}
		}
	}()

	var once sync.Once
	return Handle{
		id: id,
		cancel: func() {
			once.Do(func() {
				e.mu.Lock()
				delete(e.subs, id)
				e.mu.Unlock()
				close(sub.done)
				<-sub.stopped
			})
		},
	}
}

// Emit delivers v to every current subscriber without blocking.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	targets := make([]*subscriber[T], 0, len(e.subs))
	for _, s := range e.subs {
		targets = append(targets, s)
	}
	e.mu.Unlock()

	for _, s := range targets {
		select {
		case s.ch <- v:
		default:
			e.mu.Lock()
			e.dropped++
			e.mu.Unlock()
		}
	}
}

// Len returns the number of registered subscribers.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Dropped returns how many deliveries were skipped due to full buffers.
func (e *Emitter[T]) Dropped() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}
