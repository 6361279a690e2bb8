// Package conn owns the upstream connection lifecycle: initial connect,
// loss detection and reconnection with backoff.
package conn

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ScottLogic/epace-sandbox/internal/event"
	"github.com/ScottLogic/epace-sandbox/internal/feed"
	"github.com/ScottLogic/epace-sandbox/internal/retry"
)

// Manager drives the feed client's connection state machine:
// Disconnected → Connecting (infinite retry with backoff) → Connected →
// Connecting on transport loss → ... → Disconnected on Stop.
//
// Start is single-flight: concurrent callers collapse into one physical
// attempt sequence. The backoff delay restarts at the initial value for
// every fresh sequence — explicit Start and autonomous reconnect alike.
type Manager struct {
	client    feed.Client
	connector *retry.Connector
	logger    *slog.Logger

	sf singleflight.Group

	mu         sync.Mutex
	runCtx     context.Context
	lostHandle event.Handle
	watching   bool
	seqCancel  context.CancelFunc // aborts the in-flight attempt sequence
}

// NewManager creates a Manager around the given client. It does not
// connect.
func NewManager(client feed.Client, connector *retry.Connector, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		client:    client,
		connector: connector,
		logger:    logger,
	}
}

// Start connects the client, retrying with backoff until success or
// cancellation. Already connected is a no-op. Cancellation during
// startup is not reported as a failure. The first Start also arms the
// autonomous reconnect watcher, scoped to ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if !m.watching {
		m.watching = true
		m.runCtx = ctx
		m.lostHandle = m.client.OnConnectionLost(m.onConnectionLost)
	}
	m.mu.Unlock()

	if m.client.IsConnected() {
		return nil
	}

	_, err, _ := m.sf.Do("connect", func() (interface{}, error) {
		// Re-check under the single-flight: a racing caller may have
		// finished connecting while we queued.
		if m.client.IsConnected() {
			return nil, nil
		}

		// Scope the sequence so Stop can abort it even when the
		// lifetime context stays live.
		seqCtx, cancel := context.WithCancel(ctx)
		m.mu.Lock()
		m.seqCancel = cancel
		m.mu.Unlock()
		defer func() {
			cancel()
			m.mu.Lock()
			m.seqCancel = nil
			m.mu.Unlock()
		}()

		return nil, m.connector.ExecuteWithRetry(seqCtx, m.client.Connect)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			m.logger.Info("connect cancelled")
			return nil
		}
		return err
	}
	return nil
}

// Stop disarms the reconnect watcher, aborts any attempt sequence in
// flight and disconnects the client if currently connected; no-op
// otherwise.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	h := m.lostHandle
	m.lostHandle = event.Handle{}
	m.watching = false
	cancel := m.seqCancel
	m.mu.Unlock()

	h.Cancel()
	if cancel != nil {
		cancel()
	}

	if !m.client.IsConnected() {
		return nil
	}
	return m.client.Disconnect(ctx)
}

// IsConnected reports the live transport state, sourced from the client
// so it cannot drift.
func (m *Manager) IsConnected() bool {
	return m.client.IsConnected()
}

// onConnectionLost restarts the retry loop in the background.
func (m *Manager) onConnectionLost() {
	m.mu.Lock()
	ctx := m.runCtx
	watching := m.watching
	m.mu.Unlock()

	if !watching || ctx == nil || ctx.Err() != nil {
		return
	}

	m.logger.Warn("connection lost, reconnecting")
	go func() {
		if err := m.Start(ctx); err != nil {
			m.logger.Error("reconnect failed", "error", err)
		}
	}()
}
