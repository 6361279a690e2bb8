// Package retry runs connect-style operations until they succeed or the
// caller cancels. There is no attempt cap: the caller decides when to give
// up by cancelling the context.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/ScottLogic/epace-sandbox/internal/backoff"
)

// Op is the operation to retry.
type Op func(ctx context.Context) error

// Connector retries an operation with backoff between failures.
type Connector struct {
	strategy backoff.Strategy
	logger   *slog.Logger
}

// NewConnector creates a Connector using the given strategy.
func NewConnector(strategy backoff.Strategy, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{strategy: strategy, logger: logger}
}

// ExecuteWithRetry invokes op until it succeeds or ctx is cancelled.
// The attempt counter (and therefore the backoff delay) is scoped to this
// invocation: every call starts back at the initial delay.
//
// Cancellation is judged by ctx alone. An op error that merely wraps
// context.DeadlineExceeded — a dial handshake timeout, say — is a
// retryable failure like any other while ctx is live.
func (c *Connector) ExecuteWithRetry(ctx context.Context, op Op) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}

		delay := c.strategy.Delay(attempt)
		c.logger.Warn("attempt failed, backing off",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
