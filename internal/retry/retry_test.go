package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ScottLogic/epace-sandbox/internal/backoff"
)

var errBoom = errors.New("boom")

func fastStrategy() backoff.Strategy {
	return backoff.NewExponential(time.Millisecond, 4*time.Millisecond)
}

func TestExecuteWithRetry_SucceedsFirstTry(t *testing.T) {
	c := NewConnector(fastStrategy(), nil)

	calls := 0
	err := c.ExecuteWithRetry(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithRetry() = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestExecuteWithRetry_RetriesUntilSuccess(t *testing.T) {
	c := NewConnector(fastStrategy(), nil)

	calls := 0
	err := c.ExecuteWithRetry(context.Background(), func(context.Context) error {
		calls++
		if calls < 4 {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithRetry() = %v, want nil", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestExecuteWithRetry_CancelledBeforeFirstAttempt(t *testing.T) {
	c := NewConnector(fastStrategy(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := c.ExecuteWithRetry(ctx, func(context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ExecuteWithRetry() = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestExecuteWithRetry_CancelledDuringSleep(t *testing.T) {
	// A long delay must be abandoned promptly when the context fires.
	slow := backoff.NewExponential(time.Hour, time.Hour)
	c := NewConnector(slow, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := c.ExecuteWithRetry(ctx, func(context.Context) error {
		return errBoom
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ExecuteWithRetry() = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation took %v, want prompt return", elapsed)
	}
}

func TestExecuteWithRetry_CancellationFromOpNotRetried(t *testing.T) {
	c := NewConnector(fastStrategy(), nil)

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := c.ExecuteWithRetry(ctx, func(context.Context) error {
		calls++
		cancel()
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ExecuteWithRetry() = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (cancellation must not be retried)", calls)
	}
}

func TestExecuteWithRetry_TimeoutErrorsRetried(t *testing.T) {
	// A dial handshake timeout surfaces as an error wrapping
	// context.DeadlineExceeded while the caller's context is still
	// live. That is a transient failure, not our cancellation.
	c := NewConnector(fastStrategy(), nil)

	calls := 0
	err := c.ExecuteWithRetry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("websocket: dial: %w", context.DeadlineExceeded)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithRetry() = %v, want nil (timeout failures must be retried)", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestExecuteWithRetry_WrappedCanceledFromOpRetriedWhileCtxLive(t *testing.T) {
	// Cancellation is judged by the caller's context, not by the shape
	// of the op's error.
	c := NewConnector(fastStrategy(), nil)

	calls := 0
	err := c.ExecuteWithRetry(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return fmt.Errorf("read: %w", context.Canceled)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithRetry() = %v, want nil", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestExecuteWithRetry_AttemptCounterResetsPerInvocation(t *testing.T) {
	recorder := &recordingStrategy{}
	c := NewConnector(recorder, nil)

	run := func(failures int) {
		calls := 0
		err := c.ExecuteWithRetry(context.Background(), func(context.Context) error {
			calls++
			if calls <= failures {
				return errBoom
			}
			return nil
		})
		if err != nil {
			t.Fatalf("ExecuteWithRetry() = %v, want nil", err)
		}
	}

	run(3)
	run(2)

	want := []int{1, 2, 3, 1, 2}
	if len(recorder.attempts) != len(want) {
		t.Fatalf("attempts = %v, want %v", recorder.attempts, want)
	}
	for i, w := range want {
		if recorder.attempts[i] != w {
			t.Errorf("attempts[%d] = %d, want %d", i, recorder.attempts[i], w)
		}
	}
}

// recordingStrategy records attempt numbers and returns no delay.
type recordingStrategy struct {
	attempts []int
}

func (r *recordingStrategy) Delay(attempt int) time.Duration {
	r.attempts = append(r.attempts, attempt)
	return 0
}
