// Package backoff provides retry delay strategies.
//
// A Strategy is a pure function of the attempt number and its own
// configuration: no hidden state, no I/O. Attempt numbers are 1-based;
// the first retry waits the initial delay.
package backoff

import "time"

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns the wait before the given 1-based attempt.
	Delay(attempt int) time.Duration
}

// Exponential grows the delay multiplicatively, capped at Max.
//
//	delay = min(Initial * Multiplier^(attempt-1), Max)
type Exponential struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// NewExponential creates an exponential strategy with the conventional
// doubling multiplier.
func NewExponential(initial, max time.Duration) Exponential {
	return Exponential{Initial: initial, Max: max, Multiplier: 2.0}
}

// Delay implements Strategy.
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(e.Initial)
	for i := 1; i < attempt; i++ {
		d *= e.Multiplier
		if time.Duration(d) >= e.Max {
			return e.Max
		}
	}
	if time.Duration(d) > e.Max {
		return e.Max
	}
	return time.Duration(d)
}

// Linear grows the delay by a fixed step, capped at Max.
//
//	delay = min(Initial + Step*(attempt-1), Max)
type Linear struct {
	Initial time.Duration
	Step    time.Duration
	Max     time.Duration
}

// Delay implements Strategy.
func (l Linear) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := l.Initial + l.Step*time.Duration(attempt-1)
	if d > l.Max {
		return l.Max
	}
	return d
}
