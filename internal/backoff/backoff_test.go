package backoff

import (
	"testing"
	"time"
)

func TestExponential_Sequence(t *testing.T) {
	s := NewExponential(5*time.Second, 300*time.Second)

	want := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		80 * time.Second,
		160 * time.Second,
		300 * time.Second, // capped
		300 * time.Second,
	}
	for i, w := range want {
		if got := s.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestExponential_ScenarioCapAt30(t *testing.T) {
	// 6 consecutive failures then success: delays 1,2,4,8,16,30.
	s := NewExponential(1*time.Second, 30*time.Second)

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second, // a 7th failure stays capped
	}
	for i, w := range want {
		if got := s.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestExponential_NonIntegerMultiplier(t *testing.T) {
	s := Exponential{Initial: time.Second, Max: time.Minute, Multiplier: 1.5}

	if got := s.Delay(1); got != time.Second {
		t.Errorf("Delay(1) = %v, want 1s", got)
	}
	if got := s.Delay(2); got != 1500*time.Millisecond {
		t.Errorf("Delay(2) = %v, want 1.5s", got)
	}
	if got := s.Delay(3); got != 2250*time.Millisecond {
		t.Errorf("Delay(3) = %v, want 2.25s", got)
	}
}

func TestExponential_AttemptBelowOne(t *testing.T) {
	s := NewExponential(time.Second, time.Minute)

	if got := s.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v, want 1s", got)
	}
	if got := s.Delay(-3); got != time.Second {
		t.Errorf("Delay(-3) = %v, want 1s", got)
	}
}

func TestExponential_LargeAttemptStaysCapped(t *testing.T) {
	// Huge attempt numbers must not overflow past the cap.
	s := NewExponential(time.Second, 5*time.Minute)

	if got := s.Delay(500); got != 5*time.Minute {
		t.Errorf("Delay(500) = %v, want 5m", got)
	}
}

func TestExponential_IsPure(t *testing.T) {
	s := NewExponential(time.Second, time.Minute)

	first := s.Delay(4)
	for i := 0; i < 10; i++ {
		if got := s.Delay(4); got != first {
			t.Fatalf("Delay(4) changed between calls: %v != %v", got, first)
		}
	}
}

func TestLinear_Sequence(t *testing.T) {
	s := Linear{Initial: time.Second, Step: 2 * time.Second, Max: 6 * time.Second}

	want := []time.Duration{
		1 * time.Second,
		3 * time.Second,
		5 * time.Second,
		6 * time.Second, // capped
		6 * time.Second,
	}
	for i, w := range want {
		if got := s.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}
