package circuitbreaker

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestInitialStateClosed(t *testing.T) {
	cb := New(3, 1, 10*time.Second)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed, got %s", cb.State())
	}
	if !cb.Allow() {
		t.Fatal("expected Allow=true when closed")
	}
}

func TestOpensAfterThreshold(t *testing.T) {
	cb := New(3, 1, 10*time.Second)
	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", cb.State())
	}
	if cb.Allow() {
		t.Fatal("expected Allow=false when open")
	}
}

func TestTransitionsToHalfOpenAfterTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := New(1, 1, time.Minute, WithClock(clock))
	cb.RecordFailure()

	clock.Advance(59 * time.Second)
	if cb.State() != StateOpen {
		t.Fatalf("expected open before timeout, got %s", cb.State())
	}
	if got := cb.RetryAfter(); got != time.Second {
		t.Errorf("retry after = %v, want 1s", got)
	}

	clock.Advance(time.Second)
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half_open after timeout, got %s", cb.State())
	}
	if !cb.Allow() {
		t.Fatal("expected Allow=true when half_open")
	}
	if cb.RetryAfter() != 0 {
		t.Error("expected zero retry after once half_open")
	}
}

func TestClosesAfterSuccessInHalfOpen(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := New(1, 1, time.Second, WithClock(clock))
	cb.RecordFailure()
	clock.Advance(time.Second)
	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after success in half_open, got %s", cb.State())
	}
}

func TestReopensOnFailureInHalfOpen(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := New(1, 1, time.Second, WithClock(clock))
	cb.RecordFailure()
	clock.Advance(time.Second)
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("expected open after failure in half_open, got %s", cb.State())
	}
}

func TestSuccessResetFailureCount(t *testing.T) {
	cb := New(3, 1, 10*time.Second)
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Fatalf("expected still closed (failure count reset), got %s", cb.State())
	}
}

func TestStateChangeCallback(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var seen []string
	cb := New(1, 1, time.Second, WithClock(clock), WithStateChange(func(from, to State) {
		seen = append(seen, from.String()+">"+to.String())
	}))
	cb.RecordFailure()
	clock.Advance(time.Second)
	cb.RecordSuccess()

	want := []string{"closed>open", "open>half_open", "half_open>closed"}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, seen[i], want[i])
		}
	}
}
