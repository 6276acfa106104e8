// Package ratelimit provides an in-memory sliding-window request ledger.
// It is used both by the request governor (the shared budget for calls to
// NASA) and as a standalone HTTP middleware limiting each browser client.
package ratelimit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Window records one timestamp per permitted call and counts the ones that
// fall inside the trailing window.
//
// Admission checking and recording are separate operations: Record never
// refuses. Callers that want an atomic check-and-record use Take.
type Window struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	limit      int
	window     time.Duration
	timestamps []time.Time // chronological
}

// Option configures a Window.
type Option func(*Window)

// WithClock sets the time source.
func WithClock(c clockwork.Clock) Option {
	return func(w *Window) {
		if c != nil {
			w.clock = c
		}
	}
}

// New creates a Window permitting limit calls in any trailing window.
func New(limit int, window time.Duration, opts ...Option) *Window {
	w := &Window{
		clock:  clockwork.NewRealClock(),
		limit:  limit,
		window: window,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Limit returns the maximum number of calls per window.
func (w *Window) Limit() int { return w.limit }

// Span returns the trailing window length.
func (w *Window) Span() time.Duration { return w.window }

// Allow reports whether another call would currently be admitted. It purges
// expired timestamps but does not record anything.
func (w *Window) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.purge(w.clock.Now())
	return len(w.timestamps) < w.limit
}

// Record appends the current instant to the ledger.
func (w *Window) Record() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timestamps = append(w.timestamps, w.clock.Now())
}

// Wait returns how long until the oldest call in the window ages out, or
// zero when a call is admitted now. It is recomputed on every call.
func (w *Window) Wait() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wait(w.clock.Now())
}

// Take admits and records a call atomically. When the call is refused it
// returns false and the wait until the next slot frees up.
func (w *Window) Take() (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.purge(now)
	if len(w.timestamps) < w.limit {
		w.timestamps = append(w.timestamps, now)
		return true, 0
	}
	return false, w.wait(now)
}

// Count returns the number of recorded calls still inside the window.
func (w *Window) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.purge(w.clock.Now())
	return len(w.timestamps)
}

// Remaining returns how many calls would be admitted right now.
func (w *Window) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.purge(w.clock.Now())
	if n := w.limit - len(w.timestamps); n > 0 {
		return n
	}
	return 0
}

// wait must be called with w.mu held.
func (w *Window) wait(now time.Time) time.Duration {
	w.purge(now)
	if len(w.timestamps) < w.limit {
		return 0
	}
	// Measured from the oldest surviving entry even when Record has pushed
	// the ledger past limit. The estimate then falls short and a later call
	// reports the remainder.
	if d := w.timestamps[0].Add(w.window).Sub(now); d > 0 {
		return d
	}
	return 0
}

// purge drops timestamps at least one window old. Must be called with w.mu
// held.
func (w *Window) purge(now time.Time) {
	i := 0
	for i < len(w.timestamps) && now.Sub(w.timestamps[i]) >= w.window {
		i++
	}
	if i == 0 {
		return
	}
	w.timestamps = append(w.timestamps[:0], w.timestamps[i:]...)
}
