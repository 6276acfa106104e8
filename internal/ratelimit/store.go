package ratelimit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// pruneEvery is how many new keys a Store accepts between sweeps of idle
// windows.
const pruneEvery = 1024

// Store maintains per-key Window instances.
type Store struct {
	mu      sync.RWMutex
	windows map[string]*Window
	limit   int
	span    time.Duration
	clock   clockwork.Clock
	added   int
}

// NewStore creates a Store whose per-key windows share the same limit and
// span.
func NewStore(limit int, span time.Duration, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		windows: make(map[string]*Window),
		limit:   limit,
		span:    span,
		clock:   clock,
	}
}

// Take admits and records a call for key, creating its window if needed.
// The window is taken while s.mu is held so a concurrent prune cannot
// drop it between lookup and record.
func (s *Store) Take(key string) (bool, time.Duration) {
	s.mu.RLock()
	if w, ok := s.windows[key]; ok {
		defer s.mu.RUnlock()
		return w.Take()
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok {
		s.added++
		if s.added%pruneEvery == 0 {
			s.pruneLocked()
		}
		w = New(s.limit, s.span, WithClock(s.clock))
		s.windows[key] = w
	}
	return w.Take()
}

// Len returns the number of tracked keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.windows)
}

// Prune drops windows with no calls left inside their span.
func (s *Store) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
}

func (s *Store) pruneLocked() {
	for key, w := range s.windows {
		if w.Count() == 0 {
			delete(s.windows, key)
		}
	}
}
