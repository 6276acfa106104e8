// Package governor gates calls to a rate-limited upstream API. It combines a
// time-boxed response cache with a sliding-window request ledger:
//
//	v, ok := g.Get(key)              // serve from cache when fresh
//	if !ok && !g.CanMakeRequest() {  // otherwise ask for a slot
//	    wait := g.TimeUntilNextRequest()
//	}
//	g.RecordRequest()                // consume the slot before calling out
//	g.Set(key, result)               // remember the answer
//
// The limiter is cooperative: RecordRequest never refuses, so callers must
// check CanMakeRequest first. Fetch implements that sequence once for all
// callers.
//
// Every operation is synchronous, never blocks on I/O and never fails.
package governor

import (
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/ferro-labs/nasa-gateway/internal/cache"
	"github.com/ferro-labs/nasa-gateway/internal/ratelimit"
)

// Defaults match NASA's api.nasa.gov budget for a shared key.
const (
	DefaultMaxRequests     = 30
	DefaultRateWindow      = time.Hour
	DefaultCacheExpiration = time.Hour
)

// Governor is a response cache plus request ledger for one upstream. The
// zero value is not usable; construct with New.
type Governor struct {
	clock  clockwork.Clock
	cache  *cache.Memory
	ledger *ratelimit.Window
	flight *singleflight.Group

	hits        atomic.Uint64
	misses      atomic.Uint64
	expirations atomic.Uint64
}

type options struct {
	maxRequests     int
	rateWindow      time.Duration
	cacheExpiration time.Duration
	capacity        int
	clock           clockwork.Clock
	singleFlight    bool
}

// Option configures a Governor.
type Option func(*options)

// WithMaxRequests sets how many outbound calls are permitted per window.
// Values <= 0 keep the default.
func WithMaxRequests(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRequests = n
		}
	}
}

// WithRateWindow sets the trailing window requests are counted over.
// Values <= 0 keep the default.
func WithRateWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.rateWindow = d
		}
	}
}

// WithCacheExpiration sets how long a stored value stays servable. Zero
// disables caching; negative values keep the default.
func WithCacheExpiration(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.cacheExpiration = d
		}
	}
}

// WithCapacity bounds the number of cached entries (LRU). Zero means
// unbounded.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithSingleFlight makes Fetch coalesce concurrent misses for the same key
// into a single upstream call and a single ledger slot. Without it two
// concurrent misses both go upstream.
func WithSingleFlight() Option {
	return func(o *options) { o.singleFlight = true }
}

// New creates a Governor. With no options it allows 30 requests per hour and
// caches responses for one hour.
func New(opts ...Option) *Governor {
	o := options{
		maxRequests:     DefaultMaxRequests,
		rateWindow:      DefaultRateWindow,
		cacheExpiration: DefaultCacheExpiration,
		clock:           clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	g := &Governor{
		clock:  o.clock,
		cache:  cache.NewMemory(o.cacheExpiration, cache.WithClock(o.clock), cache.WithCapacity(o.capacity)),
		ledger: ratelimit.New(o.maxRequests, o.rateWindow, ratelimit.WithClock(o.clock)),
	}
	if o.singleFlight {
		g.flight = &singleflight.Group{}
	}
	return g
}

// Get returns the cached value for key. An entry at least CacheExpiration old
// is deleted and reported absent. The value is returned as stored; callers
// must not mutate it.
func (g *Governor) Get(key string) (any, bool) {
	v, ok, expired := g.cache.Lookup(key)
	switch {
	case ok:
		g.hits.Add(1)
	case expired:
		g.expirations.Add(1)
		g.misses.Add(1)
	default:
		g.misses.Add(1)
	}
	return v, ok
}

// Set stores value under key, replacing any previous entry.
func (g *Governor) Set(key string, value any) {
	g.cache.Set(key, value)
}

// CanMakeRequest reports whether an outbound call is currently admitted. It
// does not record the call.
func (g *Governor) CanMakeRequest() bool {
	return g.ledger.Allow()
}

// RecordRequest consumes a slot in the window. It does not check admission.
func (g *Governor) RecordRequest() {
	g.ledger.Record()
}

// TakeRequest is CanMakeRequest and RecordRequest as one atomic step. When
// the call is refused it returns the wait as TimeUntilNextRequest would.
func (g *Governor) TakeRequest() (bool, time.Duration) {
	return g.ledger.Take()
}

// TimeUntilNextRequest returns zero when a call is admitted now, otherwise
// the time until the oldest recorded call ages out of the window.
func (g *Governor) TimeUntilNextRequest() time.Duration {
	return g.ledger.Wait()
}

// Clear drops every cache entry. The request ledger is left untouched.
func (g *Governor) Clear() {
	g.cache.Clear()
}

// Len returns the number of stored cache entries.
func (g *Governor) Len() int {
	return g.cache.Len()
}

// Stats is a point-in-time view of a Governor.
type Stats struct {
	Limit         int           `json:"limit"`
	Window        time.Duration `json:"window_ns"`
	InWindow      int           `json:"in_window"`
	Remaining     int           `json:"remaining"`
	Wait          time.Duration `json:"wait_ns"`
	CacheEntries  int           `json:"cache_entries"`
	CacheHits     uint64        `json:"cache_hits"`
	CacheMisses   uint64        `json:"cache_misses"`
	CacheExpiries uint64        `json:"cache_expirations"`
	SingleFlight  bool          `json:"single_flight"`
	ObservedAt    time.Time     `json:"observed_at"`
}

// Stats returns a snapshot of the ledger and cache counters.
func (g *Governor) Stats() Stats {
	return Stats{
		Limit:         g.ledger.Limit(),
		Window:        g.ledger.Span(),
		InWindow:      g.ledger.Count(),
		Remaining:     g.ledger.Remaining(),
		Wait:          g.ledger.Wait(),
		CacheEntries:  g.cache.Len(),
		CacheHits:     g.hits.Load(),
		CacheMisses:   g.misses.Load(),
		CacheExpiries: g.expirations.Load(),
		SingleFlight:  g.flight != nil,
		ObservedAt:    g.clock.Now(),
	}
}
