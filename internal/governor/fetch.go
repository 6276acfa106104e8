package governor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrRateLimited matches any *RateLimitedError via errors.Is.
var ErrRateLimited = errors.New("upstream request budget exhausted")

// RateLimitedError is returned by Fetch when the window is full. Wait is the
// time until the next call would be admitted.
type RateLimitedError struct {
	Wait time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit reached: retry in %d seconds", e.RetryAfterSeconds())
}

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds rounds Wait up to whole seconds, the unit of the HTTP
// Retry-After header.
func (e *RateLimitedError) RetryAfterSeconds() int {
	return int(math.Ceil(e.Wait.Seconds()))
}

// FetchFunc performs the upstream call for a cache miss.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Fetch returns the cached value for key or, on a miss, consumes a ledger
// slot and calls fn. Admission and recording happen under one lock so
// parallel callers cannot overshoot the limit. The slot is consumed before
// fn runs and is kept even if fn fails. Successful results are cached;
// errors are not.
//
// A cached value of a different type than T is treated as a miss. With
// single flight enabled, concurrent misses for key share one call, which
// keeps running when the caller that started it gives up.
func Fetch[T any](ctx context.Context, g *Governor, key string, fn FetchFunc[T]) (T, error) {
	if v, ok := cached[T](g, key); ok {
		return v, nil
	}
	if g.flight == nil {
		return admitAndCall(ctx, g, key, fn)
	}

	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	// The flight is shared, so it must not die with the caller that
	// started it. Each caller stops waiting on its own ctx instead.
	flightCtx := context.WithoutCancel(ctx)
	ch := g.flight.DoChan(key, func() (interface{}, error) {
		// A concurrent flight may have filled the cache while this one
		// was waiting to start.
		if v, ok := g.peek(key); ok {
			if t, ok := v.(T); ok {
				return t, nil
			}
		}
		return admitAndCall(flightCtx, g, key, fn)
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		if v, ok := res.Val.(T); ok {
			return v, nil
		}
		// Joined a flight for the same key but another type.
		return admitAndCall(ctx, g, key, fn)
	}
}

func cached[T any](g *Governor, key string) (T, bool) {
	var zero T
	v, ok := g.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// peek reads the cache without touching the hit/miss counters.
func (g *Governor) peek(key string) (any, bool) {
	v, ok, _ := g.cache.Lookup(key)
	return v, ok
}

func admitAndCall[T any](ctx context.Context, g *Governor, key string, fn FetchFunc[T]) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if ok, wait := g.TakeRequest(); !ok {
		return zero, &RateLimitedError{Wait: wait}
	}

	v, err := fn(ctx)
	if err != nil {
		return zero, err
	}
	g.Set(key, v)
	return v, nil
}
