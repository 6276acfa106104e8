// Package nasagateway serves NASA open data (APOD, EPIC, NeoWs, the Image
// and Video Library and the Mars rovers) behind a request governor that
// caches responses and keeps outbound calls inside a fixed hourly budget.
//
// The Gateway type is the main entry point: create one with New from a
// [Config] (loadable from YAML or JSON with [LoadConfig]) and call its
// typed accessors. Every accessor goes through the governor, so repeated
// reads are answered from cache and a spent budget is reported as
// governor.ErrRateLimited instead of reaching NASA.
package nasagateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ferro-labs/nasa-gateway/internal/circuitbreaker"
	"github.com/ferro-labs/nasa-gateway/internal/governor"
	"github.com/ferro-labs/nasa-gateway/internal/logging"
	"github.com/ferro-labs/nasa-gateway/internal/metrics"
	"github.com/ferro-labs/nasa-gateway/internal/requestlog"
	"github.com/ferro-labs/nasa-gateway/nasa"
)

// Event subjects published to hooks.
const (
	SubjectRequestCompleted   = "upstream.request.completed"
	SubjectRequestFailed      = "upstream.request.failed"
	SubjectRequestRateLimited = "upstream.request.rate_limited"
)

// Endpoint labels used in metrics, logs and the request log.
const (
	EndpointAPOD   = "apod"
	EndpointEPIC   = "epic"
	EndpointNeo    = "neo"
	EndpointImages = "images"
	EndpointRovers = "rovers"
)

const breakerName = "nasa"

// ErrInvalidRequest is returned for arguments rejected before any cache
// lookup or upstream call.
var ErrInvalidRequest = errors.New("invalid request")

// EventHookFunc is called asynchronously after an upstream call completes,
// fails, or is refused by the governor.
type EventHookFunc func(ctx context.Context, subject string, data map[string]interface{})

// CircuitOpenError is returned while the upstream breaker is open.
type CircuitOpenError struct {
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("nasa upstream unavailable, retry in %s", e.RetryAfter.Round(time.Second))
}

// Is reports whether target is circuitbreaker.ErrCircuitOpen.
func (e *CircuitOpenError) Is(target error) bool {
	return target == circuitbreaker.ErrCircuitOpen
}

// Gateway fronts the NASA APIs with a governor, an optional circuit breaker
// and event hooks.
type Gateway struct {
	mu       sync.RWMutex
	config   Config
	governor *governor.Governor
	client   *nasa.Client
	clock    clockwork.Clock
	breaker  *circuitbreaker.CircuitBreaker
	logs     requestlog.Writer
	hooks    []EventHookFunc
}

type gatewayOptions struct {
	clock      clockwork.Clock
	httpClient *http.Client
	logs       requestlog.Writer
}

// Option customizes a Gateway.
type Option func(*gatewayOptions)

// WithClock replaces the wall clock used by the governor, breaker and
// client. Tests pass a fake clock.
func WithClock(c clockwork.Clock) Option {
	return func(o *gatewayOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithHTTPClient sets the HTTP client used for NASA calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *gatewayOptions) { o.httpClient = hc }
}

// WithRequestLog persists every admitted upstream call to w. The gateway
// closes w on Close when it implements io.Closer.
func WithRequestLog(w requestlog.Writer) Option {
	return func(o *gatewayOptions) { o.logs = w }
}

// New creates a Gateway from cfg.
func New(cfg Config, opts ...Option) (*Gateway, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := gatewayOptions{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	govOpts := []governor.Option{
		governor.WithClock(o.clock),
		governor.WithMaxRequests(cfg.Governor.MaxRequests),
		governor.WithRateWindow(cfg.Governor.RateWindow.Std()),
		governor.WithCapacity(cfg.Governor.CacheCapacity),
	}
	if cfg.Governor.CacheExpiration != nil {
		govOpts = append(govOpts, governor.WithCacheExpiration(cfg.Governor.CacheExpiration.Std()))
	}
	if cfg.Governor.SingleFlight {
		govOpts = append(govOpts, governor.WithSingleFlight())
	}

	clientOpts := []nasa.Option{nasa.WithClock(o.clock)}
	if cfg.Upstream.BaseURL != "" {
		clientOpts = append(clientOpts, nasa.WithBaseURL(cfg.Upstream.BaseURL))
	}
	if cfg.Upstream.ImagesBaseURL != "" {
		clientOpts = append(clientOpts, nasa.WithImagesBaseURL(cfg.Upstream.ImagesBaseURL))
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, nasa.WithHTTPClient(o.httpClient))
	}
	if cfg.Upstream.Timeout > 0 {
		clientOpts = append(clientOpts, nasa.WithTimeout(cfg.Upstream.Timeout.Std()))
	}

	g := &Gateway{
		config:   cfg,
		governor: governor.New(govOpts...),
		client:   nasa.NewClient(cfg.Upstream.APIKey, clientOpts...),
		clock:    o.clock,
	}

	if cb := cfg.CircuitBreaker; cb.Enabled() {
		g.breaker = circuitbreaker.New(cb.FailureThreshold, cb.SuccessThreshold, cb.Timeout.Std(),
			circuitbreaker.WithClock(o.clock),
			circuitbreaker.WithStateChange(func(from, to circuitbreaker.State) {
				metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(float64(to))
				logging.Logger.Warn("circuit breaker state change",
					"upstream", breakerName, "from", from.String(), "to", to.String())
			}),
		)
		metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(float64(circuitbreaker.StateClosed))
	}

	if o.logs != nil {
		g.logs = o.logs
		g.AddHook(RequestLogHook(o.logs))
	}
	return g, nil
}

// AddHook registers an event hook. Hooks run in their own goroutine and
// must not block for long.
func (g *Gateway) AddHook(fn EventHookFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks = append(g.hooks, fn)
}

// Config returns the configuration the gateway was built from.
func (g *Gateway) Config() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.config
}

// Governor exposes the underlying governor.
func (g *Gateway) Governor() *governor.Governor { return g.governor }

// Client exposes the underlying NASA client.
func (g *Gateway) Client() *nasa.Client { return g.client }

// Stats returns the governor's budget and cache snapshot.
func (g *Gateway) Stats() governor.Stats { return g.governor.Stats() }

// BreakerState reports the upstream breaker state, or "disabled".
func (g *Gateway) BreakerState() string {
	if g.breaker == nil {
		return "disabled"
	}
	return g.breaker.State().String()
}

// ClearCache drops every cached response. The request budget is untouched.
func (g *Gateway) ClearCache() {
	g.governor.Clear()
}

// Close releases the request log, if any.
func (g *Gateway) Close() error {
	if c, ok := g.logs.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// APOD returns the Astronomy Picture of the Day for date (YYYY-MM-DD), or
// for today when date is empty.
func (g *Gateway) APOD(ctx context.Context, date string) (*nasa.APOD, error) {
	today := g.client.Today()
	if date == "" {
		date = today.Format(nasa.DateLayout)
	} else if !nasa.ValidAPODDate(date, today) {
		return nil, fmt.Errorf("apod date %q: %w", date, nasa.ErrInvalidDate)
	}
	return governed(ctx, g, EndpointAPOD, "apod_"+date, func(ctx context.Context) (*nasa.APOD, error) {
		return g.client.APOD(ctx, date)
	})
}

// APODByID resolves an "apod-YYYY-MM-DD" identifier.
func (g *Gateway) APODByID(ctx context.Context, id string) (*nasa.APOD, error) {
	date, ok := nasa.DateFromAPODID(id, g.client.Today())
	if !ok {
		return nil, fmt.Errorf("apod id %q: %w", id, nasa.ErrNotFound)
	}
	return g.APOD(ctx, date)
}

// SearchImages queries the NASA Image and Video Library.
func (g *Gateway) SearchImages(ctx context.Context, query string, opts nasa.SearchOptions) (*nasa.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrInvalidRequest)
	}
	return governed(ctx, g, EndpointImages, searchKey(query, opts), func(ctx context.Context) (*nasa.SearchResult, error) {
		return g.client.SearchImages(ctx, query, opts)
	})
}

// searchKey is "search_<q>_<page>", extended with the page size and year
// filters only when they are set.
func searchKey(query string, opts nasa.SearchOptions) string {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	var b strings.Builder
	b.WriteString("search_")
	b.WriteString(query)
	b.WriteByte('_')
	b.WriteString(strconv.Itoa(page))
	if opts.PageSize > 0 {
		b.WriteString("_n")
		b.WriteString(strconv.Itoa(opts.PageSize))
	}
	if opts.YearStart != "" {
		b.WriteString("_from")
		b.WriteString(opts.YearStart)
	}
	if opts.YearEnd != "" {
		b.WriteString("_to")
		b.WriteString(opts.YearEnd)
	}
	return b.String()
}

// LatestEarthImages returns the most recent EPIC natural-color set.
func (g *Gateway) LatestEarthImages(ctx context.Context) ([]nasa.EarthImage, error) {
	return governed(ctx, g, EndpointEPIC, "latest_earth_images", g.client.LatestEarthImages)
}

// EarthImagesByDate returns the EPIC images taken on day.
func (g *Gateway) EarthImagesByDate(ctx context.Context, day time.Time) ([]nasa.EarthImage, error) {
	if day.IsZero() {
		return nil, fmt.Errorf("epic date: %w", nasa.ErrInvalidDate)
	}
	key := "earth_images_" + day.Format(nasa.DateLayout)
	return governed(ctx, g, EndpointEPIC, key, func(ctx context.Context) ([]nasa.EarthImage, error) {
		return g.client.EarthImagesByDate(ctx, day)
	})
}

// NeoFeed returns the near-Earth objects approaching between start and end
// (inclusive, at most seven days apart).
func (g *Gateway) NeoFeed(ctx context.Context, start, end string) (*nasa.NeoFeed, error) {
	if err := nasa.ValidateFeedRange(start, end); err != nil {
		return nil, err
	}
	key := "neo_feed_" + start + "_" + end
	return governed(ctx, g, EndpointNeo, key, func(ctx context.Context) (*nasa.NeoFeed, error) {
		return g.client.NeoFeed(ctx, start, end)
	})
}

// NeoByID looks up a single near-Earth object.
func (g *Gateway) NeoByID(ctx context.Context, id string) (*nasa.NearEarthObject, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: neo id is required", ErrInvalidRequest)
	}
	return governed(ctx, g, EndpointNeo, "neo_"+id, func(ctx context.Context) (*nasa.NearEarthObject, error) {
		return g.client.NeoByID(ctx, id)
	})
}

// MarsRovers lists the rovers known to the Mars Rover Photos API.
func (g *Gateway) MarsRovers(ctx context.Context) ([]nasa.Rover, error) {
	return governed(ctx, g, EndpointRovers, "mars_rovers", g.client.MarsRovers)
}

// governed runs call through the governor and records the outcome. The
// breaker is consulted before admission so an open circuit never consumes
// a budget slot; cached values are still served while it is open.
func governed[T any](ctx context.Context, g *Gateway, endpoint, key string, call func(context.Context) (T, error)) (T, error) {
	log := logging.FromContext(ctx).With("endpoint", endpoint, "cache_key", key)

	if g.breaker != nil && !g.breaker.Allow() {
		if v, ok := g.governor.Get(key); ok {
			if t, ok := v.(T); ok {
				metrics.CacheLookups.WithLabelValues(endpoint, "hit").Inc()
				return t, nil
			}
		}
		var zero T
		wait := g.breaker.RetryAfter()
		log.Warn("upstream circuit open", "retry_after_ms", wait.Milliseconds())
		return zero, &CircuitOpenError{RetryAfter: wait}
	}

	var called atomic.Bool
	v, err := governor.Fetch(ctx, g.governor, key, func(ctx context.Context) (T, error) {
		called.Store(true)
		start := g.clock.Now()
		out, err := call(ctx)
		g.observe(ctx, endpoint, key, g.clock.Since(start), err)
		return out, err
	})
	metrics.LedgerInWindow.Set(float64(g.governor.Stats().InWindow))

	var limited *governor.RateLimitedError
	switch {
	case called.Load():
		metrics.CacheLookups.WithLabelValues(endpoint, "miss").Inc()
	case err == nil:
		metrics.CacheLookups.WithLabelValues(endpoint, "hit").Inc()
	case errors.As(err, &limited):
		metrics.CacheLookups.WithLabelValues(endpoint, "miss").Inc()
		metrics.RateLimitRejections.WithLabelValues("governor").Inc()
		log.Warn("upstream budget exhausted", "retry_after_ms", limited.Wait.Milliseconds())
		g.publishEvent(ctx, SubjectRequestRateLimited, map[string]interface{}{
			"trace_id":            logging.TraceIDFromContext(ctx),
			"endpoint":            endpoint,
			"cache_key":           key,
			"retry_after_seconds": limited.RetryAfterSeconds(),
			"timestamp":           g.clock.Now(),
		})
	}
	return v, err
}

// observe records one admitted upstream call.
func (g *Gateway) observe(ctx context.Context, endpoint, key string, latency time.Duration, err error) {
	log := logging.FromContext(ctx)
	metrics.UpstreamDuration.WithLabelValues(endpoint).Observe(latency.Seconds())

	if err == nil {
		if g.breaker != nil {
			g.breaker.RecordSuccess()
		}
		metrics.UpstreamRequests.WithLabelValues(endpoint, "success").Inc()
		log.Info("upstream request completed",
			"endpoint", endpoint,
			"cache_key", key,
			"latency_ms", latency.Milliseconds(),
		)
		g.publishEvent(ctx, SubjectRequestCompleted, map[string]interface{}{
			"trace_id":   logging.TraceIDFromContext(ctx),
			"endpoint":   endpoint,
			"cache_key":  key,
			"status":     http.StatusOK,
			"latency_ms": latency.Milliseconds(),
			"timestamp":  g.clock.Now(),
		})
		return
	}

	status := nasa.StatusCode(err)
	if g.breaker != nil {
		switch {
		case errors.Is(err, context.Canceled):
		case status >= 400 && status < 500 && status != http.StatusTooManyRequests:
			// The upstream answered; the request itself was bad.
			g.breaker.RecordSuccess()
		default:
			g.breaker.RecordFailure()
		}
	}
	metrics.UpstreamRequests.WithLabelValues(endpoint, "error").Inc()
	log.Error("upstream request failed",
		"endpoint", endpoint,
		"cache_key", key,
		"status", status,
		"latency_ms", latency.Milliseconds(),
		"error", err.Error(),
	)
	g.publishEvent(ctx, SubjectRequestFailed, map[string]interface{}{
		"trace_id":   logging.TraceIDFromContext(ctx),
		"endpoint":   endpoint,
		"cache_key":  key,
		"status":     status,
		"error":      err.Error(),
		"latency_ms": latency.Milliseconds(),
		"timestamp":  g.clock.Now(),
	})
}

// publishEvent calls all registered hooks asynchronously.
func (g *Gateway) publishEvent(ctx context.Context, subject string, data map[string]interface{}) {
	g.mu.RLock()
	hooks := make([]EventHookFunc, len(g.hooks))
	copy(hooks, g.hooks)
	g.mu.RUnlock()

	for _, h := range hooks {
		fn := h
		go fn(ctx, subject, data)
	}
}
