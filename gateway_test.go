package nasagateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferro-labs/nasa-gateway/internal/circuitbreaker"
	"github.com/ferro-labs/nasa-gateway/internal/governor"
	"github.com/ferro-labs/nasa-gateway/internal/requestlog"
	"github.com/ferro-labs/nasa-gateway/missions"
	"github.com/ferro-labs/nasa-gateway/nasa"
)

var testNow = time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC)

// stubNASA answers the NASA paths the gateway uses and counts hits per path.
type stubNASA struct {
	mu       sync.Mutex
	hits     map[string]int
	failWith int
}

func (s *stubNASA) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *stubNASA) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.hits {
		n += v
	}
	return n
}

func (s *stubNASA) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	fail := s.failWith
	s.mu.Unlock()

	if fail != 0 {
		http.Error(w, "upstream says no", fail)
		return
	}
	switch r.URL.Path {
	case "/planetary/apod":
		date := r.URL.Query().Get("date")
		_, _ = w.Write([]byte(`{"date":"` + date + `","title":"Picture ` + date + `","media_type":"image"}`))
	case "/neo/rest/v1/neo/3542519":
		_, _ = w.Write([]byte(`{"id":"3542519","name":"(2010 PK9)","is_potentially_hazardous_asteroid":false}`))
	case "/mars-photos/api/v1/rovers":
		_, _ = w.Write([]byte(`{"rovers":[
			{"id":5,"name":"Curiosity","launch_date":"2011-11-26","status":"active","max_date":"2024-05-01"},
			{"id":8,"name":"Perseverance","launch_date":"2020-07-30","status":"active","max_date":"2024-05-02"}]}`))
	case "/search":
		q := r.URL.Query().Get("q")
		if !strings.Contains(q, "Webb") {
			_, _ = w.Write([]byte(`{"collection":{"items":[],"metadata":{"total_hits":0}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"collection":{"items":[
			{"href":"https://images-assets.nasa.gov/w/collection.json",
			 "data":[{"nasa_id":"w1","title":"Webb","description":"Webb unfolds its mirror.","media_type":"image"}],
			 "links":[{"href":"https://images-assets.nasa.gov/w/thumb.jpg"}]}],
			"metadata":{"total_hits":1}}}`))
	default:
		http.NotFound(w, r)
	}
}

func (s *stubNASA) fail(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = status
}

type advancer interface {
	Advance(d time.Duration)
}

func newTestGateway(t *testing.T, cfg Config, opts ...Option) (*Gateway, *stubNASA, advancer) {
	t.Helper()
	stub := &stubNASA{hits: make(map[string]int)}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	clock := clockwork.NewFakeClockAt(testNow)
	cfg.Upstream.BaseURL = srv.URL
	cfg.Upstream.ImagesBaseURL = srv.URL
	cfg.Upstream.APIKey = "test-key"

	gw, err := New(cfg, append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })
	return gw, stub, clock
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{RequestLog: RequestLogConfig{Driver: "mysql"}})
	assert.Error(t, err)
}

func TestGateway_APODIsCached(t *testing.T) {
	gw, stub, _ := newTestGateway(t, Config{})
	ctx := context.Background()

	first, err := gw.APOD(ctx, "2024-05-01")
	require.NoError(t, err)
	second, err := gw.APOD(ctx, "2024-05-01")
	require.NoError(t, err)

	assert.Equal(t, "Picture 2024-05-01", first.Title)
	assert.Same(t, first, second)
	assert.Equal(t, 1, stub.count("/planetary/apod"))

	stats := gw.Stats()
	assert.Equal(t, 1, stats.InWindow)
	assert.Equal(t, uint64(1), stats.CacheHits)
}

func TestGateway_APODTodayUsesDatedKey(t *testing.T) {
	gw, stub, _ := newTestGateway(t, Config{})
	ctx := context.Background()

	_, err := gw.APOD(ctx, "")
	require.NoError(t, err)
	_, err = gw.APOD(ctx, "2024-05-10")
	require.NoError(t, err)

	assert.Equal(t, 1, stub.count("/planetary/apod"), "today and its explicit date share a cache entry")
}

func TestGateway_APODByID(t *testing.T) {
	gw, _, _ := newTestGateway(t, Config{})

	apod, err := gw.APODByID(context.Background(), "apod-2024-05-03")
	require.NoError(t, err)
	assert.Equal(t, "apod-2024-05-03", apod.ID)

	_, err = gw.APODByID(context.Background(), "bogus")
	assert.ErrorIs(t, err, nasa.ErrNotFound)
}

func TestGateway_InvalidInputSkipsBudget(t *testing.T) {
	gw, stub, _ := newTestGateway(t, Config{})
	ctx := context.Background()

	_, err := gw.APOD(ctx, "2030-01-01")
	assert.ErrorIs(t, err, nasa.ErrInvalidDate)
	_, err = gw.NeoFeed(ctx, "2024-05-01", "2024-05-20")
	assert.ErrorIs(t, err, nasa.ErrInvalidDate)
	_, err = gw.SearchImages(ctx, "  ", nasa.SearchOptions{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = gw.NeoByID(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = gw.EarthImagesByDate(ctx, time.Time{})
	assert.ErrorIs(t, err, nasa.ErrInvalidDate)

	assert.Zero(t, stub.total())
	assert.Zero(t, gw.Stats().InWindow)
}

func TestGateway_BudgetExhausted(t *testing.T) {
	gw, stub, clock := newTestGateway(t, Config{Governor: GovernorConfig{MaxRequests: 2, RateWindow: Duration(time.Hour)}})
	ctx := context.Background()

	_, err := gw.APOD(ctx, "2024-05-01")
	require.NoError(t, err)
	_, err = gw.APOD(ctx, "2024-05-02")
	require.NoError(t, err)

	_, err = gw.APOD(ctx, "2024-05-03")
	require.ErrorIs(t, err, governor.ErrRateLimited)
	var limited *governor.RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, time.Hour, limited.Wait)
	assert.Equal(t, 2, stub.count("/planetary/apod"))

	// Cached responses are still served with no budget left.
	_, err = gw.APOD(ctx, "2024-05-01")
	assert.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = gw.APOD(ctx, "2024-05-03")
	assert.NoError(t, err)
}

func TestGateway_FailureConsumesSlotAndIsNotCached(t *testing.T) {
	gw, stub, _ := newTestGateway(t, Config{})
	ctx := context.Background()

	stub.fail(http.StatusInternalServerError)
	_, err := gw.NeoByID(ctx, "3542519")
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, nasa.StatusCode(err))
	assert.Equal(t, 1, gw.Stats().InWindow)

	stub.fail(0)
	neo, err := gw.NeoByID(ctx, "3542519")
	require.NoError(t, err)
	assert.Equal(t, "(2010 PK9)", neo.Name)
	assert.Equal(t, 2, gw.Stats().InWindow)
}

func TestGateway_ClearCacheKeepsBudget(t *testing.T) {
	gw, stub, _ := newTestGateway(t, Config{})
	ctx := context.Background()

	_, err := gw.MarsRovers(ctx)
	require.NoError(t, err)
	gw.ClearCache()
	_, err = gw.MarsRovers(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, stub.count("/mars-photos/api/v1/rovers"))
	assert.Equal(t, 2, gw.Stats().InWindow)
}

func TestGateway_CircuitOpensWithoutSpendingBudget(t *testing.T) {
	cfg := Config{CircuitBreaker: CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          Duration(30 * time.Second),
	}}
	gw, stub, clock := newTestGateway(t, cfg)
	ctx := context.Background()

	_, err := gw.APOD(ctx, "2024-05-01")
	require.NoError(t, err)

	stub.fail(http.StatusBadGateway)
	for _, d := range []string{"2024-05-02", "2024-05-03"} {
		_, err := gw.APOD(ctx, d)
		require.Error(t, err)
	}
	assert.Equal(t, "open", gw.BreakerState())
	before := gw.Stats().InWindow

	_, err = gw.APOD(ctx, "2024-05-04")
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	var open *CircuitOpenError
	require.ErrorAs(t, err, &open)
	assert.Equal(t, 30*time.Second, open.RetryAfter)
	assert.Equal(t, before, gw.Stats().InWindow, "open circuit must not consume a slot")
	assert.Equal(t, 3, stub.count("/planetary/apod"))

	// Cached values are served while the circuit is open.
	_, err = gw.APOD(ctx, "2024-05-01")
	assert.NoError(t, err)

	stub.fail(0)
	clock.Advance(30 * time.Second)
	_, err = gw.APOD(ctx, "2024-05-04")
	require.NoError(t, err)
	assert.Equal(t, "closed", gw.BreakerState())
}

func TestGateway_ClientErrorsDoNotTripBreaker(t *testing.T) {
	cfg := Config{CircuitBreaker: CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          Duration(time.Minute),
	}}
	gw, _, _ := newTestGateway(t, cfg)

	_, err := gw.NeoByID(context.Background(), "unknown")
	require.ErrorIs(t, err, nasa.ErrNotFound)
	assert.Equal(t, "closed", gw.BreakerState())
}

func TestGateway_HooksReceiveEvents(t *testing.T) {
	gw, _, _ := newTestGateway(t, Config{Governor: GovernorConfig{MaxRequests: 1}})

	events := make(chan string, 4)
	gw.AddHook(func(_ context.Context, subject string, data map[string]interface{}) {
		ts, _ := data["timestamp"].(time.Time)
		events <- subject + ":" + data["cache_key"].(string) + "@" + ts.UTC().Format(time.RFC3339)
	})

	ctx := context.Background()
	_, err := gw.APOD(ctx, "2024-05-01")
	require.NoError(t, err)
	_, err = gw.APOD(ctx, "2024-05-02")
	require.ErrorIs(t, err, governor.ErrRateLimited)

	got := []string{receive(t, events), receive(t, events)}
	assert.ElementsMatch(t, []string{
		SubjectRequestCompleted + ":apod_2024-05-01@2024-05-10T12:00:00Z",
		SubjectRequestRateLimited + ":apod_2024-05-02@2024-05-10T12:00:00Z",
	}, got)
}

type memoryLog struct {
	mu      sync.Mutex
	entries []requestlog.Entry
	written chan struct{}
	closed  atomic.Bool
}

func (m *memoryLog) Write(_ context.Context, e requestlog.Entry) error {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	m.written <- struct{}{}
	return nil
}

func (m *memoryLog) Close() error {
	m.closed.Store(true)
	return nil
}

func TestGateway_RequestLog(t *testing.T) {
	logs := &memoryLog{written: make(chan struct{}, 4)}
	gw, stub, _ := newTestGateway(t, Config{}, WithRequestLog(logs))
	ctx := context.Background()

	_, err := gw.APOD(ctx, "2024-05-01")
	require.NoError(t, err)
	stub.fail(http.StatusServiceUnavailable)
	_, err = gw.APOD(ctx, "2024-05-02")
	require.Error(t, err)

	for range 2 {
		select {
		case <-logs.written:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for request log write")
		}
	}

	logs.mu.Lock()
	defer logs.mu.Unlock()
	byKey := map[string]requestlog.Entry{}
	for _, e := range logs.entries {
		byKey[e.CacheKey] = e
	}
	ok := byKey["apod_2024-05-01"]
	assert.Equal(t, OutcomeSuccess, ok.Outcome)
	assert.Equal(t, http.StatusOK, ok.StatusCode)
	assert.Equal(t, EndpointAPOD, ok.Endpoint)
	assert.True(t, ok.CreatedAt.Equal(testNow), "created_at = %v, want the gateway clock", ok.CreatedAt)

	failed := byKey["apod_2024-05-02"]
	assert.Equal(t, OutcomeError, failed.Outcome)
	assert.Equal(t, http.StatusServiceUnavailable, failed.StatusCode)
	assert.NotEmpty(t, failed.ErrorMessage)
	assert.True(t, failed.CreatedAt.Equal(testNow), "created_at = %v, want the gateway clock", failed.CreatedAt)

	require.NoError(t, gw.Close())
	assert.True(t, logs.closed.Load())
}

func TestGateway_Missions(t *testing.T) {
	gw, stub, _ := newTestGateway(t, Config{})

	all, err := gw.Missions(context.Background())
	require.NoError(t, err)

	ids := make([]string, 0, len(all))
	for _, m := range all {
		ids = append(ids, m.ID)
	}
	assert.Contains(t, ids, "curiosity")
	assert.Contains(t, ids, "perseverance")
	assert.Contains(t, ids, "webb")
	assert.Equal(t, "artemis", all[0].ID, "newest launch first")
	assert.Equal(t, "dragonfly", all[len(all)-1].ID, "undated missions last")

	webb, ok := missions.Find(all, "webb")
	require.True(t, ok)
	assert.Equal(t, "Webb unfolds its mirror.", webb.Description)
	assert.Equal(t, "https://images-assets.nasa.gov/w/thumb.jpg", webb.ImageURL)

	// A second listing is served entirely from cache.
	calls := stub.total()
	_, err = gw.Missions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, calls, stub.total())
}

func TestGateway_MissionsDegradeWhenBudgetSpent(t *testing.T) {
	gw, stub, _ := newTestGateway(t, Config{Governor: GovernorConfig{MaxRequests: 1}})
	ctx := context.Background()

	_, err := gw.APOD(ctx, "2024-05-01")
	require.NoError(t, err)

	all, err := gw.Missions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.total())

	curated, err := gw.MissionByID(ctx, "dragonfly")
	require.NoError(t, err)
	assert.Equal(t, "dragonfly", curated.ID)
	for _, m := range all {
		assert.NotEqual(t, "rover", string(m.Type), "rovers need the upstream")
	}
}

func TestGateway_MissionByIDNotFound(t *testing.T) {
	gw, _, _ := newTestGateway(t, Config{})

	_, err := gw.MissionByID(context.Background(), "voyager-9")
	assert.ErrorIs(t, err, nasa.ErrNotFound)
}

func TestGateway_SingleFlightCoalesces(t *testing.T) {
	gw, stub, _ := newTestGateway(t, Config{Governor: GovernorConfig{SingleFlight: true}})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gw.MarsRovers(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	// Late arrivals may hit the cache, early ones share the flight; either
	// way NASA sees one call.
	assert.Equal(t, 1, stub.count("/mars-photos/api/v1/rovers"))
}

func TestSearchKey(t *testing.T) {
	assert.Equal(t, "search_mars_1", searchKey("mars", nasa.SearchOptions{}))
	assert.Equal(t, "search_mars_3", searchKey("mars", nasa.SearchOptions{Page: 3}))
	assert.Equal(t, "search_mars_1_n10_from2020", searchKey("mars", nasa.SearchOptions{PageSize: 10, YearStart: "2020"}))
}

func TestCircuitOpenErrorIs(t *testing.T) {
	err := error(&CircuitOpenError{RetryAfter: time.Second})
	assert.True(t, errors.Is(err, circuitbreaker.ErrCircuitOpen))
	assert.False(t, errors.Is(err, governor.ErrRateLimited))
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for hook")
		return ""
	}
}
