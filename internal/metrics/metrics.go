// Package metrics registers the Prometheus metrics used by the gateway.
// Import this package from the server entry point so all metrics are
// registered before the /metrics handler is mounted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upstream call counters and histograms.
var (
	// UpstreamRequests counts calls that were admitted by the governor and
	// sent to NASA, labelled by endpoint and outcome ("success", "error").
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nasagw_upstream_requests_total",
			Help: "Total number of calls sent to the NASA APIs.",
		},
		[]string{"endpoint", "status"},
	)

	// UpstreamDuration observes upstream call latency in seconds.
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nasagw_upstream_duration_seconds",
			Help:    "Upstream NASA API call duration in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	// CacheLookups counts governor cache lookups by endpoint and result
	// ("hit", "miss").
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nasagw_cache_lookups_total",
			Help: "Governor cache lookups by result.",
		},
		[]string{"endpoint", "result"},
	)

	// RateLimitRejections counts requests refused by rate limiting, labelled
	// by scope: "governor" (shared NASA budget exhausted) or "client"
	// (per-client inbound limit).
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nasagw_rate_limit_rejections_total",
			Help: "Total requests rejected by rate limiting.",
		},
		[]string{"scope"},
	)

	// LedgerInWindow is the number of upstream calls inside the governor's
	// trailing window, sampled after each governed call.
	LedgerInWindow = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nasagw_governor_requests_in_window",
			Help: "Upstream calls counted in the current rate window.",
		},
	)

	// CircuitBreakerState tracks the upstream circuit breaker state:
	// 0 = closed, 1 = open, 2 = half_open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nasagw_circuit_breaker_state",
			Help: "Circuit breaker state per upstream (0=closed 1=open 2=half_open).",
		},
		[]string{"upstream"},
	)
)
