package nasagateway

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the NASA gateway.
type Config struct {
	// Governor sets the shared upstream budget and the response cache.
	Governor GovernorConfig `json:"governor" yaml:"governor"`
	// Upstream points the gateway at the NASA APIs.
	Upstream UpstreamConfig `json:"upstream" yaml:"upstream"`
	// CircuitBreaker guards the upstream (optional).
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
	// ClientRateLimit limits each inbound client (optional).
	ClientRateLimit ClientRateLimitConfig `json:"client_rate_limit,omitempty" yaml:"client_rate_limit,omitempty"`
	// RequestLog persists one row per admitted upstream call (optional).
	RequestLog RequestLogConfig `json:"request_log,omitempty" yaml:"request_log,omitempty"`
}

// GovernorConfig configures the request governor. Zero values fall back to
// the governor defaults (30 calls per hour, one hour cache lifetime), except
// CacheExpiration which, when set explicitly to "0s", disables caching.
type GovernorConfig struct {
	MaxRequests     int       `json:"max_requests,omitempty" yaml:"max_requests,omitempty"`
	RateWindow      Duration  `json:"rate_window,omitempty" yaml:"rate_window,omitempty"`
	CacheExpiration *Duration `json:"cache_expiration,omitempty" yaml:"cache_expiration,omitempty"`
	CacheCapacity   int       `json:"cache_capacity,omitempty" yaml:"cache_capacity,omitempty"`
	SingleFlight    bool      `json:"single_flight,omitempty" yaml:"single_flight,omitempty"`
}

// UpstreamConfig points the NASA client at its APIs.
type UpstreamConfig struct {
	APIKey        string   `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL       string   `json:"api_base_url,omitempty" yaml:"api_base_url,omitempty"`
	ImagesBaseURL string   `json:"images_base_url,omitempty" yaml:"images_base_url,omitempty"`
	Timeout       Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// CircuitBreakerConfig configures the upstream breaker. A zero
// FailureThreshold disables the breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int      `json:"failure_threshold,omitempty" yaml:"failure_threshold,omitempty"`
	SuccessThreshold int      `json:"success_threshold,omitempty" yaml:"success_threshold,omitempty"`
	Timeout          Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Enabled reports whether the breaker should be built.
func (c CircuitBreakerConfig) Enabled() bool { return c.FailureThreshold > 0 }

// ClientRateLimitConfig limits inbound requests per client address. A zero
// Requests disables the limit.
type ClientRateLimitConfig struct {
	Requests int      `json:"requests,omitempty" yaml:"requests,omitempty"`
	Window   Duration `json:"window,omitempty" yaml:"window,omitempty"`
}

// Enabled reports whether the per-client limit is active.
func (c ClientRateLimitConfig) Enabled() bool { return c.Requests > 0 && c.Window > 0 }

// RequestLogConfig selects the request log backend. An empty Driver keeps
// the log disabled.
type RequestLogConfig struct {
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// Request log drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Duration is a time.Duration written as a Go duration string ("90s",
// "1h") in config files.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func parseDuration(s string) (Duration, error) {
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return Duration(v), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 1,
			Timeout:          Duration(30 * time.Second),
		},
	}
}
