package nasagateway

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed config.schema.json
var configSchemaJSON string

var (
	configSchemaOnce sync.Once
	configSchema     *jsonschema.Schema
	configSchemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	configSchemaOnce.Do(func() {
		configSchema, configSchemaErr = jsonschema.CompileString("config.schema.json", configSchemaJSON)
	})
	return configSchema, configSchemaErr
}

// LoadConfig reads and parses a config file from the given path.
// Supported formats: JSON (.json), YAML (.yaml, .yml). The document is
// checked against the embedded JSON schema before it is decoded.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var doc interface{}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	cfg := DefaultConfig()
	if doc == nil {
		return &cfg, nil
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	// The document already parsed once; re-decode through JSON so both
	// formats share the Duration and field-name rules.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalizing config: %w", err)
	}
	if err := json.Unmarshal(normalized, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

func validateDocument(doc interface{}) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config is not representable as JSON: %w", err)
	}
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("normalizing config: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}

// ValidateConfig validates a Config for correctness.
func ValidateConfig(cfg Config) error {
	g := cfg.Governor
	if g.MaxRequests < 0 {
		return fmt.Errorf("governor.max_requests must be >= 0")
	}
	if g.RateWindow < 0 {
		return fmt.Errorf("governor.rate_window must be >= 0")
	}
	if g.CacheExpiration != nil && *g.CacheExpiration < 0 {
		return fmt.Errorf("governor.cache_expiration must be >= 0")
	}
	if g.CacheCapacity < 0 {
		return fmt.Errorf("governor.cache_capacity must be >= 0")
	}

	for name, raw := range map[string]string{
		"upstream.api_base_url":    cfg.Upstream.BaseURL,
		"upstream.images_base_url": cfg.Upstream.ImagesBaseURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if cfg.Upstream.Timeout < 0 {
		return fmt.Errorf("upstream.timeout must be >= 0")
	}

	cb := cfg.CircuitBreaker
	if cb.FailureThreshold < 0 || cb.SuccessThreshold < 0 {
		return fmt.Errorf("circuit_breaker thresholds must be >= 0")
	}
	if cb.Enabled() && cb.Timeout <= 0 {
		return fmt.Errorf("circuit_breaker.timeout is required when the breaker is enabled")
	}

	rl := cfg.ClientRateLimit
	if rl.Requests < 0 {
		return fmt.Errorf("client_rate_limit.requests must be >= 0")
	}
	if rl.Requests > 0 && rl.Window <= 0 {
		return fmt.Errorf("client_rate_limit.window is required when requests is set")
	}

	switch cfg.RequestLog.Driver {
	case "", DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown request_log driver: %q", cfg.RequestLog.Driver)
	}
	if cfg.RequestLog.Driver == DriverPostgres && cfg.RequestLog.DSN == "" {
		return fmt.Errorf("request_log.dsn is required for the postgres driver")
	}

	return nil
}
