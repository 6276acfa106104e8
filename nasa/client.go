// Package nasa is a typed client for the public NASA APIs the gateway
// fronts: APOD, EPIC, NeoWs and Mars Rover Photos on api.nasa.gov, and the
// NASA Image and Video Library on images-api.nasa.gov.
//
// The client performs no caching and no rate limiting of its own; the
// gateway wraps every call in the request governor.
package nasa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultBaseURL hosts APOD, EPIC, NeoWs and Mars Rover Photos.
	DefaultBaseURL = "https://api.nasa.gov"
	// DefaultImagesBaseURL hosts the Image and Video Library search.
	DefaultImagesBaseURL = "https://images-api.nasa.gov"
	// DemoKey is NASA's shared, heavily rate-limited demo key.
	DemoKey = "DEMO_KEY"

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

var (
	// ErrUpstreamRateLimited matches an *APIError with status 429.
	ErrUpstreamRateLimited = errors.New("nasa api rate limit exceeded")
	// ErrNotFound matches an *APIError with status 404.
	ErrNotFound = errors.New("nasa api resource not found")
	// ErrInvalidDate is returned for dates the upstream API would reject.
	ErrInvalidDate = errors.New("invalid date")
)

// APIError is a non-200 response from a NASA API.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nasa %s API error (%d): %s", e.Endpoint, e.StatusCode, e.Body)
}

// Is maps well-known status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUpstreamRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// StatusCode extracts the upstream HTTP status from err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Client calls the NASA APIs.
type Client struct {
	apiKey        string
	baseURL       string
	imagesBaseURL string
	httpClient    *http.Client
	clock         clockwork.Clock
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the api.nasa.gov base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithImagesBaseURL overrides the images-api.nasa.gov base URL.
func WithImagesBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.imagesBaseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-call timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithClock sets the clock used to resolve "today".
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewClient creates a Client. An empty apiKey falls back to DemoKey.
func NewClient(apiKey string, opts ...Option) *Client {
	if apiKey == "" {
		apiKey = DemoKey
	}
	c := &Client{
		apiKey:        apiKey,
		baseURL:       DefaultBaseURL,
		imagesBaseURL: DefaultImagesBaseURL,
		httpClient:    &http.Client{Timeout: defaultTimeout},
		clock:         clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the api.nasa.gov base URL in use.
func (c *Client) BaseURL() string { return c.baseURL }

// Today returns the current UTC date at midnight.
func (c *Client) Today() time.Time {
	return c.clock.Now().UTC().Truncate(24 * time.Hour)
}

// getJSON issues a GET against base+path and decodes a 200 response into out.
// keyed controls whether the api_key parameter is attached.
func (c *Client) getJSON(ctx context.Context, endpoint, base, path string, params url.Values, keyed bool, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	if keyed {
		params.Set("api_key", c.apiKey)
	}
	u := base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("nasa %s request failed: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode nasa %s response: %w", endpoint, err)
	}
	return nil
}
