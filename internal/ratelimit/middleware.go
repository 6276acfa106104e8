package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
)

// KeyFunc extracts the limiter key from a request.
type KeyFunc func(r *http.Request) string

// RemoteAddrKey keys requests by the host part of r.RemoteAddr. Mount chi's
// RealIP middleware first so proxies are accounted for.
func RemoteAddrKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Middleware rejects requests whose key has exhausted its window with
// 429 Too Many Requests and a Retry-After header. onReject, if non-nil, is
// called for every rejected request.
func Middleware(store *Store, key KeyFunc, onReject func(r *http.Request)) func(http.Handler) http.Handler {
	if key == nil {
		key = RemoteAddrKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := store.Take(key(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			if onReject != nil {
				onReject(r)
			}
			seconds := int(math.Ceil(wait.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{
					"message":             "too many requests from this client",
					"type":                "rate_limit_error",
					"code":                "client_rate_limited",
					"retry_after_seconds": seconds,
				},
			})
		})
	}
}
