package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	nasagateway "github.com/ferro-labs/nasa-gateway"
	"github.com/ferro-labs/nasa-gateway/internal/governor"
	"github.com/ferro-labs/nasa-gateway/internal/logging"
	"github.com/ferro-labs/nasa-gateway/internal/version"
	"github.com/ferro-labs/nasa-gateway/nasa"
)

func healthHandler(gw *nasagateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		stats := gw.Stats()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":          "ok",
			"version":         version.Short(),
			"circuit_breaker": gw.BreakerState(),
			"governor": map[string]interface{}{
				"limit":         stats.Limit,
				"window":        stats.Window.String(),
				"in_window":     stats.InWindow,
				"remaining":     stats.Remaining,
				"cache_entries": stats.CacheEntries,
			},
		})
	}
}

func apodHandler(gw *nasagateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apod, err := gw.APOD(r.Context(), r.URL.Query().Get("date"))
		if err != nil {
			writeGatewayError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, apod)
	}
}

func apodByIDHandler(gw *nasagateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apod, err := gw.APODByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeGatewayError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, apod)
	}
}

func searchHandler(gw *nasagateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := nasa.SearchOptions{
			YearStart: q.Get("year_start"),
			YearEnd:   q.Get("year_end"),
		}
		var err error
		if opts.Page, err = optionalInt(q.Get("page")); err != nil {
			writeError(w, http.StatusBadRequest, "invalid page: must be a positive integer", "invalid_request_error", "invalid_request")
			return
		}
		if opts.PageSize, err = optionalInt(q.Get("page_size")); err != nil {
			writeError(w, http.StatusBadRequest, "invalid page_size: must be a positive integer", "invalid_request_error", "invalid_request")
			return
		}

		res, err := gw.SearchImages(r.Context(), q.Get("q"), opts)
		if err != nil {
			writeGatewayError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func latestEarthHandler(gw *nasagateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		images, err := gw.LatestEarthImages(r.Context())
		if err != nil {
			writeGatewayError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": images})
	}
}

func earthByDateHandler(gw *nasagateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		day, err := time.Parse(nasa.DateLayout, chi.URLParam(r, "date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date: must be YYYY-MM-DD", "invalid_request_error", "invalid_date")
			return
		}
		images, err := gw.EarthImagesByDate(r.Context(), day)
		if err != nil {
			writeGatewayError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": images})
	}
}

func neoFeedHandler(gw *nasagateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		feed, err := gw.NeoFeed(r.Context(), q.Get("start_date"), q.Get("end_date"))
		if err != nil {
			writeGatewayError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, feed)
	}
}

func neoByIDHandler(gw *nasagateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		neo, err := gw.NeoByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeGatewayError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, neo)
	}
}

func missionsHandler(gw *nasagateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := gw.Missions(r.Context())
		if err != nil {
			writeGatewayError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": all})
	}
}

func missionByIDHandler(gw *nasagateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := gw.MissionByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeGatewayError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("must be a positive integer")
	}
	return n, nil
}

// writeGatewayError maps gateway errors onto HTTP statuses.
func writeGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	var limited *governor.RateLimitedError
	var open *nasagateway.CircuitOpenError

	switch {
	case errors.As(err, &limited):
		w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfterSeconds()))
		writeError(w, http.StatusTooManyRequests, err.Error(), "rate_limit_error", "upstream_budget_exhausted")
	case errors.As(err, &open):
		w.Header().Set("Retry-After", strconv.Itoa(int((open.RetryAfter+time.Second-1)/time.Second)))
		writeError(w, http.StatusServiceUnavailable, err.Error(), "server_error", "circuit_open")
	case errors.Is(err, nasa.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request_error", "invalid_date")
	case errors.Is(err, nasagateway.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request_error", "invalid_request")
	case errors.Is(err, nasa.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "not_found_error", "not_found")
	case errors.Is(err, nasa.ErrUpstreamRateLimited):
		writeError(w, http.StatusBadGateway, "NASA rejected the request: upstream rate limit", "upstream_error", "upstream_rate_limited")
	case r.Context().Err() != nil && errors.Is(err, r.Context().Err()):
		// Client went away; nothing useful to send.
		return
	default:
		logging.FromContext(r.Context()).Error("upstream call failed", "error", err)
		writeError(w, http.StatusBadGateway, "NASA API request failed", "upstream_error", "upstream_error")
	}
}

func writeError(w http.ResponseWriter, status int, message, errType, code string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"message": message,
			"type":    errType,
			"code":    code,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
