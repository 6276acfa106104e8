// Package admin provides HTTP handlers for the gateway administration API:
// the governor's budget and cache, and the upstream request log.
// All admin routes are protected by bearer-token authentication via AuthMiddleware.
package admin

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ferro-labs/nasa-gateway/internal/governor"
	"github.com/ferro-labs/nasa-gateway/internal/requestlog"
)

// GovernorAdmin is the slice of the gateway the admin API operates on.
type GovernorAdmin interface {
	Stats() governor.Stats
	ClearCache()
	BreakerState() string
}

// Handlers holds dependencies for admin HTTP handlers.
type Handlers struct {
	Gateway  GovernorAdmin
	Logs     requestlog.Reader
	LogAdmin requestlog.Maintainer
}

const maxLogsPageSize = 500

// Routes returns a chi.Router with all admin endpoints mounted.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(RequireScope(ScopeReadOnly, ScopeAdmin))
		r.Get("/governor", h.governorStats)
		r.Get("/logs", h.listLogs)
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireScope(ScopeAdmin))
		r.Delete("/cache", h.clearCache)
		r.Delete("/logs", h.deleteLogs)
	})

	return r
}

// governorResponse adds human-readable durations to governor.Stats.
type governorResponse struct {
	governor.Stats
	WindowText     string `json:"window"`
	RetryAfter     int    `json:"retry_after_seconds"`
	CircuitBreaker string `json:"circuit_breaker"`
}

func (h *Handlers) governorStats(w http.ResponseWriter, _ *http.Request) {
	stats := h.Gateway.Stats()
	retry := 0
	if stats.Wait > 0 {
		retry = int((stats.Wait + time.Second - 1) / time.Second)
	}
	writeJSON(w, http.StatusOK, governorResponse{
		Stats:          stats,
		WindowText:     stats.Window.String(),
		RetryAfter:     retry,
		CircuitBreaker: h.Gateway.BreakerState(),
	})
}

func (h *Handlers) clearCache(w http.ResponseWriter, _ *http.Request) {
	before := h.Gateway.Stats().CacheEntries
	h.Gateway.ClearCache()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cleared": before,
	})
}

func (h *Handlers) listLogs(w http.ResponseWriter, r *http.Request) {
	if h.Logs == nil {
		writeError(w, http.StatusNotImplemented, "request log storage is not enabled", "not_implemented_error", "not_implemented")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit: must be a positive integer", "invalid_request_error", "invalid_request")
			return
		}
		if parsed > maxLogsPageSize {
			parsed = maxLogsPageSize
		}
		limit = parsed
	}

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset: must be a non-negative integer", "invalid_request_error", "invalid_request")
			return
		}
		offset = parsed
	}

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since: must be RFC3339 format", "invalid_request_error", "invalid_request")
			return
		}
		since = &parsed
	}

	query := requestlog.Query{
		Limit:    limit,
		Offset:   offset,
		Endpoint: r.URL.Query().Get("endpoint"),
		Outcome:  r.URL.Query().Get("outcome"),
		Since:    since,
	}

	result, err := h.Logs.List(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list request logs", "server_error", "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result.Data,
		"summary": map[string]interface{}{
			"total_entries":    result.Total,
			"returned_entries": len(result.Data),
		},
		"filters": map[string]interface{}{
			"limit":    limit,
			"offset":   offset,
			"endpoint": query.Endpoint,
			"outcome":  query.Outcome,
			"since":    r.URL.Query().Get("since"),
		},
	})
}

func (h *Handlers) deleteLogs(w http.ResponseWriter, r *http.Request) {
	if h.LogAdmin == nil {
		writeError(w, http.StatusNotImplemented, "request log storage is not enabled", "not_implemented_error", "not_implemented")
		return
	}

	beforeRaw := r.URL.Query().Get("before")
	if beforeRaw == "" {
		writeError(w, http.StatusBadRequest, "before is required and must be RFC3339 format", "invalid_request_error", "invalid_request")
		return
	}

	before, err := time.Parse(time.RFC3339, beforeRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid before: must be RFC3339 format", "invalid_request_error", "invalid_request")
		return
	}

	deleted, err := h.LogAdmin.Delete(r.Context(), requestlog.MaintenanceQuery{
		Before:   &before,
		Endpoint: r.URL.Query().Get("endpoint"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete request logs", "server_error", "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deleted": deleted,
		"filters": map[string]interface{}{
			"before":   beforeRaw,
			"endpoint": r.URL.Query().Get("endpoint"),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
