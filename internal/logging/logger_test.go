package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewTraceIDIsHex32(t *testing.T) {
	id := NewTraceID()
	if len(id) != 32 {
		t.Fatalf("trace id %q has length %d, want 32", id, len(id))
	}
	if id == NewTraceID() {
		t.Error("expected distinct trace ids")
	}
}

func TestFromContextAttachesTraceID(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "info", "json")
	t.Cleanup(func() { Setup("", "") })

	ctx := WithTraceID(context.Background(), "abc123")
	FromContext(ctx).Info("upstream call")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["trace_id"] != "abc123" {
		t.Errorf("trace_id = %v, want abc123", line["trace_id"])
	}
}

func TestMiddlewareReusesIncomingID(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/apod", nil)
	req.Header.Set(TraceHeader, "from-client")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "from-client" {
		t.Errorf("context trace id = %q", seen)
	}
	if got := rec.Header().Get(TraceHeader); got != "from-client" {
		t.Errorf("response header = %q", got)
	}
}

func TestMiddlewareGeneratesID(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get(TraceHeader) == "" {
		t.Error("expected generated trace id")
	}
}
