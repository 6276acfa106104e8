package requestlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteWriter_WriteListDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.db")
	w, err := NewSQLiteWriter(path)
	if err != nil {
		t.Fatalf("new sqlite writer: %v", err)
	}
	t.Cleanup(func() {
		_ = w.Close()
	})

	now := time.Now().UTC()
	entries := []Entry{
		{
			TraceID:    "trace-1",
			Endpoint:   "apod",
			CacheKey:   "apod_2024-05-01",
			Outcome:    "success",
			StatusCode: 200,
			LatencyMS:  120,
			CreatedAt:  now.Add(-2 * time.Hour),
		},
		{
			TraceID:    "trace-2",
			Endpoint:   "epic",
			CacheKey:   "latest_earth_images",
			Outcome:    "success",
			StatusCode: 200,
			LatencyMS:  340,
			CreatedAt:  now.Add(-1 * time.Hour),
		},
		{
			TraceID:      "trace-3",
			Endpoint:     "neo",
			CacheKey:     "neo_3542519",
			Outcome:      "error",
			StatusCode:   503,
			LatencyMS:    15,
			ErrorMessage: "upstream unavailable",
			CreatedAt:    now,
		},
	}

	for _, entry := range entries {
		if err := w.Write(context.Background(), entry); err != nil {
			t.Fatalf("write request log entry: %v", err)
		}
	}

	result, err := w.List(context.Background(), Query{Limit: 10})
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if result.Total != 3 || len(result.Data) != 3 {
		t.Fatalf("expected 3 logs, total=%d len=%d", result.Total, len(result.Data))
	}
	if result.Data[0].TraceID != "trace-3" {
		t.Fatalf("expected newest first, got %s", result.Data[0].TraceID)
	}

	filtered, err := w.List(context.Background(), Query{Limit: 10, Outcome: "error"})
	if err != nil {
		t.Fatalf("list filtered logs: %v", err)
	}
	if filtered.Total != 1 || len(filtered.Data) != 1 {
		t.Fatalf("expected 1 error log, total=%d len=%d", filtered.Total, len(filtered.Data))
	}
	if filtered.Data[0].ErrorMessage != "upstream unavailable" {
		t.Fatalf("unexpected error message: %q", filtered.Data[0].ErrorMessage)
	}

	page, err := w.List(context.Background(), Query{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if page.Total != 3 || len(page.Data) != 1 || page.Data[0].TraceID != "trace-2" {
		t.Fatalf("unexpected page: total=%d data=%+v", page.Total, page.Data)
	}

	deleted, err := w.Delete(context.Background(), MaintenanceQuery{Before: ptrTime(now.Add(-30 * time.Minute))})
	if err != nil {
		t.Fatalf("delete logs: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected deleted=2, got %d", deleted)
	}

	remaining, err := w.List(context.Background(), Query{Limit: 10})
	if err != nil {
		t.Fatalf("list remaining logs: %v", err)
	}
	if remaining.Total != 1 || len(remaining.Data) != 1 {
		t.Fatalf("expected 1 remaining log, total=%d len=%d", remaining.Total, len(remaining.Data))
	}
	if remaining.Data[0].TraceID != "trace-3" {
		t.Fatalf("unexpected remaining trace id: %s", remaining.Data[0].TraceID)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open("mongodb", ""); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestNoopWriter(t *testing.T) {
	var w Writer = NoopWriter{}
	if err := w.Write(context.Background(), Entry{Endpoint: "apod"}); err != nil {
		t.Fatalf("noop write: %v", err)
	}
}

func TestPostgresWriterContract(t *testing.T) {
	dsn := os.Getenv("NASAGW_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set NASAGW_TEST_POSTGRES_DSN to run Postgres requestlog integration tests")
	}

	w, err := NewPostgresWriter(dsn)
	if err != nil {
		t.Fatalf("new postgres writer: %v", err)
	}
	t.Cleanup(func() {
		_, _ = w.db.Exec("DELETE FROM upstream_requests")
		_ = w.Close()
	})

	_, _ = w.db.Exec("DELETE FROM upstream_requests")

	entry := Entry{
		TraceID:    "pg-trace",
		Endpoint:   "apod",
		CacheKey:   "apod_2024-05-01",
		Outcome:    "success",
		StatusCode: 200,
		CreatedAt:  time.Now().UTC(),
	}
	if err := w.Write(context.Background(), entry); err != nil {
		t.Fatalf("write postgres log: %v", err)
	}

	result, err := w.List(context.Background(), Query{Limit: 10, Endpoint: "apod"})
	if err != nil {
		t.Fatalf("list postgres logs: %v", err)
	}
	if result.Total != 1 || len(result.Data) != 1 {
		t.Fatalf("expected 1 postgres log, total=%d len=%d", result.Total, len(result.Data))
	}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
