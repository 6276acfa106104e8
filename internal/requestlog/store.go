// Package requestlog persists one row per upstream NASA call that the
// governor admitted, so operators can audit how the hourly budget was spent.
package requestlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Entry represents one admitted upstream call.
type Entry struct {
	ID           int64     `json:"id"`
	TraceID      string    `json:"trace_id,omitempty"`
	Endpoint     string    `json:"endpoint"`
	CacheKey     string    `json:"cache_key"`
	Outcome      string    `json:"outcome"`
	StatusCode   int       `json:"status_code,omitempty"`
	LatencyMS    int64     `json:"latency_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Query filters a List call. Zero-valued filters are ignored.
type Query struct {
	Limit    int
	Offset   int
	Endpoint string
	Outcome  string
	Since    *time.Time
}

// ListResult is one page of entries plus the total matching the filters.
type ListResult struct {
	Data  []Entry `json:"data"`
	Total int     `json:"total"`
}

// MaintenanceQuery selects entries for deletion.
type MaintenanceQuery struct {
	Before   *time.Time
	Endpoint string
}

// Writer persists request log entries.
type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

// Reader lists persisted entries.
type Reader interface {
	List(ctx context.Context, q Query) (ListResult, error)
}

// Maintainer deletes persisted entries.
type Maintainer interface {
	Delete(ctx context.Context, q MaintenanceQuery) (int64, error)
}

// NoopWriter ignores all log writes.
type NoopWriter struct{}

func (NoopWriter) Write(_ context.Context, _ Entry) error { return nil }

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SQLWriter persists entries to SQLite/Postgres.
type SQLWriter struct {
	db      *sql.DB
	dialect string
}

// Open returns a writer for driver "sqlite" (default) or "postgres".
func Open(driver, dsn string) (*SQLWriter, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		return NewSQLiteWriter(dsn)
	case "postgres", "postgresql":
		return NewPostgresWriter(dsn)
	default:
		return nil, fmt.Errorf("unsupported request log driver %q", driver)
	}
}

func NewSQLiteWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "nasagw-requests.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite request log writer: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	w := &SQLWriter{db: db, dialect: "sqlite"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func NewPostgresWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres request log writer: %w", err)
	}
	w := &SQLWriter{db: db, dialect: "postgres"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLWriter) init() error {
	if err := w.db.Ping(); err != nil {
		return fmt.Errorf("ping %s request log writer: %w", w.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS upstream_requests (
	id INTEGER PRIMARY KEY,
	trace_id TEXT,
	endpoint TEXT NOT NULL,
	cache_key TEXT NOT NULL,
	outcome TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	error_message TEXT,
	created_at TIMESTAMP NOT NULL
);`

	if w.dialect == "postgres" {
		ddl = `
CREATE TABLE IF NOT EXISTS upstream_requests (
	id BIGSERIAL PRIMARY KEY,
	trace_id TEXT,
	endpoint TEXT NOT NULL,
	cache_key TEXT NOT NULL,
	outcome TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	latency_ms BIGINT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL
);`
	}

	if _, err := w.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize request log schema: %w", err)
	}
	return nil
}

// placeholder returns the n-th (1-based) bind parameter for the dialect.
func (w *SQLWriter) placeholder(n int) string {
	if w.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (w *SQLWriter) Write(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	cols := []string{"trace_id", "endpoint", "cache_key", "outcome", "status_code", "latency_ms", "error_message", "created_at"}
	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = w.placeholder(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO upstream_requests(%s) VALUES(%s)", strings.Join(cols, ", "), strings.Join(marks, ", "))

	_, err := w.db.ExecContext(ctx, query,
		entry.TraceID,
		entry.Endpoint,
		entry.CacheKey,
		entry.Outcome,
		entry.StatusCode,
		entry.LatencyMS,
		entry.ErrorMessage,
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("write request log: %w", err)
	}
	return nil
}

func (w *SQLWriter) List(ctx context.Context, q Query) (ListResult, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var conds []string
	var args []interface{}
	if q.Endpoint != "" {
		args = append(args, q.Endpoint)
		conds = append(conds, "endpoint = "+w.placeholder(len(args)))
	}
	if q.Outcome != "" {
		args = append(args, q.Outcome)
		conds = append(conds, "outcome = "+w.placeholder(len(args)))
	}
	if q.Since != nil {
		args = append(args, q.Since.UTC())
		conds = append(conds, "created_at >= "+w.placeholder(len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM upstream_requests"+where, args...).Scan(&total); err != nil {
		return ListResult{}, fmt.Errorf("count request logs: %w", err)
	}

	pageArgs := append(append([]interface{}{}, args...), limit, offset)
	query := fmt.Sprintf(
		"SELECT id, trace_id, endpoint, cache_key, outcome, status_code, latency_ms, error_message, created_at FROM upstream_requests%s ORDER BY created_at DESC, id DESC LIMIT %s OFFSET %s",
		where, w.placeholder(len(args)+1), w.placeholder(len(args)+2),
	)
	rows, err := w.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return ListResult{}, fmt.Errorf("list request logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := ListResult{Total: total, Data: []Entry{}}
	for rows.Next() {
		var e Entry
		var traceID, errMsg sql.NullString
		if err := rows.Scan(&e.ID, &traceID, &e.Endpoint, &e.CacheKey, &e.Outcome, &e.StatusCode, &e.LatencyMS, &errMsg, &e.CreatedAt); err != nil {
			return ListResult{}, fmt.Errorf("scan request log: %w", err)
		}
		e.TraceID = traceID.String
		e.ErrorMessage = errMsg.String
		result.Data = append(result.Data, e)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, fmt.Errorf("iterate request logs: %w", err)
	}
	return result, nil
}

func (w *SQLWriter) Delete(ctx context.Context, q MaintenanceQuery) (int64, error) {
	var conds []string
	var args []interface{}
	if q.Before != nil {
		args = append(args, q.Before.UTC())
		conds = append(conds, "created_at < "+w.placeholder(len(args)))
	}
	if q.Endpoint != "" {
		args = append(args, q.Endpoint)
		conds = append(conds, "endpoint = "+w.placeholder(len(args)))
	}
	query := "DELETE FROM upstream_requests"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	res, err := w.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete request logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete request logs: %w", err)
	}
	return n, nil
}

func (w *SQLWriter) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}
