package nasagateway

import (
	"context"
	"time"

	"github.com/ferro-labs/nasa-gateway/internal/logging"
	"github.com/ferro-labs/nasa-gateway/internal/requestlog"
)

// Request log outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// RequestLogHook returns a hook that writes one requestlog.Entry per
// admitted upstream call. Rate-limited events are not logged: they never
// reached NASA.
func RequestLogHook(w requestlog.Writer) EventHookFunc {
	return func(ctx context.Context, subject string, data map[string]interface{}) {
		var outcome string
		switch subject {
		case SubjectRequestCompleted:
			outcome = OutcomeSuccess
		case SubjectRequestFailed:
			outcome = OutcomeError
		default:
			return
		}

		entry := requestlog.Entry{
			TraceID:      stringField(data, "trace_id"),
			Endpoint:     stringField(data, "endpoint"),
			CacheKey:     stringField(data, "cache_key"),
			Outcome:      outcome,
			StatusCode:   intField(data, "status"),
			LatencyMS:    int64(intField(data, "latency_ms")),
			ErrorMessage: stringField(data, "error"),
		}
		// Events carry the gateway clock's time. The writer stamps entries
		// that arrive without one.
		if ts, ok := data["timestamp"].(time.Time); ok {
			entry.CreatedAt = ts.UTC()
		}

		// The request that triggered the event may already be finished.
		ctx = context.WithoutCancel(ctx)
		if err := w.Write(ctx, entry); err != nil {
			logging.FromContext(ctx).Warn("request log write failed", "error", err)
		}
	}
}

func stringField(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}

func intField(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
