package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/cookiewall/idgen"
	"github.com/hazyhaar/cookiewall/kit"
)

// Trace returns middleware that assigns a trace ID to each request. The ID
// is stored under kit.TraceIDKey, echoed in X-Trace-ID, and attached to a
// per-request logger stored under LoggerKey. An incoming X-Trace-ID is kept.
func Trace(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" || len(traceID) > 64 {
				traceID = idgen.New()
			}

			ctx := kit.WithTraceID(r.Context(), traceID)
			ctx = kit.WithTransport(ctx, "http")
			w.Header().Set("X-Trace-ID", traceID)

			l := logger.With(
				"trace_id", traceID,
				"method", r.Method,
				"path", r.URL.Path,
			)
			ctx = context.WithValue(ctx, LoggerKey, l)
			l.Debug("shield: request", "remote_addr", r.RemoteAddr)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TraceID is Trace with the default logger.
func TraceID(next http.Handler) http.Handler {
	return Trace(nil)(next)
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
