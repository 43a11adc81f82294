package kit

import (
	"context"
	"log/slog"
	"time"
)

// Logging logs every call of the named endpoint with its transport,
// request id and duration. Failures log at warn.
func Logging(logger *slog.Logger, name string) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"endpoint", name,
				"transport", GetTransport(ctx),
				"request_id", GetRequestID(ctx),
				"duration", time.Since(start),
			}
			if err != nil {
				logger.Warn("kit: endpoint failed", append(attrs, "error", err)...)
				return resp, err
			}
			logger.Debug("kit: endpoint", attrs...)
			return resp, nil
		}
	}
}
