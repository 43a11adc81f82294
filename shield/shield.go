// Package shield holds the HTTP middleware applied to the cookiewall API.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultAPIStack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// MaxJSONBytes bounds API request bodies.
const MaxJSONBytes = 1 << 20

// DefaultAPIStack returns the middleware stack for the JSON API, in order:
// HeadToGet, SecurityHeaders, MaxJSONBody, TraceID.
func DefaultAPIStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(MaxJSONBytes),
		Trace(logger),
	}
}
