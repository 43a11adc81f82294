package notify

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/cookiewall/analysis"
	"github.com/hazyhaar/cookiewall/decline"
	"github.com/hazyhaar/cookiewall/tracking"
)

// Router fans out to every sink. One failing sink does not block the
// others; the first error is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

func (r *Router) each(kind string, fn func(Sink) error) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := fn(s); err != nil {
			r.logger.Warn("notify: send failed", "kind", kind, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) SendAnalysis(ctx context.Context, pa *analysis.PageAnalysis) error {
	return r.each("analysis", func(s Sink) error { return s.SendAnalysis(ctx, pa) })
}

func (r *Router) SendDecline(ctx context.Context, res decline.Result) error {
	return r.each("decline", func(s Sink) error { return s.SendDecline(ctx, res) })
}

func (r *Router) SendTracking(ctx context.Context, ev tracking.Event) error {
	return r.each("tracking", func(s Sink) error { return s.SendTracking(ctx, ev) })
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
