package notify

import (
	"context"

	"github.com/hazyhaar/cookiewall/analysis"
	"github.com/hazyhaar/cookiewall/decline"
	"github.com/hazyhaar/cookiewall/tracking"
)

// Callback delivers reports as in-process function calls. Any field may be nil.
type Callback struct {
	OnAnalysis func(ctx context.Context, pa *analysis.PageAnalysis) error
	OnDecline  func(ctx context.Context, res decline.Result) error
	OnTracking func(ctx context.Context, ev tracking.Event) error
}

func (c *Callback) SendAnalysis(ctx context.Context, pa *analysis.PageAnalysis) error {
	if c.OnAnalysis != nil {
		return c.OnAnalysis(ctx, pa)
	}
	return nil
}

func (c *Callback) SendDecline(ctx context.Context, res decline.Result) error {
	if c.OnDecline != nil {
		return c.OnDecline(ctx, res)
	}
	return nil
}

func (c *Callback) SendTracking(ctx context.Context, ev tracking.Event) error {
	if c.OnTracking != nil {
		return c.OnTracking(ctx, ev)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
