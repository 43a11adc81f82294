// Package notify delivers engine output: report sinks for analyses,
// decline runs and tracking events, and the fire-and-forget badge/toast
// surface.
package notify

import (
	"context"

	"github.com/hazyhaar/cookiewall/analysis"
	"github.com/hazyhaar/cookiewall/decline"
	"github.com/hazyhaar/cookiewall/tracking"
)

// Sink is a report backend (stdout, webhook, in-process callback).
type Sink interface {
	SendAnalysis(ctx context.Context, pa *analysis.PageAnalysis) error
	SendDecline(ctx context.Context, res decline.Result) error
	SendTracking(ctx context.Context, ev tracking.Event) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
