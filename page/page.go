// Package page owns everything that happens inside one loaded page: the
// analysis pass, the cookie-write monitor and decline runs. A Session
// serialises all of them on one goroutine.
package page

import (
	"context"
	"errors"
	"time"

	"github.com/hazyhaar/cookiewall/analysis"
	"github.com/hazyhaar/cookiewall/cookies"
	"github.com/hazyhaar/cookiewall/decline"
	"github.com/hazyhaar/cookiewall/dom"
	"github.com/hazyhaar/cookiewall/settings"
	"github.com/hazyhaar/cookiewall/tracking"
)

// ErrClosed is returned by requests made after the session loop exited.
var ErrClosed = errors.New("page: session closed")

// AutoDeclineDelay is the wait between page load and the first automatic
// decline run.
const AutoDeclineDelay = 2000 * time.Millisecond

// Host is the privileged side as seen from a page.
type Host interface {
	tracking.Emitter
	PageAnalyzed(ctx context.Context, pa *analysis.PageAnalysis)
	DeclineCompleted(ctx context.Context, res decline.Result)
}

// CookieSource lists the cookies visible to a domain. cookiestore.Jar
// satisfies it.
type CookieSource interface {
	Cookies(ctx context.Context, domain string) ([]cookies.Record, error)
}

// Context is the state of one loaded page. It is created on load and
// dropped on navigation.
type Context struct {
	URL      string
	Host     string
	Tree     dom.Tree
	Settings settings.Settings
	Ledger   *decline.Ledger
	Analysis *analysis.PageAnalysis
	// Decline is the latest run that acted on the page, or the latest run
	// when none did.
	Decline *decline.Result
	// DeclineRuns counts orchestrator runs since load.
	DeclineRuns int

	gen         int
	unsubscribe func()
	timer       *time.Timer
}

// AutoDecline reports whether decline runs may start without a request.
func (c *Context) AutoDecline() bool {
	return c.Settings.AutoDeclineEnabled && !c.Settings.Whitelisted(c.Host)
}

// Status is a copy of a page's Context safe to hand to other goroutines.
type Status struct {
	URL         string                 `json:"url"`
	Host        string                 `json:"host"`
	Settings    settings.Settings      `json:"settings"`
	Clicked     int                    `json:"clicked"`
	AutoDecline bool                   `json:"auto_decline"`
	Analysis    *analysis.PageAnalysis `json:"analysis,omitempty"`
	Decline     *decline.Result        `json:"decline,omitempty"`
	DeclineRuns int                    `json:"decline_runs"`
}

func (c *Context) status() Status {
	return Status{
		URL:         c.URL,
		Host:        c.Host,
		Settings:    c.Settings,
		Clicked:     c.Ledger.Len(),
		AutoDecline: c.AutoDecline(),
		Analysis:    c.Analysis,
		Decline:     c.Decline,
		DeclineRuns: c.DeclineRuns,
	}
}

func (c *Context) recordDecline(res decline.Result) {
	c.DeclineRuns++
	if c.Decline == nil || res.Strategy != decline.StrategyNone {
		c.Decline = &res
	}
}
