// Package banner locates visible cookie-consent banners and their decline
// control.
package banner

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/cookiewall/affordance"
	"github.com/hazyhaar/cookiewall/dom"
)

// Selectors are tried in order; an element matched by several appears once.
var Selectors = []string{
	`[class*="cookie"]`, `[id*="cookie"]`,
	`[class*="consent"]`, `[id*="consent"]`,
	`[class*="gdpr"]`, `[id*="gdpr"]`,
	`[class*="privacy"]`, `[id*="privacy"]`,
	`.cookie-banner`, `.cookie-notice`, `.cookie-popup`,
	`#cookie-banner`, `#cookie-notice`, `#cookie-popup`,
	`[data-testid*="cookie"]`, `[data-cy*="cookie"]`,
}

// DeclineSelectors are searched inside a banner, most specific first.
var DeclineSelectors = []string{
	`button[data-testid*="decline"]`, `button[data-testid*="reject"]`,
	`button[id*="decline"]`, `button[id*="reject"]`,
	`button[class*="decline"]`, `button[class*="reject"]`,
	`a[data-testid*="decline"]`, `a[data-testid*="reject"]`,
	`a[id*="decline"]`, `a[id*="reject"]`,
	`a[class*="decline"]`, `a[class*="reject"]`,
	`[data-cy*="decline"]`, `[data-cy*="reject"]`,
	`[data-qa*="decline"]`, `[data-qa*="reject"]`,
	`[data-role*="decline"]`, `[data-role*="reject"]`,
	`button[aria-label*="decline"]`, `button[aria-label*="reject"]`, `button[aria-label*="refuse"]`,
	`button`, `a`, `[role="button"]`,
}

const snippetLen = 100

// Candidate is a visible banner. Decline is nil when no decline control
// was found.
type Candidate struct {
	Element     dom.Element
	Selector    string
	TextSnippet string
	Decline     dom.Element
}

// Detector finds banners. The zero value is not usable; use New.
type Detector struct {
	logger *slog.Logger
	strip  *bluemonday.Policy
}

// New creates a Detector. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{logger: logger, strip: bluemonday.StrictPolicy()}
}

// Find returns every visible banner in selector order then document order.
func (d *Detector) Find(ctx context.Context, tree dom.Tree) []Candidate {
	var out []Candidate
	seen := make(map[string]bool)
	for _, sel := range Selectors {
		els, err := tree.Query(ctx, sel)
		if err != nil {
			d.logSelector(sel, err)
			continue
		}
		for _, el := range els {
			if seen[el.Key()] || !dom.IsVisibleBanner(ctx, el) {
				continue
			}
			seen[el.Key()] = true
			out = append(out, Candidate{
				Element:     el,
				Selector:    sel,
				TextSnippet: d.Snippet(ctx, el),
				Decline:     d.FindDecline(ctx, el),
			})
		}
	}
	return out
}

// FindDecline returns the first descendant of b classified as decline, or nil.
func (d *Detector) FindDecline(ctx context.Context, b dom.Element) dom.Element {
	for _, sel := range DeclineSelectors {
		els, err := b.Query(ctx, sel)
		if err != nil {
			d.logSelector(sel, err)
			continue
		}
		for _, el := range els {
			if affordance.ClassifyElement(ctx, el) == affordance.Decline {
				return el
			}
		}
	}
	return nil
}

// HasVisible reports whether the tree currently shows at least one banner.
// It stops at the first hit and skips the decline search.
func (d *Detector) HasVisible(ctx context.Context, tree dom.Tree) bool {
	for _, sel := range Selectors {
		els, err := tree.Query(ctx, sel)
		if err != nil {
			d.logSelector(sel, err)
			continue
		}
		for _, el := range els {
			if dom.IsVisibleBanner(ctx, el) {
				return true
			}
		}
	}
	return false
}

// Snippet is the first 100 runes of el's text with markup stripped and
// whitespace collapsed.
func (d *Detector) Snippet(ctx context.Context, el dom.Element) string {
	text, err := el.Text(ctx)
	if err != nil {
		return ""
	}
	text = html.UnescapeString(d.strip.Sanitize(text))
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > snippetLen {
		text = string(r[:snippetLen])
	}
	return text
}

func (d *Detector) logSelector(sel string, err error) {
	if errors.Is(err, dom.ErrSelectorUnsupported) {
		d.logger.Warn("banner: selector unsupported", "selector", sel, "error", err)
		return
	}
	d.logger.Warn("banner: query failed", "selector", sel, "error", err)
}
