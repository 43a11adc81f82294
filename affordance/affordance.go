// Package affordance decides whether a clickable element declines, accepts
// or does neither, from its text and attributes alone.
//
// Matching is case-insensitive substring matching over all signals joined
// together. Accept terms always veto: "ok" inside "cookie" or "agree"
// inside "disagree" make a control ineligible for a decline click. Missing
// a decline is recoverable; clicking accept is not.
package affordance

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/cookiewall/dom"
)

// Verdict is the classification of a control.
type Verdict string

const (
	Decline Verdict = "decline"
	Accept  Verdict = "accept"
	Neutral Verdict = "neutral"
)

// shortText is the rune length below which bare text is not trusted.
const shortText = 10

var declineTerms = []string{
	"decline", "reject", "deny", "refuse", "no thanks", "no, thanks",
	"opt out", "disable", "turn off", "block", "dismiss",
	"only necessary", "essential only", "necessary only",
	"manage preferences", "cookie settings", "customize",
	"i do not agree", "disagree",
}

var acceptTerms = []string{"accept", "allow", "agree", "consent", "ok", "yes", "enable", "continue"}

// Signals are the textual facts read from a control.
type Signals struct {
	Text      string `json:"text"`
	AriaLabel string `json:"aria_label,omitempty"`
	Title     string `json:"title,omitempty"`
	ID        string `json:"id,omitempty"`
	Class     string `json:"class,omitempty"`
	TestID    string `json:"test_id,omitempty"`
}

// Combined is the lowercased signal string the terms are matched against.
func (s Signals) Combined() string {
	return strings.ToLower(strings.Join([]string{
		strings.TrimSpace(s.Text), s.AriaLabel, s.Title, s.ID, s.Class, s.TestID,
	}, " "))
}

// Classify returns the verdict for s.
func Classify(s Signals) Verdict {
	text := strings.TrimSpace(s.Text)
	if utf8.RuneCountInString(text) < shortText &&
		!strings.Contains(strings.ToLower(s.TestID), "reject") &&
		!strings.Contains(strings.ToLower(s.Class), "reject") {
		return Neutral
	}
	signal := s.Combined()
	switch {
	case containsAny(signal, acceptTerms):
		return Accept
	case containsAny(signal, declineTerms):
		return Decline
	default:
		return Neutral
	}
}

// Read collects the signals of el. Attribute read failures leave the
// corresponding field empty.
func Read(ctx context.Context, el dom.Element) (Signals, error) {
	text, err := el.Text(ctx)
	if err != nil {
		return Signals{}, err
	}
	return Signals{
		Text:      text,
		AriaLabel: dom.Attr(ctx, el, "aria-label"),
		Title:     dom.Attr(ctx, el, "title"),
		ID:        dom.Attr(ctx, el, "id"),
		Class:     dom.Attr(ctx, el, "class"),
		TestID:    dom.Attr(ctx, el, "data-testid"),
	}, nil
}

// ClassifyElement reads el and classifies it. Unreadable elements are neutral.
func ClassifyElement(ctx context.Context, el dom.Element) Verdict {
	s, err := Read(ctx, el)
	if err != nil {
		return Neutral
	}
	return Classify(s)
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
