// Package dom is the capability interface the consent engine uses to read
// and act on a page. It knows nothing about browsers or parsers; concrete
// trees live in dom/htmltree (static HTML) and dom/rodtree (live Chrome).
package dom

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

var (
	// ErrSelectorUnsupported is returned by Query when the tree cannot
	// evaluate the selector syntax.
	ErrSelectorUnsupported = errors.New("dom: selector unsupported")
	// ErrDetached is returned when an element is no longer attached to the tree.
	ErrDetached = errors.New("dom: element detached")
)

// Box is an element's rendered size.
type Box struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Style is the subset of computed style the engine inspects.
type Style struct {
	Display    string `json:"display"`
	Visibility string `json:"visibility"`
	Opacity    string `json:"opacity"`
}

// Mutation is fired when elements are inserted into the tree.
type Mutation struct {
	Added int
}

// Tree is a queryable document.
type Tree interface {
	// URL is the document URL.
	URL() string
	// Query returns matching elements in document order.
	Query(ctx context.Context, selector string) ([]Element, error)
	// Subscribe registers fn for subtree insertions. The returned func
	// unregisters it.
	Subscribe(fn func(Mutation)) (cancel func())
}

// Element is a node handle.
type Element interface {
	// Key identifies the underlying node; two handles to the same node
	// return the same key.
	Key() string
	Attr(ctx context.Context, name string) (string, bool, error)
	Text(ctx context.Context) (string, error)
	Box(ctx context.Context) (Box, error)
	Style(ctx context.Context) (Style, error)
	// Query returns matching descendants in document order.
	Query(ctx context.Context, selector string) ([]Element, error)
	// Parent returns nil without error at the root.
	Parent(ctx context.Context) (Element, error)
	Click(ctx context.Context) error
	SetStyle(ctx context.Context, property, value string, important bool) error
}

// Hostname extracts the host (without port) of a tree's URL.
func Hostname(t Tree) string {
	u, err := url.Parse(t.URL())
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Attr reads an attribute, returning "" when absent or unreadable.
func Attr(ctx context.Context, el Element, name string) string {
	v, _, err := el.Attr(ctx, name)
	if err != nil {
		return ""
	}
	return v
}

// LowerText returns the element's lowercased text, "" on error.
func LowerText(ctx context.Context, el Element) string {
	s, err := el.Text(ctx)
	if err != nil {
		return ""
	}
	return strings.ToLower(s)
}

// IsVisible reports whether el is rendered: positive box, display not none,
// visibility not hidden and opacity not "0". Read errors count as hidden.
func IsVisible(ctx context.Context, el Element) bool {
	box, err := el.Box(ctx)
	if err != nil || box.Width <= 0 || box.Height <= 0 {
		return false
	}
	st, err := el.Style(ctx)
	if err != nil {
		return false
	}
	return st.Display != "none" && st.Visibility != "hidden" && st.Opacity != "0"
}

// IsVisibleBanner is IsVisible plus a case-insensitive "cookie" in the text.
func IsVisibleBanner(ctx context.Context, el Element) bool {
	return IsVisible(ctx, el) && strings.Contains(LowerText(ctx, el), "cookie")
}
