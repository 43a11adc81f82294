// Package htmltree implements dom.Tree over a parsed HTML document using
// goquery and cascadia. Layout is approximated: an element is rendered
// unless it or an ancestor is display:none (inline style, the hidden
// attribute, or a non-rendered tag), and its box comes from inline
// width/height in px, defaulting to 100x20.
package htmltree

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/hazyhaar/cookiewall/dom"
)

// ClickFunc runs when an element is clicked. A non-nil error is returned
// from Click as if the page had thrown.
type ClickFunc func(ctx context.Context, el dom.Element) error

// Option configures a Tree.
type Option func(*Tree)

// WithClickHandler installs fn as the page's reaction to clicks.
func WithClickHandler(fn ClickFunc) Option {
	return func(t *Tree) { t.onClick = fn }
}

// Tree is an in-memory document.
type Tree struct {
	mu      sync.Mutex
	doc     *goquery.Document
	url     string
	onClick ClickFunc
	clicks  []dom.Element
	subs    map[int]func(dom.Mutation)
	nextSub int
}

// Parse reads an HTML document served from pageURL.
func Parse(r io.Reader, pageURL string, opts ...Option) (*Tree, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("htmltree: parse: %w", err)
	}
	t := &Tree{doc: doc, url: pageURL, subs: make(map[int]func(dom.Mutation))}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// ParseString is Parse over a string.
func ParseString(s, pageURL string, opts ...Option) (*Tree, error) {
	return Parse(strings.NewReader(s), pageURL, opts...)
}

// URL implements dom.Tree.
func (t *Tree) URL() string { return t.url }

// Query implements dom.Tree.
func (t *Tree) Query(_ context.Context, selector string) ([]dom.Element, error) {
	m, err := compile(selector)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wrap(t.doc.FindMatcher(m)), nil
}

// Subscribe implements dom.Tree.
func (t *Tree) Subscribe(fn func(dom.Mutation)) func() {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// Insert appends an HTML fragment to every element matching parentSelector
// and notifies subscribers. It returns the number of elements added.
func (t *Tree) Insert(_ context.Context, parentSelector, fragment string) (int, error) {
	m, err := compile(parentSelector)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	parents := t.doc.FindMatcher(m)
	before := parents.Children().Length()
	parents.AppendHtml(fragment)
	added := parents.Children().Length() - before
	subs := make([]func(dom.Mutation), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	if added > 0 {
		for _, fn := range subs {
			fn(dom.Mutation{Added: added})
		}
	}
	return added, nil
}

// Clicks returns every element clicked so far, in order.
func (t *Tree) Clicks() []dom.Element {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]dom.Element(nil), t.clicks...)
}

// HTML renders the current document.
func (t *Tree) HTML() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doc.Html()
}

func (t *Tree) wrap(sel *goquery.Selection) []dom.Element {
	out := make([]dom.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{tree: t, sel: s})
	})
	return out
}

func compile(selector string) (cascadia.Selector, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", dom.ErrSelectorUnsupported, selector, err)
	}
	return m, nil
}

// Element is a handle on one node of a Tree.
type Element struct {
	tree *Tree
	sel  *goquery.Selection
}

func (e *Element) node() *html.Node { return e.sel.Nodes[0] }

// Key implements dom.Element.
func (e *Element) Key() string { return fmt.Sprintf("%p", e.node()) }

// Attr implements dom.Element.
func (e *Element) Attr(_ context.Context, name string) (string, bool, error) {
	e.tree.mu.Lock()
	defer e.tree.mu.Unlock()
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

// Text implements dom.Element.
func (e *Element) Text(context.Context) (string, error) {
	e.tree.mu.Lock()
	defer e.tree.mu.Unlock()
	return e.sel.Text(), nil
}

// Box implements dom.Element.
func (e *Element) Box(context.Context) (dom.Box, error) {
	e.tree.mu.Lock()
	defer e.tree.mu.Unlock()
	for n := e.node(); n != nil && n.Type == html.ElementNode; n = n.Parent {
		if displayNone(n) {
			return dom.Box{}, nil
		}
	}
	decls := parseStyle(attr(e.node(), "style"))
	return dom.Box{
		Width:  px(decls.get("width"), 100),
		Height: px(decls.get("height"), 20),
	}, nil
}

// Style implements dom.Element. Visibility inherits from ancestors.
func (e *Element) Style(context.Context) (dom.Style, error) {
	e.tree.mu.Lock()
	defer e.tree.mu.Unlock()
	n := e.node()
	decls := parseStyle(attr(n, "style"))
	st := dom.Style{Display: "block", Visibility: "visible", Opacity: "1"}
	if displayNone(n) {
		st.Display = "none"
	} else if d := decls.get("display"); d != "" {
		st.Display = d
	}
	if o := decls.get("opacity"); o != "" {
		st.Opacity = o
	}
	for p := n; p != nil && p.Type == html.ElementNode; p = p.Parent {
		if v := parseStyle(attr(p, "style")).get("visibility"); v != "" {
			st.Visibility = v
			break
		}
	}
	return st, nil
}

// Query implements dom.Element.
func (e *Element) Query(_ context.Context, selector string) ([]dom.Element, error) {
	m, err := compile(selector)
	if err != nil {
		return nil, err
	}
	e.tree.mu.Lock()
	defer e.tree.mu.Unlock()
	return e.tree.wrap(e.sel.FindMatcher(m)), nil
}

// Parent implements dom.Element.
func (e *Element) Parent(context.Context) (dom.Element, error) {
	e.tree.mu.Lock()
	defer e.tree.mu.Unlock()
	p := e.sel.Parent()
	if p.Length() == 0 {
		return nil, nil
	}
	return &Element{tree: e.tree, sel: p}, nil
}

// Click implements dom.Element.
func (e *Element) Click(ctx context.Context) error {
	e.tree.mu.Lock()
	e.tree.clicks = append(e.tree.clicks, e)
	fn := e.tree.onClick
	e.tree.mu.Unlock()
	if fn != nil {
		return fn(ctx, e)
	}
	return nil
}

// SetStyle implements dom.Element.
func (e *Element) SetStyle(_ context.Context, property, value string, important bool) error {
	e.tree.mu.Lock()
	defer e.tree.mu.Unlock()
	decls := parseStyle(attr(e.node(), "style"))
	decls = decls.set(strings.ToLower(property), value, important)
	e.sel.SetAttr("style", decls.String())
	return nil
}

// HasClass is a test convenience.
func (e *Element) HasClass(class string) bool {
	e.tree.mu.Lock()
	defer e.tree.mu.Unlock()
	return e.sel.HasClass(class)
}

var hiddenTags = map[string]bool{
	"head": true, "script": true, "style": true, "template": true,
	"title": true, "meta": true, "link": true, "noscript": true,
}

func displayNone(n *html.Node) bool {
	if hiddenTags[n.Data] {
		return true
	}
	for _, a := range n.Attr {
		if a.Key == "hidden" {
			return true
		}
	}
	return parseStyle(attr(n, "style")).get("display") == "none"
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
