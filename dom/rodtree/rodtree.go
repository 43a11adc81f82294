// Package rodtree implements dom.Tree over a live Chrome page driven by
// go-rod. Insertions are reported by an injected MutationObserver through
// a CDP runtime binding and coalesced before subscribers see them.
package rodtree

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/cookiewall/dom"
)

//go:embed observer.js
var observerJS string

const mutationBinding = "__cw_mutation"

// Tree is a dom.Tree backed by a rod page.
type Tree struct {
	page   *rod.Page
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	raw chan int
	deb *debouncer

	mu   sync.Mutex
	subs map[int]func(dom.Mutation)
	next int
}

// Option configures a Tree.
type Option func(*Tree)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tree) { t.logger = l }
}

// WithDebounce sets the quiet window before subscribers are notified.
func WithDebounce(window time.Duration) Option {
	return func(t *Tree) { t.deb.cfg.Window = window }
}

// New wraps page and starts observing insertions until ctx is done or
// Close is called.
func New(ctx context.Context, page *rod.Page, opts ...Option) (*Tree, error) {
	ctx, cancel := context.WithCancel(ctx)
	t := &Tree{
		page:   page,
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
		raw:    make(chan int, 256),
		subs:   make(map[int]func(dom.Mutation)),
	}
	t.deb = newDebouncer(debounceConfig{}, t.notify)
	for _, o := range opts {
		o(t)
	}

	if err := (proto.RuntimeAddBinding{Name: mutationBinding}).Call(page); err != nil {
		t.logger.Warn("rodtree: addBinding failed (may already exist)", "error", err)
	}
	go t.listen()()

	if _, err := page.EvalOnNewDocument(observerJS); err != nil {
		cancel()
		return nil, fmt.Errorf("rodtree: register observer: %w", err)
	}
	if _, err := page.Context(ctx).Eval("() => " + observerJS); err != nil {
		cancel()
		return nil, fmt.Errorf("rodtree: inject observer: %w", err)
	}

	go t.loop()
	return t, nil
}

// Close stops observing. The page itself stays open.
func (t *Tree) Close() {
	t.cancel()
}

// Page returns the underlying rod page.
func (t *Tree) Page() *rod.Page { return t.page }

// URL returns the page's current URL, "" if the target is gone.
func (t *Tree) URL() string {
	info, err := t.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Query implements dom.Tree.
func (t *Tree) Query(ctx context.Context, selector string) ([]dom.Element, error) {
	els, err := t.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, wrapErr("query "+selector, err)
	}
	return t.wrap(ctx, els), nil
}

// Subscribe implements dom.Tree.
func (t *Tree) Subscribe(fn func(dom.Mutation)) func() {
	t.mu.Lock()
	id := t.next
	t.next++
	t.subs[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// listen subscribes to binding calls and returns the blocking wait func.
func (t *Tree) listen() func() {
	return t.page.Context(t.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != mutationBinding {
			return
		}
		var msg struct {
			Added int `json:"added"`
		}
		if err := json.Unmarshal([]byte(e.Payload), &msg); err != nil {
			t.logger.Warn("rodtree: parse binding payload", "error", err)
			return
		}
		select {
		case t.raw <- msg.Added:
		default:
			t.logger.Debug("rodtree: mutation queue full, dropping", "added", msg.Added)
		}
	})
}

func (t *Tree) loop() {
	for {
		select {
		case <-t.ctx.Done():
			return
		case n := <-t.raw:
			t.deb.add(n)
		case <-t.deb.timerC():
			t.deb.flush()
		}
	}
}

func (t *Tree) notify(added int) {
	t.mu.Lock()
	subs := make([]func(dom.Mutation), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()
	for _, fn := range subs {
		fn(dom.Mutation{Added: added})
	}
}

func (t *Tree) wrap(ctx context.Context, els rod.Elements) []dom.Element {
	out := make([]dom.Element, 0, len(els))
	for _, el := range els {
		out = append(out, t.element(ctx, el))
	}
	return out
}

// element keys a handle by its backend node id, which is stable across
// queries. Falls back to the remote object id.
func (t *Tree) element(ctx context.Context, el *rod.Element) *Element {
	key := string(el.Object.ObjectID)
	if node, err := el.Context(ctx).Describe(0, false); err == nil {
		key = strconv.Itoa(int(node.BackendNodeID))
	}
	return &Element{tree: t, el: el, key: key}
}

// Element is a dom.Element backed by a rod element.
type Element struct {
	tree *Tree
	el   *rod.Element
	key  string
}

func (e *Element) Key() string { return e.key }

func (e *Element) Attr(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, wrapErr("attr "+name, err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	s, err := e.el.Context(ctx).Text()
	if err != nil {
		return "", wrapErr("text", err)
	}
	return s, nil
}

func (e *Element) Box(ctx context.Context) (dom.Box, error) {
	res, err := e.el.Context(ctx).Eval(`() => ({ w: this.offsetWidth || 0, h: this.offsetHeight || 0 })`)
	if err != nil {
		return dom.Box{}, wrapErr("box", err)
	}
	return dom.Box{Width: res.Value.Get("w").Num(), Height: res.Value.Get("h").Num()}, nil
}

func (e *Element) Style(ctx context.Context) (dom.Style, error) {
	res, err := e.el.Context(ctx).Eval(`() => {
		const s = getComputedStyle(this);
		return { display: s.display, visibility: s.visibility, opacity: s.opacity };
	}`)
	if err != nil {
		return dom.Style{}, wrapErr("style", err)
	}
	return dom.Style{
		Display:    res.Value.Get("display").Str(),
		Visibility: res.Value.Get("visibility").Str(),
		Opacity:    res.Value.Get("opacity").Str(),
	}, nil
}

func (e *Element) Query(ctx context.Context, selector string) ([]dom.Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, wrapErr("query "+selector, err)
	}
	return e.tree.wrap(ctx, els), nil
}

func (e *Element) Parent(ctx context.Context) (dom.Element, error) {
	obj, err := e.el.Context(ctx).Evaluate(rod.Eval(`() => this.parentElement`).ByObject())
	if err != nil {
		return nil, wrapErr("parent", err)
	}
	if obj.ObjectID == "" {
		return nil, nil
	}
	p, err := e.tree.page.Context(ctx).ElementFromObject(obj)
	if err != nil {
		return nil, wrapErr("parent", err)
	}
	return e.tree.element(ctx, p), nil
}

// Click dispatches a DOM click. It does not move the mouse, so covered or
// off-screen elements are still clicked.
func (e *Element) Click(ctx context.Context) error {
	if _, err := e.el.Context(ctx).Eval(`() => this.click()`); err != nil {
		return wrapErr("click", err)
	}
	return nil
}

func (e *Element) SetStyle(ctx context.Context, property, value string, important bool) error {
	_, err := e.el.Context(ctx).Eval(
		`(p, v, imp) => this.style.setProperty(p, v, imp ? 'important' : '')`,
		property, value, important)
	if err != nil {
		return wrapErr("set style "+property, err)
	}
	return nil
}

// wrapErr maps CDP failures onto the dom sentinels.
func wrapErr(op string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "is not a valid selector"):
		return fmt.Errorf("rodtree: %s: %w: %w", op, dom.ErrSelectorUnsupported, err)
	case strings.Contains(msg, "Could not find node"),
		strings.Contains(msg, "No node with given id"),
		strings.Contains(msg, "Could not find object"),
		strings.Contains(msg, "Cannot find context"):
		return fmt.Errorf("rodtree: %s: %w: %w", op, dom.ErrDetached, err)
	}
	return fmt.Errorf("rodtree: %s: %w", op, err)
}
