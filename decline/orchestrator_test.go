package decline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/cookiewall/dom"
	"github.com/hazyhaar/cookiewall/dom/htmltree"
)

type shown struct {
	status Status
	msg    string
	ttl    time.Duration
}

type recordingIndicator struct{ calls []shown }

func (r *recordingIndicator) Show(_ context.Context, s Status, msg string, ttl time.Duration) error {
	r.calls = append(r.calls, shown{s, msg, ttl})
	return nil
}

func newTestOrchestrator(ind Indicator) *Orchestrator {
	opts := []Option{WithTiming(Timing{IndicatorTTL: 4 * time.Second})}
	if ind != nil {
		opts = append(opts, WithIndicator(ind))
	}
	return New(opts...)
}

func parse(t *testing.T, url, src string, opts ...htmltree.Option) *htmltree.Tree {
	t.Helper()
	tree, err := htmltree.ParseString(src, url, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return tree
}

func byID(t *testing.T, tree *htmltree.Tree, id string) dom.Element {
	t.Helper()
	els, err := tree.Query(context.Background(), "#"+id)
	if err != nil || len(els) != 1 {
		t.Fatalf("element #%s: %v (%d found)", id, err, len(els))
	}
	return els[0]
}

const rejectPage = `<html><body>
<main><p>Article</p></main>
<div id="banner" class="cookie-banner">
  <p>We use cookies to personalise content.</p>
  <button id="reject-all">Reject All</button>
  <button id="accept" style="display:none">Accept</button>
</div>
</body></html>`

func TestRun_ClicksVisibleRejectOnly(t *testing.T) {
	ctx := context.Background()
	ind := &recordingIndicator{}
	tree := parse(t, "https://www.example.com/", rejectPage)

	res, err := newTestOrchestrator(ind).Run(ctx, tree, NewLedger(), Options{Suppress: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.ElementsClicked != 1 {
		t.Errorf("clicked: got %d, want 1", res.ElementsClicked)
	}
	if res.Strategy != StrategyGeneric {
		t.Errorf("strategy: got %q, want %q", res.Strategy, StrategyGeneric)
	}
	clicks := tree.Clicks()
	if len(clicks) != 1 || dom.Attr(ctx, clicks[0], "id") != "reject-all" {
		t.Fatalf("clicks: got %d, want exactly #reject-all", len(clicks))
	}
	if res.BannersHidden != 1 {
		t.Errorf("hidden: got %d, want 1", res.BannersHidden)
	}
	if dom.IsVisible(ctx, byID(t, tree, "banner")) {
		t.Error("banner still visible after decline")
	}

	if len(ind.calls) != 2 {
		t.Fatalf("indicator calls: got %d, want 2", len(ind.calls))
	}
	if ind.calls[0].status != StatusWorking || ind.calls[0].msg != "Auto-declining cookies..." {
		t.Errorf("first indicator: got %+v", ind.calls[0])
	}
	last := ind.calls[1]
	if last.status != StatusSuccess || last.msg != "Declined 1 cookie banner(s)" || last.ttl != 4*time.Second {
		t.Errorf("final indicator: got %+v", last)
	}
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	tree := parse(t, "https://www.example.com/", rejectPage)
	o := newTestOrchestrator(nil)
	ledger := NewLedger()

	if _, err := o.Run(ctx, tree, ledger, Options{Suppress: true}); err != nil {
		t.Fatal(err)
	}
	second, err := o.Run(ctx, tree, ledger, Options{Suppress: true})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.ElementsClicked != 0 || second.Suppressed != 0 {
		t.Errorf("second run: got %+v, want no action", second)
	}

	// A fresh ledger must reach the same conclusion from the page alone.
	third, err := o.Run(ctx, tree, NewLedger(), Options{Suppress: true})
	if err != nil {
		t.Fatal(err)
	}
	if third.ElementsClicked != 0 || third.Suppressed != 0 {
		t.Errorf("fresh ledger run: got %+v, want no action", third)
	}
	if n := len(tree.Clicks()); n != 1 {
		t.Errorf("total clicks: got %d, want 1", n)
	}
}

func TestRun_LedgerPreventsDoubleCount(t *testing.T) {
	ctx := context.Background()
	// The page ignores the click, so the button stays visible.
	tree := parse(t, "https://www.example.com/", `<body>
		<div class="cookie-wall">Cookies
			<button id="reject-all">Reject all</button>
			<button>Accept</button>
		</div></body>`)
	o := newTestOrchestrator(nil)
	ledger := NewLedger()
	ledger.Mark(byID(t, tree, "reject-all").Key())

	res, err := o.Run(ctx, tree, ledger, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.ElementsClicked != 0 {
		t.Errorf("clicked: got %d, want 0", res.ElementsClicked)
	}
	if n := len(tree.Clicks()); n != 0 {
		t.Errorf("clicks: got %d, want 0", n)
	}
}

func TestRun_SiteProfile(t *testing.T) {
	tree := parse(t, "https://www.bbc.co.uk/news", `<body>
		<div data-bbc-container="cookie"><p>Let us know you agree to cookies</p>
			<button data-testid="reject-all">Reject additional</button>
		</div></body>`)
	res, err := newTestOrchestrator(nil).Run(context.Background(), tree, NewLedger(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != StrategySiteSpecific || res.Profile != "bbc" {
		t.Errorf("strategy/profile: got %q/%q", res.Strategy, res.Profile)
	}
	if res.ElementsClicked != 1 {
		t.Errorf("clicked: got %d, want 1", res.ElementsClicked)
	}
}

func TestRun_TextScan(t *testing.T) {
	ctx := context.Background()
	tree := parse(t, "https://shop.example.org/", `<body>
		<div id="bar" class="cookie-bar">Cookies help us.
			<a href="#" id="nope">No thanks, decline</a>
			<span>more</span>
		</div>
		<a href="#">No thanks, decline newsletter</a>
	</body>`)
	res, err := newTestOrchestrator(nil).Run(ctx, tree, NewLedger(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != StrategyTextScan || res.ElementsClicked != 1 {
		t.Fatalf("result: got %+v", res)
	}
	if id := dom.Attr(ctx, tree.Clicks()[0], "id"); id != "nope" {
		t.Errorf("clicked: got #%s, want #nope", id)
	}
	if dom.IsVisible(ctx, byID(t, tree, "bar")) {
		t.Error("bar still visible")
	}
}

func TestRun_SuppressFallback(t *testing.T) {
	ctx := context.Background()
	ind := &recordingIndicator{}
	tree := parse(t, "https://example.net/", `<body>
		<div id="wall" class="cookie-banner">We use cookies <button>Accept all</button></div>
	</body>`)

	res, err := newTestOrchestrator(ind).Run(ctx, tree, NewLedger(), Options{Suppress: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.ElementsClicked != 0 {
		t.Errorf("clicked: got %d, want 0", res.ElementsClicked)
	}
	if res.Suppressed != 1 || res.Strategy != StrategySuppress {
		t.Errorf("suppress: got %d via %q", res.Suppressed, res.Strategy)
	}
	style := dom.Attr(ctx, byID(t, tree, "wall"), "style")
	for _, want := range []string{"display: none !important", "visibility: hidden !important", "opacity: 0 !important"} {
		if !strings.Contains(style, want) {
			t.Errorf("style %q missing %q", style, want)
		}
	}
	if n := len(tree.Clicks()); n != 0 {
		t.Errorf("accept clicked: %d clicks", n)
	}
	last := ind.calls[len(ind.calls)-1]
	if last.status != StatusWarning || last.msg != "No cookie banners found to decline" {
		t.Errorf("final indicator: got %+v", last)
	}
}

func TestRun_SuppressDisabled(t *testing.T) {
	ctx := context.Background()
	tree := parse(t, "https://example.net/", `<body>
		<div id="wall" class="cookie-banner">We use cookies <button>Accept all</button></div>
	</body>`)
	res, err := newTestOrchestrator(nil).Run(ctx, tree, NewLedger(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Suppressed != 0 || res.Strategy != StrategyNone {
		t.Errorf("result: got %+v", res)
	}
	if !dom.IsVisible(ctx, byID(t, tree, "wall")) {
		t.Error("wall hidden with suppression disabled")
	}
}

func TestRun_ClickErrorSkipped(t *testing.T) {
	ctx := context.Background()
	tree := parse(t, "https://example.com/", `<body><div class="cookie-box">Cookies
		<button id="reject-first">Reject all</button>
		<button id="reject-second">Reject optional</button>
	</div></body>`, htmltree.WithClickHandler(func(ctx context.Context, el dom.Element) error {
		if dom.Attr(ctx, el, "id") == "reject-first" {
			return errors.New("handler threw")
		}
		return nil
	}))

	res, err := newTestOrchestrator(nil).Run(ctx, tree, NewLedger(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.ElementsClicked != 1 {
		t.Errorf("clicked: got %d, want 1", res.ElementsClicked)
	}
}

type brokenTree struct {
	*htmltree.Tree
}

func (b brokenTree) Query(ctx context.Context, sel string) ([]dom.Element, error) {
	if strings.Contains(sel, ":last-child") {
		return nil, dom.ErrSelectorUnsupported
	}
	return b.Tree.Query(ctx, sel)
}

func TestRun_UnsupportedSelectorSkipped(t *testing.T) {
	tree := parse(t, "https://example.com/", rejectPage)
	res, err := newTestOrchestrator(nil).Run(context.Background(), brokenTree{tree}, NewLedger(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.ElementsClicked != 1 {
		t.Errorf("clicked: got %d, want 1", res.ElementsClicked)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tree := parse(t, "https://example.com/", `<body><p>nothing</p></body>`)
	o := New(WithTiming(DefaultTiming()))
	if _, err := o.Run(ctx, tree, NewLedger(), Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("error: got %v, want context.Canceled", err)
	}
}

func TestProfileFor(t *testing.T) {
	tests := map[string]string{
		"www.bbc.com":         "bbc",
		"edition.cnn.com":     "cnn",
		"www.theguardian.com": "guardian",
		"example.com":         "",
	}
	for host, want := range tests {
		p, ok := ProfileFor(host)
		if ok != (want != "") || p.Name != want {
			t.Errorf("ProfileFor(%q): got %q/%v, want %q", host, p.Name, ok, want)
		}
	}
}
