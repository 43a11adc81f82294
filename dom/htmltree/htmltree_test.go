package htmltree

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/cookiewall/dom"
)

const page = `<html><head><title>t</title></head><body>
<div id="banner" class="cookie-banner">
  <p>We use cookies</p>
  <button id="reject">Reject all</button>
  <button id="accept" style="display:none">Accept</button>
</div>
<div style="visibility: hidden"><span id="ghost">boo</span></div>
<div id="sized" style="width: 0px">zero</div>
</body></html>`

func mustParse(t *testing.T, src string, opts ...Option) *Tree {
	t.Helper()
	tree, err := ParseString(src, "https://www.example.com/page", opts...)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return tree
}

func queryOne(t *testing.T, tree *Tree, sel string) dom.Element {
	t.Helper()
	els, err := tree.Query(context.Background(), sel)
	if err != nil {
		t.Fatalf("query %s: %v", sel, err)
	}
	if len(els) != 1 {
		t.Fatalf("query %s: got %d elements, want 1", sel, len(els))
	}
	return els[0]
}

func TestQuery_DocumentOrder(t *testing.T) {
	tree := mustParse(t, page)
	els, err := tree.Query(context.Background(), "button")
	if err != nil {
		t.Fatal(err)
	}
	if len(els) != 2 {
		t.Fatalf("buttons: got %d, want 2", len(els))
	}
	if id := dom.Attr(context.Background(), els[0], "id"); id != "reject" {
		t.Errorf("first button: got %q, want %q", id, "reject")
	}
}

func TestQuery_Unsupported(t *testing.T) {
	tree := mustParse(t, page)
	_, err := tree.Query(context.Background(), "button[[")
	if !errors.Is(err, dom.ErrSelectorUnsupported) {
		t.Errorf("error: got %v, want ErrSelectorUnsupported", err)
	}
}

func TestKey_Stable(t *testing.T) {
	tree := mustParse(t, page)
	a := queryOne(t, tree, "#banner")
	b := queryOne(t, tree, ".cookie-banner")
	if a.Key() != b.Key() {
		t.Errorf("same node, different keys: %s vs %s", a.Key(), b.Key())
	}
}

func TestVisibility(t *testing.T) {
	ctx := context.Background()
	tree := mustParse(t, page)

	tests := []struct {
		sel  string
		want bool
	}{
		{"#reject", true},
		{"#accept", false},
		{"#ghost", false},
		{"#sized", false},
		{"title", false},
	}
	for _, tt := range tests {
		if got := dom.IsVisible(ctx, queryOne(t, tree, tt.sel)); got != tt.want {
			t.Errorf("IsVisible(%s): got %v, want %v", tt.sel, got, tt.want)
		}
	}
}

func TestSetStyle_HidesSubtree(t *testing.T) {
	ctx := context.Background()
	tree := mustParse(t, page)
	banner := queryOne(t, tree, "#banner")
	if err := banner.SetStyle(ctx, "display", "none", true); err != nil {
		t.Fatal(err)
	}
	if dom.IsVisible(ctx, queryOne(t, tree, "#reject")) {
		t.Error("child of hidden banner should not be visible")
	}
	style := dom.Attr(ctx, banner, "style")
	if !strings.Contains(style, "display: none !important") {
		t.Errorf("style: got %q", style)
	}
	// A later non-important write must not win.
	banner.SetStyle(ctx, "display", "block", false)
	if st, _ := banner.Style(ctx); st.Display != "none" {
		t.Errorf("display: got %q, want none", st.Display)
	}
}

func TestParent(t *testing.T) {
	ctx := context.Background()
	tree := mustParse(t, page)
	p, err := queryOne(t, tree, "#reject").Parent(ctx)
	if err != nil || p == nil {
		t.Fatalf("parent: %v %v", p, err)
	}
	if id := dom.Attr(ctx, p, "id"); id != "banner" {
		t.Errorf("parent id: got %q", id)
	}

	root := queryOne(t, tree, "html")
	p, err = root.Parent(ctx)
	if err != nil || p != nil {
		t.Errorf("root parent: got %v, %v; want nil, nil", p, err)
	}
}

func TestClick_Handler(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	tree := mustParse(t, page, WithClickHandler(func(_ context.Context, el dom.Element) error {
		if dom.Attr(ctx, el, "id") == "accept" {
			return boom
		}
		return nil
	}))
	if err := queryOne(t, tree, "#reject").Click(ctx); err != nil {
		t.Errorf("reject click: %v", err)
	}
	if err := queryOne(t, tree, "#accept").Click(ctx); !errors.Is(err, boom) {
		t.Errorf("accept click: got %v, want boom", err)
	}
	if n := len(tree.Clicks()); n != 2 {
		t.Errorf("clicks: got %d, want 2", n)
	}
}

func TestInsert_NotifiesSubscribers(t *testing.T) {
	tree := mustParse(t, page)
	var got []dom.Mutation
	cancel := tree.Subscribe(func(m dom.Mutation) { got = append(got, m) })

	n, err := tree.Insert(context.Background(), "body", `<div class="late">one</div><div>two</div>`)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("added: got %d, want 2", n)
	}
	if len(got) != 1 || got[0].Added != 2 {
		t.Errorf("mutations: got %+v", got)
	}

	cancel()
	tree.Insert(context.Background(), "body", `<p>three</p>`)
	if len(got) != 1 {
		t.Errorf("cancelled subscriber still notified: %+v", got)
	}
	queryOne(t, tree, ".late")
}
