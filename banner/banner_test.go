package banner

import (
	"context"
	"strings"
	"testing"

	"github.com/hazyhaar/cookiewall/dom"
	"github.com/hazyhaar/cookiewall/dom/htmltree"
)

func parse(t *testing.T, src string) *htmltree.Tree {
	t.Helper()
	tree, err := htmltree.ParseString(src, "https://news.example.com/")
	if err != nil {
		t.Fatal(err)
	}
	return tree
}

func TestFind_DedupAndDecline(t *testing.T) {
	ctx := context.Background()
	tree := parse(t, `<body>
		<div id="cookie-banner" class="cookie-banner consent">
			<p>This site uses cookies to improve your experience.</p>
			<button class="btn primary">Accept everything</button>
			<button class="btn">Reject all</button>
		</div>
		<div class="cookie-footer" style="display:none">Cookie policy</div>
	</body>`)

	got := New(nil).Find(ctx, tree)
	if len(got) != 1 {
		t.Fatalf("candidates: got %d, want 1", len(got))
	}
	c := got[0]
	if c.Selector != `[class*="cookie"]` {
		t.Errorf("selector: got %q", c.Selector)
	}
	if c.Decline == nil {
		t.Fatal("decline control not found")
	}
	if text, _ := c.Decline.Text(ctx); text != "Reject all" {
		t.Errorf("decline text: got %q", text)
	}
	if !strings.HasPrefix(c.TextSnippet, "This site uses cookies") {
		t.Errorf("snippet: got %q", c.TextSnippet)
	}
}

func TestFind_RequiresCookieText(t *testing.T) {
	tree := parse(t, `<body><div class="consent-box">We value your privacy</div></body>`)
	if got := New(nil).Find(context.Background(), tree); len(got) != 0 {
		t.Errorf("candidates: got %d, want 0", len(got))
	}
}

func TestFindDecline_SelectorOrderBeatsDocumentOrder(t *testing.T) {
	ctx := context.Background()
	tree := parse(t, `<body><div class="cookie-notice">We use cookies.
		<a href="#">Manage preferences here</a>
		<button data-testid="decline-all">Decline optional</button>
	</div></body>`)
	els, err := tree.Query(ctx, ".cookie-notice")
	if err != nil {
		t.Fatal(err)
	}
	el := New(nil).FindDecline(ctx, els[0])
	if el == nil {
		t.Fatal("no decline found")
	}
	if id := dom.Attr(ctx, el, "data-testid"); id != "decline-all" {
		t.Errorf("decline: got testid %q, want decline-all", id)
	}
}

func TestFindDecline_None(t *testing.T) {
	ctx := context.Background()
	tree := parse(t, `<body><div class="cookie-notice">Cookies! <button>Got it, accept</button></div></body>`)
	els, _ := tree.Query(ctx, ".cookie-notice")
	if el := New(nil).FindDecline(ctx, els[0]); el != nil {
		t.Errorf("decline: got %v, want nil", el)
	}
}

func TestSnippet_Truncates(t *testing.T) {
	ctx := context.Background()
	long := strings.Repeat("cookie ", 40)
	tree := parse(t, `<body><div class="cookie-bar">`+long+`</div></body>`)
	els, _ := tree.Query(ctx, ".cookie-bar")
	s := New(nil).Snippet(ctx, els[0])
	if n := len([]rune(s)); n != snippetLen {
		t.Errorf("snippet length: got %d, want %d", n, snippetLen)
	}
}

func TestHasVisible(t *testing.T) {
	ctx := context.Background()
	d := New(nil)
	if d.HasVisible(ctx, parse(t, `<body><p>hello</p></body>`)) {
		t.Error("empty page reported a banner")
	}
	if !d.HasVisible(ctx, parse(t, `<body><div id="gdpr">cookie choices</div></body>`)) {
		t.Error("gdpr banner not reported")
	}
}
