package analysis

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hazyhaar/cookiewall/cookies"
	"github.com/hazyhaar/cookiewall/dom/htmltree"
	"github.com/hazyhaar/cookiewall/privacy"
)

const page = `<html><head>
<script src="https://www.google-analytics.com/analytics.js"></script>
<script src="/js/site.js"></script>
</head><body>
<div class="cookie-consent">We and our partners use cookies.
  <button>Accept</button><button class="reject">Reject non-essential</button>
</div>
<iframe src="https://player.vimeo.com/video/1"></iframe>
<footer>
  <a href="/legal/privacy">Privacy Policy</a>
  <a href="/legal/policy">Terms</a>
</footer>
</body></html>`

func TestAnalyze(t *testing.T) {
	ctx := context.Background()
	tree, err := htmltree.ParseString(page, "https://www.example.com/")
	if err != nil {
		t.Fatal(err)
	}
	jar := []cookies.Record{
		{Name: "sessionid", Domain: "www.example.com"},
		{Name: "_ga", Domain: ".example.com"},
		{Name: "theme", Domain: "www.example.com"},
	}

	pa, err := New(nil).Analyze(ctx, tree, jar)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(pa.ID, "ana_") {
		t.Errorf("id: got %q", pa.ID)
	}
	if pa.Domain != "www.example.com" {
		t.Errorf("domain: got %q", pa.Domain)
	}
	if pa.Cookies.Total != 3 || pa.Cookies.Analytics != 1 {
		t.Errorf("summary: got %+v", pa.Cookies)
	}
	// 1 of 3 is 0.33.
	if pa.Score != privacy.Medium {
		t.Errorf("score: got %q, want medium", pa.Score)
	}
	if len(pa.TrackingScripts) != 1 || pa.TrackingScripts[0].Type != "google-analytics.com" {
		t.Errorf("tracking scripts: got %+v", pa.TrackingScripts)
	}
	got := pa.ThirdPartyDomains.Sorted()
	if len(got) != 2 || got[0] != "player.vimeo.com" || got[1] != "www.google-analytics.com" {
		t.Errorf("third party: got %v", got)
	}
	if len(pa.Banners) != 1 || !pa.Banners[0].HasDecline || pa.Banners[0].DeclineText != "Reject non-essential" {
		t.Errorf("banners: got %+v", pa.Banners)
	}
	if len(pa.PrivacyPolicyLinks) != 1 {
		t.Fatalf("policy links: got %+v", pa.PrivacyPolicyLinks)
	}
	if l := pa.PrivacyPolicyLinks[0]; l.Text != "Privacy Policy" || l.Href != "https://www.example.com/legal/privacy" {
		t.Errorf("policy link: got %+v", l)
	}

	if _, err := json.Marshal(pa); err != nil {
		t.Errorf("marshal: %v", err)
	}
}

func TestAnalyze_EmptyPage(t *testing.T) {
	tree, err := htmltree.ParseString(`<html><body></body></html>`, "https://example.org/")
	if err != nil {
		t.Fatal(err)
	}
	pa, err := New(nil).Analyze(context.Background(), tree, nil)
	if err != nil {
		t.Fatal(err)
	}
	if pa.Score != privacy.Good || pa.Cookies.Total != 0 {
		t.Errorf("empty page: got score %q, total %d", pa.Score, pa.Cookies.Total)
	}
	if pa.Banners == nil || pa.TrackingScripts == nil || pa.PrivacyPolicyLinks == nil {
		t.Error("empty page should report empty slices, not nil")
	}
}

func TestAnalyze_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tree, _ := htmltree.ParseString(page, "https://www.example.com/")
	if _, err := New(nil).Analyze(ctx, tree, nil); err == nil {
		t.Error("expected error on cancelled context")
	}
}
