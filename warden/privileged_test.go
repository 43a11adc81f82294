package warden

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/cookiewall/analysis"
	"github.com/hazyhaar/cookiewall/cookies"
	"github.com/hazyhaar/cookiewall/cookiestore"
	"github.com/hazyhaar/cookiewall/dbopen"
	"github.com/hazyhaar/cookiewall/decline"
	"github.com/hazyhaar/cookiewall/notify"
	"github.com/hazyhaar/cookiewall/settings"
	"github.com/hazyhaar/cookiewall/store"
	"github.com/hazyhaar/cookiewall/tracking"
)

type testPriv struct {
	*privileged
	badges  *notify.MemoryBadger
	reports []string
}

func startPriv(t *testing.T, set settings.Settings) *testPriv {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	tp := &testPriv{badges: notify.NewMemoryBadger()}
	report := func(kind string) error {
		tp.reports = append(tp.reports, kind)
		return nil
	}
	sink := &notify.Callback{
		OnAnalysis: func(context.Context, *analysis.PageAnalysis) error { return report("analysis") },
		OnDecline:  func(context.Context, decline.Result) error { return report("decline") },
		OnTracking: func(context.Context, tracking.Event) error { return report("tracking") },
	}
	tp.privileged = newPrivileged(&store.Store{DB: db}, settings.Static(set), tp.badges,
		notify.NewRouter(nil, sink), RetentionConfig{MaxAge: time.Hour, Interval: time.Hour}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go tp.run(ctx)
	t.Cleanup(func() {
		cancel()
		<-tp.done
	})
	return tp
}

func (tp *testPriv) stats(t *testing.T) store.Stats {
	t.Helper()
	if err := tp.sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	st, err := tp.store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func trackedPage() *analysis.PageAnalysis {
	return &analysis.PageAnalysis{
		ID:              "ana_1",
		URL:             "https://example.com/",
		Domain:          "example.com",
		Timestamp:       time.Now(),
		Cookies:         cookies.Summary{Total: 10, Analytics: 1, Essential: 9},
		TrackingScripts: []tracking.Script{{Src: "https://www.googletagmanager.com/gtm.js", Type: "googletagmanager.com"}},
	}
}

func TestPrivileged_AnalyzedBlocksTrackingCookies(t *testing.T) {
	tp := startPriv(t, settings.Defaults())
	jar := cookiestore.NewMemoryJar(
		cookies.Record{Name: "_ga", Domain: ".example.com", Path: "/"},
		cookies.Record{Name: "sessionid", Domain: "example.com", Path: "/"},
	)
	host := &pageHost{priv: tp.privileged, url: "https://example.com/", jar: jar}
	host.PageAnalyzed(context.Background(), trackedPage())

	st := tp.stats(t)
	if st.SitesAnalyzed != 1 || st.CookiesBlocked != 1 {
		t.Errorf("stats: got %+v", st)
	}
	left, _ := jar.Cookies(context.Background(), "example.com")
	if len(left) != 1 || left[0].Name != "sessionid" {
		t.Errorf("jar after block: got %+v", left)
	}

	// 1 script over 10 cookies is green; the text counts cookies.
	if b, ok := tp.badges.BadgeFor("https://example.com/"); !ok || b.Text != "10" || b.Color != "#48bb78" {
		t.Errorf("badge: got %+v, %v", b, ok)
	}
	if toasts := tp.badges.Toasts(); len(toasts) != 1 {
		t.Errorf("toasts: got %q", toasts)
	}
	if stored, err := tp.store.GetAnalysis(context.Background(), "example.com"); err != nil || stored == nil {
		t.Errorf("stored: got %v, %v", stored, err)
	}
}

func TestPrivileged_WhitelistSkipsBlocking(t *testing.T) {
	set := settings.Defaults()
	set.Whitelist = []string{"example.com"}
	tp := startPriv(t, set)
	jar := cookiestore.NewMemoryJar(cookies.Record{Name: "_ga", Domain: ".example.com", Path: "/"})
	host := &pageHost{priv: tp.privileged, url: "https://example.com/", jar: jar}
	host.PageAnalyzed(context.Background(), trackedPage())
	host.TrackingDetected(context.Background(), tracking.Event{Name: "_ga", Domain: "example.com"})

	if st := tp.stats(t); st.CookiesBlocked != 0 || st.TrackersBlocked != 0 {
		t.Errorf("stats: got %+v", st)
	}
	if left, _ := jar.Cookies(context.Background(), "example.com"); len(left) != 1 {
		t.Errorf("jar: got %+v", left)
	}
}

func TestPrivileged_TrackingEventRemovesCookie(t *testing.T) {
	tp := startPriv(t, settings.Defaults())
	jar := cookiestore.NewMemoryJar(cookies.Record{Name: "_fbp", Domain: "shop.example", Path: "/"})
	host := &pageHost{priv: tp.privileged, url: "https://shop.example/", jar: jar}
	host.TrackingDetected(context.Background(), tracking.Event{Name: "_fbp", Domain: "shop.example", Cookie: "_fbp=fb.1"})

	st := tp.stats(t)
	if st.CookiesBlocked != 1 || st.TrackersBlocked != 1 {
		t.Errorf("stats: got %+v", st)
	}
	if len(tp.reports) != 1 || tp.reports[0] != "tracking" {
		t.Errorf("reports: got %v", tp.reports)
	}
}

func TestPrivileged_DeclineCounting(t *testing.T) {
	tp := startPriv(t, settings.Defaults())
	host := &pageHost{priv: tp.privileged}
	host.DeclineCompleted(context.Background(), decline.Result{Strategy: decline.StrategyGeneric, ElementsClicked: 2})
	host.DeclineCompleted(context.Background(), decline.Result{Strategy: decline.StrategySuppress, Suppressed: 1})

	if st := tp.stats(t); st.BannersDeclined != 1 {
		t.Errorf("banners declined: got %d, want 1", st.BannersDeclined)
	}
	if len(tp.reports) != 2 {
		t.Errorf("reports: got %v", tp.reports)
	}
}

func TestPrivileged_NoJarNoBlocking(t *testing.T) {
	tp := startPriv(t, settings.Defaults())
	host := &pageHost{priv: tp.privileged, url: "https://example.com/"}
	host.PageAnalyzed(context.Background(), trackedPage())
	host.TrackingDetected(context.Background(), tracking.Event{Name: "_ga", Domain: "example.com"})

	st := tp.stats(t)
	if st.SitesAnalyzed != 1 || st.CookiesBlocked != 0 || st.TrackersBlocked != 0 {
		t.Errorf("stats: got %+v", st)
	}
}
