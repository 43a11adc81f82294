package warden

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/cookiewall/analysis"
	"github.com/hazyhaar/cookiewall/cookiestore"
	"github.com/hazyhaar/cookiewall/decline"
	"github.com/hazyhaar/cookiewall/notify"
	"github.com/hazyhaar/cookiewall/privacy"
	"github.com/hazyhaar/cookiewall/settings"
	"github.com/hazyhaar/cookiewall/store"
	"github.com/hazyhaar/cookiewall/tracking"
)

const (
	privInboxSize     = 128
	notificationTitle = "Cookie Analyzer"
)

type (
	analyzedMsg struct {
		pa  *analysis.PageAnalysis
		url string
		jar cookiestore.Jar
	}
	declinedMsg struct{ res decline.Result }
	trackingMsg struct {
		ev  tracking.Event
		jar cookiestore.Jar
	}
	syncMsg struct{ reply chan struct{} }
)

// privileged is the side of the warden pages report to. It owns the store
// writes, the badge and cookie removal, all on one goroutine.
type privileged struct {
	store    *store.Store
	settings settings.Source
	badger   notify.Badger
	sinks    *notify.Router
	logger   *slog.Logger

	maxAge   time.Duration
	interval time.Duration

	inbox chan any
	done  chan struct{}
}

func newPrivileged(st *store.Store, src settings.Source, badger notify.Badger, sinks *notify.Router, ret RetentionConfig, logger *slog.Logger) *privileged {
	return &privileged{
		store:    st,
		settings: src,
		badger:   badger,
		sinks:    sinks,
		logger:   logger,
		maxAge:   ret.MaxAge,
		interval: ret.Interval,
		inbox:    make(chan any, privInboxSize),
		done:     make(chan struct{}),
	}
}

// run processes reports until ctx is done. A cleanup pass runs at start and
// then every interval.
func (p *privileged) run(ctx context.Context) {
	defer close(p.done)

	p.cleanup(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cleanup(ctx)
		case m := <-p.inbox:
			p.handle(ctx, m)
		}
	}
}

// post queues m. It blocks while the inbox is full and gives up once the
// loop has exited.
func (p *privileged) post(ctx context.Context, m any) {
	select {
	case p.inbox <- m:
	case <-p.done:
	case <-ctx.Done():
		p.logger.Warn("warden: report dropped", "type", fmt.Sprintf("%T", m), "error", ctx.Err())
	}
}

// sync returns once every message posted before it has been handled.
func (p *privileged) sync(ctx context.Context) error {
	reply := make(chan struct{})
	select {
	case p.inbox <- syncMsg{reply: reply}:
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *privileged) handle(ctx context.Context, m any) {
	switch m := m.(type) {
	case analyzedMsg:
		p.analyzed(ctx, m)
	case declinedMsg:
		p.declined(ctx, m.res)
	case trackingMsg:
		p.tracked(ctx, m)
	case syncMsg:
		close(m.reply)
	default:
		p.logger.Error("warden: unknown message", "type", fmt.Sprintf("%T", m))
	}
}

func (p *privileged) analyzed(ctx context.Context, m analyzedMsg) {
	pa := m.pa
	log := p.logger.With("domain", pa.Domain)

	if err := p.store.SaveAnalysis(ctx, pa); err != nil {
		log.Error("warden: save analysis", "error", err)
	}
	p.increment(ctx, store.StatSitesAnalyzed, 1)

	// The badge is scored on scripts, the analysis on cookies.
	color := privacy.Score(len(pa.TrackingScripts), pa.Cookies.Total).Color()
	p.badger.Badge(ctx, m.url, privacy.BadgeText(pa.Cookies.Total), color)

	set := settings.Resolve(ctx, p.settings, log)
	if n := len(pa.TrackingScripts); set.ShowNotifications && n > 0 {
		p.badger.Toast(ctx, notificationTitle, fmt.Sprintf("Detected %d tracking scripts on %s", n, pa.Domain))
	}

	if m.jar != nil && set.BlockTrackingCookies && !set.Whitelisted(pa.Domain) {
		removed, err := cookiestore.NewBlocker(m.jar, log).BlockDomain(ctx, pa.Domain)
		if err != nil {
			log.Warn("warden: block tracking cookies", "error", err)
		}
		p.increment(ctx, store.StatCookiesBlocked, int64(removed))
	}

	if err := p.sinks.SendAnalysis(ctx, pa); err != nil {
		log.Debug("warden: analysis not delivered", "error", err)
	}
}

func (p *privileged) declined(ctx context.Context, res decline.Result) {
	if res.Declined() {
		p.increment(ctx, store.StatBannersDeclined, 1)
	}
	if err := p.sinks.SendDecline(ctx, res); err != nil {
		p.logger.Debug("warden: decline not delivered", "run_id", res.RunID, "error", err)
	}
}

func (p *privileged) tracked(ctx context.Context, m trackingMsg) {
	ev := m.ev
	log := p.logger.With("domain", ev.Domain, "cookie", ev.Name)

	set := settings.Resolve(ctx, p.settings, log)
	if m.jar != nil && set.BlockTrackingCookies && !set.Whitelisted(ev.Domain) {
		if err := cookiestore.NewBlocker(m.jar, log).Remove(ctx, ev.Domain, "/", ev.Name); err == nil {
			log.Info("warden: blocked tracking cookie")
			p.increment(ctx, store.StatCookiesBlocked, 1)
			p.increment(ctx, store.StatTrackersBlocked, 1)
		}
	}

	if err := p.sinks.SendTracking(ctx, ev); err != nil {
		log.Debug("warden: tracking event not delivered", "error", err)
	}
}

func (p *privileged) increment(ctx context.Context, stat string, n int64) {
	if err := p.store.Increment(ctx, stat, n); err != nil {
		p.logger.Error("warden: stats", "stat", stat, "error", err)
	}
}

func (p *privileged) cleanup(ctx context.Context) {
	n, err := p.store.Cleanup(ctx, p.maxAge)
	if err != nil {
		p.logger.Error("warden: cleanup", "error", err)
		return
	}
	if n > 0 {
		p.logger.Info("warden: cleanup", "removed", n, "max_age", p.maxAge)
	}
}

// pageHost is the page.Host handed to one page session. Jar is nil when
// the page has no privileged cookie store.
type pageHost struct {
	priv *privileged
	url  string
	jar  cookiestore.Jar
}

func (h *pageHost) PageAnalyzed(ctx context.Context, pa *analysis.PageAnalysis) {
	h.priv.post(ctx, analyzedMsg{pa: pa, url: h.url, jar: h.jar})
}

func (h *pageHost) DeclineCompleted(ctx context.Context, res decline.Result) {
	h.priv.post(ctx, declinedMsg{res: res})
}

func (h *pageHost) TrackingDetected(ctx context.Context, ev tracking.Event) {
	h.priv.post(ctx, trackingMsg{ev: ev, jar: h.jar})
}
