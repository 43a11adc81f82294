// Package warden runs cookiewall as a service: it owns the browser, the
// database and the privileged side pages report to, and drives one page
// session per inspection.
package warden

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/cookiewall/analysis"
	"github.com/hazyhaar/cookiewall/cookiestore"
	"github.com/hazyhaar/cookiewall/decline"
	"github.com/hazyhaar/cookiewall/dom/htmltree"
	"github.com/hazyhaar/cookiewall/dom/rodtree"
	"github.com/hazyhaar/cookiewall/notify"
	"github.com/hazyhaar/cookiewall/page"
	"github.com/hazyhaar/cookiewall/settings"
	"github.com/hazyhaar/cookiewall/store"
	"github.com/hazyhaar/cookiewall/warden/internal/browser"
	"github.com/hazyhaar/cookiewall/warden/internal/fetcher"
	"github.com/hazyhaar/cookiewall/warden/internal/urlguard"
)

var (
	// ErrClosed is returned by calls made before Start or after Close.
	ErrClosed = errors.New("warden: not running")
	// ErrInvalidURL is returned for anything but an absolute http(s) URL,
	// and for private targets unless AllowPrivateTargets is set.
	ErrInvalidURL = errors.New("warden: invalid url")
	// ErrInvalidSettings is returned by UpdateSettings for an unknown privacy level.
	ErrInvalidSettings = errors.New("warden: invalid settings")
)

// Mode values of an Inspection.
const (
	ModeStatic = "http"
)

// InspectOptions tune one inspection.
type InspectOptions struct {
	// Decline runs the decline orchestrator once the page is analyzed.
	Decline bool `json:"decline"`
	// Static skips the browser and inspects the raw HTTP response.
	Static bool `json:"static"`
}

// Inspection is the outcome of Inspect or AnalyzeStatic.
type Inspection struct {
	URL        string                 `json:"url"`
	Mode       string                 `json:"mode"`
	StatusCode int                    `json:"status_code,omitempty"`
	Sufficient *bool                  `json:"sufficient,omitempty"`
	Analysis   *analysis.PageAnalysis `json:"analysis"`
	Decline    *decline.Result        `json:"decline,omitempty"`
}

// Warden is the cookiewall service.
type Warden struct {
	cfg    *Config
	logger *slog.Logger

	store    *store.Store
	settings settings.Source
	sqlite   *settings.SQLiteSource
	save     func(context.Context, settings.Settings) error

	mgr      *browser.Manager
	guard    urlguard.Guard
	fetcher  *fetcher.Fetcher
	analyzer *analysis.Analyzer
	timing   decline.Timing

	sinks  *notify.Router
	badges *notify.MemoryBadger
	priv   *privileged

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// Option configures a Warden.
type Option func(*options)

type options struct {
	logger *slog.Logger
	badger notify.Badger
	sinks  []notify.Sink
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBadger adds a badge/toast surface next to the in-memory one.
func WithBadger(b notify.Badger) Option {
	return func(o *options) { o.badger = b }
}

// WithSinks adds report sinks next to the configured ones.
func WithSinks(s ...notify.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s...) }
}

// New opens the database and wires every component. Call Start before use.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Warden, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	logger := o.logger

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("warden: %w", err)
	}

	guard := urlguard.Guard{AllowPrivate: cfg.AllowPrivateTargets}
	w := &Warden{
		cfg:    cfg,
		logger: logger,
		store:  st,
		guard:  guard,
		fetcher: fetcher.New(
			fetcher.WithLogger(logger),
			fetcher.WithRedirectCheck(guard.Check)),
		analyzer: analysis.New(logger),
		timing: decline.Timing{
			Settle:       cfg.Decline.Settle,
			Fallback:     cfg.Decline.Fallback,
			Report:       cfg.Decline.Report,
			IndicatorTTL: cfg.Decline.IndicatorTTL,
		},
		badges: notify.NewMemoryBadger(),
	}

	if cfg.SettingsFile != "" {
		w.settings = settings.FileSource{Path: cfg.SettingsFile}
		w.save = func(_ context.Context, s settings.Settings) error {
			return settings.WriteFile(cfg.SettingsFile, s)
		}
	} else {
		src, err := settings.NewSQLiteSource(ctx, st.DB)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("warden: %w", err)
		}
		src.Logger = logger
		w.settings = src
		w.sqlite = src
		w.save = src.Save
	}

	sinks := make([]notify.Sink, 0, len(cfg.Sinks)+len(o.sinks))
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, notify.NewStdout(nil))
		case "webhook":
			sinks = append(sinks, notify.NewWebhook(sc.URL, notify.WithWebhookLogger(logger)))
		}
	}
	w.sinks = notify.NewRouter(logger, append(sinks, o.sinks...)...)

	badgers := notify.Multi{w.badges, notify.LogBadger{Logger: logger}}
	if o.badger != nil {
		badgers = append(badgers, o.badger)
	}
	w.priv = newPrivileged(st, w.settings, badgers, w.sinks, cfg.Retention, logger)

	level := browser.ParseLevel(cfg.Browser.Stealth)
	if level != browser.LevelHTTP {
		w.mgr = browser.NewManager(browser.Config{
			RemoteURL:        cfg.Browser.Remote,
			MemoryLimit:      cfg.Browser.MemoryLimit,
			RecycleInterval:  cfg.Browser.RecycleInterval,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			Level:            level,
			NavTimeout:       cfg.Browser.NavTimeout,
			XvfbDisplay:      cfg.Browser.XvfbDisplay,
			Logger:           logger,
		})
	}
	return w, nil
}

// Start launches the browser (unless running HTTP-only) and the privileged
// loop. Both stop when ctx is done or Close is called.
func (w *Warden) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	if w.mgr != nil {
		if err := w.mgr.Start(ctx); err != nil {
			cancel()
			return fmt.Errorf("warden: start browser: %w", err)
		}
	}
	go w.priv.run(ctx)
	if w.sqlite != nil {
		go w.sqlite.Watch(ctx, settings.WatchOptions{Logger: w.logger}, func(s settings.Settings) {
			w.logger.Info("warden: settings changed",
				"auto_decline", s.AutoDeclineEnabled,
				"block_tracking", s.BlockTrackingCookies,
				"privacy_level", s.PrivacyLevel,
				"whitelist", len(s.Whitelist))
		})
	}
	w.cancel = cancel
	w.running = true

	mode := ModeStatic
	if w.mgr != nil {
		mode = w.mgr.Level().String()
	}
	w.logger.Info("warden: started", "mode", mode, "database", w.cfg.Database)
	return nil
}

// Close stops the loops and releases the browser and the database.
func (w *Warden) Close() error {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()

	if wasRunning {
		<-w.priv.done
	}
	var errs []error
	if w.mgr != nil {
		errs = append(errs, w.mgr.Close())
	}
	errs = append(errs, w.sinks.Close(), w.store.Close())
	return errors.Join(errs...)
}

func (w *Warden) checkRunning() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return ErrClosed
	}
	return nil
}

// Inspect loads rawURL in a browser tab, analyzes it and, when asked,
// declines its consent banner. Without a browser it falls back to
// AnalyzeStatic.
func (w *Warden) Inspect(ctx context.Context, rawURL string, opts InspectOptions) (*Inspection, error) {
	if err := w.checkRunning(); err != nil {
		return nil, err
	}
	pageURL, err := w.target(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if opts.Static || w.mgr == nil {
		return w.AnalyzeStatic(ctx, pageURL)
	}

	tab, err := browser.OpenTab(ctx, w.mgr, pageURL, w.mgr.Level())
	if err != nil {
		return nil, fmt.Errorf("warden: inspect: %w", err)
	}
	defer tab.Close()

	pageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tree, err := rodtree.New(pageCtx, tab.Page,
		rodtree.WithLogger(w.logger),
		rodtree.WithDebounce(w.cfg.Browser.Debounce))
	if err != nil {
		return nil, fmt.Errorf("warden: inspect: %w", err)
	}
	defer tree.Close()

	jar := rodtree.CookieJar{Page: tab.Page}
	sess := w.newSession(page.Config{
		Tree:        tree,
		Host:        &pageHost{priv: w.priv, url: pageURL, jar: jar},
		Settings:    w.settings,
		Cookies:     jar,
		Interceptor: &rodtree.CookieInterceptor{Page: tab.Page, Logger: w.logger},
	}, rodtree.Indicator{Page: tab.Page})

	insp, err := w.drive(ctx, pageCtx, cancel, sess, driveOptions{declineNow: opts.Decline, watch: true})
	if err != nil {
		return nil, err
	}
	insp.URL = tree.URL()
	insp.Mode = tab.Level.String()
	return insp, nil
}

// newSession completes cfg with the warden's analyzer, decline timings and
// logger. A nil indicator logs status changes instead.
func (w *Warden) newSession(cfg page.Config, ind decline.Indicator) *page.Session {
	if ind == nil {
		ind = decline.LogIndicator{Logger: w.logger}
	}
	cfg.Analyzer = w.analyzer
	cfg.Orchestrator = decline.New(
		decline.WithLogger(w.logger),
		decline.WithTiming(w.timing),
		decline.WithIndicator(ind))
	cfg.Logger = w.logger
	cfg.DeclineDelay = w.cfg.Decline.AutoDelay
	return page.NewSession(cfg)
}

// AnalyzeStatic inspects the raw HTTP response of rawURL. Cookies come
// from Set-Cookie headers; nothing is clicked and nothing is removed.
func (w *Warden) AnalyzeStatic(ctx context.Context, rawURL string) (*Inspection, error) {
	if err := w.checkRunning(); err != nil {
		return nil, err
	}
	pageURL, err := w.target(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	res, err := w.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("warden: analyze: %w", err)
	}
	tree, err := htmltree.Parse(bytes.NewReader(res.HTML), res.URL)
	if err != nil {
		return nil, fmt.Errorf("warden: analyze: %w", err)
	}

	pageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := w.newSession(page.Config{
		Tree:     tree,
		Host:     &pageHost{priv: w.priv, url: res.URL},
		Settings: analysisOnly{src: w.settings, logger: w.logger},
		Cookies:  cookiestore.NewMemoryJar(res.Cookies...),
	}, nil)

	insp, err := w.drive(ctx, pageCtx, cancel, sess, driveOptions{})
	if err != nil {
		return nil, err
	}
	sufficient := res.Sufficient
	insp.URL = res.URL
	insp.Mode = ModeStatic
	insp.StatusCode = res.StatusCode
	insp.Sufficient = &sufficient
	if !sufficient {
		w.logger.Info("warden: static markup looks script-rendered", "url", res.URL)
	}
	return insp, nil
}

type driveOptions struct {
	// declineNow runs the orchestrator right after the first analysis.
	declineNow bool
	// watch keeps an auto-declining page open for the first automatic run
	// plus the configured watch period.
	watch bool
}

// drive runs sess until its analysis and declines are in, stops it, and
// waits for the privileged side to absorb the reports.
func (w *Warden) drive(ctx, pageCtx context.Context, stop context.CancelFunc, sess *page.Session, opts driveOptions) (*Inspection, error) {
	errc := make(chan error, 1)
	go func() { errc <- sess.Run(pageCtx) }()

	insp, err := w.collect(ctx, sess, opts)
	stop()
	<-errc
	if err != nil {
		return nil, err
	}
	if err := w.priv.sync(ctx); err != nil {
		return nil, fmt.Errorf("warden: flush reports: %w", err)
	}
	return insp, nil
}

func (w *Warden) collect(ctx context.Context, sess *page.Session, opts driveOptions) (*Inspection, error) {
	st, err := sess.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("warden: page status: %w", err)
	}
	if st.Analysis == nil {
		return nil, fmt.Errorf("warden: analysis of %s failed", st.URL)
	}
	insp := &Inspection{Analysis: st.Analysis}
	if opts.declineNow {
		res, err := sess.Decline(ctx)
		if err != nil {
			return nil, fmt.Errorf("warden: decline: %w", err)
		}
		insp.Decline = &res
	}
	if !opts.watch || !st.AutoDecline {
		return insp, nil
	}

	window := w.cfg.Decline.AutoDelay + w.cfg.Decline.Watch
	w.logger.Debug("warden: watching page", "url", st.URL, "window", window)
	t := time.NewTimer(window)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return nil, fmt.Errorf("warden: watch %s: %w", st.URL, ctx.Err())
	}

	// Queued behind any run still in progress.
	st, err = sess.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("warden: page status: %w", err)
	}
	if st.Decline != nil {
		insp.Decline = st.Decline
	}
	return insp, nil
}

// analysisOnly resolves the stored settings with auto-decline turned off.
// Clicks on a parsed copy of a page would reach nobody.
type analysisOnly struct {
	src    settings.Source
	logger *slog.Logger
}

func (a analysisOnly) Load(ctx context.Context) (settings.Settings, error) {
	s := settings.Resolve(ctx, a.src, a.logger)
	s.AutoDeclineEnabled = false
	return s, nil
}

// Settings returns the current settings, defaults when unreadable.
func (w *Warden) Settings(ctx context.Context) settings.Settings {
	return settings.Resolve(ctx, w.settings, w.logger)
}

// UpdateSettings validates and stores s.
func (w *Warden) UpdateSettings(ctx context.Context, s settings.Settings) (settings.Settings, error) {
	if s.PrivacyLevel == "" {
		s.PrivacyLevel = settings.Medium
	}
	if !s.PrivacyLevel.Valid() {
		return settings.Settings{}, fmt.Errorf("%w: privacy level %q", ErrInvalidSettings, s.PrivacyLevel)
	}
	if s.Whitelist == nil {
		s.Whitelist = []string{}
	}
	if err := w.save(ctx, s); err != nil {
		return settings.Settings{}, fmt.Errorf("warden: save settings: %w", err)
	}
	w.logger.Info("warden: settings updated", "privacy_level", s.PrivacyLevel, "whitelist", len(s.Whitelist))
	return s, nil
}

// Stats returns the usage counters.
func (w *Warden) Stats(ctx context.Context) (store.Stats, error) {
	return w.store.Stats(ctx)
}

// History lists stored analyses, newest first. limit <= 0 lists all.
func (w *Warden) History(ctx context.Context, limit int) ([]store.Summary, error) {
	return w.store.ListAnalyses(ctx, limit)
}

// Analysis returns the stored analysis of domain, nil when there is none.
func (w *Warden) Analysis(ctx context.Context, domain string) (*analysis.PageAnalysis, error) {
	return w.store.GetAnalysis(ctx, strings.ToLower(domain))
}

// Export dumps settings and every stored analysis.
func (w *Warden) Export(ctx context.Context) (*store.Export, error) {
	return w.store.Export(ctx, w.Settings(ctx))
}

// Badge returns the last badge shown for pageURL.
func (w *Warden) Badge(pageURL string) (notify.BadgeState, bool) {
	return w.badges.BadgeFor(pageURL)
}

// Notifications returns every toast shown so far.
func (w *Warden) Notifications() []string {
	return w.badges.Toasts()
}

// target normalises rawURL and refuses private addresses.
func (w *Warden) target(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := urlguard.Normalize(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if err := w.guard.CheckString(ctx, pageURL); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	return pageURL, nil
}
