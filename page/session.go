package page

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/cookiewall/analysis"
	"github.com/hazyhaar/cookiewall/banner"
	"github.com/hazyhaar/cookiewall/cookies"
	"github.com/hazyhaar/cookiewall/decline"
	"github.com/hazyhaar/cookiewall/dom"
	"github.com/hazyhaar/cookiewall/settings"
	"github.com/hazyhaar/cookiewall/tracking"
)

const inboxSize = 64

// Config wires a Session.
type Config struct {
	Tree dom.Tree
	Host Host

	// Settings is resolved on every load. Nil means defaults.
	Settings settings.Source
	// Cookies feeds the analysis pass. Nil means the page has no cookies.
	Cookies CookieSource
	// Interceptor reports page cookie writes. Nil disables the monitor.
	Interceptor tracking.Interceptor

	Analyzer     *analysis.Analyzer
	Orchestrator *decline.Orchestrator
	Logger       *slog.Logger

	// DeclineDelay overrides AutoDeclineDelay when positive.
	DeclineDelay time.Duration
}

type (
	loadMsg     struct{ tree dom.Tree }
	mutationMsg struct{}
	cookieMsg   struct{ write string }
	timerMsg    struct{ gen int }

	analyzeMsg struct{ reply chan analyzeReply }
	declineMsg struct{ reply chan declineReply }
	statusMsg  struct{ reply chan Status }
)

type analyzeReply struct {
	pa  *analysis.PageAnalysis
	err error
}

type declineReply struct {
	res decline.Result
	err error
}

// Session runs the page event loop. Core operations only run on the loop
// goroutine; everything else posts messages into a bounded inbox.
type Session struct {
	cfg      Config
	logger   *slog.Logger
	detector *banner.Detector
	inbox    chan any
	done     chan struct{}

	pc      *Context
	gen     int
	monitor *tracking.Monitor
	observe func(string)

	mutationPending atomic.Bool
}

// NewSession creates a session for cfg.Tree. The initial load is queued
// immediately, so requests made before Run are answered after it.
func NewSession(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = analysis.New(cfg.Logger)
	}
	if cfg.Orchestrator == nil {
		cfg.Orchestrator = decline.New(decline.WithLogger(cfg.Logger))
	}
	if cfg.DeclineDelay <= 0 {
		cfg.DeclineDelay = AutoDeclineDelay
	}
	s := &Session{
		cfg:      cfg,
		logger:   cfg.Logger,
		detector: banner.New(cfg.Logger),
		inbox:    make(chan any, inboxSize),
		done:     make(chan struct{}),
	}
	s.inbox <- loadMsg{tree: cfg.Tree}
	return s
}

// Run processes messages until ctx is done. Pending timers are abandoned.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.teardown()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-s.inbox:
			if err := s.handle(ctx, m); err != nil {
				return err
			}
		}
	}
}

// Navigated replaces the page context with a fresh one for tree.
func (s *Session) Navigated(ctx context.Context, tree dom.Tree) error {
	return s.send(ctx, loadMsg{tree: tree})
}

// Analyze runs a new analysis pass and reports it to the host.
func (s *Session) Analyze(ctx context.Context) (*analysis.PageAnalysis, error) {
	reply := make(chan analyzeReply, 1)
	if err := s.send(ctx, analyzeMsg{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.pa, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	}
}

// Decline runs the orchestrator now, ignoring the auto-decline setting and
// the whitelist.
func (s *Session) Decline(ctx context.Context) (decline.Result, error) {
	reply := make(chan declineReply, 1)
	if err := s.send(ctx, declineMsg{reply: reply}); err != nil {
		return decline.Result{}, err
	}
	select {
	case r := <-reply:
		return r.res, r.err
	case <-ctx.Done():
		return decline.Result{}, ctx.Err()
	case <-s.done:
		return decline.Result{}, ErrClosed
	}
}

// Status returns a snapshot of the current page context.
func (s *Session) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if err := s.send(ctx, statusMsg{reply: reply}); err != nil {
		return Status{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-s.done:
		return Status{}, ErrClosed
	}
}

// send blocks until the message is queued.
func (s *Session) send(ctx context.Context, m any) error {
	select {
	case s.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// post never blocks; callbacks from the tree and timers use it.
func (s *Session) post(m any) bool {
	select {
	case s.inbox <- m:
		return true
	default:
		s.logger.Warn("page: inbox full, dropping", "message", fmt.Sprintf("%T", m))
		return false
	}
}

func (s *Session) handle(ctx context.Context, m any) error {
	switch m := m.(type) {
	case loadMsg:
		s.load(ctx, m.tree)
	case mutationMsg:
		s.mutationPending.Store(false)
		s.onMutation(ctx)
	case cookieMsg:
		if s.observe != nil {
			s.observe(m.write)
		}
	case timerMsg:
		if s.pc != nil && m.gen == s.pc.gen && s.pc.AutoDecline() {
			s.runDecline(ctx)
		}
	case analyzeMsg:
		pa, err := s.analyze(ctx)
		m.reply <- analyzeReply{pa: pa, err: err}
	case declineMsg:
		res, err := s.runDecline(ctx)
		m.reply <- declineReply{res: res, err: err}
	case statusMsg:
		var st Status
		if s.pc != nil {
			st = s.pc.status()
		}
		m.reply <- st
	}
	return ctx.Err()
}

func (s *Session) load(ctx context.Context, tree dom.Tree) {
	s.teardown()
	s.gen++
	pc := &Context{
		URL:      tree.URL(),
		Host:     dom.Hostname(tree),
		Tree:     tree,
		Settings: settings.Resolve(ctx, s.cfg.Settings, s.logger),
		Ledger:   decline.NewLedger(),
		gen:      s.gen,
	}
	s.pc = pc
	log := s.logger.With("host", pc.Host)
	log.Info("page: loaded", "url", pc.URL, "auto_decline", pc.AutoDecline())

	if _, err := s.analyze(ctx); err != nil {
		log.Warn("page: analysis failed", "error", err)
	}

	s.installMonitor(ctx, pc, log)

	pc.unsubscribe = tree.Subscribe(func(m dom.Mutation) {
		if m.Added == 0 || !s.mutationPending.CompareAndSwap(false, true) {
			return
		}
		if !s.post(mutationMsg{}) {
			s.mutationPending.Store(false)
		}
	})

	if pc.AutoDecline() {
		gen := pc.gen
		pc.timer = time.AfterFunc(s.cfg.DeclineDelay, func() { s.post(timerMsg{gen: gen}) })
	}
}

func (s *Session) teardown() {
	if s.pc == nil {
		return
	}
	if s.pc.timer != nil {
		s.pc.timer.Stop()
	}
	if s.pc.unsubscribe != nil {
		s.pc.unsubscribe()
	}
}

// installMonitor hooks the page's cookie writes once per session and
// restamps the monitor's domain on every later load. The interceptor's
// callback only posts; the monitor runs on the loop.
func (s *Session) installMonitor(ctx context.Context, pc *Context, log *slog.Logger) {
	if s.cfg.Interceptor == nil || s.cfg.Host == nil {
		return
	}
	if s.monitor != nil {
		s.monitor.SetDomain(pc.Host)
		return
	}
	s.monitor = tracking.NewMonitor(pc.Host, s.cfg.Host, s.logger)
	err := s.monitor.Install(ctx, loopInterceptor{s: s, inner: s.cfg.Interceptor})
	if err != nil {
		log.Warn("page: cookie monitor not installed", "error", err)
	}
}

type loopInterceptor struct {
	s     *Session
	inner tracking.Interceptor
}

func (li loopInterceptor) Intercept(ctx context.Context, emit func(string)) error {
	li.s.observe = emit
	return li.inner.Intercept(ctx, func(write string) { li.s.post(cookieMsg{write: write}) })
}

func (s *Session) analyze(ctx context.Context) (*analysis.PageAnalysis, error) {
	pc := s.pc
	var jar []cookies.Record
	if s.cfg.Cookies != nil {
		recs, err := s.cfg.Cookies.Cookies(ctx, pc.Host)
		if err != nil {
			s.logger.Warn("page: cookie listing failed", "host", pc.Host, "error", err)
		}
		jar = recs
	}
	pa, err := s.cfg.Analyzer.Analyze(ctx, pc.Tree, jar)
	if err != nil {
		return nil, fmt.Errorf("page: analyze: %w", err)
	}
	pc.Analysis = pa
	if s.cfg.Host != nil {
		s.cfg.Host.PageAnalyzed(ctx, pa)
	}
	return pa, nil
}

func (s *Session) onMutation(ctx context.Context) {
	pc := s.pc
	if pc == nil || !pc.AutoDecline() {
		return
	}
	if !s.detector.HasVisible(ctx, pc.Tree) {
		return
	}
	s.runDecline(ctx)
}

func (s *Session) runDecline(ctx context.Context) (decline.Result, error) {
	pc := s.pc
	res, err := s.cfg.Orchestrator.Run(ctx, pc.Tree, pc.Ledger, decline.Options{
		Suppress: pc.Settings.SuppressAllowed(),
	})
	if err != nil {
		return res, err
	}
	pc.recordDecline(res)
	if res.Strategy != decline.StrategyNone && s.cfg.Host != nil {
		s.cfg.Host.DeclineCompleted(ctx, res)
	}
	return res, nil
}
