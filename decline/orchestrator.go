// Package decline drives the decline ladder: site profile, generic
// selectors, a text scan, and finally force-hiding banner containers.
// Each stage runs only when every earlier stage clicked nothing.
package decline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/cookiewall/affordance"
	"github.com/hazyhaar/cookiewall/banner"
	"github.com/hazyhaar/cookiewall/dom"
	"github.com/hazyhaar/cookiewall/idgen"
)

// Strategy names the stage that produced the result.
type Strategy string

const (
	StrategyNone         Strategy = "none"
	StrategySiteSpecific Strategy = "site_specific"
	StrategyGeneric      Strategy = "generic_ladder"
	StrategyTextScan     Strategy = "text_scan"
	StrategySuppress     Strategy = "suppress"
)

const (
	ancestorDepth = 10
	msgWorking    = "Auto-declining cookies..."
	msgNone       = "No cookie banners found to decline"
)

// Result is the outcome of one run. Suppressed counts containers hidden
// without a click and is never included in ElementsClicked.
type Result struct {
	RunID           string        `json:"run_id"`
	URL             string        `json:"url"`
	Strategy        Strategy      `json:"strategy"`
	Profile         string        `json:"profile,omitempty"`
	ElementsClicked int           `json:"elements_clicked"`
	BannersHidden   int           `json:"banners_hidden"`
	Suppressed      int           `json:"suppressed"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration_ns"`
}

// Declined reports whether at least one decline control was clicked.
func (r Result) Declined() bool { return r.ElementsClicked > 0 }

// Timing holds the settle delays of a run.
type Timing struct {
	// Settle follows every successful click.
	Settle time.Duration
	// Fallback precedes the text scan.
	Fallback time.Duration
	// Report precedes the final indicator.
	Report time.Duration
	// IndicatorTTL is how long the final indicator stays up.
	IndicatorTTL time.Duration
}

// DefaultTiming returns the production delays.
func DefaultTiming() Timing {
	return Timing{
		Settle:       500 * time.Millisecond,
		Fallback:     1000 * time.Millisecond,
		Report:       1000 * time.Millisecond,
		IndicatorTTL: 4 * time.Second,
	}
}

// Options tune a single run.
type Options struct {
	// Suppress enables force-hiding containers when nothing was clicked.
	Suppress bool
}

// Orchestrator runs the ladder. It holds no per-page state; pass the
// page's Ledger to Run.
type Orchestrator struct {
	logger    *slog.Logger
	timing    Timing
	indicator Indicator
	detector  *banner.Detector
	newID     idgen.Generator
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithTiming overrides DefaultTiming.
func WithTiming(t Timing) Option { return func(o *Orchestrator) { o.timing = t } }

// WithIndicator sets the status indicator. Defaults to LogIndicator.
func WithIndicator(i Indicator) Option { return func(o *Orchestrator) { o.indicator = i } }

// WithIDGenerator overrides the run ID generator.
func WithIDGenerator(g idgen.Generator) Option { return func(o *Orchestrator) { o.newID = g } }

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{timing: DefaultTiming(), newID: idgen.Prefixed("dcl_", idgen.Default)}
	for _, fn := range opts {
		fn(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.indicator == nil {
		o.indicator = LogIndicator{Logger: o.logger}
	}
	o.detector = banner.New(o.logger)
	return o
}

// Run performs one decline attempt on tree. Errors from selectors, clicks
// and style writes are logged and skipped; Run only fails when ctx is done.
func (o *Orchestrator) Run(ctx context.Context, tree dom.Tree, ledger *Ledger, opts Options) (Result, error) {
	if ledger == nil {
		ledger = NewLedger()
	}
	res := Result{
		RunID:     o.newID(),
		URL:       tree.URL(),
		Strategy:  StrategyNone,
		StartedAt: time.Now(),
	}
	host := dom.Hostname(tree)
	log := o.logger.With("run_id", res.RunID, "host", host)

	// A page we already declined that shows no banner has nothing left to do.
	if ledger.Len() > 0 && !o.detector.HasVisible(ctx, tree) {
		log.Debug("decline: page already declined")
		res.Duration = time.Since(res.StartedAt)
		return res, nil
	}

	o.show(ctx, log, StatusWorking, msgWorking, 0)

	if p, ok := ProfileFor(host); ok {
		res.Profile = p.Name
		o.clickPass(ctx, log, tree, p.Selectors, ledger, &res)
		if res.Declined() {
			res.Strategy = StrategySiteSpecific
		}
	}

	if !res.Declined() {
		o.clickPass(ctx, log, tree, GenericSelectors, ledger, &res)
		if res.Declined() {
			res.Strategy = StrategyGeneric
		}
	}

	if !res.Declined() {
		if err := sleep(ctx, o.timing.Fallback); err != nil {
			return res, fmt.Errorf("decline: %w", err)
		}
		if o.textScan(ctx, log, tree, ledger, &res) {
			res.Strategy = StrategyTextScan
		}
	}

	if !res.Declined() && opts.Suppress {
		o.suppress(ctx, log, tree, &res)
		if res.Suppressed > 0 {
			res.Strategy = StrategySuppress
		}
	}

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("decline: %w", err)
	}

	log.Info("decline: run complete",
		"strategy", res.Strategy,
		"clicked", res.ElementsClicked,
		"hidden", res.BannersHidden,
		"suppressed", res.Suppressed,
	)

	if err := sleep(ctx, o.timing.Report); err != nil {
		return res, fmt.Errorf("decline: %w", err)
	}
	if res.Declined() {
		o.show(ctx, log, StatusSuccess, fmt.Sprintf("Declined %d cookie banner(s)", res.ElementsClicked), o.timing.IndicatorTTL)
	} else {
		o.show(ctx, log, StatusWarning, msgNone, o.timing.IndicatorTTL)
	}
	res.Duration = time.Since(res.StartedAt)
	return res, nil
}

// clickPass clicks every visible decline control matched by selectors.
func (o *Orchestrator) clickPass(ctx context.Context, log *slog.Logger, tree dom.Tree, selectors []string, ledger *Ledger, res *Result) {
	for _, sel := range selectors {
		if ctx.Err() != nil {
			return
		}
		els, err := tree.Query(ctx, sel)
		if err != nil {
			logQuery(log, sel, err)
			continue
		}
		for _, el := range els {
			if !o.eligible(ctx, el, ledger) {
				continue
			}
			if err := el.Click(ctx); err != nil {
				log.Warn("decline: click failed", "selector", sel, "error", err)
				continue
			}
			ledger.Mark(el.Key())
			res.ElementsClicked++
			log.Debug("decline: clicked", "selector", sel)

			if err := sleep(ctx, o.timing.Settle); err != nil {
				return
			}
			o.hideBanner(ctx, log, el, res)
		}
	}
}

// textScan clicks the first visible decline control in document order.
func (o *Orchestrator) textScan(ctx context.Context, log *slog.Logger, tree dom.Tree, ledger *Ledger, res *Result) bool {
	els, err := tree.Query(ctx, TextScanSelector)
	if err != nil {
		logQuery(log, TextScanSelector, err)
		return false
	}
	for _, el := range els {
		if !o.eligible(ctx, el, ledger) {
			continue
		}
		if err := el.Click(ctx); err != nil {
			log.Warn("decline: text scan click failed", "error", err)
			continue
		}
		ledger.Mark(el.Key())
		res.ElementsClicked++
		if sleep(ctx, o.timing.Settle) == nil {
			o.hideBanner(ctx, log, el, res)
		}
		return true
	}
	return false
}

// suppress force-hides every visible banner container.
func (o *Orchestrator) suppress(ctx context.Context, log *slog.Logger, tree dom.Tree, res *Result) {
	for _, sel := range ContainerSelectors {
		els, err := tree.Query(ctx, sel)
		if err != nil {
			logQuery(log, sel, err)
			continue
		}
		for _, el := range els {
			if !dom.IsVisibleBanner(ctx, el) {
				continue
			}
			if err := forceHide(ctx, el); err != nil {
				log.Warn("decline: suppress failed", "selector", sel, "error", err)
				continue
			}
			res.Suppressed++
		}
	}
}

func (o *Orchestrator) eligible(ctx context.Context, el dom.Element, ledger *Ledger) bool {
	if ledger.Clicked(el.Key()) {
		return false
	}
	return dom.IsVisible(ctx, el) && affordance.ClassifyElement(ctx, el) == affordance.Decline
}

// hideBanner hides the closest ancestor that looks like a consent banner.
func (o *Orchestrator) hideBanner(ctx context.Context, log *slog.Logger, clicked dom.Element, res *Result) {
	b, err := bannerAncestor(ctx, clicked)
	if err != nil {
		log.Debug("decline: ancestor walk stopped", "error", err)
	}
	if b == nil {
		return
	}
	if err := b.SetStyle(ctx, "display", "none", false); err != nil {
		log.Warn("decline: hide banner failed", "error", err)
		return
	}
	res.BannersHidden++
}

func bannerAncestor(ctx context.Context, el dom.Element) (dom.Element, error) {
	p, err := el.Parent(ctx)
	for depth := 0; p != nil && depth < ancestorDepth; depth++ {
		if err != nil {
			return nil, err
		}
		if looksLikeBanner(ctx, p) {
			return p, nil
		}
		p, err = p.Parent(ctx)
	}
	return nil, err
}

func looksLikeBanner(ctx context.Context, el dom.Element) bool {
	for _, s := range []string{
		dom.LowerText(ctx, el),
		strings.ToLower(dom.Attr(ctx, el, "class")),
		strings.ToLower(dom.Attr(ctx, el, "id")),
	} {
		if strings.Contains(s, "cookie") || strings.Contains(s, "consent") {
			return true
		}
	}
	return false
}

func forceHide(ctx context.Context, el dom.Element) error {
	for _, kv := range [][2]string{{"display", "none"}, {"visibility", "hidden"}, {"opacity", "0"}} {
		if err := el.SetStyle(ctx, kv[0], kv[1], true); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) show(ctx context.Context, log *slog.Logger, status Status, msg string, ttl time.Duration) {
	if err := o.indicator.Show(ctx, status, msg, ttl); err != nil {
		log.Warn("decline: indicator failed", "status", status, "error", err)
	}
}

func logQuery(log *slog.Logger, sel string, err error) {
	if errors.Is(err, dom.ErrSelectorUnsupported) {
		log.Warn("decline: selector unsupported", "selector", sel, "error", err)
		return
	}
	log.Warn("decline: selector failed", "selector", sel, "error", err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
