// Package analysis runs one inspection pass over a page and produces a
// PageAnalysis record.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/cookiewall/banner"
	"github.com/hazyhaar/cookiewall/cookies"
	"github.com/hazyhaar/cookiewall/dom"
	"github.com/hazyhaar/cookiewall/idgen"
	"github.com/hazyhaar/cookiewall/privacy"
	"github.com/hazyhaar/cookiewall/tracking"
)

// PolicyLink is a link to the site's privacy policy.
type PolicyLink struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// BannerInfo is the serializable view of a banner candidate.
type BannerInfo struct {
	Selector    string `json:"selector"`
	TextSnippet string `json:"text_snippet"`
	HasDecline  bool   `json:"has_decline"`
	DeclineText string `json:"decline_text,omitempty"`
}

// PageAnalysis is the result of one pass. A newer pass for the same domain
// replaces it.
type PageAnalysis struct {
	ID                 string               `json:"id"`
	URL                string               `json:"url"`
	Domain             string               `json:"domain"`
	Timestamp          time.Time            `json:"timestamp"`
	Cookies            cookies.Summary      `json:"cookies"`
	ClassifiedCookies  []cookies.Classified `json:"classified_cookies"`
	Score              privacy.Level        `json:"score"`
	TrackingScripts    []tracking.Script    `json:"tracking_scripts"`
	Banners            []BannerInfo         `json:"banners"`
	ThirdPartyDomains  tracking.DomainSet   `json:"third_party_domains"`
	PrivacyPolicyLinks []PolicyLink         `json:"privacy_policy_links"`
}

// TrackingCookies counts analytics and advertising cookies.
func (p *PageAnalysis) TrackingCookies() int { return p.Cookies.Tracking() }

const policySelector = `a[href*="privacy"], a[href*="policy"]`

// Analyzer runs analysis passes.
type Analyzer struct {
	logger   *slog.Logger
	detector *banner.Detector
	newID    idgen.Generator
	now      func() time.Time
}

// New creates an Analyzer. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		logger:   logger,
		detector: banner.New(logger),
		newID:    idgen.Prefixed("ana_", idgen.Default),
		now:      time.Now,
	}
}

// Analyze inspects tree and the cookies currently set for it. Partial
// failures leave the affected field empty; only a done ctx fails the pass.
func (a *Analyzer) Analyze(ctx context.Context, tree dom.Tree, jar []cookies.Record) (*PageAnalysis, error) {
	host := dom.Hostname(tree)
	classified := cookies.ClassifyAll(jar)
	summary := cookies.Summarize(classified)

	pa := &PageAnalysis{
		ID:                 a.newID(),
		URL:                tree.URL(),
		Domain:             host,
		Timestamp:          a.now().UTC(),
		Cookies:            summary,
		ClassifiedCookies:  classified,
		Score:              privacy.Score(summary.Tracking(), summary.Total),
		ThirdPartyDomains:  make(tracking.DomainSet),
		TrackingScripts:    []tracking.Script{},
		Banners:            []BannerInfo{},
		PrivacyPolicyLinks: []PolicyLink{},
	}

	if scripts, err := tracking.FindTrackingScripts(ctx, tree); err != nil {
		a.logger.Warn("analysis: tracking scripts", "url", pa.URL, "error", err)
	} else if scripts != nil {
		pa.TrackingScripts = scripts
	}

	if set, err := tracking.CollectThirdPartyDomains(ctx, tree, host); err != nil {
		a.logger.Warn("analysis: third-party domains", "url", pa.URL, "error", err)
	} else {
		pa.ThirdPartyDomains = set
	}

	for _, c := range a.detector.Find(ctx, tree) {
		info := BannerInfo{Selector: c.Selector, TextSnippet: c.TextSnippet, HasDecline: c.Decline != nil}
		if c.Decline != nil {
			info.DeclineText = a.detector.Snippet(ctx, c.Decline)
		}
		pa.Banners = append(pa.Banners, info)
	}

	links, err := a.policyLinks(ctx, tree)
	if err != nil {
		a.logger.Warn("analysis: policy links", "url", pa.URL, "error", err)
	}
	pa.PrivacyPolicyLinks = append(pa.PrivacyPolicyLinks, links...)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}
	a.logger.Debug("analysis: pass complete",
		"domain", host,
		"cookies", summary.Total,
		"score", pa.Score,
		"banners", len(pa.Banners),
		"third_party", len(pa.ThirdPartyDomains),
	)
	return pa, nil
}

func (a *Analyzer) policyLinks(ctx context.Context, tree dom.Tree) ([]PolicyLink, error) {
	els, err := tree.Query(ctx, policySelector)
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(tree.URL())
	var out []PolicyLink
	for _, el := range els {
		text, err := el.Text(ctx)
		if err != nil || !strings.Contains(strings.ToLower(text), "privacy") {
			continue
		}
		href := dom.Attr(ctx, el, "href")
		if u, err := url.Parse(href); err == nil && base != nil {
			href = base.ResolveReference(u).String()
		}
		out = append(out, PolicyLink{Text: strings.TrimSpace(text), Href: href})
	}
	return out, nil
}
