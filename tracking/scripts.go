package tracking

import (
	"context"
	"net/url"
	"strings"

	"github.com/hazyhaar/cookiewall/dom"
)

// Trackers are URL fragments of well-known tracking scripts.
var Trackers = []string{
	"google-analytics.com",
	"googletagmanager.com",
	"facebook.net",
	"doubleclick.net",
	"googlesyndication.com",
	"amazon-adsystem.com",
	"adsystem.amazon.com",
	"twitter.com/i/adsct",
	"linkedin.com/li.lms-analytics",
	"hotjar.com",
	"fullstory.com",
	"mixpanel.com",
}

// Script is a tracker script reference found on the page.
type Script struct {
	Src string `json:"src"`
	// Type is the tracker fragment that matched.
	Type    string `json:"type"`
	Blocked bool   `json:"blocked"`
}

// FindTrackingScripts lists script[src] elements that load a known tracker.
func FindTrackingScripts(ctx context.Context, tree dom.Tree) ([]Script, error) {
	els, err := tree.Query(ctx, `script[src]`)
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(tree.URL())
	var out []Script
	for _, el := range els {
		src := dom.Attr(ctx, el, "src")
		if base != nil {
			if u, err := url.Parse(src); err == nil {
				src = base.ResolveReference(u).String()
			}
		}
		for _, t := range Trackers {
			if strings.Contains(src, t) {
				_, blocked, _ := el.Attr(ctx, "data-blocked")
				out = append(out, Script{Src: src, Type: t, Blocked: blocked})
				break
			}
		}
	}
	return out, nil
}
