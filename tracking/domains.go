// Package tracking derives third-party and tracker signals from a page:
// foreign script/iframe hosts, known tracker scripts, and live cookie
// writes that match the tracking cookie list.
package tracking

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"github.com/hazyhaar/cookiewall/dom"
)

// DomainSet is a set of hostnames. It marshals as a sorted JSON array.
type DomainSet map[string]struct{}

// Add inserts host.
func (s DomainSet) Add(host string) { s[host] = struct{}{} }

// Has reports membership.
func (s DomainSet) Has(host string) bool {
	_, ok := s[host]
	return ok
}

// Sorted returns the members in lexical order.
func (s DomainSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON implements json.Marshaler.
func (s DomainSet) MarshalJSON() ([]byte, error) { return json.Marshal(s.Sorted()) }

// UnmarshalJSON implements json.Unmarshaler.
func (s *DomainSet) UnmarshalJSON(b []byte) error {
	var hosts []string
	if err := json.Unmarshal(b, &hosts); err != nil {
		return err
	}
	*s = make(DomainSet, len(hosts))
	for _, h := range hosts {
		s.Add(h)
	}
	return nil
}

const sourceSelector = `script[src], iframe[src]`

// CollectThirdPartyDomains returns the hosts of script and iframe sources
// that differ from pageHost. Sources are resolved against the tree URL;
// sources that do not parse, or resolve to no host, are skipped.
func CollectThirdPartyDomains(ctx context.Context, tree dom.Tree, pageHost string) (DomainSet, error) {
	set := make(DomainSet)
	els, err := tree.Query(ctx, sourceSelector)
	if err != nil {
		return set, err
	}
	base, _ := url.Parse(tree.URL())
	pageHost = strings.ToLower(pageHost)
	for _, el := range els {
		src := strings.TrimSpace(dom.Attr(ctx, el, "src"))
		if src == "" {
			continue
		}
		u, err := url.Parse(src)
		if err != nil {
			continue
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		host := strings.ToLower(u.Hostname())
		if host == "" || host == pageHost {
			continue
		}
		set.Add(host)
	}
	return set, nil
}
