package cookiestore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/hazyhaar/cookiewall/cookies"
)

// MemoryJar is an in-process Jar.
type MemoryJar struct {
	mu   sync.Mutex
	recs []cookies.Record
	// RejectSchemes makes Remove fail for URLs with these schemes.
	RejectSchemes []string
}

// NewMemoryJar returns a jar holding recs.
func NewMemoryJar(recs ...cookies.Record) *MemoryJar {
	return &MemoryJar{recs: append([]cookies.Record(nil), recs...)}
}

// Set adds or replaces a cookie by (domain, name).
func (m *MemoryJar) Set(r cookies.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cur := range m.recs {
		if cur.Domain == r.Domain && cur.Name == r.Name {
			m.recs[i] = r
			return
		}
	}
	m.recs = append(m.recs, r)
}

// Cookies implements Jar.
func (m *MemoryJar) Cookies(_ context.Context, domain string) ([]cookies.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []cookies.Record
	for _, r := range m.recs {
		if domainMatch(domain, r.Domain) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Remove implements Jar.
func (m *MemoryJar) Remove(_ context.Context, rawURL, name string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("cookiestore: parse %q: %w", rawURL, err)
	}
	for _, s := range m.RejectSchemes {
		if u.Scheme == s {
			return fmt.Errorf("cookiestore: scheme %s rejected", s)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.recs[:0]
	removed := false
	for _, r := range m.recs {
		if r.Name == name && domainMatch(u.Hostname(), r.Domain) {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	m.recs = kept
	if !removed {
		return fmt.Errorf("cookiestore: %s not found for %s", name, u.Hostname())
	}
	return nil
}

// domainMatch reports whether a cookie scoped to cookieDomain is sent to host.
func domainMatch(host, cookieDomain string) bool {
	host = strings.ToLower(host)
	cd := strings.ToLower(strings.TrimPrefix(cookieDomain, "."))
	return host == cd || strings.HasSuffix(host, "."+cd)
}
