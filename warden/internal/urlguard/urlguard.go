// Package urlguard normalises inspection targets and refuses the ones that
// point into the local network.
package urlguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

var (
	// ErrInvalid is returned for anything but an absolute http(s) URL with a host.
	ErrInvalid = errors.New("urlguard: invalid url")
	// ErrPrivate is returned when a target is loopback, private or link-local.
	ErrPrivate = errors.New("urlguard: target is a private or loopback address")
)

// Normalize trims raw, defaults a missing scheme to https and checks the
// scheme and host.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalid, raw)
	}
	return u.String(), nil
}

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Guard checks targets before they are fetched.
type Guard struct {
	// AllowPrivate disables the address check.
	AllowPrivate bool
	// Resolver defaults to net.DefaultResolver.
	Resolver Resolver
}

// Check refuses u when its host is, or resolves to, a private address. A
// failed lookup passes: the fetch fails on its own.
func (g Guard) Check(ctx context.Context, u *url.URL) error {
	if g.AllowPrivate {
		return nil
	}
	host := u.Hostname()
	if addr, err := netip.ParseAddr(host); err == nil {
		if IsPrivate(addr) {
			return fmt.Errorf("%w: %s", ErrPrivate, host)
		}
		return nil
	}

	r := g.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if addr, err := netip.ParseAddr(a); err == nil && IsPrivate(addr) {
			return fmt.Errorf("%w: %s resolves to %s", ErrPrivate, host, a)
		}
	}
	return nil
}

// CheckString parses raw and calls Check.
func (g Guard) CheckString(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return g.Check(ctx, u)
}

// IsPrivate reports loopback, RFC 1918, RFC 4193, link-local and
// unspecified addresses.
func IsPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}
