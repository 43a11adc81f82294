// Package cookiestore removes tracking cookies through a privileged jar.
// Page-level code cannot delete HttpOnly or foreign cookies; a Jar can.
package cookiestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/cookiewall/cookies"
)

// ErrRemovalFailed is returned when both the https and http removals fail.
var ErrRemovalFailed = errors.New("cookiestore: removal failed")

// Jar is the privileged cookie store.
type Jar interface {
	// Cookies lists cookies visible to domain.
	Cookies(ctx context.Context, domain string) ([]cookies.Record, error)
	// Remove deletes the cookie name as seen from rawURL.
	Remove(ctx context.Context, rawURL, name string) error
}

// Blocker deletes tracking cookies.
type Blocker struct {
	jar    Jar
	logger *slog.Logger
}

// NewBlocker creates a Blocker. A nil logger falls back to slog.Default().
func NewBlocker(jar Jar, logger *slog.Logger) *Blocker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Blocker{jar: jar, logger: logger}
}

// Remove deletes name for domain over https, retrying once over http.
func (b *Blocker) Remove(ctx context.Context, domain, path, name string) error {
	host := strings.TrimPrefix(domain, ".")
	if path == "" {
		path = "/"
	}
	httpsErr := b.jar.Remove(ctx, "https://"+host+path, name)
	if httpsErr == nil {
		return nil
	}
	httpErr := b.jar.Remove(ctx, "http://"+host+path, name)
	if httpErr == nil {
		return nil
	}
	b.logger.Error("cookiestore: removal failed",
		"domain", domain, "cookie", name, "https_error", httpsErr, "http_error", httpErr)
	return fmt.Errorf("%w: %s on %s: %w", ErrRemovalFailed, name, domain, httpErr)
}

// BlockDomain removes every tracking cookie visible to domain and returns
// how many were removed. A failed removal never stops the batch.
func (b *Blocker) BlockDomain(ctx context.Context, domain string) (int, error) {
	recs, err := b.jar.Cookies(ctx, domain)
	if err != nil {
		return 0, fmt.Errorf("cookiestore: list %s: %w", domain, err)
	}
	removed := 0
	for _, r := range recs {
		if !cookies.IsTrackingCookie(r.Name) {
			continue
		}
		if err := b.Remove(ctx, r.Domain, r.Path, r.Name); err != nil {
			continue
		}
		removed++
	}
	if removed > 0 {
		b.logger.Info("cookiestore: blocked tracking cookies", "domain", domain, "removed", removed)
	}
	return removed, ctx.Err()
}
