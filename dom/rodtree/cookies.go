package rodtree

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/cookiewall/cookies"
)

//go:embed cookie_hook.js
var cookieHookJS string

const cookieBinding = "__cw_cookie"

// CookieInterceptor reports every document.cookie write made by page
// scripts. It implements tracking.Interceptor.
type CookieInterceptor struct {
	Page   *rod.Page
	Logger *slog.Logger
}

// Intercept hooks the cookie setter in the current and every future
// document of the page and calls emit with each raw write until ctx is done.
func (c *CookieInterceptor) Intercept(ctx context.Context, emit func(write string)) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := (proto.RuntimeAddBinding{Name: cookieBinding}).Call(c.Page); err != nil {
		logger.Warn("rodtree: addBinding failed (may already exist)", "error", err)
	}
	go c.Page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name == cookieBinding {
			emit(e.Payload)
		}
	})()

	if _, err := c.Page.EvalOnNewDocument(cookieHookJS); err != nil {
		return fmt.Errorf("rodtree: register cookie hook: %w", err)
	}
	if _, err := c.Page.Context(ctx).Eval("() => " + cookieHookJS); err != nil {
		return fmt.Errorf("rodtree: inject cookie hook: %w", err)
	}
	return nil
}

// CookieJar reads and deletes browser cookies over CDP. It implements
// cookiestore.Jar.
type CookieJar struct {
	Page *rod.Page
}

// Cookies lists the cookies sent to domain over either scheme.
func (j CookieJar) Cookies(ctx context.Context, domain string) ([]cookies.Record, error) {
	list, err := j.Page.Context(ctx).Cookies([]string{"https://" + domain + "/", "http://" + domain + "/"})
	if err != nil {
		return nil, fmt.Errorf("rodtree: cookies %s: %w", domain, err)
	}
	out := make([]cookies.Record, 0, len(list))
	for _, c := range list {
		out = append(out, toRecord(c))
	}
	return out, nil
}

// Remove deletes the cookie name as seen from rawURL.
func (j CookieJar) Remove(ctx context.Context, rawURL, name string) error {
	err := proto.NetworkDeleteCookies{Name: name, URL: rawURL}.Call(j.Page.Context(ctx))
	if err != nil {
		return fmt.Errorf("rodtree: delete cookie %s at %s: %w", name, rawURL, err)
	}
	return nil
}

func toRecord(c *proto.NetworkCookie) cookies.Record {
	return cookies.Record{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
		SameSite: string(c.SameSite),
	}
}
