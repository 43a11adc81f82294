// Package fetcher implements the HTTP-only inspection path: one GET, the
// cookies the server set along the way, and the raw HTML.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hazyhaar/cookiewall/cookies"
)

const maxRedirects = 10

// Result is the outcome of an HTTP fetch.
type Result struct {
	// URL is the final URL after redirects.
	URL        string
	StatusCode int
	HTML       []byte
	// Cookies are every Set-Cookie seen, redirects included.
	Cookies []cookies.Record
	// Sufficient is false when the markup looks like a script-rendered shell.
	Sufficient bool
}

// Fetcher performs HTTP GETs.
type Fetcher struct {
	client *http.Client
	ua     string
	logger *slog.Logger
	check  func(context.Context, *url.URL) error
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets a custom HTTP client. Its CheckRedirect is replaced per call.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.ua = ua }
}

// WithRedirectCheck vets every redirect target before it is followed.
func WithRedirectCheck(fn func(context.Context, *url.URL) error) Option {
	return func(f *Fetcher) { f.check = fn }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		ua:     "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch GETs pageURL.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	var set []cookies.Record
	client := *f.client
	client.CheckRedirect = func(next *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return errors.New("fetcher: too many redirects")
		}
		if f.check != nil {
			if err := f.check(next.Context(), next.URL); err != nil {
				return fmt.Errorf("fetcher: redirect to %s: %w", next.URL.Host, err)
			}
		}
		if r := next.Response; r != nil {
			set = append(set, toRecords(r.Cookies(), r.Request.URL.Hostname())...)
		}
		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: do: %w", err)
	}
	defer resp.Body.Close()

	// Cap read to 10MB.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("fetcher: read body: %w", err)
	}

	final := resp.Request.URL
	set = append(set, toRecords(resp.Cookies(), final.Hostname())...)

	res := &Result{
		URL:        final.String(),
		StatusCode: resp.StatusCode,
		HTML:       body,
		Cookies:    set,
		Sufficient: IsSufficient(body),
	}
	f.logger.Debug("fetcher: fetched",
		"url", res.URL, "status", resp.StatusCode,
		"size", len(body), "cookies", len(set), "sufficient", res.Sufficient)
	return res, nil
}

func toRecords(cs []*http.Cookie, host string) []cookies.Record {
	out := make([]cookies.Record, 0, len(cs))
	for _, c := range cs {
		domain := c.Domain
		if domain == "" {
			domain = host
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		out = append(out, cookies.Record{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   domain,
			Path:     path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
			SameSite: sameSite(c.SameSite),
		})
	}
	return out
}

func sameSite(s http.SameSite) string {
	switch s {
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	}
	return ""
}
