package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab is one inspection page. Close it to let the manager recycle.
type Tab struct {
	Page  *rod.Page
	URL   string
	Level Level

	mgr  *Manager
	once sync.Once
}

// OpenTab creates a tab at level, applies resource blocking and navigates
// to pageURL. A load timeout is logged, not returned: banners are often
// already present.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string, level Level) (*Tab, error) {
	b, err := mgr.acquire()
	if err != nil {
		return nil, err
	}

	var page *rod.Page
	if level >= LevelHeadless {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		mgr.release()
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		applyResourceBlocking(page, mgr.cfg.ResourceBlocking)
	}

	navCtx, cancel := context.WithTimeout(ctx, mgr.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		mgr.release()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &Tab{Page: page, URL: pageURL, Level: level, mgr: mgr}, nil
}

// HTML serialises the current document.
func (t *Tab) HTML(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get html: %w", err)
	}
	return res.Value.Str(), nil
}

// Close closes the page and releases it from the manager. Safe to call twice.
func (t *Tab) Close() error {
	var err error
	t.once.Do(func() {
		if t.Page != nil {
			err = t.Page.Close()
		}
		t.mgr.release()
	})
	return err
}
