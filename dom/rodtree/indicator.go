package rodtree

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/cookiewall/decline"
)

//go:embed indicator.js
var indicatorJS string

// IndicatorID is the id of the on-page status box. It must not match any
// banner selector.
const IndicatorID = "cw-status"

// Indicator renders decline status in a fixed box on the page. It
// implements decline.Indicator.
type Indicator struct {
	Page *rod.Page
}

// Show implements decline.Indicator.
func (i Indicator) Show(ctx context.Context, status decline.Status, message string, ttl time.Duration) error {
	_, err := i.Page.Context(ctx).Eval(indicatorJS, IndicatorID, status.Color(), message, ttl.Milliseconds())
	if err != nil {
		return fmt.Errorf("rodtree: show indicator: %w", err)
	}
	return nil
}
