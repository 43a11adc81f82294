package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Badger shows a per-page badge and toast notifications. Calls are
// fire-and-forget: implementations log their own failures.
type Badger interface {
	Badge(ctx context.Context, pageURL, text, color string)
	Toast(ctx context.Context, title, message string)
}

// LogBadger writes badges and toasts to a logger.
type LogBadger struct {
	Logger *slog.Logger
}

func (b LogBadger) log() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

func (b LogBadger) Badge(_ context.Context, pageURL, text, color string) {
	b.log().Info("notify: badge", "url", pageURL, "text", text, "color", color)
}

func (b LogBadger) Toast(_ context.Context, title, message string) {
	b.log().Info("notify: toast", "title", title, "message", message)
}

// BadgeState is the last badge shown for a page.
type BadgeState struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// MemoryBadger keeps the latest badge per page and every toast. The HTTP
// API reads it back.
type MemoryBadger struct {
	mu     sync.Mutex
	badges map[string]BadgeState
	toasts []string
}

// NewMemoryBadger returns an empty MemoryBadger.
func NewMemoryBadger() *MemoryBadger {
	return &MemoryBadger{badges: make(map[string]BadgeState)}
}

func (m *MemoryBadger) Badge(_ context.Context, pageURL, text, color string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.badges[pageURL] = BadgeState{Text: text, Color: color}
}

func (m *MemoryBadger) Toast(_ context.Context, title, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toasts = append(m.toasts, title+": "+message)
}

// BadgeFor returns the badge of pageURL.
func (m *MemoryBadger) BadgeFor(pageURL string) (BadgeState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.badges[pageURL]
	return b, ok
}

// Toasts returns all toasts shown so far.
func (m *MemoryBadger) Toasts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.toasts...)
}

// Multi fans a badge or toast out to several Badgers.
type Multi []Badger

func (m Multi) Badge(ctx context.Context, pageURL, text, color string) {
	for _, b := range m {
		b.Badge(ctx, pageURL, text, color)
	}
}

func (m Multi) Toast(ctx context.Context, title, message string) {
	for _, b := range m {
		b.Toast(ctx, title, message)
	}
}
