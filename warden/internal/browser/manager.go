// Package browser manages the Chrome instance inspections run in: launch
// or connect, memory and age based recycling, and per-inspection tabs.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// ErrClosed is returned once the manager has been closed.
var ErrClosed = errors.New("browser: manager is closed")

// Level is the automation mode of a tab.
type Level int

const (
	LevelHTTP     Level = 0 // no browser
	LevelHeadless Level = 1 // rod headless + stealth
	LevelHeadful  Level = 2 // rod headful under Xvfb
)

// ParseLevel maps a config value onto a Level. Unknown values are headless.
func ParseLevel(s string) Level {
	switch s {
	case "http", "0":
		return LevelHTTP
	case "headful", "2":
		return LevelHeadful
	default:
		return LevelHeadless
	}
}

func (l Level) String() string {
	switch l {
	case LevelHTTP:
		return "http"
	case LevelHeadful:
		return "headful"
	default:
		return "headless"
	}
}

// Config configures the manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome. Empty launches
	// a local one.
	RemoteURL string
	// MemoryLimit in bytes of JS heap before recycling. Default: 1GB.
	MemoryLimit int64
	// RecycleInterval is the maximum lifetime of a Chrome process. Default: 4h.
	RecycleInterval time.Duration
	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string
	// Level is the default tab level. Default: LevelHeadless.
	Level Level
	// NavTimeout bounds navigation and load. Default: 30s.
	NavTimeout time.Duration
	// XvfbDisplay for headful mode. Default: ":99".
	XvfbDisplay string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Level == LevelHTTP {
		c.Level = LevelHeadless
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome process. Recycling is deferred while tabs are open.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	startAt time.Time
	open    int
	closed  bool
}

// NewManager creates a Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Level returns the default tab level.
func (m *Manager) Level() Level { return m.cfg.Level }

// Start launches or connects to Chrome and starts the recycle monitor.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	b, err := m.launch()
	if err != nil {
		return err
	}
	m.browser = b
	m.startAt = time.Now()

	go m.monitorLoop(ctx)
	return nil
}

// Browser returns the current browser handle, nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Recycle restarts Chrome. It fails if tabs are open.
func (m *Manager) Recycle() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.open > 0 {
		return fmt.Errorf("browser: recycle deferred, %d tab(s) open", m.open)
	}
	return m.recycleLocked()
}

// Close shuts down Chrome and Xvfb.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.cleanup()
}

func (m *Manager) acquire() (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.browser == nil {
		return nil, errors.New("browser: no active browser")
	}
	m.open++
	return m.browser, nil
}

func (m *Manager) release() {
	m.mu.Lock()
	if m.open > 0 {
		m.open--
	}
	m.mu.Unlock()
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	if m.cfg.Level == LevelHeadful {
		if err := m.startXvfb(); err != nil {
			return nil, fmt.Errorf("browser: xvfb: %w", err)
		}
	}

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New()
		if m.cfg.Level == LevelHeadful {
			l = l.Headless(false).Env("DISPLAY", m.cfg.XvfbDisplay)
		} else {
			l = l.Headless(true)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "level", m.cfg.Level)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) recycleLocked() error {
	log := m.cfg.Logger
	log.Info("browser: recycling", "uptime", time.Since(m.startAt))

	if err := m.cleanup(); err != nil {
		log.Warn("browser: cleanup during recycle", "error", err)
	}
	b, err := m.launch()
	if err != nil {
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()
	log.Info("browser: recycled")
	return nil
}

func (m *Manager) cleanup() error {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
	return nil
}

// needsRecycle reports whether the browser is past its lifetime or heap budget.
func (m *Manager) needsRecycle() (bool, string) {
	m.mu.RLock()
	b, startAt := m.browser, m.startAt
	m.mu.RUnlock()
	if b == nil {
		return false, ""
	}
	if time.Since(startAt) > m.cfg.RecycleInterval {
		return true, "interval"
	}
	used, err := jsHeapUsage(b)
	if err != nil {
		m.cfg.Logger.Debug("browser: heap check failed", "error", err)
		return false, ""
	}
	if used > m.cfg.MemoryLimit {
		return true, "memory"
	}
	return false, ""
}

func (m *Manager) monitorLoop(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			closed := m.closed
			m.mu.RUnlock()
			if closed {
				return
			}
			ok, reason := m.needsRecycle()
			if !ok {
				continue
			}
			if err := m.Recycle(); err != nil {
				log.Info("browser: recycle postponed", "reason", reason, "error", err)
			}
		}
	}
}

func jsHeapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil || len(pages) == 0 {
		return 0, errors.New("no pages for heap check")
	}
	res, err := pages[0].Eval(`() => performance.memory ? performance.memory.usedJSHeapSize : 0`)
	if err != nil {
		return 0, err
	}
	return int64(res.Value.Int()), nil
}
