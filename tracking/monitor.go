package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/cookiewall/cookies"
)

// ErrAlreadyInstalled is returned by Monitor.Install on a second call.
var ErrAlreadyInstalled = errors.New("tracking: interceptor already installed")

// Interceptor observes every write to a page's cookie store and calls
// emit with the raw write ("name=value; path=/; ...") until ctx is done.
type Interceptor interface {
	Intercept(ctx context.Context, emit func(write string)) error
}

// Event reports a tracking cookie written by the page.
type Event struct {
	// Cookie is the name=value pair of the write.
	Cookie string    `json:"cookie"`
	Name   string    `json:"name"`
	Domain string    `json:"domain"`
	At     time.Time `json:"at"`
}

// Emitter receives tracking events on the privileged side.
type Emitter interface {
	TrackingDetected(ctx context.Context, ev Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, ev Event)

// TrackingDetected implements Emitter.
func (f EmitterFunc) TrackingDetected(ctx context.Context, ev Event) { f(ctx, ev) }

const monitorBuffer = 64

// Monitor filters cookie writes for one page and forwards tracking ones
// to an Emitter from its own goroutine.
type Monitor struct {
	domain    atomic.Value // string
	emitter   Emitter
	logger    *slog.Logger
	events    chan Event
	installed atomic.Bool
}

// NewMonitor creates a Monitor for writes made by a page on domain.
func NewMonitor(domain string, emitter Emitter, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		emitter: emitter,
		logger:  logger,
		events:  make(chan Event, monitorBuffer),
	}
	m.domain.Store(domain)
	return m
}

// SetDomain changes the domain stamped on later events. The interceptor
// outlives navigations; the page domain does not.
func (m *Monitor) SetDomain(domain string) { m.domain.Store(domain) }

// Domain returns the domain events are currently stamped with.
func (m *Monitor) Domain() string { return m.domain.Load().(string) }

// Install hooks ic and starts forwarding. It may be called once.
func (m *Monitor) Install(ctx context.Context, ic Interceptor) error {
	if !m.installed.CompareAndSwap(false, true) {
		return ErrAlreadyInstalled
	}
	if err := ic.Intercept(ctx, m.Observe); err != nil {
		return fmt.Errorf("tracking: install interceptor: %w", err)
	}
	go m.forward(ctx)
	return nil
}

// Observe handles one raw cookie write. It never blocks; events are
// dropped when the forwarding queue is full.
func (m *Monitor) Observe(write string) {
	name := cookies.NameOf(write)
	if name == "" || !cookies.IsTrackingCookie(name) {
		return
	}
	pair, _, _ := strings.Cut(write, ";")
	domain := m.Domain()
	ev := Event{Cookie: strings.TrimSpace(pair), Name: name, Domain: domain, At: time.Now()}
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("tracking: event queue full, dropping", "cookie", name, "domain", domain)
	}
}

func (m *Monitor) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.events:
			m.emitter.TrackingDetected(ctx, ev)
		}
	}
}
