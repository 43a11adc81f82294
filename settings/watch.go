package settings

import (
	"context"
	"log/slog"
	"time"
)

// WatchOptions tunes SQLiteSource.Watch.
type WatchOptions struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before fn runs. 0 fires
	// on the next poll.
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watch polls the settings table and calls fn with the new settings each
// time a save lands. It blocks until ctx is done. A failed load does not
// advance the version, so the reload is retried on the next poll.
func (s *SQLiteSource) Watch(ctx context.Context, opts WatchOptions, fn func(Settings)) {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	current, err := s.version(ctx)
	if err != nil {
		log.Warn("settings: initial version check failed", "error", err)
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceCh <-chan time.Time
	pending := int64(-1)

	reload := func(v int64) {
		loaded, err := s.Load(ctx)
		if err != nil {
			log.Error("settings: reload failed", "error", err, "version", v)
			return
		}
		current = v
		log.Info("settings: reloaded", "version", v)
		fn(loaded)
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case <-ticker.C:
			v, err := s.version(ctx)
			if err != nil {
				log.Warn("settings: version check failed", "error", err)
				continue
			}
			if v == current || v == pending {
				continue
			}
			pending = v
			if opts.Debounce <= 0 {
				reload(pending)
				pending = -1
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(opts.Debounce)
			debounceCh = debounce.C

		case <-debounceCh:
			debounceCh = nil
			if pending >= 0 {
				reload(pending)
				pending = -1
			}
		}
	}
}
