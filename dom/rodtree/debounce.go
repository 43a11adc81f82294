package rodtree

import "time"

type debounceConfig struct {
	// Window is the quiet period before a flush. Default: 250ms.
	Window time.Duration
	// MaxAdded flushes immediately once this many insertions accumulate. Default: 500.
	MaxAdded int
}

func (dc *debounceConfig) defaults() {
	if dc.Window <= 0 {
		dc.Window = 250 * time.Millisecond
	}
	if dc.MaxAdded <= 0 {
		dc.MaxAdded = 500
	}
}

// debouncer coalesces insertion counts reported by the page into one
// notification per burst. It is driven from a single loop goroutine.
type debouncer struct {
	cfg     debounceConfig
	added   int
	timer   *time.Timer
	timerCh <-chan time.Time
	flushFn func(added int)
}

func newDebouncer(cfg debounceConfig, flushFn func(int)) *debouncer {
	cfg.defaults()
	return &debouncer{cfg: cfg, flushFn: flushFn}
}

// add records n insertions. It returns true if the threshold forced a flush.
func (d *debouncer) add(n int) bool {
	if n <= 0 {
		return false
	}
	d.added += n
	if d.added >= d.cfg.MaxAdded {
		d.flush()
		return true
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.cfg.Window)
	d.timerCh = d.timer.C
	return false
}

func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

func (d *debouncer) flush() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
	if d.added == 0 {
		return
	}
	n := d.added
	d.added = 0
	d.flushFn(n)
}
