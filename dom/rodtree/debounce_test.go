package rodtree

import (
	"testing"
	"time"
)

func TestDebouncer_CoalescesBurst(t *testing.T) {
	var flushed []int
	d := newDebouncer(debounceConfig{Window: 10 * time.Millisecond}, func(n int) { flushed = append(flushed, n) })

	d.add(1)
	d.add(2)
	d.add(0)
	if len(flushed) != 0 {
		t.Fatalf("flushed early: %v", flushed)
	}

	select {
	case <-d.timerC():
		d.flush()
	case <-time.After(time.Second):
		t.Fatal("window never expired")
	}
	if len(flushed) != 1 || flushed[0] != 3 {
		t.Errorf("flushed: got %v, want [3]", flushed)
	}
	if d.timerC() != nil {
		t.Error("timer should be cleared after flush")
	}
}

func TestDebouncer_ThresholdFlushesImmediately(t *testing.T) {
	var flushed []int
	d := newDebouncer(debounceConfig{Window: time.Hour, MaxAdded: 5}, func(n int) { flushed = append(flushed, n) })

	if d.add(3) {
		t.Fatal("add(3) should not flush")
	}
	if !d.add(4) {
		t.Fatal("add(4) should flush")
	}
	if len(flushed) != 1 || flushed[0] != 7 {
		t.Errorf("flushed: got %v, want [7]", flushed)
	}
}

func TestDebouncer_EmptyFlush(t *testing.T) {
	called := false
	d := newDebouncer(debounceConfig{}, func(int) { called = true })
	d.flush()
	if called {
		t.Error("empty flush must not notify")
	}
	if d.cfg.Window != 250*time.Millisecond || d.cfg.MaxAdded != 500 {
		t.Errorf("defaults: got %+v", d.cfg)
	}
}
