// Package timerx wraps a clock.Clock's After into a single-shot timer the
// scheduler can safely stop and restart, using a version counter to
// invalidate callbacks from a timer generation that was since replaced.
//
// Unlike a bare time.AfterFunc, the wait is driven by the injected Clock,
// so a clock.Virtual in tests can arm this timer without a real delay
// elapsing: nothing fires until the test calls Advance or Set past the
// deadline.
package timerx

import (
	"sync"
	"time"

	"alertsched/internal/clock"
)

// Timer arms at most one pending callback at a time. Starting a new
// callback implicitly invalidates any earlier one that hasn't fired yet,
// even if the wait goroutine it belongs to hasn't observed the invalidation
// — a fired stale callback is detected and dropped via a version counter,
// not by racing a stop signal.
type Timer struct {
	mu     sync.Mutex
	clk    clock.Clock
	ver    uint64
	armed  bool
	cancel chan struct{}
}

// New returns an unarmed Timer driven by clk. A nil clk defaults to
// clock.System{}.
func New(clk clock.Clock) *Timer {
	if clk == nil {
		clk = clock.System{}
	}
	return &Timer{clk: clk}
}

// Start arms the timer to invoke callback after delay elapses on the
// Timer's clock. Any previously armed callback is invalidated, whether or
// not it manages to fire in the meantime. delay <= 0 fires as soon as the
// clock's After resolves it, which for clock.System is immediate.
func (t *Timer) Start(delay time.Duration, callback func()) {
	t.mu.Lock()
	if t.cancel != nil {
		close(t.cancel)
	}
	t.ver++
	ver := t.ver
	cancel := make(chan struct{})
	t.cancel = cancel
	t.armed = true
	clk := t.clk
	t.mu.Unlock()

	wait := clk.After(delay)
	go func() {
		select {
		case <-wait:
		case <-cancel:
			return
		}
		t.mu.Lock()
		current := t.ver == ver
		if current {
			t.armed = false
		}
		t.mu.Unlock()
		if current {
			callback()
		}
	}()
}

// Stop disarms the timer. It is safe to call even if the timer already
// fired, is unarmed, or fires concurrently with this call — in every case
// the callback will not observe itself as current after Stop returns.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		close(t.cancel)
		t.cancel = nil
	}
	t.ver++
	t.armed = false
}

// IsActive reports whether a callback is currently armed and hasn't been
// superseded by a later Start or Stop call. It does not guarantee the
// callback hasn't already begun running.
func (t *Timer) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}
