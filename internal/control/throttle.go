package control

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Throttle calls fn at most once per interval. The first call in a quiet
// period runs immediately on the caller's goroutine; calls made inside the
// window overwrite a single pending slot, and the last one runs when the
// window closes, which opens a new window.
type Throttle[T any] struct {
	clock    clock.Clock
	interval time.Duration
	fn       func(T)

	mu      sync.Mutex
	pending T
	hasNext bool
	timer   *clock.Timer
	stopped bool
}

// NewThrottle creates a throttle around fn. A nil clk uses the wall clock.
func NewThrottle[T any](clk clock.Clock, interval time.Duration, fn func(T)) *Throttle[T] {
	if clk == nil {
		clk = clock.New()
	}
	return &Throttle[T]{clock: clk, interval: interval, fn: fn}
}

// Call requests fn(v).
func (t *Throttle[T]) Call(v T) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if t.timer != nil {
		t.pending = v
		t.hasNext = true
		t.mu.Unlock()
		return
	}
	t.timer = t.clock.AfterFunc(t.interval, t.windowClosed)
	t.mu.Unlock()

	t.fn(v)
}

func (t *Throttle[T]) windowClosed() {
	t.mu.Lock()
	if t.stopped || !t.hasNext {
		t.timer = nil
		t.mu.Unlock()
		return
	}
	v := t.pending
	var zero T
	t.pending, t.hasNext = zero, false
	t.timer = t.clock.AfterFunc(t.interval, t.windowClosed)
	t.mu.Unlock()

	t.fn(v)
}

// Pending reports whether a trailing call is waiting for the window to close.
func (t *Throttle[T]) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasNext
}

// Stop drops any pending call and ignores later ones.
func (t *Throttle[T]) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.hasNext = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
