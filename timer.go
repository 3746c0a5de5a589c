package praktor

import (
	"sync"
	"time"

	"github.com/edgeofmagic/praktor/internal/reactorcore"
)

// TimerHandler is invoked exactly once per expiry, on the loop thread.
type TimerHandler func(t *Timer)

// Timer is a one-shot, cancellable, millisecond-resolution timer handle
// (§4.2).
type Timer struct {
	*handle

	mu      sync.Mutex
	pending bool
	gen     uint64 // bumped on every Stop/Close/re-Start to invalidate in-flight goroutines
	timer   *time.Timer
	onFire  TimerHandler
}

func newTimer(l *Loop) *Timer {
	t := &Timer{handle: newHandle(l, "timer")}
	return t
}

// IsPending reports whether the timer is armed and has not yet fired or
// been stopped.
func (t *Timer) IsPending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Start arms the timer to fire after timeout. If handler is non-nil it
// replaces any previously bound handler. A Start before a prior expiry
// re-arms with the new timeout; the original does not fire.
func (t *Timer) Start(timeout time.Duration, handler TimerHandler) error {
	if t.isClosing() {
		return loopClosedErr("start")
	}
	t.mu.Lock()
	if handler != nil {
		t.onFire = handler
	}
	if t.onFire == nil {
		t.mu.Unlock()
		return invalidArgErr("start", "no handler bound")
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.pending = true
	id := t.id
	loop := t.loop
	t.timer = time.AfterFunc(timeout, func() {
		loop.post(reactorcore.Completion{Kind: reactorcore.KindTimerExpiry, HandleID: id, Data: gen})
	})
	t.mu.Unlock()

	t.setActive()
	t.loop.addHandle(t)
	return nil
}

// Stop idempotently disarms a pending timer without invoking its handler.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.pending {
		return
	}
	t.pending = false
	t.gen++ // invalidate any in-flight expiry completion
	if t.timer != nil {
		t.timer.Stop()
	}
}

// Close cancels a pending timer without invoking its expiry handler and
// transitions it to closed, invoking the close handler if one was set.
func (t *Timer) Close(onClose func(error)) bool {
	if !t.beginClose(onClose) {
		return false
	}
	t.Stop()
	t.finishClose(nil)
	return true
}

// OnClose registers a close handler without initiating close.
func (t *Timer) OnClose(fn func(error)) { t.onCloseHandler(fn) }

func (t *Timer) deliver(c reactorcore.Completion) {
	if c.Kind != reactorcore.KindTimerExpiry {
		return
	}
	t.mu.Lock()
	gen := c.Data.(uint64)
	if gen != t.gen || !t.pending {
		t.mu.Unlock()
		return // stale completion from a Stop/re-Start race
	}
	t.pending = false
	handler := t.onFire
	t.mu.Unlock()

	t.loop.metrics.recordTimerFire()
	if handler != nil {
		handler(t)
	}
}

func (t *Timer) forceClose() {
	t.Close(nil)
}
