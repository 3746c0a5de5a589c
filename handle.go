package praktor

import (
	"sync"

	"github.com/edgeofmagic/praktor/internal/logging"
	"github.com/edgeofmagic/praktor/internal/reactorcore"
)

// HandleState is a handle's position in the create → active → closing →
// closed lifecycle of §3.
type HandleState int32

const (
	StateInitialized HandleState = iota
	StateActive
	StateClosing
	StateClosed
)

func (s HandleState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// registrant is the interface the Loop uses to route completions to a
// handle and to force it closed during Loop.Close()'s busy-walk, without
// depending on the concrete Timer/Channel/Acceptor/Transceiver types. This
// plays the role of the teacher's per-tag state table — the Loop's handle
// map is the "runtime-owned table keyed by the OS handle" called for in
// spec.md §9.
type registrant interface {
	handleID() uint64
	deliver(c reactorcore.Completion)
	forceClose()
	isClosing() bool
}

// handle is the common state embedded in Timer, Channel, Acceptor, and
// Transceiver: it implements invariants H1-H3 of §3 once instead of once
// per handle type, generalized from the per-tag state machine in the
// teacher's internal/queue/runner.go (TagState, tagMutexes).
type handle struct {
	loop  *Loop
	id    uint64
	kind  string
	log   *logging.Logger

	mu        sync.Mutex
	state     HandleState
	onClose   func(error)
	closeErr  error
}

func newHandle(l *Loop, kind string) *handle {
	id := l.nextHandleID()
	return &handle{
		loop:  l,
		id:    id,
		kind:  kind,
		state: StateInitialized,
		log:   logging.Default().WithHandle(kind, id),
	}
}

func (h *handle) handleID() uint64 { return h.id }

func (h *handle) Loop() *Loop { return h.loop }

// setActive transitions initialized -> active. No-op if already active or
// past active.
func (h *handle) setActive() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateInitialized {
		h.state = StateActive
	}
}

func (h *handle) currentState() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// isClosing reports whether close has been requested (closing or closed).
func (h *handle) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == StateClosing || h.state == StateClosed
}

// beginClose transitions to closing exactly once. Returns false if a
// close was already in progress or complete (close is then a no-op per
// §3's lifecycle rule).
func (h *handle) beginClose(onClose func(error)) bool {
	h.mu.Lock()
	if h.state == StateClosing || h.state == StateClosed {
		h.mu.Unlock()
		return false
	}
	h.state = StateClosing
	if onClose != nil {
		h.onClose = onClose
	}
	h.mu.Unlock()
	return true
}

// onCloseHandler registers a close handler without initiating close.
func (h *handle) onCloseHandler(fn func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onClose = fn
}

// finishClose transitions to closed, unregisters the handle from the
// Loop's table (releasing the self-reference per H3), and invokes the
// close handler exactly once (H2), after any prior handler invocation for
// this handle has already returned (guaranteed because all delivery is
// single-threaded on the loop goroutine).
func (h *handle) finishClose(err error) {
	h.mu.Lock()
	if h.state == StateClosed {
		h.mu.Unlock()
		return
	}
	h.state = StateClosed
	cb := h.onClose
	h.onClose = nil // break any cycle through the handle's own handler
	h.mu.Unlock()

	h.loop.removeHandle(h.id)
	h.log.Debug("closed")
	if cb != nil {
		cb(err)
	}
}
