package reactorcore

import "sync"

// CompletionKind tags the payload carried by a Completion so the Loop
// knows which handler path to route it through.
type CompletionKind int

const (
	KindDispatch CompletionKind = iota
	KindTimerExpiry
	KindAccept
	KindConnect
	KindRead
	KindWrite
	KindReceive
	KindSend
	KindResolve
	KindClose
)

// Completion is one event delivered by the demultiplexer: an I/O
// readiness/result, a timer expiry, a resolver result, or a cross-thread
// dispatch thunk. Exactly one of Thunk or (HandleID, Data, Err) is
// meaningful, selected by Kind.
type Completion struct {
	Kind     CompletionKind
	HandleID uint64
	Seq      uint64
	Data     any
	Err      error
	Thunk    func()
}

// Demultiplexer is the "pump-one-pending-event" primitive spec.md treats
// as an external collaborator. It is realized here as a mutex+condvar FIFO
// queue fed by background goroutines (persistent per-handle accept, read,
// write, send and receive loops, plus one goroutine per connect, timer
// expiry and resolve) and drained by the Loop's Run/RunOnce/
// RunNowait methods — the same submit-then-wait-for-completion shape as
// the teacher's internal/queue.Runner draining internal/uring.Ring.
type Demultiplexer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Completion
	closed bool
	seq    uint64
}

// NewDemultiplexer constructs an empty completion queue.
func NewDemultiplexer() *Demultiplexer {
	d := &Demultiplexer{}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Post enqueues a completion and wakes exactly one blocked PumpOne caller.
// Safe from any goroutine. The queue carries both dispatch thunks and I/O
// completions.
func (d *Demultiplexer) Post(c Completion) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.seq++
	c.Seq = d.seq
	d.queue = append(d.queue, c)
	d.mu.Unlock()
	d.cond.Signal()
}

// PumpOne pops the oldest completion. If block is true and the queue is
// empty, it waits until one is posted or the demultiplexer is closed. If
// block is false, it returns immediately with ok=false when empty.
func (d *Demultiplexer) PumpOne(block bool) (Completion, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) == 0 {
		if d.closed || !block {
			return Completion{}, false
		}
		d.cond.Wait()
	}
	c := d.queue[0]
	d.queue = d.queue[1:]
	return c, true
}

// Len reports the number of completions currently queued.
func (d *Demultiplexer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Close marks the demultiplexer closed and wakes every blocked PumpOne
// caller. Further Post calls are silently dropped.
func (d *Demultiplexer) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cond.Broadcast()
}
