package praktor

import (
	"net"
	"sync"
	"time"

	"github.com/edgeofmagic/praktor/internal/logging"
	"github.com/edgeofmagic/praktor/internal/reactorcore"
)

var (
	defaultLoop     *Loop
	defaultLoopOnce sync.Once
)

// Loop is a single-threaded reactor: one demultiplexer draining completions
// posted by background goroutines that perform the actual blocking I/O
// (accept/connect/read/write/send/receive/timer/resolve), dispatched back
// to handle-bound callbacks on whichever goroutine calls Run/RunOnce/
// RunNowait. This mirrors the teacher's Backend owning one queue.Runner per
// hardware queue; here there is one Demultiplexer per Loop instead of one
// per queue, since praktor has no hardware queues to shard across.
type Loop struct {
	name  string
	demux *reactorcore.Demultiplexer
	log   *logging.Logger

	resolver *net.Resolver

	mu      sync.Mutex
	handles map[uint64]registrant
	nextID  uint64
	alive   bool
	stopReq bool

	metrics *Metrics
}

// Create returns a new, independent Loop.
func Create() *Loop {
	return newLoop("loop")
}

// GetDefault returns the process-wide default Loop, creating it on first
// use.
func GetDefault() *Loop {
	defaultLoopOnce.Do(func() {
		defaultLoop = newLoop("default")
	})
	return defaultLoop
}

func newLoop(name string) *Loop {
	return &Loop{
		name:     name,
		demux:    reactorcore.NewDemultiplexer(),
		log:      logging.Default().WithOp("loop:" + name),
		resolver: net.DefaultResolver,
		handles:  make(map[uint64]registrant),
		alive:    true,
		metrics:  NewMetrics(),
	}
}

// Name returns the loop's diagnostic name.
func (l *Loop) Name() string { return l.name }

// Metrics returns the loop's operational counters.
func (l *Loop) Metrics() *Metrics { return l.metrics }

// IsAlive reports whether the loop has not yet been closed.
func (l *Loop) IsAlive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.alive
}

func (l *Loop) nextHandleID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	return l.nextID
}

func (l *Loop) addHandle(r registrant) {
	l.mu.Lock()
	_, existed := l.handles[r.handleID()]
	l.handles[r.handleID()] = r
	l.mu.Unlock()
	if !existed {
		l.metrics.recordHandleCreated()
	}
}

func (l *Loop) removeHandle(id uint64) {
	l.mu.Lock()
	_, existed := l.handles[id]
	delete(l.handles, id)
	l.mu.Unlock()
	if existed {
		l.metrics.recordHandleClosed()
	}
}

func (l *Loop) handleCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handles)
}

func (l *Loop) lookupHandle(id uint64) (registrant, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.handles[id]
	return r, ok
}

// post hands a completion to the demultiplexer and records the resulting
// queue depth for metrics.
func (l *Loop) post(c reactorcore.Completion) {
	l.demux.Post(c)
	l.metrics.recordQueueDepth(l.demux.Len())
}

func (l *Loop) dispatchOne(c reactorcore.Completion) {
	l.metrics.DispatchDrained.Add(1)
	switch c.Kind {
	case reactorcore.KindDispatch:
		if c.Thunk != nil {
			c.Thunk()
		}
		return
	case reactorcore.KindConnect:
		cr := c.Data.(connectResult)
		if c.Err != nil {
			cr.handler(nil, c.Err)
			return
		}
		ch := newChannel(l, cr.conn)
		cr.handler(ch, nil)
		return
	case reactorcore.KindResolve:
		rr := c.Data.(resolveResult)
		if c.Err != nil {
			l.metrics.ResolveFailures.Add(1)
		}
		rr.handler(rr.addrs, c.Err)
		return
	}
	r, ok := l.lookupHandle(c.HandleID)
	if !ok {
		return // handle already removed; completion is stale
	}
	r.deliver(c)
}

// Run pumps completions, blocking as needed, until no handles remain
// registered and no completions are queued, or until Stop is called. It
// returns the number of handles still registered when it returns (0 on a
// clean drain).
func (l *Loop) Run() int {
	for {
		l.mu.Lock()
		stop := l.stopReq
		l.stopReq = false
		empty := len(l.handles) == 0 && l.demux.Len() == 0
		l.mu.Unlock()
		if stop || empty {
			return l.handleCount()
		}
		c, ok := l.demux.PumpOne(true)
		if !ok {
			return l.handleCount()
		}
		l.dispatchOne(c)
	}
}

// RunOnce pumps and dispatches exactly one completion, blocking if none is
// immediately available. It returns the number of handles still
// registered.
func (l *Loop) RunOnce() int {
	c, ok := l.demux.PumpOne(true)
	if ok {
		l.dispatchOne(c)
	}
	return l.handleCount()
}

// RunNowait dispatches at most one already-queued completion without
// blocking. It returns the number of handles still registered.
func (l *Loop) RunNowait() int {
	c, ok := l.demux.PumpOne(false)
	if ok {
		l.dispatchOne(c)
	}
	return l.handleCount()
}

// Stop requests that a running Run() return after its current completion
// finishes dispatching.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopReq = true
	l.mu.Unlock()
	l.post(reactorcore.Completion{Kind: reactorcore.KindDispatch, Thunk: func() {}})
}

// Dispatch posts handler to run on the loop thread at the next pump,
// preserving submission order relative to other Dispatch calls (§4.1).
func (l *Loop) Dispatch(handler func()) error {
	if handler == nil {
		return invalidArgErr("dispatch", "nil handler")
	}
	if !l.IsAlive() {
		return loopClosedErr("dispatch")
	}
	l.metrics.DispatchPosted.Add(1)
	l.post(reactorcore.Completion{Kind: reactorcore.KindDispatch, Thunk: handler})
	return nil
}

// Schedule creates and arms a Timer in one call.
func (l *Loop) Schedule(delay time.Duration, handler TimerHandler) (*Timer, error) {
	t, err := l.CreateTimer()
	if err != nil {
		return nil, err
	}
	if err := t.Start(delay, handler); err != nil {
		return nil, err
	}
	l.metrics.TimersStarted.Add(1)
	return t, nil
}

// CreateTimer allocates an idle Timer handle bound to this loop.
func (l *Loop) CreateTimer() (*Timer, error) {
	if !l.IsAlive() {
		return nil, loopClosedErr("create_timer")
	}
	return newTimer(l), nil
}

// ConnectChannel dials ep and delivers the resulting Channel (or error)
// to handler once the connection completes, asynchronously.
func (l *Loop) ConnectChannel(ep Endpoint, handler func(*Channel, error)) error {
	if handler == nil {
		return invalidArgErr("connect", "nil handler")
	}
	if !l.IsAlive() {
		return loopClosedErr("connect")
	}
	go func() {
		conn, err := net.Dial("tcp", ep.String())
		var perr error
		if err != nil {
			perr = WrapError("connect", err)
		}
		l.post(reactorcore.Completion{
			Kind: reactorcore.KindConnect,
			Data: connectResult{conn: conn, handler: handler},
			Err:  perr,
		})
	}()
	return nil
}

type connectResult struct {
	conn    net.Conn
	handler func(*Channel, error)
}

// CreateAcceptor binds and returns a passive Acceptor listening at
// opts.Endpoint. The acceptor does not begin accepting until Listen is
// called.
func (l *Loop) CreateAcceptor(opts Options) (*Acceptor, error) {
	if !l.IsAlive() {
		return nil, loopClosedErr("bind")
	}
	return newAcceptor(l, opts)
}

// CreateAndListen is the create->bind->listen convenience factory of §4.5:
// it binds an Acceptor at opts.Endpoint and immediately begins delivering
// accepted connections to handler. Any step's failure stops the sequence
// and is returned; a Listen failure closes the freshly bound acceptor.
func (l *Loop) CreateAndListen(opts Options, handler AcceptHandler) (*Acceptor, error) {
	a, err := l.CreateAcceptor(opts)
	if err != nil {
		return nil, err
	}
	if err := a.Listen(handler); err != nil {
		a.Close(nil)
		return nil, err
	}
	return a, nil
}

// CreateTransceiver binds a UDP datagram handle at opts.Endpoint.
func (l *Loop) CreateTransceiver(opts Options) (*Transceiver, error) {
	if !l.IsAlive() {
		return nil, loopClosedErr("bind")
	}
	return newTransceiver(l, opts)
}

// Resolve asynchronously resolves host to its addresses.
func (l *Loop) Resolve(host string, handler ResolveHandler) error {
	if handler == nil {
		return invalidArgErr("resolve", "nil handler")
	}
	if !l.IsAlive() {
		return loopClosedErr("resolve")
	}
	l.metrics.ResolveRequests.Add(1)
	return startResolve(l, host, handler)
}

// Close begins shutdown: every registered handle is forced closed (its
// close handler still fires, per H2), then the loop is pumped until the
// resulting close completions have all drained. Close is idempotent.
func (l *Loop) Close() {
	l.mu.Lock()
	if !l.alive {
		l.mu.Unlock()
		return
	}
	l.alive = false
	l.mu.Unlock()

	l.mu.Lock()
	victims := make([]registrant, 0, len(l.handles))
	for _, r := range l.handles {
		victims = append(victims, r)
	}
	l.mu.Unlock()

	for _, r := range victims {
		if !r.isClosing() {
			r.forceClose()
		}
	}

	for l.handleCount() > 0 {
		c, ok := l.demux.PumpOne(true)
		if !ok {
			break
		}
		l.dispatchOne(c)
	}
	l.demux.Close()
	l.metrics.Stop()
}
