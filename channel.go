package praktor

import (
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/edgeofmagic/praktor/internal/reactorcore"
)

// ReadHandler is invoked once per inbound chunk, or once with an empty
// buffer and a non-nil error on read failure/end-of-stream (§4.3).
type ReadHandler func(c *Channel, buf ImmutableBuffer, err error)

// WriteHandler is invoked exactly once per submitted write, in submission
// order (§4.3 C1), with the buffers handed back to the caller.
type WriteHandler func(c *Channel, buffers []ImmutableBuffer, err error)

type writeJob struct {
	buffers   []ImmutableBuffer
	handler   WriteHandler
	cancelled bool
}

type readResult struct {
	gen uint64
	buf ImmutableBuffer
}

type writeResult struct {
	job writeJob
}

// Channel is a bidirectional, reliable byte-stream handle over a TCP
// connection (§4.3). Reads and writes are independent: one persistent
// reader goroutine and one persistent writer goroutine serve the channel
// for its entire lifetime, gated by condition variables so that at most
// one goroutine is ever blocked in Conn.Read and at most one in Conn.Write
// at a time — this keeps
// submission order intact (C1) without per-call goroutine spawns, in the
// spirit of the teacher's single pinned ioLoop goroutine per queue.
type Channel struct {
	*handle

	conn    net.Conn
	localEp Endpoint
	peerEp  Endpoint

	rmu     sync.Mutex
	rcond   *sync.Cond
	reading bool
	readGen uint64
	onRead  ReadHandler

	wmu        sync.Mutex
	wcond      *sync.Cond
	wqueue     []writeJob
	writerDone bool
	queueSize  int64

	closed int32
}

func newChannel(l *Loop, conn net.Conn) *Channel {
	c := &Channel{handle: newHandle(l, "channel"), conn: conn}
	c.rcond = sync.NewCond(&c.rmu)
	c.wcond = sync.NewCond(&c.wmu)
	if local, err := EndpointFromAddr(conn.LocalAddr()); err == nil {
		c.localEp = local
	}
	if peer, err := EndpointFromAddr(conn.RemoteAddr()); err == nil {
		c.peerEp = peer
	}
	c.setActive()
	l.addHandle(c)
	go c.readLoop()
	go c.writerLoop()
	return c
}

// GetEndpoint returns the channel's local endpoint.
func (c *Channel) GetEndpoint() Endpoint { return c.localEp }

// GetPeerEndpoint returns the channel's remote endpoint.
func (c *Channel) GetPeerEndpoint() Endpoint { return c.peerEp }

// GetQueueSize returns the number of writes currently queued or in
// flight.
func (c *Channel) GetQueueSize() int {
	return int(atomic.LoadInt64(&c.queueSize))
}

// StartRead transitions idle -> reading and begins delivering inbound
// chunks to handler. Fails with ConnectionAlreadyInProgress if already
// reading.
func (c *Channel) StartRead(handler ReadHandler) error {
	if handler == nil {
		return invalidArgErr("start_read", "nil handler")
	}
	if c.isClosing() {
		return loopClosedErr("start_read")
	}
	c.rmu.Lock()
	defer c.rmu.Unlock()
	if c.reading {
		return NewError("start_read", KindConnectionAlreadyInProgress, "read already in progress")
	}
	c.reading = true
	c.onRead = handler
	c.readGen++
	c.rcond.Broadcast()
	return nil
}

// StopRead idempotently transitions reading -> idle with no final handler
// call.
func (c *Channel) StopRead() {
	c.rmu.Lock()
	c.reading = false
	c.readGen++
	c.rmu.Unlock()
}

func (c *Channel) readLoop() {
	for {
		c.rmu.Lock()
		for !c.reading && atomic.LoadInt32(&c.closed) == 0 {
			c.rcond.Wait()
		}
		if atomic.LoadInt32(&c.closed) != 0 {
			c.rmu.Unlock()
			return
		}
		gen := c.readGen
		c.rmu.Unlock()

		buf := reactorcore.GetReadChunk()
		n, err := c.conn.Read(buf)

		var chunk ImmutableBuffer
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			chunk = NewImmutableBuffer(data)
		} else {
			chunk = NewImmutableBuffer(nil)
		}
		reactorcore.PutReadChunk(buf)

		var perr error
		if err != nil {
			if err == io.EOF {
				perr = NewError("start_read", KindEndOfFile, "end of stream")
			} else {
				perr = WrapError("start_read", err)
			}
		}
		c.loop.post(reactorcore.Completion{
			Kind: reactorcore.KindRead, HandleID: c.id,
			Data: readResult{gen: gen, buf: chunk}, Err: perr,
		})
		if err != nil {
			return
		}
	}
}

func (c *Channel) deliverRead(rr readResult, err error) {
	c.rmu.Lock()
	if rr.gen != c.readGen {
		c.rmu.Unlock()
		return // stale completion from a Stop/re-Start race
	}
	handler := c.onRead
	if err != nil {
		c.reading = false
	}
	c.rmu.Unlock()
	if err == nil {
		c.loop.metrics.recordRead(rr.buf.Len())
	}
	if handler != nil {
		handler(c, rr.buf, err)
	}
}

// Write submits one write request carrying the given buffers. Writes
// complete in submission order (C1); handler is invoked exactly once with
// the buffers handed back to the caller. If handler is nil the buffers
// are dropped on completion.
func (c *Channel) Write(buffers []ImmutableBuffer, handler WriteHandler) error {
	if c.isClosing() {
		return NewError("write", KindCancelled, "channel closed")
	}
	c.wmu.Lock()
	c.wqueue = append(c.wqueue, writeJob{buffers: buffers, handler: handler})
	atomic.AddInt64(&c.queueSize, 1)
	c.wcond.Signal()
	c.wmu.Unlock()
	return nil
}

// WriteBuffer is the single-buffer ergonomic overload of Write.
func (c *Channel) WriteBuffer(buf ImmutableBuffer, handler WriteHandler) error {
	return c.Write([]ImmutableBuffer{buf}, handler)
}

func (c *Channel) writerLoop() {
	for {
		c.wmu.Lock()
		for len(c.wqueue) == 0 && !c.writerDone {
			c.wcond.Wait()
		}
		if len(c.wqueue) == 0 {
			c.wmu.Unlock()
			c.loop.post(reactorcore.Completion{Kind: reactorcore.KindClose, HandleID: c.id})
			return
		}
		job := c.wqueue[0]
		c.wqueue = c.wqueue[1:]
		c.wmu.Unlock()

		var err error
		if job.cancelled {
			err = NewError("write", KindCancelled, "channel closed")
		} else {
			err = writeBuffers(c.conn, job.buffers)
		}
		atomic.AddInt64(&c.queueSize, -1)
		c.loop.post(reactorcore.Completion{
			Kind: reactorcore.KindWrite, HandleID: c.id,
			Data: writeResult{job: job}, Err: err,
		})
	}
}

// deliverWrite invokes the write handler, then, per §4.3 and §7, begins
// closing the channel if the write itself failed — a write error is
// terminal, and the close handler fires once this completion has
// returned. Every non-nil error takes this path, including a cancellation
// reported while an explicit Close is already draining the queue; Close
// is idempotent, so in that case the call is a no-op.
func (c *Channel) deliverWrite(wr writeResult, err error) {
	if err == nil {
		n := 0
		for _, b := range wr.job.buffers {
			n += b.Len()
		}
		c.loop.metrics.recordWrite(n)
	}
	if wr.job.handler != nil {
		wr.job.handler(c, wr.job.buffers, err)
	}
	if err != nil {
		c.Close(nil)
	}
}

func writeBuffers(conn net.Conn, buffers []ImmutableBuffer) error {
	for _, b := range buffers {
		if _, err := conn.Write(b.Bytes()); err != nil {
			return WrapError("write", err)
		}
	}
	return nil
}

// Close begins closure: submitted-but-unsent writes are cancelled and
// report a closure error; the read loop stops delivering; the close
// handler, if any, fires once OS-level release completes (H2).
func (c *Channel) Close(onClose func(error)) bool {
	if !c.beginClose(onClose) {
		return false
	}
	atomic.StoreInt32(&c.closed, 1)

	c.wmu.Lock()
	for i := range c.wqueue {
		c.wqueue[i].cancelled = true
	}
	c.writerDone = true
	c.wmu.Unlock()
	c.wcond.Broadcast()

	c.rmu.Lock()
	c.reading = false
	c.readGen++
	c.rmu.Unlock()
	c.rcond.Broadcast()

	_ = c.conn.Close()
	return true
}

// OnClose registers a close handler without initiating close.
func (c *Channel) OnClose(fn func(error)) { c.onCloseHandler(fn) }

func (c *Channel) deliver(comp reactorcore.Completion) {
	switch comp.Kind {
	case reactorcore.KindRead:
		c.deliverRead(comp.Data.(readResult), comp.Err)
	case reactorcore.KindWrite:
		c.deliverWrite(comp.Data.(writeResult), comp.Err)
	case reactorcore.KindClose:
		c.finishClose(c.closeErr)
	}
}

func (c *Channel) forceClose() {
	c.Close(nil)
}
