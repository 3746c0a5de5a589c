package praktor

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/edgeofmagic/praktor/internal/reactorcore"
)

// MaxDatagramPayload is the largest payload emit() will place on the wire
// in one datagram; larger payloads fail with MessageTooLong (§4.6).
const MaxDatagramPayload = reactorcore.DatagramBufferSize

// ReceiveHandler is invoked once per inbound datagram, or once with an
// empty buffer and a non-nil error on failure (§4.6). A datagram that
// fills the whole receive buffer is delivered with its payload and a
// MessageTooLong error, and receiving continues.
type ReceiveHandler func(tr *Transceiver, buf ImmutableBuffer, from Endpoint, err error)

// EmitHandler is invoked exactly once per submitted datagram.
type EmitHandler func(tr *Transceiver, buf ImmutableBuffer, to Endpoint, err error)

type datagramIn struct {
	gen   uint64
	buf   ImmutableBuffer
	from  Endpoint
	fatal bool // true for a genuine ReadFrom failure; false for a truncation notice
}

type emitJob struct {
	buf       ImmutableBuffer
	to        Endpoint
	handler   EmitHandler
	cancelled bool
}

type emitResult struct {
	job emitJob
}

// Transceiver is a connectionless UDP datagram handle (§4.6).
type Transceiver struct {
	*handle

	conn    net.PacketConn
	localEp Endpoint

	rmu       sync.Mutex
	rcond     *sync.Cond
	receiving bool
	recvGen   uint64
	onRecv    ReceiveHandler

	wmu        sync.Mutex
	wcond      *sync.Cond
	wqueue     []emitJob
	writerDone bool

	closed int32
}

func newTransceiver(l *Loop, opts Options) (*Transceiver, error) {
	conn, err := net.ListenPacket("udp", opts.Endpoint.String())
	if err != nil {
		return nil, WrapError("bind", err)
	}
	tr := &Transceiver{handle: newHandle(l, "transceiver"), conn: conn}
	tr.rcond = sync.NewCond(&tr.rmu)
	tr.wcond = sync.NewCond(&tr.wmu)
	if ep, err := EndpointFromAddr(conn.LocalAddr()); err == nil {
		tr.localEp = ep
	}
	tr.setActive()
	l.addHandle(tr)
	go tr.readLoop()
	go tr.writerLoop()
	return tr, nil
}

// GetEndpoint returns the bound local endpoint.
func (tr *Transceiver) GetEndpoint() Endpoint { return tr.localEp }

// StartReceive transitions idle -> receiving.
func (tr *Transceiver) StartReceive(handler ReceiveHandler) error {
	if handler == nil {
		return invalidArgErr("start_receive", "nil handler")
	}
	if tr.isClosing() {
		return loopClosedErr("start_receive")
	}
	tr.rmu.Lock()
	defer tr.rmu.Unlock()
	if tr.receiving {
		return NewError("start_receive", KindConnectionAlreadyInProgress, "receive already in progress")
	}
	tr.receiving = true
	tr.onRecv = handler
	tr.recvGen++
	tr.rcond.Broadcast()
	return nil
}

// StopReceive idempotently transitions receiving -> idle.
func (tr *Transceiver) StopReceive() {
	tr.rmu.Lock()
	tr.receiving = false
	tr.recvGen++
	tr.rmu.Unlock()
}

func (tr *Transceiver) readLoop() {
	for {
		tr.rmu.Lock()
		for !tr.receiving && atomic.LoadInt32(&tr.closed) == 0 {
			tr.rcond.Wait()
		}
		if atomic.LoadInt32(&tr.closed) != 0 {
			tr.rmu.Unlock()
			return
		}
		gen := tr.recvGen
		tr.rmu.Unlock()

		buf := reactorcore.GetDatagramBuffer()
		n, addr, err := tr.conn.ReadFrom(buf)

		var chunk ImmutableBuffer
		var from Endpoint
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			chunk = NewImmutableBuffer(data)
		} else {
			chunk = NewImmutableBuffer(nil)
		}
		reactorcore.PutDatagramBuffer(buf)
		if addr != nil {
			if ep, eerr := EndpointFromAddr(addr); eerr == nil {
				from = ep
			}
		}

		var perr error
		switch {
		case err != nil:
			perr = WrapError("start_receive", err)
		case n == len(buf):
			// A full receive buffer is indistinguishable from a datagram
			// that was exactly this size, so report it as a possible
			// truncation (§3) rather than silently dropping the tail the
			// kernel already discarded.
			perr = NewError("start_receive", KindMessageTooLong, "datagram may have been truncated to the receive buffer size")
		}
		tr.loop.post(reactorcore.Completion{
			Kind: reactorcore.KindReceive, HandleID: tr.id,
			Data: datagramIn{gen: gen, buf: chunk, from: from, fatal: err != nil}, Err: perr,
		})
		if err != nil {
			return
		}
	}
}

func (tr *Transceiver) deliverReceive(in datagramIn, err error) {
	tr.rmu.Lock()
	if in.gen != tr.recvGen {
		tr.rmu.Unlock()
		return
	}
	handler := tr.onRecv
	if in.fatal {
		tr.receiving = false
	}
	tr.rmu.Unlock()
	if !in.fatal {
		tr.loop.metrics.recordDatagramReceived(in.buf.Len())
	}
	if handler != nil {
		handler(tr, in.buf, in.from, err)
	}
}

// Emit submits one datagram addressed to to. Payloads larger than
// MaxDatagramPayload fail immediately with MessageTooLong.
func (tr *Transceiver) Emit(buf ImmutableBuffer, to Endpoint, handler EmitHandler) error {
	if buf.Len() > MaxDatagramPayload {
		return NewError("emit", KindMessageTooLong, "payload exceeds maximum datagram size")
	}
	if tr.isClosing() {
		return NewError("emit", KindCancelled, "transceiver closed")
	}
	tr.wmu.Lock()
	tr.wqueue = append(tr.wqueue, emitJob{buf: buf, to: to, handler: handler})
	tr.wcond.Signal()
	tr.wmu.Unlock()
	return nil
}

func (tr *Transceiver) writerLoop() {
	for {
		tr.wmu.Lock()
		for len(tr.wqueue) == 0 && !tr.writerDone {
			tr.wcond.Wait()
		}
		if len(tr.wqueue) == 0 {
			tr.wmu.Unlock()
			tr.loop.post(reactorcore.Completion{Kind: reactorcore.KindClose, HandleID: tr.id})
			return
		}
		job := tr.wqueue[0]
		tr.wqueue = tr.wqueue[1:]
		tr.wmu.Unlock()

		var err error
		if job.cancelled {
			err = NewError("emit", KindCancelled, "transceiver closed")
		} else {
			_, werr := tr.conn.WriteTo(job.buf.Bytes(), job.to.UDPAddr())
			if werr != nil {
				err = WrapError("emit", werr)
			}
		}
		tr.loop.post(reactorcore.Completion{
			Kind: reactorcore.KindSend, HandleID: tr.id,
			Data: emitResult{job: job}, Err: err,
		})
	}
}

func (tr *Transceiver) deliverEmit(er emitResult, err error) {
	if err == nil {
		tr.loop.metrics.recordDatagramSent(er.job.buf.Len())
	}
	if er.job.handler != nil {
		er.job.handler(tr, er.job.buf, er.job.to, err)
	}
}

// Close releases the underlying socket.
func (tr *Transceiver) Close(onClose func(error)) bool {
	if !tr.beginClose(onClose) {
		return false
	}
	atomic.StoreInt32(&tr.closed, 1)

	tr.wmu.Lock()
	for i := range tr.wqueue {
		tr.wqueue[i].cancelled = true
	}
	tr.writerDone = true
	tr.wmu.Unlock()
	tr.wcond.Broadcast()

	tr.rmu.Lock()
	tr.receiving = false
	tr.recvGen++
	tr.rmu.Unlock()
	tr.rcond.Broadcast()

	_ = tr.conn.Close()
	return true
}

// OnClose registers a close handler without initiating close.
func (tr *Transceiver) OnClose(fn func(error)) { tr.onCloseHandler(fn) }

func (tr *Transceiver) deliver(comp reactorcore.Completion) {
	switch comp.Kind {
	case reactorcore.KindReceive:
		tr.deliverReceive(comp.Data.(datagramIn), comp.Err)
	case reactorcore.KindSend:
		tr.deliverEmit(comp.Data.(emitResult), comp.Err)
	case reactorcore.KindClose:
		tr.finishClose(tr.closeErr)
	}
}

func (tr *Transceiver) forceClose() { tr.Close(nil) }
