package praktor

import (
	"context"
	"net"
	"sync"
	"syscall"

	"github.com/edgeofmagic/praktor/internal/reactorcore"
	"golang.org/x/sys/unix"
)

// AcceptedChannel is the surface common to Channel and FramedChannel, so
// AcceptHandler can deliver either depending on Options.Framing without
// the caller hand-wrapping the connection itself (§4.5).
type AcceptedChannel interface {
	Close(onClose func(error)) bool
	OnClose(fn func(error))
	GetEndpoint() Endpoint
	GetPeerEndpoint() Endpoint
	GetQueueSize() int
}

// AcceptHandler is invoked once per accepted connection, or once with a
// nil channel and a non-nil error if the listener itself fails (§4.3). ch
// is a *FramedChannel when the acceptor was created with Options.Framing
// set, a *Channel otherwise; it arrives ready for StartRead.
type AcceptHandler func(a *Acceptor, ch AcceptedChannel, err error)

type acceptResult struct {
	conn net.Conn
	err  error
}

// Acceptor is a passive TCP listening handle that produces one channel per
// inbound connection (§4.3, §4.5): raw when Options.Framing is false,
// length-prefixed when true, so the delivered AcceptedChannel is always
// ready for StartRead without further wrapping. Binding applies
// SO_REUSEADDR always and SO_REUSEPORT when requested, mirrored from the
// socket tuning the HydraDNS-style UDP servers in the example pack apply
// via net.ListenConfig.Control.
type Acceptor struct {
	*handle

	ln      net.Listener
	localEp Endpoint
	opts    Options

	mu       sync.Mutex
	onAccept AcceptHandler
	listened bool
}

func newAcceptor(l *Loop, opts Options) (*Acceptor, error) {
	lc := net.ListenConfig{Control: reusableControl(opts.ReusePort)}
	ln, err := lc.Listen(context.Background(), "tcp", opts.Endpoint.String())
	if err != nil {
		return nil, WrapError("bind", err)
	}
	a := &Acceptor{handle: newHandle(l, "acceptor"), ln: ln, opts: opts}
	if ep, err := EndpointFromAddr(ln.Addr()); err == nil {
		a.localEp = ep
	}
	a.setActive()
	l.addHandle(a)
	return a, nil
}

// GetEndpoint returns the bound local endpoint (useful when Options.Endpoint
// requested an ephemeral port).
func (a *Acceptor) GetEndpoint() Endpoint { return a.localEp }

// GetOptions returns the Options the acceptor was created with.
func (a *Acceptor) GetOptions() Options { return a.opts }

// Listen begins accepting connections and delivering them to handler.
// Calling Listen a second time replaces the handler without restarting
// the accept loop.
func (a *Acceptor) Listen(handler AcceptHandler) error {
	if handler == nil {
		return invalidArgErr("listen", "nil handler")
	}
	if a.isClosing() {
		return loopClosedErr("listen")
	}
	a.mu.Lock()
	a.onAccept = handler
	already := a.listened
	a.listened = true
	a.mu.Unlock()
	if !already {
		go a.acceptLoop()
	}
	return nil
}

func (a *Acceptor) acceptLoop() {
	for {
		conn, err := a.ln.Accept()
		a.loop.post(reactorcore.Completion{
			Kind: reactorcore.KindAccept, HandleID: a.id,
			Data: acceptResult{conn: conn, err: err},
		})
		if err != nil {
			return
		}
	}
}

func (a *Acceptor) deliver(comp reactorcore.Completion) {
	if comp.Kind == reactorcore.KindClose {
		a.finishClose(nil)
		return
	}
	if comp.Kind != reactorcore.KindAccept {
		return
	}
	a.mu.Lock()
	handler := a.onAccept
	a.mu.Unlock()
	if handler == nil {
		if comp.Data.(acceptResult).conn != nil {
			_ = comp.Data.(acceptResult).conn.Close()
		}
		return
	}
	res := comp.Data.(acceptResult)
	if res.err != nil {
		handler(a, nil, WrapError("listen", res.err))
		return
	}
	raw := newChannel(a.loop, res.conn)
	if a.opts.Framing {
		handler(a, newFramedChannel(raw), nil)
		return
	}
	handler(a, raw, nil)
}

// Close stops accepting and releases the listening socket.
func (a *Acceptor) Close(onClose func(error)) bool {
	if !a.beginClose(onClose) {
		return false
	}
	_ = a.ln.Close()
	a.loop.post(reactorcore.Completion{Kind: reactorcore.KindClose, HandleID: a.id})
	return true
}

// OnClose registers a close handler without initiating close.
func (a *Acceptor) OnClose(fn func(error)) { a.onCloseHandler(fn) }

func (a *Acceptor) forceClose() { a.Close(nil) }

func reusableControl(reusePort bool) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
				ctrlErr = e
				return
			}
			if reusePort {
				if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); e != nil {
					ctrlErr = e
				}
			}
		})
		if err != nil {
			return err
		}
		return ctrlErr
	}
}
