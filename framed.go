package praktor

import (
	"encoding/binary"
	"sync"
)

const frameHeaderSize = 8

// FramedReadHandler is invoked once per complete inbound message, or once
// with an empty buffer and a non-nil error on failure (§4.4).
type FramedReadHandler func(c *FramedChannel, msg ImmutableBuffer, err error)

// FramedWriteHandler is invoked exactly once per submitted message, in
// submission order.
type FramedWriteHandler func(c *FramedChannel, msg ImmutableBuffer, err error)

// FramedChannel layers an 8-byte little-endian length-prefix message codec
// over a raw Channel (§4.4). Invariant F1: a partial header or body never
// triggers a read-handler call; only complete messages are delivered, in
// the order their bytes arrived on the wire.
type FramedChannel struct {
	raw *Channel

	mu     sync.Mutex
	accum  *MutableBuffer
	onMsg  FramedReadHandler
	active bool
}

func newFramedChannel(raw *Channel) *FramedChannel {
	return &FramedChannel{raw: raw, accum: NewMutableBuffer(0)}
}

// NewFramedChannel wraps an existing raw Channel (typically one just
// delivered by an Acceptor or ConnectChannel) with length-prefixed framing.
func NewFramedChannel(raw *Channel) *FramedChannel {
	return newFramedChannel(raw)
}

// Underlying returns the wrapped raw Channel, for endpoint/queue-size
// introspection.
func (f *FramedChannel) Underlying() *Channel { return f.raw }

// GetEndpoint returns the channel's local endpoint.
func (f *FramedChannel) GetEndpoint() Endpoint { return f.raw.GetEndpoint() }

// GetPeerEndpoint returns the channel's remote endpoint.
func (f *FramedChannel) GetPeerEndpoint() Endpoint { return f.raw.GetPeerEndpoint() }

// StartRead begins delivering reassembled messages to handler.
func (f *FramedChannel) StartRead(handler FramedReadHandler) error {
	if handler == nil {
		return invalidArgErr("start_read", "nil handler")
	}
	f.mu.Lock()
	f.onMsg = handler
	f.active = true
	f.mu.Unlock()
	return f.raw.StartRead(f.onRawChunk)
}

// StopRead stops delivering reassembled messages. Bytes already
// accumulated toward a partial frame are retained, since a frame may span
// the Stop/Start boundary.
func (f *FramedChannel) StopRead() {
	f.mu.Lock()
	f.active = false
	f.mu.Unlock()
	f.raw.StopRead()
}

func (f *FramedChannel) onRawChunk(raw *Channel, buf ImmutableBuffer, err error) {
	f.mu.Lock()
	handler := f.onMsg
	active := f.active
	f.mu.Unlock()
	if !active || handler == nil {
		return
	}
	if err != nil {
		handler(f, NewImmutableBuffer(nil), err)
		return
	}

	f.mu.Lock()
	n := f.accum.Size()
	need := n + len(buf.Bytes()) - f.accum.Cap()
	if need > 0 {
		f.accum.Expand(need)
	}
	f.accum.PutN(n, buf.Bytes(), len(buf.Bytes()))
	msgs, rerr := f.extractMessagesLocked()
	f.mu.Unlock()

	for _, m := range msgs {
		handler(f, m, nil)
	}
	if rerr != nil {
		handler(f, NewImmutableBuffer(nil), rerr)
	}
}

// extractMessagesLocked pulls every complete frame out of f.accum, leaving
// any trailing partial header/body in place. Must be called with f.mu held.
func (f *FramedChannel) extractMessagesLocked() ([]ImmutableBuffer, error) {
	var out []ImmutableBuffer
	var rerr error
	data := f.accum.Bytes()
	offset := 0
	for {
		remaining := data[offset:]
		if len(remaining) < frameHeaderSize {
			break
		}
		length := binary.LittleEndian.Uint64(remaining[:frameHeaderSize])
		if length > uint64(maxFrameLength) {
			rerr = NewError("start_read", KindMessageTooLong, "frame length exceeds limit")
			break
		}
		if uint64(len(remaining)-frameHeaderSize) < length {
			break // partial body; wait for more bytes
		}
		body := make([]byte, length)
		copy(body, remaining[frameHeaderSize:frameHeaderSize+int(length)])
		out = append(out, NewImmutableBuffer(body))
		offset += frameHeaderSize + int(length)
	}
	// Rebuild the accumulator sized to exactly what remains, instead of
	// reusing the old (possibly much larger) backing array, so capacity
	// tracks the in-flight partial frame rather than cumulative traffic.
	leftover := data[offset:]
	f.accum = NewMutableBuffer(len(leftover))
	f.accum.PutN(0, leftover, len(leftover))
	return out, rerr
}

// maxFrameLength bounds a single frame's body at 64 MiB; a peer claiming
// more is treated as a protocol error rather than an invitation to
// allocate unbounded memory.
const maxFrameLength = 64 * 1024 * 1024

// Write submits one message for framed transmission: an 8-byte
// little-endian length header followed by the payload, submitted to the
// underlying channel as a single write so two messages can never
// interleave on the wire (invariant C2).
func (f *FramedChannel) Write(msg ImmutableBuffer, handler FramedWriteHandler) error {
	header := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint64(header, uint64(msg.Len()))
	frame := []ImmutableBuffer{NewImmutableBuffer(header), msg}
	return f.raw.Write(frame, func(c *Channel, buffers []ImmutableBuffer, err error) {
		if handler != nil {
			handler(f, msg, err)
		}
	})
}

// Close closes the underlying raw channel.
func (f *FramedChannel) Close(onClose func(error)) bool {
	return f.raw.Close(onClose)
}

// OnClose registers a close handler without initiating close.
func (f *FramedChannel) OnClose(fn func(error)) { f.raw.OnClose(fn) }

// GetQueueSize returns the number of messages currently queued or in
// flight on the underlying channel.
func (f *FramedChannel) GetQueueSize() int { return f.raw.GetQueueSize() }
