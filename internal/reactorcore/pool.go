// Package reactorcore implements the reactor's pump-one-pending-event
// engine: a completion queue fed by per-operation goroutines and drained
// by the Loop's Run/RunOnce/RunNowait methods.
package reactorcore

import "sync"

// Buffer size classes for inbound read chunks. A stream read chunk is
// bounded at ReadChunkSize; a datagram receive buffer is bounded at
// DatagramBufferSize (the spec's MAX_DATAGRAM_PAYLOAD). Both are pooled so
// the receive buffers are reused across reads (the callers still copy each
// delivered payload into a fresh slice), generalized from the teacher's
// size-bucketed sync.Pool in internal/queue/pool.go.
const (
	ReadChunkSize      = 64 * 1024
	DatagramBufferSize = 9216
)

var (
	readChunkPool = sync.Pool{
		New: func() any { b := make([]byte, ReadChunkSize); return &b },
	}
	datagramPool = sync.Pool{
		New: func() any { b := make([]byte, DatagramBufferSize); return &b },
	}
)

// GetReadChunk returns a pooled buffer sized for one stream read.
func GetReadChunk() []byte {
	return (*readChunkPool.Get().(*[]byte))[:ReadChunkSize]
}

// PutReadChunk returns a stream read buffer to the pool.
func PutReadChunk(buf []byte) {
	if cap(buf) != ReadChunkSize {
		return
	}
	buf = buf[:ReadChunkSize]
	readChunkPool.Put(&buf)
}

// GetDatagramBuffer returns a pooled buffer sized for one datagram receive.
func GetDatagramBuffer() []byte {
	return (*datagramPool.Get().(*[]byte))[:DatagramBufferSize]
}

// PutDatagramBuffer returns a datagram receive buffer to the pool.
func PutDatagramBuffer(buf []byte) {
	if cap(buf) != DatagramBufferSize {
		return
	}
	buf = buf[:DatagramBufferSize]
	datagramPool.Put(&buf)
}
