package praktor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransceiverSendAndReceiveRoundTrip(t *testing.T) {
	l := Create()

	server, err := l.CreateTransceiver(DefaultOptions().WithEndpoint(V4Loopback))
	require.NoError(t, err)
	client, err := l.CreateTransceiver(DefaultOptions().WithEndpoint(V4Loopback))
	require.NoError(t, err)
	go l.Run()

	received := make(chan string, 1)
	require.NoError(t, server.StartReceive(func(tr *Transceiver, buf ImmutableBuffer, from Endpoint, rerr error) {
		if rerr == nil {
			received <- string(buf.Bytes())
		}
	}))

	require.NoError(t, client.Emit(NewImmutableBuffer([]byte("datagram")), server.GetEndpoint(), nil))

	select {
	case msg := <-received:
		assert.Equal(t, "datagram", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("datagram never arrived")
	}
}

func TestEmitOversizePayloadFailsWithMessageTooLong(t *testing.T) {
	l := Create()
	tr, err := l.CreateTransceiver(DefaultOptions().WithEndpoint(V4Loopback))
	require.NoError(t, err)

	oversized := make([]byte, MaxDatagramPayload+1)
	err = tr.Emit(NewImmutableBuffer(oversized), V4Loopback, nil)
	assert.True(t, IsKind(err, KindMessageTooLong))
}

func TestReceiveFullBufferDatagramReportsTruncation(t *testing.T) {
	l := Create()

	server, err := l.CreateTransceiver(DefaultOptions().WithEndpoint(V4Loopback))
	require.NoError(t, err)
	client, err := l.CreateTransceiver(DefaultOptions().WithEndpoint(V4Loopback))
	require.NoError(t, err)
	go l.Run()

	received := make(chan error, 2)
	require.NoError(t, server.StartReceive(func(tr *Transceiver, buf ImmutableBuffer, from Endpoint, rerr error) {
		received <- rerr
	}))

	// A datagram exactly MaxDatagramPayload bytes fills the receive buffer
	// completely; the heuristic in readLoop cannot distinguish that from an
	// actual truncation, so it reports one (§3).
	full := make([]byte, MaxDatagramPayload)
	require.NoError(t, client.Emit(NewImmutableBuffer(full), server.GetEndpoint(), nil))

	select {
	case rerr := <-received:
		assert.True(t, IsKind(rerr, KindMessageTooLong))
	case <-time.After(2 * time.Second):
		t.Fatal("datagram never arrived")
	}

	// The truncation notice is non-fatal: receiving continues without a
	// fresh StartReceive call.
	require.NoError(t, client.Emit(NewImmutableBuffer([]byte("still alive")), server.GetEndpoint(), nil))
	select {
	case rerr := <-received:
		assert.NoError(t, rerr)
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop did not continue after truncation notice")
	}
}

func TestStartReceiveTwiceFailsWithConnectionAlreadyInProgress(t *testing.T) {
	l := Create()
	tr, err := l.CreateTransceiver(DefaultOptions().WithEndpoint(V4Loopback))
	require.NoError(t, err)

	require.NoError(t, tr.StartReceive(func(*Transceiver, ImmutableBuffer, Endpoint, error) {}))
	err = tr.StartReceive(func(*Transceiver, ImmutableBuffer, Endpoint, error) {})
	assert.True(t, IsKind(err, KindConnectionAlreadyInProgress))
}
