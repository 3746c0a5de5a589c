package praktor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsInitialSnapshotIsZero(t *testing.T) {
	m := NewMetrics()
	snap := m.Snapshot()
	assert.Zero(t, snap.HandlesCreated)
	assert.Zero(t, snap.BytesRead)
	assert.Zero(t, snap.MaxQueueDepth)
}

func TestMetricsHandleLifecycleCounters(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveHandleCreated()
	obs.ObserveHandleCreated()
	obs.ObserveHandleClosed()

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.HandlesCreated)
	assert.Equal(t, uint64(1), snap.HandlesActive)
	assert.Equal(t, uint64(1), snap.HandlesClosed)
}

func TestMetricsByteCounters(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveBytesRead(1024)
	obs.ObserveBytesWritten(2048)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1024), snap.BytesRead)
	assert.Equal(t, uint64(2048), snap.BytesWritten)
}

func TestMetricsMaxQueueDepthTracksPeak(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveQueueDepth(3)
	obs.ObserveQueueDepth(7)
	obs.ObserveQueueDepth(2)

	snap := m.Snapshot()
	assert.Equal(t, uint64(7), snap.MaxQueueDepth)
}

func TestMetricsResetZeroesCounters(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)
	obs.ObserveHandleCreated()
	obs.ObserveBytesRead(100)

	m.Reset()

	snap := m.Snapshot()
	assert.Zero(t, snap.HandlesCreated)
	assert.Zero(t, snap.BytesRead)
}

func TestMetricsDatagramAndTimerCounters(t *testing.T) {
	m := NewMetrics()

	m.recordDatagramReceived(100)
	m.recordDatagramReceived(50)
	m.recordDatagramSent(75)
	m.recordTimerFire()
	m.recordTimerFire()

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.DatagramsReceived)
	assert.Equal(t, uint64(1), snap.DatagramsSent)
	assert.Equal(t, uint64(225), snap.DatagramBytes)
	assert.Equal(t, uint64(2), snap.TimerFires)
}

func TestLoopMetricsTrackLiveStreamTraffic(t *testing.T) {
	l := Create()
	a := echoAcceptor(t, l)
	go l.Run()

	received := make(chan []byte, 1)
	err := l.ConnectChannel(a.GetEndpoint(), func(ch *Channel, cerr error) {
		require.NoError(t, cerr)
		require.NoError(t, ch.StartRead(func(c *Channel, buf ImmutableBuffer, rerr error) {
			if rerr == nil {
				received <- append([]byte(nil), buf.Bytes()...)
			}
		}))
		require.NoError(t, ch.WriteBuffer(NewImmutableBuffer([]byte("ping")), nil))
	})
	require.NoError(t, err)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("echo round trip timed out")
	}

	snap := l.Metrics().Snapshot()
	assert.NotZero(t, snap.BytesRead)
	assert.NotZero(t, snap.BytesWritten)
}

func TestNoOpObserverDoesNothing(t *testing.T) {
	var o NoOpObserver
	assert.NotPanics(t, func() {
		o.ObserveHandleCreated()
		o.ObserveHandleClosed()
		o.ObserveBytesRead(10)
		o.ObserveBytesWritten(10)
		o.ObserveQueueDepth(10)
	})
}
