package praktor

import (
	"sync/atomic"
	"time"
)

// Metrics tracks loop-lifetime operational statistics, generalized from
// the teacher's per-device Metrics (metrics.go) to the reactor's handle
// and completion-queue counters instead of block-device I/O counters.
type Metrics struct {
	// Handle lifecycle
	HandlesCreated atomic.Uint64
	HandlesActive  atomic.Uint64
	HandlesClosed  atomic.Uint64

	// Stream I/O
	BytesRead    atomic.Uint64
	BytesWritten atomic.Uint64
	ReadErrors   atomic.Uint64
	WriteErrors  atomic.Uint64

	// Datagram I/O
	DatagramsReceived atomic.Uint64
	DatagramsSent     atomic.Uint64
	DatagramBytes     atomic.Uint64

	// Timers
	TimersStarted atomic.Uint64
	TimerFires    atomic.Uint64

	// Resolver
	ResolveRequests atomic.Uint64
	ResolveFailures atomic.Uint64

	// Dispatch queue
	DispatchPosted  atomic.Uint64
	DispatchDrained atomic.Uint64
	MaxQueueDepth   atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a zeroed metrics instance stamped with the current
// time as its start.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) recordHandleCreated() { m.HandlesCreated.Add(1); m.HandlesActive.Add(1) }

func (m *Metrics) recordHandleClosed() {
	m.HandlesClosed.Add(1)
	for {
		cur := m.HandlesActive.Load()
		if cur == 0 || m.HandlesActive.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

func (m *Metrics) recordRead(n int)  { m.BytesRead.Add(uint64(n)) }
func (m *Metrics) recordWrite(n int) { m.BytesWritten.Add(uint64(n)) }

func (m *Metrics) recordDatagramReceived(n int) {
	m.DatagramsReceived.Add(1)
	m.DatagramBytes.Add(uint64(n))
}

func (m *Metrics) recordDatagramSent(n int) {
	m.DatagramsSent.Add(1)
	m.DatagramBytes.Add(uint64(n))
}

func (m *Metrics) recordTimerFire() { m.TimerFires.Add(1) }

func (m *Metrics) recordQueueDepth(depth int) {
	d := uint64(depth)
	for {
		cur := m.MaxQueueDepth.Load()
		if d <= cur || m.MaxQueueDepth.CompareAndSwap(cur, d) {
			return
		}
	}
}

// Stop stamps the metrics instance's stop time.
func (m *Metrics) Stop() { m.StopTime.Store(time.Now().UnixNano()) }

// MetricsSnapshot is a point-in-time, allocation-free copy of Metrics
// suitable for logging or export.
type MetricsSnapshot struct {
	HandlesCreated    uint64
	HandlesActive     uint64
	HandlesClosed     uint64
	BytesRead         uint64
	BytesWritten      uint64
	ReadErrors        uint64
	WriteErrors       uint64
	DatagramsReceived uint64
	DatagramsSent     uint64
	DatagramBytes     uint64
	TimersStarted     uint64
	TimerFires        uint64
	ResolveRequests   uint64
	ResolveFailures   uint64
	DispatchPosted    uint64
	DispatchDrained   uint64
	MaxQueueDepth     uint64
	UptimeNs          uint64
}

// Snapshot returns a copy of the counters. Each counter is loaded on its
// own, so the copy is not atomic across counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		HandlesCreated:    m.HandlesCreated.Load(),
		HandlesActive:     m.HandlesActive.Load(),
		HandlesClosed:     m.HandlesClosed.Load(),
		BytesRead:         m.BytesRead.Load(),
		BytesWritten:      m.BytesWritten.Load(),
		ReadErrors:        m.ReadErrors.Load(),
		WriteErrors:       m.WriteErrors.Load(),
		DatagramsReceived: m.DatagramsReceived.Load(),
		DatagramsSent:     m.DatagramsSent.Load(),
		DatagramBytes:     m.DatagramBytes.Load(),
		TimersStarted:     m.TimersStarted.Load(),
		TimerFires:        m.TimerFires.Load(),
		ResolveRequests:   m.ResolveRequests.Load(),
		ResolveFailures:   m.ResolveFailures.Load(),
		DispatchPosted:    m.DispatchPosted.Load(),
		DispatchDrained:   m.DispatchDrained.Load(),
		MaxQueueDepth:     m.MaxQueueDepth.Load(),
	}
	start := m.StartTime.Load()
	stop := m.StopTime.Load()
	if stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}
	return snap
}

// Reset zeroes all counters and restamps the start time. Intended for
// test isolation.
func (m *Metrics) Reset() {
	*m = Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
}

// Observer allows pluggable metrics collection, mirrored from the
// teacher's Observer/MetricsObserver split. The Loop does not call an
// Observer; it records into its own Metrics directly.
type Observer interface {
	ObserveHandleCreated()
	ObserveHandleClosed()
	ObserveBytesRead(n int)
	ObserveBytesWritten(n int)
	ObserveQueueDepth(depth int)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveHandleCreated()   {}
func (NoOpObserver) ObserveHandleClosed()    {}
func (NoOpObserver) ObserveBytesRead(int)    {}
func (NoOpObserver) ObserveBytesWritten(int) {}
func (NoOpObserver) ObserveQueueDepth(int)   {}

// MetricsObserver implements Observer by recording into a Metrics value.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver returns an Observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver { return &MetricsObserver{metrics: m} }

func (o *MetricsObserver) ObserveHandleCreated()     { o.metrics.recordHandleCreated() }
func (o *MetricsObserver) ObserveHandleClosed()      { o.metrics.recordHandleClosed() }
func (o *MetricsObserver) ObserveBytesRead(n int)    { o.metrics.recordRead(n) }
func (o *MetricsObserver) ObserveBytesWritten(n int) { o.metrics.recordWrite(n) }
func (o *MetricsObserver) ObserveQueueDepth(d int)   { o.metrics.recordQueueDepth(d) }

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
