package praktor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateReturnsIndependentLoops(t *testing.T) {
	a := Create()
	b := Create()
	assert.NotSame(t, a, b)
}

func TestGetDefaultReturnsSingleton(t *testing.T) {
	a := GetDefault()
	b := GetDefault()
	assert.Same(t, a, b)
}

func TestDispatchRunsOnLoopThread(t *testing.T) {
	l := Create()
	var ran bool
	require.NoError(t, l.Dispatch(func() { ran = true }))
	l.RunOnce()
	assert.True(t, ran)
}

func TestDispatchPreservesSubmissionOrder(t *testing.T) {
	l := Create()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, l.Dispatch(func() { order = append(order, i) }))
	}
	for i := 0; i < 5; i++ {
		l.RunOnce()
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestDispatchAfterCloseFails(t *testing.T) {
	l := Create()
	l.Close()
	err := l.Dispatch(func() {})
	assert.True(t, IsKind(err, KindLoopClosed))
}

func TestRunExitsWhenNoHandlesAndQueueEmpty(t *testing.T) {
	l := Create()
	done := make(chan int, 1)
	go func() { done <- l.Run() }()
	select {
	case n := <-done:
		assert.Equal(t, 0, n)
	case <-time.After(time.Second):
		t.Fatal("Run did not exit on an empty loop")
	}
}

func TestScheduleFiresAfterDelay(t *testing.T) {
	l := Create()
	fired := make(chan struct{})
	_, err := l.Schedule(5*time.Millisecond, func(timer *Timer) { close(fired) })
	require.NoError(t, err)
	go l.Run()
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("scheduled timer never fired")
	}
}

func TestStopEndsRun(t *testing.T) {
	l := Create()
	l.MustSchedule(time.Hour, func(*Timer) {}) // keep a handle registered so Run would otherwise block forever
	done := make(chan int, 1)
	go func() { done <- l.Run() }()
	time.Sleep(10 * time.Millisecond)
	l.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not end Run")
	}
}
