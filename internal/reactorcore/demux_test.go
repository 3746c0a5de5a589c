package reactorcore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPumpOneFIFOOrder(t *testing.T) {
	d := NewDemultiplexer()
	d.Post(Completion{Kind: KindDispatch, HandleID: 1})
	d.Post(Completion{Kind: KindDispatch, HandleID: 2})
	d.Post(Completion{Kind: KindDispatch, HandleID: 3})

	for _, want := range []uint64{1, 2, 3} {
		c, ok := d.PumpOne(false)
		require.True(t, ok)
		assert.Equal(t, want, c.HandleID)
	}

	_, ok := d.PumpOne(false)
	assert.False(t, ok)
}

func TestPumpOneBlocksUntilPosted(t *testing.T) {
	d := NewDemultiplexer()
	done := make(chan Completion, 1)

	go func() {
		c, ok := d.PumpOne(true)
		if ok {
			done <- c
		}
	}()

	time.Sleep(20 * time.Millisecond)
	d.Post(Completion{Kind: KindTimerExpiry, HandleID: 42})

	select {
	case c := <-done:
		assert.Equal(t, uint64(42), c.HandleID)
	case <-time.After(time.Second):
		t.Fatal("PumpOne never unblocked")
	}
}

func TestCloseWakesBlockedPump(t *testing.T) {
	d := NewDemultiplexer()
	result := make(chan bool, 1)

	go func() {
		_, ok := d.PumpOne(true)
		result <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	d.Close()

	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake blocked PumpOne")
	}
}

func TestConcurrentPostersPreserveEachSubmitterOrder(t *testing.T) {
	d := NewDemultiplexer()
	var wg sync.WaitGroup
	const perGoroutine = 50

	for g := uint64(0); g < 4; g++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			for i := uint64(0); i < perGoroutine; i++ {
				d.Post(Completion{Kind: KindDispatch, HandleID: id, Data: i})
			}
		}(g)
	}
	wg.Wait()

	lastSeenPerHandle := map[uint64]uint64{}
	for i := 0; i < 4*perGoroutine; i++ {
		c, ok := d.PumpOne(false)
		require.True(t, ok)
		seq := c.Data.(uint64)
		last, seen := lastSeenPerHandle[c.HandleID]
		if seen {
			assert.Greater(t, seq, last)
		}
		lastSeenPerHandle[c.HandleID] = seq
	}
}

func TestLenReflectsQueuedCompletions(t *testing.T) {
	d := NewDemultiplexer()
	assert.Equal(t, 0, d.Len())
	d.Post(Completion{Kind: KindDispatch})
	d.Post(Completion{Kind: KindDispatch})
	assert.Equal(t, 2, d.Len())
	d.PumpOne(false)
	assert.Equal(t, 1, d.Len())
}
