package praktor

import (
	"testing"

	"github.com/edgeofmagic/praktor/internal/reactorcore"
	"github.com/stretchr/testify/assert"
)

func TestHandleStateTransitionsToActive(t *testing.T) {
	l := Create()
	h := newHandle(l, "test")
	assert.Equal(t, StateInitialized, h.currentState())
	h.setActive()
	assert.Equal(t, StateActive, h.currentState())
}

func TestBeginCloseIsOneShot(t *testing.T) {
	l := Create()
	h := newHandle(l, "test")
	h.setActive()
	assert.True(t, h.beginClose(nil))
	assert.False(t, h.beginClose(nil))
	assert.Equal(t, StateClosing, h.currentState())
}

func TestFinishCloseInvokesCallbackOnce(t *testing.T) {
	l := Create()
	h := newHandle(l, "test")
	l.addHandle(&fakeRegistrant{h: h})
	calls := 0
	h.beginClose(func(error) { calls++ })
	h.finishClose(nil)
	h.finishClose(nil)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateClosed, h.currentState())
}

func TestFinishCloseRemovesHandleFromLoop(t *testing.T) {
	l := Create()
	h := newHandle(l, "test")
	fr := &fakeRegistrant{h: h}
	l.addHandle(fr)
	assert.Equal(t, 1, l.handleCount())
	h.finishClose(nil)
	assert.Equal(t, 0, l.handleCount())
}

type fakeRegistrant struct{ h *handle }

func (f *fakeRegistrant) handleID() uint64                 { return f.h.id }
func (f *fakeRegistrant) deliver(c reactorcore.Completion) {}
func (f *fakeRegistrant) forceClose()                      {}
func (f *fakeRegistrant) isClosing() bool                  { return f.h.isClosing() }
