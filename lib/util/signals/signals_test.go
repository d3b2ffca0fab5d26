package signals

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHandlers(t *testing.T) {
	mu.Lock()
	savedR, savedI := reloaders, interrupters
	reloaders, interrupters = nil, nil
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		reloaders, interrupters = savedR, savedI
		mu.Unlock()
	})
}

func TestHandlersRunInOrder(t *testing.T) {
	resetHandlers(t)

	var order []int
	RegisterInterruptHandler(func() { order = append(order, 1) })
	RegisterInterruptHandler(nil)
	RegisterInterruptHandler(func() { order = append(order, 2) })

	handleInterrupted()
	assert.Equal(t, []int{1, 2}, order)
}

func TestReloadSeparateFromInterrupt(t *testing.T) {
	resetHandlers(t)

	var reloads, interrupts atomic.Int32
	RegisterReloadHandler(func() { reloads.Add(1) })
	RegisterInterruptHandler(func() { interrupts.Add(1) })

	handleReload()
	assert.Equal(t, int32(1), reloads.Load())
	assert.Zero(t, interrupts.Load())
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	resetHandlers(t)

	var called atomic.Bool
	RegisterInterruptHandler(func() { panic("boom") })
	RegisterInterruptHandler(func() { called.Store(true) })

	require.NotPanics(t, handleInterrupted)
	assert.True(t, called.Load())
}

func TestHandleDispatchesUntilStopped(t *testing.T) {
	resetHandlers(t)

	got := make(chan struct{}, 1)
	RegisterInterruptHandler(func() { got <- struct{}{} })

	done := make(chan struct{})
	go func() {
		Handle()
		close(done)
	}()

	sigChan <- os.Interrupt
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("interrupt handler not called")
	}

	StopHandle()
	StopHandle()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Handle did not return")
	}
}
