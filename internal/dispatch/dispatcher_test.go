package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_SynchronousRunsInline(t *testing.T) {
	d := New(Config{Synchronous: true})
	defer d.Shutdown()

	ran := false
	ok := d.Dispatch(func() { ran = true })
	assert.True(t, ok)
	assert.True(t, ran, "synchronous dispatch must have already run by the time Dispatch returns")
}

func TestDispatch_AsyncRunsEventually(t *testing.T) {
	d := New(Config{Synchronous: false, WorkerCount: 1, MaxQueueSize: 4})
	defer d.Shutdown()

	var ran atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	ok := d.Dispatch(func() {
		ran.Store(true)
		wg.Done()
	})
	require.True(t, ok)

	waitOrTimeout(t, &wg, time.Second)
	assert.True(t, ran.Load())
}

func TestDispatch_BackpressureReturnsFalseWhenFull(t *testing.T) {
	block := make(chan struct{})
	d := New(Config{Synchronous: false, WorkerCount: 1, MaxQueueSize: 1})
	defer func() {
		close(block)
		d.Shutdown()
	}()

	// First callback occupies the sole worker, blocking on `block`.
	require.True(t, d.Dispatch(func() { <-block }))
	// Second fills the size-1 queue.
	require.True(t, d.Dispatch(func() { <-block }))
	// Third has nowhere to go.
	assert.False(t, d.Dispatch(func() {}))
}

func TestDispatch_PanicIsolated(t *testing.T) {
	d := New(Config{Synchronous: false, WorkerCount: 1, MaxQueueSize: 4})
	defer d.Shutdown()

	var wg sync.WaitGroup
	wg.Add(1)
	d.Dispatch(func() { panic("boom") })
	d.Dispatch(func() { wg.Done() })

	waitOrTimeout(t, &wg, time.Second) // worker must survive the panic and keep processing
}

func TestShutdown_DrainsQueuedWork(t *testing.T) {
	d := New(Config{Synchronous: false, WorkerCount: 1, MaxQueueSize: 4})

	var count atomic.Int32
	for i := 0; i < 3; i++ {
		d.Dispatch(func() { count.Add(1) })
	}
	d.Shutdown()

	assert.Equal(t, int32(3), count.Load())
}

func TestReconfigure_SwitchesMode(t *testing.T) {
	d := New(Config{Synchronous: false, WorkerCount: 1, MaxQueueSize: 4})
	defer d.Shutdown()

	d.Reconfigure(Config{Synchronous: true})

	ran := false
	d.Dispatch(func() { ran = true })
	assert.True(t, ran)
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for dispatched work")
	}
}
