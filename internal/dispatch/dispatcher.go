// Package dispatch implements the callback dispatcher (spec.md §4.7, C8):
// synchronous inline delivery or a bounded-FIFO async worker pool with
// backpressure and panic isolation, grounded on the teacher's worker-pool
// shape in internal/pipeline/pipeline.go's sentence-buffer fan-out.
package dispatch

import (
	"sync"

	"github.com/localmind-ai/ondevice-sdk/internal/ailog"
)

// Callback is a unit of user-supplied work delivered by the dispatcher.
type Callback func()

// Config controls dispatch mode and async pool sizing.
type Config struct {
	Synchronous    bool
	WorkerCount    int
	MaxQueueSize   int
}

// DefaultConfig returns a single-worker async dispatcher with a 256-item queue.
func DefaultConfig() Config {
	return Config{Synchronous: false, WorkerCount: 1, MaxQueueSize: 256}
}

// Dispatcher delivers callbacks either inline on the caller goroutine or on
// a dedicated worker pool reading from a bounded channel.
type Dispatcher struct {
	mu      sync.Mutex
	cfg     Config
	queue   chan Callback
	wg      sync.WaitGroup
	closeCh chan struct{}
}

// New constructs and starts a dispatcher under cfg.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{cfg: cfg}
	if !cfg.Synchronous {
		d.startWorkers()
	}
	return d
}

func (d *Dispatcher) startWorkers() {
	qsize := d.cfg.MaxQueueSize
	if qsize <= 0 {
		qsize = 1
	}
	d.queue = make(chan Callback, qsize)
	d.closeCh = make(chan struct{})

	workers := d.cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.workerLoop()
	}
}

func (d *Dispatcher) workerLoop() {
	defer d.wg.Done()
	for {
		select {
		case cb, ok := <-d.queue:
			if !ok {
				return
			}
			runSafely(cb)
		case <-d.closeCh:
			// Drain remaining queued work before exiting.
			for {
				select {
				case cb, ok := <-d.queue:
					if !ok {
						return
					}
					runSafely(cb)
				default:
					return
				}
			}
		}
	}
}

func runSafely(cb Callback) {
	defer func() {
		if r := recover(); r != nil {
			ailog.Error("dispatcher callback panicked", "panic", r)
		}
	}()
	cb()
}

// Dispatch delivers cb per the configured mode. In synchronous mode it
// blocks until cb completes and always returns true. In async mode it
// enqueues and returns immediately; it returns false if the queue is full
// (the caller must handle the backpressure signal; Dispatch itself does
// not retry).
func (d *Dispatcher) Dispatch(cb Callback) bool {
	d.mu.Lock()
	isSync := d.cfg.Synchronous
	queue := d.queue
	d.mu.Unlock()

	if isSync {
		runSafely(cb)
		return true
	}

	select {
	case queue <- cb:
		return true
	default:
		return false
	}
}

// Reconfigure drains pending work, joins the worker pool, then applies
// newCfg and restarts if async.
func (d *Dispatcher) Reconfigure(newCfg Config) {
	d.mu.Lock()
	wasAsync := !d.cfg.Synchronous
	d.mu.Unlock()

	if wasAsync {
		d.stopWorkers()
	}

	d.mu.Lock()
	d.cfg = newCfg
	d.mu.Unlock()

	if !newCfg.Synchronous {
		d.startWorkers()
	}
}

func (d *Dispatcher) stopWorkers() {
	d.mu.Lock()
	queue := d.queue
	closeCh := d.closeCh
	d.mu.Unlock()

	if closeCh != nil {
		close(closeCh)
	}
	if queue != nil {
		close(queue)
	}
	d.wg.Wait()
}

// Shutdown waits for every already-enqueued item to run to completion, then
// stops the pool. Idempotent in spirit: safe to call once at teardown.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	isSync := d.cfg.Synchronous
	d.mu.Unlock()
	if isSync {
		return
	}
	d.stopWorkers()
}
