package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/m0/vm"
)

// ErrWorkerStopped is returned by Do once the worker has been stopped.
var ErrWorkerStopped = errors.New("session worker stopped")

// workRequest represents a unit of work to be executed on the session goroutine.
type workRequest struct {
	fn   func(*vm.Debugger) any
	done chan workResult
}

// workResult holds the return value from a debugger operation.
type workResult struct {
	value any
	err   error
}

// VMWorker serializes all access to one session's frame through a single
// goroutine. A frame may only be driven by one goroutine at a time; all
// handlers for the session go through its worker.
type VMWorker struct {
	dbg      *vm.Debugger
	requests chan workRequest
	quit     chan struct{}
	stopOnce sync.Once
}

// NewVMWorker creates a VMWorker and starts the processing goroutine.
func NewVMWorker(d *vm.Debugger) *VMWorker {
	w := &VMWorker{
		dbg:      d,
		requests: make(chan workRequest, 16),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *VMWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function against the debugger, recovering from panics.
func (w *VMWorker) execute(fn func(*vm.Debugger) any) workResult {
	var result workResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("%v", r)
			}
		}()
		result.value = fn(w.dbg)
	}()
	return result
}

// Do submits a function for execution on the session goroutine and blocks
// until it completes, the context is done, or the worker stops.
func (w *VMWorker) Do(ctx context.Context, fn func(*vm.Debugger) any) (any, error) {
	select {
	case <-w.quit:
		return nil, ErrWorkerStopped
	default:
	}

	req := workRequest{
		fn:   fn,
		done: make(chan workResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts down the worker goroutine. It is safe to call more than once.
func (w *VMWorker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
