// Package dispatch runs submitted backing-store operations on a fixed pool
// of worker goroutines, returning a Future the submitter can wait on.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrShutdown is returned by Submit after Shutdown has been called.
var ErrShutdown = errors.New("dispatch: pool is shut down")

// Pool is a fixed-size worker pool draining a shared FIFO queue.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.RWMutex // guards closed against concurrent Submit/Shutdown
	closed bool
}

// New starts workers goroutines draining a queue of queueDepth slots.
// Non-positive values are coerced to 1. When the queue is full, Submit
// blocks the submitter until a worker frees a slot.
func New(workers, queueDepth int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	p := &Pool{tasks: make(chan func(), queueDepth)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	// Range drains whatever remains after the queue is closed, so queued
	// work always completes before Shutdown returns.
	for t := range p.tasks {
		t()
	}
}

// Shutdown stops intake, waits for workers to drain the remaining queue,
// and joins them. Idempotent.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// submit enqueues t, blocking while the queue is full.
func (p *Pool) submit(t func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrShutdown
	}
	p.tasks <- t
	return nil
}

// Future is a single-assignment result cell for one submitted operation.
// The result is published before done is closed, so any Wait that returns
// after <-done observes the final value.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Wait blocks until the operation completes or ctx is done. Cancelling ctx
// abandons the wait only; the operation itself runs to completion.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit enqueues fn and returns a Future for its result. The worker runs
// fn with the submitter's ctx. A panic inside fn resolves the Future with
// an error instead of killing the worker.
func Submit[T any](p *Pool, ctx context.Context, fn func(ctx context.Context) (T, error)) (*Future[T], error) {
	f := &Future[T]{done: make(chan struct{})}
	err := p.submit(func() {
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("dispatch: task panic: %v", r)
			}
			close(f.done)
		}()
		f.val, f.err = fn(ctx)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}
