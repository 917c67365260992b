// Package connpool provides a bounded pool of backing-store connections
// with blocking acquire/release semantics.
package connpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrClosed is returned by Acquire after the pool has been closed.
var ErrClosed = errors.New("connpool: pool is closed")

// Conn is the minimal contract pooled connections must satisfy.
type Conn interface {
	Close() error
}

// Factory establishes one live connection.
type Factory[C Conn] func(ctx context.Context) (C, error)

// Pool is a bounded multiset of connections. At most size connections are
// checked out concurrently; Acquire blocks until one is returned. Every
// acquired connection must be Released by its holder — the pool does not
// reclaim leaked connections, and a leak starves waiters by construction.
//
// Connections are created once at construction and closed only at teardown,
// never per request.
type Pool[C Conn] struct {
	conns chan C
	done  chan struct{}
	size  int

	metrics *Metrics

	mu     sync.Mutex // guards closed and the Release/Close transition
	closed bool
}

// New establishes size live connections eagerly. If any connection cannot be
// established, the already-opened ones are closed and construction fails
// entirely. A non-positive size is coerced to 1.
func New[C Conn](ctx context.Context, size int, factory Factory[C], m *Metrics) (*Pool[C], error) {
	if size < 1 {
		size = 1
	}
	p := &Pool[C]{
		conns:   make(chan C, size),
		done:    make(chan struct{}),
		size:    size,
		metrics: m,
	}
	for i := 0; i < size; i++ {
		c, err := factory(ctx)
		if err != nil {
			for len(p.conns) > 0 {
				_ = (<-p.conns).Close()
			}
			return nil, fmt.Errorf("connpool: establish connection %d/%d: %w", i+1, size, err)
		}
		p.conns <- c
	}
	m.setIdle(size)
	return p, nil
}

// Size returns the pool capacity.
func (p *Pool[C]) Size() int { return p.size }

// Acquire blocks the caller until a connection is available, then removes it
// from the pool and returns it. It fails only when the pool is closed
// (ErrClosed) or ctx is done (ctx.Err()). With a background context this is
// an unbounded wait; callers wanting a bound must pass a context deadline.
//
// Waiters are woken in no particular order (not strictly FIFO).
func (p *Pool[C]) Acquire(ctx context.Context) (C, error) {
	start := time.Now()

	// Fast path: a connection is idle right now.
	select {
	case c := <-p.conns:
		p.metrics.acquired(time.Since(start))
		return c, nil
	default:
	}

	select {
	case c := <-p.conns:
		p.metrics.acquired(time.Since(start))
		return c, nil
	case <-p.done:
		var zero C
		return zero, ErrClosed
	case <-ctx.Done():
		var zero C
		return zero, ctx.Err()
	}
}

// Release returns the connection to the pool and wakes one waiting acquirer.
// Releasing into a closed pool closes the connection instead.
func (p *Pool[C]) Release(c C) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = c.Close()
		return
	}
	// Buffered to capacity; with single-release discipline this never blocks.
	p.conns <- c
	p.mu.Unlock()
	p.metrics.released()
}

// Close closes every idle connection and makes further Acquire calls fail
// with ErrClosed. Connections still checked out are closed as their holders
// Release them. Close is idempotent.
func (p *Pool[C]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	for {
		select {
		case c := <-p.conns:
			_ = c.Close()
		default:
			p.metrics.setIdle(0)
			return
		}
	}
}
