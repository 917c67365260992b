// Package kv implements the per-operation consistency protocol that ties the
// sharded cache and the backing store together: cache-aside reads,
// write-through puts, and invalidate-on-delete.
//
// Consistency contract: read-after-write for deletes (a delete's cache
// invalidation happens strictly after the store confirms the removal);
// best-effort freshness otherwise. The cache and store are independently
// mutable — a read racing a write to the same key may populate the cache
// with either value, and the window closes when the entry is next written
// or evicted. There is no transaction spanning both tiers.
package kv

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/IvanBrykalov/kvserve/cache"
	"github.com/IvanBrykalov/kvserve/connpool"
	"github.com/IvanBrykalov/kvserve/dispatch"
	"github.com/IvanBrykalov/kvserve/internal/singleflight"
	"github.com/IvanBrykalov/kvserve/store"
)

const (
	opRead   = "read"
	opWrite  = "write"
	opDelete = "delete"
)

// Config wires a Service. Cache, Pool and Workers are required; they are
// long-lived process resources owned by the caller and shared by all
// requests.
type Config struct {
	Cache   cache.Cache[int64, string]
	Pool    *connpool.Pool[store.Conn]
	Workers *dispatch.Pool

	Logger  log.Logger
	Metrics *Metrics

	// AcquireTimeout bounds the wait for a pooled connection. Zero preserves
	// the default contract: block until a connection is released. When set,
	// expiry surfaces as StatusUnavailable.
	AcquireTimeout time.Duration
}

// Service executes read/write/delete requests. It holds no per-request
// state; all methods are safe for concurrent use.
type Service struct {
	cache   cache.Cache[int64, string]
	pool    *connpool.Pool[store.Conn]
	workers *dispatch.Pool
	logger  log.Logger
	metrics *Metrics

	acquireTimeout time.Duration

	// reads coalesces concurrent cache misses for the same key into one
	// store lookup.
	reads singleflight.Group[int64, lookup]
}

type lookup struct {
	val   string
	found bool
}

// NewService validates cfg and returns a ready Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Cache == nil {
		return nil, errors.New("kv: Config.Cache is required")
	}
	if cfg.Pool == nil {
		return nil, errors.New("kv: Config.Pool is required")
	}
	if cfg.Workers == nil {
		return nil, errors.New("kv: Config.Workers is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Service{
		cache:          cfg.Cache,
		pool:           cfg.Pool,
		workers:        cfg.Workers,
		logger:         logger,
		metrics:        cfg.Metrics,
		acquireTimeout: cfg.AcquireTimeout,
	}, nil
}

// Read serves a GET: cache first, store on miss, best-effort populate.
// A hit never touches the pool or the store.
func (s *Service) Read(ctx context.Context, key string) Result {
	k, err := parseKey(key)
	if err != nil {
		return s.finish(opRead, Result{Status: StatusBadRequest, Err: err})
	}

	if v, ok := s.cache.Get(k); ok {
		return s.finish(opRead, Result{Status: StatusOK, Value: v})
	}

	// Miss: one store lookup per key, shared by concurrent missers.
	lv, err := s.reads.Do(ctx, k, func() (lookup, error) {
		lv, err := storeOp(ctx, s, opRead, func(ctx context.Context, c store.Conn) (lookup, error) {
			v, found, err := c.Lookup(ctx, k)
			if err != nil {
				return lookup{}, err
			}
			return lookup{val: v, found: found}, nil
		})
		if err != nil {
			return lookup{}, err
		}
		if lv.found {
			// Best-effort populate: may briefly shadow a concurrent write
			// with the value this lookup observed.
			s.cache.Set(k, lv.val)
		}
		return lv, nil
	})
	if err != nil {
		return s.finish(opRead, s.fail(opRead, k, err))
	}
	if !lv.found {
		return s.finish(opRead, Result{Status: StatusNotFound})
	}
	return s.finish(opRead, Result{Status: StatusOK, Value: lv.val})
}

// Write serves a PUT: write-through, store first. The cache is updated only
// after the store confirms the upsert; on store failure the cache is left
// untouched.
func (s *Service) Write(ctx context.Context, key, value string) Result {
	k, err := parseKey(key)
	if err != nil {
		return s.finish(opWrite, Result{Status: StatusBadRequest, Err: err})
	}
	if value == "" {
		return s.finish(opWrite, Result{Status: StatusBadRequest, Err: ErrMissingValue})
	}

	_, err = storeOp(ctx, s, opWrite, func(ctx context.Context, c store.Conn) (struct{}, error) {
		return struct{}{}, c.Upsert(ctx, k, value)
	})
	if err != nil {
		return s.finish(opWrite, s.fail(opWrite, k, err))
	}

	s.cache.Set(k, value)
	return s.finish(opWrite, Result{Status: StatusOK})
}

// Delete serves a DELETE: store first, then mandatory cache invalidation.
// A stale entry for a key the store has forgotten must never outlive this
// handler.
func (s *Service) Delete(ctx context.Context, key string) Result {
	k, err := parseKey(key)
	if err != nil {
		return s.finish(opDelete, Result{Status: StatusBadRequest, Err: err})
	}

	rows, err := storeOp(ctx, s, opDelete, func(ctx context.Context, c store.Conn) (int64, error) {
		return c.Delete(ctx, k)
	})
	if err != nil {
		return s.finish(opDelete, s.fail(opDelete, k, err))
	}
	if rows == 0 {
		// Key never existed; nothing to invalidate.
		return s.finish(opDelete, Result{Status: StatusNotFound})
	}

	s.cache.Remove(k)
	return s.finish(opDelete, Result{Status: StatusOK})
}

// storeOp runs fn on a pooled connection via the work dispatcher. Every
// backing-store call in this package goes through here — no handler bypasses
// the dispatcher. The connection is released on every path before the error
// propagates.
func storeOp[T any](ctx context.Context, s *Service, op string, fn func(ctx context.Context, c store.Conn) (T, error)) (T, error) {
	start := time.Now()
	defer func() { s.metrics.observeStoreOp(op, time.Since(start)) }()

	fut, err := dispatch.Submit(s.workers, ctx, func(ctx context.Context) (T, error) {
		acquireCtx := ctx
		cancel := context.CancelFunc(func() {})
		if s.acquireTimeout > 0 {
			acquireCtx, cancel = context.WithTimeout(ctx, s.acquireTimeout)
		}
		conn, err := s.pool.Acquire(acquireCtx)
		cancel()
		if err != nil {
			var zero T
			return zero, err
		}
		defer s.pool.Release(conn)
		return fn(ctx, conn)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return fut.Wait(ctx)
}

// fail maps a store-layer error to a Result and logs it. No retry happens
// here; retry policy belongs to the client. A canceled request context (the
// client went away) is not an internal error and is logged quietly.
func (s *Service) fail(op string, key int64, err error) Result {
	st := StatusInternal
	if errors.Is(err, connpool.ErrClosed) ||
		errors.Is(err, dispatch.ErrShutdown) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		st = StatusUnavailable
	}
	logf := level.Error(s.logger)
	if errors.Is(err, context.Canceled) {
		logf = level.Debug(s.logger)
	}
	logf.Log("msg", "store operation failed", "op", op, "key", key, "err", err)
	return Result{Status: st, Err: err}
}

func (s *Service) finish(op string, res Result) Result {
	s.metrics.observeRequest(op, res.Status)
	return res
}

// parseKey validates the key before any lock or connection is touched.
func parseKey(key string) (int64, error) {
	if key == "" {
		return 0, ErrMissingKey
	}
	k, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, ErrBadKey
	}
	return k, nil
}
