package kv_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/kvserve/cache"
	"github.com/IvanBrykalov/kvserve/connpool"
	"github.com/IvanBrykalov/kvserve/dispatch"
	"github.com/IvanBrykalov/kvserve/kv"
	"github.com/IvanBrykalov/kvserve/store"
	"github.com/IvanBrykalov/kvserve/store/memstore"
)

type fixture struct {
	svc   *kv.Service
	st    *memstore.Store
	cache cache.Cache[int64, string]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	c := cache.New[int64, string](cache.Options[int64, string]{Capacity: 64, Shards: 1})
	st := memstore.New()

	pool, err := connpool.New(context.Background(), 2, connpool.Factory[store.Conn](st.Conn), nil)
	require.NoError(t, err)

	disp := dispatch.New(2, 16)

	svc, err := kv.NewService(kv.Config{
		Cache:   c,
		Pool:    pool,
		Workers: disp,
		Metrics: kv.NewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		disp.Shutdown()
		pool.Close()
		_ = c.Close()
	})
	return &fixture{svc: svc, st: st, cache: c}
}

// Malformed input is rejected before any cache or store access.
func TestRead_BadKey(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	res := f.svc.Read(ctx, "abc")
	require.Equal(t, kv.StatusBadRequest, res.Status)
	require.ErrorIs(t, res.Err, kv.ErrBadKey)

	res = f.svc.Read(ctx, "")
	require.Equal(t, kv.StatusBadRequest, res.Status)
	require.ErrorIs(t, res.Err, kv.ErrMissingKey)

	require.Zero(t, f.st.Lookups())
	require.Zero(t, f.cache.Len())
}

// A miss loads from the store and populates the cache; the second read is
// served purely from cache — no further store lookup is observed.
func TestRead_PopulatesCache(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.st.Seed(5, "x")

	res := f.svc.Read(ctx, "5")
	require.Equal(t, kv.StatusOK, res.Status)
	require.Equal(t, "x", res.Value)
	require.EqualValues(t, 1, f.st.Lookups())

	res = f.svc.Read(ctx, "5")
	require.Equal(t, kv.StatusOK, res.Status)
	require.Equal(t, "x", res.Value)
	require.EqualValues(t, 1, f.st.Lookups(), "second read must not reach the store")
}

// A miss on an absent key reports not_found and caches nothing.
func TestRead_NotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	res := f.svc.Read(ctx, "99")
	require.Equal(t, kv.StatusNotFound, res.Status)
	require.Zero(t, f.cache.Len(), "not-found must not populate the cache")

	// Absence is not cached: the next read consults the store again.
	f.svc.Read(ctx, "99")
	require.EqualValues(t, 2, f.st.Lookups())
}

// Write-through: the store confirms first, then the cache is updated; a read
// immediately after is a cache hit with the written value.
func TestWrite_WriteThrough(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	res := f.svc.Write(ctx, "7", "y")
	require.Equal(t, kv.StatusOK, res.Status)

	v, ok := f.st.Value(7)
	require.True(t, ok)
	require.Equal(t, "y", v)

	res = f.svc.Read(ctx, "7")
	require.Equal(t, kv.StatusOK, res.Status)
	require.Equal(t, "y", res.Value)
	require.Zero(t, f.st.Lookups(), "read after write must be served from cache")
}

func TestWrite_BadInput(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	res := f.svc.Write(ctx, "7", "")
	require.Equal(t, kv.StatusBadRequest, res.Status)
	require.ErrorIs(t, res.Err, kv.ErrMissingValue)

	res = f.svc.Write(ctx, "x", "v")
	require.Equal(t, kv.StatusBadRequest, res.Status)

	require.Zero(t, f.st.Upserts())
	require.Zero(t, f.cache.Len())
}

// A failed store write leaves the cache untouched: the pre-write value
// remains readable, the failed value never appears.
func TestWrite_StoreFailureLeavesCache(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	require.Equal(t, kv.StatusOK, f.svc.Write(ctx, "7", "old").Status)

	boom := errors.New("disk full")
	f.st.FailWith(boom)
	res := f.svc.Write(ctx, "7", "new")
	require.Equal(t, kv.StatusInternal, res.Status)
	require.ErrorIs(t, res.Err, boom)

	f.st.FailWith(nil)
	res = f.svc.Read(ctx, "7")
	require.Equal(t, kv.StatusOK, res.Status)
	require.Equal(t, "old", res.Value, "cache must still hold the pre-failure value")
}

// Delete removes the record and invalidates the cache: the entry held
// immediately before the delete is not observable afterwards.
func TestDelete_Invalidates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	require.Equal(t, kv.StatusOK, f.svc.Write(ctx, "9", "z").Status)
	require.Equal(t, 1, f.cache.Len())

	res := f.svc.Delete(ctx, "9")
	require.Equal(t, kv.StatusOK, res.Status)
	require.Zero(t, f.cache.Len())

	res = f.svc.Read(ctx, "9")
	require.Equal(t, kv.StatusNotFound, res.Status)
}

// Deleting a key that never existed reports not_found and touches nothing.
func TestDelete_Absent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	res := f.svc.Delete(ctx, "42")
	require.Equal(t, kv.StatusNotFound, res.Status)
	require.EqualValues(t, 1, f.st.Deletes())
	require.Zero(t, f.cache.Len())
}

// A store-level delete failure surfaces as internal and leaves the cache
// entry in place (the record still exists).
func TestDelete_StoreFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	require.Equal(t, kv.StatusOK, f.svc.Write(ctx, "3", "v").Status)

	f.st.FailWith(errors.New("lock wait timeout"))
	res := f.svc.Delete(ctx, "3")
	require.Equal(t, kv.StatusInternal, res.Status)

	f.st.FailWith(nil)
	require.Equal(t, 1, f.cache.Len(), "failed delete must not invalidate")
}

// With the pool closed there is no backing-store capacity: misses and writes
// degrade to unavailable, but cache hits keep being served.
func TestUnavailableAfterPoolClose(t *testing.T) {
	t.Parallel()

	c := cache.New[int64, string](cache.Options[int64, string]{Capacity: 16, Shards: 1})
	st := memstore.New()
	pool, err := connpool.New(context.Background(), 1, connpool.Factory[store.Conn](st.Conn), nil)
	require.NoError(t, err)
	disp := dispatch.New(1, 8)
	t.Cleanup(func() {
		disp.Shutdown()
		_ = c.Close()
	})

	svc, err := kv.NewService(kv.Config{Cache: c, Pool: pool, Workers: disp})
	require.NoError(t, err)

	ctx := context.Background()
	require.Equal(t, kv.StatusOK, svc.Write(ctx, "1", "v").Status)

	pool.Close()

	require.Equal(t, kv.StatusOK, svc.Read(ctx, "1").Status, "cache hit needs no connection")
	require.Equal(t, kv.StatusUnavailable, svc.Read(ctx, "2").Status)
	require.Equal(t, kv.StatusUnavailable, svc.Write(ctx, "2", "v").Status)
	require.Equal(t, kv.StatusUnavailable, svc.Delete(ctx, "1").Status)
}

// A store call aborted by request-context cancellation (the client went
// away) degrades to unavailable rather than counting as an internal error.
func TestStoreErrorMapping_ContextCanceled(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.st.FailWith(context.Canceled)

	res := f.svc.Read(ctx, "1")
	require.Equal(t, kv.StatusUnavailable, res.Status)
	require.ErrorIs(t, res.Err, context.Canceled)

	res = f.svc.Write(ctx, "1", "v")
	require.Equal(t, kv.StatusUnavailable, res.Status)

	res = f.svc.Delete(ctx, "1")
	require.Equal(t, kv.StatusUnavailable, res.Status)
}

// Concurrent misses for one key settle into a cached value; once populated,
// further reads never reach the store.
func TestRead_ConcurrentMisses(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.st.Seed(11, "shared")

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			res := f.svc.Read(ctx, "11")
			if res.Status != kv.StatusOK || res.Value != "shared" {
				return errors.New("unexpected read result")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	before := f.st.Lookups()
	require.GreaterOrEqual(t, before, int64(1))

	f.svc.Read(ctx, "11")
	require.Equal(t, before, f.st.Lookups(), "populated key must be a pure cache hit")
}
