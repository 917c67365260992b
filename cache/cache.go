package cache

import (
	"sync/atomic"

	"github.com/IvanBrykalov/kvserve/internal/util"
)

// cache is a sharded in-memory LRU store.
// All methods are safe for concurrent use by multiple goroutines.
type cache[K comparable, V any] struct {
	shards []*shard[K, V]
	hash   func(K) uint64
	closed atomic.Bool
}

// New constructs a cache with the provided Options.
// Defaults:
//   - nil Metrics    -> NoopMetrics
//   - Shards <= 0    -> auto, rounded up to the next power of two
//   - Capacity <= 0  -> coerced to 1, like every other construction-time size
//
// Each shard is bounded at max(1, Capacity/Shards) entries, so the bound is
// per-shard; with a small Capacity spread over many shards the total can
// exceed Capacity by up to Shards-1 entries.
func New[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	if opt.Capacity <= 0 {
		opt.Capacity = 1
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}

	// number of shards -> power of two
	sh := opt.Shards
	if sh <= 0 {
		sh = util.ReasonableShardCount()
	} else {
		sh = int(util.NextPow2(uint64(sh)))
	}

	cs := make([]*shard[K, V], sh)
	perShardCap := opt.Capacity / sh
	if perShardCap < 1 {
		perShardCap = 1
	}
	for i := 0; i < sh; i++ {
		cs[i] = newShard[K, V](perShardCap, opt)
	}

	return &cache[K, V]{
		shards: cs,
		hash:   util.Fnv64a[K], // fast non-crypto hash for sharding
	}
}

// Set inserts or updates k→v and promotes the entry to MRU.
func (c *cache[K, V]) Set(k K, v V) {
	if c.closed.Load() {
		return
	}
	c.getShard(k).Set(k, v)
}

// Get returns the value for k and a presence flag. On hit the entry
// becomes MRU in its shard.
func (c *cache[K, V]) Get(k K) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	return c.getShard(k).Get(k)
}

// Remove deletes k if present and returns true on success.
func (c *cache[K, V]) Remove(k K) bool {
	if c.closed.Load() {
		return false
	}
	return c.getShard(k).Remove(k)
}

// Len returns the total number of resident entries across all shards.
func (c *cache[K, V]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.Len()
	}
	return total
}

// Stats sums the per-shard counters into one snapshot.
func (c *cache[K, V]) Stats() Stats {
	var st Stats
	for _, s := range c.shards {
		st.Hits += s.hits.Load()
		st.Misses += s.misses.Load()
		st.Evictions += s.evicts.Load()
		st.Entries += s.Len()
	}
	return st
}

// Close marks the cache as closed. Future operations are ignored.
func (c *cache[K, V]) Close() error {
	c.closed.Store(true)
	return nil
}

// getShard picks a shard by hashing the key. The mapping is stable for the
// lifetime of the cache: len(c.shards) is fixed and a power of two.
func (c *cache[K, V]) getShard(k K) *shard[K, V] {
	return c.shards[util.ShardIndex(c.hash(k), len(c.shards))]
}
