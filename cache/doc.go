// Package cache provides a generic, sharded, capacity-bounded LRU cache.
//
// Design
//
//   - Concurrency: the cache is split into shards, each protected by its own
//     lock. A key always maps to the same shard (FNV-1a hash masked by the
//     shard count, which is a power of two), so operations on keys in
//     different shards never contend.
//
//   - Storage: each shard keeps a map[K]*node for lookups and an intrusive
//     MRU↔LRU doubly linked list for recency ordering. All operations are
//     O(1) expected: one map access plus a constant number of pointer fixes.
//
//   - Locking: Get promotes the entry to MRU, which mutates the shard's list.
//     Every shard operation therefore takes the lock in exclusive mode; there
//     is no "read-only" cache operation. Len is the only shared-mode reader.
//
//   - Eviction: strict LRU. When a shard is full, the current tail (least
//     recently used) is removed before the new entry is inserted, so a shard
//     never holds more than its capacity.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size signals.
//     NoopMetrics is the default; metrics/prom provides a Prometheus adapter.
//
// Basic usage
//
//	c := cache.New[int64, string](cache.Options[int64, string]{Capacity: 10_000})
//	c.Set(7, "v")
//	if v, ok := c.Get(7); ok {
//	    _ = v
//	}
//	c.Remove(7)
package cache
