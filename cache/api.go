package cache

// Cache is a sharded, in-memory key/value cache interface.
// All methods are safe for concurrent use by multiple goroutines.
//
// Typical complexity for operations is amortized O(1):
// a map lookup plus constant-time list adjustments under a shard lock.
type Cache[K comparable, V any] interface {
	// Set inserts or updates k→v and promotes the entry to MRU.
	// If the owning shard is full, its LRU entry is evicted first.
	Set(k K, v V)

	// Get returns the value for k and a boolean flag indicating presence.
	// On hit, the entry is promoted to MRU.
	Get(k K) (V, bool)

	// Remove deletes k if present and returns true on success.
	// Removing an absent key is a no-op and returns false.
	Remove(k K) bool

	// Len returns the total number of resident entries across all shards.
	Len() int

	// Stats returns a snapshot of the hit/miss/eviction counters summed
	// across all shards.
	Stats() Stats

	// Close marks the cache as closed. Future operations are ignored.
	Close() error
}

// Stats is a point-in-time aggregate of the per-shard counters. The counters
// are read shard by shard without a global lock, so under concurrent traffic
// the snapshot is approximate.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions uint64
	Entries   int
}
