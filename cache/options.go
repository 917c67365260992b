package cache

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict()
	Size(entries int)
}

// Options configures the cache. Zero values are safe; sane defaults are
// applied in New():
//   - Shards <= 0 => auto (≈ 2*GOMAXPROCS, rounded up to a power of two)
//   - nil Metrics => NoopMetrics
type Options[K comparable, V any] struct {
	// Capacity is the total entry count limit, split across shards.
	// Each shard receives at least one slot.
	Capacity int

	// Shards defines the number of shards. Values are rounded up to the next
	// power of two; non-positive values select an automatic count.
	Shards int

	// OnEvict is called for every capacity eviction, under the shard lock.
	// Keep callbacks lightweight.
	OnEvict func(k K, v V)

	// Metrics receives Hit/Miss/Evict/Size signals.
	Metrics Metrics
}
