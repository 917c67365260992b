package cache

import (
	"strconv"
	"testing"
)

// Basic Set/Get/Remove semantics.
func TestCache_BasicSetGetRemove(t *testing.T) {
	t.Parallel()

	c := New[string, int](Options[string, int]{Capacity: 8})
	t.Cleanup(func() { _ = c.Close() })

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get a want 1, got %v ok=%v", v, ok)
	}

	c.Set("a", 11)
	if v, ok := c.Get("a"); !ok || v != 11 {
		t.Fatalf("Get a want 11 after update, got %v ok=%v", v, ok)
	}

	if !c.Remove("a") {
		t.Fatal("Remove a must be true")
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("a must be absent after Remove")
	}
}

// Deterministic LRU eviction: single shard, small capacity.
// Accessing "a" promotes it; inserting "c" evicts LRU ("b").
func TestCache_EvictionLRU(t *testing.T) {
	t.Parallel()

	c := New[string, int](Options[string, int]{
		Capacity: 2,
		Shards:   1, // force a single shard so LRU is global
	})
	t.Cleanup(func() { _ = c.Close() })

	c.Set("a", 1) // LRU = a
	c.Set("b", 2) // MRU = b

	if _, ok := c.Get("a"); !ok { // promote a -> MRU
		t.Fatal("expect hit for a")
	}
	c.Set("c", 3) // overflow -> evict LRU (b)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b must be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a must survive (promoted)")
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Fatal("c must be present")
	}
}

// Inserting capacity+1 distinct keys never exceeds capacity, and the
// least-recently-touched key is the one that disappeared.
func TestCache_CapacityInvariant(t *testing.T) {
	t.Parallel()

	const capacity = 5
	c := New[int64, string](Options[int64, string]{Capacity: capacity, Shards: 1})
	t.Cleanup(func() { _ = c.Close() })

	for i := int64(0); i < capacity+1; i++ {
		c.Set(i, strconv.FormatInt(i, 10))
		if got := c.Len(); got > capacity {
			t.Fatalf("Len %d exceeds capacity %d", got, capacity)
		}
	}

	if _, ok := c.Get(0); ok {
		t.Fatal("key 0 (least recently used) must have been evicted")
	}
	for i := int64(1); i < capacity+1; i++ {
		if _, ok := c.Get(i); !ok {
			t.Fatalf("key %d must still be resident", i)
		}
	}
}

// A zero capacity is coerced to a working single-slot cache, the same way
// every other construction-time size is coerced, instead of failing.
func TestCache_ZeroCapacityCoerced(t *testing.T) {
	t.Parallel()

	c := New[int64, string](Options[int64, string]{Capacity: 0, Shards: 1})
	t.Cleanup(func() { _ = c.Close() })

	c.Set(1, "a")
	if v, ok := c.Get(1); !ok || v != "a" {
		t.Fatalf("Get 1 want a, got %v ok=%v", v, ok)
	}

	c.Set(2, "b") // single slot: inserting 2 evicts 1
	if _, ok := c.Get(1); ok {
		t.Fatal("key 1 must be evicted from a single-slot cache")
	}
	if got := c.Len(); got != 1 {
		t.Fatalf("Len want 1, got %d", got)
	}
}

// Per-shard capacity is max(1, Capacity/Shards): an uneven split rounds
// down, and a capacity smaller than the shard count still gives every shard
// one slot.
func TestCache_PerShardCapacitySplit(t *testing.T) {
	t.Parallel()

	impl := New[int64, string](Options[int64, string]{Capacity: 10, Shards: 4}).(*cache[int64, string])
	t.Cleanup(func() { _ = impl.Close() })
	for i, s := range impl.shards {
		if s.cap != 2 {
			t.Fatalf("shard %d cap want 2, got %d", i, s.cap)
		}
	}

	for k := int64(0); k < 100; k++ {
		impl.Set(k, "v")
	}
	if got := impl.Len(); got > 10 {
		t.Fatalf("Len %d exceeds total capacity 10", got)
	}

	small := New[int64, string](Options[int64, string]{Capacity: 2, Shards: 8}).(*cache[int64, string])
	t.Cleanup(func() { _ = small.Close() })
	for i, s := range small.shards {
		if s.cap != 1 {
			t.Fatalf("shard %d cap want 1, got %d", i, s.cap)
		}
	}
}

// Stats aggregates the per-shard hit/miss/eviction counters.
func TestCache_Stats(t *testing.T) {
	t.Parallel()

	c := New[string, int](Options[string, int]{Capacity: 2, Shards: 1})
	t.Cleanup(func() { _ = c.Close() })

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")    // hit, promotes a
	c.Get("nope") // miss
	c.Set("c", 3) // evicts b

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Evictions != 1 || st.Entries != 2 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

// A key must map to the same shard on every call within one process.
func TestCache_ShardRoutingStable(t *testing.T) {
	t.Parallel()

	impl := New[int64, string](Options[int64, string]{Capacity: 1024, Shards: 8}).(*cache[int64, string])
	t.Cleanup(func() { _ = impl.Close() })

	for k := int64(0); k < 1000; k++ {
		first := impl.getShard(k)
		for i := 0; i < 10; i++ {
			if impl.getShard(k) != first {
				t.Fatalf("key %d routed to different shards across calls", k)
			}
		}
	}
}

// A closed cache ignores operations instead of failing.
func TestCache_ClosedIsInert(t *testing.T) {
	t.Parallel()

	c := New[string, int](Options[string, int]{Capacity: 4})
	c.Set("a", 1)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c.Set("b", 2)
	if _, ok := c.Get("a"); ok {
		t.Fatal("Get on closed cache must miss")
	}
	if c.Remove("a") {
		t.Fatal("Remove on closed cache must be false")
	}
}
