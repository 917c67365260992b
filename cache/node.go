package cache

// node is an intrusive doubly linked list element owned by a shard.
// It must only be touched while the owning shard's lock is held.
type node[K comparable, V any] struct {
	key K
	val V

	// Intrusive list links: head is MRU, tail is LRU.
	prev *node[K, V]
	next *node[K, V]
}
