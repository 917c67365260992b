package cache

import (
	"sync"

	"github.com/IvanBrykalov/kvserve/internal/util"
)

// shard is an independent partition of the cache with its own lock, map,
// and an intrusive doubly linked list (head=MRU, tail=LRU).
//
// Locking discipline: every mutating operation — including Get, which
// relocates the hit entry to MRU — holds mu exclusively for its full
// duration. The index map and the list are only ever touched together under
// the lock, so they stay mutually consistent.
type shard[K comparable, V any] struct {
	// ---- guarded by mu ----
	mu   sync.RWMutex
	m    map[K]*node[K, V]
	head *node[K, V] // MRU
	tail *node[K, V] // LRU
	len  int         // number of resident entries
	cap  int         // per-shard entry capacity

	opt Options[K, V]

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

// newShard initializes a shard with a per-shard capacity of at least one slot.
func newShard[K comparable, V any](capacity int, opt Options[K, V]) *shard[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &shard[K, V]{
		m:   make(map[K]*node[K, V], capacity),
		cap: capacity,
		opt: opt,
	}
}

// Get returns the value for k and promotes the entry to MRU.
// Promotion mutates the recency list, so the lock is taken exclusively;
// a shared lock here would race with concurrent relocations and evictions.
func (s *shard[K, V]) Get(k K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		var zero V
		return zero, false
	}

	s.moveToFront(n)
	s.hits.Add(1)
	s.opt.Metrics.Hit()
	return n.val, true
}

// Set inserts or updates an entry and promotes it to MRU.
// On insert into a full shard, the current tail is evicted first, so
// len <= cap holds before the insert completes, never only after.
func (s *shard[K, V]) Set(k K, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.m[k]; ok {
		n.val = v
		s.moveToFront(n)
		s.opt.Metrics.Size(s.len)
		return
	}

	if s.len >= s.cap {
		s.evictTail()
	}

	n := &node[K, V]{key: k, val: v}
	s.m[k] = n
	s.insertFront(n)
	s.opt.Metrics.Size(s.len)
}

// Remove deletes an entry by key. Returns true if the entry existed.
// Removing an absent key is a no-op.
func (s *shard[K, V]) Remove(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		return false
	}
	s.removeNode(n)
	delete(s.m, k)
	s.opt.Metrics.Size(s.len)
	return true
}

// Len returns the number of resident entries in this shard.
func (s *shard[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.len
}

// -------------------- internals (mu held) --------------------

// insertFront inserts n at MRU in O(1).
func (s *shard[K, V]) insertFront(n *node[K, V]) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
}

// moveToFront promotes n to MRU in O(1).
func (s *shard[K, V]) moveToFront(n *node[K, V]) {
	if n == s.head {
		return
	}
	// detach
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.tail == n {
		s.tail = n.prev
	}
	// insert at head
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

// removeNode removes n from the list and updates counters in O(1).
func (s *shard[K, V]) removeNode(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.len--
}

// evictTail removes the current LRU entry. Only the tail is ever evicted.
func (s *shard[K, V]) evictTail() {
	n := s.tail
	if n == nil {
		return
	}
	s.removeNode(n)
	delete(s.m, n.key)
	s.evicts.Add(1)
	s.opt.Metrics.Evict()
	if cb := s.opt.OnEvict; cb != nil {
		// Called under the shard lock; callbacks must not call back into
		// the cache.
		cb(n.key, n.val)
	}
}
