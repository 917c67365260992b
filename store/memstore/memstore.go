// Package memstore is an in-memory backing store. It backs the demo binary
// and tests; per-method call counters make cache behavior observable
// (e.g. proving that a second read never reaches the store).
package memstore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/kvserve/store"
)

// Store is a mutex-guarded map shared by every connection handed out by
// Conn. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex
	m  map[int64]string

	// err, when set, is returned by every store operation. Tests use it to
	// simulate backing-store failures.
	err atomic.Value // of error

	lookups atomic.Int64
	upserts atomic.Int64
	deletes atomic.Int64
}

// New returns an empty store.
func New() *Store {
	return &Store{m: make(map[int64]string)}
}

// Conn is a connection-pool factory: it hands out a connection view over
// the shared map. The context is accepted for factory-signature symmetry
// with real stores and is not used.
func (s *Store) Conn(_ context.Context) (store.Conn, error) {
	return &conn{s: s}, nil
}

// Seed writes a pair directly, bypassing counters. Test setup helper.
func (s *Store) Seed(key int64, value string) {
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
}

// Value reads a pair directly, bypassing counters. Test assertion helper.
func (s *Store) Value(key int64) (string, bool) {
	s.mu.RLock()
	v, ok := s.m[key]
	s.mu.RUnlock()
	return v, ok
}

// Len returns the number of persisted records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// FailWith makes every subsequent operation return err. Pass nil to heal.
func (s *Store) FailWith(err error) {
	s.err.Store(&err)
}

func (s *Store) failure() error {
	if p, ok := s.err.Load().(*error); ok && p != nil {
		return *p
	}
	return nil
}

// Lookups returns how many Lookup calls reached the store.
func (s *Store) Lookups() int64 { return s.lookups.Load() }

// Upserts returns how many Upsert calls reached the store.
func (s *Store) Upserts() int64 { return s.upserts.Load() }

// Deletes returns how many Delete calls reached the store.
func (s *Store) Deletes() int64 { return s.deletes.Load() }

type conn struct {
	s *Store
}

func (c *conn) Lookup(_ context.Context, key int64) (string, bool, error) {
	c.s.lookups.Add(1)
	if err := c.s.failure(); err != nil {
		return "", false, err
	}
	c.s.mu.RLock()
	v, ok := c.s.m[key]
	c.s.mu.RUnlock()
	return v, ok, nil
}

func (c *conn) Upsert(_ context.Context, key int64, value string) error {
	c.s.upserts.Add(1)
	if err := c.s.failure(); err != nil {
		return err
	}
	c.s.mu.Lock()
	c.s.m[key] = value
	c.s.mu.Unlock()
	return nil
}

func (c *conn) Delete(_ context.Context, key int64) (int64, error) {
	c.s.deletes.Add(1)
	if err := c.s.failure(); err != nil {
		return 0, err
	}
	c.s.mu.Lock()
	_, ok := c.s.m[key]
	if ok {
		delete(c.s.m, key)
	}
	c.s.mu.Unlock()
	if ok {
		return 1, nil
	}
	return 0, nil
}

func (c *conn) Close() error { return nil }

var _ store.Conn = (*conn)(nil)
