// Package store defines the backing-store contract the service persists
// through. The store is the durable source of truth; the cache in front of
// it must never permanently contradict it.
package store

import "context"

// Conn is a single backing-store connection. A Conn is not safe for
// concurrent use; ownership is handed out by the connection pool, one
// holder at a time.
type Conn interface {
	// Lookup performs a point read by key. The boolean reports presence;
	// absence is not an error.
	Lookup(ctx context.Context, key int64) (string, bool, error)

	// Upsert inserts the pair or replaces the value of an existing key.
	// Atomic per key.
	Upsert(ctx context.Context, key int64, value string) error

	// Delete removes the key if present and returns the number of records
	// actually removed (0 or 1).
	Delete(ctx context.Context, key int64) (int64, error)

	// Close releases the underlying connection.
	Close() error
}
