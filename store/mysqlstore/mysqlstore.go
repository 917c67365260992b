// Package mysqlstore backs the service with a MySQL table of
// (k BIGINT PRIMARY KEY, v TEXT) pairs.
package mysqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // registers the "mysql" driver

	"github.com/IvanBrykalov/kvserve/store"
)

// Config describes the MySQL backend.
type Config struct {
	// DSN in go-sql-driver format, e.g. "user:pass@tcp(host:3306)/kvstore".
	DSN string

	// Table holds the key/value rows. Defaults to "kv".
	Table string

	// MaxConns caps driver-level connections. Set it to the connection-pool
	// size so the service's own pool is the only place requests queue.
	MaxConns int
}

// Store owns the *sql.DB handle. Individual pooled connections are created
// with Conn, each pinning a dedicated session.
type Store struct {
	db    *sql.DB
	table string
}

// Open validates the config and connects to MySQL. The returned Store is
// safe for concurrent use; the server keeps exactly one.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("mysqlstore: empty DSN")
	}
	if cfg.Table == "" {
		cfg.Table = "kv"
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: open: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysqlstore: ping: %w", err)
	}
	return &Store{db: db, table: cfg.Table}, nil
}

// Conn pins a dedicated session and returns it as a store.Conn.
// It is the factory handed to the connection pool.
func (s *Store) Conn(ctx context.Context) (store.Conn, error) {
	c, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("mysqlstore: conn: %w", err)
	}
	return &conn{c: c, table: s.table}, nil
}

// Close releases the database handle. Pooled connections must be closed
// first (the connection pool does this on teardown).
func (s *Store) Close() error {
	return s.db.Close()
}

type conn struct {
	c     *sql.Conn
	table string
}

func (c *conn) Lookup(ctx context.Context, key int64) (string, bool, error) {
	var v string
	q := fmt.Sprintf("SELECT v FROM `%s` WHERE k = ?", c.table)
	err := c.c.QueryRowContext(ctx, q, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("mysqlstore: lookup: %w", err)
	}
	return v, true, nil
}

func (c *conn) Upsert(ctx context.Context, key int64, value string) error {
	q := fmt.Sprintf(
		"INSERT INTO `%s` (k, v) VALUES (?, ?) ON DUPLICATE KEY UPDATE v = VALUES(v)",
		c.table,
	)
	if _, err := c.c.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("mysqlstore: upsert: %w", err)
	}
	return nil
}

func (c *conn) Delete(ctx context.Context, key int64) (int64, error) {
	q := fmt.Sprintf("DELETE FROM `%s` WHERE k = ?", c.table)
	res, err := c.c.ExecContext(ctx, q, key)
	if err != nil {
		return 0, fmt.Errorf("mysqlstore: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mysqlstore: rows affected: %w", err)
	}
	return n, nil
}

func (c *conn) Close() error { return c.c.Close() }

var _ store.Conn = (*conn)(nil)
