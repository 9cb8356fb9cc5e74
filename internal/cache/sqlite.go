package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_kv_expires ON kv(expires_at);`

// SQLiteCache persists values in a local SQLite file. Expired rows are
// ignored on read and removed by Sweep.
type SQLiteCache struct {
	db         *sql.DB
	defaultTTL time.Duration
	now        func() time.Time
}

// OpenSQLiteCache opens (or creates) the cache database at path
func OpenSQLiteCache(path string, defaultTTL time.Duration) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer avoids SQLITE_BUSY under concurrent pipeline runs
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteCache{db: db, defaultTTL: defaultTTL, now: time.Now}, nil
}

func (c *SQLiteCache) expiry(ttl time.Duration) int64 {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.now().Add(ttl).UnixMilli()
}

// Get retrieves an unexpired value
func (c *SQLiteCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var val []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ? AND expires_at > ?`, key, c.now().UnixMilli()).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	return val, true, nil
}

// Set upserts a value
func (c *SQLiteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, c.expiry(ttl))
	if err != nil {
		return fmt.Errorf("sqlite set %s: %w", key, err)
	}
	return nil
}

// SetNX inserts only when the key is absent or expired
func (c *SQLiteCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
		 WHERE kv.expires_at <= ?`,
		key, value, c.expiry(ttl), c.now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("sqlite setnx %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite setnx %s: %w", key, err)
	}
	return n > 0, nil
}

// Exists reports whether an unexpired value is present
func (c *SQLiteCache) Exists(ctx context.Context, key string) (bool, error) {
	_, found, err := c.Get(ctx, key)
	return found, err
}

// GetMany retrieves all present keys
func (c *SQLiteCache) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		args = append(args, k)
	}
	args = append(args, c.now().UnixMilli())
	query := `SELECT key, value FROM kv WHERE key IN (?` + strings.Repeat(",?", len(keys)-1) + `) AND expires_at > ?`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite get many: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var key string
		var val []byte
		if err := rows.Scan(&key, &val); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		out[key] = val
	}
	return out, rows.Err()
}

// SetMany upserts all values in one transaction
func (c *SQLiteCache) SetMany(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	exp := c.expiry(ttl)
	for key, val := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
			key, val, exp); err != nil {
			return fmt.Errorf("sqlite set %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// Delete removes keys
func (c *SQLiteCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			return fmt.Errorf("sqlite delete %s: %w", key, err)
		}
	}
	return nil
}

// Keys lists unexpired keys with the given prefix
func (c *SQLiteCache) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := `SELECT key FROM kv WHERE key >= ? AND expires_at > ?`
	args := []any{prefix, c.now().UnixMilli()}
	if upper, ok := prefixUpperBound(prefix); ok {
		query += ` AND key < ?`
		args = append(args, upper)
	}
	rows, err := c.db.QueryContext(ctx, query+` ORDER BY key`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// prefixUpperBound returns the smallest string greater than every string
// starting with prefix, in byte order. Keys compare with the BINARY
// collation, so the pair [prefix, upper) selects exactly the prefixed keys.
func prefixUpperBound(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}

// Sweep deletes expired rows and returns how many were removed
func (c *SQLiteCache) Sweep(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM kv WHERE expires_at <= ?`, c.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite sweep: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database handle
func (c *SQLiteCache) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes the database
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
