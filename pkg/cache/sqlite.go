package cache

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/evoflow-ai/evoflow-go/pkg/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS gateway_cache (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
`

// SQLiteCache persists cached responses across process restarts, which
// makes repeated evolution runs against the same evaluation set cheap.
type SQLiteCache struct {
	db     *sql.DB
	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

// NewSQLiteCache opens (and if needed creates) the cache database.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "open cache database")
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.Unknown, "create cache schema")
	}
	return &SQLiteCache{db: db}, nil
}

func (c *SQLiteCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt int64
	err := c.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM gateway_cache WHERE key = ?`, key).
		Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		c.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, errors.Unknown, "read cache entry")
	}
	if expiresAt > 0 && time.Now().UnixMilli() > expiresAt {
		_ = c.Delete(ctx, key)
		c.misses.Add(1)
		return nil, false, nil
	}
	c.hits.Add(1)
	return value, true, nil
}

func (c *SQLiteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixMilli()
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO gateway_cache (key, value, expires_at, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt, time.Now().UnixMilli())
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "write cache entry")
	}
	c.sets.Add(1)
	return nil
}

func (c *SQLiteCache) Delete(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM gateway_cache WHERE key = ?`, key)
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "delete cache entry")
	}
	return nil
}

func (c *SQLiteCache) Clear(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM gateway_cache`)
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "clear cache")
	}
	return nil
}

func (c *SQLiteCache) Stats() Stats {
	var entries int64
	_ = c.db.QueryRow(`SELECT COUNT(*) FROM gateway_cache`).Scan(&entries)
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Sets:    c.sets.Load(),
		Entries: entries,
	}
}

func (c *SQLiteCache) Close() error { return c.db.Close() }
