// Package cache stores model revisions keyed by a digest of the original
// entry, the formatting preferences, and the model. Re-running bibfix over an
// unchanged file then costs no API calls.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS revisions (
	key        TEXT PRIMARY KEY,
	model      TEXT NOT NULL,
	revised    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// Cache is a sqlite-backed store of revised entries.
type Cache struct {
	db *sql.DB
}

// Open creates or opens the revision cache under dir.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "revisions.db"))
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error { return c.db.Close() }

// Key derives the cache key for an entry/preferences/model combination.
func Key(entryText, prefs, model string) string {
	h := sha256.New()
	h.Write([]byte(entryText))
	h.Write([]byte{0})
	h.Write([]byte(prefs))
	h.Write([]byte{0})
	h.Write([]byte(model))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached revision for key, if present.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	var revised string
	err := c.db.QueryRowContext(ctx, `SELECT revised FROM revisions WHERE key = ?`, key).Scan(&revised)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get: %w", err)
	}
	return revised, true, nil
}

// Put stores or replaces the revision for key.
func (c *Cache) Put(ctx context.Context, key, model, revised string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO revisions (key, model, revised, created_at) VALUES (?, ?, ?, ?)`,
		key, model, revised, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Stats describes the cache contents.
type Stats struct {
	Entries int64
	Oldest  string
	Newest  string
}

// Stats returns entry count and the oldest/newest timestamps.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM revisions`).Scan(&s.Entries); err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	if s.Entries == 0 {
		return s, nil
	}
	err := c.db.QueryRowContext(ctx,
		`SELECT MIN(created_at), MAX(created_at) FROM revisions`).Scan(&s.Oldest, &s.Newest)
	if err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	return s, nil
}

// Clear removes all cached revisions.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM revisions`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}
