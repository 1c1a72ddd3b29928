// Package cache provides the point-in-time series cache backing the fetch
// gateway. Entries are immutable snapshots keyed by ticker plus query
// parameters; writes are last-write-wins.
package cache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/akarpos/quantfolio/internal/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// Store is the cache contract injected into the fetch gateway. Backing
// storage is opaque: sqlite here, in-memory in tests.
type Store interface {
	// GetSeries returns the cached series for key when present and younger
	// than maxAge. maxAge <= 0 means any unexpired entry is acceptable.
	GetSeries(key string, maxAge time.Duration) (*domain.HistoricalSeries, bool)
	SetSeries(key string, series domain.HistoricalSeries, ttl time.Duration) error
	Invalidate(key string) error
}

// Cache is the sqlite-backed Store.
type Cache struct {
	db *sql.DB
}

// New creates a cache on an open sqlite connection and ensures its schema.
func New(db *sql.DB) (*Cache, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS series_cache (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			stored_at  INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// GetSeries retrieves and decodes a cached series. Expired entries and
// entries older than maxAge are treated as absent.
func (c *Cache) GetSeries(key string, maxAge time.Duration) (*domain.HistoricalSeries, bool) {
	var blob []byte
	var storedAt, expiresAt int64
	err := c.db.QueryRow(
		"SELECT value, stored_at, expires_at FROM series_cache WHERE key = ?", key,
	).Scan(&blob, &storedAt, &expiresAt)
	if err != nil {
		return nil, false
	}

	now := time.Now().Unix()
	if now >= expiresAt {
		return nil, false
	}
	if maxAge > 0 && now-storedAt > int64(maxAge.Seconds()) {
		return nil, false
	}

	var series domain.HistoricalSeries
	if err := msgpack.Unmarshal(blob, &series); err != nil {
		return nil, false
	}
	return &series, true
}

// SetSeries encodes and stores a series with the given TTL.
func (c *Cache) SetSeries(key string, series domain.HistoricalSeries, ttl time.Duration) error {
	blob, err := msgpack.Marshal(&series)
	if err != nil {
		return fmt.Errorf("failed to encode series: %w", err)
	}

	now := time.Now().Unix()
	_, err = c.db.Exec(`
		INSERT INTO series_cache (key, value, stored_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at
	`, key, blob, now, now+int64(ttl.Seconds()))
	return err
}

// Invalidate removes a cache entry.
func (c *Cache) Invalidate(key string) error {
	_, err := c.db.Exec("DELETE FROM series_cache WHERE key = ?", key)
	return err
}

// DeleteExpired removes all expired entries and returns the count.
func (c *Cache) DeleteExpired() (int64, error) {
	res, err := c.db.Exec("DELETE FROM series_cache WHERE expires_at <= ?", time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
