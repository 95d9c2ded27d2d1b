// ABOUTME: Generic key-value cache table operations
// ABOUTME: Stores JSON-serialized values with write timestamps for staleness checks
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/flipmoo/begripp-sub005/models"
)

// GetCacheItem returns the entry for a key, or nil when absent. Staleness
// is the caller's decision based on UpdatedAt.
func GetCacheItem(db *sql.DB, key string) (*models.CacheEntry, error) {
	entry := &models.CacheEntry{Key: key}
	var value string

	err := db.QueryRow(`
		SELECT value, updated_at FROM cache WHERE key = ?
	`, key).Scan(&value, &entry.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache item %s: %w", key, err)
	}

	entry.Value = []byte(value)
	return entry, nil
}

// SetCacheItem writes a value for a key, overwriting any previous entry.
func SetCacheItem(db *sql.DB, key string, value []byte) error {
	_, err := db.Exec(`
		INSERT INTO cache (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, string(value), time.Now())

	if err != nil {
		return fmt.Errorf("failed to set cache item %s: %w", key, err)
	}
	return nil
}

// DeleteCacheItem removes one key.
func DeleteCacheItem(db *sql.DB, key string) error {
	if _, err := db.Exec(`DELETE FROM cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache item %s: %w", key, err)
	}
	return nil
}

// ClearCache empties the key-value cache.
func ClearCache(db *sql.DB) error {
	if _, err := db.Exec(`DELETE FROM cache`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
