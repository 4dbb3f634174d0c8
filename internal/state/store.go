package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/wesheets/roundtable/pkg/models"
)

// Store is the storage collaborator contract the orchestration core
// depends on: an async key-value store over named collections. Get
// returns models.ErrNotFound for missing keys. No transactional
// guarantees hold across keys.
type Store interface {
	Get(ctx context.Context, collection, key string) ([]byte, error)
	Set(ctx context.Context, collection, key string, value []byte) error
	Delete(ctx context.Context, collection, key string) error
	Keys(ctx context.Context, collection string) ([]string, error)
}

var _ Store = (*DB)(nil)

// Get returns the value stored under (collection, key).
func (db *DB) Get(ctx context.Context, collection, key string) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var value []byte
	row := db.conn.QueryRowContext(ctx, "SELECT value FROM kv WHERE collection = ? AND key = ?", collection, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", models.ErrNotFound, collection, key)
		}
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	return value, nil
}

// Set stores the value under (collection, key), replacing any previous
// value.
func (db *DB) Set(ctx context.Context, collection, key string, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO kv (collection, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, collection, key, value, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, key, err)
	}
	return nil
}

// Delete removes the value under (collection, key). Deleting a missing
// key is not an error.
func (db *DB) Delete(ctx context.Context, collection, key string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.ExecContext(ctx, "DELETE FROM kv WHERE collection = ? AND key = ?", collection, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	return nil
}

// Keys returns the keys present in a collection, sorted.
func (db *DB) Keys(ctx context.Context, collection string) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, "SELECT key FROM kv WHERE collection = ?", collection)
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", collection, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// GetJSON reads (collection, key) and unmarshals it into out.
func GetJSON(ctx context.Context, s Store, collection, key string, out any) error {
	raw, err := s.Get(ctx, collection, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}
	return nil
}

// SetJSON marshals v and stores it under (collection, key).
func SetJSON(ctx context.Context, s Store, collection, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	return s.Set(ctx, collection, key, raw)
}
