// Package store provides the string-keyed persistence contract shared by the
// result cache, analytics, and reader study data. The contract is
// deliberately narrow: synchronous get/set/remove, no transactions, no
// expiry. Read failures surface as a miss so callers degrade instead of
// erroring.
package store

import (
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Store is a synchronous string-keyed, string-valued persistence contract.
type Store interface {
	// Get returns the stored value, or ok=false when the key is absent or
	// the underlying storage is unavailable.
	Get(key string) (value string, ok bool)
	Set(key, value string) error
	Remove(key string) error
}

// SQLiteStore persists entries in the kv table of the application database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Get(key string) (string, bool) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?;`, key).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("kv read failed", "key", key, "err", err)
		}
		return "", false
	}
	return value, true
}

func (s *SQLiteStore) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;
	`, key, value, time.Now().UTC())
	return err
}

func (s *SQLiteStore) Remove(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?;`, key)
	return err
}

// MemoryStore is an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string

	// FailWrites simulates storage that rejects writes (quota exceeded).
	FailWrites bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	return value, ok
}

func (m *MemoryStore) Set(key, value string) error {
	if m.FailWrites {
		return errors.New("write rejected")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
