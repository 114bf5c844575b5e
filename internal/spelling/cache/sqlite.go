package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS spelling_cache (
    id         INTEGER PRIMARY KEY,
    entries    TEXT NOT NULL DEFAULT '{}',
    updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is a [Store] kept in a local SQLite database using the pure-Go
// modernc.org/sqlite driver. Like [PostgresStore] it holds a single row.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// schema exists. Use ":memory:" for a throwaway store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serialises writes.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load implements [Store].
func (s *SQLiteStore) Load(ctx context.Context) (map[string]string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT entries FROM spelling_cache WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: load: %w", err)
	}

	entries := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("cache: decode entries: %w", err)
	}
	return entries, nil
}

// Save implements [Store].
func (s *SQLiteStore) Save(ctx context.Context, entries map[string]string) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("cache: encode entries: %w", err)
	}

	const query = `
		INSERT INTO spelling_cache (id, entries, updated_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			entries    = excluded.entries,
			updated_at = CURRENT_TIMESTAMP`

	if _, err := s.db.ExecContext(ctx, query, string(raw)); err != nil {
		return fmt.Errorf("cache: save: %w", err)
	}
	return nil
}

// Remove implements [Store].
func (s *SQLiteStore) Remove(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM spelling_cache WHERE id = 1`); err != nil {
		return fmt.Errorf("cache: remove: %w", err)
	}
	return nil
}
