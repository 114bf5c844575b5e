package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresSchema is the DDL for the spelling_cache table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
//
// The table holds a single row (id = 1) whose entries column is rewritten on
// every save, mirroring the whole-mapping contract of [Store].
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS spelling_cache (
    id         SMALLINT PRIMARY KEY,
    entries    JSONB NOT NULL DEFAULT '{}',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// PostgresStore is a [Store] backed by PostgreSQL, for deployments where
// several service instances share one cache.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a [PostgresStore] on top of a pool or connection.
// Call [PostgresStore.Migrate] before first use.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the spelling_cache table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("cache: migrate: %w", err)
	}
	return nil
}

// Load implements [Store]. An absent row yields an empty map.
func (s *PostgresStore) Load(ctx context.Context) (map[string]string, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT entries FROM spelling_cache WHERE id = 1`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: load: %w", err)
	}

	entries := map[string]string{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("cache: decode entries: %w", err)
	}
	return entries, nil
}

// Save implements [Store].
func (s *PostgresStore) Save(ctx context.Context, entries map[string]string) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("cache: encode entries: %w", err)
	}

	const query = `
		INSERT INTO spelling_cache (id, entries, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET
			entries    = EXCLUDED.entries,
			updated_at = now()`

	if _, err := s.db.Exec(ctx, query, raw); err != nil {
		return fmt.Errorf("cache: save: %w", err)
	}
	return nil
}

// Remove implements [Store].
func (s *PostgresStore) Remove(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM spelling_cache WHERE id = 1`); err != nil {
		return fmt.Errorf("cache: remove: %w", err)
	}
	return nil
}
