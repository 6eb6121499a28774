package cache

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore is the default persistent tier: a small local SQLite file,
// the process equivalent of the browser's localStorage.
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLite opens (creating if needed) the cache database at path with
// WAL mode enabled.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	dsn := path + "?_journal=WAL&_busy_timeout=5000"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection keeps the
	// kv traffic serialized without a separate mutex.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	return &SQLiteStore{conn: conn}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Envelope, error) {
	var env Envelope
	err := s.conn.QueryRowContext(ctx,
		"SELECT stored_at, payload FROM kv_cache WHERE key = ?", key,
	).Scan(&env.StoredAt, &env.Payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache key %q: %w", key, err)
	}
	return &env, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, env Envelope) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO kv_cache (key, stored_at, payload) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			stored_at = excluded.stored_at,
			payload = excluded.payload`,
		key, env.StoredAt, []byte(env.Payload),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache key %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM kv_cache WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete cache key %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
