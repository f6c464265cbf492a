// Package store owns the durable corpus: guilds, channels, users, members,
// messages, roles, pins, emoji, import cursors, and the full-text index kept
// in sync with the message table. It is the only component that mutates
// persisted state.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DefaultFilename is the corpus file created when no path is configured.
const DefaultFilename = "scribe.db"

// Store wraps the single process-wide SQLite handle. It is safe for
// concurrent callers; write serialization is delegated to SQLite's
// transaction discipline, no in-process locks are layered on top.
type Store struct {
	db *sql.DB
}

// Open creates or opens the corpus at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL for write-ahead durability, NORMAL sync for throughput.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q failed: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for callers that need ad-hoc reads (tests,
// diagnostics). Writes must go through the upsert family.
func (s *Store) DB() *sql.DB {
	return s.db
}
