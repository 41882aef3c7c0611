// Package store persists the client-side "current session" pointer.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const keyCurrentSession = "current_session_id"

// StateStore remembers which session the user was last working in. An
// empty id means nothing is stored.
type StateStore interface {
	CurrentSessionID(ctx context.Context) (string, error)
	SetCurrentSessionID(ctx context.Context, id string) error
	Close() error
}

// SQLite keeps client state in a local SQLite database
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the state database at path
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	createStateTable := `
	CREATE TABLE IF NOT EXISTS client_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME
	);`

	if _, err := db.Exec(createStateTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create client_state table: %w", err)
	}

	return &SQLite{db: db}, nil
}

// CurrentSessionID returns the stored session id, or "" when none is stored
func (s *SQLite) CurrentSessionID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM client_state WHERE key = ?", keyCurrentSession).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read current session: %w", err)
	}
	return id, nil
}

// SetCurrentSessionID stores id; an empty id clears the entry
func (s *SQLite) SetCurrentSessionID(ctx context.Context, id string) error {
	if id == "" {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM client_state WHERE key = ?", keyCurrentSession); err != nil {
			return fmt.Errorf("failed to clear current session: %w", err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO client_state (key, value, updated_at) VALUES (?, ?, ?)",
		keyCurrentSession, id, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save current session: %w", err)
	}
	return nil
}

// Close releases the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Memory is a process-local StateStore
type Memory struct {
	mu sync.Mutex
	id string
}

// NewMemory returns a Memory store seeded with id
func NewMemory(id string) *Memory {
	return &Memory{id: id}
}

func (m *Memory) CurrentSessionID(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, nil
}

func (m *Memory) SetCurrentSessionID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return nil
}

func (m *Memory) Close() error { return nil }
