// Package sqlite persists local-identity conversations in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"studybuddy-backend/internal/models"
	"studybuddy-backend/internal/store"
)

var _ store.LocalHistoryStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS local_histories (
    name TEXT PRIMARY KEY,
    history TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", path, err)
	}
	// one writer at a time; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (s *Store) LoadHistory(ctx context.Context, name string) ([]models.Message, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT history FROM local_histories WHERE name = ?`, key(name)).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		zap.S().Errorf("ERROR [SQLiteStore] LoadHistory: query failed for %q: %v", name, err)
		return nil, fmt.Errorf("database error loading history: %w", err)
	}

	var history []models.Message
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, fmt.Errorf("decoding stored history: %w", err)
	}
	return history, nil
}

func (s *Store) SaveHistory(ctx context.Context, name string, history []models.Message) error {
	raw, err := json.Marshal(store.StripPayloads(history))
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	const upsert = `
        INSERT INTO local_histories (name, history, created_at, updated_at)
        VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
        ON CONFLICT(name) DO UPDATE SET history = excluded.history, updated_at = CURRENT_TIMESTAMP`
	if _, err := s.db.ExecContext(ctx, upsert, key(name), string(raw)); err != nil {
		zap.S().Errorf("ERROR [SQLiteStore] SaveHistory: upsert failed for %q: %v", name, err)
		return fmt.Errorf("database error saving history: %w", err)
	}
	return nil
}

func (s *Store) DeleteHistory(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM local_histories WHERE name = ?`, key(name)); err != nil {
		return fmt.Errorf("database error deleting history: %w", err)
	}
	return nil
}
