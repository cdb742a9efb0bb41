package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"querybench/internal/benchmark"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	historyDB
}

// NewSQLiteStore creates a new SQLite store and applies migrations
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Serializes writers and keeps a :memory: database on one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{historyDB{db: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tool TEXT NOT NULL,
		function TEXT NOT NULL,
		mode TEXT NOT NULL,
		requested INTEGER NOT NULL,
		failures INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS runs (
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		run INTEGER NOT NULL,
		memory_mb REAL NOT NULL,
		time_s REAL NOT NULL,
		PRIMARY KEY (session_id, run)
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// SaveSession stores the session and its runs in one transaction
func (s *SQLiteStore) SaveSession(ctx context.Context, session *benchmark.Session) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (tool, function, mode, requested, failures, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.Tool, session.Function, string(session.Mode), session.Requested, session.Failures,
		session.StartedAt.UTC(), session.FinishedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := s.insertRuns(ctx, tx, id, session.Records); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}
