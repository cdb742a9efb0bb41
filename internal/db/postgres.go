package db

import (
	"context"
	"database/sql"
	"fmt"

	"querybench/internal/benchmark"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	historyDB
}

// NewPostgresStore creates a new Postgres store and applies migrations
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := newPostgresStore(db)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func newPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{historyDB{db: db, dollarParams: true}}
}

func (s *PostgresStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id BIGSERIAL PRIMARY KEY,
			tool TEXT NOT NULL,
			function TEXT NOT NULL,
			mode TEXT NOT NULL,
			requested INTEGER NOT NULL,
			failures INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			session_id BIGINT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			run INTEGER NOT NULL,
			memory_mb DOUBLE PRECISION NOT NULL,
			time_s DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (session_id, run)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions (started_at DESC);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// SaveSession stores the session and its runs in one transaction
func (s *PostgresStore) SaveSession(ctx context.Context, session *benchmark.Session) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO sessions (tool, function, mode, requested, failures, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		session.Tool, session.Function, string(session.Mode), session.Requested, session.Failures,
		session.StartedAt, session.FinishedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}

	if err := s.insertRuns(ctx, tx, id, session.Records); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}
