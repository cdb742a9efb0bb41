package db

import (
	"context"
	"errors"
	"time"

	"querybench/internal/benchmark"
)

// ErrSessionNotFound is returned by LoadRuns for an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// SessionInfo is one row of the session history.
type SessionInfo struct {
	ID         int64          `json:"id"`
	Tool       string         `json:"tool"`
	Function   string         `json:"function"`
	Mode       benchmark.Mode `json:"mode"`
	Requested  int            `json:"requested"`
	Succeeded  int            `json:"succeeded"`
	Failures   int            `json:"failures"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Store interface defines the methods for persistent run history
type Store interface {
	Close() error
	// SaveSession stores a finalized session and its runs, returning its id.
	SaveSession(ctx context.Context, s *benchmark.Session) (int64, error)
	// ListSessions returns up to limit sessions started at or after since,
	// most recent first. A zero since disables the filter.
	ListSessions(ctx context.Context, limit int, since time.Time) ([]SessionInfo, error)
	// LoadRuns returns the runs of one session in run order.
	LoadRuns(ctx context.Context, sessionID int64) ([]benchmark.Record, error)
}
