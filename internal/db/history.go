package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"querybench/internal/benchmark"
)

// historyDB holds the queries shared by the SQLite and Postgres stores. The
// SQL is written with "?" and rebound for drivers using "$n".
type historyDB struct {
	db           *sql.DB
	dollarParams bool
}

func (h *historyDB) rebind(query string) string {
	if !h.dollarParams {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (h *historyDB) insertRuns(ctx context.Context, tx *sql.Tx, sessionID int64, records []benchmark.Record) error {
	if len(records) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, h.rebind(`INSERT INTO runs (session_id, run, memory_mb, time_s) VALUES (?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare run insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, sessionID, r.Run, r.MemoryMB, r.TimeS); err != nil {
			return fmt.Errorf("failed to insert run %d: %w", r.Run, err)
		}
	}
	return nil
}

func (h *historyDB) ListSessions(ctx context.Context, limit int, since time.Time) ([]SessionInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		where string
		args  []any
	)
	if !since.IsZero() {
		where = "WHERE s.started_at >= ?"
		args = append(args, since.UTC())
	}
	args = append(args, limit)
	query := h.rebind(`
		SELECT s.id, s.tool, s.function, s.mode, s.requested, s.failures, s.started_at, s.finished_at,
		       (SELECT COUNT(*) FROM runs r WHERE r.session_id = s.id)
		FROM sessions s
		` + where + `
		ORDER BY s.started_at DESC, s.id DESC
		LIMIT ?`)
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var mode string
		if err := rows.Scan(&info.ID, &info.Tool, &info.Function, &mode, &info.Requested, &info.Failures,
			&info.StartedAt, &info.FinishedAt, &info.Succeeded); err != nil {
			return nil, err
		}
		info.Mode = benchmark.Mode(mode)
		results = append(results, info)
	}
	return results, rows.Err()
}

func (h *historyDB) LoadRuns(ctx context.Context, sessionID int64) ([]benchmark.Record, error) {
	var exists int
	err := h.db.QueryRowContext(ctx, h.rebind(`SELECT COUNT(*) FROM sessions WHERE id = ?`), sessionID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %d", ErrSessionNotFound, sessionID)
	}

	rows, err := h.db.QueryContext(ctx,
		h.rebind(`SELECT run, memory_mb, time_s FROM runs WHERE session_id = ? ORDER BY run`), sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []benchmark.Record{}
	for rows.Next() {
		var r benchmark.Record
		if err := rows.Scan(&r.Run, &r.MemoryMB, &r.TimeS); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the database connection
func (h *historyDB) Close() error {
	return h.db.Close()
}
