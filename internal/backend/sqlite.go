package backend

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS events (
    event_type TEXT,
    category_code TEXT,
    brand TEXT,
    price REAL
)`

// openSQLite opens an in-memory database. The CSV is loaded by the first
// query, so cold runs pay for the load and hot runs reuse the table.
func openSQLite(ds Dataset) (Engine, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	path := ds.CSVPath()
	return &sqlEngine{
		db:       db,
		relation: "events",
		prepare: func(ctx context.Context, db *sql.DB) error {
			return loadEvents(ctx, db, path)
		},
	}, nil
}

// loadEvents copies the CSV into the events table in one transaction.
func loadEvents(ctx context.Context, db *sql.DB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	cols, err := eventColumns(header)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO events (event_type, category_code, brand, price) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		var price any
		if p, err := strconv.ParseFloat(rec[cols.price], 64); err == nil {
			price = p
		}
		if _, err := stmt.ExecContext(ctx,
			rec[cols.eventType],
			nullable(rec[cols.categoryCode]),
			nullable(rec[cols.brand]),
			price,
		); err != nil {
			return fmt.Errorf("insert failed: %w", err)
		}
	}
	return tx.Commit()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
