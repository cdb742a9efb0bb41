package backend

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
)

// openDuckDB opens an in-memory DuckDB that reads the CSV on every query.
func openDuckDB(ds Dataset) (Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return &sqlEngine{
		db:       db,
		relation: fmt.Sprintf("read_csv_auto('%s')", quoteLiteral(ds.CSVPath())),
	}, nil
}

func quoteLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
