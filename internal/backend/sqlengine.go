package backend

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
)

// sqlQueries are formatted with the relation holding the events.
var sqlQueries = map[Function]string{
	FilteringCounting: `SELECT event_type, category_code, brand, price FROM %[1]s WHERE event_type = 'purchase' LIMIT 5;
SELECT COUNT(*) AS purchase_count FROM %[1]s WHERE event_type = 'purchase'`,

	FilteringGroupingAggregation: `SELECT category_code, SUM(price) AS total_sales
FROM %[1]s
WHERE event_type = 'purchase'
GROUP BY category_code
ORDER BY category_code`,

	GroupingConditionalAggregation: `SELECT
    category_code,
    SUM(CASE WHEN event_type = 'view' THEN 1 ELSE 0 END) AS views,
    SUM(CASE WHEN event_type = 'cart' THEN 1 ELSE 0 END) AS carts,
    SUM(CASE WHEN event_type = 'purchase' THEN 1 ELSE 0 END) AS purchases
FROM %[1]s
GROUP BY category_code
ORDER BY category_code`,

	FilteringBrandCounting: `SELECT COUNT(*) AS purchase_count
FROM %[1]s
WHERE event_type = 'purchase' AND category_code = 'electronics.smartphone' AND brand = 'samsung'`,
}

// sqlEngine runs the queries through database/sql. prepare runs once before
// the first query, inside the measured call.
type sqlEngine struct {
	db       *sql.DB
	relation string
	prepare  func(ctx context.Context, db *sql.DB) error
	prepared bool
}

func (e *sqlEngine) Run(ctx context.Context, fn Function, w io.Writer) error {
	text, ok := sqlQueries[fn]
	if !ok {
		return fmt.Errorf("no query for %s", fn)
	}
	if !e.prepared && e.prepare != nil {
		if err := e.prepare(ctx, e.db); err != nil {
			return err
		}
		e.prepared = true
	}

	for _, stmt := range splitStatements(fmt.Sprintf(text, e.relation)) {
		if err := e.query(ctx, stmt, w); err != nil {
			return err
		}
	}
	return nil
}

func (e *sqlEngine) query(ctx context.Context, stmt string, w io.Writer) error {
	rows, err := e.db.QueryContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	var table [][]string
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = formatValue(v)
		}
		table = append(table, row)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return printTable(w, columns, table)
}

func (e *sqlEngine) Close() error {
	return e.db.Close()
}

// splitStatements splits a script on ";". None of the queries above put a
// semicolon inside a literal.
func splitStatements(text string) []string {
	var out []string
	for _, stmt := range strings.Split(text, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
