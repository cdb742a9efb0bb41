// Package backend binds the benchmark queries to the engines under test.
package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"querybench/internal/benchmark"
)

// Tool names an engine under test.
type Tool string

const (
	DuckDB  Tool = "duckdb"
	SQLite  Tool = "sqlite"
	Arrow   Tool = "arrow"
	Parquet Tool = "parquet"
	CSV     Tool = "csv"
)

// Tools lists every engine in display order.
var Tools = []Tool{DuckDB, SQLite, Arrow, Parquet, CSV}

// Function names one of the benchmark queries.
type Function string

const (
	FilteringCounting              Function = "filtering_counting"
	FilteringGroupingAggregation   Function = "filtering_grouping_aggregation"
	GroupingConditionalAggregation Function = "grouping_conditional_aggregation"
	FilteringBrandCounting         Function = "filtering_brand_counting"
)

// Functions lists every query in display order.
var Functions = []Function{
	FilteringCounting,
	FilteringGroupingAggregation,
	GroupingConditionalAggregation,
	FilteringBrandCounting,
}

// ParseTool validates a tool name.
func ParseTool(s string) (Tool, error) {
	t := Tool(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := catalog[t]; !ok {
		return "", fmt.Errorf("unknown tool %q (want one of %s)", s, joinTools())
	}
	return t, nil
}

// ParseTools validates a comma separated list of tools.
func ParseTools(s string) ([]Tool, error) {
	var tools []Tool
	seen := make(map[Tool]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		t, err := ParseTool(part)
		if err != nil {
			return nil, err
		}
		if !seen[t] {
			seen[t] = true
			tools = append(tools, t)
		}
	}
	if len(tools) == 0 {
		return nil, fmt.Errorf("no tool given (want one of %s)", joinTools())
	}
	return tools, nil
}

// ParseFunction validates a function name.
func ParseFunction(s string) (Function, error) {
	f := Function(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Functions {
		if f == known {
			return f, nil
		}
	}
	names := make([]string, len(Functions))
	for i, fn := range Functions {
		names[i] = string(fn)
	}
	return "", fmt.Errorf("unknown function %q (want one of %s)", s, strings.Join(names, ", "))
}

func joinTools() string {
	names := make([]string, len(Tools))
	for i, t := range Tools {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// Dataset locates the input files.
type Dataset struct {
	Dir string
}

const (
	csvFile     = "eCommerce.csv"
	parquetFile = "eCommerce.parquet"
)

// CSVPath is the CSV export of the e-commerce events.
func (d Dataset) CSVPath() string { return filepath.Join(d.Dir, csvFile) }

// ParquetPath is the Parquet copy produced by Convert.
func (d Dataset) ParquetPath() string { return filepath.Join(d.Dir, parquetFile) }

// Path returns the file a tool reads.
func (d Dataset) Path(tool Tool) string {
	if tool == Parquet {
		return d.ParquetPath()
	}
	return d.CSVPath()
}

// Engine runs benchmark queries against one dataset.
type Engine interface {
	Run(ctx context.Context, fn Function, w io.Writer) error
	Close() error
}

type opener func(ds Dataset) (Engine, error)

type entry struct {
	open    opener
	queries map[Function]bool
}

func supported(fns map[Function]string) map[Function]bool {
	out := make(map[Function]bool, len(fns))
	for fn := range fns {
		out[fn] = true
	}
	return out
}

func supportedScans(fns map[Function]scanQuery) map[Function]bool {
	out := make(map[Function]bool, len(fns))
	for fn := range fns {
		out[fn] = true
	}
	return out
}

// catalog is the closed set of (tool, function) pairs.
var catalog = map[Tool]entry{
	DuckDB:  {open: openDuckDB, queries: supported(sqlQueries)},
	SQLite:  {open: openSQLite, queries: supported(sqlQueries)},
	Arrow:   {open: openArrow, queries: supportedScans(scanQueries)},
	Parquet: {open: openParquet, queries: supportedScans(scanQueries)},
	CSV:     {open: openCSV, queries: supportedScans(scanQueries)},
}

// Supports reports whether tool implements fn.
func Supports(tool Tool, fn Function) bool {
	e, ok := catalog[tool]
	return ok && e.queries[fn]
}

// Catalog hands out targets and owns the engines behind them. Engines are
// opened on first use and kept until Close, so hot runs reuse them.
type Catalog struct {
	ds Dataset

	mu      sync.Mutex
	engines map[Tool]Engine
}

// NewCatalog creates a catalog over ds.
func NewCatalog(ds Dataset) *Catalog {
	return &Catalog{ds: ds, engines: make(map[Tool]Engine)}
}

// Target returns the benchmark target for tool and fn.
func (c *Catalog) Target(tool Tool, fn Function) (benchmark.Target, error) {
	if !Supports(tool, fn) {
		return nil, fmt.Errorf("%s does not implement %s", tool, fn)
	}
	if _, err := os.Stat(c.ds.Path(tool)); err != nil {
		return nil, fmt.Errorf("dataset for %s: %w", tool, err)
	}
	return func(ctx context.Context, w io.Writer) error {
		e, err := c.engine(tool)
		if err != nil {
			return err
		}
		return e.Run(ctx, fn, w)
	}, nil
}

func (c *Catalog) engine(tool Tool) (Engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.engines[tool]; ok {
		return e, nil
	}
	e, err := catalog[tool].open(c.ds)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", tool, err)
	}
	c.engines[tool] = e
	return e, nil
}

// Close releases every opened engine.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for tool, e := range c.engines {
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s: %w", tool, err)
		}
		delete(c.engines, tool)
	}
	return firstErr
}
