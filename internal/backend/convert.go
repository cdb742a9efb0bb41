package backend

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// ConvertStats describes a finished conversion.
type ConvertStats struct {
	Rows    int64
	Skipped int64
	Bytes   int64
}

// Convert writes the dataset's CSV as Snappy-compressed Parquet next to it.
// Rows with malformed numeric fields are skipped and counted.
func Convert(ctx context.Context, ds Dataset) (ConvertStats, error) {
	var stats ConvertStats

	in, err := os.Open(ds.CSVPath())
	if err != nil {
		return stats, err
	}
	defer in.Close()

	r := csv.NewReader(in)
	header, err := r.Read()
	if err != nil {
		return stats, fmt.Errorf("failed to read header of %s: %w", ds.CSVPath(), err)
	}
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	if _, err := eventColumns(header); err != nil {
		return stats, fmt.Errorf("%s: %w", ds.CSVPath(), err)
	}

	tmp := ds.ParquetPath() + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return stats, err
	}
	defer os.Remove(tmp)

	w := parquet.NewGenericWriter[eventRecord](out, parquet.Compression(&parquet.Snappy))
	batch := make([]eventRecord, 0, parquetBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := w.Write(batch); err != nil {
			return fmt.Errorf("failed to write parquet rows: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for {
		if stats.Rows%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				out.Close()
				return stats, err
			}
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			out.Close()
			return stats, fmt.Errorf("failed to read %s: %w", ds.CSVPath(), err)
		}
		row, ok := parseEvent(rec, pos)
		if !ok {
			stats.Skipped++
			continue
		}
		batch = append(batch, row)
		stats.Rows++
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				out.Close()
				return stats, err
			}
		}
	}

	if err := flush(); err != nil {
		out.Close()
		return stats, err
	}
	if err := w.Close(); err != nil {
		out.Close()
		return stats, fmt.Errorf("failed to finish parquet file: %w", err)
	}
	if err := out.Close(); err != nil {
		return stats, err
	}
	if err := os.Rename(tmp, ds.ParquetPath()); err != nil {
		return stats, err
	}
	if info, err := os.Stat(ds.ParquetPath()); err == nil {
		stats.Bytes = info.Size()
	}
	return stats, nil
}

func parseEvent(rec []string, pos map[string]int) (eventRecord, bool) {
	field := func(name string) string {
		if i, ok := pos[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}
	integer := func(name string) (int64, bool) {
		s := field(name)
		if s == "" {
			return 0, true
		}
		v, err := strconv.ParseInt(s, 10, 64)
		return v, err == nil
	}

	row := eventRecord{
		EventTime:    field("event_time"),
		EventType:    field("event_type"),
		CategoryCode: field("category_code"),
		Brand:        field("brand"),
		UserSession:  field("user_session"),
	}
	var ok bool
	if row.ProductID, ok = integer("product_id"); !ok {
		return row, false
	}
	if row.CategoryID, ok = integer("category_id"); !ok {
		return row, false
	}
	if row.UserID, ok = integer("user_id"); !ok {
		return row, false
	}
	if s := field("price"); s != "" {
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return row, false
		}
		row.Price = p
	}
	return row, true
}
