package backend

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ctxCheckEvery is how many rows a scan reads between context checks.
const ctxCheckEvery = 4096

func openCSV(ds Dataset) (Engine, error) {
	path := ds.CSVPath()
	return &scanEngine{
		scan: func(ctx context.Context, yield func(eventRow) error) error {
			return scanCSV(ctx, path, yield)
		},
	}, nil
}

// scanCSV streams the file with encoding/csv. Rows with an unparsable price
// keep a zero price, like a NULL in the SQL engines.
func scanCSV(ctx context.Context, path string, yield func(eventRow) error) error {
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

	for n := 0; ; n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		price, _ := strconv.ParseFloat(rec[cols.price], 64)
		if err := yield(eventRow{
			EventType:    rec[cols.eventType],
			CategoryCode: rec[cols.categoryCode],
			Brand:        rec[cols.brand],
			Price:        price,
		}); err != nil {
			return err
		}
	}
}
