package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

// eventRecord is the on-disk layout of eCommerce.parquet.
type eventRecord struct {
	EventTime    string  `parquet:"event_time"`
	EventType    string  `parquet:"event_type"`
	ProductID    int64   `parquet:"product_id"`
	CategoryID   int64   `parquet:"category_id"`
	CategoryCode string  `parquet:"category_code,optional"`
	Brand        string  `parquet:"brand,optional"`
	Price        float64 `parquet:"price"`
	UserID       int64   `parquet:"user_id"`
	UserSession  string  `parquet:"user_session,optional"`
}

// eventProjection is the subset of columns the queries read.
type eventProjection struct {
	EventType    string  `parquet:"event_type"`
	CategoryCode string  `parquet:"category_code,optional"`
	Brand        string  `parquet:"brand,optional"`
	Price        float64 `parquet:"price"`
}

const parquetBatch = 1024

func openParquet(ds Dataset) (Engine, error) {
	path := ds.ParquetPath()
	return &scanEngine{
		scan: func(ctx context.Context, yield func(eventRow) error) error {
			return scanParquet(ctx, path, yield)
		},
	}, nil
}

func scanParquet(ctx context.Context, path string, yield func(eventRow) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := parquet.NewGenericReader[eventProjection](f)
	defer r.Close()

	buf := make([]eventProjection, parquetBatch)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		for _, p := range buf[:n] {
			if yerr := yield(eventRow(p)); yerr != nil {
				return yerr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
}
