package backend

import (
	"context"
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	arrowcsv "github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

const arrowChunkSize = 64 * 1024

var arrowColumnTypes = map[string]arrow.DataType{
	"event_type":    arrow.BinaryTypes.String,
	"category_code": arrow.BinaryTypes.String,
	"brand":         arrow.BinaryTypes.String,
	"price":         arrow.PrimitiveTypes.Float64,
}

func openArrow(ds Dataset) (Engine, error) {
	path := ds.CSVPath()
	mem := memory.NewGoAllocator()
	return &scanEngine{
		scan: func(ctx context.Context, yield func(eventRow) error) error {
			return scanArrow(ctx, path, mem, yield)
		},
	}, nil
}

// scanArrow reads the CSV into Arrow record batches holding only the queried
// columns and walks them row by row.
func scanArrow(ctx context.Context, path string, mem memory.Allocator, yield func(eventRow) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := arrowcsv.NewInferringReader(f,
		arrowcsv.WithAllocator(mem),
		arrowcsv.WithHeader(true),
		arrowcsv.WithChunk(arrowChunkSize),
		arrowcsv.WithNullReader(true, ""),
		arrowcsv.WithIncludeColumns([]string{"event_type", "category_code", "brand", "price"}),
		arrowcsv.WithColumnTypes(arrowColumnTypes),
	)
	defer r.Release()

	for r.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := yieldRecord(r.Record(), yield); err != nil {
			return err
		}
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

func yieldRecord(rec arrow.Record, yield func(eventRow) error) error {
	eventType, err := stringColumn(rec, "event_type")
	if err != nil {
		return err
	}
	category, err := stringColumn(rec, "category_code")
	if err != nil {
		return err
	}
	brand, err := stringColumn(rec, "brand")
	if err != nil {
		return err
	}
	idx := rec.Schema().FieldIndices("price")
	if len(idx) == 0 {
		return fmt.Errorf("record has no price column")
	}
	price, ok := rec.Column(idx[0]).(*array.Float64)
	if !ok {
		return fmt.Errorf("price column is %s, want float64", rec.Column(idx[0]).DataType())
	}

	for i := 0; i < int(rec.NumRows()); i++ {
		row := eventRow{
			EventType:    stringAt(eventType, i),
			CategoryCode: stringAt(category, i),
			Brand:        stringAt(brand, i),
		}
		if price.IsValid(i) {
			row.Price = price.Value(i)
		}
		if err := yield(row); err != nil {
			return err
		}
	}
	return nil
}

func stringColumn(rec arrow.Record, name string) (*array.String, error) {
	idx := rec.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return nil, fmt.Errorf("record has no %s column", name)
	}
	col, ok := rec.Column(idx[0]).(*array.String)
	if !ok {
		return nil, fmt.Errorf("%s column is %s, want utf8", name, rec.Column(idx[0]).DataType())
	}
	return col, nil
}

func stringAt(col *array.String, i int) string {
	if col.IsNull(i) {
		return ""
	}
	return col.Value(i)
}
