package backend

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// eventRow holds the columns the queries touch.
type eventRow struct {
	EventType    string
	CategoryCode string
	Brand        string
	Price        float64
}

// scanFunc streams every event to yield until the data ends or yield fails.
type scanFunc func(ctx context.Context, yield func(eventRow) error) error

// scanQuery is a query over a streamed dataset.
type scanQuery func(ctx context.Context, scan scanFunc, w io.Writer) error

var scanQueries = map[Function]scanQuery{
	FilteringCounting:              scanFilteringCounting,
	FilteringGroupingAggregation:   scanFilteringGroupingAggregation,
	GroupingConditionalAggregation: scanGroupingConditionalAggregation,
	FilteringBrandCounting:         scanFilteringBrandCounting,
}

const (
	eventPurchase = "purchase"
	eventView     = "view"
	eventCart     = "cart"
	previewRows   = 5
)

// scanEngine runs the queries over a streaming reader.
type scanEngine struct {
	scan  scanFunc
	close func() error
}

func (e *scanEngine) Run(ctx context.Context, fn Function, w io.Writer) error {
	q, ok := scanQueries[fn]
	if !ok {
		return fmt.Errorf("no query for %s", fn)
	}
	return q(ctx, e.scan, w)
}

func (e *scanEngine) Close() error {
	if e.close == nil {
		return nil
	}
	return e.close()
}

func scanFilteringCounting(ctx context.Context, scan scanFunc, w io.Writer) error {
	var preview [][]string
	var count int64
	err := scan(ctx, func(r eventRow) error {
		if r.EventType != eventPurchase {
			return nil
		}
		count++
		if len(preview) < previewRows {
			preview = append(preview, []string{
				r.EventType,
				formatText(r.CategoryCode),
				formatText(r.Brand),
				formatFloat(r.Price),
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := printTable(w, []string{"event_type", "category_code", "brand", "price"}, preview); err != nil {
		return err
	}
	return printTable(w, []string{"purchase_count"}, [][]string{{strconv.FormatInt(count, 10)}})
}

func scanFilteringGroupingAggregation(ctx context.Context, scan scanFunc, w io.Writer) error {
	totals := make(map[string]float64)
	err := scan(ctx, func(r eventRow) error {
		if r.EventType == eventPurchase {
			totals[r.CategoryCode] += r.Price
		}
		return nil
	})
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(totals))
	for _, cat := range sortedKeys(totals) {
		rows = append(rows, []string{formatText(cat), formatFloat(totals[cat])})
	}
	return printTable(w, []string{"category_code", "total_sales"}, rows)
}

type eventCounts struct {
	views, carts, purchases int64
}

func scanGroupingConditionalAggregation(ctx context.Context, scan scanFunc, w io.Writer) error {
	counts := make(map[string]*eventCounts)
	err := scan(ctx, func(r eventRow) error {
		c, ok := counts[r.CategoryCode]
		if !ok {
			c = &eventCounts{}
			counts[r.CategoryCode] = c
		}
		switch r.EventType {
		case eventView:
			c.views++
		case eventCart:
			c.carts++
		case eventPurchase:
			c.purchases++
		}
		return nil
	})
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(counts))
	for _, cat := range sortedKeys(counts) {
		c := counts[cat]
		rows = append(rows, []string{
			formatText(cat),
			strconv.FormatInt(c.views, 10),
			strconv.FormatInt(c.carts, 10),
			strconv.FormatInt(c.purchases, 10),
		})
	}
	return printTable(w, []string{"category_code", "views", "carts", "purchases"}, rows)
}

func scanFilteringBrandCounting(ctx context.Context, scan scanFunc, w io.Writer) error {
	var count int64
	err := scan(ctx, func(r eventRow) error {
		if r.EventType == eventPurchase && r.CategoryCode == "electronics.smartphone" && r.Brand == "samsung" {
			count++
		}
		return nil
	})
	if err != nil {
		return err
	}
	return printTable(w, []string{"purchase_count"}, [][]string{{strconv.FormatInt(count, 10)}})
}

// sortedKeys orders groups like SQL's ORDER BY with NULLS LAST.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] == "" || keys[j] == "" {
			return keys[j] == "" && keys[i] != ""
		}
		return keys[i] < keys[j]
	})
	return keys
}

// eventIndex maps the columns the queries need to their positions.
type eventIndex struct {
	eventType, categoryCode, brand, price int
}

func eventColumns(header []string) (eventIndex, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	var idx eventIndex
	var missing []string
	for _, c := range []struct {
		name string
		dst  *int
	}{
		{"event_type", &idx.eventType},
		{"category_code", &idx.categoryCode},
		{"brand", &idx.brand},
		{"price", &idx.price},
	} {
		i, ok := pos[c.name]
		if !ok {
			missing = append(missing, c.name)
			continue
		}
		*c.dst = i
	}
	if len(missing) > 0 {
		return eventIndex{}, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}
