package benchmark

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Memory = -1.25 MB
	memoryRegex = regexp.MustCompile(`Memory\s*=\s*(-?[0-9]*\.?[0-9]+)\s*MB`)
	// Time = 0.5 s
	timeRegex = regexp.MustCompile(`Time\s*=\s*([0-9]*\.?[0-9]+)\s*s`)
	// Run 3: Memory = 1.2 MB, Time = 0.4 s
	runLineRegex = regexp.MustCompile(`^Run\s+(\d+):`)
)

// ParseOutput scans child output for one memory and one time value. The two
// fields are matched independently, so their order does not matter and any
// surrounding text is ignored. ok is false if either field is missing.
func ParseOutput(output string) (memoryMB, timeS float64, ok bool) {
	mm := memoryRegex.FindStringSubmatch(output)
	tm := timeRegex.FindStringSubmatch(output)
	if mm == nil || tm == nil {
		return 0, 0, false
	}

	mem, err := strconv.ParseFloat(mm[1], 64)
	if err != nil {
		return 0, 0, false
	}
	elapsed, err := strconv.ParseFloat(tm[1], 64)
	if err != nil {
		return 0, 0, false
	}
	return mem, elapsed, true
}

// FormatRecord prints a record the way a cold child reports it.
func FormatRecord(w io.Writer, r Record) error {
	_, err := fmt.Fprintf(w, "Memory = %.6f MB\nTime = %.6f s\n", r.MemoryMB, r.TimeS)
	return err
}

// FormatRunLine prints one record of an isolated session.
func FormatRunLine(w io.Writer, r Record) error {
	_, err := fmt.Fprintf(w, "Run %d: Memory = %.6f MB, Time = %.6f s\n", r.Run, r.MemoryMB, r.TimeS)
	return err
}

// ParseRunLines extracts every "Run i: ..." record from isolated output.
// Lines that do not carry both fields are skipped.
func ParseRunLines(output string) []Record {
	var records []Record
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		m := runLineRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		run, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		mem, elapsed, ok := ParseOutput(line)
		if !ok {
			continue
		}
		records = append(records, Record{Run: run, MemoryMB: mem, TimeS: elapsed})
	}
	return records
}

// ChildRequest describes the work of a child process.
type ChildRequest struct {
	Runs      int
	Warmup    int
	CollectGC bool
	Isolated  bool
}

// ServeChild runs the child side of the cold and isolated protocols and writes
// the report to w. A single-run child prints one record; an isolated child
// prints one run line per successful measured run. Query output is discarded.
func ServeChild(ctx context.Context, w io.Writer, probe *Probe, target Target, req ChildRequest) error {
	if !req.Isolated {
		var buf bytes.Buffer
		rec, err := measureChild(ctx, probe, 1, target, &buf, req.CollectGC)
		if err != nil {
			if errors.Is(err, ErrRunFailed) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrRunFailed, err)
		}
		return FormatRecord(w, rec)
	}

	for i := 0; i < req.Warmup; i++ {
		_, _ = measureChild(ctx, probe, 0, target, io.Discard, req.CollectGC)
	}

	var failed int
	for i := 1; i <= req.Runs; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := measureChild(ctx, probe, i, target, io.Discard, req.CollectGC)
		if err != nil {
			failed++
			fmt.Fprintf(w, "Run %d failed: %v\n", i, err)
			continue
		}
		if err := FormatRunLine(w, rec); err != nil {
			return err
		}
	}
	if failed == req.Runs && req.Runs > 0 {
		return fmt.Errorf("%w: all %d runs failed", ErrRunFailed, failed)
	}
	return nil
}

// measureChild reports a panicking target as a failed run.
func measureChild(ctx context.Context, probe *Probe, run int, target Target, w io.Writer, collect bool) (rec Record, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic: %v", ErrRunFailed, p)
		}
	}()
	return probe.Measure(ctx, run, target, w, collect)
}
