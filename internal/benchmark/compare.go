package benchmark

import (
	"fmt"
	"math"

	"golang.org/x/perf/benchmath"
)

// Group is the rows of one result file, summarized.
type Group struct {
	Source   string  `json:"source"`
	Tool     string  `json:"tool"`
	Function string  `json:"function"`
	Mode     Mode    `json:"mode"`
	Memory   Summary `json:"memory"`
	Time     Summary `json:"time"`
	// HasData is false for header-only files.
	HasData bool `json:"has_data"`

	memories []float64
	times    []float64
}

// Comparison relates one group to the baseline group.
type Comparison struct {
	Group
	// Percentage change of the mean against the baseline. Negative is
	// faster or leaner.
	TimeDiff   float64 `json:"time_diff_pct"`
	MemoryDiff float64 `json:"memory_diff_pct"`
	// Mann-Whitney U p-values against the baseline; 1 when undefined.
	TimeP   float64 `json:"time_p"`
	MemoryP float64 `json:"memory_p"`
}

// Report is a cross-session comparison.
type Report struct {
	Baseline Group        `json:"baseline"`
	Others   []Comparison `json:"others"`
	Skipped  []string     `json:"skipped,omitempty"`
}

// GroupRows splits rows by source in first-seen order.
func GroupRows(rows []Row, unit CVUnit) []Group {
	var order []string
	bySource := make(map[string]*Group)
	for _, r := range rows {
		g, ok := bySource[r.Source]
		if !ok {
			g = &Group{Source: r.Source, Tool: r.Tool, Function: r.Function, Mode: r.Mode}
			bySource[r.Source] = g
			order = append(order, r.Source)
		}
		g.memories = append(g.memories, r.MemoryMB)
		g.times = append(g.times, r.TimeS)
	}

	groups := make([]Group, 0, len(order))
	for _, src := range order {
		g := bySource[src]
		g.Memory, g.HasData = Summarize(g.memories, unit)
		g.Time, _ = Summarize(g.times, unit)
		groups = append(groups, *g)
	}
	return groups
}

// Compare loads the given result files and compares every file against the
// first one that holds data. Header-only files are listed as skipped.
func Compare(paths []string, unit CVUnit) (*Report, error) {
	report := &Report{}
	var usable []string
	for _, p := range paths {
		rows, err := LoadResults([]string{p}, false)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			report.Skipped = append(report.Skipped, p)
			continue
		}
		usable = append(usable, p)
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("no result file holds data")
	}

	rows, err := LoadResults(usable, true)
	if err != nil {
		return nil, err
	}
	groups := GroupRows(rows, unit)

	report.Baseline = groups[0]
	for _, g := range groups[1:] {
		report.Others = append(report.Others, compareGroups(report.Baseline, g))
	}
	return report, nil
}

func compareGroups(base, g Group) Comparison {
	return Comparison{
		Group:      g,
		TimeDiff:   percentChange(base.Time.Mean, g.Time.Mean),
		MemoryDiff: percentChange(base.Memory.Mean, g.Memory.Mean),
		TimeP:      pValue(base.times, g.times),
		MemoryP:    pValue(base.memories, g.memories),
	}
}

func percentChange(prev, curr float64) float64 {
	if prev == 0 {
		return 0
	}
	return (curr - prev) / math.Abs(prev) * 100
}

func pValue(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 1
	}
	sa := benchmath.NewSample(append([]float64(nil), a...), &benchmath.DefaultThresholds)
	sb := benchmath.NewSample(append([]float64(nil), b...), &benchmath.DefaultThresholds)
	p := benchmath.AssumeNothing.Compare(sa, sb).P
	if math.IsNaN(p) {
		return 1
	}
	return p
}

func (c Comparison) String() string {
	return fmt.Sprintf("%s: %+.2f%% time, %+.2f%% memory", c.Source, c.TimeDiff, c.MemoryDiff)
}
