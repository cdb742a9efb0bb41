package benchmark

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"golang.org/x/perf/benchmath"
)

// CVUnit selects how the coefficient of variation is expressed.
type CVUnit string

const (
	CVPercent  CVUnit = "percent"
	CVFraction CVUnit = "fraction"
)

// ParseCVUnit validates a unit name.
func ParseCVUnit(s string) (CVUnit, error) {
	switch u := CVUnit(strings.ToLower(strings.TrimSpace(s))); u {
	case CVPercent, CVFraction:
		return u, nil
	}
	return "", fmt.Errorf("unknown cv unit %q (want percent or fraction)", s)
}

// ciConfidence is the confidence level of the median interval.
const ciConfidence = 0.95

// Summary holds the statistics of one metric over a session.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	CV     float64 `json:"cv"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
	Span   float64 `json:"span"`

	// Distribution-free interval around the median. Equal to the median
	// bounds when the sample is too small to say anything.
	CILow      float64 `json:"ci_low"`
	CIHigh     float64 `json:"ci_high"`
	Confidence float64 `json:"confidence"`

	Unit CVUnit `json:"cv_unit"`
}

// Summarize computes the statistics of values. It reports false when values
// is empty, in which case there is nothing to summarize.
func Summarize(values []float64, unit CVUnit) (Summary, bool) {
	n := len(values)
	if n == 0 {
		return Summary{}, false
	}
	if unit == "" {
		unit = CVPercent
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(n)

	var std float64
	if n >= 2 {
		var sq float64
		for _, v := range sorted {
			d := v - mean
			sq += d * d
		}
		std = math.Sqrt(sq / float64(n-1))
	}

	var cv float64
	if mean != 0 {
		cv = std / mean
		if unit == CVPercent {
			cv *= 100
		}
	}

	var median float64
	if n%2 == 1 {
		median = sorted[n/2]
	} else {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	s := Summary{
		Count:      n,
		Mean:       mean,
		Std:        std,
		CV:         cv,
		Min:        sorted[0],
		Max:        sorted[n-1],
		Median:     median,
		Span:       sorted[n-1] - sorted[0],
		CILow:      median,
		CIHigh:     median,
		Confidence: ciConfidence,
		Unit:       unit,
	}

	// NewSample sorts its input, so hand it a private copy.
	sample := benchmath.NewSample(append([]float64(nil), sorted...), &benchmath.DefaultThresholds)
	ci := benchmath.AssumeNothing.Summary(sample, ciConfidence)
	if !math.IsNaN(ci.Lo) && !math.IsInf(ci.Lo, 0) && !math.IsNaN(ci.Hi) && !math.IsInf(ci.Hi, 0) {
		s.CILow, s.CIHigh = ci.Lo, ci.Hi
		s.Confidence = ci.Confidence
	}
	return s, true
}

// WriteSummary prints a labelled summary, or "No data." when values is empty.
func WriteSummary(w io.Writer, label string, values []float64, unit CVUnit) {
	fmt.Fprintf(w, "--- %s ---\n", label)
	s, ok := Summarize(values, unit)
	if !ok {
		fmt.Fprintln(w, "No data.")
		return
	}
	fmt.Fprintf(w, "  Runs:   %d\n", s.Count)
	fmt.Fprintf(w, "  Mean:   %.6f\n", s.Mean)
	fmt.Fprintf(w, "  Std:    %.6f\n", s.Std)
	if s.Unit == CVFraction {
		fmt.Fprintf(w, "  CV:     %.4f\n", s.CV)
	} else {
		fmt.Fprintf(w, "  CV:     %.2f%%\n", s.CV)
	}
	fmt.Fprintf(w, "  Min:    %.6f\n", s.Min)
	fmt.Fprintf(w, "  Max:    %.6f\n", s.Max)
	fmt.Fprintf(w, "  Median: %.6f [%.6f, %.6f] @ %.0f%%\n", s.Median, s.CILow, s.CIHigh, s.Confidence*100)
	fmt.Fprintf(w, "  Span:   %.6f\n", s.Span)
}
