package benchmark

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const bytesPerMB = 1024 * 1024

// MemorySampler reports the resident memory of the current process in MB.
type MemorySampler interface {
	ResidentMB() float64
}

type processSampler struct {
	proc *process.Process
}

// NewProcessSampler samples RSS of this process via gopsutil.
func NewProcessSampler() (MemorySampler, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open process %d: %w", os.Getpid(), err)
	}
	return &processSampler{proc: p}, nil
}

func (s *processSampler) ResidentMB() float64 {
	info, err := s.proc.MemoryInfo()
	if err != nil {
		// Fall back to what the Go runtime obtained from the OS.
		slog.Debug("rss sample failed, using runtime stats", "error", err)
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return float64(ms.Sys) / bytesPerMB
	}
	return float64(info.RSS) / bytesPerMB
}

// GCPolicy decides when a collection is forced around a measurement.
type GCPolicy string

const (
	GCCold   GCPolicy = "cold"
	GCAlways GCPolicy = "always"
	GCNever  GCPolicy = "never"
)

// ParseGCPolicy validates a policy name.
func ParseGCPolicy(s string) (GCPolicy, error) {
	switch p := GCPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case GCCold, GCAlways, GCNever:
		return p, nil
	}
	return "", fmt.Errorf("unknown gc policy %q (want cold, always or never)", s)
}

// Collects reports whether runs of the given mode force a GC.
func (p GCPolicy) Collects(mode Mode) bool {
	switch p {
	case GCAlways:
		return true
	case GCNever:
		return false
	default:
		return mode == ModeCold
	}
}

// Probe measures single invocations of a Target.
type Probe struct {
	sampler MemorySampler
	now     func() time.Time
}

// NewProbe creates a probe over the given sampler.
func NewProbe(sampler MemorySampler) *Probe {
	return &Probe{sampler: sampler, now: time.Now}
}

// Measure runs target once and returns its time and RSS delta. The target's
// error is returned unchanged alongside the partial record.
func (p *Probe) Measure(ctx context.Context, run int, target Target, w io.Writer, collect bool) (Record, error) {
	if collect {
		runtime.GC()
	}
	start := p.now()
	memBefore := p.sampler.ResidentMB()

	err := target(ctx, w)

	memAfter := p.sampler.ResidentMB()
	elapsed := p.now().Sub(start)
	if collect {
		runtime.GC()
	}

	return Record{
		Run:      run,
		MemoryMB: memAfter - memBefore,
		TimeS:    elapsed.Seconds(),
	}, err
}
