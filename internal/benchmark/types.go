package benchmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	// ErrRunFailed marks a run whose target returned an error, panicked or
	// whose child process exited non-zero.
	ErrRunFailed = errors.New("run failed")

	// ErrRunTimeout marks a child process killed by the per-run time limit.
	ErrRunTimeout = errors.New("run timed out")

	// ErrUnparsableOutput marks child output without a Memory/Time record.
	ErrUnparsableOutput = errors.New("could not parse run output")

	// ErrMissingColumns is returned when a result file lacks required columns.
	ErrMissingColumns = errors.New("result file is missing required columns")

	// ErrInvalidConfig is returned for invalid session settings.
	ErrInvalidConfig = errors.New("invalid benchmark configuration")
)

// Target is one unit of benchmarked work. Anything it prints goes to w.
type Target func(ctx context.Context, w io.Writer) error

// Mode selects the process topology of a session.
type Mode string

const (
	ModeCold Mode = "cold"
	ModeHot  Mode = "hot"
	ModeWarm Mode = "warm"
)

// Modes lists every supported mode.
var Modes = []Mode{ModeCold, ModeHot, ModeWarm}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Modes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q (want cold, hot or warm)", s)
}

// Record is the measurement of one run.
type Record struct {
	Run      int     `json:"run"`
	MemoryMB float64 `json:"memory_mb"`
	TimeS    float64 `json:"time_s"`
}

// Spec identifies what a session benchmarks.
type Spec struct {
	Tool     string `json:"tool"`
	Function string `json:"function"`
	Mode     Mode   `json:"mode"`
}

func (s Spec) String() string {
	return fmt.Sprintf("%s/%s (%s)", s.Tool, s.Function, s.Mode)
}

// Session collects the records of one benchmark invocation.
type Session struct {
	Spec
	Requested  int       `json:"requested"`
	Records    []Record  `json:"records"`
	Failures   int       `json:"failures"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Memories returns the memory deltas in run order.
func (s *Session) Memories() []float64 {
	out := make([]float64, len(s.Records))
	for i, r := range s.Records {
		out[i] = r.MemoryMB
	}
	return out
}

// Times returns the elapsed times in run order.
func (s *Session) Times() []float64 {
	out := make([]float64, len(s.Records))
	for i, r := range s.Records {
		out[i] = r.TimeS
	}
	return out
}
