package benchmark

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepSampler alternates between a base and base+1 MB.
type stepSampler struct {
	calls int
}

func (s *stepSampler) ResidentMB() float64 {
	s.calls++
	if s.calls%2 == 1 {
		return 100
	}
	return 101
}

func newTestProbe() *Probe {
	p := NewProbe(&stepSampler{})
	var tick time.Duration
	base := time.Unix(0, 0)
	p.now = func() time.Time {
		tick += 500 * time.Millisecond
		return base.Add(tick)
	}
	return p
}

type scriptedLauncher struct {
	outputs []string
	errs    []error
	reqs    []LaunchRequest
}

func (l *scriptedLauncher) Launch(ctx context.Context, req LaunchRequest) ([]byte, error) {
	i := len(l.reqs)
	l.reqs = append(l.reqs, req)
	var err error
	if i < len(l.errs) {
		err = l.errs[i]
	}
	out := l.outputs[len(l.outputs)-1]
	if i < len(l.outputs) {
		out = l.outputs[i]
	}
	return []byte(out), err
}

type recordingObserver struct {
	completed []Record
	failed    []error
}

func (o *recordingObserver) RunCompleted(spec Spec, rec Record) {
	o.completed = append(o.completed, rec)
}

func (o *recordingObserver) RunFailed(spec Spec, run int, err error) {
	o.failed = append(o.failed, err)
}

func quietConfig(runs, warmup int) Config {
	cfg := DefaultConfig()
	cfg.Runs = runs
	cfg.Warmup = warmup
	return cfg
}

func TestRunner_Cold(t *testing.T) {
	launcher := &scriptedLauncher{outputs: []string{"Memory = 2.5 MB\nTime = 0.25 s\n"}}
	r := NewRunner(launcher, nil)

	session, err := r.Run(context.Background(), Spec{Tool: "duckdb", Function: "filtering_counting", Mode: ModeCold}, nil, quietConfig(3, 3))
	require.NoError(t, err)

	require.Len(t, session.Records, 3)
	for i, rec := range session.Records {
		assert.Equal(t, i+1, rec.Run)
	}
	assert.Equal(t, 0, session.Failures)

	s, ok := Summarize(session.Times(), CVPercent)
	require.True(t, ok)
	assert.Equal(t, s.Min, s.Max)
	assert.Equal(t, s.Mean, s.Min)
	assert.Equal(t, 0.0, s.Std)

	// Cold runs collect by default and never warm up.
	require.Len(t, launcher.reqs, 3)
	for _, req := range launcher.reqs {
		assert.True(t, req.CollectGC)
		assert.False(t, req.Isolated)
		assert.Equal(t, 0, req.Warmup)
	}
}

func TestRunner_ColdFailuresAreExcluded(t *testing.T) {
	launcher := &scriptedLauncher{
		outputs: []string{
			"Memory = 1 MB\nTime = 0.1 s",
			"exit status 1",
			"",
			"garbage",
			"Memory = 3 MB\nTime = 0.3 s",
		},
		errs: []error{nil, ErrRunFailed, ErrRunTimeout, nil, nil},
	}
	obs := &recordingObserver{}
	r := NewRunner(launcher, nil, WithObserver(obs))

	session, err := r.Run(context.Background(), Spec{Tool: "sqlite", Function: "filtering_counting", Mode: ModeCold}, nil, quietConfig(5, 0))
	require.NoError(t, err)

	require.Len(t, session.Records, 2)
	assert.Equal(t, 1, session.Records[0].Run)
	assert.Equal(t, 5, session.Records[1].Run)
	assert.Equal(t, 3, session.Failures)

	require.Len(t, obs.failed, 3)
	assert.ErrorIs(t, obs.failed[0], ErrRunFailed)
	assert.ErrorIs(t, obs.failed[1], ErrRunTimeout)
	assert.ErrorIs(t, obs.failed[2], ErrUnparsableOutput)
	assert.Len(t, obs.completed, 2)
}

func TestRunner_HotSkipsFailedRun(t *testing.T) {
	var calls int
	target := func(ctx context.Context, w io.Writer) error {
		calls++
		if calls == 3 {
			return errors.New("boom")
		}
		fmt.Fprintf(w, "result %d\n", calls)
		return nil
	}
	var out bytes.Buffer
	r := NewRunner(nil, newTestProbe(), WithOutput(&out))

	session, err := r.Run(context.Background(), Spec{Tool: "csv", Function: "filtering_counting", Mode: ModeHot}, target, quietConfig(5, 3))
	require.NoError(t, err)

	assert.Equal(t, 5, calls)
	require.Len(t, session.Records, 4)
	assert.Equal(t, []int{1, 2, 4, 5}, runIndexes(session))
	assert.Equal(t, 1, session.Failures)
	assert.Equal(t, "result 1\nresult 2\nresult 4\nresult 5\n", out.String())

	for _, rec := range session.Records {
		assert.Equal(t, 1.0, rec.MemoryMB)
		assert.Equal(t, 0.5, rec.TimeS)
	}
}

func TestRunner_WarmDiscardsWarmups(t *testing.T) {
	var calls int
	var sawWarmupOutput bool
	target := func(ctx context.Context, w io.Writer) error {
		calls++
		if calls <= 2 {
			sawWarmupOutput = w != io.Discard
			return errors.New("warm-up failures are ignored")
		}
		return nil
	}
	obs := &recordingObserver{}
	r := NewRunner(nil, newTestProbe(), WithObserver(obs))

	session, err := r.Run(context.Background(), Spec{Tool: "arrow", Function: "filtering_counting", Mode: ModeWarm}, target, quietConfig(3, 2))
	require.NoError(t, err)

	assert.Equal(t, 5, calls)
	assert.False(t, sawWarmupOutput)
	assert.Equal(t, []int{1, 2, 3}, runIndexes(session))
	assert.Equal(t, 0, session.Failures)
	assert.Empty(t, obs.failed)
}

func TestRunner_HotRecoversPanic(t *testing.T) {
	var calls int
	target := func(ctx context.Context, w io.Writer) error {
		calls++
		if calls == 1 {
			panic("index out of range")
		}
		return nil
	}
	obs := &recordingObserver{}
	r := NewRunner(nil, newTestProbe(), WithObserver(obs))

	session, err := r.Run(context.Background(), Spec{Tool: "parquet", Function: "filtering_counting", Mode: ModeHot}, target, quietConfig(2, 0))
	require.NoError(t, err)
	assert.Equal(t, []int{2}, runIndexes(session))
	require.Len(t, obs.failed, 1)
	assert.ErrorIs(t, obs.failed[0], ErrRunFailed)
}

func TestRunner_HotTimeout(t *testing.T) {
	target := func(ctx context.Context, w io.Writer) error {
		<-ctx.Done()
		return ctx.Err()
	}
	obs := &recordingObserver{}
	r := NewRunner(nil, newTestProbe(), WithObserver(obs))
	cfg := quietConfig(1, 0)
	cfg.Timeout = 10 * time.Millisecond

	session, err := r.Run(context.Background(), Spec{Tool: "duckdb", Function: "filtering_counting", Mode: ModeHot}, target, cfg)
	require.NoError(t, err)
	assert.Empty(t, session.Records)
	require.Len(t, obs.failed, 1)
	assert.ErrorIs(t, obs.failed[0], ErrRunTimeout)
}

func TestRunner_ZeroSuccessfulRuns(t *testing.T) {
	launcher := &scriptedLauncher{outputs: []string{"nothing useful"}}
	r := NewRunner(launcher, nil)

	session, err := r.Run(context.Background(), Spec{Tool: "duckdb", Function: "filtering_counting", Mode: ModeCold}, nil, quietConfig(2, 0))
	require.NoError(t, err)
	assert.Empty(t, session.Records)
	assert.Equal(t, 2, session.Failures)
}

func TestRunner_Isolated(t *testing.T) {
	launcher := &scriptedLauncher{outputs: []string{
		"Run 1: Memory = 1.5 MB, Time = 0.1 s\nRun 2 failed: boom\nRun 3: Memory = 0.5 MB, Time = 0.3 s\nRun 9: Memory = 1 MB, Time = 1 s\n",
	}}
	obs := &recordingObserver{}
	r := NewRunner(launcher, nil, WithObserver(obs))
	cfg := quietConfig(3, 2)
	cfg.Isolated = true

	session, err := r.Run(context.Background(), Spec{Tool: "sqlite", Function: "filtering_counting", Mode: ModeWarm}, nil, cfg)
	require.NoError(t, err)

	require.Len(t, launcher.reqs, 1)
	req := launcher.reqs[0]
	assert.True(t, req.Isolated)
	assert.Equal(t, 3, req.Runs)
	assert.Equal(t, 2, req.Warmup)
	assert.False(t, req.CollectGC)

	assert.Equal(t, []int{1, 3}, runIndexes(session))
	assert.Equal(t, 1, session.Failures)
	require.Len(t, obs.failed, 1)
	assert.ErrorIs(t, obs.failed[0], ErrUnparsableOutput)
}

func TestRunner_InvalidConfig(t *testing.T) {
	r := NewRunner(&scriptedLauncher{outputs: []string{""}}, newTestProbe())

	_, err := r.Run(context.Background(), Spec{Tool: "duckdb", Function: "f", Mode: ModeCold}, nil, quietConfig(0, 0))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = r.Run(context.Background(), Spec{Tool: "duckdb", Function: "f", Mode: "lukewarm"}, nil, quietConfig(1, 0))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := quietConfig(1, -1)
	cfg.GCPolicy = "sometimes"
	err = cfg.Validate()
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "warmup")
	assert.Contains(t, err.Error(), "gc policy")
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunner(&scriptedLauncher{outputs: []string{"Memory = 1 MB Time = 1 s"}}, nil)

	_, err := r.Run(ctx, Spec{Tool: "duckdb", Function: "f", Mode: ModeCold}, nil, quietConfig(3, 0))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGCPolicy_Collects(t *testing.T) {
	assert.True(t, GCCold.Collects(ModeCold))
	assert.False(t, GCCold.Collects(ModeHot))
	assert.True(t, GCAlways.Collects(ModeWarm))
	assert.False(t, GCNever.Collects(ModeCold))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" HOT ")
	require.NoError(t, err)
	assert.Equal(t, ModeHot, m)

	_, err = ParseMode("lukewarm")
	assert.Error(t, err)
}

func runIndexes(s *Session) []int {
	var out []int
	for _, r := range s.Records {
		out = append(out, r.Run)
	}
	return out
}

// Child process side of the ExecLauncher tests.
func TestBenchmarkHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	switch os.Getenv("HELPER_BEHAVIOR") {
	case "ok":
		fmt.Println("some query output")
		fmt.Println("Memory = 2.5 MB")
		fmt.Println("Time = 0.25 s")
	case "args":
		fmt.Println(strings.Join(os.Args[3:], " "))
	case "fail":
		fmt.Fprintln(os.Stderr, "engine exploded")
		os.Exit(3)
	case "hang":
		time.Sleep(30 * time.Second)
	}
}

func helperCommand(behavior string) func(ctx context.Context, name string, arg ...string) *exec.Cmd {
	return func(ctx context.Context, name string, arg ...string) *exec.Cmd {
		cs := []string{"-test.run=TestBenchmarkHelperProcess", "--", name}
		cs = append(cs, arg...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1", "HELPER_BEHAVIOR=" + behavior}
		return cmd
	}
}

func TestExecLauncher(t *testing.T) {
	defer func() { execCommand = exec.CommandContext }()

	t.Run("ok", func(t *testing.T) {
		execCommand = helperCommand("ok")
		r := NewRunner(NewExecLauncher("querybench"), nil)

		session, err := r.Run(context.Background(), Spec{Tool: "duckdb", Function: "filtering_counting", Mode: ModeCold}, nil, quietConfig(2, 0))
		require.NoError(t, err)
		require.Len(t, session.Records, 2)
		assert.Equal(t, Record{Run: 1, MemoryMB: 2.5, TimeS: 0.25}, session.Records[0])
	})

	t.Run("args", func(t *testing.T) {
		execCommand = helperCommand("args")
		l := NewExecLauncher("querybench", "--dataset-dir", "/data")

		out, err := l.Launch(context.Background(), LaunchRequest{Tool: "sqlite", Function: "filtering_counting", Runs: 4, Warmup: 1, Isolated: true})
		require.NoError(t, err)
		assert.Equal(t,
			"querybench target --tool sqlite --function filtering_counting --gc=false --isolate --runs 4 --warmup 1 --dataset-dir /data",
			strings.TrimSpace(string(out)))
	})

	t.Run("non-zero exit", func(t *testing.T) {
		execCommand = helperCommand("fail")
		out, err := NewExecLauncher("querybench").Launch(context.Background(), LaunchRequest{Tool: "duckdb", Function: "f"})
		assert.ErrorIs(t, err, ErrRunFailed)
		assert.Contains(t, string(out), "engine exploded")
	})

	t.Run("timeout", func(t *testing.T) {
		execCommand = helperCommand("hang")
		obs := &recordingObserver{}
		r := NewRunner(NewExecLauncher("querybench"), nil, WithObserver(obs))
		cfg := quietConfig(1, 0)
		cfg.Timeout = 200 * time.Millisecond

		session, err := r.Run(context.Background(), Spec{Tool: "duckdb", Function: "f", Mode: ModeCold}, nil, cfg)
		require.NoError(t, err)
		assert.Empty(t, session.Records)
		require.Len(t, obs.failed, 1)
		assert.ErrorIs(t, obs.failed[0], ErrRunTimeout)
	})
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short", tail("  short\n", 10))
	assert.Equal(t, "...6789", tail("0123456789", 4))

	// Each "é" is two bytes; a 5 byte cut lands inside the third one from the end.
	out := tail("Fehler: ééééé", 5)
	assert.True(t, utf8.ValidString(out), "%q", out)
	assert.Equal(t, "...éé", out)

	out = tail(strings.Repeat("表", 300), 512)
	assert.True(t, utf8.ValidString(out), "%q", out)
	assert.LessOrEqual(t, len(out), 512+len("..."))
}
