package benchmark

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// execCommand is a package-level variable so tests can swap in a helper process.
var execCommand = exec.CommandContext

// LaunchRequest is what a child process is asked to do.
type LaunchRequest struct {
	Tool      string
	Function  string
	Runs      int
	Warmup    int
	CollectGC bool
	Isolated  bool
}

// Launcher starts one child process and returns its combined output.
type Launcher interface {
	Launch(ctx context.Context, req LaunchRequest) ([]byte, error)
}

// ExecLauncher re-executes a binary with its hidden target command.
type ExecLauncher struct {
	Path string
	// ExtraArgs are appended to every invocation (dataset location and so on).
	ExtraArgs []string
}

// NewExecLauncher creates a launcher for the binary at path.
func NewExecLauncher(path string, extraArgs ...string) *ExecLauncher {
	return &ExecLauncher{Path: path, ExtraArgs: extraArgs}
}

// Args builds the command line of the child.
func (l *ExecLauncher) Args(req LaunchRequest) []string {
	args := []string{
		"target",
		"--tool", req.Tool,
		"--function", req.Function,
		"--gc=" + strconv.FormatBool(req.CollectGC),
	}
	if req.Isolated {
		args = append(args,
			"--isolate",
			"--runs", strconv.Itoa(req.Runs),
			"--warmup", strconv.Itoa(req.Warmup),
		)
	}
	return append(args, l.ExtraArgs...)
}

func (l *ExecLauncher) Launch(ctx context.Context, req LaunchRequest) ([]byte, error) {
	cmd := execCommand(ctx, l.Path, l.Args(req)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out, fmt.Errorf("%w: %v", ErrRunTimeout, err)
		}
		return out, fmt.Errorf("%w: %v", ErrRunFailed, err)
	}
	return out, nil
}

// Config holds the settings of one session.
type Config struct {
	Runs     int
	Warmup   int
	Timeout  time.Duration // per run; zero disables it
	GCPolicy GCPolicy
	// Isolated moves every hot or warm run into one child process.
	Isolated bool
}

// DefaultConfig returns the stock session settings.
func DefaultConfig() Config {
	return Config{
		Runs:     10,
		Warmup:   3,
		Timeout:  10 * time.Minute,
		GCPolicy: GCCold,
	}
}

// Validate checks the settings before any run starts.
func (c Config) Validate() error {
	var problems []string
	if c.Runs < 1 {
		problems = append(problems, fmt.Sprintf("runs must be at least 1, got %d", c.Runs))
	}
	if c.Warmup < 0 {
		problems = append(problems, fmt.Sprintf("warmup must not be negative, got %d", c.Warmup))
	}
	if c.Timeout < 0 {
		problems = append(problems, fmt.Sprintf("timeout must not be negative, got %s", c.Timeout))
	}
	if _, err := ParseGCPolicy(string(c.GCPolicy)); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Observer is notified as runs finish.
type Observer interface {
	RunCompleted(spec Spec, rec Record)
	RunFailed(spec Spec, run int, err error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger for run warnings.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

// WithOutput receives the captured output of each in-process measured run.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// Runner drives the runs of a session in the selected mode.
type Runner struct {
	launcher  Launcher
	probe     *Probe
	logger    *slog.Logger
	observers []Observer
	out       io.Writer
}

// NewRunner creates a runner. The launcher serves cold and isolated sessions,
// the probe serves in-process ones; either may be nil if unused.
func NewRunner(launcher Launcher, probe *Probe, opts ...Option) *Runner {
	r := &Runner{
		launcher: launcher,
		probe:    probe,
		logger:   slog.Default(),
		out:      io.Discard,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one session. Failed runs are logged and left out of the
// session; the only errors returned are invalid settings and cancellation.
func (r *Runner) Run(ctx context.Context, spec Spec, target Target, cfg Config) (*Session, error) {
	if _, err := ParseMode(string(spec.Mode)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	session := &Session{
		Spec:      spec,
		Requested: cfg.Runs,
		Records:   make([]Record, 0, cfg.Runs),
		StartedAt: time.Now(),
	}
	collect := cfg.GCPolicy.Collects(spec.Mode)

	var err error
	switch {
	case spec.Mode == ModeCold:
		err = r.runCold(ctx, session, cfg, collect)
	case cfg.Isolated:
		err = r.runIsolated(ctx, session, cfg, collect)
	default:
		err = r.runInProcess(ctx, session, target, cfg, collect)
	}
	session.FinishedAt = time.Now()
	if err != nil {
		return session, err
	}

	r.logger.Info("session finished",
		"tool", spec.Tool, "function", spec.Function, "mode", spec.Mode,
		"ok", len(session.Records), "failed", session.Failures)
	return session, nil
}

func (r *Runner) runCold(ctx context.Context, session *Session, cfg Config, collect bool) error {
	if r.launcher == nil {
		return fmt.Errorf("%w: cold mode needs a launcher", ErrInvalidConfig)
	}
	req := LaunchRequest{
		Tool:      session.Tool,
		Function:  session.Function,
		Runs:      1,
		CollectGC: collect,
	}
	for i := 1; i <= cfg.Runs; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		runCtx, cancel := withOptionalTimeout(ctx, cfg.Timeout)
		out, err := r.launcher.Launch(runCtx, req)
		cancel()

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			r.fail(session, i, err, out)
			continue
		}

		mem, elapsed, ok := ParseOutput(string(out))
		if !ok {
			r.fail(session, i, ErrUnparsableOutput, out)
			continue
		}
		r.complete(session, Record{Run: i, MemoryMB: mem, TimeS: elapsed})
	}
	return nil
}

func (r *Runner) runIsolated(ctx context.Context, session *Session, cfg Config, collect bool) error {
	if r.launcher == nil {
		return fmt.Errorf("%w: isolated mode needs a launcher", ErrInvalidConfig)
	}
	warmup := 0
	if session.Mode == ModeWarm {
		warmup = cfg.Warmup
	}
	req := LaunchRequest{
		Tool:      session.Tool,
		Function:  session.Function,
		Runs:      cfg.Runs,
		Warmup:    warmup,
		CollectGC: collect,
		Isolated:  true,
	}

	var timeout time.Duration
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout * time.Duration(cfg.Runs+warmup)
	}
	runCtx, cancel := withOptionalTimeout(ctx, timeout)
	out, err := r.launcher.Launch(runCtx, req)
	cancel()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		r.logger.Warn("isolated child exited with error",
			"tool", session.Tool, "function", session.Function, "mode", session.Mode,
			"error", err)
	}

	seen := make(map[int]bool)
	for _, rec := range ParseRunLines(string(out)) {
		if rec.Run < 1 || rec.Run > cfg.Runs || seen[rec.Run] {
			continue
		}
		seen[rec.Run] = true
		r.complete(session, rec)
	}
	for i := 1; i <= cfg.Runs; i++ {
		if seen[i] {
			continue
		}
		cause := ErrUnparsableOutput
		if errors.Is(err, ErrRunTimeout) {
			cause = ErrRunTimeout
		} else if err != nil {
			cause = ErrRunFailed
		}
		r.fail(session, i, cause, nil)
	}
	return nil
}

func (r *Runner) runInProcess(ctx context.Context, session *Session, target Target, cfg Config, collect bool) error {
	if r.probe == nil || target == nil {
		return fmt.Errorf("%w: %s mode needs a probe and a target", ErrInvalidConfig, session.Mode)
	}

	if session.Mode == ModeWarm {
		for i := 0; i < cfg.Warmup; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			// Warm-up results and failures are ignored.
			_, _ = r.measure(ctx, 0, target, io.Discard, cfg.Timeout, collect)
		}
	}

	for i := 1; i <= cfg.Runs; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var buf bytes.Buffer
		rec, err := r.measure(ctx, i, target, &buf, cfg.Timeout, collect)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			r.fail(session, i, err, buf.Bytes())
			continue
		}
		_, _ = r.out.Write(buf.Bytes())
		r.complete(session, rec)
	}
	return nil
}

// measure runs one in-process invocation, turning panics into run failures.
func (r *Runner) measure(ctx context.Context, run int, target Target, w io.Writer, timeout time.Duration, collect bool) (rec Record, err error) {
	runCtx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic: %v", ErrRunFailed, p)
		}
	}()

	rec, err = r.probe.Measure(runCtx, run, target, w, collect)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return rec, fmt.Errorf("%w: %v", ErrRunTimeout, err)
		}
		return rec, fmt.Errorf("%w: %v", ErrRunFailed, err)
	}
	return rec, nil
}

func (r *Runner) complete(session *Session, rec Record) {
	session.Records = append(session.Records, rec)
	for _, o := range r.observers {
		o.RunCompleted(session.Spec, rec)
	}
}

func (r *Runner) fail(session *Session, run int, err error, output []byte) {
	session.Failures++
	msg := "run failed"
	switch {
	case errors.Is(err, ErrRunTimeout):
		msg = "run timed out"
	case errors.Is(err, ErrUnparsableOutput):
		msg = "run output could not be parsed"
	}
	attrs := []any{
		"tool", session.Tool,
		"function", session.Function,
		"mode", session.Mode,
		"run", run,
		"error", err,
	}
	if len(output) > 0 {
		attrs = append(attrs, "output", tail(string(output), 512))
	}
	r.logger.Warn(msg, attrs...)
	for _, o := range r.observers {
		o.RunFailed(session.Spec, run, err)
	}
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// tail keeps at most the last n bytes of s, cut on a rune boundary.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return "..." + s[i:]
}
