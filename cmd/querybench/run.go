package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"querybench/internal/backend"
	"querybench/internal/benchmark"
	"querybench/internal/db"
	"querybench/internal/metrics"
	"querybench/internal/telemetry"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	runTools    string
	runFunction string
	runOutput   string
	runIsolate  bool
	runHistory  bool
)

// executable and newLauncher are package-level so tests can replace the
// child process with a scripted launcher.
var executable = os.Executable

var newLauncher = func(path string, extraArgs ...string) benchmark.Launcher {
	return benchmark.NewExecLauncher(path, extraArgs...)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Benchmark one query function with one or more tools",
	Long: `Runs a benchmark session per tool and writes its runs to
<results_dir>/<tool>_<function>_<mode>.csv. With more than one tool the
sessions are compared against the first tool once they are all done.

Cold mode starts a fresh child process per run. Hot mode repeats the query in
this process; warm mode does the same after discarded warm-up runs. --isolate
moves hot and warm sessions into a single child process.`,
	Example: `  querybench run --tool duckdb --function filtering_counting
  querybench run --tool duckdb,sqlite,arrow --mode warm --runs 20
  querybench run --tool csv --mode hot --isolate --history`,
	Args: cobra.NoArgs,
	RunE: runBenchmarks,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVarP(&runTools, "tool", "t", string(backend.DuckDB), "Comma-separated tools: "+toolNames())
	f.StringVarP(&runFunction, "function", "f", string(backend.FilteringCounting), "Query function to run")
	f.StringP("mode", "m", string(benchmark.ModeCold), "Benchmark mode: cold, hot or warm")
	f.IntP("runs", "n", 10, "Measured runs per tool")
	f.Int("warmup", 3, "Discarded warm-up runs (warm mode)")
	f.Duration("timeout", 10*time.Minute, "Per-run timeout, 0 disables it")
	f.String("gc-policy", string(benchmark.GCCold), "When to force a collection around a run: cold, always or never")
	f.String("cv-unit", string(benchmark.CVPercent), "Coefficient of variation unit: percent or fraction")
	f.String("metrics-addr", "", "Serve Prometheus metrics on host:port while running")
	f.String("metrics-file", "", "Write metrics in node-exporter textfile format when done")
	f.StringVarP(&runOutput, "output", "o", "", "Result file path (single tool only)")
	f.BoolVar(&runIsolate, "isolate", false, "Run hot and warm sessions inside one child process")
	f.BoolVar(&runHistory, "history", false, "Record sessions in the history database (sqlite unless configured)")
}

var runBindings = map[string]string{
	"mode":         "mode",
	"runs":         "runs",
	"warmup":       "warmup",
	"timeout":      "timeout",
	"gc_policy":    "gc-policy",
	"cv_unit":      "cv-unit",
	"metrics_addr": "metrics-addr",
	"metrics_file": "metrics-file",
}

func bindRunFlags() error {
	for key, name := range runBindings {
		if err := viper.BindPFlag(key, runCmd.Flags().Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

func toolNames() string {
	names := make([]string, len(backend.Tools))
	for i, t := range backend.Tools {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// suite carries what every session of one invocation shares.
type suite struct {
	out     io.Writer
	runner  *benchmark.Runner
	catalog *backend.Catalog
	cfg     benchmark.Config
	metrics *metrics.Metrics
	history db.Store
}

func runBenchmarks(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// Argument errors abort before any run starts.
	tools, err := backend.ParseTools(runTools)
	if err != nil {
		return err
	}
	fn, err := backend.ParseFunction(runFunction)
	if err != nil {
		return err
	}
	for _, tool := range tools {
		if !backend.Supports(tool, fn) {
			return fmt.Errorf("%s does not implement %s", tool, fn)
		}
	}
	if runOutput != "" && len(tools) > 1 {
		return fmt.Errorf("--output names one file but %d tools were requested", len(tools))
	}

	cfg := settings.BenchmarkConfig()
	cfg.Isolated = runIsolate
	if err := cfg.Validate(); err != nil {
		return err
	}

	m := metrics.NewMetrics()
	if settings.MetricsAddr != "" {
		if _, err := telemetry.StartMetricsServer(ctx, settings.MetricsAddr, m.Handler()); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	history, err := openHistory(runHistory)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
	}

	runner, err := buildRunner(m)
	if err != nil {
		return err
	}

	catalog := backend.NewCatalog(backend.Dataset{Dir: settings.DatasetDir})
	defer catalog.Close()

	s := &suite{
		out:     cmd.OutOrStdout(),
		runner:  runner,
		catalog: catalog,
		cfg:     cfg,
		metrics: m,
		history: history,
	}

	var written []string
	for _, tool := range tools {
		path, err := s.run(ctx, tool, fn)
		if err != nil {
			return err
		}
		written = append(written, path)
	}

	if len(written) > 1 {
		report, err := benchmark.Compare(written, settings.CVUnit)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: comparison skipped: %v\n", err)
		} else {
			fmt.Fprintln(s.out)
			if err := writeReportTable(s.out, report); err != nil {
				return err
			}
		}
	}

	if settings.MetricsFile != "" {
		if err := m.WriteTextfile(settings.MetricsFile); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}
	return nil
}

// run executes one session and persists it. It returns the result file path.
func (s *suite) run(ctx context.Context, tool backend.Tool, fn backend.Function) (string, error) {
	spec := benchmark.Spec{Tool: string(tool), Function: string(fn), Mode: settings.Mode}

	var target benchmark.Target
	if spec.Mode != benchmark.ModeCold && !s.cfg.Isolated {
		t, err := s.catalog.Target(tool, fn)
		if err != nil {
			return "", err
		}
		target = t
	}

	fmt.Fprintf(s.out, "Running %s: %d runs\n", spec, s.cfg.Runs)
	session, err := s.runner.Run(ctx, spec, target, s.cfg)
	if err != nil {
		return "", err
	}
	s.metrics.SessionFinished(session)

	path := runOutput
	if path == "" {
		path = benchmark.ResultPath(settings.ResultsDir, spec.Tool, spec.Function, spec.Mode)
	}
	file, err := benchmark.NewResultFile(path)
	if err != nil {
		return "", err
	}
	if err := file.Save(session); err != nil {
		return "", fmt.Errorf("failed to save results: %w", err)
	}

	printSession(s.out, session, settings.CVUnit)
	fmt.Fprintf(s.out, "Results saved to %s\n", path)

	if s.history != nil {
		id, err := s.history.SaveSession(ctx, session)
		if err != nil {
			telemetry.LogError("failed to record session history", err, "tool", spec.Tool, "function", spec.Function)
		} else {
			fmt.Fprintf(s.out, "Recorded as session %d\n", id)
		}
	}
	fmt.Fprintln(s.out)
	return path, nil
}

func buildRunner(m *metrics.Metrics) (*benchmark.Runner, error) {
	exe, err := executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	datasetDir, err := filepath.Abs(settings.DatasetDir)
	if err != nil {
		return nil, err
	}
	extra := []string{"--dataset-dir", datasetDir}
	if cfgFile != "" {
		extra = append(extra, "--config", cfgFile)
	}

	sampler, err := benchmark.NewProcessSampler()
	if err != nil {
		return nil, err
	}

	opts := []benchmark.Option{
		benchmark.WithLogger(slog.Default()),
		benchmark.WithObserver(m),
	}
	if settings.Verbose {
		opts = append(opts, benchmark.WithOutput(os.Stderr))
	}
	return benchmark.NewRunner(newLauncher(exe, extra...), benchmark.NewProbe(sampler), opts...), nil
}

// openHistory returns nil when history is neither configured nor forced.
func openHistory(force bool) (db.Store, error) {
	typ, dsn := settings.HistoryType, settings.HistoryDSN
	if !settings.HistoryEnabled() {
		if !force {
			return nil, nil
		}
		typ = "sqlite"
	}
	if dsn == "" && typ != "postgres" && typ != "postgresql" {
		dsn = filepath.Join(settings.ResultsDir, "history.db")
	}
	store, err := db.NewStore(db.StoreConfig{Type: typ, ConnectionString: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return store, nil
}
