package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"querybench/internal/benchmark"

	"github.com/spf13/viper"
)

// Settings is the typed view of the configuration.
type Settings struct {
	DatasetDir  string
	ResultsDir  string
	Runs        int
	Warmup      int
	Mode        benchmark.Mode
	Timeout     time.Duration
	GCPolicy    benchmark.GCPolicy
	CVUnit      benchmark.CVUnit
	Verbose     bool
	LogFile     string
	HistoryType string
	HistoryDSN  string
	MetricsAddr string
	MetricsFile string
}

// BenchmarkConfig converts the settings into runner settings.
func (s Settings) BenchmarkConfig() benchmark.Config {
	return benchmark.Config{
		Runs:     s.Runs,
		Warmup:   s.Warmup,
		Timeout:  s.Timeout,
		GCPolicy: s.GCPolicy,
	}
}

// HistoryEnabled reports whether sessions are persisted to a database.
func (s Settings) HistoryEnabled() bool {
	return s.HistoryType != ""
}

// Current validates the loaded configuration and returns it typed.
func Current() (Settings, error) {
	if err := ValidateConfig(); err != nil {
		return Settings{}, err
	}
	// Validated above, so the parse errors cannot happen.
	mode, _ := benchmark.ParseMode(viper.GetString("mode"))
	gc, _ := benchmark.ParseGCPolicy(viper.GetString("gc_policy"))
	unit, _ := benchmark.ParseCVUnit(viper.GetString("cv_unit"))

	return Settings{
		DatasetDir:  viper.GetString("dataset_dir"),
		ResultsDir:  viper.GetString("results_dir"),
		Runs:        viper.GetInt("runs"),
		Warmup:      viper.GetInt("warmup"),
		Mode:        mode,
		Timeout:     timeoutValue("timeout"),
		GCPolicy:    gc,
		CVUnit:      unit,
		Verbose:     viper.GetBool("verbose"),
		LogFile:     viper.GetString("log_file"),
		HistoryType: strings.ToLower(viper.GetString("history.type")),
		HistoryDSN:  viper.GetString("history.dsn"),
		MetricsAddr: viper.GetString("metrics_addr"),
		MetricsFile: viper.GetString("metrics_file"),
	}, nil
}

// timeoutValue reads a duration. Bare numbers, from YAML or from the
// environment, are seconds.
func timeoutValue(key string) time.Duration {
	switch v := viper.Get(key).(type) {
	case int:
		return time.Duration(v) * time.Second
	case int32:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case uint:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	case string:
		if s, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return time.Duration(s) * time.Second
		}
	}
	return viper.GetDuration(key)
}

// ValidateConfig validates configuration values and returns an error if any are invalid.
// This function should be called after viper has loaded the configuration.
func ValidateConfig() error {
	var errors []string

	if runs := viper.GetInt("runs"); runs < 1 {
		errors = append(errors, fmt.Sprintf("runs must be at least 1, got: %d", runs))
	}
	if warmup := viper.GetInt("warmup"); warmup < 0 {
		errors = append(errors, fmt.Sprintf("warmup must not be negative, got: %d", warmup))
	}

	if viper.IsSet("timeout") {
		if timeout := timeoutValue("timeout"); timeout < 0 {
			errors = append(errors, fmt.Sprintf("timeout must not be negative, got: %v", timeout))
		}
	}

	if _, err := benchmark.ParseMode(viper.GetString("mode")); err != nil {
		errors = append(errors, err.Error())
	}
	if _, err := benchmark.ParseGCPolicy(viper.GetString("gc_policy")); err != nil {
		errors = append(errors, err.Error())
	}
	if _, err := benchmark.ParseCVUnit(viper.GetString("cv_unit")); err != nil {
		errors = append(errors, err.Error())
	}

	switch t := strings.ToLower(viper.GetString("history.type")); t {
	case "", "sqlite", "sqlite3":
	case "postgres", "postgresql":
		if viper.GetString("history.dsn") == "" {
			errors = append(errors, "history.dsn is required for postgres history")
		}
	default:
		errors = append(errors, fmt.Sprintf("history.type must be sqlite or postgres, got: %s", t))
	}

	if addr := viper.GetString("metrics_addr"); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errors = append(errors, fmt.Sprintf("metrics_addr must be host:port, got: %s", addr))
		}
	}

	if viper.GetString("dataset_dir") == "" {
		errors = append(errors, "dataset_dir must not be empty")
	}
	if viper.GetString("results_dir") == "" {
		errors = append(errors, "results_dir must not be empty")
	}

	if len(errors) > 0 {
		return fmt.Errorf("%w:\n  %s", benchmark.ErrInvalidConfig, strings.Join(errors, "\n  "))
	}

	return nil
}
