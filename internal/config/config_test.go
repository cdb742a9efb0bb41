package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"querybench/internal/benchmark"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()

	s, err := Current()
	require.NoError(t, err)
	assert.Equal(t, Settings{
		DatasetDir: "datasets",
		ResultsDir: "results",
		Runs:       10,
		Warmup:     3,
		Mode:       benchmark.ModeCold,
		Timeout:    10 * time.Minute,
		GCPolicy:   benchmark.GCCold,
		CVUnit:     benchmark.CVPercent,
		LogFile:    "results/benchmark_log.txt",
	}, s)
	assert.False(t, s.HistoryEnabled())

	cfg := s.BenchmarkConfig()
	assert.Equal(t, 10, cfg.Runs)
	assert.NoError(t, cfg.Validate())
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name      string
		setup     func()
		wantError bool
		errMsg    string
	}{
		{
			name: "Valid Configuration",
			setup: func() {
				viper.Set("timeout", "30s")
				viper.Set("runs", 5)
				viper.Set("mode", "warm")
				viper.Set("history.type", "sqlite")
				viper.Set("metrics_addr", ":9100")
			},
		},
		{
			name:      "Invalid Runs",
			setup:     func() { viper.Set("runs", 0) },
			wantError: true,
			errMsg:    "runs must be at least 1",
		},
		{
			name:      "Negative Warmup",
			setup:     func() { viper.Set("warmup", -1) },
			wantError: true,
			errMsg:    "warmup must not be negative",
		},
		{
			name:      "Negative Timeout",
			setup:     func() { viper.Set("timeout", -10*time.Second) },
			wantError: true,
			errMsg:    "timeout must not be negative",
		},
		{
			name:      "Unknown Mode",
			setup:     func() { viper.Set("mode", "lukewarm") },
			wantError: true,
			errMsg:    `unknown mode "lukewarm"`,
		},
		{
			name:      "Unknown GC Policy",
			setup:     func() { viper.Set("gc_policy", "sometimes") },
			wantError: true,
			errMsg:    "unknown gc policy",
		},
		{
			name:      "Unknown CV Unit",
			setup:     func() { viper.Set("cv_unit", "ratio") },
			wantError: true,
			errMsg:    "unknown cv unit",
		},
		{
			name:      "Postgres Without DSN",
			setup:     func() { viper.Set("history.type", "postgres") },
			wantError: true,
			errMsg:    "history.dsn is required",
		},
		{
			name:      "Unsupported History",
			setup:     func() { viper.Set("history.type", "mysql") },
			wantError: true,
			errMsg:    "history.type must be sqlite or postgres",
		},
		{
			name:      "Bad Metrics Address",
			setup:     func() { viper.Set("metrics_addr", "localhost") },
			wantError: true,
			errMsg:    "metrics_addr must be host:port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()
			SetDefaults()
			tt.setup()

			err := ValidateConfig()
			if !tt.wantError {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, benchmark.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateConfig_CollectsEveryProblem(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()
	viper.Set("runs", 0)
	viper.Set("mode", "x")

	err := ValidateConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runs must be at least 1")
	assert.Contains(t, err.Error(), `unknown mode "x"`)
}

func TestTimeoutSeconds(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()
	viper.Set("timeout", 90)

	s, err := Current()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, s.Timeout)
}

func TestTimeoutValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  time.Duration
	}{
		{"yaml integer", 90, 90 * time.Second},
		{"yaml float", 1.5, 1500 * time.Millisecond},
		{"bare string", "90", 90 * time.Second},
		{"duration string", "90s", 90 * time.Second},
		{"minutes string", "2m", 2 * time.Minute},
		{"duration", 3 * time.Second, 3 * time.Second},
		{"zero", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()
			viper.Set("timeout", tt.value)
			assert.Equal(t, tt.want, timeoutValue("timeout"))
		})
	}
}

func TestLoad_TimeoutFromEnvironment(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	t.Chdir(t.TempDir())
	t.Setenv("QUERYBENCH_TIMEOUT", "600")

	require.NoError(t, Load(""))

	s, err := Current()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, s.Timeout)
}

func TestLoad(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "bench.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("runs: 4\nmode: hot\nhistory:\n  type: sqlite\n"), 0644))
	t.Setenv("QUERYBENCH_WARMUP", "7")
	t.Setenv("QUERYBENCH_HISTORY_DSN", "/tmp/h.db")

	require.NoError(t, Load(cfgFile))

	s, err := Current()
	require.NoError(t, err)
	assert.Equal(t, 4, s.Runs)
	assert.Equal(t, 7, s.Warmup)
	assert.Equal(t, benchmark.ModeHot, s.Mode)
	assert.Equal(t, "sqlite", s.HistoryType)
	assert.Equal(t, "/tmp/h.db", s.HistoryDSN)
	assert.True(t, s.HistoryEnabled())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
