package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. QUERYBENCH_RUNS.
const EnvPrefix = "QUERYBENCH"

// Load initializes the configuration from file and environment variables.
// A missing default config.yaml is not an error; a missing explicit file is.
func Load(cfgFile string) error {
	// .env is optional
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	SetDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	return nil
}

// SetDefaults registers the default of every key.
func SetDefaults() {
	viper.SetDefault("dataset_dir", "datasets")
	viper.SetDefault("results_dir", "results")
	viper.SetDefault("runs", 10)
	viper.SetDefault("warmup", 3)
	viper.SetDefault("mode", "cold")
	viper.SetDefault("timeout", 10*time.Minute)
	viper.SetDefault("gc_policy", "cold")
	viper.SetDefault("cv_unit", "percent")
	viper.SetDefault("verbose", false)
	viper.SetDefault("log_file", "results/benchmark_log.txt")
	viper.SetDefault("history.type", "")
	viper.SetDefault("history.dsn", "")
	viper.SetDefault("metrics_addr", "")
	viper.SetDefault("metrics_file", "")
}
