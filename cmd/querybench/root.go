package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"querybench/internal/config"
	"querybench/internal/telemetry"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var exit = os.Exit
var cfgFile string

// settings is the validated configuration of the current invocation.
var settings config.Settings

// closeLog releases the log file opened by initConfig.
var closeLog = func() {}

var rootCmd = &cobra.Command{
	Use:   "querybench",
	Short: "Benchmark analytical queries across embedded engines",
	Long: `querybench runs a fixed set of analytical queries against an e-commerce
event dataset with several embedded engines (DuckDB, SQLite, Arrow, Parquet
and plain CSV) and records wall-clock time and memory growth per run.

Cold runs start a fresh process for every measurement; hot and warm runs
repeat the query inside one process.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n=== CRITICAL ERROR: Command Execution Panic ===\n")
			fmt.Fprintf(os.Stderr, "Error: %v\n", r)
			exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	closeLog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'querybench --help' for usage.")
		exit(1)
	}
}

func init() {
	// Assigned here because initConfig refers back to rootCmd.
	rootCmd.PersistentPreRunE = initConfig

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().String("dataset-dir", "", "Directory holding eCommerce.csv and eCommerce.parquet")
	rootCmd.PersistentFlags().String("results-dir", "", "Directory for result files")
	rootCmd.PersistentFlags().String("log-file", "", "Session log file")
}

// persistentBindings maps viper keys to root flags.
var persistentBindings = map[string]string{
	"verbose":     "verbose",
	"dataset_dir": "dataset-dir",
	"results_dir": "results-dir",
	"log_file":    "log-file",
}

// initConfig loads configuration, binds the flags of the running command and
// sets up logging. Flags are bound here rather than in init so that a reset
// of viper does not lose them.
func initConfig(cmd *cobra.Command, args []string) error {
	if err := config.Load(cfgFile); err != nil {
		return err
	}

	for key, name := range persistentBindings {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			return err
		}
	}
	if cmd == runCmd {
		if err := bindRunFlags(); err != nil {
			return err
		}
	}

	s, err := config.Current()
	if err != nil {
		return err
	}
	settings = s

	// Children report on stdout and must not contend for the session log.
	logFile := s.LogFile
	if cmd == targetCmd {
		logFile = ""
	}
	closeLog()
	closeLog = telemetry.InitLogger(s.Verbose, logFile)
	return nil
}
