package main

import (
	"querybench/internal/backend"
	"querybench/internal/benchmark"

	"github.com/spf13/cobra"
)

var (
	targetTool     string
	targetFunction string
	targetGC       bool
	targetIsolate  bool
	targetRuns     int
	targetWarmup   int
)

// targetCmd is the child side of cold and isolated sessions. Its stdout is
// parsed by the parent, so it prints nothing but the report.
var targetCmd = &cobra.Command{
	Use:    "target",
	Short:  "Measure a query in this process and report it",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runTarget,
}

func init() {
	rootCmd.AddCommand(targetCmd)
	targetCmd.Flags().StringVar(&targetTool, "tool", "", "Tool to run")
	targetCmd.Flags().StringVar(&targetFunction, "function", "", "Query function to run")
	targetCmd.Flags().BoolVar(&targetGC, "gc", false, "Force a collection before and after each run")
	targetCmd.Flags().BoolVar(&targetIsolate, "isolate", false, "Run every warm-up and measured run and print one line per run")
	targetCmd.Flags().IntVar(&targetRuns, "runs", 1, "Measured runs (with --isolate)")
	targetCmd.Flags().IntVar(&targetWarmup, "warmup", 0, "Warm-up runs (with --isolate)")
}

func runTarget(cmd *cobra.Command, args []string) error {
	tool, err := backend.ParseTool(targetTool)
	if err != nil {
		return err
	}
	fn, err := backend.ParseFunction(targetFunction)
	if err != nil {
		return err
	}

	catalog := backend.NewCatalog(backend.Dataset{Dir: settings.DatasetDir})
	defer catalog.Close()

	target, err := catalog.Target(tool, fn)
	if err != nil {
		return err
	}
	sampler, err := benchmark.NewProcessSampler()
	if err != nil {
		return err
	}

	return benchmark.ServeChild(cmd.Context(), cmd.OutOrStdout(), benchmark.NewProbe(sampler), target, benchmark.ChildRequest{
		Runs:      targetRuns,
		Warmup:    targetWarmup,
		CollectGC: targetGC,
		Isolated:  targetIsolate,
	})
}
