package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"querybench/internal/benchmark"

	"github.com/spf13/cobra"
)

var compareFormat string

var compareCmd = &cobra.Command{
	Use:   "compare [FILE...]",
	Short: "Compare result files against the first one",
	Long: `Summarizes each result file and compares its mean time and memory against
the first file that holds data, with a Mann-Whitney U p-value per metric.
Header-only files are skipped. Without arguments every CSV file in the
results directory is compared, in name order.`,
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)
	compareCmd.Flags().StringVar(&compareFormat, "format", "table", "Output format: table, markdown or json")
}

func runCompare(cmd *cobra.Command, args []string) error {
	switch compareFormat {
	case "table", "markdown", "json":
	default:
		return fmt.Errorf("unknown format %q (want table, markdown or json)", compareFormat)
	}

	paths := args
	if len(paths) == 0 {
		matches, err := filepath.Glob(filepath.Join(settings.ResultsDir, "*.csv"))
		if err != nil {
			return err
		}
		sort.Strings(matches)
		paths = matches
	}
	if len(paths) == 0 {
		return fmt.Errorf("no result files found in %s", settings.ResultsDir)
	}

	report, err := benchmark.Compare(paths, settings.CVUnit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch compareFormat {
	case "markdown":
		return writeMarkdown(out, reportMarkdown(report))
	case "json":
		return writeJSON(out, report)
	default:
		return writeReportTable(out, report)
	}
}
