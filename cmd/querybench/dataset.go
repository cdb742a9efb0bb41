package main

import (
	"fmt"

	"querybench/internal/backend"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Prepare benchmark datasets",
}

var datasetConvertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert eCommerce.csv to eCommerce.parquet for the parquet engine",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ds := backend.Dataset{Dir: settings.DatasetDir}
		fmt.Fprintf(cmd.OutOrStdout(), "Converting %s\n", ds.CSVPath())

		stats, err := backend.Convert(cmd.Context(), ds)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %d rows, %s\n", ds.ParquetPath(), stats.Rows, humanize.Bytes(uint64(stats.Bytes)))
		if stats.Skipped > 0 {
			fmt.Fprintln(cmd.OutOrStdout(), failStyle.Render(fmt.Sprintf("Skipped %d malformed rows", stats.Skipped)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(datasetCmd)
	datasetCmd.AddCommand(datasetConvertCmd)
}
