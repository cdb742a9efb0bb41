package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"querybench/internal/backend"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tools, query functions and dataset availability",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ds := backend.Dataset{Dir: settings.DatasetDir}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)

		header := "TOOL\tDATASET"
		for _, fn := range backend.Functions {
			header += "\t" + string(fn)
		}
		fmt.Fprintln(w, header)

		for _, tool := range backend.Tools {
			status := "missing"
			if _, err := os.Stat(ds.Path(tool)); err == nil {
				status = "ok"
			}
			line := string(tool) + "\t" + status
			for _, fn := range backend.Functions {
				if backend.Supports(tool, fn) {
					line += "\tyes"
				} else {
					line += "\t-"
				}
			}
			fmt.Fprintln(w, line)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
