package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"querybench/internal/benchmark"
	"querybench/internal/db"
	"querybench/internal/utils"

	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historySince string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded benchmark sessions",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		var cutoff time.Time
		if historySince != "" {
			t, err := utils.ParseSince(historySince, now)
			if err != nil {
				return err
			}
			cutoff = t
		}

		store, err := openHistory(true)
		if err != nil {
			return err
		}
		defer store.Close()

		sessions, err := store.ListSessions(cmd.Context(), historyLimit, cutoff)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded.")
			return nil
		}
		return printSessionList(cmd, sessions, now)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show the runs and summary of one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid session id %q", args[0])
		}

		store, err := openHistory(true)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.LoadRuns(cmd.Context(), id)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "RUN\tMEMORY (MB)\tTIME (s)")
		for _, r := range runs {
			fmt.Fprintf(w, "%d\t%.6f\t%.6f\n", r.Run, r.MemoryMB, r.TimeS)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		session := &benchmark.Session{Records: runs}
		benchmark.WriteSummary(out, "Time (s)", session.Times(), settings.CVUnit)
		benchmark.WriteSummary(out, "Memory (MB)", session.Memories(), settings.CVUnit)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of sessions to list")
	historyListCmd.Flags().StringVar(&historySince, "since", "", "Only sessions started after this age or date (7d, 24h, 2024-01-31)")
}

func printSessionList(cmd *cobra.Command, sessions []db.SessionInfo, now time.Time) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tTOOL\tFUNCTION\tMODE\tOK\tFAILED\tSTARTED\tDURATION")
	for _, s := range sessions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d/%d\t%d\t%s\t%s\n",
			s.ID, s.Tool, s.Function, s.Mode, s.Succeeded, s.Requested, s.Failures,
			utils.FormatAge(s.StartedAt, now), s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	}
	return w.Flush()
}
