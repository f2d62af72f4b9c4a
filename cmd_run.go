package main

import (
	"fmt"
	"io"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"batchpurge/internal/db"
	"batchpurge/internal/purge"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the purge once and exit",
	Long: "Runs the three purge steps once with the configured retention window. " +
		"A failed step aborts the run; running again resumes where it stopped.",
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntP("days", "d", 0, "Days to retain for this run (default APP_DAYS_TO_RETAIN)")
	runCmd.Flags().Bool("dry-run", false, "Count candidates without deleting anything")
}

func runOnce(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	days := cfg.DaysToRetain
	if cmd.Flags().Changed("days") {
		days, _ = cmd.Flags().GetInt("days")
	}
	if err := purge.ValidateDaysToRetain(days); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	runner, _, err := newRunner(gdb)
	if err != nil {
		return err
	}

	var report *purge.Report
	if dryRun {
		report, err = runner.DryRun(ctx, days)
	} else {
		report, err = runner.RunWithRetention(ctx, "cli", days)
	}
	if report != nil {
		printReport(cmd.OutOrStdout(), report)
	}
	return err
}

func printReport(w io.Writer, report *purge.Report) {
	fmt.Fprintf(w, "cutoff %s, %d days retained\n", report.Cutoff.Format("2006-01-02 15:04:05 MST"), report.DaysToRetain)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if report.DryRun {
		fmt.Fprintln(tw, "STEP\tCANDIDATES")
		for _, name := range sortedKeys(report.Candidates) {
			fmt.Fprintf(tw, "%s\t%d\n", name, report.Candidates[name])
		}
		return
	}

	fmt.Fprintf(w, "run %d (%s): %s\n", report.ID, report.Key, report.Status())
	fmt.Fprintln(tw, "STEP\tSTATE\tCHUNKS\tITEMS\tROWS\tDURATION")
	for _, s := range report.Steps {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", s.Name, s.State, s.Chunks, s.Items, s.Counts.Total(), s.Duration())
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
