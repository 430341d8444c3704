package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/openkb/chatbench/internal/runner"
	"github.com/openkb/chatbench/internal/store"
)

func newReportCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "report <batch-id>",
		Short: "Print the ranked comparison for a persisted batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID := args[0]

			st, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open results database: %w", err)
			}
			defer func() { _ = st.Close() }()

			runs, err := st.RunsByBatch(cmd.Context(), batchID)
			if err != nil {
				return fmt.Errorf("failed to read runs: %w", err)
			}
			if len(runs) == 0 {
				return fmt.Errorf("no runs found for batch %q", batchID)
			}

			var standings []runner.VersionStanding
			incomplete := 0
			for _, run := range runs {
				if run.CompletedAt == nil {
					incomplete++
					continue
				}
				standings = append(standings, runner.VersionStanding{
					VersionID:    run.VersionID,
					VersionName:  run.VersionName,
					Total:        run.Total,
					Passed:       run.Passed,
					Failed:       run.Failed,
					PassRate:     run.PassRate,
					AverageScore: run.AverageScore,
				})
			}
			if incomplete > 0 {
				fmt.Printf("Warning: %d run(s) never completed and are excluded.\n\n", incomplete)
			}
			if len(standings) == 0 {
				return fmt.Errorf("batch %q has no completed runs", batchID)
			}

			fmt.Printf("Batch: %s\n\n", batchID)
			printComparison(cmd.OutOrStdout(), runner.BuildComparisonReport(standings))
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "chatbench.db", "Results database path")

	return cmd
}

// printComparison renders a comparison report as a ranking table.
func printComparison(w io.Writer, report *runner.ComparisonReport) {
	if report == nil || len(report.Rankings) == 0 {
		fmt.Fprintln(w, "No completed versions to compare.")
		return
	}

	fmt.Fprintf(w, "%-5s %-20s %-8s %-8s %-8s %-10s %-10s\n",
		"Rank", "Version", "Total", "Passed", "Failed", "PassRate", "AvgScore")
	for _, s := range report.Rankings {
		fmt.Fprintf(w, "%-5d %-20s %-8d %-8d %-8d %-10.1f %-10.1f\n",
			s.Rank, s.VersionName, s.Total, s.Passed, s.Failed, s.PassRate, s.AverageScore)
	}

	fmt.Fprintf(w, "\nBest version: %s\n", report.BestVersionID)
	fmt.Fprintf(w, "Pass rate range: %.1f - %.1f (avg %.1f)\n",
		report.PassRate.Min, report.PassRate.Max, report.PassRate.Avg)
	fmt.Fprintf(w, "Score range: %.1f - %.1f (avg %.1f)\n",
		report.Score.Min, report.Score.Max, report.Score.Avg)
}
