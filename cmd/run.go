package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/openkb/chatbench/internal/catalog"
	"github.com/openkb/chatbench/internal/progress"
	"github.com/openkb/chatbench/internal/runner"
	"github.com/openkb/chatbench/internal/scorer"
	"github.com/openkb/chatbench/internal/store"
)

func newRunCmd() *cobra.Command {
	var (
		catalogName string
		catalogsDir string
		versionIDs  []string
		caseIDs     []string
		batchName   string
		dbPath      string
		parallel    bool
		workers     int
		endpoint    string
		apiKey      string
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a benchmark batch against the configured service versions",
		Long: `Execute every selected configuration version against the catalog's test cases,
score the answers by keyword matching, and print a ranked comparison.

Results are persisted to the results database so they can be inspected later
with 'chatbench report'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cat, err := catalog.Load(catalogName, catalogsDir)
			if err != nil {
				return fmt.Errorf("failed to load catalog: %w", err)
			}

			// Default to every catalog version, in catalog order.
			if len(versionIDs) == 0 {
				for _, v := range cat.Versions {
					versionIDs = append(versionIDs, v.ID)
				}
			}

			st, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open results database: %w", err)
			}
			defer func() { _ = st.Close() }()

			tracker := progress.NewTracker()
			r := runner.NewRunner(st, scorer.NewEvaluator(cat.PassThreshold), runner.Config{
				Parallel: parallel,
				Workers:  workers,
			})
			orch := runner.NewOrchestrator(cat, st, tracker, r, chatClientFactory(endpoint, apiKey, timeout))

			fmt.Printf("Catalog: %s\n", cat.Name)
			fmt.Printf("Versions to benchmark: %d\n", len(versionIDs))
			fmt.Printf("Test cases: %d\n\n", caseCount(cat, caseIDs))

			batchID := uuid.NewString()

			// Live progress line, fed from the tracker while the batch runs.
			printCtx, stopPrinting := context.WithCancel(ctx)
			printerDone := make(chan struct{})
			go func() {
				defer close(printerDone)
				ticker := time.NewTicker(progress.DefaultPollInterval)
				defer ticker.Stop()
				for {
					select {
					case <-printCtx.Done():
						return
					case <-ticker.C:
						bp := tracker.GetProgress(batchID)
						if bp == nil {
							continue
						}
						fmt.Printf("\r  [%s] %d/%d tests, %d failed, ~%s remaining...   ",
							bp.CurrentVersionName, bp.CompletedTests, bp.TotalTests,
							bp.FailedTests, bp.EstimatedRemaining.Round(time.Second))
					}
				}
			}()

			result, err := orch.RunBatch(ctx, versionIDs, caseIDs, batchName, batchID)
			stopPrinting()
			<-printerDone
			fmt.Println()
			if err != nil {
				return err
			}

			fmt.Printf("\nBatch completed.\n")
			fmt.Printf("Batch ID: %s\n\n", result.BatchID)
			printComparison(cmd.OutOrStdout(), result.Report)

			slog.Info("batch run complete", "batch_id", result.BatchID)
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogName, "catalog", "default", "Catalog to benchmark")
	cmd.Flags().StringVar(&catalogsDir, "catalogs-dir", "", "External catalogs directory")
	cmd.Flags().StringSliceVar(&versionIDs, "versions", nil, "Version ids to benchmark (default: all)")
	cmd.Flags().StringSliceVar(&caseIDs, "cases", nil, "Test case ids to run (default: all active)")
	cmd.Flags().StringVar(&batchName, "name", "", "Human-readable batch name")
	cmd.Flags().StringVar(&dbPath, "db", "chatbench.db", "Results database path")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "Run test cases concurrently per version")
	cmd.Flags().IntVar(&workers, "workers", runner.DefaultWorkers, "Worker pool size when --parallel is set")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Chat service endpoint URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (or set OPENAI_API_KEY)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-question timeout (e.g. 30s, 2m). 0 uses the client default")

	return cmd
}

func caseCount(cat *catalog.Catalog, caseIDs []string) int {
	if len(caseIDs) > 0 {
		return len(caseIDs)
	}
	return len(cat.ActiveCases())
}
