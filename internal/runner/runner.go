// Package runner executes benchmark batches: one test run per configuration
// version, each run covering the full ordered set of test cases.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openkb/chatbench/internal/catalog"
	"github.com/openkb/chatbench/internal/chat"
	"github.com/openkb/chatbench/internal/scorer"
	"github.com/openkb/chatbench/internal/store"
)

const (
	// DefaultWorkers is the worker-pool width used in parallel mode.
	DefaultWorkers = 5
	// MaxWorkers bounds the worker-pool width.
	MaxWorkers = 20
)

// Config controls how a Runner executes the cases of one version.
type Config struct {
	// Parallel selects the bounded worker pool instead of sequential
	// execution.
	Parallel bool
	// Workers is the pool width in parallel mode. Zero selects
	// DefaultWorkers; the value is clamped to [1, MaxWorkers].
	Workers int
}

func (c Config) workerCount() int {
	if !c.Parallel {
		return 1
	}
	w := c.Workers
	if w == 0 {
		w = DefaultWorkers
	}
	if w < 1 {
		w = 1
	}
	if w > MaxWorkers {
		w = MaxWorkers
	}
	return w
}

// ProgressFunc is called once per dispatched case, pass or fail, as it
// resolves.
type ProgressFunc func(caseID string, failed bool)

// Summary is the per-version digest of a completed run.
type Summary struct {
	VersionID       string  `json:"version_id"`
	VersionName     string  `json:"version_name"`
	Total           int     `json:"total"`
	Passed          int     `json:"passed"`
	Failed          int     `json:"failed"`
	PassRate        float64 `json:"pass_rate"`
	AverageScore    float64 `json:"average_score"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Runner executes one configuration version's full test suite and produces
// one completed, persisted run.
type Runner struct {
	store     store.Store
	evaluator *scorer.Evaluator
	config    Config
}

// NewRunner creates a Runner.
func NewRunner(st store.Store, evaluator *scorer.Evaluator, config Config) *Runner {
	return &Runner{
		store:     st,
		evaluator: evaluator,
		config:    config,
	}
}

// caseOutcome is the resolution of one dispatched case.
type caseOutcome struct {
	score  int
	passed bool
	failed bool
}

// RunVersion executes all cases against one version and returns the
// completed run. An error is returned only when the run record itself cannot
// be created or completed; individual case failures are logged, counted and
// reported through onCase.
func (r *Runner) RunVersion(ctx context.Context, client chat.Client, version catalog.ConfigVersion, cases []catalog.TestCase, batchID string, onCase ProgressFunc) (*store.TestRun, error) {
	run := &store.TestRun{
		ID:          uuid.NewString(),
		BatchID:     batchID,
		VersionID:   version.ID,
		VersionName: version.Name,
		Total:       len(cases),
		StartedAt:   time.Now(),
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run record for version %s: %w", version.ID, err)
	}

	slog.Info("running version",
		"batch_id", batchID,
		"version", version.ID,
		"cases", len(cases),
		"workers", r.config.workerCount(),
	)

	var passed, failed, totalScore int
	if r.config.workerCount() > 1 {
		passed, failed, totalScore = r.runParallel(ctx, client, run, cases, onCase)
	} else {
		passed, failed, totalScore = r.runSequential(ctx, client, run, cases, onCase)
	}

	run.Passed = passed
	run.Failed = failed
	if run.Total > 0 {
		run.PassRate = math.Round(float64(passed)/float64(run.Total)*10000) / 100
		run.AverageScore = math.Round(float64(totalScore)/float64(run.Total)*100) / 100
	}
	completedAt := time.Now()
	run.CompletedAt = &completedAt

	if err := r.store.CompleteRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to complete run record for version %s: %w", version.ID, err)
	}

	slog.Info("version run complete",
		"version", version.ID,
		"passed", passed,
		"failed", failed,
		"pass_rate", run.PassRate,
	)
	return run, nil
}

// runSequential processes cases one at a time in input order. Counters are
// accumulated directly; no synchronization is needed.
func (r *Runner) runSequential(ctx context.Context, client chat.Client, run *store.TestRun, cases []catalog.TestCase, onCase ProgressFunc) (passed, failed, totalScore int) {
	for i, tc := range cases {
		outcome := r.executeCase(ctx, client, run, i, tc)
		if outcome.passed {
			passed++
		} else {
			failed++
		}
		totalScore += outcome.score
		if onCase != nil {
			onCase(tc.ID, outcome.failed || !outcome.passed)
		}
	}
	return passed, failed, totalScore
}

// runParallel dispatches one task per case onto a bounded worker pool. The
// shared counters are the only mutable state touched by workers and are
// guarded by a single mutex held only for the increment, never across the
// network call.
func (r *Runner) runParallel(ctx context.Context, client chat.Client, run *store.TestRun, cases []catalog.TestCase, onCase ProgressFunc) (passed, failed, totalScore int) {
	type job struct {
		index int
		tc    catalog.TestCase
	}

	jobs := make(chan job)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < r.config.workerCount(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				outcome := r.executeCase(ctx, client, run, j.index, j.tc)
				mu.Lock()
				if outcome.passed {
					passed++
				} else {
					failed++
				}
				totalScore += outcome.score
				mu.Unlock()
				if onCase != nil {
					onCase(j.tc.ID, outcome.failed || !outcome.passed)
				}
			}
		}()
	}

	for i, tc := range cases {
		jobs <- job{index: i, tc: tc}
	}
	close(jobs)
	wg.Wait()

	return passed, failed, totalScore
}

// executeCase runs one case: ask, score, persist. Every failure mode is
// caught here so that one case can never cancel its siblings; a failed case
// either produces a persisted zero-score result or a logged, counted
// failure.
func (r *Runner) executeCase(ctx context.Context, client chat.Client, run *store.TestRun, index int, tc catalog.TestCase) (outcome caseOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("case execution panicked",
				"run_id", run.ID,
				"case_id", tc.ID,
				"panic", rec,
			)
			outcome = caseOutcome{failed: true}
		}
	}()

	// Each case presents itself to the service as an independent principal
	// and never inherits a conversation id, so no conversational state can
	// leak between cases regardless of worker scheduling.
	callerIdentity := fmt.Sprintf("bench-%s-case-%d", run.ID, index)

	answer, err := client.SendQuestion(ctx, tc.Question, callerIdentity, "")
	if err != nil {
		slog.Error("case execution failed",
			"run_id", run.ID,
			"case_id", tc.ID,
			"error", err,
		)
		r.persistResult(ctx, &store.TestResult{
			ID:              uuid.NewString(),
			RunID:           run.ID,
			CaseID:          tc.ID,
			Question:        tc.Question,
			MissingKeywords: append([]string(nil), tc.Keywords...),
			Error:           err.Error(),
		})
		return caseOutcome{failed: true}
	}

	ev := r.evaluator.Evaluate(answer.Content, tc.Keywords)
	r.persistResult(ctx, &store.TestResult{
		ID:              uuid.NewString(),
		RunID:           run.ID,
		CaseID:          tc.ID,
		Question:        tc.Question,
		Answer:          answer.Content,
		Score:           ev.Score,
		Passed:          ev.Passed,
		MatchedKeywords: ev.Matched,
		MissingKeywords: ev.Missing,
		ResponseTime:    answer.ResponseTime.Seconds(),
		Error:           ev.Err,
	})

	return caseOutcome{score: ev.Score, passed: ev.Passed}
}

func (r *Runner) persistResult(ctx context.Context, result *store.TestResult) {
	if err := r.store.CreateResult(ctx, result); err != nil {
		slog.Error("failed to persist case result",
			"run_id", result.RunID,
			"case_id", result.CaseID,
			"error", err,
		)
	}
}

// RunSummary condenses a completed run into its per-version digest.
func RunSummary(run *store.TestRun) Summary {
	s := Summary{
		VersionID:    run.VersionID,
		VersionName:  run.VersionName,
		Total:        run.Total,
		Passed:       run.Passed,
		Failed:       run.Failed,
		PassRate:     run.PassRate,
		AverageScore: run.AverageScore,
	}
	if run.CompletedAt != nil {
		s.DurationSeconds = run.CompletedAt.Sub(run.StartedAt).Seconds()
	}
	return s
}
