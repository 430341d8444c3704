package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openkb/chatbench/internal/catalog"
	"github.com/openkb/chatbench/internal/chat"
	"github.com/openkb/chatbench/internal/progress"
	"github.com/openkb/chatbench/internal/store"
)

// ErrInvalidArgument indicates an unresolved id or missing required field.
// It is surfaced synchronously before any external call, so a batch that
// fails with it never started.
var ErrInvalidArgument = errors.New("invalid argument")

// ClientFunc returns a chat client configured for the given version. This is
// called once per version before its run starts, so the returned client can
// encode the version's model, temperature and system prompt.
type ClientFunc func(ctx context.Context, version catalog.ConfigVersion) (chat.Client, error)

// BatchResult is the aggregate outcome of one batch.
type BatchResult struct {
	BatchID       string            `json:"batch_id"`
	BatchName     string            `json:"batch_name"`
	TotalVersions int               `json:"total_versions"`
	TotalCases    int               `json:"total_cases"`
	Summaries     []Summary         `json:"summaries"`
	Report        *ComparisonReport `json:"report"`
	CompletedAt   time.Time         `json:"completed_at"`
}

// Orchestrator drives one Runner per version and aggregates a comparison
// report. Versions execute strictly sequentially; only the per-version
// runner parallelizes, which bounds the worst-case concurrent load on the
// chat service to the pool width regardless of how many versions are
// tested.
type Orchestrator struct {
	catalog   *catalog.Catalog
	store     store.Store
	tracker   *progress.Tracker
	runner    *Runner
	clientFor ClientFunc
}

// NewOrchestrator creates an Orchestrator. The tracker must be the same
// instance handed to the progress streamer.
func NewOrchestrator(cat *catalog.Catalog, st store.Store, tracker *progress.Tracker, r *Runner, clientFor ClientFunc) *Orchestrator {
	return &Orchestrator{
		catalog:   cat,
		store:     st,
		tracker:   tracker,
		runner:    r,
		clientFor: clientFor,
	}
}

// RunBatch runs every requested version against the requested cases. A nil
// or empty caseIDs selects all active catalog cases; an empty batchID is
// generated. All ids are resolved before the first external call.
func (o *Orchestrator) RunBatch(ctx context.Context, versionIDs, caseIDs []string, batchName, batchID string) (*BatchResult, error) {
	if len(versionIDs) == 0 {
		return nil, fmt.Errorf("%w: no version ids given", ErrInvalidArgument)
	}

	versions := make([]catalog.ConfigVersion, 0, len(versionIDs))
	refs := make([]progress.VersionRef, 0, len(versionIDs))
	for _, id := range versionIDs {
		v, ok := o.catalog.VersionByID(id)
		if !ok {
			return nil, fmt.Errorf("%w: unknown version id %q", ErrInvalidArgument, id)
		}
		versions = append(versions, *v)
		refs = append(refs, progress.VersionRef{ID: v.ID, Name: v.Name})
	}

	var cases []catalog.TestCase
	if len(caseIDs) == 0 {
		cases = o.catalog.ActiveCases()
	} else {
		cases = make([]catalog.TestCase, 0, len(caseIDs))
		for _, id := range caseIDs {
			tc, ok := o.catalog.CaseByID(id)
			if !ok {
				return nil, fmt.Errorf("%w: unknown case id %q", ErrInvalidArgument, id)
			}
			cases = append(cases, *tc)
		}
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("%w: no test cases selected", ErrInvalidArgument)
	}

	if batchID == "" {
		batchID = uuid.NewString()
	}

	o.tracker.Initialize(batchID, len(versions)*len(cases), refs, batchName)

	slog.Info("batch started",
		"batch_id", batchID,
		"name", batchName,
		"versions", len(versions),
		"cases", len(cases),
	)

	result := &BatchResult{
		BatchID:       batchID,
		BatchName:     batchName,
		TotalVersions: len(versions),
		TotalCases:    len(cases),
	}

	var standings []VersionStanding
	completedVersions := 0
	for _, version := range versions {
		o.tracker.UpdateProgress(batchID, progress.Update{
			CurrentVersion:     version.ID,
			CurrentVersionName: version.Name,
		})
		o.tracker.UpdateVersionProgress(batchID, version.ID, progress.VersionUpdate{
			Status: progress.StatusRunning,
		})

		run, err := o.runVersion(ctx, version, cases, batchID)
		if err != nil {
			// One version's failure never aborts the batch.
			slog.Error("version run failed",
				"batch_id", batchID,
				"version", version.ID,
				"error", err,
			)
			o.tracker.UpdateVersionProgress(batchID, version.ID, progress.VersionUpdate{
				Status: progress.StatusError,
			})
			continue
		}

		avg := run.AverageScore
		rate := run.PassRate
		o.tracker.UpdateVersionProgress(batchID, version.ID, progress.VersionUpdate{
			Status:       progress.StatusCompleted,
			AverageScore: &avg,
			PassRate:     &rate,
		})

		result.Summaries = append(result.Summaries, RunSummary(run))
		standings = append(standings, VersionStanding{
			VersionID:    run.VersionID,
			VersionName:  run.VersionName,
			Total:        run.Total,
			Passed:       run.Passed,
			Failed:       run.Failed,
			PassRate:     run.PassRate,
			AverageScore: run.AverageScore,
		})
		completedVersions++
	}

	result.Report = BuildComparisonReport(standings)
	result.CompletedAt = time.Now()

	success := completedVersions > 0
	errMsg := ""
	if !success {
		errMsg = "no version completed"
	}
	o.tracker.MarkCompleted(batchID, success, errMsg)

	slog.Info("batch complete",
		"batch_id", batchID,
		"completed_versions", completedVersions,
		"total_versions", len(versions),
	)
	return result, nil
}

func (o *Orchestrator) runVersion(ctx context.Context, version catalog.ConfigVersion, cases []catalog.TestCase, batchID string) (*store.TestRun, error) {
	client, err := o.clientFor(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare client for version %s: %w", version.ID, err)
	}

	onCase := func(caseID string, failed bool) {
		upd := progress.Update{CompletedDelta: 1, CurrentTestCase: caseID}
		vupd := progress.VersionUpdate{CompletedDelta: 1}
		if failed {
			upd.FailedDelta = 1
			vupd.FailedDelta = 1
		}
		o.tracker.UpdateProgress(batchID, upd)
		o.tracker.UpdateVersionProgress(batchID, version.ID, vupd)
	}

	return o.runner.RunVersion(ctx, client, version, cases, batchID, onCase)
}
