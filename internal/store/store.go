// Package store persists benchmark runs and per-case results. TestRun and
// TestResult rows are the durable source of truth for a batch; in-memory
// progress state may vanish on restart and is reconstructed from them.
package store

import (
	"context"
	"time"
)

// TestRun is one execution of one configuration version within a batch.
// It is mutated only by the runner that created it and becomes immutable
// once CompletedAt is set.
type TestRun struct {
	ID           string     `json:"id"`
	BatchID      string     `json:"batch_id"`
	VersionID    string     `json:"version_id"`
	VersionName  string     `json:"version_name"`
	Total        int        `json:"total"`
	Passed       int        `json:"passed"`
	Failed       int        `json:"failed"`
	PassRate     float64    `json:"pass_rate"`
	AverageScore float64    `json:"average_score"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// TestResult is one test case's outcome within a run. Created exactly once
// per (run, case) pair and never updated afterward.
type TestResult struct {
	ID              string    `json:"id"`
	RunID           string    `json:"run_id"`
	CaseID          string    `json:"case_id"`
	Question        string    `json:"question"`
	Answer          string    `json:"answer"`
	Score           int       `json:"score"`
	Passed          bool      `json:"passed"`
	MatchedKeywords []string  `json:"matched_keywords"`
	MissingKeywords []string  `json:"missing_keywords"`
	ResponseTime    float64   `json:"response_time_seconds"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store is the persistence collaborator for the benchmark core.
// Result writes are independent rows and must be safe under concurrent
// writers.
type Store interface {
	// CreateRun persists a new run record.
	CreateRun(ctx context.Context, run *TestRun) error

	// CompleteRun updates the run's aggregates and completion timestamp.
	CompleteRun(ctx context.Context, run *TestRun) error

	// CreateResult persists one case result.
	CreateResult(ctx context.Context, result *TestResult) error

	// RunsByBatch returns all runs belonging to a batch, oldest first.
	RunsByBatch(ctx context.Context, batchID string) ([]*TestRun, error)

	// ResultsByRun returns all results belonging to a run.
	ResultsByRun(ctx context.Context, runID string) ([]*TestResult, error)

	// Close releases the underlying resources.
	Close() error
}
