package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if necessary creates) the database at path.
// An empty path selects an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The modernc driver does not support concurrent writers on one
	// connection pool entry; serialize access through a single connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS test_runs (
			id TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL,
			version_id TEXT NOT NULL,
			version_name TEXT NOT NULL,
			total INTEGER NOT NULL DEFAULT 0,
			passed INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			pass_rate REAL NOT NULL DEFAULT 0,
			average_score REAL NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			completed_at DATETIME
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create test_runs table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS test_results (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			case_id TEXT NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			score INTEGER NOT NULL,
			passed INTEGER NOT NULL,
			matched_keywords TEXT,
			missing_keywords TEXT,
			response_time REAL NOT NULL DEFAULT 0,
			error TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create test_results table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_test_runs_batch ON test_runs(batch_id)",
		"CREATE INDEX IF NOT EXISTS idx_test_results_run ON test_results(run_id)",
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// CreateRun persists a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *TestRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO test_runs (id, batch_id, version_id, version_name, total, passed, failed, pass_rate, average_score, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.BatchID, run.VersionID, run.VersionName,
		run.Total, run.Passed, run.Failed, run.PassRate, run.AverageScore,
		run.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// CompleteRun updates the run's aggregates and completion timestamp.
func (s *SQLiteStore) CompleteRun(ctx context.Context, run *TestRun) error {
	if run.CompletedAt == nil {
		return fmt.Errorf("run %s has no completion timestamp", run.ID)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE test_runs
		SET passed = ?, failed = ?, pass_rate = ?, average_score = ?, completed_at = ?
		WHERE id = ?
	`, run.Passed, run.Failed, run.PassRate, run.AverageScore,
		run.CompletedAt.UTC(), run.ID)
	if err != nil {
		return fmt.Errorf("failed to complete run %s: %w", run.ID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// CreateResult persists one case result.
func (s *SQLiteStore) CreateResult(ctx context.Context, result *TestResult) error {
	matched, err := json.Marshal(result.MatchedKeywords)
	if err != nil {
		return fmt.Errorf("failed to encode matched keywords: %w", err)
	}
	missing, err := json.Marshal(result.MissingKeywords)
	if err != nil {
		return fmt.Errorf("failed to encode missing keywords: %w", err)
	}

	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO test_results (id, run_id, case_id, question, answer, score, passed, matched_keywords, missing_keywords, response_time, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, result.ID, result.RunID, result.CaseID, result.Question, result.Answer,
		result.Score, result.Passed, string(matched), string(missing),
		result.ResponseTime, result.Error, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert result for case %s: %w", result.CaseID, err)
	}
	return nil
}

// RunsByBatch returns all runs belonging to a batch, oldest first.
func (s *SQLiteStore) RunsByBatch(ctx context.Context, batchID string) ([]*TestRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, version_id, version_name, total, passed, failed, pass_rate, average_score, started_at, completed_at
		FROM test_runs
		WHERE batch_id = ?
		ORDER BY started_at ASC, id ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs for batch %s: %w", batchID, err)
	}
	defer rows.Close()

	var runs []*TestRun
	for rows.Next() {
		var run TestRun
		var completedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.BatchID, &run.VersionID, &run.VersionName,
			&run.Total, &run.Passed, &run.Failed, &run.PassRate, &run.AverageScore,
			&run.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if completedAt.Valid {
			t := completedAt.Time
			run.CompletedAt = &t
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// ResultsByRun returns all results belonging to a run.
func (s *SQLiteStore) ResultsByRun(ctx context.Context, runID string) ([]*TestResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, case_id, question, answer, score, passed, matched_keywords, missing_keywords, response_time, error, created_at
		FROM test_results
		WHERE run_id = ?
		ORDER BY created_at ASC, id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results for run %s: %w", runID, err)
	}
	defer rows.Close()

	var results []*TestResult
	for rows.Next() {
		var r TestResult
		var matched, missing sql.NullString
		var errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.RunID, &r.CaseID, &r.Question, &r.Answer,
			&r.Score, &r.Passed, &matched, &missing, &r.ResponseTime, &errMsg,
			&r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		if matched.Valid && matched.String != "" {
			if err := json.Unmarshal([]byte(matched.String), &r.MatchedKeywords); err != nil {
				return nil, fmt.Errorf("failed to decode matched keywords: %w", err)
			}
		}
		if missing.Valid && missing.String != "" {
			if err := json.Unmarshal([]byte(missing.String), &r.MissingKeywords); err != nil {
				return nil, fmt.Errorf("failed to decode missing keywords: %w", err)
			}
		}
		r.Error = errMsg.String
		results = append(results, &r)
	}
	return results, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
