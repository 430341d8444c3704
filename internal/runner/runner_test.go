package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkb/chatbench/internal/catalog"
	"github.com/openkb/chatbench/internal/scorer"
	"github.com/openkb/chatbench/internal/store"
	"github.com/openkb/chatbench/internal/testutil"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testCases() []catalog.TestCase {
	return []catalog.TestCase{
		{ID: "1", Question: "How do I reset my password?", Keywords: []string{"reset", "email"}, Active: true},
		{ID: "2", Question: "How do I book a room?", Keywords: []string{"calendar", "room"}, Active: true},
		{ID: "3", Question: "Who fixes laptops?", Keywords: []string{"ticket", "it support"}, Active: true},
	}
}

func testVersion() catalog.ConfigVersion {
	return catalog.ConfigVersion{
		ID:   "baseline",
		Name: "Baseline Assistant",
		Params: catalog.VersionParams{
			Model: "test-model",
		},
	}
}

func allPassingResponses() map[string]string {
	return map[string]string{
		"How do I reset my password?": "Use the reset link we send by email.",
		"How do I book a room?":       "Pick a free room in the calendar.",
		"Who fixes laptops?":          "Open a ticket with IT support.",
	}
}

func TestRunVersionSequential(t *testing.T) {
	st := newTestStore(t)
	client := &testutil.MockChatClient{Responses: allPassingResponses()}
	r := NewRunner(st, scorer.NewEvaluator(0), Config{})

	run, err := r.RunVersion(context.Background(), client, testVersion(), testCases(), "batch-1", nil)
	require.NoError(t, err)

	assert.Equal(t, "batch-1", run.BatchID)
	assert.Equal(t, 3, run.Total)
	assert.Equal(t, 3, run.Passed)
	assert.Equal(t, 0, run.Failed)
	assert.InDelta(t, 100.0, run.PassRate, 0.001)
	assert.InDelta(t, 100.0, run.AverageScore, 0.001)
	require.NotNil(t, run.CompletedAt)
	assert.Equal(t, 3, client.Calls)

	// Every dispatched case produced a persisted result row.
	results, err := st.ResultsByRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestRunVersionParallel(t *testing.T) {
	st := newTestStore(t)
	client := &testutil.MockChatClient{
		Responses: allPassingResponses(),
		Delay:     5 * time.Millisecond,
	}
	r := NewRunner(st, scorer.NewEvaluator(0), Config{Parallel: true, Workers: 3})

	run, err := r.RunVersion(context.Background(), client, testVersion(), testCases(), "batch-1", nil)
	require.NoError(t, err)

	assert.Equal(t, 3, run.Passed)
	assert.Equal(t, 0, run.Failed)
	assert.Equal(t, run.Total, run.Passed+run.Failed)
}

func TestRunVersionCallerIsolation(t *testing.T) {
	st := newTestStore(t)
	client := &testutil.MockChatClient{
		DefaultResponse: "answer",
		Delay:           2 * time.Millisecond,
	}
	r := NewRunner(st, scorer.NewEvaluator(0), Config{Parallel: true, Workers: 5})

	_, err := r.RunVersion(context.Background(), client, testVersion(), testCases(), "b", nil)
	require.NoError(t, err)

	// Every case must present a distinct caller identity and must never
	// inherit a conversation id.
	seen := map[string]bool{}
	for _, id := range client.CallerIdentities {
		assert.NotEmpty(t, id)
		assert.False(t, seen[id], "caller identity %q reused", id)
		seen[id] = true
	}
	for _, conv := range client.ConversationIDs {
		assert.Empty(t, conv)
	}
}

func TestRunVersionCaseFailureDoesNotAbortRun(t *testing.T) {
	st := newTestStore(t)
	client := &testutil.MockChatClient{
		Responses: allPassingResponses(),
		Errors: map[string]error{
			"How do I book a room?": errors.New("connection refused"),
		},
	}
	r := NewRunner(st, scorer.NewEvaluator(0), Config{})

	run, err := r.RunVersion(context.Background(), client, testVersion(), testCases(), "b", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, run.Passed)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, run.Total, run.Passed+run.Failed)

	// The failed case still left a persisted row carrying the error.
	results, err := st.ResultsByRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, results, 3)
	var failedRow *store.TestResult
	for _, res := range results {
		if res.CaseID == "2" {
			failedRow = res
		}
	}
	require.NotNil(t, failedRow)
	assert.False(t, failedRow.Passed)
	assert.Contains(t, failedRow.Error, "connection refused")
	assert.Equal(t, []string{"calendar", "room"}, failedRow.MissingKeywords)
}

func TestRunVersionCountsMatchPersistedRows(t *testing.T) {
	st := newTestStore(t)
	client := &testutil.MockChatClient{
		Responses: map[string]string{
			"How do I reset my password?": "reset by email",
		},
		DefaultResponse: "unrelated answer",
		Delay:           time.Millisecond,
	}
	r := NewRunner(st, scorer.NewEvaluator(0), Config{Parallel: true, Workers: 2})

	run, err := r.RunVersion(context.Background(), client, testVersion(), testCases(), "b", nil)
	require.NoError(t, err)

	results, err := st.ResultsByRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Total, run.Passed+run.Failed)
	assert.Equal(t, run.Total, len(results))
}

func TestRunVersionProgressCallback(t *testing.T) {
	st := newTestStore(t)
	client := &testutil.MockChatClient{Responses: allPassingResponses()}
	r := NewRunner(st, scorer.NewEvaluator(0), Config{})

	var calls int
	var failures int
	run, err := r.RunVersion(context.Background(), client, testVersion(), testCases(), "b",
		func(caseID string, failed bool) {
			calls++
			if failed {
				failures++
			}
		})
	require.NoError(t, err)
	assert.Equal(t, run.Total, calls)
	assert.Equal(t, 0, failures)
}

func TestRunVersionEmptyAnswerFails(t *testing.T) {
	st := newTestStore(t)
	client := &testutil.MockChatClient{DefaultResponse: "   "}
	r := NewRunner(st, scorer.NewEvaluator(0), Config{})

	run, err := r.RunVersion(context.Background(), client, testVersion(), testCases()[:1], "b", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, run.Passed)
	assert.Equal(t, 1, run.Failed)
	assert.InDelta(t, 0.0, run.AverageScore, 0.001)
}

func TestConfigWorkerCount(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want int
	}{
		{"sequential", Config{}, 1},
		{"parallel default", Config{Parallel: true}, DefaultWorkers},
		{"parallel explicit", Config{Parallel: true, Workers: 3}, 3},
		{"clamped low", Config{Parallel: true, Workers: -4}, 1},
		{"clamped high", Config{Parallel: true, Workers: 100}, MaxWorkers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.workerCount())
		})
	}
}
