package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkb/chatbench/internal/store"
)

// fakeStore is a canned store.Store for recovery-path tests.
type fakeStore struct {
	runs []*store.TestRun
	err  error
}

func (f *fakeStore) CreateRun(context.Context, *store.TestRun) error       { return nil }
func (f *fakeStore) CompleteRun(context.Context, *store.TestRun) error     { return nil }
func (f *fakeStore) CreateResult(context.Context, *store.TestResult) error { return nil }
func (f *fakeStore) ResultsByRun(context.Context, string) ([]*store.TestResult, error) {
	return nil, nil
}
func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) RunsByBatch(context.Context, string) ([]*store.TestRun, error) {
	return f.runs, f.err
}

func collect(t *testing.T, ch <-chan Event, max int) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
			if len(events) >= max {
				return events
			}
		case <-timeout:
			t.Fatal("timed out waiting for stream events")
		}
	}
}

func TestStreamEmitsImmediateSnapshot(t *testing.T) {
	tr := NewTracker()
	tr.Initialize("b1", 10, testVersions(), "nightly")
	tr.UpdateProgress("b1", Update{CompletedDelta: 2, FailedDelta: 1})

	s := NewStreamer(tr, &fakeStore{}, time.Hour) // interval long enough to never tick
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.OpenStream(ctx, "b1")

	// The first event must arrive without waiting for a poll interval and
	// must carry real payload, not a bare acknowledgment.
	select {
	case ev := <-ch:
		assert.Equal(t, "b1", ev.BatchID)
		assert.Equal(t, "nightly", ev.BatchName)
		assert.Equal(t, string(StatusRunning), ev.Status)
		assert.Equal(t, 2, ev.CompletedTests)
		assert.Equal(t, 10, ev.TotalTests)
		assert.Equal(t, 1, ev.FailedTests)
		assert.InDelta(t, 20.0, ev.Progress, 0.001)
		assert.Len(t, ev.Versions, 2)
	case <-time.After(time.Second):
		t.Fatal("no immediate event")
	}
}

func TestStreamClosesAfterTerminalEvent(t *testing.T) {
	tr := NewTracker()
	tr.Initialize("b1", 4, testVersions(), "n")
	tr.UpdateProgress("b1", Update{CompletedDelta: 4})
	tr.MarkCompleted("b1", true, "")

	s := NewStreamer(tr, &fakeStore{}, 10*time.Millisecond)
	events := collect(t, s.OpenStream(context.Background(), "b1"), 10)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, string(StatusCompleted), last.Status)
	assert.InDelta(t, 100.0, last.Progress, 0.001)

	// Terminal entries are pruned once the stream has observed them.
	assert.Nil(t, tr.GetProgress("b1"))
}

func TestStreamClampsOvercount(t *testing.T) {
	tr := NewTracker()
	tr.Initialize("b1", 4, testVersions(), "n")
	// Force an overcount past the tracker's own clamp.
	tr.mu.Lock()
	tr.batches["b1"].CompletedTests = 7
	tr.mu.Unlock()
	tr.MarkCompleted("b1", true, "")

	s := NewStreamer(tr, &fakeStore{}, 10*time.Millisecond)
	events := collect(t, s.OpenStream(context.Background(), "b1"), 10)

	require.NotEmpty(t, events)
	for _, ev := range events {
		assert.LessOrEqual(t, ev.CompletedTests, ev.TotalTests)
		assert.LessOrEqual(t, ev.Progress, 100.0)
		assert.GreaterOrEqual(t, ev.Progress, 0.0)
	}
}

func TestStreamRecoversCompletedBatchFromStore(t *testing.T) {
	completed := time.Now()
	st := &fakeStore{runs: []*store.TestRun{
		{
			ID: "r1", BatchID: "gone", VersionID: "v1", VersionName: "One",
			Total: 3, Passed: 3, PassRate: 100, AverageScore: 92.5,
			StartedAt: completed.Add(-time.Minute), CompletedAt: &completed,
		},
		{
			ID: "r2", BatchID: "gone", VersionID: "v2", VersionName: "Two",
			Total: 3, Passed: 1, Failed: 2, PassRate: 33.33, AverageScore: 40,
			StartedAt: completed.Add(-30 * time.Second), CompletedAt: &completed,
		},
	}}

	s := NewStreamer(NewTracker(), st, 10*time.Millisecond)
	events := collect(t, s.OpenStream(context.Background(), "gone"), 10)

	// Exactly one terminal event reconstructed from the stored aggregates.
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, string(StatusCompleted), ev.Status)
	assert.Equal(t, 6, ev.TotalTests)
	assert.Equal(t, 6, ev.CompletedTests)
	assert.Equal(t, 2, ev.FailedTests)
	assert.InDelta(t, 100.0, ev.Progress, 0.001)
	require.Len(t, ev.Versions, 2)
	require.NotNil(t, ev.Versions[0].PassRate)
	assert.InDelta(t, 100.0, *ev.Versions[0].PassRate, 0.001)
}

func TestStreamReportsProgressLost(t *testing.T) {
	completed := time.Now()
	st := &fakeStore{runs: []*store.TestRun{
		{ID: "r1", BatchID: "gone", Total: 3, StartedAt: completed, CompletedAt: &completed},
		{ID: "r2", BatchID: "gone", Total: 3, StartedAt: completed}, // still open
	}}

	s := NewStreamer(NewTracker(), st, 10*time.Millisecond)
	events := collect(t, s.OpenStream(context.Background(), "gone"), 10)

	require.Len(t, events, 1)
	assert.Equal(t, string(StatusError), events[0].Status)
	assert.Contains(t, events[0].Error, "progress lost")
}

func TestStreamReportsNotFound(t *testing.T) {
	s := NewStreamer(NewTracker(), &fakeStore{}, 10*time.Millisecond)
	events := collect(t, s.OpenStream(context.Background(), "never-existed"), 10)

	require.Len(t, events, 1)
	assert.Equal(t, string(StatusError), events[0].Status)
	assert.Contains(t, events[0].Error, "not found")
}

func TestStreamReportsStoreFailure(t *testing.T) {
	s := NewStreamer(NewTracker(), &fakeStore{err: errors.New("disk on fire")}, 10*time.Millisecond)
	events := collect(t, s.OpenStream(context.Background(), "b"), 10)

	require.Len(t, events, 1)
	assert.Equal(t, string(StatusError), events[0].Status)
	assert.Contains(t, events[0].Error, "disk on fire")
}

func TestStreamClosesOnObserverDisconnect(t *testing.T) {
	tr := NewTracker()
	tr.Initialize("b1", 100, testVersions(), "n")

	s := NewStreamer(tr, &fakeStore{}, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.OpenStream(ctx, "b1")

	<-ch // first event
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return // channel closed as expected
			}
		case <-deadline:
			t.Fatal("stream did not close after cancellation")
		}
	}
}
