package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVersions() []VersionRef {
	return []VersionRef{
		{ID: "v1", Name: "Version One"},
		{ID: "v2", Name: "Version Two"},
	}
}

func TestInitialize(t *testing.T) {
	tr := NewTracker()
	tr.Initialize("b1", 10, testVersions(), "nightly")

	bp := tr.GetProgress("b1")
	require.NotNil(t, bp)
	assert.Equal(t, "nightly", bp.BatchName)
	assert.Equal(t, StatusRunning, bp.Status)
	assert.Equal(t, 10, bp.TotalTests)
	assert.Equal(t, 0, bp.CompletedTests)
	require.Len(t, bp.Versions, 2)
	assert.Equal(t, 5, bp.Versions["v1"].TotalTests)
	assert.Equal(t, StatusPending, bp.Versions["v1"].Status)
	assert.Equal(t, []string{"v1", "v2"}, bp.VersionOrder)
}

func TestGetProgressUnknownBatch(t *testing.T) {
	tr := NewTracker()
	assert.Nil(t, tr.GetProgress("nope"))
}

func TestGetProgressReturnsDeepCopy(t *testing.T) {
	tr := NewTracker()
	tr.Initialize("b1", 10, testVersions(), "n")

	snap := tr.GetProgress("b1")
	snap.CompletedTests = 999
	snap.Versions["v1"].FailedTests = 999

	fresh := tr.GetProgress("b1")
	assert.Equal(t, 0, fresh.CompletedTests)
	assert.Equal(t, 0, fresh.Versions["v1"].FailedTests)
}

func TestUpdateProgress(t *testing.T) {
	tr := NewTracker()
	tr.Initialize("b1", 10, testVersions(), "n")

	tr.UpdateProgress("b1", Update{
		CompletedDelta:     3,
		FailedDelta:        1,
		CurrentVersion:     "v1",
		CurrentVersionName: "Version One",
		CurrentTestCase:    "case-3",
	})

	bp := tr.GetProgress("b1")
	assert.Equal(t, 3, bp.CompletedTests)
	assert.Equal(t, 1, bp.FailedTests)
	assert.Equal(t, "v1", bp.CurrentVersion)
	assert.Equal(t, "case-3", bp.CurrentTestCase)
}

func TestUpdateProgressClampsToTotal(t *testing.T) {
	tr := NewTracker()
	tr.Initialize("b1", 4, testVersions(), "n")

	tr.UpdateProgress("b1", Update{CompletedDelta: 10})
	bp := tr.GetProgress("b1")
	assert.Equal(t, 4, bp.CompletedTests)
}

func TestUpdateProgressETA(t *testing.T) {
	tr := NewTracker()
	base := time.Now()
	step := 0
	tr.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	tr.Initialize("b1", 10, testVersions(), "n")

	// Zero completed tests must not divide by zero.
	tr.UpdateProgress("b1", Update{CurrentTestCase: "warming up"})
	bp := tr.GetProgress("b1")
	assert.Equal(t, time.Duration(0), bp.EstimatedRemaining)

	tr.UpdateProgress("b1", Update{CompletedDelta: 5})
	bp = tr.GetProgress("b1")
	assert.Greater(t, bp.EstimatedRemaining, time.Duration(0))
}

func TestUpdateVersionProgressStampsTimestamps(t *testing.T) {
	tr := NewTracker()
	tr.Initialize("b1", 10, testVersions(), "n")

	tr.UpdateVersionProgress("b1", "v1", VersionUpdate{Status: StatusRunning})
	bp := tr.GetProgress("b1")
	require.NotNil(t, bp.Versions["v1"].StartedAt)
	assert.Nil(t, bp.Versions["v1"].EndedAt)
	started := *bp.Versions["v1"].StartedAt

	// A second running update must not move StartedAt.
	tr.UpdateVersionProgress("b1", "v1", VersionUpdate{CompletedDelta: 1})
	bp = tr.GetProgress("b1")
	assert.Equal(t, started, *bp.Versions["v1"].StartedAt)

	score := 87.5
	rate := 75.0
	tr.UpdateVersionProgress("b1", "v1", VersionUpdate{
		Status:       StatusCompleted,
		AverageScore: &score,
		PassRate:     &rate,
	})
	bp = tr.GetProgress("b1")
	vp := bp.Versions["v1"]
	assert.Equal(t, StatusCompleted, vp.Status)
	require.NotNil(t, vp.EndedAt)
	require.NotNil(t, vp.AverageScore)
	assert.Equal(t, 87.5, *vp.AverageScore)
	assert.Equal(t, 75.0, *vp.PassRate)
}

func TestMarkCompleted(t *testing.T) {
	tr := NewTracker()
	tr.Initialize("b1", 10, testVersions(), "n")
	tr.UpdateProgress("b1", Update{CompletedDelta: 5})

	tr.MarkCompleted("b1", true, "")
	bp := tr.GetProgress("b1")
	assert.Equal(t, StatusCompleted, bp.Status)
	assert.Equal(t, time.Duration(0), bp.EstimatedRemaining)

	tr.Initialize("b2", 10, testVersions(), "n")
	tr.MarkCompleted("b2", false, "resolver exploded")
	bp = tr.GetProgress("b2")
	assert.Equal(t, StatusError, bp.Status)
	assert.Equal(t, "resolver exploded", bp.Error)
}

func TestRemove(t *testing.T) {
	tr := NewTracker()
	tr.Initialize("b1", 10, testVersions(), "n")
	tr.Remove("b1")
	assert.Nil(t, tr.GetProgress("b1"))
}

func TestUpdateUnknownBatchIsNoop(t *testing.T) {
	tr := NewTracker()
	tr.UpdateProgress("nope", Update{CompletedDelta: 1})
	tr.UpdateVersionProgress("nope", "v1", VersionUpdate{Status: StatusRunning})
	tr.MarkCompleted("nope", true, "")
}

func TestConcurrentUpdates(t *testing.T) {
	tr := NewTracker()
	tr.Initialize("b1", 1000, testVersions(), "n")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.UpdateProgress("b1", Update{CompletedDelta: 1})
				tr.UpdateVersionProgress("b1", "v1", VersionUpdate{CompletedDelta: 1})
				_ = tr.GetProgress("b1")
			}
		}()
	}
	wg.Wait()

	bp := tr.GetProgress("b1")
	assert.Equal(t, 1000, bp.CompletedTests)
	assert.Equal(t, 500, bp.Versions["v1"].CompletedTests) // clamped to version total
}
