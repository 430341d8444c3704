// Package progress tracks in-flight batch execution and exposes it to
// observers as a long-lived event stream. Tracker state is in-memory only;
// durable recovery is delegated to the persisted run records.
package progress

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a batch or version.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// VersionRef identifies one version participating in a batch.
type VersionRef struct {
	ID   string
	Name string
}

// VersionProgress holds per-version nested counters within a batch.
type VersionProgress struct {
	VersionID      string
	VersionName    string
	TotalTests     int
	CompletedTests int
	FailedTests    int
	Status         Status
	AverageScore   *float64
	PassRate       *float64
	StartedAt      *time.Time
	EndedAt        *time.Time
}

// BatchProgress is the ephemeral in-memory view of one batch. It is
// best-effort: lost on process restart.
type BatchProgress struct {
	BatchID            string
	BatchName          string
	Status             Status
	TotalTests         int
	CompletedTests     int
	FailedTests        int
	CurrentVersion     string
	CurrentVersionName string
	CurrentTestCase    string
	EstimatedRemaining time.Duration
	StartTime          time.Time
	LastUpdate         time.Time
	Error              string
	Versions           map[string]*VersionProgress
	VersionOrder       []string
}

// Tracker is a process-wide registry of in-flight batch progress, guarded by
// a single mutex. It must be constructed once at the composition root and
// passed to both the orchestrator and the stream handler. Callers must not
// hold any Tracker call open across network or persistence I/O; no method
// performs I/O itself.
type Tracker struct {
	mu      sync.Mutex
	batches map[string]*BatchProgress
	now     func() time.Time
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		batches: make(map[string]*BatchProgress),
		now:     time.Now,
	}
}

// Initialize registers a new batch with zeroed counters. An existing entry
// with the same id is overwritten.
func (t *Tracker) Initialize(batchID string, totalTests int, versions []VersionRef, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	bp := &BatchProgress{
		BatchID:    batchID,
		BatchName:  name,
		Status:     StatusRunning,
		TotalTests: totalTests,
		StartTime:  now,
		LastUpdate: now,
		Versions:   make(map[string]*VersionProgress, len(versions)),
	}
	perVersion := 0
	if len(versions) > 0 {
		perVersion = totalTests / len(versions)
	}
	for _, v := range versions {
		bp.Versions[v.ID] = &VersionProgress{
			VersionID:   v.ID,
			VersionName: v.Name,
			TotalTests:  perVersion,
			Status:      StatusPending,
		}
		bp.VersionOrder = append(bp.VersionOrder, v.ID)
	}
	t.batches[batchID] = bp
}

// Update carries optional deltas and position markers for UpdateProgress.
type Update struct {
	CompletedDelta     int
	FailedDelta        int
	CurrentVersion     string
	CurrentVersionName string
	CurrentTestCase    string
}

// UpdateProgress applies counter deltas and recomputes the remaining-time
// estimate. CompletedTests is monotonically non-decreasing and is clamped to
// TotalTests.
func (t *Tracker) UpdateProgress(batchID string, upd Update) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bp, ok := t.batches[batchID]
	if !ok {
		return
	}

	if upd.CompletedDelta > 0 {
		bp.CompletedTests += upd.CompletedDelta
		if bp.CompletedTests > bp.TotalTests {
			bp.CompletedTests = bp.TotalTests
		}
	}
	if upd.FailedDelta > 0 {
		bp.FailedTests += upd.FailedDelta
	}
	if upd.CurrentVersion != "" {
		bp.CurrentVersion = upd.CurrentVersion
	}
	if upd.CurrentVersionName != "" {
		bp.CurrentVersionName = upd.CurrentVersionName
	}
	if upd.CurrentTestCase != "" {
		bp.CurrentTestCase = upd.CurrentTestCase
	}

	now := t.now()
	bp.LastUpdate = now
	if bp.CompletedTests > 0 {
		elapsed := now.Sub(bp.StartTime)
		perTest := elapsed / time.Duration(bp.CompletedTests)
		bp.EstimatedRemaining = perTest * time.Duration(bp.TotalTests-bp.CompletedTests)
	}
}

// VersionUpdate carries optional fields for UpdateVersionProgress.
type VersionUpdate struct {
	CompletedDelta int
	FailedDelta    int
	Status         Status
	AverageScore   *float64
	PassRate       *float64
}

// UpdateVersionProgress applies an update scoped to one version entry.
// The first transition to running stamps StartedAt; a transition to a
// terminal status stamps EndedAt.
func (t *Tracker) UpdateVersionProgress(batchID, versionID string, upd VersionUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bp, ok := t.batches[batchID]
	if !ok {
		return
	}
	vp, ok := bp.Versions[versionID]
	if !ok {
		return
	}

	if upd.CompletedDelta > 0 {
		vp.CompletedTests += upd.CompletedDelta
		if vp.CompletedTests > vp.TotalTests {
			vp.CompletedTests = vp.TotalTests
		}
	}
	if upd.FailedDelta > 0 {
		vp.FailedTests += upd.FailedDelta
	}
	if upd.Status != "" && upd.Status != vp.Status {
		now := t.now()
		if upd.Status == StatusRunning && vp.StartedAt == nil {
			vp.StartedAt = &now
		}
		if upd.Status.Terminal() {
			vp.EndedAt = &now
		}
		vp.Status = upd.Status
	}
	if upd.AverageScore != nil {
		vp.AverageScore = upd.AverageScore
	}
	if upd.PassRate != nil {
		vp.PassRate = upd.PassRate
	}

	bp.LastUpdate = t.now()
}

// MarkCompleted sets the batch's terminal status and zeroes the remaining
// time estimate.
func (t *Tracker) MarkCompleted(batchID string, success bool, errorMessage string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bp, ok := t.batches[batchID]
	if !ok {
		return
	}
	if success {
		bp.Status = StatusCompleted
	} else {
		bp.Status = StatusError
		bp.Error = errorMessage
	}
	bp.EstimatedRemaining = 0
	bp.LastUpdate = t.now()
}

// GetProgress returns a deep copy of the batch entry, or nil if unknown.
// Callers never receive a live reference.
func (t *Tracker) GetProgress(batchID string) *BatchProgress {
	t.mu.Lock()
	defer t.mu.Unlock()

	bp, ok := t.batches[batchID]
	if !ok {
		return nil
	}
	return bp.clone()
}

// Remove prunes a batch entry, typically after its stream has observed a
// terminal event.
func (t *Tracker) Remove(batchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.batches, batchID)
}

func (bp *BatchProgress) clone() *BatchProgress {
	out := *bp
	out.Versions = make(map[string]*VersionProgress, len(bp.Versions))
	for id, vp := range bp.Versions {
		vc := *vp
		if vp.AverageScore != nil {
			v := *vp.AverageScore
			vc.AverageScore = &v
		}
		if vp.PassRate != nil {
			v := *vp.PassRate
			vc.PassRate = &v
		}
		if vp.StartedAt != nil {
			ts := *vp.StartedAt
			vc.StartedAt = &ts
		}
		if vp.EndedAt != nil {
			ts := *vp.EndedAt
			vc.EndedAt = &ts
		}
		out.Versions[id] = &vc
	}
	out.VersionOrder = append([]string(nil), bp.VersionOrder...)
	return &out
}
