package progress

import (
	"context"
	"log/slog"
	"time"

	"github.com/openkb/chatbench/internal/store"
)

// DefaultPollInterval is how often an open stream re-reads the tracker.
const DefaultPollInterval = 500 * time.Millisecond

// Event is one JSON-serializable progress snapshot emitted on a stream.
type Event struct {
	BatchID                   string         `json:"batchId"`
	BatchName                 string         `json:"batchName,omitempty"`
	Status                    string         `json:"status"`
	Progress                  float64        `json:"progress"`
	CompletedTests            int            `json:"completedTests"`
	TotalTests                int            `json:"totalTests"`
	FailedTests               int            `json:"failedTests"`
	CurrentVersion            string         `json:"currentVersion,omitempty"`
	CurrentVersionName        string         `json:"currentVersionName,omitempty"`
	CurrentTestCase           string         `json:"currentTestCase,omitempty"`
	EstimatedRemainingSeconds float64        `json:"estimatedRemainingSeconds"`
	StartTime                 *time.Time     `json:"startTime,omitempty"`
	LastUpdate                *time.Time     `json:"lastUpdate,omitempty"`
	Error                     string         `json:"error,omitempty"`
	Versions                  []VersionEvent `json:"versions,omitempty"`
}

// VersionEvent is the per-version nested progress within an Event.
type VersionEvent struct {
	VersionID      string   `json:"versionId"`
	VersionName    string   `json:"versionName"`
	TotalTests     int      `json:"totalTests"`
	CompletedTests int      `json:"completedTests"`
	FailedTests    int      `json:"failedTests"`
	Status         string   `json:"status"`
	Progress       float64  `json:"progress"`
	AverageScore   *float64 `json:"averageScore,omitempty"`
	PassRate       *float64 `json:"passRate,omitempty"`
}

// Streamer opens long-lived progress streams for batches. Live progress is
// polled from the Tracker; when the tracker entry is gone (process restart)
// the stream falls back to the persisted run records.
type Streamer struct {
	tracker  *Tracker
	store    store.Store
	interval time.Duration
}

// NewStreamer creates a Streamer. A zero interval selects DefaultPollInterval.
func NewStreamer(tracker *Tracker, st store.Store, interval time.Duration) *Streamer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Streamer{tracker: tracker, store: st, interval: interval}
}

// OpenStream starts streaming progress events for a batch. The first event
// is emitted immediately so the observer can detect the connection; the
// channel is closed after a terminal (completed or error) event, or when ctx
// is cancelled.
func (s *Streamer) OpenStream(ctx context.Context, batchID string) <-chan Event {
	events := make(chan Event)
	go s.stream(ctx, batchID, events)
	return events
}

func (s *Streamer) stream(ctx context.Context, batchID string, events chan<- Event) {
	defer close(events)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		ev, terminal := s.snapshot(ctx, batchID)

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}

		if terminal {
			s.tracker.Remove(batchID)
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// snapshot builds the next event for the batch and reports whether it is
// terminal.
func (s *Streamer) snapshot(ctx context.Context, batchID string) (Event, bool) {
	bp := s.tracker.GetProgress(batchID)
	if bp == nil {
		return s.recover(ctx, batchID)
	}

	ev := eventFromProgress(bp)
	return ev, bp.Status.Terminal()
}

// recover reconstructs a terminal view from persisted runs after the
// in-memory entry was lost, typically due to a process restart.
func (s *Streamer) recover(ctx context.Context, batchID string) (Event, bool) {
	runs, err := s.store.RunsByBatch(ctx, batchID)
	if err != nil {
		slog.Error("progress recovery query failed", "batch_id", batchID, "error", err)
		return Event{
			BatchID: batchID,
			Status:  string(StatusError),
			Error:   "failed to read persisted progress: " + err.Error(),
		}, true
	}

	if len(runs) == 0 {
		return Event{
			BatchID: batchID,
			Status:  string(StatusError),
			Error:   "batch not found",
		}, true
	}

	for _, run := range runs {
		if run.CompletedAt == nil {
			return Event{
				BatchID: batchID,
				Status:  string(StatusError),
				Error:   "progress lost, likely due to a restart while running",
			}, true
		}
	}

	// Every run completed: synthesize the terminal snapshot from the
	// stored aggregates.
	ev := Event{
		BatchID:  batchID,
		Status:   string(StatusCompleted),
		Progress: 100,
	}
	var earliest time.Time
	var latest time.Time
	for _, run := range runs {
		ev.TotalTests += run.Total
		ev.CompletedTests += run.Total
		ev.FailedTests += run.Failed
		avg := run.AverageScore
		rate := run.PassRate
		ev.Versions = append(ev.Versions, VersionEvent{
			VersionID:      run.VersionID,
			VersionName:    run.VersionName,
			TotalTests:     run.Total,
			CompletedTests: run.Total,
			FailedTests:    run.Failed,
			Status:         string(StatusCompleted),
			Progress:       100,
			AverageScore:   &avg,
			PassRate:       &rate,
		})
		if earliest.IsZero() || run.StartedAt.Before(earliest) {
			earliest = run.StartedAt
		}
		if run.CompletedAt.After(latest) {
			latest = *run.CompletedAt
		}
	}
	if !earliest.IsZero() {
		ev.StartTime = &earliest
	}
	if !latest.IsZero() {
		ev.LastUpdate = &latest
	}
	return ev, true
}

func eventFromProgress(bp *BatchProgress) Event {
	// Clamp defensively against any double-count race.
	completed := bp.CompletedTests
	if completed > bp.TotalTests {
		completed = bp.TotalTests
	}
	pct := 0.0
	if bp.TotalTests > 0 {
		pct = float64(completed) / float64(bp.TotalTests) * 100
		if pct > 100 {
			pct = 100
		}
	}

	start := bp.StartTime
	last := bp.LastUpdate
	ev := Event{
		BatchID:                   bp.BatchID,
		BatchName:                 bp.BatchName,
		Status:                    string(bp.Status),
		Progress:                  pct,
		CompletedTests:            completed,
		TotalTests:                bp.TotalTests,
		FailedTests:               bp.FailedTests,
		CurrentVersion:            bp.CurrentVersion,
		CurrentVersionName:        bp.CurrentVersionName,
		CurrentTestCase:           bp.CurrentTestCase,
		EstimatedRemainingSeconds: bp.EstimatedRemaining.Seconds(),
		StartTime:                 &start,
		LastUpdate:                &last,
		Error:                     bp.Error,
	}

	for _, id := range bp.VersionOrder {
		vp, ok := bp.Versions[id]
		if !ok {
			continue
		}
		vPct := 0.0
		if vp.TotalTests > 0 {
			vPct = float64(vp.CompletedTests) / float64(vp.TotalTests) * 100
			if vPct > 100 {
				vPct = 100
			}
		}
		ev.Versions = append(ev.Versions, VersionEvent{
			VersionID:      vp.VersionID,
			VersionName:    vp.VersionName,
			TotalTests:     vp.TotalTests,
			CompletedTests: vp.CompletedTests,
			FailedTests:    vp.FailedTests,
			Status:         string(vp.Status),
			Progress:       vPct,
			AverageScore:   vp.AverageScore,
			PassRate:       vp.PassRate,
		})
	}

	return ev
}
