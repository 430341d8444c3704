package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	e := NewEvaluator(0)

	tests := []struct {
		name     string
		answer   string
		keywords []string
		score    int
		passed   bool
		missing  []string
	}{
		{
			name:     "all keywords matched",
			answer:   "Use kubectl apply to create the Deployment in the cluster.",
			keywords: []string{"kubectl", "deployment"},
			score:    100,
			passed:   true,
		},
		{
			name:     "case insensitive match",
			answer:   "RESET your PASSWORD from the settings page",
			keywords: []string{"reset", "Password"},
			score:    100,
			passed:   true,
		},
		{
			name:     "partial match below threshold",
			answer:   "Open the settings page.",
			keywords: []string{"settings", "password", "reset", "email"},
			score:    25,
			passed:   false,
			missing:  []string{"password", "reset", "email"},
		},
		{
			name:     "partial match at threshold",
			answer:   "reset the password first, then check settings",
			keywords: []string{"reset", "password", "settings", "email", "link"},
			score:    60,
			passed:   true,
			missing:  []string{"email", "link"},
		},
		{
			name:     "rounding of two thirds",
			answer:   "alpha beta",
			keywords: []string{"alpha", "beta", "gamma"},
			score:    67,
			passed:   true,
			missing:  []string{"gamma"},
		},
		{
			name:     "no keywords matched",
			answer:   "completely unrelated text",
			keywords: []string{"invoice", "refund"},
			score:    0,
			passed:   false,
			missing:  []string{"invoice", "refund"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := e.Evaluate(tt.answer, tt.keywords)
			assert.Equal(t, tt.score, ev.Score)
			assert.Equal(t, tt.passed, ev.Passed)
			assert.Equal(t, tt.missing, ev.Missing)
			assert.Empty(t, ev.Err)
			assert.Len(t, ev.KeywordMatches, len(tt.keywords))
		})
	}
}

func TestEvaluateEmptyAnswer(t *testing.T) {
	e := NewEvaluator(0)

	for _, answer := range []string{"", "   ", "\n\t "} {
		ev := e.Evaluate(answer, []string{"reset", "password"})
		assert.Equal(t, 0, ev.Score)
		assert.False(t, ev.Passed)
		assert.Equal(t, []string{"reset", "password"}, ev.Missing)
		assert.Empty(t, ev.Matched)
	}

	// An empty answer fails even with no keywords required.
	ev := e.Evaluate("", nil)
	assert.Equal(t, 0, ev.Score)
	assert.False(t, ev.Passed)
}

func TestEvaluateEmptyKeywords(t *testing.T) {
	e := NewEvaluator(0)

	ev := e.Evaluate("any non-empty answer", nil)
	assert.Equal(t, 100, ev.Score)
	assert.True(t, ev.Passed)
	assert.Empty(t, ev.Missing)
}

func TestEvaluateCustomThreshold(t *testing.T) {
	strict := NewEvaluator(80)

	// 2/3 keywords = 67, below the strict threshold.
	ev := strict.Evaluate("alpha beta", []string{"alpha", "beta", "gamma"})
	assert.Equal(t, 67, ev.Score)
	assert.False(t, ev.Passed)

	lenient := NewEvaluator(50)
	ev = lenient.Evaluate("alpha beta", []string{"alpha", "beta", "gamma"})
	assert.True(t, ev.Passed)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	e := NewEvaluator(0)

	first := e.Evaluate("reset your password", []string{"reset", "password", "email"})
	second := e.Evaluate("reset your password", []string{"reset", "password", "email"})
	assert.Equal(t, first, second)
}

func TestBatchStatistics(t *testing.T) {
	evals := []Evaluation{
		{Score: 100, Passed: true},
		{Score: 67, Passed: true},
		{Score: 50, Passed: false},
		{Score: 0, Passed: false},
	}

	stats := BatchStatistics(evals)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Passed)
	assert.Equal(t, 2, stats.Failed)
	assert.InDelta(t, 50.0, stats.PassRate, 0.01)
	assert.InDelta(t, 54.25, stats.AverageScore, 0.01)
	assert.Equal(t, [5]int{1, 0, 1, 1, 1}, stats.Histogram)
}

func TestBatchStatisticsEmpty(t *testing.T) {
	stats := BatchStatistics(nil)
	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0.0, stats.PassRate)
	assert.Equal(t, 0.0, stats.AverageScore)
}

func TestHistogramBuckets(t *testing.T) {
	tests := []struct {
		score  int
		bucket int
	}{
		{0, 0}, {20, 0}, {21, 1}, {40, 1}, {41, 2},
		{60, 2}, {61, 3}, {80, 3}, {81, 4}, {100, 4},
	}
	for _, tt := range tests {
		require.Equal(t, tt.bucket, histogramBucket(tt.score), "score %d", tt.score)
	}
}
