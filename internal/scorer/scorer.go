// Package scorer evaluates chat answers against required keywords.
package scorer

import (
	"fmt"
	"math"
	"strings"
)

// DefaultPassThreshold is the minimum score for an answer to pass.
const DefaultPassThreshold = 60

// Evaluation is the outcome of scoring a single answer.
type Evaluation struct {
	Score          int             `json:"score"`
	Passed         bool            `json:"passed"`
	Matched        []string        `json:"matched"`
	Missing        []string        `json:"missing"`
	KeywordMatches map[string]bool `json:"keyword_matches"`
	Err            string          `json:"error,omitempty"`
}

// Statistics aggregates a set of evaluations.
type Statistics struct {
	Total        int     `json:"total"`
	Passed       int     `json:"passed"`
	Failed       int     `json:"failed"`
	PassRate     float64 `json:"pass_rate"`
	AverageScore float64 `json:"average_score"`
	// Histogram buckets scores into five 20-point bands:
	// 0-20, 21-40, 41-60, 61-80, 81-100.
	Histogram [5]int `json:"histogram"`
}

// Evaluator scores answers by keyword containment. Evaluate performs no I/O
// and never panics past its boundary.
type Evaluator struct {
	threshold int
}

// NewEvaluator creates an Evaluator with the given pass threshold.
// A threshold <= 0 selects DefaultPassThreshold.
func NewEvaluator(threshold int) *Evaluator {
	if threshold <= 0 {
		threshold = DefaultPassThreshold
	}
	return &Evaluator{threshold: threshold}
}

// Threshold returns the configured pass threshold.
func (e *Evaluator) Threshold() int {
	return e.threshold
}

// Evaluate scores an answer against the required keywords.
// Matching is case-insensitive substring containment on trimmed input.
// An empty or all-whitespace answer scores 0 and fails regardless of the
// keyword list; an empty keyword list on a non-empty answer scores 100.
// One bad evaluation must never abort a batch, so internal failures are
// converted into a zero-score result carrying an error marker.
func (e *Evaluator) Evaluate(answer string, keywords []string) (ev Evaluation) {
	defer func() {
		if r := recover(); r != nil {
			ev = Evaluation{
				Missing:        append([]string(nil), keywords...),
				KeywordMatches: map[string]bool{},
				Err:            fmt.Sprintf("evaluation failed: %v", r),
			}
		}
	}()

	trimmed := strings.TrimSpace(answer)
	if trimmed == "" {
		ev = Evaluation{
			Missing:        append([]string(nil), keywords...),
			KeywordMatches: make(map[string]bool, len(keywords)),
		}
		for _, kw := range keywords {
			ev.KeywordMatches[kw] = false
		}
		return ev
	}

	if len(keywords) == 0 {
		return Evaluation{
			Score:          100,
			Passed:         true,
			KeywordMatches: map[string]bool{},
		}
	}

	haystack := strings.ToLower(trimmed)
	ev = Evaluation{
		KeywordMatches: make(map[string]bool, len(keywords)),
	}
	for _, kw := range keywords {
		needle := strings.ToLower(strings.TrimSpace(kw))
		found := needle != "" && strings.Contains(haystack, needle)
		ev.KeywordMatches[kw] = found
		if found {
			ev.Matched = append(ev.Matched, kw)
		} else {
			ev.Missing = append(ev.Missing, kw)
		}
	}

	ev.Score = int(math.Round(float64(len(ev.Matched)) / float64(len(keywords)) * 100))
	ev.Passed = ev.Score >= e.threshold
	return ev
}

// BatchStatistics computes aggregate statistics over a set of evaluations.
func BatchStatistics(evals []Evaluation) Statistics {
	stats := Statistics{Total: len(evals)}
	if len(evals) == 0 {
		return stats
	}

	totalScore := 0
	for _, ev := range evals {
		if ev.Passed {
			stats.Passed++
		} else {
			stats.Failed++
		}
		totalScore += ev.Score
		stats.Histogram[histogramBucket(ev.Score)]++
	}

	stats.PassRate = math.Round(float64(stats.Passed)/float64(stats.Total)*10000) / 100
	stats.AverageScore = math.Round(float64(totalScore)/float64(stats.Total)*100) / 100
	return stats
}

func histogramBucket(score int) int {
	switch {
	case score <= 20:
		return 0
	case score <= 40:
		return 1
	case score <= 60:
		return 2
	case score <= 80:
		return 3
	default:
		return 4
	}
}
