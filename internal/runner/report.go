package runner

import (
	"math"
	"sort"
)

// VersionStanding is one version's entry in a comparison report.
type VersionStanding struct {
	Rank         int     `json:"rank"`
	VersionID    string  `json:"version_id"`
	VersionName  string  `json:"version_name"`
	Total        int     `json:"total"`
	Passed       int     `json:"passed"`
	Failed       int     `json:"failed"`
	PassRate     float64 `json:"pass_rate"`
	AverageScore float64 `json:"average_score"`
}

// RangeStats holds min/max/avg of one metric across versions.
type RangeStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// ComparisonReport ranks the versions of a batch against each other.
type ComparisonReport struct {
	Rankings      []VersionStanding `json:"rankings"`
	BestVersionID string            `json:"best_version_id,omitempty"`
	PassRate      RangeStats        `json:"pass_rate"`
	Score         RangeStats        `json:"score"`
}

// BuildComparisonReport sorts standings by pass rate, then average score,
// both descending. The sort is stable: ties keep the order in which the
// versions were supplied to the batch. Rank 1 is best.
func BuildComparisonReport(standings []VersionStanding) *ComparisonReport {
	report := &ComparisonReport{
		Rankings: append([]VersionStanding(nil), standings...),
	}
	if len(report.Rankings) == 0 {
		return report
	}

	sort.SliceStable(report.Rankings, func(i, j int) bool {
		a, b := report.Rankings[i], report.Rankings[j]
		if a.PassRate != b.PassRate {
			return a.PassRate > b.PassRate
		}
		return a.AverageScore > b.AverageScore
	})

	for i := range report.Rankings {
		report.Rankings[i].Rank = i + 1
	}
	report.BestVersionID = report.Rankings[0].VersionID

	report.PassRate = rangeStats(report.Rankings, func(s VersionStanding) float64 { return s.PassRate })
	report.Score = rangeStats(report.Rankings, func(s VersionStanding) float64 { return s.AverageScore })
	return report
}

func rangeStats(standings []VersionStanding, metric func(VersionStanding) float64) RangeStats {
	stats := RangeStats{Min: metric(standings[0]), Max: metric(standings[0])}
	sum := 0.0
	for _, s := range standings {
		v := metric(s)
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
		sum += v
	}
	stats.Avg = math.Round(sum/float64(len(standings))*100) / 100
	return stats
}
