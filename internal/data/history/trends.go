package history

import (
	"fmt"
	"math"
	"time"

	"coderefactor/internal/core/issue"
	"coderefactor/internal/core/ports"
)

type TrendPoint struct {
	RunID         int64     `json:"run_id"`
	Timestamp     time.Time `json:"timestamp"`
	SourceDigest  string    `json:"source_digest"`
	IssueCount    int       `json:"issue_count"`
	CriticalCount int       `json:"critical_count"`
	ErrorCount    int       `json:"error_count"`
	DeltaIssues   int       `json:"delta_issues"`
	DeltaCritical int       `json:"delta_critical"`
	SourceChanged bool      `json:"source_changed"`
	AvgIssues     float64   `json:"avg_issues"`
	WindowHours   float64   `json:"window_hours"`
}

type TrendReport struct {
	SchemaVersion int          `json:"schema_version"`
	FilePath      string       `json:"file_path"`
	Since         time.Time    `json:"since"`
	Until         time.Time    `json:"until"`
	Window        string       `json:"window"`
	RunCount      int          `json:"run_count"`
	Points        []TrendPoint `json:"points"`
}

// BuildTrendReport computes run-over-run deltas and a moving average of the
// issue count over window. runs must be ordered oldest first.
func BuildTrendReport(filePath string, runs []ports.HistoryRun, window time.Duration) (TrendReport, error) {
	if len(runs) == 0 {
		return TrendReport{}, fmt.Errorf("no runs recorded for %s", filePath)
	}

	points := make([]TrendPoint, 0, len(runs))
	for i, current := range runs {
		point := TrendPoint{
			RunID:         current.ID,
			Timestamp:     current.Timestamp,
			SourceDigest:  current.SourceDigest,
			IssueCount:    current.IssueCount,
			CriticalCount: current.BySeverity[issue.SeverityCritical],
			ErrorCount:    current.BySeverity[issue.SeverityError],
		}
		if i > 0 {
			prev := runs[i-1]
			point.DeltaIssues = current.IssueCount - prev.IssueCount
			point.DeltaCritical = point.CriticalCount - prev.BySeverity[issue.SeverityCritical]
			point.SourceChanged = current.SourceDigest != prev.SourceDigest
		}
		point.AvgIssues = round2(movingAverage(runs, i, window))
		point.WindowHours = round2(window.Hours())
		points = append(points, point)
	}

	return TrendReport{
		SchemaVersion: SchemaVersion,
		FilePath:      filePath,
		Since:         runs[0].Timestamp,
		Until:         runs[len(runs)-1].Timestamp,
		Window:        window.String(),
		RunCount:      len(points),
		Points:        points,
	}, nil
}

func movingAverage(runs []ports.HistoryRun, index int, window time.Duration) float64 {
	if window <= 0 {
		return float64(runs[index].IssueCount)
	}
	cutoff := runs[index].Timestamp.Add(-window)
	total, count := 0, 0
	for i := index; i >= 0; i-- {
		if runs[i].Timestamp.Before(cutoff) {
			break
		}
		total += runs[i].IssueCount
		count++
	}
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
