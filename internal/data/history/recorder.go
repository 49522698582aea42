package history

import (
	"log/slog"
	"time"

	"coderefactor/internal/core/issue"
	"coderefactor/internal/core/ports"
	"coderefactor/internal/shared/observability"
	"coderefactor/internal/shared/util"
)

// Recorder turns analysis results into history runs.
type Recorder struct {
	store ports.HistoryStore
	now   func() time.Time
}

func NewRecorder(store ports.HistoryStore) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record persists res analyzed from source. Failures are logged and counted
// but only returned to the caller; analysis results stay valid without history.
func (r *Recorder) Record(res issue.AnalysisResult, source string) (int64, error) {
	if r == nil || r.store == nil {
		return 0, nil
	}
	run := RunFromResult(res, source, r.now())
	id, err := r.store.SaveRun(run, res.Issues)
	if err != nil {
		observability.HistoryWritesTotal.WithLabelValues(observability.OutcomeFailed).Inc()
		slog.Warn("history write failed", "path", res.FilePath, "error", err)
		return 0, err
	}
	observability.HistoryWritesTotal.WithLabelValues(observability.OutcomeOK).Inc()
	return id, nil
}

// RunFromResult summarizes res as a history run.
func RunFromResult(res issue.AnalysisResult, source string, at time.Time) ports.HistoryRun {
	run := ports.HistoryRun{
		FilePath:     res.FilePath,
		SourceDigest: util.Digest(source),
		Timestamp:    at.UTC(),
		Duration:     res.Duration,
		IssueCount:   len(res.Issues),
		Truncated:    res.Truncated,
		Malformed:    res.Malformed,
		BySeverity:   res.CountBySeverity(),
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	return run
}
