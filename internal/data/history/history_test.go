package history

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"coderefactor/internal/core/issue"
	"coderefactor/internal/core/ports"
)

func sampleIssues() []issue.Issue {
	return []issue.Issue{
		{
			ID:       "a",
			Location: issue.Location{File: "a.py", StartLine: 2, StartColumn: 1, EndLine: 2, EndColumn: 5},
			Severity: issue.SeverityCritical,
			Category: issue.CategorySecurity,
			Source:   "bandit",
			RuleID:   "B602",
			Message:  "subprocess call with shell=True",
			FixKind:  issue.FixManual,
		},
		{
			ID:       "b",
			Location: issue.Location{File: "a.py", StartLine: 4, StartColumn: 7},
			Severity: issue.SeverityWarning,
			Category: issue.CategoryStyle,
			Source:   "flake8",
			RuleID:   "W291",
			Message:  "trailing whitespace",
			Fixable:  true,
			FixKind:  issue.FixAutomated,
			Edit:     &issue.TextEdit{Start: 10, End: 12, Text: ""},
		},
	}
}

func TestStore_OpenInitializesSchemaAndSaveLoad(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	issues := sampleIssues()
	first := ports.HistoryRun{
		FilePath:     "a.py",
		SourceDigest: "d1",
		Timestamp:    base,
		Duration:     1500 * time.Millisecond,
		BySeverity:   map[issue.Severity]int{issue.SeverityCritical: 1, issue.SeverityWarning: 1},
		Truncated:    true,
		Malformed:    2,
	}
	id, err := store.SaveRun(first, issues)
	if err != nil {
		t.Fatalf("save first run: %v", err)
	}
	if _, err := store.SaveRun(ports.HistoryRun{FilePath: "a.py", Timestamp: base.Add(2 * time.Hour), Error: "boom"}, nil); err != nil {
		t.Fatalf("save second run: %v", err)
	}
	if _, err := store.SaveRun(ports.HistoryRun{FilePath: "b.py", Timestamp: base}, nil); err != nil {
		t.Fatalf("save other file: %v", err)
	}

	all, err := store.LoadRuns("a.py", time.Time{})
	if err != nil {
		t.Fatalf("load runs: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 runs for a.py, got %d", len(all))
	}
	got := all[0]
	if got.ID != id || got.IssueCount != 2 || got.Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected first run: %+v", got)
	}
	if !got.Truncated || got.Malformed != 2 || got.SourceDigest != "d1" {
		t.Fatalf("expected flags to roundtrip, got %+v", got)
	}
	if got.BySeverity[issue.SeverityCritical] != 1 || got.BySeverity[issue.SeverityError] != 0 {
		t.Fatalf("unexpected severity counts: %v", got.BySeverity)
	}
	if !got.Timestamp.Equal(base) {
		t.Fatalf("expected timestamp %v, got %v", base, got.Timestamp)
	}
	if all[1].Error != "boom" {
		t.Fatalf("expected error text to roundtrip, got %q", all[1].Error)
	}

	recent, err := store.LoadRuns("a.py", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("load recent runs: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 run after since filter, got %d", len(recent))
	}

	everything, err := store.LoadRuns("", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(everything) != 3 {
		t.Fatalf("expected 3 runs across files, got %d", len(everything))
	}

	loaded, err := store.LoadIssues(id)
	if err != nil {
		t.Fatalf("load issues: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(loaded))
	}
	if loaded[0].ID != "a" || loaded[0].Severity != issue.SeverityCritical || loaded[0].Location != issues[0].Location {
		t.Fatalf("unexpected first issue: %+v", loaded[0])
	}
	if loaded[1].Edit == nil || *loaded[1].Edit != *issues[1].Edit || !loaded[1].Fixable {
		t.Fatalf("expected edit and fixability to roundtrip, got %+v", loaded[1])
	}
}

func TestStore_EmptyPathUsesBufferSentinel(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := store.SaveRun(ports.HistoryRun{}, nil); err != nil {
		t.Fatal(err)
	}
	runs, err := store.LoadRuns(issue.BufferPath, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Timestamp.IsZero() {
		t.Fatalf("expected one timestamped buffer run, got %+v", runs)
	}
}

func TestStore_OpenRejectsDirectoryPath(t *testing.T) {
	_, err := Open(t.TempDir())
	if err == nil {
		t.Fatal("expected open error for directory path")
	}
	if !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStore_OpenCorruptDBPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	if err := os.WriteFile(path, []byte("this is not sqlite"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path)
	if err == nil {
		t.Fatal("expected sqlite open error")
	}
	lower := strings.ToLower(err.Error())
	if !strings.Contains(lower, "not a database") && !strings.Contains(lower, "schema") {
		t.Fatalf("expected schema/open error, got: %v", err)
	}
}

func TestEnsureSchema_DetectsNewerVersionDrift(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err = store.db.Exec(`INSERT OR REPLACE INTO schema_migrations(version) VALUES (?)`, SchemaVersion+1); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open(driverName, "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	err = EnsureSchema(db)
	if err == nil {
		t.Fatal("expected drift error")
	}
	if !strings.Contains(err.Error(), "newer than supported") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuildTrendReport(t *testing.T) {
	base := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)
	runs := []ports.HistoryRun{
		{ID: 1, Timestamp: base, SourceDigest: "x", IssueCount: 4, BySeverity: map[issue.Severity]int{issue.SeverityCritical: 2}},
		{ID: 2, Timestamp: base.Add(2 * time.Hour), SourceDigest: "x", IssueCount: 6, BySeverity: map[issue.Severity]int{issue.SeverityCritical: 1}},
		{ID: 3, Timestamp: base.Add(25 * time.Hour), SourceDigest: "y", IssueCount: 1},
	}

	report, err := BuildTrendReport("a.py", runs, 24*time.Hour)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if report.RunCount != 3 {
		t.Fatalf("expected run_count=3, got %d", report.RunCount)
	}
	if report.Points[1].DeltaIssues != 2 || report.Points[1].DeltaCritical != -1 {
		t.Fatalf("unexpected deltas: %+v", report.Points[1])
	}
	if report.Points[1].SourceChanged || !report.Points[2].SourceChanged {
		t.Fatal("expected source change only on the third run")
	}
	if report.Points[1].AvgIssues != 5 {
		t.Fatalf("expected avg_issues=5, got %v", report.Points[1].AvgIssues)
	}
	// The first run falls outside the 24h window of the third.
	if report.Points[2].AvgIssues != 3.5 {
		t.Fatalf("expected avg_issues=3.5, got %v", report.Points[2].AvgIssues)
	}

	if _, err := BuildTrendReport("a.py", nil, time.Hour); err == nil {
		t.Fatal("expected error for empty run list")
	}
}

func TestIsCorruptError(t *testing.T) {
	if !IsCorruptError(errors.New("database disk image is malformed")) {
		t.Fatal("expected malformed sqlite message to be treated as corrupt")
	}
}

type memoryStore struct {
	runs   []ports.HistoryRun
	issues [][]issue.Issue
	err    error
}

func (m *memoryStore) SaveRun(run ports.HistoryRun, issues []issue.Issue) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.runs = append(m.runs, run)
	m.issues = append(m.issues, issues)
	return int64(len(m.runs)), nil
}

func (m *memoryStore) LoadRuns(string, time.Time) ([]ports.HistoryRun, error) { return m.runs, nil }

func (m *memoryStore) LoadIssues(int64) ([]issue.Issue, error) { return nil, nil }

func TestRecorder_Record(t *testing.T) {
	mem := &memoryStore{}
	rec := NewRecorder(mem)
	res := issue.AnalysisResult{
		FilePath: "a.py",
		Issues:   sampleIssues(),
		Duration: time.Second,
		Err:      errors.New("partial"),
	}
	id, err := rec.Record(res, "x = 1\n")
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 || len(mem.runs) != 1 {
		t.Fatalf("expected one saved run, got id=%d runs=%d", id, len(mem.runs))
	}
	run := mem.runs[0]
	if run.IssueCount != 2 || run.BySeverity[issue.SeverityCritical] != 1 || run.Error != "partial" {
		t.Fatalf("unexpected run summary: %+v", run)
	}
	if run.SourceDigest == "" {
		t.Fatal("expected a source digest")
	}

	mem.err = errors.New("disk full")
	if _, err := rec.Record(res, "x"); err == nil {
		t.Fatal("expected store error to propagate")
	}

	var nilRec *Recorder
	if _, err := nilRec.Record(res, "x"); err != nil {
		t.Fatalf("expected nil recorder to be a no-op, got %v", err)
	}
}
