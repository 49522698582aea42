package ports

import (
	"coderefactor/internal/core/issue"
	"context"
	"time"
)

// AdapterTier is the default dedup priority of an adapter. Lower wins.
type AdapterTier int

const (
	TierCompiler AdapterTier = iota
	TierSecurity
	TierGeneral
	TierStyle
)

func (t AdapterTier) String() string {
	switch t {
	case TierCompiler:
		return "compiler"
	case TierSecurity:
		return "security"
	case TierGeneral:
		return "general"
	case TierStyle:
		return "style"
	}
	return "unknown"
}

// Adapter wraps one external analyzer. Implementations must not mutate the
// unit and must return promptly once ctx is done.
type Adapter interface {
	Name() string
	Tier() AdapterTier
	Supports(language string) bool
	AnalyzeUnit(ctx context.Context, unit issue.Unit) ([]issue.RawDiagnostic, error)
}

// ProjectAdapter is an Adapter that needs the whole project graph. Returned
// diagnostics carry project-relative file paths.
type ProjectAdapter interface {
	Adapter
	AnalyzeProject(ctx context.Context, project issue.Project) ([]issue.RawDiagnostic, error)
}

// IssueContext is what the suggestion oracle receives besides the full source.
type IssueContext struct {
	FilePath    string
	Language    string
	RuleID      string
	Message     string
	Description string
	Snippet     string
	Location    issue.Location
}

// Proposal is the oracle's answer: a whole-buffer replacement.
type Proposal struct {
	Explanation string
	PatchedText string
}

// Oracle proposes patches for an issue. It has no retry policy of its own.
type Oracle interface {
	Propose(ctx context.Context, source string, ic IssueContext) (Proposal, error)
}

// TransientError marks oracle failures worth one retry.
type TransientError interface {
	error
	Transient() bool
}

// Fixer is a deterministic, analyzer-specific transformation.
type Fixer interface {
	Name() string
	CanFix(is issue.Issue) bool
	Fix(source string, is issue.Issue) (patched string, rationale string, err error)
}

// SyntaxValidator re-parses a candidate post-image in the given language.
type SyntaxValidator interface {
	Validate(ctx context.Context, language, source string) error
}

// HistoryRun summarizes one persisted analysis run.
type HistoryRun struct {
	ID           int64
	FilePath     string
	SourceDigest string
	Timestamp    time.Time
	Duration     time.Duration
	IssueCount   int
	Truncated    bool
	Malformed    int
	Error        string
	BySeverity   map[issue.Severity]int
}

// HistoryStore persists analysis runs between sessions.
type HistoryStore interface {
	SaveRun(run HistoryRun, issues []issue.Issue) (int64, error)
	LoadRuns(filePath string, since time.Time) ([]HistoryRun, error)
	LoadIssues(runID int64) ([]issue.Issue, error)
}
