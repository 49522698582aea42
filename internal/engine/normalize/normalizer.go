// Package normalize converts adapter diagnostics into canonical issues.
package normalize

import (
	"log/slog"

	"coderefactor/internal/core/config"
	"coderefactor/internal/core/issue"
	"coderefactor/internal/shared/observability"

	"github.com/google/uuid"
)

// Normalizer is stateless apart from its configuration snapshot and may be
// shared across goroutines.
type Normalizer struct {
	cfg      config.AnalyzerConfig
	profiles Profiles
	newID    func() string
}

type Option func(*Normalizer)

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(fn func() string) Option {
	return func(n *Normalizer) { n.newID = fn }
}

func New(cfg config.AnalyzerConfig, profiles Profiles, opts ...Option) *Normalizer {
	n := &Normalizer{cfg: cfg, profiles: profiles, newID: uuid.NewString}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts one raw diagnostic. malformed is true when the
// diagnostic carried no location; the issue is still produced with an
// unknown location.
func (n *Normalizer) Normalize(raw issue.RawDiagnostic, source, path, analyzer string) (is issue.Issue, malformed bool) {
	profile := n.profiles.lookup(analyzer)

	loc, ok := convertLocation(raw.Location, profile, path)
	sev := profile.severity(raw.Severity)
	if override, found := n.cfg.SeverityOverride(raw.RuleID); found {
		sev = override
	}
	kind := profile.fixKind(raw)

	is = issue.Issue{
		ID:          n.newID(),
		Location:    loc,
		Severity:    sev,
		Category:    Categorize(profile, raw),
		Source:      analyzer,
		RuleID:      raw.RuleID,
		Message:     raw.Message,
		Description: raw.Description,
		Fixable:     kind == issue.FixAutomated || kind == issue.FixLLMAssisted,
		FixKind:     kind,
	}
	if raw.Edit != nil {
		edit := *raw.Edit
		is.Edit = &edit
	}
	if ok {
		is.CodeSnippet = Snippet(source, loc.StartLine, loc.LastLine(), n.cfg.SnippetContext())
	}
	return is, !ok
}

// NormalizeAll converts a batch from one analyzer and reports how many were
// malformed. Malformed diagnostics are counted and logged, never dropped.
func (n *Normalizer) NormalizeAll(raws []issue.RawDiagnostic, source, path, analyzer string) ([]issue.Issue, int) {
	out := make([]issue.Issue, 0, len(raws))
	malformed := 0
	for _, raw := range raws {
		is, bad := n.Normalize(raw, source, path, analyzer)
		if bad {
			malformed++
		}
		out = append(out, is)
	}
	if malformed > 0 {
		observability.MalformedDiagnosticsTotal.WithLabelValues(analyzer).Add(float64(malformed))
		slog.Warn("malformed diagnostics", "adapter", analyzer, "path", path, "count", malformed)
	}
	return out, malformed
}

// convertLocation shifts adapter positions to 1-based. An end is present when
// either end field is set. Positions before the start of the file pin to 1
// and an end before the start is dropped.
func convertLocation(raw *issue.RawLocation, p Profile, path string) (issue.Location, bool) {
	file := path
	if file == "" {
		file = issue.BufferPath
	}
	if raw == nil {
		return issue.Location{File: file}, false
	}
	if raw.File != "" {
		file = raw.File
	}

	lineShift := 1 - p.LineBase
	colShift := 1 - p.ColumnBase

	loc := issue.Location{
		File:        file,
		StartLine:   atLeastOne(raw.Line + lineShift),
		StartColumn: atLeastOne(raw.Column + colShift),
	}
	if raw.EndLine > 0 || raw.EndColumn > 0 {
		loc.EndLine = atLeastOne(raw.EndLine + lineShift)
		loc.EndColumn = atLeastOne(raw.EndColumn + colShift)
		if loc.EndLine < loc.StartLine || (loc.EndLine == loc.StartLine && loc.EndColumn < loc.StartColumn) {
			loc.EndLine, loc.EndColumn = 0, 0
		}
	}
	return loc, true
}

func atLeastOne(v int) int {
	if v < 1 {
		return 1
	}
	return v
}
