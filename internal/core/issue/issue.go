// Package issue holds the canonical analysis model shared by every stage of the
// pipeline: normalized issues, per-unit analysis results and fix candidates.
package issue

import (
	"fmt"
	"strings"
	"time"
)

// BufferPath is the location sentinel for sources that have no file on disk.
const BufferPath = "<buffer>"

// Severity is totally ordered: Info < Warning < Error < Critical.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

// ParseSeverity accepts the canonical severity names, case-insensitively.
func ParseSeverity(raw string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	case "critical":
		return SeverityCritical, nil
	}
	return SeverityInfo, fmt.Errorf("unknown severity %q", raw)
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Severities lists every severity in ascending order.
func Severities() []Severity {
	return []Severity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical}
}

type Category string

const (
	CategoryStyle           Category = "style"
	CategoryPerformance     Category = "performance"
	CategorySecurity        Category = "security"
	CategoryMaintainability Category = "maintainability"
	CategoryReliability     Category = "reliability"
	CategoryUsage           Category = "usage"
	CategoryDesign          Category = "design"
	CategoryDocumentation   Category = "documentation"
	CategoryComplexity      Category = "complexity"
	CategoryCodeSmell       Category = "code-smell"
	CategoryCompilerError   Category = "compiler-error"
)

// Categories lists every canonical category.
func Categories() []Category {
	return []Category{
		CategoryStyle, CategoryPerformance, CategorySecurity, CategoryMaintainability,
		CategoryReliability, CategoryUsage, CategoryDesign, CategoryDocumentation,
		CategoryComplexity, CategoryCodeSmell, CategoryCompilerError,
	}
}

type FixKind string

const (
	FixAutomated   FixKind = "automated"
	FixManual      FixKind = "manual"
	FixLLMAssisted FixKind = "llm-assisted"
	FixNone        FixKind = "none"
)

// Location is 1-based. A zero StartLine means the producing diagnostic carried
// no usable position. EndLine/EndColumn are zero when absent.
type Location struct {
	File        string `json:"file" msgpack:"file"`
	StartLine   int    `json:"start_line" msgpack:"start_line"`
	StartColumn int    `json:"start_column" msgpack:"start_column"`
	EndLine     int    `json:"end_line,omitempty" msgpack:"end_line"`
	EndColumn   int    `json:"end_column,omitempty" msgpack:"end_column"`
}

// Known reports whether the location points into the source.
func (l Location) Known() bool {
	return l.StartLine > 0
}

// LastLine returns EndLine when present, otherwise StartLine.
func (l Location) LastLine() int {
	if l.EndLine > 0 {
		return l.EndLine
	}
	return l.StartLine
}

func (l Location) String() string {
	if !l.Known() {
		return l.File + ":?"
	}
	if l.EndLine > 0 {
		return fmt.Sprintf("%s:%d:%d-%d:%d", l.File, l.StartLine, l.StartColumn, l.EndLine, l.EndColumn)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.StartLine, l.StartColumn)
}

// TextEdit is an adapter-provided replacement expressed in byte offsets of the
// analyzed source.
type TextEdit struct {
	Start int    `json:"start" msgpack:"start"`
	End   int    `json:"end" msgpack:"end"`
	Text  string `json:"text" msgpack:"text"`
}

// Issue is created once by the normalizer and never mutated afterwards.
type Issue struct {
	ID          string    `json:"id" msgpack:"id"`
	Location    Location  `json:"location" msgpack:"location"`
	Severity    Severity  `json:"severity" msgpack:"severity"`
	Category    Category  `json:"category" msgpack:"category"`
	Source      string    `json:"source" msgpack:"source"`
	RuleID      string    `json:"rule_id" msgpack:"rule_id"`
	Message     string    `json:"message" msgpack:"message"`
	Description string    `json:"description,omitempty" msgpack:"description"`
	CodeSnippet string    `json:"code_snippet" msgpack:"code_snippet"`
	Fixable     bool      `json:"fixable" msgpack:"fixable"`
	FixKind     FixKind   `json:"fix_kind" msgpack:"fix_kind"`
	Edit        *TextEdit `json:"edit,omitempty" msgpack:"edit"`
}

// AdapterFailure records one adapter that contributed nothing to a result.
type AdapterFailure struct {
	Adapter string `json:"adapter"`
	Reason  string `json:"reason"`
}

// AnalysisResult is one compilation unit's outcome.
type AnalysisResult struct {
	FilePath  string           `json:"file_path"`
	Language  string           `json:"language,omitempty"`
	Issues    []Issue          `json:"issues"`
	Duration  time.Duration    `json:"duration"`
	Err       error            `json:"-"`
	Truncated bool             `json:"truncated"`
	Malformed int              `json:"malformed"`
	Failures  []AdapterFailure `json:"failures,omitempty"`
}

// Failed reports whether the unit produced a top-level error.
func (r AnalysisResult) Failed() bool {
	return r.Err != nil
}

func (r AnalysisResult) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int, 4)
	for _, sev := range Severities() {
		counts[sev] = 0
	}
	for _, is := range r.Issues {
		counts[is.Severity]++
	}
	return counts
}

func (r AnalysisResult) CountByCategory() map[Category]int {
	counts := make(map[Category]int)
	for _, is := range r.Issues {
		counts[is.Category]++
	}
	return counts
}

func (r AnalysisResult) FixableIssues() []Issue {
	out := make([]Issue, 0)
	for _, is := range r.Issues {
		if is.Fixable {
			out = append(out, is)
		}
	}
	return out
}

// Find returns the issue with the given id.
func (r AnalysisResult) Find(id string) (Issue, bool) {
	for _, is := range r.Issues {
		if is.ID == id {
			return is, true
		}
	}
	return Issue{}, false
}
