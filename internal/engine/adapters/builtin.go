package adapters

import (
	"context"
	"sort"
	"strings"

	"coderefactor/internal/core/issue"
	"coderefactor/internal/core/ports"
	"coderefactor/internal/engine/normalize"
	"coderefactor/internal/engine/parser"
)

// Rule ids produced by the in-process adapters.
const (
	RuleSyntaxError         = "syntax-error"
	RuleMissingNode         = "missing-node"
	RuleTrailingWhitespace  = "trailing-whitespace"
	RuleMissingFinalNewline = "missing-final-newline"
	RuleTabIndentation      = "tab-indentation"
)

// SyntaxAdapter reports tree-sitter ERROR and MISSING nodes.
type SyntaxAdapter struct {
	parser *parser.Parser
}

func NewSyntaxAdapter(p *parser.Parser) *SyntaxAdapter {
	return &SyntaxAdapter{parser: p}
}

func (a *SyntaxAdapter) Name() string                  { return "syntax" }
func (a *SyntaxAdapter) Tier() ports.AdapterTier       { return ports.TierCompiler }
func (a *SyntaxAdapter) Supports(language string) bool { return a.parser.HasGrammar(language) }

func (a *SyntaxAdapter) AnalyzeUnit(ctx context.Context, unit issue.Unit) ([]issue.RawDiagnostic, error) {
	errs, _, err := a.parser.SyntaxErrors(ctx, unit.Language, unit.Source)
	if err != nil {
		return nil, err
	}
	diags := make([]issue.RawDiagnostic, 0, len(errs))
	for _, se := range errs {
		rule := RuleSyntaxError
		if se.Missing {
			rule = RuleMissingNode
		}
		diags = append(diags, issue.RawDiagnostic{
			RuleID:   rule,
			Severity: "error",
			Category: "syntax",
			Message:  se.Message(),
			Location: &issue.RawLocation{Line: se.Line, Column: se.Column, EndLine: se.EndLine, EndColumn: se.EndColumn},
			Tags:     []string{issue.TagLLM},
		})
	}
	return diags, nil
}

func syntaxProfile() normalize.Profile {
	return normalize.Profile{
		Name:             "syntax",
		LineBase:         1,
		ColumnBase:       1,
		DefaultSeverity:  issue.SeverityError,
		CategoryPrefixes: map[string]issue.Category{"": issue.CategoryCompilerError},
	}
}

// WhitespaceAdapter flags trailing whitespace, a missing final newline and
// tab indentation in languages indented with spaces.
type WhitespaceAdapter struct{}

func (WhitespaceAdapter) Name() string                  { return "whitespace" }
func (WhitespaceAdapter) Tier() ports.AdapterTier       { return ports.TierStyle }
func (WhitespaceAdapter) Supports(language string) bool { return language != "" }

// tabbedLanguages indent with tabs by convention.
var tabbedLanguages = set("go")

func (WhitespaceAdapter) AnalyzeUnit(ctx context.Context, unit issue.Unit) ([]issue.RawDiagnostic, error) {
	if unit.Source == "" {
		return nil, nil
	}
	var diags []issue.RawDiagnostic
	fixable := []string{issue.TagCodeFix}
	offset := 0
	lines := strings.Split(unit.Source, "\n")
	for i, line := range lines {
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		lineNo := i + 1
		body := strings.TrimSuffix(line, "\r")
		trimmed := strings.TrimRight(body, " \t")
		if len(trimmed) < len(body) {
			diags = append(diags, issue.RawDiagnostic{
				RuleID:   RuleTrailingWhitespace,
				Severity: "warning",
				Message:  "trailing whitespace",
				Location: &issue.RawLocation{Line: lineNo, Column: len(trimmed) + 1, EndLine: lineNo, EndColumn: len(body) + 1},
				Tags:     fixable,
				Edit:     &issue.TextEdit{Start: offset + len(trimmed), End: offset + len(body), Text: ""},
			})
		}
		if !tabbedLanguages[unit.Language] {
			indent := body[:len(body)-len(strings.TrimLeft(body, " \t"))]
			if strings.Contains(indent, "\t") {
				diags = append(diags, issue.RawDiagnostic{
					RuleID:   RuleTabIndentation,
					Severity: "warning",
					Message:  "indentation contains tabs",
					Location: &issue.RawLocation{Line: lineNo, Column: 1, EndLine: lineNo, EndColumn: len(indent) + 1},
					Tags:     fixable,
				})
			}
		}
		offset += len(line) + 1
	}
	if !strings.HasSuffix(unit.Source, "\n") {
		last := len(lines)
		diags = append(diags, issue.RawDiagnostic{
			RuleID:   RuleMissingFinalNewline,
			Severity: "warning",
			Message:  "no newline at end of file",
			Location: &issue.RawLocation{Line: last, Column: len(lines[last-1]) + 1},
			Tags:     fixable,
			Edit:     &issue.TextEdit{Start: len(unit.Source), End: len(unit.Source), Text: "\n"},
		})
	}
	return diags, nil
}

func whitespaceProfile() normalize.Profile {
	return normalize.Profile{
		Name:             "whitespace",
		LineBase:         1,
		ColumnBase:       1,
		DefaultSeverity:  issue.SeverityWarning,
		CategoryPrefixes: map[string]issue.Category{"": issue.CategoryStyle},
	}
}

func sortDiagnostics(diags []issue.RawDiagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		al, bl := locKey(a.Location), locKey(b.Location)
		if al.File != bl.File {
			return al.File < bl.File
		}
		if al.Line != bl.Line {
			return al.Line < bl.Line
		}
		if al.Column != bl.Column {
			return al.Column < bl.Column
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.Message < b.Message
	})
}

func locKey(l *issue.RawLocation) issue.RawLocation {
	if l == nil {
		return issue.RawLocation{}
	}
	return *l
}
