package normalize

import (
	"fmt"
	"testing"

	"coderefactor/internal/core/config"
	"coderefactor/internal/core/issue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() Option {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	})
}

func testProfiles() Profiles {
	return Profiles{
		"pylint": {
			Name:       "pylint",
			LineBase:   1,
			ColumnBase: 0,
			Severities: map[string]issue.Severity{
				"convention": issue.SeverityInfo,
				"warning":    issue.SeverityWarning,
				"fatal":      issue.SeverityCritical,
			},
			DefaultSeverity: issue.SeverityWarning,
			CategoryPrefixes: map[string]issue.Category{
				"C":     issue.CategoryStyle,
				"C0114": issue.CategoryDocumentation,
				"W":     issue.CategoryReliability,
			},
		},
	}
}

func TestNormalizeScenarioSnippet(t *testing.T) {
	n := New(config.NewAnalyzerConfig(config.AnalyzerOptions{SnippetContext: 1}), nil, sequentialIDs())

	raw := issue.RawDiagnostic{
		RuleID:   "unused-var",
		Severity: "warning",
		Message:  "x is never used",
		Location: &issue.RawLocation{Line: 1, Column: 1},
	}
	is, malformed := n.Normalize(raw, "x=1\ny=2\n", "", "generic")

	require.False(t, malformed)
	assert.Equal(t, issue.SeverityWarning, is.Severity)
	assert.Equal(t, issue.CategoryCodeSmell, is.Category)
	assert.Equal(t, "x=1\ny=2", is.CodeSnippet)
	assert.Equal(t, issue.BufferPath, is.Location.File)
	assert.Equal(t, "id-1", is.ID)
	assert.Equal(t, issue.FixManual, is.FixKind)
	assert.False(t, is.Fixable)
}

func TestNormalizeSeverityAndOverride(t *testing.T) {
	cfg := config.NewAnalyzerConfig(config.AnalyzerOptions{
		SeverityOverrides: map[string]issue.Severity{"W0611": issue.SeverityError},
	})
	n := New(cfg, testProfiles(), sequentialIDs())
	loc := &issue.RawLocation{Line: 3, Column: 0}

	cases := []struct {
		rule, severity string
		want           issue.Severity
	}{
		{"C0301", "convention", issue.SeverityInfo},
		{"F0001", "FATAL", issue.SeverityCritical},
		{"W0611", "warning", issue.SeverityError},
		{"X1", "mystery", issue.SeverityWarning},
		{"X2", "Critical", issue.SeverityCritical},
	}
	for _, tc := range cases {
		is, _ := n.Normalize(issue.RawDiagnostic{RuleID: tc.rule, Severity: tc.severity, Location: loc}, "", "a.py", "pylint")
		assert.Equal(t, tc.want, is.Severity, tc.rule)
	}
}

func TestCategorize(t *testing.T) {
	p := testProfiles()["pylint"]

	cases := []struct {
		name string
		raw  issue.RawDiagnostic
		want issue.Category
	}{
		{"OwnCategoryWins", issue.RawDiagnostic{RuleID: "C0301", Category: "Security"}, issue.CategorySecurity},
		{"Synonym", issue.RawDiagnostic{RuleID: "C0301", Category: "syntax"}, issue.CategoryCompilerError},
		{"LongestPrefix", issue.RawDiagnostic{RuleID: "C0114"}, issue.CategoryDocumentation},
		{"ShortPrefix", issue.RawDiagnostic{RuleID: "C0303"}, issue.CategoryStyle},
		{"CaseInsensitivePrefix", issue.RawDiagnostic{RuleID: "w0611"}, issue.CategoryReliability},
		{"Fallback", issue.RawDiagnostic{RuleID: "R0913"}, issue.CategoryCodeSmell},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Categorize(p, tc.raw))
		})
	}
}

func TestNormalizePositionBases(t *testing.T) {
	n := New(config.NewAnalyzerConfig(config.AnalyzerOptions{}), Profiles{
		"zero": {Name: "zero", LineBase: 0, ColumnBase: 0},
	}, sequentialIDs())

	is, malformed := n.Normalize(issue.RawDiagnostic{
		RuleID:   "Z",
		Location: &issue.RawLocation{Line: 0, Column: 4, EndLine: 1, EndColumn: 2},
	}, "a\nb\n", "f.txt", "zero")

	require.False(t, malformed)
	assert.Equal(t, issue.Location{File: "f.txt", StartLine: 1, StartColumn: 5, EndLine: 2, EndColumn: 3}, is.Location)

	is, _ = n.Normalize(issue.RawDiagnostic{
		RuleID:   "Z",
		Location: &issue.RawLocation{Line: 4, Column: 9, EndLine: 2, EndColumn: 1},
	}, "", "f.txt", "zero")
	assert.Equal(t, 0, is.Location.EndLine, "end before start must be dropped")
}

func TestNormalizeMalformed(t *testing.T) {
	n := New(config.NewAnalyzerConfig(config.AnalyzerOptions{}), nil, sequentialIDs())

	issues, malformed := n.NormalizeAll([]issue.RawDiagnostic{
		{RuleID: "A", Message: "no location"},
		{RuleID: "B", Location: &issue.RawLocation{File: "other.py", Line: 2, Column: 1}},
	}, "l1\nl2\n", "main.py", "broken")

	require.Len(t, issues, 2)
	assert.Equal(t, 1, malformed)
	assert.False(t, issues[0].Location.Known())
	assert.Equal(t, "main.py", issues[0].Location.File)
	assert.Empty(t, issues[0].CodeSnippet)
	assert.Equal(t, "other.py", issues[1].Location.File)
}

func TestTagFixability(t *testing.T) {
	cases := []struct {
		tags []string
		want issue.FixKind
	}{
		{nil, issue.FixManual},
		{[]string{issue.TagCodeFix}, issue.FixAutomated},
		{[]string{issue.TagFix}, issue.FixAutomated},
		{[]string{issue.TagLLM}, issue.FixLLMAssisted},
		{[]string{issue.TagUnnecessary}, issue.FixLLMAssisted},
		{[]string{issue.TagCodeFix, issue.TagNoFix}, issue.FixNone},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TagFixability(issue.RawDiagnostic{Tags: tc.tags}), "%v", tc.tags)
	}

	custom := Profiles{"custom": {Name: "custom", Fixability: func(issue.RawDiagnostic) issue.FixKind { return issue.FixAutomated }}}
	n := New(config.NewAnalyzerConfig(config.AnalyzerOptions{}), custom)
	is, _ := n.Normalize(issue.RawDiagnostic{RuleID: "x", Location: &issue.RawLocation{Line: 1}}, "", "", "custom")
	assert.Equal(t, issue.FixAutomated, is.FixKind)
	assert.True(t, is.Fixable)
}
