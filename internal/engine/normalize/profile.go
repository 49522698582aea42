package normalize

import (
	"sort"
	"strings"

	"coderefactor/internal/core/issue"
)

// Profile is the per-analyzer normalization descriptor.
type Profile struct {
	Name string
	// LineBase and ColumnBase are the adapter's native position bases (0 or 1).
	LineBase   int
	ColumnBase int
	// Severities maps the adapter's lower-cased severity strings.
	Severities      map[string]issue.Severity
	DefaultSeverity issue.Severity
	// CategoryPrefixes maps rule-id prefixes to categories. The longest
	// matching prefix wins; the empty prefix is the family default.
	CategoryPrefixes map[string]issue.Category
	// Fixability decides how a diagnostic can be fixed. Nil selects
	// TagFixability.
	Fixability func(issue.RawDiagnostic) issue.FixKind
}

// DefaultProfile is used for adapters that registered no profile.
func DefaultProfile(name string) Profile {
	return Profile{
		Name:            name,
		LineBase:        1,
		ColumnBase:      1,
		DefaultSeverity: issue.SeverityWarning,
	}
}

func (p Profile) severity(raw string) issue.Severity {
	key := strings.ToLower(strings.TrimSpace(raw))
	if sev, ok := p.Severities[key]; ok {
		return sev
	}
	if sev, err := issue.ParseSeverity(key); err == nil {
		return sev
	}
	return p.DefaultSeverity
}

func (p Profile) prefixCategory(ruleID string) (issue.Category, bool) {
	rule := strings.ToLower(ruleID)
	best := -1
	var found issue.Category
	for prefix, cat := range p.CategoryPrefixes {
		if len(prefix) > best && strings.HasPrefix(rule, strings.ToLower(prefix)) {
			best = len(prefix)
			found = cat
		}
	}
	return found, best >= 0
}

func (p Profile) fixKind(raw issue.RawDiagnostic) issue.FixKind {
	if p.Fixability != nil {
		return p.Fixability(raw)
	}
	return TagFixability(raw)
}

// TagFixability reads adapter-declared tags. Only an explicit CodeFix or Fix
// tag makes a diagnostic automated.
func TagFixability(raw issue.RawDiagnostic) issue.FixKind {
	switch {
	case raw.HasTag(issue.TagNoFix):
		return issue.FixNone
	case raw.HasTag(issue.TagCodeFix), raw.HasTag(issue.TagFix):
		return issue.FixAutomated
	case raw.HasTag(issue.TagLLM), raw.HasTag(issue.TagUnnecessary):
		return issue.FixLLMAssisted
	}
	return issue.FixManual
}

// categoryNames is the case-insensitive table applied to a diagnostic's own
// category string before any rule-id prefix lookup.
var categoryNames = func() map[string]issue.Category {
	m := map[string]issue.Category{
		"perf":            issue.CategoryPerformance,
		"vulnerability":   issue.CategorySecurity,
		"doc":             issue.CategoryDocumentation,
		"docs":            issue.CategoryDocumentation,
		"docstring":       issue.CategoryDocumentation,
		"syntax":          issue.CategoryCompilerError,
		"compile":         issue.CategoryCompilerError,
		"compiler":        issue.CategoryCompilerError,
		"type":            issue.CategoryReliability,
		"typing":          issue.CategoryReliability,
		"bug":             issue.CategoryReliability,
		"possible-errors": issue.CategoryReliability,
		"smell":           issue.CategoryCodeSmell,
		"format":          issue.CategoryStyle,
		"formatting":      issue.CategoryStyle,
		"convention":      issue.CategoryStyle,
		"best-practice":   issue.CategoryMaintainability,
		"best-practices":  issue.CategoryMaintainability,
		"refactor":        issue.CategoryDesign,
		"unused":          issue.CategoryUsage,
		"imports":         issue.CategoryUsage,
	}
	for _, cat := range issue.Categories() {
		m[string(cat)] = cat
	}
	return m
}()

// Categorize resolves the category of a diagnostic: its own category string
// first, then the profile's rule-id prefixes, then code-smell.
func Categorize(p Profile, raw issue.RawDiagnostic) issue.Category {
	if cat, ok := categoryNames[strings.ToLower(strings.TrimSpace(raw.Category))]; ok {
		return cat
	}
	if cat, ok := p.prefixCategory(raw.RuleID); ok {
		return cat
	}
	return issue.CategoryCodeSmell
}

// Profiles is a static name → profile table.
type Profiles map[string]Profile

// Names lists the registered profile names in sorted order.
func (ps Profiles) Names() []string {
	names := make([]string, 0, len(ps))
	for name := range ps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (ps Profiles) lookup(name string) Profile {
	if p, ok := ps[name]; ok {
		return p
	}
	return DefaultProfile(name)
}
