// Package adapters wraps external analyzers behind ports.Adapter. Every
// external tool is described by a Family and run by one generic ExecAdapter.
package adapters

import (
	"strings"

	"coderefactor/internal/core/issue"
	"coderefactor/internal/core/ports"
	"coderefactor/internal/engine/normalize"
)

// Argument placeholders expanded by ExecAdapter.
const (
	PlaceholderFile  = "{file}"
	PlaceholderRoot  = "{root}"
	PlaceholderStdin = "{stdin_name}"
)

// PathMapper translates a path printed by a tool into the path recorded on
// the diagnostic. keep is false for diagnostics about files outside the
// analysis target.
type PathMapper func(toolPath string) (path string, keep bool)

// OutputParser turns raw tool output into diagnostics.
type OutputParser func(out []byte, paths PathMapper) ([]issue.RawDiagnostic, error)

// Family is the table entry describing one external analyzer.
type Family struct {
	Name      string
	Tier      ports.AdapterTier
	Languages []string
	Binary    string
	// Args is the per-unit argument template. Without a {file} or
	// {stdin_name} placeholder the target file is appended.
	Args []string
	// ProjectArgs enables project mode; run with the project root as cwd.
	ProjectArgs []string
	// Stdin feeds the source on standard input instead of a temp file.
	Stdin bool
	// Stderr parses standard error instead of standard output.
	Stderr bool
	Parse  OutputParser
	// UTF16Edits marks fix ranges counted in UTF-16 code units, as
	// JavaScript tools report them. They are rebased onto byte offsets.
	UTF16Edits bool
	// Profile carries the severity table, category prefixes, position base
	// and fixability predicate used by the normalizer.
	Profile normalize.Profile
}

func (f Family) supports(language string) bool {
	for _, lang := range f.Languages {
		if lang == language {
			return true
		}
	}
	return false
}

// expandArgs substitutes placeholders. extra is inserted before the
// appended target.
func expandArgs(template, extra []string, vars map[string]string, appendTarget string) []string {
	out := make([]string, 0, len(template)+len(extra)+1)
	substituted := false
	for _, arg := range template {
		expanded := arg
		for key, val := range vars {
			if strings.Contains(expanded, key) {
				expanded = strings.ReplaceAll(expanded, key, val)
				substituted = true
			}
		}
		out = append(out, expanded)
	}
	out = append(out, extra...)
	if !substituted && appendTarget != "" {
		out = append(out, appendTarget)
	}
	return out
}

// tagsFor returns the tags a family parser attaches to a rule: CodeFix for
// rules with a deterministic fixer, LLM for rules the oracle may repair.
func tagsFor(rule string, automated, assisted map[string]bool) []string {
	switch {
	case automated[rule]:
		return []string{issue.TagCodeFix}
	case assisted[rule]:
		return []string{issue.TagLLM}
	}
	return nil
}

func set(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}
