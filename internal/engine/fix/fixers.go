package fix

import (
	"fmt"
	"regexp"
	"strings"

	"coderefactor/internal/core/issue"
	"coderefactor/internal/core/ports"
)

// DefaultFixers returns the deterministic fixers in lookup order. The edit
// fixer goes last so rule-specific fixers win over adapter-supplied edits.
func DefaultFixers() []ports.Fixer {
	return []ports.Fixer{
		TrailingWhitespaceFixer(),
		FinalNewlineFixer(),
		TabIndentFixer(4),
		UnusedImportFixer(),
		SemicolonFixer(),
		EditFixer(),
	}
}

// FindFixer returns the first fixer that can handle is.
func FindFixer(fixers []ports.Fixer, is issue.Issue) (ports.Fixer, bool) {
	for _, f := range fixers {
		if f.CanFix(is) {
			return f, true
		}
	}
	return nil, false
}

// lineFixer rewrites each line covered by the issue location.
type lineFixer struct {
	name      string
	rules     map[string]bool
	rationale string
	rewrite   func(body string) string
}

func (f lineFixer) Name() string { return f.name }

func (f lineFixer) CanFix(is issue.Issue) bool {
	return f.rules[is.RuleID] && is.Location.Known()
}

func (f lineFixer) Fix(source string, is issue.Issue) (string, string, error) {
	lines := strings.Split(source, "\n")
	first, last := is.Location.StartLine, is.Location.LastLine()
	if first < 1 || first > len(lines) {
		return "", "", fmt.Errorf("line %d outside source of %d lines", first, len(lines))
	}
	if last > len(lines) {
		last = len(lines)
	}
	for i := first - 1; i < last; i++ {
		body, cr := splitCR(lines[i])
		lines[i] = f.rewrite(body) + cr
	}
	return strings.Join(lines, "\n"), f.rationale, nil
}

func splitCR(line string) (string, string) {
	if strings.HasSuffix(line, "\r") {
		return line[:len(line)-1], "\r"
	}
	return line, ""
}

func rules(ids ...string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func TrailingWhitespaceFixer() ports.Fixer {
	return lineFixer{
		name:      "trailing-whitespace",
		rules:     rules("trailing-whitespace", "C0303", "W291", "W293", "no-trailing-spaces"),
		rationale: "removed trailing whitespace",
		rewrite:   func(body string) string { return strings.TrimRight(body, " \t") },
	}
}

// TabIndentFixer replaces tabs in leading indentation with width spaces.
func TabIndentFixer(width int) ports.Fixer {
	spaces := strings.Repeat(" ", width)
	return lineFixer{
		name:      "tab-indentation",
		rules:     rules("tab-indentation", "W191", "E101"),
		rationale: fmt.Sprintf("replaced tab indentation with %d spaces", width),
		rewrite: func(body string) string {
			rest := strings.TrimLeft(body, " \t")
			indent := body[:len(body)-len(rest)]
			return strings.ReplaceAll(indent, "\t", spaces) + rest
		},
	}
}

// SemicolonFixer drops a statement-terminating semicolon.
func SemicolonFixer() ports.Fixer {
	return lineFixer{
		name:      "semicolon",
		rules:     rules("E703", "W0301"),
		rationale: "removed unnecessary semicolon",
		rewrite: func(body string) string {
			code, comment := splitComment(body)
			trimmed := strings.TrimRight(code, " \t")
			if !strings.HasSuffix(trimmed, ";") {
				return body
			}
			stripped := strings.TrimRight(strings.TrimSuffix(trimmed, ";"), " \t")
			if comment == "" {
				return stripped
			}
			return stripped + code[len(trimmed):] + comment
		},
	}
}

// splitComment cuts a line at the first # outside a string literal.
func splitComment(line string) (code, comment string) {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0 && c == '\\':
			i++
		case quote != 0 && c == quote:
			quote = 0
		case quote != 0:
		case c == '\'' || c == '"':
			quote = c
		case c == '#':
			return line[:i], line[i:]
		}
	}
	return line, ""
}

type finalNewlineFixer struct {
	rules map[string]bool
}

func FinalNewlineFixer() ports.Fixer {
	return finalNewlineFixer{rules: rules("missing-final-newline", "C0304", "W292", "eol-last")}
}

func (finalNewlineFixer) Name() string { return "final-newline" }

func (f finalNewlineFixer) CanFix(is issue.Issue) bool { return f.rules[is.RuleID] }

func (finalNewlineFixer) Fix(source string, _ issue.Issue) (string, string, error) {
	if source == "" || strings.HasSuffix(source, "\n") {
		return source, "", nil
	}
	eol := "\n"
	if strings.Contains(source, "\r\n") {
		eol = "\r\n"
	}
	return source + eol, "added final newline", nil
}

type editFixer struct{}

// EditFixer applies the replacement an adapter attached to the issue.
func EditFixer() ports.Fixer { return editFixer{} }

func (editFixer) Name() string { return "adapter-edit" }

func (editFixer) CanFix(is issue.Issue) bool { return is.Edit != nil }

func (editFixer) Fix(source string, is issue.Issue) (string, string, error) {
	e := is.Edit
	if e.Start < 0 || e.End < e.Start || e.End > len(source) {
		return "", "", fmt.Errorf("edit range [%d,%d) outside source of %d bytes", e.Start, e.End, len(source))
	}
	return source[:e.Start] + e.Text + source[e.End:], "applied " + is.Source + " suggested edit", nil
}

var (
	flake8UnusedRE = regexp.MustCompile(`^'([\w.]+)(?: as (\w+))?' imported but unused`)
	pylintUnusedRE = regexp.MustCompile(`^Unused (?:import )?([\w.]+)(?: imported from ([\w.]+))?(?: as (\w+))?`)
	importRE       = regexp.MustCompile(`^(\s*)import\s+(.+)$`)
	fromImportRE   = regexp.MustCompile(`^(\s*)from\s+(\S+)\s+import\s+(.+)$`)
)

type unusedImportFixer struct {
	rules map[string]bool
}

// UnusedImportFixer removes one unused name from a single-line python import,
// deleting the statement when nothing is left.
func UnusedImportFixer() ports.Fixer {
	return unusedImportFixer{rules: rules("F401", "W0611")}
}

func (unusedImportFixer) Name() string { return "unused-import" }

func (f unusedImportFixer) CanFix(is issue.Issue) bool {
	return f.rules[is.RuleID] && is.Location.Known()
}

// unusedTarget extracts the dotted name and optional alias from the message.
func unusedTarget(message string) (name, alias string, ok bool) {
	if m := flake8UnusedRE.FindStringSubmatch(message); m != nil {
		return m[1], m[2], true
	}
	if m := pylintUnusedRE.FindStringSubmatch(message); m != nil {
		name = m[1]
		if m[2] != "" {
			name = m[2] + "." + m[1]
		}
		return name, m[3], true
	}
	return "", "", false
}

func (f unusedImportFixer) Fix(source string, is issue.Issue) (string, string, error) {
	name, alias, ok := unusedTarget(is.Message)
	if !ok {
		return "", "", fmt.Errorf("cannot tell the unused name from %q", is.Message)
	}
	lines := strings.Split(source, "\n")
	idx := is.Location.StartLine - 1
	if idx < 0 || idx >= len(lines) {
		return "", "", fmt.Errorf("line %d outside source of %d lines", idx+1, len(lines))
	}
	body, cr := splitCR(lines[idx])
	code, comment := splitComment(body)
	code = strings.TrimRight(code, " \t")
	if strings.ContainsAny(code, "()\\;") {
		return "", "", fmt.Errorf("line %d is not a simple import statement", idx+1)
	}

	var indent, prefix string
	var items []string
	var match func(item string) bool
	if m := fromImportRE.FindStringSubmatch(code); m != nil {
		indent, prefix, items = m[1], "from "+m[2]+" import ", splitItems(m[3])
		short := name[strings.LastIndex(name, ".")+1:]
		match = func(item string) bool {
			orig, as := splitAlias(item)
			return (alias != "" && as == alias) || (alias == "" && (orig == short || as == short))
		}
	} else if m := importRE.FindStringSubmatch(code); m != nil {
		indent, prefix, items = m[1], "import ", splitItems(m[2])
		match = func(item string) bool {
			orig, as := splitAlias(item)
			return orig == name && (alias == "" || as == alias)
		}
	} else {
		return "", "", fmt.Errorf("line %d is not an import statement", idx+1)
	}

	kept := make([]string, 0, len(items))
	removed := false
	for _, item := range items {
		if !removed && match(item) {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	if !removed {
		return "", "", fmt.Errorf("%s not imported on line %d", name, idx+1)
	}

	if len(kept) == 0 {
		lines = append(lines[:idx], lines[idx+1:]...)
		return strings.Join(lines, "\n"), "removed unused import " + name, nil
	}
	rebuilt := indent + prefix + strings.Join(kept, ", ")
	if comment != "" {
		rebuilt += "  " + comment
	}
	lines[idx] = rebuilt + cr
	return strings.Join(lines, "\n"), "removed unused name " + name + " from import", nil
}

func splitItems(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitAlias(item string) (name, alias string) {
	fields := strings.Fields(item)
	if len(fields) == 3 && fields[1] == "as" {
		return fields[0], fields[2]
	}
	return item, ""
}
