package adapters

import (
	"bufio"
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"coderefactor/internal/core/issue"
	"coderefactor/internal/core/ports"
	"coderefactor/internal/engine/normalize"
)

var (
	// Rules backed by a deterministic fixer.
	pylintAutomated = set("C0303", "C0304", "W0611", "W0301")
	flake8Automated = set("W291", "W293", "W292", "W191", "E101", "F401", "E703")

	// Rules a suggestion can usually repair without design decisions.
	pylintAssisted = set("C0321", "C0410", "C0411", "W0404", "W0612", "W0104", "W0106", "W1401", "R0903")
	flake8Assisted = set(
		"E111", "E112", "E113", "E114", "E115", "E116", "E117",
		"E121", "E122", "E123", "E124", "E125", "E126", "E127", "E128", "E129", "E131", "E133",
		"E201", "E202", "E203", "E211", "E221", "E222", "E225", "E226", "E231", "E251", "E261", "E262", "E265",
		"E301", "E302", "E303", "E305", "E306", "E401", "E501", "E502", "E711", "E712", "E713", "E714",
		"W391", "W503", "W504", "W605", "F541", "F811", "F841",
	)
)

// PythonFamilies lists the python analyzers.
func PythonFamilies() []Family {
	return []Family{pylintFamily(), flake8Family(), mypyFamily(), banditFamily()}
}

func pylintFamily() Family {
	return Family{
		Name:        "pylint",
		Tier:        ports.TierGeneral,
		Languages:   []string{"python"},
		Binary:      "pylint",
		Args:        []string{"--output-format=json", "--score=n", "--persistent=n"},
		ProjectArgs: []string{"--output-format=json", "--score=n", "--persistent=n", "--recursive=y", PlaceholderRoot},
		Parse:       parsePylint,
		Profile: normalize.Profile{
			Name:       "pylint",
			LineBase:   1,
			ColumnBase: 0,
			Severities: map[string]issue.Severity{
				"convention": issue.SeverityInfo,
				"refactor":   issue.SeverityInfo,
				"info":       issue.SeverityInfo,
				"warning":    issue.SeverityWarning,
				"error":      issue.SeverityError,
				"fatal":      issue.SeverityCritical,
			},
			DefaultSeverity: issue.SeverityWarning,
			CategoryPrefixes: map[string]issue.Category{
				"C0114": issue.CategoryDocumentation,
				"C0115": issue.CategoryDocumentation,
				"C0116": issue.CategoryDocumentation,
				"C0103": issue.CategoryStyle,
				"C":     issue.CategoryStyle,
				"R09":   issue.CategoryComplexity,
				"R12":   issue.CategoryComplexity,
				"R":     issue.CategoryDesign,
				"W06":   issue.CategoryUsage,
				"W":     issue.CategoryReliability,
				"E":     issue.CategoryReliability,
				"F":     issue.CategoryCompilerError,
			},
		},
	}
}

type pylintMessage struct {
	Type      string `json:"type"`
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   *int   `json:"endLine"`
	EndColumn *int   `json:"endColumn"`
	Symbol    string `json:"symbol"`
	Message   string `json:"message"`
	MessageID string `json:"message-id"`
}

func parsePylint(out []byte, paths PathMapper) ([]issue.RawDiagnostic, error) {
	var messages []pylintMessage
	if err := json.Unmarshal(out, &messages); err != nil {
		return nil, err
	}
	diags := make([]issue.RawDiagnostic, 0, len(messages))
	for _, m := range messages {
		path, keep := paths(m.Path)
		if !keep {
			continue
		}
		loc := &issue.RawLocation{File: path, Line: m.Line, Column: m.Column}
		if m.EndLine != nil && m.EndColumn != nil {
			loc.EndLine, loc.EndColumn = *m.EndLine, *m.EndColumn
		}
		if m.Line <= 0 {
			loc = nil
		}
		diags = append(diags, issue.RawDiagnostic{
			RuleID:      m.MessageID,
			Severity:    m.Type,
			Message:     m.Message,
			Description: m.MessageID + " (" + m.Symbol + "): " + m.Message,
			Location:    loc,
			Tags:        tagsFor(m.MessageID, pylintAutomated, pylintAssisted),
		})
	}
	return diags, nil
}

func flake8Family() Family {
	format := "--format=%(path)s:%(row)d:%(col)d: %(code)s %(text)s"
	return Family{
		Name:        "flake8",
		Tier:        ports.TierStyle,
		Languages:   []string{"python"},
		Binary:      "flake8",
		Args:        []string{format},
		ProjectArgs: []string{format, PlaceholderRoot},
		Parse:       parseFlake8,
		Profile: normalize.Profile{
			Name:            "flake8",
			LineBase:        1,
			ColumnBase:      1,
			DefaultSeverity: issue.SeverityWarning,
			CategoryPrefixes: map[string]issue.Category{
				"E9": issue.CategoryCompilerError,
				"E":  issue.CategoryStyle,
				"W":  issue.CategoryStyle,
				"F4": issue.CategoryUsage,
				"F8": issue.CategoryUsage,
				"F":  issue.CategoryReliability,
				"C9": issue.CategoryComplexity,
				"N":  issue.CategoryStyle,
				"D":  issue.CategoryDocumentation,
				"B":  issue.CategoryReliability,
				"S":  issue.CategorySecurity,
			},
		},
	}
}

var flake8Line = regexp.MustCompile(`^(.*?):(\d+):(\d+): ([A-Z]+[0-9]+) (.*)$`)

// flake8Severity mirrors the selection flake8's own docs recommend for CI
// failures: syntax errors and undefined names.
func flake8Severity(code string) string {
	for _, prefix := range []string{"E9", "F63", "F7", "F82"} {
		if strings.HasPrefix(code, prefix) {
			return "error"
		}
	}
	return "warning"
}

func parseFlake8(out []byte, paths PathMapper) ([]issue.RawDiagnostic, error) {
	var diags []issue.RawDiagnostic
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		m := flake8Line.FindStringSubmatch(strings.TrimRight(scanner.Text(), "\r"))
		if m == nil {
			continue
		}
		path, keep := paths(m[1])
		if !keep {
			continue
		}
		line, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		diags = append(diags, issue.RawDiagnostic{
			RuleID:   m[4],
			Severity: flake8Severity(m[4]),
			Message:  m[5],
			Location: &issue.RawLocation{File: path, Line: line, Column: col},
			Tags:     tagsFor(m[4], flake8Automated, flake8Assisted),
		})
	}
	return diags, scanner.Err()
}

func mypyFamily() Family {
	args := []string{"--show-column-numbers", "--show-error-codes", "--no-error-summary", "--no-color-output", "--hide-error-context", "--ignore-missing-imports"}
	return Family{
		Name:        "mypy",
		Tier:        ports.TierCompiler,
		Languages:   []string{"python"},
		Binary:      "mypy",
		Args:        args,
		ProjectArgs: append(append([]string(nil), args...), PlaceholderRoot),
		Parse:       parseMypy,
		Profile: normalize.Profile{
			Name:       "mypy",
			LineBase:   1,
			ColumnBase: 1,
			Severities: map[string]issue.Severity{
				"error":   issue.SeverityError,
				"warning": issue.SeverityWarning,
				"note":    issue.SeverityInfo,
			},
			DefaultSeverity: issue.SeverityError,
			CategoryPrefixes: map[string]issue.Category{
				"import":  issue.CategoryUsage,
				"syntax":  issue.CategoryCompilerError,
				"unused-": issue.CategoryUsage,
				"":        issue.CategoryReliability,
			},
			// Type errors need judgement.
			Fixability: func(issue.RawDiagnostic) issue.FixKind { return issue.FixManual },
		},
	}
}

var mypyLine = regexp.MustCompile(`^(.*?):(\d+):(?:(\d+):)? (error|warning|note): (.*?)(?:\s+\[([a-z0-9-]+)\])?$`)

func parseMypy(out []byte, paths PathMapper) ([]issue.RawDiagnostic, error) {
	var diags []issue.RawDiagnostic
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		m := mypyLine.FindStringSubmatch(strings.TrimRight(scanner.Text(), "\r"))
		if m == nil {
			continue
		}
		path, keep := paths(m[1])
		if !keep {
			continue
		}
		line, _ := strconv.Atoi(m[2])
		col := 1
		if m[3] != "" {
			col, _ = strconv.Atoi(m[3])
		}
		rule := m[6]
		if rule == "" {
			rule = "mypy-" + m[4]
		}
		diags = append(diags, issue.RawDiagnostic{
			RuleID:   rule,
			Severity: m[4],
			Message:  m[5],
			Location: &issue.RawLocation{File: path, Line: line, Column: col},
		})
	}
	return diags, scanner.Err()
}

func banditFamily() Family {
	return Family{
		Name:        "bandit",
		Tier:        ports.TierSecurity,
		Languages:   []string{"python"},
		Binary:      "bandit",
		Args:        []string{"-f", "json", "-q"},
		ProjectArgs: []string{"-f", "json", "-q", "-r", PlaceholderRoot},
		Parse:       parseBandit,
		Profile: normalize.Profile{
			Name:       "bandit",
			LineBase:   1,
			ColumnBase: 0,
			Severities: map[string]issue.Severity{
				"low":    issue.SeverityInfo,
				"medium": issue.SeverityWarning,
				"high":   issue.SeverityCritical,
			},
			DefaultSeverity:  issue.SeverityWarning,
			CategoryPrefixes: map[string]issue.Category{"": issue.CategorySecurity},
			Fixability:       func(issue.RawDiagnostic) issue.FixKind { return issue.FixManual },
		},
	}
}

type banditReport struct {
	Results []struct {
		Filename     string `json:"filename"`
		TestID       string `json:"test_id"`
		TestName     string `json:"test_name"`
		Severity     string `json:"issue_severity"`
		Confidence   string `json:"issue_confidence"`
		Text         string `json:"issue_text"`
		LineNumber   int    `json:"line_number"`
		ColOffset    int    `json:"col_offset"`
		EndColOffset int    `json:"end_col_offset"`
		LineRange    []int  `json:"line_range"`
		MoreInfo     string `json:"more_info"`
	} `json:"results"`
}

func parseBandit(out []byte, paths PathMapper) ([]issue.RawDiagnostic, error) {
	var report banditReport
	if err := json.Unmarshal(out, &report); err != nil {
		return nil, err
	}
	diags := make([]issue.RawDiagnostic, 0, len(report.Results))
	for _, r := range report.Results {
		path, keep := paths(r.Filename)
		if !keep {
			continue
		}
		loc := &issue.RawLocation{File: path, Line: r.LineNumber, Column: r.ColOffset}
		if n := len(r.LineRange); n > 0 && r.LineRange[n-1] > r.LineNumber {
			loc.EndLine = r.LineRange[n-1]
			loc.EndColumn = r.EndColOffset
		}
		desc := r.TestName + " (confidence " + strings.ToLower(r.Confidence) + ")"
		if r.MoreInfo != "" {
			desc += ": " + r.MoreInfo
		}
		diags = append(diags, issue.RawDiagnostic{
			RuleID:      r.TestID,
			Severity:    r.Severity,
			Category:    "security",
			Message:     r.Text,
			Description: desc,
			Location:    loc,
		})
	}
	return diags, nil
}
