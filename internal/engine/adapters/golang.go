package adapters

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"

	"coderefactor/internal/core/issue"
	"coderefactor/internal/core/ports"
	"coderefactor/internal/engine/normalize"
)

// GoFamilies lists the Go analyzers.
func GoFamilies() []Family {
	return []Family{vetFamily(), staticcheckFamily(), gosecFamily()}
}

func vetFamily() Family {
	return Family{
		Name:        "govet",
		Tier:        ports.TierCompiler,
		Languages:   []string{"go"},
		Binary:      "go",
		Args:        []string{"vet", "-json", PlaceholderFile},
		ProjectArgs: []string{"vet", "-json", "./..."},
		Stderr:      true,
		Parse:       parseVet,
		Profile: normalize.Profile{
			Name:             "govet",
			LineBase:         1,
			ColumnBase:       1,
			DefaultSeverity:  issue.SeverityWarning,
			CategoryPrefixes: map[string]issue.Category{"": issue.CategoryReliability, "unusedresult": issue.CategoryUsage},
		},
	}
}

// posn is "file:line:col" or "file:line".
var posnPattern = regexp.MustCompile(`^(.*?):(\d+)(?::(\d+))?$`)

func parsePosn(posn string) (file string, line, col int, ok bool) {
	m := posnPattern.FindStringSubmatch(posn)
	if m == nil {
		return "", 0, 0, false
	}
	line, _ = strconv.Atoi(m[2])
	col = 1
	if m[3] != "" {
		col, _ = strconv.Atoi(m[3])
	}
	return m[1], line, col, true
}

// parseVet reads `go vet -json`: a stream of package objects mapping
// analyzer names to findings, interleaved with "# pkg" header lines.
func parseVet(out []byte, paths PathMapper) ([]issue.RawDiagnostic, error) {
	var filtered bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		filtered.WriteString(line)
		filtered.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	type finding struct {
		Posn    string `json:"posn"`
		End     string `json:"end"`
		Message string `json:"message"`
	}
	var diags []issue.RawDiagnostic
	dec := json.NewDecoder(&filtered)
	for {
		var pkgs map[string]map[string]json.RawMessage
		if err := dec.Decode(&pkgs); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		for _, analyzers := range pkgs {
			for analyzer, raw := range analyzers {
				var findings []finding
				if err := json.Unmarshal(raw, &findings); err != nil {
					// Analyzer errors are reported as {"error": "..."}.
					continue
				}
				for _, f := range findings {
					file, line, col, ok := parsePosn(f.Posn)
					var loc *issue.RawLocation
					if ok {
						path, keep := paths(file)
						if !keep {
							continue
						}
						loc = &issue.RawLocation{File: path, Line: line, Column: col}
						if _, endLine, endCol, endOK := parsePosn(f.End); endOK {
							loc.EndLine, loc.EndColumn = endLine, endCol
						}
					}
					diags = append(diags, issue.RawDiagnostic{
						RuleID:   analyzer,
						Severity: "warning",
						Message:  f.Message,
						Location: loc,
					})
				}
			}
		}
	}
	sortDiagnostics(diags)
	return diags, nil
}

func staticcheckFamily() Family {
	return Family{
		Name:        "staticcheck",
		Tier:        ports.TierGeneral,
		Languages:   []string{"go"},
		Binary:      "staticcheck",
		Args:        []string{"-f", "json", PlaceholderFile},
		ProjectArgs: []string{"-f", "json", "./..."},
		Parse:       parseStaticcheck,
		Profile: normalize.Profile{
			Name:       "staticcheck",
			LineBase:   1,
			ColumnBase: 1,
			Severities: map[string]issue.Severity{
				"error":   issue.SeverityError,
				"warning": issue.SeverityWarning,
				"ignored": issue.SeverityInfo,
			},
			DefaultSeverity: issue.SeverityWarning,
			CategoryPrefixes: map[string]issue.Category{
				"compile": issue.CategoryCompilerError,
				"SA":      issue.CategoryReliability,
				"SA6":     issue.CategoryPerformance,
				"S1":      issue.CategoryCodeSmell,
				"ST1":     issue.CategoryStyle,
				"ST1020":  issue.CategoryDocumentation,
				"ST1021":  issue.CategoryDocumentation,
				"ST1022":  issue.CategoryDocumentation,
				"QF":      issue.CategoryCodeSmell,
				"U1":      issue.CategoryUsage,
			},
		},
	}
}

type staticcheckPosition struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

type staticcheckFinding struct {
	Code     string              `json:"code"`
	Severity string              `json:"severity"`
	Location staticcheckPosition `json:"location"`
	End      staticcheckPosition `json:"end"`
	Message  string              `json:"message"`
}

func parseStaticcheck(out []byte, paths PathMapper) ([]issue.RawDiagnostic, error) {
	var diags []issue.RawDiagnostic
	dec := json.NewDecoder(bytes.NewReader(out))
	for {
		var f staticcheckFinding
		if err := dec.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		path, keep := paths(f.Location.File)
		if !keep {
			continue
		}
		d := issue.RawDiagnostic{RuleID: f.Code, Severity: f.Severity, Message: f.Message}
		if f.Location.Line > 0 {
			d.Location = &issue.RawLocation{File: path, Line: f.Location.Line, Column: f.Location.Column}
			if f.End.Line > 0 {
				d.Location.EndLine, d.Location.EndColumn = f.End.Line, f.End.Column
			}
		}
		if f.Code == "compile" {
			d.Category = "syntax"
		}
		diags = append(diags, d)
	}
	return diags, nil
}

func gosecFamily() Family {
	return Family{
		Name:        "gosec",
		Tier:        ports.TierSecurity,
		Languages:   []string{"go"},
		Binary:      "gosec",
		Args:        []string{"-fmt=json", "-quiet", "-no-fail", PlaceholderRoot},
		ProjectArgs: []string{"-fmt=json", "-quiet", "-no-fail", "./..."},
		Parse:       parseGosec,
		Profile: normalize.Profile{
			Name:       "gosec",
			LineBase:   1,
			ColumnBase: 1,
			Severities: map[string]issue.Severity{
				"low":    issue.SeverityInfo,
				"medium": issue.SeverityWarning,
				"high":   issue.SeverityCritical,
			},
			DefaultSeverity: issue.SeverityWarning,
			CategoryPrefixes: map[string]issue.Category{
				"":     issue.CategorySecurity,
				"G104": issue.CategoryReliability,
			},
			Fixability: func(issue.RawDiagnostic) issue.FixKind { return issue.FixManual },
		},
	}
}

type gosecReport struct {
	Issues []struct {
		Severity   string `json:"severity"`
		Confidence string `json:"confidence"`
		RuleID     string `json:"rule_id"`
		Details    string `json:"details"`
		File       string `json:"file"`
		Line       string `json:"line"`
		Column     string `json:"column"`
		CWE        *struct {
			ID string `json:"id"`
		} `json:"cwe"`
	} `json:"Issues"`
}

func parseGosec(out []byte, paths PathMapper) ([]issue.RawDiagnostic, error) {
	var report gosecReport
	if err := json.Unmarshal(out, &report); err != nil {
		return nil, err
	}
	diags := make([]issue.RawDiagnostic, 0, len(report.Issues))
	for _, is := range report.Issues {
		path, keep := paths(is.File)
		if !keep {
			continue
		}
		// line is "12" or a range "12-14".
		startRaw, endRaw, _ := strings.Cut(is.Line, "-")
		line, lineErr := strconv.Atoi(startRaw)
		col, _ := strconv.Atoi(is.Column)
		d := issue.RawDiagnostic{
			RuleID:   is.RuleID,
			Severity: is.Severity,
			Category: "security",
			Message:  is.Details,
		}
		if is.CWE != nil && is.CWE.ID != "" {
			d.Description = "CWE-" + is.CWE.ID + " (confidence " + strings.ToLower(is.Confidence) + ")"
		}
		if lineErr == nil && line > 0 {
			d.Location = &issue.RawLocation{File: path, Line: line, Column: col}
			if end, err := strconv.Atoi(endRaw); err == nil && end > line {
				d.Location.EndLine = end
			}
		}
		if is.RuleID == "G104" {
			d.Category = ""
		}
		diags = append(diags, d)
	}
	return diags, nil
}
