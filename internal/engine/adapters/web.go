package adapters

import (
	"encoding/json"
	"strconv"
	"strings"

	"coderefactor/internal/core/issue"
	"coderefactor/internal/core/ports"
	"coderefactor/internal/engine/normalize"
)

// WebFamilies lists the JavaScript, TypeScript, stylesheet and markup
// analyzers.
func WebFamilies() []Family {
	return []Family{eslintFamily(), stylelintFamily(), htmlhintFamily()}
}

func eslintFamily() Family {
	return Family{
		Name:        "eslint",
		Tier:        ports.TierGeneral,
		Languages:   []string{"javascript", "typescript", "tsx"},
		Binary:      "eslint",
		Args:        []string{"--format", "json", "--no-color", "--stdin", "--stdin-filename", PlaceholderStdin},
		ProjectArgs: []string{"--format", "json", "--no-color", PlaceholderRoot},
		Stdin:       true,
		Parse:       parseESLint,
		UTF16Edits:  true,
		Profile: normalize.Profile{
			Name:       "eslint",
			LineBase:   1,
			ColumnBase: 1,
			Severities: map[string]issue.Severity{
				"0": issue.SeverityInfo,
				"1": issue.SeverityWarning,
				"2": issue.SeverityError,
			},
			DefaultSeverity: issue.SeverityWarning,
			CategoryPrefixes: map[string]issue.Category{
				"eslint-parse":                       issue.CategoryCompilerError,
				"security/":                          issue.CategorySecurity,
				"no-eval":                            issue.CategorySecurity,
				"no-implied-eval":                    issue.CategorySecurity,
				"no-new-func":                        issue.CategorySecurity,
				"no-script-url":                      issue.CategorySecurity,
				"complexity":                         issue.CategoryComplexity,
				"max-depth":                          issue.CategoryComplexity,
				"max-nested-callbacks":               issue.CategoryComplexity,
				"max-params":                         issue.CategoryComplexity,
				"max-statements":                     issue.CategoryComplexity,
				"max-lines":                          issue.CategoryMaintainability,
				"no-unused":                          issue.CategoryUsage,
				"@typescript-eslint/no-unused":       issue.CategoryUsage,
				"no-undef":                           issue.CategoryReliability,
				"no-unreachable":                     issue.CategoryReliability,
				"no-dupe":                            issue.CategoryReliability,
				"no-redeclare":                       issue.CategoryReliability,
				"@typescript-eslint/no-explicit-any": issue.CategoryReliability,
				"no-await-in-loop":                   issue.CategoryPerformance,
				"prefer-":                            issue.CategoryStyle,
				"indent":                             issue.CategoryStyle,
				"quotes":                             issue.CategoryStyle,
				"semi":                               issue.CategoryStyle,
				"no-trailing-spaces":                 issue.CategoryStyle,
				"eol-last":                           issue.CategoryStyle,
				"jsdoc/":                             issue.CategoryDocumentation,
				"valid-jsdoc":                        issue.CategoryDocumentation,
				"require-jsdoc":                      issue.CategoryDocumentation,
			},
		},
	}
}

type eslintFile struct {
	FilePath string `json:"filePath"`
	Messages []struct {
		RuleID    *string `json:"ruleId"`
		Severity  int     `json:"severity"`
		Message   string  `json:"message"`
		Line      int     `json:"line"`
		Column    int     `json:"column"`
		EndLine   int     `json:"endLine"`
		EndColumn int     `json:"endColumn"`
		Fatal     bool    `json:"fatal"`
		Fix       *struct {
			Range [2]int `json:"range"`
			Text  string `json:"text"`
		} `json:"fix"`
	} `json:"messages"`
}

func parseESLint(out []byte, paths PathMapper) ([]issue.RawDiagnostic, error) {
	var files []eslintFile
	if err := json.Unmarshal(out, &files); err != nil {
		return nil, err
	}
	var diags []issue.RawDiagnostic
	for _, f := range files {
		path, keep := paths(f.FilePath)
		if !keep {
			continue
		}
		for _, m := range f.Messages {
			rule := "eslint"
			if m.RuleID != nil && *m.RuleID != "" {
				rule = *m.RuleID
			}
			d := issue.RawDiagnostic{
				RuleID:   rule,
				Severity: strconv.Itoa(m.Severity),
				Message:  m.Message,
			}
			if m.Fatal {
				d.RuleID = "eslint-parse"
				d.Category = "syntax"
				d.Tags = []string{issue.TagLLM}
			}
			if m.Line > 0 {
				d.Location = &issue.RawLocation{File: path, Line: m.Line, Column: m.Column, EndLine: m.EndLine, EndColumn: m.EndColumn}
			}
			if m.Fix != nil {
				d.Tags = []string{issue.TagCodeFix}
				d.Edit = &issue.TextEdit{Start: m.Fix.Range[0], End: m.Fix.Range[1], Text: m.Fix.Text}
			}
			diags = append(diags, d)
		}
	}
	return diags, nil
}

func stylelintFamily() Family {
	return Family{
		Name:        "stylelint",
		Tier:        ports.TierStyle,
		Languages:   []string{"css", "scss"},
		Binary:      "stylelint",
		Args:        []string{"--formatter", "json", "--stdin-filename", PlaceholderStdin},
		ProjectArgs: []string{"--formatter", "json", "--allow-empty-input", "**/*.{css,scss,sass,less}"},
		Stdin:       true,
		Parse:       parseStylelint,
		Profile: normalize.Profile{
			Name:            "stylelint",
			LineBase:        1,
			ColumnBase:      1,
			DefaultSeverity: issue.SeverityWarning,
			CategoryPrefixes: map[string]issue.Category{
				"CssSyntaxError":                     issue.CategoryCompilerError,
				"color-":                             issue.CategoryStyle,
				"font-":                              issue.CategoryStyle,
				"declaration-":                       issue.CategoryStyle,
				"selector-max":                       issue.CategoryComplexity,
				"max-nesting-depth":                  issue.CategoryComplexity,
				"no-duplicate":                       issue.CategoryMaintainability,
				"no-descending":                      issue.CategoryReliability,
				"no-invalid":                         issue.CategoryReliability,
				"block-no-empty":                     issue.CategoryCodeSmell,
				"property-no-unknown":                issue.CategoryReliability,
				"unit-no-unknown":                    issue.CategoryReliability,
				"function-calc-no-unspaced-operator": issue.CategoryReliability,
			},
		},
	}
}

type stylelintResult struct {
	Source   string `json:"source"`
	Warnings []struct {
		Line      int    `json:"line"`
		Column    int    `json:"column"`
		EndLine   int    `json:"endLine"`
		EndColumn int    `json:"endColumn"`
		Rule      string `json:"rule"`
		Severity  string `json:"severity"`
		Text      string `json:"text"`
	} `json:"warnings"`
}

func parseStylelint(out []byte, paths PathMapper) ([]issue.RawDiagnostic, error) {
	var results []stylelintResult
	if err := json.Unmarshal(out, &results); err != nil {
		return nil, err
	}
	var diags []issue.RawDiagnostic
	for _, r := range results {
		path, keep := paths(r.Source)
		if !keep {
			continue
		}
		for _, w := range r.Warnings {
			d := issue.RawDiagnostic{
				RuleID:   w.Rule,
				Severity: w.Severity,
				Message:  strings.TrimSpace(strings.TrimSuffix(w.Text, "("+w.Rule+")")),
			}
			if w.Line > 0 {
				d.Location = &issue.RawLocation{File: path, Line: w.Line, Column: w.Column, EndLine: w.EndLine, EndColumn: w.EndColumn}
			}
			diags = append(diags, d)
		}
	}
	return diags, nil
}

func htmlhintFamily() Family {
	return Family{
		Name:        "htmlhint",
		Tier:        ports.TierStyle,
		Languages:   []string{"html"},
		Binary:      "htmlhint",
		Args:        []string{"--format", "json"},
		ProjectArgs: []string{"--format", "json", PlaceholderRoot},
		Parse:       parseHTMLHint,
		Profile: normalize.Profile{
			Name:            "htmlhint",
			LineBase:        1,
			ColumnBase:      1,
			DefaultSeverity: issue.SeverityWarning,
			Severities: map[string]issue.Severity{
				"error":   issue.SeverityError,
				"warning": issue.SeverityWarning,
				"info":    issue.SeverityInfo,
			},
			CategoryPrefixes: map[string]issue.Category{
				"tag-pair":               issue.CategoryCompilerError,
				"tag-self-close":         issue.CategoryStyle,
				"attr-":                  issue.CategoryStyle,
				"tagname-lowercase":      issue.CategoryStyle,
				"doctype-":               issue.CategoryStyle,
				"id-unique":              issue.CategoryReliability,
				"src-not-empty":          issue.CategoryReliability,
				"spec-char-escape":       issue.CategoryReliability,
				"alt-require":            issue.CategoryUsage,
				"title-require":          issue.CategoryUsage,
				"inline-style-disabled":  issue.CategoryMaintainability,
				"inline-script-disabled": issue.CategorySecurity,
				"head-script-disabled":   issue.CategoryPerformance,
			},
		},
	}
}

type htmlhintFile struct {
	File     string `json:"file"`
	Messages []struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Line    int    `json:"line"`
		Col     int    `json:"col"`
		Rule    struct {
			ID          string `json:"id"`
			Description string `json:"description"`
		} `json:"rule"`
	} `json:"messages"`
}

func parseHTMLHint(out []byte, paths PathMapper) ([]issue.RawDiagnostic, error) {
	var files []htmlhintFile
	if err := json.Unmarshal(out, &files); err != nil {
		return nil, err
	}
	var diags []issue.RawDiagnostic
	for _, f := range files {
		path, keep := paths(f.File)
		if !keep {
			continue
		}
		for _, m := range f.Messages {
			d := issue.RawDiagnostic{
				RuleID:      m.Rule.ID,
				Severity:    m.Type,
				Message:     m.Message,
				Description: m.Rule.Description,
			}
			if m.Line > 0 {
				d.Location = &issue.RawLocation{File: path, Line: m.Line, Column: m.Col}
			}
			diags = append(diags, d)
		}
	}
	return diags, nil
}
