package secrets

import (
	"context"
	"fmt"

	"coderefactor/internal/core/issue"
	"coderefactor/internal/core/ports"
	"coderefactor/internal/engine/normalize"
)

// AdapterName is the source name secrets findings are reported under.
const AdapterName = "secrets"

// Adapter bridges Detector to the analysis adapter port. It runs for every
// language; unknown files are still text.
type Adapter struct {
	detector *Detector
}

func NewAdapter(cfg Config) (*Adapter, error) {
	detector, err := NewDetector(cfg)
	if err != nil {
		return nil, err
	}
	return &Adapter{detector: detector}, nil
}

func NewAdapterFromDetector(detector *Detector) *Adapter {
	return &Adapter{detector: detector}
}

func (a *Adapter) Name() string                  { return AdapterName }
func (a *Adapter) Tier() ports.AdapterTier       { return ports.TierSecurity }
func (a *Adapter) Supports(language string) bool { return true }

// Detect returns the raw findings, for callers that need the values.
func (a *Adapter) Detect(path, source string) []Finding {
	return a.detector.Detect(path, source)
}

func (a *Adapter) AnalyzeUnit(ctx context.Context, unit issue.Unit) ([]issue.RawDiagnostic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	findings := a.detector.Detect(unit.Path, unit.Source)
	diags := make([]issue.RawDiagnostic, 0, len(findings))
	for _, f := range findings {
		diags = append(diags, issue.RawDiagnostic{
			RuleID:      "secret/" + f.Kind,
			Severity:    f.Severity,
			Category:    string(issue.CategorySecurity),
			Message:     fmt.Sprintf("possible %s %s", f.Kind, MaskValue(f.Value)),
			Description: fmt.Sprintf("confidence %.2f, entropy %.2f; rotate the credential and load it from the environment", f.Confidence, f.Entropy),
			Location:    &issue.RawLocation{Line: f.Line, Column: f.Column, EndLine: f.Line, EndColumn: f.EndColumn},
		})
	}
	return diags, nil
}

// Profile maps the detector's low..critical scale onto canonical severities.
func Profile() normalize.Profile {
	return normalize.Profile{
		Name:       AdapterName,
		LineBase:   1,
		ColumnBase: 1,
		Severities: map[string]issue.Severity{
			"low":      issue.SeverityInfo,
			"medium":   issue.SeverityWarning,
			"high":     issue.SeverityError,
			"critical": issue.SeverityCritical,
		},
		DefaultSeverity:  issue.SeverityWarning,
		CategoryPrefixes: map[string]issue.Category{"": issue.CategorySecurity},
		Fixability:       func(issue.RawDiagnostic) issue.FixKind { return issue.FixManual },
	}
}

var _ ports.Adapter = (*Adapter)(nil)
