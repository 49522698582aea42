// Package report renders analysis results in interchange formats.
package report

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"coderefactor/internal/core/issue"
)

// SARIF v2.1.0 schema – see https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json

const (
	sarifSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
	sarifVersion = "2.1.0"
	toolName     = "coderefactor"
)

type sarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool        sarifTool         `json:"tool"`
	Invocations []sarifInvocation `json:"invocations,omitempty"`
	Results     []sarifResult     `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	ShortDescription sarifMessage           `json:"shortDescription"`
	DefaultConfig    sarifRuleDefaultConfig `json:"defaultConfiguration"`
}

type sarifRuleDefaultConfig struct {
	Level string `json:"level"`
}

type sarifInvocation struct {
	ExecutionSuccessful bool                `json:"executionSuccessful"`
	Notifications       []sarifNotification `json:"toolExecutionNotifications,omitempty"`
}

type sarifNotification struct {
	Level   string       `json:"level"`
	Message sarifMessage `json:"message"`
}

type sarifResult struct {
	RuleID     string          `json:"ruleId"`
	Level      string          `json:"level"`
	Message    sarifMessage    `json:"message"`
	Locations  []sarifLocation `json:"locations,omitempty"`
	Properties sarifProperties `json:"properties"`
}

type sarifProperties struct {
	IssueID  string `json:"issueId"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	FixKind  string `json:"fixKind"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI       string `json:"uri"`
	URIBaseID string `json:"uriBaseId"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine,omitempty"`
	StartColumn int `json:"startColumn,omitempty"`
	EndLine     int `json:"endLine,omitempty"`
	EndColumn   int `json:"endColumn,omitempty"`
}

// GenerateSARIF builds a SARIF v2.1.0 document with one run covering every
// result. File URIs are made relative to projectRoot when possible. Adapter
// failures and failed units become tool execution notifications.
func GenerateSARIF(projectRoot, version string, results []issue.AnalysisResult) ([]byte, error) {
	out := make([]sarifResult, 0)
	rules := make(map[string]sarifRule)
	notes := make([]sarifNotification, 0)
	successful := true

	for _, res := range results {
		if res.Err != nil {
			successful = false
			notes = append(notes, sarifNotification{
				Level:   "error",
				Message: sarifMessage{Text: fmt.Sprintf("%s: %v", res.FilePath, res.Err)},
			})
		}
		for _, f := range res.Failures {
			notes = append(notes, sarifNotification{
				Level:   "warning",
				Message: sarifMessage{Text: fmt.Sprintf("%s: adapter %s failed: %s", res.FilePath, f.Adapter, f.Reason)},
			})
		}
		for _, is := range res.Issues {
			id := ruleID(is)
			level := severityToLevel(is.Severity)
			if _, ok := rules[id]; !ok {
				rules[id] = sarifRule{
					ID:               id,
					Name:             is.RuleID,
					ShortDescription: sarifMessage{Text: is.Message},
					DefaultConfig:    sarifRuleDefaultConfig{Level: level},
				}
			}
			out = append(out, sarifResult{
				RuleID:    id,
				Level:     level,
				Message:   sarifMessage{Text: is.Message},
				Locations: []sarifLocation{issueLocation(projectRoot, res.FilePath, is.Location)},
				Properties: sarifProperties{
					IssueID:  is.ID,
					Category: string(is.Category),
					Severity: is.Severity.String(),
					FixKind:  string(is.FixKind),
				},
			})
		}
	}

	ruleList := make([]sarifRule, 0, len(rules))
	for _, r := range rules {
		ruleList = append(ruleList, r)
	}
	sort.Slice(ruleList, func(i, j int) bool { return ruleList[i].ID < ruleList[j].ID })

	report := sarifReport{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{
			{
				Tool: sarifTool{
					Driver: sarifDriver{
						Name:    toolName,
						Version: version,
						Rules:   ruleList,
					},
				},
				Invocations: []sarifInvocation{{ExecutionSuccessful: successful, Notifications: notes}},
				Results:     out,
			},
		},
	}
	return json.MarshalIndent(report, "", "  ")
}

// ruleID namespaces the adapter's rule so identical ids from different
// analyzers stay distinct.
func ruleID(is issue.Issue) string {
	if is.Source == "" {
		return is.RuleID
	}
	return is.Source + "/" + is.RuleID
}

func issueLocation(projectRoot, unitPath string, loc issue.Location) sarifLocation {
	file := loc.File
	if file == "" {
		file = unitPath
	}
	out := sarifLocation{
		PhysicalLocation: sarifPhysicalLocation{
			ArtifactLocation: sarifArtifactLocation{
				URI:       relativeURI(projectRoot, file),
				URIBaseID: "%SRCROOT%",
			},
		},
	}
	if loc.Known() {
		out.PhysicalLocation.Region = &sarifRegion{
			StartLine:   loc.StartLine,
			StartColumn: loc.StartColumn,
			EndLine:     loc.EndLine,
			EndColumn:   loc.EndColumn,
		}
	}
	return out
}

// relativeURI converts an absolute file path to a forward-slash relative URI
// anchored at projectRoot. If the path is already relative or projectRoot is
// empty, the original path (with forward slashes) is returned.
func relativeURI(projectRoot, filePath string) string {
	if projectRoot != "" && filepath.IsAbs(filePath) {
		rel, err := filepath.Rel(projectRoot, filePath)
		if err == nil {
			filePath = rel
		}
	}
	return filepath.ToSlash(filePath)
}

func severityToLevel(sev issue.Severity) string {
	switch sev {
	case issue.SeverityCritical, issue.SeverityError:
		return "error"
	case issue.SeverityWarning:
		return "warning"
	}
	return "note"
}
