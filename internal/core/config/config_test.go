// # internal/core/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"coderefactor/internal/core/issue"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "coderefactor.toml", `
[analysis]
enabled_adapters = ["pylint", " flake8 "]
max_issues_per_unit = 50
include_hidden = true
snippet_context = 2
adapter_timeout = "5s"
unit_timeout = "20s"
priority = ["mypy", "pylint"]

[rules]
suppressed = ["C0114"]
severity_overrides = { E501 = "Info", W0611 = "error" }

[adapters.pylint]
binary = "/usr/local/bin/pylint"
args = ["--disable=all"]

[project]
include = ["**/*.py"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := cfg.Analysis.EnabledAdapters; len(got) != 2 || got[1] != "flake8" {
		t.Fatalf("unexpected enabled adapters: %v", got)
	}
	if cfg.Analysis.AdapterTimeout != 5*time.Second || cfg.Analysis.UnitTimeout != 20*time.Second {
		t.Fatalf("unexpected timeouts: %v / %v", cfg.Analysis.AdapterTimeout, cfg.Analysis.UnitTimeout)
	}
	if cfg.Rules.SeverityOverrides["E501"] != "info" {
		t.Fatalf("expected normalized override, got %q", cfg.Rules.SeverityOverrides["E501"])
	}
	if cfg.Adapters["pylint"].Binary != "/usr/local/bin/pylint" {
		t.Fatalf("unexpected pylint binary %q", cfg.Adapters["pylint"].Binary)
	}

	ac := cfg.Analyzer()
	if ac.MaxIssuesPerUnit() != 50 || !ac.IncludeHidden() || ac.SnippetContext() != 2 {
		t.Fatalf("unexpected analyzer snapshot: %+v", ac)
	}
	if !ac.Suppressed("C0114") || ac.Suppressed("C0115") {
		t.Fatal("suppression mismatch")
	}
	if sev, ok := ac.SeverityOverride("W0611"); !ok || sev != issue.SeverityError {
		t.Fatalf("expected W0611 override to error, got %v %v", sev, ok)
	}
	if !ac.Enabled("pylint") || ac.Enabled("eslint") {
		t.Fatal("enabled adapter mismatch")
	}
	if rank, ok := ac.PriorityRank("pylint"); !ok || rank != 1 {
		t.Fatalf("expected pylint rank 1, got %d %v", rank, ok)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "coderefactor.yaml", `
analysis:
  max_issues_per_unit: 10
  adapter_timeout: 3s
rules:
  suppressed: [E501]
adapters:
  eslint:
    enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Analysis.MaxIssuesPerUnit != 10 || cfg.Analysis.AdapterTimeout != 3*time.Second {
		t.Fatalf("unexpected analysis section: %+v", cfg.Analysis)
	}
	ac := cfg.Analyzer()
	if ac.Enabled("eslint") {
		t.Fatal("expected eslint to be disabled")
	}
	if !ac.Enabled("pylint") {
		t.Fatal("expected adapters to be enabled by default")
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "empty.toml", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Version != 1 {
		t.Fatalf("expected version 1, got %d", cfg.Version)
	}
	ac := cfg.Analyzer()
	if ac.SnippetContext() != 1 {
		t.Fatalf("expected default snippet context 1, got %d", ac.SnippetContext())
	}
	if ac.MaxIssuesPerUnit() != defaultMaxIssuesPerUnit {
		t.Fatalf("expected default cap, got %d", ac.MaxIssuesPerUnit())
	}
	if ac.IncludeHidden() {
		t.Fatal("include_hidden must default to false")
	}
	if ac.AdapterTimeout() != defaultAdapterTimeout || ac.MaxParallel() != defaultMaxParallel {
		t.Fatalf("unexpected defaults: %s %d", ac.AdapterTimeout(), ac.MaxParallel())
	}
	if cfg.Fix.RetryBackoff != defaultRetryBackoff {
		t.Fatalf("unexpected retry backoff %s", cfg.Fix.RetryBackoff)
	}
	if len(cfg.Project.Exclude) == 0 {
		t.Fatal("expected default project excludes")
	}
}

func TestLoadSnippetContextZeroIsKept(t *testing.T) {
	path := writeConfig(t, "zero.toml", "[analysis]\nsnippet_context = 0\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Analyzer().SnippetContext() != 0 {
		t.Fatalf("expected explicit zero snippet context, got %d", cfg.Analyzer().SnippetContext())
	}
}

func TestLoadError(t *testing.T) {
	if _, err := Load("nonexistent.toml"); err == nil {
		t.Error("Expected error for nonexistent file")
	}

	path := writeConfig(t, "bad.toml", "bad = toml = format")
	if _, err := Load(path); err == nil {
		t.Error("Expected error for malformed TOML")
	}

	path = writeConfig(t, "bad.yaml", "analysis:\n  unknown_key: 1\n")
	if _, err := Load(path); err == nil {
		t.Error("Expected error for unknown YAML field")
	}
}

func TestLoadRejectsBadOverride(t *testing.T) {
	path := writeConfig(t, "override.toml", `
[rules]
severity_overrides = { E501 = "fatal" }
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "E501") {
		t.Fatalf("expected override validation error, got %v", err)
	}
}

func TestAnalyzerSnapshotIsIsolated(t *testing.T) {
	cfg := Default()
	cfg.Rules.Suppressed = []string{"E1"}
	snapshot := cfg.Analyzer()

	cfg.Rules.Suppressed[0] = "E2"
	cfg.Analysis.MaxIssuesPerUnit = 1

	if !snapshot.Suppressed("E1") || snapshot.Suppressed("E2") {
		t.Fatal("snapshot must not observe later edits")
	}
	if snapshot.MaxIssuesPerUnit() == 1 {
		t.Fatal("snapshot cap changed after edit")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CODEREFACTOR_ANALYSIS_MAX_PARALLEL", "3")
	t.Setenv("CODEREFACTOR_ANALYSIS_ENABLED_ADAPTERS", "syntax, pylint")
	t.Setenv("CODEREFACTOR_ANALYSIS_SNIPPET_CONTEXT", "4")
	t.Setenv("CODEREFACTOR_FIX_RETRY_BACKOFF", "2s")
	t.Setenv("CODEREFACTOR_OBSERVABILITY_PORT", "not-a-number")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	if cfg.Analysis.MaxParallel != 3 {
		t.Fatalf("expected max_parallel 3, got %d", cfg.Analysis.MaxParallel)
	}
	if got := cfg.Analysis.EnabledAdapters; len(got) != 2 || got[0] != "syntax" || got[1] != "pylint" {
		t.Fatalf("unexpected adapters %v", got)
	}
	if *cfg.Analysis.SnippetContext != 4 {
		t.Fatalf("expected snippet context 4, got %d", *cfg.Analysis.SnippetContext)
	}
	if cfg.Fix.RetryBackoff != 2*time.Second {
		t.Fatalf("expected backoff 2s, got %s", cfg.Fix.RetryBackoff)
	}
	if cfg.Observability.Port != 9464 {
		t.Fatalf("invalid override must be ignored, got port %d", cfg.Observability.Port)
	}
}
