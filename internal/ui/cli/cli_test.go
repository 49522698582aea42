package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreapp "coderefactor/internal/core/app"
	"coderefactor/internal/core/config"
	"coderefactor/internal/data/history"
	"coderefactor/internal/engine/adapters"
	"coderefactor/internal/engine/parser"
)

type missingToolsRunner struct{}

func (missingToolsRunner) LookPath(binary string) (string, error) {
	return "", errors.New(binary + " not installed")
}

func (missingToolsRunner) Run(context.Context, adapters.Invocation) (adapters.Output, error) {
	return adapters.Output{}, errors.New("unexpected run")
}

type harness struct {
	dir    string
	config string
}

func newHarness(t *testing.T, withHistory bool) harness {
	t.Helper()
	dir := t.TempDir()
	body := "version = 1\n\n[analysis]\nenabled_adapters = [\"syntax\", \"whitespace\"]\n"
	if withHistory {
		body += "\n[db]\nenabled = true\npath = \"" + filepath.ToSlash(filepath.Join(dir, "history.db")) + "\"\n"
	}
	cfgPath := filepath.Join(dir, "coderefactor.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	return harness{dir: dir, config: cfgPath}
}

func (h harness) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (h harness) run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	p, err := parser.NewDefaultParser()
	require.NoError(t, err)
	var out, errOut bytes.Buffer
	rt := &runtime{
		out:    &out,
		errOut: &errOut,
		newSession: func(cfg *config.Config) (*coreapp.Session, error) {
			return coreapp.NewWithDependencies(cfg, coreapp.Dependencies{Parser: p, Runner: missingToolsRunner{}})
		},
	}
	full := append([]string{"--config", h.config, "--color", "off"}, args...)
	code := execute(rt, full)
	return out.String(), errOut.String(), code
}

func TestAnalyze_RendersIssues(t *testing.T) {
	h := newHarness(t, false)
	path := h.write(t, "a.py", "x = 1  \ny = 2\n")

	out, _, code := h.run(t, "analyze", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "trailing whitespace")
	assert.Contains(t, out, "[fix:automated]")
	assert.Contains(t, out, "1 warning")
}

func TestAnalyze_FailOnThreshold(t *testing.T) {
	h := newHarness(t, false)
	path := h.write(t, "a.py", "x = 1  \n")

	_, _, code := h.run(t, "analyze", path, "--fail-on", "warning")
	assert.Equal(t, 2, code)

	_, _, code = h.run(t, "analyze", path, "--fail-on", "critical")
	assert.Equal(t, 0, code)

	_, errOut, code := h.run(t, "analyze", path, "--fail-on", "fatal")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "--fail-on")
}

func TestAnalyze_JSON(t *testing.T) {
	h := newHarness(t, false)
	path := h.write(t, "a.py", "x = 1\n")

	out, _, code := h.run(t, "--json", "analyze", path)
	require.Equal(t, 0, code)
	var decoded struct {
		FilePath string `json:"file_path"`
		Language string `json:"language"`
		Issues   []any  `json:"issues"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, path, decoded.FilePath)
	assert.Equal(t, "python", decoded.Language)
	assert.Empty(t, decoded.Issues)
}

func TestFix_ApplyWritesFile(t *testing.T) {
	h := newHarness(t, false)
	path := h.write(t, "a.py", "x = 1  \ny = 2\n")

	out, errOut, code := h.run(t, "fix", path, "--issue", "1", "--apply")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "fix staged for")
	assert.Contains(t, out, "no issues")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x = 1\ny = 2\n", string(data))
}

func TestFix_PreviewLeavesFile(t *testing.T) {
	h := newHarness(t, false)
	source := "x = 1  \n"
	path := h.write(t, "a.py", source)

	out, _, code := h.run(t, "--json", "fix", path, "--issue", "1")
	require.Equal(t, 0, code)
	var decoded fixOutput
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "x = 1\n", decoded.Candidate.PostImage)
	assert.Nil(t, decoded.Commit)
	assert.False(t, decoded.Saved)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, source, string(data))
}

func TestFix_UnknownIssue(t *testing.T) {
	h := newHarness(t, false)
	path := h.write(t, "a.py", "x = 1  \n")

	_, errOut, code := h.run(t, "fix", path, "--issue", "7")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "out of range")

	_, errOut, code = h.run(t, "fix", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "--issue is required")
}

func TestProject_SkipsCleanFiles(t *testing.T) {
	h := newHarness(t, false)
	root := filepath.Join(h.dir, "src")
	h.write(t, "src/a.py", "x = 1  \n")
	h.write(t, "src/b.py", "y = 2\n")

	out, _, code := h.run(t, "project", root)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "a.py")
	assert.NotContains(t, out, "b.py")
	assert.Contains(t, out, "2 files, 1 issues")
}

func TestHistory_TrendAfterRuns(t *testing.T) {
	h := newHarness(t, true)
	path := h.write(t, "a.py", "x = 1  \n")

	for i := 0; i < 2; i++ {
		_, errOut, code := h.run(t, "analyze", path)
		require.Equal(t, 0, code, errOut)
	}

	out, errOut, code := h.run(t, "--json", "history", path)
	require.Equal(t, 0, code, errOut)
	var report history.TrendReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.RunCount)
	require.Len(t, report.Points, 2)
	assert.Equal(t, 1, report.Points[1].IssueCount)
	assert.False(t, report.Points[1].SourceChanged)
}

func TestHistory_Disabled(t *testing.T) {
	h := newHarness(t, false)
	_, errOut, code := h.run(t, "history", "a.py")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "history is disabled")
}

func TestAdapters_ListsBuiltins(t *testing.T) {
	h := newHarness(t, false)
	out, _, code := h.run(t, "--json", "adapters")
	require.Equal(t, 0, code)
	var infos []adapterInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))

	byName := make(map[string]adapterInfo, len(infos))
	for _, info := range infos {
		byName[info.Name] = info
	}
	require.Contains(t, byName, "whitespace")
	assert.True(t, byName["whitespace"].Enabled)
	assert.True(t, byName["whitespace"].Available)
}

func TestParseSince(t *testing.T) {
	ts, err := parseSince("2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 2026, ts.Year())

	_, err = parseSince("2026-03-01T10:00:00Z")
	require.NoError(t, err)

	_, err = parseSince("yesterday")
	require.Error(t, err)
}

func TestUseColor(t *testing.T) {
	on, err := useColor("on", &bytes.Buffer{})
	require.NoError(t, err)
	assert.True(t, on)

	auto, err := useColor("auto", &bytes.Buffer{})
	require.NoError(t, err)
	assert.False(t, auto)

	_, err = useColor("sometimes", &bytes.Buffer{})
	require.Error(t, err)
}

func TestAnalyze_SARIF(t *testing.T) {
	h := newHarness(t, false)
	path := h.write(t, "a.py", "x = 1  \n")

	out, _, code := h.run(t, "analyze", path, "--sarif")
	require.Equal(t, 0, code)
	var doc struct {
		Version string `json:"version"`
		Runs    []struct {
			Results []struct {
				RuleID string `json:"ruleId"`
				Level  string `json:"level"`
			} `json:"results"`
		} `json:"runs"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "2.1.0", doc.Version)
	require.Len(t, doc.Runs, 1)
	require.Len(t, doc.Runs[0].Results, 1)
	assert.Equal(t, "whitespace/trailing-whitespace", doc.Runs[0].Results[0].RuleID)
	assert.Equal(t, "warning", doc.Runs[0].Results[0].Level)
}

func TestReanalyze_RendersChangedAndRemoved(t *testing.T) {
	h := newHarness(t, false)
	h.write(t, "src/a.py", "x = 1  \n")

	p, err := parser.NewDefaultParser()
	require.NoError(t, err)
	s, err := coreapp.NewWithDependencies(config.Default(), coreapp.Dependencies{Parser: p, Runner: missingToolsRunner{}})
	require.NoError(t, err)
	defer s.Close()

	var out bytes.Buffer
	rt := &runtime{out: &out, styles: newStyles(false)}
	rt.reanalyze(context.Background(), s, filepath.Join(h.dir, "src"), []string{"a.py", "gone.py"})

	assert.Contains(t, out.String(), "trailing whitespace")
	assert.Contains(t, out.String(), "gone.py removed")
}
