package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderefactor/internal/core/config"
	domainerrors "coderefactor/internal/core/errors"
	"coderefactor/internal/core/issue"
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

func newTestSession(t *testing.T, withHistory bool) *Session {
	t.Helper()
	cfg := config.Default()
	cfg.Analysis.EnabledAdapters = []string{"syntax", "whitespace"}

	p, err := parser.NewDefaultParser()
	require.NoError(t, err)
	deps := Dependencies{Parser: p, Runner: missingToolsRunner{}}
	if withHistory {
		store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		deps.History = store
	}
	s, err := NewWithDependencies(cfg, deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSession_AnalyzeFixCommitRollback(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, true)
	source := "x = 1  \ny = 2\n"

	res, err := s.Analyze(ctx, "a.py", source, "")
	require.NoError(t, err)
	assert.Equal(t, "python", res.Language)
	assert.Greater(t, res.Duration, time.Duration(0))
	require.Len(t, res.Issues, 1)
	is := res.Issues[0]
	assert.Equal(t, adapters.RuleTrailingWhitespace, is.RuleID)
	assert.Equal(t, issue.FixAutomated, is.FixKind)
	assert.Contains(t, is.CodeSnippet, "x = 1")

	cand, err := s.RequestFix(ctx, is.ID)
	require.NoError(t, err)
	assert.Equal(t, source, cand.PreImage)
	assert.Equal(t, "x = 1\ny = 2\n", cand.PostImage)

	rec, after, err := s.Commit(ctx, is.ID)
	require.NoError(t, err)
	assert.Equal(t, issue.LineRange{Start: 1, End: 1}, rec.Region)
	buf, ok := s.Controller.Buffer("a.py")
	require.True(t, ok)
	assert.Equal(t, "x = 1\ny = 2\n", buf.Text())
	require.NoError(t, after.Err)
	assert.Empty(t, after.Issues)
	current, ok := s.Result("a.py")
	require.True(t, ok)
	assert.Empty(t, current.Issues)
	_, ok = s.FindIssue(is.ID)
	assert.False(t, ok, "committed issue must be superseded")

	_, _, err = s.Commit(ctx, is.ID)
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeNotFound))

	_, restored, err := s.Rollback(ctx, "a.py")
	require.NoError(t, err)
	assert.Equal(t, source, buf.Text())
	require.Len(t, restored.Issues, 1)
	assert.Equal(t, adapters.RuleTrailingWhitespace, restored.Issues[0].RuleID)
	assert.NotEqual(t, is.ID, restored.Issues[0].ID)
	current, _ = s.Result("a.py")
	assert.Equal(t, restored.Issues, current.Issues)

	runs, err := s.History().LoadRuns("a.py", time.Time{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	counts := []int{runs[0].IssueCount, runs[1].IssueCount, runs[2].IssueCount}
	assert.ElementsMatch(t, []int{1, 0, 1}, counts)
}

func TestSession_StaleFixAfterEdit(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, false)

	res, err := s.Analyze(ctx, "a.py", "x = 1 \n", "")
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)
	id := res.Issues[0].ID

	_, err = s.RequestFix(ctx, id)
	require.NoError(t, err)

	buf, _ := s.Controller.Buffer("a.py")
	buf.Edit("x = 1 \nz = 3\n")
	_, _, err = s.Commit(ctx, id)
	require.Error(t, err)
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeStaleFix))
	assert.Equal(t, "x = 1 \nz = 3\n", buf.Text())
}

func TestSession_RejectAndUnknownIssue(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, false)

	res, err := s.Analyze(ctx, "a.py", "x = 1 \n", "")
	require.NoError(t, err)
	id := res.Issues[0].ID
	_, err = s.RequestFix(ctx, id)
	require.NoError(t, err)

	s.Reject(id, "")
	_, _, err = s.Commit(ctx, id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected by user")

	_, err = s.RequestFix(ctx, "nope")
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeNotFound))
}

func TestSession_AnalyzeUnknownLanguage(t *testing.T) {
	s := newTestSession(t, false)
	_, err := s.Analyze(context.Background(), "notes.unknownext", "hello", "")
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeNotSupported))
}

func TestSession_AnalyzeFile(t *testing.T) {
	s := newTestSession(t, false)
	_, err := s.AnalyzeFile(context.Background(), filepath.Join(t.TempDir(), "missing.py"))
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeNotFound))

	path := filepath.Join(t.TempDir(), "ok.py")
	require.NoError(t, os.WriteFile(path, []byte("def f():\n    return 1\n"), 0o644))
	res, err := s.AnalyzeFile(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, res.Issues)
	_, ok := s.Result(path)
	assert.True(t, ok)
}

func TestSession_AnalyzeProject(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("x = 1 \n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "web"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "web", "b.js"), []byte("let y = 2;\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "c.js"), []byte("x \n"), 0o644))

	s := newTestSession(t, true)
	res, err := s.AnalyzeProject(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "a.py", res.Results[0].FilePath)
	assert.Equal(t, "web/b.js", res.Results[1].FilePath)
	assert.Equal(t, 1, res.IssueCount())

	runs, err := s.History().LoadRuns("", time.Time{})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestHealthService_Check(t *testing.T) {
	s := newTestSession(t, false)
	status := NewHealthService(s).Check(context.Background())
	assert.Equal(t, "up", status.Status)
	assert.Equal(t, "ok", status.Components["parser"])
	assert.Contains(t, status.Components["adapters"], "registered")

	s.Config.DB.Enabled = true
	status = NewHealthService(s).Check(context.Background())
	assert.Equal(t, "degraded", status.Status)

	status = NewHealthService(nil).Check(context.Background())
	assert.Equal(t, "down", status.Status)
}
