package apply

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "coderefactor/internal/core/errors"
	"coderefactor/internal/core/issue"
	"coderefactor/internal/engine/fix"
)

var _ Staging = (*fix.Broker)(nil)

type fakeStaging struct {
	committed []string
	rejected  map[string]string
	regions   []issue.LineRange
}

func newFakeStaging() *fakeStaging {
	return &fakeStaging{rejected: make(map[string]string)}
}

func (f *fakeStaging) MarkCommitted(id string) { f.committed = append(f.committed, id) }

func (f *fakeStaging) Reject(id, reason string) { f.rejected[id] = reason }

func (f *fakeStaging) RejectOverlapping(_ string, region issue.LineRange, _ string) []string {
	f.regions = append(f.regions, region)
	return nil
}

func candidate(id, path, pre, post string) issue.FixCandidate {
	return issue.FixCandidate{ID: "c-" + id, IssueID: id, FilePath: path, PreImage: pre, PostImage: post}
}

func TestCommitText(t *testing.T) {
	cand := candidate("i", "a.py", "x = 1 \n", "x = 1\n")
	got, err := CommitText(cand, "x = 1 \n")
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", got)

	_, err = CommitText(cand, "x = 1 \n\n")
	require.Error(t, err)
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeStaleFix))
}

func TestController_CommitAndRollback(t *testing.T) {
	staging := newFakeStaging()
	c := NewController(staging)
	buf := c.Open("a.py", "a\nb \nc\n")

	rec, err := c.Commit(context.Background(), candidate("i1", "a.py", "a\nb \nc\n", "a\nb\nc\n"))
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", buf.Text())
	assert.Equal(t, issue.LineRange{Start: 2, End: 2}, rec.Region)
	assert.Equal(t, []string{"i1"}, staging.committed)
	assert.Equal(t, []issue.LineRange{{Start: 2, End: 2}}, staging.regions)
	assert.Equal(t, uint64(2), buf.Version())
	require.Len(t, buf.History(), 1)

	undone, err := c.Rollback(context.Background(), "a.py")
	require.NoError(t, err)
	assert.Equal(t, "i1", undone.IssueID)
	assert.Equal(t, "a\nb \nc\n", buf.Text())
	assert.Empty(t, buf.History())

	_, err = c.Rollback(context.Background(), "a.py")
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeNotFound))
}

func TestController_StaleCommitLeavesBuffer(t *testing.T) {
	staging := newFakeStaging()
	c := NewController(staging)
	buf := c.Open("a.py", "x = 1 \n")
	cand := candidate("i1", "a.py", "x = 1 \n", "x = 1\n")

	buf.Edit("x = 1 \ny = 2\n")
	_, err := c.Commit(context.Background(), cand)
	require.Error(t, err)
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeStaleFix))
	assert.Equal(t, "x = 1 \ny = 2\n", buf.Text())
	assert.Contains(t, staging.rejected, "i1")
	assert.Empty(t, staging.committed)
}

func TestController_RollbackRefusesAfterEdit(t *testing.T) {
	c := NewController(nil)
	buf := c.Open("a.py", "a \n")
	_, err := c.Commit(context.Background(), candidate("i1", "a.py", "a \n", "a\n"))
	require.NoError(t, err)

	buf.Edit("a\nb\n")
	_, err = c.Rollback(context.Background(), "a.py")
	require.Error(t, err)
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeStaleFix))
	assert.Equal(t, "a\nb\n", buf.Text())
}

func TestController_UnknownBuffer(t *testing.T) {
	c := NewController(nil)
	_, err := c.Commit(context.Background(), candidate("i1", "missing.py", "", "x"))
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeNotFound))
}

func TestController_WithBrokerRejectsOverlapping(t *testing.T) {
	ctx := context.Background()
	broker := fix.NewBroker(fix.DefaultFixers(), nil, nil, fix.Options{})
	c := NewController(broker)
	source := "a = 1 \nb = 2 \nc = 3\n"
	buf := c.Open("a.py", source)
	target := fix.Target{Path: "a.py", Language: "python", Source: buf.Text()}

	trailing := func(id string, line int) issue.Issue {
		return issue.Issue{ID: id, RuleID: "W291", FixKind: issue.FixAutomated, Location: issue.Location{File: "a.py", StartLine: line, StartColumn: 6}}
	}
	// Spans lines 1-2, so committing the line 1 fix must reject it.
	wide := issue.Issue{ID: "wide", RuleID: "W291", FixKind: issue.FixAutomated, Location: issue.Location{File: "a.py", StartLine: 1, StartColumn: 1, EndLine: 2}}

	first, err := broker.Request(ctx, trailing("l1", 1), target)
	require.NoError(t, err)
	_, err = broker.Request(ctx, trailing("l2", 2), target)
	require.NoError(t, err)
	_, err = broker.Request(ctx, wide, target)
	require.NoError(t, err)

	rec, err := c.Commit(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, []string{"wide"}, rec.Rejected)
	assert.Equal(t, "a = 1\nb = 2 \nc = 3\n", buf.Text())

	state, _ := broker.State("l1")
	assert.Equal(t, issue.FixCommitted, state)
	state, _ = broker.State("wide")
	assert.Equal(t, issue.FixRejected, state)

	// l2 does not overlap line 1 but its pre-image is now stale.
	second, ok := broker.Staged("l2")
	require.True(t, ok)
	assert.Empty(t, c.Pending([]issue.FixCandidate{second}))
	_, err = c.Commit(ctx, second)
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeStaleFix))
	state, _ = broker.State("l2")
	assert.Equal(t, issue.FixRejected, state)
}

func TestController_Save(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.py")
	c := NewController(nil)
	c.Open(path, "x = 1\n")
	require.NoError(t, c.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(data))

	c.Open("", "y")
	err = c.Save("")
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeNotSupported))
	assert.Equal(t, []string{path, issue.BufferPath}, c.Paths())
}
