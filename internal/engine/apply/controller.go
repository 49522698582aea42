package apply

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	domainerrors "coderefactor/internal/core/errors"
	"coderefactor/internal/core/issue"
	"coderefactor/internal/shared/observability"
	"coderefactor/internal/shared/util"
)

// Staging is the part of the fix broker the controller reports back to.
type Staging interface {
	MarkCommitted(issueID string)
	Reject(issueID, reason string)
	RejectOverlapping(filePath string, region issue.LineRange, exceptIssueID string) []string
}

// Commit records one applied candidate.
type Commit struct {
	CandidateID string          `json:"candidate_id"`
	IssueID     string          `json:"issue_id"`
	FilePath    string          `json:"file_path"`
	PreImage    string          `json:"-"`
	PostImage   string          `json:"-"`
	Region      issue.LineRange `json:"region"`
	Rejected    []string        `json:"rejected,omitempty"`
	Version     uint64          `json:"version"`
	At          time.Time       `json:"at"`
}

// CommitText is the pure commit rule: the candidate applies only to the exact
// text it was computed against.
func CommitText(cand issue.FixCandidate, current string) (string, error) {
	if current != cand.PreImage {
		err := domainerrors.New(domainerrors.CodeStaleFix, "buffer changed since the fix was requested")
		err = domainerrors.AddContext(err, domainerrors.CtxIssueID, cand.IssueID)
		return "", domainerrors.AddContext(err, domainerrors.CtxPath, cand.FilePath)
	}
	return cand.PostImage, nil
}

// Controller serializes commits and rollbacks across all open buffers.
type Controller struct {
	staging Staging
	now     func() time.Time

	mu      sync.Mutex
	buffers map[string]*Buffer
}

// NewController returns a controller reporting to staging, which may be nil.
func NewController(staging Staging) *Controller {
	return &Controller{
		staging: staging,
		now:     time.Now,
		buffers: make(map[string]*Buffer),
	}
}

// Open registers text as the buffer for path, replacing any earlier buffer.
func (c *Controller) Open(path, text string) *Buffer {
	buf := NewBuffer(path, text)
	c.mu.Lock()
	c.buffers[buf.Path()] = buf
	c.mu.Unlock()
	return buf
}

// Buffer returns the open buffer for path.
func (c *Controller) Buffer(path string) (*Buffer, bool) {
	if path == "" {
		path = issue.BufferPath
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	buf, ok := c.buffers[path]
	return buf, ok
}

// Paths lists the open buffers.
func (c *Controller) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return util.SortedStringKeys(c.buffers)
}

// Commit applies cand to its buffer. A stale candidate is rejected in the
// staging area and leaves the buffer untouched. On success every other staged
// candidate for the file whose lines overlap the change is rejected.
func (c *Controller) Commit(ctx context.Context, cand issue.FixCandidate) (Commit, error) {
	_, span := observability.Tracer.Start(ctx, "apply.Commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("fix.candidate_id", cand.ID),
		attribute.String("fix.issue_id", cand.IssueID),
		attribute.String("fix.file", cand.FilePath),
	)

	c.mu.Lock()
	defer c.mu.Unlock()

	buf, ok := c.buffers[cand.FilePath]
	if !ok {
		err := domainerrors.New(domainerrors.CodeNotFound, "no open buffer for "+cand.FilePath)
		observability.CommitsTotal.WithLabelValues(observability.OutcomeFailed).Inc()
		observability.RecordError(span, err)
		return Commit{}, domainerrors.AddContext(err, domainerrors.CtxPath, cand.FilePath)
	}

	buf.mu.Lock()
	post, err := CommitText(cand, buf.text)
	if err != nil {
		buf.mu.Unlock()
		if c.staging != nil {
			c.staging.Reject(cand.IssueID, "stale: buffer changed since the fix was requested")
		}
		observability.CommitsTotal.WithLabelValues(observability.OutcomeStale).Inc()
		observability.RecordError(span, err)
		slog.Warn("stale fix rejected", "issue_id", cand.IssueID, "path", cand.FilePath)
		return Commit{}, err
	}
	buf.text = post
	buf.version++
	rec := Commit{
		CandidateID: cand.ID,
		IssueID:     cand.IssueID,
		FilePath:    cand.FilePath,
		PreImage:    cand.PreImage,
		PostImage:   post,
		Region:      ChangedRegion(cand.PreImage, post),
		Version:     buf.version,
		At:          c.now(),
	}
	buf.mu.Unlock()

	if c.staging != nil {
		c.staging.MarkCommitted(cand.IssueID)
		if !rec.Region.Empty() {
			rec.Rejected = c.staging.RejectOverlapping(cand.FilePath, rec.Region, cand.IssueID)
		}
	}

	buf.mu.Lock()
	buf.undo = append(buf.undo, rec)
	buf.mu.Unlock()

	observability.CommitsTotal.WithLabelValues(observability.OutcomeOK).Inc()
	span.SetAttributes(attribute.Int("fix.rejected_overlapping", len(rec.Rejected)))
	slog.Info("fix committed",
		"issue_id", cand.IssueID,
		"path", cand.FilePath,
		"lines", rec.Region,
		"rejected", rec.Rejected,
	)
	return rec, nil
}

// Rollback undoes the most recent commit on path, restoring its pre-image
// verbatim. It refuses when the buffer was changed after that commit.
func (c *Controller) Rollback(ctx context.Context, path string) (Commit, error) {
	_, span := observability.Tracer.Start(ctx, "apply.Rollback")
	defer span.End()
	if path == "" {
		path = issue.BufferPath
	}
	span.SetAttributes(attribute.String("fix.file", path))

	c.mu.Lock()
	defer c.mu.Unlock()

	buf, ok := c.buffers[path]
	if !ok {
		err := domainerrors.New(domainerrors.CodeNotFound, "no open buffer for "+path)
		observability.RecordError(span, err)
		return Commit{}, domainerrors.AddContext(err, domainerrors.CtxPath, path)
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()
	if len(buf.undo) == 0 {
		err := domainerrors.New(domainerrors.CodeNotFound, "nothing to roll back")
		observability.RecordError(span, err)
		return Commit{}, domainerrors.AddContext(err, domainerrors.CtxPath, path)
	}
	last := buf.undo[len(buf.undo)-1]
	if buf.text != last.PostImage {
		err := domainerrors.New(domainerrors.CodeStaleFix, "buffer changed since the commit")
		err = domainerrors.AddContext(err, domainerrors.CtxIssueID, last.IssueID)
		observability.CommitsTotal.WithLabelValues("rollback_" + observability.OutcomeStale).Inc()
		observability.RecordError(span, err)
		return Commit{}, domainerrors.AddContext(err, domainerrors.CtxPath, path)
	}

	buf.text = last.PreImage
	buf.version++
	buf.undo = buf.undo[:len(buf.undo)-1]
	observability.CommitsTotal.WithLabelValues("rollback_" + observability.OutcomeOK).Inc()
	slog.Info("fix rolled back", "issue_id", last.IssueID, "path", path)
	return last, nil
}

// Save writes the buffer for path to disk atomically.
func (c *Controller) Save(path string) error {
	buf, ok := c.Buffer(path)
	if !ok {
		return domainerrors.AddContext(domainerrors.New(domainerrors.CodeNotFound, "no open buffer"), domainerrors.CtxPath, path)
	}
	if buf.Path() == issue.BufferPath {
		return domainerrors.New(domainerrors.CodeNotSupported, "buffer has no file on disk")
	}
	if err := util.WriteFileAtomic(buf.Path(), []byte(buf.Text()), 0o644); err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "write buffer")
	}
	return nil
}

// Pending lists staged candidates that still apply cleanly to their buffers.
func (c *Controller) Pending(candidates []issue.FixCandidate) []issue.FixCandidate {
	out := make([]issue.FixCandidate, 0, len(candidates))
	for _, cand := range candidates {
		buf, ok := c.Buffer(cand.FilePath)
		if ok && buf.Text() == cand.PreImage {
			out = append(out, cand)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out
}
