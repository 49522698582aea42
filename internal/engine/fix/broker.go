// Package fix turns a selected issue into a validated, staged FixCandidate.
package fix

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domainerrors "coderefactor/internal/core/errors"
	"coderefactor/internal/core/issue"
	"coderefactor/internal/core/ports"
	"coderefactor/internal/shared/observability"
)

// Producer name recorded on oracle candidates.
const OracleProducer = "oracle"

// Options tune the oracle path of the broker.
type Options struct {
	OracleTimeout time.Duration
	RetryBackoff  time.Duration
	// OracleForManual lets manual issues ask the oracle for a suggestion.
	OracleForManual bool
}

// Target is the buffer a fix is requested against.
type Target struct {
	Path     string
	Language string
	Source   string
}

type request struct {
	token     uint64
	cancel    context.CancelFunc
	state     issue.FixState
	candidate *issue.FixCandidate
	reason    string
}

// Broker drives one fix request per issue id through
// Requested -> CandidateObtained -> Validated -> Staged -> Committed|Rejected.
// A newer request for the same issue cancels and supersedes the older one.
type Broker struct {
	fixers    []ports.Fixer
	oracle    ports.Oracle
	validator ports.SyntaxValidator
	opts      Options
	now       func() time.Time

	mu       sync.Mutex
	nextTok  uint64
	requests map[string]*request
}

// NewBroker wires the broker. oracle may be nil, which makes llm-assisted
// issues unfixable.
func NewBroker(fixers []ports.Fixer, oracle ports.Oracle, validator ports.SyntaxValidator, opts Options) *Broker {
	if opts.OracleTimeout <= 0 {
		opts.OracleTimeout = 60 * time.Second
	}
	if opts.RetryBackoff < 0 {
		opts.RetryBackoff = 0
	}
	return &Broker{
		fixers:    fixers,
		oracle:    oracle,
		validator: validator,
		opts:      opts,
		now:       time.Now,
		requests:  make(map[string]*request),
	}
}

// Request obtains, validates and stages a candidate for is. The pre-image is
// target.Source exactly as passed in.
func (b *Broker) Request(ctx context.Context, is issue.Issue, target Target) (issue.FixCandidate, error) {
	ctx, span := observability.Tracer.Start(ctx, "fix.Request")
	defer span.End()
	span.SetAttributes(
		attribute.String("issue.id", is.ID),
		attribute.String("issue.rule_id", is.RuleID),
		attribute.String("issue.fix_kind", string(is.FixKind)),
	)

	ctx, token := b.begin(ctx, is.ID)
	defer b.release(is.ID, token)
	pre := target.Source

	post, rationale, provenance, producer, err := b.obtain(ctx, is, target)
	if err == nil && post == pre {
		err = domainerrors.New(domainerrors.CodeFixUnavailable, producer+" produced no change")
	}
	if err != nil {
		return b.fail(span, is, token, err)
	}
	if !b.advance(is.ID, token, issue.FixCandidateObtained) {
		return b.fail(span, is, token, superseded(is.ID))
	}

	if b.validator != nil {
		if verr := b.validator.Validate(ctx, target.Language, post); verr != nil {
			return b.fail(span, is, token, domainerrors.Wrap(verr, domainerrors.CodeInvalidFix, "candidate does not parse"))
		}
	}
	if !b.advance(is.ID, token, issue.FixValidated) {
		return b.fail(span, is, token, superseded(is.ID))
	}

	path := target.Path
	if path == "" {
		path = issue.BufferPath
	}
	cand := issue.FixCandidate{
		ID:         uuid.NewString(),
		IssueID:    is.ID,
		FilePath:   path,
		Location:   is.Location,
		PreImage:   pre,
		PostImage:  post,
		Rationale:  rationale,
		Provenance: provenance,
		Producer:   producer,
		CreatedAt:  b.now(),
	}
	if !b.stage(is.ID, token, cand) {
		return b.fail(span, is, token, superseded(is.ID))
	}
	observability.FixRequestsTotal.WithLabelValues("staged").Inc()
	slog.Info("fix staged", "issue_id", is.ID, "rule_id", is.RuleID, "producer", producer, "provenance", cand.Provenance)
	return cand, nil
}

func superseded(issueID string) error {
	err := domainerrors.New(domainerrors.CodeConflict, "fix request superseded by a newer request")
	return domainerrors.AddContext(err, domainerrors.CtxIssueID, issueID)
}

func outcomeOf(err error) string {
	switch domainerrors.CodeOf(err) {
	case domainerrors.CodeFixUnavailable:
		return "unavailable"
	case domainerrors.CodeInvalidFix:
		return "invalid"
	case domainerrors.CodeConflict:
		return "superseded"
	}
	return observability.OutcomeFailed
}

func (b *Broker) fail(span trace.Span, is issue.Issue, token uint64, err error) (issue.FixCandidate, error) {
	b.mu.Lock()
	if req, ok := b.requests[is.ID]; ok && req.token == token {
		req.state = issue.FixRejected
		req.candidate = nil
		req.reason = err.Error()
	} else if !domainerrors.IsCode(err, domainerrors.CodeConflict) {
		err = superseded(is.ID)
	}
	b.mu.Unlock()

	observability.FixRequestsTotal.WithLabelValues(outcomeOf(err)).Inc()
	observability.RecordError(span, err)
	slog.Warn("fix rejected", "issue_id", is.ID, "rule_id", is.RuleID, "error", err)
	err = domainerrors.AddContext(err, domainerrors.CtxIssueID, is.ID)
	return issue.FixCandidate{}, domainerrors.AddContext(err, domainerrors.CtxRuleID, is.RuleID)
}

// begin registers a new request, cancelling any older one for the issue.
func (b *Broker) begin(ctx context.Context, issueID string) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.requests[issueID]; ok && old.cancel != nil {
		old.cancel()
	}
	b.nextTok++
	b.requests[issueID] = &request{token: b.nextTok, cancel: cancel, state: issue.FixRequested}
	return ctx, b.nextTok
}

func (b *Broker) release(issueID string, token uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if req, ok := b.requests[issueID]; ok && req.token == token && req.cancel != nil {
		req.cancel()
		req.cancel = nil
	}
}

func (b *Broker) advance(issueID string, token uint64, state issue.FixState) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.requests[issueID]
	if !ok || req.token != token {
		return false
	}
	req.state = state
	return true
}

func (b *Broker) stage(issueID string, token uint64, cand issue.FixCandidate) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.requests[issueID]
	if !ok || req.token != token {
		return false
	}
	req.state = issue.FixStaged
	req.candidate = &cand
	return true
}

func (b *Broker) obtain(ctx context.Context, is issue.Issue, target Target) (post, rationale string, prov issue.Provenance, producer string, err error) {
	switch is.FixKind {
	case issue.FixAutomated:
		fixer, ok := FindFixer(b.fixers, is)
		if !ok {
			return "", "", "", "", domainerrors.New(domainerrors.CodeFixUnavailable, "no deterministic fixer for rule "+is.RuleID)
		}
		post, rationale, err = fixer.Fix(target.Source, is)
		if err != nil {
			return "", "", "", fixer.Name(), domainerrors.Wrap(err, domainerrors.CodeFixUnavailable, fixer.Name()+" could not apply")
		}
		return post, rationale, issue.ProvenanceDeterministic, fixer.Name(), nil
	case issue.FixLLMAssisted:
		post, rationale, err = b.suggest(ctx, is, target)
		return post, rationale, issue.ProvenanceSuggested, OracleProducer, err
	case issue.FixManual:
		if b.opts.OracleForManual {
			post, rationale, err = b.suggest(ctx, is, target)
			return post, rationale, issue.ProvenanceSuggested, OracleProducer, err
		}
		return "", "", "", "", domainerrors.New(domainerrors.CodeFixUnavailable, "issue requires a manual fix")
	}
	return "", "", "", "", domainerrors.New(domainerrors.CodeFixUnavailable, "issue is not fixable")
}

// suggest asks the oracle, retrying once after a transient failure.
func (b *Broker) suggest(ctx context.Context, is issue.Issue, target Target) (string, string, error) {
	if b.oracle == nil {
		return "", "", domainerrors.New(domainerrors.CodeFixUnavailable, "no suggestion oracle configured")
	}
	ic := ports.IssueContext{
		FilePath:    is.Location.File,
		Language:    target.Language,
		RuleID:      is.RuleID,
		Message:     is.Message,
		Description: is.Description,
		Snippet:     is.CodeSnippet,
		Location:    is.Location,
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, b.opts.OracleTimeout)
		proposal, err := b.oracle.Propose(callCtx, target.Source, ic)
		cancel()
		if err == nil {
			if strings.TrimSpace(proposal.PatchedText) == "" {
				observability.OracleCallsTotal.WithLabelValues(observability.OutcomeRejected).Inc()
				return "", "", domainerrors.New(domainerrors.CodeFixUnavailable, "oracle returned an empty patch")
			}
			observability.OracleCallsTotal.WithLabelValues(observability.OutcomeOK).Inc()
			return proposal.PatchedText, proposal.Explanation, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == 1 || !transient(err) {
			observability.OracleCallsTotal.WithLabelValues(observability.OutcomeFailed).Inc()
			break
		}
		observability.OracleCallsTotal.WithLabelValues(observability.OutcomeRetried).Inc()
		slog.Warn("oracle call failed, retrying", "issue_id", is.ID, "backoff", b.opts.RetryBackoff, "error", err)
		select {
		case <-ctx.Done():
			return "", "", domainerrors.Wrap(ctx.Err(), domainerrors.CodeFixUnavailable, "fix request cancelled")
		case <-time.After(b.opts.RetryBackoff):
		}
	}
	if ctx.Err() != nil {
		return "", "", domainerrors.Wrap(ctx.Err(), domainerrors.CodeFixUnavailable, "fix request cancelled")
	}
	return "", "", domainerrors.Wrap(lastErr, domainerrors.CodeFixUnavailable, "oracle failed")
}

// transient reports oracle failures worth one retry. A per-call timeout
// counts as transient.
func transient(err error) bool {
	var te ports.TransientError
	if errors.As(err, &te) {
		return te.Transient()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// State returns the last known state of the request for issueID.
func (b *Broker) State(issueID string) (issue.FixState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.requests[issueID]
	if !ok {
		return issue.FixRequested, false
	}
	return req.state, true
}

// Reason returns why the request for issueID was rejected.
func (b *Broker) Reason(issueID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if req, ok := b.requests[issueID]; ok {
		return req.reason
	}
	return ""
}

// Staged returns the staged candidate for issueID.
func (b *Broker) Staged(issueID string) (issue.FixCandidate, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.requests[issueID]
	if !ok || req.candidate == nil {
		return issue.FixCandidate{}, false
	}
	return *req.candidate, true
}

// StagedCandidates lists every staged candidate ordered by file and line.
func (b *Broker) StagedCandidates() []issue.FixCandidate {
	b.mu.Lock()
	out := make([]issue.FixCandidate, 0, len(b.requests))
	for _, req := range b.requests {
		if req.candidate != nil {
			out = append(out, *req.candidate)
		}
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].FilePath != out[j].FilePath {
			return out[i].FilePath < out[j].FilePath
		}
		if out[i].Location.StartLine != out[j].Location.StartLine {
			return out[i].Location.StartLine < out[j].Location.StartLine
		}
		return out[i].IssueID < out[j].IssueID
	})
	return out
}

// Reject discards the staged candidate for issueID and cancels any request
// still in flight.
func (b *Broker) Reject(issueID, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectLocked(issueID, reason)
}

func (b *Broker) rejectLocked(issueID, reason string) {
	req, ok := b.requests[issueID]
	if !ok {
		return
	}
	if req.cancel != nil {
		req.cancel()
		req.cancel = nil
	}
	req.state = issue.FixRejected
	req.candidate = nil
	req.reason = reason
	observability.FixRequestsTotal.WithLabelValues(observability.OutcomeRejected).Inc()
}

// MarkCommitted records that the staged candidate for issueID was applied.
func (b *Broker) MarkCommitted(issueID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if req, ok := b.requests[issueID]; ok {
		req.state = issue.FixCommitted
		req.candidate = nil
		req.reason = ""
	}
}

// RejectOverlapping rejects staged candidates for filePath whose location
// shares a line with region. It returns the rejected issue ids, sorted.
func (b *Broker) RejectOverlapping(filePath string, region issue.LineRange, exceptIssueID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var rejected []string
	for id, req := range b.requests {
		c := req.candidate
		if id == exceptIssueID || c == nil || c.FilePath != filePath || !c.Location.Known() {
			continue
		}
		span := issue.LineRange{Start: c.Location.StartLine, End: c.Location.LastLine()}
		if span.Overlaps(region) {
			rejected = append(rejected, id)
		}
	}
	sort.Strings(rejected)
	for _, id := range rejected {
		b.rejectLocked(id, "overlaps a committed change")
	}
	return rejected
}
