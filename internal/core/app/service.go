package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"

	"coderefactor/internal/core/errors"
	"coderefactor/internal/core/issue"
	"coderefactor/internal/engine/aggregate"
	"coderefactor/internal/engine/apply"
	"coderefactor/internal/engine/fix"
	"coderefactor/internal/shared/observability"
)

// Analyze runs every enabled adapter for the unit and records the result.
// language may be empty, in which case it is detected from path. The source
// becomes the session buffer for path so fixes can later be applied to it.
func (s *Session) Analyze(ctx context.Context, path, source, language string) (issue.AnalysisResult, error) {
	ctx, span := observability.Tracer.Start(ctx, "session.Analyze")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return issue.AnalysisResult{}, err
	}
	if path == "" {
		path = issue.BufferPath
	}
	if language == "" {
		language = s.Parser.Registry().Detect(path)
	}
	span.SetAttributes(attribute.String("unit.path", path), attribute.String("unit.language", language))
	if language == "" {
		err := errors.New(errors.CodeNotSupported, "cannot detect language")
		return issue.AnalysisResult{}, errors.AddContext(err, errors.CtxPath, path)
	}

	s.Controller.Open(path, source)
	res := s.aggregateUnit(ctx, issue.Unit{Path: path, Language: language, Source: source})
	if res.Err != nil {
		observability.RecordError(span, res.Err)
		return res, errors.AddContext(res.Err, errors.CtxPath, path)
	}
	return res, nil
}

// aggregateUnit analyzes unit without touching its buffer and replaces the
// session result for its path.
func (s *Session) aggregateUnit(ctx context.Context, unit issue.Unit) issue.AnalysisResult {
	res := s.Aggregator.Aggregate(ctx, unit, s.Registry.For(unit.Language, s.Analyzer), s.Analyzer)
	s.remember(res)
	s.record(res, unit.Source)
	return res
}

// reanalyze runs the aggregator over the current buffer text of path so the
// session stops serving issues computed against an older text.
func (s *Session) reanalyze(ctx context.Context, path string) issue.AnalysisResult {
	buf, ok := s.Controller.Buffer(path)
	if !ok {
		return issue.AnalysisResult{FilePath: path, Err: errors.AddContext(errors.New(errors.CodeNotFound, "no open buffer"), errors.CtxPath, path)}
	}
	language := ""
	if prev, ok := s.Result(buf.Path()); ok {
		language = prev.Language
	}
	if language == "" {
		language = s.Parser.Registry().Detect(buf.Path())
	}
	res := s.aggregateUnit(ctx, issue.Unit{Path: buf.Path(), Language: language, Source: buf.Text()})
	if res.Err != nil {
		slog.Warn("re-analysis failed", "path", buf.Path(), "error", res.Err)
	}
	return res
}

// AnalyzeFile reads path from disk and analyzes it.
func (s *Session) AnalyzeFile(ctx context.Context, path string) (issue.AnalysisResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return issue.AnalysisResult{}, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "read source"), errors.CtxPath, path)
	}
	return s.Analyze(ctx, path, string(data), "")
}

// AnalyzeProject walks root with the configured include and exclude globs
// and analyzes every selected file. One file's failure never aborts the rest.
func (s *Session) AnalyzeProject(ctx context.Context, root string) (aggregate.ProjectResult, error) {
	ctx, span := observability.Tracer.Start(ctx, "session.AnalyzeProject")
	defer span.End()
	span.SetAttributes(attribute.String("project.root", root))

	files, err := s.Walker.Walk(ctx, root)
	if err != nil {
		observability.RecordError(span, err)
		return aggregate.ProjectResult{}, errors.AddContext(err, errors.CtxPath, root)
	}
	res := s.Aggregator.AggregateProject(ctx, root, files, s.Registry, s.Parser.Registry(), s.Analyzer)
	for _, unit := range res.Results {
		s.remember(unit)
		if unit.Failed() && errors.IsCode(unit.Err, errors.CodeNotFound) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(unit.FilePath)))
		if err != nil {
			continue
		}
		s.record(unit, string(data))
	}
	span.SetAttributes(attribute.Int("project.files", len(files)), attribute.Int("project.issues", res.IssueCount()))
	slog.Info("project analyzed", "root", root, "files", len(files), "issues", res.IssueCount(), "failed", len(res.FailedUnits()))
	return res, nil
}

func (s *Session) record(res issue.AnalysisResult, source string) {
	if s.recorder == nil {
		return
	}
	// A history failure is logged and counted by the recorder.
	_, _ = s.recorder.Record(res, source)
}

// RequestFix asks the broker for a candidate for the issue against the
// current buffer text of its file.
func (s *Session) RequestFix(ctx context.Context, issueID string) (issue.FixCandidate, error) {
	is, ok := s.FindIssue(issueID)
	if !ok {
		return issue.FixCandidate{}, errors.AddContext(errors.New(errors.CodeNotFound, "unknown issue"), errors.CtxIssueID, issueID)
	}
	path := is.Location.File
	buf, ok := s.Controller.Buffer(path)
	if !ok {
		return issue.FixCandidate{}, errors.AddContext(errors.New(errors.CodeNotFound, "no open buffer"), errors.CtxPath, path)
	}
	res, _ := s.Result(path)
	return s.Broker.Request(ctx, is, fix.Target{Path: buf.Path(), Language: res.Language, Source: buf.Text()})
}

// Commit applies the staged candidate for the issue to its buffer and
// re-analyzes the new text. Issues of the previous result are superseded. A
// failed re-analysis does not undo the commit; it is reported in the
// returned result's Err.
func (s *Session) Commit(ctx context.Context, issueID string) (apply.Commit, issue.AnalysisResult, error) {
	cand, ok := s.Broker.Staged(issueID)
	if !ok {
		reason := s.Broker.Reason(issueID)
		msg := "no staged fix"
		if reason != "" {
			msg = fmt.Sprintf("no staged fix (%s)", reason)
		}
		return apply.Commit{}, issue.AnalysisResult{}, errors.AddContext(errors.New(errors.CodeNotFound, msg), errors.CtxIssueID, issueID)
	}
	rec, err := s.Controller.Commit(ctx, cand)
	if err != nil {
		return rec, issue.AnalysisResult{}, err
	}
	return rec, s.reanalyze(ctx, rec.FilePath), nil
}

// Reject discards the staged candidate for the issue.
func (s *Session) Reject(issueID, reason string) {
	if reason == "" {
		reason = "rejected by user"
	}
	s.Broker.Reject(issueID, reason)
}

// Rollback undoes the latest commit on path and re-analyzes the restored text.
func (s *Session) Rollback(ctx context.Context, path string) (apply.Commit, issue.AnalysisResult, error) {
	rec, err := s.Controller.Rollback(ctx, path)
	if err != nil {
		return rec, issue.AnalysisResult{}, err
	}
	return rec, s.reanalyze(ctx, rec.FilePath), nil
}

// Save writes the buffer for path back to disk.
func (s *Session) Save(path string) error {
	return s.Controller.Save(path)
}
