// Package aggregate runs adapters over a compilation unit and merges their
// normalized output into one ordered, deduplicated and capped result.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"coderefactor/internal/core/config"
	domainerrors "coderefactor/internal/core/errors"
	"coderefactor/internal/core/issue"
	"coderefactor/internal/core/ports"
	"coderefactor/internal/engine/normalize"
	"coderefactor/internal/shared/observability"
)

// Aggregator is stateless apart from the normalization profiles; one value is
// shared by every unit of a session.
type Aggregator struct {
	profiles normalize.Profiles
	opts     []normalize.Option
}

func New(profiles normalize.Profiles, opts ...normalize.Option) *Aggregator {
	return &Aggregator{profiles: profiles, opts: opts}
}

// adapterOutput is what one adapter contributed to a unit.
type adapterOutput struct {
	adapter ports.Adapter
	diags   []issue.RawDiagnostic
	err     error
}

// candidate is a normalized issue plus the rank of the adapter that produced
// it. Lower rank wins deduplication.
type candidate struct {
	issue issue.Issue
	rank  rank
	// seq is the emission order; it settles duplicates of equal rank.
	seq int
}

type rank struct {
	configured bool
	position   int
	name       string
}

func (r rank) less(o rank) bool {
	if r.configured != o.configured {
		return r.configured
	}
	if r.position != o.position {
		return r.position < o.position
	}
	return r.name < o.name
}

func adapterRank(a ports.Adapter, cfg config.AnalyzerConfig) rank {
	if pos, ok := cfg.PriorityRank(a.Name()); ok {
		return rank{configured: true, position: pos, name: a.Name()}
	}
	return rank{position: int(a.Tier()), name: a.Name()}
}

// Aggregate runs adapters concurrently over unit and merges their output.
// A failing adapter only lands in Failures; the result carries Err when
// every adapter failed or none was given.
func (a *Aggregator) Aggregate(ctx context.Context, unit issue.Unit, adapters []ports.Adapter, cfg config.AnalyzerConfig) issue.AnalysisResult {
	return a.aggregate(ctx, unit, adapters, nil, cfg)
}

func (a *Aggregator) aggregate(ctx context.Context, unit issue.Unit, adapters []ports.Adapter, precomputed []adapterOutput, cfg config.AnalyzerConfig) (result issue.AnalysisResult) {
	start := time.Now()
	ctx, span := observability.Tracer.Start(ctx, "aggregate.Unit")
	defer span.End()
	span.SetAttributes(
		attribute.String("unit.path", unit.Path),
		attribute.String("unit.language", unit.Language),
		attribute.Int("unit.adapters", len(adapters)+len(precomputed)),
	)

	result = issue.AnalysisResult{FilePath: unit.Path, Language: unit.Language, Issues: []issue.Issue{}}
	if result.FilePath == "" {
		result.FilePath = issue.BufferPath
	}
	defer func() {
		result.Duration = time.Since(start)
		observability.UnitDuration.WithLabelValues(unit.Language).Observe(result.Duration.Seconds())
	}()

	if len(adapters)+len(precomputed) == 0 {
		result.Err = domainerrors.New(domainerrors.CodeAggregationFailure, "no adapter supports "+languageLabel(unit.Language))
		observability.RecordError(span, result.Err)
		return result
	}

	if timeout := cfg.UnitTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outputs := runAdapters(ctx, unit, adapters, cfg)
	outputs = append(outputs, precomputed...)

	normalizer := normalize.New(cfg, a.profiles, a.opts...)
	var candidates []candidate
	for _, out := range outputs {
		name := out.adapter.Name()
		if out.err != nil {
			result.Failures = append(result.Failures, issue.AdapterFailure{Adapter: name, Reason: failureReason(out.err)})
			continue
		}
		issues, malformed := normalizer.NormalizeAll(out.diags, unit.Source, result.FilePath, name)
		result.Malformed += malformed
		r := adapterRank(out.adapter, cfg)
		for _, is := range issues {
			candidates = append(candidates, candidate{issue: is, rank: r, seq: len(candidates)})
		}
	}
	sort.Slice(result.Failures, func(i, j int) bool { return result.Failures[i].Adapter < result.Failures[j].Adapter })

	if len(result.Failures) == len(outputs) {
		result.Err = domainerrors.New(domainerrors.CodeAggregationFailure, fmt.Sprintf("all %d adapters failed", len(outputs)))
		result.Malformed = 0
		observability.RecordError(span, result.Err)
		slog.Warn("analysis produced no results", "path", result.FilePath, "adapters", len(outputs))
		return result
	}

	result.Issues, result.Truncated = merge(candidatesFiltered(candidates, cfg), cfg.MaxIssuesPerUnit())
	if result.Truncated {
		observability.TruncatedResultsTotal.Inc()
	}
	for _, is := range result.Issues {
		observability.IssuesTotal.WithLabelValues(is.Severity.String()).Inc()
	}
	span.SetAttributes(attribute.Int("unit.issues", len(result.Issues)), attribute.Bool("unit.truncated", result.Truncated))
	return result
}

func failureReason(err error) string {
	var de *domainerrors.DomainError
	if errors.As(err, &de) && de.Err != nil {
		return de.Err.Error()
	}
	return err.Error()
}

func languageLabel(language string) string {
	if language == "" {
		return "unknown language"
	}
	return language
}

func candidatesFiltered(in []candidate, cfg config.AnalyzerConfig) []candidate {
	out := in[:0]
	for _, c := range in {
		if cfg.Suppressed(c.issue.RuleID) {
			continue
		}
		if c.issue.Severity == issue.SeverityInfo && !cfg.IncludeHidden() {
			continue
		}
		out = append(out, c)
	}
	return out
}

// runAdapters fans out with at most MaxParallel adapters in flight. The
// returned slice is in adapter order.
func runAdapters(ctx context.Context, unit issue.Unit, adapters []ports.Adapter, cfg config.AnalyzerConfig) []adapterOutput {
	outputs := make([]adapterOutput, len(adapters))
	var g errgroup.Group
	g.SetLimit(cfg.MaxParallel())
	for i, adapter := range adapters {
		g.Go(func() error {
			diags, err := runAdapter(ctx, adapter, unit, cfg.AdapterTimeout())
			outputs[i] = adapterOutput{adapter: adapter, diags: diags, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outputs
}

func runAdapter(ctx context.Context, adapter ports.Adapter, unit issue.Unit, timeout time.Duration) ([]issue.RawDiagnostic, error) {
	return guardedRun(ctx, adapter.Name(), unit.Path, timeout, func(ctx context.Context) ([]issue.RawDiagnostic, error) {
		return adapter.AnalyzeUnit(ctx, unit)
	})
}

// guardedRun enforces the timeout even when the adapter ignores ctx, and
// turns panics into adapter failures.
func guardedRun(ctx context.Context, name, path string, timeout time.Duration, fn func(context.Context) ([]issue.RawDiagnostic, error)) ([]issue.RawDiagnostic, error) {
	ctx, span := observability.Tracer.Start(ctx, "adapter."+name)
	defer span.End()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type reply struct {
		diags []issue.RawDiagnostic
		err   error
	}
	done := make(chan reply, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("adapter panicked", "adapter", name, "panic", r, "stack", string(debug.Stack()))
				done <- reply{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		diags, err := fn(ctx)
		done <- reply{diags: diags, err: err}
	}()

	var out reply
	select {
	case out = <-done:
	case <-ctx.Done():
		out = reply{err: ctx.Err()}
	}
	observability.AdapterDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if out.err != nil {
		outcome := observability.OutcomeFailed
		if ctx.Err() != nil {
			outcome = observability.OutcomeTimeout
		}
		observability.AdapterRunsTotal.WithLabelValues(name, outcome).Inc()
		observability.RecordError(span, out.err)
		slog.Warn("adapter failed", "adapter", name, "path", path, "error", out.err)
		err := domainerrors.Wrap(out.err, domainerrors.CodeAdapterFailure, name+" failed")
		return nil, domainerrors.AddContext(err, domainerrors.CtxAdapter, name)
	}
	observability.AdapterRunsTotal.WithLabelValues(name, observability.OutcomeOK).Inc()
	return out.diags, nil
}
