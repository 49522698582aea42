package aggregate

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"coderefactor/internal/core/config"
	domainerrors "coderefactor/internal/core/errors"
	"coderefactor/internal/core/issue"
	"coderefactor/internal/core/ports"
	"coderefactor/internal/engine/parser"
	"coderefactor/internal/shared/observability"
)

// AdapterSource selects the adapters that run for a language.
type AdapterSource interface {
	For(language string, cfg config.AnalyzerConfig) []ports.Adapter
}

// projectCapable is implemented by adapters whose project mode is optional.
type projectCapable interface {
	SupportsProject() bool
}

// ProjectResult holds one AnalysisResult per file, sorted by path.
type ProjectResult struct {
	Root     string                 `json:"root"`
	Results  []issue.AnalysisResult `json:"results"`
	Failures []issue.AdapterFailure `json:"failures,omitempty"`
	Duration time.Duration          `json:"duration"`
}

// IssueCount sums issues over every file.
func (r ProjectResult) IssueCount() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Issues)
	}
	return n
}

// FailedUnits returns the files whose analysis produced no result.
func (r ProjectResult) FailedUnits() []issue.AnalysisResult {
	var out []issue.AnalysisResult
	for _, res := range r.Results {
		if res.Failed() {
			out = append(out, res)
		}
	}
	return out
}

// AggregateProject analyzes files (root-relative slash paths). Adapters with
// a project mode run once over the whole root and their diagnostics are
// split by file; every other adapter runs per file. One file failing never
// affects the others.
func (a *Aggregator) AggregateProject(ctx context.Context, root string, files []string, source AdapterSource, languages *parser.Registry, cfg config.AnalyzerConfig) ProjectResult {
	start := time.Now()
	ctx, span := observability.Tracer.Start(ctx, "aggregate.Project")
	defer span.End()
	span.SetAttributes(attribute.String("project.root", root), attribute.Int("project.files", len(files)))

	byFile := make(map[string]string, len(files))
	present := make(map[string]bool)
	for _, f := range files {
		lang := ""
		if languages != nil {
			lang = languages.Detect(f)
		}
		byFile[f] = lang
		present[lang] = true
	}

	projectOut, failures := a.runProjectAdapters(ctx, root, present, source, cfg)

	result := ProjectResult{Root: root, Results: make([]issue.AnalysisResult, len(files)), Failures: failures}
	var g errgroup.Group
	g.SetLimit(cfg.MaxParallel())
	for i, rel := range files {
		g.Go(func() error {
			result.Results[i] = a.analyzeProjectFile(ctx, root, rel, byFile[rel], source, projectOut, cfg)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(result.Results, func(i, j int) bool { return result.Results[i].FilePath < result.Results[j].FilePath })
	result.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("project.issues", result.IssueCount()))
	return result
}

// projectRun is one project-mode adapter's output, split by file.
type projectRun struct {
	adapter ports.Adapter
	byFile  map[string][]issue.RawDiagnostic
	err     error
}

func (a *Aggregator) runProjectAdapters(ctx context.Context, root string, present map[string]bool, source AdapterSource, cfg config.AnalyzerConfig) (map[string]*projectRun, []issue.AdapterFailure) {
	selected := make(map[string]ports.ProjectAdapter)
	for lang := range present {
		for _, ad := range source.For(lang, cfg) {
			pa, ok := ad.(ports.ProjectAdapter)
			if !ok {
				continue
			}
			if pc, ok := ad.(projectCapable); ok && !pc.SupportsProject() {
				continue
			}
			selected[pa.Name()] = pa
		}
	}

	runs := make(map[string]*projectRun, len(selected))
	for name, pa := range selected {
		runs[name] = &projectRun{adapter: pa, byFile: make(map[string][]issue.RawDiagnostic)}
	}

	project := issue.Project{Root: root}
	var g errgroup.Group
	g.SetLimit(cfg.MaxParallel())
	for name, pa := range selected {
		run := runs[name]
		g.Go(func() error {
			diags, err := guardedRun(ctx, name, root, cfg.UnitTimeout(), func(ctx context.Context) ([]issue.RawDiagnostic, error) {
				return pa.AnalyzeProject(ctx, project)
			})
			if err != nil {
				run.err = err
				return nil
			}
			for _, d := range diags {
				if d.Location == nil || d.Location.File == "" {
					observability.MalformedDiagnosticsTotal.WithLabelValues(name).Inc()
					slog.Warn("project diagnostic without file dropped", "adapter", name, "rule_id", d.RuleID)
					continue
				}
				run.byFile[d.Location.File] = append(run.byFile[d.Location.File], d)
			}
			return nil
		})
	}
	_ = g.Wait()

	var failures []issue.AdapterFailure
	for _, name := range sortedRunNames(runs) {
		if err := runs[name].err; err != nil {
			failures = append(failures, issue.AdapterFailure{Adapter: name, Reason: failureReason(err)})
		}
	}
	return runs, failures
}

func sortedRunNames(runs map[string]*projectRun) []string {
	names := make([]string, 0, len(runs))
	for name := range runs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a *Aggregator) analyzeProjectFile(ctx context.Context, root, rel, language string, source AdapterSource, projectOut map[string]*projectRun, cfg config.AnalyzerConfig) issue.AnalysisResult {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		slog.Warn("skipping unreadable file", "path", rel, "error", err)
		wrapped := domainerrors.Wrap(err, domainerrors.CodeNotFound, "read source")
		return issue.AnalysisResult{
			FilePath: rel,
			Language: language,
			Issues:   []issue.Issue{},
			Err:      domainerrors.AddContext(wrapped, domainerrors.CtxPath, rel),
		}
	}

	var unitAdapters []ports.Adapter
	var pre []adapterOutput
	for _, ad := range source.For(language, cfg) {
		run, ok := projectOut[ad.Name()]
		if !ok {
			unitAdapters = append(unitAdapters, ad)
			continue
		}
		pre = append(pre, adapterOutput{adapter: run.adapter, diags: run.byFile[rel], err: run.err})
	}

	unit := issue.Unit{Path: rel, Language: language, Source: string(data)}
	return a.aggregate(ctx, unit, unitAdapters, pre, cfg)
}
