package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	coreapp "coderefactor/internal/core/app"
	"coderefactor/internal/core/config"
	"coderefactor/internal/core/issue"
	"coderefactor/internal/core/watcher"
	"coderefactor/internal/data/history"
	"coderefactor/internal/engine/apply"
	"coderefactor/internal/ui/report"
)

func (rt *runtime) session() (*coreapp.Session, error) {
	s, err := rt.newSession(rt.cfg)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return s, nil
}

// failOn turns a --fail-on threshold into an exit code of 2 when any issue
// reaches it.
func failOn(threshold string, results ...issue.AnalysisResult) error {
	if threshold == "" {
		return nil
	}
	sev, err := issue.ParseSeverity(threshold)
	if err != nil {
		return fmt.Errorf("--fail-on: %w", err)
	}
	for _, res := range results {
		for _, is := range res.Issues {
			if is.Severity >= sev {
				return exitError{code: 2}
			}
		}
	}
	return nil
}

// emit writes results as SARIF, JSON or the terminal report.
func (rt *runtime) emit(sarif bool, root string, v any, results []issue.AnalysisResult, render func()) error {
	switch {
	case sarif:
		data, err := report.GenerateSARIF(root, versionString, results)
		if err != nil {
			return fmt.Errorf("render sarif: %w", err)
		}
		_, err = rt.out.Write(append(data, '\n'))
		return err
	case rt.opts.jsonOut:
		return writeJSON(rt.out, v)
	}
	render()
	return nil
}

func newAnalyzeCommand(rt *runtime) *cobra.Command {
	var language, threshold string
	var sarif bool
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze one file with every enabled adapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rt.session()
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := analyzePath(cmd.Context(), s, args[0], language)
			if err != nil && res.FilePath == "" {
				return err
			}
			render := func() { renderResult(rt.out, rt.styles, res) }
			if eerr := rt.emit(sarif, "", res, []issue.AnalysisResult{res}, render); eerr != nil {
				return eerr
			}
			if err != nil {
				return exitError{code: 1}
			}
			return failOn(threshold, res)
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "Override language detection")
	cmd.Flags().StringVar(&threshold, "fail-on", "", "Exit with status 2 when an issue reaches this severity")
	cmd.Flags().BoolVar(&sarif, "sarif", false, "Print a SARIF 2.1.0 document")
	return cmd
}

func analyzePath(ctx context.Context, s *coreapp.Session, path, language string) (issue.AnalysisResult, error) {
	if language == "" {
		return s.AnalyzeFile(ctx, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return issue.AnalysisResult{}, fmt.Errorf("read %s: %w", path, err)
	}
	return s.Analyze(ctx, path, string(data), language)
}

func newProjectCommand(rt *runtime) *cobra.Command {
	var threshold string
	var sarif bool
	cmd := &cobra.Command{
		Use:   "project <dir>",
		Short: "Analyze every matching file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rt.session()
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.AnalyzeProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			render := func() { renderProject(rt.out, rt.styles, res) }
			if err := rt.emit(sarif, args[0], res, res.Results, render); err != nil {
				return err
			}
			return failOn(threshold, res.Results...)
		},
	}
	cmd.Flags().StringVar(&threshold, "fail-on", "", "Exit with status 2 when an issue reaches this severity")
	cmd.Flags().BoolVar(&sarif, "sarif", false, "Print a SARIF 2.1.0 document")
	return cmd
}

// resolveIssue accepts an issue id or the 1-based index printed by analyze.
func resolveIssue(res issue.AnalysisResult, ref string) (issue.Issue, error) {
	if is, ok := res.Find(ref); ok {
		return is, nil
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(res.Issues) {
			return issue.Issue{}, fmt.Errorf("issue index %d out of range 1-%d", n, len(res.Issues))
		}
		return res.Issues[n-1], nil
	}
	return issue.Issue{}, fmt.Errorf("no issue %q in %s", ref, res.FilePath)
}

type fixOutput struct {
	Candidate issue.FixCandidate    `json:"candidate"`
	Commit    *apply.Commit         `json:"commit,omitempty"`
	After     *issue.AnalysisResult `json:"after,omitempty"`
	Saved     bool                  `json:"saved"`
}

func newFixCommand(rt *runtime) *cobra.Command {
	var ref, language string
	var applyFix bool
	cmd := &cobra.Command{
		Use:   "fix <file>",
		Short: "Request a validated fix for one issue and optionally apply it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(ref) == "" {
				return errors.New("--issue is required")
			}
			ctx := cmd.Context()
			s, err := rt.session()
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := analyzePath(ctx, s, args[0], language)
			if err != nil {
				return err
			}
			target, err := resolveIssue(res, ref)
			if err != nil {
				return err
			}
			cand, err := s.RequestFix(ctx, target.ID)
			if err != nil {
				return err
			}
			out := fixOutput{Candidate: cand}
			if applyFix {
				rec, after, err := s.Commit(ctx, target.ID)
				if err != nil {
					return err
				}
				out.Commit = &rec
				out.After = &after
				if err := s.Save(rec.FilePath); err != nil {
					return err
				}
				out.Saved = true
			}

			if rt.opts.jsonOut {
				return writeJSON(rt.out, out)
			}
			renderCandidate(rt.out, rt.styles, cand)
			if out.Commit != nil {
				renderCommit(rt.out, rt.styles, *out.Commit)
				renderResult(rt.out, rt.styles, *out.After)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ref, "issue", "", "Issue id or 1-based index from analyze output")
	cmd.Flags().BoolVar(&applyFix, "apply", false, "Commit the fix and write the file")
	cmd.Flags().StringVar(&language, "language", "", "Override language detection")
	return cmd
}

func parseSince(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse("2006-01-02", raw); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid --since %q (use RFC3339 or YYYY-MM-DD)", raw)
}

func newHistoryCommand(rt *runtime) *cobra.Command {
	var since string
	var window time.Duration
	var runID int64
	cmd := &cobra.Command{
		Use:   "history <file>",
		Short: "Show recorded analysis runs for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sinceTS, err := parseSince(since)
			if err != nil {
				return err
			}
			s, err := rt.session()
			if err != nil {
				return err
			}
			defer s.Close()
			store := s.History()
			if store == nil {
				return errors.New("history is disabled; set [db] enabled = true")
			}

			if runID > 0 {
				issues, err := store.LoadIssues(runID)
				if err != nil {
					return err
				}
				if rt.opts.jsonOut {
					return writeJSON(rt.out, issues)
				}
				renderResult(rt.out, rt.styles, issue.AnalysisResult{FilePath: fmt.Sprintf("%s (run %d)", args[0], runID), Issues: issues})
				return nil
			}

			runs, err := store.LoadRuns(args[0], sinceTS)
			if err != nil {
				return err
			}
			report, err := history.BuildTrendReport(args[0], runs, window)
			if err != nil {
				return err
			}
			if rt.opts.jsonOut {
				return writeJSON(rt.out, report)
			}
			renderTrend(rt.out, rt.styles, report)
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "Only runs at or after this time (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "Moving-average window")
	cmd.Flags().Int64Var(&runID, "run", 0, "Print the issues stored for one run id")
	return cmd
}

func newServeCommand(rt *runtime) *cobra.Command {
	var addr string
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /metrics and /health until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := rt.session()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = fmt.Sprintf(":%d", rt.cfg.Observability.Port)
			}
			srv := NewObservabilityServer(addr, coreapp.NewHealthService(s))
			if err := srv.Start(ctx); err != nil {
				_ = s.Close()
				return err
			}

			if watch {
				w := config.NewWatcher(rt.opts.configPath, func(cfg *config.Config) {
					next, err := rt.newSession(cfg)
					if err != nil {
						slog.Warn("config reload rejected", "error", err)
						return
					}
					old := srv.SetHealthService(coreapp.NewHealthService(next))
					slog.Info("config reloaded", "path", rt.opts.configPath, "session_id", next.ID)
					if old != nil {
						closeSession(old)
					}
				})
				w.OnError(func(err error) { slog.Warn("config reload failed", "error", err) })
				if err := w.Start(ctx); err != nil {
					slog.Warn("config watch disabled", "error", err)
				} else {
					defer w.Stop()
				}
			}

			fmt.Fprintf(rt.out, "serving /metrics and /health on %s\n", addr)
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if h := srv.SetHealthService(nil); h != nil {
				closeSession(h)
			}
			return srv.Stop(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default :<observability.port>)")
	cmd.Flags().BoolVar(&watch, "watch-config", false, "Rebuild the session when the config file changes")
	return cmd
}

func closeSession(h *coreapp.HealthService) {
	if s := h.Session(); s != nil {
		if err := s.Close(); err != nil {
			slog.Warn("close session", "error", err)
		}
	}
}

func newWatchCommand(rt *runtime) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Re-analyze project files as they change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := rt.session()
			if err != nil {
				return err
			}
			defer s.Close()

			root := args[0]
			w, err := watcher.NewWatcher(root, s.Walker, debounce, func(paths []string) {
				rt.reanalyze(ctx, s, root, paths)
			})
			if err != nil {
				return fmt.Errorf("watch %s: %w", root, err)
			}
			defer w.Close()
			if err := w.Start(); err != nil {
				return fmt.Errorf("watch %s: %w", root, err)
			}

			fmt.Fprintf(rt.out, "watching %s\n", w.Root())
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "Quiet period before a batch of changes is analyzed")
	return cmd
}

// reanalyze runs one watcher batch. Removed files are reported and skipped.
func (rt *runtime) reanalyze(ctx context.Context, s *coreapp.Session, root string, paths []string) {
	for _, rel := range paths {
		if ctx.Err() != nil {
			return
		}
		full := filepath.Join(root, filepath.FromSlash(rel))
		if _, err := os.Stat(full); errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(rt.out, rt.styles.muted.Render(rel+" removed"))
			continue
		}
		res, err := s.AnalyzeFile(ctx, full)
		if err != nil && res.FilePath == "" {
			slog.Warn("watch analysis failed", "path", rel, "error", err)
			continue
		}
		if rt.opts.jsonOut {
			if err := writeJSON(rt.out, res); err != nil {
				slog.Warn("write result", "error", err)
			}
			continue
		}
		renderResult(rt.out, rt.styles, res)
	}
}

type adapterInfo struct {
	Name      string `json:"name"`
	Tier      string `json:"tier"`
	Enabled   bool   `json:"enabled"`
	Available bool   `json:"available"`
}

func newAdaptersCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "List registered adapters and whether their tools are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := rt.session()
			if err != nil {
				return err
			}
			defer s.Close()

			infos := make([]adapterInfo, 0)
			for _, ad := range s.Registry.All() {
				info := adapterInfo{Name: ad.Name(), Tier: ad.Tier().String(), Enabled: s.Analyzer.Enabled(ad.Name()), Available: true}
				if avail, ok := ad.(interface{ Available() bool }); ok {
					info.Available = avail.Available()
				}
				infos = append(infos, info)
			}
			if rt.opts.jsonOut {
				return writeJSON(rt.out, infos)
			}
			for _, info := range infos {
				state := rt.styles.success.Render("ready")
				switch {
				case !info.Enabled:
					state = rt.styles.muted.Render("disabled")
				case !info.Available:
					state = rt.styles.warning.Render("not installed")
				}
				fmt.Fprintf(rt.out, "%-12s %-9s %s\n", info.Name, info.Tier, state)
			}
			return nil
		},
	}
}
