// Package cli is the coderefactor command line: analysis, fixes, history and
// the observability server.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	coreapp "coderefactor/internal/core/app"
	"coderefactor/internal/core/config"
	"coderefactor/internal/shared/observability"
)

const versionString = "1.0.0"
const defaultConfigPath = "./coderefactor.toml"

type cliOptions struct {
	configPath string
	verbose    bool
	jsonOut    bool
	color      string
}

// runtime carries what every subcommand needs. newSession is swapped in tests.
type runtime struct {
	opts       cliOptions
	cfg        *config.Config
	out        io.Writer
	errOut     io.Writer
	styles     styles
	newSession func(cfg *config.Config) (*coreapp.Session, error)
	shutdown   []func(context.Context) error
}

// Run executes the CLI and returns the process exit code.
func Run(args []string) int {
	rt := &runtime{out: os.Stdout, errOut: os.Stderr, newSession: coreapp.New}
	return execute(rt, args)
}

func execute(rt *runtime, args []string) int {
	cmd := newRootCommand(rt)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintln(rt.errOut, "error:", err)
		return 1
	}
	return 0
}

// exitError carries a non-zero exit code without an error message, as when
// analysis succeeded but found issues.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func newRootCommand(rt *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:           "coderefactor",
		Short:         "Aggregate static analysis and apply validated fixes",
		Version:       versionString,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.teardown(cmd.Context())
		},
	}
	root.SetOut(rt.out)
	root.SetErr(rt.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&rt.opts.configPath, "config", defaultConfigPath, "Path to config file (.toml, .yaml or .yml)")
	flags.BoolVar(&rt.opts.verbose, "verbose", false, "Enable verbose logging")
	flags.BoolVar(&rt.opts.jsonOut, "json", false, "Print results as JSON")
	flags.StringVar(&rt.opts.color, "color", "auto", "Colorize output (auto|on|off)")

	root.AddCommand(
		newAnalyzeCommand(rt),
		newProjectCommand(rt),
		newFixCommand(rt),
		newHistoryCommand(rt),
		newServeCommand(rt),
		newWatchCommand(rt),
		newAdaptersCommand(rt),
	)
	return root
}

func (rt *runtime) setup(ctx context.Context) error {
	configureLogging(rt.errOut, rt.opts.verbose)

	cfg, err := loadConfig(rt.opts.configPath)
	if err != nil {
		return err
	}
	rt.cfg = cfg

	color, err := useColor(rt.opts.color, rt.out)
	if err != nil {
		return err
	}
	rt.styles = newStyles(color)

	if cfg.Observability.Enabled && cfg.Observability.EnableTracing {
		stop, err := observability.InitTracing(ctx, cfg.Observability.OTLPEndpoint, versionString)
		if err != nil {
			slog.Warn("tracing disabled", "error", err)
		} else {
			rt.shutdown = append(rt.shutdown, stop)
		}
	}
	return nil
}

func (rt *runtime) teardown(ctx context.Context) error {
	for _, stop := range rt.shutdown {
		if err := stop(ctx); err != nil {
			slog.Warn("shutdown failed", "error", err)
		}
	}
	rt.shutdown = nil
	return nil
}

func configureLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads path. A missing file at the default location falls back
// to built-in defaults; environment overrides apply either way.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || path != defaultConfigPath {
			return nil, fmt.Errorf("load config: %w", err)
		}
		slog.Debug("no config file, using defaults", "path", path)
		cfg = config.Default()
	}
	config.ApplyEnvOverrides(cfg)
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func useColor(mode string, w io.Writer) (bool, error) {
	switch mode {
	case "on":
		return true, nil
	case "off":
		return false, nil
	case "auto", "":
		if os.Getenv("NO_COLOR") != "" {
			return false, nil
		}
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd())), nil
	}
	return false, fmt.Errorf("invalid --color %q (want auto, on or off)", mode)
}
