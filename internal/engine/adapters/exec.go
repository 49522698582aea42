package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"coderefactor/internal/core/issue"
	"coderefactor/internal/core/ports"
	"coderefactor/internal/shared/util"
)

// Invocation is one external process run.
type Invocation struct {
	Binary string
	Args   []string
	Dir    string
	Stdin  []byte
}

// Output is what a finished process produced.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes external processes. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Output, error)
	LookPath(binary string) (string, error)
}

// ExecRunner runs processes with os/exec. The process is killed when ctx is
// done.
type ExecRunner struct {
	// WaitDelay bounds how long pipes may stay open after the kill.
	WaitDelay time.Duration
}

func (r ExecRunner) LookPath(binary string) (string, error) {
	return exec.LookPath(binary)
}

func (r ExecRunner) Run(ctx context.Context, inv Invocation) (Output, error) {
	cmd := exec.CommandContext(ctx, inv.Binary, inv.Args...)
	cmd.Dir = inv.Dir
	if inv.Stdin != nil {
		cmd.Stdin = bytes.NewReader(inv.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 2 * time.Second
	}

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Linters exit non-zero when they report findings.
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	return out, err
}

// ExecAdapter runs one Family. It implements ports.Adapter, and
// ports.ProjectAdapter when the family declares project arguments.
type ExecAdapter struct {
	family Family
	extra  []string
	runner Runner
}

// NewExecAdapter binds a family to a runner. binary and extra come from the
// [adapters.<name>] config section and may be empty.
func NewExecAdapter(family Family, binary string, extra []string, runner Runner) *ExecAdapter {
	if binary != "" {
		family.Binary = binary
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &ExecAdapter{family: family, extra: append([]string(nil), extra...), runner: runner}
}

func (a *ExecAdapter) Name() string                  { return a.family.Name }
func (a *ExecAdapter) Tier() ports.AdapterTier       { return a.family.Tier }
func (a *ExecAdapter) Supports(language string) bool { return a.family.supports(language) }
func (a *ExecAdapter) Family() Family                { return a.family }

// Available reports whether the tool binary can be found.
func (a *ExecAdapter) Available() bool {
	_, err := a.runner.LookPath(a.family.Binary)
	return err == nil
}

// SupportsProject reports whether the family has a project mode.
func (a *ExecAdapter) SupportsProject() bool {
	return len(a.family.ProjectArgs) > 0
}

// AnalyzeUnit writes the unit to a private temp directory (unless the tool
// reads stdin) so the analyzer never touches the caller's file.
func (a *ExecAdapter) AnalyzeUnit(ctx context.Context, unit issue.Unit) ([]issue.RawDiagnostic, error) {
	binary, err := a.runner.LookPath(a.family.Binary)
	if err != nil {
		return nil, fmt.Errorf("%s: binary %q not found: %w", a.family.Name, a.family.Binary, err)
	}

	name := unitFileName(unit)
	dir, err := os.MkdirTemp("", "coderefactor-"+a.family.Name+"-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	inv := Invocation{Binary: binary, Dir: dir}
	target := filepath.Join(dir, name)
	vars := map[string]string{PlaceholderFile: target, PlaceholderStdin: name, PlaceholderRoot: dir}
	if a.family.Stdin {
		inv.Stdin = []byte(unit.Source)
		inv.Args = expandArgs(a.family.Args, a.extra, vars, "")
	} else {
		if err := os.WriteFile(target, []byte(unit.Source), 0o600); err != nil {
			return nil, err
		}
		inv.Args = expandArgs(a.family.Args, a.extra, vars, target)
	}

	out, err := a.runner.Run(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.family.Name, err)
	}
	diags, err := a.parse(out, unitPathMapper(name))
	if err != nil || !a.family.UTF16Edits {
		return diags, err
	}
	rebaseEdits(diags, unit.Source)
	return diags, nil
}

// AnalyzeProject runs the tool once over the project root. Diagnostic paths
// are reported relative to the root.
func (a *ExecAdapter) AnalyzeProject(ctx context.Context, project issue.Project) ([]issue.RawDiagnostic, error) {
	if !a.SupportsProject() {
		return nil, fmt.Errorf("%s: project analysis not supported", a.family.Name)
	}
	binary, err := a.runner.LookPath(a.family.Binary)
	if err != nil {
		return nil, fmt.Errorf("%s: binary %q not found: %w", a.family.Name, a.family.Binary, err)
	}
	root, err := filepath.Abs(project.Root)
	if err != nil {
		return nil, err
	}
	vars := map[string]string{PlaceholderRoot: root}
	inv := Invocation{
		Binary: binary,
		Dir:    root,
		Args:   expandArgs(a.family.ProjectArgs, a.extra, vars, root),
	}
	out, err := a.runner.Run(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.family.Name, err)
	}
	diags, err := a.parse(out, projectPathMapper(root))
	if err != nil || !a.family.UTF16Edits {
		return diags, err
	}
	rebaseProjectEdits(root, diags)
	return diags, nil
}

func (a *ExecAdapter) parse(out Output, paths PathMapper) ([]issue.RawDiagnostic, error) {
	payload := out.Stdout
	if a.family.Stderr {
		payload = out.Stderr
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		if out.ExitCode != 0 {
			return nil, fmt.Errorf("%s exited with status %d: %s", a.family.Name, out.ExitCode, firstLine(out.Stderr))
		}
		return nil, nil
	}
	diags, err := a.family.Parse(payload, paths)
	if err != nil {
		return nil, fmt.Errorf("%s: parse output: %w", a.family.Name, err)
	}
	return diags, nil
}

func unitFileName(unit issue.Unit) string {
	base := filepath.Base(unit.Path)
	if unit.Path == "" || unit.Path == issue.BufferPath || base == "." || base == string(filepath.Separator) {
		return "buffer" + defaultExtension(unit.Language)
	}
	return base
}

func defaultExtension(language string) string {
	switch language {
	case "python":
		return ".py"
	case "javascript":
		return ".js"
	case "typescript":
		return ".ts"
	case "tsx":
		return ".tsx"
	case "css":
		return ".css"
	case "scss":
		return ".scss"
	case "html":
		return ".html"
	case "go":
		return ".go"
	}
	return ".txt"
}

// unitPathMapper keeps diagnostics for the unit's own file and records them
// without a path so the normalizer substitutes the unit path.
func unitPathMapper(name string) PathMapper {
	return func(toolPath string) (string, bool) {
		switch toolPath {
		case "", "-", "<stdin>", "<text>", "<input>":
			return "", true
		}
		return "", filepath.Base(toolPath) == name
	}
}

func projectPathMapper(root string) PathMapper {
	return func(toolPath string) (string, bool) {
		if toolPath == "" {
			return "", false
		}
		if !filepath.IsAbs(toolPath) {
			toolPath = filepath.Join(root, toolPath)
		}
		rel := util.RelativeSlashPath(root, toolPath)
		if strings.HasPrefix(rel, "/") {
			return rel, false
		}
		return rel, true
	}
}

func firstLine(b []byte) string {
	line, _, _ := strings.Cut(strings.TrimSpace(string(b)), "\n")
	if line == "" {
		return "no output"
	}
	return line
}
