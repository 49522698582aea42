package adapters

import (
	"fmt"
	"log/slog"
	"sort"

	"coderefactor/internal/core/config"
	"coderefactor/internal/core/ports"
	"coderefactor/internal/engine/normalize"
	"coderefactor/internal/engine/parser"
	"coderefactor/internal/engine/secrets"
)

// Registry is the static set of adapters known to a session. It is built
// once at startup and read concurrently afterwards.
type Registry struct {
	adapters map[string]ports.Adapter
	profiles normalize.Profiles
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]ports.Adapter),
		profiles: make(normalize.Profiles),
	}
}

// Register adds an adapter together with its normalization profile.
func (r *Registry) Register(adapter ports.Adapter, profile normalize.Profile) error {
	name := adapter.Name()
	if name == "" {
		return fmt.Errorf("adapter name must not be empty")
	}
	if _, dup := r.adapters[name]; dup {
		return fmt.Errorf("adapter %q already registered", name)
	}
	if profile.Name == "" {
		profile.Name = name
	}
	r.adapters[name] = adapter
	r.profiles[name] = profile
	return nil
}

func (r *Registry) Get(name string) (ports.Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the registered adapter names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every adapter sorted by name.
func (r *Registry) All() []ports.Adapter {
	out := make([]ports.Adapter, 0, len(r.adapters))
	for _, name := range r.Names() {
		out = append(out, r.adapters[name])
	}
	return out
}

// For selects the adapters that run for a language. Tools whose binary is
// missing are skipped unless the allowlist names them, in which case they
// run and their failure is reported.
func (r *Registry) For(language string, cfg config.AnalyzerConfig) []ports.Adapter {
	var out []ports.Adapter
	for _, a := range r.All() {
		if !cfg.Enabled(a.Name()) || !a.Supports(language) {
			continue
		}
		if avail, ok := a.(interface{ Available() bool }); ok && !avail.Available() && !cfg.Listed(a.Name()) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Profiles returns the normalization profiles keyed by adapter name.
func (r *Registry) Profiles() normalize.Profiles {
	out := make(normalize.Profiles, len(r.profiles))
	for name, p := range r.profiles {
		out[name] = p
	}
	return out
}

// Families lists every external tool family.
func Families() []Family {
	var out []Family
	out = append(out, PythonFamilies()...)
	out = append(out, WebFamilies()...)
	out = append(out, GoFamilies()...)
	return out
}

// Default registers the built-in adapters and one ExecAdapter per known tool
// family. Binary and argument overrides come from cfg.Adapters.
func Default(cfg *config.Config, p *parser.Parser, runner Runner) (*Registry, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if p == nil {
		var err error
		if p, err = parser.NewDefaultParser(); err != nil {
			return nil, err
		}
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	reg := NewRegistry()

	if err := reg.Register(NewSyntaxAdapter(p), syntaxProfile()); err != nil {
		return nil, err
	}
	if err := reg.Register(WhitespaceAdapter{}, whitespaceProfile()); err != nil {
		return nil, err
	}
	if cfg.Secrets.IsEnabled() {
		sc, err := secrets.NewAdapter(secretsConfig(cfg.Secrets))
		if err != nil {
			return nil, fmt.Errorf("secrets adapter: %w", err)
		}
		if err := reg.Register(sc, secrets.Profile()); err != nil {
			return nil, err
		}
	}

	for _, family := range Families() {
		settings := cfg.Adapters[family.Name]
		adapter := NewExecAdapter(family, settings.Binary, settings.Args, runner)
		if err := reg.Register(adapter, family.Profile); err != nil {
			return nil, err
		}
		slog.Debug("adapter registered", "adapter", family.Name, "binary", adapter.Family().Binary, "available", adapter.Available())
	}
	return reg, nil
}

func secretsConfig(s config.Secrets) secrets.Config {
	out := secrets.Config{
		EntropyThreshold: s.EntropyThreshold,
		MinTokenLength:   s.MinTokenLength,
	}
	for _, p := range s.Patterns {
		out.Patterns = append(out.Patterns, secrets.PatternConfig{Name: p.Name, Regex: p.Regex, Severity: p.Severity})
	}
	return out
}
