// Package config loads the analyzer configuration from TOML or YAML files.
package config

import (
	"sort"
	"strings"
	"time"

	"coderefactor/internal/core/issue"
)

type Config struct {
	Version       int                        `toml:"version" yaml:"version"`
	Analysis      Analysis                   `toml:"analysis" yaml:"analysis"`
	Rules         Rules                      `toml:"rules" yaml:"rules"`
	Adapters      map[string]AdapterSettings `toml:"adapters" yaml:"adapters"`
	Fix           Fix                        `toml:"fix" yaml:"fix"`
	Oracle        Oracle                     `toml:"oracle" yaml:"oracle"`
	Project       Project                    `toml:"project" yaml:"project"`
	DB            Database                   `toml:"db" yaml:"db"`
	Observability Observability              `toml:"observability" yaml:"observability"`
	Secrets       Secrets                    `toml:"secrets" yaml:"secrets"`
}

type Analysis struct {
	EnabledAdapters  []string      `toml:"enabled_adapters" yaml:"enabled_adapters"`
	MaxIssuesPerUnit int           `toml:"max_issues_per_unit" yaml:"max_issues_per_unit"`
	IncludeHidden    bool          `toml:"include_hidden" yaml:"include_hidden"`
	SnippetContext   *int          `toml:"snippet_context" yaml:"snippet_context"`
	AdapterTimeout   time.Duration `toml:"adapter_timeout" yaml:"adapter_timeout"`
	UnitTimeout      time.Duration `toml:"unit_timeout" yaml:"unit_timeout"`
	MaxParallel      int           `toml:"max_parallel" yaml:"max_parallel"`
	// Priority lists adapter names from most to least trusted. Adapters not
	// listed fall back to their tier.
	Priority []string `toml:"priority" yaml:"priority"`
}

type Rules struct {
	Suppressed        []string          `toml:"suppressed" yaml:"suppressed"`
	SeverityOverrides map[string]string `toml:"severity_overrides" yaml:"severity_overrides"`
}

type AdapterSettings struct {
	Enabled *bool    `toml:"enabled" yaml:"enabled"`
	Binary  string   `toml:"binary" yaml:"binary"`
	Args    []string `toml:"args" yaml:"args"`
}

type Fix struct {
	OracleTimeout time.Duration `toml:"oracle_timeout" yaml:"oracle_timeout"`
	RetryBackoff  time.Duration `toml:"retry_backoff" yaml:"retry_backoff"`
	// OracleForManual lets manual issues be routed to the oracle as well.
	OracleForManual bool `toml:"oracle_for_manual" yaml:"oracle_for_manual"`
}

type Oracle struct {
	Enabled     bool    `toml:"enabled" yaml:"enabled"`
	Endpoint    string  `toml:"endpoint" yaml:"endpoint"`
	Model       string  `toml:"model" yaml:"model"`
	APIKeyEnv   string  `toml:"api_key_env" yaml:"api_key_env"`
	MaxTokens   int     `toml:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `toml:"temperature" yaml:"temperature"`
	Rate        float64 `toml:"rate" yaml:"rate"`
	Burst       int     `toml:"burst" yaml:"burst"`
}

type Project struct {
	Include []string `toml:"include" yaml:"include"`
	Exclude []string `toml:"exclude" yaml:"exclude"`
}

type Database struct {
	Enabled     bool          `toml:"enabled" yaml:"enabled"`
	Path        string        `toml:"path" yaml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout" yaml:"busy_timeout"`
}

type Observability struct {
	Enabled       bool   `toml:"enabled" yaml:"enabled"`
	Port          int    `toml:"port" yaml:"port"`
	OTLPEndpoint  string `toml:"otlp_endpoint" yaml:"otlp_endpoint"`
	EnableTracing bool   `toml:"enable_tracing" yaml:"enable_tracing"`
	EnableMetrics bool   `toml:"enable_metrics" yaml:"enable_metrics"`
}

type Secrets struct {
	Enabled          *bool           `toml:"enabled" yaml:"enabled"`
	EntropyThreshold float64         `toml:"entropy_threshold" yaml:"entropy_threshold"`
	MinTokenLength   int             `toml:"min_token_length" yaml:"min_token_length"`
	Patterns         []SecretPattern `toml:"patterns" yaml:"patterns"`
}

type SecretPattern struct {
	Name     string `toml:"name" yaml:"name"`
	Regex    string `toml:"regex" yaml:"regex"`
	Severity string `toml:"severity" yaml:"severity"`
}

// AdapterEnabled reports whether the named adapter may run. An empty
// enabled_adapters list enables everything not switched off explicitly.
func (c *Config) AdapterEnabled(name string) bool {
	if settings, ok := c.Adapters[name]; ok && settings.Enabled != nil && !*settings.Enabled {
		return false
	}
	if len(c.Analysis.EnabledAdapters) == 0 {
		return true
	}
	for _, enabled := range c.Analysis.EnabledAdapters {
		if enabled == name {
			return true
		}
	}
	return false
}

func (s Secrets) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// AnalyzerConfig is the immutable view of the analysis settings handed to a
// session. Reloading the file never mutates an existing snapshot.
type AnalyzerConfig struct {
	enabled        map[string]struct{}
	disabled       map[string]struct{}
	overrides      map[string]issue.Severity
	suppressed     map[string]struct{}
	priority       map[string]int
	maxIssues      int
	includeHidden  bool
	snippetContext int
	adapterTimeout time.Duration
	unitTimeout    time.Duration
	maxParallel    int
}

// AnalyzerOptions are the inputs of NewAnalyzerConfig. Zero values pick the
// defaults used by Load.
type AnalyzerOptions struct {
	EnabledAdapters   []string
	DisabledAdapters  []string
	SeverityOverrides map[string]issue.Severity
	Suppressed        []string
	Priority          []string
	MaxIssuesPerUnit  int
	IncludeHidden     bool
	SnippetContext    int
	AdapterTimeout    time.Duration
	UnitTimeout       time.Duration
	MaxParallel       int
}

func NewAnalyzerConfig(opts AnalyzerOptions) AnalyzerConfig {
	ac := AnalyzerConfig{
		enabled:        make(map[string]struct{}, len(opts.EnabledAdapters)),
		disabled:       make(map[string]struct{}, len(opts.DisabledAdapters)),
		overrides:      make(map[string]issue.Severity, len(opts.SeverityOverrides)),
		suppressed:     make(map[string]struct{}, len(opts.Suppressed)),
		priority:       make(map[string]int, len(opts.Priority)),
		maxIssues:      opts.MaxIssuesPerUnit,
		includeHidden:  opts.IncludeHidden,
		snippetContext: opts.SnippetContext,
		adapterTimeout: opts.AdapterTimeout,
		unitTimeout:    opts.UnitTimeout,
		maxParallel:    opts.MaxParallel,
	}
	for _, name := range opts.EnabledAdapters {
		ac.enabled[strings.TrimSpace(name)] = struct{}{}
	}
	for _, name := range opts.DisabledAdapters {
		ac.disabled[strings.TrimSpace(name)] = struct{}{}
	}
	for rule, sev := range opts.SeverityOverrides {
		ac.overrides[rule] = sev
	}
	for _, rule := range opts.Suppressed {
		ac.suppressed[strings.TrimSpace(rule)] = struct{}{}
	}
	for i, name := range opts.Priority {
		if _, dup := ac.priority[name]; !dup {
			ac.priority[name] = i
		}
	}
	if ac.snippetContext < 0 {
		ac.snippetContext = 0
	}
	if ac.adapterTimeout <= 0 {
		ac.adapterTimeout = defaultAdapterTimeout
	}
	if ac.maxParallel <= 0 {
		ac.maxParallel = defaultMaxParallel
	}
	return ac
}

// Analyzer snapshots the analysis related sections.
func (c *Config) Analyzer() AnalyzerConfig {
	overrides := make(map[string]issue.Severity, len(c.Rules.SeverityOverrides))
	for rule, raw := range c.Rules.SeverityOverrides {
		if sev, err := issue.ParseSeverity(raw); err == nil {
			overrides[rule] = sev
		}
	}
	var disabled []string
	for _, name := range sortedKeys(c.Adapters) {
		if !c.AdapterEnabled(name) {
			disabled = append(disabled, name)
		}
	}
	snippet := defaultSnippetContext
	if c.Analysis.SnippetContext != nil {
		snippet = *c.Analysis.SnippetContext
	}
	return NewAnalyzerConfig(AnalyzerOptions{
		EnabledAdapters:   c.Analysis.EnabledAdapters,
		DisabledAdapters:  disabled,
		SeverityOverrides: overrides,
		Suppressed:        c.Rules.Suppressed,
		Priority:          c.Analysis.Priority,
		MaxIssuesPerUnit:  c.Analysis.MaxIssuesPerUnit,
		IncludeHidden:     c.Analysis.IncludeHidden,
		SnippetContext:    snippet,
		AdapterTimeout:    c.Analysis.AdapterTimeout,
		UnitTimeout:       c.Analysis.UnitTimeout,
		MaxParallel:       c.Analysis.MaxParallel,
	})
}

// Enabled reports whether the adapter may take part in analysis.
func (a AnalyzerConfig) Enabled(name string) bool {
	if _, off := a.disabled[name]; off {
		return false
	}
	if len(a.enabled) == 0 {
		return true
	}
	_, ok := a.enabled[name]
	return ok
}

// Listed reports whether the adapter was named in the enabled_adapters
// allowlist.
func (a AnalyzerConfig) Listed(name string) bool {
	_, ok := a.enabled[name]
	return ok
}

func (a AnalyzerConfig) Suppressed(ruleID string) bool {
	_, ok := a.suppressed[ruleID]
	return ok
}

func (a AnalyzerConfig) SeverityOverride(ruleID string) (issue.Severity, bool) {
	sev, ok := a.overrides[ruleID]
	return sev, ok
}

// PriorityRank returns the configured position of an adapter in the
// priority list.
func (a AnalyzerConfig) PriorityRank(name string) (int, bool) {
	rank, ok := a.priority[name]
	return rank, ok
}

func (a AnalyzerConfig) MaxIssuesPerUnit() int         { return a.maxIssues }
func (a AnalyzerConfig) IncludeHidden() bool           { return a.includeHidden }
func (a AnalyzerConfig) SnippetContext() int           { return a.snippetContext }
func (a AnalyzerConfig) AdapterTimeout() time.Duration { return a.adapterTimeout }
func (a AnalyzerConfig) UnitTimeout() time.Duration    { return a.unitTimeout }
func (a AnalyzerConfig) MaxParallel() int              { return a.maxParallel }

// SuppressedRules lists the suppressed rule ids in sorted order.
func (a AnalyzerConfig) SuppressedRules() []string {
	out := make([]string, 0, len(a.suppressed))
	for rule := range a.suppressed {
		out = append(out, rule)
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]AdapterSettings) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
