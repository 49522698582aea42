package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"coderefactor/internal/core/issue"

	"github.com/gobwas/glob"
)

// Validate returns every problem found in cfg. Load stops at the first one.
func Validate(cfg *Config) []error {
	var errs []error

	if err := validateVersion(cfg); err != nil {
		errs = append(errs, err)
	}
	if err := validateAnalysis(cfg); err != nil {
		errs = append(errs, err)
	}
	if err := validateRules(cfg); err != nil {
		errs = append(errs, err)
	}
	if err := validateAdapters(cfg); err != nil {
		errs = append(errs, err)
	}
	if err := validateOracle(cfg); err != nil {
		errs = append(errs, err)
	}
	if err := validateProject(cfg); err != nil {
		errs = append(errs, err)
	}
	if err := validateDatabase(cfg); err != nil {
		errs = append(errs, err)
	}
	if err := validateObservability(cfg); err != nil {
		errs = append(errs, err)
	}
	if err := validateSecrets(cfg); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d", cfg.Version)
	}
	return nil
}

func validateAnalysis(cfg *Config) error {
	a := cfg.Analysis
	if a.MaxIssuesPerUnit < 0 {
		return fmt.Errorf("analysis.max_issues_per_unit must be >= 0")
	}
	if a.SnippetContext != nil && *a.SnippetContext < 0 {
		return fmt.Errorf("analysis.snippet_context must be >= 0")
	}
	if a.MaxParallel > 256 {
		return fmt.Errorf("analysis.max_parallel must be <= 256")
	}
	if a.UnitTimeout > 0 && a.AdapterTimeout > a.UnitTimeout {
		return fmt.Errorf("analysis.adapter_timeout (%s) exceeds analysis.unit_timeout (%s)", a.AdapterTimeout, a.UnitTimeout)
	}
	seen := make(map[string]bool, len(a.Priority))
	for _, name := range a.Priority {
		if seen[name] {
			return fmt.Errorf("analysis.priority lists %q more than once", name)
		}
		seen[name] = true
	}
	return nil
}

func validateRules(cfg *Config) error {
	for rule, raw := range cfg.Rules.SeverityOverrides {
		if rule == "" {
			return fmt.Errorf("rules.severity_overrides contains an empty rule id")
		}
		if _, err := issue.ParseSeverity(raw); err != nil {
			return fmt.Errorf("rules.severity_overrides[%q]: %w", rule, err)
		}
	}
	return nil
}

func validateAdapters(cfg *Config) error {
	for name, settings := range cfg.Adapters {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("adapters: empty adapter name")
		}
		for i, arg := range settings.Args {
			if strings.TrimSpace(arg) == "" {
				return fmt.Errorf("adapters.%s.args[%d] must not be empty", name, i)
			}
		}
	}
	return nil
}

func validateOracle(cfg *Config) error {
	if !cfg.Oracle.Enabled {
		return nil
	}
	u, err := url.Parse(cfg.Oracle.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("oracle.endpoint %q is not an absolute URL", cfg.Oracle.Endpoint)
	}
	if cfg.Oracle.Temperature < 0 || cfg.Oracle.Temperature > 1 {
		return fmt.Errorf("oracle.temperature must be between 0 and 1")
	}
	return nil
}

func validateProject(cfg *Config) error {
	for i, pattern := range cfg.Project.Include {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("project.include[%d] %q is invalid: %w", i, pattern, err)
		}
	}
	for i, pattern := range cfg.Project.Exclude {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("project.exclude[%d] %q is invalid: %w", i, pattern, err)
		}
	}
	return nil
}

func validateDatabase(cfg *Config) error {
	if cfg.DB.Enabled && cfg.DB.Path == "" {
		return fmt.Errorf("db.path is required when db.enabled is true")
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if cfg.Observability.Port < 0 || cfg.Observability.Port > 65535 {
		return fmt.Errorf("observability.port must be between 0 and 65535")
	}
	return nil
}

func validateSecrets(cfg *Config) error {
	if cfg.Secrets.EntropyThreshold < 1.0 || cfg.Secrets.EntropyThreshold > 8.0 {
		return fmt.Errorf("secrets.entropy_threshold must be between 1.0 and 8.0")
	}
	if cfg.Secrets.MinTokenLength < 8 || cfg.Secrets.MinTokenLength > 256 {
		return fmt.Errorf("secrets.min_token_length must be between 8 and 256")
	}

	seen := make(map[string]bool, len(cfg.Secrets.Patterns))
	for i, pattern := range cfg.Secrets.Patterns {
		ref := fmt.Sprintf("secrets.patterns[%d]", i)
		name := strings.TrimSpace(pattern.Name)
		if name == "" {
			return fmt.Errorf("%s.name must not be empty", ref)
		}
		if seen[name] {
			return fmt.Errorf("duplicate secret pattern name %q", name)
		}
		seen[name] = true

		expr := strings.TrimSpace(pattern.Regex)
		if expr == "" {
			return fmt.Errorf("%s.regex must not be empty", ref)
		}
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("%s.regex is invalid: %w", ref, err)
		}
		switch strings.ToLower(strings.TrimSpace(pattern.Severity)) {
		case "", "low", "medium", "high", "critical":
		default:
			return fmt.Errorf("%s.severity %q must be one of low, medium, high, critical", ref, pattern.Severity)
		}
	}

	return nil
}
