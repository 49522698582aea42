package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	defaultMaxIssuesPerUnit = 200
	defaultSnippetContext   = 1
	defaultAdapterTimeout   = 30 * time.Second
	defaultUnitTimeout      = 2 * time.Minute
	defaultMaxParallel      = 8
	defaultOracleTimeout    = 60 * time.Second
	defaultRetryBackoff     = 500 * time.Millisecond
)

// Load reads a configuration file. Files ending in .yaml or .yml are decoded
// as YAML, everything else as TOML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses raw configuration bytes, applies defaults and validates the
// result. ext selects the format.
func Decode(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	default:
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(&cfg)
	normalize(&cfg)

	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, errs[0]
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	normalize(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if cfg.Analysis.MaxIssuesPerUnit == 0 {
		cfg.Analysis.MaxIssuesPerUnit = defaultMaxIssuesPerUnit
	}
	if cfg.Analysis.SnippetContext == nil {
		k := defaultSnippetContext
		cfg.Analysis.SnippetContext = &k
	}
	if cfg.Analysis.AdapterTimeout <= 0 {
		cfg.Analysis.AdapterTimeout = defaultAdapterTimeout
	}
	if cfg.Analysis.UnitTimeout <= 0 {
		cfg.Analysis.UnitTimeout = defaultUnitTimeout
	}
	if cfg.Analysis.MaxParallel <= 0 {
		cfg.Analysis.MaxParallel = defaultMaxParallel
	}

	if cfg.Fix.OracleTimeout <= 0 {
		cfg.Fix.OracleTimeout = defaultOracleTimeout
	}
	if cfg.Fix.RetryBackoff <= 0 {
		cfg.Fix.RetryBackoff = defaultRetryBackoff
	}

	if strings.TrimSpace(cfg.Oracle.Endpoint) == "" {
		cfg.Oracle.Endpoint = "https://api.anthropic.com/v1/messages"
	}
	if strings.TrimSpace(cfg.Oracle.Model) == "" {
		cfg.Oracle.Model = "claude-3-7-sonnet-20250219"
	}
	if strings.TrimSpace(cfg.Oracle.APIKeyEnv) == "" {
		cfg.Oracle.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if cfg.Oracle.MaxTokens <= 0 {
		cfg.Oracle.MaxTokens = 4000
	}
	if cfg.Oracle.Temperature == 0 {
		cfg.Oracle.Temperature = 0.3
	}
	if cfg.Oracle.Rate <= 0 {
		cfg.Oracle.Rate = 1
	}
	if cfg.Oracle.Burst <= 0 {
		cfg.Oracle.Burst = 2
	}

	if len(cfg.Project.Exclude) == 0 {
		cfg.Project.Exclude = []string{
			"**/.git/**", "**/node_modules/**", "**/__pycache__/**",
			"**/vendor/**", "**/.venv/**", "**/dist/**",
		}
	}

	if strings.TrimSpace(cfg.DB.Path) == "" {
		cfg.DB.Path = "data/coderefactor.db"
	}
	if cfg.DB.BusyTimeout <= 0 {
		cfg.DB.BusyTimeout = 5 * time.Second
	}

	if cfg.Observability.Port == 0 {
		cfg.Observability.Port = 9464
	}

	if cfg.Secrets.EntropyThreshold <= 0 {
		cfg.Secrets.EntropyThreshold = 4.0
	}
	if cfg.Secrets.MinTokenLength <= 0 {
		cfg.Secrets.MinTokenLength = 20
	}
}

func normalize(cfg *Config) {
	cfg.Analysis.EnabledAdapters = trimList(cfg.Analysis.EnabledAdapters)
	cfg.Analysis.Priority = trimList(cfg.Analysis.Priority)
	cfg.Rules.Suppressed = trimList(cfg.Rules.Suppressed)
	cfg.Project.Include = trimList(cfg.Project.Include)
	cfg.Project.Exclude = trimList(cfg.Project.Exclude)

	if len(cfg.Rules.SeverityOverrides) > 0 {
		normalized := make(map[string]string, len(cfg.Rules.SeverityOverrides))
		for rule, sev := range cfg.Rules.SeverityOverrides {
			normalized[strings.TrimSpace(rule)] = strings.ToLower(strings.TrimSpace(sev))
		}
		cfg.Rules.SeverityOverrides = normalized
	}

	cfg.Oracle.Endpoint = strings.TrimSpace(cfg.Oracle.Endpoint)
	cfg.Oracle.Model = strings.TrimSpace(cfg.Oracle.Model)
	cfg.Oracle.APIKeyEnv = strings.TrimSpace(cfg.Oracle.APIKeyEnv)
	cfg.DB.Path = strings.TrimSpace(cfg.DB.Path)
	cfg.Observability.OTLPEndpoint = strings.TrimSpace(cfg.Observability.OTLPEndpoint)

	for name, settings := range cfg.Adapters {
		settings.Binary = strings.TrimSpace(settings.Binary)
		cfg.Adapters[name] = settings
	}
}

func trimList(values []string) []string {
	if len(values) == 0 {
		return values
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
