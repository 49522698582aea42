package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: CODEREFACTOR_[SECTION]_[KEY] (e.g., CODEREFACTOR_ANALYSIS_MAX_PARALLEL).
func ApplyEnvOverrides(cfg *Config) {
	// Analysis
	setEnvList(&cfg.Analysis.EnabledAdapters, "CODEREFACTOR_ANALYSIS_ENABLED_ADAPTERS")
	setEnvInt(&cfg.Analysis.MaxIssuesPerUnit, "CODEREFACTOR_ANALYSIS_MAX_ISSUES_PER_UNIT")
	setEnvBool(&cfg.Analysis.IncludeHidden, "CODEREFACTOR_ANALYSIS_INCLUDE_HIDDEN")
	setEnvDuration(&cfg.Analysis.AdapterTimeout, "CODEREFACTOR_ANALYSIS_ADAPTER_TIMEOUT")
	setEnvDuration(&cfg.Analysis.UnitTimeout, "CODEREFACTOR_ANALYSIS_UNIT_TIMEOUT")
	setEnvInt(&cfg.Analysis.MaxParallel, "CODEREFACTOR_ANALYSIS_MAX_PARALLEL")
	if val, ok := os.LookupEnv("CODEREFACTOR_ANALYSIS_SNIPPET_CONTEXT"); ok {
		if k, err := strconv.Atoi(val); err == nil {
			log.Printf("Applying env override: %s=%s", "CODEREFACTOR_ANALYSIS_SNIPPET_CONTEXT", val)
			cfg.Analysis.SnippetContext = &k
		}
	}

	// Rules
	setEnvList(&cfg.Rules.Suppressed, "CODEREFACTOR_RULES_SUPPRESSED")

	// Fix
	setEnvDuration(&cfg.Fix.OracleTimeout, "CODEREFACTOR_FIX_ORACLE_TIMEOUT")
	setEnvDuration(&cfg.Fix.RetryBackoff, "CODEREFACTOR_FIX_RETRY_BACKOFF")
	setEnvBool(&cfg.Fix.OracleForManual, "CODEREFACTOR_FIX_ORACLE_FOR_MANUAL")

	// Oracle
	setEnvBool(&cfg.Oracle.Enabled, "CODEREFACTOR_ORACLE_ENABLED")
	setEnvString(&cfg.Oracle.Endpoint, "CODEREFACTOR_ORACLE_ENDPOINT")
	setEnvString(&cfg.Oracle.Model, "CODEREFACTOR_ORACLE_MODEL")
	setEnvString(&cfg.Oracle.APIKeyEnv, "CODEREFACTOR_ORACLE_API_KEY_ENV")
	setEnvInt(&cfg.Oracle.MaxTokens, "CODEREFACTOR_ORACLE_MAX_TOKENS")
	setEnvFloat64(&cfg.Oracle.Temperature, "CODEREFACTOR_ORACLE_TEMPERATURE")
	setEnvFloat64(&cfg.Oracle.Rate, "CODEREFACTOR_ORACLE_RATE")
	setEnvInt(&cfg.Oracle.Burst, "CODEREFACTOR_ORACLE_BURST")

	// Database
	setEnvBool(&cfg.DB.Enabled, "CODEREFACTOR_DB_ENABLED")
	setEnvString(&cfg.DB.Path, "CODEREFACTOR_DB_PATH")
	setEnvDuration(&cfg.DB.BusyTimeout, "CODEREFACTOR_DB_BUSY_TIMEOUT")

	// Secrets
	setEnvFloat64(&cfg.Secrets.EntropyThreshold, "CODEREFACTOR_SECRETS_ENTROPY_THRESHOLD")
	setEnvInt(&cfg.Secrets.MinTokenLength, "CODEREFACTOR_SECRETS_MIN_TOKEN_LENGTH")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "CODEREFACTOR_OBSERVABILITY_ENABLED")
	setEnvInt(&cfg.Observability.Port, "CODEREFACTOR_OBSERVABILITY_PORT")
	setEnvString(&cfg.Observability.OTLPEndpoint, "CODEREFACTOR_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.EnableTracing, "CODEREFACTOR_OBSERVABILITY_ENABLE_TRACING")
	setEnvBool(&cfg.Observability.EnableMetrics, "CODEREFACTOR_OBSERVABILITY_ENABLE_METRICS")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		log.Printf("Applying env override: %s=%s", key, val)
		*target = val
	}
}

// setEnvList splits a comma separated value.
func setEnvList(target *[]string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		log.Printf("Applying env override: %s=%s", key, val)
		*target = trimList(strings.Split(val, ","))
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			log.Printf("Applying env override: %s=%s", key, val)
			*target = d
		}
	}
}
