package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CLAIMAUDIT_"

// LoadConfig loads configuration from the YAML file at path, applies
// defaults and validates the result. Environment variables are not
// consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := NewDefault()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration and applies environment
// variable overrides. Variables follow CLAIMAUDIT_SECTION_FIELD, for example
// CLAIMAUDIT_STORE_SQLITE_PATH, and take precedence over the file. An empty
// path starts from the defaults.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = NewDefault()
	} else {
		var err error
		if cfg, err = LoadConfig(path); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment overrides to cfg. A variable that
// is set but cannot be parsed is an error.
func applyEnvOverrides(cfg *Config) error {
	env := &envReader{}

	// Audit overrides
	env.String("AUDIT_DATA_TYPE", &cfg.Audit.DataType)
	env.String("AUDIT_INSURER", &cfg.Audit.Insurer)
	env.Bool("AUDIT_MANUAL_HANDLING", &cfg.Audit.ManualHandling)
	env.Bool("AUDIT_DAY_FIRST", &cfg.Audit.DayFirst)
	env.Duration("AUDIT_RULE_TIMEOUT", &cfg.Audit.RuleTimeout)
	env.String("AUDIT_OUTPUT_FORMAT", &cfg.Audit.OutputFormat)

	// Catalog overrides
	env.String("CATALOG_MODE", &cfg.Catalog.Mode)
	env.String("CATALOG_FILE_PATH", &cfg.Catalog.FilePath)
	env.Bool("CATALOG_STRICT", &cfg.Catalog.Strict)
	env.String("CATALOG_GIT_URL", &cfg.Catalog.Git.URL)
	env.String("CATALOG_GIT_BRANCH", &cfg.Catalog.Git.Branch)
	env.String("CATALOG_GIT_PATH", &cfg.Catalog.Git.Path)
	env.String("CATALOG_GIT_TOKEN", &cfg.Catalog.Git.Token)

	// Store overrides
	env.Bool("STORE_ENABLED", &cfg.Store.Enabled)
	env.String("STORE_BACKEND", &cfg.Store.Backend)
	env.String("STORE_SQLITE_PATH", &cfg.Store.SQLite.Path)
	env.String("STORE_SQLITE_DRIVER", &cfg.Store.SQLite.Driver)
	env.String("STORE_POSTGRES_URL", &cfg.Store.Postgres.URL)
	env.Int("STORE_RETENTION_DAYS", &cfg.Store.Retention.Days)
	env.Int64("STORE_RETENTION_MAX_RUNS", &cfg.Store.Retention.MaxRuns)

	// Telemetry overrides
	env.String("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	env.String("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	env.Bool("TELEMETRY_LOGGING_REDACT_PII", &cfg.Telemetry.Logging.RedactPII)
	env.Bool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	env.Bool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	env.String("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	env.Float("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)

	// Watch overrides
	env.String("WATCH_INBOX", &cfg.Watch.Inbox)
	env.String("WATCH_OUTPUT", &cfg.Watch.Output)
	env.String("WATCH_LISTEN_ADDRESS", &cfg.Watch.ListenAddress)

	if len(env.errs) > 0 {
		return ValidationError{Errors: env.errs}
	}
	return nil
}

type envReader struct {
	errs []FieldError
}

func (r *envReader) lookup(name string) (string, bool) {
	val := os.Getenv(EnvPrefix + name)
	return val, val != ""
}

func (r *envReader) fail(name string, err error) {
	r.errs = append(r.errs, FieldError{Field: EnvPrefix + name, Message: err.Error()})
}

func (r *envReader) String(name string, dst *string) {
	if val, ok := r.lookup(name); ok {
		*dst = val
	}
}

func (r *envReader) Bool(name string, dst *bool) {
	if val, ok := r.lookup(name); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			r.fail(name, err)
			return
		}
		*dst = b
	}
}

func (r *envReader) Int(name string, dst *int) {
	if val, ok := r.lookup(name); ok {
		i, err := strconv.Atoi(val)
		if err != nil {
			r.fail(name, err)
			return
		}
		*dst = i
	}
}

func (r *envReader) Int64(name string, dst *int64) {
	if val, ok := r.lookup(name); ok {
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			r.fail(name, err)
			return
		}
		*dst = i
	}
}

func (r *envReader) Float(name string, dst *float64) {
	if val, ok := r.lookup(name); ok {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			r.fail(name, err)
			return
		}
		*dst = f
	}
}

func (r *envReader) Duration(name string, dst *time.Duration) {
	if val, ok := r.lookup(name); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			r.fail(name, err)
			return
		}
		*dst = d
	}
}
