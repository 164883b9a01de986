package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError is a validation error for one configuration field.
type FieldError struct {
	// Field is the dotted path to the field (e.g., "store.sqlite.path").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field error found in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate validates the whole configuration. All field errors are
// returned together in a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateCatalog(&cfg.Catalog)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateWatch(&cfg.Watch)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// NormalizeDataType maps accepted data type spellings, including the legacy
// "Claim" and "PreAuth", to "claim" or "preauth".
func NormalizeDataType(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "claim", "claims":
		return "claim", true
	case "preauth", "pre-auth", "pre_auth":
		return "preauth", true
	default:
		return "", false
	}
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError
	if _, ok := NormalizeDataType(cfg.DataType); !ok {
		errs = append(errs, FieldError{
			Field:   "audit.data_type",
			Message: fmt.Sprintf("invalid data type %q: must be 'claim' or 'preauth'", cfg.DataType),
		})
	}
	if cfg.RuleTimeout < 0 {
		errs = append(errs, FieldError{Field: "audit.rule_timeout", Message: "rule timeout cannot be negative"})
	}
	if cfg.MaxGroups < 0 {
		errs = append(errs, FieldError{Field: "audit.max_groups", Message: "max groups cannot be negative"})
	}
	if cfg.MaxDiagnostics <= 0 {
		errs = append(errs, FieldError{Field: "audit.max_diagnostics", Message: "max diagnostics must be positive"})
	}
	switch cfg.OutputFormat {
	case "csv", "jsonl":
	default:
		errs = append(errs, FieldError{
			Field:   "audit.output_format",
			Message: fmt.Sprintf("invalid output format %q: must be 'csv' or 'jsonl'", cfg.OutputFormat),
		})
	}
	return errs
}

func validateCatalog(cfg *CatalogConfig) []FieldError {
	var errs []FieldError
	switch cfg.Mode {
	case "builtin":
	case "file":
		if cfg.FilePath == "" {
			errs = append(errs, FieldError{Field: "catalog.file_path", Message: "file path is required in file mode"})
		}
	case "git":
		if cfg.Git.URL == "" && cfg.Git.LocalPath == "" {
			errs = append(errs, FieldError{Field: "catalog.git.url", Message: "url or local_path is required in git mode"})
		}
		if filepath.IsAbs(cfg.Git.Path) {
			errs = append(errs, FieldError{Field: "catalog.git.path", Message: "path must be relative to the repository root"})
		}
		if cfg.Git.PullInterval < 0 {
			errs = append(errs, FieldError{Field: "catalog.git.pull_interval", Message: "pull interval cannot be negative"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "catalog.mode",
			Message: fmt.Sprintf("invalid catalog mode %q: must be 'builtin', 'file', or 'git'", cfg.Mode),
		})
	}
	if cfg.Debounce < 0 {
		errs = append(errs, FieldError{Field: "catalog.debounce", Message: "debounce cannot be negative"})
	}
	return errs
}

func validateStore(cfg *StoreConfig) []FieldError {
	var errs []FieldError
	if !cfg.Enabled {
		return nil
	}

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "store.sqlite.path", Message: "database path is required"})
		}
		if cfg.SQLite.Driver != "sqlite3" && cfg.SQLite.Driver != "sqlite" {
			errs = append(errs, FieldError{
				Field:   "store.sqlite.driver",
				Message: fmt.Sprintf("invalid driver %q: must be 'sqlite3' or 'sqlite'", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{Field: "store.sqlite.busy_timeout", Message: "busy timeout cannot be negative"})
		}
	case "postgres":
		if cfg.Postgres.URL == "" {
			errs = append(errs, FieldError{Field: "store.postgres.url", Message: "connection url is required"})
		}
		if cfg.Postgres.MaxConns < 0 {
			errs = append(errs, FieldError{Field: "store.postgres.max_conns", Message: "max conns cannot be negative"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "store.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory', 'sqlite', or 'postgres'", cfg.Backend),
		})
	}

	r := &cfg.Retention
	if r.Days < 0 {
		errs = append(errs, FieldError{Field: "store.retention.days", Message: "retention days cannot be negative"})
	}
	if r.MaxRuns < 0 {
		errs = append(errs, FieldError{Field: "store.retention.max_runs", Message: "max runs cannot be negative"})
	}
	if _, err := cron.ParseStandard(r.Schedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "store.retention.schedule",
			Message: fmt.Sprintf("invalid cron expression %q: %v", r.Schedule, err),
		})
	}
	if r.Archive && r.ArchivePath == "" {
		errs = append(errs, FieldError{Field: "store.retention.archive_path", Message: "archive path is required when archiving"})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json', 'text', or 'console'", cfg.Logging.Format),
		})
	}
	for i, p := range cfg.Logging.RedactPatterns {
		field := fmt.Sprintf("telemetry.logging.redact_patterns[%d]", i)
		if p.Name == "" {
			errs = append(errs, FieldError{Field: field + ".name", Message: "pattern name is required"})
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			errs = append(errs, FieldError{Field: field + ".pattern", Message: fmt.Sprintf("invalid regex: %v", err)})
		}
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "metrics path must start with '/'"})
	}

	tr := &cfg.Tracing
	if tr.Enabled {
		switch tr.Sampler {
		case "always", "never":
		case "ratio":
			if tr.SampleRatio < 0 || tr.SampleRatio > 1 {
				errs = append(errs, FieldError{
					Field:   "telemetry.tracing.sample_ratio",
					Message: fmt.Sprintf("sample ratio must be between 0.0 and 1.0, got %v", tr.SampleRatio),
				})
			}
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", tr.Sampler),
			})
		}
		if tr.Exporter != "otlp" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.exporter",
				Message: fmt.Sprintf("unsupported exporter %q: only 'otlp' is available", tr.Exporter),
			})
		}
		if tr.Endpoint == "" {
			errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
		}
	}
	return errs
}

func validateWatch(cfg *WatchConfig) []FieldError {
	var errs []FieldError
	if cfg.Inbox == "" {
		errs = append(errs, FieldError{Field: "watch.inbox", Message: "inbox directory is required"})
	}
	if cfg.Output == "" {
		errs = append(errs, FieldError{Field: "watch.output", Message: "output directory is required"})
	}
	if cfg.Inbox != "" && filepath.Clean(cfg.Inbox) == filepath.Clean(cfg.Output) {
		errs = append(errs, FieldError{Field: "watch.output", Message: "output directory must differ from the inbox"})
	}
	if _, err := filepath.Match(cfg.Pattern, "probe"); err != nil {
		errs = append(errs, FieldError{Field: "watch.pattern", Message: fmt.Sprintf("invalid glob %q: %v", cfg.Pattern, err)})
	}
	if cfg.Settle < 0 {
		errs = append(errs, FieldError{Field: "watch.settle", Message: "settle duration cannot be negative"})
	}
	return errs
}
