package config

import (
	"time"

	"mercator-hq/claimaudit/pkg/preprocess"
	"mercator-hq/claimaudit/pkg/telemetry/logging"
)

// Config is the root configuration of claimaudit.
type Config struct {
	// Audit controls how a batch is audited.
	Audit AuditConfig `yaml:"audit"`

	// Catalog selects where rule definitions come from.
	Catalog CatalogConfig `yaml:"catalog"`

	// Exclusions overrides the global exclusion specs per data type.
	Exclusions ExclusionsConfig `yaml:"exclusions"`

	// Store configures run persistence and retention.
	Store StoreConfig `yaml:"store"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Watch configures the inbox daemon.
	Watch WatchConfig `yaml:"watch"`
}

// AuditConfig contains batch audit settings.
type AuditConfig struct {
	// DataType is the default batch kind.
	// Options: "claim", "preauth"
	// Default: "claim"
	DataType string `yaml:"data_type"`

	// Insurer is recorded with every run.
	Insurer string `yaml:"insurer"`

	// ManualHandling removes manual-review triggers from the final triggers
	// of rows that are not exclusion-eligible.
	// Default: true
	ManualHandling bool `yaml:"manual_handling"`

	// DayFirst reads ambiguous numeric dates as day/month/year.
	// Default: false
	DayFirst bool `yaml:"day_first"`

	// RuleTimeout bounds a single rule evaluation. Zero disables the limit.
	RuleTimeout time.Duration `yaml:"rule_timeout"`

	// MaxGroups caps correlation groups for pair rules. Zero means unlimited.
	MaxGroups int `yaml:"max_groups"`

	// MaxDiagnostics caps the diagnostics kept per run.
	// Default: 1000
	MaxDiagnostics int `yaml:"max_diagnostics"`

	// OutputFormat is the format of annotated output files.
	// Options: "csv", "jsonl"
	// Default: "csv"
	OutputFormat string `yaml:"output_format"`
}

// CatalogConfig selects the rule catalog source.
type CatalogConfig struct {
	// Mode is the catalog source.
	// Options: "builtin", "file", "git"
	// Default: "builtin"
	Mode string `yaml:"mode"`

	// FilePath is the catalog file for mode "file".
	FilePath string `yaml:"file_path"`

	// Git configures mode "git".
	Git GitConfig `yaml:"git"`

	// Debounce is the quiet period before a changed catalog file is reloaded.
	// Default: 250ms
	Debounce time.Duration `yaml:"debounce"`

	// Strict rejects catalogs that produce lint findings.
	// Default: false
	Strict bool `yaml:"strict"`
}

// GitConfig configures a git-backed catalog.
type GitConfig struct {
	URL       string        `yaml:"url"`
	Branch    string        `yaml:"branch"`
	LocalPath string        `yaml:"local_path"`
	Path      string        `yaml:"path"`
	Token     string        `yaml:"token"`
	Timeout   time.Duration `yaml:"timeout"`

	// PullInterval is how often the watch daemon pulls the remote.
	// Default: 5m
	PullInterval time.Duration `yaml:"pull_interval"`
}

// ExclusionsConfig replaces the built-in exclusion specs. A nil spec keeps
// the built-in one for that data type.
type ExclusionsConfig struct {
	Claim   *preprocess.ExclusionSpec `yaml:"claim"`
	PreAuth *preprocess.ExclusionSpec `yaml:"preauth"`
}

// StoreConfig configures run persistence.
type StoreConfig struct {
	// Enabled controls whether runs are recorded.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend is the storage backend.
	// Options: "memory", "sqlite", "postgres"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Retention RetentionConfig `yaml:"retention"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file.
	// Default: "data/claimaudit.db"
	Path string `yaml:"path"`

	// Driver is "sqlite3" (cgo) or "sqlite" (pure Go).
	// Default: "sqlite3"
	Driver string `yaml:"driver"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

// RetentionConfig configures pruning of stored runs.
type RetentionConfig struct {
	// Days is how long runs are kept. Zero keeps runs forever.
	// Default: 90
	Days int `yaml:"days"`

	// Schedule is a cron expression for the watch daemon's pruning job.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`

	// MaxRuns caps the number of stored runs. Zero means unlimited.
	MaxRuns int64 `yaml:"max_runs"`

	// Archive writes pruned runs to ArchivePath before deleting them.
	Archive     bool   `yaml:"archive"`
	ArchivePath string `yaml:"archive_path"`
}

// TelemetryConfig contains observability settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	AddSource bool `yaml:"add_source"`

	// RedactPII masks member identifiers in logs.
	// Default: true
	RedactPII bool `yaml:"redact_pii"`

	// RedactPatterns are extra redaction patterns.
	RedactPatterns []logging.RedactPattern `yaml:"redact_patterns"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path of the Prometheus endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`

	RuleDurationBuckets []float64 `yaml:"rule_duration_buckets"`
	RunDurationBuckets  []float64 `yaml:"run_duration_buckets"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler is "always", "never" or "ratio".
	// Default: "always"
	Sampler string `yaml:"sampler"`

	// SampleRatio is used with sampler "ratio".
	SampleRatio float64 `yaml:"sample_ratio"`

	// Exporter is the span exporter. Only "otlp" is supported.
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	Insecure bool          `yaml:"insecure"`
	Timeout  time.Duration `yaml:"timeout"`

	// ServiceName identifies the process in traces.
	// Default: "claimaudit"
	ServiceName string `yaml:"service_name"`

	// RuleSpans starts one span per evaluated rule.
	RuleSpans bool `yaml:"rule_spans"`
}

// WatchConfig configures the inbox daemon.
type WatchConfig struct {
	// Inbox is the directory watched for new batch files.
	// Default: "data/inbox"
	Inbox string `yaml:"inbox"`

	// Output receives annotated output files.
	// Default: "data/output"
	Output string `yaml:"output"`

	// Processed receives audited input files.
	// Default: "data/processed"
	Processed string `yaml:"processed"`

	// Failed receives input files that could not be audited.
	// Default: "data/failed"
	Failed string `yaml:"failed"`

	// Pattern selects inbox files by base name.
	// Default: "*.csv"
	Pattern string `yaml:"pattern"`

	// Settle is how long a file must be unchanged before it is audited.
	// Default: 1s
	Settle time.Duration `yaml:"settle"`

	// ListenAddress serves metrics and health probes. Empty disables it.
	// Default: "127.0.0.1:9464"
	ListenAddress string `yaml:"listen_address"`
}
