package config

import "time"

// Default values for configuration fields.
const (
	// Audit defaults
	DefaultDataType       = "claim"
	DefaultManualHandling = true
	DefaultMaxDiagnostics = 1000
	DefaultOutputFormat   = "csv"

	// Catalog defaults
	DefaultCatalogMode         = "builtin"
	DefaultCatalogDebounce     = 250 * time.Millisecond
	DefaultCatalogGitBranch    = "main"
	DefaultCatalogGitPath      = "catalog.yaml"
	DefaultCatalogGitLocalPath = "data/catalog-repo"
	DefaultCatalogGitTimeout   = 30 * time.Second
	DefaultCatalogGitPull      = 5 * time.Minute

	// Store defaults
	DefaultStoreEnabled       = true
	DefaultStoreBackend       = "sqlite"
	DefaultSQLitePath         = "data/claimaudit.db"
	DefaultSQLiteDriver       = "sqlite3"
	DefaultSQLiteWALMode      = true
	DefaultSQLiteBusyTimeout  = 5 * time.Second
	DefaultRetentionDays      = 90
	DefaultRetentionSchedule  = "0 3 * * *"
	DefaultRetentionArchiveTo = "data/archives/"

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultLoggingRedactPII = true
	DefaultMetricsEnabled   = true
	DefaultMetricsPath      = "/metrics"
	DefaultTracingSampler   = "always"
	DefaultTracingExporter  = "otlp"
	DefaultTracingEndpoint  = "localhost:4317"
	DefaultTracingTimeout   = 10 * time.Second
	DefaultTracingService   = "claimaudit"

	// Watch defaults
	DefaultWatchInbox         = "data/inbox"
	DefaultWatchOutput        = "data/output"
	DefaultWatchProcessed     = "data/processed"
	DefaultWatchFailed        = "data/failed"
	DefaultWatchPattern       = "*.csv"
	DefaultWatchSettle        = time.Second
	DefaultWatchListenAddress = "127.0.0.1:9464"
)

// NewDefault returns a configuration with every default applied, including
// the booleans that default to true.
func NewDefault() *Config {
	cfg := &Config{}
	cfg.Audit.ManualHandling = DefaultManualHandling
	cfg.Store.Enabled = DefaultStoreEnabled
	cfg.Store.SQLite.WALMode = DefaultSQLiteWALMode
	cfg.Telemetry.Logging.RedactPII = DefaultLoggingRedactPII
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets defaults for fields that have zero values. Booleans are
// left alone because false is a valid setting; LoadConfig seeds them from
// NewDefault before decoding. ApplyDefaults is idempotent.
func ApplyDefaults(cfg *Config) {
	a := &cfg.Audit
	if a.DataType == "" {
		a.DataType = DefaultDataType
	}
	if a.MaxDiagnostics == 0 {
		a.MaxDiagnostics = DefaultMaxDiagnostics
	}
	if a.OutputFormat == "" {
		a.OutputFormat = DefaultOutputFormat
	}

	c := &cfg.Catalog
	if c.Mode == "" {
		c.Mode = DefaultCatalogMode
	}
	if c.Debounce == 0 {
		c.Debounce = DefaultCatalogDebounce
	}
	if c.Git.Branch == "" {
		c.Git.Branch = DefaultCatalogGitBranch
	}
	if c.Git.Path == "" {
		c.Git.Path = DefaultCatalogGitPath
	}
	if c.Git.LocalPath == "" {
		c.Git.LocalPath = DefaultCatalogGitLocalPath
	}
	if c.Git.Timeout == 0 {
		c.Git.Timeout = DefaultCatalogGitTimeout
	}
	if c.Git.PullInterval == 0 {
		c.Git.PullInterval = DefaultCatalogGitPull
	}

	s := &cfg.Store
	if s.Backend == "" {
		s.Backend = DefaultStoreBackend
	}
	if s.SQLite.Path == "" {
		s.SQLite.Path = DefaultSQLitePath
	}
	if s.SQLite.Driver == "" {
		s.SQLite.Driver = DefaultSQLiteDriver
	}
	if s.SQLite.BusyTimeout == 0 {
		s.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if s.Retention.Days == 0 {
		s.Retention.Days = DefaultRetentionDays
	}
	if s.Retention.Schedule == "" {
		s.Retention.Schedule = DefaultRetentionSchedule
	}
	if s.Retention.ArchivePath == "" {
		s.Retention.ArchivePath = DefaultRetentionArchiveTo
	}

	t := &cfg.Telemetry
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLoggingLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLoggingFormat
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Tracing.Sampler == "" {
		t.Tracing.Sampler = DefaultTracingSampler
	}
	if t.Tracing.Exporter == "" {
		t.Tracing.Exporter = DefaultTracingExporter
	}
	if t.Tracing.Endpoint == "" {
		t.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if t.Tracing.Timeout == 0 {
		t.Tracing.Timeout = DefaultTracingTimeout
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingService
	}

	w := &cfg.Watch
	if w.Inbox == "" {
		w.Inbox = DefaultWatchInbox
	}
	if w.Output == "" {
		w.Output = DefaultWatchOutput
	}
	if w.Processed == "" {
		w.Processed = DefaultWatchProcessed
	}
	if w.Failed == "" {
		w.Failed = DefaultWatchFailed
	}
	if w.Pattern == "" {
		w.Pattern = DefaultWatchPattern
	}
	if w.Settle == 0 {
		w.Settle = DefaultWatchSettle
	}
	if w.ListenAddress == "" {
		w.ListenAddress = DefaultWatchListenAddress
	}
}
