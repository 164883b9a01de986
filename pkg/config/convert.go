package config

import (
	"mercator-hq/claimaudit/pkg/catalog"
	"mercator-hq/claimaudit/pkg/catalog/gitsource"
	"mercator-hq/claimaudit/pkg/engine"
	"mercator-hq/claimaudit/pkg/preprocess"
	"mercator-hq/claimaudit/pkg/store"
	"mercator-hq/claimaudit/pkg/store/retention"
	"mercator-hq/claimaudit/pkg/telemetry/logging"
)

// EngineConfig returns the dispatcher configuration.
func (c *Config) EngineConfig() *engine.EngineConfig {
	return engine.DefaultEngineConfig().
		WithRuleTimeout(c.Audit.RuleTimeout).
		WithMaxGroups(c.Audit.MaxGroups).
		WithMaxDiagnostics(c.Audit.MaxDiagnostics).
		WithTrace(c.Telemetry.Tracing.Enabled && c.Telemetry.Tracing.RuleSpans)
}

// ExclusionSpec returns the exclusion spec for dataType, falling back to the
// built-in spec when none is configured.
func (c *ExclusionsConfig) ExclusionSpec(dataType string) preprocess.ExclusionSpec {
	if dt, _ := NormalizeDataType(dataType); dt == "preauth" {
		if c.PreAuth != nil {
			return *c.PreAuth
		}
		return preprocess.DefaultPreAuthExclusions()
	}
	if c.Claim != nil {
		return *c.Claim
	}
	return preprocess.DefaultClaimExclusions()
}

// StorageConfig returns the store backend configuration.
func (c *StoreConfig) StorageConfig() store.Config {
	backend := c.Backend
	if !c.Enabled {
		backend = store.BackendMemory
	}
	return store.Config{
		Backend: backend,
		SQLite: store.SQLiteConfig{
			Path:        c.SQLite.Path,
			Driver:      c.SQLite.Driver,
			WALMode:     c.SQLite.WALMode,
			BusyTimeout: c.SQLite.BusyTimeout,
		},
		Postgres: store.PostgresConfig{
			URL:      c.Postgres.URL,
			MaxConns: c.Postgres.MaxConns,
		},
	}
}

// RetentionConfig returns the pruner configuration.
func (c *StoreConfig) RetentionConfig() *retention.Config {
	return &retention.Config{
		RetentionDays:       c.Retention.Days,
		PruneSchedule:       c.Retention.Schedule,
		ArchiveBeforeDelete: c.Retention.Archive,
		ArchivePath:         c.Retention.ArchivePath,
		MaxRuns:             c.Retention.MaxRuns,
	}
}

// GitSourceConfig returns the git catalog source configuration.
func (c *CatalogConfig) GitSourceConfig() gitsource.Config {
	return gitsource.Config{
		URL:       c.Git.URL,
		Branch:    c.Git.Branch,
		LocalPath: c.Git.LocalPath,
		Path:      c.Git.Path,
		Token:     c.Git.Token,
		Timeout:   c.Git.Timeout,
	}
}

// WatcherConfig returns the file watcher configuration for mode "file".
func (c *CatalogConfig) WatcherConfig() *catalog.WatcherConfig {
	return &catalog.WatcherConfig{
		Path:             c.FilePath,
		DebounceInterval: c.Debounce,
	}
}

// LoggerConfig returns the logger configuration.
func (c *LoggingConfig) LoggerConfig() logging.Config {
	return logging.Config{
		Level:          c.Level,
		Format:         c.Format,
		AddSource:      c.AddSource,
		RedactPII:      c.RedactPII,
		RedactPatterns: c.RedactPatterns,
	}
}
