package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"mercator-hq/claimaudit/pkg/audit"
	"mercator-hq/claimaudit/pkg/catalog"
	"mercator-hq/claimaudit/pkg/catalog/gitsource"
	"mercator-hq/claimaudit/pkg/cli"
	"mercator-hq/claimaudit/pkg/config"
	"mercator-hq/claimaudit/pkg/engine"
	"mercator-hq/claimaudit/pkg/store"
	"mercator-hq/claimaudit/pkg/telemetry/logging"
	"mercator-hq/claimaudit/pkg/telemetry/metrics"
	"mercator-hq/claimaudit/pkg/telemetry/tracing"
)

// loadConfig returns the global configuration, loading it on first use. A
// missing default config file is not an error; the defaults apply.
func loadConfig() (*config.Config, error) {
	if cfg := config.GetConfig(); cfg != nil {
		return cfg, nil
	}

	path := cfgFile
	if path == defaultConfigFile {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	if err := config.Initialize(path); err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	return config.GetConfig(), nil
}

// commandContext returns the context of cmd, or context.Background when the
// command was invoked directly.
func commandContext(cmd *cobra.Command) context.Context {
	if cmd == nil || cmd.Context() == nil {
		return context.Background()
	}
	return cmd.Context()
}

// setupLogger installs the configured logger as the slog default.
func setupLogger(cfg *config.Config) (*slog.Logger, error) {
	lc := cfg.Telemetry.Logging.LoggerConfig()
	if verbose {
		lc.Level = "debug"
	}
	logger, err := logging.New(lc)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)
	return logger, nil
}

// loadCatalog loads the catalog named by cfg. In git mode the opened source
// is returned so callers can pull later.
func loadCatalog(ctx context.Context, cfg *config.CatalogConfig) (*catalog.Catalog, *gitsource.Source, error) {
	switch cfg.Mode {
	case "", "builtin":
		cat, err := catalog.Builtin()
		return cat, nil, err
	case "file":
		cat, err := catalog.LoadFile(cfg.FilePath)
		return cat, nil, err
	case "git":
		src, err := gitsource.New(cfg.GitSourceConfig())
		if err != nil {
			return nil, nil, err
		}
		if err := src.Open(ctx); err != nil {
			return nil, nil, err
		}
		cat, err := src.Load("")
		if err != nil {
			return nil, nil, err
		}
		return cat, src, nil
	default:
		return nil, nil, cli.NewConfigError("catalog.mode", fmt.Sprintf("unsupported catalog mode %q", cfg.Mode))
	}
}

// buildRegistry compiles cat. Rules that fail to compile are skipped with a
// warning unless strict is set.
func buildRegistry(cat *catalog.Catalog, strict bool, logger *slog.Logger) (*engine.Registry, error) {
	reg, err := engine.NewRegistry(cat)
	if err != nil {
		if strict || reg == nil {
			return nil, fmt.Errorf("catalog %s: %w", cat.Source, err)
		}
		rejected := reg.Rejected()
		keys := make([]string, len(rejected))
		for i, r := range rejected {
			keys[i] = r.RuleKey
		}
		logger.Warn("rules rejected, they will not run",
			"catalog", cat.Source,
			"rejected", strings.Join(keys, ","),
			"error", err,
		)
	}
	return reg, nil
}

// openStore opens the configured run store. A disabled store is in memory.
func openStore(ctx context.Context, cfg *config.StoreConfig, logger *slog.Logger) (store.Storage, error) {
	st, err := store.Open(ctx, cfg.StorageConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Backend, err)
	}
	return st, nil
}

// telemetry bundles the metrics collector and tracer of one process.
type telemetry struct {
	registry *prometheus.Registry
	metrics  *metrics.Collector
	tracer   *tracing.Tracer
}

func setupTelemetry(ctx context.Context, cfg *config.TelemetryConfig) (*telemetry, error) {
	registry := prometheus.NewRegistry()
	tracer, err := tracing.New(ctx, &cfg.Tracing, Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	return &telemetry{
		registry: registry,
		metrics:  metrics.NewCollector(&cfg.Metrics, registry),
		tracer:   tracer,
	}, nil
}

// shutdown flushes pending spans.
func (t *telemetry) shutdown(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.tracer.Shutdown(ctx); err != nil {
		logger.Warn("tracer shutdown failed", "error", err)
	}
}

// newAuditor builds an auditor for dataType from the configuration.
func newAuditor(cfg *config.Config, dataType string, reg *engine.Registry, tel *telemetry, st store.Storage, logger *slog.Logger) (*audit.Auditor, error) {
	opts := []audit.Option{
		audit.WithInsurer(cfg.Audit.Insurer),
		audit.WithExclusions(cfg.Exclusions.ExclusionSpec(dataType)),
		audit.WithManualHandling(cfg.Audit.ManualHandling),
		audit.WithDayFirst(cfg.Audit.DayFirst),
		audit.WithEngineConfig(cfg.EngineConfig()),
		audit.WithMetrics(tel.metrics),
		audit.WithTracer(tel.tracer.Tracer()),
		audit.WithLogger(logger),
	}
	if st != nil {
		opts = append(opts, audit.WithStorage(st))
	}
	a, err := audit.New(dataType, reg, opts...)
	if errors.Is(err, audit.ErrUnsupportedDataType) {
		return nil, cli.NewConfigError("audit.data_type", err.Error())
	}
	return a, err
}

// parseTimeRange parses an RFC3339 "start/end" interval.
func parseTimeRange(s string) (start, end time.Time, err error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return start, end, fmt.Errorf("invalid time range format (expected: start/end)")
	}
	if start, err = time.Parse(time.RFC3339, parts[0]); err != nil {
		return start, end, fmt.Errorf("invalid start time: %w", err)
	}
	if end, err = time.Parse(time.RFC3339, parts[1]); err != nil {
		return start, end, fmt.Errorf("invalid end time: %w", err)
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("invalid time range: end is before start")
	}
	return start, end, nil
}
