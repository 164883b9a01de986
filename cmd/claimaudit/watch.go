package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/claimaudit/pkg/audit"
	"mercator-hq/claimaudit/pkg/catalog"
	"mercator-hq/claimaudit/pkg/catalog/gitsource"
	"mercator-hq/claimaudit/pkg/cli"
	"mercator-hq/claimaudit/pkg/config"
	"mercator-hq/claimaudit/pkg/store"
	"mercator-hq/claimaudit/pkg/store/retention"
	"mercator-hq/claimaudit/pkg/telemetry/health"
)

var watchFlags struct {
	dataType string
	insurer  string
	inbox    string
	listen   string
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Audit files dropped into an inbox directory",
	Long: `Watch an inbox directory and audit every batch file that appears in it.

Files are audited one at a time once they stop changing. The audited copy is
written to the output directory and the input is moved to the processed or
failed directory. Runs are recorded in the run store when it is enabled.

The catalog is reloaded when its file changes (file mode) or when the remote
branch moves (git mode). A reload applies to the next file; a file being
audited keeps the catalog it started with.

Metrics and health probes are served on the listen address:
  /metrics, /healthz, /readyz, /version

Examples:
  # Watch the configured inbox for claim batches
  claimaudit watch --type claim

  # Watch a different directory, serving metrics on all interfaces
  claimaudit watch --inbox /srv/claims/inbox --listen :9464`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchFlags.dataType, "type", "t", "", "record type: claim or preauth (overrides config)")
	watchCmd.Flags().StringVar(&watchFlags.insurer, "insurer", "", "insurer the batches belong to (overrides config)")
	watchCmd.Flags().StringVar(&watchFlags.inbox, "inbox", "", "inbox directory (overrides config)")
	watchCmd.Flags().StringVar(&watchFlags.listen, "listen", "", "metrics and health listen address (overrides config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if watchFlags.dataType != "" {
		dt, ok := config.NormalizeDataType(watchFlags.dataType)
		if !ok {
			return cli.NewConfigError("--type", fmt.Sprintf("%v: %q", audit.ErrUnsupportedDataType, watchFlags.dataType))
		}
		cfg.Audit.DataType = dt
	}
	if watchFlags.insurer != "" {
		cfg.Audit.Insurer = watchFlags.insurer
	}
	if watchFlags.inbox != "" {
		cfg.Watch.Inbox = watchFlags.inbox
	}
	if watchFlags.listen != "" {
		cfg.Watch.ListenAddress = watchFlags.listen
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	ctx, stop := cli.SetupSignalHandler(commandContext(cmd))
	defer stop()

	cat, src, err := loadCatalog(ctx, &cfg.Catalog)
	if err != nil {
		return cli.NewCommandError("watch", fmt.Errorf("failed to load catalog: %w", err))
	}
	reg, err := buildRegistry(cat, cfg.Catalog.Strict, logger)
	if err != nil {
		return cli.NewCommandError("watch", err)
	}

	tel, err := setupTelemetry(ctx, &cfg.Telemetry)
	if err != nil {
		return cli.NewCommandError("watch", err)
	}
	defer tel.shutdown(logger)
	tel.metrics.RecordCatalogReload(true, reg.Len())

	var st store.Storage
	if cfg.Store.Enabled {
		if st, err = openStore(ctx, &cfg.Store, logger); err != nil {
			return cli.NewCommandError("watch", err)
		}
		defer st.Close()
	}

	auditor, err := newAuditor(cfg, cfg.Audit.DataType, reg, tel, st, logger)
	if err != nil {
		return err
	}

	swap := func(c *catalog.Catalog) {
		next, err := buildRegistry(c, cfg.Catalog.Strict, logger)
		if err != nil {
			tel.metrics.RecordCatalogReload(false, auditor.Registry().Len())
			logger.Error("reloaded catalog rejected, keeping previous rules", "version", c.Version, "error", err)
			return
		}
		auditor.SetRegistry(next)
		tel.metrics.RecordCatalogReload(true, next.Len())
	}

	switch cfg.Catalog.Mode {
	case "file":
		w, err := catalog.NewWatcher(cfg.Catalog.WatcherConfig(), catalog.NewSnapshot(cat), logger)
		if err != nil {
			return cli.NewCommandError("watch", err)
		}
		w.OnSwap(swap)
		go func() {
			if err := w.Watch(ctx); err != nil {
				logger.Error("catalog watcher exited", "error", err)
			}
		}()
	case "git":
		go pullCatalog(ctx, src, cfg.Catalog.Git.PullInterval, swap, func() {
			tel.metrics.RecordCatalogReload(false, auditor.Registry().Len())
		}, logger)
	}

	if st != nil {
		pruner := retention.NewPruner(st, cfg.Store.RetentionConfig(), logger)
		pruner.OnPruned(func(deleted int64) { tel.metrics.RecordPruned(int(deleted)) })
		if err := pruner.Start(ctx); err != nil {
			return cli.NewConfigError("store.retention.schedule", err.Error())
		}
		defer pruner.Stop()
		if next := pruner.NextPruning(); next != nil {
			logger.Info("next pruning scheduled", "at", next.Format(time.RFC3339))
		}
	}

	if cfg.Watch.ListenAddress != "" {
		srv := newProbeServer(cfg, tel, auditor, st)
		go func() {
			logger.Info("serving metrics and health probes", "address", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("probe server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("probe server shutdown failed", "error", err)
			}
		}()
	}

	in := newInbox(cfg.Watch, cfg.Audit.OutputFormat, auditor, logger)
	if err := in.Run(ctx); err != nil {
		return cli.NewCommandError("watch", err)
	}
	return nil
}

// newProbeServer serves metrics and health probes for the watch daemon.
func newProbeServer(cfg *config.Config, tel *telemetry, a *audit.Auditor, st store.Storage) *http.Server {
	checker := health.New(5 * time.Second)
	checker.RegisterCheck("catalog", health.CatalogCheck(func() int { return a.Registry().Len() }))
	checker.RegisterCheck("inbox", health.DirCheck(cfg.Watch.Inbox))
	if st != nil {
		checker.RegisterCheck("store", health.StoreCheck(st))
	}

	mux := http.NewServeMux()
	if cfg.Telemetry.Metrics.Enabled {
		mux.Handle(cfg.Telemetry.Metrics.Path, tel.metrics.Handler())
	}
	health.Register(mux, checker, Version, GitCommit, BuildDate)

	return &http.Server{
		Addr:              cfg.Watch.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// pullCatalog pulls the catalog repository every interval and swaps in the
// catalog when HEAD moves.
func pullCatalog(ctx context.Context, src *gitsource.Source, interval time.Duration, swap func(*catalog.Catalog), failed func(), logger *slog.Logger) {
	if src == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			moved, err := src.Pull(ctx)
			if err != nil {
				logger.Warn("catalog pull failed", "error", err)
				continue
			}
			if !moved {
				continue
			}
			cat, err := src.Load("")
			if err != nil {
				failed()
				logger.Error("catalog at new HEAD does not load, keeping previous rules", "error", err)
				continue
			}
			head, _ := src.Head()
			logger.Info("catalog updated from remote", "commit", head, "version", cat.Version, "rules", cat.Len())
			swap(cat)
		}
	}
}
