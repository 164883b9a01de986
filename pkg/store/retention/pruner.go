package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"mercator-hq/claimaudit/pkg/store"
	"mercator-hq/claimaudit/pkg/store/export"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to keep runs.
	// 0 keeps runs forever.
	RetentionDays int

	// PruneSchedule is a cron expression for scheduling pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string

	// ArchiveBeforeDelete writes pruned runs to ArchivePath as JSON first.
	ArchiveBeforeDelete bool
	ArchivePath         string

	// MaxRuns is the maximum number of runs to keep.
	// 0 means unlimited.
	MaxRuns int64
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 90,
		PruneSchedule: "0 3 * * *",
		ArchivePath:   "data/archives/",
	}
}

// Error reports a failed pruning phase.
type Error struct {
	Phase string // "age" or "count"
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("retention error [phase=%s]: %v", e.Phase, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Pruner enforces retention on stored runs.
type Pruner struct {
	storage   store.Storage
	config    *Config
	logger    *slog.Logger
	scheduler *Scheduler
	now       func() time.Time
	onPruned  func(deleted int64)
}

// NewPruner creates a new retention pruner.
func NewPruner(storage store.Storage, config *Config, logger *slog.Logger) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pruner{
		storage: storage,
		config:  config,
		logger:  logger.With("component", "store.retention"),
		now:     time.Now,
	}
	p.scheduler = NewScheduler(p)
	return p
}

// OnPruned registers fn to be called after every prune that deleted runs.
// It must be set before Start.
func (p *Pruner) OnPruned(fn func(deleted int64)) {
	p.onPruned = fn
}

// Prune deletes runs older than the retention period, then the oldest runs
// beyond MaxRuns. It returns the number of runs deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.RetentionDays > 0 {
		deleted, err := p.pruneByAge(ctx)
		if err != nil {
			return total, &Error{Phase: "age", Cause: err}
		}
		total += deleted
	}

	if p.config.MaxRuns > 0 {
		deleted, err := p.pruneByCount(ctx)
		if err != nil {
			return total, &Error{Phase: "count", Cause: err}
		}
		total += deleted
	}

	if total == 0 {
		p.logger.Debug("no runs pruned",
			"retention_days", p.config.RetentionDays,
			"max_runs", p.config.MaxRuns,
		)
	} else {
		p.logger.Info("run pruning completed",
			"total_deleted", total,
			"retention_days", p.config.RetentionDays,
			"max_runs", p.config.MaxRuns,
		)
		if p.onPruned != nil {
			p.onPruned(total)
		}
	}
	return total, nil
}

func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)
	query := &store.Query{EndTime: &cutoff}

	if p.config.ArchiveBeforeDelete {
		runs, err := p.storage.ListRuns(ctx, &store.Query{EndTime: &cutoff, Limit: store.MaxLimit})
		if err != nil {
			return 0, fmt.Errorf("failed to list runs for archiving: %w", err)
		}
		if err := p.archive(ctx, "age", runs); err != nil {
			return 0, err
		}
	}

	deleted, err := p.storage.DeleteRuns(ctx, query)
	if err != nil {
		return 0, err
	}
	p.logger.Info("pruned runs by age", "deleted_count", deleted, "cutoff", cutoff)
	return deleted, nil
}

func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.CountRuns(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	if count <= p.config.MaxRuns {
		return 0, nil
	}

	// Everything past the newest MaxRuns, ties on started_at broken by id.
	excess := count - p.config.MaxRuns
	victims, err := p.storage.ListRuns(ctx, &store.Query{
		SortBy:    "started_at",
		SortOrder: "desc",
		Offset:    int(p.config.MaxRuns),
		Limit:     int(min(excess, store.MaxLimit)),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(victims) == 0 {
		return 0, nil
	}

	if p.config.ArchiveBeforeDelete {
		if err := p.archive(ctx, "count", victims); err != nil {
			return 0, err
		}
	}

	// Delete exactly the listed runs; a kept run may share the cutoff timestamp.
	var deleted int64
	for batch := range slices.Chunk(victims, store.MaxIDs) {
		ids := make([]string, len(batch))
		for i, r := range batch {
			ids[i] = r.ID
		}
		n, err := p.storage.DeleteRuns(ctx, &store.Query{IDs: ids})
		deleted += n
		if err != nil {
			return deleted, fmt.Errorf("delete failed: %w", err)
		}
	}
	p.logger.Info("pruned runs by count",
		"deleted_count", deleted,
		"max_runs", p.config.MaxRuns,
	)
	return deleted, nil
}

// archive writes runs as a JSON array before they are deleted.
func (p *Pruner) archive(ctx context.Context, reason string, runs []*store.Run) error {
	if len(runs) == 0 {
		return nil
	}
	if err := os.MkdirAll(p.config.ArchivePath, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	name := fmt.Sprintf("runs-%s-%s.json", reason, p.now().Format("2006-01-02-150405"))
	path := filepath.Join(p.config.ArchivePath, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer f.Close()

	if err := export.NewJSONExporter(true).ExportRuns(ctx, runs, f); err != nil {
		return fmt.Errorf("failed to archive runs: %w", err)
	}
	p.logger.Info("runs archived", "archive_file", path, "run_count", len(runs))
	return nil
}

// Start starts the pruning scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the pruning scheduler.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled pruning.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
