package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherRunning is returned when Watch is called twice.
var ErrWatcherRunning = errors.New("watcher already running")

// Snapshot holds the catalog the next run should use. Runs take the current
// value once at start, so a swap never affects a run in progress.
type Snapshot struct {
	cur atomic.Pointer[Catalog]
}

// NewSnapshot returns a snapshot holding initial.
func NewSnapshot(initial *Catalog) *Snapshot {
	s := &Snapshot{}
	s.cur.Store(initial)
	return s
}

// Load returns the current catalog.
func (s *Snapshot) Load() *Catalog {
	return s.cur.Load()
}

// Swap installs c and returns the previous catalog.
func (s *Snapshot) Swap(c *Catalog) *Catalog {
	return s.cur.Swap(c)
}

// WatcherConfig configures a catalog file watcher.
type WatcherConfig struct {
	// Path is the catalog file to watch.
	Path string

	// DebounceInterval is the quiet period after the last change before a
	// reload fires (default: 250ms).
	DebounceInterval time.Duration
}

// DefaultWatcherConfig returns the default watcher configuration.
func DefaultWatcherConfig() *WatcherConfig {
	return &WatcherConfig{
		DebounceInterval: 250 * time.Millisecond,
	}
}

// Watcher reloads a catalog file into a Snapshot when it changes.
//
// The parent directory is watched rather than the file itself, so editors that
// save by rename are still seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	config   *WatcherConfig
	snapshot *Snapshot
	logger   *slog.Logger
	debounce *Debouncer

	mu      sync.Mutex
	running bool
	reloads atomic.Int64
	onSwap  func(*Catalog)
}

// NewWatcher creates a watcher that keeps snapshot in sync with config.Path.
func NewWatcher(config *WatcherConfig, snapshot *Snapshot, logger *slog.Logger) (*Watcher, error) {
	if config == nil || config.Path == "" {
		return nil, fmt.Errorf("catalog watcher: path is required")
	}
	if snapshot == nil {
		return nil, fmt.Errorf("catalog watcher: snapshot is required")
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultWatcherConfig().DebounceInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher:  fw,
		config:   config,
		snapshot: snapshot,
		logger:   logger,
		debounce: NewDebouncer(config.DebounceInterval),
	}, nil
}

// OnSwap registers fn to be called after every successful reload.
func (w *Watcher) OnSwap(fn func(*Catalog)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onSwap = fn
}

// Reloads returns how many reloads have succeeded.
func (w *Watcher) Reloads() int64 {
	return w.reloads.Load()
}

// Reload loads the catalog file and swaps it in. A catalog that fails to load
// leaves the previous snapshot in place.
func (w *Watcher) Reload() error {
	cat, err := LoadFile(w.config.Path)
	if err != nil {
		return err
	}
	prev := w.snapshot.Swap(cat)
	w.reloads.Add(1)

	prevVersion := ""
	if prev != nil {
		prevVersion = prev.Version
	}
	w.logger.Info("catalog reloaded",
		"path", w.config.Path,
		"version", cat.Version,
		"previous_version", prevVersion,
		"rules", cat.Len(),
	)

	w.mu.Lock()
	fn := w.onSwap
	w.mu.Unlock()
	if fn != nil {
		fn(cat)
	}
	return nil
}

// Watch blocks until ctx is cancelled, reloading after each burst of changes.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrWatcherRunning
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.debounce.Stop()
		_ = w.watcher.Close()
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	dir := filepath.Dir(w.config.Path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	w.logger.Info("catalog watcher started",
		"path", w.config.Path,
		"debounce_ms", w.config.DebounceInterval.Milliseconds(),
	)

	target := filepath.Clean(w.config.Path)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("catalog watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !relevant(event, target) {
				continue
			}
			w.logger.Debug("catalog file event", "path", event.Name, "op", event.Op.String())
			w.debounce.Trigger(func() {
				if err := w.Reload(); err != nil {
					w.logger.Error("catalog reload failed, keeping previous snapshot", "error", err)
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("catalog watcher error", "error", err)
		}
	}
}

func relevant(event fsnotify.Event, target string) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(event.Name) == target
}

// Debouncer collapses a burst of triggers into one callback after a quiet period.
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
}

// NewDebouncer creates a debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback, replacing any pending one.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		cb := d.callback
		stopped := d.stopped
		d.mu.Unlock()
		if cb != nil && !stopped {
			cb()
		}
	})
}

// Stop cancels any pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
