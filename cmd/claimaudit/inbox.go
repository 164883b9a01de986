package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mercator-hq/claimaudit/pkg/audit"
	"mercator-hq/claimaudit/pkg/config"
)

const inboxQueueSize = 256

// inbox audits batch files dropped into a directory. Files are audited one at
// a time in the order they settle.
type inbox struct {
	cfg     config.WatchConfig
	format  string
	auditor *audit.Auditor
	logger  *slog.Logger

	queue chan string
	done  chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
	queued  map[string]bool
}

func newInbox(cfg config.WatchConfig, format string, a *audit.Auditor, logger *slog.Logger) *inbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &inbox{
		cfg:     cfg,
		format:  format,
		auditor: a,
		logger:  logger.With("component", "inbox"),
		queue:   make(chan string, inboxQueueSize),
		done:    make(chan struct{}),
		pending: make(map[string]*time.Timer),
		queued:  make(map[string]bool),
	}
}

// prepare creates the inbox and its output directories.
func (in *inbox) prepare() error {
	for _, dir := range []string{in.cfg.Inbox, in.cfg.Output, in.cfg.Processed, in.cfg.Failed} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Run blocks until ctx is cancelled. Files already in the inbox are queued at
// start. A run in progress when ctx is cancelled completes first.
func (in *inbox) Run(ctx context.Context) error {
	if err := in.prepare(); err != nil {
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create inbox watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(in.cfg.Inbox); err != nil {
		return fmt.Errorf("failed to watch %q: %w", in.cfg.Inbox, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		in.work(ctx)
	}()
	defer func() {
		in.stopTimers()
		close(in.done)
		wg.Wait()
	}()

	if err := in.scan(); err != nil {
		in.logger.Warn("failed to scan inbox", "error", err)
	}
	in.logger.Info("inbox watcher started",
		"inbox", in.cfg.Inbox,
		"pattern", in.cfg.Pattern,
		"settle_ms", in.cfg.Settle.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			in.logger.Info("inbox watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("inbox events channel closed")
			}
			if !in.matches(event.Name) {
				continue
			}
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				in.settle(event.Name)
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				in.forget(event.Name)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("inbox errors channel closed")
			}
			in.logger.Error("inbox watcher error", "error", err)
		}
	}
}

// scan queues the matching files already in the inbox.
func (in *inbox) scan() error {
	entries, err := os.ReadDir(in.cfg.Inbox)
	if err != nil {
		return err
	}
	for _, e := range entries {
		path := filepath.Join(in.cfg.Inbox, e.Name())
		if e.Type().IsRegular() && in.matches(path) {
			in.enqueue(path)
		}
	}
	return nil
}

func (in *inbox) matches(path string) bool {
	pattern := in.cfg.Pattern
	if pattern == "" {
		pattern = "*.csv"
	}
	ok, err := filepath.Match(pattern, filepath.Base(path))
	return err == nil && ok
}

// settle queues path once it has not changed for the settle interval.
func (in *inbox) settle(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Reset(in.cfg.Settle)
		return
	}
	in.pending[path] = time.AfterFunc(in.cfg.Settle, func() {
		in.mu.Lock()
		delete(in.pending, path)
		in.mu.Unlock()
		in.enqueue(path)
	})
}

func (in *inbox) forget(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Stop()
		delete(in.pending, path)
	}
}

func (in *inbox) stopTimers() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for path, t := range in.pending {
		t.Stop()
		delete(in.pending, path)
	}
}

func (in *inbox) enqueue(path string) {
	in.mu.Lock()
	if in.queued[path] {
		in.mu.Unlock()
		return
	}
	in.queued[path] = true
	in.mu.Unlock()

	select {
	case in.queue <- path:
	case <-in.done:
	}
}

func (in *inbox) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-in.queue:
			in.mu.Lock()
			delete(in.queued, path)
			in.mu.Unlock()
			if err := in.process(context.WithoutCancel(ctx), path); err != nil {
				in.logger.Error("inbox file failed", "input", path, "error", err)
			}
		}
	}
}

// process audits one inbox file, writes the audited copy to the output
// directory and moves the input to the processed or failed directory.
func (in *inbox) process(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	output := outputPath(in.cfg.Output, path, in.format)
	err = in.audit(ctx, path, output)
	dest := in.cfg.Processed
	if err != nil {
		dest = in.cfg.Failed
	}
	moved, merr := moveFile(path, dest)
	if merr != nil {
		return errors.Join(err, merr)
	}
	if err != nil {
		return fmt.Errorf("%w (moved to %s)", err, moved)
	}
	in.logger.Info("inbox file audited", "input", path, "output", output, "moved_to", moved)
	return nil
}

func (in *inbox) audit(ctx context.Context, path, output string) error {
	frame, err := readInput(path)
	if err != nil {
		return err
	}
	res, err := in.auditor.Execute(ctx, frame, path)
	var perr *audit.PersistError
	if err != nil && !errors.As(err, &perr) {
		return err
	}
	if werr := writeOutput(output, in.format, res.Output); werr != nil {
		return werr
	}
	// The audited copy is written; a store failure does not fail the file.
	if perr != nil {
		in.logger.Warn("audited file not recorded", "input", path, "error", perr)
	}
	return nil
}

// moveFile moves path into dir and returns the new path. An existing file of
// the same name is kept; the moved file gets a timestamp suffix.
func moveFile(path, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(dst)
		stem := dst[:len(dst)-len(ext)]
		dst = fmt.Sprintf("%s_%s%s", stem, time.Now().UTC().Format("20060102T150405.000000000"), ext)
	}
	if err := os.Rename(path, dst); err != nil {
		return "", fmt.Errorf("failed to move %s: %w", path, err)
	}
	return dst, nil
}
