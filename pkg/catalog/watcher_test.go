package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_CollapsesBurst(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	for i := 0; i < 5; i++ {
		d.Trigger(func() { calls.Add(1) })
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("callback calls got = %d, want 1", got)
	}
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	d.Trigger(func() { calls.Add(1) })

	time.Sleep(120 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("callback calls got = %d, want 0", got)
	}
}

func TestWatcher_ReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o644); err != nil {
		t.Fatal(err)
	}
	initial, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	snap := NewSnapshot(initial)

	w, err := NewWatcher(&WatcherConfig{Path: path}, snap, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("rules: [broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.Reload(); err == nil {
		t.Fatal("Reload() error = nil, want parse error")
	}
	if snap.Load() != initial {
		t.Error("failed reload replaced the snapshot")
	}

	updated := "rules:\n  only:\n    name: Only\n    parameters:\n      incl_codes: [X]\n      incl_col: ACTIVITY_CODE\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	var swapped atomic.Bool
	w.OnSwap(func(*Catalog) { swapped.Store(true) })
	if err := w.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if snap.Load().Len() != 1 || !swapped.Load() || w.Reloads() != 1 {
		t.Errorf("Reload() did not install new catalog: len %d swapped %v reloads %d",
			snap.Load().Len(), swapped.Load(), w.Reloads())
	}
}

func TestWatcher_WatchPicksUpWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o644); err != nil {
		t.Fatal(err)
	}
	initial, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	snap := NewSnapshot(initial)
	w, err := NewWatcher(&WatcherConfig{Path: path, DebounceInterval: 20 * time.Millisecond}, snap, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	updated := "rules:\n  only:\n    name: Only\n    parameters:\n      incl_codes: [X]\n      incl_col: ACTIVITY_CODE\n"
	deadline := time.Now().Add(5 * time.Second)
	for snap.Load().Len() != 1 && time.Now().Before(deadline) {
		if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(100 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
	if snap.Load().Len() != 1 {
		t.Errorf("snapshot len got = %d, want 1", snap.Load().Len())
	}
}
