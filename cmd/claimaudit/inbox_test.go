package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/claimaudit/pkg/audit"
	"mercator-hq/claimaudit/pkg/catalog"
	"mercator-hq/claimaudit/pkg/config"
	"mercator-hq/claimaudit/pkg/engine"
	"mercator-hq/claimaudit/pkg/store"
)

func testInbox(t *testing.T, st store.Storage) *inbox {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalog), "test.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	reg, err := engine.NewRegistry(cat)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	opts := []audit.Option{}
	if st != nil {
		opts = append(opts, audit.WithStorage(st))
	}
	a, err := audit.New("claim", reg, opts...)
	if err != nil {
		t.Fatalf("audit.New() error = %v", err)
	}

	dir := t.TempDir()
	cfg := config.WatchConfig{
		Inbox:     filepath.Join(dir, "inbox"),
		Output:    filepath.Join(dir, "output"),
		Processed: filepath.Join(dir, "processed"),
		Failed:    filepath.Join(dir, "failed"),
		Pattern:   "*.csv",
		Settle:    10 * time.Millisecond,
	}
	in := newInbox(cfg, outputCSV, a, nil)
	if err := in.prepare(); err != nil {
		t.Fatalf("prepare() error = %v", err)
	}
	return in
}

func TestInbox_Matches(t *testing.T) {
	in := testInbox(t, nil)
	tests := []struct {
		path string
		want bool
	}{
		{"inbox/claims.csv", true},
		{"inbox/claims.csv.part", false},
		{"inbox/.claims.csv.swp", false},
		{"inbox/claims.jsonl", false},
	}
	for _, tt := range tests {
		if got := in.matches(tt.path); got != tt.want {
			t.Errorf("matches(%q) got = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestInbox_Process(t *testing.T) {
	st := store.NewMemoryStorage()
	in := testInbox(t, st)
	path := writeFile(t, in.cfg.Inbox, "claims.csv", testBatch)

	if err := in.process(context.Background(), path); err != nil {
		t.Fatalf("process() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(in.cfg.Processed, "claims.csv")); err != nil {
		t.Errorf("input not moved to processed: %v", err)
	}
	out := readFile(t, filepath.Join(in.cfg.Output, "claims_audited.csv"))
	if !strings.Contains(out, "HIV") {
		t.Errorf("audited output missing HIV trigger:\n%s", out)
	}
	n, err := st.CountRuns(context.Background(), nil)
	if err != nil || n != 1 {
		t.Errorf("CountRuns() got = %d, %v, want 1", n, err)
	}
}

func TestInbox_ProcessFailure(t *testing.T) {
	in := testInbox(t, nil)
	path := writeFile(t, in.cfg.Inbox, "claims.csv", "CLAIM_NUMBER,ACTIVITY_CODE\nC1,86689\n")

	if err := in.process(context.Background(), path); err == nil {
		t.Fatal("process() should fail without the approval status column")
	}
	if _, err := os.Stat(filepath.Join(in.cfg.Failed, "claims.csv")); err != nil {
		t.Errorf("input not moved to failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(in.cfg.Output, "claims_audited.csv")); !os.IsNotExist(err) {
		t.Errorf("failed input produced output: %v", err)
	}
}

func TestInbox_ProcessMissingFile(t *testing.T) {
	in := testInbox(t, nil)
	if err := in.process(context.Background(), filepath.Join(in.cfg.Inbox, "gone.csv")); err != nil {
		t.Errorf("process() on a vanished file error = %v, want nil", err)
	}
}

func TestInbox_RunProcessesQueuedFiles(t *testing.T) {
	in := testInbox(t, nil)
	writeFile(t, in.cfg.Inbox, "existing.csv", testBatch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()

	want := filepath.Join(in.cfg.Processed, "existing.csv")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(want); err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("%s was not processed in time", want)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
