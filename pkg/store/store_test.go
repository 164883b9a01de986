package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/claimaudit/pkg/engine"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testRun(id string, offset time.Duration, dataType string, failed int) *Run {
	return &Run{
		ID:              id,
		DataType:        dataType,
		Insurer:         "QLM",
		Input:           id + ".csv",
		CatalogSource:   "builtin",
		CatalogVersion:  "abc123",
		StartedAt:       base.Add(offset),
		Duration:        1500 * time.Millisecond,
		Rows:            10,
		RawTriggered:    4,
		FinalTriggered:  3,
		ManualTriggered: 1,
		Evaluated:       40,
		Skipped:         10,
		Failed:          failed,
		Diagnostics: []engine.Diagnostic{
			{RuleKey: "hiv", RuleName: "HIV", Severity: engine.SeverityWarning, Kind: engine.KindMissingColumn, Message: "column SECONDARY_ICD_CODE missing"},
		},
	}
}

func testFindings() []*Finding {
	return []*Finding{
		{Row: 2, Trigger: "HIV", Column: FindingRaw, ClaimNumber: "C-2"},
		{Row: 0, Trigger: "Steam", Column: FindingManual, ActivityCode: "94640"},
		{Row: 0, Trigger: "HIV", Column: FindingRaw},
		{Row: 0, Trigger: "HIV", Column: FindingFinal},
	}
}

type backend struct {
	name string
	open func(t *testing.T) Storage
}

func backends() []backend {
	sqlite := func(driver string) func(t *testing.T) Storage {
		return func(t *testing.T) Storage {
			cfg := DefaultSQLiteConfig()
			cfg.Path = filepath.Join(t.TempDir(), "runs.db")
			cfg.Driver = driver
			s, err := NewSQLiteStorage(cfg, nil)
			if err != nil {
				t.Fatalf("NewSQLiteStorage() error = %v", err)
			}
			return s
		}
	}
	out := []backend{
		{"memory", func(t *testing.T) Storage { return NewMemoryStorage() }},
		{"sqlite3", sqlite(DriverCGO)},
		{"sqlite-purego", sqlite(DriverPureGo)},
	}
	if url := os.Getenv("CLAIMAUDIT_TEST_POSTGRES_URL"); url != "" {
		out = append(out, backend{"postgres", func(t *testing.T) Storage {
			s, err := NewPostgresStorage(context.Background(), &PostgresConfig{URL: url}, nil)
			if err != nil {
				t.Fatalf("NewPostgresStorage() error = %v", err)
			}
			if _, err := s.DeleteRuns(context.Background(), &Query{}); err != nil {
				t.Fatalf("DeleteRuns() error = %v", err)
			}
			return s
		}})
	}
	return out
}

func seed(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()
	runs := []*Run{
		testRun("run-a", 0, "claim", 0),
		testRun("run-b", time.Hour, "preauth", 2),
		testRun("run-c", 2*time.Hour, "claim", 0),
	}
	for _, r := range runs {
		var fs []*Finding
		if r.ID == "run-a" {
			fs = testFindings()
		}
		if err := s.SaveRun(ctx, r, fs); err != nil {
			t.Fatalf("SaveRun(%s) error = %v", r.ID, err)
		}
	}
}

func ids(runs []*Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}

func TestStorage_SaveAndGet(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()
			seed(t, s)
			ctx := context.Background()

			got, err := s.GetRun(ctx, "run-b")
			if err != nil {
				t.Fatalf("GetRun() error = %v", err)
			}
			want := testRun("run-b", time.Hour, "preauth", 2)
			if !got.StartedAt.Equal(want.StartedAt) {
				t.Errorf("StartedAt got = %v, want %v", got.StartedAt, want.StartedAt)
			}
			got.StartedAt = want.StartedAt
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("GetRun() mismatch (-want +got):\n%s", diff)
			}

			if _, err := s.GetRun(ctx, "nope"); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("GetRun(unknown) error = %v, want ErrRunNotFound", err)
			}
			if err := s.SaveRun(ctx, testRun("run-a", 0, "claim", 0), nil); !errors.Is(err, ErrDuplicateRun) {
				t.Errorf("SaveRun(duplicate) error = %v, want ErrDuplicateRun", err)
			}
		})
	}
}

func TestStorage_ListAndCount(t *testing.T) {
	start := base.Add(30 * time.Minute)
	tests := []struct {
		name  string
		query *Query
		want  []string
	}{
		{"default newest first", nil, []string{"run-c", "run-b", "run-a"}},
		{"ascending", &Query{SortOrder: "asc"}, []string{"run-a", "run-b", "run-c"}},
		{"data type", &Query{DataType: "claim"}, []string{"run-c", "run-a"}},
		{"start time", &Query{StartTime: &start}, []string{"run-c", "run-b"}},
		{"only failed", &Query{OnlyFailed: true}, []string{"run-b"}},
		{"limit offset", &Query{Limit: 1, Offset: 1}, []string{"run-b"}},
		{"offset past end", &Query{Offset: 5}, []string{}},
	}

	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()
			seed(t, s)
			ctx := context.Background()

			for _, tt := range tests {
				runs, err := s.ListRuns(ctx, tt.query)
				if err != nil {
					t.Fatalf("%s: ListRuns() error = %v", tt.name, err)
				}
				if diff := cmp.Diff(tt.want, ids(runs)); diff != "" {
					t.Errorf("%s: ListRuns() mismatch (-want +got):\n%s", tt.name, diff)
				}
			}

			n, err := s.CountRuns(ctx, &Query{DataType: "claim"})
			if err != nil || n != 2 {
				t.Errorf("CountRuns() got = %d, %v, want 2", n, err)
			}
			if _, err := s.ListRuns(ctx, &Query{SortBy: "bogus"}); err == nil {
				t.Error("ListRuns(bad sort) error = nil")
			}
		})
	}
}

func TestStorage_Findings(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()
			seed(t, s)
			ctx := context.Background()

			got, err := s.Findings(ctx, "run-a")
			if err != nil {
				t.Fatalf("Findings() error = %v", err)
			}
			want := []*Finding{
				{RunID: "run-a", Row: 0, Trigger: "HIV", Column: FindingFinal},
				{RunID: "run-a", Row: 0, Trigger: "Steam", Column: FindingManual, ActivityCode: "94640"},
				{RunID: "run-a", Row: 0, Trigger: "HIV", Column: FindingRaw},
				{RunID: "run-a", Row: 2, Trigger: "HIV", Column: FindingRaw, ClaimNumber: "C-2"},
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Findings() mismatch (-want +got):\n%s", diff)
			}

			ch, errCh, err := s.FindingsStream(ctx, "run-a")
			if err != nil {
				t.Fatalf("FindingsStream() error = %v", err)
			}
			var streamed []*Finding
			for f := range ch {
				streamed = append(streamed, f)
			}
			if err := <-errCh; err != nil {
				t.Errorf("FindingsStream() stream error = %v", err)
			}
			if diff := cmp.Diff(want, streamed); diff != "" {
				t.Errorf("FindingsStream() mismatch (-want +got):\n%s", diff)
			}

			if _, err := s.Findings(ctx, "nope"); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("Findings(unknown) error = %v, want ErrRunNotFound", err)
			}
		})
	}
}

func TestStorage_Delete(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()
			seed(t, s)
			ctx := context.Background()

			cutoff := base.Add(time.Hour)
			n, err := s.DeleteRuns(ctx, &Query{EndTime: &cutoff, Limit: 1})
			if err != nil {
				t.Fatalf("DeleteRuns() error = %v", err)
			}
			if n != 2 {
				t.Errorf("DeleteRuns() got = %d, want 2", n)
			}
			if _, err := s.Findings(ctx, "run-a"); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("Findings(deleted) error = %v, want ErrRunNotFound", err)
			}
			if count, _ := s.CountRuns(ctx, nil); count != 1 {
				t.Errorf("CountRuns() got = %d, want 1", count)
			}
		})
	}
}

func TestStorage_DeleteByIDs(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()
			seed(t, s)
			ctx := context.Background()

			n, err := s.DeleteRuns(ctx, &Query{IDs: []string{"run-a", "run-c", "run-z"}})
			if err != nil {
				t.Fatalf("DeleteRuns() error = %v", err)
			}
			if n != 2 {
				t.Errorf("DeleteRuns() got = %d, want 2", n)
			}
			runs, err := s.ListRuns(ctx, nil)
			if err != nil {
				t.Fatalf("ListRuns() error = %v", err)
			}
			if diff := cmp.Diff([]string{"run-b"}, ids(runs)); diff != "" {
				t.Errorf("remaining runs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	later := base.Add(time.Hour)
	tests := []struct {
		name    string
		query   Query
		wantErr bool
	}{
		{"empty", Query{}, false},
		{"negative limit", Query{Limit: -1}, true},
		{"limit too large", Query{Limit: MaxLimit + 1}, true},
		{"negative offset", Query{Offset: -1}, true},
		{"bad sort", Query{SortBy: "cost"}, true},
		{"bad order", Query{SortOrder: "up"}, true},
		{"inverted range", Query{StartTime: &later, EndTime: &base}, true},
		{"too many ids", Query{IDs: make([]string, MaxIDs+1)}, true},
		{"valid sort", Query{SortBy: "final_triggered", SortOrder: "asc"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.query)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			var qe *QueryError
			if err != nil && !errors.As(err, &qe) {
				t.Errorf("Validate() error type = %T, want *QueryError", err)
			}
		})
	}
}

func TestWhereClause(t *testing.T) {
	q := &Query{DataType: "claim", Insurer: "QLM", OnlyFailed: true}
	where, args := whereClause(q, dollar)
	if where != "data_type = $1 AND insurer = $2 AND failed > 0" {
		t.Errorf("whereClause() got = %q", where)
	}
	if diff := cmp.Diff([]any{"claim", "QLM"}, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestWhereClause_IDs(t *testing.T) {
	q := &Query{DataType: "claim", IDs: []string{"run-a", "run-b"}}
	where, args := whereClause(q, qmark)
	if where != "data_type = ? AND id IN (?, ?)" {
		t.Errorf("whereClause() got = %q", where)
	}
	if diff := cmp.Diff([]any{"claim", "run-a", "run-b"}, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), Config{Backend: BackendMemory}, nil)
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	if _, ok := s.(*MemoryStorage); !ok {
		t.Errorf("Open(memory) got = %T", s)
	}
	if _, err := Open(context.Background(), Config{Backend: "mongo"}, nil); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Open(mongo) error = %v, want ErrUnknownBackend", err)
	}
}
