package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/claimaudit/pkg/store"
)

func TestChecker_CheckReadiness(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   string
		failed []string
	}{
		{name: "no checks", want: StatusReady},
		{
			name: "all ok",
			checks: map[string]CheckFunc{
				"catalog": CatalogCheck(func() int { return 3 }),
				"store":   StoreCheck(store.NewMemoryStorage()),
			},
			want: StatusReady,
		},
		{
			name: "empty catalog",
			checks: map[string]CheckFunc{
				"catalog": CatalogCheck(func() int { return 0 }),
				"inbox":   DirCheck(t.TempDir()),
			},
			want:   StatusDegraded,
			failed: []string{"catalog"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second)
			for name, check := range tt.checks {
				c.RegisterCheck(name, check)
			}
			got := c.CheckReadiness(context.Background())
			if got.Status != tt.want {
				t.Errorf("CheckReadiness() status got = %q, want %q", got.Status, tt.want)
			}
			var failed []string
			for _, name := range c.ListChecks() {
				if got.Checks[name].Status == StatusUnhealthy {
					failed = append(failed, name)
				}
			}
			if diff := cmp.Diff(tt.failed, failed); diff != "" {
				t.Errorf("failed checks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestChecker_Timeout(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.RegisterCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	got := c.CheckReadiness(context.Background())
	if got.Checks["slow"].Message != ErrCheckTimeout.Error() {
		t.Errorf("slow check message got = %q, want %q", got.Checks["slow"].Message, ErrCheckTimeout.Error())
	}
}

func TestDirCheck(t *testing.T) {
	dir := t.TempDir()
	if err := DirCheck(dir)(context.Background()); err != nil {
		t.Errorf("DirCheck(existing) error = %v", err)
	}
	if err := DirCheck(dir + "/missing")(context.Background()); err == nil {
		t.Errorf("DirCheck(missing) error = nil, want error")
	}
}

func TestReadinessHandler(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("store", func(context.Context) error { return errors.New("locked") })

	mux := http.NewServeMux()
	Register(mux, c, "1.2.0", "abc", "2026-01-01")

	tests := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusServiceUnavailable},
		{http.MethodGet, "/version", http.StatusOK},
		{http.MethodPost, "/healthz", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.code {
			t.Errorf("%s %s code got = %d, want %d", tt.method, tt.path, rec.Code, tt.code)
		}
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if status.Checks["store"].Message != "locked" {
		t.Errorf("store message got = %q, want locked", status.Checks["store"].Message)
	}
}
