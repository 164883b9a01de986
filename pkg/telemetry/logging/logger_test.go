package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, output %q", err, buf.String())
	}
	return entry
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad level", Config{Level: "verbose"}},
		{"bad format", Config{Format: "xml"}},
		{"bad pattern", Config{RedactPII: true, RedactPatterns: []RedactPattern{{Name: "broken", Pattern: "("}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Errorf("New() error = nil, want error")
			}
		})
	}
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info record written at warn level: %q", buf.String())
	}
	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn record missing: %q", buf.String())
	}
}

func TestHandler_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := WithRunID(context.Background(), "run-1")
	ctx = WithRuleKey(ctx, "R007")
	ctx = WithInput(ctx, "claims.csv")
	logger.InfoContext(ctx, "rule evaluated", "triggered", 3)

	entry := decodeLine(t, &buf)
	want := map[string]any{
		"run_id":    "run-1",
		"rule_key":  "R007",
		"input":     "claims.csv",
		"triggered": float64(3),
		"msg":       "rule evaluated",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("entry[%q] got = %v, want %v", k, entry[k], v)
		}
	}
}

func TestHandler_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf, RedactPII: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.With("member_id", "M-1001").Info("audit",
		"note", "QID 28412345678 emailed a.b@example.com",
		"err", errors.New("card 4111 1111 1111 1111 declined"),
		"patient_name", "Jane Doe",
		"claim", "CLM-12345678",
	)

	entry := decodeLine(t, &buf)
	want := map[string]any{
		"member_id":    "***",
		"patient_name": "***",
		"note":         "QID *********** emailed ***@***",
		"err":          "card ****-****-****-**** declined",
		"claim":        "CLM-12345678",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("entry[%q] got = %v, want %v", k, entry[k], v)
		}
	}
}

func TestHandler_NoRedactionByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf, Format: "text"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("audit", "member_id", "M-1001")
	if !strings.Contains(buf.String(), "member_id=M-1001") {
		t.Errorf("output got = %q, want unredacted member_id", buf.String())
	}
}

func TestRedactor_RedactString(t *testing.T) {
	r, skipped := NewRedactor([]RedactPattern{
		{Name: "policy", Pattern: `POL-\d+`, Replacement: "POL-***"},
	})
	if len(skipped) != 0 {
		t.Fatalf("NewRedactor() skipped = %v", skipped)
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"qid", "member 28412345678", "member ***********"},
		{"email", "contact ops@clinic.qa now", "contact ***@*** now"},
		{"card", "4111-1111-1111-1111", "****-****-****-****"},
		{"phone", "call +974 5551 2345", "call ****-****"},
		{"custom", "policy POL-991", "policy POL-***"},
		{"untouched", "activity 99213 on claim 100234", "activity 99213 on claim 100234"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.RedactString(tt.input); got != tt.want {
				t.Errorf("RedactString(%q) got = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRedactor_RedactAttr_Group(t *testing.T) {
	r, _ := NewRedactor(nil)
	got := r.RedactAttr(slog.Group("member", slog.String("qid", "28412345678"), slog.Int("age", 40)))
	attrs := got.Value.Group()
	if len(attrs) != 2 {
		t.Fatalf("group len got = %d, want 2", len(attrs))
	}
	if attrs[0].Value.String() != "***" {
		t.Errorf("qid got = %q, want ***", attrs[0].Value.String())
	}
	if attrs[1].Value.Int64() != 40 {
		t.Errorf("age got = %d, want 40", attrs[1].Value.Int64())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if err != nil {
			t.Errorf("ParseLevel(%q) error = %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) got = %v, want %v", tt.input, got, tt.want)
		}
	}
}
