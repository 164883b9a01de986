package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type runs struct {
	rows [][]string
}

func (r runs) Header() []string { return []string{"id", "rows"} }
func (r runs) Rows() [][]string { return r.rows }

type banner string

func (b banner) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "== %s ==\n", string(b))
	return err
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{" csv ", FormatCSV, false},
		{"junit", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseOutputFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseOutputFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseOutputFormat(%q) got = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name     string
		data     interface{}
		contains []string
	}{
		{"plain value", "test message", []string{"test message\n"}},
		{"renderer", banner("run"), []string{"== run ==\n"}},
		{"table", runs{rows: [][]string{{"run-1", "42"}}}, []string{"id", "rows", "run-1", "42", "|"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := (&TextFormatter{}).Format(tt.data)
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(string(out), want) {
					t.Errorf("Format() = %q, want it to contain %q", out, want)
				}
			}
		})
	}
}

func TestJSONFormatter(t *testing.T) {
	data := struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}{Name: "test", Value: 42}

	for _, indent := range []bool{false, true} {
		buf := &bytes.Buffer{}
		if err := (&JSONFormatter{Indent: indent}).FormatTo(buf, data); err != nil {
			t.Fatalf("FormatTo() error = %v", err)
		}
		var got map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("FormatTo() produced invalid JSON: %v", err)
		}
		if got["name"] != "test" {
			t.Errorf("FormatTo() name got = %v, want test", got["name"])
		}
	}
}

func TestCSVFormatter(t *testing.T) {
	out, err := (&CSVFormatter{}).Format(runs{rows: [][]string{{"run-1", "42"}, {"run,2", "7"}}})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	want := "id,rows\nrun-1,42\n\"run,2\",7\n"
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Errorf("Format() mismatch (-want +got):\n%s", diff)
	}

	if _, err := (&CSVFormatter{}).Format("not a table"); !errors.Is(err, ErrNotTabular) {
		t.Errorf("Format() error = %v, want ErrNotTabular", err)
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format OutputFormat
		want   string
	}{
		{FormatText, "*cli.TextFormatter"},
		{FormatJSON, "*cli.JSONFormatter"},
		{FormatCSV, "*cli.CSVFormatter"},
		{"unknown", "*cli.TextFormatter"},
	}
	for _, tt := range tests {
		if got := fmt.Sprintf("%T", NewFormatter(tt.format)); got != tt.want {
			t.Errorf("NewFormatter(%q) type = %v, want %v", tt.format, got, tt.want)
		}
	}
}

func TestTable_Render(t *testing.T) {
	table := NewTable("Rules", []string{"key", "name"}, nil)
	table.AddRow("hiv", "General exclusion - HIV")
	table.AddRow("short")

	out := table.Render()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("Render() got %d lines, want 5:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "Rules") {
		t.Errorf("title line got = %q", lines[0])
	}
	if !strings.Contains(lines[3], "General exclusion - HIV") {
		t.Errorf("row line got = %q", lines[3])
	}
	if !strings.Contains(lines[4], "short") {
		t.Errorf("short row line got = %q", lines[4])
	}
}

func TestConfigError(t *testing.T) {
	tests := []struct {
		err  *ConfigError
		want string
	}{
		{NewConfigError("audit.data_type", "invalid"), "config error in audit.data_type: invalid"},
		{NewConfigError("", "failed to load config"), "config error: failed to load config"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestCommandError(t *testing.T) {
	base := errors.New("underlying error")
	err := NewCommandError("run", base)

	if got, want := err.Error(), "command run failed: underlying error"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, base) {
		t.Error("errors.Is() should work with CommandError.Unwrap()")
	}
}

func TestExitCode(t *testing.T) {
	findings := NewCommandError("run", errors.New("findings"))
	findings.Code = ExitFindings

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", errors.New("boom"), ExitFailure},
		{"config", NewConfigError("x", "y"), ExitConfig},
		{"wrapped config", fmt.Errorf("load: %w", NewConfigError("x", "y")), ExitConfig},
		{"command", NewCommandError("lint", errors.New("bad")), ExitFailure},
		{"command with code", findings, ExitFindings},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() got = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSetupSignalHandler(t *testing.T) {
	ctx, stop := SetupSignalHandler(context.Background())

	select {
	case <-ctx.Done():
		t.Fatal("context should not be cancelled initially")
	case <-time.After(10 * time.Millisecond):
	}

	stop()
	stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("stop() should cancel the context")
	}
}

func TestSetupSignalHandler_ParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := SetupSignalHandler(parent)
	defer stop()

	cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("parent cancellation should propagate")
	}
}

func TestSimpleProgress(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf, "files")

	progress.Start(4)
	progress.Update(2)
	progress.Finish()

	out := buf.String()
	for _, want := range []string{"Progress:", "(4/4)", "files/s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q should contain %q", out, want)
		}
	}
}

func TestSimpleProgress_ZeroTotalAndError(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewProgressReporter(buf, "")

	progress.Start(0)
	progress.Update(0)
	if strings.Contains(buf.String(), "Progress:") {
		t.Error("zero total should not render a bar")
	}

	progress.Error(errors.New("test error"))
	if !strings.Contains(buf.String(), "test error") {
		t.Error("Error() should print the error")
	}
}
