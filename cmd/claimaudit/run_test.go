package main

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/claimaudit/pkg/cli"
	"mercator-hq/claimaudit/pkg/record"
)

func resetRunFlags() {
	runFlags.dataType = ""
	runFlags.insurer = ""
	runFlags.catalogFile = ""
	runFlags.output = ""
	runFlags.outputFormat = ""
	runFlags.format = "text"
	runFlags.noStore = false
	runFlags.noManual = false
	runFlags.dayFirst = false
	runFlags.failOnFindings = false
}

func TestRunAudit_WritesAuditedFile(t *testing.T) {
	dir := t.TempDir()
	useConfig(t, writeFile(t, dir, "rules.yaml", testCatalog))
	input := writeFile(t, dir, "claims.csv", testBatch)

	resetRunFlags()
	runFlags.output = filepath.Join(dir, "out")
	runFlags.format = "json"
	buf := captureOutput(runCmd)

	if err := runAudit(runCmd, []string{input}); err != nil {
		t.Fatalf("runAudit() error = %v", err)
	}

	var report runReport
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("summary is not JSON: %v\n%s", err, buf.String())
	}
	if len(report.Runs) != 1 {
		t.Fatalf("runs got = %d, want 1", len(report.Runs))
	}
	s := report.Runs[0]
	if s.Error != "" {
		t.Fatalf("run error = %s", s.Error)
	}
	if s.Rows != 3 || s.RawTriggered != 2 || s.FinalTriggered != 1 || s.ManualTriggered != 1 {
		t.Errorf("summary got = %+v, want rows 3 raw 2 final 1 manual 1", s)
	}

	want := filepath.Join(dir, "out", "claims_audited.csv")
	if s.Output != want {
		t.Errorf("output got = %s, want %s", s.Output, want)
	}
	out := lines(readFile(t, want))
	if len(out) != 4 {
		t.Fatalf("audited file has %d lines, want 4", len(out))
	}
	for _, col := range []string{record.ColRawTriggers, record.ColFinalTriggers, record.ColManualTriggers} {
		if !strings.Contains(out[0], col) {
			t.Errorf("header %q missing column %q", out[0], col)
		}
	}
	if !strings.Contains(out[1], "HIV") {
		t.Errorf("row 1 got = %q, want HIV trigger", out[1])
	}
	if strings.Contains(out[3], "HIV") || strings.Contains(out[3], "Crown") {
		t.Errorf("row 3 got = %q, want no triggers", out[3])
	}
}

func TestRunAudit_JSONLOutput(t *testing.T) {
	dir := t.TempDir()
	useConfig(t, writeFile(t, dir, "rules.yaml", testCatalog))
	input := writeFile(t, dir, "claims.csv", testBatch)

	resetRunFlags()
	runFlags.output = filepath.Join(dir, "audited.jsonl")
	runFlags.outputFormat = "jsonl"
	captureOutput(runCmd)

	if err := runAudit(runCmd, []string{input}); err != nil {
		t.Fatalf("runAudit() error = %v", err)
	}
	out := lines(readFile(t, runFlags.output))
	if len(out) != 3 {
		t.Fatalf("audited file has %d lines, want 3", len(out))
	}
	var row map[string]any
	if err := json.Unmarshal([]byte(out[0]), &row); err != nil {
		t.Fatalf("line 1 is not JSON: %v", err)
	}
	if _, ok := row[record.ColFinalTriggers]; !ok {
		t.Errorf("line 1 got = %v, want %q key", row, record.ColFinalTriggers)
	}
}

func TestRunAudit_FailOnFindings(t *testing.T) {
	dir := t.TempDir()
	useConfig(t, writeFile(t, dir, "rules.yaml", testCatalog))
	input := writeFile(t, dir, "claims.csv", testBatch)

	resetRunFlags()
	runFlags.output = filepath.Join(dir, "out")
	runFlags.failOnFindings = true
	captureOutput(runCmd)

	err := runAudit(runCmd, []string{input})
	if got := cli.ExitCode(err); got != cli.ExitFindings {
		t.Errorf("ExitCode() got = %d, want %d (err %v)", got, cli.ExitFindings, err)
	}
}

func TestRunAudit_MissingStatusColumn(t *testing.T) {
	dir := t.TempDir()
	useConfig(t, writeFile(t, dir, "rules.yaml", testCatalog))
	input := writeFile(t, dir, "claims.csv", "CLAIM_NUMBER,ACTIVITY_CODE\nC1,86689\n")

	resetRunFlags()
	runFlags.output = filepath.Join(dir, "out")
	buf := captureOutput(runCmd)

	err := runAudit(runCmd, []string{input})
	var cmdErr *cli.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("runAudit() error = %v, want CommandError", err)
	}
	if !strings.Contains(buf.String(), "✗ "+input) {
		t.Errorf("summary got = %q, want failure line for %s", buf.String(), input)
	}
}

func TestRunAudit_InvalidFlags(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name  string
		setup func()
		args  []string
	}{
		{"bad type", func() { runFlags.dataType = "invoice" }, []string{"a.csv"}},
		{"bad output format", func() { runFlags.outputFormat = "xlsx" }, []string{"a.csv"}},
		{"bad summary format", func() { runFlags.format = "yaml" }, []string{"a.csv"}},
		{"file output with many inputs", func() { runFlags.output = filepath.Join(dir, "x.csv") }, []string{"a.csv", "b.csv"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useConfig(t, "")
			resetRunFlags()
			tt.setup()
			err := runAudit(runCmd, tt.args)
			var cfgErr *cli.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("runAudit() error = %v, want ConfigError", err)
			}
		})
	}
}

func TestResolveOutput(t *testing.T) {
	cfg := useConfig(t, "")
	cfg.Watch.Output = "data/output"
	cfg.Audit.OutputFormat = "csv"

	tests := []struct {
		output string
		want   string
	}{
		{"", filepath.Join("data/output", "claims_audited.csv")},
		{"-", "-"},
		{"result.csv", "result.csv"},
		{"out", filepath.Join("out", "claims_audited.csv")},
	}
	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			resetRunFlags()
			runFlags.output = tt.output
			if got := resolveOutput(cfg, "in/claims.csv"); got != tt.want {
				t.Errorf("resolveOutput() got = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRunReport_Rows(t *testing.T) {
	r := runReport{Runs: []runSummary{{RunID: "r1", Input: "a.csv", Output: "b.csv", Rows: 3, RawTriggered: 2, FinalTriggered: 1}}}
	rows := r.Rows()
	if len(rows) != 1 || len(rows[0]) != len(r.Header()) {
		t.Fatalf("Rows() got = %v, want one row of %d cells", rows, len(r.Header()))
	}
	if rows[0][3] != "3" || rows[0][4] != "2" || rows[0][5] != "1" {
		t.Errorf("Rows() counts got = %v", rows[0][3:6])
	}
}
