package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOutputPath(t *testing.T) {
	tests := []struct {
		dir, input, format string
		want               string
	}{
		{"out", "in/claims.csv", "csv", filepath.Join("out", "claims_audited.csv")},
		{"out", "claims.jsonl", "jsonl", filepath.Join("out", "claims_audited.jsonl")},
		{"out", "batch.2024.csv", "csv", filepath.Join("out", "batch.2024_audited.csv")},
		{"out", "-", "csv", filepath.Join("out", "stdin_audited.csv")},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := outputPath(tt.dir, tt.input, tt.format); got != tt.want {
				t.Errorf("outputPath() got = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsFileOutput(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"-", true},
		{"result.csv", true},
		{"result.CSV", true},
		{"result.jsonl", true},
		{"result.ndjson", true},
		{"out", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isFileOutput(tt.path); got != tt.want {
			t.Errorf("isFileOutput(%q) got = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestReadInput_JSONL(t *testing.T) {
	path := writeFile(t, t.TempDir(), "claims.jsonl",
		`{"CLAIM_NUMBER":"C1","ACTIVITY_CODE":"86689"}`+"\n"+`{"CLAIM_NUMBER":"C2","ACTIVITY_CODE":"D2720"}`+"\n")
	f, err := readInput(path)
	if err != nil {
		t.Fatalf("readInput() error = %v", err)
	}
	if f.Len() != 2 {
		t.Errorf("readInput() rows got = %d, want 2", f.Len())
	}
}

func TestWriteOutput_CreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	f, err := readInput(writeFile(t, dir, "claims.csv", testBatch))
	if err != nil {
		t.Fatalf("readInput() error = %v", err)
	}
	out := filepath.Join(dir, "a", "b", "claims.csv")
	if err := writeOutput(out, outputCSV, f); err != nil {
		t.Fatalf("writeOutput() error = %v", err)
	}
	got := lines(readFile(t, out))
	if len(got) != 4 || !strings.HasPrefix(got[0], "CLAIM_NUMBER,") {
		t.Errorf("written file got = %v", got)
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "processed")

	first, err := moveFile(writeFile(t, dir, "claims.csv", "a"), dest)
	if err != nil {
		t.Fatalf("moveFile() error = %v", err)
	}
	if first != filepath.Join(dest, "claims.csv") {
		t.Errorf("moveFile() got = %s, want %s", first, filepath.Join(dest, "claims.csv"))
	}

	second, err := moveFile(writeFile(t, dir, "claims.csv", "b"), dest)
	if err != nil {
		t.Fatalf("moveFile() error = %v", err)
	}
	if second == first {
		t.Fatalf("moveFile() overwrote %s", first)
	}
	if !strings.HasPrefix(filepath.Base(second), "claims_") || filepath.Ext(second) != ".csv" {
		t.Errorf("moveFile() second name got = %s", second)
	}
	if got := readFile(t, first); got != "a" {
		t.Errorf("first file content got = %q, want %q", got, "a")
	}
	if _, err := os.Stat(filepath.Join(dir, "claims.csv")); !os.IsNotExist(err) {
		t.Errorf("source still exists after move: %v", err)
	}
}
