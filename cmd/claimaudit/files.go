package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"mercator-hq/claimaudit/pkg/ingest"
	"mercator-hq/claimaudit/pkg/record"
)

// Output formats for audited record sets.
const (
	outputCSV   = "csv"
	outputJSONL = "jsonl"
)

// stdio names standard input or output in path arguments.
const stdio = "-"

// readInput reads a record set. Files ending in .jsonl or .ndjson are read
// as JSON Lines, anything else as CSV. "-" reads CSV from stdin.
func readInput(path string) (*record.Frame, error) {
	if path == stdio {
		return ingest.ReadCSV(os.Stdin)
	}
	if !isJSONL(path) {
		return ingest.ReadCSVFile(path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	f, err := ingest.ReadJSONL(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return f, nil
}

// writeOutput writes an audited record set to path, or stdout for "-".
func writeOutput(path, format string, f *record.Frame) error {
	if path == stdio {
		return encodeFrame(os.Stdout, format, f)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := encodeFrame(file, format, f); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}

func encodeFrame(w io.Writer, format string, f *record.Frame) error {
	if format == outputJSONL {
		return ingest.WriteJSONL(w, f)
	}
	return ingest.WriteCSV(w, f)
}

// outputPath names the audited copy of input inside dir.
func outputPath(dir, input, format string) string {
	base := filepath.Base(input)
	if input == stdio {
		base = "stdin"
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, base+"_audited."+format)
}

func isJSONL(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return true
	default:
		return false
	}
}
