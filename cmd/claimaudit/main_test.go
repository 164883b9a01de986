package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"mercator-hq/claimaudit/pkg/config"
)

const testCatalog = `
rules:
  hiv:
    name: HIV
    parameters: {incl_codes: ["86689"], incl_col: ACTIVITY_CODE}
  crown:
    name: Crown
    case_type: claim
    review_req: manual
    parameters: {incl_codes: [D2720], incl_col: ACTIVITY_CODE}
`

const testBatch = `CLAIM_NUMBER,ACTIVITY_CODE,PROVIDER_NAME,Activity status-Rejected/Approve
C1,86689,Clinic A,Approved
C2,D2720,Clinic A,Approved
C3,99213,Clinic A,Approved
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

// useConfig installs a default configuration with the run store disabled and
// the catalog read from catalogPath.
func useConfig(t *testing.T, catalogPath string) *config.Config {
	t.Helper()
	cfg := config.NewDefault()
	cfg.Store.Enabled = false
	cfg.Telemetry.Logging.Level = "error"
	if catalogPath != "" {
		cfg.Catalog.Mode = "file"
		cfg.Catalog.FilePath = catalogPath
	}
	prev := config.GetConfig()
	config.SetConfig(cfg)
	t.Cleanup(func() { config.SetConfig(prev) })
	return cfg
}

func captureOutput(cmd *cobra.Command) *bytes.Buffer {
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	return &buf
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	return string(data)
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}
