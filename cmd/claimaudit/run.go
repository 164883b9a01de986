package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/claimaudit/pkg/audit"
	"mercator-hq/claimaudit/pkg/catalog"
	"mercator-hq/claimaudit/pkg/cli"
	"mercator-hq/claimaudit/pkg/config"
	"mercator-hq/claimaudit/pkg/store"
)

var runFlags struct {
	dataType       string
	insurer        string
	catalogFile    string
	output         string
	outputFormat   string
	format         string
	noStore        bool
	noManual       bool
	dayFirst       bool
	failOnFindings bool
}

var runCmd = &cobra.Command{
	Use:   "run [flags] FILE...",
	Short: "Audit claim or pre-authorization files",
	Long: `Audit one or more record files against the rule catalog.

Each input is preprocessed, evaluated by every active rule that applies to the
record type and written back with the raw, final and manual-verification
trigger columns. CSV and JSON Lines (.jsonl) inputs are accepted; "-" reads CSV
from stdin.

Examples:
  # Audit a claim batch, writing claims_audited.csv next to the config output dir
  claimaudit run --type claim claims.csv

  # Audit pre-authorizations with a custom catalog, JSON Lines output
  claimaudit run --type preauth --catalog rules.yaml --output-format jsonl preauth.csv

  # Write the audited file to stdout and the summary as JSON to stderr
  claimaudit run -o - --format json claims.csv

  # Exit with status 3 when any row carries a final trigger (for CI)
  claimaudit run --fail-on-findings claims.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.dataType, "type", "t", "", "record type: claim or preauth (overrides config)")
	runCmd.Flags().StringVar(&runFlags.insurer, "insurer", "", "insurer the batch belongs to (overrides config)")
	runCmd.Flags().StringVar(&runFlags.catalogFile, "catalog", "", "catalog file to use instead of the configured source")
	runCmd.Flags().StringVarP(&runFlags.output, "output", "o", "", "output directory, file (single input) or - for stdout")
	runCmd.Flags().StringVar(&runFlags.outputFormat, "output-format", "", "audited record format: csv or jsonl (overrides config)")
	runCmd.Flags().StringVar(&runFlags.format, "format", "text", "summary format: text, json, csv")
	runCmd.Flags().BoolVar(&runFlags.noStore, "no-store", false, "do not record runs in the store")
	runCmd.Flags().BoolVar(&runFlags.noManual, "no-manual-handling", false, "keep manual-verification triggers in the final column")
	runCmd.Flags().BoolVar(&runFlags.dayFirst, "day-first", false, "read ambiguous numeric dates day first")
	runCmd.Flags().BoolVar(&runFlags.failOnFindings, "fail-on-findings", false, "exit with status 3 when any row has a final trigger")
}

// runSummary is one line of the run command's report.
type runSummary struct {
	RunID           string        `json:"run_id"`
	Input           string        `json:"input"`
	Output          string        `json:"output"`
	DataType        string        `json:"data_type"`
	CatalogVersion  string        `json:"catalog_version"`
	Rows            int           `json:"rows"`
	RawTriggered    int           `json:"raw_triggered"`
	FinalTriggered  int           `json:"final_triggered"`
	ManualTriggered int           `json:"manual_triggered"`
	RulesFailed     int           `json:"rules_failed"`
	Duration        time.Duration `json:"duration"`
	Error           string        `json:"error,omitempty"`
}

type runReport struct {
	Runs []runSummary `json:"runs"`
}

func (r runReport) Header() []string {
	return []string{"run_id", "input", "output", "rows", "raw", "final", "manual", "rules_failed", "error"}
}

func (r runReport) Rows() [][]string {
	rows := make([][]string, len(r.Runs))
	for i, s := range r.Runs {
		rows[i] = []string{
			s.RunID, s.Input, s.Output,
			strconv.Itoa(s.Rows),
			strconv.Itoa(s.RawTriggered),
			strconv.Itoa(s.FinalTriggered),
			strconv.Itoa(s.ManualTriggered),
			strconv.Itoa(s.RulesFailed),
			s.Error,
		}
	}
	return rows
}

func (r runReport) RenderText(w io.Writer) error {
	for _, s := range r.Runs {
		if s.Error != "" {
			fmt.Fprintf(w, "✗ %s: %s\n", s.Input, s.Error)
			continue
		}
		fmt.Fprintf(w, "✓ %s → %s\n", s.Input, s.Output)
		fmt.Fprintf(w, "  Run ID: %s\n", s.RunID)
		fmt.Fprintf(w, "  Catalog: %s\n", s.CatalogVersion)
		fmt.Fprintf(w, "  Rows: %d (raw: %d, final: %d, manual: %d)\n",
			s.Rows, s.RawTriggered, s.FinalTriggered, s.ManualTriggered)
		if s.RulesFailed > 0 {
			fmt.Fprintf(w, "  ⚠  %d rule(s) failed and contributed no triggers\n", s.RulesFailed)
		}
		fmt.Fprintf(w, "  Duration: %s\n", s.Duration.Round(time.Millisecond))
	}
	return nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(runFlags.format)
	if err != nil {
		return cli.NewConfigError("--format", err.Error())
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cfg); err != nil {
		return err
	}
	if len(args) > 1 && isFileOutput(runFlags.output) {
		return cli.NewConfigError("--output", "a single output file needs a single input; pass a directory")
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	ctx, stop := cli.SetupSignalHandler(commandContext(cmd))
	defer stop()

	cat, _, err := loadCatalog(ctx, &cfg.Catalog)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to load catalog: %w", err))
	}
	reg, err := buildRegistry(cat, cfg.Catalog.Strict, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	tel, err := setupTelemetry(ctx, &cfg.Telemetry)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer tel.shutdown(logger)

	var st store.Storage
	if cfg.Store.Enabled {
		if st, err = openStore(ctx, &cfg.Store, logger); err != nil {
			return cli.NewCommandError("run", err)
		}
		defer st.Close()
	}

	auditor, err := newAuditor(cfg, cfg.Audit.DataType, reg, tel, st, logger)
	if err != nil {
		return err
	}

	var progress cli.ProgressReporter = cli.NoProgress{}
	if len(args) > 1 && format == cli.FormatText {
		progress = cli.NewProgressReporter(cmd.ErrOrStderr(), "files")
	}
	progress.Start(int64(len(args)))

	report := runReport{}
	failed := 0
	for i, input := range args {
		if ctx.Err() != nil {
			break
		}
		summary := auditFile(ctx, auditor, input, resolveOutput(cfg, input), cfg.Audit.OutputFormat)
		if summary.Error != "" {
			failed++
		}
		report.Runs = append(report.Runs, summary)
		progress.Update(int64(i + 1))
	}
	progress.Finish()

	// Audited records own stdout when written there.
	out := cmd.OutOrStdout()
	if runFlags.output == stdio {
		out = cmd.ErrOrStderr()
	}
	if err := cli.NewFormatter(format).FormatTo(out, report); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return cli.NewCommandError("run", err)
	}
	if failed > 0 {
		return cli.NewCommandError("run", fmt.Errorf("%d of %d input(s) failed", failed, len(args)))
	}
	if runFlags.failOnFindings {
		for _, s := range report.Runs {
			if s.FinalTriggered > 0 {
				e := cli.NewCommandError("run", errors.New("final triggers found"))
				e.Code = cli.ExitFindings
				return e
			}
		}
	}
	return nil
}

func applyRunFlags(cfg *config.Config) error {
	if runFlags.dataType != "" {
		dt, ok := config.NormalizeDataType(runFlags.dataType)
		if !ok {
			return cli.NewConfigError("--type", fmt.Sprintf("%v: %q", audit.ErrUnsupportedDataType, runFlags.dataType))
		}
		cfg.Audit.DataType = dt
	}
	if runFlags.insurer != "" {
		cfg.Audit.Insurer = runFlags.insurer
	}
	if runFlags.catalogFile != "" {
		cfg.Catalog.Mode = "file"
		cfg.Catalog.FilePath = runFlags.catalogFile
	}
	if runFlags.outputFormat != "" {
		switch f := strings.ToLower(runFlags.outputFormat); f {
		case outputCSV, outputJSONL:
			cfg.Audit.OutputFormat = f
		default:
			return cli.NewConfigError("--output-format", fmt.Sprintf("invalid output format %q: must be csv or jsonl", runFlags.outputFormat))
		}
	}
	if runFlags.noStore {
		cfg.Store.Enabled = false
	}
	if runFlags.noManual {
		cfg.Audit.ManualHandling = false
	}
	if runFlags.dayFirst {
		cfg.Audit.DayFirst = true
	}
	return nil
}

// resolveOutput picks where the audited copy of input goes: the --output
// file or stdout, a file inside the --output directory, or a file inside the
// configured output directory.
func resolveOutput(cfg *config.Config, input string) string {
	switch {
	case runFlags.output == stdio:
		return stdio
	case isFileOutput(runFlags.output):
		return runFlags.output
	case runFlags.output != "":
		return outputPath(runFlags.output, input, cfg.Audit.OutputFormat)
	default:
		return outputPath(cfg.Watch.Output, input, cfg.Audit.OutputFormat)
	}
}

func isFileOutput(path string) bool {
	if path == stdio {
		return true
	}
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".csv") || isJSONL(lower)
}

// auditFile audits one input. Failures are reported in the summary so the
// remaining inputs still run.
func auditFile(ctx context.Context, a *audit.Auditor, input, output, format string) runSummary {
	summary := runSummary{Input: input, Output: output, DataType: string(a.DataType())}

	frame, err := readInput(input)
	if err != nil {
		summary.Error = err.Error()
		return summary
	}
	res, err := a.Execute(ctx, frame, input)
	var perr *audit.PersistError
	if err != nil && !errors.As(err, &perr) {
		summary.Error = err.Error()
		return summary
	}

	summary.RunID = res.RunID
	summary.CatalogVersion = catalogLabel(res.Run.CatalogSource, res.Run.CatalogVersion)
	summary.Rows = res.Summary.Rows
	summary.RawTriggered = res.Summary.RawTriggered
	summary.FinalTriggered = res.Summary.FinalTriggered
	summary.ManualTriggered = res.Summary.ManualTriggered
	summary.RulesFailed = res.Report.Failed
	summary.Duration = res.Run.Duration

	if err := writeOutput(output, format, res.Output); err != nil {
		summary.Error = err.Error()
		return summary
	}
	if perr != nil {
		summary.Error = perr.Error()
	}
	return summary
}

func catalogLabel(source, version string) string {
	if source == "" || source == catalog.BuiltinSource {
		return version + " (builtin)"
	}
	return version + " (" + source + ")"
}
