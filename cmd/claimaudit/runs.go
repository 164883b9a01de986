package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/claimaudit/pkg/cli"
	"mercator-hq/claimaudit/pkg/config"
	"mercator-hq/claimaudit/pkg/store"
	"mercator-hq/claimaudit/pkg/store/export"
	"mercator-hq/claimaudit/pkg/store/retention"
)

var runsFlags struct {
	since     time.Duration
	timeRange string
	dataType  string
	insurer   string
	catalog   string
	failed    bool
	limit     int
	offset    int
	format    string
	output    string
	stream    bool
	days      int
	maxRuns   int64
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Query recorded audit runs",
	Long: `Query, export and prune the audit runs recorded in the run store.

Examples:
  # Runs from the last 24 hours
  claimaudit runs list --since 24h

  # Pre-authorization runs in which a rule failed, as JSON
  claimaudit runs list --type preauth --failed --format json

  # One run with its counts and diagnostics
  claimaudit runs show 5f0c1e0a-...

  # Export the findings of a run as CSV
  claimaudit runs export 5f0c1e0a-... --format csv --output findings.csv

  # Apply the retention policy now
  claimaudit runs prune --days 30`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE:  listRuns,
}

var runsShowCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Show one run",
	Args:  cobra.ExactArgs(1),
	RunE:  showRun,
}

var runsExportCmd = &cobra.Command{
	Use:   "export RUN_ID",
	Short: "Export the findings of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  exportRun,
}

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete runs outside the retention policy",
	RunE:  pruneRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsExportCmd, runsPruneCmd)

	runsListCmd.Flags().DurationVar(&runsFlags.since, "since", 0, "only runs started within this duration (e.g. 24h)")
	runsListCmd.Flags().StringVar(&runsFlags.timeRange, "time-range", "", "RFC3339 start/end interval")
	runsListCmd.Flags().StringVarP(&runsFlags.dataType, "type", "t", "", "filter by record type")
	runsListCmd.Flags().StringVar(&runsFlags.insurer, "insurer", "", "filter by insurer")
	runsListCmd.Flags().StringVar(&runsFlags.catalog, "catalog-version", "", "filter by catalog version")
	runsListCmd.Flags().BoolVar(&runsFlags.failed, "failed", false, "only runs in which a rule failed")
	runsListCmd.Flags().IntVar(&runsFlags.limit, "limit", 100, "maximum number of runs")
	runsListCmd.Flags().IntVar(&runsFlags.offset, "offset", 0, "number of runs to skip")
	runsListCmd.Flags().StringVar(&runsFlags.format, "format", "text", "output format: text, json, csv")

	runsShowCmd.Flags().StringVar(&runsFlags.format, "format", "text", "output format: text, json")

	runsExportCmd.Flags().StringVar(&runsFlags.format, "format", "csv", "export format: csv, json")
	runsExportCmd.Flags().StringVarP(&runsFlags.output, "output", "o", "", "output file (default stdout)")
	runsExportCmd.Flags().BoolVar(&runsFlags.stream, "stream", false, "stream findings instead of loading them at once")

	runsPruneCmd.Flags().IntVar(&runsFlags.days, "days", -1, "retention in days (default from config)")
	runsPruneCmd.Flags().Int64Var(&runsFlags.maxRuns, "max-runs", -1, "maximum runs to keep (default from config)")
}

// openRunStore opens the configured store for the runs commands.
func openRunStore(ctx context.Context) (*config.Config, store.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Store.Enabled {
		return nil, nil, cli.NewConfigError("store.enabled", "the run store is disabled")
	}
	logger, err := setupLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	st, err := openStore(ctx, &cfg.Store, logger)
	if err != nil {
		return nil, nil, cli.NewCommandError("runs", err)
	}
	return cfg, st, nil
}

// runTable renders runs as rows.
type runTable struct {
	Runs  []*store.Run `json:"runs"`
	Total int64        `json:"total"`
}

func (t runTable) Header() []string {
	return []string{"id", "started_at", "data_type", "insurer", "catalog", "rows", "raw", "final", "manual", "failed"}
}

func (t runTable) Rows() [][]string {
	rows := make([][]string, len(t.Runs))
	for i, r := range t.Runs {
		rows[i] = []string{
			r.ID,
			r.StartedAt.UTC().Format(time.RFC3339),
			r.DataType,
			r.Insurer,
			r.CatalogVersion,
			strconv.Itoa(r.Rows),
			strconv.Itoa(r.RawTriggered),
			strconv.Itoa(r.FinalTriggered),
			strconv.Itoa(r.ManualTriggered),
			strconv.Itoa(r.Failed),
		}
	}
	return rows
}

func (t runTable) RenderText(w io.Writer) error {
	if len(t.Runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs found")
		return err
	}
	title := fmt.Sprintf("Runs (%d of %d)", len(t.Runs), t.Total)
	_, err := fmt.Fprint(w, cli.NewTable(title, t.Header(), t.Rows()).Render())
	return err
}

func buildRunQuery() (*store.Query, error) {
	q := &store.Query{
		Insurer:        runsFlags.insurer,
		CatalogVersion: runsFlags.catalog,
		OnlyFailed:     runsFlags.failed,
		Limit:          runsFlags.limit,
		Offset:         runsFlags.offset,
		SortBy:         "started_at",
		SortOrder:      "desc",
	}
	if runsFlags.dataType != "" {
		dt, ok := config.NormalizeDataType(runsFlags.dataType)
		if !ok {
			return nil, cli.NewConfigError("--type", fmt.Sprintf("unsupported data type %q", runsFlags.dataType))
		}
		q.DataType = dt
	}
	switch {
	case runsFlags.timeRange != "" && runsFlags.since > 0:
		return nil, cli.NewConfigError("", "--since and --time-range are mutually exclusive")
	case runsFlags.timeRange != "":
		start, end, err := parseTimeRange(runsFlags.timeRange)
		if err != nil {
			return nil, cli.NewConfigError("--time-range", err.Error())
		}
		q.StartTime, q.EndTime = &start, &end
	case runsFlags.since > 0:
		start := time.Now().Add(-runsFlags.since)
		q.StartTime = &start
	}
	if q.Limit > store.MaxLimit {
		return nil, cli.NewConfigError("--limit", fmt.Sprintf("limit cannot exceed %d", store.MaxLimit))
	}
	return q, nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(runsFlags.format)
	if err != nil {
		return cli.NewConfigError("--format", err.Error())
	}
	q, err := buildRunQuery()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	_, st, err := openRunStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx, q)
	if err != nil {
		return cli.NewCommandError("runs list", err)
	}
	total, err := st.CountRuns(ctx, q)
	if err != nil {
		return cli.NewCommandError("runs list", err)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), runTable{Runs: runs, Total: total})
}

// runDetail renders a single run.
type runDetail struct {
	*store.Run
}

func (d runDetail) RenderText(w io.Writer) error {
	r := d.Run
	fmt.Fprintf(w, "Run %s\n", r.ID)
	fmt.Fprintf(w, "  Started:  %s\n", r.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "  Duration: %s\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Type:     %s\n", r.DataType)
	if r.Insurer != "" {
		fmt.Fprintf(w, "  Insurer:  %s\n", r.Insurer)
	}
	if r.Input != "" {
		fmt.Fprintf(w, "  Input:    %s\n", r.Input)
	}
	fmt.Fprintf(w, "  Catalog:  %s\n", catalogLabel(r.CatalogSource, r.CatalogVersion))
	fmt.Fprintf(w, "  Rows:     %d (raw: %d, final: %d, manual: %d)\n",
		r.Rows, r.RawTriggered, r.FinalTriggered, r.ManualTriggered)
	fmt.Fprintf(w, "  Rules:    %d evaluated, %d skipped, %d failed\n", r.Evaluated, r.Skipped, r.Failed)
	if len(r.Diagnostics) > 0 {
		fmt.Fprintln(w, "  Diagnostics:")
		for _, diag := range r.Diagnostics {
			fmt.Fprintf(w, "    - [%s] %s %s: %s\n", diag.Severity, diag.RuleKey, diag.Kind, diag.Message)
		}
	}
	return nil
}

func showRun(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(runsFlags.format)
	if err != nil || format == cli.FormatCSV {
		return cli.NewConfigError("--format", fmt.Sprintf("invalid format %q: must be text or json", runsFlags.format))
	}
	ctx := commandContext(cmd)
	_, st, err := openRunStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.GetRun(ctx, args[0])
	if errors.Is(err, store.ErrRunNotFound) {
		return cli.NewCommandError("runs show", fmt.Errorf("run %s not found", args[0]))
	}
	if err != nil {
		return cli.NewCommandError("runs show", err)
	}
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), run)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), runDetail{run})
}

// findingExporter is implemented by the CSV and JSON exporters.
type findingExporter interface {
	ExportFindings(ctx context.Context, findings []*store.Finding, w io.Writer) error
	ExportFindingsStream(ctx context.Context, findingsCh <-chan *store.Finding, w io.Writer) error
}

func exportRun(cmd *cobra.Command, args []string) (err error) {
	var exporter findingExporter
	switch runsFlags.format {
	case "csv":
		exporter = export.NewCSVExporter(true)
	case "json":
		exporter = export.NewJSONExporter(true)
	default:
		return cli.NewConfigError("--format", fmt.Sprintf("invalid export format %q: must be csv or json", runsFlags.format))
	}

	ctx := commandContext(cmd)
	_, st, err := openRunStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := st.GetRun(ctx, args[0]); err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return cli.NewCommandError("runs export", fmt.Errorf("run %s not found", args[0]))
		}
		return cli.NewCommandError("runs export", err)
	}

	w := cmd.OutOrStdout()
	if runsFlags.output != "" {
		f, err := os.Create(runsFlags.output)
		if err != nil {
			return cli.NewCommandError("runs export", fmt.Errorf("failed to create output file: %w", err))
		}
		defer func() {
			if cerr := f.Close(); err == nil && cerr != nil {
				err = cli.NewCommandError("runs export", cerr)
			}
		}()
		w = f
	}

	if !runsFlags.stream {
		findings, err := st.Findings(ctx, args[0])
		if err != nil {
			return cli.NewCommandError("runs export", err)
		}
		if err := exporter.ExportFindings(ctx, findings, w); err != nil {
			return cli.NewCommandError("runs export", err)
		}
		return nil
	}

	findingsCh, errCh, err := st.FindingsStream(ctx, args[0])
	if err != nil {
		return cli.NewCommandError("runs export", err)
	}
	if err := exporter.ExportFindingsStream(ctx, findingsCh, w); err != nil {
		return cli.NewCommandError("runs export", err)
	}
	if err := <-errCh; err != nil {
		return cli.NewCommandError("runs export", err)
	}
	return nil
}

func pruneRuns(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	cfg, st, err := openRunStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	rc := cfg.Store.RetentionConfig()
	if runsFlags.days >= 0 {
		rc.RetentionDays = runsFlags.days
	}
	if runsFlags.maxRuns >= 0 {
		rc.MaxRuns = runsFlags.maxRuns
	}
	if rc.RetentionDays == 0 && rc.MaxRuns == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Retention is disabled; nothing to prune")
		return nil
	}

	pruner := retention.NewPruner(st, rc, slog.Default())
	deleted, err := pruner.Prune(ctx)
	if err != nil {
		return cli.NewCommandError("runs prune", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d run(s)\n", deleted)
	return nil
}
