package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"mercator-hq/claimaudit/pkg/store"
)

// CSVExporter writes runs and findings as CSV.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

var findingHeader = []string{"run_id", "row", "column", "trigger", "claim_number", "preauth_number", "activity_code"}

var runHeader = []string{
	"id", "data_type", "insurer", "input", "catalog_source", "catalog_version",
	"started_at", "duration_ms", "rows", "raw_triggered", "final_triggered", "manual_triggered",
	"evaluated", "skipped", "failed", "diagnostics",
}

// ExportFindings writes findings, one per row.
func (e *CSVExporter) ExportFindings(ctx context.Context, findings []*store.Finding, w io.Writer) error {
	writer := csv.NewWriter(w)
	if e.IncludeHeader {
		if err := writer.Write(findingHeader); err != nil {
			return newError("csv", 0, err)
		}
	}
	for i, f := range findings {
		if err := writer.Write(findingRow(f)); err != nil {
			return newError("csv", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return newError("csv", len(findings), err)
	}
	return nil
}

// ExportFindingsStream writes findings as they arrive on findingsCh, flushing
// every 100 rows. It returns when the channel closes or ctx is cancelled.
func (e *CSVExporter) ExportFindingsStream(ctx context.Context, findingsCh <-chan *store.Finding, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(findingHeader); err != nil {
			return newError("csv", 0, err)
		}
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case f, ok := <-findingsCh:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return newError("csv", count, err)
				}
				return nil
			}
			if err := writer.Write(findingRow(f)); err != nil {
				return newError("csv", count, err)
			}
			count++
			if count%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return newError("csv", count, err)
				}
			}
		}
	}
}

// ExportRuns writes run summaries. Diagnostics are reduced to their count.
func (e *CSVExporter) ExportRuns(ctx context.Context, runs []*store.Run, w io.Writer) error {
	writer := csv.NewWriter(w)
	if e.IncludeHeader {
		if err := writer.Write(runHeader); err != nil {
			return newError("csv", 0, err)
		}
	}
	for i, r := range runs {
		row := []string{
			r.ID, r.DataType, r.Insurer, r.Input, r.CatalogSource, r.CatalogVersion,
			r.StartedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(r.Duration.Milliseconds(), 10),
			strconv.Itoa(r.Rows),
			strconv.Itoa(r.RawTriggered),
			strconv.Itoa(r.FinalTriggered),
			strconv.Itoa(r.ManualTriggered),
			strconv.Itoa(r.Evaluated),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Failed),
			strconv.Itoa(len(r.Diagnostics)),
		}
		if err := writer.Write(row); err != nil {
			return newError("csv", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return newError("csv", len(runs), err)
	}
	return nil
}

func findingRow(f *store.Finding) []string {
	return []string{
		f.RunID,
		strconv.Itoa(f.Row),
		string(f.Column),
		f.Trigger,
		f.ClaimNumber,
		f.PreAuthNumber,
		f.ActivityCode,
	}
}
