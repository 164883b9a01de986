package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/claimaudit/pkg/store"
)

// JSONExporter writes runs and findings as JSON arrays.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// ExportRuns writes runs as one JSON array.
func (e *JSONExporter) ExportRuns(ctx context.Context, runs []*store.Run, w io.Writer) error {
	if runs == nil {
		runs = []*store.Run{}
	}
	return e.write(runs, len(runs), w)
}

// ExportFindings writes findings as one JSON array.
func (e *JSONExporter) ExportFindings(ctx context.Context, findings []*store.Finding, w io.Writer) error {
	if findings == nil {
		findings = []*store.Finding{}
	}
	return e.write(findings, len(findings), w)
}

func (e *JSONExporter) write(v any, n int, w io.Writer) error {
	var data []byte
	var err error
	if e.Pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return newError("json", n, err)
	}
	if _, err := w.Write(data); err != nil {
		return newError("json", n, err)
	}
	return nil
}

// ExportFindingsStream writes a JSON array of findings as they arrive on
// findingsCh.
func (e *JSONExporter) ExportFindingsStream(ctx context.Context, findingsCh <-chan *store.Finding, w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return newError("json", 0, err)
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case f, ok := <-findingsCh:
			if !ok {
				if _, err := io.WriteString(w, "]"); err != nil {
					return newError("json", count, err)
				}
				return nil
			}
			if count > 0 {
				sep := ","
				if e.Pretty {
					sep = ",\n"
				}
				if _, err := io.WriteString(w, sep); err != nil {
					return newError("json", count, err)
				}
			}

			var data []byte
			var err error
			if e.Pretty {
				data, err = json.MarshalIndent(f, "  ", "  ")
			} else {
				data, err = json.Marshal(f)
			}
			if err != nil {
				return newError("json", count, err)
			}
			if _, err := w.Write(data); err != nil {
				return newError("json", count, err)
			}
			count++
		}
	}
}
