package engine

import (
	"testing"

	"mercator-hq/claimaudit/pkg/catalog"
	"mercator-hq/claimaudit/pkg/record"
)

// frameOf builds a frame from loosely typed rows. nil is null, strings,
// numbers and bools map to their record kinds.
func frameOf(t *testing.T, names []string, rows ...[]any) *record.Frame {
	t.Helper()
	values := make([][]record.Value, len(rows))
	for i, row := range rows {
		values[i] = make([]record.Value, len(row))
		for j, cell := range row {
			switch v := cell.(type) {
			case nil:
				values[i][j] = record.Null()
			case string:
				values[i][j] = record.String(v)
			case int:
				values[i][j] = record.Number(float64(v))
			case float64:
				values[i][j] = record.Number(v)
			case bool:
				values[i][j] = record.Bool(v)
			default:
				t.Fatalf("unsupported cell type %T", cell)
			}
		}
	}
	f, err := record.NewFrame(names, values)
	if err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}
	return f
}

func allTrue(n int) record.Mask { return record.Fill(n, true) }

func cond(column, op string, operand any) catalog.ExtraCondition {
	return condition(column, op, operand)
}

func parseCatalog(t *testing.T, input string) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse([]byte(input), "test.yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return cat
}

func hasWarning[T error](warnings []error) bool {
	for _, w := range warnings {
		if _, ok := w.(T); ok {
			return true
		}
	}
	return false
}
