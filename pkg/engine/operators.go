package engine

import (
	"fmt"

	"mercator-hq/claimaudit/pkg/catalog"
	"mercator-hq/claimaudit/pkg/record"
)

// evaluateOperation computes the row mask of one operator over a column. A
// non-nil warning means the operation was dropped or forced false.
func evaluateOperation(column string, values []record.Value, op catalog.Operation) (record.Mask, error) {
	n := len(values)

	switch op.Op {
	case "gt", "gte", "lt", "lte":
		threshold, ok := toFloat(op.Operand)
		if !ok {
			return record.Fill(n, true), &OperandError{Column: column, Operator: op.Op, Operand: op.Operand, Dropped: true}
		}
		cmp := numericComparison(op.Op, threshold)
		return record.MaskOf(n, func(i int) bool {
			f, ok := values[i].Float()
			return ok && cmp(f)
		}), nil

	case "eq":
		want := record.Fold(operandText(op.Operand))
		return record.MaskOf(n, func(i int) bool {
			return !values[i].IsNull() && record.Fold(values[i].Text()) == want
		}), nil

	case "neq":
		want := record.Fold(operandText(op.Operand))
		return record.MaskOf(n, func(i int) bool {
			return values[i].IsNull() || record.Fold(values[i].Text()) != want
		}), nil

	case "isin", "notin":
		set, ok := operandSet(op.Operand)
		if !ok {
			return record.Fill(n, false), &OperandError{Column: column, Operator: op.Op, Operand: op.Operand}
		}
		in := op.Op == "isin"
		return record.MaskOf(n, func(i int) bool {
			if values[i].IsNull() {
				return !in
			}
			_, found := set[values[i].Text()]
			return found == in
		}), nil

	case "notna":
		wantPresent := true
		if b, ok := op.Operand.(bool); ok {
			wantPresent = b
		}
		return record.MaskOf(n, func(i int) bool {
			return values[i].IsNull() != wantPresent
		}), nil

	default:
		return record.Fill(n, false), &UnknownOperatorError{Column: column, Operator: op.Op}
	}
}

func numericComparison(op string, threshold float64) func(float64) bool {
	switch op {
	case "gt":
		return func(f float64) bool { return f > threshold }
	case "gte":
		return func(f float64) bool { return f >= threshold }
	case "lt":
		return func(f float64) bool { return f < threshold }
	default:
		return func(f float64) bool { return f <= threshold }
	}
}

// toFloat converts the numeric operand types yaml.v3 produces.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func operandText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	}
	if f, ok := toFloat(v); ok {
		return record.Number(f).Text()
	}
	return fmt.Sprint(v)
}

func operandSet(v any) (map[string]struct{}, bool) {
	switch items := v.(type) {
	case []string:
		set := make(map[string]struct{}, len(items))
		for _, s := range items {
			set[s] = struct{}{}
		}
		return set, true
	case []any:
		set := make(map[string]struct{}, len(items))
		for _, s := range items {
			set[operandText(s)] = struct{}{}
		}
		return set, true
	}
	return nil, false
}
