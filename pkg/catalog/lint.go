package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Lint reports problems that do not stop a catalog from loading but change how
// its rules behave at run time.
func Lint(c *Catalog) []*Error {
	var out []*Error
	names := make(map[string][]string)

	for _, r := range c.Rules() {
		names[r.Name] = append(names[r.Name], r.Key)

		if m, ok := r.Params.(Masked); ok {
			out = append(out, lintConditions(r, m.Common())...)
		}
		if p, ok := r.Params.(*PairParams); ok && p.PairRule.NullKeyPolicy == NullKeyShared {
			out = append(out, &Error{
				Type:       ErrorTypeLint,
				RuleKey:    r.Key,
				Message:    "pair rule correlates rows without identifiers in one shared group",
				Location:   r.Location,
				Suggestion: "set null_key_policy: isolate if unidentified rows must never be paired",
			})
		}
	}

	dupes := make([]string, 0)
	for name, keys := range names {
		if len(keys) > 1 {
			dupes = append(dupes, name)
		}
	}
	sort.Strings(dupes)
	for _, name := range dupes {
		keys := names[name]
		r, _ := c.Get(keys[0])
		out = append(out, &Error{
			Type:       ErrorTypeLint,
			RuleKey:    keys[0],
			Message:    fmt.Sprintf("trigger name %q is shared by rules %s", name, strings.Join(keys, ", ")),
			Location:   r.Location,
			Suggestion: "give each rule a distinct name so its triggers can be told apart",
		})
	}
	return out
}

func lintConditions(r *Rule, mf *MaskFields) []*Error {
	var out []*Error
	for i, ec := range mf.ExtraConditions {
		for _, op := range ec.Condition {
			where := fmt.Sprintf("extra_conditions[%d] on %q", i, ec.Column)
			switch {
			case !IsKnownOperator(op.Op):
				out = append(out, &Error{
					Type:       ErrorTypeLint,
					RuleKey:    r.Key,
					Message:    fmt.Sprintf("%s uses unknown operator %q; the rule will never trigger", where, op.Op),
					Location:   r.Location,
					Suggestion: fmt.Sprintf("use one of %s", strings.Join(KnownOperators, ", ")),
				})
			case isNumericOp(op.Op) && !isNumber(op.Operand):
				out = append(out, &Error{
					Type:     ErrorTypeLint,
					RuleKey:  r.Key,
					Message:  fmt.Sprintf("%s: %s operand %v is not a number; the clause is ignored", where, op.Op, op.Operand),
					Location: r.Location,
				})
			case (op.Op == "isin" || op.Op == "notin") && !isList(op.Operand):
				out = append(out, &Error{
					Type:       ErrorTypeLint,
					RuleKey:    r.Key,
					Message:    fmt.Sprintf("%s: %s operand is not a list; the rule will never trigger", where, op.Op),
					Location:   r.Location,
					Suggestion: "give a list of values or a __field__ reference",
				})
			}
		}
	}
	return out
}

func isNumericOp(op string) bool {
	return op == "gt" || op == "gte" || op == "lt" || op == "lte"
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int64, uint64, float64:
		return true
	}
	return false
}

func isList(v any) bool {
	switch v.(type) {
	case []string, []any:
		return true
	}
	return false
}
