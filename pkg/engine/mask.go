package engine

import (
	"context"
	"fmt"

	"mercator-hq/claimaudit/pkg/catalog"
	"mercator-hq/claimaudit/pkg/record"
)

// Clause matches one column against a code list. Matching is case-insensitive
// exact equality.
type Clause struct {
	Column string
	Codes  []string
}

// MaskSpec is the declarative input of the mask evaluator. An empty slice
// means the part is absent.
type MaskSpec struct {
	// Inclusion clauses are OR'd. Absent means every row is included.
	Inclusion []Clause

	// Exclusion clauses are AND'd: a row survives only if it matches none of
	// the excluded values in every clause.
	Exclusion []Clause

	// Extra conditions are AND'd, and every operator within one condition is
	// AND'd as well.
	Extra []catalog.ExtraCondition
}

// Empty reports whether the spec supplies no predicate at all.
func (s MaskSpec) Empty() bool {
	return len(s.Inclusion) == 0 && len(s.Exclusion) == 0 && len(s.Extra) == 0
}

// EvaluateMask computes
//
//	inclusion-present AND exclusion-absent AND extra-present AND approved
//
// for every row of frame. Warnings describe clauses that were narrowed; the
// returned error means the rule could not be evaluated at all.
func EvaluateMask(ctx context.Context, frame *record.Frame, approved record.Mask, spec MaskSpec) (record.Mask, []error, error) {
	if spec.Empty() {
		return nil, nil, ErrNoPredicate
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	n := frame.Len()
	if len(approved) != n {
		return nil, nil, fmt.Errorf("%w: approved has %d rows, frame has %d", ErrMaskLength, len(approved), n)
	}

	var warnings []error

	included, w := inclusionMask(frame, spec.Inclusion)
	warnings = append(warnings, w...)

	excluded, w := exclusionAbsentMask(frame, spec.Exclusion)
	warnings = append(warnings, w...)

	extra, w, err := extraMask(frame, spec.Extra)
	if err != nil {
		return nil, warnings, err
	}
	warnings = append(warnings, w...)

	return included.And(excluded).And(extra).And(approved), warnings, nil
}

func inclusionMask(frame *record.Frame, clauses []Clause) (record.Mask, []error) {
	n := frame.Len()
	if len(clauses) == 0 {
		return record.Fill(n, true), nil
	}

	var warnings []error
	var out record.Mask
	for _, c := range clauses {
		values, ok := frame.Column(c.Column)
		if !ok {
			warnings = append(warnings, &MissingColumnWarning{Clause: "inclusion", Column: c.Column})
			continue
		}
		m := matchCodes(values, c.Codes)
		if out == nil {
			out = m
		} else {
			out = out.Or(m)
		}
	}
	if out == nil {
		// Every clause referenced a missing column.
		return record.Fill(n, true), warnings
	}
	return out, warnings
}

func exclusionAbsentMask(frame *record.Frame, clauses []Clause) (record.Mask, []error) {
	out := record.Fill(frame.Len(), true)
	var warnings []error
	for _, c := range clauses {
		values, ok := frame.Column(c.Column)
		if !ok {
			warnings = append(warnings, &MissingColumnWarning{Clause: "exclusion", Column: c.Column})
			continue
		}
		out = out.And(matchCodes(values, c.Codes).Not())
	}
	return out, warnings
}

func extraMask(frame *record.Frame, conds []catalog.ExtraCondition) (record.Mask, []error, error) {
	n := frame.Len()
	out := record.Fill(n, true)
	var warnings []error

	for _, ec := range conds {
		values, ok := frame.Column(ec.Column)
		if !ok {
			return nil, warnings, fmt.Errorf("extra condition: %w: %q", ErrMissingColumn, ec.Column)
		}
		for _, op := range ec.Condition {
			m, warn := evaluateOperation(ec.Column, values, op)
			if warn != nil {
				warnings = append(warnings, warn)
				if _, unknown := warn.(*UnknownOperatorError); unknown {
					return record.Fill(n, false), warnings, nil
				}
			}
			out = out.And(m)
		}
	}
	return out, warnings, nil
}

// matchCodes returns the rows whose value equals one of codes, ignoring case.
// Null never matches.
func matchCodes(values []record.Value, codes []string) record.Mask {
	set := record.FoldSet(codes)
	return record.MaskOf(len(values), func(i int) bool {
		if values[i].IsNull() {
			return false
		}
		_, ok := set[record.Fold(values[i].Text())]
		return ok
	})
}
