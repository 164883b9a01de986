package engine

import (
	"context"
	"fmt"
	"strings"

	"mercator-hq/claimaudit/pkg/catalog"
	"mercator-hq/claimaudit/pkg/record"
)

// GroupKeyColumns are the correlation identifiers, in lookup order. The first
// non-blank value on a row is its group key.
var GroupKeyColumns = []string{
	record.ColPreAuthNumber,
	record.ColPreauthNumberAlt,
	record.ColClaimNumber,
}

// CodePair is one (A, B) co-occurrence pattern.
type CodePair struct {
	A []string
	B []string
}

// PairSpec is the input of the group-pair evaluator.
type PairSpec struct {
	CodeColumn    string
	Pairs         []CodePair
	NullKeyPolicy catalog.NullKeyPolicy
	// MaxGroups bounds the number of correlation groups. Zero means no limit.
	MaxGroups int
}

type group struct {
	rows []int
}

// EvaluatePairs tags rows whose correlation group contains approved codes
// from both sides of a declared pair. Pairs are tried in order and the first
// match wins for each group; only approved rows whose own code is in A or B
// are tagged.
func EvaluatePairs(ctx context.Context, frame *record.Frame, approved record.Mask, spec PairSpec) (record.Mask, []error, error) {
	n := frame.Len()
	if len(approved) != n {
		return nil, nil, fmt.Errorf("%w: approved has %d rows, frame has %d", ErrMaskLength, len(approved), n)
	}
	codes, ok := frame.Column(spec.CodeColumn)
	if !ok {
		return nil, nil, fmt.Errorf("pair code column: %w: %q", ErrMissingColumn, spec.CodeColumn)
	}

	keys, err := groupKeys(frame)
	if err != nil {
		return nil, nil, err
	}

	var warnings []error
	order := make([]string, 0)
	groups := make(map[string]*group)
	shared := 0
	for i, key := range keys {
		if key == "" {
			if spec.NullKeyPolicy == catalog.NullKeyIsolate {
				continue
			}
			shared++
		}
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, i)
	}
	if shared > 0 {
		warnings = append(warnings, &SharedNullKeyWarning{Rows: shared})
	}
	if spec.MaxGroups > 0 && len(order) > spec.MaxGroups {
		return nil, warnings, fmt.Errorf("%w: %d groups, limit %d", ErrTooManyGroups, len(order), spec.MaxGroups)
	}

	pairs := make([]foldedPair, len(spec.Pairs))
	for i, p := range spec.Pairs {
		pairs[i] = foldedPair{a: record.FoldSet(p.A), b: record.FoldSet(p.B)}
	}

	folded := make([]string, n)
	for i, v := range codes {
		if !v.IsNull() {
			folded[i] = record.Fold(strings.TrimSpace(v.Text()))
		}
	}

	out := make(record.Mask, n)
	for _, key := range order {
		if err := ctx.Err(); err != nil {
			return nil, warnings, err
		}
		g := groups[key]

		present := make(map[string]struct{}, len(g.rows))
		for _, i := range g.rows {
			if approved[i] && folded[i] != "" {
				present[folded[i]] = struct{}{}
			}
		}

		for _, p := range pairs {
			if !intersects(present, p.a) || !intersects(present, p.b) {
				continue
			}
			for _, i := range g.rows {
				if !approved[i] {
					continue
				}
				if _, inA := p.a[folded[i]]; inA {
					out[i] = true
				} else if _, inB := p.b[folded[i]]; inB {
					out[i] = true
				}
			}
			break
		}
	}
	return out, warnings, nil
}

type foldedPair struct {
	a, b map[string]struct{}
}

func intersects(present, codes map[string]struct{}) bool {
	if len(present) > len(codes) {
		present, codes = codes, present
	}
	for c := range present {
		if _, ok := codes[c]; ok {
			return true
		}
	}
	return false
}

// groupKeys returns the correlation key of every row. Blank identifiers count
// as absent, and rows with no identifier get the empty key.
// PRE_AUTH_NUMBER and PREAUTH_NUMBER are two spellings of one identifier.
func groupKeys(frame *record.Frame) ([]string, error) {
	var names []string
	var cols [][]record.Value
	for _, name := range GroupKeyColumns {
		if values, ok := frame.Column(name); ok {
			names = append(names, name)
			cols = append(cols, values)
		}
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("pair group key: %w: none of %s", ErrMissingColumn, strings.Join(GroupKeyColumns, ", "))
	}

	keys := make([]string, frame.Len())
	for i := range keys {
		for c, values := range cols {
			if !values[i].Blank() {
				// Qualified so a claim number never joins a pre-auth group.
				kind := "preauth="
				if names[c] == record.ColClaimNumber {
					kind = "claim="
				}
				keys[i] = kind + strings.TrimSpace(values[i].Text())
				break
			}
		}
	}
	return keys, nil
}
