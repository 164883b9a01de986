package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"mercator-hq/claimaudit/pkg/catalog"
	"mercator-hq/claimaudit/pkg/record"
)

// helperPrefix marks rule-private columns. They live only in the overlay a
// rule evaluates against and are never written back to the record set.
const helperPrefix = "_tmp_"

// helper computes one boolean helper column.
type helper struct {
	column string
	build  func(frame *record.Frame) (record.Mask, []error, error)
}

// Compile turns a catalog rule into an evaluation function.
func Compile(r *catalog.Rule) (EvalFunc, error) {
	if p, ok := r.Params.(*catalog.PairParams); ok {
		return compilePair(p), nil
	}
	m, ok := r.Params.(catalog.Masked)
	if !ok {
		return nil, fmt.Errorf("shape %q has no evaluator", r.Shape)
	}
	spec := baseSpec(m.Common())

	var helpers []helper
	switch p := r.Params.(type) {
	case *catalog.MaskParams:
		// pure mask algebra

	case *catalog.KeywordParams:
		helpers = append(helpers, keywordHelper(p))

	case *catalog.TextMatchParams:
		h, err := textMatchHelper(p)
		if err != nil {
			return nil, err
		}
		helpers = append(helpers, h)
		if q := p.QuantityRule; q != nil {
			spec.Extra = append(spec.Extra, condition(q.Column, "gt", q.GT))
		}
		if pc := p.ProviderCondition; pc != nil {
			spec.Extra = append(spec.Extra, condition(pc.Column, "eq", pc.Eq))
		}

	case *catalog.AgeRangeParams:
		helpers = append(helpers, ageRangeHelper(p.AgeRule))

	case *catalog.AgeQuantityParams:
		helpers = append(helpers, ageQuantityHelper(p.AgeQuantityRule))

	case *catalog.CompoundExclusionParams:
		helpers = append(helpers, compoundHelper(p.CompoundExclusion))

	case *catalog.CodeKeywordParams:
		h, err := codeKeywordHelper(p)
		if err != nil {
			return nil, err
		}
		helpers = append(helpers, h)
		if q := p.QuantityRule; q != nil {
			spec.Extra = append(spec.Extra, condition(q.Column, "gt", q.GT))
		}

	case *catalog.ProviderMatchParams:
		h, err := providerHelper(p.ProviderMatch)
		if err != nil {
			return nil, err
		}
		helpers = append(helpers, h)
		if a := p.AgeRule; a != nil {
			spec.Extra = append(spec.Extra, condition(a.Column, "gt", a.GT))
		}
		if g := p.GenderRule; g != nil {
			spec.Extra = append(spec.Extra, condition(g.Column, "eq", g.Eq))
		}

	case *catalog.PreAuthParams:
		h, err := preAuthHelper(p.PreAuthRule)
		if err != nil {
			return nil, err
		}
		helpers = append(helpers, h)

	default:
		return nil, fmt.Errorf("shape %q has no evaluator", r.Shape)
	}

	// Helper columns join the extra-condition conjunction. The compound
	// exclusion helper marks rows to drop, so it must be false.
	for _, h := range helpers {
		want := h.column != helperPrefix+string(catalog.ShapeCompoundExclusion)
		spec.Extra = append(spec.Extra, condition(h.column, "eq", want))
	}

	if spec.Empty() {
		return nil, ErrNoPredicate
	}
	return compileMask(spec, helpers), nil
}

func compileMask(spec MaskSpec, helpers []helper) EvalFunc {
	return func(ctx context.Context, in *Input) (Outcome, error) {
		frame := in.Frame
		var warnings []error
		for _, h := range helpers {
			m, w, err := h.build(frame)
			warnings = append(warnings, w...)
			if err != nil {
				return Outcome{Warnings: warnings}, err
			}
			if frame, err = frame.WithMask(h.column, m); err != nil {
				return Outcome{Warnings: warnings}, err
			}
		}

		mask, w, err := EvaluateMask(ctx, frame, in.Approved, spec)
		warnings = append(warnings, w...)
		if err != nil {
			return Outcome{Warnings: warnings}, err
		}
		return Outcome{Mask: mask, Warnings: warnings}, nil
	}
}

func compilePair(p *catalog.PairParams) EvalFunc {
	spec := PairSpec{
		CodeColumn:    p.PairRule.CodeColumn,
		NullKeyPolicy: p.PairRule.NullKeyPolicy,
		MaxGroups:     p.PairRule.MaxGroups,
	}
	for _, cp := range p.PairRule.Pairs {
		spec.Pairs = append(spec.Pairs, CodePair{A: cp.A.Values, B: cp.B.Values})
	}

	return func(ctx context.Context, in *Input) (Outcome, error) {
		s := spec
		if s.MaxGroups == 0 {
			s.MaxGroups = in.MaxGroups
		}
		mask, warnings, err := EvaluatePairs(ctx, in.Frame, in.Approved, s)
		return Outcome{Mask: mask, Warnings: warnings}, err
	}
}

// baseSpec translates the common mask fields.
func baseSpec(mf *catalog.MaskFields) MaskSpec {
	var spec MaskSpec

	if mf.InclCol != "" && len(mf.InclCodes) > 0 {
		spec.Inclusion = append(spec.Inclusion, Clause{Column: mf.InclCol, Codes: mf.InclCodes})
	}
	for _, cc := range mf.Inclusion {
		spec.Inclusion = append(spec.Inclusion, Clause{Column: cc.Column, Codes: cc.Codes.Values})
	}

	if mf.ExclCol != "" && len(mf.ExclCodes) > 0 {
		spec.Exclusion = append(spec.Exclusion, Clause{Column: mf.ExclCol, Codes: mf.ExclCodes})
	}
	for _, cc := range mf.Exclusions {
		spec.Exclusion = append(spec.Exclusion, Clause{Column: cc.Column, Codes: cc.Codes.Values})
	}
	if len(mf.ExclProviders) > 0 {
		spec.Exclusion = append(spec.Exclusion, Clause{Column: record.ColProviderName, Codes: mf.ExclProviders})
	}

	spec.Extra = append(spec.Extra, mf.ExtraConditions...)
	return spec
}

func condition(column, op string, operand any) catalog.ExtraCondition {
	return catalog.ExtraCondition{
		Column:    column,
		Condition: catalog.Condition{{Op: op, Operand: operand}},
	}
}

func requireColumn(frame *record.Frame, name, use string) ([]record.Value, error) {
	values, ok := frame.Column(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w: %q", use, ErrMissingColumn, name)
	}
	return values, nil
}

func compilePattern(field, pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return re, nil
}

// containsAny reports whether text contains any of the folded needles.
func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func containsAll(text string, needles []string) bool {
	for _, n := range needles {
		if !strings.Contains(text, n) {
			return false
		}
	}
	return true
}

func foldAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = record.Fold(v)
	}
	return out
}

func keywordHelper(p *catalog.KeywordParams) helper {
	keywords := foldAll(p.Keywords)
	return helper{
		column: helperPrefix + string(catalog.ShapeKeyword),
		build: func(frame *record.Frame) (record.Mask, []error, error) {
			values, err := requireColumn(frame, p.TextColumn, "keyword")
			if err != nil {
				return nil, nil, err
			}
			return record.MaskOf(len(values), func(i int) bool {
				return !values[i].IsNull() && containsAny(record.Fold(values[i].Text()), keywords)
			}), nil, nil
		},
	}
}

func textMatchHelper(p *catalog.TextMatchParams) (helper, error) {
	tm := p.TextMatch
	var re *regexp.Regexp
	if tm.Pattern != "" {
		var err error
		if re, err = compilePattern("text_match.pattern", tm.Pattern); err != nil {
			return helper{}, err
		}
	}
	needles := foldAll(tm.ContainsAll)

	match := func(text string) bool {
		if re != nil {
			return re.MatchString(text)
		}
		return containsAll(record.Fold(text), needles)
	}

	return helper{
		column: helperPrefix + string(catalog.ShapeTextMatch),
		build: func(frame *record.Frame) (record.Mask, []error, error) {
			var warnings []error
			var out record.Mask
			for _, col := range tm.Columns {
				values, ok := frame.Column(col)
				if !ok {
					warnings = append(warnings, &MissingColumnWarning{Clause: "text_match", Column: col})
					continue
				}
				m := record.MaskOf(len(values), func(i int) bool {
					return !values[i].IsNull() && match(values[i].Text())
				})
				if out == nil {
					out = m
				} else {
					out = out.Or(m)
				}
			}
			if out == nil {
				return nil, warnings, fmt.Errorf("text_match: %w: none of %s", ErrMissingColumn, strings.Join(tm.Columns, ", "))
			}
			return out, warnings, nil
		},
	}, nil
}

func ageRangeHelper(a catalog.AgeRange) helper {
	outside := a.MatchesOutside()
	return helper{
		column: helperPrefix + string(catalog.ShapeAgeRange),
		build: func(frame *record.Frame) (record.Mask, []error, error) {
			values, err := requireColumn(frame, a.Column, "age_rule")
			if err != nil {
				return nil, nil, err
			}
			return record.MaskOf(len(values), func(i int) bool {
				age, ok := values[i].Float()
				if !ok {
					return false
				}
				if outside {
					return age < a.Min || age > a.Max
				}
				return age >= a.Min && age <= a.Max
			}), nil, nil
		},
	}
}

func ageQuantityHelper(aq catalog.AgeQuantity) helper {
	return helper{
		column: helperPrefix + string(catalog.ShapeAgeQuantity),
		build: func(frame *record.Frame) (record.Mask, []error, error) {
			ages, err := requireColumn(frame, aq.AgeColumn, "age_quantity_rule")
			if err != nil {
				return nil, nil, err
			}
			qtys, err := requireColumn(frame, aq.QuantityColumn, "age_quantity_rule")
			if err != nil {
				return nil, nil, err
			}
			return record.MaskOf(len(ages), func(i int) bool {
				age, ok := ages[i].Float()
				if !ok {
					return false
				}
				qty, ok := qtys[i].Float()
				if !ok {
					return false
				}
				if age >= aq.AdultAge {
					return qty > aq.AdultQtyGT
				}
				return qty > aq.ChildQtyGT
			}), nil, nil
		},
	}
}

func compoundHelper(ce catalog.CompoundExclusion) helper {
	return helper{
		column: helperPrefix + string(catalog.ShapeCompoundExclusion),
		build: func(frame *record.Frame) (record.Mask, []error, error) {
			out := record.Fill(frame.Len(), true)
			for _, c := range ce.Conditions {
				values, err := requireColumn(frame, c.Column, "compound_exclusion")
				if err != nil {
					return nil, nil, err
				}
				want := c.Eq
				out = out.And(record.MaskOf(len(values), func(i int) bool {
					return !values[i].IsNull() && values[i].Text() == want
				}))
			}
			return out, nil, nil
		},
	}
}

func codeKeywordHelper(p *catalog.CodeKeywordParams) (helper, error) {
	km := p.KeywordMatch
	var re *regexp.Regexp
	if km.Pattern != "" {
		var err error
		if re, err = compilePattern("keyword_match.pattern", km.Pattern); err != nil {
			return helper{}, err
		}
	}
	keywords := foldAll(km.Keywords)
	codeMatch := p.CodeMatch

	return helper{
		column: helperPrefix + string(catalog.ShapeCodeKeyword),
		build: func(frame *record.Frame) (record.Mask, []error, error) {
			codes, err := requireColumn(frame, codeMatch.Column, "code_match")
			if err != nil {
				return nil, nil, err
			}
			texts, err := requireColumn(frame, km.Column, "keyword_match")
			if err != nil {
				return nil, nil, err
			}
			byCode := matchCodes(codes, codeMatch.Codes.Values)
			byKeyword := record.MaskOf(len(texts), func(i int) bool {
				if texts[i].IsNull() {
					return false
				}
				if re != nil {
					return re.MatchString(texts[i].Text())
				}
				return containsAny(record.Fold(texts[i].Text()), keywords)
			})
			return byCode.Or(byKeyword), nil, nil
		},
	}, nil
}

func providerHelper(pp catalog.ProviderPattern) (helper, error) {
	re, err := compilePattern("provider_match.pattern", pp.Pattern)
	if err != nil {
		return helper{}, err
	}
	return helper{
		column: helperPrefix + string(catalog.ShapeProviderMatch),
		build: func(frame *record.Frame) (record.Mask, []error, error) {
			values, err := requireColumn(frame, pp.Column, "provider_match")
			if err != nil {
				return nil, nil, err
			}
			return record.MaskOf(len(values), func(i int) bool {
				return !values[i].IsNull() && re.MatchString(values[i].Text())
			}), nil, nil
		},
	}, nil
}

func preAuthHelper(pr catalog.PreAuthRule) (helper, error) {
	re, err := compilePattern("preauth_rule.regex", pr.Regex)
	if err != nil {
		return helper{}, err
	}
	return helper{
		column: helperPrefix + string(catalog.ShapePreAuth),
		build: func(frame *record.Frame) (record.Mask, []error, error) {
			complaints, err := requireColumn(frame, pr.ComplaintColumn, "preauth_rule")
			if err != nil {
				return nil, nil, err
			}

			var warnings []error
			var idCols [][]record.Value
			for _, col := range pr.PreAuthColumns {
				if values, ok := frame.Column(col); ok {
					idCols = append(idCols, values)
				}
			}
			if len(idCols) == 0 {
				warnings = append(warnings, &MissingColumnWarning{
					Clause: "preauth_rule",
					Column: strings.Join(pr.PreAuthColumns, "|"),
				})
			}

			return record.MaskOf(frame.Len(), func(i int) bool {
				missing := true
				for _, values := range idCols {
					if !values[i].Blank() {
						missing = false
						break
					}
				}
				unexplained := !re.MatchString(complaints[i].Text())
				if pr.Combine == catalog.CombineOr {
					return missing || unexplained
				}
				return missing && unexplained
			}), warnings, nil
		},
	}, nil
}
