package catalog

import (
	"fmt"

	"mercator-hq/claimaudit/pkg/record"
)

// Params is implemented by every shape-specific parameter type.
type Params interface {
	Shape() Shape
}

// Masked is implemented by parameter types that carry the common mask fields.
// Every shape except pair is Masked.
type Masked interface {
	Params
	Common() *MaskFields
}

// ColumnCodes is one multi-column inclusion or exclusion clause.
type ColumnCodes struct {
	Column string   `yaml:"column" validate:"required"`
	Codes  CodeList `yaml:"codes"`
}

// ExtraCondition is one clause of the extra-condition conjunction.
type ExtraCondition struct {
	Column    string    `yaml:"column" validate:"required"`
	Condition Condition `yaml:"condition"`
}

// MaskFields are accepted by every mask-based shape.
type MaskFields struct {
	InclCodes []string      `yaml:"incl_codes"`
	InclCol   string        `yaml:"incl_col"`
	Inclusion []ColumnCodes `yaml:"inclusion" validate:"omitempty,dive"`

	ExclCodes  []string      `yaml:"excl_codes"`
	ExclCol    string        `yaml:"excl_col"`
	Exclusions []ColumnCodes `yaml:"exclusions" validate:"omitempty,dive"`

	// ExclProviders is shorthand for an exclusion clause on PROVIDER_NAME.
	ExclProviders []string `yaml:"excl_providers"`

	ExtraConditions []ExtraCondition `yaml:"extra_conditions" validate:"omitempty,dive"`

	// Named lists that reference tokens can point at.
	ICDCodes      []string `yaml:"icd_codes"`
	PolicyNumbers []string `yaml:"policy_numbers"`
	PhysioCodes   []string `yaml:"physio_codes"`
}

// Common returns the receiver. Shapes embedding MaskFields inherit it.
func (m *MaskFields) Common() *MaskFields { return m }

// lists returns the named lists a reference token may resolve to.
func (m *MaskFields) lists() map[string][]string {
	return map[string][]string{
		"incl_codes":     m.InclCodes,
		"excl_codes":     m.ExclCodes,
		"excl_providers": m.ExclProviders,
		"icd_codes":      m.ICDCodes,
		"policy_numbers": m.PolicyNumbers,
		"physio_codes":   m.PhysioCodes,
	}
}

// MaskParams is pure mask algebra.
type MaskParams struct {
	MaskFields `yaml:",inline"`
}

func (*MaskParams) Shape() Shape { return ShapeMask }

// KeywordParams matches rows whose text column contains any keyword.
type KeywordParams struct {
	MaskFields `yaml:",inline"`
	TextColumn string   `yaml:"text_column" validate:"required"`
	Keywords   []string `yaml:"keywords" validate:"min=1,dive,required"`
}

func (*KeywordParams) Shape() Shape { return ShapeKeyword }

func (p *KeywordParams) lists() map[string][]string {
	l := p.MaskFields.lists()
	l["keywords"] = p.Keywords
	return l
}

// TextMatch matches free text in any of several columns.
type TextMatch struct {
	Columns     []string `yaml:"columns" validate:"min=1,dive,required"`
	Pattern     string   `yaml:"pattern"`
	ContainsAll []string `yaml:"contains_all" validate:"omitempty,dive,required"`
}

// QuantityRule requires a numeric column strictly above a threshold.
type QuantityRule struct {
	Column string  `yaml:"column" validate:"required"`
	GT     float64 `yaml:"gt"`
}

// ColumnEquals requires a column to equal a value.
type ColumnEquals struct {
	Column string `yaml:"column" validate:"required"`
	Eq     string `yaml:"eq"`
}

// TextMatchParams is a text_match rule.
type TextMatchParams struct {
	MaskFields        `yaml:",inline"`
	TextMatch         TextMatch     `yaml:"text_match"`
	QuantityRule      *QuantityRule `yaml:"quantity_rule" validate:"omitempty"`
	ProviderCondition *ColumnEquals `yaml:"provider_condition" validate:"omitempty"`
}

func (*TextMatchParams) Shape() Shape { return ShapeTextMatch }

// AgeRange bounds an age column.
type AgeRange struct {
	Column string  `yaml:"column" validate:"required"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max" validate:"gtefield=Min"`
	// Outside matches ages below Min or above Max. Defaults to true.
	Outside *bool `yaml:"outside"`
}

// MatchesOutside reports the effective value of Outside.
func (a AgeRange) MatchesOutside() bool {
	return a.Outside == nil || *a.Outside
}

// AgeRangeParams is an age_range rule.
type AgeRangeParams struct {
	MaskFields `yaml:",inline"`
	AgeRule    AgeRange `yaml:"age_rule"`
}

func (*AgeRangeParams) Shape() Shape { return ShapeAgeRange }

// AgeQuantity applies different quantity thresholds to adults and children.
type AgeQuantity struct {
	AgeColumn      string  `yaml:"age_column" validate:"required"`
	QuantityColumn string  `yaml:"quantity_column"`
	AdultAge       float64 `yaml:"adult_age" validate:"gt=0"`
	AdultQtyGT     float64 `yaml:"adult_qty_gt"`
	ChildQtyGT     float64 `yaml:"child_qty_gt"`
}

// AgeQuantityParams is an age_quantity rule.
type AgeQuantityParams struct {
	MaskFields      `yaml:",inline"`
	AgeQuantityRule AgeQuantity `yaml:"age_quantity_rule"`
}

func (*AgeQuantityParams) Shape() Shape { return ShapeAgeQuantity }

// CompoundExclusion excludes rows matching every condition.
type CompoundExclusion struct {
	Conditions []ColumnEquals `yaml:"conditions" validate:"min=1,dive"`
}

// CompoundExclusionParams is a compound_exclusion rule.
type CompoundExclusionParams struct {
	MaskFields        `yaml:",inline"`
	CompoundExclusion CompoundExclusion `yaml:"compound_exclusion"`
}

func (*CompoundExclusionParams) Shape() Shape { return ShapeCompoundExclusion }

// CodeMatch is exact code membership on one column.
type CodeMatch struct {
	Column string   `yaml:"column" validate:"required"`
	Codes  CodeList `yaml:"codes"`
}

// KeywordMatch is a keyword list or a regular expression on one column.
type KeywordMatch struct {
	Column   string   `yaml:"column" validate:"required"`
	Keywords []string `yaml:"keywords" validate:"omitempty,dive,required"`
	Pattern  string   `yaml:"pattern"`
}

// CodeKeywordParams is a code_keyword rule.
type CodeKeywordParams struct {
	MaskFields   `yaml:",inline"`
	CodeMatch    CodeMatch     `yaml:"code_match"`
	KeywordMatch KeywordMatch  `yaml:"keyword_match"`
	QuantityRule *QuantityRule `yaml:"quantity_rule" validate:"omitempty"`
}

func (*CodeKeywordParams) Shape() Shape { return ShapeCodeKeyword }

func (p *CodeKeywordParams) lists() map[string][]string {
	l := p.MaskFields.lists()
	l["keywords"] = p.KeywordMatch.Keywords
	return l
}

// ProviderPattern is a case-insensitive regular expression on a provider column.
type ProviderPattern struct {
	Column  string `yaml:"column" validate:"required"`
	Pattern string `yaml:"pattern" validate:"required"`
}

// AgeThreshold requires an age strictly above GT.
type AgeThreshold struct {
	Column string  `yaml:"column" validate:"required"`
	GT     float64 `yaml:"gt"`
}

// ProviderMatchParams is a provider_match rule.
type ProviderMatchParams struct {
	MaskFields    `yaml:",inline"`
	ProviderMatch ProviderPattern `yaml:"provider_match"`
	AgeRule       *AgeThreshold   `yaml:"age_rule" validate:"omitempty"`
	GenderRule    *ColumnEquals   `yaml:"gender_rule" validate:"omitempty"`
}

func (*ProviderMatchParams) Shape() Shape { return ShapeProviderMatch }

// Combine joins the missing pre-auth test with the complaint test.
type Combine string

const (
	CombineAnd Combine = "and"
	CombineOr  Combine = "or"
)

// PreAuthRule flags services performed without a pre-authorization.
type PreAuthRule struct {
	PreAuthColumns  []string `yaml:"preauth_columns"`
	ComplaintColumn string   `yaml:"complaint_column" validate:"required"`
	Regex           string   `yaml:"regex" validate:"required"`
	Combine         Combine  `yaml:"combine" validate:"omitempty,oneof=and or"`
}

// PreAuthParams is a preauth rule.
type PreAuthParams struct {
	MaskFields  `yaml:",inline"`
	PreAuthRule PreAuthRule `yaml:"preauth_rule"`
}

func (*PreAuthParams) Shape() Shape { return ShapePreAuth }

// CodePair is one (A, B) co-occurrence pattern.
type CodePair struct {
	A CodeList `yaml:"A"`
	B CodeList `yaml:"B"`
}

// NullKeyPolicy decides what happens to rows with no correlation identifier.
type NullKeyPolicy string

const (
	// NullKeyShared collapses identifier-less rows into one shared group.
	NullKeyShared NullKeyPolicy = "shared"
	// NullKeyIsolate leaves identifier-less rows out of every group.
	NullKeyIsolate NullKeyPolicy = "isolate"
)

// PairRule detects code co-occurrence within a claim or pre-authorization.
type PairRule struct {
	CodeColumn    string        `yaml:"code_column"`
	Pairs         []CodePair    `yaml:"pairs" validate:"min=1,dive"`
	NullKeyPolicy NullKeyPolicy `yaml:"null_key_policy" validate:"omitempty,oneof=shared isolate"`
	MaxGroups     int           `yaml:"max_groups" validate:"gte=0"`
}

// PairParams is a pair rule.
type PairParams struct {
	PairRule PairRule `yaml:"pair_rule"`
}

func (*PairParams) Shape() Shape { return ShapePair }

// ParamsFor returns an empty parameter value for shape.
func ParamsFor(shape Shape) (Params, error) {
	switch shape {
	case ShapeMask:
		return &MaskParams{}, nil
	case ShapeKeyword:
		return &KeywordParams{}, nil
	case ShapeTextMatch:
		return &TextMatchParams{}, nil
	case ShapeAgeRange:
		return &AgeRangeParams{}, nil
	case ShapeAgeQuantity:
		return &AgeQuantityParams{}, nil
	case ShapeCompoundExclusion:
		return &CompoundExclusionParams{}, nil
	case ShapeCodeKeyword:
		return &CodeKeywordParams{}, nil
	case ShapeProviderMatch:
		return &ProviderMatchParams{}, nil
	case ShapePreAuth:
		return &PreAuthParams{}, nil
	case ShapePair:
		return &PairParams{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownShape, shape)
	}
}

// applyDefaults fills optional parameters that have a documented default.
func applyDefaults(p Params) {
	switch v := p.(type) {
	case *AgeQuantityParams:
		if v.AgeQuantityRule.QuantityColumn == "" {
			v.AgeQuantityRule.QuantityColumn = record.ColActivityQuantityApproved
		}
	case *PreAuthParams:
		if len(v.PreAuthRule.PreAuthColumns) == 0 {
			v.PreAuthRule.PreAuthColumns = append([]string(nil), record.PreAuthColumns...)
		}
		if v.PreAuthRule.Combine == "" {
			v.PreAuthRule.Combine = CombineAnd
		}
	case *PairParams:
		if v.PairRule.CodeColumn == "" {
			v.PairRule.CodeColumn = record.ColActivityCode
		}
		if v.PairRule.NullKeyPolicy == "" {
			v.PairRule.NullKeyPolicy = NullKeyShared
		}
	}
}

type lister interface {
	lists() map[string][]string
}

// namedLists returns the reference targets of p, or nil when p has none.
func namedLists(p Params) map[string][]string {
	if l, ok := p.(lister); ok {
		return l.lists()
	}
	return nil
}
