package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/claimaudit/pkg/record"
)

// evalOne compiles the single rule in input and evaluates it over frame with
// every row approved.
func evalOne(t *testing.T, input string, frame *record.Frame) (record.Mask, []error, error) {
	t.Helper()
	reg, err := NewRegistry(parseCatalog(t, input))
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	entries := reg.Entries()
	if len(entries) != 1 {
		t.Fatalf("registry has %d entries, want 1", len(entries))
	}
	out, err := entries[0].Eval(context.Background(), &Input{
		Frame:    frame,
		Approved: allTrue(frame.Len()),
		Eligible: record.Fill(frame.Len(), false),
	})
	return out.Mask, out.Warnings, err
}

func TestCompile_Shapes(t *testing.T) {
	tests := []struct {
		name  string
		rule  string
		frame func(t *testing.T) *record.Frame
		want  record.Mask
	}{
		{
			name: "keyword",
			rule: `
rules:
  sick:
    name: Sick leave
    shape: keyword
    parameters:
      text_column: PRESENTING_COMPLAINTS
      keywords: [sick leave]
`,
			frame: func(t *testing.T) *record.Frame {
				return frameOf(t, []string{"PRESENTING_COMPLAINTS"},
					[]any{"Needs SICK LEAVE note"}, []any{"fever"}, []any{nil})
			},
			want: record.Mask{true, false, false},
		},
		{
			name: "text_match with quantity",
			rule: `
rules:
  zinc:
    name: Zinc
    shape: text_match
    parameters:
      text_match:
        columns: [ACTIVITY_DESCRIPTION, ACTIVITY_INTERNAL_DESCRIPTION]
        pattern: "\\bzinc\\b"
      quantity_rule:
        column: ACTIVITY_QUANTITY_APPROVED
        gt: 1
`,
			frame: func(t *testing.T) *record.Frame {
				return frameOf(t, []string{"ACTIVITY_DESCRIPTION", "ACTIVITY_INTERNAL_DESCRIPTION", "ACTIVITY_QUANTITY_APPROVED"},
					[]any{"ZINC tablets", nil, 2},
					[]any{"other", "zinc oxide", 3},
					[]any{"zinc", nil, 1},
					[]any{"zincovit", nil, 5})
			},
			want: record.Mask{true, true, false, false},
		},
		{
			name: "text_match contains_all",
			rule: `
rules:
  pap:
    name: PAP
    shape: text_match
    parameters:
      text_match:
        columns: [ACTIVITY_DESCRIPTION]
        contains_all: [pap, smear]
`,
			frame: func(t *testing.T) *record.Frame {
				return frameOf(t, []string{"ACTIVITY_DESCRIPTION"},
					[]any{"Smear test (PAP)"}, []any{"pap only"})
			},
			want: record.Mask{true, false},
		},
		{
			name: "age_range outside",
			rule: `
rules:
  age:
    name: Age
    shape: age_range
    parameters:
      incl_codes: ["88142"]
      incl_col: ACTIVITY_CODE
      age_rule: {column: MEMBER_AGE, min: 21, max: 65}
`,
			frame: func(t *testing.T) *record.Frame {
				return frameOf(t, []string{"ACTIVITY_CODE", "MEMBER_AGE"},
					[]any{"88142", 18}, []any{"88142", 30}, []any{"88142", 70}, []any{"88142", nil}, []any{"1", 18})
			},
			want: record.Mask{true, false, true, false, false},
		},
		{
			name: "age_range inside",
			rule: `
rules:
  age:
    name: Age
    shape: age_range
    parameters:
      age_rule: {column: MEMBER_AGE, min: 21, max: 65, outside: false}
`,
			frame: func(t *testing.T) *record.Frame {
				return frameOf(t, []string{"MEMBER_AGE"}, []any{21}, []any{66})
			},
			want: record.Mask{true, false},
		},
		{
			name: "age_quantity",
			rule: `
rules:
  neb:
    name: Nebulizer
    shape: age_quantity
    parameters:
      age_quantity_rule:
        age_column: MEMBER_AGE
        adult_age: 12
        adult_qty_gt: 2
        child_qty_gt: 1
`,
			frame: func(t *testing.T) *record.Frame {
				return frameOf(t, []string{"MEMBER_AGE", "ACTIVITY_QUANTITY_APPROVED"},
					[]any{30, 3}, []any{30, 2}, []any{5, 2}, []any{5, 1}, []any{nil, 9})
			},
			want: record.Mask{true, false, true, false, false},
		},
		{
			name: "compound_exclusion",
			rule: `
rules:
  dental:
    name: Dental
    shape: compound_exclusion
    parameters:
      incl_codes: [D1]
      incl_col: ACTIVITY_CODE
      compound_exclusion:
        conditions:
          - {column: POLICY_NUMBER, eq: P1}
          - {column: BENEFIT_TYPE, eq: DENTAL}
`,
			frame: func(t *testing.T) *record.Frame {
				return frameOf(t, []string{"ACTIVITY_CODE", "POLICY_NUMBER", "BENEFIT_TYPE"},
					[]any{"D1", "P1", "DENTAL"}, []any{"D1", "P1", "OPTICAL"}, []any{"D1", "P2", "DENTAL"}, []any{"D1", "P1", "dental"})
			},
			want: record.Mask{false, true, true, true},
		},
		{
			name: "code_keyword",
			rule: `
rules:
  mouthwash:
    name: Mouthwash
    shape: code_keyword
    parameters:
      code_match: {column: ACTIVITY_CODE, codes: [MW-1]}
      keyword_match: {column: ACTIVITY_DESCRIPTION, keywords: [mouthwash, mouth wash]}
`,
			frame: func(t *testing.T) *record.Frame {
				return frameOf(t, []string{"ACTIVITY_CODE", "ACTIVITY_DESCRIPTION"},
					[]any{"mw-1", "x"}, []any{"Z", "Listerine MOUTH WASH"}, []any{"Z", "toothpaste"})
			},
			want: record.Mask{true, true, false},
		},
		{
			name: "provider_match",
			rule: `
rules:
  sidra:
    name: Sidra
    shape: provider_match
    parameters:
      provider_match: {column: PROVIDER_NAME, pattern: sidra}
      age_rule: {column: MEMBER_AGE, gt: 17}
      gender_rule: {column: GENDER, eq: male}
`,
			frame: func(t *testing.T) *record.Frame {
				return frameOf(t, []string{"PROVIDER_NAME", "MEMBER_AGE", "GENDER"},
					[]any{"SIDRA MEDICINE", 20, "Male"},
					[]any{"SIDRA MEDICINE", 17, "Male"},
					[]any{"SIDRA MEDICINE", 40, "Female"},
					[]any{"HMC", 40, "Male"})
			},
			want: record.Mask{true, false, false, false},
		},
		{
			name: "preauth",
			rule: `
rules:
  biopsy:
    name: Biopsy
    shape: preauth
    parameters:
      incl_codes: [B1]
      incl_col: ACTIVITY_CODE
      preauth_rule:
        complaint_column: PRESENTING_COMPLAINTS
        regex: "fracture|trauma"
`,
			frame: func(t *testing.T) *record.Frame {
				return frameOf(t, []string{"ACTIVITY_CODE", "PRE_AUTH_NUMBER", "PRESENTING_COMPLAINTS"},
					[]any{"B1", nil, "headache"},
					[]any{"B1", "PA1", "headache"},
					[]any{"B1", " ", "Fracture of arm"},
					[]any{"B1", "", nil})
			},
			want: record.Mask{true, false, false, true},
		},
		{
			name: "excl_providers",
			rule: `
rules:
  hiv:
    name: HIV
    parameters:
      incl_codes: ["86689"]
      incl_col: ACTIVITY_CODE
      excl_providers: [AL AHLI HOSPITAL]
`,
			frame: func(t *testing.T) *record.Frame {
				return frameOf(t, []string{"ACTIVITY_CODE", "PROVIDER_NAME"},
					[]any{"86689", "al ahli hospital"}, []any{"86689", "HMC"})
			},
			want: record.Mask{false, true},
		},
		{
			name: "pair",
			rule: `
rules:
  crp:
    name: CRP and ESR
    shape: pair
    parameters:
      pair_rule:
        pairs:
          - {A: ["86140"], B: ["85651", "85652"]}
`,
			frame: func(t *testing.T) *record.Frame {
				return frameOf(t, []string{"CLAIM_NUMBER", "ACTIVITY_CODE"},
					[]any{"C1", "86140"}, []any{"C1", "85652"}, []any{"C2", "86140"})
			},
			want: record.Mask{true, true, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := evalOne(t, tt.rule, tt.frame(t))
			if err != nil {
				t.Fatalf("Eval() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Eval() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompile_HelperColumnsStayPrivate(t *testing.T) {
	frame := frameOf(t, []string{"PRESENTING_COMPLAINTS"}, []any{"sick leave"})
	rule := `
rules:
  sick:
    name: Sick leave
    shape: keyword
    parameters:
      text_column: PRESENTING_COMPLAINTS
      keywords: [sick leave]
`
	if _, _, err := evalOne(t, rule, frame); err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	for _, c := range frame.Columns() {
		if record.IsWorkingColumn(c) {
			t.Errorf("helper column %q leaked into the input frame", c)
		}
	}
}

func TestCompile_MissingHelperColumnFails(t *testing.T) {
	frame := frameOf(t, []string{"ACTIVITY_CODE"}, []any{"X"})
	rule := `
rules:
  sick:
    name: Sick leave
    shape: keyword
    parameters:
      text_column: PRESENTING_COMPLAINTS
      keywords: [sick leave]
`
	if _, _, err := evalOne(t, rule, frame); !errors.Is(err, ErrMissingColumn) {
		t.Errorf("Eval() error = %v, want ErrMissingColumn", err)
	}
}

func TestNewRegistry_RejectsRuleWithoutPredicate(t *testing.T) {
	cat := parseCatalog(t, `
rules:
  empty:
    name: Empty
    shape: mask
    parameters: {}
  hiv:
    name: HIV
    parameters:
      incl_codes: ["86689"]
      incl_col: ACTIVITY_CODE
`)
	reg, err := NewRegistry(cat)
	if err == nil {
		t.Fatal("NewRegistry() error = nil, want configuration error")
	}
	var cerr *ConfigurationError
	if !errors.As(err, &cerr) || cerr.RuleKey != "empty" || !errors.Is(err, ErrNoPredicate) {
		t.Errorf("NewRegistry() error = %v, want ConfigurationError for empty", err)
	}
	if reg.Len() != 1 || len(reg.Rejected()) != 1 {
		t.Errorf("registry got %d entries and %d rejected, want 1 and 1", reg.Len(), len(reg.Rejected()))
	}
	if _, ok := reg.Get("hiv"); !ok {
		t.Error("valid rule was not registered")
	}
}

func TestNewRegistry_Builtin(t *testing.T) {
	cat := builtinCatalog(t)
	reg, err := NewRegistry(cat)
	if err != nil {
		t.Fatalf("NewRegistry(builtin) error = %v", err)
	}
	if reg.Len() != cat.Len() {
		t.Errorf("registry Len got = %d, want %d", reg.Len(), cat.Len())
	}
}
