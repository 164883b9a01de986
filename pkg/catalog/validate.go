package catalog

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	vOnce sync.Once
	vInst *validator.Validate
)

// structValidator returns the shared validator, reporting yaml field names.
func structValidator() *validator.Validate {
	vOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("yaml")
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			if tag == "-" || tag == "" {
				return fld.Name
			}
			return tag
		})

		_ = v.RegisterValidation("shape", func(fl validator.FieldLevel) bool {
			_, err := ParamsFor(Shape(fl.Field().String()))
			return err == nil
		})

		vInst = v
	})
	return vInst
}

// Validate checks one decoded rule: struct tags first, then the semantic
// constraints tags cannot express.
func Validate(r *Rule) *ErrorList {
	errs := NewErrorList()
	v := structValidator()

	if err := v.Struct(r); err != nil {
		addFieldErrors(errs, r, err)
	}
	if r.Params == nil {
		errs.AddError(ErrorTypeStructural, r.Key, "rule has no parameters", r.Location)
		return errs
	}
	if err := v.Struct(r.Params); err != nil {
		addFieldErrors(errs, r, err)
	}
	if r.Params.Shape() != r.Shape {
		errs.AddError(ErrorTypeStructural, r.Key,
			fmt.Sprintf("parameters are for shape %q but rule declares %q", r.Params.Shape(), r.Shape), r.Location)
	}

	if m, ok := r.Params.(Masked); ok {
		validateMaskFields(errs, r, m.Common())
	}

	switch p := r.Params.(type) {
	case *TextMatchParams:
		tm := p.TextMatch
		switch {
		case tm.Pattern == "" && len(tm.ContainsAll) == 0:
			errs.AddErrorWithSuggestion(ErrorTypeSemantic, r.Key, "text_match needs pattern or contains_all", r.Location,
				"set text_match.pattern to a regular expression or contains_all to a list of substrings")
		case tm.Pattern != "" && len(tm.ContainsAll) > 0:
			errs.AddError(ErrorTypeSemantic, r.Key, "text_match sets both pattern and contains_all", r.Location)
		}
		checkPattern(errs, r, "text_match.pattern", tm.Pattern)
	case *CodeKeywordParams:
		km := p.KeywordMatch
		switch {
		case km.Pattern == "" && len(km.Keywords) == 0:
			errs.AddErrorWithSuggestion(ErrorTypeSemantic, r.Key, "keyword_match needs keywords or pattern", r.Location,
				"set keyword_match.keywords to a list of substrings")
		case km.Pattern != "" && len(km.Keywords) > 0:
			errs.AddError(ErrorTypeSemantic, r.Key, "keyword_match sets both keywords and pattern", r.Location)
		}
		checkPattern(errs, r, "keyword_match.pattern", km.Pattern)
	case *ProviderMatchParams:
		checkPattern(errs, r, "provider_match.pattern", p.ProviderMatch.Pattern)
	case *PreAuthParams:
		checkPattern(errs, r, "preauth_rule.regex", p.PreAuthRule.Regex)
	case *PairParams:
		for i, pair := range p.PairRule.Pairs {
			if len(pair.A.Values) == 0 || len(pair.B.Values) == 0 {
				errs.AddErrorWithSuggestion(ErrorTypeSemantic, r.Key,
					fmt.Sprintf("pair_rule.pairs[%d] needs codes on both sides", i), r.Location,
					"list at least one code under A and one under B")
			}
		}
	}

	return errs
}

func validateMaskFields(errs *ErrorList, r *Rule, mf *MaskFields) {
	if mf.InclCol != "" && len(mf.Inclusion) > 0 {
		errs.AddErrorWithSuggestion(ErrorTypeSemantic, r.Key, "inclusion mixes incl_col codes with column entries", r.Location,
			"use either incl_codes with incl_col, or inclusion: [{column, codes}]")
	}
	if len(mf.InclCodes) > 0 && mf.InclCol == "" && len(mf.Inclusion) == 0 {
		errs.AddErrorWithSuggestion(ErrorTypeSemantic, r.Key, "incl_codes has no incl_col", r.Location,
			"set incl_col, or reference the list from inclusion entries with codes: __incl_codes__")
	}
	if mf.ExclCol != "" && len(mf.Exclusions) > 0 {
		errs.AddErrorWithSuggestion(ErrorTypeSemantic, r.Key, "exclusion mixes excl_col codes with column entries", r.Location,
			"use either excl_codes with excl_col, or exclusions: [{column, codes}]")
	}
	if len(mf.ExclCodes) > 0 && mf.ExclCol == "" && len(mf.Exclusions) == 0 {
		errs.AddErrorWithSuggestion(ErrorTypeSemantic, r.Key, "excl_codes has no excl_col", r.Location,
			"set excl_col, or reference the list from exclusions entries with codes: __excl_codes__")
	}
	for i, ec := range mf.ExtraConditions {
		if len(ec.Condition) == 0 {
			errs.AddError(ErrorTypeStructural, r.Key,
				fmt.Sprintf("extra_conditions[%d] on %q has no operator", i, ec.Column), r.Location)
		}
	}
}

func checkPattern(errs *ErrorList, r *Rule, field, pattern string) {
	if pattern == "" {
		return
	}
	if _, err := regexp.Compile("(?i)" + pattern); err != nil {
		errs.AddError(ErrorTypeSemantic, r.Key, fmt.Sprintf("%s does not compile: %v", field, err), r.Location)
	}
}

func addFieldErrors(errs *ErrorList, r *Rule, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs.AddError(ErrorTypeStructural, r.Key, err.Error(), r.Location)
		return
	}
	for _, fe := range verrs {
		errs.AddErrorWithSuggestion(ErrorTypeStructural, r.Key,
			fmt.Sprintf("%s failed %q validation", fieldPath(fe), fe.Tag()), r.Location, suggestFor(fe))
	}
}

// fieldPath drops the Go type name that validator puts at the front.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		ns = ns[idx+1:]
	}
	return ns
}

func suggestFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("set %s", fe.Field())
	case "oneof":
		return fmt.Sprintf("use one of: %s", fe.Param())
	case "min":
		return fmt.Sprintf("provide at least %s value(s)", fe.Param())
	case "gt", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s must not be below %s", fe.Field(), fe.Param())
	case "shape":
		return fmt.Sprintf("use one of %v", Shapes)
	default:
		return ""
	}
}
