package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ruleDoc is the persisted form of one rule.
type ruleDoc struct {
	Name       string    `yaml:"name"`
	Active     *bool     `yaml:"active"`
	CaseType   CaseType  `yaml:"case_type"`
	Scope      string    `yaml:"scope"`
	ReviewReq  ReviewReq `yaml:"review_req"`
	Shape      Shape     `yaml:"shape"`
	Parameters yaml.Node `yaml:"parameters"`
}

// LoadFile reads and validates a catalog file. YAML and JSON are both accepted.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		el := NewErrorList()
		el.AddError(ErrorTypeIO, "", fmt.Sprintf("failed to read catalog: %v", err), Location{File: path})
		return nil, el
	}
	return Parse(data, filepath.Clean(path))
}

// Parse decodes and validates a catalog. Rule order follows the order of the
// rules mapping. Any problem fails the whole catalog and is reported as an
// *ErrorList.
func Parse(data []byte, source string) (*Catalog, error) {
	rules, errs := decode(data, source)
	if errs.HasErrors() {
		return nil, errs
	}
	for _, r := range rules {
		errs.Merge(Validate(r))
	}
	if errs.HasErrors() {
		return nil, errs
	}
	cat, err := New(source, Digest(data), rules)
	if err != nil {
		errs.AddError(ErrorTypeStructural, "", err.Error(), Location{File: source})
		return nil, errs
	}
	return cat, nil
}

// Digest returns the short content digest used as a catalog version.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:12]
}

// decode turns source bytes into rules with defaults applied and references
// resolved, without running validation.
func decode(data []byte, source string) ([]*Rule, *ErrorList) {
	errs := NewErrorList()

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		errs.AddErrorWithSuggestion(ErrorTypeSyntax, "", err.Error(), Location{File: source},
			"check indentation and quoting; JSON catalogs must be a single object")
		return nil, errs
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		errs.AddError(ErrorTypeStructural, "", "catalog root must be a mapping", Location{File: source})
		return nil, errs
	}

	rulesNode := mappingValue(doc.Content[0], "rules")
	if rulesNode == nil {
		errs.AddErrorWithSuggestion(ErrorTypeStructural, "", ErrNoRules.Error(), Location{File: source},
			"add a top-level 'rules:' mapping of rule key to definition")
		return nil, errs
	}
	if rulesNode.Kind != yaml.MappingNode {
		errs.AddError(ErrorTypeStructural, "", "'rules' must be a mapping of rule key to definition",
			Location{File: source, Line: rulesNode.Line, Column: rulesNode.Column})
		return nil, errs
	}

	seen := make(map[string]bool, len(rulesNode.Content)/2)
	rules := make([]*Rule, 0, len(rulesNode.Content)/2)
	for i := 0; i+1 < len(rulesNode.Content); i += 2 {
		keyNode, body := rulesNode.Content[i], rulesNode.Content[i+1]
		loc := Location{File: source, Line: keyNode.Line, Column: keyNode.Column}
		key := keyNode.Value

		if seen[key] {
			errs.AddError(ErrorTypeStructural, key, ErrDuplicateKey.Error(), loc)
			continue
		}
		seen[key] = true

		r, err := decodeRule(key, body, loc)
		if err != nil {
			errs.Add(err)
			continue
		}
		rules = append(rules, r)
	}
	return rules, errs
}

func decodeRule(key string, body *yaml.Node, loc Location) (*Rule, *Error) {
	var d ruleDoc
	if err := body.Decode(&d); err != nil {
		return nil, &Error{Type: ErrorTypeStructural, RuleKey: key, Message: err.Error(), Location: loc}
	}

	r := &Rule{
		Key:       key,
		Name:      d.Name,
		Active:    d.Active == nil || *d.Active,
		CaseType:  d.CaseType,
		Scope:     d.Scope,
		ReviewReq: d.ReviewReq,
		Shape:     d.Shape,
		Location:  loc,
	}
	if r.CaseType == "" {
		r.CaseType = CaseBoth
	}
	if r.ReviewReq == "" {
		r.ReviewReq = ReviewNone
	}
	if r.Shape == "" {
		r.Shape = ShapeMask
	}

	params, err := ParamsFor(r.Shape)
	if err != nil {
		return nil, &Error{
			Type:       ErrorTypeStructural,
			RuleKey:    key,
			Message:    err.Error(),
			Location:   loc,
			Suggestion: fmt.Sprintf("use one of %v", Shapes),
		}
	}
	if d.Parameters.Kind != 0 {
		if err := d.Parameters.Decode(params); err != nil {
			return nil, &Error{
				Type:     ErrorTypeStructural,
				RuleKey:  key,
				Message:  fmt.Sprintf("invalid %s parameters: %v", r.Shape, err),
				Location: Location{File: loc.File, Line: d.Parameters.Line, Column: d.Parameters.Column},
			}
		}
	}
	applyDefaults(params)
	r.Params = params

	if err := resolveReferences(r); err != nil {
		return nil, err
	}
	return r, nil
}

// resolveReferences replaces every "__field__" token with the named list.
func resolveReferences(r *Rule) *Error {
	lists := namedLists(r.Params)

	resolve := func(c *CodeList, where string) *Error {
		if c.Ref == "" {
			return nil
		}
		name, _ := ReferenceName(c.Ref)
		values, ok := lists[name]
		if !ok {
			return &Error{
				Type:       ErrorTypeSemantic,
				RuleKey:    r.Key,
				Message:    fmt.Sprintf("%s: reference %s does not name a list field of this rule", where, c.Ref),
				Location:   r.Location,
				Suggestion: "reference one of incl_codes, excl_codes, icd_codes, policy_numbers, physio_codes or keywords",
			}
		}
		c.Values = append([]string(nil), values...)
		return nil
	}

	if m, ok := r.Params.(Masked); ok {
		mf := m.Common()
		for i := range mf.Inclusion {
			if err := resolve(&mf.Inclusion[i].Codes, fmt.Sprintf("inclusion[%d]", i)); err != nil {
				return err
			}
		}
		for i := range mf.Exclusions {
			if err := resolve(&mf.Exclusions[i].Codes, fmt.Sprintf("exclusions[%d]", i)); err != nil {
				return err
			}
		}
		for i := range mf.ExtraConditions {
			cond := mf.ExtraConditions[i].Condition
			for j := range cond {
				if cond[j].Op != "isin" && cond[j].Op != "notin" {
					continue
				}
				switch v := cond[j].Operand.(type) {
				case string:
					if _, ok := ReferenceName(v); !ok {
						continue
					}
					cl := CodeList{Ref: v}
					if err := resolve(&cl, fmt.Sprintf("extra_conditions[%d].%s", i, cond[j].Op)); err != nil {
						return err
					}
					cond[j].Operand = cl.Values
				case []any:
					cond[j].Operand = stringify(v)
				}
			}
		}
	}

	switch p := r.Params.(type) {
	case *CodeKeywordParams:
		if err := resolve(&p.CodeMatch.Codes, "code_match"); err != nil {
			return err
		}
	case *PairParams:
		for i := range p.PairRule.Pairs {
			if err := resolve(&p.PairRule.Pairs[i].A, fmt.Sprintf("pairs[%d].A", i)); err != nil {
				return err
			}
			if err := resolve(&p.PairRule.Pairs[i].B, fmt.Sprintf("pairs[%d].B", i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func stringify(items []any) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = fmt.Sprint(item)
	}
	return out
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}
