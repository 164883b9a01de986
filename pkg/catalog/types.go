package catalog

import "fmt"

// CaseType selects the record types a rule applies to.
type CaseType string

const (
	CaseClaim   CaseType = "claim"
	CasePreAuth CaseType = "preauth"
	CaseBoth    CaseType = "both"
)

// Applies reports whether a rule with case type c runs for a batch of the
// given record type. target must be CaseClaim or CasePreAuth.
func (c CaseType) Applies(target CaseType) bool {
	return c == CaseBoth || c == target
}

// ReviewReq marks whether a rule's matches also need manual verification.
type ReviewReq string

const (
	ReviewNone   ReviewReq = "none"
	ReviewManual ReviewReq = "manual"
)

// Shape names one of the closed set of rule templates.
type Shape string

const (
	ShapeMask              Shape = "mask"
	ShapeKeyword           Shape = "keyword"
	ShapeTextMatch         Shape = "text_match"
	ShapeAgeRange          Shape = "age_range"
	ShapeAgeQuantity       Shape = "age_quantity"
	ShapeCompoundExclusion Shape = "compound_exclusion"
	ShapeCodeKeyword       Shape = "code_keyword"
	ShapeProviderMatch     Shape = "provider_match"
	ShapePreAuth           Shape = "preauth"
	ShapePair              Shape = "pair"
)

// Shapes lists every supported shape in documentation order.
var Shapes = []Shape{
	ShapeMask,
	ShapeKeyword,
	ShapeTextMatch,
	ShapeAgeRange,
	ShapeAgeQuantity,
	ShapeCompoundExclusion,
	ShapeCodeKeyword,
	ShapeProviderMatch,
	ShapePreAuth,
	ShapePair,
}

// Location is a position in a catalog source.
type Location struct {
	File   string
	Line   int
	Column int
}

// IsValid reports whether the location carries a line number.
func (l Location) IsValid() bool {
	return l.Line > 0
}

// String formats the location as file:line:column.
func (l Location) String() string {
	file := l.File
	if file == "" {
		file = "<catalog>"
	}
	if !l.IsValid() {
		return file
	}
	return fmt.Sprintf("%s:%d:%d", file, l.Line, l.Column)
}

// Rule is one catalog entry.
type Rule struct {
	// Key is the stable identifier of the rule within its catalog.
	Key string `yaml:"-"`

	// Name is the trigger label written into the output columns.
	Name string `yaml:"name" validate:"required"`

	Active    bool      `yaml:"active"`
	CaseType  CaseType  `yaml:"case_type" validate:"required,oneof=claim preauth both"`
	Scope     string    `yaml:"scope"`
	ReviewReq ReviewReq `yaml:"review_req" validate:"required,oneof=none manual"`
	Shape     Shape     `yaml:"shape" validate:"required,shape"`

	// Params holds the shape-specific parameters. Its dynamic type is fixed
	// by Shape; see ParamsFor.
	Params Params `yaml:"-" validate:"-"`

	Location Location `yaml:"-"`
}

// Manual reports whether matches of r are promoted to manual verification.
func (r *Rule) Manual() bool {
	return r.ReviewReq == ReviewManual
}

// Catalog is an ordered, immutable snapshot of rules.
type Catalog struct {
	// Source names where the catalog was read from.
	Source string

	// Version is a content digest of the source bytes.
	Version string

	rules []*Rule
	index map[string]int
}

// New builds a catalog from rules in declaration order.
func New(source, version string, rules []*Rule) (*Catalog, error) {
	c := &Catalog{
		Source:  source,
		Version: version,
		rules:   make([]*Rule, 0, len(rules)),
		index:   make(map[string]int, len(rules)),
	}
	for _, r := range rules {
		if r == nil {
			continue
		}
		if _, dup := c.index[r.Key]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, r.Key)
		}
		c.index[r.Key] = len(c.rules)
		c.rules = append(c.rules, r)
	}
	return c, nil
}

// Rules returns the rules in declaration order.
func (c *Catalog) Rules() []*Rule {
	out := make([]*Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Keys returns the rule keys in declaration order.
func (c *Catalog) Keys() []string {
	out := make([]string, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.Key
	}
	return out
}

// Get looks up a rule by key.
func (c *Catalog) Get(key string) (*Rule, bool) {
	i, ok := c.index[key]
	if !ok {
		return nil, false
	}
	return c.rules[i], true
}

// Len returns the number of rules.
func (c *Catalog) Len() int { return len(c.rules) }

// Active returns the number of active rules.
func (c *Catalog) Active() int {
	n := 0
	for _, r := range c.rules {
		if r.Active {
			n++
		}
	}
	return n
}
