package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mercator-hq/claimaudit/pkg/catalog"
	"mercator-hq/claimaudit/pkg/record"
)

// Input is what one rule evaluation sees.
type Input struct {
	// Frame is the preprocessed record set. Rules may derive overlays from it
	// but never mutate it.
	Frame *record.Frame

	// Approved is the approval flag of every row.
	Approved record.Mask

	// Eligible is the global exclusion-eligibility mask.
	Eligible record.Mask

	// MaxGroups is the engine-wide correlation group limit.
	MaxGroups int

	Logger *slog.Logger
}

// Outcome is the result of one successful rule evaluation.
type Outcome struct {
	Mask     record.Mask
	Warnings []error
}

// EvalFunc evaluates one rule against a record set.
type EvalFunc func(ctx context.Context, in *Input) (Outcome, error)

// Entry is one registered rule.
type Entry struct {
	Key       string
	Name      string
	Active    bool
	CaseType  catalog.CaseType
	Scope     string
	ReviewReq catalog.ReviewReq
	Shape     catalog.Shape
	Eval      EvalFunc
}

// Manual reports whether matches need manual verification.
func (e *Entry) Manual() bool {
	return e.ReviewReq == catalog.ReviewManual
}

// Registry is the ordered set of evaluable rules built from a catalog.
type Registry struct {
	source   string
	version  string
	entries  []*Entry
	index    map[string]*Entry
	rejected []*ConfigurationError
}

// NewRegistry compiles every rule of cat in declaration order. Rules that
// cannot be compiled are left out and reported together in the returned
// error; the registry is usable either way.
func NewRegistry(cat *catalog.Catalog) (*Registry, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog cannot be nil")
	}
	reg := &Registry{
		source:  cat.Source,
		version: cat.Version,
		index:   make(map[string]*Entry, cat.Len()),
	}

	var errs []error
	for _, r := range cat.Rules() {
		eval, err := Compile(r)
		if err != nil {
			cerr := &ConfigurationError{RuleKey: r.Key, RuleName: r.Name, Cause: err}
			reg.rejected = append(reg.rejected, cerr)
			errs = append(errs, cerr)
			continue
		}
		if err := reg.Register(&Entry{
			Key:       r.Key,
			Name:      r.Name,
			Active:    r.Active,
			CaseType:  r.CaseType,
			Scope:     r.Scope,
			ReviewReq: r.ReviewReq,
			Shape:     r.Shape,
			Eval:      eval,
		}); err != nil {
			errs = append(errs, err)
		}
	}
	return reg, errors.Join(errs...)
}

// Register appends an entry. Keys must be unique.
func (r *Registry) Register(e *Entry) error {
	if e == nil || e.Eval == nil {
		return fmt.Errorf("entry must have an evaluation function")
	}
	if e.Key == "" {
		return fmt.Errorf("entry key cannot be empty")
	}
	if r.index == nil {
		r.index = make(map[string]*Entry)
	}
	if _, ok := r.index[e.Key]; ok {
		return fmt.Errorf("%w: %s", catalog.ErrDuplicateKey, e.Key)
	}
	r.entries = append(r.entries, e)
	r.index[e.Key] = e
	return nil
}

// Entries returns the registered entries in declaration order.
func (r *Registry) Entries() []*Entry {
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Get returns the entry registered under key.
func (r *Registry) Get(key string) (*Entry, bool) {
	e, ok := r.index[key]
	return e, ok
}

// Len returns the number of registered entries.
func (r *Registry) Len() int { return len(r.entries) }

// Rejected returns the rules that failed to compile.
func (r *Registry) Rejected() []*ConfigurationError {
	out := make([]*ConfigurationError, len(r.rejected))
	copy(out, r.rejected)
	return out
}

// Version returns the version of the catalog the registry was built from.
func (r *Registry) Version() string { return r.version }

// Source returns where the catalog was loaded from.
func (r *Registry) Source() string { return r.source }

// Applicable returns the active entries whose case type covers target.
func (r *Registry) Applicable(target catalog.CaseType) []*Entry {
	var out []*Entry
	for _, e := range r.entries {
		if e.Active && e.CaseType.Applies(target) {
			out = append(out, e)
		}
	}
	return out
}
