package catalog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownShape is returned for a shape outside the supported set.
	ErrUnknownShape = errors.New("unknown rule shape")

	// ErrDuplicateKey is returned when two rules share a key.
	ErrDuplicateKey = errors.New("duplicate rule key")

	// ErrNoRules is returned when a catalog source has no rules mapping.
	ErrNoRules = errors.New("catalog has no rules")
)

// ErrorType categorizes catalog problems.
type ErrorType string

const (
	ErrorTypeSyntax     ErrorType = "syntax"     // malformed YAML or JSON
	ErrorTypeStructural ErrorType = "structural" // missing or invalid fields
	ErrorTypeSemantic   ErrorType = "semantic"   // unresolved references, bad regex, mixed clause shapes
	ErrorTypeLint       ErrorType = "lint"       // loadable but suspicious
	ErrorTypeIO         ErrorType = "io"
)

// Error is one catalog problem with its location and an optional fix.
type Error struct {
	Type       ErrorType
	RuleKey    string
	Message    string
	Location   Location
	Suggestion string
}

// Error formats the problem on one or more lines.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] ", e.Type))
	if e.RuleKey != "" {
		sb.WriteString(fmt.Sprintf("rule %q: ", e.RuleKey))
	}
	sb.WriteString(e.Message)
	if e.Location.IsValid() {
		sb.WriteString(fmt.Sprintf("\n  --> %s", e.Location.String()))
	}
	if e.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("\n  = suggestion: %s", e.Suggestion))
	}
	return sb.String()
}

// ErrorList accumulates problems instead of stopping at the first.
type ErrorList struct {
	Errors []*Error
}

// NewErrorList creates an empty list.
func NewErrorList() *ErrorList {
	return &ErrorList{Errors: make([]*Error, 0)}
}

// Add appends err.
func (el *ErrorList) Add(err *Error) {
	el.Errors = append(el.Errors, err)
}

// AddError appends a new problem.
func (el *ErrorList) AddError(errType ErrorType, ruleKey, message string, loc Location) {
	el.Add(&Error{Type: errType, RuleKey: ruleKey, Message: message, Location: loc})
}

// AddErrorWithSuggestion appends a new problem with a suggested fix.
func (el *ErrorList) AddErrorWithSuggestion(errType ErrorType, ruleKey, message string, loc Location, suggestion string) {
	el.Add(&Error{Type: errType, RuleKey: ruleKey, Message: message, Location: loc, Suggestion: suggestion})
}

// Merge appends every problem of other.
func (el *ErrorList) Merge(other *ErrorList) {
	if other == nil {
		return
	}
	el.Errors = append(el.Errors, other.Errors...)
}

// HasErrors reports whether the list is non-empty.
func (el *ErrorList) HasErrors() bool {
	return len(el.Errors) > 0
}

// Count returns the number of problems.
func (el *ErrorList) Count() int {
	return len(el.Errors)
}

// Error formats every problem.
func (el *ErrorList) Error() string {
	if !el.HasErrors() {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("found %d catalog error(s):\n", el.Count()))
	for i, err := range el.Errors {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ToError returns nil for an empty list and the list otherwise.
func (el *ErrorList) ToError() error {
	if !el.HasErrors() {
		return nil
	}
	return el
}

// ByType returns the problems of one type.
func (el *ErrorList) ByType(errType ErrorType) []*Error {
	var out []*Error
	for _, err := range el.Errors {
		if err.Type == errType {
			out = append(out, err)
		}
	}
	return out
}

// ForRule returns the problems attached to one rule key.
func (el *ErrorList) ForRule(key string) []*Error {
	var out []*Error
	for _, err := range el.Errors {
		if err.RuleKey == key {
			out = append(out, err)
		}
	}
	return out
}
