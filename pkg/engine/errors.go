package engine

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrNoPredicate indicates a rule supplies no inclusion, exclusion or
	// extra condition.
	ErrNoPredicate = errors.New("rule has no inclusion, exclusion or extra condition")

	// ErrMissingColumn indicates a referenced column is not in the record set.
	ErrMissingColumn = errors.New("column not present")

	// ErrTooManyGroups indicates a pair rule saw more correlation groups than
	// its limit allows.
	ErrTooManyGroups = errors.New("correlation group limit exceeded")

	// ErrMaskLength indicates a rule returned a mask of the wrong length.
	ErrMaskLength = errors.New("mask length does not match record count")

	// ErrInvalidConfig indicates invalid engine configuration.
	ErrInvalidConfig = errors.New("invalid engine configuration")
)

// ConfigurationError indicates a catalog entry that cannot be turned into an
// evaluation. The rule is not registered.
type ConfigurationError struct {
	RuleKey  string
	RuleName string
	Cause    error
}

// Error returns the error message.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rule %s (%s): configuration error: %v", e.RuleKey, e.RuleName, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// MissingColumnWarning reports a clause that referenced an absent column. The
// clause is dropped and the rule keeps running.
type MissingColumnWarning struct {
	// Clause is "inclusion", "exclusion" or the helper that needed the column.
	Clause string
	Column string
}

// Error returns the error message.
func (e *MissingColumnWarning) Error() string {
	return fmt.Sprintf("%s column %q not present, clause ignored", e.Clause, e.Column)
}

// Unwrap returns ErrMissingColumn.
func (e *MissingColumnWarning) Unwrap() error {
	return ErrMissingColumn
}

// UnknownOperatorError reports an extra-condition operator the evaluator does
// not implement. The extra-condition mask of the rule is false for every row.
type UnknownOperatorError struct {
	Column   string
	Operator string
}

// Error returns the error message.
func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("unknown operator %q on column %q, condition forced false", e.Operator, e.Column)
}

// OperandError reports an operand the operator cannot use.
type OperandError struct {
	Column   string
	Operator string
	Operand  any
	// Dropped is true when the clause was ignored and false when it was forced
	// false.
	Dropped bool
}

// Error returns the error message.
func (e *OperandError) Error() string {
	effect := "condition forced false"
	if e.Dropped {
		effect = "clause ignored"
	}
	return fmt.Sprintf("%s operand %v on column %q is not usable, %s", e.Operator, e.Operand, e.Column, effect)
}

// SharedNullKeyWarning reports rows without any correlation identifier that a
// pair rule placed in one shared group.
type SharedNullKeyWarning struct {
	Rows int
}

// Error returns the error message.
func (e *SharedNullKeyWarning) Error() string {
	return fmt.Sprintf("%d rows without pre-auth or claim number were correlated as one group", e.Rows)
}

// RuleExecutionFailure wraps an error or panic raised while evaluating a rule.
// The rule contributes no triggers for the run.
type RuleExecutionFailure struct {
	RuleKey  string
	RuleName string
	Cause    error
	// Panic holds the recovered value when the rule panicked.
	Panic any
}

// Error returns the error message.
func (e *RuleExecutionFailure) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("rule %s (%s): panic: %v", e.RuleKey, e.RuleName, e.Panic)
	}
	return fmt.Sprintf("rule %s (%s): %v", e.RuleKey, e.RuleName, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *RuleExecutionFailure) Unwrap() error {
	return e.Cause
}
