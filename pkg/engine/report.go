package engine

import (
	"errors"
	"time"

	"mercator-hq/claimaudit/pkg/catalog"
)

// Severity grades a diagnostic.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// DiagnosticKind names what a diagnostic is about.
type DiagnosticKind string

const (
	KindMissingColumn   DiagnosticKind = "missing_column"
	KindUnknownOperator DiagnosticKind = "unknown_operator"
	KindInvalidOperand  DiagnosticKind = "invalid_operand"
	KindSharedNullKey   DiagnosticKind = "shared_null_key"
	KindRuleFailure     DiagnosticKind = "rule_failure"
	KindWarning         DiagnosticKind = "warning"
)

// Diagnostic is one warning or failure raised during a run.
type Diagnostic struct {
	RuleKey  string         `json:"rule_key"`
	RuleName string         `json:"rule_name"`
	Severity Severity       `json:"severity"`
	Kind     DiagnosticKind `json:"kind"`
	Message  string         `json:"message"`
	Err      error          `json:"-"`
}

// Classify maps an evaluation error to its diagnostic kind and severity.
func Classify(err error) (DiagnosticKind, Severity) {
	var (
		missing *MissingColumnWarning
		unknown *UnknownOperatorError
		operand *OperandError
		shared  *SharedNullKeyWarning
		failure *RuleExecutionFailure
	)
	switch {
	case errors.As(err, &failure):
		return KindRuleFailure, SeverityError
	case errors.As(err, &unknown):
		return KindUnknownOperator, SeverityWarning
	case errors.As(err, &operand):
		return KindInvalidOperand, SeverityWarning
	case errors.As(err, &missing):
		return KindMissingColumn, SeverityWarning
	case errors.As(err, &shared):
		return KindSharedNullKey, SeverityInfo
	default:
		return KindWarning, SeverityWarning
	}
}

// Report summarizes one dispatch run.
type Report struct {
	Target         catalog.CaseType `json:"target"`
	CatalogSource  string           `json:"catalog_source"`
	CatalogVersion string           `json:"catalog_version"`
	Rows           int              `json:"rows"`

	Evaluated int `json:"evaluated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`

	// Triggered counts raw-triggered rows per rule key. Rules that matched
	// nothing are present with zero.
	Triggered map[string]int `json:"triggered"`

	Diagnostics []Diagnostic `json:"diagnostics"`
	// Dropped counts diagnostics beyond the configured cap.
	Dropped int `json:"dropped_diagnostics,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Failures returns the rule failure diagnostics.
func (r *Report) Failures() []Diagnostic {
	return r.filter(SeverityError)
}

// Warnings returns the warning diagnostics.
func (r *Report) Warnings() []Diagnostic {
	return r.filter(SeverityWarning)
}

// ByKind returns the diagnostics of kind.
func (r *Report) ByKind(kind DiagnosticKind) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

func (r *Report) filter(sev Severity) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == sev {
			out = append(out, d)
		}
	}
	return out
}
