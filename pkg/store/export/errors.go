package export

import "fmt"

// Error represents a failed export.
type Error struct {
	Format string // "json" or "csv"
	Count  int    // records written before the failure
	Cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("export error [format=%s, record_count=%d]: %v", e.Format, e.Count, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(format string, count int, cause error) *Error {
	return &Error{Format: format, Count: count, Cause: cause}
}
