package store

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	// ErrRunNotFound is returned when a run id is unknown.
	ErrRunNotFound = errors.New("run not found")

	// ErrDuplicateRun is returned when a run id is stored twice.
	ErrDuplicateRun = errors.New("run already stored")

	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// StorageError represents an error from a storage backend.
type StorageError struct {
	Backend   string // "memory", "sqlite", "postgres"
	Operation string // "save", "list", "delete", ...
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// QueryError represents an invalid run query.
type QueryError struct {
	Query *Query
	Cause error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid query: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewQueryError creates a new QueryError.
func NewQueryError(query *Query, cause error) *QueryError {
	return &QueryError{
		Query: query,
		Cause: cause,
	}
}
