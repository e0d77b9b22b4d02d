package learning

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEvaluation is returned for outcomes about evaluations the
	// learner does not track and that carry no original verdict.
	ErrUnknownEvaluation = errors.New("unknown evaluation")

	// ErrLearnerClosed is returned by Report after Close.
	ErrLearnerClosed = errors.New("learner is closed")
)

// StoreError represents an error from a learning store backend.
type StoreError struct {
	Backend   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("learning store error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// NewStoreError creates a new StoreError.
func NewStoreError(backend, operation string, cause error) *StoreError {
	return &StoreError{Backend: backend, Operation: operation, Cause: cause}
}
