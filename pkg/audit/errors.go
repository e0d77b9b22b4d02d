package audit

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound is returned by Storage.Get for unknown evaluation IDs.
	ErrRecordNotFound = errors.New("audit record not found")

	// ErrSequenceConflict is returned when a different record already holds
	// the sequence being appended.
	ErrSequenceConflict = errors.New("audit sequence already taken by a different record")

	// ErrChainMismatch is returned when a record does not extend the stored
	// chain: its sequence skips ahead or its PrevHash is not the last hash.
	ErrChainMismatch = errors.New("audit record does not extend the chain")

	// ErrDuplicateEvaluation is returned when an evaluation ID is already
	// recorded under a different sequence.
	ErrDuplicateEvaluation = errors.New("audit record for evaluation already exists")
)

// StorageError represents an error from a storage backend.
type StorageError struct {
	Backend   string // "sqlite", "memory"
	Operation string // "append", "query", ...
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("audit storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

// QueryError represents an invalid query.
type QueryError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid audit query [field=%s]: %s", e.Field, e.Message)
}

// ChainError reports a broken hash chain.
type ChainError struct {
	Sequence int64
	Reason   string
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	return fmt.Sprintf("audit chain broken at sequence %d: %s", e.Sequence, e.Reason)
}

// SinkError reports a record the audit sink could not write within one
// retry series. The record stays queued.
type SinkError struct {
	Sequence     int64
	EvaluationID string
	Attempts     int
	Cause        error
}

// Error implements the error interface.
func (e *SinkError) Error() string {
	return fmt.Sprintf("audit sink write failed [sequence=%d, evaluation_id=%s, attempts=%d]: %v",
		e.Sequence, e.EvaluationID, e.Attempts, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *SinkError) Unwrap() error {
	return e.Cause
}

// ExportError represents an error during export.
type ExportError struct {
	Format      string
	RecordCount int
	Cause       error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("audit export error [format=%s, record_count=%d]: %v", e.Format, e.RecordCount, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format string, recordCount int, cause error) *ExportError {
	return &ExportError{Format: format, RecordCount: recordCount, Cause: cause}
}
