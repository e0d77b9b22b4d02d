package firewall

import (
	"fmt"
	"math"
)

// ValidationError reports a malformed request. It is returned before any
// evaluation work is done.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("validation error [field=%s]: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error [field=%s, value=%v]: %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ValidateRequest checks the request shape. known reports whether an action
// is recognized by the active policy catalog.
func ValidateRequest(req *Request, known func(Action) bool) error {
	if req == nil {
		return NewValidationError("request", nil, "request is required")
	}
	if math.IsNaN(req.Confidence) || req.Confidence < 0 || req.Confidence > 1 {
		return NewValidationError("confidence", req.Confidence, "must be within [0,1]")
	}
	if req.Action == "" {
		return NewValidationError("intended_action", nil, "is required")
	}
	if known != nil && !known(req.Action) {
		return NewValidationError("intended_action", string(req.Action), "unknown action")
	}
	return nil
}
