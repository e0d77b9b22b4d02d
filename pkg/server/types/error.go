package types

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	// Error contains the error details.
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	// Message is a human-readable error message.
	Message string `json:"message"`

	// Type categorizes the error and determines the HTTP status.
	Type string `json:"type"`

	// Param is the name of the parameter that caused the error (if applicable).
	Param string `json:"param,omitempty"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`
}

// Error types.
const (
	// ErrorTypeInvalidRequest indicates a malformed request (400).
	ErrorTypeInvalidRequest = "invalid_request_error"

	// ErrorTypeNotFound indicates a resource was not found (404).
	ErrorTypeNotFound = "not_found"

	// ErrorTypeMethodNotAllowed indicates an unsupported method (405).
	ErrorTypeMethodNotAllowed = "method_not_allowed"

	// ErrorTypeRequestTooLarge indicates the body exceeded the size limit (413).
	ErrorTypeRequestTooLarge = "request_too_large"

	// ErrorTypeValidation indicates a well-formed request the firewall
	// cannot evaluate (422).
	ErrorTypeValidation = "validation_error"

	// ErrorTypeRateLimitExceeded indicates too many requests (429).
	ErrorTypeRateLimitExceeded = "rate_limit_exceeded"

	// ErrorTypeServerError indicates an internal server error (500).
	ErrorTypeServerError = "server_error"

	// ErrorTypeServiceUnavailable indicates a disabled or unavailable
	// component (503).
	ErrorTypeServiceUnavailable = "service_unavailable"
)

// Error codes.
const (
	// CodeInvalidJSON indicates the request body is not valid JSON.
	CodeInvalidJSON = "invalid_json"

	// CodeInvalidValue indicates a field has an invalid value.
	CodeInvalidValue = "invalid_value"

	// CodeUnknownMode indicates an unknown policy mode.
	CodeUnknownMode = "unknown_mode"

	// CodeInvalidQuery indicates an invalid audit query parameter.
	CodeInvalidQuery = "invalid_query"

	// CodeRequestTooLarge indicates the request payload is too large.
	CodeRequestTooLarge = "request_too_large"

	// CodeLearningDisabled indicates outcome learning is not configured.
	CodeLearningDisabled = "learning_disabled"

	// CodeAuditDisabled indicates no audit store is configured.
	CodeAuditDisabled = "audit_disabled"

	// CodeInternalError indicates an internal server error.
	CodeInternalError = "internal_error"
)

// NewErrorResponse creates a new error response with the given details.
func NewErrorResponse(message, errorType, param, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Param:   param,
			Code:    code,
		},
	}
}

// NewInvalidRequestError creates an error response for invalid requests (400).
func NewInvalidRequestError(message, param, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeInvalidRequest, param, code)
}

// NewValidationError creates an error response for rejected evaluations (422).
func NewValidationError(message, param string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeValidation, param, CodeInvalidValue)
}

// NewServerError creates an error response for internal server errors (500).
func NewServerError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeServerError, "", CodeInternalError)
}

// NewServiceUnavailableError creates an error response for a component that
// is not configured (503).
func NewServiceUnavailableError(message, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeServiceUnavailable, "", code)
}

// HTTPStatusCode returns the appropriate HTTP status code for the error type.
func (e *ErrorDetail) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrorTypeRequestTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrorTypeValidation:
		return http.StatusUnprocessableEntity
	case ErrorTypeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrorTypeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Write encodes the error as JSON with the status code of its type.
func (e *ErrorResponse) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Error.HTTPStatusCode())
	_ = json.NewEncoder(w).Encode(e)
}
