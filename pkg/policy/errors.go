package policy

import "fmt"

// ConfigurationError is returned when a policy mode or threshold change is
// rejected. The previously active configuration stays in place.
type ConfigurationError struct {
	// Mode is the mode being configured, if known.
	Mode Mode

	// Field is the offending field (e.g. "thresholds.risk_high").
	Field string

	// Message describes the problem.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("policy configuration error [mode=%s, field=%s]: %s", e.Mode, e.Field, e.Message)
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(mode Mode, field, message string) *ConfigurationError {
	return &ConfigurationError{Mode: mode, Field: field, Message: message}
}

// NewConfigurationErrorf creates a new ConfigurationError with a formatted message.
func NewConfigurationErrorf(mode Mode, field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Mode: mode, Field: field, Message: fmt.Sprintf(format, args...)}
}

// PackError is returned when a policy pack file cannot be loaded or parsed.
type PackError struct {
	FilePath string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *PackError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load policy pack %q: %s: %v", e.FilePath, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load policy pack %q: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying cause.
func (e *PackError) Unwrap() error {
	return e.Cause
}
