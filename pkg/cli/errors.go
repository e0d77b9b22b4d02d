package cli

import (
	"errors"
	"fmt"
)

// Process exit codes used by the aegis command.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
	// ExitVerdict is returned when a verdict meets the --fail-on level.
	ExitVerdict = 3
)

// ConfigError represents an error in configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// VerdictError reports that an evaluated output reached the failure level
// requested on the command line.
type VerdictError struct {
	Verdict string
	Reason  string
}

func (e *VerdictError) Error() string {
	return fmt.Sprintf("verdict %s: %s", e.Verdict, e.Reason)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var verdictErr *VerdictError
	if errors.As(err, &verdictErr) {
		return ExitVerdict
	}
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return ExitConfig
	}
	return ExitFailure
}
