package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigError(t *testing.T) {
	err := &ConfigError{
		Field:   "policy.mode",
		Message: "unknown mode",
	}

	expected := "config error in policy.mode: unknown mode"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewConfigError(t *testing.T) {
	err := NewConfigError("field", "message")
	if err.Field != "field" {
		t.Errorf("Field = %q, want %q", err.Field, "field")
	}
	if err.Message != "message" {
		t.Errorf("Message = %q, want %q", err.Message, "message")
	}
}

func TestCommandError(t *testing.T) {
	underlyingErr := errors.New("underlying error")
	err := NewCommandError("evaluate", underlyingErr)

	expected := "command evaluate failed: underlying error"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, underlyingErr) {
		t.Error("errors.Is() should find the wrapped error")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "plain", err: errors.New("boom"), want: ExitFailure},
		{name: "config", err: NewConfigError("output", "bad"), want: ExitConfig},
		{name: "wrapped config", err: fmt.Errorf("load: %w", NewConfigError("x", "y")), want: ExitConfig},
		{name: "verdict", err: &VerdictError{Verdict: "BLOCK", Reason: "unsafe"}, want: ExitVerdict},
		{name: "command wrapping verdict", err: NewCommandError("evaluate", &VerdictError{Verdict: "BLOCK"}), want: ExitVerdict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
