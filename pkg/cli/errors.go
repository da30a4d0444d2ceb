package cli

import (
	"errors"
	"fmt"
	"strings"

	"mercator-hq/governor/pkg/config"
)

// Exit codes returned by the governor command.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
)

// ConfigError represents an invalid or unreadable configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %s", e.Message)
	}
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

// FromLoadError converts a configuration load failure. Validation failures
// keep their field paths.
func FromLoadError(err error) *ConfigError {
	var verr config.ValidationError
	if errors.As(err, &verr) && len(verr.Errors) > 0 {
		if len(verr.Errors) == 1 {
			return NewConfigError(verr.Errors[0].Field, verr.Errors[0].Message)
		}
		fields := make([]string, 0, len(verr.Errors))
		for _, fe := range verr.Errors {
			fields = append(fields, fe.Error())
		}
		return NewConfigError("", strings.Join(fields, "; "))
	}
	return NewConfigError("", err.Error())
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return ExitConfig
	}
	return ExitFailure
}
