package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/ataa/internal/model"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failed (push rejected, invalid transition, etc.)
	ExitCommandError = 2 // Command error (bad config, database not found, etc.)
	ExitUnavailable  = 3 // Upstream unreachable; retry later
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// wrapOp picks the exit code from the error's category: connectivity
// problems are retryable, everything else is a failure of the operation.
func wrapOp(message string, err error) *ExitError {
	switch model.CodeOf(err) {
	case model.ErrCodeConnectivity, model.ErrCodeNoConnectivity, model.ErrCodeAlreadyInProgress:
		return WrapExitError(ExitUnavailable, message, err)
	}
	return WrapExitError(ExitFailure, message, err)
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success outputs a successful result in the configured format. Text output
// prints strings as-is and anything else as indented JSON.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	if s, ok := data.(string); ok {
		_, err := fmt.Fprintln(f.Writer, s)
		return err
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f.Writer, string(out))
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(err error) error {
	code := string(model.CodeOf(err))
	if code == "" {
		code = "ERROR"
	}
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: err.Error()},
		})
	}
	_, werr := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, err)
	return werr
}
