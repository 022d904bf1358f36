package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes returned by convsync.
const (
	ExitSuccess      = 0 // Command succeeded
	ExitFailure      = 1 // Scenarios failed or the session ended with an error
	ExitCommandError = 2 // Bad flags, unreadable config, unreachable server
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError wrapping err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code for err: ExitSuccess for nil, the
// ExitError's code when err wraps one, ExitFailure otherwise.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the envelope every command prints with --format json.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failure in a JSON response.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Output writes command results as text or JSON.
type Output struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; falls back to Writer
	Verbose   bool
}

// Success prints data. Text output uses data's default formatting.
func (o *Output) Success(data any) error {
	if o.Format == "json" {
		return o.encode(Response{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(o.Writer, data)
	return err
}

// Error prints a failure. Details are only shown in text mode with --verbose.
func (o *Output) Error(code, message string, details any) error {
	if o.Format == "json" {
		return o.encode(Response{
			Status: "error",
			Error:  &ResponseError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(o.Writer, "Error [%s]: %s\n", code, message)
	if o.Verbose && details != nil {
		fmt.Fprintf(o.Writer, "Details: %v\n", details)
	}
	return nil
}

// Debugf writes a diagnostic line when verbose output is on. It never
// writes to Writer when ErrWriter is set, so JSON output stays parseable.
func (o *Output) Debugf(format string, args ...any) {
	if o.Verbose {
		fmt.Fprintf(o.Diag(), format+"\n", args...)
	}
}

// Diag returns the writer for diagnostics.
func (o *Output) Diag() io.Writer {
	if o.ErrWriter != nil {
		return o.ErrWriter
	}
	return o.Writer
}

func (o *Output) encode(r Response) error {
	enc := json.NewEncoder(o.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
