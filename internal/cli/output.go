package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/triql/internal/engine"
	"github.com/roach88/triql/internal/queryir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Query or comparison failure (bad DSL, mismatched rows, etc.)
	ExitCommandError = 2 // Command error (invalid paths, unreachable database, etc.)
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeConfig        = "E002" // Config load or validation failed
	ErrCodeFlag          = "E003" // Invalid flag value
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeConnectFailed = "E006" // Database connection failed
	ErrCodeWriteFailed   = "E007" // File write error

	// Query errors
	ErrCodeSyntax              = "E101" // DSL syntax error
	ErrCodeSchemaResolution    = "E102" // INCLUDE hop without a key pair
	ErrCodeUnsupportedOperator = "E103" // Operator or join the target cannot express
	ErrCodeUnsupportedFunction = "E104" // Unknown function or wrong arity
	ErrCodeRender              = "E105" // Model cannot be rendered faithfully

	// Execution errors
	ErrCodeNoExecutor      = "E201" // No database configured for the target
	ErrCodeExecutionFailed = "E202" // Backend rejected the query
	ErrCodeRowLimit        = "E203" // Result exceeded max_rows

	ErrCodeCompareFailed = "E301" // One or more scenarios failed
)

// MapErrorCode returns the CLI error code for an error from the engine.
func MapErrorCode(err error) string {
	switch queryir.CodeOf(err) {
	case queryir.ErrCodeSyntax:
		return ErrCodeSyntax
	case queryir.ErrCodeSchemaResolution:
		return ErrCodeSchemaResolution
	case queryir.ErrCodeUnsupportedOperator:
		return ErrCodeUnsupportedOperator
	case queryir.ErrCodeUnsupportedFunction:
		return ErrCodeUnsupportedFunction
	case queryir.ErrCodeRender:
		return ErrCodeRender
	}
	switch {
	case engine.IsNoExecutorError(err):
		return ErrCodeNoExecutor
	case engine.IsRowLimitError(err):
		return ErrCodeRowLimit
	case engine.IsExecutionError(err):
		return ErrCodeExecutionFailed
	}
	return ErrCodeGeneric
}

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
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

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
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

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// newFormatter builds the formatter for a command's writers.
func newFormatter(opts *RootOptions, out, errOut io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    out,
		ErrWriter: errOut, // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status    string    `json:"status"`               // "ok" or "error"
	Data      any       `json:"data,omitempty"`       // success payload
	Error     *CLIError `json:"error,omitempty"`      // error details
	RequestID string    `json:"request_id,omitempty"` // engine request correlation
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E101", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	return f.SuccessWithID(data, "")
}

// SuccessWithID outputs a successful result tagged with a request ID.
func (f *OutputFormatter) SuccessWithID(data any, requestID string) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetEscapeHTML(false)
		return enc.Encode(CLIResponse{
			Status:    "ok",
			Data:      data,
			RequestID: requestID,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetEscapeHTML(false)
		return enc.Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// QueryError reports an engine error and returns the matching ExitError.
// Query errors exit with ExitFailure; missing executors are command errors.
func (f *OutputFormatter) QueryError(err error) error {
	code := MapErrorCode(err)
	var details any
	var qe *queryir.Error
	if errors.As(err, &qe) && qe.Fragment != "" {
		details = map[string]string{"fragment": qe.Fragment}
	}
	_ = f.Error(code, err.Error(), details)

	exit := ExitFailure
	if code == ErrCodeNoExecutor {
		exit = ExitCommandError
	}
	return WrapExitError(exit, code, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
