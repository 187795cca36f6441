package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/triql/internal/queryir"
)

// RuntimeError represents a failure after a query compiled successfully.
//
// Compile failures are *queryir.Error values and pass through unchanged;
// RuntimeError covers the execution side:
//   - No executor: the target has no executor configured
//   - Row limit: the result exceeded the engine's row quota
//   - Execution: the database or interpreter rejected the artifact
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RequestID identifies the affected request.
	RequestID string

	// Target is the target the request was executed against.
	Target queryir.Target

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeNoExecutor indicates Execute was called for a target with no
	// configured executor.
	ErrCodeNoExecutor RuntimeErrorCode = "NO_EXECUTOR"

	// ErrCodeRowLimitExceeded indicates the result exceeded the row quota.
	ErrCodeRowLimitExceeded RuntimeErrorCode = "ROW_LIMIT_EXCEEDED"

	// ErrCodeExecutionFailed indicates the executor returned an error.
	ErrCodeExecutionFailed RuntimeErrorCode = "EXECUTION_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RequestID != "" {
		msg = fmt.Sprintf("%s (request=%s)", msg, e.RequestID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsNoExecutorError returns true if the error reports a missing executor.
// Uses errors.As to handle wrapped errors.
func IsNoExecutorError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeNoExecutor
	}
	return false
}

// IsRowLimitError returns true if the error reports an exceeded row quota.
func IsRowLimitError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeRowLimitExceeded
	}
	return false
}

// IsExecutionError returns true if the executor itself failed.
func IsExecutionError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeExecutionFailed
	}
	return false
}

// NewNoExecutorError creates a RuntimeError for a target without executor.
func NewNoExecutorError(requestID string, target queryir.Target) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeNoExecutor,
		Message:   fmt.Sprintf("no executor configured for target %s", target),
		RequestID: requestID,
		Target:    target,
	}
}

// NewRowLimitError creates a RuntimeError for an exceeded row quota.
func NewRowLimitError(requestID string, rows, limit int) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeRowLimitExceeded,
		Message:   fmt.Sprintf("result exceeded max rows (%d > %d)", rows, limit),
		RequestID: requestID,
		Details: map[string]string{
			"rows":     fmt.Sprintf("%d", rows),
			"max_rows": fmt.Sprintf("%d", limit),
		},
	}
}

// NewExecutionError wraps an executor failure.
func NewExecutionError(requestID string, target queryir.Target, err error) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeExecutionFailed,
		Message:   fmt.Sprintf("%s execution failed", target),
		RequestID: requestID,
		Target:    target,
		Err:       err,
	}
}
