package queryir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes compile and render failures.
type ErrorCode string

const (
	// ErrCodeSyntax covers unbalanced parentheses, unparsable conditions and
	// malformed logical expressions. Always fatal.
	ErrCodeSyntax ErrorCode = "SYNTAX_ERROR"

	// ErrCodeSchemaResolution indicates an INCLUDE hop with no key pair.
	ErrCodeSchemaResolution ErrorCode = "SCHEMA_RESOLUTION_ERROR"

	// ErrCodeUnsupportedOperator indicates an operator (or join kind) the
	// requested target cannot express.
	ErrCodeUnsupportedOperator ErrorCode = "UNSUPPORTED_OPERATOR"

	// ErrCodeUnsupportedFunction indicates an unknown function, a wrong
	// arity, or a function the target cannot express.
	ErrCodeUnsupportedFunction ErrorCode = "UNSUPPORTED_FUNCTION"

	// ErrCodeRender indicates a model that is legal but cannot be rendered
	// faithfully, e.g. pagination without ORDER BY on OFFSET/FETCH dialects.
	ErrCodeRender ErrorCode = "RENDER_ERROR"
)

// Error is the structured error returned by every compile stage.
//
// Fields beyond Code and Message are filled when they apply, so callers
// can point at the offending part of the query.
type Error struct {
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Fragment is the offending substring of the DSL input.
	Fragment string

	// Tables names the tables involved (schema resolution errors).
	Tables []string

	// Name is the operator or function name.
	Name string

	// Target is the renderer or dialect that rejected the query.
	Target string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.Fragment != "" {
		fmt.Fprintf(&b, " (near %q)", e.Fragment)
	}
	if e.Target != "" {
		fmt.Fprintf(&b, " [target=%s]", e.Target)
	}
	return b.String()
}

// NewSyntaxError creates a syntax error pointing at fragment.
func NewSyntaxError(message, fragment string) *Error {
	return &Error{Code: ErrCodeSyntax, Message: message, Fragment: fragment}
}

// NewSchemaResolutionError creates an error for an unresolvable INCLUDE hop.
func NewSchemaResolutionError(parent, child string) *Error {
	return &Error{
		Code:    ErrCodeSchemaResolution,
		Message: fmt.Sprintf("no foreign key relates %s and %s", parent, child),
		Tables:  []string{parent, child},
	}
}

// NewUnsupportedOperatorError creates an error for an operator the target
// cannot express.
func NewUnsupportedOperatorError(name, target string) *Error {
	return &Error{
		Code:    ErrCodeUnsupportedOperator,
		Message: fmt.Sprintf("%s is not supported", name),
		Name:    name,
		Target:  target,
	}
}

// NewUnsupportedFunctionError creates an error for a function problem.
// target may be empty when the problem is target-independent (arity).
func NewUnsupportedFunctionError(name, message, target string) *Error {
	return &Error{
		Code:    ErrCodeUnsupportedFunction,
		Message: message,
		Name:    name,
		Target:  target,
	}
}

// NewRenderError creates a render error for target.
func NewRenderError(message, target string) *Error {
	return &Error{Code: ErrCodeRender, Message: message, Target: target}
}

func hasCode(err error, code ErrorCode) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code == code
	}
	return false
}

// IsSyntaxError reports whether err is (or wraps) a syntax error.
func IsSyntaxError(err error) bool {
	return hasCode(err, ErrCodeSyntax)
}

// IsSchemaResolutionError reports whether err is (or wraps) a schema resolution error.
func IsSchemaResolutionError(err error) bool {
	return hasCode(err, ErrCodeSchemaResolution)
}

// IsUnsupported reports whether err is an unsupported operator or function error.
func IsUnsupported(err error) bool {
	return hasCode(err, ErrCodeUnsupportedOperator) || hasCode(err, ErrCodeUnsupportedFunction)
}

// IsRenderError reports whether err is (or wraps) a render error.
func IsRenderError(err error) bool {
	return hasCode(err, ErrCodeRender)
}

// CodeOf returns the ErrorCode carried by err, or "" if err is not an *Error.
func CodeOf(err error) ErrorCode {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}
