// Package errors provides the error model for the flowmesh runtime.
// Every fallible runtime operation yields success or a code/message pair;
// errors are values, never panics, and classification travels with the
// error through wrapping chains.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies the class of a runtime error. Codes are stable and are
// what callers branch on; messages are for humans and logs.
type Code int

const (
	// CodeOK is the zero code; it never appears on a non-nil error.
	CodeOK Code = iota
	// CodeGeneric is an unclassified runtime failure.
	CodeGeneric
	// CodeInvalidArgument indicates a malformed input: nil envelope,
	// malformed property path, opaque property attempted across process.
	CodeInvalidArgument
	// CodeInvalidState indicates an operation issued against the wrong
	// lifecycle state, e.g. an out-of-order lifecycle ack.
	CodeInvalidState
	// CodeTypeMismatch indicates a typed property read against a value
	// of a different kind.
	CodeTypeMismatch
	// CodeMsgNotConnected indicates that destination resolution produced
	// no deliverable destination for an outbound envelope.
	CodeMsgNotConnected
	// CodeClosed indicates the target runtime object has shut down.
	CodeClosed
	// CodeTimeout indicates a deadline expired.
	CodeTimeout
)

// String returns the canonical name of the code.
func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeGeneric:
		return "generic"
	case CodeInvalidArgument:
		return "invalid_argument"
	case CodeInvalidState:
		return "invalid_state"
	case CodeTypeMismatch:
		return "type_mismatch"
	case CodeMsgNotConnected:
		return "msg_not_connected"
	case CodeClosed:
		return "closed"
	case CodeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carried by every runtime failure.
// It wraps an optional cause and supports errors.Is/errors.As matching;
// two Errors match when their codes match.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches another *Error by code, so sentinel comparisons like
// errors.Is(err, ErrMsgNotConnected) work across wrapping.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

// Sentinel errors for the fixed runtime conditions. Use these with
// errors.Is; use New/Newf when a specific message is worth carrying.
var (
	ErrGeneric         = &Error{Code: CodeGeneric, Message: "runtime error"}
	ErrInvalidArgument = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrInvalidState    = &Error{Code: CodeInvalidState, Message: "invalid state"}
	ErrTypeMismatch    = &Error{Code: CodeTypeMismatch, Message: "type mismatch"}
	ErrMsgNotConnected = &Error{Code: CodeMsgNotConnected, Message: "message not connected"}
	ErrClosed          = &Error{Code: CodeClosed, Message: "runtime is closed"}
	ErrTimeout         = &Error{Code: CodeTimeout, Message: "operation timed out"}
)

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with the given code and a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapCode wraps a cause under the given code and message.
func WrapCode(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Wrap creates a standardized error with context following the pattern
// "component.method: action failed: %w". The code of the cause, if it has
// one, is preserved for CodeOf and errors.Is matching.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    CodeOf(err),
		Message: fmt.Sprintf("%s.%s: %s failed", component, method, action),
		cause:   err,
	}
}

// CodeOf extracts the code from an error chain. A nil error is CodeOK;
// an error with no *Error in its chain is CodeGeneric.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeGeneric
}

// IsClosed reports whether err indicates runtime shutdown.
func IsClosed(err error) bool {
	return CodeOf(err) == CodeClosed
}

// IsNotConnected reports whether err indicates a missing route.
func IsNotConnected(err error) bool {
	return CodeOf(err) == CodeMsgNotConnected
}

// IsInvalidState reports whether err indicates a lifecycle ordering violation.
func IsInvalidState(err error) bool {
	return CodeOf(err) == CodeInvalidState
}

// IsTypeMismatch reports whether err indicates a typed property read failure.
func IsTypeMismatch(err error) bool {
	return CodeOf(err) == CodeTypeMismatch
}
