// Package mtlinkerrors provides structured error handling for mtlink with
// error categorization, rich context, and stack traces. The categories drive
// the reconnect decisions of the resilient call wrapper: a Connection error
// is the explicit signal that a terminal session was lost, and IsConnection
// is the single classification point the wrapper consults.
//
// # Basic Usage
//
//	// Create a new error
//	err := mtlinkerrors.New(mtlinkerrors.ErrorTypeConnection, "terminal session lost")
//
//	// Wrap a driver error at the adapter boundary
//	if err := drv.AccountInfo(ctx); err != nil {
//	    return mtlinkerrors.Wrap(err, mtlinkerrors.ErrorTypeDriver, "account query failed").
//	        WithDetail("platform", "mt4")
//	}
//
// # Connection Classification
//
// IsConnection prefers the typed signal (ErrorTypeConnection or
// ErrorTypeTimeout). For errors that did not pass through a driver adapter
// it falls back to substring heuristics on the message; this fallback is a
// known source of false positives and negatives, so driver adapters should
// always classify at the boundary instead of relying on it.
//
// # Thread Safety
//
// Error instances are not thread-safe for modification. Create new
// instances or finish WithDetail calls before sharing across goroutines.
package mtlinkerrors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of error, used for reconnect decisions,
// monitoring, and error-message shaping.
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeConnection represents lost or unestablished terminal sessions
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConfig represents configuration or environment errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeDriver represents driver failures unrelated to the session
	ErrorTypeDriver ErrorType = "driver"
	// ErrorTypeData represents malformed or unusable driver payloads
	ErrorTypeData ErrorType = "data"
	// ErrorTypeUnsupported represents unknown platform identifiers
	ErrorTypeUnsupported ErrorType = "unsupported"
)

// Error represents a structured error with context.
//
// Fields:
//   - Type: Categorizes the error for handling strategies
//   - Message: Human-readable error description
//   - Cause: The underlying error that caused this error
//   - Details: Key-value pairs providing additional context
//   - Stack: Call stack at the point of error creation
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface, returning a formatted error message
// that includes the error type, message, and cause (if present).
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, enabling compatibility with errors.Is
// and errors.As for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. This method can be
// chained for adding multiple details.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, automatically
// capturing the call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the
// original error as the cause. If the error is already a structured Error,
// its stack trace is preserved. Returns nil if the input error is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	return Wrap(err, errType, fmt.Sprintf(format, args...))
}

// IsType checks if the error is of the given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// connectionHints are message fragments that suggest a lost session when the
// error carries no typed classification. The underlying terminal libraries
// do not uniformly distinguish "lost session" from other failures.
var connectionHints = []string{
	"not connected",
	"connection",
	"broken pipe",
	"reset by peer",
	"use of closed network connection",
	"no route to host",
	"i/o timeout",
	"eof",
	"terminal not responding",
	"pipe closed",
}

// IsConnection reports whether the error indicates a lost or unestablished
// terminal session. Typed Connection and Timeout errors are authoritative;
// anything else falls back to message heuristics.
func IsConnection(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if errors.As(err, &e) {
		switch e.Type {
		case ErrorTypeConnection, ErrorTypeTimeout:
			return true
		case ErrorTypeConfig, ErrorTypeDriver, ErrorTypeData, ErrorTypeUnsupported, ErrorTypeInternal:
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range connectionHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
