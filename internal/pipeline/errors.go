package pipeline

import (
	"errors"
	"fmt"
)

// ErrorType classifies pipeline failures.
type ErrorType string

const (
	// ErrorTypeConstruction marks a malformed topology or missing named
	// element. Not retryable without fixing configuration.
	ErrorTypeConstruction ErrorType = "CONSTRUCTION_ERROR"
	// ErrorTypeStart marks a pipeline that failed to reach the running state.
	// The caller may retry by rebuilding from idle.
	ErrorTypeStart ErrorType = "START_ERROR"
	// ErrorTypeRuntime marks an asynchronous graph failure after running was
	// reached. Always mapped to an automatic stop.
	ErrorTypeRuntime ErrorType = "RUNTIME_ERROR"
	// ErrorTypeDetectionCycle marks a single failed detection worker
	// iteration. Contained inside the worker loop.
	ErrorTypeDetectionCycle ErrorType = "DETECTION_CYCLE_ERROR"
	// ErrorTypeState marks an operation issued in the wrong lifecycle state.
	ErrorTypeState ErrorType = "STATE_ERROR"
)

// Error is a typed pipeline error.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a typed pipeline error.
func NewError(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// WrapError wraps an existing error with a pipeline error type.
func WrapError(err error, t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

func NewConstructionError(message string) *Error {
	return NewError(ErrorTypeConstruction, message)
}

func NewStartError(message string) *Error {
	return NewError(ErrorTypeStart, message)
}

func WrapStartError(err error, message string) *Error {
	return WrapError(err, ErrorTypeStart, message)
}

func NewStateError(message string) *Error {
	return NewError(ErrorTypeState, message)
}

func WrapRuntimeError(err error, message string) *Error {
	return WrapError(err, ErrorTypeRuntime, message)
}

func WrapDetectionCycleError(err error, message string) *Error {
	return WrapError(err, ErrorTypeDetectionCycle, message)
}

// TypeOf returns the pipeline error type of err, or an empty string when err
// is not a pipeline error.
func TypeOf(err error) ErrorType {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Type
	}
	return ""
}

func IsConstructionError(err error) bool { return TypeOf(err) == ErrorTypeConstruction }
func IsStartError(err error) bool        { return TypeOf(err) == ErrorTypeStart }
func IsStateError(err error) bool        { return TypeOf(err) == ErrorTypeState }
