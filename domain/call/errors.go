package call

import (
	"errors"
	"fmt"
)

// Code classifies call failures.
type Code string

const (
	CodeConfigNotFound     Code = "config_not_found"
	CodeDisabled           Code = "disabled"
	CodeValidationFailed   Code = "validation_failed"
	CodeTransportError     Code = "transport_error"
	CodeTimeout            Code = "timeout"
	CodePersistenceFailure Code = "persistence_failure"
	CodeInvalidEndpoint    Code = "invalid_endpoint"
)

// Error is the error type returned by registry and proxy operations.
type Error struct {
	Code    Code
	Key     string // endpoint key, when known
	Status  int    // transport status, when known
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Key != "" {
		msg = fmt.Sprintf("%s: %s", e.Key, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is(err, ErrDisabled)
// works regardless of key or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Retryable reports whether the failure may succeed on another attempt.
func (e *Error) Retryable() bool {
	return e.Code == CodeTransportError || e.Code == CodeTimeout
}

// Sentinels for errors.Is comparisons.
var (
	ErrConfigNotFound     = &Error{Code: CodeConfigNotFound, Message: "endpoint not configured"}
	ErrDisabled           = &Error{Code: CodeDisabled, Message: "endpoint is disabled"}
	ErrValidationFailed   = &Error{Code: CodeValidationFailed, Message: "validation failed"}
	ErrTransport          = &Error{Code: CodeTransportError, Message: "transport error"}
	ErrTimeout            = &Error{Code: CodeTimeout, Message: "request timed out"}
	ErrPersistenceFailure = &Error{Code: CodePersistenceFailure, Message: "persistence failed"}
	ErrInvalidEndpoint    = &Error{Code: CodeInvalidEndpoint, Message: "invalid endpoint"}
)

// NotFound reports a missing endpoint key.
func NotFound(key string) *Error {
	return &Error{Code: CodeConfigNotFound, Key: key, Message: "endpoint not configured"}
}

// Disabled reports a call against a disabled endpoint.
func Disabled(key string) *Error {
	return &Error{Code: CodeDisabled, Key: key, Message: "endpoint is disabled"}
}

// Invalid reports an endpoint definition that cannot be registered.
func Invalid(key, reason string) *Error {
	return &Error{Code: CodeInvalidEndpoint, Key: key, Message: reason}
}

// Validation reports rejected input.
func Validation(key, reason string) *Error {
	return &Error{Code: CodeValidationFailed, Key: key, Message: reason}
}

// Transport wraps a dispatch or handler failure.
func Transport(key string, status int, err error) *Error {
	msg := "transport error"
	if status > 0 {
		msg = fmt.Sprintf("transport error (status %d)", status)
	}
	return &Error{Code: CodeTransportError, Key: key, Status: status, Message: msg, Err: err}
}

// Timeout wraps an attempt that exceeded its deadline.
func Timeout(key string, err error) *Error {
	return &Error{Code: CodeTimeout, Key: key, Message: "request timed out", Err: err}
}

// Persistence wraps a failed registry write.
func Persistence(err error) *Error {
	return &Error{Code: CodePersistenceFailure, Message: "persistence failed", Err: err}
}

// CodeOf extracts the failure code from err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// StatusOf extracts the transport status from err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
