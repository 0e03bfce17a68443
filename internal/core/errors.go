// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Backend errors
	ErrBackendUnreachable = &Error{Code: "BACKEND_UNREACHABLE", Message: "backend unreachable"}
	ErrBackendStatus      = &Error{Code: "BACKEND_STATUS", Message: "backend returned an error status"}
	ErrBackendDecode      = &Error{Code: "BACKEND_DECODE", Message: "malformed backend response"}
	ErrBackendNotReady    = &Error{Code: "BACKEND_NOT_READY", Message: "backend did not become ready"}

	// Control errors
	ErrControlBusy    = &Error{Code: "CONTROL_BUSY", Message: "a start request is already in flight"}
	ErrAlreadyRunning = &Error{Code: "ALREADY_RUNNING", Message: "bot is already running"}
	ErrNotRunning     = &Error{Code: "NOT_RUNNING", Message: "bot is not running"}

	// View errors
	ErrRegionNotFound = &Error{Code: "REGION_NOT_FOUND", Message: "region not found"}
	ErrNoticeNotFound = &Error{Code: "NOTICE_NOT_FOUND", Message: "notification not found"}
	ErrRenderFailed   = &Error{Code: "RENDER_FAILED", Message: "region render failed"}

	// History errors
	ErrSignalNotFound = &Error{Code: "SIGNAL_NOT_FOUND", Message: "signal not found"}
	ErrInvalidQuery   = &Error{Code: "INVALID_QUERY", Message: "invalid query parameter"}

	// Notifier errors
	ErrNotifierFailed = &Error{Code: "NOTIFIER_FAILED", Message: "notifier failed"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)

// StatusError carries the HTTP status and backend message of a failed call.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("status %d", e.StatusCode)
}
