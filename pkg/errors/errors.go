// Package errors provides structured error types for imgembed.
//
// Every failure that can occur while resolving an image reference maps to a
// [Code]. The resolver uses codes to decide how a failure is downgraded:
//
//   - DECODE_ERROR, FETCH_ERROR, RENDER_ERROR, UNRESOLVABLE: the image is
//     replaced by the placeholder payload.
//   - CACHE_ERROR: the cache operation is treated as a miss or a no-op.
//   - INVALID_*: configuration or input problems reported to the caller.
//
// Format sniffing never fails; an unrecognised signature is a normal return
// value (media.Unknown), not an error.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeDecode, "unsupported bitmap header")
//	if errors.Is(err, errors.ErrCodeDecode) {
//	    // fall back to the placeholder
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeFetch, origErr, "fetch %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidFormat Code = "INVALID_FORMAT"
	ErrCodeInvalidPath   Code = "INVALID_PATH"
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"

	// Resolution stage errors
	ErrCodeDecode       Code = "DECODE_ERROR"
	ErrCodeFetch        Code = "FETCH_ERROR"
	ErrCodeRender       Code = "RENDER_ERROR"
	ErrCodeUnresolvable Code = "UNRESOLVABLE"

	// Cache errors
	ErrCodeCache Code = "CACHE_ERROR"

	// Resource and network errors
	ErrCodeNotFound Code = "NOT_FOUND"
	ErrCodeNetwork  Code = "NETWORK_ERROR"
	ErrCodeTimeout  Code = "TIMEOUT"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsStageFailure reports whether err is one of the resolution stage failures
// that the resolver downgrades to the placeholder path.
func IsStageFailure(err error) bool {
	switch GetCode(err) {
	case ErrCodeDecode, ErrCodeFetch, ErrCodeRender, ErrCodeUnresolvable,
		ErrCodeNotFound, ErrCodeNetwork, ErrCodeTimeout, ErrCodeUnsupported:
		return true
	}
	return false
}
