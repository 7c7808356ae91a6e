// Package errors provides coded errors for the strategy engine.
//
// Codes are grouped by failure class:
//   - Configuration errors (100-199): rejected at construction, before any bar is processed
//   - Data errors (200-299): malformed, duplicate or out-of-order bars; abort the current run
//   - Order errors (500-599): fill-time rejections and illegal order transitions
//   - Engine errors (600-699): misuse of an engine instance
//   - Collaborator errors (700-799): bar source, broker or writer failures, propagated unchanged
//
// Risk vetoes are not errors and never appear here.
//
// Usage:
//
//	err := errors.Newf(errors.ErrCodeInvalidPeriod, "macd fast period must be positive, got %d", fast)
//
//	if errors.IsDataError(err) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps cause with a code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps cause with a code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is is a convenience wrapper around the standard errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around the standard errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode returns the code of the outermost *Error in err's chain,
// or ErrCodeUnknown when there is none.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// IsConfigurationError reports whether err is a construction-time configuration failure.
func IsConfigurationError(err error) bool {
	return GetCode(err).inRange(100, 199)
}

// IsDataError reports whether err was caused by a bad bar in the input stream.
func IsDataError(err error) bool {
	return GetCode(err).inRange(200, 299) || IsInsufficientDataError(err)
}

// IsOrderRejection reports whether err is a fill-time rejection of an order.
func IsOrderRejection(err error) bool {
	return HasCode(err, ErrCodeOrderRejected)
}

// IsCollaboratorFailure reports whether err came from a bar source, broker or writer.
func IsCollaboratorFailure(err error) bool {
	return GetCode(err).inRange(700, 799)
}

// Collaborator wraps a failure of an external collaborator. A nil cause yields nil.
func Collaborator(cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}

	return Wrapf(ErrCodeCollaboratorFailure, cause, format, args...)
}

// InsufficientDataError represents an error when there is not enough history
// for a calculation (e.g., a feature vector over a window that is not yet full).
type InsufficientDataError struct {
	Required int    // Minimum data points required
	Actual   int    // Actual data points available
	Symbol   string // Optional: symbol context
	Message  string // Human-readable message
}

// NewInsufficientDataErrorf creates a new InsufficientDataError with a formatted message.
func NewInsufficientDataErrorf(required, actual int, symbol, format string, args ...any) *InsufficientDataError {
	return &InsufficientDataError{
		Required: required,
		Actual:   actual,
		Symbol:   symbol,
		Message:  fmt.Sprintf(format, args...),
	}
}

func (e *InsufficientDataError) Error() string {
	return e.Message
}

// IsInsufficientDataError checks if an error is an InsufficientDataError.
func IsInsufficientDataError(err error) bool {
	var insufficientErr *InsufficientDataError

	return errors.As(err, &insufficientErr)
}
