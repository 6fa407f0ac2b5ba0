package apperrors

import (
	"errors"
	"fmt"
)

// Error codes used across the capture pipeline.
const (
	ErrCodeTransient         = "TRANSIENT"
	ErrCodeMalformedResponse = "MALFORMED_RESPONSE"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeDuplicate         = "DUPLICATE"
	ErrCodePersistence       = "PERSISTENCE"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInternal          = "INTERNAL"
)

// Error is a coded application error. Code drives the caller-facing result
// mapping; Message is safe to surface to a human.
type Error struct {
	ErrCode string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.ErrCode, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.ErrCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a coded error.
func New(code, message string) *Error {
	return &Error{ErrCode: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code, message string) *Error {
	return &Error{ErrCode: code, Message: message, Cause: err}
}

// InvalidInput reports a bad field in a request.
func InvalidInput(field, message string) *Error {
	return &Error{ErrCode: ErrCodeInvalidInput, Message: fmt.Sprintf("%s: %s", field, message)}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{ErrCode: ErrCodeNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// Code extracts the error code, or ErrCodeInternal for uncoded errors.
func Code(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.ErrCode
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return err != nil && Code(err) == code
}
