/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package errs provides the coded error type shared by the exercise
// services and the HTTP layer.
package errs

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeInvalid            Code = "INVALID"
	CodeNotFound           Code = "NOT_FOUND"
	CodeInvalidTransition  Code = "INVALID_TRANSITION"
	CodeQuotaExceeded      Code = "QUOTA_EXCEEDED"
	CodeExerciseComplete   Code = "EXERCISE_COMPLETE"
	CodeUnavailable        Code = "UNAVAILABLE"
	CodeRoleUnknown        Code = "ROLE_UNKNOWN"
	CodeUnsupportedFormat  Code = "UNSUPPORTED_FORMAT"
	CodeSessionArchived    Code = "SESSION_ARCHIVED"
	CodeAdjudicationLocked Code = "ADJUDICATION_LOCKED"
)

// Error is a domain error carrying a code and, for validation failures, the
// offending field.
type Error struct {
	Code    Code
	Message string
	Field   string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Invalid reports a validation failure on field.
func Invalid(field, message string) *Error {
	return &Error{Code: CodeInvalid, Message: message, Field: field}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// FieldOf returns the field of the first *Error in err's chain.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

// HasCode reports whether err carries code anywhere in its chain.
func HasCode(err error, code Code) bool {
	return errors.Is(err, &Error{Code: code})
}
