package utils

import (
	"errors"
	"net/http"
)

// ErrorKind classifies a request failure; each kind maps to one HTTP status.
type ErrorKind string

const (
	KindInvalidInput  ErrorKind = "InvalidInput"
	KindUnauthorized  ErrorKind = "Unauthorized"
	KindForbidden     ErrorKind = "Forbidden"
	KindNotFound      ErrorKind = "NotFound"
	KindConflict      ErrorKind = "Conflict"
	KindUploadFailed  ErrorKind = "UploadFailed"
	KindInternalError ErrorKind = "InternalError"
)

// AppError is an error with a kind and a message that is safe to show to callers.
// Err holds the underlying cause, which is logged but never returned to clients.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError creates an AppError without an underlying cause.
func NewError(kind ErrorKind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// WrapError creates an AppError around cause.
func WrapError(kind ErrorKind, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the kind of err, or KindInternalError when err is not an AppError.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternalError
}

// StatusFor maps an error kind to its HTTP status code.
func StatusFor(kind ErrorKind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUploadFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
