package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error with a stable machine-readable code and the HTTP
// status it maps to. Only Code and Message reach API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// New builds an application error.
func New(code, message string, statusCode int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode}
}

var (
	ErrUnauthorized       = New("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", "Incorrect email or password", http.StatusUnauthorized)
	ErrInactiveUser       = New("INACTIVE_USER", "Inactive user", http.StatusBadRequest)
	ErrMFARequired        = New("auth.mfa_required", "Multi-factor authentication required", http.StatusUnauthorized)
	ErrMFAInvalid         = New("auth.mfa_invalid", "Invalid multi-factor authentication code", http.StatusUnauthorized)
	ErrForbidden          = New("FORBIDDEN", "The user doesn't have enough privileges", http.StatusForbidden)
	ErrNotFound           = New("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrMethodNotAllowed   = New("METHOD_NOT_ALLOWED", "Method not allowed", http.StatusMethodNotAllowed)
	ErrBadRequest         = New("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrRateLimit          = New("RATE_LIMIT_EXCEEDED", "Too many requests, please slow down", http.StatusTooManyRequests)
	ErrInternalServer     = New("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
)

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.Internal != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	default:
		return e.Message
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches by code, so copies made with WithMessage or WithInternal still
// satisfy errors.Is against their sentinel.
func (e *AppError) Is(target error) bool {
	other, ok := target.(*AppError)
	return ok && e != nil && other != nil && e.Code == other.Code
}

// WithInternal returns a copy carrying cause for logs.
func (e *AppError) WithInternal(cause error) *AppError {
	return e.with(func(cpy *AppError) { cpy.Internal = cause })
}

// WithMessage returns a copy with a different caller-facing message.
func (e *AppError) WithMessage(message string) *AppError {
	return e.with(func(cpy *AppError) { cpy.Message = message })
}

func (e *AppError) with(edit func(*AppError)) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	edit(&cpy)
	return &cpy
}

// Internal hides cause behind a generic 500 whose message is safe to show.
func Internal(cause error, message string) *AppError {
	return ErrInternalServer.WithMessage(message).WithInternal(cause)
}

// FromError returns the AppError inside err, or wraps err as a 500.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest reports a validation failure with a caller-facing message.
func NewBadRequest(message string) *AppError {
	return ErrBadRequest.WithMessage(message)
}

// NewNotFound reports a missing entity, e.g. NewNotFound("License").
func NewNotFound(entity string) *AppError {
	return ErrNotFound.WithMessage(entity + " not found")
}

// IsNotFound reports whether err carries any 404 AppError, including
// entity-specific codes such as LICENSE_NOT_FOUND.
func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.StatusCode == http.StatusNotFound
}
