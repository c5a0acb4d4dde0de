package http

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error with the HTTP status and machine code it maps to.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

// WithError attaches the cause.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func InternalError(message string) *AppError {
	return NewAppError("ERR_INTERNAL", "", message, http.StatusInternalServerError)
}

// ErrorRule maps a sentinel error to a response.
type ErrorRule struct {
	Target error
	Code   string
	Field  string
	Status int
}

// MapError returns the AppError of the first rule whose Target err wraps,
// or a 500 that hides the cause. An *AppError in the chain wins over rules.
func MapError(err error, rules ...ErrorRule) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, r := range rules {
		if errors.Is(err, r.Target) {
			return NewAppError(r.Code, r.Field, err.Error(), r.Status).WithError(err)
		}
	}
	return InternalError("internal error").WithError(err)
}
