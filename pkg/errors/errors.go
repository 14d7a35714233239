package awscqrs_errors

import (
	"errors"
	"net/http"
)

// Common errors
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrAlreadyExists      = errors.New("already exists")
	ErrMalformedRecord    = errors.New("malformed change record")
)

// CustomError is a domain error that carries the status code it should be
// answered with. Only the error boundary turns it into a response.
type CustomError struct {
	Code    int
	Message string
	cause   error
}

func (e *CustomError) Error() string {
	return e.Message
}

func (e *CustomError) Unwrap() error {
	return e.cause
}

func NewCustomError(message string, code int) *CustomError {
	return &CustomError{Code: code, Message: message}
}

// IncorrectRequestError is a malformed request (400).
func IncorrectRequestError(message string) *CustomError {
	return &CustomError{Code: http.StatusBadRequest, Message: message, cause: ErrInvalidInput}
}

// UnauthenticatedError means no user identity could be resolved (401).
func UnauthenticatedError(message string) *CustomError {
	return &CustomError{Code: http.StatusUnauthorized, Message: message, cause: ErrUnauthorized}
}

func ForbiddenError(message string) *CustomError {
	return &CustomError{Code: http.StatusForbidden, Message: message, cause: ErrForbidden}
}

func NotFoundError(message string) *CustomError {
	return &CustomError{Code: http.StatusNotFound, Message: message, cause: ErrNotFound}
}

// NotAllowedError is a wrong HTTP method (405).
func NotAllowedError(message string) *CustomError {
	return &CustomError{Code: http.StatusMethodNotAllowed, Message: message}
}

func ConflictError(message string) *CustomError {
	return &CustomError{Code: http.StatusConflict, Message: message, cause: ErrConflict}
}

func TooManyRequestsError(message string) *CustomError {
	return &CustomError{Code: http.StatusTooManyRequests, Message: message, cause: ErrRateLimited}
}

// AsCustomError reports whether err is (or wraps) a CustomError.
func AsCustomError(err error) (*CustomError, bool) {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
