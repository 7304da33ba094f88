package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the auth and session failure taxonomy. Callers branch
// on these with errors.Is; handlers map them to HTTP statuses.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrConflict         = errors.New("conflict")
	ErrValidation       = errors.New("validation failed")
	ErrCredentials      = errors.New("invalid credentials")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenMalformed   = errors.New("token malformed")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrSessionExpired   = errors.New("session expired")
	ErrAttemptsExceeded = errors.New("attempts exceeded")
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrUnavailable      = errors.New("service unavailable")
	ErrInternal         = errors.New("internal error")
)

// AppError is a structured application error carrying a stable code, a
// client-safe message, an HTTP status, and optional field-level detail.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Status  int               `json:"-"`
	Fields  map[string]string `json:"fields,omitempty"`
	Err     error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// Conflict creates a 409 error for a uniqueness violation.
func Conflict(resource, field, value string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// Validation creates a 422 error with optional field-level detail.
func Validation(message string, fields map[string]string) *AppError {
	return &AppError{
		Code:    "VALIDATION_ERROR",
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Fields:  fields,
		Err:     ErrValidation,
	}
}

// Credentials creates a 401 error with a deliberately generic message so the
// response does not reveal whether the email or the password was wrong.
func Credentials() *AppError {
	return &AppError{
		Code:    "INVALID_CREDENTIALS",
		Message: "invalid email or password",
		Status:  http.StatusUnauthorized,
		Err:     ErrCredentials,
	}
}

// TokenExpired creates a 401 error for an expired access or refresh token.
func TokenExpired() *AppError {
	return &AppError{
		Code:    "TOKEN_EXPIRED",
		Message: "token has expired",
		Status:  http.StatusUnauthorized,
		Err:     ErrTokenExpired,
	}
}

// TokenMalformed creates a 401 error for a token that fails to parse or whose
// signature does not verify.
func TokenMalformed() *AppError {
	return &AppError{
		Code:    "TOKEN_MALFORMED",
		Message: "token is malformed or invalid",
		Status:  http.StatusUnauthorized,
		Err:     ErrTokenMalformed,
	}
}

// SessionExpired creates a 403 error. A missing or mismatched session store
// entry is reported identically to real expiry so a replayed token learns
// nothing about why it was rejected.
func SessionExpired() *AppError {
	return &AppError{
		Code:    "SESSION_EXPIRED",
		Message: "session has expired, please log in again",
		Status:  http.StatusForbidden,
		Err:     ErrSessionExpired,
	}
}

// AttemptsExceeded creates a 403 error for an exhausted verification record.
func AttemptsExceeded() *AppError {
	return &AppError{
		Code:    "ATTEMPTS_EXCEEDED",
		Message: "too many failed attempts, request a new code",
		Status:  http.StatusForbidden,
		Err:     ErrAttemptsExceeded,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// Unavailable creates a 503 error for an unreachable external dependency.
func Unavailable(component string) *AppError {
	return &AppError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: fmt.Sprintf("%s is temporarily unavailable", component),
		Status:  http.StatusServiceUnavailable,
		Err:     ErrUnavailable,
	}
}

// Internal creates a 500 error. The wrapped cause is logged server-side and
// never surfaced to the client.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrCredentials),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrSignatureInvalid),
		errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrAttemptsExceeded),
		errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
