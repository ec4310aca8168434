package respond

import "net/http"

// Error is an API error body.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

// Error codes
const (
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeBadRequest       = "BAD_REQUEST"
	CodeConflict         = "CONFLICT"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeRateLimited      = "RATE_LIMITED"
	CodeAccountLocked    = "ACCOUNT_LOCKED"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeUnavailable      = "UNAVAILABLE"
)

var (
	ErrUnauthorized = &Error{
		Code:    CodeUnauthorized,
		Message: "invalid credentials",
		Status:  http.StatusUnauthorized,
	}

	ErrInvalidToken = &Error{
		Code:    CodeUnauthorized,
		Message: "invalid or expired token",
		Status:  http.StatusUnauthorized,
	}

	ErrNoSession = &Error{
		Code:    CodeUnauthorized,
		Message: "authentication required",
		Status:  http.StatusUnauthorized,
	}

	ErrForbidden = &Error{
		Code:    CodeForbidden,
		Message: "access denied",
		Status:  http.StatusForbidden,
	}

	ErrNotFound = &Error{
		Code:    CodeNotFound,
		Message: "resource not found",
		Status:  http.StatusNotFound,
	}

	ErrInternal = &Error{
		Code:    CodeInternalError,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
	}

	ErrRateLimited = &Error{
		Code:    CodeRateLimited,
		Message: "too many requests",
		Status:  http.StatusTooManyRequests,
	}

	ErrAccountLocked = &Error{
		Code:    CodeAccountLocked,
		Message: "account temporarily locked due to too many failed attempts",
		Status:  http.StatusTooManyRequests,
	}

	ErrUnavailable = &Error{
		Code:    CodeUnavailable,
		Message: "alert feed unavailable",
		Status:  http.StatusServiceUnavailable,
	}
)

// BadRequest returns a 400 error with message.
func BadRequest(message string) *Error {
	return &Error{Code: CodeBadRequest, Message: message, Status: http.StatusBadRequest}
}

// Validation returns a 400 validation error with message.
func Validation(message string) *Error {
	return &Error{Code: CodeValidationFailed, Message: message, Status: http.StatusBadRequest}
}

// Conflict returns a 409 error with message.
func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message, Status: http.StatusConflict}
}

// NotFound returns a 404 error with message.
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message, Status: http.StatusNotFound}
}
