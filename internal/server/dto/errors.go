// Package dto defines API request/response types and error handling.
//
// This package contains the types used for HTTP API communication:
//   - Request types with path/query/header struct tags for parameter binding
//   - Response types carrying the version headers of library responses
//   - Structured error types with HTTP status codes and error codes
//
// Error handling follows a structured pattern:
//   - ErrorCode provides machine-readable error classification
//   - APIError wraps errors with HTTP status codes and details
//   - Constructor functions (NotFound, BadRequest, etc.) create common errors
package dto

import (
	"fmt"
	"maps"
	"net/http"
)

// ErrorCode defines specific error types for the API.
type ErrorCode string

const (
	// ErrorCodeValidationFailed is returned when input data fails validation.
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrorCodeMissingField is returned when a required parameter is missing.
	ErrorCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrorCodeInvalidFormat is returned when a parameter has an invalid format.
	ErrorCodeInvalidFormat ErrorCode = "INVALID_FORMAT"

	// ErrorCodeNotFound is returned when a resource is not found.
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrorCodeConflict is returned when a referenced object does not exist.
	ErrorCodeConflict ErrorCode = "CONFLICT"

	// ErrorCodePreconditionFailed is returned when the library or object
	// changed since the version the client based its request on.
	ErrorCodePreconditionFailed ErrorCode = "PRECONDITION_FAILED"
	// ErrorCodePreconditionRequired is returned when a conditional header is
	// mandatory and missing.
	ErrorCodePreconditionRequired ErrorCode = "PRECONDITION_REQUIRED"
	// ErrorCodeTooLarge is returned when a request carries too much data.
	ErrorCodeTooLarge ErrorCode = "TOO_LARGE"
	// ErrorCodeRateLimited is returned when a client exceeds its rate limit.
	ErrorCodeRateLimited ErrorCode = "RATE_LIMITED"

	// ErrorCodeInternal is returned when an unexpected server error occurs.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrorCodeUnauthorized is returned when the API key is missing.
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodeForbidden is returned when the API key is invalid or lacks
	// access to the library.
	ErrorCodeForbidden ErrorCode = "FORBIDDEN"
)

// ErrorDetails defines the structured error information in a response.
type ErrorDetails struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error   ErrorDetails   `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
		details:    make(map[string]any),
	}
}

// WithDetails adds details to the error.
func (e *APIError) WithDetails(details map[string]any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	maps.Copy(e.details, details)
	return e
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// Message returns the message without the wrapped error.
func (e *APIError) Message() string {
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// Predefined error constructors for common cases

// NotFound creates a 404 Not Found error.
func NotFound(resource string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrorCodeNotFound, resource+" not found")
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeValidationFailed, message)
}

// MissingField creates a 400 Bad Request error for a missing parameter.
func MissingField(fieldName string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeMissingField, "'"+fieldName+"' not provided")
}

// InvalidFormat creates a 400 Bad Request error for a malformed parameter.
func InvalidFormat(fieldName, value string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeInvalidFormat, fmt.Sprintf("Invalid '%s' value '%s'", fieldName, value))
}

// Forbidden returns a 403 Forbidden error.
func Forbidden(message string) *APIError {
	return NewAPIError(http.StatusForbidden, ErrorCodeForbidden, message)
}

// Unauthorized returns a 401 Unauthorized error.
func Unauthorized(message string) *APIError {
	return NewAPIError(http.StatusUnauthorized, ErrorCodeUnauthorized, message)
}

// PreconditionFailed creates a 412 Precondition Failed error.
func PreconditionFailed(message string) *APIError {
	return NewAPIError(http.StatusPreconditionFailed, ErrorCodePreconditionFailed, message)
}

// PreconditionRequired creates a 428 Precondition Required error.
func PreconditionRequired(header string) *APIError {
	return NewAPIError(http.StatusPreconditionRequired, ErrorCodePreconditionRequired, header+" not provided")
}

// PayloadTooLarge creates a 413 error for a request body over the limit.
func PayloadTooLarge(limit int64) *APIError {
	return NewAPIError(http.StatusRequestEntityTooLarge, ErrorCodeTooLarge, "Request body too large").
		WithDetail("max_bytes", limit)
}

// RateLimitExceeded creates a 429 error.
func RateLimitExceeded(retryAfter int) *APIError {
	return NewAPIError(http.StatusTooManyRequests, ErrorCodeRateLimited, "Too many requests").
		WithDetail("retry_after", retryAfter)
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeInternal, message)
}

// InternalWithError creates a 500 error wrapping an underlying error.
func InternalWithError(message string, err error) *APIError {
	return Internal(message).Wrap(err)
}

// FromStatus creates an APIError from a bare HTTP status code, choosing the
// error code that matches it.
func FromStatus(statusCode int, message string) *APIError {
	code := ErrorCodeInternal
	switch statusCode {
	case http.StatusBadRequest:
		code = ErrorCodeValidationFailed
	case http.StatusUnauthorized:
		code = ErrorCodeUnauthorized
	case http.StatusForbidden:
		code = ErrorCodeForbidden
	case http.StatusNotFound:
		code = ErrorCodeNotFound
	case http.StatusConflict:
		code = ErrorCodeConflict
	case http.StatusPreconditionFailed:
		code = ErrorCodePreconditionFailed
	case http.StatusRequestEntityTooLarge:
		code = ErrorCodeTooLarge
	case http.StatusPreconditionRequired:
		code = ErrorCodePreconditionRequired
	case http.StatusTooManyRequests:
		code = ErrorCodeRateLimited
	}
	return NewAPIError(statusCode, code, message)
}
