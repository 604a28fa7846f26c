package library

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when the requested object does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPreconditionRequired is returned when a delete has no
	// If-Unmodified-Since-Version.
	ErrPreconditionRequired = errors.New("If-Unmodified-Since-Version not provided")
)

// AnyVersion disables the If-Unmodified-Since-Version check of a write.
const AnyVersion int64 = -1

// VersionConflictError is returned when a conditional operation was based on
// a version that is no longer current.
type VersionConflictError struct {
	What     string
	Expected int64
	Actual   int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s has been modified since the specified version (expected %d, found %d)", e.What, e.Expected, e.Actual)
}

// Error is a request level failure carrying an HTTP status code.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func badRequest(format string, a ...any) *Error {
	return &Error{Code: http.StatusBadRequest, Message: fmt.Sprintf(format, a...)}
}

// ObjectError is the failure of one element of a batch write.
type ObjectError struct {
	Key     string `json:"key,omitempty"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ObjectError) Error() string {
	return e.Message
}

func objectErrorf(code int, format string, a ...any) *ObjectError {
	return &ObjectError{Code: code, Message: fmt.Sprintf(format, a...)}
}

func invalid(format string, a ...any) *ObjectError {
	return objectErrorf(http.StatusBadRequest, format, a...)
}
