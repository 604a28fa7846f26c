package dto

import (
	"errors"
	"net/http"
	"testing"
)

func TestAPIError(t *testing.T) {
	t.Run("NewAPIError", func(t *testing.T) {
		err := NewAPIError(http.StatusNotFound, ErrorCodeNotFound, "resource not found")
		if err.StatusCode() != http.StatusNotFound {
			t.Errorf("Expected status code %d, got %d", http.StatusNotFound, err.StatusCode())
		}
		if err.Code() != ErrorCodeNotFound {
			t.Errorf("Expected code %s, got %s", ErrorCodeNotFound, err.Code())
		}
		if err.Error() != "resource not found" {
			t.Errorf("Expected message 'resource not found', got '%s'", err.Error())
		}
		if err.Details() == nil {
			t.Error("Expected Details() to return non-nil map")
		}
	})
	t.Run("WithDetails", func(t *testing.T) {
		err := (&APIError{statusCode: http.StatusBadRequest, code: ErrorCodeValidationFailed, message: "test"}).
			WithDetails(map[string]any{"field": "since"})
		if err.Details()["field"] != "since" {
			t.Errorf("Expected field 'since', got %v", err.Details()["field"])
		}
	})
	t.Run("WithDetail", func(t *testing.T) {
		err := (&APIError{statusCode: http.StatusBadRequest, code: ErrorCodeValidationFailed, message: "test"}).
			WithDetail("key", "value")
		if err.Details()["key"] != "value" {
			t.Error("Expected WithDetail to initialize nil map")
		}
	})
	t.Run("Wrap", func(t *testing.T) {
		origErr := errors.New("original error")
		err := NewAPIError(http.StatusInternalServerError, ErrorCodeInternal, "wrapped error").Wrap(origErr)
		if !errors.Is(err, origErr) {
			t.Error("Expected Unwrap() to return the original error")
		}
		if err.Error() != "wrapped error: original error" {
			t.Errorf("Expected error message 'wrapped error: original error', got '%s'", err.Error())
		}
		if err.Message() != "wrapped error" {
			t.Errorf("Message() = %q", err.Message())
		}
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *APIError
		status int
		code   ErrorCode
		msg    string
	}{
		{"NotFound", NotFound("Item"), http.StatusNotFound, ErrorCodeNotFound, "Item not found"},
		{"BadRequest", BadRequest("bad"), http.StatusBadRequest, ErrorCodeValidationFailed, "bad"},
		{"MissingField", MissingField("newer"), http.StatusBadRequest, ErrorCodeMissingField, "'newer' not provided"},
		{"InvalidFormat", InvalidFormat("since", "x"), http.StatusBadRequest, ErrorCodeInvalidFormat, "Invalid 'since' value 'x'"},
		{"Forbidden", Forbidden("Forbidden"), http.StatusForbidden, ErrorCodeForbidden, "Forbidden"},
		{"Unauthorized", Unauthorized("API key required"), http.StatusUnauthorized, ErrorCodeUnauthorized, "API key required"},
		{"PreconditionFailed", PreconditionFailed("changed"), http.StatusPreconditionFailed, ErrorCodePreconditionFailed, "changed"},
		{"PreconditionRequired", PreconditionRequired("If-Unmodified-Since-Version"), http.StatusPreconditionRequired, ErrorCodePreconditionRequired, "If-Unmodified-Since-Version not provided"},
		{"PayloadTooLarge", PayloadTooLarge(10), http.StatusRequestEntityTooLarge, ErrorCodeTooLarge, "Request body too large"},
		{"RateLimitExceeded", RateLimitExceeded(3), http.StatusTooManyRequests, ErrorCodeRateLimited, "Too many requests"},
		{"Internal", Internal("boom"), http.StatusInternalServerError, ErrorCodeInternal, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.StatusCode() != tt.status {
				t.Errorf("StatusCode() = %d, want %d", tt.err.StatusCode(), tt.status)
			}
			if tt.err.Code() != tt.code {
				t.Errorf("Code() = %s, want %s", tt.err.Code(), tt.code)
			}
			if tt.err.Error() != tt.msg {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.msg)
			}
		})
	}
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		code   ErrorCode
	}{
		{http.StatusBadRequest, ErrorCodeValidationFailed},
		{http.StatusNotFound, ErrorCodeNotFound},
		{http.StatusConflict, ErrorCodeConflict},
		{http.StatusPreconditionFailed, ErrorCodePreconditionFailed},
		{http.StatusRequestEntityTooLarge, ErrorCodeTooLarge},
		{http.StatusTeapot, ErrorCodeInternal},
	}
	for _, tt := range tests {
		if got := FromStatus(tt.status, "x").Code(); got != tt.code {
			t.Errorf("FromStatus(%d).Code() = %s, want %s", tt.status, got, tt.code)
		}
	}
}
