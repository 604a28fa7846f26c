// Maps library errors to API errors.

package handlers

import (
	"errors"

	"github.com/maruel/bibdb/internal/library"
	"github.com/maruel/bibdb/internal/server/dto"
)

const (
	headerIfUnmodified = "If-Unmodified-Since-Version"
)

// libraryError converts an error returned by the library service into an
// APIError. what names the resource in not found messages.
func libraryError(err error, what string) error {
	if err == nil {
		return nil
	}
	var lerr *library.Error
	var conflict *library.VersionConflictError
	var oerr *library.ObjectError
	switch {
	case errors.Is(err, library.ErrPreconditionRequired):
		return dto.PreconditionRequired(headerIfUnmodified)
	case errors.Is(err, library.ErrNotFound):
		return dto.NotFound(what)
	case errors.As(err, &conflict):
		return dto.PreconditionFailed(conflict.Error()).
			WithDetail("expected", conflict.Expected).
			WithDetail("actual", conflict.Actual)
	case errors.As(err, &lerr):
		return dto.FromStatus(lerr.Code, lerr.Message)
	case errors.As(err, &oerr):
		return dto.FromStatus(oerr.Code, oerr.Message)
	}
	return dto.InternalWithError("Internal error", err)
}
