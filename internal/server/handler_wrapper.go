// Provides middleware for standardizing HTTP handlers.

package server

import (
	"bytes"
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"

	"github.com/maruel/ksid"

	"github.com/maruel/bibdb/internal/auth"
	"github.com/maruel/bibdb/internal/server/dto"
	"github.com/maruel/bibdb/internal/server/handlers"
	"github.com/maruel/bibdb/internal/server/ratelimit"
	"github.com/maruel/bibdb/internal/server/reqctx"
	"github.com/maruel/bibdb/internal/storage/git"
)

// addRequestMetadataToContext adds the request ID, client IP and User-Agent
// to the context.
func addRequestMetadataToContext(ctx context.Context, r *http.Request) context.Context {
	if reqctx.RequestID(ctx).IsZero() {
		ctx = reqctx.WithRequestID(ctx, ksid.NewID())
	}
	ctx = reqctx.WithClientIP(ctx, reqctx.GetClientIP(r))
	ctx = reqctx.WithUserAgent(ctx, r.Header.Get("User-Agent"))
	return ctx
}

// isMutating returns true for HTTP methods that modify state.
func isMutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch || method == http.MethodDelete
}

// commitDBIfMutating commits the data directory after a mutating request.
//
// The commit is attempted even when the handler failed: a batch write with
// failed elements still wrote its successful ones. When no files changed
// Commit is a no-op.
func commitDBIfMutating(ctx context.Context, r *http.Request, repo *git.Repo, key *auth.Key) {
	if repo == nil || !isMutating(r.Method) {
		return
	}
	msg := fmt.Sprintf("%s %s", r.Method, r.URL.Path)
	if err := repo.Commit(ctx, gitAuthor(key), msg); err != nil {
		slog.ErrorContext(ctx, "Failed to commit DB changes", "err", err)
	}
}

// gitAuthor returns the commit author of a request. Anonymous requests use
// the repository's default author.
func gitAuthor(key *auth.Key) git.Author {
	if key == nil {
		return git.Author{}
	}
	name := key.Name
	if name == "" {
		name = "user " + strconv.FormatInt(key.UserID, 10)
	}
	return git.Author{Name: name}
}

// authenticate decodes the API key of the request, if any.
func authenticate(r *http.Request, cfg *handlers.Config) (*auth.Key, error) {
	token := auth.FromRequest(r)
	if token == "" {
		return nil, nil
	}
	k, err := auth.Parse(cfg.JWTSecret, token)
	if err != nil {
		return nil, dto.Forbidden("Invalid key").Wrap(err)
	}
	return k, nil
}

// authorize checks that the key grants access to the library addressed by
// input, when input addresses one.
func authorize(method string, input any, key *auth.Key, cfg *handlers.Config) error {
	scoped, ok := input.(dto.LibraryScoped)
	if !ok || !cfg.RequireAuth {
		return nil
	}
	if key == nil {
		return dto.Unauthorized("API key required")
	}
	ref := scoped.Library()
	if !key.CanRead(ref) {
		return dto.Forbidden("Forbidden")
	}
	if isMutating(method) && !key.CanWrite(ref) {
		return dto.Forbidden("Write access denied")
	}
	return nil
}

// checkRateLimit checks rate limit and wraps the response writer if needed.
// Returns the (possibly wrapped) writer and whether the request should proceed.
func checkRateLimit(w http.ResponseWriter, tier *ratelimit.Tier, identifier string) (http.ResponseWriter, bool) {
	if tier == nil {
		return w, true
	}
	key := ratelimit.BuildKey(tier.Scope, identifier, tier.Name)
	result := tier.Limiter.Allow(key)
	w = ratelimit.NewResponseWriter(w, result)
	if !result.Allowed {
		writeRateLimitError(w, result)
		return w, false
	}
	return w, true
}

// getRateLimitIdentifier returns the appropriate identifier for rate limiting based on scope.
func getRateLimitIdentifier(tier *ratelimit.Tier, key *auth.Key, r *http.Request) string {
	if tier.Scope == ratelimit.ScopeKey && key != nil {
		return strconv.FormatInt(key.UserID, 10)
	}
	return reqctx.GetClientIP(r)
}

// readAndDecodeBody reads the request body with size limit. Requests
// implementing dto.RawBody receive it as is, others have it decoded as JSON.
// Returns false if an error occurred and was written to the response.
func readAndDecodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, input any, cfg *handlers.Config) bool {
	if cfg.Quotas.MaxRequestBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.Quotas.MaxRequestBodyBytes)
	}
	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(ctx, w, dto.PayloadTooLarge(maxBytesErr.Limit))
			return false
		}
		slog.ErrorContext(ctx, "Failed to read request body", "err", err)
		writeError(ctx, w, dto.BadRequest("Failed to read request body"))
		return false
	}
	if raw, ok := input.(dto.RawBody); ok {
		raw.SetBody(body)
		return true
	}
	if len(bytes.TrimSpace(body)) > 0 {
		d := json.NewDecoder(bytes.NewReader(body))
		d.DisallowUnknownFields()
		if err := d.Decode(input); err != nil {
			slog.ErrorContext(ctx, "Failed to decode request body", "err", err)
			writeError(ctx, w, dto.BadRequest("Invalid request body"))
			return false
		}
	}
	return true
}

// Wrap wraps a handler function to work as an http.Handler.
// The function must have signature: func(context.Context, *In) (*Out, error)
// where In can be unmarshalled from JSON and Out is a struct.
// Parameters are bound to struct fields tagged with `path:"name"`,
// `query:"name"` or `header:"Name"`, including in embedded structs.
// *In must implement dto.Validatable.
//
// Requests implementing dto.LibraryScoped are checked against the API key
// when authentication is required. Responses implementing dto.Envelope
// control their status code and version headers.
//
// Example:
//
//	type GetObjectRequest struct {
//	    dto.ObjectKeyPath
//	    IfModified dto.Version `header:"If-Modified-Since-Version"`
//	}
//
//	func (h *ObjectHandler) Get(ctx context.Context, req *GetObjectRequest) (*ObjectResponse, error)
func Wrap[In any, PtrIn interface {
	*In
	dto.Validatable
}, Out any](fn func(context.Context, PtrIn) (*Out, error), svc *handlers.Services, cfg *handlers.Config, limiters *ratelimit.Limiters) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := addRequestMetadataToContext(r.Context(), r)

		key, err := authenticate(r, cfg)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		if key != nil {
			ctx = reqctx.WithAPIKey(ctx, key)
		}

		if tier := limiters.Match(r.Method, r.URL.Path, key != nil); tier != nil {
			var ok bool
			w, ok = checkRateLimit(w, tier, getRateLimitIdentifier(tier, key, r))
			if !ok {
				return
			}
		}

		input := new(In)
		if !readAndDecodeBody(ctx, w, r, input, cfg) {
			return
		}
		if err := populateParams(r, input); err != nil {
			handleValidationError(ctx, w, err)
			return
		}
		if err := PtrIn(input).Validate(); err != nil {
			handleValidationError(ctx, w, err)
			return
		}
		if err := authorize(r.Method, input, key, cfg); err != nil {
			writeError(ctx, w, err)
			return
		}

		output, err := fn(ctx, PtrIn(input))
		commitDBIfMutating(ctx, r, svc.Repo, key)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		writeResponse(ctx, w, output)
	})
}

// populateParams populates the struct fields tagged with `path:"name"`,
// `query:"name"` and `header:"Name"` from the request. It descends into
// embedded structs.
func populateParams(r *http.Request, input any) error {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Pointer || val.Elem().Kind() != reflect.Struct {
		return nil
	}
	return populateStruct(r, val.Elem())
}

func populateStruct(r *http.Request, elem reflect.Value) error {
	typ := elem.Type()
	var query map[string][]string
	for i := range typ.NumField() {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		fieldVal := elem.Field(i)
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			if err := populateStruct(r, fieldVal); err != nil {
				return err
			}
			continue
		}
		var name, value string
		if tag := field.Tag.Get("path"); tag != "" {
			name, value = tag, r.PathValue(tag)
		} else if tag := field.Tag.Get("query"); tag != "" {
			if query == nil {
				query = r.URL.Query()
			}
			name = tag
			if v := query[tag]; len(v) != 0 {
				value = v[0]
			}
		} else if tag := field.Tag.Get("header"); tag != "" {
			name, value = tag, r.Header.Get(tag)
		} else {
			continue
		}
		if value == "" {
			continue
		}
		if err := setField(fieldVal, name, value); err != nil {
			return err
		}
	}
	return nil
}

// setField sets a string, an integer or an encoding.TextUnmarshaler from its
// text form.
func setField(v reflect.Value, name, value string) error {
	if u, ok := v.Addr().Interface().(encoding.TextUnmarshaler); ok {
		if err := u.UnmarshalText([]byte(value)); err != nil {
			return dto.InvalidFormat(name, value)
		}
		return nil
	}
	switch v.Kind() {
	case reflect.String:
		v.SetString(value)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return dto.InvalidFormat(name, value)
		}
		v.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return dto.InvalidFormat(name, value)
		}
		v.SetBool(b)
	}
	return nil
}

// handleValidationError handles a validation error from a request's Validate method.
func handleValidationError(ctx context.Context, w http.ResponseWriter, err error) {
	var ews dto.ErrorWithStatus
	if !errors.As(err, &ews) {
		err = dto.BadRequest(err.Error())
	}
	writeError(ctx, w, err)
}

// writeResponse writes the output of a handler. Outputs implementing
// dto.Envelope set their headers and status code, and may have no body or
// a plain text one.
func writeResponse(ctx context.Context, w http.ResponseWriter, output any) {
	status := http.StatusOK
	if env, ok := output.(dto.Envelope); ok {
		meta := env.ResponseMeta()
		if v, ok := meta.Version(); ok {
			w.Header().Set("Last-Modified-Version", strconv.FormatInt(v, 10))
		}
		if n, ok := meta.Total(); ok {
			w.Header().Set("Total-Results", strconv.Itoa(n))
		}
		status = meta.Status()
		if !meta.HasBody() {
			w.WriteHeader(status)
			return
		}
		if text := meta.Text(); text != nil {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(status)
			if _, err := w.Write(text); err != nil {
				slog.ErrorContext(ctx, "Failed to write response", "err", err)
			}
			return
		}
	}
	b, err := json.Marshal(output)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", "err", err)
		writeError(ctx, w, dto.InternalWithError("Failed to encode response", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(b, '\n')); err != nil {
		slog.ErrorContext(ctx, "Failed to write response", "err", err)
	}
}

// writeError writes an error as the standard JSON error envelope. Errors
// that carry no status are internal errors, whose cause is logged but not
// returned.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	errorCode := dto.ErrorCodeInternal
	message := "Internal error"
	var details map[string]any

	var ews dto.ErrorWithStatus
	if errors.As(err, &ews) {
		statusCode = ews.StatusCode()
		errorCode = ews.Code()
		details = ews.Details()
		message = ews.Error()
		var apiErr *dto.APIError
		if errors.As(err, &apiErr) {
			message = apiErr.Message()
		}
	}
	if statusCode >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "Handler error", "err", err, "statusCode", statusCode, "code", errorCode)
	} else {
		slog.InfoContext(ctx, "Request error", "err", err, "statusCode", statusCode, "code", errorCode)
	}
	writeErrorResponseWithCode(w, statusCode, errorCode, message, details)
}

// writeErrorResponseWithCode writes a detailed error response as JSON with code and details.
func writeErrorResponseWithCode(w http.ResponseWriter, statusCode int, code dto.ErrorCode, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := dto.ErrorResponse{
		Error: dto.ErrorDetails{
			Code:    code,
			Message: message,
		},
		Details: details,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// writeRateLimitError writes a 429 rate limit error response.
func writeRateLimitError(w http.ResponseWriter, result ratelimit.Result) {
	apiErr := dto.RateLimitExceeded(int(result.RetryAfter.Seconds()))
	writeErrorResponseWithCode(w, apiErr.StatusCode(), apiErr.Code(), apiErr.Error(), apiErr.Details())
}
