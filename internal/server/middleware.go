// Provides the middlewares wrapping the whole router.

package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/maruel/bibdb/internal/server/dto"
	"github.com/maruel/bibdb/internal/server/ipgeo"
	"github.com/maruel/bibdb/internal/server/reqctx"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.size += n
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// logRequests logs one line per request.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		ctx := r.Context()
		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(ctx, level, "http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"size", rec.size,
			"dur", time.Since(start).Round(time.Microsecond),
			"version", rec.Header().Get("Last-Modified-Version"),
			"ip", reqctx.ClientIP(ctx),
			"country", reqctx.CountryCode(ctx),
		)
	})
}

// geoFilter resolves the country of the client and refuses the requests from
// blocked countries. The client IP and country are added to the request
// context.
func geoFilter(geo *ipgeo.Checker, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := reqctx.GetClientIP(r)
		cc := geo.CountryCode(ip)
		ctx := reqctx.WithClientIP(r.Context(), ip)
		if cc != "" {
			ctx = reqctx.WithCountryCode(ctx, cc)
		}
		if geo.Blocked(cc) {
			writeError(ctx, w, dto.Forbidden("Access from your country is not permitted"))
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
