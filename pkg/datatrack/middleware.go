package datatrack

import (
	"fmt"
	"net/http"
)

// StatusError is the outcome recorded for HTTP responses with a 5xx status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d %s", e.Code, http.StatusText(e.Code))
}

// responseWriter captures the status code written by the handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(data)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// HTTPMiddleware measures every request as an invocation of subject name.
// Responses with status 500 or above are recorded as failures.
func (m *Monitor) HTTPMiddleware(name string, opts ...TrackOption) func(http.Handler) http.Handler {
	s := m.newSite(name, opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			_ = s.call(r.Context(), func() error {
				next.ServeHTTP(wrapped, r)
				if wrapped.statusCode >= http.StatusInternalServerError {
					return &StatusError{Code: wrapped.statusCode}
				}
				return nil
			})
		})
	}
}
