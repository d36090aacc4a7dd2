package server

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// middleware wraps a handler with one cross-cutting concern.
type middlewareFunc func(http.Handler) http.Handler

// chain nests middlewares around h so that the first listed middleware sees
// the request first.
func chain(h http.Handler, mws ...middlewareFunc) http.Handler {
	wrapped := h
	for i := len(mws) - 1; i >= 0; i-- {
		wrapped = mws[i](wrapped)
	}
	return wrapped
}

// Recovery converts handler panics into a 500 error response. The panic value
// and stack are logged here rather than in the request logger, which has
// panic recovery disabled.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			slog.ErrorContext(r.Context(), "panic while serving request",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			writeJSONError(r.Context(), w, http.StatusInternalServerError,
				http.StatusText(http.StatusInternalServerError))
		}()

		next.ServeHTTP(w, r)
	})
}

// RequestSizeLimit caps the request body at maxBytes. Reads past the limit
// yield *http.MaxBytesError, which the handlers map to 413.
func RequestSizeLimit(maxBytes int64) middlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
