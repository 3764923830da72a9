package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/lgn-platform/lgn-api/internal/api/problem"
)

type responseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	if w.status == 0 {
		w.status = statusCode
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

// RequestLogging writes one access log line per request through the
// request-scoped logger, so the correlation id and user id are attached.
// Server errors log at error level, client errors at warn.
func RequestLogging(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w}

			next.ServeHTTP(rw, r)

			if rw.status == 0 {
				rw.status = http.StatusOK
			}

			reqLogger := zerolog.Ctx(r.Context())
			if reqLogger.GetLevel() == zerolog.Disabled {
				reqLogger = &logger
			}

			var event *zerolog.Event
			switch {
			case rw.status >= 500:
				event = reqLogger.Error()
			case rw.status >= 400:
				event = reqLogger.Warn()
			default:
				event = reqLogger.Info()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.status).
				Int("bytes", rw.bytes).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// Recoverer turns a handler panic into a 500 problem response.
func Recoverer(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				LoggerFromContext(r.Context()).Error().
					Str("stack", string(debug.Stack())).
					Msgf("panic: %v", rec)
				problem.ServerError(w, r, fmt.Errorf("panic: %v", rec), env)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
