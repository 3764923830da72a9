package middleware

import (
	"fmt"
	"net/http"

	"github.com/lgn-platform/lgn-api/internal/api/problem"
)

// DefaultMaxBodySize is used when no limit is configured.
const DefaultMaxBodySize int64 = 1 << 20 // 1MB

// RequestSize limits the size of incoming request bodies. Requests that
// declare a larger Content-Length are rejected with 413 up front; bodies
// without a declared length are capped with http.MaxBytesReader and the
// handler's decode reports the overflow.
func RequestSize(maxBytes int64, env string) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypePayloadTooLarge, "Payload too large",
					fmt.Errorf("request body of %d bytes exceeds %d", r.ContentLength, maxBytes), env)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
