package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestSize(t *testing.T) {
	tests := []struct {
		name           string
		maxBytes       int64
		bodySize       int
		expectStatus   int
		expectBodyRead bool
	}{
		{
			name:           "small request accepted",
			maxBytes:       1024,
			bodySize:       512,
			expectStatus:   http.StatusOK,
			expectBodyRead: true,
		},
		{
			name:           "exact limit accepted",
			maxBytes:       1024,
			bodySize:       1024,
			expectStatus:   http.StatusOK,
			expectBodyRead: true,
		},
		{
			name:           "oversized request rejected",
			maxBytes:       1024,
			bodySize:       2048,
			expectStatus:   http.StatusRequestEntityTooLarge,
			expectBodyRead: false,
		},
		{
			name:           "zero falls back to default",
			maxBytes:       0,
			bodySize:       int(DefaultMaxBodySize) + 1,
			expectStatus:   http.StatusRequestEntityTooLarge,
			expectBodyRead: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bodyRead := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if _, err := io.ReadAll(r.Body); err != nil {
					w.WriteHeader(http.StatusRequestEntityTooLarge)
					return
				}
				bodyRead = true
				w.WriteHeader(http.StatusOK)
			})

			body := bytes.Repeat([]byte("a"), tt.bodySize)
			req := httptest.NewRequest(http.MethodPost, "/api/marathons", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			RequestSize(tt.maxBytes, "test")(handler).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectStatus, rec.Code)
			assert.Equal(t, tt.expectBodyRead, bodyRead)
		})
	}
}

func TestRequestSize_RejectsDeclaredLengthAsProblem(t *testing.T) {
	called := false
	handler := RequestSize(10, "test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/group", strings.NewReader(strings.Repeat("x", 11)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, called)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "payload-too-large")
}

func TestRequestSize_ChunkedBodyCapped(t *testing.T) {
	var readErr error
	handler := RequestSize(8, "test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest(http.MethodPost, "/group", io.NopCloser(strings.NewReader(strings.Repeat("y", 64))))
	req.ContentLength = -1
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var maxErr *http.MaxBytesError
	require.Error(t, readErr)
	assert.True(t, errors.As(readErr, &maxErr))
}
