package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSuccessWritesStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)
	ctx := WithClientIP(context.Background(), "203.0.113.7")

	logger.LogSuccess(ctx, "auth.register", "ada@example.com", "user", "42", map[string]string{"role": "USER"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audit", entry["log"])
	assert.Equal(t, "auth.register", entry["action"])
	assert.Equal(t, "ada@example.com", entry["actor"])
	assert.Equal(t, "success", entry["status"])
	assert.Equal(t, "user", entry["resource_type"])
	assert.Equal(t, "42", entry["resource_id"])
	assert.Equal(t, "203.0.113.7", entry["ip_address"])
	assert.Equal(t, map[string]any{"role": "USER"}, entry["details"])
}

func TestLogFailureOmitsEmptyFields(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf).LogFailure(context.Background(), "auth.login", "ada@example.com", nil)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "failure", entry["status"])
	assert.NotContains(t, entry, "ip_address")
	assert.NotContains(t, entry, "details")
}

func TestNilLoggerIsNoop(t *testing.T) {
	var logger *Logger
	logger.LogSuccess(context.Background(), "x", "y", "", "", nil)
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, remote: "10.0.0.2:1234", want: "198.51.100.1"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.2"}, remote: "10.0.0.2:1234", want: "198.51.100.2"},
		{name: "remote addr", remote: "192.0.2.10:5555", want: "192.0.2.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ExtractClientIP(req))
		})
	}
}

func TestMiddlewareStoresClientIP(t *testing.T) {
	var got string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIP(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.44:80"
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "192.0.2.44", got)
}
