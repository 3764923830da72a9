package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAPIHandler(t *testing.T) {
	handler := OpenAPIHandler()

	tests := []struct {
		method     string
		wantStatus int
	}{
		{method: http.MethodGet, wantStatus: http.StatusOK},
		{method: http.MethodPost, wantStatus: http.StatusMethodNotAllowed},
		{method: http.MethodDelete, wantStatus: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(tt.method, "/api/openapi.json", nil))
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusMethodNotAllowed {
				assert.Equal(t, http.MethodGet, w.Header().Get("Allow"))
			}
		})
	}
}

func TestOpenAPIHandler_DescribesRoutes(t *testing.T) {
	w := httptest.NewRecorder()
	OpenAPIHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/openapi.json", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var doc struct {
		OpenAPI string                     `json:"openapi"`
		Paths   map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "3.1.0", doc.OpenAPI)

	for _, path := range []string{
		"/auth/register",
		"/auth/authenticate",
		"/auth/refresh-token",
		"/auth/logout",
		"/user",
		"/api/organizations",
		"/api/organizations/{id}",
		"/group",
		"/group/{id}",
		"/api/marathons",
		"/api/marathons/{id}",
	} {
		assert.Contains(t, doc.Paths, path)
	}
}

func TestOpenAPIHandler_Concurrent(t *testing.T) {
	handler := OpenAPIHandler()

	var wg sync.WaitGroup
	bodies := make([]string, 8)
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/openapi.json", nil))
			bodies[i] = w.Body.String()
		}(i)
	}
	wg.Wait()

	for _, body := range bodies[1:] {
		assert.Equal(t, bodies[0], body)
	}
}

func TestOpenAPIHandler_YAMLAndConditionalGet(t *testing.T) {
	handler := OpenAPIHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/openapi.json", nil)
	req.Header.Set("Accept", "application/yaml")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "openapi: 3.1.0")

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req = httptest.NewRequest(http.MethodGet, "/api/openapi.json?format=yaml", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())
}
