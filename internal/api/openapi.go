package api

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"

	"sigs.k8s.io/yaml"
)

//go:embed openapi.yaml
var openAPIYAML []byte

type openAPIDocument struct {
	json []byte
	etag string
	err  error
}

var loadOpenAPI = sync.OnceValue(func() openAPIDocument {
	body, err := yaml.YAMLToJSON(openAPIYAML)
	if err != nil {
		return openAPIDocument{err: err}
	}
	sum := sha256.Sum256(openAPIYAML)
	return openAPIDocument{json: body, etag: `"` + hex.EncodeToString(sum[:8]) + `"`}
})

// OpenAPIHandler serves the embedded API description. JSON is the default;
// clients asking for YAML get the source document unchanged.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		doc := loadOpenAPI()
		if doc.err != nil {
			http.Error(w, "openapi unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("ETag", doc.etag)
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.Header().Add("Vary", "Accept")
		if r.Header.Get("If-None-Match") == doc.etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		if wantsYAML(r) {
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write(openAPIYAML)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc.json)
	}
}

func wantsYAML(r *http.Request) bool {
	if r.URL.Query().Get("format") == "yaml" {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/yaml") || strings.Contains(accept, "text/yaml")
}
