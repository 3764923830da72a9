package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lgn-platform/lgn-api/internal/config"
)

const (
	corsAllowMethods  = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsAllowHeaders  = "Authorization, Content-Type, Accept, X-Request-ID"
	corsExposeHeaders = "X-Request-ID, Retry-After"
)

// CORS lets browser clients on the configured origins call the API with
// credentials. AllowAllOrigins echoes any Origin back and is meant for
// development only. Preflights from unknown origins get 403, other requests
// from them are served without CORS headers and logged.
func CORS(cfg config.CORSConfig, logger zerolog.Logger) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		if o := normalizeOrigin(origin); o != "" {
			allowed[o] = struct{}{}
		}
	}
	permits := func(origin string) bool {
		if cfg.AllowAllOrigins {
			return true
		}
		_, ok := allowed[normalizeOrigin(origin)]
		return ok
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if !permits(origin) {
				logger.Warn().
					Str("origin", origin).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Bool("preflight", preflight).
					Msg("CORS request rejected: origin not in whitelist")
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			if preflight {
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// normalizeOrigin lowercases an origin and drops a trailing slash so
// "https://App.lgn.dev/" matches "https://app.lgn.dev".
func normalizeOrigin(origin string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(origin)), "/")
}
