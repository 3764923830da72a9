package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lgn-platform/lgn-api/internal/api/handlers"
	"github.com/lgn-platform/lgn-api/internal/api/middleware"
	"github.com/lgn-platform/lgn-api/internal/audit"
	"github.com/lgn-platform/lgn-api/internal/config"
	"github.com/lgn-platform/lgn-api/internal/metrics"
)

// Services are the domain dependencies the HTTP layer serves.
type Services struct {
	Auth          handlers.AuthService
	Passwords     handlers.PasswordChanger
	Tokens        middleware.TokenResolver
	Organizations handlers.OrganizationService
	Groups        handlers.GroupService
	Marathons     handlers.MarathonService
	Health        *handlers.HealthChecker
}

type BuildInfo struct {
	Version   string
	GitCommit string
	BuildDate string
}

// Router is the assembled HTTP handler plus the resources it owns.
type Router struct {
	Handler     http.Handler
	RateLimiter *middleware.RateLimiter
}

// Close releases background resources held by the router.
func (r *Router) Close() {
	if r.RateLimiter != nil {
		r.RateLimiter.Stop()
	}
}

func NewRouter(cfg config.Config, svc Services, build BuildInfo, logger zerolog.Logger) *Router {
	env := cfg.Environment
	limiter := middleware.NewRateLimiter(cfg.RateLimit, env)

	authHandler := handlers.NewAuthHandler(svc.Auth, env)
	usersHandler := handlers.NewUsersHandler(svc.Passwords, env)
	orgHandler := handlers.NewOrganizationsHandler(svc.Organizations, env)
	groupsHandler := handlers.NewGroupsHandler(svc.Groups, env)
	marathonsHandler := handlers.NewMarathonsHandler(svc.Marathons, env)

	requireAuth := middleware.RequireAuth(svc.Tokens, env)
	requirePermission := middleware.RequirePermission(env)
	loginTier := middleware.WithRateLimitTierHandler(middleware.TierLogin)

	// public routes are limited per client address, login routes on the
	// stricter login tier.
	public := func(h http.Handler) http.Handler {
		return limiter.Middleware(h)
	}
	login := func(h http.HandlerFunc) http.Handler {
		return loginTier(limiter.Middleware(h))
	}
	// protected routes authenticate first so the limiter can key on the user
	// and pick the tier from the role.
	protected := func(h http.HandlerFunc) http.Handler {
		return requireAuth(limiter.Middleware(requirePermission(h)))
	}
	authenticated := func(h http.HandlerFunc) http.Handler {
		return requireAuth(limiter.Middleware(h))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", public(handlers.Welcome(cfg.Server.BaseURL)))
	mux.Handle("GET /healthz", handlers.Healthz())
	mux.Handle("GET /readyz", svc.Health.Readyz())
	mux.Handle("GET /health", svc.Health.Health())
	mux.Handle("GET /version", VersionHandler(build))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /api/openapi.json", public(OpenAPIHandler()))

	mux.Handle("POST /auth/register", login(authHandler.Register))
	mux.Handle("POST /auth/authenticate", login(authHandler.Authenticate))
	mux.Handle("POST /auth/refresh-token", login(authHandler.RefreshToken))
	mux.Handle("POST /auth/logout", login(authHandler.Logout))

	mux.Handle("PATCH /user", authenticated(usersHandler.ChangePassword))

	crud := []struct {
		collection string
		list       http.HandlerFunc
		create     http.HandlerFunc
		get        http.HandlerFunc
		update     http.HandlerFunc
		remove     http.HandlerFunc
	}{
		{"/api/organizations", orgHandler.List, orgHandler.Create, orgHandler.Get, orgHandler.Update, orgHandler.Delete},
		{"/group", groupsHandler.List, groupsHandler.Create, groupsHandler.Get, groupsHandler.Update, groupsHandler.Delete},
		{"/api/marathons", marathonsHandler.List, marathonsHandler.Create, marathonsHandler.Get, marathonsHandler.Update, marathonsHandler.Delete},
	}
	for _, c := range crud {
		mux.Handle(c.collection, methodMux(map[string]http.Handler{
			http.MethodGet:  protected(c.list),
			http.MethodPost: protected(c.create),
		}))
		mux.Handle(c.collection+"/{id}", methodMux(map[string]http.Handler{
			http.MethodGet:    protected(c.get),
			http.MethodPut:    protected(c.update),
			http.MethodDelete: protected(c.remove),
		}))
	}

	// ServeMux records the matched pattern on the request it receives, so the
	// route-aware wrappers must sit directly on top of the mux.
	var handler http.Handler = metrics.HTTPMiddleware(middleware.NameSpanByRoute(mux))
	handler = middleware.RequestSize(cfg.Server.MaxBodyBytes, env)(handler)
	handler = middleware.CORS(cfg.CORS, logger)(handler)
	handler = middleware.SecurityHeaders(cfg.IsProduction())(handler)
	handler = middleware.Recoverer(env)(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = audit.Middleware(handler)
	handler = middleware.CorrelationID(logger)(handler)
	handler = middleware.Tracing(handler)

	return &Router{Handler: handler, RateLimiter: limiter}
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
