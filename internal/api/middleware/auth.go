package middleware

import (
	"context"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lgn-platform/lgn-api/internal/api/problem"
	"github.com/lgn-platform/lgn-api/internal/auth"
	"github.com/lgn-platform/lgn-api/internal/domain/users"
)

type contextKey string

const principalKey contextKey = "principal"

// TokenResolver turns a bearer access token into the authenticated caller.
type TokenResolver interface {
	ResolveToken(ctx context.Context, accessToken string) (*users.Principal, error)
}

// ContextWithPrincipal stores the authenticated caller in the context.
func ContextWithPrincipal(ctx context.Context, p *users.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated caller, or nil.
func PrincipalFromContext(ctx context.Context) *users.Principal {
	p, _ := ctx.Value(principalKey).(*users.Principal)
	return p
}

// RequireAuth rejects requests without a valid, unrevoked Bearer access
// token with 401.
func RequireAuth(resolver TokenResolver, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				problem.Unauthorized(w, r, err, env)
				return
			}

			principal, err := resolver.ResolveToken(r.Context(), token)
			if err != nil {
				if errors.Is(err, users.ErrInvalidToken) {
					problem.Unauthorized(w, r, err, env)
					return
				}
				problem.ServerError(w, r, err, env)
				return
			}

			trace.SpanFromContext(r.Context()).SetAttributes(
				attribute.Int64("enduser.id", principal.UserID),
				attribute.String("enduser.role", string(principal.Role)),
			)
			ctx := ContextWithPrincipal(r.Context(), principal)
			logger := LoggerFromContext(ctx).With().Int64("user_id", principal.UserID).Logger()
			next.ServeHTTP(w, r.WithContext(logger.WithContext(ctx)))
		})
	}
}

// RequirePermission enforces the method-based permission table: reads are
// open to any role, writes need the matching create/update/delete scope.
// It must run after RequireAuth.
func RequirePermission(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				problem.Unauthorized(w, r, auth.ErrMissingToken, env)
				return
			}
			if !auth.CanPerform(string(principal.Role), r.Method) {
				problem.Forbidden(w, r, errors.New("insufficient permissions"), env)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
