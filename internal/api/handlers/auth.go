package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/lgn-platform/lgn-api/internal/api/problem"
	"github.com/lgn-platform/lgn-api/internal/auth"
	"github.com/lgn-platform/lgn-api/internal/domain/users"
	"github.com/lgn-platform/lgn-api/internal/sanitize"
)

type AuthService interface {
	Register(ctx context.Context, params users.RegisterParams) (users.TokenPair, error)
	Authenticate(ctx context.Context, email, password string) (users.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (users.TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
}

type AuthHandler struct {
	Service AuthService
	Env     string
}

func NewAuthHandler(service AuthService, env string) *AuthHandler {
	return &AuthHandler{Service: service, Env: env}
}

type registerRequest struct {
	FirstName string `json:"firstname" validate:"required,max=100"`
	LastName  string `json:"lastname" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	Role      string `json:"role" validate:"omitempty,oneof=USER MANAGER ADMIN user manager admin"`
}

type authenticateRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return
	}
	sanitize.Fields(&req.FirstName, &req.LastName)
	if !validateRequest(w, r, &req, h.Env) {
		return
	}

	pair, err := h.Service.Register(r.Context(), users.RegisterParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
	})
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			problem.Conflict(w, r, err, h.Env)
			return
		}
		problem.ServerError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, pair)
}

func (h *AuthHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return
	}
	if !validateRequest(w, r, &req, h.Env) {
		return
	}

	pair, err := h.Service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			problem.Unauthorized(w, r, err, h.Env)
			return
		}
		problem.ServerError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// RefreshToken exchanges the refresh token in the Authorization header for a
// new access token.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
	if err != nil {
		problem.Unauthorized(w, r, err, h.Env)
		return
	}

	pair, err := h.Service.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, users.ErrInvalidToken) {
			problem.Unauthorized(w, r, err, h.Env)
			return
		}
		problem.ServerError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// Logout revokes the presented access token. A missing or unknown token is
// not an error.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
	if err == nil {
		if err := h.Service.Logout(r.Context(), token); err != nil {
			problem.ServerError(w, r, err, h.Env)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}
