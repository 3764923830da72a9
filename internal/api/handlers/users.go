package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/lgn-platform/lgn-api/internal/api/middleware"
	"github.com/lgn-platform/lgn-api/internal/api/problem"
	"github.com/lgn-platform/lgn-api/internal/domain/users"
)

type PasswordChanger interface {
	ChangePassword(ctx context.Context, email string, params users.ChangePasswordParams) error
}

type UsersHandler struct {
	Service PasswordChanger
	Env     string
}

func NewUsersHandler(service PasswordChanger, env string) *UsersHandler {
	return &UsersHandler{Service: service, Env: env}
}

type changePasswordRequest struct {
	CurrentPassword      string `json:"currentPassword" validate:"required"`
	NewPassword          string `json:"newPassword" validate:"required,min=8,max=72"`
	ConfirmationPassword string `json:"confirmationPassword" validate:"required"`
}

// ChangePassword updates the password of the authenticated caller.
func (h *UsersHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	if principal == nil {
		problem.Unauthorized(w, r, users.ErrInvalidToken, h.Env)
		return
	}

	var req changePasswordRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return
	}
	if !validateRequest(w, r, &req, h.Env) {
		return
	}

	err := h.Service.ChangePassword(r.Context(), principal.Email, users.ChangePasswordParams{
		CurrentPassword:      req.CurrentPassword,
		NewPassword:          req.NewPassword,
		ConfirmationPassword: req.ConfirmationPassword,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
	case errors.Is(err, users.ErrWrongPassword):
		problem.BadRequest(w, r, err, h.Env, problem.WithDetail("wrong password"),
			problem.WithErrors(map[string]any{"currentPassword": "wrong password"}))
	case errors.Is(err, users.ErrPasswordMismatch):
		problem.BadRequest(w, r, err, h.Env, problem.WithDetail("passwords are not the same"),
			problem.WithErrors(map[string]any{"confirmationPassword": "passwords are not the same"}))
	case errors.Is(err, users.ErrUserNotFound):
		problem.NotFound(w, r, err, h.Env)
	default:
		problem.ServerError(w, r, err, h.Env)
	}
}
