package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lgn-platform/lgn-api/internal/api/middleware"
	"github.com/lgn-platform/lgn-api/internal/api/problem"
	"github.com/lgn-platform/lgn-api/internal/domain/users"
)

type stubAuth struct {
	registered  []users.RegisterParams
	refreshed   []string
	loggedOut   []string
	registerErr error
	authErr     error
	refreshErr  error
	logoutErr   error
}

var testPair = users.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"}

func (s *stubAuth) Register(ctx context.Context, p users.RegisterParams) (users.TokenPair, error) {
	if s.registerErr != nil {
		return users.TokenPair{}, s.registerErr
	}
	s.registered = append(s.registered, p)
	return testPair, nil
}

func (s *stubAuth) Authenticate(ctx context.Context, email, password string) (users.TokenPair, error) {
	if s.authErr != nil {
		return users.TokenPair{}, s.authErr
	}
	return testPair, nil
}

func (s *stubAuth) Refresh(ctx context.Context, token string) (users.TokenPair, error) {
	s.refreshed = append(s.refreshed, token)
	if s.refreshErr != nil {
		return users.TokenPair{}, s.refreshErr
	}
	return users.TokenPair{AccessToken: "access-2", RefreshToken: token}, nil
}

func (s *stubAuth) Logout(ctx context.Context, token string) error {
	s.loggedOut = append(s.loggedOut, token)
	return s.logoutErr
}

func registerBody() map[string]any {
	return map[string]any{
		"firstname": "Ada",
		"lastname":  "Lovelace",
		"email":     "ada@example.org",
		"password":  "correct-horse",
	}
}

func TestAuthHandler_Register(t *testing.T) {
	svc := &stubAuth{}
	h := NewAuthHandler(svc, testEnv)

	w := httptest.NewRecorder()
	h.Register(w, jsonRequest(t, http.MethodPost, "/auth/register", registerBody()))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"access_token":"access-1","refresh_token":"refresh-1"}`, w.Body.String())

	require.Len(t, svc.registered, 1)
	assert.Equal(t, "Ada", svc.registered[0].FirstName)
	assert.Equal(t, "ada@example.org", svc.registered[0].Email)
	assert.Empty(t, svc.registered[0].Role)
}

func TestAuthHandler_RegisterEmailTaken(t *testing.T) {
	h := NewAuthHandler(&stubAuth{registerErr: users.ErrEmailTaken}, testEnv)

	w := httptest.NewRecorder()
	h.Register(w, jsonRequest(t, http.MethodPost, "/auth/register", registerBody()))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, problem.TypeConflict, decodeProblem(t, w).Type)
}

func TestAuthHandler_RegisterValidation(t *testing.T) {
	svc := &stubAuth{}
	h := NewAuthHandler(svc, testEnv)

	body := registerBody()
	body["email"] = "nope"
	body["password"] = "short"
	body["role"] = "ROOT"

	w := httptest.NewRecorder()
	h.Register(w, jsonRequest(t, http.MethodPost, "/auth/register", body))
	require.Equal(t, http.StatusBadRequest, w.Code)

	p := decodeProblem(t, w)
	assert.Contains(t, p.Errors, "email")
	assert.Equal(t, "must be at least 8 characters", p.Errors["password"])
	assert.Contains(t, p.Errors, "role")
	assert.Empty(t, svc.registered)
}

func TestAuthHandler_Authenticate(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := NewAuthHandler(&stubAuth{}, testEnv)
		w := httptest.NewRecorder()
		h.Authenticate(w, jsonRequest(t, http.MethodPost, "/auth/authenticate", map[string]any{
			"email": "ada@example.org", "password": "correct-horse",
		}))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"access_token":"access-1","refresh_token":"refresh-1"}`, w.Body.String())
	})

	t.Run("bad credentials", func(t *testing.T) {
		h := NewAuthHandler(&stubAuth{authErr: users.ErrInvalidCredentials}, testEnv)
		w := httptest.NewRecorder()
		h.Authenticate(w, jsonRequest(t, http.MethodPost, "/auth/authenticate", map[string]any{
			"email": "ada@example.org", "password": "wrong",
		}))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, `Bearer realm="lgn"`, w.Header().Get("WWW-Authenticate"))
	})

	t.Run("storage failure", func(t *testing.T) {
		h := NewAuthHandler(&stubAuth{authErr: errors.New("db down")}, testEnv)
		w := httptest.NewRecorder()
		h.Authenticate(w, jsonRequest(t, http.MethodPost, "/auth/authenticate", map[string]any{
			"email": "ada@example.org", "password": "x",
		}))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestAuthHandler_RefreshToken(t *testing.T) {
	t.Run("missing header does no work", func(t *testing.T) {
		svc := &stubAuth{}
		h := NewAuthHandler(svc, testEnv)
		w := httptest.NewRecorder()
		h.RefreshToken(w, httptest.NewRequest(http.MethodPost, "/auth/refresh-token", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, svc.refreshed)
	})

	t.Run("invalid token", func(t *testing.T) {
		h := NewAuthHandler(&stubAuth{refreshErr: users.ErrInvalidToken}, testEnv)
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh-token", nil)
		req.Header.Set("Authorization", "Bearer forged")
		w := httptest.NewRecorder()
		h.RefreshToken(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("success keeps refresh token", func(t *testing.T) {
		svc := &stubAuth{}
		h := NewAuthHandler(svc, testEnv)
		req := httptest.NewRequest(http.MethodPost, "/auth/refresh-token", nil)
		req.Header.Set("Authorization", "Bearer refresh-1")
		w := httptest.NewRecorder()
		h.RefreshToken(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var pair users.TokenPair
		require.NoError(t, json.NewDecoder(w.Body).Decode(&pair))
		assert.Equal(t, "access-2", pair.AccessToken)
		assert.Equal(t, "refresh-1", pair.RefreshToken)
		assert.Equal(t, []string{"refresh-1"}, svc.refreshed)
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantCalled bool
	}{
		{name: "bearer token", header: "Bearer access-1", wantCalled: true},
		{name: "no header", header: ""},
		{name: "basic scheme", header: "Basic YWRhOnB3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubAuth{}
			h := NewAuthHandler(svc, testEnv)
			req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.Logout(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			if tt.wantCalled {
				assert.Equal(t, []string{"access-1"}, svc.loggedOut)
			} else {
				assert.Empty(t, svc.loggedOut)
			}
		})
	}
}

type stubPasswordChanger struct {
	email  string
	params users.ChangePasswordParams
	err    error
}

func (s *stubPasswordChanger) ChangePassword(ctx context.Context, email string, p users.ChangePasswordParams) error {
	s.email, s.params = email, p
	return s.err
}

func patchUserRequest(t *testing.T, withPrincipal bool) *http.Request {
	req := jsonRequest(t, http.MethodPatch, "/user", map[string]any{
		"currentPassword":      "old-password",
		"newPassword":          "new-password",
		"confirmationPassword": "new-password",
	})
	if withPrincipal {
		req = req.WithContext(middleware.ContextWithPrincipal(req.Context(), &users.Principal{UserID: 1, Email: "ada@example.org"}))
	}
	return req
}

func TestUsersHandler_ChangePassword(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		principal  bool
		wantStatus int
		wantDetail string
	}{
		{name: "success", principal: true, wantStatus: http.StatusOK},
		{name: "unauthenticated", wantStatus: http.StatusUnauthorized},
		{name: "wrong current password", principal: true, err: users.ErrWrongPassword, wantStatus: http.StatusBadRequest, wantDetail: "wrong password"},
		{name: "confirmation mismatch", principal: true, err: users.ErrPasswordMismatch, wantStatus: http.StatusBadRequest, wantDetail: "passwords are not the same"},
		{name: "storage failure", principal: true, err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubPasswordChanger{err: tt.err}
			h := NewUsersHandler(svc, testEnv)
			w := httptest.NewRecorder()
			h.ChangePassword(w, patchUserRequest(t, tt.principal))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, decodeProblem(t, w).Detail)
			}
			if tt.principal {
				assert.Equal(t, "ada@example.org", svc.email)
				assert.Equal(t, "new-password", svc.params.ConfirmationPassword)
			}
		})
	}
}
