package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/lgn-platform/lgn-api/internal/api"
	"github.com/lgn-platform/lgn-api/internal/api/handlers"
	"github.com/lgn-platform/lgn-api/internal/auth"
	"github.com/lgn-platform/lgn-api/internal/config"
	"github.com/lgn-platform/lgn-api/internal/domain/groups"
	"github.com/lgn-platform/lgn-api/internal/domain/marathons"
	"github.com/lgn-platform/lgn-api/internal/domain/organizations"
	"github.com/lgn-platform/lgn-api/internal/domain/users"
	"github.com/lgn-platform/lgn-api/internal/storage/postgres"
)

type stack struct {
	t      *testing.T
	server *httptest.Server
}

func setupStack(t *testing.T) *stack {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping end-to-end test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("lgn"),
		tcpostgres.WithUsername("lgn"),
		tcpostgres.WithPassword("lgn_dev"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, postgres.MigrateUp(dbURL, ""))

	cfg := config.Default()
	cfg.Environment = "test"
	cfg.Database.URL = dbURL
	cfg.Auth.JWTSecret = "end-to-end-secret-with-enough-bytes"
	cfg.Auth.AllowRegisterRole = true
	cfg.RateLimit = config.RateLimitConfig{}

	pool, err := postgres.NewPool(ctx, cfg.Database)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo, err := postgres.NewRepository(pool)
	require.NoError(t, err)

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessExpiry, cfg.Auth.RefreshExpiry, cfg.Auth.JWTIssuer)
	userService := users.NewService(repo.Users(), repo.Tokens(), jwtManager, users.Options{
		WithTx:            repo.UsersTx(),
		AllowRegisterRole: true,
		Logger:            zerolog.Nop(),
	})
	groupService := groups.NewService(repo.Groups())

	router := api.NewRouter(cfg, api.Services{
		Auth:          userService,
		Passwords:     userService,
		Tokens:        userService,
		Organizations: organizations.NewService(repo.Organizations(), groupService),
		Groups:        groupService,
		Marathons:     marathons.NewService(repo.Marathons()),
		Health:        handlers.NewHealthChecker(pool, nil, "test", "e2e"),
	}, api.BuildInfo{Version: "test"}, zerolog.Nop())
	t.Cleanup(router.Close)

	server := httptest.NewServer(router.Handler)
	t.Cleanup(server.Close)
	return &stack{t: t, server: server}
}

// call sends body as JSON and decodes a JSON response into out when given.
func (s *stack) call(method, path, token string, body any, out any) int {
	s.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(s.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.server.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (s *stack) register(email, role string) tokenPair {
	s.t.Helper()
	var pair tokenPair
	status := s.call(http.MethodPost, "/auth/register", "", map[string]string{
		"firstname": "Test",
		"lastname":  role,
		"email":     email,
		"password":  "initial-password",
		"role":      role,
	}, &pair)
	require.Equal(s.t, http.StatusCreated, status)
	require.NotEmpty(s.t, pair.AccessToken)
	return pair
}

func TestEndToEnd_OrganizationGroupsAndMarathons(t *testing.T) {
	s := setupStack(t)
	admin := s.register("admin@example.org", "ADMIN")
	user := s.register("user@example.org", "USER")

	var org struct {
		ID     int64 `json:"id"`
		Groups []struct {
			ID      int64 `json:"id"`
			Members []struct {
				Email     string `json:"email"`
				Marathons []struct {
					ID int64 `json:"id"`
				} `json:"marathons"`
			} `json:"members"`
		} `json:"groups"`
	}
	status := s.call(http.MethodPost, "/api/organizations", admin.AccessToken, map[string]any{
		"name":                "Runners Club",
		"institutionName":     "Runners Club Institute",
		"headquartersCountry": "Brazil",
		"address":             map[string]string{"city": "Recife", "country": "Brazil"},
	}, &org)
	require.Equal(t, http.StatusCreated, status)

	var marathon struct {
		ID int64 `json:"id"`
	}
	status = s.call(http.MethodPost, "/api/marathons", admin.AccessToken, map[string]any{
		"identification": "Night Run", "weight": 1.5, "score": 10,
	}, &marathon)
	require.Equal(t, http.StatusCreated, status)

	var group struct {
		ID               int64  `json:"id"`
		OrganizationName string `json:"organizationName"`
	}
	status = s.call(http.MethodPost, "/group", admin.AccessToken, map[string]any{
		"name":           "Morning Squad",
		"organizationId": org.ID,
		"members": []map[string]any{
			{"name": "Ada", "age": 36, "email": "ada@example.org", "marathonIds": []int64{marathon.ID}},
		},
	}, &group)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Runners Club", group.OrganizationName)

	// reads are open to every role, writes are not
	status = s.call(http.MethodGet, fmt.Sprintf("/api/organizations/%d", org.ID), user.AccessToken, nil, &org)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, org.Groups, 1)
	require.Len(t, org.Groups[0].Members, 1)
	assert.Equal(t, marathon.ID, org.Groups[0].Members[0].Marathons[0].ID)

	assert.Equal(t, http.StatusForbidden, s.call(http.MethodDelete, fmt.Sprintf("/group/%d", group.ID), user.AccessToken, nil, nil))

	// deleting the organization removes its groups
	assert.Equal(t, http.StatusNoContent, s.call(http.MethodDelete, fmt.Sprintf("/api/organizations/%d", org.ID), admin.AccessToken, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.call(http.MethodGet, fmt.Sprintf("/group/%d", group.ID), admin.AccessToken, nil, nil))

	// the marathon outlives the member that referenced it
	assert.Equal(t, http.StatusOK, s.call(http.MethodGet, fmt.Sprintf("/api/marathons/%d", marathon.ID), user.AccessToken, nil, nil))
}

func TestEndToEnd_TokenLifecycle(t *testing.T) {
	s := setupStack(t)
	registered := s.register("manager@example.org", "MANAGER")

	// a new login revokes the registration token
	var login tokenPair
	status := s.call(http.MethodPost, "/auth/authenticate", "", map[string]string{
		"email": "manager@example.org", "password": "initial-password",
	}, &login)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, http.StatusUnauthorized, s.call(http.MethodGet, "/api/marathons", registered.AccessToken, nil, nil))
	assert.Equal(t, http.StatusOK, s.call(http.MethodGet, "/api/marathons", login.AccessToken, nil, nil))

	// refresh tokens cannot call the API but can mint a new access token
	assert.Equal(t, http.StatusUnauthorized, s.call(http.MethodGet, "/api/marathons", login.RefreshToken, nil, nil))
	var refreshed tokenPair
	require.Equal(t, http.StatusOK, s.call(http.MethodPost, "/auth/refresh-token", login.RefreshToken, nil, &refreshed))
	assert.Equal(t, login.RefreshToken, refreshed.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, s.call(http.MethodGet, "/api/marathons", login.AccessToken, nil, nil))
	assert.Equal(t, http.StatusOK, s.call(http.MethodGet, "/api/marathons", refreshed.AccessToken, nil, nil))

	// password change
	status = s.call(http.MethodPatch, "/user", refreshed.AccessToken, map[string]string{
		"currentPassword":      "initial-password",
		"newPassword":          "changed-password",
		"confirmationPassword": "changed-password",
	}, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, http.StatusUnauthorized, s.call(http.MethodPost, "/auth/authenticate", "", map[string]string{
		"email": "manager@example.org", "password": "initial-password",
	}, nil))
	assert.Equal(t, http.StatusOK, s.call(http.MethodPost, "/auth/authenticate", "", map[string]string{
		"email": "manager@example.org", "password": "changed-password",
	}, &login))

	// logout revokes the presented token only
	require.Equal(t, http.StatusOK, s.call(http.MethodPost, "/auth/logout", login.AccessToken, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, s.call(http.MethodGet, "/api/marathons", login.AccessToken, nil, nil))
}
