package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lgn-platform/lgn-api/internal/auth"
	"github.com/lgn-platform/lgn-api/internal/config"
	"github.com/lgn-platform/lgn-api/internal/domain/users"
	"github.com/lgn-platform/lgn-api/internal/jobs"
)

func TestServeCommandHelp(t *testing.T) {
	cmd := newServeCommand(&rootOptions{})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("serve command --help failed: %v", err)
	}

	output := buf.String()
	for _, expected := range []string{
		"Start the LGN HTTP server",
		"--host",
		"--port",
		"--skip-migrations",
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("expected help text to contain %q, got:\n%s", expected, output)
		}
	}
}

func TestServeOptionsApply(t *testing.T) {
	tests := []struct {
		name     string
		opts     serveOptions
		wantHost string
		wantPort int
	}{
		{name: "no flags", opts: serveOptions{}, wantHost: "0.0.0.0", wantPort: 8080},
		{name: "host", opts: serveOptions{host: "127.0.0.1"}, wantHost: "127.0.0.1", wantPort: 8080},
		{name: "port", opts: serveOptions{port: 9090}, wantHost: "0.0.0.0", wantPort: 9090},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.opts.apply(&cfg)
			if cfg.Server.Host != tt.wantHost || cfg.Server.Port != tt.wantPort {
				t.Errorf("got %s:%d, want %s:%d", cfg.Server.Host, cfg.Server.Port, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestServeCommandFlagParsing(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "invalid port value", args: []string{"--port", "invalid"}},
		{name: "unknown flag", args: []string{"--unknown"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newServeCommand(&rootOptions{})
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetErr(new(bytes.Buffer))
			cmd.SetArgs(tt.args)
			if err := cmd.Execute(); err == nil {
				t.Error("expected flag parsing error")
			}
		})
	}
}

type memUsers struct {
	byEmail map[string]users.User
	failGet error
}

func (m *memUsers) Create(ctx context.Context, u users.User) (*users.User, error) {
	u.ID = int64(len(m.byEmail) + 1)
	m.byEmail[u.Email] = u
	return &u, nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	if m.failGet != nil {
		return nil, m.failGet
	}
	u, ok := m.byEmail[email]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	return &u, nil
}

func (m *memUsers) GetByID(ctx context.Context, id int64) (*users.User, error) {
	return nil, users.ErrUserNotFound
}

func (m *memUsers) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return nil
}

func TestBootstrapAdminUser(t *testing.T) {
	bootstrap := config.AdminBootstrapConfig{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     " Admin@Example.org ",
		Password:  "correct horse battery",
	}

	t.Run("creates admin", func(t *testing.T) {
		repo := &memUsers{byEmail: map[string]users.User{}}
		var logs bytes.Buffer

		if err := bootstrapAdminUser(context.Background(), bootstrap, repo, false, zerolog.New(&logs)); err != nil {
			t.Fatalf("bootstrapAdminUser() error = %v", err)
		}

		created, ok := repo.byEmail["admin@example.org"]
		if !ok {
			t.Fatal("expected admin user to be created with a normalized email")
		}
		if created.Role != auth.RoleAdmin {
			t.Errorf("Role = %q, want %q", created.Role, auth.RoleAdmin)
		}
		if err := auth.CheckPassword(created.PasswordHash, bootstrap.Password); err != nil {
			t.Errorf("stored hash does not match password: %v", err)
		}
		if !strings.Contains(logs.String(), "admin@example.org") {
			t.Errorf("expected email in development log, got %s", logs.String())
		}
	})

	t.Run("redacts email in production", func(t *testing.T) {
		repo := &memUsers{byEmail: map[string]users.User{}}
		var logs bytes.Buffer

		if err := bootstrapAdminUser(context.Background(), bootstrap, repo, true, zerolog.New(&logs)); err != nil {
			t.Fatalf("bootstrapAdminUser() error = %v", err)
		}
		if strings.Contains(logs.String(), "admin@example.org") {
			t.Errorf("production log leaked email: %s", logs.String())
		}
	})

	t.Run("existing user untouched", func(t *testing.T) {
		existing := users.User{ID: 7, Email: "admin@example.org", PasswordHash: "keep", Role: auth.RoleUser}
		repo := &memUsers{byEmail: map[string]users.User{existing.Email: existing}}

		if err := bootstrapAdminUser(context.Background(), bootstrap, repo, false, zerolog.Nop()); err != nil {
			t.Fatalf("bootstrapAdminUser() error = %v", err)
		}
		if repo.byEmail[existing.Email] != existing {
			t.Error("existing user was modified")
		}
	})

	t.Run("skipped without credentials", func(t *testing.T) {
		repo := &memUsers{byEmail: map[string]users.User{}}

		if err := bootstrapAdminUser(context.Background(), config.AdminBootstrapConfig{Email: "a@example.org"}, repo, false, zerolog.Nop()); err != nil {
			t.Fatalf("bootstrapAdminUser() error = %v", err)
		}
		if len(repo.byEmail) != 0 {
			t.Error("expected no user to be created")
		}
	})

	t.Run("lookup failure", func(t *testing.T) {
		repo := &memUsers{byEmail: map[string]users.User{}, failGet: errors.New("connection refused")}

		err := bootstrapAdminUser(context.Background(), bootstrap, repo, false, zerolog.Nop())
		if err == nil || !strings.Contains(err.Error(), "check admin user") {
			t.Errorf("expected wrapped lookup error, got %v", err)
		}
	})
}

type stubWorkers struct {
	stopped bool
	err     error
}

func (s *stubWorkers) Stop(ctx context.Context) error {
	s.stopped = true
	return s.err
}

func TestGracefulShutdown(t *testing.T) {
	t.Run("stops workers", func(t *testing.T) {
		workers := &stubWorkers{}
		if err := gracefulShutdown(&http.Server{}, workers, zerolog.Nop()); err != nil {
			t.Fatalf("gracefulShutdown() error = %v", err)
		}
		if !workers.stopped {
			t.Error("expected workers to be stopped")
		}
	})

	t.Run("without workers", func(t *testing.T) {
		if err := gracefulShutdown(&http.Server{}, nil, zerolog.Nop()); err != nil {
			t.Fatalf("gracefulShutdown() error = %v", err)
		}
	})

	t.Run("reports worker error", func(t *testing.T) {
		stopErr := errors.New("stop timeout")
		err := gracefulShutdown(&http.Server{}, &stubWorkers{err: stopErr}, zerolog.Nop())
		if !errors.Is(err, stopErr) {
			t.Errorf("expected %v, got %v", stopErr, err)
		}
	})
}

func TestJobAlertLogsDiscardedJob(t *testing.T) {
	var logs bytes.Buffer
	alert := jobAlert(zerolog.New(&logs))

	alert(context.Background(), jobs.JobFailure{JobID: 9, Kind: jobs.JobKindTokenPurge, Attempt: 3, Err: errors.New("boom")})

	for _, want := range []string{`"kind":"token_purge"`, `"job_id":9`, "background job discarded"} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("expected %s in log, got %s", want, logs.String())
		}
	}
}
