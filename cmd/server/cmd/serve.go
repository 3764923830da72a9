package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lgn-platform/lgn-api/internal/api"
	"github.com/lgn-platform/lgn-api/internal/api/handlers"
	"github.com/lgn-platform/lgn-api/internal/audit"
	"github.com/lgn-platform/lgn-api/internal/auth"
	"github.com/lgn-platform/lgn-api/internal/config"
	"github.com/lgn-platform/lgn-api/internal/domain/groups"
	"github.com/lgn-platform/lgn-api/internal/domain/marathons"
	"github.com/lgn-platform/lgn-api/internal/domain/organizations"
	"github.com/lgn-platform/lgn-api/internal/domain/users"
	"github.com/lgn-platform/lgn-api/internal/email"
	"github.com/lgn-platform/lgn-api/internal/jobs"
	"github.com/lgn-platform/lgn-api/internal/metrics"
	"github.com/lgn-platform/lgn-api/internal/storage/postgres"
	redisstore "github.com/lgn-platform/lgn-api/internal/storage/redis"
	"github.com/lgn-platform/lgn-api/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	host           string
	port           int
	skipMigrations bool
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the LGN HTTP server",
		Long: `Start the LGN HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables (or --config file if provided)
- Apply pending database migrations
- Bootstrap an admin user if ADMIN_* env vars are set
- Start the token purge workers
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  lgn-api serve

  # Start on a specific host and port
  lgn-api serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  lgn-api serve --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			opts.apply(&cfg)
			return runServer(cmd.Context(), cfg, opts.skipMigrations)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "server port (default: 8080)")
	cmd.Flags().BoolVar(&opts.skipMigrations, "skip-migrations", false, "do not apply database migrations on start")
	return cmd
}

// apply overrides config values with flags that were set.
func (o *serveOptions) apply(cfg *config.Config) {
	if o.host != "" {
		cfg.Server.Host = o.host
	}
	if o.port != 0 {
		cfg.Server.Port = o.port
	}
}

func runServer(ctx context.Context, cfg config.Config, skipMigrations bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("environment", cfg.Environment).Msg("starting LGN server")

	metrics.Init(Version, GitCommit, BuildDate)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, telemetry.Service{Version: Version, Environment: cfg.Environment})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	if !skipMigrations {
		if err := postgres.MigrateUp(cfg.Database.URL, ""); err != nil {
			return err
		}
		logger.Info().Msg("database migrations applied")
	}

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return err
	}

	tokens := repo.Tokens()
	if cfg.Redis.Enabled() {
		rdb, err := redisstore.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		tokens = redisstore.NewTokenCache(rdb, tokens, cfg.Redis.TokenTTL, logger)
		logger.Info().Dur("ttl", cfg.Redis.TokenTTL).Msg("redis token cache enabled")
	}

	mailer, err := email.NewService(cfg.Email, logger)
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessExpiry, cfg.Auth.RefreshExpiry, cfg.Auth.JWTIssuer)
	userService := users.NewService(repo.Users(), tokens, jwtManager, users.Options{
		WithTx:            repo.UsersTx(),
		Notifier:          mailer,
		Audit:             audit.FromZerolog(logger),
		AllowRegisterRole: cfg.Auth.AllowRegisterRole,
		Logger:            logger,
	})

	bootstrapCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := bootstrapAdminUser(bootstrapCtx, cfg.AdminBootstrap, repo.Users(), cfg.IsProduction(), logger); err != nil {
		logger.Error().Err(err).Msg("admin bootstrap failed")
	}
	cancel()

	groupService := groups.NewService(repo.Groups())
	organizationService := organizations.NewService(repo.Organizations(), groupService)
	marathonService := marathons.NewService(repo.Marathons())

	riverClient, err := newRiverClient(ctx, cfg, pool, tokens, logger)
	if err != nil {
		return err
	}

	router := api.NewRouter(cfg, api.Services{
		Auth:          userService,
		Passwords:     userService,
		Tokens:        userService,
		Organizations: organizationService,
		Groups:        groupService,
		Marathons:     marathonService,
		Health:        handlers.NewHealthChecker(pool, riverClient, Version, GitCommit),
	}, buildInfo(), logger)
	defer router.Close()

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Handler,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	dbCollector := metrics.NewDBCollector(pool)
	go dbCollector.Start(ctx, 15*time.Second)
	defer dbCollector.Stop()

	if riverClient != nil {
		if err := riverClient.Start(ctx); err != nil {
			return fmt.Errorf("river workers failed to start: %w", err)
		}
		logger.Info().Msg("river background job workers started")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	var workers riverStopper
	if riverClient != nil {
		workers = riverClient
	}
	g.Go(func() error {
		<-gctx.Done()
		return gracefulShutdown(server, workers, logger)
	})
	return g.Wait()
}

func newRiverClient(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, tokens jobs.TokenPurger, logger zerolog.Logger) (*river.Client[pgx.Tx], error) {
	if !cfg.Jobs.Enabled {
		logger.Warn().Msg("background jobs disabled, revoked tokens will not be purged")
		return nil, nil
	}
	if err := jobs.Migrate(ctx, pool, "up"); err != nil {
		return nil, err
	}

	jobLogger := config.NewSlogLogger(logger, "jobs")
	client, err := jobs.NewClient(pool, cfg.Jobs, jobs.ClientOptions{
		Workers:      jobs.NewWorkers(cfg.Jobs, tokens, clockwork.NewRealClock(), jobLogger),
		Logger:       jobLogger,
		Hooks:        []rivertype.Hook{metrics.NewRiverMetricsHook()},
		PeriodicJobs: jobs.NewPeriodicJobs(cfg.Jobs),
		Alert:        jobAlert(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return client, nil
}

// jobAlert reports jobs that exhausted their retries on the server log.
func jobAlert(logger zerolog.Logger) jobs.AlertFunc {
	return func(ctx context.Context, failure jobs.JobFailure) {
		logger.Error().
			Err(failure.Err).
			Int64("job_id", failure.JobID).
			Str("kind", failure.Kind).
			Int("attempt", failure.Attempt).
			Msg("background job discarded")
	}
}

// bootstrapAdminUser creates the configured admin account once. An existing
// account with the same email is left untouched.
func bootstrapAdminUser(ctx context.Context, bootstrap config.AdminBootstrapConfig, repo users.UserRepository, production bool, logger zerolog.Logger) error {
	if bootstrap.Email == "" || bootstrap.Password == "" {
		logger.Debug().Msg("admin bootstrap env vars not set; skipping")
		return nil
	}

	addr := users.NormalizeEmail(bootstrap.Email)
	if _, err := repo.GetByEmail(ctx, addr); err == nil {
		return nil
	} else if !errors.Is(err, users.ErrUserNotFound) {
		return fmt.Errorf("check admin user: %w", err)
	}

	hash, err := auth.HashPassword(bootstrap.Password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	firstName := bootstrap.FirstName
	if firstName == "" {
		firstName = "Admin"
	}
	if _, err := repo.Create(ctx, users.User{
		FirstName:    firstName,
		LastName:     bootstrap.LastName,
		Email:        addr,
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
	}); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	// redact email in production
	if production {
		logger.Info().Msg("bootstrapped admin user")
	} else {
		logger.Info().Str("email", addr).Msg("bootstrapped admin user")
	}
	return nil
}

// riverStopper is the part of the River client used during shutdown.
type riverStopper interface {
	Stop(ctx context.Context) error
}

func gracefulShutdown(server *http.Server, workers riverStopper, logger zerolog.Logger) error {
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
		errs = append(errs, err)
	}

	if workers != nil {
		if err := workers.Stop(ctx); err != nil {
			logger.Error().Err(err).Msg("river workers shutdown error")
			errs = append(errs, err)
		} else {
			logger.Info().Msg("river workers stopped")
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	logger.Info().Msg("server stopped")
	return nil
}
