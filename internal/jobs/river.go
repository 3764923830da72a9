package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"

	"github.com/lgn-platform/lgn-api/internal/config"
)

const (
	JobKindTokenPurge = "token_purge"
)

const (
	DefaultMaxAttempts = 5
)

// RetryConfig controls per-kind retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryPolicy implements River's ClientRetryPolicy with per-kind exponential backoff.
type RetryPolicy struct {
	Default RetryConfig
	ByKind  map[string]RetryConfig
}

// NewRetryPolicy returns the retry policy for the configured jobs.
func NewRetryPolicy(cfg config.JobsConfig) *RetryPolicy {
	purgeAttempts := cfg.RetryTokenPurge
	if purgeAttempts < 1 {
		purgeAttempts = 1
	}
	return &RetryPolicy{
		Default: RetryConfig{
			MaxAttempts: DefaultMaxAttempts,
			BaseDelay:   30 * time.Second,
			MaxDelay:    30 * time.Minute,
		},
		ByKind: map[string]RetryConfig{
			JobKindTokenPurge: {
				MaxAttempts: purgeAttempts,
				BaseDelay:   1 * time.Minute,
				MaxDelay:    1 * time.Hour,
			},
		},
	}
}

// NextRetry determines the next retry time for a failed job.
func (p *RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	config := p.configFor(job.Kind)
	if config.BaseDelay == 0 {
		return time.Now()
	}

	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if job.AttemptedAt != nil {
		return job.AttemptedAt.Add(delay)
	}
	return time.Now().Add(delay)
}

func (p *RetryPolicy) configFor(kind string) RetryConfig {
	if p == nil {
		return RetryConfig{MaxAttempts: DefaultMaxAttempts, BaseDelay: 1 * time.Minute, MaxDelay: 1 * time.Hour}
	}
	if config, ok := p.ByKind[kind]; ok {
		return config
	}
	return p.Default
}

// ClientOptions carries the pieces of a River client that are built
// elsewhere.
type ClientOptions struct {
	Workers      *river.Workers
	Logger       *slog.Logger
	Hooks        []rivertype.Hook
	PeriodicJobs []*river.PeriodicJob
	Alert        AlertFunc
}

// NewClientConfig builds a River client configuration with retry policy.
func NewClientConfig(cfg config.JobsConfig, opts ClientOptions) *river.Config {
	policy := NewRetryPolicy(cfg)
	maxWorkers := cfg.Workers
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	rc := &river.Config{
		Workers:      opts.Workers,
		RetryPolicy:  policy,
		MaxAttempts:  policy.Default.MaxAttempts,
		PeriodicJobs: opts.PeriodicJobs,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Hooks:        opts.Hooks,
		ErrorHandler: NewFailureHandler(opts.Logger, opts.Alert),
	}
	if opts.Logger != nil {
		rc.Logger = opts.Logger
	}
	return rc
}

// NewClient creates a River client using pgx v5.
func NewClient(pool *pgxpool.Pool, cfg config.JobsConfig, opts ClientOptions) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(cfg, opts))
}

// NewPeriodicJobs schedules token purging at the configured interval.
func NewPeriodicJobs(cfg config.JobsConfig) []*river.PeriodicJob {
	if cfg.TokenPurgeInterval <= 0 {
		return nil
	}
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(cfg.TokenPurgeInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return TokenPurgeArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

// Migrate applies River's own schema migrations. Direction is "up" or "down";
// a down migration removes every River table.
func Migrate(ctx context.Context, pool *pgxpool.Pool, direction string) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}

	var dir rivermigrate.Direction
	opts := &rivermigrate.MigrateOpts{}
	switch direction {
	case "up":
		dir = rivermigrate.DirectionUp
	case "down":
		dir = rivermigrate.DirectionDown
		opts.TargetVersion = -1
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}

	if _, err := migrator.Migrate(ctx, dir, opts); err != nil {
		return fmt.Errorf("river migrate %s: %w", direction, err)
	}
	return nil
}
