package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/riverqueue/river"

	"github.com/lgn-platform/lgn-api/internal/metrics"
)

// TokenPurger deletes stored tokens that can no longer authenticate.
type TokenPurger interface {
	PurgeInactive(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenPurgeArgs defines the job that removes revoked and expired tokens.
type TokenPurgeArgs struct{}

func (TokenPurgeArgs) Kind() string { return JobKindTokenPurge }

// TokenPurgeWorker deletes tokens that were revoked or expired before the
// retention window. Tokens still inside the window are kept so logout and
// rotation history stays inspectable for a while.
type TokenPurgeWorker struct {
	river.WorkerDefaults[TokenPurgeArgs]
	Tokens    TokenPurger
	Retention time.Duration
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

func (TokenPurgeWorker) Kind() string { return JobKindTokenPurge }

func (w TokenPurgeWorker) Work(ctx context.Context, job *river.Job[TokenPurgeArgs]) error {
	if w.Tokens == nil {
		return fmt.Errorf("token repository not configured")
	}

	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := w.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	start := clock.Now()
	cutoff := start.Add(-w.Retention)

	deleted, err := w.Tokens.PurgeInactive(ctx, cutoff)
	metrics.TokenPurgeDuration.Observe(clock.Since(start).Seconds())
	if err != nil {
		metrics.TokenPurgeErrors.Inc()
		logger.Error("token purge failed", "attempt", job.Attempt, "error", err)
		return fmt.Errorf("purge tokens: %w", err)
	}

	metrics.TokensPurgedTotal.Add(float64(deleted))
	logger.Info("token purge completed",
		"deleted_count", deleted,
		"cutoff", cutoff.Format(time.RFC3339),
		"attempt", job.Attempt,
	)
	return nil
}
