package jobs

import (
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/riverqueue/river"

	"github.com/lgn-platform/lgn-api/internal/config"
)

// NewWorkers registers every background worker.
func NewWorkers(cfg config.JobsConfig, tokens TokenPurger, clock clockwork.Clock, logger *slog.Logger) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[TokenPurgeArgs](workers, TokenPurgeWorker{
		Tokens:    tokens,
		Retention: cfg.TokenRetention,
		Clock:     clock,
		Logger:    logger,
	})
	return workers
}
