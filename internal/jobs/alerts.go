package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// JobFailure describes a job that failed its last allowed attempt.
type JobFailure struct {
	JobID   int64
	Kind    string
	Attempt int
	Err     error
}

// AlertFunc receives jobs River is about to discard.
type AlertFunc func(ctx context.Context, failure JobFailure)

// FailureHandler logs every failed attempt and raises an alert once a job
// has used up its attempts.
type FailureHandler struct {
	Logger *slog.Logger
	Alert  AlertFunc
}

func NewFailureHandler(logger *slog.Logger, alert AlertFunc) *FailureHandler {
	return &FailureHandler{Logger: logger, Alert: alert}
}

func (h *FailureHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	h.record(ctx, job, err, "job attempt failed")
	return nil
}

// HandlePanic treats a panicking worker like a failed attempt. The stack
// trace is only logged.
func (h *FailureHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	err := fmt.Errorf("panic: %v", panicVal)
	if h.Logger != nil {
		h.Logger.Debug("job panic trace", "job_id", job.ID, "trace", trace)
	}
	h.record(ctx, job, err, "job panicked")
	return nil
}

func (h *FailureHandler) record(ctx context.Context, job *rivertype.JobRow, err error, msg string) {
	final := isFinalAttempt(job)
	if h.Logger != nil {
		level := slog.LevelWarn
		if final {
			level = slog.LevelError
		}
		h.Logger.Log(ctx, level, msg,
			"job_id", job.ID,
			"kind", job.Kind,
			"attempt", job.Attempt,
			"max_attempts", job.MaxAttempts,
			"error", err,
		)
	}
	if final && h.Alert != nil {
		h.Alert(ctx, JobFailure{JobID: job.ID, Kind: job.Kind, Attempt: job.Attempt, Err: err})
	}
}

func isFinalAttempt(job *rivertype.JobRow) bool {
	return job.MaxAttempts > 0 && job.Attempt >= job.MaxAttempts
}
