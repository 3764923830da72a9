package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

var (
	RiverJobsQueued = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "river_jobs_queued_total",
			Help:      "Jobs inserted into the queue",
		},
		[]string{"kind"},
	)

	RiverJobsInFlight = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "river_jobs_in_flight",
			Help:      "Jobs currently executing",
		},
		[]string{"kind"},
	)

	RiverJobQueueWait = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "river_job_queue_wait_seconds",
			Help:      "Time between a job becoming available and a worker picking it up",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"kind"},
	)

	RiverJobDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "river_job_duration_seconds",
			Help:      "Job execution time in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	RiverJobsCompleted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "river_jobs_completed_total",
			Help:      "Job executions by outcome",
		},
		[]string{"kind", "result"}, // result: success|error
	)
)

// RiverMetricsHook records queue and execution metrics. Timing is taken from
// the job row itself so the hook keeps no per-job state.
type RiverMetricsHook struct {
	river.HookDefaults
	now func() time.Time
}

func NewRiverMetricsHook() *RiverMetricsHook {
	return &RiverMetricsHook{now: time.Now}
}

func (h *RiverMetricsHook) InsertBegin(ctx context.Context, params *rivertype.JobInsertParams) error {
	RiverJobsQueued.WithLabelValues(params.Kind).Inc()
	return nil
}

func (h *RiverMetricsHook) WorkBegin(ctx context.Context, job *rivertype.JobRow) error {
	RiverJobsInFlight.WithLabelValues(job.Kind).Inc()
	if job.AttemptedAt != nil && !job.ScheduledAt.IsZero() {
		if wait := job.AttemptedAt.Sub(job.ScheduledAt); wait >= 0 {
			RiverJobQueueWait.WithLabelValues(job.Kind).Observe(wait.Seconds())
		}
	}
	return nil
}

func (h *RiverMetricsHook) WorkEnd(ctx context.Context, job *rivertype.JobRow, err error) error {
	RiverJobsInFlight.WithLabelValues(job.Kind).Dec()
	if job.AttemptedAt != nil {
		RiverJobDuration.WithLabelValues(job.Kind).Observe(h.now().Sub(*job.AttemptedAt).Seconds())
	}

	result := "success"
	if err != nil {
		result = "error"
	}
	RiverJobsCompleted.WithLabelValues(job.Kind, result).Inc()
	return nil
}
