package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DBConnections reports pool connections by state: open, in_use, idle, max.
	DBConnections = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections",
			Help:      "Database pool connections by state",
		},
		[]string{"state"},
	)

	DBAcquireWaitSeconds = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_acquire_wait_seconds",
			Help:      "Cumulative time spent waiting for a pool connection",
		},
	)

	DBEmptyAcquires = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_empty_acquires",
			Help:      "Cumulative acquires that had to wait because the pool was exhausted",
		},
	)

	DBQueryDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Repository operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)

	DBErrors = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_errors_total",
			Help:      "Repository operation failures by cause",
		},
		[]string{"operation", "error_type"},
	)
)

// PoolSnapshot is the subset of pgxpool statistics exported as gauges.
type PoolSnapshot struct {
	Total         int32
	Acquired      int32
	Idle          int32
	Max           int32
	EmptyAcquires int64
	AcquireWait   time.Duration
}

func snapshotPool(pool *pgxpool.Pool) func() (PoolSnapshot, bool) {
	return func() (PoolSnapshot, bool) {
		if pool == nil {
			return PoolSnapshot{}, false
		}
		stat := pool.Stat()
		return PoolSnapshot{
			Total:         stat.TotalConns(),
			Acquired:      stat.AcquiredConns(),
			Idle:          stat.IdleConns(),
			Max:           stat.MaxConns(),
			EmptyAcquires: stat.EmptyAcquireCount(),
			AcquireWait:   stat.AcquireDuration(),
		}, true
	}
}

// DBCollector refreshes the pool gauges on a fixed interval until stopped.
type DBCollector struct {
	snapshot func() (PoolSnapshot, bool)
	clock    clockwork.Clock
	stop     chan struct{}
	stopOnce sync.Once
}

func NewDBCollector(pool *pgxpool.Pool) *DBCollector {
	return newDBCollector(snapshotPool(pool), clockwork.NewRealClock())
}

func newDBCollector(snapshot func() (PoolSnapshot, bool), clock clockwork.Clock) *DBCollector {
	return &DBCollector{snapshot: snapshot, clock: clock, stop: make(chan struct{})}
}

// Start blocks, collecting once immediately and then every interval.
func (c *DBCollector) Start(ctx context.Context, interval time.Duration) {
	c.collect()

	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			c.collect()
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends Start. It is safe to call more than once.
func (c *DBCollector) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *DBCollector) collect() {
	snap, ok := c.snapshot()
	if !ok {
		return
	}
	DBConnections.WithLabelValues("open").Set(float64(snap.Total))
	DBConnections.WithLabelValues("in_use").Set(float64(snap.Acquired))
	DBConnections.WithLabelValues("idle").Set(float64(snap.Idle))
	DBConnections.WithLabelValues("max").Set(float64(snap.Max))
	DBEmptyAcquires.Set(float64(snap.EmptyAcquires))
	DBAcquireWaitSeconds.Set(snap.AcquireWait.Seconds())
}

// RecordQuery records latency and failures for a repository operation.
//
//	defer func(start time.Time) { metrics.RecordQuery("users.create", start, err) }(time.Now())
func RecordQuery(operation string, start time.Time, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}
	DBErrors.WithLabelValues(operation, queryErrorType(err)).Inc()
}

func queryErrorType(err error) string {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, pgx.ErrNoRows):
		return "no_rows"
	case errors.As(err, &pgErr):
		return "sqlstate_" + pgErr.Code
	default:
		return "query_error"
	}
}
