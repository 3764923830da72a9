package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
)

// HealthCheck is the body of GET /health.
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

type CheckResult struct {
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

const (
	checkPass = "pass"
	checkWarn = "warn"
	checkFail = "fail"

	checkTimeout = 2 * time.Second
)

// HealthChecker reports on the database, the schema migration state and,
// when background jobs run, the River queue.
type HealthChecker struct {
	pool        *pgxpool.Pool
	riverClient *river.Client[pgx.Tx]
	version     string
	gitCommit   string
}

func NewHealthChecker(pool *pgxpool.Pool, riverClient *river.Client[pgx.Tx], version, gitCommit string) *HealthChecker {
	return &HealthChecker{
		pool:        pool,
		riverClient: riverClient,
		version:     version,
		gitCommit:   gitCommit,
	}
}

func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Context().Err() != nil {
			respondHealth(w, http.StatusServiceUnavailable, "shutting_down")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]CheckResult{
			"database":   h.checkDatabase(ctx),
			"migrations": h.checkMigrations(ctx),
			"job_queue":  h.checkJobQueue(ctx),
		}
		status, code := overallStatus(checks)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(HealthCheck{
			Status:    status,
			Version:   h.version,
			GitCommit: h.gitCommit,
			Checks:    checks,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// overallStatus is unhealthy on any failure and degraded on any warning.
func overallStatus(checks map[string]CheckResult) (string, int) {
	status := "healthy"
	for _, check := range checks {
		switch check.Status {
		case checkFail:
			return "unhealthy", http.StatusServiceUnavailable
		case checkWarn:
			status = "degraded"
		}
	}
	return status, http.StatusOK
}

func (h *HealthChecker) checkDatabase(ctx context.Context) CheckResult {
	if h.pool == nil {
		return CheckResult{Status: checkFail, Message: "Database pool not initialized"}
	}

	start := time.Now()
	dbCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var one int
	err := h.pool.QueryRow(dbCtx, "SELECT 1").Scan(&one)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return CheckResult{
			Status:    checkFail,
			Message:   databaseFailureMessage(err),
			LatencyMs: latency,
			Details:   map[string]any{"error": err.Error()},
		}
	}

	stats := h.pool.Stat()
	return CheckResult{
		Status:    checkPass,
		Message:   "PostgreSQL connection successful",
		LatencyMs: latency,
		Details: map[string]any{
			"max_connections":      stats.MaxConns(),
			"total_connections":    stats.TotalConns(),
			"idle_connections":     stats.IdleConns(),
			"acquired_connections": stats.AcquiredConns(),
		},
	}
}

func databaseFailureMessage(err error) string {
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Database query timed out"
	case strings.Contains(msg, "connection refused"):
		return "Database connection refused"
	case strings.Contains(msg, "no such host"):
		return "Cannot reach database host"
	case strings.Contains(msg, "authentication failed"):
		return "Database authentication failed"
	default:
		return "Database query failed"
	}
}

// checkMigrations reads the golang-migrate bookkeeping table. A dirty flag
// means a migration stopped halfway and needs manual repair.
func (h *HealthChecker) checkMigrations(ctx context.Context) CheckResult {
	if h.pool == nil {
		return CheckResult{Status: checkFail, Message: "Database pool not initialized"}
	}

	start := time.Now()
	migCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var version int64
	var dirty bool
	err := h.pool.QueryRow(migCtx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	latency := time.Since(start).Milliseconds()

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return CheckResult{Status: checkFail, Message: "No migrations applied", LatencyMs: latency}
	case err != nil:
		message := "Failed to query migration version"
		if strings.Contains(err.Error(), "does not exist") {
			message = "Migrations table not found"
		}
		return CheckResult{
			Status:    checkFail,
			Message:   message,
			LatencyMs: latency,
			Details:   map[string]any{"error": err.Error()},
		}
	case dirty:
		return CheckResult{
			Status:    checkFail,
			Message:   "Database in dirty migration state",
			LatencyMs: latency,
			Details:   map[string]any{"version": version, "dirty": true},
		}
	}

	return CheckResult{
		Status:    checkPass,
		Message:   fmt.Sprintf("Migrations applied (version %d)", version),
		LatencyMs: latency,
		Details:   map[string]any{"version": version, "dirty": false},
	}
}

// checkJobQueue warns rather than fails when jobs are disabled; the API
// serves requests without them.
func (h *HealthChecker) checkJobQueue(ctx context.Context) CheckResult {
	if h.riverClient == nil || h.pool == nil {
		return CheckResult{Status: checkWarn, Message: "Background jobs disabled"}
	}

	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var available, running int64
	err := h.pool.QueryRow(jobCtx, `
SELECT count(*) FILTER (WHERE state = 'available'),
       count(*) FILTER (WHERE state = 'running')
  FROM river_job`).Scan(&available, &running)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		status := checkFail
		message := "Failed to query job queue"
		if strings.Contains(err.Error(), "does not exist") {
			status = checkWarn
			message = "River tables not found"
		}
		return CheckResult{
			Status:    status,
			Message:   message,
			LatencyMs: latency,
			Details:   map[string]any{"error": err.Error()},
		}
	}

	return CheckResult{
		Status:    checkPass,
		Message:   "River job queue operational",
		LatencyMs: latency,
		Details:   map[string]any{"available_jobs": available, "running_jobs": running},
	}
}

// Healthz is the liveness probe: the process is up and serving.
func Healthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondHealth(w, http.StatusOK, "ok")
	})
}

// Readyz is the readiness probe: the database answers a ping.
func (h *HealthChecker) Readyz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.pool == nil {
			respondHealth(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()
		if err := h.pool.Ping(ctx); err != nil {
			respondHealth(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		respondHealth(w, http.StatusOK, "ready")
	})
}

type healthResponse struct {
	Status string `json:"status"`
}

func respondHealth(w http.ResponseWriter, status int, value string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(healthResponse{Status: value})
}
