package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

type healthcheckOptions struct {
	url     string
	timeout time.Duration
	retries int
	format  string
}

// HealthResponse matches the body served by GET /health.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthCheckResult is one probe of a server.
type HealthCheckResult struct {
	URL       string `json:"url"`
	IsHealthy bool   `json:"healthy"`
	Status    string `json:"status,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

func newHealthcheckCommand() *cobra.Command {
	opts := &healthcheckOptions{}
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is healthy",
		Long: `Performs a health check by calling the /health endpoint.

This command is used by Docker HEALTHCHECK to monitor container health.
It exits non-zero unless the server reports "healthy".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url := opts.url
			if url == "" {
				url = defaultHealthURL()
			}
			result := performHealthCheckWithRetries(cmd.Context(), url, opts.timeout, opts.retries)
			if err := writeHealthResult(cmd.OutOrStdout(), result, opts.format); err != nil {
				return err
			}
			if !result.IsHealthy {
				return fmt.Errorf("unhealthy: %s", describe(result))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "", "health check URL (default: http://localhost:{SERVER_PORT}/health)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "timeout per attempt")
	cmd.Flags().IntVar(&opts.retries, "retries", 1, "attempts before giving up")
	cmd.Flags().StringVar(&opts.format, "format", "text", "output format (text, json)")
	return cmd
}

func defaultHealthURL() string {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	return fmt.Sprintf("http://localhost:%s/health", port)
}

func performHealthCheck(ctx context.Context, url string, timeout time.Duration) HealthCheckResult {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := HealthCheckResult{URL: url}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	resp, err := http.DefaultClient.Do(req)
	result.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		result.Error = fmt.Sprintf("invalid response: %v", err)
		return result
	}
	result.Status = body.Status
	result.IsHealthy = resp.StatusCode == http.StatusOK && body.Status == "healthy"
	return result
}

func performHealthCheckWithRetries(ctx context.Context, url string, timeout time.Duration, attempts int) HealthCheckResult {
	if attempts < 1 {
		attempts = 1
	}
	var result HealthCheckResult
	for i := 0; i < attempts; i++ {
		result = performHealthCheck(ctx, url, timeout)
		if result.IsHealthy {
			return result
		}
		if i < attempts-1 {
			time.Sleep(time.Duration(i+1) * 200 * time.Millisecond)
		}
	}
	return result
}

func writeHealthResult(w io.Writer, result HealthCheckResult, format string) error {
	switch format {
	case "json":
		return json.NewEncoder(w).Encode(result)
	case "text", "":
		state := "healthy"
		if !result.IsHealthy {
			state = "unhealthy"
		}
		_, err := fmt.Fprintf(w, "%s %s (%dms)\n", state, result.URL, result.LatencyMs)
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func describe(result HealthCheckResult) string {
	if result.Error != "" {
		return result.Error
	}
	return "status=" + result.Status
}
