// Package loadtest drives realistic traffic against a running LGN server to
// exercise rate limits, metrics dashboards and the database under load.
package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// LoadProfile names a predefined load testing scenario.
type LoadProfile string

const (
	ProfileLight  LoadProfile = "light"  // 5 req/s, 1 minute
	ProfileMedium LoadProfile = "medium" // 20 req/s, 2 minutes
	ProfileHeavy  LoadProfile = "heavy"  // 50 req/s, 5 minutes
	ProfileStress LoadProfile = "stress" // 100 req/s, 10 minutes
)

// ProfileConfig defines the parameters for a load test.
type ProfileConfig struct {
	RequestsPerSecond int
	Duration          time.Duration
	RampUpTime        time.Duration
	RampDownTime      time.Duration
	ReadWriteRatio    float64 // 0.8 = 80% reads
}

// Total is the wall time the profile runs for.
func (c ProfileConfig) Total() time.Duration {
	return c.RampUpTime + c.Duration + c.RampDownTime
}

var LoadProfiles = map[LoadProfile]ProfileConfig{
	ProfileLight: {
		RequestsPerSecond: 5,
		Duration:          1 * time.Minute,
		RampUpTime:        10 * time.Second,
		RampDownTime:      10 * time.Second,
		ReadWriteRatio:    0.8,
	},
	ProfileMedium: {
		RequestsPerSecond: 20,
		Duration:          2 * time.Minute,
		RampUpTime:        20 * time.Second,
		RampDownTime:      20 * time.Second,
		ReadWriteRatio:    0.8,
	},
	ProfileHeavy: {
		RequestsPerSecond: 50,
		Duration:          5 * time.Minute,
		RampUpTime:        30 * time.Second,
		RampDownTime:      30 * time.Second,
		ReadWriteRatio:    0.7,
	},
	ProfileStress: {
		RequestsPerSecond: 100,
		Duration:          10 * time.Minute,
		RampUpTime:        1 * time.Minute,
		RampDownTime:      1 * time.Minute,
		ReadWriteRatio:    0.6,
	},
}

// LoadTester sends a paced mix of reads and marathon writes to one server.
type LoadTester struct {
	baseURL    string
	httpClient *http.Client
	token      string
	out        io.Writer
	rnd        *rand.Rand
	rndMu      sync.Mutex
	stats      *Statistics
}

func NewLoadTester(baseURL string, out io.Writer) *LoadTester {
	if out == nil {
		out = io.Discard
	}
	return &LoadTester{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		out:        out,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithToken uses a ready access token, e.g. one minted by gentoken.
func (lt *LoadTester) WithToken(token string) *LoadTester {
	lt.token = token
	return lt
}

// Login exchanges credentials for an access token through /auth/authenticate.
func (lt *LoadTester) Login(ctx context.Context, email, password string) error {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lt.baseURL+"/auth/authenticate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := lt.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("authenticate: unexpected status %d", resp.StatusCode)
	}
	var pair struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return fmt.Errorf("decode token pair: %w", err)
	}
	if pair.AccessToken == "" {
		return errors.New("authenticate: empty access token")
	}
	lt.token = pair.AccessToken
	return nil
}

func (lt *LoadTester) Run(ctx context.Context, profile LoadProfile) (*Statistics, error) {
	config, exists := LoadProfiles[profile]
	if !exists {
		return nil, fmt.Errorf("unknown profile: %s", profile)
	}
	return lt.RunCustom(ctx, config)
}

// RunCustom runs until the profile completes or ctx is cancelled.
func (lt *LoadTester) RunCustom(ctx context.Context, config ProfileConfig) (*Statistics, error) {
	if config.RequestsPerSecond < 1 {
		return nil, fmt.Errorf("requests per second must be at least 1")
	}
	if config.Total() <= 0 {
		return nil, fmt.Errorf("duration must be positive")
	}

	lt.stats = newStatistics()
	fmt.Fprintf(lt.out, "Starting load test...\n")
	fmt.Fprintf(lt.out, "  Target: %s\n", lt.baseURL)
	fmt.Fprintf(lt.out, "  RPS: %d\n", config.RequestsPerSecond)
	fmt.Fprintf(lt.out, "  Duration: %s (ramp-up %s, ramp-down %s)\n", config.Duration, config.RampUpTime, config.RampDownTime)
	fmt.Fprintf(lt.out, "  Read/Write ratio: %.0f%%/%.0f%%\n\n", config.ReadWriteRatio*100, (1-config.ReadWriteRatio)*100)

	runCtx, cancel := context.WithTimeout(ctx, config.Total())
	defer cancel()

	workers := config.RequestsPerSecond * 2
	if workers < 10 {
		workers = 10
	}
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(workers + 1)

	limiter := rate.NewLimiter(rate.Limit(lt.rpsAt(0, config)), 1)
	start := time.Now()
	for {
		if err := limiter.Wait(gctx); err != nil {
			break
		}
		limiter.SetLimit(rate.Limit(lt.rpsAt(time.Since(start), config)))

		work := lt.nextWork(config.ReadWriteRatio)
		g.Go(func() error {
			lt.execute(gctx, work)
			return nil
		})
	}
	_ = g.Wait()

	lt.stats.finish()
	return lt.stats, nil
}

// rpsAt is the target rate at elapsed time, following the ramp-up and
// ramp-down phases. It never drops below 1.
func (lt *LoadTester) rpsAt(elapsed time.Duration, config ProfileConfig) int {
	target := config.RequestsPerSecond
	var rps int
	switch steadyEnd := config.RampUpTime + config.Duration; {
	case elapsed < config.RampUpTime:
		rps = int(float64(target) * float64(elapsed) / float64(config.RampUpTime))
	case elapsed < steadyEnd:
		rps = target
	case elapsed < steadyEnd+config.RampDownTime:
		progress := float64(elapsed-steadyEnd) / float64(config.RampDownTime)
		rps = int(float64(target) * (1.0 - progress))
	default:
		rps = 1
	}
	if rps < 1 {
		rps = 1
	}
	return rps
}

type workItem struct {
	method   string
	path     string
	body     any
	endpoint string
}

var readOperations = []workItem{
	{method: http.MethodGet, path: "/health", endpoint: "health"},
	{method: http.MethodGet, path: "/api/marathons", endpoint: "list_marathons"},
	{method: http.MethodGet, path: "/api/organizations", endpoint: "list_organizations"},
	{method: http.MethodGet, path: "/group", endpoint: "list_groups"},
}

func (lt *LoadTester) nextWork(readRatio float64) workItem {
	lt.rndMu.Lock()
	defer lt.rndMu.Unlock()

	if lt.rnd.Float64() < readRatio {
		return readOperations[lt.rnd.Intn(len(readOperations))]
	}
	return workItem{
		method: http.MethodPost,
		path:   "/api/marathons",
		body: map[string]any{
			"identification": fmt.Sprintf("Load test run %06d", lt.rnd.Intn(1_000_000)),
			"weight":         float64(lt.rnd.Intn(1000)) / 10,
			"score":          float64(lt.rnd.Intn(10000)) / 100,
		},
		endpoint: "create_marathon",
	}
}

func (lt *LoadTester) execute(ctx context.Context, work workItem) {
	var reqBody io.Reader
	if work.body != nil {
		data, err := json.Marshal(work.body)
		if err != nil {
			lt.stats.recordError(work.endpoint)
			return
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, work.method, lt.baseURL+work.path, reqBody)
	if err != nil {
		lt.stats.recordError(work.endpoint)
		return
	}
	if work.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if lt.token != "" {
		req.Header.Set("Authorization", "Bearer "+lt.token)
	}

	start := time.Now()
	resp, err := lt.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			lt.stats.recordError(work.endpoint)
		}
		return
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	lt.stats.recordResponse(resp.StatusCode, time.Since(start).Milliseconds(), work.endpoint)
}

// Statistics collects per-request outcomes of a run.
type Statistics struct {
	mu sync.Mutex

	totalRequests   int64
	successRequests int64
	failedRequests  int64
	responseTimes   []int64
	errors          map[int]int64 // status code -> count, 0 for transport errors
	endpointStats   map[string]*EndpointStats

	startTime time.Time
	endTime   time.Time
}

type EndpointStats struct {
	count   int64
	total   int64
	times   []int64
	errors  int64
	minTime int64
	maxTime int64
}

func newStatistics() *Statistics {
	return &Statistics{
		errors:        make(map[int]int64),
		endpointStats: make(map[string]*EndpointStats),
		startTime:     time.Now(),
	}
}

func (s *Statistics) finish() {
	s.mu.Lock()
	s.endTime = time.Now()
	s.mu.Unlock()
}

func (s *Statistics) endpoint(name string) *EndpointStats {
	ep, ok := s.endpointStats[name]
	if !ok {
		ep = &EndpointStats{}
		s.endpointStats[name] = ep
	}
	return ep
}

func (s *Statistics) recordResponse(statusCode int, durationMs int64, endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests++
	s.responseTimes = append(s.responseTimes, durationMs)
	ok := statusCode >= 200 && statusCode < 300
	if ok {
		s.successRequests++
	} else {
		s.failedRequests++
		s.errors[statusCode]++
	}

	ep := s.endpoint(endpoint)
	if ep.count == 0 || durationMs < ep.minTime {
		ep.minTime = durationMs
	}
	if durationMs > ep.maxTime {
		ep.maxTime = durationMs
	}
	ep.count++
	ep.total += durationMs
	ep.times = append(ep.times, durationMs)
	if !ok {
		ep.errors++
	}
}

func (s *Statistics) recordError(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests++
	s.failedRequests++
	s.errors[0]++
	s.endpoint(endpoint).errors++
}

// Totals returns request counts: all, 2xx and the rest.
func (s *Statistics) Totals() (total, success, failed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalRequests, s.successRequests, s.failedRequests
}

// Report renders a plain text summary of the run.
func (s *Statistics) Report() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	duration := s.endTime.Sub(s.startTime)
	var b strings.Builder
	b.WriteString("\n=== LOAD TEST RESULTS ===\n\n")
	fmt.Fprintf(&b, "Duration:        %s\n", duration.Round(time.Second))
	fmt.Fprintf(&b, "Total Requests:  %d\n", s.totalRequests)
	if s.totalRequests > 0 {
		fmt.Fprintf(&b, "Successful:      %d (%.1f%%)\n", s.successRequests, percent(s.successRequests, s.totalRequests))
		fmt.Fprintf(&b, "Failed:          %d (%.1f%%)\n", s.failedRequests, percent(s.failedRequests, s.totalRequests))
	}
	if duration > 0 {
		fmt.Fprintf(&b, "Requests/sec:    %.2f\n", float64(s.totalRequests)/duration.Seconds())
	}
	b.WriteString("\n")

	if len(s.responseTimes) > 0 {
		b.WriteString("Response Times (ms):\n")
		fmt.Fprintf(&b, "  Average:  %d\n", average(s.responseTimes))
		fmt.Fprintf(&b, "  p50:      %d\n", percentile(s.responseTimes, 0.50))
		fmt.Fprintf(&b, "  p95:      %d\n", percentile(s.responseTimes, 0.95))
		fmt.Fprintf(&b, "  p99:      %d\n\n", percentile(s.responseTimes, 0.99))
	}

	if len(s.errors) > 0 {
		b.WriteString("Errors by Status Code:\n")
		codes := make([]int, 0, len(s.errors))
		for code := range s.errors {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		for _, code := range codes {
			label := fmt.Sprint(code)
			if code == 0 {
				label = "transport"
			}
			fmt.Fprintf(&b, "  %s: %d\n", label, s.errors[code])
		}
		b.WriteString("\n")
	}

	if len(s.endpointStats) > 0 {
		names := make([]string, 0, len(s.endpointStats))
		for name := range s.endpointStats {
			names = append(names, name)
		}
		slices.Sort(names)

		fmt.Fprintf(&b, "%-20s %8s %8s %8s %8s %8s %8s\n", "Endpoint", "Count", "Errors", "Avg(ms)", "p95(ms)", "Min", "Max")
		for _, name := range names {
			ep := s.endpointStats[name]
			if ep.count == 0 {
				fmt.Fprintf(&b, "%-20s %8d %8d\n", name, 0, ep.errors)
				continue
			}
			fmt.Fprintf(&b, "%-20s %8d %8d %8d %8d %8d %8d\n",
				name, ep.count, ep.errors, ep.total/ep.count, percentile(ep.times, 0.95), ep.minTime, ep.maxTime)
		}
	}
	return b.String()
}

func percent(part, total int64) float64 {
	return float64(part) / float64(total) * 100
}

func average(times []int64) int64 {
	if len(times) == 0 {
		return 0
	}
	var sum int64
	for _, t := range times {
		sum += t
	}
	return sum / int64(len(times))
}

func percentile(times []int64, p float64) int64 {
	if len(times) == 0 {
		return 0
	}
	sorted := slices.Clone(times)
	slices.Sort(sorted)

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
