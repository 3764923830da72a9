package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/lgn-platform/lgn-api/internal/api/problem"
	"github.com/lgn-platform/lgn-api/internal/auth"
	"github.com/lgn-platform/lgn-api/internal/config"
)

type RateLimitTier string

const (
	TierPublic RateLimitTier = "public"
	TierUser   RateLimitTier = "user"
	TierAdmin  RateLimitTier = "admin"
	TierLogin  RateLimitTier = "login"
)

const (
	rateLimitTierKey contextKey = "rateLimitTier"

	limiterIdleTTL    = 15 * time.Minute
	limiterSweepEvery = 5 * time.Minute
)

var errRateLimited = errors.New("rate limit exceeded")

// tierPolicy is a token bucket of limit requests refilled evenly over window.
type tierPolicy struct {
	limit      int
	window     time.Duration
	retryAfter time.Duration
}

func (p tierPolicy) enabled() bool { return p.limit > 0 }

func (p tierPolicy) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(p.window/time.Duration(p.limit)), p.limit)
}

func tierPolicies(cfg config.RateLimitConfig) map[RateLimitTier]tierPolicy {
	return map[RateLimitTier]tierPolicy{
		TierPublic: {limit: cfg.PublicPerMinute, window: time.Minute, retryAfter: time.Minute},
		TierUser:   {limit: cfg.UserPerMinute, window: time.Minute, retryAfter: time.Minute},
		TierAdmin:  {limit: cfg.AdminPerMinute, window: time.Minute, retryAfter: time.Minute},
		TierLogin:  {limit: cfg.LoginPer15Minutes, window: 15 * time.Minute, retryAfter: 3 * time.Minute},
	}
}

func WithRateLimitTier(ctx context.Context, tier RateLimitTier) context.Context {
	return context.WithValue(ctx, rateLimitTierKey, tier)
}

func WithRateLimitTierHandler(tier RateLimitTier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithRateLimitTier(r.Context(), tier)))
		})
	}
}

// RateLimiter keeps one bucket per tier and caller. Authenticated callers
// are keyed by account, everyone else by client address; login attempts are
// always keyed by address.
type RateLimiter struct {
	store          *limiterStore
	trustedProxies []netip.Prefix
	env            string
}

func NewRateLimiter(cfg config.RateLimitConfig, env string) *RateLimiter {
	return newRateLimiter(cfg, env, clockwork.NewRealClock())
}

func newRateLimiter(cfg config.RateLimitConfig, env string, clock clockwork.Clock) *RateLimiter {
	return &RateLimiter{
		store:          newLimiterStore(tierPolicies(cfg), clock),
		trustedProxies: parseTrustedProxies(cfg.TrustedProxyCIDRs),
		env:            env,
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tier := tierFor(r)
		policy := l.store.policies[tier]
		if !policy.enabled() {
			next.ServeHTTP(w, r)
			return
		}

		key := clientKey(r, l.trustedProxies)
		if p := PrincipalFromContext(r.Context()); p != nil && tier != TierLogin {
			key = "user:" + strconv.FormatInt(p.UserID, 10)
		}

		limiter := l.store.limiter(tier, key)
		allowed := limiter.AllowN(l.store.clock.Now(), 1)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(policy.limit))
		if allowed {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Retry-After", strconv.Itoa(int(policy.retryAfter.Seconds())))
		problem.Write(w, r, http.StatusTooManyRequests, problem.TypeRateLimited, "Too many requests", errRateLimited, l.env)
	})
}

// Stop ends the idle-bucket sweeper.
func (l *RateLimiter) Stop() {
	l.store.stop()
}

// tierFor picks the explicit tier from the context, else the caller's role
// tier, else public.
func tierFor(r *http.Request) RateLimitTier {
	if tier, ok := r.Context().Value(rateLimitTierKey).(RateLimitTier); ok {
		return tier
	}
	if p := PrincipalFromContext(r.Context()); p != nil {
		if auth.IsAdmin(string(p.Role)) {
			return TierAdmin
		}
		return TierUser
	}
	return TierPublic
}

type limiterStore struct {
	policies map[RateLimitTier]tierPolicy
	clock    clockwork.Clock

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	done     chan struct{}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(policies map[RateLimitTier]tierPolicy, clock clockwork.Clock) *limiterStore {
	s := &limiterStore{
		policies: policies,
		clock:    clock,
		buckets:  make(map[string]*bucket),
		done:     make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *limiterStore) limiter(tier RateLimitTier, key string) *rate.Limiter {
	id := string(tier) + ":" + key
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[id]
	if !ok {
		b = &bucket{limiter: s.policies[tier].newLimiter()}
		s.buckets[id] = b
	}
	b.lastSeen = now
	return b.limiter
}

func (s *limiterStore) sweepLoop() {
	ticker := s.clock.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			s.sweep()
		case <-s.done:
			return
		}
	}
}

// sweep drops buckets idle for longer than limiterIdleTTL. A dropped bucket
// is full again when recreated, which is what it would have refilled to.
func (s *limiterStore) sweep() {
	cutoff := s.clock.Now().Add(-limiterIdleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(s.buckets, id)
		}
	}
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

func (s *limiterStore) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// parseTrustedProxies skips malformed CIDRs.
func parseTrustedProxies(cidrs []string) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		if prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr)); err == nil {
			prefixes = append(prefixes, prefix.Masked())
		}
	}
	return prefixes
}

// clientKey identifies the caller by IP. Forwarding headers are honoured
// only when the connection comes from a trusted proxy.
func clientKey(r *http.Request, trusted []netip.Prefix) string {
	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remote = host
	}
	if !isTrustedProxy(remote, trusted) {
		return remote
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	return remote
}

func isTrustedProxy(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
