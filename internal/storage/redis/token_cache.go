package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lgn-platform/lgn-api/internal/domain/users"
	"github.com/lgn-platform/lgn-api/internal/metrics"
)

const tokenCachePrefix = "token:"

// TokenCache is a read-through cache of token state in front of the
// PostgreSQL token repository. Revocations overwrite the entry with a
// revoked marker, and read-through fills never replace an existing entry,
// so a lookup racing a revocation cannot re-cache the token as active.
// Redis failures fall through to the database.
type TokenCache struct {
	rdb    goredis.Cmdable
	next   users.TokenRepository
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

func NewTokenCache(rdb goredis.Cmdable, next users.TokenRepository, ttl time.Duration, logger zerolog.Logger) *TokenCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TokenCache{
		rdb:    rdb,
		next:   next,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With().Str("component", "token_cache").Logger(),
	}
}

type cachedToken struct {
	ID        int64     `json:"id"`
	Value     string    `json:"value"`
	Type      string    `json:"type"`
	Revoked   bool      `json:"revoked"`
	Expired   bool      `json:"expired"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func cacheKey(value string) string {
	sum := sha256.Sum256([]byte(value))
	return tokenCachePrefix + hex.EncodeToString(sum[:])
}

func (c *TokenCache) FindByValue(ctx context.Context, value string) (*users.Token, error) {
	key := cacheKey(value)

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedToken
		if err := json.Unmarshal(data, &cached); err == nil {
			metrics.TokenCacheRequestsTotal.WithLabelValues("hit").Inc()
			t := users.Token(cached)
			return &t, nil
		}
		c.logger.Warn().Msg("discarding undecodable token cache entry")
	case errors.Is(err, goredis.Nil):
		metrics.TokenCacheRequestsTotal.WithLabelValues("miss").Inc()
	default:
		metrics.TokenCacheRequestsTotal.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Msg("token cache GET failed, falling through to postgres")
	}

	token, err := c.next.FindByValue(ctx, value)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, token)
	return token, nil
}

// store fills the cache from the database. SETNX keeps a revoked marker
// written concurrently by Revoke or Rotate.
func (c *TokenCache) store(ctx context.Context, key string, token *users.Token) {
	ttl := c.ttl
	if remaining := token.ExpiresAt.Sub(c.now()); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}
	encoded, err := json.Marshal(cachedToken(*token))
	if err != nil {
		return
	}
	if err := c.rdb.SetNX(ctx, key, encoded, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to populate token cache")
	}
}

// markRevoked overwrites the entries of values with a revoked marker that
// lives for the cache TTL, by which time the database row is committed.
func (c *TokenCache) markRevoked(ctx context.Context, values ...string) {
	if len(values) == 0 {
		return
	}
	_, err := c.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, v := range values {
			encoded, err := json.Marshal(cachedToken{Value: v, Type: users.TokenTypeBearer, Revoked: true, Expired: true})
			if err != nil {
				return err
			}
			pipe.Set(ctx, cacheKey(v), encoded, c.ttl)
		}
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Int("keys", len(values)).Msg("failed to mark token cache entries revoked")
	}
}

func (c *TokenCache) Save(ctx context.Context, token users.Token) (*users.Token, error) {
	return c.next.Save(ctx, token)
}

func (c *TokenCache) Revoke(ctx context.Context, value string) error {
	err := c.next.Revoke(ctx, value)
	if err == nil {
		c.markRevoked(ctx, value)
	}
	return err
}

func (c *TokenCache) Rotate(ctx context.Context, userID int64, token users.Token) ([]string, error) {
	revoked, err := c.next.Rotate(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	c.markRevoked(ctx, revoked...)
	return revoked, nil
}

func (c *TokenCache) PurgeInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	return c.next.PurgeInactive(ctx, cutoff)
}
