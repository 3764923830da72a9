package redis

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/lgn-platform/lgn-api/internal/config"
	"github.com/lgn-platform/lgn-api/internal/domain/users"
)

var testRedisURL string

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		_ = container.Terminate(ctx)
		os.Exit(1)
	}
	testRedisURL = "redis://" + endpoint

	code := m.Run()
	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate redis container: %v\n", err)
	}
	os.Exit(code)
}

func setupTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, config.RedisConfig{Addr: testRedisURL})
	require.NoError(t, err)
	require.NoError(t, client.FlushAll(ctx).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// countingTokens is an in-memory token store that counts lookups.
type countingTokens struct {
	mu     sync.Mutex
	tokens map[string]users.Token
	finds  int
	nextID int64
}

func newCountingTokens() *countingTokens {
	return &countingTokens{tokens: map[string]users.Token{}}
}

func (c *countingTokens) Save(_ context.Context, t users.Token) (*users.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	t.ID = c.nextID
	c.tokens[t.Value] = t
	return &t, nil
}

func (c *countingTokens) FindByValue(_ context.Context, value string) (*users.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finds++
	t, ok := c.tokens[value]
	if !ok {
		return nil, users.ErrTokenNotFound
	}
	return &t, nil
}

func (c *countingTokens) Revoke(_ context.Context, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tokens[value]
	if !ok {
		return users.ErrTokenNotFound
	}
	t.Revoked, t.Expired = true, true
	c.tokens[value] = t
	return nil
}

func (c *countingTokens) Rotate(_ context.Context, userID int64, token users.Token) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var revoked []string
	for v, t := range c.tokens {
		if t.UserID == userID && !t.Revoked && !t.Expired {
			t.Revoked, t.Expired = true, true
			c.tokens[v] = t
			revoked = append(revoked, v)
		}
	}
	c.nextID++
	token.ID = c.nextID
	token.UserID = userID
	c.tokens[token.Value] = token
	return revoked, nil
}

func (c *countingTokens) PurgeInactive(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (c *countingTokens) findCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finds
}

func newTestCache(t *testing.T) (*TokenCache, *countingTokens) {
	t.Helper()
	backing := newCountingTokens()
	return NewTokenCache(setupTestClient(t), backing, time.Minute, zerolog.New(io.Discard)), backing
}

func TestTokenCache_ReadThrough(t *testing.T) {
	cache, backing := newTestCache(t)
	ctx := context.Background()

	_, err := cache.Save(ctx, users.Token{Value: "tok-a", UserID: 7, ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	first, err := cache.FindByValue(ctx, "tok-a")
	require.NoError(t, err)
	second, err := cache.FindByValue(ctx, "tok-a")
	require.NoError(t, err)

	assert.Equal(t, 1, backing.findCount())
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(7), second.UserID)
	assert.True(t, second.Active(time.Now()))
}

func TestTokenCache_NotFoundIsNotCached(t *testing.T) {
	cache, backing := newTestCache(t)
	ctx := context.Background()

	_, err := cache.FindByValue(ctx, "missing")
	assert.ErrorIs(t, err, users.ErrTokenNotFound)
	_, err = cache.FindByValue(ctx, "missing")
	assert.ErrorIs(t, err, users.ErrTokenNotFound)
	assert.Equal(t, 2, backing.findCount())
}

func TestTokenCache_RevokeMarksEntryRevoked(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	_, err := cache.Save(ctx, users.Token{Value: "tok-b", UserID: 1, ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	_, err = cache.FindByValue(ctx, "tok-b")
	require.NoError(t, err)

	require.NoError(t, cache.Revoke(ctx, "tok-b"))

	got, err := cache.FindByValue(ctx, "tok-b")
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	assert.False(t, got.Active(time.Now()))
}

func TestTokenCache_RotateMarksPreviousTokensRevoked(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	_, err := cache.Save(ctx, users.Token{Value: "old", UserID: 3, ExpiresAt: exp})
	require.NoError(t, err)
	_, err = cache.FindByValue(ctx, "old")
	require.NoError(t, err)

	revoked, err := cache.Rotate(ctx, 3, users.Token{Value: "new", ExpiresAt: exp})
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, revoked)

	old, err := cache.FindByValue(ctx, "old")
	require.NoError(t, err)
	assert.True(t, old.Revoked)

	fresh, err := cache.FindByValue(ctx, "new")
	require.NoError(t, err)
	assert.True(t, fresh.Active(time.Now()))
}

func TestTokenCache_LateFillCannotResurrectRevokedToken(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	_, err := cache.Save(ctx, users.Token{Value: "tok-race", UserID: 4, ExpiresAt: exp})
	require.NoError(t, err)
	// A reader loaded the row before the revocation committed.
	stale := &users.Token{ID: 1, Value: "tok-race", UserID: 4, ExpiresAt: exp}

	require.NoError(t, cache.Revoke(ctx, "tok-race"))
	cache.store(ctx, cacheKey("tok-race"), stale)

	got, err := cache.FindByValue(ctx, "tok-race")
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	assert.False(t, got.Active(time.Now()))
}

func TestTokenCache_RevokeWithoutPriorLookupIsCached(t *testing.T) {
	cache, backing := newTestCache(t)
	ctx := context.Background()

	_, err := cache.Save(ctx, users.Token{Value: "tok-cold", UserID: 5, ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	require.NoError(t, cache.Revoke(ctx, "tok-cold"))

	got, err := cache.FindByValue(ctx, "tok-cold")
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	assert.Equal(t, 0, backing.findCount())

	ttl, err := cache.rdb.TTL(ctx, cacheKey("tok-cold")).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, time.Minute)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestTokenCache_EntryTTLBoundedByExpiry(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	_, err := cache.Save(ctx, users.Token{Value: "short", UserID: 1, ExpiresAt: time.Now().Add(10 * time.Second)})
	require.NoError(t, err)
	_, err = cache.FindByValue(ctx, "short")
	require.NoError(t, err)

	ttl, err := cache.rdb.TTL(ctx, cacheKey("short")).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 10*time.Second)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestTokenCache_FallsBackWhenRedisDown(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	backing := newCountingTokens()
	cache := NewTokenCache(client, backing, time.Minute, zerolog.New(io.Discard))
	ctx := context.Background()

	_, err := cache.Save(ctx, users.Token{Value: "tok", UserID: 2, ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	got, err := cache.FindByValue(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.UserID)
	require.NoError(t, cache.Revoke(ctx, "tok"))
}

func TestCacheKey_HashesValue(t *testing.T) {
	key := cacheKey("secret-token")
	assert.Contains(t, key, tokenCachePrefix)
	assert.NotContains(t, key, "secret-token")
	assert.Equal(t, key, cacheKey("secret-token"))
	assert.Len(t, key, len(tokenCachePrefix)+64)
}
