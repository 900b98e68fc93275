package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/cristata/pkg/contextkeys"
)

var testConfig = RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Second, BurstSize: 2}

func TestMemoryLimiter_Allow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewMemoryLimiter(testConfig)
	limiter.now = func() time.Time { return now }

	allowed := 0
	for i := 0; i < 20; i++ {
		if ok, _ := limiter.Allow(context.Background(), "user"); ok {
			allowed++
		}
	}
	assert.Equal(t, 12, allowed)

	ok, _ := limiter.Allow(context.Background(), "other")
	assert.True(t, ok, "keys have separate buckets")

	now = now.Add(100 * time.Millisecond)
	ok, _ = limiter.Allow(context.Background(), "user")
	assert.True(t, ok, "tokens refill over time")
	ok, _ = limiter.Allow(context.Background(), "user")
	assert.False(t, ok)
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewMemoryLimiter(testConfig)
	limiter.now = func() time.Time { return now }

	_, _ = limiter.Allow(context.Background(), "user")
	now = now.Add(3 * time.Second)
	limiter.Cleanup()
	assert.Empty(t, limiter.buckets)
}

func TestRedisLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := NewRedisLimiter(client, testConfig, "")
	allowed := 0
	for i := 0; i < 20; i++ {
		ok, err := limiter.Allow(context.Background(), "user")
		require.NoError(t, err)
		if ok {
			allowed++
		}
	}
	assert.Equal(t, 12, allowed)
	assert.True(t, mr.Exists("cristata:ratelimit:user"))

	mr.FastForward(2 * time.Second)
	ok, err := limiter.Allow(context.Background(), "user")
	require.NoError(t, err)
	assert.True(t, ok, "the window expires")
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	ok, err := NewRedisLimiter(client, testConfig, "").Allow(context.Background(), "user")
	assert.Error(t, err)
	assert.True(t, ok)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewMemoryLimiter(RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})
	handler := RateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	request := func(user, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/v3/paladin/graphql", nil)
		req.RemoteAddr = ip + ":1234"
		ctx := contextkeys.WithTenant(req.Context(), "paladin")
		if user != "" {
			ctx = contextkeys.WithUserID(ctx, user)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req.WithContext(ctx))
		return w
	}

	assert.Equal(t, http.StatusOK, request("", "10.0.0.1").Code)
	w := request("", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, request("", "10.0.0.2").Code)
	assert.Equal(t, http.StatusOK, request("u1", "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, request("u1", "10.0.0.2").Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))
}
