package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-request-shield/internal/ratelimit"
)

func testRateLimit(rules []ratelimit.Rule) *RateLimitMiddleware {
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Options{
		Rules:          rules,
		BurstThreshold: 100,
	})
	return NewRateLimitMiddleware(limiter, testRecorder())
}

func TestRateLimit_HeadersOnAllow(t *testing.T) {
	m := testRateLimit([]ratelimit.Rule{
		{Pattern: "/api/", Window: time.Minute, Max: 10},
	})
	handler := m.Handler(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/posts", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, "1m0s", rec.Header().Get("X-RateLimit-Window"))
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	m := testRateLimit([]ratelimit.Rule{
		{Pattern: "/api/auth/login", Window: 15 * time.Minute, Max: 2, AuthSensitive: true},
	})
	handler := m.Handler(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/auth/login", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/auth/login", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Contains(t, rec.Body.String(), "too many requests")
}

func TestRateLimit_UnmatchedPathPassesWithoutHeaders(t *testing.T) {
	m := testRateLimit([]ratelimit.Rule{
		{Pattern: "/api/auth/login", Window: time.Minute, Max: 5},
	})
	handler := m.Handler(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_BucketsPerClientIP(t *testing.T) {
	m := testRateLimit([]ratelimit.Rule{
		{Pattern: "/api/", Window: time.Minute, Max: 1},
	})
	handler := m.Handler(okHandler())

	first := httptest.NewRequest("GET", "/api/posts", nil)
	first.Header.Set("X-Real-IP", "203.0.113.10")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	again := httptest.NewRequest("GET", "/api/posts", nil)
	again.Header.Set("X-Real-IP", "203.0.113.10")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, again)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	other := httptest.NewRequest("GET", "/api/posts", nil)
	other.Header.Set("X-Real-IP", "203.0.113.99")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}
