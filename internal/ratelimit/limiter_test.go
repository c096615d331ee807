package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(rules []Rule, burstThreshold int) (*Limiter, *time.Time) {
	now := time.Now()
	l := New(NewMemoryStore(), Options{
		Rules:          rules,
		BurstWindow:    10 * time.Second,
		BurstThreshold: burstThreshold,
	})
	l.nowFunc = func() time.Time { return now }
	return l, &now
}

func TestLimiter_WindowExhaustion(t *testing.T) {
	rules := []Rule{{Pattern: "/api/", Window: time.Minute, Max: 3}}
	l, _ := newTestLimiter(rules, 1000)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := l.Check(ctx, "203.0.113.7", "/api/posts", "ua")
		require.True(t, d.Allowed, "request %d should pass", i+1)
		assert.Equal(t, 3, d.Limit)
		assert.Equal(t, 3-i-1, d.Remaining)
	}

	d := l.Check(ctx, "203.0.113.7", "/api/posts", "ua")
	assert.False(t, d.Allowed)
	assert.GreaterOrEqual(t, d.RetryAfter, 300, "first penalty should be at least five minutes")
}

func TestLimiter_ConcurrentChecksNeverExceedLimit(t *testing.T) {
	rules := []Rule{{Pattern: "/api/", Window: time.Minute, Max: 5}}
	l, _ := newTestLimiter(rules, 1000)
	ctx := context.Background()

	const workers = 40
	var wg sync.WaitGroup
	var allowed atomic.Int32

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check(ctx, "203.0.113.7", "/api/posts", "ua").Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), allowed.Load(),
		"racing requests at the window edge must not slip past the limit")
}

func TestLimiter_BlockExpiry(t *testing.T) {
	rules := []Rule{{Pattern: "/api/", Window: time.Minute, Max: 1}}
	l, now := newTestLimiter(rules, 1000)
	ctx := context.Background()

	require.True(t, l.Check(ctx, "203.0.113.7", "/api/posts", "ua").Allowed)
	require.False(t, l.Check(ctx, "203.0.113.7", "/api/posts", "ua").Allowed)

	// Still inside the penalty window.
	*now = now.Add(time.Minute)
	assert.False(t, l.Check(ctx, "203.0.113.7", "/api/posts", "ua").Allowed)

	// Past the penalty and past the sliding window: the bucket recovers.
	*now = now.Add(2 * MaxPenalty)
	assert.True(t, l.Check(ctx, "203.0.113.7", "/api/posts", "ua").Allowed)
}

func TestLimiter_BurstDetection(t *testing.T) {
	l, _ := newTestLimiter([]Rule{{Pattern: "/never-matches-anything", Window: time.Minute, Max: 1000}}, 5)
	ctx := context.Background()

	// Spread across distinct paths: burst detection is keyed by IP alone.
	for i := 0; i < 5; i++ {
		d := l.Check(ctx, "198.51.100.4", fmt.Sprintf("/path-%d", i), "ua")
		require.True(t, d.Allowed, "request %d should pass", i+1)
	}

	d := l.Check(ctx, "198.51.100.4", "/path-final", "ua")
	assert.False(t, d.Allowed)
	assert.True(t, d.Burst)
	assert.GreaterOrEqual(t, d.RetryAfter, 1)

	// A different IP is unaffected.
	assert.True(t, l.Check(ctx, "198.51.100.5", "/path-x", "ua").Allowed)
}

func TestLimiter_ManualBlock(t *testing.T) {
	rules := []Rule{{Pattern: "/", Window: time.Minute, Max: 100}}
	l, _ := newTestLimiter(rules, 1000)
	ctx := context.Background()

	require.True(t, l.Check(ctx, "203.0.113.9", "/", "ua").Allowed)

	require.NoError(t, l.BlockIP(ctx, "203.0.113.9", time.Hour))
	d := l.Check(ctx, "203.0.113.9", "/", "ua")
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, 0)

	require.NoError(t, l.UnblockIP(ctx, "203.0.113.9"))
	assert.True(t, l.Check(ctx, "203.0.113.9", "/", "ua").Allowed)
}

func TestLimiter_AuthSensitiveBucketsSplitByUserAgent(t *testing.T) {
	rules := []Rule{{Pattern: "/api/auth/login", Window: 15 * time.Minute, Max: 1, AuthSensitive: true}}
	l, _ := newTestLimiter(rules, 1000)
	ctx := context.Background()

	require.True(t, l.Check(ctx, "203.0.113.2", "/api/auth/login", "browser-a").Allowed)
	assert.False(t, l.Check(ctx, "203.0.113.2", "/api/auth/login", "browser-a").Allowed)

	// Same NAT address, different client: separate bucket.
	assert.True(t, l.Check(ctx, "203.0.113.2", "/api/auth/login", "browser-b").Allowed)
}

func TestLimiter_PrivateBypass(t *testing.T) {
	l := New(NewMemoryStore(), Options{
		Rules:          []Rule{{Pattern: "/", Window: time.Minute, Max: 1}},
		BurstThreshold: 1,
		BypassPrivate:  true,
	})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		assert.True(t, l.Check(ctx, "127.0.0.1", "/", "ua").Allowed)
		assert.True(t, l.Check(ctx, "192.168.1.20", "/", "ua").Allowed)
	}
}

type failingStore struct{}

func (failingStore) CountAndAdd(context.Context, string, time.Time, time.Duration) (int, error) {
	return 0, errors.New("store down")
}
func (failingStore) Block(context.Context, string, time.Time) error { return errors.New("store down") }
func (failingStore) Unblock(context.Context, string) error          { return errors.New("store down") }
func (failingStore) BlockedUntil(context.Context, string) (time.Time, error) {
	return time.Time{}, errors.New("store down")
}
func (failingStore) Cleanup(context.Context, time.Duration) (int, error) {
	return 0, errors.New("store down")
}

func TestLimiter_FailsOpenOnStoreErrors(t *testing.T) {
	l := New(failingStore{}, Options{
		Rules:          []Rule{{Pattern: "/", Window: time.Minute, Max: 1}},
		BurstThreshold: 1,
	})

	for i := 0; i < 10; i++ {
		assert.True(t, l.Check(context.Background(), "203.0.113.50", "/", "ua").Allowed)
	}
}

func TestPenaltyEscalation(t *testing.T) {
	assert.Equal(t, 5*time.Minute, penaltyFor(0))
	assert.Equal(t, 10*time.Minute, penaltyFor(1))
	assert.Equal(t, 20*time.Minute, penaltyFor(2))
	assert.Equal(t, 40*time.Minute, penaltyFor(3))
	assert.Equal(t, time.Hour, penaltyFor(4), "penalty caps at one hour")
	assert.Equal(t, time.Hour, penaltyFor(100))
}

func TestRuleTable_Resolution(t *testing.T) {
	table := newRuleTable(DefaultRules(time.Minute, 200))

	login, ok := table.resolve("/api/auth/login")
	require.True(t, ok)
	assert.Equal(t, 5, login.Max)
	assert.True(t, login.AuthSensitive)

	api, ok := table.resolve("/api/posts")
	require.True(t, ok)
	assert.Equal(t, "/api/", api.Pattern)

	admin, ok := table.resolve("/admin/events")
	require.True(t, ok)
	assert.Equal(t, "/admin/", admin.Pattern)

	fallback, ok := table.resolve("/about")
	require.True(t, ok)
	assert.Equal(t, "/", fallback.Pattern)
	assert.Equal(t, 200, fallback.Max)
}
