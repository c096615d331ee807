package ratelimit

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"net"
	"time"
)

const (
	// Progressive penalty bounds: the first over-limit block lasts
	// MinPenalty, doubling per excess request up to MaxPenalty.
	MinPenalty        = 5 * time.Minute
	MaxPenalty        = time.Hour
	PenaltyMultiplier = 2
)

// Decision is the outcome of a rate-limit check, carrying everything the
// middleware needs for the X-RateLimit and Retry-After headers.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	Window     time.Duration
	RetryAfter int
	Burst      bool
}

type Options struct {
	Rules          []Rule
	BurstWindow    time.Duration
	BurstThreshold int
	// BypassPrivate skips limiting for loopback and private-range clients.
	// Only enabled outside production.
	BypassPrivate bool
}

type Limiter struct {
	store   Store
	table   *ruleTable
	opts    Options
	nowFunc func() time.Time
}

func New(store Store, opts Options) *Limiter {
	if opts.BurstWindow <= 0 {
		opts.BurstWindow = 10 * time.Second
	}
	if opts.BurstThreshold <= 0 {
		opts.BurstThreshold = 50
	}
	if len(opts.Rules) == 0 {
		opts.Rules = DefaultRules(time.Minute, 200)
	}

	return &Limiter{
		store:   store,
		table:   newRuleTable(opts.Rules),
		opts:    opts,
		nowFunc: time.Now,
	}
}

// Check runs the burst detector and the per-route sliding window for one
// request. Store failures fail open: availability wins over this layer.
func (l *Limiter) Check(ctx context.Context, ip string, path string, userAgent string) Decision {
	now := l.nowFunc()

	if l.opts.BypassPrivate && isPrivateAddress(ip) {
		return Decision{Allowed: true}
	}

	if d, blocked := l.checkBlocked(ctx, manualKey(ip), now); blocked {
		return d
	}

	if d, blocked := l.checkBurst(ctx, ip, now); blocked {
		return d
	}

	rule, matched := l.table.resolve(path)
	if !matched {
		return Decision{Allowed: true}
	}

	key := bucketKey(ip, path, userAgent, rule.AuthSensitive)

	if d, blocked := l.checkBlocked(ctx, key, now); blocked {
		return d
	}

	// The request is counted before the limit check, so the rejected attempt
	// itself escalates the penalty under sustained abuse.
	count, err := l.store.CountAndAdd(ctx, key, now, rule.Window)
	if err != nil {
		slog.Warn("rate limit store unavailable, failing open", "error", err)
		return Decision{Allowed: true}
	}

	if count > rule.Max {
		excess := count - rule.Max - 1
		penalty := penaltyFor(excess)
		until := now.Add(penalty)

		if err := l.store.Block(ctx, key, until); err != nil {
			slog.Warn("rate limit store block failed", "error", err)
		}

		return Decision{
			Limit:      rule.Max,
			Window:     rule.Window,
			Reset:      until,
			RetryAfter: retryAfterSeconds(until, now),
		}
	}

	return Decision{
		Allowed:   true,
		Limit:     rule.Max,
		Remaining: rule.Max - count,
		Reset:     now.Add(rule.Window),
		Window:    rule.Window,
	}
}

// checkBurst is the always-on DDoS detector, keyed purely by IP so bursts
// spread across many paths are still caught.
func (l *Limiter) checkBurst(ctx context.Context, ip string, now time.Time) (Decision, bool) {
	key := burstKey(ip)

	if d, blocked := l.checkBlocked(ctx, key, now); blocked {
		d.Burst = true
		return d, true
	}

	count, err := l.store.CountAndAdd(ctx, key, now, l.opts.BurstWindow)
	if err != nil {
		slog.Warn("burst store unavailable, failing open", "error", err)
		return Decision{}, false
	}

	if count > l.opts.BurstThreshold {
		until := now.Add(MinPenalty)
		if err := l.store.Block(ctx, key, until); err != nil {
			slog.Warn("burst store block failed", "error", err)
		}
		return Decision{
			Burst:      true,
			Limit:      l.opts.BurstThreshold,
			Window:     l.opts.BurstWindow,
			Reset:      until,
			RetryAfter: retryAfterSeconds(until, now),
		}, true
	}

	return Decision{}, false
}

func (l *Limiter) checkBlocked(ctx context.Context, key string, now time.Time) (Decision, bool) {
	until, err := l.store.BlockedUntil(ctx, key)
	if err != nil {
		slog.Warn("rate limit store unavailable, failing open", "error", err)
		return Decision{}, false
	}
	if until.IsZero() || !now.Before(until) {
		return Decision{}, false
	}

	return Decision{
		Reset:      until,
		RetryAfter: retryAfterSeconds(until, now),
	}, true
}

// BlockIP imposes a manual block that takes precedence over algorithmic
// decisions.
func (l *Limiter) BlockIP(ctx context.Context, ip string, duration time.Duration) error {
	if duration <= 0 {
		duration = MaxPenalty
	}
	if err := l.store.Block(ctx, manualKey(ip), l.nowFunc().Add(duration)); err != nil {
		return fmt.Errorf("block ip %s: %w", ip, err)
	}
	return nil
}

// UnblockIP lifts both manual and burst blocks for the address.
func (l *Limiter) UnblockIP(ctx context.Context, ip string) error {
	if err := l.store.Unblock(ctx, manualKey(ip)); err != nil {
		return fmt.Errorf("unblock ip %s: %w", ip, err)
	}
	if err := l.store.Unblock(ctx, burstKey(ip)); err != nil {
		return fmt.Errorf("unblock ip %s: %w", ip, err)
	}
	return nil
}

// StartCleanupTicker prunes idle buckets until ctx is done. Cleanup is
// idempotent and safe to run concurrently with request-driven mutation.
func (l *Limiter) StartCleanupTicker(ctx context.Context, interval time.Duration, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := l.store.Cleanup(ctx, maxIdle)
			if err != nil {
				slog.Warn("rate limit cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Debug("rate limit buckets pruned", "removed", removed)
			}
		}
	}
}

func penaltyFor(excess int) time.Duration {
	if excess < 0 {
		excess = 0
	}
	if excess > 16 {
		return MaxPenalty
	}

	penalty := time.Duration(float64(MinPenalty) * math.Pow(PenaltyMultiplier, float64(excess)))
	if penalty > MaxPenalty {
		return MaxPenalty
	}
	return penalty
}

func retryAfterSeconds(until time.Time, now time.Time) int {
	secs := int(math.Ceil(until.Sub(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func bucketKey(ip string, path string, userAgent string, authSensitive bool) string {
	key := ip + ":" + path
	if authSensitive {
		key += ":" + userAgentHash(userAgent)
	}
	return key
}

func manualKey(ip string) string { return "manual:" + ip }
func burstKey(ip string) string  { return "burst:" + ip }

// userAgentHash is a short FNV digest: enough to separate clients sharing an
// IP without storing the full string in every key.
func userAgentHash(userAgent string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userAgent))
	return fmt.Sprintf("%08x", h.Sum32())
}

func isPrivateAddress(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return parsed.IsLoopback() || parsed.IsPrivate()
}
