package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store holds sliding-window buckets. The limiter algorithm is backend
// agnostic: the in-memory store serves single-instance deployments, the
// Redis store shares state between instances.
type Store interface {
	// CountAndAdd prunes timestamps older than now-window, records the
	// current request, and returns the bucket size including it. Prune,
	// append, and count are one atomic step, so concurrent requests at the
	// edge of the limit cannot all slip through between a read and a write.
	CountAndAdd(ctx context.Context, key string, now time.Time, window time.Duration) (int, error)
	// Block marks the bucket blocked until the given instant.
	Block(ctx context.Context, key string, until time.Time) error
	// Unblock clears a block immediately.
	Unblock(ctx context.Context, key string) error
	// BlockedUntil returns the block expiry, or the zero time when the
	// bucket is not blocked.
	BlockedUntil(ctx context.Context, key string) (time.Time, error)
	// Cleanup removes buckets idle longer than maxIdle and not blocked.
	Cleanup(ctx context.Context, maxIdle time.Duration) (int, error)
}

type memoryBucket struct {
	requests     []time.Time
	blockedUntil time.Time
	lastSeen     time.Time
}

// MemoryStore keeps buckets in a mutex-protected map, the same shape the
// session store uses. Two requests racing on the same bucket serialize on
// the lock so counts are never lost.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: map[string]*memoryBucket{}}
}

func (s *MemoryStore) getOrCreate(key string, now time.Time) *memoryBucket {
	bucket, exists := s.buckets[key]
	if !exists {
		bucket = &memoryBucket{}
		s.buckets[key] = bucket
	}
	bucket.lastSeen = now
	return bucket
}

func (s *MemoryStore) CountAndAdd(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.getOrCreate(key, now)
	cutoff := now.Add(-window)

	kept := bucket.requests[:0]
	for _, ts := range bucket.requests {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	bucket.requests = append(kept, now)

	return len(bucket.requests), nil
}

func (s *MemoryStore) Block(ctx context.Context, key string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.getOrCreate(key, time.Now())
	bucket.blockedUntil = until
	return nil
}

func (s *MemoryStore) Unblock(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bucket, exists := s.buckets[key]; exists {
		bucket.blockedUntil = time.Time{}
	}
	return nil
}

func (s *MemoryStore) BlockedUntil(ctx context.Context, key string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, exists := s.buckets[key]
	if !exists {
		return time.Time{}, nil
	}
	return bucket.blockedUntil, nil
}

func (s *MemoryStore) Cleanup(ctx context.Context, maxIdle time.Duration) (int, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, bucket := range s.buckets {
		if now.Before(bucket.blockedUntil) {
			continue
		}
		if now.Sub(bucket.lastSeen) > maxIdle {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed, nil
}
