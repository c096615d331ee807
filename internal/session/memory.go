package session

import (
	"context"
	"sync"
	"time"

	"go-request-shield/internal/model"
)

// MemoryStore keeps sessions in a mutex-protected map. It is the default
// backend for single-instance deployments; the pgx-backed repository serves
// multi-instance ones.
type MemoryStore struct {
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]model.SessionRecord
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		sessions: map[string]model.SessionRecord{},
	}
}

func (s *MemoryStore) Create(ctx context.Context, user model.AuthUser, meta Metadata) (model.SessionRecord, error) {
	id, err := NewID()
	if err != nil {
		return model.SessionRecord{}, err
	}

	now := time.Now().UTC()
	record := model.SessionRecord{
		ID:        id,
		UserID:    user.ID,
		User:      user,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		IsActive:  true,
	}

	s.mu.Lock()
	s.sessions[id] = record
	s.mu.Unlock()

	return record, nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) (model.SessionRecord, error) {
	s.mu.RLock()
	record, exists := s.sessions[sessionID]
	s.mu.RUnlock()

	if !exists {
		return model.SessionRecord{}, model.ErrSessionNotFound
	}
	return record, nil
}

func (s *MemoryStore) Extend(ctx context.Context, sessionID string, duration time.Duration) (model.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.sessions[sessionID]
	if !exists {
		return model.SessionRecord{}, model.ErrSessionNotFound
	}
	if !record.IsActive {
		return model.SessionRecord{}, model.ErrSessionRevoked
	}
	if record.Expired(time.Now().UTC()) {
		return model.SessionRecord{}, model.ErrSessionExpired
	}

	record.ExpiresAt = time.Now().UTC().Add(duration)
	s.sessions[sessionID] = record
	return record, nil
}

func (s *MemoryStore) Invalidate(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.sessions[sessionID]
	if !exists {
		return model.ErrSessionNotFound
	}

	record.IsActive = false
	s.sessions[sessionID] = record
	return nil
}

func (s *MemoryStore) InvalidateUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, record := range s.sessions {
		if record.UserID == userID && record.IsActive {
			record.IsActive = false
			s.sessions[id] = record
		}
	}
	return nil
}

// Cleanup drops expired and revoked sessions. Safe to run concurrently with
// request-driven mutation.
func (s *MemoryStore) Cleanup() int {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, record := range s.sessions {
		if !record.IsActive || record.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// StartCleanupTicker runs Cleanup on a fixed interval until ctx is done.
func (s *MemoryStore) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}
