package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-request-shield/internal/model"
	"go-request-shield/internal/session"
)

// SessionRepository persists sessions in Postgres so liveness survives
// restarts and is shared across instances. It satisfies session.Store.
type SessionRepository struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func NewSessionRepository(pool *pgxpool.Pool, ttl time.Duration) *SessionRepository {
	return &SessionRepository{pool: pool, ttl: ttl}
}

func (r *SessionRepository) Create(ctx context.Context, user model.AuthUser, meta session.Metadata) (model.SessionRecord, error) {
	id, err := session.NewID()
	if err != nil {
		return model.SessionRecord{}, err
	}

	now := time.Now().UTC()
	record := model.SessionRecord{
		ID:        id,
		UserID:    user.ID,
		User:      user,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		IsActive:  true,
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, ip_address, user_agent, is_active, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ID, record.UserID, record.IPAddress, record.UserAgent,
		record.IsActive, record.CreatedAt, record.ExpiresAt)
	if err != nil {
		return model.SessionRecord{}, fmt.Errorf("create session: %w", err)
	}
	return record, nil
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (model.SessionRecord, error) {
	var s model.SessionRecord
	err := r.pool.QueryRow(ctx,
		`SELECT s.id, s.user_id, s.ip_address, s.user_agent, s.is_active, s.created_at, s.expires_at,
		        u.email, u.username, u.role, u.display_name, u.avatar_url
		 FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.id = $1`, sessionID).
		Scan(&s.ID, &s.UserID, &s.IPAddress, &s.UserAgent, &s.IsActive, &s.CreatedAt, &s.ExpiresAt,
			&s.User.Email, &s.User.Username, &s.User.Role, &s.User.DisplayName, &s.User.AvatarURL)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.SessionRecord{}, model.ErrSessionNotFound
	}
	if err != nil {
		return model.SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	s.User.ID = s.UserID
	return s, nil
}

func (r *SessionRepository) Extend(ctx context.Context, sessionID string, duration time.Duration) (model.SessionRecord, error) {
	expiresAt := time.Now().UTC().Add(duration)
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET expires_at = $2 WHERE id = $1 AND is_active`,
		sessionID, expiresAt)
	if err != nil {
		return model.SessionRecord{}, fmt.Errorf("extend session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.SessionRecord{}, model.ErrSessionNotFound
	}
	return r.Get(ctx, sessionID)
}

func (r *SessionRepository) Invalidate(ctx context.Context, sessionID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET is_active = FALSE WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) InvalidateUser(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET is_active = FALSE WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("invalidate user sessions: %w", err)
	}
	return nil
}

// DeleteExpired removes rows past their expiry. Run periodically.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
