package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"go-request-shield/internal/model"
	"go-request-shield/internal/password"
	"go-request-shield/internal/session"
	"go-request-shield/internal/token"
	"go-request-shield/pkg/apierror"
)

// UserStore is the persistence surface the auth flow needs.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, u model.User) (model.User, error)
	UpdatePasswordHash(ctx context.Context, userID int64, passwordHash string) error
}

type AuthService struct {
	users      UserStore
	sessions   session.Store
	tokens     *token.Service
	hasher     *password.Hasher
	sessionTTL time.Duration
}

func NewAuthService(users UserStore, sessions session.Store, tokens *token.Service, hasher *password.Hasher, sessionTTL time.Duration) *AuthService {
	return &AuthService{
		users:      users,
		sessions:   sessions,
		tokens:     tokens,
		hasher:     hasher,
		sessionTTL: sessionTTL,
	}
}

// Login verifies credentials, creates a session, and issues a token pair
// bound to it. Password verification always runs, even for unknown emails,
// so response timing does not reveal account existence.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest, meta session.Metadata) (model.TokenPair, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			s.hasher.TimingSafeVerify(req.Password, "")
			return model.TokenPair{}, model.ErrInvalidCredentials
		}
		return model.TokenPair{}, fmt.Errorf("look up user: %w", err)
	}

	if !s.hasher.TimingSafeVerify(req.Password, user.PasswordHash) {
		return model.TokenPair{}, model.ErrInvalidCredentials
	}
	if !user.IsActive {
		return model.TokenPair{}, model.ErrInvalidCredentials
	}

	// Transparent cost upgrade: rehash at login, the only time the
	// plaintext is available. A failure here never blocks the login.
	if s.hasher.NeedsRehash(user.PasswordHash) {
		if newHash, hashErr := s.hasher.Hash(req.Password); hashErr == nil {
			if updateErr := s.users.UpdatePasswordHash(ctx, user.ID, newHash); updateErr != nil {
				slog.Warn("password rehash not persisted", "user_id", user.ID, "error", updateErr)
			}
		}
	}

	record, err := s.sessions.Create(ctx, user.Summary(), meta)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("create session: %w", err)
	}

	pair, err := s.tokens.CreateTokenPair(user.Summary(), record.ID)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	return pair, nil
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.AuthUser, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)
	role := strings.ToLower(strings.TrimSpace(req.Role))

	if _, err := mail.ParseAddress(email); err != nil {
		return model.AuthUser{}, apierror.Validation("invalid email address", "email")
	}
	if username == "" {
		return model.AuthUser{}, apierror.Validation("username is required", "username")
	}
	if role == "" {
		role = "viewer"
	}
	if !token.ValidRole(role) {
		return model.AuthUser{}, apierror.Validation("invalid role", "role")
	}

	if strength := password.ValidateStrength(req.Password); !strength.IsValid {
		return model.AuthUser{}, fmt.Errorf("%w: %s", model.ErrWeakPassword, strings.Join(strength.Feedback, "; "))
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return model.AuthUser{}, fmt.Errorf("check email exists: %w", err)
	}
	if exists {
		return model.AuthUser{}, model.ErrUserAlreadyExists
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return model.AuthUser{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user, err := s.users.Create(ctx, model.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return model.AuthUser{}, err
	}

	slog.Info("user registered", "user_id", user.ID, "role", user.Role)
	return user.Summary(), nil
}

// Refresh rotates the token pair. The refresh token must verify, be of
// refresh type, and its session must still be alive; the session expiry is
// extended so active clients are not logged out mid-use.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	payload, err := s.tokens.VerifyToken(refreshToken)
	if err != nil {
		return model.TokenPair{}, err
	}
	if payload.Type != token.TypeRefresh {
		return model.TokenPair{}, model.ErrTokenInvalid
	}

	user := model.AuthUser{
		ID:       payload.UserID,
		Email:    payload.Email,
		Username: payload.Username,
		Role:     payload.Role,
	}

	sessionID := payload.SessionID
	if sessionID != "" {
		record, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return model.TokenPair{}, model.ErrSessionNotFound
		}
		if !session.IsValid(record) {
			return model.TokenPair{}, model.ErrSessionRevoked
		}

		if extended, err := s.sessions.Extend(ctx, sessionID, s.sessionTTL); err == nil {
			record = extended
		}
		user = record.User
	}

	pair, err := s.tokens.CreateTokenPair(user, sessionID)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	return pair, nil
}

func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Invalidate(ctx, sessionID); err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return nil
		}
		return fmt.Errorf("invalidate session: %w", err)
	}
	return nil
}

// LogoutAll revokes every session the user holds.
func (s *AuthService) LogoutAll(ctx context.Context, userID int64) error {
	if err := s.sessions.InvalidateUser(ctx, userID); err != nil {
		return fmt.Errorf("invalidate user sessions: %w", err)
	}
	return nil
}

func (s *AuthService) GetUser(ctx context.Context, userID int64) (model.AuthUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.AuthUser{}, err
	}
	return user.Summary(), nil
}
