package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"go-request-shield/internal/model"
)

// Store is the single source of truth for session liveness. A valid token
// signature is necessary but not sufficient: when a token carries a session
// ID, the session must also be alive here.
type Store interface {
	Create(ctx context.Context, user model.AuthUser, meta Metadata) (model.SessionRecord, error)
	Get(ctx context.Context, sessionID string) (model.SessionRecord, error)
	Extend(ctx context.Context, sessionID string, duration time.Duration) (model.SessionRecord, error)
	Invalidate(ctx context.Context, sessionID string) error
	InvalidateUser(ctx context.Context, userID int64) error
}

// Metadata is the security fingerprint captured at login.
type Metadata struct {
	IPAddress string
	UserAgent string
}

// IsValid reports whether a session is alive: active and not expired.
func IsValid(s model.SessionRecord) bool {
	return s.IsActive && !s.Expired(time.Now().UTC())
}

// NewID returns a 32-byte random identifier, hex encoded.
func NewID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// FingerprintMismatch compares the stored fingerprint against the current
// request. A mismatch is reported but does not invalidate the session:
// strict enforcement breaks clients behind NAT and mobile networks, so the
// caller records a session_anomaly event instead.
func FingerprintMismatch(s model.SessionRecord, ip string, userAgent string) bool {
	if s.IPAddress != "" && ip != "" && s.IPAddress != ip {
		return true
	}
	if s.UserAgent != "" && userAgent != "" && s.UserAgent != userAgent {
		return true
	}
	return false
}
