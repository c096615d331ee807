package model

import "time"

// SessionRecord is the server-side record of a logged-in client. The ID is
// 32 bytes of randomness, hex-encoded, and never derived from user data.
type SessionRecord struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	User      AuthUser  `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	IsActive  bool      `json:"is_active"`
}

func (s SessionRecord) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
