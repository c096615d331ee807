package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-request-shield/internal/model"
)

const testSecret = "test-secret-key-with-enough-length-0123456789"

func newTestService() *Service {
	return NewService(testSecret, "request-shield", "request-shield-clients",
		15*time.Minute, 168*time.Hour, 30*time.Minute, 24*time.Hour)
}

func testUser() model.AuthUser {
	return model.AuthUser{ID: 42, Email: "ada@example.com", Username: "ada", Role: "editor"}
}

func TestService_CreateAndVerifyAccessToken(t *testing.T) {
	svc := newTestService()

	signed, err := svc.CreateAccessToken(testUser(), "sess-123")
	require.NoError(t, err)

	payload, err := svc.VerifyToken(signed)
	require.NoError(t, err)
	assert.Equal(t, int64(42), payload.UserID)
	assert.Equal(t, "ada@example.com", payload.Email)
	assert.Equal(t, "editor", payload.Role)
	assert.Equal(t, TypeAccess, payload.Type)
	assert.Equal(t, "sess-123", payload.SessionID)
	assert.NotEmpty(t, payload.TokenID)
	assert.Equal(t, "request-shield", payload.Issuer)
	assert.Equal(t, "request-shield-clients", payload.Audience)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), payload.ExpiresAt, 5*time.Second)
}

func TestService_CreateTokenPair(t *testing.T) {
	svc := newTestService()

	pair, err := svc.CreateTokenPair(testUser(), "sess-123")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(900), pair.ExpiresIn)
	assert.Equal(t, testUser(), pair.User)

	access, err := svc.VerifyToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, TypeAccess, access.Type)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), access.ExpiresAt, 5*time.Second)

	refresh, err := svc.VerifyToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TypeRefresh, refresh.Type)
	assert.Equal(t, "sess-123", refresh.SessionID)
	assert.WithinDuration(t, time.Now().Add(168*time.Hour), refresh.ExpiresAt, 5*time.Second)
}

func TestService_VerifyTokenFailures(t *testing.T) {
	svc := newTestService()

	t.Run("malformed", func(t *testing.T) {
		_, err := svc.VerifyToken("not.a.token")
		assert.ErrorIs(t, err, model.ErrTokenMalformed)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewService("a-completely-different-secret-0123456789abc", "request-shield",
			"request-shield-clients", time.Minute, time.Hour, time.Hour, time.Hour)
		signed, err := other.CreateAccessToken(testUser(), "")
		require.NoError(t, err)

		_, err = svc.VerifyToken(signed)
		assert.ErrorIs(t, err, model.ErrTokenInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		expired := NewService(testSecret, "request-shield", "request-shield-clients",
			-time.Minute, time.Hour, time.Hour, time.Hour)
		signed, err := expired.CreateAccessToken(testUser(), "")
		require.NoError(t, err)

		_, err = svc.VerifyToken(signed)
		assert.ErrorIs(t, err, model.ErrTokenExpired)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewService(testSecret, "someone-else", "request-shield-clients",
			time.Minute, time.Hour, time.Hour, time.Hour)
		signed, err := other.CreateAccessToken(testUser(), "")
		require.NoError(t, err)

		_, err = svc.VerifyToken(signed)
		assert.ErrorIs(t, err, model.ErrTokenInvalid)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other := NewService(testSecret, "request-shield", "someone-else",
			time.Minute, time.Hour, time.Hour, time.Hour)
		signed, err := other.CreateAccessToken(testUser(), "")
		require.NoError(t, err)

		_, err = svc.VerifyToken(signed)
		assert.ErrorIs(t, err, model.ErrTokenInvalid)
	})

	t.Run("tampered payload", func(t *testing.T) {
		signed, err := svc.CreateAccessToken(testUser(), "")
		require.NoError(t, err)

		tampered := signed[:len(signed)-4] + "AAAA"
		_, err = svc.VerifyToken(tampered)
		assert.Error(t, err)
	})
}

func TestValidatePayload(t *testing.T) {
	svc := newTestService()

	signed, err := svc.CreateAccessToken(testUser(), "")
	require.NoError(t, err)
	payload, err := svc.VerifyToken(signed)
	require.NoError(t, err)

	assert.True(t, ValidatePayload(payload, ""))
	assert.True(t, ValidatePayload(payload, "viewer"))
	assert.True(t, ValidatePayload(payload, "editor"))
	assert.False(t, ValidatePayload(payload, "admin"))

	refresh, err := svc.CreateRefreshToken(testUser(), "")
	require.NoError(t, err)
	refreshPayload, err := svc.VerifyToken(refresh)
	require.NoError(t, err)
	assert.False(t, ValidatePayload(refreshPayload, ""), "refresh tokens never authorize API calls")

	assert.False(t, ValidatePayload(nil, ""))
}

func TestRoleHierarchy(t *testing.T) {
	assert.True(t, HasRole("admin", "viewer"))
	assert.True(t, HasRole("admin", "admin"))
	assert.True(t, HasRole("editor", "viewer"))
	assert.False(t, HasRole("editor", "admin"))
	assert.False(t, HasRole("viewer", "editor"))
	assert.False(t, HasRole("ghost", "viewer"))
	assert.False(t, HasRole("admin", "ghost"))

	assert.True(t, ValidRole("viewer"))
	assert.False(t, ValidRole("superuser"))
}
