package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-request-shield/internal/model"
	"go-request-shield/internal/session"
	"go-request-shield/internal/token"
)

func newAuthFixture(t *testing.T) (*AuthMiddleware, *token.Service, session.Store) {
	t.Helper()
	tokens := token.NewService("test-secret-key-with-enough-length-0123456789",
		"request-shield", "request-shield-clients",
		15*time.Minute, 168*time.Hour, time.Hour, time.Hour)
	sessions := session.NewMemoryStore(time.Hour)
	return NewAuthMiddleware(tokens, sessions, testRecorder()), tokens, sessions
}

func bearerRequest(path string, accessToken string) *http.Request {
	r := httptest.NewRequest("GET", path, nil)
	r.Header.Set("Authorization", "Bearer "+accessToken)
	return r
}

func TestRequireAuth_MissingOrBadHeader(t *testing.T) {
	m, _, _ := newAuthFixture(t)
	handler := m.RequireAuth(okHandler())

	t.Run("no header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/auth/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("not bearer", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/auth/me", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, bearerRequest("/api/auth/me", "garbage"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireAuth_ValidTokenWithoutSession(t *testing.T) {
	m, tokens, _ := newAuthFixture(t)

	var claims *token.Payload
	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	access, err := tokens.CreateAccessToken(model.AuthUser{ID: 1, Role: "viewer"}, "")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, bearerRequest("/api/auth/me", access))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, claims)
	assert.Equal(t, int64(1), claims.UserID)
}

func TestRequireAuth_RefreshTokenRejected(t *testing.T) {
	m, tokens, _ := newAuthFixture(t)
	handler := m.RequireAuth(okHandler())

	refresh, err := tokens.CreateRefreshToken(model.AuthUser{ID: 1, Role: "viewer"}, "")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, bearerRequest("/api/auth/me", refresh))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_SessionLiveness(t *testing.T) {
	m, tokens, sessions := newAuthFixture(t)
	handler := m.RequireAuth(okHandler())

	user := model.AuthUser{ID: 5, Role: "viewer"}
	record, err := sessions.Create(context.Background(), user, session.Metadata{})
	require.NoError(t, err)

	access, err := tokens.CreateAccessToken(user, record.ID)
	require.NoError(t, err)

	// Alive session: accepted.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, bearerRequest("/api/auth/me", access))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Server-side invalidation rejects the still-unexpired token.
	require.NoError(t, sessions.Invalidate(context.Background(), record.ID))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, bearerRequest("/api/auth/me", access))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_FingerprintMismatchIsLogOnly(t *testing.T) {
	m, tokens, sessions := newAuthFixture(t)
	handler := m.RequireAuth(okHandler())

	user := model.AuthUser{ID: 5, Role: "viewer"}
	record, err := sessions.Create(context.Background(), user, session.Metadata{
		IPAddress: "203.0.113.1",
		UserAgent: "original-ua",
	})
	require.NoError(t, err)

	access, err := tokens.CreateAccessToken(user, record.ID)
	require.NoError(t, err)

	r := bearerRequest("/api/auth/me", access)
	r.Header.Set("X-Real-IP", "198.51.100.9")
	r.Header.Set("User-Agent", "different-ua")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code, "mismatch is recorded, not enforced")
}

func TestRequireRole(t *testing.T) {
	m, tokens, _ := newAuthFixture(t)
	handler := m.RequireAuth(m.RequireRole("admin")(okHandler()))

	t.Run("editor is forbidden", func(t *testing.T) {
		access, err := tokens.CreateAccessToken(model.AuthUser{ID: 1, Role: "editor"}, "")
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, bearerRequest("/admin/events", access))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"success":false,"error":"insufficient permissions"}`, rec.Body.String())
	})

	t.Run("admin passes", func(t *testing.T) {
		access, err := tokens.CreateAccessToken(model.AuthUser{ID: 2, Role: "admin"}, "")
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, bearerRequest("/admin/events", access))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRequireAuth_AdminBrowserRedirect(t *testing.T) {
	m, _, _ := newAuthFixture(t)
	handler := m.RequireAuth(okHandler())

	r := httptest.NewRequest("GET", "/admin/events", nil)
	r.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}
