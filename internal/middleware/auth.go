package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go-request-shield/internal/metrics"
	"go-request-shield/internal/model"
	"go-request-shield/internal/session"
	"go-request-shield/internal/threat"
	"go-request-shield/internal/token"
)

type AuthMiddleware struct {
	tokens   *token.Service
	sessions session.Store
	recorder *threat.Recorder
}

func NewAuthMiddleware(tokens *token.Service, sessions session.Store, recorder *threat.Recorder) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, sessions: sessions, recorder: recorder}
}

// RequireAuth authenticates the request from the bearer token. A token that
// carries a session ID is only as alive as the session: the store is the
// single source of truth for revocation. Tokens without a session ID are
// honored until natural expiry, an accepted window bounded by the short
// access-token lifetime.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			m.reject(w, r, "missing or invalid authorization header")
			return
		}

		payload, err := m.tokens.VerifyToken(strings.TrimSpace(header[7:]))
		if err != nil {
			message := "invalid token"
			if errors.Is(err, model.ErrTokenExpired) {
				message = "token expired"
			}
			m.reject(w, r, message)
			return
		}

		if !token.ValidatePayload(payload, "") {
			m.reject(w, r, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, payload)

		if payload.SessionID != "" {
			record, err := m.sessions.Get(ctx, payload.SessionID)
			if err != nil || !session.IsValid(record) {
				m.reject(w, r, "session is no longer valid")
				return
			}

			if session.FingerprintMismatch(record, ClientIP(r), r.UserAgent()) {
				// Log-only policy: NAT and mobile handoff make strict
				// enforcement too false-positive-prone.
				event := model.NewSecurityEvent(model.EventSessionAnomaly, model.SeverityMedium,
					"session fingerprint changed", ClientIP(r))
				event.UserID = record.UserID
				event.UserAgent = r.UserAgent()
				event.RequestID = RequestIDFromContext(ctx)
				m.recorder.Record(event)
			}

			ctx = context.WithValue(ctx, sessionContextKey, record)
		}

		markAuthenticated(ctx, payload.UserID, payload.SessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole enforces the role hierarchy: the caller's role must rank at
// least as high as the required one.
func (m *AuthMiddleware) RequireRole(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				m.reject(w, r, "authentication required")
				return
			}

			if !token.HasRole(claims.Role, requiredRole) {
				writeFailure(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, message string) {
	metrics.AuthFailures.Inc()

	event := model.NewSecurityEvent(model.EventAuthFailure, model.SeverityLow, message, ClientIP(r))
	event.UserAgent = r.UserAgent()
	event.RequestID = RequestIDFromContext(r.Context())
	event.Metadata = map[string]string{"path": r.URL.Path}
	m.recorder.Record(event)

	// Interactive admin pages get a login redirect; API clients get JSON.
	if strings.HasPrefix(r.URL.Path, "/admin") && acceptsHTML(r) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	writeFailure(w, http.StatusUnauthorized, message)
}

func acceptsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
