package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go-request-shield/internal/middleware"
	"go-request-shield/internal/model"
	"go-request-shield/internal/service"
	"go-request-shield/internal/session"
	"go-request-shield/internal/token"
	"go-request-shield/pkg/apierror"
)

const (
	sessionCookieName = "session"
	refreshCookieName = "refresh_token"
	authCookieMaxAge  = 7 * 24 * time.Hour
)

type AuthHandler struct {
	service    *service.AuthService
	tokens     *token.Service
	csrf       *middleware.CSRFGuard
	production bool
}

func NewAuthHandler(service *service.AuthService, tokens *token.Service, csrf *middleware.CSRFGuard, production bool) *AuthHandler {
	return &AuthHandler{service: service, tokens: tokens, csrf: csrf, production: production}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.Validation("invalid JSON body", ""))
		return
	}

	meta := sessionMetadata(r)
	pair, err := h.service.Login(r.Context(), payload, meta)
	if err != nil {
		writeError(w, err)
		return
	}

	sessionID := h.sessionIDFromPair(pair)
	h.setAuthCookies(w, sessionID, pair.RefreshToken)
	writeSuccess(w, http.StatusOK, pair)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.Validation("invalid JSON body", ""))
		return
	}

	user, err := h.service.Register(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, user)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	refreshToken := ""
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		refreshToken = cookie.Value
	}
	if refreshToken == "" {
		var payload model.RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
			refreshToken = strings.TrimSpace(payload.RefreshToken)
		}
	}
	if refreshToken == "" {
		writeError(w, apierror.Validation("refresh_token is required", "refresh_token"))
		return
	}

	pair, err := h.service.Refresh(r.Context(), refreshToken)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setAuthCookies(w, h.sessionIDFromPair(pair), pair.RefreshToken)
	writeSuccess(w, http.StatusOK, pair)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	sessionID := ""
	if record, ok := middleware.SessionFromContext(r.Context()); ok {
		sessionID = record.ID
	} else if cookie, err := r.Cookie(sessionCookieName); err == nil {
		sessionID = cookie.Value
	}

	if err := h.service.Logout(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}

	h.clearAuthCookies(w)
	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	user, err := h.service.GetUser(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user)
}

// IssueCSRF hands the client a fresh double-submit token. The token rides
// both the response body (for the request header) and the cookie.
func (h *AuthHandler) IssueCSRF(w http.ResponseWriter, r *http.Request) {
	value, err := h.csrf.IssueToken(w)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"csrf_token": value})
}

// sessionIDFromPair recovers the session ID bound into the freshly issued
// access token, so the session cookie always mirrors the credential.
func (h *AuthHandler) sessionIDFromPair(pair model.TokenPair) string {
	payload, err := h.tokens.VerifyToken(pair.AccessToken)
	if err != nil {
		return ""
	}
	return payload.SessionID
}

func (h *AuthHandler) setAuthCookies(w http.ResponseWriter, sessionID string, refreshToken string) {
	maxAge := int(authCookieMaxAge.Seconds())
	if sessionID != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    sessionID,
			Path:     "/",
			MaxAge:   maxAge,
			HttpOnly: true,
			Secure:   h.production,
			SameSite: http.SameSiteStrictMode,
		})
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{sessionCookieName, refreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.production,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func sessionMetadata(r *http.Request) session.Metadata {
	return session.Metadata{
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}
