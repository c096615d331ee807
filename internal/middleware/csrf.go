package middleware

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"go-request-shield/internal/metrics"
	"go-request-shield/internal/model"
	"go-request-shield/internal/threat"
)

const (
	CSRFCookieName = "csrf_token"
	CSRFHeaderName = "X-CSRF-Token"
)

// CSRFGuard implements the double-submit-cookie pattern: state-changing
// requests must carry a header token matching the cookie token. Fails
// closed.
type CSRFGuard struct {
	ttl        time.Duration
	production bool
	recorder   *threat.Recorder
}

func NewCSRFGuard(ttl time.Duration, production bool, recorder *threat.Recorder) *CSRFGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CSRFGuard{ttl: ttl, production: production, recorder: recorder}
}

func (g *CSRFGuard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		headerToken := r.Header.Get(CSRFHeaderName)
		cookie, err := r.Cookie(CSRFCookieName)

		if headerToken == "" || err != nil || cookie.Value == "" || !tokensMatch(headerToken, cookie.Value) {
			metrics.CSRFFailures.Inc()

			event := model.NewSecurityEvent(model.EventCSRFFailure, model.SeverityMedium,
				"CSRF token missing or mismatched", ClientIP(r))
			event.UserAgent = r.UserAgent()
			event.RequestID = RequestIDFromContext(r.Context())
			event.Metadata = map[string]string{"path": r.URL.Path}
			g.recorder.Record(event)

			writeFailure(w, http.StatusForbidden, "invalid CSRF token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// IssueToken mints a fresh token, sets the cookie, and returns the token so
// the client can echo it in the request header.
func (g *CSRFGuard) IssueToken(w http.ResponseWriter) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	token := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(g.ttl.Seconds()),
		HttpOnly: true,
		Secure:   g.production,
		SameSite: http.SameSiteStrictMode,
	})

	return token, nil
}

// tokensMatch hashes both sides before the constant-time compare so a length
// difference cannot leak through an early exit.
func tokensMatch(a string, b string) bool {
	hashA := sha256.Sum256([]byte(a))
	hashB := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(hashA[:], hashB[:]) == 1
}
