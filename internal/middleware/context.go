package middleware

import (
	"context"

	"go-request-shield/internal/model"
	"go-request-shield/internal/token"
)

type contextKey string

const (
	cspNonceContextKey  contextKey = "csp_nonce"
	requestIDContextKey contextKey = "request_id"
	claimsContextKey    contextKey = "auth_claims"
	sessionContextKey   contextKey = "auth_session"
	metaContextKey      contextKey = "request_meta"
)

// requestMeta is installed by the logging stage and filled by the auth stage
// deeper in the chain, so the completion log can correlate the authenticated
// identity even though inner context values never propagate back out.
type requestMeta struct {
	userID    int64
	sessionID string
}

func withRequestMeta(ctx context.Context) (context.Context, *requestMeta) {
	meta := &requestMeta{}
	return context.WithValue(ctx, metaContextKey, meta), meta
}

func markAuthenticated(ctx context.Context, userID int64, sessionID string) {
	if meta, ok := ctx.Value(metaContextKey).(*requestMeta); ok {
		meta.userID = userID
		meta.sessionID = sessionID
	}
}

// CSPNonceFromContext exposes the per-request nonce so templates can tag
// inline scripts and styles.
func CSPNonceFromContext(ctx context.Context) (string, bool) {
	nonce, ok := ctx.Value(cspNonceContextKey).(string)
	return nonce, ok
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

func ClaimsFromContext(ctx context.Context) (*token.Payload, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*token.Payload)
	return claims, ok
}

func SessionFromContext(ctx context.Context) (model.SessionRecord, bool) {
	record, ok := ctx.Value(sessionContextKey).(model.SessionRecord)
	return record, ok
}
