package token

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-request-shield/internal/model"
)

type Type string

const (
	TypeAccess            Type = "access"
	TypeRefresh           Type = "refresh"
	TypePasswordReset     Type = "password_reset"
	TypeEmailVerification Type = "email_verification"
)

// roleHierarchy is a total order: a user holds a required role if their own
// role ranks at least as high.
var roleHierarchy = map[string]int{
	"viewer": 1,
	"editor": 2,
	"admin":  3,
}

func HasRole(userRole string, requiredRole string) bool {
	userRank, ok := roleHierarchy[userRole]
	if !ok {
		return false
	}
	requiredRank, ok := roleHierarchy[requiredRole]
	if !ok {
		return false
	}
	return userRank >= requiredRank
}

func ValidRole(role string) bool {
	_, ok := roleHierarchy[role]
	return ok
}

// Payload holds the verified claims of a signed token. It is produced by
// VerifyToken and never mutated afterwards.
type Payload struct {
	UserID    int64
	Email     string
	Username  string
	Role      string
	Type      Type
	SessionID string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Issuer    string
	Audience  string
}

type Service struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	verifyTTL  time.Duration
}

func NewService(secret string, issuer string, audience string, accessTTL, refreshTTL, resetTTL, verifyTTL time.Duration) *Service {
	return &Service{
		secret:     []byte(secret),
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		resetTTL:   resetTTL,
		verifyTTL:  verifyTTL,
	}
}

func (s *Service) CreateAccessToken(user model.AuthUser, sessionID string) (string, error) {
	return s.sign(user, TypeAccess, sessionID, s.accessTTL)
}

func (s *Service) CreateRefreshToken(user model.AuthUser, sessionID string) (string, error) {
	return s.sign(user, TypeRefresh, sessionID, s.refreshTTL)
}

func (s *Service) CreatePasswordResetToken(user model.AuthUser) (string, error) {
	return s.sign(user, TypePasswordReset, "", s.resetTTL)
}

func (s *Service) CreateEmailVerificationToken(user model.AuthUser) (string, error) {
	return s.sign(user, TypeEmailVerification, "", s.verifyTTL)
}

// CreateTokenPair issues the access and refresh tokens concurrently and
// returns the pair together with the access token's absolute expiry.
func (s *Service) CreateTokenPair(user model.AuthUser, sessionID string) (model.TokenPair, error) {
	var (
		wg                    sync.WaitGroup
		access, refresh       string
		accessErr, refreshErr error
	)

	expiresAt := time.Now().UTC().Add(s.accessTTL)

	wg.Add(2)
	go func() {
		defer wg.Done()
		access, accessErr = s.CreateAccessToken(user, sessionID)
	}()
	go func() {
		defer wg.Done()
		refresh, refreshErr = s.CreateRefreshToken(user, sessionID)
	}()
	wg.Wait()

	if accessErr != nil {
		return model.TokenPair{}, accessErr
	}
	if refreshErr != nil {
		return model.TokenPair{}, refreshErr
	}

	return model.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
		ExpiresAt:    expiresAt,
		User:         user,
	}, nil
}

func (s *Service) sign(user model.AuthUser, tokenType Type, sessionID string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":      user.ID,
		"email":    user.Email,
		"username": user.Username,
		"role":     user.Role,
		"typ":      string(tokenType),
		"jti":      uuid.NewString(),
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
		"iss":      s.issuer,
		"aud":      s.audience,
	}
	if sessionID != "" {
		claims["sid"] = sessionID
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks the signature, issuer, audience, and expiry, then
// validates that the required claims are present and correctly typed. The
// returned errors are the model sentinels; they carry no signing detail.
func (s *Service) VerifyToken(tokenString string) (*Payload, error) {
	parsed, err := jwt.Parse(tokenString,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, model.ErrTokenInvalid
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
	)
	if err != nil {
		return nil, classifyJWTError(err)
	}
	if !parsed.Valid {
		return nil, model.ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, model.ErrTokenInvalid
	}

	return payloadFromClaims(claims)
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return model.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return model.ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenNotValidYet):
		return model.ErrTokenInvalid
	default:
		return model.ErrTokenVerification
	}
}

func payloadFromClaims(claims jwt.MapClaims) (*Payload, error) {
	sub, ok := claims["sub"].(float64)
	if !ok || sub <= 0 {
		return nil, model.ErrTokenInvalid
	}

	typ, ok := claims["typ"].(string)
	if !ok || typ == "" {
		return nil, model.ErrTokenInvalid
	}

	role, ok := claims["role"].(string)
	if !ok || !ValidRole(role) {
		return nil, model.ErrTokenInvalid
	}

	payload := &Payload{
		UserID: int64(sub),
		Role:   role,
		Type:   Type(typ),
	}
	payload.Email, _ = claims["email"].(string)
	payload.Username, _ = claims["username"].(string)
	payload.SessionID, _ = claims["sid"].(string)
	payload.TokenID, _ = claims["jti"].(string)
	payload.Issuer, _ = claims["iss"].(string)

	if aud, err := claims.GetAudience(); err == nil && len(aud) > 0 {
		payload.Audience = aud[0]
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		payload.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		payload.ExpiresAt = exp.Time
	}

	return payload, nil
}

// ValidatePayload is a pure structural check: required fields present, token
// is an access token, and the role satisfies the required one when given.
func ValidatePayload(payload *Payload, requiredRole string) bool {
	if payload == nil || payload.UserID <= 0 || !ValidRole(payload.Role) {
		return false
	}
	if payload.Type != TypeAccess {
		return false
	}
	if requiredRole != "" && !HasRole(payload.Role, requiredRole) {
		return false
	}
	return true
}
