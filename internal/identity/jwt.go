package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"classroomd/internal/enum"
)

// Claims are the custom fields carried in an access token, grounded on
// ollamamax's internal/auth.Claims (trimmed to what this system actually
// authorizes on: user identity and role).
type Claims struct {
	Email string    `json:"email"`
	Role  enum.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HMAC-signed access tokens. One secret,
// one token type — this system has no refresh-token or service-token
// surface, unlike the teacher's multi-token JWTManager.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, issuer: "classroomd"}
}

// Issue signs a new access token for user.
func (tm *TokenManager) Issue(user *UserContext) (string, time.Time, error) {
	now := time.Now()
	expiry := now.Add(tm.ttl)
	claims := &Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
			Issuer:    tm.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("identity: signing token: %w", err)
	}
	return signed, expiry, nil
}

// Verify parses and validates raw, returning the authenticated UserContext.
func (tm *TokenManager) Verify(raw string) (*UserContext, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithIssuer(tm.issuer))
	if err != nil {
		return nil, fmt.Errorf("identity: verifying token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("identity: invalid token claims")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("identity: invalid subject claim: %w", err)
	}

	return &UserContext{UserID: userID, Email: claims.Email, Role: claims.Role}, nil
}
