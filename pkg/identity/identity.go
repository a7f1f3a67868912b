// Package identity issues opaque auth tokens for registered users.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer mints an auth token bound to a subject identifier. The domain only
// needs the token to be opaque and verifiable by the mobile clients'
// backend; it never inspects it again.
type Issuer interface {
	IssueToken(subjectID string) (string, error)
}

// JWTIssuer signs HS256 tokens carrying the subject id, replacing the
// hosted custom-token service the original deployment relied on.
type JWTIssuer struct {
	key      []byte
	issuer   string
	tokenTTL time.Duration
}

// NewJWTIssuer builds an issuer from a signing key. ttl of zero disables
// expiry.
func NewJWTIssuer(signingKey, issuer string, ttl time.Duration) (*JWTIssuer, error) {
	if signingKey == "" {
		return nil, errors.New("identity: signing key required")
	}
	if issuer == "" {
		issuer = "ridelink"
	}
	return &JWTIssuer{key: []byte(signingKey), issuer: issuer, tokenTTL: ttl}, nil
}

// IssueToken mints a signed token with the subject claim set.
func (i *JWTIssuer) IssueToken(subjectID string) (string, error) {
	if subjectID == "" {
		return "", errors.New("identity: subject id required")
	}
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": subjectID,
		"iss": i.issuer,
		"iat": now.Unix(),
	}
	if i.tokenTTL > 0 {
		claims["exp"] = now.Add(i.tokenTTL).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("identity: sign token: %w", err)
	}
	return signed, nil
}

// Subject verifies a token produced by this issuer and returns its subject.
// Used by operators to spot-check issued tokens; the serving path never
// calls it.
func (i *JWTIssuer) Subject(tokenString string) (string, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("identity: unexpected signing method %v", t.Header["alg"])
		}
		return i.key, nil
	}, jwt.WithIssuer(i.issuer))
	if err != nil {
		return "", fmt.Errorf("identity: parse token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", errors.New("identity: invalid token")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errors.New("identity: token missing subject")
	}
	return sub, nil
}
