package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid clearance token")
	ErrTokenExpired = errors.New("clearance token expired")
)

// ClearanceClaims prove one challenge was passed by one identity. The
// credential endpoint validates the token before running its own check, so
// a clearance cannot be transplanted onto a different identity.
type ClearanceClaims struct {
	IdentityKey string `json:"identity_key"`
	ChallengeID string `json:"challenge_id"`
	jwt.RegisteredClaims
}

// TokenManager mints and validates clearance tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// MintClearance issues a short-lived token bound to the identity and the
// challenge that was just solved.
func (tm *TokenManager) MintClearance(identityKey, challengeID string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(tm.ttl)

	claims := ClearanceClaims{
		IdentityKey: identityKey,
		ChallengeID: challengeID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    "gauntlet",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign clearance token: %w", err)
	}

	return signed, expiresAt, nil
}

// ValidateClearance parses and verifies a clearance token, checking it is
// bound to the expected identity.
func (tm *TokenManager) ValidateClearance(tokenString, identityKey string) (*ClearanceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ClearanceClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tm.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*ClearanceClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.IdentityKey != identityKey {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
