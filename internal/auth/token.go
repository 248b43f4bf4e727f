package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Claims describes the parts of a backend-issued JWT the client cares about.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Area  string `json:"area,omitempty"`
	jwt.RegisteredClaims
}

// ErrNoExpiry is returned when a token carries no exp claim.
var ErrNoExpiry = errors.New("token has no expiry")

// InspectToken decodes claims without verifying the signature. The backend is
// the authority on validity; the client only reads exp and identity hints.
func InspectToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// ExpiryOf returns the exp claim of tokenStr.
func ExpiryOf(tokenStr string) (time.Time, error) {
	claims, err := InspectToken(tokenStr)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}
