// internal/auth/session.go
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken is returned when no credential has been configured.
var ErrNoToken = errors.New("no auth token")

// TokenSource holds the opaque credential used to stamp every request to
// the match service. The token is issued elsewhere; the client only reads it.
type TokenSource struct {
	mu    sync.RWMutex
	token string
}

// NewTokenSource wraps an already issued token.
func NewTokenSource(token string) *TokenSource {
	return &TokenSource{token: token}
}

// Token returns the current credential.
func (s *TokenSource) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNoToken
	}
	return s.token, nil
}

// Set replaces the credential, e.g. after a refresh.
func (s *TokenSource) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Claims is the subset of the token the client cares about.
type Claims struct {
	Username  string
	ExpiresAt time.Time // zero when the token never expires
}

// ParseClaims decodes the token without verifying its signature. The match
// service is the verifier; the client only needs to know who it is.
func ParseClaims(tokenString string) (Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return Claims{}, fmt.Errorf("jwt parse error: %w", err)
	}

	username, ok := claims["username"].(string)
	if !ok || username == "" {
		return Claims{}, fmt.Errorf("missing username in jwt")
	}

	out := Claims{Username: username}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Claims{}, fmt.Errorf("invalid exp in jwt: %w", err)
	}
	if exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// Username returns the identity the local player is matched against in the roster.
func (s *TokenSource) Username() (string, error) {
	tok, err := s.Token()
	if err != nil {
		return "", err
	}
	c, err := ParseClaims(tok)
	if err != nil {
		return "", err
	}
	return c.Username, nil
}

// Expired reports whether the token carries an exp claim in the past.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
