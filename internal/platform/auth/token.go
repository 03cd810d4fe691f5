package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies the bearer credential attached to every outgoing
// request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a pre-issued bearer token.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	tok := strings.TrimSpace(string(t))
	if tok == "" {
		return "", fmt.Errorf("auth: empty static token")
	}
	return tok, nil
}

const (
	devTokenTTL     = time.Hour
	devTokenRefresh = time.Minute
)

// DevTokenSource mints HS256 tokens for a fixed subject. A token is reused
// until it is within a minute of expiry.
type DevTokenSource struct {
	key     []byte
	subject string
	issuer  string
	now     func() time.Time

	mu      sync.Mutex
	cached  string
	expires time.Time
}

func NewDevTokenSource(signingKey []byte, subject, issuer string) (*DevTokenSource, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("auth: signing key is required")
	}
	if subject == "" {
		subject = DevSubject
	}
	return &DevTokenSource{key: signingKey, subject: subject, issuer: issuer, now: time.Now}, nil
}

func (s *DevTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cached != "" && now.Add(devTokenRefresh).Before(s.expires) {
		return s.cached, nil
	}

	expires := now.Add(devTokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Roles: []string{RolePatient},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	s.cached, s.expires = signed, expires
	return signed, nil
}
