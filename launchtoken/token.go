// Package launchtoken issues and verifies the signed tokens embedded in
// agent-launch deep links. Tokens are stateless and self-contained:
// verification needs only the signing key, never a database lookup.
package launchtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenType tags launch tokens so they can never be confused with
	// other token kinds signed by the same key.
	TokenType = "LAUNCH_AGENT"

	// Version of the claim layout.
	Version = 1

	// DefaultTTL matches the fix-context store TTL.
	DefaultTTL = 7 * 24 * time.Hour
)

var (
	// ErrInvalid indicates a malformed token or a bad signature.
	ErrInvalid = errors.New("invalid launch token")
	// ErrExpired indicates a validly signed token past its expiry.
	// Distinct from ErrInvalid: the user-facing messages differ
	// ("no longer available" vs "malformed link").
	ErrExpired = errors.New("launch token expired")
)

// Claims is the signed payload of a launch token.
type Claims struct {
	Version       int    `json:"ver"`
	Type          string `json:"typ"`
	Agent         string `json:"agent"`
	FixContextRef string `json:"ref"`
	jwt.RegisteredClaims
}

// Service signs and verifies launch tokens with an HMAC key.
type Service struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewService creates a token service. ttl <= 0 selects DefaultTTL.
func NewService(key []byte, ttl time.Duration) (*Service, error) {
	if len(key) == 0 {
		return nil, errors.New("signing key must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		key: key,
		ttl: ttl,
		now: time.Now,
	}, nil
}

// Issue signs a token binding a fix-context reference to a target agent.
func (s *Service) Issue(agent, fixContextID string) (string, error) {
	if agent == "" {
		return "", errors.New("agent must not be empty")
	}
	if fixContextID == "" {
		return "", errors.New("fix context id must not be empty")
	}

	now := s.now()
	claims := &Claims{
		Version:       Version,
		Type:          TokenType,
		Agent:         agent,
		FixContextRef: fixContextID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    "stitch",
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign launch token: %w", err)
	}

	return token, nil
}

// Verify checks signature and expiry and returns the bound agent and
// fix-context reference. Expired-but-valid tokens return ErrExpired;
// everything else wrong returns ErrInvalid.
func (s *Service) Verify(tokenString string) (agent, fixContextID string, err error) {
	claims := &Claims{}
	_, err = jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.key, nil
		},
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", ErrExpired
		}
		return "", "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if claims.Type != TokenType || claims.Agent == "" || claims.FixContextRef == "" {
		return "", "", ErrInvalid
	}

	return claims.Agent, claims.FixContextRef, nil
}
