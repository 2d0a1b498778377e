// Package token issues and verifies the HS256 bearer tokens of the HTTP API.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kilianp07/evstation/core/clock"
	"github.com/kilianp07/evstation/core/model"
)

const issuer = "evstation"

// Claims is the token payload.
type Claims struct {
	UserID string     `json:"uid"`
	Role   model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Service signs and validates tokens with a shared secret.
type Service struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewService returns a token service. A non-positive ttl defaults to 24h.
func NewService(secret string, ttl time.Duration, clk clock.Clock) (*Service, error) {
	if secret == "" {
		return nil, errors.New("token: secret is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{secret: []byte(secret), ttl: ttl, clock: clk}, nil
}

// Issue signs a token for the user.
func (s *Service) Issue(u model.User) (string, time.Time, error) {
	if u.ID == "" {
		return "", time.Time{}, errors.New("token: user id is required")
	}
	now := s.clock.Now().UTC()
	exp := now.Add(s.ttl)
	claims := Claims{
		UserID: u.ID,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies raw and returns its claims.
func (s *Service) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	if !tok.Valid || claims.UserID == "" {
		return nil, errors.New("token: invalid claims")
	}
	return claims, nil
}
