// Package token issues and verifies signed session tokens.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the session lifetime when the caller does not ask for one (7 days).
const DefaultTTL = 7 * 24 * time.Hour

// Claims is what a verified token says about its bearer.
type Claims struct {
	UserID    string
	Login     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Expired   bool
}

// sessionClaims carries millisecond issue and expiry instants next to the
// registered second-precision ones; Verify trusts the millisecond pair.
type sessionClaims struct {
	Login       string `json:"login"`
	IssuedAtMs  int64  `json:"iat_ms,omitempty"`
	ExpiresAtMs int64  `json:"exp_ms,omitempty"`
	jwt.RegisteredClaims
}

// Service issues HS256 session tokens carrying user id, login and expiry.
type Service struct {
	secret []byte
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs a token service signing with secret.
func New(secret []byte, opts ...Option) *Service {
	s := &Service{secret: secret, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Issue creates a signed token for the given identity. ttl <= 0 selects DefaultTTL.
func (s *Service) Issue(userID, login string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("empty user id")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := s.now()
	exp := now.Add(ttl)
	claims := sessionClaims{
		Login:       login,
		IssuedAtMs:  now.UnixMilli(),
		ExpiresAtMs: exp.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
			// NumericDate truncates; round up so exp never precedes exp_ms
			ExpiresAt: jwt.NewNumericDate(exp.Add(jwt.TimePrecision - 1)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify decodes token. It returns nil for malformed, forged or wrongly signed input, and
// Claims with Expired set once now is past the expiry. It never returns an error.
func (s *Service) Verify(token string) *Claims {
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !parsed.Valid {
		return nil
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return nil
	}
	out := &Claims{
		UserID:    claims.Subject,
		Login:     claims.Login,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.ExpiresAtMs > 0 {
		out.ExpiresAt = time.UnixMilli(claims.ExpiresAtMs)
	}
	switch {
	case claims.IssuedAtMs > 0:
		out.IssuedAt = time.UnixMilli(claims.IssuedAtMs)
	case claims.IssuedAt != nil:
		out.IssuedAt = claims.IssuedAt.Time
	}
	out.Expired = s.now().After(out.ExpiresAt)
	return out
}
