package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the validity window of an issued token.
const DefaultTokenTTL = 24 * time.Hour

// SigningKey is the HMAC key derived once from the configured secret.
// It is never mutated after construction.
type SigningKey struct {
	material []byte
}

// NewSigningKey derives the process signing key from secret.
func NewSigningKey(secret string) (SigningKey, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return SigningKey{}, errors.New("auth: signing secret is empty")
	}
	return SigningKey{material: []byte(secret)}, nil
}

// TokenService issues and validates HS256 bearer tokens.
type TokenService struct {
	key      SigningKey
	ttl      time.Duration
	issuer   string
	audience string
	now      func() time.Time
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithTTL overrides the validity window.
func WithTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) { s.ttl = ttl }
}

// WithIssuer sets the iss claim on issued tokens.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) { s.issuer = strings.TrimSpace(issuer) }
}

// WithAudience sets the aud claim on issued tokens and requires it on validation.
func WithAudience(audience string) TokenOption {
	return func(s *TokenService) { s.audience = strings.TrimSpace(audience) }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService constructs a token service around key.
func NewTokenService(key SigningKey, opts ...TokenOption) *TokenService {
	s := &TokenService{
		key: key,
		ttl: DefaultTokenTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue produces a signed token whose subject is identity.
func (s *TokenService) Issue(identity string) (string, error) {
	if identity == "" {
		return "", errors.New("auth: empty identity")
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   identity,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key.material)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Validate returns the subject embedded in token. The boolean is false for
// malformed tokens, signature mismatches, expired tokens and tokens
// without a subject.
func (s *TokenService) Validate(token string) (string, bool) {
	subject, err := s.parse(token)
	if err != nil {
		return "", false
	}
	return subject, true
}

func (s *TokenService) parse(token string) (string, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(s.audience))
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.key.material, nil
	}, parserOpts...)
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}
