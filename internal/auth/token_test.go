package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestService(t *testing.T, secret string, opts ...TokenOption) *TokenService {
	t.Helper()
	key, err := NewSigningKey(secret)
	if err != nil {
		t.Fatalf("NewSigningKey error: %v", err)
	}
	return NewTokenService(key, opts...)
}

func TestIssueAndValidate(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, "super-secret")
	token, err := svc.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	subject, ok := svc.Validate(token)
	if !ok {
		t.Fatal("expected token to validate")
	}
	if subject != "user-123" {
		t.Fatalf("subject mismatch: got %q want %q", subject, "user-123")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	svc := newTestService(t, "secret", WithClock(func() time.Time { return clock() }))

	token, err := svc.Issue("u1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, ok := svc.Validate(token); !ok {
		t.Fatal("expected token to be valid before expiry")
	}

	later := now.Add(DefaultTokenTTL + time.Second)
	clock = func() time.Time { return later }
	if _, ok := svc.Validate(token); ok {
		t.Fatal("expected token to be invalid after expiry")
	}
}

func TestValidateRejectsNegativeTTL(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, "secret", WithTTL(-time.Second))
	token, err := svc.Issue("u1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, ok := svc.Validate(token); ok {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	token, err := newTestService(t, "right-secret").Issue("u2")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, ok := newTestService(t, "wrong-secret").Validate(token); ok {
		t.Fatal("expected signature mismatch to be rejected")
	}
}

func TestValidateRejectsMalformedToken(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, "k")
	for _, token := range []string{"", "not.a.jwt", "abc"} {
		if _, ok := svc.Validate(token); ok {
			t.Fatalf("expected %q to be rejected", token)
		}
	}
}

func TestValidateRejectsMissingSubject(t *testing.T) {
	t.Parallel()

	secret := "k"
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	if _, ok := newTestService(t, secret).Validate(token); ok {
		t.Fatal("expected token without subject to be rejected")
	}
}

func TestValidateRejectsTokenWithoutExpiry(t *testing.T) {
	t.Parallel()

	secret := "k"
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u"}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	if _, ok := newTestService(t, secret).Validate(token); ok {
		t.Fatal("expected token without exp to be rejected")
	}
}

func TestValidateEnforcesAudience(t *testing.T) {
	t.Parallel()

	issuer := newTestService(t, "k", WithAudience("mobile"))
	token, err := issuer.Issue("u3")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, ok := issuer.Validate(token); !ok {
		t.Fatal("expected matching audience to validate")
	}
	if _, ok := newTestService(t, "k", WithAudience("web")).Validate(token); ok {
		t.Fatal("expected audience mismatch to be rejected")
	}
}

func TestNewSigningKeyRejectsBlankSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewSigningKey("   "); err == nil || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("expected empty secret error, got %v", err)
	}
}
