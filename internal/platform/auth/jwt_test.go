package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-0123456789"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestVerifier(t *testing.T, cfg VerifierConfig) *Verifier {
	t.Helper()
	if cfg.Secret == "" {
		cfg.Secret = testSecret
	}
	verifier, err := NewVerifier(cfg)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return verifier
}

func TestVerifyValidToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(t, VerifierConfig{
		Issuer:   "storeops",
		Audience: "rates-api",
		Clock:    func() time.Time { return now },
	})

	raw := signToken(t, testSecret, jwt.MapClaims{
		"sub":   "user-42",
		"email": "merchant@example.com",
		"role":  "merchant",
		"iss":   "storeops",
		"aud":   "rates-api",
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
	})

	identity, err := verifier.Verify(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.UserID != "user-42" {
		t.Fatalf("expected user-42, got %q", identity.UserID)
	}
	if identity.Email != "merchant@example.com" || identity.Role != "merchant" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	verifier := newTestVerifier(t, VerifierConfig{Clock: func() time.Time { return now }})

	raw := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-42",
		"exp": now.Add(-time.Minute).Unix(),
	})

	if _, err := verifier.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	verifier := newTestVerifier(t, VerifierConfig{})

	raw := signToken(t, "other-secret", jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := verifier.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsIssuerMismatch(t *testing.T) {
	verifier := newTestVerifier(t, VerifierConfig{Issuer: "storeops"})

	raw := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-42",
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := verifier.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsAudienceMismatch(t *testing.T) {
	verifier := newTestVerifier(t, VerifierConfig{Audience: "rates-api"})

	raw := signToken(t, testSecret, jwt.MapClaims{
		"sub": "user-42",
		"aud": "other-api",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := verifier.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	verifier := newTestVerifier(t, VerifierConfig{})

	raw := signToken(t, testSecret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := verifier.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsUnsignedAlgorithm(t *testing.T) {
	verifier := newTestVerifier(t, VerifierConfig{})

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := verifier.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("alg=none must be rejected, got %v", err)
	}
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	verifier := newTestVerifier(t, VerifierConfig{})
	if _, err := verifier.Verify("   "); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier(VerifierConfig{Secret: "  "}); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
