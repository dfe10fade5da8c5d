package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates the bearer token failed signature or claim checks.
var ErrInvalidToken = errors.New("auth: invalid token")

// Verifier validates HS256 bearer tokens signed with the platform's shared
// JWT secret and maps their claims onto an Identity.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	clock    func() time.Time
}

// VerifierConfig configures a Verifier. Issuer and Audience are optional; when
// set, tokens must carry matching claims.
type VerifierConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Clock    func() time.Time
}

// NewVerifier constructs a token verifier.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Verifier{
		secret:   []byte(secret),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		clock:    clock,
	}, nil
}

type platformClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Verify parses and validates the raw token, returning the caller's identity.
func (v *Verifier) Verify(raw string) (*Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.clock),
	)

	var claims platformClaims
	token, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}
	if v.audience != "" && !containsAudience(claims.Audience, v.audience) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Identity{
		UserID: subject,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

func containsAudience(audience jwt.ClaimStrings, want string) bool {
	for _, a := range audience {
		if a == want {
			return true
		}
	}
	return false
}
