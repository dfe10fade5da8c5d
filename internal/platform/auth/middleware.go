package auth

import (
	"net/http"
	"strings"

	"github.com/storeops/rates-api/internal/platform/httpx"
)

// Authenticator guards routes behind bearer-token verification.
type Authenticator struct {
	verifier *Verifier
}

// NewAuthenticator constructs an Authenticator around the verifier.
func NewAuthenticator(verifier *Verifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

// RequireAuth rejects requests without a valid bearer token and stores the
// resolved identity on the request context.
func (a *Authenticator) RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if a == nil || a.verifier == nil {
				httpx.WriteError(ctx, w, httpx.NewError("auth_unavailable", "authentication not configured", http.StatusServiceUnavailable))
				return
			}

			token := bearerToken(r)
			if token == "" {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
				return
			}

			identity, err := a.verifier.Verify(token)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "invalid or expired token", http.StatusUnauthorized))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
