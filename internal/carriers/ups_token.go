package carriers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/storeops/rates-api/internal/domain"
)

const (
	upsTokenPath   = "/security/v1/oauth/token"
	upsRefreshPath = "/security/v1/oauth/refresh"

	// tokenExpirySkew avoids presenting a token that expires mid-request.
	tokenExpirySkew = 60 * time.Second
)

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// UPSTokenManager owns the OAuth2 token lifecycle for UPS carrier accounts.
// Concurrent refreshes for the same account are collapsed into a single
// in-flight grant (singleflight), and the winning token is persisted
// last-writer-wins through the optional TokenPersister.
type UPSTokenManager struct {
	httpClient Doer
	clock      func() time.Time
	logger     Logger
	persist    TokenPersister

	flight singleflight.Group

	mu     sync.Mutex
	tokens map[string]cachedToken
}

// UPSTokenManagerConfig configures a UPSTokenManager.
type UPSTokenManagerConfig struct {
	HTTPClient Doer
	Clock      func() time.Time
	Logger     Logger
	Persister  TokenPersister
}

// NewUPSTokenManager constructs a token manager shared by all UPS adapters.
func NewUPSTokenManager(cfg UPSTokenManagerConfig) *UPSTokenManager {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &UPSTokenManager{
		httpClient: httpClient,
		clock:      clock,
		logger:     logger,
		persist:    cfg.Persister,
		tokens:     make(map[string]cachedToken),
	}
}

// Token returns a valid bearer token for the account, refreshing or
// re-granting at most once. A failed refresh surfaces an AuthError; the caller
// must not proceed to the rate call.
func (m *UPSTokenManager) Token(ctx context.Context, account domain.CarrierAccount, baseURL string) (string, error) {
	if m == nil {
		return "", &AuthError{Carrier: domain.CarrierUPS, Reason: "token manager not configured"}
	}

	now := m.clock().UTC()

	m.mu.Lock()
	cached, ok := m.tokens[account.ID]
	m.mu.Unlock()
	if ok && now.Add(tokenExpirySkew).Before(cached.expiresAt) {
		return cached.accessToken, nil
	}

	if account.Credentials.TokenValid(now, tokenExpirySkew) {
		return account.Credentials.AccessToken, nil
	}

	result, err, _ := m.flight.Do(account.ID, func() (any, error) {
		return m.obtain(ctx, account, baseURL)
	})
	if err != nil {
		return "", err
	}
	token, ok := result.(cachedToken)
	if !ok {
		return "", &AuthError{Carrier: domain.CarrierUPS, Reason: "unexpected token result"}
	}
	return token.accessToken, nil
}

// Invalidate drops any cached token for the account, forcing the next call to
// re-authenticate.
func (m *UPSTokenManager) Invalidate(accountID string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	delete(m.tokens, accountID)
	m.mu.Unlock()
}

type upsTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

func (m *UPSTokenManager) obtain(ctx context.Context, account domain.CarrierAccount, baseURL string) (cachedToken, error) {
	creds := account.Credentials
	if strings.TrimSpace(creds.ClientID) == "" || strings.TrimSpace(creds.ClientSecret) == "" {
		return cachedToken{}, &AuthError{Carrier: domain.CarrierUPS, Reason: "missing client credentials"}
	}

	var (
		path string
		form url.Values
	)
	if creds.RefreshToken != "" {
		path = upsRefreshPath
		form = url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {creds.RefreshToken},
		}
	} else {
		path = upsTokenPath
		form = url.Values{"grant_type": {"client_credentials"}}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+path, strings.NewReader(form.Encode()))
	if err != nil {
		return cachedToken{}, &AuthError{Carrier: domain.CarrierUPS, Reason: "build token request", Err: err}
	}
	req.SetBasicAuth(creds.ClientID, creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return cachedToken{}, &AuthError{Carrier: domain.CarrierUPS, Reason: "token request failed", Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return cachedToken{}, &AuthError{Carrier: domain.CarrierUPS, Reason: "read token response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return cachedToken{}, &AuthError{
			Carrier: domain.CarrierUPS,
			Reason:  fmt.Sprintf("token endpoint returned %d", resp.StatusCode),
			Err:     errors.New(truncate(string(body), 256)),
		}
	}

	var payload upsTokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return cachedToken{}, &AuthError{Carrier: domain.CarrierUPS, Reason: "decode token response", Err: err}
	}
	if payload.AccessToken == "" {
		return cachedToken{}, &AuthError{Carrier: domain.CarrierUPS, Reason: "token response missing access_token"}
	}

	expiresIn := 3600
	if payload.ExpiresIn != "" {
		if parsed, err := strconv.Atoi(payload.ExpiresIn); err == nil && parsed > 0 {
			expiresIn = parsed
		}
	}

	now := m.clock().UTC()
	token := cachedToken{
		accessToken: payload.AccessToken,
		expiresAt:   now.Add(time.Duration(expiresIn) * time.Second),
	}

	m.mu.Lock()
	m.tokens[account.ID] = token
	m.mu.Unlock()

	if m.persist != nil {
		refresh := payload.RefreshToken
		if refresh == "" {
			refresh = creds.RefreshToken
		}
		if err := m.persist(ctx, account.ID, token.accessToken, refresh, token.expiresAt); err != nil {
			m.logger(ctx, "ups.token.persist_failed", map[string]any{
				"account_id": account.ID,
				"error":      err.Error(),
			})
		}
	}

	m.logger(ctx, "ups.token.granted", map[string]any{
		"account_id": account.ID,
		"expires_at": token.expiresAt.Format(time.RFC3339),
		"refreshed":  creds.RefreshToken != "",
	})

	return token, nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
