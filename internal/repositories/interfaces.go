package repositories

import (
	"context"
	"errors"
	"time"

	domain "github.com/storeops/rates-api/internal/domain"
)

// ErrCarrierAccountNotFound indicates the requested carrier configuration row
// does not exist.
var ErrCarrierAccountNotFound = errors.New("carrier account repository: not found")

// CarrierAccountRepository persists per-merchant carrier configurations and
// their credential payloads.
type CarrierAccountRepository interface {
	// ListActive returns the active carrier accounts for a merchant; inactive
	// accounts are never queried for rates.
	ListActive(ctx context.Context, userID string) ([]domain.CarrierAccount, error)
	// Get returns one account by id.
	Get(ctx context.Context, id string) (domain.CarrierAccount, error)
	// UpdateTokens writes refreshed OAuth tokens back onto the credential row.
	// The write is a single unconditional UPDATE: concurrent refreshes resolve
	// last-writer-wins, which is safe because either winner's token is valid.
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error
}

// Registry exposes typed repository accessors and lifecycle hooks for
// dependency injection.
type Registry interface {
	Close(ctx context.Context) error
	CarrierAccounts() CarrierAccountRepository
}
