package repositories

import (
	"context"
	"sync"
	"time"

	domain "github.com/storeops/rates-api/internal/domain"
)

// MemoryRegistry provides in-memory repository implementations useful for
// testing and local development.
type MemoryRegistry struct {
	accounts *MemoryCarrierAccountRepository
}

// NewMemoryRegistry constructs a registry seeded with the provided accounts.
func NewMemoryRegistry(accounts ...domain.CarrierAccount) *MemoryRegistry {
	return &MemoryRegistry{accounts: NewMemoryCarrierAccountRepository(accounts...)}
}

// Close implements Registry.
func (r *MemoryRegistry) Close(context.Context) error { return nil }

// CarrierAccounts implements Registry.
func (r *MemoryRegistry) CarrierAccounts() CarrierAccountRepository { return r.accounts }

// MemoryCarrierAccountRepository is a mutex-guarded in-memory account store.
type MemoryCarrierAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]domain.CarrierAccount
}

// NewMemoryCarrierAccountRepository constructs a store seeded with accounts.
func NewMemoryCarrierAccountRepository(accounts ...domain.CarrierAccount) *MemoryCarrierAccountRepository {
	store := &MemoryCarrierAccountRepository{accounts: make(map[string]domain.CarrierAccount, len(accounts))}
	for _, account := range accounts {
		store.accounts[account.ID] = account
	}
	return store
}

// Put inserts or replaces an account.
func (r *MemoryCarrierAccountRepository) Put(account domain.CarrierAccount) {
	r.mu.Lock()
	r.accounts[account.ID] = account
	r.mu.Unlock()
}

// ListActive implements CarrierAccountRepository.
func (r *MemoryCarrierAccountRepository) ListActive(_ context.Context, userID string) ([]domain.CarrierAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.CarrierAccount
	for _, account := range r.accounts {
		if account.IsActive && account.UserID == userID {
			out = append(out, account)
		}
	}
	return out, nil
}

// Get implements CarrierAccountRepository.
func (r *MemoryCarrierAccountRepository) Get(_ context.Context, id string) (domain.CarrierAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return domain.CarrierAccount{}, ErrCarrierAccountNotFound
	}
	return account, nil
}

// UpdateTokens implements CarrierAccountRepository.
func (r *MemoryCarrierAccountRepository) UpdateTokens(_ context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return ErrCarrierAccountNotFound
	}
	account.Credentials.AccessToken = accessToken
	account.Credentials.RefreshToken = refreshToken
	expires := expiresAt
	account.Credentials.TokenExpiresAt = &expires
	account.UpdatedAt = time.Now().UTC()
	r.accounts[id] = account
	return nil
}
