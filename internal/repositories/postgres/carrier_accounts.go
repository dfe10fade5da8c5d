// Package postgres implements the repository contracts against the hosted
// Postgres database using pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/storeops/rates-api/internal/domain"
	"github.com/storeops/rates-api/internal/repositories"
)

// Registry wires pgx-backed repositories over one shared connection pool.
type Registry struct {
	pool     *pgxpool.Pool
	accounts *CarrierAccountRepository
}

// NewRegistry constructs a registry from a database URL.
func NewRegistry(ctx context.Context, databaseURL string) (*Registry, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Registry{
		pool:     pool,
		accounts: &CarrierAccountRepository{pool: pool},
	}, nil
}

// Close implements repositories.Registry.
func (r *Registry) Close(context.Context) error {
	r.pool.Close()
	return nil
}

// CarrierAccounts implements repositories.Registry.
func (r *Registry) CarrierAccounts() repositories.CarrierAccountRepository { return r.accounts }

// CarrierAccountRepository reads and writes carrier_configurations rows. The
// credential payload lives in an api_credentials jsonb column mirroring the
// shape the dashboard writes.
type CarrierAccountRepository struct {
	pool *pgxpool.Pool
}

type credentialsPayload struct {
	ClientID       string `json:"client_id"`
	ClientSecret   string `json:"client_secret"`
	AccessToken    string `json:"access_token,omitempty"`
	RefreshToken   string `json:"refresh_token,omitempty"`
	TokenExpiresAt string `json:"token_expires_at,omitempty"`
	AccountNumber  string `json:"account_number,omitempty"`
	CustomerNumber string `json:"customer_number,omitempty"`
	ContractID     string `json:"contract_id,omitempty"`
}

const selectAccountColumns = `id, user_id, carrier, api_credentials, sandbox, is_active, created_at, updated_at`

// ListActive implements repositories.CarrierAccountRepository.
func (r *CarrierAccountRepository) ListActive(ctx context.Context, userID string) ([]domain.CarrierAccount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+selectAccountColumns+` FROM carrier_configurations WHERE user_id = $1 AND is_active`, userID)
	if err != nil {
		return nil, fmt.Errorf("list active carrier accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.CarrierAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active carrier accounts: %w", err)
	}
	return accounts, nil
}

// Get implements repositories.CarrierAccountRepository.
func (r *CarrierAccountRepository) Get(ctx context.Context, id string) (domain.CarrierAccount, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+selectAccountColumns+` FROM carrier_configurations WHERE id = $1`, id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CarrierAccount{}, repositories.ErrCarrierAccountNotFound
		}
		return domain.CarrierAccount{}, err
	}
	return account, nil
}

// UpdateTokens implements repositories.CarrierAccountRepository. The token
// fields are patched into the jsonb payload in one statement so concurrent
// refreshes resolve last-writer-wins.
func (r *CarrierAccountRepository) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	patch, err := json.Marshal(map[string]string{
		"access_token":     accessToken,
		"refresh_token":    refreshToken,
		"token_expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode token patch: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE carrier_configurations
		 SET api_credentials = api_credentials || $2::jsonb, updated_at = now()
		 WHERE id = $1`, id, patch)
	if err != nil {
		return fmt.Errorf("update carrier tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.ErrCarrierAccountNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (domain.CarrierAccount, error) {
	var (
		account domain.CarrierAccount
		carrier string
		raw     []byte
	)
	if err := row.Scan(&account.ID, &account.UserID, &carrier, &raw, &account.Sandbox, &account.IsActive, &account.CreatedAt, &account.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CarrierAccount{}, pgx.ErrNoRows
		}
		return domain.CarrierAccount{}, fmt.Errorf("scan carrier account: %w", err)
	}
	account.Carrier = domain.Carrier(carrier)

	var payload credentialsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.CarrierAccount{}, fmt.Errorf("decode api_credentials for account %s: %w", account.ID, err)
	}
	account.Credentials = domain.CarrierCredentials{
		ClientID:       payload.ClientID,
		ClientSecret:   payload.ClientSecret,
		AccessToken:    payload.AccessToken,
		RefreshToken:   payload.RefreshToken,
		AccountNumber:  payload.AccountNumber,
		CustomerNumber: payload.CustomerNumber,
		ContractID:     payload.ContractID,
	}
	if payload.TokenExpiresAt != "" {
		if ts, err := time.Parse(time.RFC3339, payload.TokenExpiresAt); err == nil {
			account.Credentials.TokenExpiresAt = &ts
		}
	}
	return account, nil
}
