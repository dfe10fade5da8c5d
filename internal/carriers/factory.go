package carriers

import (
	"net/http"
	"time"

	"github.com/storeops/rates-api/internal/domain"
)

// FactoryConfig configures a Factory.
type FactoryConfig struct {
	Tokens     *UPSTokenManager
	HTTPClient Doer
	Logger     Logger
	// UPSBaseURL and CanadaPostBaseURL override the per-account sandbox/prod
	// host selection; used in tests and local development.
	UPSBaseURL        string
	CanadaPostBaseURL string
}

// Factory builds the adapter matching a carrier account's carrier. One factory
// is shared process-wide so adapters reuse the HTTP client and token manager.
type Factory struct {
	tokens     *UPSTokenManager
	httpClient Doer
	logger     Logger
	upsBase    string
	canadaBase string
}

// NewFactory constructs an adapter factory.
func NewFactory(cfg FactoryConfig) *Factory {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger
	}
	tokens := cfg.Tokens
	if tokens == nil {
		tokens = NewUPSTokenManager(UPSTokenManagerConfig{HTTPClient: httpClient, Logger: logger})
	}
	return &Factory{
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger,
		upsBase:    cfg.UPSBaseURL,
		canadaBase: cfg.CanadaPostBaseURL,
	}
}

// ForAccount returns the adapter for the account's carrier, or
// ErrUnsupportedCarrier when no adapter exists.
func (f *Factory) ForAccount(account domain.CarrierAccount) (Adapter, error) {
	switch account.Carrier {
	case domain.CarrierUPS:
		return NewUPSAdapter(UPSAdapterConfig{
			Account:    account,
			Tokens:     f.tokens,
			HTTPClient: f.httpClient,
			BaseURL:    f.upsBase,
			Logger:     f.logger,
		})
	case domain.CarrierCanadaPost:
		return NewCanadaPostAdapter(CanadaPostAdapterConfig{
			Account:    account,
			HTTPClient: f.httpClient,
			BaseURL:    f.canadaBase,
			Logger:     f.logger,
		})
	default:
		return nil, ErrUnsupportedCarrier
	}
}
