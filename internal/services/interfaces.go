package services

import (
	"context"

	domain "github.com/storeops/rates-api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing
// dependency direction.
type (
	Address            = domain.Address
	PackageSpec        = domain.PackageSpec
	RateRequest        = domain.RateRequest
	RateQuote          = domain.RateQuote
	ShippingRate       = domain.ShippingRate
	CarrierAccount     = domain.CarrierAccount
	AdditionalServices = domain.AdditionalServices
)

// RateService orchestrates the rating flow: cache consult, per-carrier
// fan-out, normalization, and cheapest-rate recommendation.
type RateService interface {
	// QuoteRates returns every successful rate for the request merged across
	// active carriers, sorted by cost, with the cheapest marked recommended.
	// Per-carrier failures are absorbed; only validation failures error.
	QuoteRates(ctx context.Context, cmd QuoteRatesCommand) (RateQuote, error)
	// InvalidateQuote drops any cached rates for the request.
	InvalidateQuote(ctx context.Context, req RateRequest)
}

// QuoteRatesCommand carries a rating request for one merchant.
type QuoteRatesCommand struct {
	UserID  string
	Request RateRequest
}
