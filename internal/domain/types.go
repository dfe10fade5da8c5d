package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Carrier identifies a shipping provider supported by the rating layer.
type Carrier string

const (
	// CarrierUPS identifies United Parcel Service.
	CarrierUPS Carrier = "ups"
	// CarrierCanadaPost identifies Canada Post.
	CarrierCanadaPost Carrier = "canada_post"
)

// String returns the canonical lowercase carrier identifier.
func (c Carrier) String() string { return string(c) }

// Address represents a postal address used as a shipment origin or destination.
type Address struct {
	Name        string
	Company     string
	Line1       string
	Line2       string
	City        string
	State       string
	PostalCode  string
	Country     string
	Phone       string
	Residential bool
}

// PackageSpec describes the physical characteristics of a parcel to be rated.
type PackageSpec struct {
	Weight        decimal.Decimal
	Length        decimal.Decimal
	Width         decimal.Decimal
	Height        decimal.Decimal
	WeightUnit    string
	DimensionUnit string
}

// AdditionalServices captures optional carrier add-ons requested for a shipment.
type AdditionalServices struct {
	Signature        bool
	Insurance        bool
	InsuranceValue   decimal.Decimal
	SaturdayDelivery bool
}

// RateRequest is the normalized input to the rating flow. It is constructed per
// call and never persisted.
type RateRequest struct {
	OrderID            string
	ShipFrom           Address
	ShipTo             Address
	Package            PackageSpec
	ServicePreferences []string
	AdditionalServices AdditionalServices
}

// Domestic reports whether origin and destination share a country.
func (r RateRequest) Domestic() bool {
	return NormalizeCountry(r.ShipFrom.Country) == NormalizeCountry(r.ShipTo.Country)
}

// ShippingRate is a single normalized rate quote from a carrier. Instances are
// immutable once created; they have no identity beyond the cache lifetime.
type ShippingRate struct {
	Carrier       Carrier
	ServiceCode   string
	ServiceName   string
	Cost          decimal.Decimal
	Currency      string
	EstimatedDays string
}

// RateQuote is the aggregated output of a rating call: all successful rates
// sorted by cost plus the recommended (cheapest) entry. An empty Rates slice
// with a non-empty Message is the expected shape when no carrier produced a
// usable rate; it is not an error condition.
type RateQuote struct {
	Rates       []ShippingRate
	Recommended *ShippingRate
	Message     string
}

// CarrierCredentials holds the secrets and account identifiers for one carrier
// configuration. The access token has its own short lifecycle nested inside the
// credential row's longer one; token fields are mutated in place on refresh.
type CarrierCredentials struct {
	ClientID       string
	ClientSecret   string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
	AccountNumber  string
	CustomerNumber string
	ContractID     string
}

// TokenValid reports whether the stored access token is usable at the given
// instant, applying the provided expiry skew.
func (c CarrierCredentials) TokenValid(now time.Time, skew time.Duration) bool {
	if c.AccessToken == "" {
		return false
	}
	if c.TokenExpiresAt == nil {
		return true
	}
	return now.Add(skew).Before(*c.TokenExpiresAt)
}

// CarrierAccount is a persisted per-merchant carrier configuration. Inactive
// accounts are never queried for rates.
type CarrierAccount struct {
	ID          string
	UserID      string
	Carrier     Carrier
	Credentials CarrierCredentials
	Sandbox     bool
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
