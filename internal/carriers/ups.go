package carriers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storeops/rates-api/internal/domain"
)

const (
	// UPSProductionBaseURL is the production UPS API host.
	UPSProductionBaseURL = "https://onlinetools.ups.com"
	// UPSSandboxBaseURL is the customer integration (test) UPS API host.
	UPSSandboxBaseURL = "https://wwwcie.ups.com"

	upsRatePath = "/api/rating/v1/Rate"
)

// UPSAdapterConfig configures a UPSAdapter.
type UPSAdapterConfig struct {
	Account    domain.CarrierAccount
	Tokens     *UPSTokenManager
	HTTPClient Doer
	BaseURL    string
	Logger     Logger
	Clock      func() time.Time
}

// UPSAdapter implements Adapter against the UPS Rating v1 REST API. One rate
// request is issued per candidate service code; a failure for one service does
// not abort the others.
type UPSAdapter struct {
	account    domain.CarrierAccount
	tokens     *UPSTokenManager
	httpClient Doer
	baseURL    string
	logger     Logger
	clock      func() time.Time
}

// NewUPSAdapter constructs a UPS adapter for one carrier account.
func NewUPSAdapter(cfg UPSAdapterConfig) (*UPSAdapter, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("ups: token manager is required")
	}
	if cfg.Account.Carrier != domain.CarrierUPS {
		return nil, fmt.Errorf("ups: account carrier is %q", cfg.Account.Carrier)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = UPSProductionBaseURL
		if cfg.Account.Sandbox {
			baseURL = UPSSandboxBaseURL
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &UPSAdapter{
		account:    cfg.Account,
		tokens:     cfg.Tokens,
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
		clock:      clock,
	}, nil
}

// Name implements Adapter.
func (a *UPSAdapter) Name() domain.Carrier { return domain.CarrierUPS }

// GetRates implements Adapter. Authentication happens once up front; an auth
// failure is surfaced without attempting any rate call.
func (a *UPSAdapter) GetRates(ctx context.Context, req domain.RateRequest) ([]domain.ShippingRate, error) {
	candidates := CandidateServices(domain.CarrierUPS, req)
	if len(candidates) == 0 {
		return nil, nil
	}

	token, err := a.tokens.Token(ctx, a.account, a.baseURL)
	if err != nil {
		return nil, err
	}

	rates := make([]domain.ShippingRate, 0, len(candidates))
	for _, svc := range candidates {
		rate, err := a.rateService(ctx, token, req, svc)
		if err != nil {
			a.logger(ctx, "ups.rate.service_failed", map[string]any{
				"account_id":   a.account.ID,
				"service_code": svc.Code,
				"error":        err.Error(),
			})
			continue
		}
		if rate != nil {
			rates = append(rates, *rate)
		}
	}
	return rates, nil
}

type upsMonetary struct {
	CurrencyCode  string `json:"CurrencyCode"`
	MonetaryValue string `json:"MonetaryValue"`
}

type upsRatedShipment struct {
	Service struct {
		Code string `json:"Code"`
	} `json:"Service"`
	TotalCharges         upsMonetary `json:"TotalCharges"`
	NegotiatedRateCharge *struct {
		TotalCharge upsMonetary `json:"TotalCharge"`
	} `json:"NegotiatedRateCharges"`
	GuaranteedDelivery *struct {
		BusinessDaysInTransit string `json:"BusinessDaysInTransit"`
	} `json:"GuaranteedDelivery"`
}

type upsRateResponse struct {
	RateResponse struct {
		RatedShipment json.RawMessage `json:"RatedShipment"`
	} `json:"RateResponse"`
}

func (a *UPSAdapter) rateService(ctx context.Context, token string, req domain.RateRequest, svc ServiceDefinition) (*domain.ShippingRate, error) {
	body, err := json.Marshal(a.buildRateRequest(req, svc))
	if err != nil {
		return nil, &CarrierError{Carrier: domain.CarrierUPS, Op: "encode rate request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+upsRatePath, bytes.NewReader(body))
	if err != nil {
		return nil, &CarrierError{Carrier: domain.CarrierUPS, Op: "build rate request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, &CarrierError{Carrier: domain.CarrierUPS, Op: "rate " + svc.Code, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &CarrierError{Carrier: domain.CarrierUPS, Op: "read rate response", Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		a.tokens.Invalidate(a.account.ID)
		return nil, &AuthError{
			Carrier: domain.CarrierUPS,
			Reason:  fmt.Sprintf("rate endpoint returned %d", resp.StatusCode),
			Err:     errors.New(truncate(string(respBody), 256)),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &CarrierError{
			Carrier: domain.CarrierUPS,
			Op:      "rate " + svc.Code,
			Status:  resp.StatusCode,
			Err:     errors.New(truncate(string(respBody), 256)),
		}
	}

	var payload upsRateResponse
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, &CarrierError{Carrier: domain.CarrierUPS, Op: "decode rate response", Err: err}
	}

	shipments, err := decodeRatedShipments(payload.RateResponse.RatedShipment)
	if err != nil {
		return nil, &CarrierError{Carrier: domain.CarrierUPS, Op: "decode rated shipment", Err: err}
	}

	for _, shipment := range shipments {
		rate, ok := a.normalizeShipment(shipment, svc)
		if ok {
			return &rate, nil
		}
	}
	return nil, nil
}

// decodeRatedShipments tolerates the UPS habit of returning either a single
// object or an array for RatedShipment.
func decodeRatedShipments(raw json.RawMessage) ([]upsRatedShipment, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var many []upsRatedShipment
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return nil, err
		}
		return many, nil
	}
	var one upsRatedShipment
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, err
	}
	return []upsRatedShipment{one}, nil
}

// normalizeShipment converts a rated shipment into the common rate shape,
// preferring the negotiated charge over the published one and rejecting
// shipments with a zero or unparsable charge.
func (a *UPSAdapter) normalizeShipment(shipment upsRatedShipment, svc ServiceDefinition) (domain.ShippingRate, bool) {
	charge := shipment.TotalCharges
	if shipment.NegotiatedRateCharge != nil && strings.TrimSpace(shipment.NegotiatedRateCharge.TotalCharge.MonetaryValue) != "" {
		charge = shipment.NegotiatedRateCharge.TotalCharge
	}

	cost, err := decimal.NewFromString(strings.TrimSpace(charge.MonetaryValue))
	if err != nil || !cost.IsPositive() {
		return domain.ShippingRate{}, false
	}

	currency := strings.ToUpper(strings.TrimSpace(charge.CurrencyCode))
	if currency == "" {
		currency = "USD"
	}

	estimated := ""
	if shipment.GuaranteedDelivery != nil {
		estimated = strings.TrimSpace(shipment.GuaranteedDelivery.BusinessDaysInTransit)
	}

	code := strings.TrimSpace(shipment.Service.Code)
	if code == "" {
		code = svc.Code
	}

	return domain.ShippingRate{
		Carrier:       domain.CarrierUPS,
		ServiceCode:   code,
		ServiceName:   ServiceName(domain.CarrierUPS, code),
		Cost:          cost,
		Currency:      currency,
		EstimatedDays: estimated,
	}, true
}

func (a *UPSAdapter) buildRateRequest(req domain.RateRequest, svc ServiceDefinition) map[string]any {
	weightUnit := "KGS"
	if strings.EqualFold(req.Package.WeightUnit, "lb") || strings.EqualFold(req.Package.WeightUnit, "lbs") {
		weightUnit = "LBS"
	}
	dimensionUnit := "CM"
	if strings.EqualFold(req.Package.DimensionUnit, "in") || strings.EqualFold(req.Package.DimensionUnit, "inch") {
		dimensionUnit = "IN"
	}

	address := func(a domain.Address) map[string]any {
		lines := []string{a.Line1}
		if a.Line2 != "" {
			lines = append(lines, a.Line2)
		}
		return map[string]any{
			"AddressLine":       lines,
			"City":              a.City,
			"StateProvinceCode": a.State,
			"PostalCode":        a.PostalCode,
			"CountryCode":       domain.NormalizeCountry(a.Country),
		}
	}

	pkg := map[string]any{
		"PackagingType": map[string]any{"Code": "02"},
		"Dimensions": map[string]any{
			"UnitOfMeasurement": map[string]any{"Code": dimensionUnit},
			"Length":            req.Package.Length.String(),
			"Width":             req.Package.Width.String(),
			"Height":            req.Package.Height.String(),
		},
		"PackageWeight": map[string]any{
			"UnitOfMeasurement": map[string]any{"Code": weightUnit},
			"Weight":            req.Package.Weight.String(),
		},
	}

	shipment := map[string]any{
		"Shipper": map[string]any{
			"Name":          req.ShipFrom.Name,
			"ShipperNumber": a.account.Credentials.AccountNumber,
			"Address":       address(req.ShipFrom),
		},
		"ShipTo": map[string]any{
			"Name":    req.ShipTo.Name,
			"Address": address(req.ShipTo),
		},
		"ShipFrom": map[string]any{
			"Name":    req.ShipFrom.Name,
			"Address": address(req.ShipFrom),
		},
		"Service": map[string]any{
			"Code":        svc.Code,
			"Description": svc.Name,
		},
		"Package": []any{pkg},
		"ShipmentRatingOptions": map[string]any{
			"NegotiatedRatesIndicator": "",
		},
	}

	if req.AdditionalServices.SaturdayDelivery {
		shipment["ShipmentServiceOptions"] = map[string]any{"SaturdayDeliveryIndicator": ""}
	}

	return map[string]any{
		"RateRequest": map[string]any{
			"Request":  map[string]any{"RequestOption": "Rate"},
			"Shipment": shipment,
		},
	}
}
