package carriers

import (
	"context"
	"encoding/xml"
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
	// CanadaPostProductionBaseURL is the production Canada Post SOAP gateway.
	CanadaPostProductionBaseURL = "https://soa-gw.canadapost.ca"
	// CanadaPostSandboxBaseURL is the certification (test) SOAP gateway.
	CanadaPostSandboxBaseURL = "https://ct.soa-gw.canadapost.ca"

	canadaPostRatingPath = "/rs/soap/rating/v4"
)

// CanadaPostAdapterConfig configures a CanadaPostAdapter.
type CanadaPostAdapterConfig struct {
	Account    domain.CarrierAccount
	HTTPClient Doer
	BaseURL    string
	Extractor  FieldExtractor
	Logger     Logger
}

// CanadaPostAdapter implements Adapter against the Canada Post Rating SOAP v4
// API. Credentials travel as a WS-Security UsernameToken in every envelope, so
// there is no token lifecycle to manage. A single get-rates call returns
// quotes for every service valid on the route.
type CanadaPostAdapter struct {
	account    domain.CarrierAccount
	httpClient Doer
	baseURL    string
	extractor  FieldExtractor
	logger     Logger
}

// NewCanadaPostAdapter constructs a Canada Post adapter for one carrier account.
func NewCanadaPostAdapter(cfg CanadaPostAdapterConfig) (*CanadaPostAdapter, error) {
	if cfg.Account.Carrier != domain.CarrierCanadaPost {
		return nil, fmt.Errorf("canadapost: account carrier is %q", cfg.Account.Carrier)
	}
	if strings.TrimSpace(cfg.Account.Credentials.ClientID) == "" || strings.TrimSpace(cfg.Account.Credentials.ClientSecret) == "" {
		return nil, errors.New("canadapost: api username and password are required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = CanadaPostProductionBaseURL
		if cfg.Account.Sandbox {
			baseURL = CanadaPostSandboxBaseURL
		}
	}

	extractor := cfg.Extractor
	if extractor == nil {
		extractor = NewRegexExtractor()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger
	}

	return &CanadaPostAdapter{
		account:    cfg.Account,
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		extractor:  extractor,
		logger:     logger,
	}, nil
}

// Name implements Adapter.
func (a *CanadaPostAdapter) Name() domain.Carrier { return domain.CarrierCanadaPost }

// GetRates implements Adapter.
func (a *CanadaPostAdapter) GetRates(ctx context.Context, req domain.RateRequest) ([]domain.ShippingRate, error) {
	envelope := a.buildEnvelope(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+canadaPostRatingPath, strings.NewReader(envelope))
	if err != nil {
		return nil, &CarrierError{Carrier: domain.CarrierCanadaPost, Op: "build rate request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")
	httpReq.Header.Set("SOAPAction", "")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, &CarrierError{Carrier: domain.CarrierCanadaPost, Op: "get-rates", Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &CarrierError{Carrier: domain.CarrierCanadaPost, Op: "read rate response", Err: err}
	}

	// Fault detection runs before any field parsing; a faulted body never
	// yields partial rates. Canada Post returns faults with HTTP 200 and 500
	// alike, so the body check is authoritative.
	if fault, ok := a.detectFault(string(body)); ok {
		if strings.Contains(strings.ToLower(fault.Message), "authoriz") || strings.Contains(strings.ToLower(fault.Message), "credential") {
			return nil, &AuthError{Carrier: domain.CarrierCanadaPost, Reason: "gateway rejected credentials", Err: fault}
		}
		return nil, fault
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &CarrierError{
			Carrier: domain.CarrierCanadaPost,
			Op:      "get-rates",
			Status:  resp.StatusCode,
			Err:     errors.New(truncate(string(body), 256)),
		}
	}

	return a.parseQuotes(ctx, string(body), req), nil
}

func (a *CanadaPostAdapter) detectFault(body string) (*SOAPFault, bool) {
	if !strings.Contains(body, "soap:Fault") && !strings.Contains(body, "soapenv:Fault") {
		return nil, false
	}
	fault := &SOAPFault{}
	if code, ok := a.extractor.Text(body, "faultcode"); ok {
		fault.Code = code
	}
	if msg, ok := a.extractor.Text(body, "faultstring"); ok {
		fault.Message = msg
	}
	if fault.Message == "" {
		// Service-level errors ride inside the fault detail.
		if msg, ok := a.extractor.Text(body, "description"); ok {
			fault.Message = msg
		}
	}
	if fault.Message == "" {
		fault.Message = "unparsable soap fault"
	}
	return fault, true
}

func (a *CanadaPostAdapter) parseQuotes(ctx context.Context, body string, req domain.RateRequest) []domain.ShippingRate {
	preferred := make(map[string]struct{}, len(req.ServicePreferences))
	for _, p := range req.ServicePreferences {
		preferred[strings.ToLower(p)] = struct{}{}
	}

	blocks := a.extractor.Blocks(body, "price-quote")
	rates := make([]domain.ShippingRate, 0, len(blocks))
	for _, block := range blocks {
		code, ok := a.extractor.Text(block, "service-code")
		if !ok || code == "" {
			continue
		}
		if len(preferred) > 0 {
			if _, want := preferred[strings.ToLower(code)]; !want {
				continue
			}
		}

		due, ok := a.extractor.Text(block, "due")
		if !ok {
			continue
		}
		cost, err := decimal.NewFromString(due)
		if err != nil || !cost.IsPositive() {
			a.logger(ctx, "canadapost.rate.skipped", map[string]any{
				"service_code": code,
				"due":          due,
			})
			continue
		}

		name, _ := a.extractor.Text(block, "service-name")
		if name == "" {
			name = ServiceName(domain.CarrierCanadaPost, code)
		}
		transit, _ := a.extractor.Text(block, "expected-transit-time")

		rates = append(rates, domain.ShippingRate{
			Carrier:       domain.CarrierCanadaPost,
			ServiceCode:   code,
			ServiceName:   name,
			Cost:          cost,
			Currency:      "CAD",
			EstimatedDays: transit,
		})
	}
	return rates
}

// buildEnvelope renders the get-rates SOAP envelope. The destination block has
// three mutually exclusive shapes selected by destination country: domestic,
// united-states, or international.
func (a *CanadaPostAdapter) buildEnvelope(req domain.RateRequest) string {
	creds := a.account.Credentials

	customerNumber := creds.CustomerNumber
	if customerNumber == "" {
		customerNumber = creds.AccountNumber
	}

	var b strings.Builder
	b.WriteString(`<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:rat="http://www.canadapost.ca/ws/soap/ship/rate/v4">`)
	b.WriteString(`<soapenv:Header>`)
	b.WriteString(`<wsse:Security xmlns:wsse="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd">`)
	b.WriteString(`<wsse:UsernameToken>`)
	fmt.Fprintf(&b, `<wsse:Username>%s</wsse:Username>`, xmlEscape(creds.ClientID))
	fmt.Fprintf(&b, `<wsse:Password>%s</wsse:Password>`, xmlEscape(creds.ClientSecret))
	b.WriteString(`</wsse:UsernameToken>`)
	b.WriteString(`</wsse:Security>`)
	b.WriteString(`</soapenv:Header>`)
	b.WriteString(`<soapenv:Body>`)
	b.WriteString(`<rat:get-rates-request>`)
	b.WriteString(`<rat:locale>EN</rat:locale>`)
	b.WriteString(`<rat:scenario>`)
	fmt.Fprintf(&b, `<rat:customer-number>%s</rat:customer-number>`, xmlEscape(customerNumber))
	if creds.ContractID != "" {
		fmt.Fprintf(&b, `<rat:contract-id>%s</rat:contract-id>`, xmlEscape(creds.ContractID))
	}

	if opts := a.buildOptions(req); opts != "" {
		b.WriteString(opts)
	}

	length, width, height := req.Package.DimensionsInCentimetres()
	b.WriteString(`<rat:parcel-characteristics>`)
	fmt.Fprintf(&b, `<rat:weight>%s</rat:weight>`, req.Package.WeightInKilograms().String())
	b.WriteString(`<rat:dimensions>`)
	fmt.Fprintf(&b, `<rat:length>%s</rat:length>`, length.String())
	fmt.Fprintf(&b, `<rat:width>%s</rat:width>`, width.String())
	fmt.Fprintf(&b, `<rat:height>%s</rat:height>`, height.String())
	b.WriteString(`</rat:dimensions>`)
	b.WriteString(`</rat:parcel-characteristics>`)

	fmt.Fprintf(&b, `<rat:origin-postal-code>%s</rat:origin-postal-code>`, xmlEscape(domain.NormalizePostalCode(req.ShipFrom.PostalCode)))

	b.WriteString(`<rat:destination>`)
	destCountry := domain.NormalizeCountry(req.ShipTo.Country)
	switch {
	case destCountry == "CA":
		fmt.Fprintf(&b, `<rat:domestic><rat:postal-code>%s</rat:postal-code></rat:domestic>`, xmlEscape(domain.NormalizePostalCode(req.ShipTo.PostalCode)))
	case destCountry == "US":
		fmt.Fprintf(&b, `<rat:united-states><rat:zip-code>%s</rat:zip-code></rat:united-states>`, xmlEscape(domain.NormalizePostalCode(req.ShipTo.PostalCode)))
	default:
		fmt.Fprintf(&b, `<rat:international><rat:country-code>%s</rat:country-code></rat:international>`, xmlEscape(destCountry))
	}
	b.WriteString(`</rat:destination>`)

	b.WriteString(`</rat:scenario>`)
	b.WriteString(`</rat:get-rates-request>`)
	b.WriteString(`</soapenv:Body>`)
	b.WriteString(`</soapenv:Envelope>`)
	return b.String()
}

func (a *CanadaPostAdapter) buildOptions(req domain.RateRequest) string {
	var options []string
	if req.AdditionalServices.Signature {
		options = append(options, `<rat:option><rat:option-code>SO</rat:option-code></rat:option>`)
	}
	if req.AdditionalServices.Insurance && req.AdditionalServices.InsuranceValue.IsPositive() {
		options = append(options, fmt.Sprintf(
			`<rat:option><rat:option-code>COV</rat:option-code><rat:option-amount>%s</rat:option-amount></rat:option>`,
			req.AdditionalServices.InsuranceValue.StringFixed(2),
		))
	}
	if len(options) == 0 {
		return ""
	}
	return `<rat:options>` + strings.Join(options, "") + `</rat:options>`
}

func xmlEscape(value string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(value))
	return b.String()
}
