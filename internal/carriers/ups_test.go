package carriers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/storeops/rates-api/internal/domain"
)

func domesticUSRequest() domain.RateRequest {
	return domain.RateRequest{
		ShipFrom: domain.Address{
			Line1:      "123 Main St",
			City:       "New York",
			State:      "NY",
			PostalCode: "10001",
			Country:    "US",
		},
		ShipTo: domain.Address{
			Line1:      "456 Oak Ave",
			City:       "Beverly Hills",
			State:      "CA",
			PostalCode: "90210",
			Country:    "US",
		},
		Package: domain.PackageSpec{
			Weight:        decimal.RequireFromString("2.5"),
			Length:        decimal.RequireFromString("10"),
			Width:         decimal.RequireFromString("5"),
			Height:        decimal.RequireFromString("4"),
			WeightUnit:    "lb",
			DimensionUnit: "in",
		},
	}
}

// upsTestServer answers the oauth token path and serves rate responses from
// the provided handler.
func upsTestServer(t *testing.T, rate http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case upsTokenPath, upsRefreshPath:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"test-token","expires_in":"3600"}`)
		case upsRatePath:
			if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
				t.Errorf("missing bearer token, got %q", got)
			}
			rate(w, r)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newUPSAdapterForServer(t *testing.T, server *httptest.Server) *UPSAdapter {
	t.Helper()
	adapter, err := NewUPSAdapter(UPSAdapterConfig{
		Account: upsAccount("acct-1"),
		Tokens: NewUPSTokenManager(UPSTokenManagerConfig{
			HTTPClient: server.Client(),
		}),
		HTTPClient: server.Client(),
		BaseURL:    server.URL,
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func upsRatedShipmentJSON(serviceCode, published, negotiated string) string {
	negotiatedPart := ""
	if negotiated != "" {
		negotiatedPart = fmt.Sprintf(`,"NegotiatedRateCharges":{"TotalCharge":{"CurrencyCode":"USD","MonetaryValue":"%s"}}`, negotiated)
	}
	return fmt.Sprintf(`{"Service":{"Code":"%s"},"TotalCharges":{"CurrencyCode":"USD","MonetaryValue":"%s"}%s,"GuaranteedDelivery":{"BusinessDaysInTransit":"2"}}`, serviceCode, published, negotiatedPart)
}

func TestUPSGetRatesNegotiatedPreferred(t *testing.T) {
	server := upsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("invalid rate request body: %v", err)
		}
		svc := payload["RateRequest"].(map[string]any)["Shipment"].(map[string]any)["Service"].(map[string]any)["Code"].(string)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"RateResponse":{"RatedShipment":%s}}`, upsRatedShipmentJSON(svc, "20.00", "15.50"))
	})
	defer server.Close()

	adapter := newUPSAdapterForServer(t, server)
	req := domesticUSRequest()
	req.ServicePreferences = []string{"03"}

	rates, err := adapter.GetRates(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rates) != 1 {
		t.Fatalf("expected 1 rate, got %d", len(rates))
	}

	rate := rates[0]
	if rate.Cost.String() != "15.5" {
		t.Fatalf("expected negotiated 15.5, got %s", rate.Cost)
	}
	if rate.Carrier != domain.CarrierUPS || rate.ServiceCode != "03" || rate.ServiceName != "UPS Ground" {
		t.Fatalf("unexpected rate identity: %+v", rate)
	}
	if rate.Currency != "USD" || rate.EstimatedDays != "2" {
		t.Fatalf("unexpected rate detail: %+v", rate)
	}
}

func TestUPSGetRatesPublishedWhenNoNegotiated(t *testing.T) {
	server := upsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"RateResponse":{"RatedShipment":%s}}`, upsRatedShipmentJSON("03", "20.00", ""))
	})
	defer server.Close()

	adapter := newUPSAdapterForServer(t, server)
	req := domesticUSRequest()
	req.ServicePreferences = []string{"03"}

	rates, err := adapter.GetRates(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rates) != 1 || rates[0].Cost.String() != "20" {
		t.Fatalf("expected published 20, got %+v", rates)
	}
}

func TestUPSGetRatesArrayRatedShipment(t *testing.T) {
	server := upsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"RateResponse":{"RatedShipment":[%s,%s]}}`,
			upsRatedShipmentJSON("03", "20.00", ""),
			upsRatedShipmentJSON("03", "25.00", ""))
	})
	defer server.Close()

	adapter := newUPSAdapterForServer(t, server)
	req := domesticUSRequest()
	req.ServicePreferences = []string{"03"}

	rates, err := adapter.GetRates(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// One rate per requested service; the first usable shipment wins.
	if len(rates) != 1 || rates[0].Cost.String() != "20" {
		t.Fatalf("expected first shipment's rate, got %+v", rates)
	}
}

func TestUPSGetRatesOneCallPerCandidateService(t *testing.T) {
	var calls atomic.Int64
	seen := make(chan string, 16)
	server := upsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var payload map[string]any
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		svc := payload["RateRequest"].(map[string]any)["Shipment"].(map[string]any)["Service"].(map[string]any)["Code"].(string)
		seen <- svc
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"RateResponse":{"RatedShipment":%s}}`, upsRatedShipmentJSON(svc, "20.00", ""))
	})
	defer server.Close()

	adapter := newUPSAdapterForServer(t, server)

	rates, err := adapter.GetRates(context.Background(), domesticUSRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 5 {
		t.Fatalf("expected 5 rate calls for the domestic table, got %d", calls.Load())
	}
	if len(rates) != 5 {
		t.Fatalf("expected 5 rates, got %d", len(rates))
	}
	close(seen)
	for svc := range seen {
		switch svc {
		case "01", "02", "03", "12", "13":
		default:
			t.Fatalf("international service %s rated on a domestic route", svc)
		}
	}
}

func TestUPSGetRatesServiceFailureSkipsService(t *testing.T) {
	server := upsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		svc := payload["RateRequest"].(map[string]any)["Shipment"].(map[string]any)["Service"].(map[string]any)["Code"].(string)
		if svc == "01" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"response":{"errors":[{"code":"111100","message":"service unavailable for route"}]}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"RateResponse":{"RatedShipment":%s}}`, upsRatedShipmentJSON(svc, "20.00", ""))
	})
	defer server.Close()

	adapter := newUPSAdapterForServer(t, server)

	rates, err := adapter.GetRates(context.Background(), domesticUSRequest())
	if err != nil {
		t.Fatalf("service failures must not abort the batch: %v", err)
	}
	if len(rates) != 4 {
		t.Fatalf("expected 4 rates after one service failure, got %d", len(rates))
	}
	for _, rate := range rates {
		if rate.ServiceCode == "01" {
			t.Fatalf("failed service should not produce a rate")
		}
	}
}

func TestUPSGetRatesZeroCostRejected(t *testing.T) {
	server := upsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"RateResponse":{"RatedShipment":%s}}`, upsRatedShipmentJSON("03", "0.00", ""))
	})
	defer server.Close()

	adapter := newUPSAdapterForServer(t, server)
	req := domesticUSRequest()
	req.ServicePreferences = []string{"03"}

	rates, err := adapter.GetRates(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rates) != 0 {
		t.Fatalf("zero-cost shipment should be dropped, got %+v", rates)
	}
}

func TestUPSGetRatesAuthFailureAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == upsTokenPath {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"response":{"errors":[{"code":"250002","message":"Invalid credentials"}]}}`)
			return
		}
		t.Errorf("rate call must not happen after auth failure")
	}))
	defer server.Close()

	adapter := newUPSAdapterForServer(t, server)

	_, err := adapter.GetRates(context.Background(), domesticUSRequest())
	if !IsAuthError(err) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestUPSGetRatesUnauthorizedRateCallInvalidatesToken(t *testing.T) {
	var tokenGrants atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case upsTokenPath:
			tokenGrants.Add(1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"test-token","expires_in":"3600"}`)
		case upsRatePath:
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"response":{"errors":[{"code":"250001","message":"token expired"}]}}`)
		}
	}))
	defer server.Close()

	tokens := NewUPSTokenManager(UPSTokenManagerConfig{HTTPClient: server.Client()})
	adapter, err := NewUPSAdapter(UPSAdapterConfig{
		Account:    upsAccount("acct-1"),
		Tokens:     tokens,
		HTTPClient: server.Client(),
		BaseURL:    server.URL,
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	req := domesticUSRequest()
	req.ServicePreferences = []string{"03"}

	rates, err := adapter.GetRates(context.Background(), req)
	if err != nil {
		t.Fatalf("per-service auth failure is absorbed: %v", err)
	}
	if len(rates) != 0 {
		t.Fatalf("expected no rates, got %+v", rates)
	}

	// The cached token was invalidated, so the next batch re-authenticates.
	if _, err := adapter.GetRates(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokenGrants.Load() != 2 {
		t.Fatalf("expected re-authentication after 401, got %d grants", tokenGrants.Load())
	}
}

func TestUPSGetRatesNoCandidatesNoAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no network traffic expected when no service is in scope")
	}))
	defer server.Close()

	adapter := newUPSAdapterForServer(t, server)

	// "07" is international-only; the route is domestic.
	req := domesticUSRequest()
	req.ServicePreferences = []string{"07"}

	rates, err := adapter.GetRates(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rates != nil {
		t.Fatalf("expected no rates, got %+v", rates)
	}
}

func TestNewUPSAdapterRejectsWrongCarrier(t *testing.T) {
	account := upsAccount("acct-1")
	account.Carrier = domain.CarrierCanadaPost

	_, err := NewUPSAdapter(UPSAdapterConfig{
		Account: account,
		Tokens:  NewUPSTokenManager(UPSTokenManagerConfig{}),
	})
	if err == nil {
		t.Fatalf("expected carrier mismatch error")
	}
}

func TestUPSBaseURLSelection(t *testing.T) {
	sandbox := upsAccount("acct-1")
	sandbox.Sandbox = true

	adapter, err := NewUPSAdapter(UPSAdapterConfig{
		Account: sandbox,
		Tokens:  NewUPSTokenManager(UPSTokenManagerConfig{}),
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if adapter.baseURL != UPSSandboxBaseURL {
		t.Fatalf("expected sandbox base url, got %s", adapter.baseURL)
	}

	production := upsAccount("acct-2")
	adapter, err = NewUPSAdapter(UPSAdapterConfig{
		Account: production,
		Tokens:  NewUPSTokenManager(UPSTokenManagerConfig{}),
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if adapter.baseURL != UPSProductionBaseURL {
		t.Fatalf("expected production base url, got %s", adapter.baseURL)
	}
}

func TestUPSBuildRateRequestShape(t *testing.T) {
	adapter, err := NewUPSAdapter(UPSAdapterConfig{
		Account: upsAccount("acct-1"),
		Tokens:  NewUPSTokenManager(UPSTokenManagerConfig{}),
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	req := domesticUSRequest()
	req.AdditionalServices.SaturdayDelivery = true

	payload := adapter.buildRateRequest(req, ServiceDefinition{Code: "03", Name: "UPS Ground"})
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	var decoded struct {
		RateRequest struct {
			Shipment struct {
				Shipper struct {
					ShipperNumber string `json:"ShipperNumber"`
				} `json:"Shipper"`
				Service struct {
					Code string `json:"Code"`
				} `json:"Service"`
				Package []struct {
					PackageWeight struct {
						UnitOfMeasurement struct {
							Code string `json:"Code"`
						} `json:"UnitOfMeasurement"`
						Weight string `json:"Weight"`
					} `json:"PackageWeight"`
				} `json:"Package"`
				ShipmentRatingOptions  map[string]any `json:"ShipmentRatingOptions"`
				ShipmentServiceOptions map[string]any `json:"ShipmentServiceOptions"`
			} `json:"Shipment"`
		} `json:"RateRequest"`
	}
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	shipment := decoded.RateRequest.Shipment
	if shipment.Shipper.ShipperNumber != "A1B2C3" {
		t.Fatalf("expected shipper number, got %q", shipment.Shipper.ShipperNumber)
	}
	if shipment.Service.Code != "03" {
		t.Fatalf("expected service 03, got %q", shipment.Service.Code)
	}
	if len(shipment.Package) != 1 || shipment.Package[0].PackageWeight.UnitOfMeasurement.Code != "LBS" {
		t.Fatalf("expected LBS weight unit, got %+v", shipment.Package)
	}
	if _, ok := shipment.ShipmentRatingOptions["NegotiatedRatesIndicator"]; !ok {
		t.Fatalf("negotiated rates indicator missing")
	}
	if _, ok := shipment.ShipmentServiceOptions["SaturdayDeliveryIndicator"]; !ok {
		t.Fatalf("saturday delivery indicator missing")
	}
}
