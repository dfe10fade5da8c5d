package ratecache

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/storeops/rates-api/internal/domain"
)

func baseRequest() domain.RateRequest {
	return domain.RateRequest{
		ShipFrom: domain.Address{
			Line1:      "123 Main St",
			City:       "Toronto",
			State:      "ON",
			PostalCode: "M5V 3A8",
			Country:    "CA",
		},
		ShipTo: domain.Address{
			Line1:      "456 Oak Ave",
			City:       "Montreal",
			State:      "QC",
			PostalCode: "H2N 1Z4",
			Country:    "CA",
		},
		Package: domain.PackageSpec{
			Weight:        decimal.RequireFromString("2.5"),
			Length:        decimal.RequireFromString("10"),
			Width:         decimal.RequireFromString("5"),
			Height:        decimal.RequireFromString("4"),
			WeightUnit:    "kg",
			DimensionUnit: "cm",
		},
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint(baseRequest())
	b := Fingerprint(baseRequest())
	if a != b {
		t.Fatalf("identical requests produced different fingerprints: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64-char hex digest, got %d chars", len(a))
	}
}

func TestFingerprintIgnoresInputPrecisionAndCase(t *testing.T) {
	a := baseRequest()

	b := baseRequest()
	b.ShipTo.PostalCode = "h2n 1z4"
	b.ShipTo.Country = "canada"
	b.Package.Weight = decimal.RequireFromString("2.500")

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("logically identical requests should share a fingerprint")
	}
}

func TestFingerprintIgnoresServicePreferenceOrder(t *testing.T) {
	a := baseRequest()
	a.ServicePreferences = []string{"DOM.EP", "dom.rp"}

	b := baseRequest()
	b.ServicePreferences = []string{"dom.rp", "dom.ep", "DOM.RP"}

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("preference order and duplicates should not change the fingerprint")
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := Fingerprint(baseRequest())

	mutations := []struct {
		name   string
		mutate func(*domain.RateRequest)
	}{
		{name: "destination postal code", mutate: func(r *domain.RateRequest) { r.ShipTo.PostalCode = "K1A 0B1" }},
		{name: "weight", mutate: func(r *domain.RateRequest) { r.Package.Weight = decimal.RequireFromString("3") }},
		{name: "preferences", mutate: func(r *domain.RateRequest) { r.ServicePreferences = []string{"dom.ep"} }},
		{name: "signature option", mutate: func(r *domain.RateRequest) { r.AdditionalServices.Signature = true }},
		{name: "insurance value", mutate: func(r *domain.RateRequest) {
			r.AdditionalServices.Insurance = true
			r.AdditionalServices.InsuranceValue = decimal.RequireFromString("100")
		}},
	}

	for _, tc := range mutations {
		t.Run(tc.name, func(t *testing.T) {
			req := baseRequest()
			tc.mutate(&req)
			if Fingerprint(req) == base {
				t.Fatalf("changing %s should change the fingerprint", tc.name)
			}
		})
	}
}

func TestFingerprintExcludesOrderID(t *testing.T) {
	a := baseRequest()
	a.OrderID = "order-1"
	b := baseRequest()
	b.OrderID = "order-2"

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("order id must not contribute to the fingerprint")
	}
}
