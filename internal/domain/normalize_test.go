package domain

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeCountry(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "code passthrough", input: "CA", want: "CA"},
		{name: "lowercase code", input: "us", want: "US"},
		{name: "spelled out canada", input: "Canada", want: "CA"},
		{name: "spelled out united states", input: "United States", want: "US"},
		{name: "usa abbreviation", input: "USA", want: "US"},
		{name: "united kingdom", input: "united kingdom", want: "GB"},
		{name: "whitespace", input: "  ca  ", want: "CA"},
		{name: "unknown uppercased", input: "Deutschland", want: "DEUTSCHLAND"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeCountry(tc.input); got != tc.want {
				t.Fatalf("NormalizeCountry(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNormalizePostalCode(t *testing.T) {
	if got := NormalizePostalCode(" h2n 1z4 "); got != "H2N1Z4" {
		t.Fatalf("expected H2N1Z4, got %q", got)
	}
	if got := NormalizePostalCode("90210"); got != "90210" {
		t.Fatalf("expected 90210, got %q", got)
	}
}

func TestAddressNormalized(t *testing.T) {
	addr := Address{
		Name:       " Jane Doe ",
		Line1:      " 123 Main St ",
		City:       " Toronto ",
		State:      "on",
		PostalCode: "m5v 3a8",
		Country:    "canada",
	}

	got := addr.Normalized()

	if got.State != "ON" {
		t.Fatalf("expected state ON, got %q", got.State)
	}
	if got.PostalCode != "M5V3A8" {
		t.Fatalf("expected postal code M5V3A8, got %q", got.PostalCode)
	}
	if got.Country != "CA" {
		t.Fatalf("expected country CA, got %q", got.Country)
	}
	if got.Line1 != "123 Main St" {
		t.Fatalf("expected trimmed line1, got %q", got.Line1)
	}
}

func TestPackageSpecNormalizedRoundsToTwoDecimals(t *testing.T) {
	pkg := PackageSpec{
		Weight:        decimal.RequireFromString("2.499"),
		Length:        decimal.RequireFromString("10.005"),
		Width:         decimal.RequireFromString("5"),
		Height:        decimal.RequireFromString("3.14159"),
		WeightUnit:    " LB ",
		DimensionUnit: "IN",
	}

	got := pkg.Normalized()

	if got.Weight.String() != "2.5" {
		t.Fatalf("expected weight 2.5, got %s", got.Weight)
	}
	if got.Height.String() != "3.14" {
		t.Fatalf("expected height 3.14, got %s", got.Height)
	}
	if got.WeightUnit != "lb" || got.DimensionUnit != "in" {
		t.Fatalf("expected lowercased units, got %q %q", got.WeightUnit, got.DimensionUnit)
	}
}

func TestRateRequestNormalizedServicePreferences(t *testing.T) {
	req := RateRequest{
		ShipFrom:           Address{Country: "CA", PostalCode: "H2N1Z4"},
		ShipTo:             Address{Country: "CA", PostalCode: "M5V3A8"},
		ServicePreferences: []string{" DOM.EP ", "dom.rp", "DOM.EP", "", "dom.ep"},
	}

	got := req.Normalized()

	want := []string{"dom.ep", "dom.rp"}
	if !reflect.DeepEqual(got.ServicePreferences, want) {
		t.Fatalf("expected %v, got %v", want, got.ServicePreferences)
	}
}

func TestRateRequestNormalizedEmptyPreferencesStayNil(t *testing.T) {
	req := RateRequest{ServicePreferences: []string{" ", ""}}
	if got := req.Normalized().ServicePreferences; got != nil {
		t.Fatalf("expected nil preferences, got %v", got)
	}
}

func TestDomestic(t *testing.T) {
	cases := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{name: "same code", from: "CA", to: "CA", want: true},
		{name: "spelled out vs code", from: "Canada", to: "ca", want: true},
		{name: "cross border", from: "CA", to: "US", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := RateRequest{
				ShipFrom: Address{Country: tc.from},
				ShipTo:   Address{Country: tc.to},
			}
			if got := req.Domestic(); got != tc.want {
				t.Fatalf("Domestic() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestWeightInKilograms(t *testing.T) {
	pkg := PackageSpec{Weight: decimal.RequireFromString("10"), WeightUnit: "lb"}
	if got := pkg.WeightInKilograms().String(); got != "4.536" {
		t.Fatalf("expected 4.536, got %s", got)
	}

	metric := PackageSpec{Weight: decimal.RequireFromString("2.5"), WeightUnit: "kg"}
	if got := metric.WeightInKilograms().String(); got != "2.5" {
		t.Fatalf("expected 2.5, got %s", got)
	}
}

func TestDimensionsInCentimetres(t *testing.T) {
	pkg := PackageSpec{
		Length:        decimal.RequireFromString("10"),
		Width:         decimal.RequireFromString("5"),
		Height:        decimal.RequireFromString("4"),
		DimensionUnit: "in",
	}

	length, width, height := pkg.DimensionsInCentimetres()
	if length.String() != "25.4" || width.String() != "12.7" || height.String() != "10.2" {
		t.Fatalf("unexpected conversion: %s %s %s", length, width, height)
	}

	metric := PackageSpec{Length: decimal.RequireFromString("30"), DimensionUnit: "cm"}
	l, _, _ := metric.DimensionsInCentimetres()
	if l.String() != "30" {
		t.Fatalf("expected 30, got %s", l)
	}
}
