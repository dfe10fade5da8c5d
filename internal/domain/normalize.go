package domain

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// NormalizeCountry canonicalises a country value to an uppercase ISO-3166
// alpha-2 code. A handful of spelled-out names seen in merchant store
// configurations are folded to their codes; anything else is uppercased as-is.
func NormalizeCountry(country string) string {
	c := strings.ToUpper(strings.TrimSpace(country))
	switch c {
	case "CANADA":
		return "CA"
	case "UNITED STATES", "USA", "UNITED STATES OF AMERICA":
		return "US"
	case "UNITED KINGDOM", "GREAT BRITAIN":
		return "GB"
	}
	return c
}

// NormalizePostalCode strips whitespace and uppercases a postal code so that
// "h2n 1z4" and "H2N1Z4" compare equal.
func NormalizePostalCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), " ", ""))
}

// Normalized returns a copy of the address with country and postal code
// canonicalised and free-text fields trimmed.
func (a Address) Normalized() Address {
	a.Name = strings.TrimSpace(a.Name)
	a.Company = strings.TrimSpace(a.Company)
	a.Line1 = strings.TrimSpace(a.Line1)
	a.Line2 = strings.TrimSpace(a.Line2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.ToUpper(strings.TrimSpace(a.State))
	a.PostalCode = NormalizePostalCode(a.PostalCode)
	a.Country = NormalizeCountry(a.Country)
	a.Phone = strings.TrimSpace(a.Phone)
	return a
}

// Normalized returns a copy of the package spec with dimensions and weight
// rounded to two decimal places and units lowercased. Two requests describing
// the same parcel must normalise identically regardless of input precision.
func (p PackageSpec) Normalized() PackageSpec {
	p.Weight = p.Weight.Round(2)
	p.Length = p.Length.Round(2)
	p.Width = p.Width.Round(2)
	p.Height = p.Height.Round(2)
	p.WeightUnit = strings.ToLower(strings.TrimSpace(p.WeightUnit))
	p.DimensionUnit = strings.ToLower(strings.TrimSpace(p.DimensionUnit))
	return p
}

// Normalized returns a copy of the request with addresses and package
// canonicalised and service preferences trimmed, lowercased where carrier
// codes are case-insensitive, and deduplicated preserving sorted order.
func (r RateRequest) Normalized() RateRequest {
	r.OrderID = strings.TrimSpace(r.OrderID)
	r.ShipFrom = r.ShipFrom.Normalized()
	r.ShipTo = r.ShipTo.Normalized()
	r.Package = r.Package.Normalized()
	r.ServicePreferences = normalizeServiceList(r.ServicePreferences)
	return r
}

func normalizeServiceList(prefs []string) []string {
	if len(prefs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(prefs))
	out := make([]string, 0, len(prefs))
	for _, p := range prefs {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// WeightInKilograms converts the package weight to kilograms for carriers that
// rate in metric units.
func (p PackageSpec) WeightInKilograms() decimal.Decimal {
	if strings.EqualFold(p.WeightUnit, "lb") || strings.EqualFold(p.WeightUnit, "lbs") {
		return p.Weight.Mul(decimal.RequireFromString("0.453592")).Round(3)
	}
	return p.Weight
}

// DimensionsInCentimetres converts length, width, and height to centimetres.
func (p PackageSpec) DimensionsInCentimetres() (length, width, height decimal.Decimal) {
	factor := decimal.NewFromInt(1)
	if strings.EqualFold(p.DimensionUnit, "in") || strings.EqualFold(p.DimensionUnit, "inch") {
		factor = decimal.RequireFromString("2.54")
	}
	round := func(d decimal.Decimal) decimal.Decimal { return d.Mul(factor).Round(1) }
	return round(p.Length), round(p.Width), round(p.Height)
}
