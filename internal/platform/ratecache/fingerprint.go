package ratecache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/storeops/rates-api/internal/domain"
)

// Fingerprint derives a fixed-length opaque cache key from the semantic
// content of a rate request. The request is normalized first (trimmed and
// canonicalised addresses, dimensions rounded to two decimals, service
// preferences sorted and deduplicated), so two logically identical requests
// produce the same key regardless of input field ordering or precision.
func Fingerprint(req domain.RateRequest) string {
	req = req.Normalized()

	var b strings.Builder
	writeAddress := func(a domain.Address) {
		b.WriteString(strings.ToLower(a.Line1))
		b.WriteByte('|')
		b.WriteString(strings.ToLower(a.Line2))
		b.WriteByte('|')
		b.WriteString(strings.ToLower(a.City))
		b.WriteByte('|')
		b.WriteString(a.State)
		b.WriteByte('|')
		b.WriteString(a.PostalCode)
		b.WriteByte('|')
		b.WriteString(a.Country)
		b.WriteByte('|')
		if a.Residential {
			b.WriteByte('r')
		}
		b.WriteByte(';')
	}

	b.WriteString("from:")
	writeAddress(req.ShipFrom)
	b.WriteString("to:")
	writeAddress(req.ShipTo)

	b.WriteString("pkg:")
	b.WriteString(req.Package.Weight.StringFixed(2))
	b.WriteByte('|')
	b.WriteString(req.Package.Length.StringFixed(2))
	b.WriteByte('|')
	b.WriteString(req.Package.Width.StringFixed(2))
	b.WriteByte('|')
	b.WriteString(req.Package.Height.StringFixed(2))
	b.WriteByte('|')
	b.WriteString(req.Package.WeightUnit)
	b.WriteByte('|')
	b.WriteString(req.Package.DimensionUnit)
	b.WriteByte(';')

	b.WriteString("svc:")
	b.WriteString(strings.Join(req.ServicePreferences, ","))
	b.WriteByte(';')

	b.WriteString("opt:")
	if req.AdditionalServices.Signature {
		b.WriteString("sig,")
	}
	if req.AdditionalServices.Insurance {
		b.WriteString("ins=")
		b.WriteString(req.AdditionalServices.InsuranceValue.StringFixed(2))
		b.WriteByte(',')
	}
	if req.AdditionalServices.SaturdayDelivery {
		b.WriteString("sat,")
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
