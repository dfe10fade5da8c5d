package carriers

import (
	"strings"

	"github.com/storeops/rates-api/internal/domain"
)

// RouteScope flags which origin/destination pairs a service level is valid
// for. Rating a domestic-only code on an international route is a guaranteed
// carrier rejection, so scoped-out codes are never attempted.
type RouteScope int

const (
	// RouteDomestic marks services valid only when origin and destination
	// countries match.
	RouteDomestic RouteScope = iota
	// RouteInternational marks services valid only for cross-border routes.
	RouteInternational
)

// ServiceDefinition describes one carrier service level.
type ServiceDefinition struct {
	Code  string
	Name  string
	Scope RouteScope
}

// upsServices is the fixed UPS service table. Codes follow the UPS Rating API
// service code scheme.
var upsServices = []ServiceDefinition{
	{Code: "01", Name: "UPS Next Day Air", Scope: RouteDomestic},
	{Code: "02", Name: "UPS 2nd Day Air", Scope: RouteDomestic},
	{Code: "03", Name: "UPS Ground", Scope: RouteDomestic},
	{Code: "12", Name: "UPS 3 Day Select", Scope: RouteDomestic},
	{Code: "13", Name: "UPS Next Day Air Saver", Scope: RouteDomestic},
	{Code: "07", Name: "UPS Worldwide Express", Scope: RouteInternational},
	{Code: "08", Name: "UPS Worldwide Expedited", Scope: RouteInternational},
	{Code: "11", Name: "UPS Standard", Scope: RouteInternational},
	{Code: "54", Name: "UPS Worldwide Express Plus", Scope: RouteInternational},
	{Code: "65", Name: "UPS Worldwide Saver", Scope: RouteInternational},
}

// canadaPostServices is the fixed Canada Post service table. Codes follow the
// Canada Post rating service code scheme; the carrier itself filters by
// destination block, so the table exists mainly to resolve display names and
// honour explicit service preferences.
var canadaPostServices = []ServiceDefinition{
	{Code: "DOM.RP", Name: "Regular Parcel", Scope: RouteDomestic},
	{Code: "DOM.EP", Name: "Expedited Parcel", Scope: RouteDomestic},
	{Code: "DOM.XP", Name: "Xpresspost", Scope: RouteDomestic},
	{Code: "DOM.PC", Name: "Priority", Scope: RouteDomestic},
	{Code: "USA.EP", Name: "Expedited Parcel USA", Scope: RouteInternational},
	{Code: "USA.XP", Name: "Xpresspost USA", Scope: RouteInternational},
	{Code: "USA.TP", Name: "Tracked Packet USA", Scope: RouteInternational},
	{Code: "INT.XP", Name: "Xpresspost International", Scope: RouteInternational},
	{Code: "INT.TP", Name: "Tracked Packet International", Scope: RouteInternational},
	{Code: "INT.IP.AIR", Name: "International Parcel Air", Scope: RouteInternational},
}

// CandidateServices returns the service definitions worth attempting for the
// given carrier and route, honouring explicit service preferences when set.
// Preferences that name services invalid for the route are dropped, not
// attempted and failed.
func CandidateServices(carrier domain.Carrier, req domain.RateRequest) []ServiceDefinition {
	var table []ServiceDefinition
	switch carrier {
	case domain.CarrierUPS:
		table = upsServices
	case domain.CarrierCanadaPost:
		table = canadaPostServices
	default:
		return nil
	}

	scope := RouteInternational
	if req.Domestic() {
		scope = RouteDomestic
	}

	preferred := make(map[string]struct{}, len(req.ServicePreferences))
	for _, p := range req.ServicePreferences {
		preferred[strings.ToLower(p)] = struct{}{}
	}

	out := make([]ServiceDefinition, 0, len(table))
	for _, def := range table {
		if def.Scope != scope {
			continue
		}
		if len(preferred) > 0 {
			if _, ok := preferred[strings.ToLower(def.Code)]; !ok {
				continue
			}
		}
		out = append(out, def)
	}
	return out
}

// ServiceName resolves the display name for a carrier service code, falling
// back to the code itself for services missing from the table.
func ServiceName(carrier domain.Carrier, code string) string {
	var table []ServiceDefinition
	switch carrier {
	case domain.CarrierUPS:
		table = upsServices
	case domain.CarrierCanadaPost:
		table = canadaPostServices
	}
	for _, def := range table {
		if strings.EqualFold(def.Code, code) {
			return def.Name
		}
	}
	return code
}
