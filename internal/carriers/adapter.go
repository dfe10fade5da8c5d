package carriers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/storeops/rates-api/internal/domain"
)

// ErrUnsupportedCarrier is returned when no adapter exists for a carrier.
var ErrUnsupportedCarrier = errors.New("carriers: unsupported carrier")

// Adapter translates a normalized rate request into one carrier's native API
// call and translates the native response back into normalized shipping rates.
// A nil-error return with an empty slice means the carrier answered but offered
// no usable service for the route; per-service failures inside an adapter are
// logged and skipped rather than surfaced.
type Adapter interface {
	Name() domain.Carrier
	GetRates(ctx context.Context, req domain.RateRequest) ([]domain.ShippingRate, error)
}

// Doer abstracts the HTTP client so tests can substitute transports.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Logger defines the logging contract for adapter operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

// TokenPersister is invoked after a successful OAuth grant or refresh so the
// new token can be written back to the credential row. Persistence is
// last-writer-wins; a persist failure must not fail the rate call.
type TokenPersister func(ctx context.Context, accountID, accessToken, refreshToken string, expiresAt time.Time) error

// AuthError indicates the carrier rejected or could not establish credentials.
// It is surfaced distinctly so callers can prompt re-authorization instead of
// treating it as a transient carrier outage.
type AuthError struct {
	Carrier domain.Carrier
	Reason  string
	Err     error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s auth: %s: %v", e.Carrier, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s auth: %s", e.Carrier, e.Reason)
}

// Unwrap exposes the underlying error.
func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// CarrierError wraps transport-level or malformed-response failures from a
// carrier API. Aggregation treats it as "this carrier produced zero rates".
type CarrierError struct {
	Carrier domain.Carrier
	Op      string
	Status  int
	Err     error
}

// Error implements the error interface.
func (e *CarrierError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Carrier, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Carrier, e.Op, e.Err)
}

// Unwrap exposes the underlying error.
func (e *CarrierError) Unwrap() error { return e.Err }

// SOAPFault is a structured SOAP fault extracted from a Canada Post response
// body. Detection happens before any field parsing and short-circuits it: a
// faulted response never yields partial rate data.
type SOAPFault struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *SOAPFault) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("soap fault %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("soap fault: %s", e.Message)
}

// AsSOAPFault extracts a SOAPFault from err when present.
func AsSOAPFault(err error) (*SOAPFault, bool) {
	var fault *SOAPFault
	if errors.As(err, &fault) {
		return fault, true
	}
	return nil, false
}

func noopLogger(context.Context, string, map[string]any) {}
