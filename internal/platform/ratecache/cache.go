// Package ratecache provides a short-lived, bounded cache for normalized
// shipping rates keyed by a deterministic request fingerprint. Cache failures
// are never fatal: every implementation degrades to miss behaviour and logs
// rather than returning errors to rating callers.
package ratecache

import (
	"context"
	"time"

	"github.com/storeops/rates-api/internal/domain"
)

const (
	// DefaultTTL bounds how long a cached rate list stays servable.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxEntries bounds the number of cached fingerprints.
	DefaultMaxEntries = 50
	// DefaultSweepInterval is how often the background sweep purges expired
	// entries independent of reads.
	DefaultSweepInterval = 60 * time.Second
)

// Stats reports cumulative cache effectiveness counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

// Cache stores rate lists under request fingerprints with per-entry TTLs.
// An entry is never returned once expired; expiry is enforced lazily on read
// and proactively by each implementation's sweep mechanism.
type Cache interface {
	Get(ctx context.Context, fingerprint string) ([]domain.ShippingRate, bool)
	Set(ctx context.Context, fingerprint string, rates []domain.ShippingRate, ttl time.Duration)
	HasValid(ctx context.Context, fingerprint string) bool
	Clear(ctx context.Context, fingerprint string)
	ClearAll(ctx context.Context)
	Stats() Stats
}
