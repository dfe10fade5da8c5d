package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/storeops/rates-api/internal/carriers"
	domain "github.com/storeops/rates-api/internal/domain"
	"github.com/storeops/rates-api/internal/platform/ratecache"
	"github.com/storeops/rates-api/internal/platform/requestctx"
	"github.com/storeops/rates-api/internal/repositories"
)

const (
	defaultCarrierTimeout = 25 * time.Second

	noActiveCarriersMessage = "no active carrier configurations; connect a carrier to get rates"
	noRatesMessage          = "no rates available from configured carriers"
)

// AdapterFactory resolves the adapter for a carrier account.
type AdapterFactory interface {
	ForAccount(account domain.CarrierAccount) (carriers.Adapter, error)
}

type rateService struct {
	accounts       repositories.CarrierAccountRepository
	adapters       AdapterFactory
	cache          ratecache.Cache
	cacheTTL       time.Duration
	carrierTimeout time.Duration
	clock          func() time.Time
}

// RateServiceDeps bundles constructor inputs for the rate service.
type RateServiceDeps struct {
	Accounts       repositories.CarrierAccountRepository
	Adapters       AdapterFactory
	Cache          ratecache.Cache
	CacheTTL       time.Duration
	CarrierTimeout time.Duration
	Clock          func() time.Time
}

// NewRateService creates the rating orchestrator.
func NewRateService(deps RateServiceDeps) (RateService, error) {
	if deps.Accounts == nil {
		return nil, fmt.Errorf("rate service: carrier account repository is required")
	}
	if deps.Adapters == nil {
		return nil, fmt.Errorf("rate service: adapter factory is required")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("rate service: cache is required")
	}

	cacheTTL := deps.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = ratecache.DefaultTTL
	}
	carrierTimeout := deps.CarrierTimeout
	if carrierTimeout <= 0 {
		carrierTimeout = defaultCarrierTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &rateService{
		accounts:       deps.Accounts,
		adapters:       deps.Adapters,
		cache:          deps.Cache,
		cacheTTL:       cacheTTL,
		carrierTimeout: carrierTimeout,
		clock:          clock,
	}, nil
}

// QuoteRates implements RateService.
func (s *rateService) QuoteRates(ctx context.Context, cmd QuoteRatesCommand) (RateQuote, error) {
	logger := requestctx.Logger(ctx)

	if err := validateRequest(cmd); err != nil {
		return RateQuote{}, err
	}

	req := cmd.Request.Normalized()
	fingerprint := ratecache.Fingerprint(req)

	if cached, ok := s.cache.Get(ctx, fingerprint); ok {
		logger.Debug("rate cache hit", zap.String("fingerprint", fingerprint), zap.Int("rates", len(cached)))
		return buildQuote(cached), nil
	}

	accounts, err := s.accounts.ListActive(ctx, cmd.UserID)
	if err != nil {
		return RateQuote{}, fmt.Errorf("list active carrier accounts: %w", err)
	}
	if len(accounts) == 0 {
		return RateQuote{Rates: []ShippingRate{}, Message: noActiveCarriersMessage}, nil
	}

	rates := s.fanOut(ctx, logger, accounts, req)

	quote := buildQuote(rates)
	if len(rates) == 0 {
		quote.Message = noRatesMessage
		return quote, nil
	}

	s.cache.Set(ctx, fingerprint, quote.Rates, s.cacheTTL)
	return quote, nil
}

// InvalidateQuote implements RateService.
func (s *rateService) InvalidateQuote(ctx context.Context, req RateRequest) {
	s.cache.Clear(ctx, ratecache.Fingerprint(req.Normalized()))
}

// fanOut queries every carrier concurrently. One slow or failing carrier is
// bounded by the per-carrier timeout and never suppresses the others' results;
// partial output is the expected steady state.
func (s *rateService) fanOut(ctx context.Context, logger *zap.Logger, accounts []domain.CarrierAccount, req domain.RateRequest) []ShippingRate {
	type result struct {
		carrier domain.Carrier
		rates   []domain.ShippingRate
		err     error
	}

	results := make(chan result, len(accounts))
	var wg sync.WaitGroup
	for _, account := range accounts {
		adapter, err := s.adapters.ForAccount(account)
		if err != nil {
			logger.Warn("no adapter for carrier account",
				zap.String("account_id", account.ID),
				zap.String("carrier", account.Carrier.String()),
				zap.Error(err))
			continue
		}

		wg.Add(1)
		go func(account domain.CarrierAccount, adapter carriers.Adapter) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, s.carrierTimeout)
			defer cancel()
			rates, err := adapter.GetRates(callCtx, req)
			results <- result{carrier: account.Carrier, rates: rates, err: err}
		}(account, adapter)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var merged []ShippingRate
	for res := range results {
		if res.err != nil {
			switch {
			case carriers.IsAuthError(res.err):
				logger.Warn("carrier authentication failed, skipping carrier",
					zap.String("carrier", res.carrier.String()),
					zap.Error(res.err))
			default:
				if fault, ok := carriers.AsSOAPFault(res.err); ok {
					logger.Warn("carrier returned soap fault, skipping carrier",
						zap.String("carrier", res.carrier.String()),
						zap.String("fault_code", fault.Code),
						zap.String("fault_message", fault.Message))
				} else {
					logger.Warn("carrier rate call failed, skipping carrier",
						zap.String("carrier", res.carrier.String()),
						zap.Error(res.err))
				}
			}
			continue
		}
		merged = append(merged, res.rates...)
	}
	return merged
}

// buildQuote sorts the merged rates and selects the recommendation. Ordering
// is cost ascending with carrier name then service code as tie-breaks, so
// equal-cost quotes resolve deterministically.
func buildQuote(rates []ShippingRate) RateQuote {
	sorted := make([]ShippingRate, len(rates))
	copy(sorted, rates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if cmp := sorted[i].Cost.Cmp(sorted[j].Cost); cmp != 0 {
			return cmp < 0
		}
		if sorted[i].Carrier != sorted[j].Carrier {
			return sorted[i].Carrier < sorted[j].Carrier
		}
		return sorted[i].ServiceCode < sorted[j].ServiceCode
	})

	quote := RateQuote{Rates: sorted}
	if len(sorted) > 0 {
		recommended := sorted[0]
		quote.Recommended = &recommended
	}
	return quote
}

func validateRequest(cmd QuoteRatesCommand) error {
	var missing []string
	if cmd.UserID == "" {
		missing = append(missing, "user_id")
	}

	req := cmd.Request
	checkAddress := func(prefix string, a domain.Address) {
		if a.PostalCode == "" {
			missing = append(missing, prefix+".postal_code")
		}
		if a.Country == "" {
			missing = append(missing, prefix+".country")
		}
	}
	checkAddress("ship_from", req.ShipFrom)
	checkAddress("ship_to", req.ShipTo)

	if !req.Package.Weight.IsPositive() {
		missing = append(missing, "package.weight")
	}
	if !req.Package.Length.IsPositive() || !req.Package.Width.IsPositive() || !req.Package.Height.IsPositive() {
		missing = append(missing, "package.dimensions")
	}

	if len(missing) > 0 {
		return NewValidationError(missing...)
	}
	return nil
}
