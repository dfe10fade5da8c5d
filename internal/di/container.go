package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/storeops/rates-api/internal/carriers"
	"github.com/storeops/rates-api/internal/platform/auth"
	"github.com/storeops/rates-api/internal/platform/config"
	"github.com/storeops/rates-api/internal/platform/observability"
	"github.com/storeops/rates-api/internal/platform/ratecache"
	"github.com/storeops/rates-api/internal/repositories"
	"github.com/storeops/rates-api/internal/repositories/postgres"
	"github.com/storeops/rates-api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Rates services.RateService
}

// Options carries optional overrides for container construction. Tests supply
// in-memory registries and caches; production wiring builds real ones from
// configuration.
type Options struct {
	Logger     *zap.Logger
	Registry   repositories.Registry
	Cache      ratecache.Cache
	HTTPClient carriers.Doer
}

// Container wires repositories, the rate cache, carrier adapters, and
// services for runtime use.
type Container struct {
	Config        config.Config
	Repositories  repositories.Registry
	Cache         ratecache.Cache
	Services      Services
	Authenticator *auth.Authenticator

	closers []func(context.Context) error
}

// NewContainer constructs the runtime dependencies from configuration.
// An empty database URL selects in-memory repositories; an empty Redis
// address selects the in-process rate cache.
func NewContainer(ctx context.Context, cfg config.Config, opts Options) (*Container, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Container{Config: cfg}

	reg, err := buildRegistry(ctx, cfg, opts, c)
	if err != nil {
		return nil, err
	}
	c.Repositories = reg

	cache, err := buildCache(cfg, opts, logger, c)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.Cache = cache

	authn, err := buildAuthenticator(cfg)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.Authenticator = authn

	accounts := reg.CarrierAccounts()

	tokens := carriers.NewUPSTokenManager(carriers.UPSTokenManagerConfig{
		HTTPClient: opts.HTTPClient,
		Logger:     carrierLogger(logger),
		Persister:  accounts.UpdateTokens,
	})

	factory := carriers.NewFactory(carriers.FactoryConfig{
		Tokens:            tokens,
		HTTPClient:        opts.HTTPClient,
		Logger:            carrierLogger(logger),
		UPSBaseURL:        cfg.Carriers.UPSBaseURL,
		CanadaPostBaseURL: cfg.Carriers.CanadaPostBaseURL,
	})

	rateSvc, err := services.NewRateService(services.RateServiceDeps{
		Accounts:       accounts,
		Adapters:       factory,
		Cache:          cache,
		CacheTTL:       cfg.RateCache.TTL,
		CarrierTimeout: cfg.Carriers.CallTimeout,
		Clock:          time.Now,
	})
	if err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("build rate service: %w", err)
	}
	c.Services = Services{Rates: rateSvc}

	return c, nil
}

// Close releases resources in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func buildRegistry(ctx context.Context, cfg config.Config, opts Options, c *Container) (repositories.Registry, error) {
	if opts.Registry != nil {
		return opts.Registry, nil
	}
	if cfg.Database.URL == "" {
		reg := repositories.NewMemoryRegistry()
		c.closers = append(c.closers, reg.Close)
		return reg, nil
	}
	reg, err := postgres.NewRegistry(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	c.closers = append(c.closers, reg.Close)
	return reg, nil
}

func buildCache(cfg config.Config, opts Options, logger *zap.Logger, c *Container) (ratecache.Cache, error) {
	if opts.Cache != nil {
		return opts.Cache, nil
	}
	if cfg.Redis.Addr == "" {
		cache := ratecache.NewMemoryCache(ratecache.MemoryCacheConfig{
			MaxEntries:    cfg.RateCache.MaxEntries,
			DefaultTTL:    cfg.RateCache.TTL,
			SweepInterval: cfg.RateCache.SweepInterval,
		})
		c.closers = append(c.closers, func(context.Context) error {
			cache.Close()
			return nil
		})
		return cache, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	cache, err := ratecache.NewRedisCache(ratecache.RedisCacheConfig{
		Client:     client,
		Logger:     logger,
		DefaultTTL: cfg.RateCache.TTL,
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("build redis cache: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error {
		return client.Close()
	})
	return cache, nil
}

func buildAuthenticator(cfg config.Config) (*auth.Authenticator, error) {
	if cfg.Auth.JWTSecret == "" {
		if cfg.IsLocal() {
			return nil, nil
		}
		return nil, errors.New("auth: jwt secret is required outside local environment")
	}
	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	})
	if err != nil {
		return nil, fmt.Errorf("build token verifier: %w", err)
	}
	return auth.NewAuthenticator(verifier), nil
}

// carrierLogger adapts the zap logger onto the carriers package's minimal
// logging contract, masking credential-shaped fields on the way through.
func carrierLogger(logger *zap.Logger) carriers.Logger {
	return func(ctx context.Context, event string, fields map[string]any) {
		redacted := observability.RedactFields(fields)
		zapFields := make([]zap.Field, 0, len(redacted))
		for key, value := range redacted {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}
