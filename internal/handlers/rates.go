package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storeops/rates-api/internal/domain"
	"github.com/storeops/rates-api/internal/platform/auth"
	"github.com/storeops/rates-api/internal/platform/httpx"
	"github.com/storeops/rates-api/internal/platform/ratecache"
	"github.com/storeops/rates-api/internal/services"
)

const maxRateRequestBody = 32 * 1024

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

// RateHandlers exposes the rating endpoints: quote, cache invalidation, and
// cache statistics.
type RateHandlers struct {
	authn    *auth.Authenticator
	rates    services.RateService
	cache    ratecache.Cache
	validate *validator.Validate
}

// NewRateHandlers constructs the rating handler set.
func NewRateHandlers(authn *auth.Authenticator, svc services.RateService, cache ratecache.Cache) *RateHandlers {
	return &RateHandlers{
		authn:    authn,
		rates:    svc,
		cache:    cache,
		validate: newRateValidator(),
	}
}

// Routes registers the rating endpoints beneath /rates.
func (h *RateHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	route := r
	if h.authn != nil {
		route = route.With(h.authn.RequireAuth())
	}

	route.Post("/", h.quote)
	route.Post("/invalidate", h.invalidate)
	route.Get("/cache/stats", h.cacheStats)
	route.Delete("/cache", h.clearCache)
}

func (h *RateHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rates == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "rating service not available", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	req, err := h.decodeRateRequest(ctx, w, r)
	if err != nil {
		return
	}

	quote, err := h.rates.QuoteRates(ctx, services.QuoteRatesCommand{
		UserID:  identity.UserID,
		Request: req,
	})
	if err != nil {
		writeRateError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildRateQuotePayload(quote))
}

func (h *RateHandlers) invalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rates == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "rating service not available", http.StatusServiceUnavailable))
		return
	}

	req, err := h.decodeRateRequest(ctx, w, r)
	if err != nil {
		return
	}

	h.rates.InvalidateQuote(ctx, req)
	writeJSONResponse(w, http.StatusOK, map[string]any{"invalidated": true})
}

func (h *RateHandlers) cacheStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cache == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "rate cache not available", http.StatusServiceUnavailable))
		return
	}
	writeJSONResponse(w, http.StatusOK, h.cache.Stats())
}

func (h *RateHandlers) clearCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cache == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "rate cache not available", http.StatusServiceUnavailable))
		return
	}
	h.cache.ClearAll(ctx)
	writeJSONResponse(w, http.StatusOK, map[string]any{"cleared": true})
}

// decodeRateRequest reads, parses, and validates the rating payload. On
// failure the error response has already been written and a non-nil error is
// returned so callers can bail out.
func (h *RateHandlers) decodeRateRequest(ctx context.Context, w http.ResponseWriter, r *http.Request) (domain.RateRequest, error) {
	body, err := readLimitedBody(r, maxRateRequestBody)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return domain.RateRequest{}, err
	}

	var payload rateRequestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return domain.RateRequest{}, err
	}

	if err := h.validate.Struct(payload); err != nil {
		httpx.WriteError(ctx, w, validationErrorToHTTP(err))
		return domain.RateRequest{}, err
	}

	return payload.toDomain(), nil
}

type rateRequestPayload struct {
	OrderID            string                     `json:"orderId"`
	ShipFrom           addressPayload             `json:"shipFrom" validate:"required"`
	ShipTo             addressPayload             `json:"shipTo" validate:"required"`
	Package            packagePayload             `json:"package" validate:"required"`
	ServicePreferences []string                   `json:"servicePreferences" validate:"omitempty,dive,required"`
	AdditionalServices *additionalServicesPayload `json:"additionalServices"`
}

type addressPayload struct {
	Name        string `json:"name"`
	Company     string `json:"company"`
	Line1       string `json:"line1"`
	Line2       string `json:"line2"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postalCode" validate:"required"`
	Country     string `json:"country" validate:"required"`
	Phone       string `json:"phone"`
	Residential bool   `json:"residential"`
}

type packagePayload struct {
	Weight        decimal.Decimal `json:"weight" validate:"required"`
	Length        decimal.Decimal `json:"length" validate:"required"`
	Width         decimal.Decimal `json:"width" validate:"required"`
	Height        decimal.Decimal `json:"height" validate:"required"`
	WeightUnit    string          `json:"weightUnit" validate:"omitempty,oneof=lb kg"`
	DimensionUnit string          `json:"dimensionUnit" validate:"omitempty,oneof=in cm"`
}

type additionalServicesPayload struct {
	Signature        bool            `json:"signature"`
	Insurance        bool            `json:"insurance"`
	InsuranceValue   decimal.Decimal `json:"insuranceValue"`
	SaturdayDelivery bool            `json:"saturdayDelivery"`
}

func (p rateRequestPayload) toDomain() domain.RateRequest {
	req := domain.RateRequest{
		OrderID:            strings.TrimSpace(p.OrderID),
		ShipFrom:           p.ShipFrom.toDomain(),
		ShipTo:             p.ShipTo.toDomain(),
		Package:            p.Package.toDomain(),
		ServicePreferences: append([]string(nil), p.ServicePreferences...),
	}
	if p.AdditionalServices != nil {
		req.AdditionalServices = domain.AdditionalServices{
			Signature:        p.AdditionalServices.Signature,
			Insurance:        p.AdditionalServices.Insurance,
			InsuranceValue:   p.AdditionalServices.InsuranceValue,
			SaturdayDelivery: p.AdditionalServices.SaturdayDelivery,
		}
	}
	return req
}

func (p addressPayload) toDomain() domain.Address {
	return domain.Address{
		Name:        p.Name,
		Company:     p.Company,
		Line1:       p.Line1,
		Line2:       p.Line2,
		City:        p.City,
		State:       p.State,
		PostalCode:  p.PostalCode,
		Country:     p.Country,
		Phone:       p.Phone,
		Residential: p.Residential,
	}
}

func (p packagePayload) toDomain() domain.PackageSpec {
	return domain.PackageSpec{
		Weight:        p.Weight,
		Length:        p.Length,
		Width:         p.Width,
		Height:        p.Height,
		WeightUnit:    p.WeightUnit,
		DimensionUnit: p.DimensionUnit,
	}
}

type ratePayload struct {
	Carrier       string `json:"carrier"`
	ServiceCode   string `json:"serviceCode"`
	ServiceName   string `json:"serviceName"`
	Cost          string `json:"cost"`
	Currency      string `json:"currency"`
	EstimatedDays string `json:"estimatedDays,omitempty"`
}

type rateQuotePayload struct {
	QuoteID     string        `json:"quoteId"`
	Rates       []ratePayload `json:"rates"`
	Recommended *ratePayload  `json:"recommended,omitempty"`
	Message     string        `json:"message,omitempty"`
}

func buildRateQuotePayload(quote domain.RateQuote) rateQuotePayload {
	payload := rateQuotePayload{
		QuoteID: uuid.NewString(),
		Rates:   make([]ratePayload, 0, len(quote.Rates)),
		Message: quote.Message,
	}
	for _, rate := range quote.Rates {
		payload.Rates = append(payload.Rates, buildRatePayload(rate))
	}
	if quote.Recommended != nil {
		recommended := buildRatePayload(*quote.Recommended)
		payload.Recommended = &recommended
	}
	return payload
}

func buildRatePayload(rate domain.ShippingRate) ratePayload {
	return ratePayload{
		Carrier:       rate.Carrier.String(),
		ServiceCode:   rate.ServiceCode,
		ServiceName:   rate.ServiceName,
		Cost:          rate.Cost.StringFixed(2),
		Currency:      rate.Currency,
		EstimatedDays: rate.EstimatedDays,
	}
}

func writeRateError(ctx context.Context, w http.ResponseWriter, err error) {
	var validation *services.ValidationError
	if errors.As(err, &validation) {
		httpErr := httpx.NewError("invalid_request", validation.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{"fields": validation.Fields()})
		httpx.WriteError(ctx, w, httpErr)
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("internal", "failed to quote rates", http.StatusInternalServerError))
}

// newRateValidator builds the payload validator with JSON tag names so error
// details reference the wire field names clients actually send.
func newRateValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		tag := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return field.Name
		}
		return tag
	})
	return v
}

func validationErrorToHTTP(err error) httpx.Error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return httpx.NewError("invalid_request", "invalid request payload", http.StatusBadRequest)
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		// Namespace includes the payload struct name; trim it so details read
		// like JSON paths.
		namespace := fe.Namespace()
		if idx := strings.Index(namespace, "."); idx >= 0 {
			namespace = namespace[idx+1:]
		}
		fields = append(fields, namespace)
	}
	return httpx.NewError("invalid_request", "request payload failed validation", http.StatusBadRequest).
		WithDetails(map[string]any{"fields": fields})
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxRateRequestBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
