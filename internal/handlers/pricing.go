package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stoneyard/api/internal/platform/auth"
	"github.com/stoneyard/api/internal/platform/httpx"
	"github.com/stoneyard/api/internal/services"
)

const (
	maxPricingBodySize = 64 * 1024

	quoteRateLimit  = 30
	quoteRateWindow = time.Minute
)

// PricingHandlers exposes the tier-price ladder and the gate preview quote.
type PricingHandlers struct {
	authn   *auth.Authenticator
	pricing services.PricingService
	quotes  rateLimiter
}

// NewPricingHandlers constructs handlers over the pricing service. Quote
// previews are throttled per seller since cart edits can fire them rapidly.
func NewPricingHandlers(authn *auth.Authenticator, pricing services.PricingService) *PricingHandlers {
	return &PricingHandlers{
		authn:   authn,
		pricing: pricing,
		quotes:  newSimpleRateLimiter(quoteRateLimit, quoteRateWindow, time.Now),
	}
}

// Routes wires the /pricing endpoints onto the provided router.
func (h *PricingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/products/{productID}/tiers", h.listTiers)
	r.Post("/products/{productID}:recompute", h.recompute)
	r.Post("/quote", h.quote)
}

func (h *PricingHandlers) listTiers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w, h.pricing != nil, "pricing"); !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	currency := strings.TrimSpace(r.URL.Query().Get("currency"))

	tiers, err := h.pricing.ListTierPrices(ctx, productID, currency)
	if err != nil {
		h.writePricingError(ctx, w, err)
		return
	}

	payload := make([]tierPricePayload, 0, len(tiers))
	for _, tier := range tiers {
		payload = append(payload, tierPricePayload{
			Label:    tier.Label,
			Amount:   tier.Amount.String(),
			Currency: tier.Currency,
		})
	}
	writeJSONResponse(w, http.StatusOK, tierListResponse{ProductID: productID, Tiers: payload})
}

func (h *PricingHandlers) recompute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.pricing != nil, "pricing")
	if !ok {
		return
	}
	if !identity.HasAnyRole(auth.RoleAdmin, auth.RoleAuthorizer) {
		httpx.WriteError(ctx, w, httpx.NewError("permission_denied", "recompute requires an admin or authorizer role", http.StatusForbidden))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	product, err := h.pricing.RecomputeProduct(ctx, productID)
	if err != nil {
		h.writePricingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, recomputeResponse{
		ProductID: product.ProductID,
		AllInCost: product.AllInCost.String(),
		Tiers: tierPricesPayload{
			Local:   buildTierSetPayload(product.Tiers.Local),
			Foreign: buildTierSetPayload(product.Tiers.Foreign),
		},
		UpdatedAt: formatTime(product.UpdatedAt),
	})
}

func (h *PricingHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.pricing != nil, "pricing")
	if !ok {
		return
	}
	if h.quotes != nil && !h.quotes.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many quote requests; retry shortly", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxPricingBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req quoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	prices, err := parseDecimalMap(req.Prices)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	role := auth.RoleSeller
	if len(identity.Roles) > 0 {
		role = identity.Roles[0]
	}

	result, err := h.pricing.QuoteGate(ctx, services.GateQuoteCommand{
		Role:            role,
		Currency:        strings.TrimSpace(req.Currency),
		RequestedPrices: prices,
	})
	if err != nil {
		h.writePricingError(ctx, w, err)
		return
	}

	violations := make([]quoteViolationPayload, 0, len(result.Violations))
	for _, violation := range result.Violations {
		violations = append(violations, quoteViolationPayload{
			ProductID:      violation.ProductID,
			RequestedPrice: violation.RequestedPrice.String(),
			MediumPrice:    violation.MediumPrice.String(),
			MinimumPrice:   violation.MinimumPrice.String(),
			Level:          string(violation.Level),
		})
	}
	writeJSONResponse(w, http.StatusOK, quoteResponse{
		AuthorizationRequired: result.Required,
		Violations:            violations,
	})
}

func (h *PricingHandlers) writePricingError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPricingProductNotFound), errors.Is(err, services.ErrCostRollupProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product pricing record not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPricingUnavailable), errors.Is(err, services.ErrCostRollupUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("pricing_service_unavailable", "pricing service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("pricing_error", "pricing operation failed", http.StatusInternalServerError))
	}
}

func buildTierSetPayload(set services.TierSet) tierSetPayload {
	return tierSetPayload{
		High:    set.High.String(),
		Medium:  set.Medium.String(),
		Minimum: set.Minimum.String(),
	}
}

type tierListResponse struct {
	ProductID string             `json:"product_id"`
	Tiers     []tierPricePayload `json:"tiers"`
}

type tierPricePayload struct {
	Label    string `json:"label"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type recomputeResponse struct {
	ProductID string            `json:"product_id"`
	AllInCost string            `json:"all_in_cost"`
	Tiers     tierPricesPayload `json:"tiers"`
	UpdatedAt string            `json:"updated_at"`
}

type tierPricesPayload struct {
	Local   tierSetPayload `json:"local"`
	Foreign tierSetPayload `json:"foreign"`
}

type tierSetPayload struct {
	High    string `json:"high"`
	Medium  string `json:"medium"`
	Minimum string `json:"minimum"`
}

type quoteRequest struct {
	Currency string            `json:"currency"`
	Prices   map[string]string `json:"prices"`
}

type quoteResponse struct {
	AuthorizationRequired bool                    `json:"authorization_required"`
	Violations            []quoteViolationPayload `json:"violations"`
}

type quoteViolationPayload struct {
	ProductID      string `json:"product_id"`
	RequestedPrice string `json:"requested_price"`
	MediumPrice    string `json:"medium_price"`
	MinimumPrice   string `json:"minimum_price"`
	Level          string `json:"level"`
}
