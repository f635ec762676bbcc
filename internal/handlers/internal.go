package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stoneyard/api/internal/platform/httpx"
	"github.com/stoneyard/api/internal/services"
)

// InternalHandlers exposes scheduler-invoked endpoints. Authentication is
// handled by the OIDC middleware mounted on the /internal group.
type InternalHandlers struct {
	rates services.RateRefreshService
}

// NewInternalHandlers constructs handlers for internal jobs.
func NewInternalHandlers(rates services.RateRefreshService) *InternalHandlers {
	return &InternalHandlers{rates: rates}
}

// Routes wires the /internal endpoints onto the provided router.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/rates:refresh", h.refreshRates)
}

func (h *InternalHandlers) refreshRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h == nil || h.rates == nil {
		httpx.WriteError(ctx, w, httpx.NewError("rates_service_unavailable", "rate refresh service is unavailable", http.StatusServiceUnavailable))
		return
	}

	result, err := h.rates.RefreshExchangeRate(ctx)
	if err != nil {
		if errors.Is(err, services.ErrRateRefreshUnavailable) {
			httpx.WriteError(ctx, w, httpx.NewError("rates_service_unavailable", "rate refresh service is unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("rates_refresh_failed", "rate refresh failed", http.StatusInternalServerError))
		return
	}

	payload := rateRefreshResponse{
		Skipped:          result.Skipped,
		Reason:           result.Reason,
		ProductsRepriced: result.ProductsRepriced,
	}
	if result.Rate.IsPositive() {
		payload.Rate = result.Rate.String()
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

type rateRefreshResponse struct {
	Rate             string `json:"rate,omitempty"`
	Skipped          bool   `json:"skipped"`
	Reason           string `json:"reason,omitempty"`
	ProductsRepriced int    `json:"products_repriced"`
}
