package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stoneyard/api/internal/platform/auth"
	"github.com/stoneyard/api/internal/platform/httpx"
	"github.com/stoneyard/api/internal/services"
)

const maxHoldBodySize = 64 * 1024

// HoldHandlers exposes the hold (apartado) submission endpoint.
type HoldHandlers struct {
	authn *auth.Authenticator
	holds services.HoldService
}

// NewHoldHandlers constructs handlers over the hold service.
func NewHoldHandlers(authn *auth.Authenticator, holds services.HoldService) *HoldHandlers {
	return &HoldHandlers{
		authn: authn,
		holds: holds,
	}
}

// Routes wires the /holds endpoints onto the provided router.
func (h *HoldHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createFromCart)
}

func (h *HoldHandlers) createFromCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.holds != nil, "hold")
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxHoldBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createHoldsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	prices, err := parseDecimalMap(req.UnitPrices)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.holds.CreateFromCart(ctx, services.CreateHoldsCommand{
		SellerID:     identity.UID,
		SellerRole:   primaryRole(identity),
		CustomerID:   strings.TrimSpace(req.CustomerID),
		CustomerName: strings.TrimSpace(req.CustomerName),
		ProjectID:    strings.TrimSpace(req.ProjectID),
		ArchitectID:  strings.TrimSpace(req.ArchitectID),
		Currency:     strings.TrimSpace(req.Currency),
		Notes:        strings.TrimSpace(req.Notes),
		UnitPrices:   prices,
	})
	if err != nil {
		h.writeHoldError(ctx, w, err)
		return
	}

	status := http.StatusCreated
	if result.Authorization != nil {
		status = http.StatusAccepted
	}
	writeJSONResponse(w, status, buildHoldCreationPayload(result))
}

func (h *HoldHandlers) writeHoldError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrHoldInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrHoldUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("hold_service_unavailable", "hold service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("hold_error", "hold submission failed", http.StatusInternalServerError))
	}
}

func buildHoldCreationPayload(result services.HoldCreationResult) holdCreationResponse {
	payload := holdCreationResponse{
		Created: result.Created,
		Failed:  result.Failed,
	}
	for _, hold := range result.Holds {
		payload.Holds = append(payload.Holds, holdPayload{
			ID:         hold.ID,
			UnitID:     hold.UnitID,
			LotName:    hold.LotName,
			ProductID:  hold.ProductID,
			CustomerID: hold.CustomerID,
			SellerID:   hold.SellerID,
			Currency:   hold.Currency,
			UnitPrice:  hold.UnitPrice.String(),
			StartsAt:   formatTime(hold.StartsAt),
			ExpiresAt:  formatTime(hold.ExpiresAt),
		})
	}
	for _, failure := range result.Failures {
		payload.Failures = append(payload.Failures, bindFailurePayload{
			UnitID: failure.UnitID,
			Reason: failure.Reason,
		})
	}
	if result.Authorization != nil {
		authz := buildAuthorizationPayload(*result.Authorization)
		payload.Authorization = &authz
	}
	return payload
}

type createHoldsRequest struct {
	CustomerID   string            `json:"customer_id"`
	CustomerName string            `json:"customer_name"`
	ProjectID    string            `json:"project_id"`
	ArchitectID  string            `json:"architect_id"`
	Currency     string            `json:"currency"`
	Notes        string            `json:"notes"`
	UnitPrices   map[string]string `json:"unit_prices"`
}

type holdCreationResponse struct {
	Holds         []holdPayload         `json:"holds,omitempty"`
	Failures      []bindFailurePayload  `json:"failures,omitempty"`
	Created       int                   `json:"created"`
	Failed        int                   `json:"failed"`
	Authorization *authorizationPayload `json:"authorization,omitempty"`
}

type holdPayload struct {
	ID         string `json:"id"`
	UnitID     string `json:"unit_id"`
	LotName    string `json:"lot_name,omitempty"`
	ProductID  string `json:"product_id"`
	CustomerID string `json:"customer_id"`
	SellerID   string `json:"seller_id"`
	Currency   string `json:"currency"`
	UnitPrice  string `json:"unit_price"`
	StartsAt   string `json:"starts_at"`
	ExpiresAt  string `json:"expires_at"`
}
