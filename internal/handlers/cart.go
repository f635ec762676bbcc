package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stoneyard/api/internal/platform/auth"
	"github.com/stoneyard/api/internal/platform/httpx"
	"github.com/stoneyard/api/internal/services"
)

const maxCartBodySize = 64 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

// CartHandlers exposes the authenticated cart endpoints for the current user.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing Firebase authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getCart)
	r.Put("/items", h.syncItems)
	r.Post("/items", h.addItem)
	r.Delete("/items/{unitID}", h.removeItem)
	r.Delete("/items:held", h.removeHeldItems)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.carts != nil, "cart")
	if !ok {
		return
	}

	view, err := h.carts.GetCart(ctx, identity.UID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.carts != nil, "cart")
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req cartItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	quantity, err := parseDecimal(req.Quantity)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity must be a decimal string", http.StatusBadRequest))
		return
	}

	view, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		UserID:   identity.UID,
		UnitID:   strings.TrimSpace(req.UnitID),
		Quantity: quantity,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.carts != nil, "cart")
	if !ok {
		return
	}

	unitID := strings.TrimSpace(chi.URLParam(r, "unitID"))
	view, err := h.carts.RemoveItem(ctx, identity.UID, unitID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) syncItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.carts != nil, "cart")
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req syncCartRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cmd := services.SyncCartCommand{UserID: identity.UID}
	for _, item := range req.Items {
		quantity, err := parseDecimal(item.Quantity)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("quantity for unit %s must be a decimal string", item.UnitID), http.StatusBadRequest))
			return
		}
		cmd.Items = append(cmd.Items, services.AddCartItemCommand{
			UserID:   identity.UID,
			UnitID:   strings.TrimSpace(item.UnitID),
			Quantity: quantity,
		})
	}

	view, err := h.carts.SyncItems(ctx, cmd)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) removeHeldItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.carts != nil, "cart")
	if !ok {
		return
	}

	view, err := h.carts.RemoveHeldUnits(ctx, identity.UID)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "cart operation failed", http.StatusInternalServerError))
	}
}

func buildCartPayload(view services.CartView) cartPayload {
	items := make([]cartItemPayload, 0, len(view.Items))
	for _, item := range view.Items {
		entry := cartItemPayload{
			UnitID:       strings.TrimSpace(item.UnitID),
			LotID:        strings.TrimSpace(item.LotID),
			LotName:      strings.TrimSpace(item.LotName),
			ProductID:    strings.TrimSpace(item.ProductID),
			ProductName:  strings.TrimSpace(item.ProductName),
			Quantity:     item.Quantity.String(),
			LocationName: strings.TrimSpace(item.LocationName),
			Held:         item.Held,
			HoldCustomer: strings.TrimSpace(item.HoldCustomer),
		}
		if !item.AddedAt.IsZero() {
			entry.AddedAt = formatTime(item.AddedAt)
		}
		items = append(items, entry)
	}

	payload := cartPayload{
		UserID:     strings.TrimSpace(view.UserID),
		ItemsCount: len(items),
		Items:      items,
	}
	if !view.UpdatedAt.IsZero() {
		payload.UpdatedAt = formatTime(view.UpdatedAt)
	}
	return payload
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	UserID     string            `json:"user_id"`
	ItemsCount int               `json:"items_count"`
	Items      []cartItemPayload `json:"items"`
	UpdatedAt  string            `json:"updated_at,omitempty"`
}

type cartItemPayload struct {
	UnitID       string `json:"unit_id"`
	LotID        string `json:"lot_id,omitempty"`
	LotName      string `json:"lot_name,omitempty"`
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name,omitempty"`
	Quantity     string `json:"quantity"`
	LocationName string `json:"location_name,omitempty"`
	Held         bool   `json:"held"`
	HoldCustomer string `json:"hold_customer,omitempty"`
	AddedAt      string `json:"added_at,omitempty"`
}

type cartItemRequest struct {
	UnitID   string `json:"unit_id"`
	Quantity string `json:"quantity"`
}

type syncCartRequest struct {
	Items []cartItemRequest `json:"items"`
}

// Shared request plumbing for the handler package.

func requireIdentity(ctx context.Context, w http.ResponseWriter, serviceReady bool, name string) (*auth.Identity, bool) {
	if !serviceReady {
		httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxCartBodySize
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

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func parseDecimal(value string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero, errors.New("value is required")
	}
	return decimal.NewFromString(trimmed)
}

func parseDecimalMap(values map[string]string) (map[string]decimal.Decimal, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]decimal.Decimal, len(values))
	for key, value := range values {
		parsed, err := parseDecimal(value)
		if err != nil {
			return nil, fmt.Errorf("price for %s must be a decimal string", key)
		}
		out[strings.TrimSpace(key)] = parsed
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
