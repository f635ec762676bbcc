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

const maxOrderBodySize = 128 * 1024

// OrderHandlers exposes the sale-order submission endpoint.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs handlers over the order service.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createFromCart)
}

func (h *OrderHandlers) createFromCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil, "order")
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	prices, err := parseDecimalMap(req.UnitPrices)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		SellerID:    identity.UID,
		SellerRole:  primaryRole(identity),
		CustomerID:  strings.TrimSpace(req.CustomerID),
		ProjectID:   strings.TrimSpace(req.ProjectID),
		ArchitectID: strings.TrimSpace(req.ArchitectID),
		Currency:    strings.TrimSpace(req.Currency),
		Notes:       strings.TrimSpace(req.Notes),
		ApplyTax:    req.ApplyTax,
		UnitPrices:  prices,
	}
	for _, service := range req.Services {
		quantity, err := parseDecimal(service.Quantity)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "service quantity must be a decimal string", http.StatusBadRequest))
			return
		}
		unitPrice, err := parseDecimal(service.UnitPrice)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "service unit price must be a decimal string", http.StatusBadRequest))
			return
		}
		cmd.Services = append(cmd.Services, services.ServiceLine{
			ProductID: strings.TrimSpace(service.ProductID),
			Quantity:  quantity,
			UnitPrice: unitPrice,
		})
	}

	result, err := h.orders.CreateFromCart(ctx, cmd)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	payload := orderSubmissionResponse{}
	status := http.StatusCreated
	if result.Authorization != nil {
		authz := buildAuthorizationPayload(*result.Authorization)
		payload.Authorization = &authz
		status = http.StatusAccepted
	}
	if result.Order != nil {
		order := buildOrderPayload(*result.Order)
		payload.Order = &order
	}
	for _, failure := range result.BindFailures {
		payload.BindFailures = append(payload.BindFailures, bindFailurePayload{
			UnitID: failure.UnitID,
			Reason: failure.Reason,
		})
	}
	for productID, remainder := range result.UnmetRemainder {
		if payload.UnmetRemainder == nil {
			payload.UnmetRemainder = map[string]string{}
		}
		payload.UnmetRemainder[productID] = remainder.String()
	}
	writeJSONResponse(w, status, payload)
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "order submission failed", http.StatusInternalServerError))
	}
}

func primaryRole(identity *auth.Identity) string {
	if identity == nil || len(identity.Roles) == 0 {
		return auth.RoleSeller
	}
	return identity.Roles[0]
}

func buildOrderPayload(order services.Order) orderPayload {
	lines := make([]orderLinePayload, 0, len(order.Lines))
	for _, line := range order.Lines {
		entry := orderLinePayload{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity.String(),
			UnitPrice:   line.UnitPrice.String(),
			TaxApplied:  line.TaxApplied,
		}
		for _, assignment := range line.Assignments {
			entry.Assignments = append(entry.Assignments, unitAssignmentPayload{
				UnitID:   assignment.UnitID,
				LotName:  assignment.LotName,
				Quantity: assignment.Quantity.String(),
			})
		}
		lines = append(lines, entry)
	}

	payload := orderPayload{
		ID:          order.ID,
		CustomerID:  order.CustomerID,
		SellerID:    order.SellerID,
		ProjectID:   order.ProjectID,
		ArchitectID: order.ArchitectID,
		Currency:    order.Currency,
		Status:      string(order.Status),
		Notes:       order.Notes,
		Lines:       lines,
	}
	if !order.CreatedAt.IsZero() {
		payload.CreatedAt = formatTime(order.CreatedAt)
	}
	if !order.ConfirmedAt.IsZero() {
		payload.ConfirmedAt = formatTime(order.ConfirmedAt)
	}
	return payload
}

type createOrderRequest struct {
	CustomerID  string               `json:"customer_id"`
	ProjectID   string               `json:"project_id"`
	ArchitectID string               `json:"architect_id"`
	Currency    string               `json:"currency"`
	Notes       string               `json:"notes"`
	ApplyTax    bool                 `json:"apply_tax"`
	UnitPrices  map[string]string    `json:"unit_prices"`
	Services    []serviceLineRequest `json:"services"`
}

type serviceLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  string `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type orderSubmissionResponse struct {
	Order          *orderPayload         `json:"order,omitempty"`
	Authorization  *authorizationPayload `json:"authorization,omitempty"`
	BindFailures   []bindFailurePayload  `json:"bind_failures,omitempty"`
	UnmetRemainder map[string]string     `json:"unmet_remainder,omitempty"`
}

type orderPayload struct {
	ID          string             `json:"id"`
	CustomerID  string             `json:"customer_id"`
	SellerID    string             `json:"seller_id"`
	ProjectID   string             `json:"project_id,omitempty"`
	ArchitectID string             `json:"architect_id,omitempty"`
	Currency    string             `json:"currency"`
	Status      string             `json:"status"`
	Notes       string             `json:"notes,omitempty"`
	Lines       []orderLinePayload `json:"lines"`
	CreatedAt   string             `json:"created_at,omitempty"`
	ConfirmedAt string             `json:"confirmed_at,omitempty"`
}

type orderLinePayload struct {
	ProductID   string                  `json:"product_id"`
	ProductName string                  `json:"product_name,omitempty"`
	Quantity    string                  `json:"quantity"`
	UnitPrice   string                  `json:"unit_price"`
	TaxApplied  bool                    `json:"tax_applied"`
	Assignments []unitAssignmentPayload `json:"assignments,omitempty"`
}

type unitAssignmentPayload struct {
	UnitID   string `json:"unit_id"`
	LotName  string `json:"lot_name,omitempty"`
	Quantity string `json:"quantity"`
}

type bindFailurePayload struct {
	UnitID string `json:"unit_id"`
	Reason string `json:"reason"`
}
