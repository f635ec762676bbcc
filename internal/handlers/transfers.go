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

const maxTransferBodySize = 32 * 1024

// TransferHandlers exposes the internal stock-transfer endpoint.
type TransferHandlers struct {
	authn     *auth.Authenticator
	transfers services.TransferService
}

// NewTransferHandlers constructs handlers over the transfer service. Transfers
// are restricted to warehouse and admin roles.
func NewTransferHandlers(authn *auth.Authenticator, transfers services.TransferService) *TransferHandlers {
	return &TransferHandlers{
		authn:     authn,
		transfers: transfers,
	}
}

// Routes wires the /transfers endpoints onto the provided router.
func (h *TransferHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleWarehouse, auth.RoleAdmin))
	}
	r.Post("/", h.createFromCart)
}

func (h *TransferHandlers) createFromCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.transfers != nil, "transfer")
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxTransferBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createTransferRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	transfers, err := h.transfers.CreateFromCart(ctx, services.CreateTransferCommand{
		UserID:         identity.UID,
		DestLocationID: strings.TrimSpace(req.DestLocationID),
		Notes:          strings.TrimSpace(req.Notes),
	})
	if err != nil {
		h.writeTransferError(ctx, w, err)
		return
	}

	payload := transferListResponse{}
	for _, transfer := range transfers {
		payload.Transfers = append(payload.Transfers, buildTransferPayload(transfer))
	}
	writeJSONResponse(w, http.StatusCreated, payload)
}

func (h *TransferHandlers) writeTransferError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrTransferInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrTransferUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("transfer_service_unavailable", "transfer service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("transfer_error", "transfer submission failed", http.StatusInternalServerError))
	}
}

func buildTransferPayload(transfer services.Transfer) transferPayload {
	lines := make([]transferLinePayload, 0, len(transfer.Lines))
	for _, line := range transfer.Lines {
		entry := transferLinePayload{
			ProductID: line.ProductID,
			Quantity:  line.Quantity.String(),
		}
		for _, unit := range line.Units {
			entry.Units = append(entry.Units, unitAssignmentPayload{
				UnitID:   unit.UnitID,
				LotName:  unit.LotName,
				Quantity: unit.Quantity.String(),
			})
		}
		lines = append(lines, entry)
	}

	payload := transferPayload{
		ID:             transfer.ID,
		UserID:         transfer.UserID,
		SourceLocation: transfer.SourceLocation,
		DestLocationID: transfer.DestLocationID,
		Notes:          transfer.Notes,
		Lines:          lines,
	}
	if !transfer.CreatedAt.IsZero() {
		payload.CreatedAt = formatTime(transfer.CreatedAt)
	}
	return payload
}

type createTransferRequest struct {
	DestLocationID string `json:"dest_location_id"`
	Notes          string `json:"notes"`
}

type transferListResponse struct {
	Transfers []transferPayload `json:"transfers"`
}

type transferPayload struct {
	ID             string                `json:"id"`
	UserID         string                `json:"user_id"`
	SourceLocation string                `json:"source_location"`
	DestLocationID string                `json:"dest_location_id"`
	Notes          string                `json:"notes,omitempty"`
	Lines          []transferLinePayload `json:"lines"`
	CreatedAt      string                `json:"created_at,omitempty"`
}

type transferLinePayload struct {
	ProductID string                  `json:"product_id"`
	Quantity  string                  `json:"quantity"`
	Units     []unitAssignmentPayload `json:"units"`
}
