package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/stoneyard/api/internal/domain"
	"github.com/stoneyard/api/internal/platform/auth"
	"github.com/stoneyard/api/internal/platform/httpx"
	"github.com/stoneyard/api/internal/services"
)

const (
	maxAuthorizationBodySize = 32 * 1024
	maxAuthorizationPageSize = 100
)

// AuthorizationHandlers exposes the price-authorization queue.
type AuthorizationHandlers struct {
	authn          *auth.Authenticator
	authorizations services.AuthorizationService
}

// NewAuthorizationHandlers constructs handlers over the authorization service.
func NewAuthorizationHandlers(authn *auth.Authenticator, authorizations services.AuthorizationService) *AuthorizationHandlers {
	return &AuthorizationHandlers{
		authn:          authn,
		authorizations: authorizations,
	}
}

// Routes wires the /authorizations endpoints onto the provided router.
func (h *AuthorizationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.list)
	r.Get("/{authorizationID}", h.get)
	r.Post("/{authorizationID}:approve", h.approve)
	r.Post("/{authorizationID}:reject", h.reject)
}

func (h *AuthorizationHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.authorizations != nil, "authorization")
	if !ok {
		return
	}

	query := services.ListAuthorizationsQuery{
		ViewerID:    identity.UID,
		ViewerRoles: identity.Roles,
	}
	for _, raw := range r.URL.Query()["state"] {
		state := domain.AuthorizationState(strings.ToLower(strings.TrimSpace(raw)))
		if state != "" {
			query.States = append(query.States, state)
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be a non-negative integer", http.StatusBadRequest))
			return
		}
		if size > maxAuthorizationPageSize {
			size = maxAuthorizationPageSize
		}
		query.Pagination.PageSize = size
	}
	query.Pagination.PageToken = strings.TrimSpace(r.URL.Query().Get("page_token"))

	page, err := h.authorizations.List(ctx, query)
	if err != nil {
		h.writeAuthorizationError(ctx, w, err)
		return
	}

	payload := authorizationListResponse{NextPageToken: page.NextPageToken}
	for _, authorization := range page.Items {
		payload.Authorizations = append(payload.Authorizations, buildAuthorizationPayload(authorization))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AuthorizationHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.authorizations != nil, "authorization")
	if !ok {
		return
	}

	authorization, err := h.authorizations.Get(ctx, services.AuthorizationQuery{
		AuthorizationID: strings.TrimSpace(chi.URLParam(r, "authorizationID")),
		ViewerID:        identity.UID,
		ViewerRoles:     identity.Roles,
	})
	if err != nil {
		h.writeAuthorizationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, authorizationResponse{Authorization: buildAuthorizationPayload(authorization)})
}

func (h *AuthorizationHandlers) approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true)
}

func (h *AuthorizationHandlers) reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, false)
}

func (h *AuthorizationHandlers) decide(w http.ResponseWriter, r *http.Request, approve bool) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.authorizations != nil, "authorization")
	if !ok {
		return
	}

	cmd := services.DecideAuthorizationCommand{
		AuthorizationID: strings.TrimSpace(chi.URLParam(r, "authorizationID")),
		DeciderID:       identity.UID,
		DeciderRoles:    identity.Roles,
	}

	// The decision body is optional; rejections in particular often carry
	// nothing but the notes.
	body, err := readLimitedBody(r, maxAuthorizationBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		var req decideAuthorizationRequest
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
			return
		}
		cmd.Notes = strings.TrimSpace(req.Notes)
		prices, err := parseDecimalMap(req.AuthorizedPrices)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		cmd.AuthorizedPrices = prices
	}

	var result services.DecisionResult
	if approve {
		result, err = h.authorizations.Approve(ctx, cmd)
	} else {
		result, err = h.authorizations.Reject(ctx, cmd)
	}
	if err != nil {
		h.writeAuthorizationError(ctx, w, err)
		return
	}

	payload := decisionResponse{
		Authorization: buildAuthorizationPayload(result.Authorization),
		OrderID:       result.OrderID,
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AuthorizationHandlers) writeAuthorizationError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrAuthorizationInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAuthorizationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("authorization_not_found", "authorization not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAuthorizationPermissionDenied):
		httpx.WriteError(ctx, w, httpx.NewError("permission_denied", "insufficient role for this authorization", http.StatusForbidden))
	case errors.Is(err, services.ErrAuthorizationConflict):
		httpx.WriteError(ctx, w, httpx.NewError("authorization_conflict", "authorization was already decided", http.StatusConflict))
	case errors.Is(err, services.ErrAuthorizationUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("authorization_service_unavailable", "authorization service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("authorization_error", "authorization operation failed", http.StatusInternalServerError))
	}
}

func buildAuthorizationPayload(authorization services.Authorization) authorizationPayload {
	lines := make([]authorizationLinePayload, 0, len(authorization.Lines))
	for _, line := range authorization.Lines {
		lines = append(lines, authorizationLinePayload{
			ProductID:       line.ProductID,
			ProductName:     line.ProductName,
			Quantity:        line.Quantity.String(),
			UnitCount:       line.UnitCount,
			RequestedPrice:  line.RequestedPrice.String(),
			MediumPrice:     line.MediumPrice.String(),
			MinimumPrice:    line.MinimumPrice.String(),
			AuthorizedPrice: line.AuthorizedPrice.String(),
			Level:           string(line.Level),
		})
	}

	payload := authorizationPayload{
		ID:            authorization.ID,
		SellerID:      authorization.SellerID,
		AuthorizerID:  authorization.AuthorizerID,
		State:         string(authorization.State),
		Kind:          string(authorization.Kind),
		CustomerID:    authorization.CustomerID,
		ProjectID:     authorization.ProjectID,
		Currency:      authorization.Currency,
		Lines:         lines,
		Notes:         authorization.Notes,
		DecisionNotes: authorization.DecisionNotes,
		OrderID:       authorization.OrderID,
	}
	if !authorization.CreatedAt.IsZero() {
		payload.CreatedAt = formatTime(authorization.CreatedAt)
	}
	if !authorization.DecidedAt.IsZero() {
		payload.DecidedAt = formatTime(authorization.DecidedAt)
	}
	return payload
}

type authorizationListResponse struct {
	Authorizations []authorizationPayload `json:"authorizations"`
	NextPageToken  string                 `json:"next_page_token,omitempty"`
}

type authorizationResponse struct {
	Authorization authorizationPayload `json:"authorization"`
}

type decideAuthorizationRequest struct {
	Notes            string            `json:"notes"`
	AuthorizedPrices map[string]string `json:"authorized_prices"`
}

type decisionResponse struct {
	Authorization authorizationPayload `json:"authorization"`
	OrderID       string               `json:"order_id,omitempty"`
}

type authorizationPayload struct {
	ID            string                     `json:"id"`
	SellerID      string                     `json:"seller_id"`
	AuthorizerID  string                     `json:"authorizer_id,omitempty"`
	State         string                     `json:"state"`
	Kind          string                     `json:"kind"`
	CustomerID    string                     `json:"customer_id,omitempty"`
	ProjectID     string                     `json:"project_id,omitempty"`
	Currency      string                     `json:"currency"`
	Lines         []authorizationLinePayload `json:"lines"`
	Notes         string                     `json:"notes,omitempty"`
	DecisionNotes string                     `json:"decision_notes,omitempty"`
	OrderID       string                     `json:"order_id,omitempty"`
	CreatedAt     string                     `json:"created_at,omitempty"`
	DecidedAt     string                     `json:"decided_at,omitempty"`
}

type authorizationLinePayload struct {
	ProductID       string `json:"product_id"`
	ProductName     string `json:"product_name,omitempty"`
	Quantity        string `json:"quantity"`
	UnitCount       int    `json:"unit_count"`
	RequestedPrice  string `json:"requested_price"`
	MediumPrice     string `json:"medium_price"`
	MinimumPrice    string `json:"minimum_price"`
	AuthorizedPrice string `json:"authorized_price"`
	Level           string `json:"level"`
}
