package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/stoneyard/api/internal/domain"
	"github.com/stoneyard/api/internal/platform/auth"
	"github.com/stoneyard/api/internal/services"
)

func authorizerIdentity() *auth.Identity {
	return &auth.Identity{UID: "authz-1", Roles: []string{auth.RoleAuthorizer}}
}

func TestAuthorizationHandlersList(t *testing.T) {
	created := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	var got services.ListAuthorizationsQuery
	svc := &stubAuthorizationService{
		listFn: func(ctx context.Context, query services.ListAuthorizationsQuery) (domain.CursorPage[services.Authorization], error) {
			got = query
			return domain.CursorPage[services.Authorization]{
				Items: []services.Authorization{
					{
						ID:       "auth-1",
						SellerID: "seller-1",
						State:    domain.AuthorizationPending,
						Kind:     domain.OperationSale,
						Currency: "USD",
						Lines: []services.AuthorizationLine{
							{
								ProductID:      "prod-1",
								Quantity:       decimal.RequireFromString("10"),
								UnitCount:      2,
								RequestedPrice: decimal.RequireFromString("80"),
								MediumPrice:    decimal.RequireFromString("100"),
								MinimumPrice:   decimal.RequireFromString("85"),
								Level:          domain.PriceBelowMinimum,
							},
						},
						CreatedAt: created,
					},
				},
				NextPageToken: "next-token",
			}, nil
		},
	}

	router := chi.NewRouter()
	NewAuthorizationHandlers(nil, svc).Routes(router)

	rec := httptest.NewRecorder()
	target := "/?state=pending&state=approved&page_size=500&page_token=tok"
	router.ServeHTTP(rec, authedRequest(t, http.MethodGet, target, "", authorizerIdentity()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(got.States) != 2 || got.States[0] != domain.AuthorizationPending || got.States[1] != domain.AuthorizationApproved {
		t.Fatalf("unexpected states: %v", got.States)
	}
	if got.Pagination.PageSize != maxAuthorizationPageSize {
		t.Fatalf("expected page size capped at %d, got %d", maxAuthorizationPageSize, got.Pagination.PageSize)
	}
	if got.Pagination.PageToken != "tok" {
		t.Fatalf("unexpected page token: %s", got.Pagination.PageToken)
	}

	var resp authorizationListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.NextPageToken != "next-token" {
		t.Fatalf("unexpected next page token: %s", resp.NextPageToken)
	}
	if len(resp.Authorizations) != 1 {
		t.Fatalf("expected one authorization, got %d", len(resp.Authorizations))
	}
	entry := resp.Authorizations[0]
	if entry.ID != "auth-1" || entry.State != "pending" {
		t.Fatalf("unexpected authorization: %+v", entry)
	}
	if len(entry.Lines) != 1 || entry.Lines[0].Level != "below_minimum" {
		t.Fatalf("unexpected lines: %+v", entry.Lines)
	}
	if entry.CreatedAt != "2026-03-14T08:00:00Z" {
		t.Fatalf("unexpected created_at: %s", entry.CreatedAt)
	}
}

func TestAuthorizationHandlersListRejectsBadPageSize(t *testing.T) {
	router := chi.NewRouter()
	NewAuthorizationHandlers(nil, &stubAuthorizationService{}).Routes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/?page_size=many", "", authorizerIdentity()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAuthorizationHandlersGet(t *testing.T) {
	svc := &stubAuthorizationService{
		getFn: func(ctx context.Context, query services.AuthorizationQuery) (services.Authorization, error) {
			if query.AuthorizationID != "auth-9" {
				t.Fatalf("unexpected id: %s", query.AuthorizationID)
			}
			if query.ViewerID != "authz-1" {
				t.Fatalf("unexpected viewer: %s", query.ViewerID)
			}
			return services.Authorization{ID: query.AuthorizationID, State: domain.AuthorizationApproved}, nil
		},
	}

	router := chi.NewRouter()
	NewAuthorizationHandlers(nil, svc).Routes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/auth-9", "", authorizerIdentity()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp authorizationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Authorization.ID != "auth-9" || resp.Authorization.State != "approved" {
		t.Fatalf("unexpected authorization: %+v", resp.Authorization)
	}
}

func TestAuthorizationHandlersApprove(t *testing.T) {
	var got services.DecideAuthorizationCommand
	svc := &stubAuthorizationService{
		approveFn: func(ctx context.Context, cmd services.DecideAuthorizationCommand) (services.DecisionResult, error) {
			got = cmd
			return services.DecisionResult{
				Authorization: services.Authorization{ID: cmd.AuthorizationID, State: domain.AuthorizationApproved},
				OrderID:       "order-5",
			}, nil
		},
	}

	router := chi.NewRouter()
	NewAuthorizationHandlers(nil, svc).Routes(router)

	body := `{"notes":"go ahead","authorized_prices":{"prod-1":"88"}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/auth-3:approve", body, authorizerIdentity()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.AuthorizationID != "auth-3" || got.DeciderID != "authz-1" {
		t.Fatalf("unexpected command: %+v", got)
	}
	if got.Notes != "go ahead" {
		t.Fatalf("unexpected notes: %s", got.Notes)
	}
	if !got.AuthorizedPrices["prod-1"].Equal(decimal.RequireFromString("88")) {
		t.Fatalf("unexpected authorized price: %s", got.AuthorizedPrices["prod-1"])
	}

	var resp decisionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OrderID != "order-5" {
		t.Fatalf("unexpected order id: %s", resp.OrderID)
	}
}

func TestAuthorizationHandlersRejectWithoutBody(t *testing.T) {
	var got services.DecideAuthorizationCommand
	svc := &stubAuthorizationService{
		rejectFn: func(ctx context.Context, cmd services.DecideAuthorizationCommand) (services.DecisionResult, error) {
			got = cmd
			return services.DecisionResult{
				Authorization: services.Authorization{ID: cmd.AuthorizationID, State: domain.AuthorizationRejected},
			}, nil
		},
	}

	router := chi.NewRouter()
	NewAuthorizationHandlers(nil, svc).Routes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/auth-4:reject", "", authorizerIdentity()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.AuthorizationID != "auth-4" || got.Notes != "" {
		t.Fatalf("unexpected command: %+v", got)
	}
}

func TestAuthorizationHandlersDecideErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "not found", err: services.ErrAuthorizationNotFound, status: http.StatusNotFound},
		{name: "permission denied", err: services.ErrAuthorizationPermissionDenied, status: http.StatusForbidden},
		{name: "already decided", err: services.ErrAuthorizationConflict, status: http.StatusConflict},
		{name: "unavailable", err: services.ErrAuthorizationUnavailable, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubAuthorizationService{
				approveFn: func(ctx context.Context, cmd services.DecideAuthorizationCommand) (services.DecisionResult, error) {
					return services.DecisionResult{}, tc.err
				},
			}
			router := chi.NewRouter()
			NewAuthorizationHandlers(nil, svc).Routes(router)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/auth-1:approve", "", authorizerIdentity()))

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}
