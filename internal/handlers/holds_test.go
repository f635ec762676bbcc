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
	"github.com/stoneyard/api/internal/services"
)

func TestHoldHandlersCreateFromCart(t *testing.T) {
	starts := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	var got services.CreateHoldsCommand
	holds := &stubHoldService{
		createFn: func(ctx context.Context, cmd services.CreateHoldsCommand) (services.HoldCreationResult, error) {
			got = cmd
			return services.HoldCreationResult{
				Holds: []services.Hold{
					{
						ID:         "hold-1",
						UnitID:     "unit-1",
						ProductID:  "prod-1",
						CustomerID: cmd.CustomerID,
						SellerID:   cmd.SellerID,
						Currency:   cmd.Currency,
						UnitPrice:  decimal.RequireFromString("95"),
						StartsAt:   starts,
						ExpiresAt:  starts.AddDate(0, 0, 7),
					},
				},
				Failures: []services.UnitBindFailure{
					{UnitID: "unit-2", Reason: "unit is already held"},
				},
				Created: 1,
				Failed:  1,
			}, nil
		},
	}

	router := chi.NewRouter()
	NewHoldHandlers(nil, holds).Routes(router)

	body := `{
		"customer_id": "cust-1",
		"customer_name": "ACME",
		"project_id": "proj-1",
		"architect_id": "arch-1",
		"currency": "USD",
		"unit_prices": {"unit-1": "95", "unit-2": "95"}
	}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/", body, sellerIdentity()))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.SellerID != "seller-1" || got.CustomerName != "ACME" {
		t.Fatalf("unexpected command: %+v", got)
	}
	if got.ProjectID != "proj-1" || got.ArchitectID != "arch-1" {
		t.Fatalf("expected project and architect forwarded, got %+v", got)
	}

	var resp holdCreationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Created != 1 || resp.Failed != 1 {
		t.Fatalf("unexpected counts: created=%d failed=%d", resp.Created, resp.Failed)
	}
	if len(resp.Holds) != 1 || resp.Holds[0].ID != "hold-1" {
		t.Fatalf("unexpected holds: %+v", resp.Holds)
	}
	if resp.Holds[0].ExpiresAt != "2026-03-21T12:00:00Z" {
		t.Fatalf("unexpected expiry: %s", resp.Holds[0].ExpiresAt)
	}
	if len(resp.Failures) != 1 || resp.Failures[0].UnitID != "unit-2" {
		t.Fatalf("unexpected failures: %+v", resp.Failures)
	}
	if resp.Authorization != nil {
		t.Fatal("did not expect an authorization payload")
	}
}

func TestHoldHandlersCreateOpensAuthorization(t *testing.T) {
	holds := &stubHoldService{
		createFn: func(ctx context.Context, cmd services.CreateHoldsCommand) (services.HoldCreationResult, error) {
			return services.HoldCreationResult{
				Authorization: &services.Authorization{
					ID:       "auth-2",
					SellerID: cmd.SellerID,
					State:    domain.AuthorizationPending,
					Kind:     domain.OperationReservation,
					Currency: cmd.Currency,
				},
			}, nil
		},
	}

	router := chi.NewRouter()
	NewHoldHandlers(nil, holds).Routes(router)

	body := `{"customer_id":"cust-1","currency":"USD","unit_prices":{"unit-1":"60"}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/", body, sellerIdentity()))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp holdCreationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Authorization == nil || resp.Authorization.Kind != "reservation" {
		t.Fatalf("expected reservation authorization, got %+v", resp.Authorization)
	}
}

func TestHoldHandlersRejectsBadPrices(t *testing.T) {
	router := chi.NewRouter()
	NewHoldHandlers(nil, &stubHoldService{}).Routes(router)

	body := `{"customer_id":"cust-1","currency":"USD","unit_prices":{"unit-1":"cheap"}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/", body, sellerIdentity()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHoldHandlersServiceError(t *testing.T) {
	holds := &stubHoldService{
		createFn: func(ctx context.Context, cmd services.CreateHoldsCommand) (services.HoldCreationResult, error) {
			return services.HoldCreationResult{}, services.ErrHoldUnavailable
		},
	}

	router := chi.NewRouter()
	NewHoldHandlers(nil, holds).Routes(router)

	body := `{"customer_id":"cust-1","currency":"USD"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/", body, sellerIdentity()))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
