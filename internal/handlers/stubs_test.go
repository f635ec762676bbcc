package handlers

import (
	"context"

	"github.com/shopspring/decimal"

	domain "github.com/stoneyard/api/internal/domain"
	"github.com/stoneyard/api/internal/services"
)

type stubCartService struct {
	getFn        func(ctx context.Context, userID string) (services.CartView, error)
	addFn        func(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error)
	removeFn     func(ctx context.Context, userID, unitID string) (services.CartView, error)
	syncFn       func(ctx context.Context, cmd services.SyncCartCommand) (services.CartView, error)
	removeHeldFn func(ctx context.Context, userID string) (services.CartView, error)
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (services.CartView, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return services.CartView{UserID: userID}, nil
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
	if s.addFn != nil {
		return s.addFn(ctx, cmd)
	}
	return services.CartView{UserID: cmd.UserID}, nil
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, unitID string) (services.CartView, error) {
	if s.removeFn != nil {
		return s.removeFn(ctx, userID, unitID)
	}
	return services.CartView{UserID: userID}, nil
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	return nil
}

func (s *stubCartService) SyncItems(ctx context.Context, cmd services.SyncCartCommand) (services.CartView, error) {
	if s.syncFn != nil {
		return s.syncFn(ctx, cmd)
	}
	return services.CartView{UserID: cmd.UserID}, nil
}

func (s *stubCartService) RemoveHeldUnits(ctx context.Context, userID string) (services.CartView, error) {
	if s.removeHeldFn != nil {
		return s.removeHeldFn(ctx, userID)
	}
	return services.CartView{UserID: userID}, nil
}

func (s *stubCartService) QuantityByUnit(ctx context.Context, userID string) (map[string]decimal.Decimal, error) {
	return nil, nil
}

type stubPricingService struct {
	listFn      func(ctx context.Context, productID, currency string) ([]services.TierPrice, error)
	recomputeFn func(ctx context.Context, productID string) (services.ProductPricing, error)
	quoteFn     func(ctx context.Context, cmd services.GateQuoteCommand) (services.GateResult, error)
}

func (s *stubPricingService) ComputeLadder(ctx context.Context, productID string) (services.TierPrices, error) {
	return services.TierPrices{}, nil
}

func (s *stubPricingService) ApplyLadder(ctx context.Context, productID string) (services.TierPrices, error) {
	return services.TierPrices{}, nil
}

func (s *stubPricingService) RecomputeProduct(ctx context.Context, productID string) (services.ProductPricing, error) {
	if s.recomputeFn != nil {
		return s.recomputeFn(ctx, productID)
	}
	return services.ProductPricing{ProductID: productID}, nil
}

func (s *stubPricingService) ListTierPrices(ctx context.Context, productID, currency string) ([]services.TierPrice, error) {
	if s.listFn != nil {
		return s.listFn(ctx, productID, currency)
	}
	return nil, nil
}

func (s *stubPricingService) QuoteGate(ctx context.Context, cmd services.GateQuoteCommand) (services.GateResult, error) {
	if s.quoteFn != nil {
		return s.quoteFn(ctx, cmd)
	}
	return services.GateResult{}, nil
}

type stubOrderService struct {
	createFn func(ctx context.Context, cmd services.CreateOrderCommand) (services.OrderSubmissionResult, error)
}

func (s *stubOrderService) CreateFromCart(ctx context.Context, cmd services.CreateOrderCommand) (services.OrderSubmissionResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.OrderSubmissionResult{}, nil
}

func (s *stubOrderService) MaterializeSale(ctx context.Context, authorization services.Authorization) (services.Order, error) {
	return services.Order{}, nil
}

type stubHoldService struct {
	createFn func(ctx context.Context, cmd services.CreateHoldsCommand) (services.HoldCreationResult, error)
}

func (s *stubHoldService) CreateFromCart(ctx context.Context, cmd services.CreateHoldsCommand) (services.HoldCreationResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.HoldCreationResult{}, nil
}

func (s *stubHoldService) MaterializeReservation(ctx context.Context, authorization services.Authorization) (services.HoldCreationResult, error) {
	return services.HoldCreationResult{}, nil
}

type stubTransferService struct {
	createFn func(ctx context.Context, cmd services.CreateTransferCommand) ([]services.Transfer, error)
}

func (s *stubTransferService) CreateFromCart(ctx context.Context, cmd services.CreateTransferCommand) ([]services.Transfer, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return nil, nil
}

type stubAuthorizationService struct {
	getFn     func(ctx context.Context, query services.AuthorizationQuery) (services.Authorization, error)
	listFn    func(ctx context.Context, query services.ListAuthorizationsQuery) (domain.CursorPage[services.Authorization], error)
	approveFn func(ctx context.Context, cmd services.DecideAuthorizationCommand) (services.DecisionResult, error)
	rejectFn  func(ctx context.Context, cmd services.DecideAuthorizationCommand) (services.DecisionResult, error)
}

func (s *stubAuthorizationService) Open(ctx context.Context, cmd services.OpenAuthorizationCommand) (services.Authorization, error) {
	return services.Authorization{}, nil
}

func (s *stubAuthorizationService) Get(ctx context.Context, query services.AuthorizationQuery) (services.Authorization, error) {
	if s.getFn != nil {
		return s.getFn(ctx, query)
	}
	return services.Authorization{ID: query.AuthorizationID}, nil
}

func (s *stubAuthorizationService) List(ctx context.Context, query services.ListAuthorizationsQuery) (domain.CursorPage[services.Authorization], error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return domain.CursorPage[services.Authorization]{}, nil
}

func (s *stubAuthorizationService) Approve(ctx context.Context, cmd services.DecideAuthorizationCommand) (services.DecisionResult, error) {
	if s.approveFn != nil {
		return s.approveFn(ctx, cmd)
	}
	return services.DecisionResult{}, nil
}

func (s *stubAuthorizationService) Reject(ctx context.Context, cmd services.DecideAuthorizationCommand) (services.DecisionResult, error) {
	if s.rejectFn != nil {
		return s.rejectFn(ctx, cmd)
	}
	return services.DecisionResult{}, nil
}

type stubRateRefreshService struct {
	refreshFn func(ctx context.Context) (services.RateRefreshResult, error)
}

func (s *stubRateRefreshService) RefreshExchangeRate(ctx context.Context) (services.RateRefreshResult, error) {
	if s.refreshFn != nil {
		return s.refreshFn(ctx)
	}
	return services.RateRefreshResult{}, nil
}

type stubSystemService struct {
	reportFn func(ctx context.Context) (services.SystemHealthReport, error)
	build    services.BuildInfo
}

func (s *stubSystemService) HealthReport(ctx context.Context) (services.SystemHealthReport, error) {
	if s.reportFn != nil {
		return s.reportFn(ctx)
	}
	return services.SystemHealthReport{Status: domain.HealthStatusOK}, nil
}

func (s *stubSystemService) Build() services.BuildInfo {
	return s.build
}
