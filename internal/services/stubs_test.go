package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/stoneyard/api/internal/domain"
	"github.com/stoneyard/api/internal/repositories"
)

// repoError is the categorised persistence error the stubs hand back.
type repoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repoError) Error() string       { return e.msg }
func (e *repoError) IsNotFound() bool    { return e.notFound }
func (e *repoError) IsConflict() bool    { return e.conflict }
func (e *repoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr(msg string) error { return &repoError{msg: msg, notFound: true} }
func conflictErr(msg string) error { return &repoError{msg: msg, conflict: true} }

type stubPricingRepo struct {
	findFn       func(ctx context.Context, productID string) (domain.ProductPricing, error)
	saveCostsFn  func(ctx context.Context, productID string, breakdown domain.CostBreakdown, updatedAt time.Time) error
	saveTiersFn  func(ctx context.Context, productID string, tiers domain.TierPrices, updatedAt time.Time) error
	listPricedFn func(ctx context.Context) ([]domain.ProductPricing, error)
}

func (s *stubPricingRepo) FindByID(ctx context.Context, productID string) (domain.ProductPricing, error) {
	if s.findFn != nil {
		return s.findFn(ctx, productID)
	}
	return domain.ProductPricing{}, notFoundErr("pricing not found")
}

func (s *stubPricingRepo) SaveCosts(ctx context.Context, productID string, breakdown domain.CostBreakdown, updatedAt time.Time) error {
	if s.saveCostsFn != nil {
		return s.saveCostsFn(ctx, productID, breakdown, updatedAt)
	}
	return nil
}

func (s *stubPricingRepo) SaveTiers(ctx context.Context, productID string, tiers domain.TierPrices, updatedAt time.Time) error {
	if s.saveTiersFn != nil {
		return s.saveTiersFn(ctx, productID, tiers, updatedAt)
	}
	return nil
}

func (s *stubPricingRepo) ListPriced(ctx context.Context) ([]domain.ProductPricing, error) {
	if s.listPricedFn != nil {
		return s.listPricedFn(ctx)
	}
	return nil, nil
}

type stubPurchaseRepo struct {
	listFn func(ctx context.Context, productID string) ([]domain.PurchaseLine, error)
}

func (s *stubPurchaseRepo) ListConfirmedByProduct(ctx context.Context, productID string) ([]domain.PurchaseLine, error) {
	if s.listFn != nil {
		return s.listFn(ctx, productID)
	}
	return nil, nil
}

type stubTariffRepo struct {
	findFn func(ctx context.Context, origin, loadPort, dischargePort string) (domain.Tariff, error)
}

func (s *stubTariffRepo) FindByRoute(ctx context.Context, origin, loadPort, dischargePort string) (domain.Tariff, error) {
	if s.findFn != nil {
		return s.findFn(ctx, origin, loadPort, dischargePort)
	}
	return domain.Tariff{}, notFoundErr("tariff not found")
}

type stubRateRepo struct {
	getFn    func(ctx context.Context) (domain.RateConfig, error)
	saveFn   func(ctx context.Context, cfg domain.RateConfig) error
	rateOnFn func(ctx context.Context, day time.Time) (decimal.Decimal, error)
}

func (s *stubRateRepo) Get(ctx context.Context) (domain.RateConfig, error) {
	if s.getFn != nil {
		return s.getFn(ctx)
	}
	return domain.RateConfig{}, notFoundErr("rate config not found")
}

func (s *stubRateRepo) Save(ctx context.Context, cfg domain.RateConfig) error {
	if s.saveFn != nil {
		return s.saveFn(ctx, cfg)
	}
	return nil
}

func (s *stubRateRepo) RateOn(ctx context.Context, day time.Time) (decimal.Decimal, error) {
	if s.rateOnFn != nil {
		return s.rateOnFn(ctx, day)
	}
	return decimal.Zero, nil
}

type stubUnitRepo struct {
	findFn      func(ctx context.Context, unitID string) (domain.InventoryUnit, error)
	listFn      func(ctx context.Context, unitIDs []string) ([]domain.InventoryUnit, error)
	setHoldFn   func(ctx context.Context, unitID, holdID, customerName string) error
	clearHoldFn func(ctx context.Context, unitID string) error
}

func (s *stubUnitRepo) FindByID(ctx context.Context, unitID string) (domain.InventoryUnit, error) {
	if s.findFn != nil {
		return s.findFn(ctx, unitID)
	}
	return domain.InventoryUnit{}, notFoundErr("unit not found")
}

func (s *stubUnitRepo) ListByIDs(ctx context.Context, unitIDs []string) ([]domain.InventoryUnit, error) {
	if s.listFn != nil {
		return s.listFn(ctx, unitIDs)
	}
	return nil, nil
}

func (s *stubUnitRepo) SetHold(ctx context.Context, unitID, holdID, customerName string) error {
	if s.setHoldFn != nil {
		return s.setHoldFn(ctx, unitID, holdID, customerName)
	}
	return nil
}

func (s *stubUnitRepo) ClearHold(ctx context.Context, unitID string) error {
	if s.clearHoldFn != nil {
		return s.clearHoldFn(ctx, unitID)
	}
	return nil
}

type stubCartRepo struct {
	getFn     func(ctx context.Context, userID string) (domain.Cart, error)
	upsertFn  func(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	replaceFn func(ctx context.Context, userID string, items []domain.CartItem, updatedAt time.Time) (domain.Cart, error)
}

func (s *stubCartRepo) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return domain.Cart{}, notFoundErr("cart not found")
}

func (s *stubCartRepo) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, cart)
	}
	return cart, nil
}

func (s *stubCartRepo) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem, updatedAt time.Time) (domain.Cart, error) {
	if s.replaceFn != nil {
		return s.replaceFn(ctx, userID, items, updatedAt)
	}
	return domain.Cart{UserID: userID, Items: items, UpdatedAt: updatedAt}, nil
}

type stubAuthorizationRepo struct {
	insertFn      func(ctx context.Context, authorization domain.Authorization) error
	findFn        func(ctx context.Context, authorizationID string) (domain.Authorization, error)
	listFn        func(ctx context.Context, filter repositories.AuthorizationListFilter) (domain.CursorPage[domain.Authorization], error)
	decideFn      func(ctx context.Context, authorizationID string, decision repositories.AuthorizationDecision) (domain.Authorization, error)
	setOrderRefFn func(ctx context.Context, authorizationID, orderID string) error
}

func (s *stubAuthorizationRepo) Insert(ctx context.Context, authorization domain.Authorization) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, authorization)
	}
	return nil
}

func (s *stubAuthorizationRepo) FindByID(ctx context.Context, authorizationID string) (domain.Authorization, error) {
	if s.findFn != nil {
		return s.findFn(ctx, authorizationID)
	}
	return domain.Authorization{}, notFoundErr("authorization not found")
}

func (s *stubAuthorizationRepo) List(ctx context.Context, filter repositories.AuthorizationListFilter) (domain.CursorPage[domain.Authorization], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Authorization]{}, nil
}

func (s *stubAuthorizationRepo) Decide(ctx context.Context, authorizationID string, decision repositories.AuthorizationDecision) (domain.Authorization, error) {
	if s.decideFn != nil {
		return s.decideFn(ctx, authorizationID, decision)
	}
	return domain.Authorization{}, errors.New("not implemented")
}

func (s *stubAuthorizationRepo) SetOrderRef(ctx context.Context, authorizationID, orderID string) error {
	if s.setOrderRefFn != nil {
		return s.setOrderRefFn(ctx, authorizationID, orderID)
	}
	return nil
}

type stubOrderRepo struct {
	insertFn func(ctx context.Context, order domain.Order) (domain.Order, error)
	findFn   func(ctx context.Context, orderID string) (domain.Order, error)
	saveFn   func(ctx context.Context, order domain.Order) error
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return order, nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, notFoundErr("order not found")
}

func (s *stubOrderRepo) Save(ctx context.Context, order domain.Order) error {
	if s.saveFn != nil {
		return s.saveFn(ctx, order)
	}
	return nil
}

type stubHoldRepo struct {
	insertFn func(ctx context.Context, hold domain.Hold) (domain.Hold, error)
}

func (s *stubHoldRepo) Insert(ctx context.Context, hold domain.Hold) (domain.Hold, error) {
	if s.insertFn != nil {
		return s.insertFn(ctx, hold)
	}
	return hold, nil
}

type stubTransferRepo struct {
	insertFn func(ctx context.Context, transfer domain.Transfer) (domain.Transfer, error)
}

func (s *stubTransferRepo) Insert(ctx context.Context, transfer domain.Transfer) (domain.Transfer, error) {
	if s.insertFn != nil {
		return s.insertFn(ctx, transfer)
	}
	return transfer, nil
}

type stubUserRepo struct {
	findFn       func(ctx context.Context, userID string) (domain.UserAccount, error)
	listByRoleFn func(ctx context.Context, role string) ([]domain.UserAccount, error)
}

func (s *stubUserRepo) FindByID(ctx context.Context, userID string) (domain.UserAccount, error) {
	if s.findFn != nil {
		return s.findFn(ctx, userID)
	}
	return domain.UserAccount{}, notFoundErr("user not found")
}

func (s *stubUserRepo) ListByRole(ctx context.Context, role string) ([]domain.UserAccount, error) {
	if s.listByRoleFn != nil {
		return s.listByRoleFn(ctx, role)
	}
	return nil, nil
}

type stubLocationRepo struct {
	findFn func(ctx context.Context, locationID string) (domain.Location, error)
}

func (s *stubLocationRepo) FindByID(ctx context.Context, locationID string) (domain.Location, error) {
	if s.findFn != nil {
		return s.findFn(ctx, locationID)
	}
	return domain.Location{}, notFoundErr("location not found")
}

// capturePublisher records notification messages instead of delivering them.
type capturePublisher struct {
	messages []NotificationMessage
	err      error
}

func (c *capturePublisher) PublishNotification(_ context.Context, message NotificationMessage) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.messages = append(c.messages, message)
	return "msg-1", nil
}

// stubCartService backs the order, hold and transfer tests without dragging in
// the real cart wiring.
type stubCartService struct {
	view        CartView
	getErr      error
	cleared     []string
	sweptUsers  []string
	clearErr    error
	removeHeld  func(ctx context.Context, userID string) (CartView, error)
	quantities  map[string]decimal.Decimal
	quantityErr error
}

func (s *stubCartService) GetCart(_ context.Context, userID string) (CartView, error) {
	if s.getErr != nil {
		return CartView{}, s.getErr
	}
	view := s.view
	view.UserID = userID
	return view, nil
}

func (s *stubCartService) AddItem(_ context.Context, _ AddCartItemCommand) (CartView, error) {
	return CartView{}, errors.New("not implemented")
}

func (s *stubCartService) RemoveItem(_ context.Context, _, _ string) (CartView, error) {
	return CartView{}, errors.New("not implemented")
}

func (s *stubCartService) ClearCart(_ context.Context, userID string) error {
	s.cleared = append(s.cleared, userID)
	return s.clearErr
}

func (s *stubCartService) SyncItems(_ context.Context, _ SyncCartCommand) (CartView, error) {
	return CartView{}, errors.New("not implemented")
}

func (s *stubCartService) RemoveHeldUnits(ctx context.Context, userID string) (CartView, error) {
	s.sweptUsers = append(s.sweptUsers, userID)
	if s.removeHeld != nil {
		return s.removeHeld(ctx, userID)
	}
	return CartView{UserID: userID}, nil
}

func (s *stubCartService) QuantityByUnit(_ context.Context, _ string) (map[string]decimal.Decimal, error) {
	if s.quantityErr != nil {
		return nil, s.quantityErr
	}
	return s.quantities, nil
}

// stubOpener records the authorization commands the gated services open.
type stubOpener struct {
	opened []OpenAuthorizationCommand
	result Authorization
	err    error
}

func (s *stubOpener) Open(_ context.Context, cmd OpenAuthorizationCommand) (Authorization, error) {
	if s.err != nil {
		return Authorization{}, s.err
	}
	s.opened = append(s.opened, cmd)
	result := s.result
	if result.ID == "" {
		result.ID = "auth-1"
	}
	result.SellerID = cmd.SellerID
	result.Kind = cmd.Kind
	result.Lines = cmd.Lines
	result.Payload = cmd.Payload
	return result, nil
}
