package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/stoneyard/api/internal/domain"
	"github.com/stoneyard/api/internal/repositories"
)

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input.
	ErrCartInvalidInput = errors.New("cart service: invalid input")
	// ErrCartUnavailable indicates the cart store cannot fulfil the request.
	ErrCartUnavailable = errors.New("cart service: unavailable")
)

// CartServiceDeps wires cart persistence and inventory lookups.
type CartServiceDeps struct {
	Carts  repositories.CartRepository
	Units  repositories.InventoryUnitRepository
	Clock  func() time.Time
	Logger func(context.Context, string, map[string]any)
}

type cartService struct {
	carts  repositories.CartRepository
	units  repositories.InventoryUnitRepository
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Units == nil {
		return nil, errors.New("cart service: inventory unit repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		carts:  deps.Carts,
		units:  deps.Units,
		now:    func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// GetCart loads the user's cart with the hold status of each unit resolved.
func (s *cartService) GetCart(ctx context.Context, userID string) (CartView, error) {
	cart, err := s.loadCart(ctx, userID)
	if err != nil {
		return CartView{}, err
	}
	return s.buildView(ctx, cart)
}

// AddItem places one inventory unit in the cart. Re-adding a unit replaces its
// quantity; the (user, unit) pair stays unique.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error) {
	uid := strings.TrimSpace(cmd.UserID)
	unitID := strings.TrimSpace(cmd.UnitID)
	if uid == "" || unitID == "" {
		return CartView{}, fmt.Errorf("%w: user and unit are required", ErrCartInvalidInput)
	}

	unit, err := s.units.FindByID(ctx, unitID)
	if err != nil {
		if isRepoNotFound(err) {
			return CartView{}, fmt.Errorf("%w: unit %s not found", ErrCartInvalidInput, unitID)
		}
		return CartView{}, fmt.Errorf("%w: load unit: %v", ErrCartUnavailable, err)
	}

	quantity := cmd.Quantity
	if !quantity.IsPositive() || quantity.GreaterThan(unit.Quantity) {
		quantity = unit.Quantity
	}

	cart, err := s.loadCart(ctx, uid)
	if err != nil {
		return CartView{}, err
	}

	now := s.now()
	item := domain.CartItem{
		UnitID:       unit.ID,
		LotID:        unit.LotID,
		LotName:      unit.LotName,
		ProductID:    unit.ProductID,
		ProductName:  unit.ProductName,
		Quantity:     quantity,
		LocationName: unit.LocationName,
		AddedAt:      now,
	}

	items := make([]domain.CartItem, 0, len(cart.Items)+1)
	replaced := false
	for _, existing := range cart.Items {
		if existing.UnitID == unit.ID {
			item.AddedAt = existing.AddedAt
			items = append(items, item)
			replaced = true
			continue
		}
		items = append(items, existing)
	}
	if !replaced {
		items = append(items, item)
	}

	return s.persistItems(ctx, uid, items, now)
}

// RemoveItem drops one unit from the cart. Removing an absent unit is a no-op.
func (s *cartService) RemoveItem(ctx context.Context, userID, unitID string) (CartView, error) {
	uid := strings.TrimSpace(userID)
	target := strings.TrimSpace(unitID)
	if uid == "" || target == "" {
		return CartView{}, fmt.Errorf("%w: user and unit are required", ErrCartInvalidInput)
	}

	cart, err := s.loadCart(ctx, uid)
	if err != nil {
		return CartView{}, err
	}

	items := make([]domain.CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.UnitID == target {
			continue
		}
		items = append(items, item)
	}
	if len(items) == len(cart.Items) {
		return s.buildView(ctx, cart)
	}

	return s.persistItems(ctx, uid, items, s.now())
}

// ClearCart removes every item.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return fmt.Errorf("%w: user is required", ErrCartInvalidInput)
	}
	if _, err := s.carts.ReplaceItems(ctx, uid, nil, s.now()); err != nil {
		return fmt.Errorf("%w: clear cart: %v", ErrCartUnavailable, err)
	}
	return nil
}

// SyncItems replaces the cart contents from client state. Every referenced
// unit must exist.
func (s *cartService) SyncItems(ctx context.Context, cmd SyncCartCommand) (CartView, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return CartView{}, fmt.Errorf("%w: user is required", ErrCartInvalidInput)
	}

	unitIDs := make([]string, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		unitID := strings.TrimSpace(item.UnitID)
		if unitID == "" {
			return CartView{}, fmt.Errorf("%w: item without unit id", ErrCartInvalidInput)
		}
		unitIDs = append(unitIDs, unitID)
	}

	units, err := s.lookupUnits(ctx, unitIDs)
	if err != nil {
		return CartView{}, err
	}

	now := s.now()
	items := make([]domain.CartItem, 0, len(cmd.Items))
	seen := make(map[string]struct{}, len(cmd.Items))
	for _, entry := range cmd.Items {
		unitID := strings.TrimSpace(entry.UnitID)
		if _, dup := seen[unitID]; dup {
			return CartView{}, fmt.Errorf("%w: duplicate unit %s", ErrCartInvalidInput, unitID)
		}
		seen[unitID] = struct{}{}

		unit, ok := units[unitID]
		if !ok {
			return CartView{}, fmt.Errorf("%w: unit %s not found", ErrCartInvalidInput, unitID)
		}

		quantity := entry.Quantity
		if !quantity.IsPositive() || quantity.GreaterThan(unit.Quantity) {
			quantity = unit.Quantity
		}
		items = append(items, domain.CartItem{
			UnitID:       unit.ID,
			LotID:        unit.LotID,
			LotName:      unit.LotName,
			ProductID:    unit.ProductID,
			ProductName:  unit.ProductName,
			Quantity:     quantity,
			LocationName: unit.LocationName,
			AddedAt:      now,
		})
	}

	return s.persistItems(ctx, uid, items, now)
}

// RemoveHeldUnits sweeps out every cart unit that has acquired a hold.
func (s *cartService) RemoveHeldUnits(ctx context.Context, userID string) (CartView, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CartView{}, fmt.Errorf("%w: user is required", ErrCartInvalidInput)
	}

	cart, err := s.loadCart(ctx, uid)
	if err != nil {
		return CartView{}, err
	}
	if len(cart.Items) == 0 {
		return CartView{UserID: uid, UpdatedAt: cart.UpdatedAt}, nil
	}

	units, err := s.lookupUnits(ctx, cart.UnitIDs())
	if err != nil {
		return CartView{}, err
	}

	items := make([]domain.CartItem, 0, len(cart.Items))
	removed := 0
	for _, item := range cart.Items {
		if unit, ok := units[item.UnitID]; ok && unit.Held() {
			removed++
			continue
		}
		items = append(items, item)
	}
	if removed == 0 {
		return s.buildView(ctx, cart)
	}

	s.logger(ctx, "cart.held_units_removed", map[string]any{"userId": uid, "count": removed})
	return s.persistItems(ctx, uid, items, s.now())
}

// QuantityByUnit returns the unit-keyed quantity lookup consumed by the
// reservation matcher as its fallback source.
func (s *cartService) QuantityByUnit(ctx context.Context, userID string) (map[string]decimal.Decimal, error) {
	cart, err := s.loadCart(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, err
	}
	return cart.QuantityByUnit(), nil
}

func (s *cartService) loadCart(ctx context.Context, userID string) (domain.Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, fmt.Errorf("%w: user is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Cart{UserID: uid}, nil
		}
		return domain.Cart{}, fmt.Errorf("%w: load cart: %v", ErrCartUnavailable, err)
	}
	cart.UserID = uid
	return cart, nil
}

func (s *cartService) persistItems(ctx context.Context, userID string, items []domain.CartItem, now time.Time) (CartView, error) {
	cart, err := s.carts.ReplaceItems(ctx, userID, items, now)
	if err != nil {
		return CartView{}, fmt.Errorf("%w: persist cart: %v", ErrCartUnavailable, err)
	}
	return s.buildView(ctx, cart)
}

func (s *cartService) buildView(ctx context.Context, cart domain.Cart) (CartView, error) {
	view := CartView{UserID: cart.UserID, UpdatedAt: cart.UpdatedAt}
	if len(cart.Items) == 0 {
		return view, nil
	}

	units, err := s.lookupUnits(ctx, cart.UnitIDs())
	if err != nil {
		return CartView{}, err
	}

	view.Items = make([]CartViewItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		entry := CartViewItem{CartItem: item}
		if unit, ok := units[item.UnitID]; ok && unit.Held() {
			entry.Held = true
			entry.HoldCustomer = unit.HoldCustomer
		}
		view.Items = append(view.Items, entry)
	}
	return view, nil
}

func (s *cartService) lookupUnits(ctx context.Context, unitIDs []string) (map[string]domain.InventoryUnit, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	units, err := s.units.ListByIDs(ctx, unitIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: load units: %v", ErrCartUnavailable, err)
	}
	byID := make(map[string]domain.InventoryUnit, len(units))
	for _, unit := range units {
		byID[unit.ID] = unit
	}
	return byID, nil
}
