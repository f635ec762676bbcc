package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/stoneyard/api/internal/domain"
)

func newCartForTest(t *testing.T, carts *stubCartRepo, units *stubUnitRepo) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{
		Carts: carts,
		Units: units,
		Clock: func() time.Time { return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	return svc
}

func slabUnit(id, productID, qty string) domain.InventoryUnit {
	return domain.InventoryUnit{
		ID:          id,
		LotID:       "lot-" + id,
		LotName:     "Lot " + id,
		ProductID:   productID,
		ProductName: "Product " + productID,
		Quantity:    dec(qty),
		UnitType:    domain.UnitTypeWhole,
	}
}

func unitLookup(units ...domain.InventoryUnit) func(ctx context.Context, unitIDs []string) ([]domain.InventoryUnit, error) {
	return func(_ context.Context, unitIDs []string) ([]domain.InventoryUnit, error) {
		byID := make(map[string]domain.InventoryUnit, len(units))
		for _, unit := range units {
			byID[unit.ID] = unit
		}
		found := make([]domain.InventoryUnit, 0, len(unitIDs))
		for _, id := range unitIDs {
			if unit, ok := byID[id]; ok {
				found = append(found, unit)
			}
		}
		return found, nil
	}
}

func TestGetCartTreatsMissingCartAsEmpty(t *testing.T) {
	svc := newCartForTest(t, &stubCartRepo{}, &stubUnitRepo{})

	view, err := svc.GetCart(context.Background(), "seller-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.UserID != "seller-1" || len(view.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", view)
	}
}

func TestAddItemClampsQuantityAndKeepsUnitUnique(t *testing.T) {
	unit := slabUnit("u1", "prod-1", "8.2")
	var stored []domain.CartItem
	carts := &stubCartRepo{
		getFn: func(_ context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{UserID: userID, Items: stored}, nil
		},
		replaceFn: func(_ context.Context, userID string, items []domain.CartItem, updatedAt time.Time) (domain.Cart, error) {
			stored = items
			return domain.Cart{UserID: userID, Items: items, UpdatedAt: updatedAt}, nil
		},
	}
	units := &stubUnitRepo{
		findFn: func(_ context.Context, unitID string) (domain.InventoryUnit, error) {
			if unitID != "u1" {
				return domain.InventoryUnit{}, notFoundErr("unit not found")
			}
			return unit, nil
		},
		listFn: unitLookup(unit),
	}
	svc := newCartForTest(t, carts, units)

	view, err := svc.AddItem(context.Background(), AddCartItemCommand{
		UserID:   "seller-1",
		UnitID:   "u1",
		Quantity: dec("50"),
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(view.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(view.Items))
	}
	if !view.Items[0].Quantity.Equal(dec("8.2")) {
		t.Fatalf("expected quantity clamped to availability, got %s", view.Items[0].Quantity)
	}

	// Re-adding the same unit replaces the quantity instead of duplicating.
	view, err = svc.AddItem(context.Background(), AddCartItemCommand{
		UserID:   "seller-1",
		UnitID:   "u1",
		Quantity: dec("3"),
	})
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if len(view.Items) != 1 {
		t.Fatalf("expected the unit to stay unique, got %d items", len(view.Items))
	}
	if !view.Items[0].Quantity.Equal(dec("3")) {
		t.Fatalf("expected quantity replaced, got %s", view.Items[0].Quantity)
	}
}

func TestAddItemRejectsUnknownUnit(t *testing.T) {
	svc := newCartForTest(t, &stubCartRepo{}, &stubUnitRepo{})

	_, err := svc.AddItem(context.Background(), AddCartItemCommand{UserID: "seller-1", UnitID: "missing"})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRemoveItemIsIdempotent(t *testing.T) {
	replaces := 0
	carts := &stubCartRepo{
		getFn: func(_ context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{UserID: userID}, nil
		},
		replaceFn: func(_ context.Context, userID string, items []domain.CartItem, updatedAt time.Time) (domain.Cart, error) {
			replaces++
			return domain.Cart{UserID: userID, Items: items, UpdatedAt: updatedAt}, nil
		},
	}
	svc := newCartForTest(t, carts, &stubUnitRepo{})

	if _, err := svc.RemoveItem(context.Background(), "seller-1", "u1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if replaces != 0 {
		t.Fatal("removing an absent unit must not rewrite the cart")
	}
}

func TestSyncItemsRejectsDuplicates(t *testing.T) {
	unit := slabUnit("u1", "prod-1", "5")
	units := &stubUnitRepo{listFn: unitLookup(unit)}
	svc := newCartForTest(t, &stubCartRepo{}, units)

	_, err := svc.SyncItems(context.Background(), SyncCartCommand{
		UserID: "seller-1",
		Items: []AddCartItemCommand{
			{UnitID: "u1", Quantity: dec("2")},
			{UnitID: "u1", Quantity: dec("3")},
		},
	})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}

func TestRemoveHeldUnitsSweepsOnlyHeld(t *testing.T) {
	held := slabUnit("u1", "prod-1", "5")
	held.HoldID = "hold-9"
	held.HoldCustomer = "Customer A"
	free := slabUnit("u2", "prod-1", "7")

	stored := []domain.CartItem{
		{UnitID: "u1", ProductID: "prod-1", Quantity: dec("5")},
		{UnitID: "u2", ProductID: "prod-1", Quantity: dec("7")},
	}
	carts := &stubCartRepo{
		getFn: func(_ context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{UserID: userID, Items: stored}, nil
		},
		replaceFn: func(_ context.Context, userID string, items []domain.CartItem, updatedAt time.Time) (domain.Cart, error) {
			stored = items
			return domain.Cart{UserID: userID, Items: items, UpdatedAt: updatedAt}, nil
		},
	}
	units := &stubUnitRepo{listFn: unitLookup(held, free)}
	svc := newCartForTest(t, carts, units)

	view, err := svc.RemoveHeldUnits(context.Background(), "seller-1")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(view.Items) != 1 || view.Items[0].UnitID != "u2" {
		t.Fatalf("expected only the free unit to survive, got %+v", view.Items)
	}
}

func TestGetCartResolvesHoldStatus(t *testing.T) {
	held := slabUnit("u1", "prod-1", "5")
	held.HoldID = "hold-9"
	held.HoldCustomer = "Customer A"

	carts := &stubCartRepo{
		getFn: func(_ context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				UserID: userID,
				Items:  []domain.CartItem{{UnitID: "u1", ProductID: "prod-1", Quantity: dec("5")}},
			}, nil
		},
	}
	units := &stubUnitRepo{listFn: unitLookup(held)}
	svc := newCartForTest(t, carts, units)

	view, err := svc.GetCart(context.Background(), "seller-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !view.Items[0].Held || view.Items[0].HoldCustomer != "Customer A" {
		t.Fatalf("expected hold status resolved, got %+v", view.Items[0])
	}
}

func TestQuantityByUnit(t *testing.T) {
	carts := &stubCartRepo{
		getFn: func(_ context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				UserID: userID,
				Items: []domain.CartItem{
					{UnitID: "u1", Quantity: dec("2.5")},
					{UnitID: "u2", Quantity: dec("4")},
				},
			}, nil
		},
	}
	svc := newCartForTest(t, carts, &stubUnitRepo{})

	quantities, err := svc.QuantityByUnit(context.Background(), "seller-1")
	if err != nil {
		t.Fatalf("quantities: %v", err)
	}
	if len(quantities) != 2 || !quantities["u1"].Equal(dec("2.5")) {
		t.Fatalf("unexpected quantities %+v", quantities)
	}
}
