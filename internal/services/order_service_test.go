package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/stoneyard/api/internal/domain"
)

func pricedProduct(productID string) domain.ProductPricing {
	return domain.ProductPricing{
		ProductID:   productID,
		ProductName: "Product " + productID,
		Tiers: domain.TierPrices{
			Local: domain.TierSet{High: dec("166.67"), Medium: dec("158.33"), Minimum: dec("150.42")},
		},
	}
}

func cartWith(items ...CartViewItem) CartView {
	return CartView{Items: items}
}

func cartItem(unitID, productID, qty string) CartViewItem {
	return CartViewItem{
		CartItem: domain.CartItem{
			UnitID:      unitID,
			LotName:     "Lot " + unitID,
			ProductID:   productID,
			ProductName: "Product " + productID,
			Quantity:    dec(qty),
		},
	}
}

func newOrderForTest(t *testing.T, orders *stubOrderRepo, units *stubUnitRepo, pricing *stubPricingRepo, carts *stubCartService, opener *stubOpener) OrderService {
	t.Helper()
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:         orders,
		Units:          units,
		Pricing:        pricing,
		Carts:          carts,
		Authorizations: opener,
		Clock:          func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) },
		IDGenerator:    func() string { return "order-1" },
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func pricedLookup(t *testing.T) *stubPricingRepo {
	t.Helper()
	return &stubPricingRepo{
		findFn: func(_ context.Context, productID string) (domain.ProductPricing, error) {
			return pricedProduct(productID), nil
		},
	}
}

func TestCreateFromCartOpensAuthorizationOnViolation(t *testing.T) {
	inserted := 0
	orders := &stubOrderRepo{
		insertFn: func(_ context.Context, order domain.Order) (domain.Order, error) {
			inserted++
			return order, nil
		},
	}
	carts := &stubCartService{view: cartWith(
		cartItem("u1", "prod-1", "8"),
		cartItem("u2", "prod-1", "10"),
	)}
	opener := &stubOpener{}
	svc := newOrderForTest(t, orders, &stubUnitRepo{}, pricedLookup(t), carts, opener)

	result, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{
		SellerID:   "seller-1",
		SellerRole: roleSeller,
		CustomerID: "cust-1",
		Currency:   "MXN",
		UnitPrices: map[string]decimal.Decimal{"prod-1": dec("140")},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Order != nil || result.Authorization == nil {
		t.Fatalf("expected authorization instead of order, got %+v", result)
	}
	if inserted != 0 {
		t.Fatal("violating submission must not insert an order")
	}
	if len(carts.cleared) != 0 {
		t.Fatal("cart must survive until the decision")
	}

	if len(opener.opened) != 1 {
		t.Fatalf("expected one authorization opened, got %d", len(opener.opened))
	}
	cmd := opener.opened[0]
	if cmd.Kind != domain.OperationSale || cmd.Payload.Sale == nil {
		t.Fatalf("expected sale payload, got %+v", cmd)
	}
	if len(cmd.Payload.Sale.Groups) != 1 {
		t.Fatalf("expected one product group, got %d", len(cmd.Payload.Sale.Groups))
	}
	group := cmd.Payload.Sale.Groups[0]
	if !group.TotalQuantity.Equal(dec("18")) || len(group.Units) != 2 {
		t.Fatalf("snapshot must capture the full selection, got %+v", group)
	}
	if !group.UnitPrice.Equal(dec("140")) {
		t.Fatalf("snapshot must carry the requested price, got %s", group.UnitPrice)
	}
}

func TestCreateFromCartCreatesConfirmedOrder(t *testing.T) {
	var saved *domain.Order
	orders := &stubOrderRepo{
		insertFn: func(_ context.Context, order domain.Order) (domain.Order, error) {
			saved = &order
			return order, nil
		},
	}
	u1 := domain.InventoryUnit{ID: "u1", LotName: "Lot u1", ProductID: "prod-1", Quantity: dec("8"), UnitType: domain.UnitTypeWhole}
	u2 := domain.InventoryUnit{ID: "u2", LotName: "Lot u2", ProductID: "prod-1", Quantity: dec("10"), UnitType: domain.UnitTypeWhole}
	units := &stubUnitRepo{listFn: unitLookup(u1, u2)}
	carts := &stubCartService{view: cartWith(
		cartItem("u1", "prod-1", "8"),
		cartItem("u2", "prod-1", "10"),
	)}
	opener := &stubOpener{}
	svc := newOrderForTest(t, orders, units, pricedLookup(t), carts, opener)

	result, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{
		SellerID:   "seller-1",
		SellerRole: roleSeller,
		CustomerID: "cust-1",
		Currency:   "MXN",
		ApplyTax:   true,
		UnitPrices: map[string]decimal.Decimal{"prod-1": dec("160")},
		Services:   []ServiceLine{{ProductID: "svc-cut", Quantity: dec("1"), UnitPrice: dec("500")}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Authorization != nil {
		t.Fatal("compliant price must not open an authorization")
	}
	if len(opener.opened) != 0 {
		t.Fatal("no authorization expected")
	}
	if saved == nil || saved.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed order, got %+v", saved)
	}
	if len(saved.Lines) != 2 {
		t.Fatalf("expected product line plus service line, got %d", len(saved.Lines))
	}
	line := saved.Lines[0]
	if len(line.Assignments) != 2 {
		t.Fatalf("expected both units bound, got %+v", line.Assignments)
	}
	if !line.UnitPrice.Equal(dec("160")) || !line.TaxApplied {
		t.Fatalf("unexpected line %+v", line)
	}
	if len(carts.cleared) != 1 || carts.cleared[0] != "seller-1" {
		t.Fatalf("expected cart cleared, got %v", carts.cleared)
	}
}

func TestCreateFromCartRejectsUnitsHeldForOtherCustomer(t *testing.T) {
	held := domain.InventoryUnit{
		ID: "u1", LotName: "Lot u1", ProductID: "prod-1", Quantity: dec("8"),
		HoldID: "hold-9", HoldCustomer: "cust-other",
	}
	units := &stubUnitRepo{listFn: unitLookup(held)}
	carts := &stubCartService{view: cartWith(cartItem("u1", "prod-1", "8"))}
	svc := newOrderForTest(t, &stubOrderRepo{}, units, pricedLookup(t), carts, &stubOpener{})

	_, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{
		SellerID:   "seller-1",
		SellerRole: roleSeller,
		CustomerID: "cust-1",
		UnitPrices: map[string]decimal.Decimal{"prod-1": dec("160")},
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if !strings.Contains(err.Error(), "Lot u1") {
		t.Fatalf("error should name the held lot, got %v", err)
	}
}

func TestCreateFromCartAllowsUnitsHeldForSameCustomer(t *testing.T) {
	held := domain.InventoryUnit{
		ID: "u1", LotName: "Lot u1", ProductID: "prod-1", Quantity: dec("8"),
		HoldID: "hold-9", HoldCustomer: "cust-1",
	}
	units := &stubUnitRepo{listFn: unitLookup(held)}
	carts := &stubCartService{view: cartWith(cartItem("u1", "prod-1", "8"))}
	svc := newOrderForTest(t, &stubOrderRepo{}, units, pricedLookup(t), carts, &stubOpener{})

	result, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{
		SellerID:   "seller-1",
		SellerRole: roleSeller,
		CustomerID: "cust-1",
		UnitPrices: map[string]decimal.Decimal{"prod-1": dec("160")},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Order == nil {
		t.Fatal("expected order for the holding customer")
	}
}

func TestCreateFromCartRequiresPricePerProduct(t *testing.T) {
	carts := &stubCartService{view: cartWith(cartItem("u1", "prod-1", "8"))}
	svc := newOrderForTest(t, &stubOrderRepo{}, &stubUnitRepo{}, pricedLookup(t), carts, &stubOpener{})

	_, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{
		SellerID:   "seller-1",
		SellerRole: roleSeller,
		CustomerID: "cust-1",
		UnitPrices: map[string]decimal.Decimal{},
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCreateFromCartReportsMissingUnits(t *testing.T) {
	u1 := domain.InventoryUnit{ID: "u1", LotName: "Lot u1", ProductID: "prod-1", Quantity: dec("8")}
	units := &stubUnitRepo{listFn: unitLookup(u1)}
	carts := &stubCartService{view: cartWith(
		cartItem("u1", "prod-1", "8"),
		cartItem("gone", "prod-1", "4"),
	)}
	svc := newOrderForTest(t, &stubOrderRepo{}, units, pricedLookup(t), carts, &stubOpener{})

	result, err := svc.CreateFromCart(context.Background(), CreateOrderCommand{
		SellerID:   "seller-1",
		SellerRole: roleSeller,
		CustomerID: "cust-1",
		UnitPrices: map[string]decimal.Decimal{"prod-1": dec("160")},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Order == nil {
		t.Fatal("missing unit must not abort the order")
	}
	if len(result.BindFailures) != 1 || result.BindFailures[0].UnitID != "gone" {
		t.Fatalf("expected bind failure for the vanished unit, got %+v", result.BindFailures)
	}
	if remainder, ok := result.UnmetRemainder["prod-1"]; !ok || !remainder.Equal(dec("4")) {
		t.Fatalf("expected unmet remainder 4, got %+v", result.UnmetRemainder)
	}
}

func TestMaterializeSaleCeilsAuthorizedPrices(t *testing.T) {
	var saved *domain.Order
	orders := &stubOrderRepo{
		insertFn: func(_ context.Context, order domain.Order) (domain.Order, error) {
			saved = &order
			return order, nil
		},
	}
	u1 := domain.InventoryUnit{ID: "u1", LotName: "Lot u1", ProductID: "prod-1", Quantity: dec("8"), UnitType: domain.UnitTypeWhole}
	u2 := domain.InventoryUnit{ID: "u2", LotName: "Lot u2", ProductID: "prod-2", Quantity: dec("5"), UnitType: domain.UnitTypeWhole}
	units := &stubUnitRepo{listFn: unitLookup(u1, u2)}
	carts := &stubCartService{}
	svc := newOrderForTest(t, orders, units, pricedLookup(t), carts, &stubOpener{})

	authorization := domain.Authorization{
		ID:         "auth-1",
		SellerID:   "seller-1",
		CustomerID: "cust-1",
		Currency:   "MXN",
		State:      domain.AuthorizationApproved,
		Kind:       domain.OperationSale,
		Lines: []domain.AuthorizationLine{
			{ProductID: "prod-1", RequestedPrice: dec("140"), AuthorizedPrice: dec("141.40")},
		},
		Payload: domain.DeferredPayload{Sale: &domain.SaleSnapshot{
			Groups: []domain.ProductGroup{
				{
					ProductID:     "prod-1",
					TotalQuantity: dec("8"),
					UnitPrice:     dec("140"),
					Units:         []domain.UnitSnapshot{{UnitID: "u1", LotName: "Lot u1", Quantity: dec("8")}},
				},
				{
					ProductID:     "prod-2",
					TotalQuantity: dec("5"),
					UnitPrice:     dec("200"),
					Units:         []domain.UnitSnapshot{{UnitID: "u2", LotName: "Lot u2", Quantity: dec("5")}},
				},
			},
		}},
	}

	order, err := svc.MaterializeSale(context.Background(), authorization)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed order, got %s", order.Status)
	}
	if saved == nil {
		t.Fatal("expected order persisted")
	}

	// Violating product: authorized 141.40 rounds up to 142. Non-violating
	// product keeps its submit-time price untouched.
	if !order.Lines[0].UnitPrice.Equal(dec("142")) {
		t.Fatalf("expected ceil(141.40)=142, got %s", order.Lines[0].UnitPrice)
	}
	if !order.Lines[1].UnitPrice.Equal(dec("200")) {
		t.Fatalf("expected snapshot price 200, got %s", order.Lines[1].UnitPrice)
	}
	if len(order.Lines[0].Assignments) != 1 || !order.Lines[0].Assignments[0].Quantity.Equal(dec("8")) {
		t.Fatalf("expected snapshot unit bound in full, got %+v", order.Lines[0].Assignments)
	}
	if len(carts.cleared) != 1 {
		t.Fatal("materialization must clear the seller's cart")
	}
	if !strings.Contains(order.Notes, "auth-1") {
		t.Fatalf("order notes should reference the authorization, got %q", order.Notes)
	}
}

func TestMaterializeSaleConfirmsDraftOrder(t *testing.T) {
	draft := domain.Order{
		ID:     "order-7",
		Status: domain.OrderStatusDraft,
		Lines: []domain.OrderLine{
			{ProductID: "prod-1", UnitPrice: dec("140")},
			{ProductID: "prod-2", UnitPrice: dec("200")},
		},
	}
	var savedStatus domain.OrderStatus
	var savedPrice decimal.Decimal
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			if orderID != "order-7" {
				return domain.Order{}, notFoundErr("order not found")
			}
			return draft, nil
		},
		saveFn: func(_ context.Context, order domain.Order) error {
			savedStatus = order.Status
			savedPrice = order.Lines[0].UnitPrice
			return nil
		},
	}
	svc := newOrderForTest(t, orders, &stubUnitRepo{}, pricedLookup(t), &stubCartService{}, &stubOpener{})

	authorization := domain.Authorization{
		ID:       "auth-1",
		SellerID: "seller-1",
		Kind:     domain.OperationSale,
		Lines: []domain.AuthorizationLine{
			{ProductID: "prod-1", AuthorizedPrice: dec("145")},
		},
		Payload: domain.DeferredPayload{Sale: &domain.SaleSnapshot{DraftOrderID: "order-7"}},
	}

	order, err := svc.MaterializeSale(context.Background(), authorization)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if order.ID != "order-7" {
		t.Fatalf("expected the draft confirmed in place, got %s", order.ID)
	}
	if savedStatus != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", savedStatus)
	}
	if !savedPrice.Equal(dec("145")) {
		t.Fatalf("expected authorized price applied, got %s", savedPrice)
	}
}

func TestMaterializeSaleRequiresSalePayload(t *testing.T) {
	svc := newOrderForTest(t, &stubOrderRepo{}, &stubUnitRepo{}, pricedLookup(t), &stubCartService{}, &stubOpener{})

	_, err := svc.MaterializeSale(context.Background(), domain.Authorization{ID: "auth-1"})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
