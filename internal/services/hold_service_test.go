package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/stoneyard/api/internal/domain"
)

func newHoldForTest(t *testing.T, holds *stubHoldRepo, units *stubUnitRepo, pricing *stubPricingRepo, carts *stubCartService, opener *stubOpener) HoldService {
	t.Helper()
	svc, err := NewHoldService(HoldServiceDeps{
		Holds:          holds,
		Units:          units,
		Pricing:        pricing,
		Carts:          carts,
		Authorizations: opener,
		Clock:          func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) },
		IDGenerator:    func() string { return "hold-1" },
	})
	if err != nil {
		t.Fatalf("new hold service: %v", err)
	}
	return svc
}

func TestCreateHoldsFromCart(t *testing.T) {
	var insertedHolds []domain.Hold
	holds := &stubHoldRepo{
		insertFn: func(_ context.Context, hold domain.Hold) (domain.Hold, error) {
			insertedHolds = append(insertedHolds, hold)
			return hold, nil
		},
	}
	u1 := domain.InventoryUnit{ID: "u1", LotID: "lot-1", LotName: "Lot u1", ProductID: "prod-1", Quantity: dec("8")}
	flagged := make(map[string]string)
	units := &stubUnitRepo{
		listFn: unitLookup(u1),
		setHoldFn: func(_ context.Context, unitID, holdID, customerName string) error {
			flagged[unitID] = customerName
			if holdID == "" {
				t.Fatal("hold id required when flagging the unit")
			}
			return nil
		},
	}
	carts := &stubCartService{view: cartWith(cartItem("u1", "prod-1", "8"))}
	svc := newHoldForTest(t, holds, units, pricedLookup(t), carts, &stubOpener{})

	result, err := svc.CreateFromCart(context.Background(), CreateHoldsCommand{
		SellerID:     "seller-1",
		SellerRole:   roleSeller,
		CustomerID:   "cust-1",
		CustomerName: "Customer One",
		ProjectID:    "proj-1",
		ArchitectID:  "arch-1",
		Currency:     "MXN",
		UnitPrices:   map[string]decimal.Decimal{"prod-1": dec("160")},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Created != 1 || result.Failed != 0 {
		t.Fatalf("expected one hold, got %+v", result)
	}
	hold := insertedHolds[0]
	if hold.UnitID != "u1" || hold.CustomerID != "cust-1" || !hold.UnitPrice.Equal(dec("160")) {
		t.Fatalf("unexpected hold %+v", hold)
	}
	if flagged["u1"] != "Customer One" {
		t.Fatalf("expected unit flagged with the customer name, got %q", flagged["u1"])
	}
	if len(carts.sweptUsers) != 1 || carts.sweptUsers[0] != "seller-1" {
		t.Fatalf("expected cart swept after creation, got %v", carts.sweptUsers)
	}
}

func TestCreateHoldsRequiresProjectAndArchitect(t *testing.T) {
	inserted := 0
	holds := &stubHoldRepo{
		insertFn: func(_ context.Context, hold domain.Hold) (domain.Hold, error) {
			inserted++
			return hold, nil
		},
	}
	carts := &stubCartService{view: cartWith(cartItem("u1", "prod-1", "8"))}
	svc := newHoldForTest(t, holds, &stubUnitRepo{}, pricedLookup(t), carts, &stubOpener{})

	cases := []struct {
		name string
		cmd  CreateHoldsCommand
	}{
		{
			name: "missing project",
			cmd: CreateHoldsCommand{
				SellerID:    "seller-1",
				SellerRole:  roleSeller,
				CustomerID:  "cust-1",
				ArchitectID: "arch-1",
				UnitPrices:  map[string]decimal.Decimal{"prod-1": dec("160")},
			},
		},
		{
			name: "missing architect",
			cmd: CreateHoldsCommand{
				SellerID:   "seller-1",
				SellerRole: roleSeller,
				CustomerID: "cust-1",
				ProjectID:  "proj-1",
				UnitPrices: map[string]decimal.Decimal{"prod-1": dec("160")},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := svc.CreateFromCart(context.Background(), tc.cmd)
			if !errors.Is(err, ErrHoldInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
			if result.Created != 0 {
				t.Fatalf("expected nothing created, got %+v", result)
			}
		})
	}
	if inserted != 0 {
		t.Fatalf("expected no holds stored, got %d", inserted)
	}
}

func TestCreateHoldsExpiryIsFiveBusinessDays(t *testing.T) {
	var captured domain.Hold
	holds := &stubHoldRepo{
		insertFn: func(_ context.Context, hold domain.Hold) (domain.Hold, error) {
			captured = hold
			return hold, nil
		},
	}
	u1 := domain.InventoryUnit{ID: "u1", LotName: "Lot u1", ProductID: "prod-1", Quantity: dec("8")}
	units := &stubUnitRepo{listFn: unitLookup(u1)}
	carts := &stubCartService{view: cartWith(cartItem("u1", "prod-1", "8"))}
	svc := newHoldForTest(t, holds, units, pricedLookup(t), carts, &stubOpener{})

	_, err := svc.CreateFromCart(context.Background(), CreateHoldsCommand{
		SellerID:    "seller-1",
		SellerRole:  roleSeller,
		CustomerID:  "cust-1",
		ProjectID:   "proj-1",
		ArchitectID: "arch-1",
		UnitPrices:  map[string]decimal.Decimal{"prod-1": dec("160")},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Monday 2026-03-02 plus five business days lands on Monday 2026-03-09,
	// skipping the weekend.
	want := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	if !captured.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %s, got %s", want, captured.ExpiresAt)
	}
}

func TestCreateHoldsSkipsAlreadyHeldUnits(t *testing.T) {
	inserted := 0
	holds := &stubHoldRepo{
		insertFn: func(_ context.Context, hold domain.Hold) (domain.Hold, error) {
			inserted++
			return hold, nil
		},
	}
	held := domain.InventoryUnit{
		ID: "u1", LotName: "Lot u1", ProductID: "prod-1", Quantity: dec("8"),
		HoldID: "hold-9", HoldCustomer: "Customer B",
	}
	free := domain.InventoryUnit{ID: "u2", LotName: "Lot u2", ProductID: "prod-1", Quantity: dec("5")}
	units := &stubUnitRepo{listFn: unitLookup(held, free)}
	carts := &stubCartService{view: cartWith(
		cartItem("u1", "prod-1", "8"),
		cartItem("u2", "prod-1", "5"),
	)}
	svc := newHoldForTest(t, holds, units, pricedLookup(t), carts, &stubOpener{})

	result, err := svc.CreateFromCart(context.Background(), CreateHoldsCommand{
		SellerID:    "seller-1",
		SellerRole:  roleSeller,
		CustomerID:  "cust-1",
		ProjectID:   "proj-1",
		ArchitectID: "arch-1",
		UnitPrices:  map[string]decimal.Decimal{"prod-1": dec("160")},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Created != 1 || result.Failed != 1 || inserted != 1 {
		t.Fatalf("expected partial outcome, got %+v", result)
	}
	if result.Failures[0].UnitID != "u1" {
		t.Fatalf("expected failure on the held unit, got %+v", result.Failures)
	}
}

func TestCreateHoldsOpensAuthorizationOnViolation(t *testing.T) {
	inserted := 0
	holds := &stubHoldRepo{
		insertFn: func(_ context.Context, hold domain.Hold) (domain.Hold, error) {
			inserted++
			return hold, nil
		},
	}
	carts := &stubCartService{view: cartWith(cartItem("u1", "prod-1", "8"))}
	opener := &stubOpener{}
	svc := newHoldForTest(t, holds, &stubUnitRepo{}, pricedLookup(t), carts, opener)

	result, err := svc.CreateFromCart(context.Background(), CreateHoldsCommand{
		SellerID:    "seller-1",
		SellerRole:  roleSeller,
		CustomerID:  "cust-1",
		ProjectID:   "proj-1",
		ArchitectID: "arch-1",
		UnitPrices:  map[string]decimal.Decimal{"prod-1": dec("120")},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Authorization == nil || result.Created != 0 || inserted != 0 {
		t.Fatalf("expected deferred creation, got %+v", result)
	}

	cmd := opener.opened[0]
	if cmd.Kind != domain.OperationReservation || cmd.Payload.Reservation == nil {
		t.Fatalf("expected reservation payload, got %+v", cmd)
	}
	if cmd.ProjectID != "proj-1" || cmd.Payload.Reservation.ArchitectID != "arch-1" {
		t.Fatalf("expected project and architect carried into the authorization, got %+v", cmd)
	}
	if len(cmd.Payload.Reservation.UnitIDs) != 1 || cmd.Payload.Reservation.UnitIDs[0] != "u1" {
		t.Fatalf("snapshot must capture the selection, got %+v", cmd.Payload.Reservation)
	}
	if !cmd.Payload.Reservation.UnitPrices["prod-1"].Equal(dec("120")) {
		t.Fatalf("snapshot must carry the requested prices, got %+v", cmd.Payload.Reservation.UnitPrices)
	}
}

func TestMaterializeReservationCeilsAuthorizedPrices(t *testing.T) {
	var captured domain.Hold
	holds := &stubHoldRepo{
		insertFn: func(_ context.Context, hold domain.Hold) (domain.Hold, error) {
			captured = hold
			return hold, nil
		},
	}
	u1 := domain.InventoryUnit{ID: "u1", LotName: "Lot u1", ProductID: "prod-1", Quantity: dec("8")}
	units := &stubUnitRepo{listFn: unitLookup(u1)}
	carts := &stubCartService{}
	svc := newHoldForTest(t, holds, units, pricedLookup(t), carts, &stubOpener{})

	result, err := svc.MaterializeReservation(context.Background(), domain.Authorization{
		ID:         "auth-1",
		SellerID:   "seller-1",
		CustomerID: "cust-1",
		Currency:   "MXN",
		Kind:       domain.OperationReservation,
		Lines: []domain.AuthorizationLine{
			{ProductID: "prod-1", AuthorizedPrice: dec("141.40")},
		},
		Payload: domain.DeferredPayload{Reservation: &domain.ReservationSnapshot{
			UnitIDs:    []string{"u1"},
			UnitPrices: map[string]decimal.Decimal{"prod-1": dec("140")},
		}},
	})
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if result.Created != 1 {
		t.Fatalf("expected one hold, got %+v", result)
	}
	if !captured.UnitPrice.Equal(dec("142")) {
		t.Fatalf("expected ceil(141.40)=142, got %s", captured.UnitPrice)
	}
	if len(carts.sweptUsers) != 1 {
		t.Fatal("materialization must sweep the seller's cart")
	}
}

func TestMaterializeReservationRequiresPayload(t *testing.T) {
	svc := newHoldForTest(t, &stubHoldRepo{}, &stubUnitRepo{}, pricedLookup(t), &stubCartService{}, &stubOpener{})

	_, err := svc.MaterializeReservation(context.Background(), domain.Authorization{ID: "auth-1"})
	if !errors.Is(err, ErrHoldInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCreateHoldsFailsWhenNothingCouldBeCreated(t *testing.T) {
	held := domain.InventoryUnit{
		ID: "u1", LotName: "Lot u1", ProductID: "prod-1", Quantity: dec("8"),
		HoldID: "hold-9", HoldCustomer: "Customer B",
	}
	units := &stubUnitRepo{listFn: unitLookup(held)}
	carts := &stubCartService{view: cartWith(cartItem("u1", "prod-1", "8"))}
	svc := newHoldForTest(t, &stubHoldRepo{}, units, pricedLookup(t), carts, &stubOpener{})

	_, err := svc.CreateFromCart(context.Background(), CreateHoldsCommand{
		SellerID:    "seller-1",
		SellerRole:  roleSeller,
		CustomerID:  "cust-1",
		ProjectID:   "proj-1",
		ArchitectID: "arch-1",
		UnitPrices:  map[string]decimal.Decimal{"prod-1": dec("160")},
	})
	if !errors.Is(err, ErrHoldUnavailable) {
		t.Fatalf("expected failure when every unit is blocked, got %v", err)
	}
}

func TestAddBusinessDaysSkipsWeekends(t *testing.T) {
	friday := time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC)
	got := addBusinessDays(friday, 1)
	want := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected Monday %s, got %s", want, got)
	}
}
