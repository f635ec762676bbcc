package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/stoneyard/api/internal/domain"
	"github.com/stoneyard/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput indicates the caller supplied invalid input, such as
	// an empty cart, a missing price or a unit held for another customer.
	ErrOrderInvalidInput = errors.New("order service: invalid input")
	// ErrOrderNotFound indicates the referenced order does not exist.
	ErrOrderNotFound = errors.New("order service: not found")
	// ErrOrderUnavailable indicates a backing store failure.
	ErrOrderUnavailable = errors.New("order service: unavailable")
)

// AuthorizationOpener opens a pending price-authorization request.
type AuthorizationOpener interface {
	Open(ctx context.Context, cmd OpenAuthorizationCommand) (Authorization, error)
}

// OrderServiceDeps wires order creation dependencies.
type OrderServiceDeps struct {
	Orders          repositories.OrderRepository
	Units           repositories.InventoryUnitRepository
	Pricing         repositories.ProductPricingRepository
	Carts           CartService
	Authorizations  AuthorizationOpener
	Gate            *AuthorizationGate
	Matcher         *ReservationMatcher
	LocalCurrency   string
	ForeignCurrency string
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(context.Context, string, map[string]any)
}

type orderService struct {
	orders         repositories.OrderRepository
	units          repositories.InventoryUnitRepository
	pricing        repositories.ProductPricingRepository
	carts          CartService
	authorizations AuthorizationOpener
	gate           *AuthorizationGate
	matcher        *ReservationMatcher
	local          string
	foreign        string
	now            func() time.Time
	newID          func() string
	logger         func(context.Context, string, map[string]any)
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Units == nil {
		return nil, errors.New("order service: inventory unit repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart service is required")
	}
	if deps.Authorizations == nil {
		return nil, errors.New("order service: authorization opener is required")
	}

	gate := deps.Gate
	if gate == nil {
		gate = NewAuthorizationGate()
	}
	matcher := deps.Matcher
	if matcher == nil {
		matcher = NewReservationMatcher()
	}

	local := strings.ToUpper(strings.TrimSpace(deps.LocalCurrency))
	if local == "" {
		local = "MXN"
	}
	foreign := strings.ToUpper(strings.TrimSpace(deps.ForeignCurrency))
	if foreign == "" {
		foreign = "USD"
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:         deps.Orders,
		units:          deps.Units,
		pricing:        deps.Pricing,
		carts:          deps.Carts,
		authorizations: deps.Authorizations,
		gate:           gate,
		matcher:        matcher,
		local:          local,
		foreign:        foreign,
		now:            func() time.Time { return clock().UTC() },
		newID:          idGen,
		logger:         logger,
	}, nil
}

// productGroup accumulates the cart units of one product in cart order.
type productGroup struct {
	productID   string
	productName string
	totalQty    decimal.Decimal
	unitIDs     []string
	snapshots   []domain.UnitSnapshot
}

// CreateFromCart submits the seller's cart as a sale order. The authorization
// gate runs first; on violation a pending authorization is opened and returned
// instead of an order.
func (s *orderService) CreateFromCart(ctx context.Context, cmd CreateOrderCommand) (OrderSubmissionResult, error) {
	seller := strings.TrimSpace(cmd.SellerID)
	customer := strings.TrimSpace(cmd.CustomerID)
	if seller == "" || customer == "" {
		return OrderSubmissionResult{}, fmt.Errorf("%w: seller and customer are required", ErrOrderInvalidInput)
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.local
	}
	if !domain.ValidCurrency(currency) {
		return OrderSubmissionResult{}, fmt.Errorf("%w: invalid currency %q", ErrOrderInvalidInput, cmd.Currency)
	}

	view, err := s.carts.GetCart(ctx, seller)
	if err != nil {
		return OrderSubmissionResult{}, err
	}
	if len(view.Items) == 0 {
		return OrderSubmissionResult{}, fmt.Errorf("%w: cart is empty", ErrOrderInvalidInput)
	}

	groups := groupCartItems(view)
	for _, group := range groups {
		if _, ok := cmd.UnitPrices[group.productID]; !ok {
			return OrderSubmissionResult{}, fmt.Errorf("%w: missing price for product %s", ErrOrderInvalidInput, group.productID)
		}
	}

	gateResult, err := s.runGate(ctx, cmd.SellerRole, currency, groups, cmd.UnitPrices)
	if err != nil {
		return OrderSubmissionResult{}, err
	}
	if gateResult.Required {
		authorization, err := s.authorizations.Open(ctx, OpenAuthorizationCommand{
			SellerID:   seller,
			Kind:       domain.OperationSale,
			CustomerID: customer,
			ProjectID:  strings.TrimSpace(cmd.ProjectID),
			Currency:   currency,
			Lines:      gateResult.Violations,
			Notes:      strings.TrimSpace(cmd.Notes),
			Payload: domain.DeferredPayload{
				Sale: &domain.SaleSnapshot{
					Groups:      snapshotGroups(groups, cmd.UnitPrices),
					Services:    cmd.Services,
					ApplyTax:    cmd.ApplyTax,
					ArchitectID: strings.TrimSpace(cmd.ArchitectID),
				},
			},
		})
		if err != nil {
			return OrderSubmissionResult{}, err
		}
		s.logger(ctx, "orders.authorization_required", map[string]any{
			"sellerId":        seller,
			"authorizationId": authorization.ID,
			"violations":      len(authorization.Lines),
		})
		return OrderSubmissionResult{Authorization: &authorization}, nil
	}

	unitsByID, err := s.lookupUnits(ctx, cartUnitIDs(view))
	if err != nil {
		return OrderSubmissionResult{}, err
	}
	if err := validateHolds(unitsByID, customer); err != nil {
		return OrderSubmissionResult{}, err
	}

	now := s.now()
	order := domain.Order{
		ID:          s.newID(),
		CustomerID:  customer,
		SellerID:    seller,
		ProjectID:   strings.TrimSpace(cmd.ProjectID),
		ArchitectID: strings.TrimSpace(cmd.ArchitectID),
		Currency:    currency,
		Status:      domain.OrderStatusConfirmed,
		Notes:       orderNotes(cmd.Notes, cmd.ProjectID, cmd.ArchitectID, ""),
		CreatedAt:   now,
		ConfirmedAt: now,
	}

	cartQty := quantitiesFromView(view)
	result := OrderSubmissionResult{}
	for _, group := range groups {
		line := domain.OrderLine{
			ProductID:       group.productID,
			ProductName:     group.productName,
			Quantity:        group.totalQty,
			UnitPrice:       cmd.UnitPrices[group.productID],
			TaxApplied:      cmd.ApplyTax,
			SelectedUnitIDs: group.unitIDs,
		}
		s.bindLine(ctx, &line, group, unitsByID, nil, cartQty, &result)
		order.Lines = append(order.Lines, line)
	}
	for _, service := range cmd.Services {
		order.Lines = append(order.Lines, domain.OrderLine{
			ProductID:  service.ProductID,
			Quantity:   service.Quantity,
			UnitPrice:  service.UnitPrice,
			TaxApplied: cmd.ApplyTax,
		})
	}

	saved, err := s.orders.Insert(ctx, order)
	if err != nil {
		return OrderSubmissionResult{}, fmt.Errorf("%w: insert order: %v", ErrOrderUnavailable, err)
	}
	result.Order = &saved

	if err := s.carts.ClearCart(ctx, seller); err != nil {
		s.logger(ctx, "orders.cart_clear_failed", map[string]any{"sellerId": seller, "error": err.Error()})
	}

	s.logger(ctx, "orders.created", map[string]any{
		"orderId":  saved.ID,
		"sellerId": seller,
		"lines":    len(saved.Lines),
	})
	return result, nil
}

// MaterializeSale turns an approved sale authorization into a confirmed order.
// Authorized prices are rounded up so the materialized order never undercuts
// what was approved.
func (s *orderService) MaterializeSale(ctx context.Context, authorization Authorization) (Order, error) {
	snapshot := authorization.Payload.Sale
	if snapshot == nil {
		return Order{}, fmt.Errorf("%w: authorization %s has no sale payload", ErrOrderInvalidInput, authorization.ID)
	}

	authorized := make(map[string]decimal.Decimal, len(authorization.Lines))
	for _, line := range authorization.Lines {
		authorized[line.ProductID] = domain.CeilPrice(line.AuthorizedPrice)
	}

	if draftID := strings.TrimSpace(snapshot.DraftOrderID); draftID != "" {
		return s.confirmDraft(ctx, draftID, authorization, authorized)
	}

	now := s.now()
	order := domain.Order{
		ID:          s.newID(),
		CustomerID:  authorization.CustomerID,
		SellerID:    authorization.SellerID,
		ProjectID:   authorization.ProjectID,
		ArchitectID: snapshot.ArchitectID,
		Currency:    authorization.Currency,
		Status:      domain.OrderStatusConfirmed,
		Notes:       orderNotes(authorization.Notes, authorization.ProjectID, snapshot.ArchitectID, authorization.ID),
		CreatedAt:   now,
		ConfirmedAt: now,
	}

	unitIDs := make([]string, 0)
	for _, group := range snapshot.Groups {
		for _, unit := range group.Units {
			unitIDs = append(unitIDs, unit.UnitID)
		}
	}
	unitsByID, err := s.lookupUnits(ctx, unitIDs)
	if err != nil {
		return Order{}, err
	}

	result := OrderSubmissionResult{}
	for _, snapshotGroup := range snapshot.Groups {
		price, ok := authorized[snapshotGroup.ProductID]
		if !ok {
			price = snapshotGroup.UnitPrice
		}

		group := productGroup{
			productID:   snapshotGroup.ProductID,
			productName: snapshotGroup.ProductName,
			totalQty:    snapshotGroup.TotalQuantity,
			snapshots:   snapshotGroup.Units,
		}
		breakdown := make(map[string]decimal.Decimal, len(snapshotGroup.Units))
		for _, unit := range snapshotGroup.Units {
			group.unitIDs = append(group.unitIDs, unit.UnitID)
			breakdown[unit.UnitID] = unit.Quantity
		}

		line := domain.OrderLine{
			ProductID:       snapshotGroup.ProductID,
			ProductName:     snapshotGroup.ProductName,
			Quantity:        snapshotGroup.TotalQuantity,
			UnitPrice:       price,
			TaxApplied:      snapshot.ApplyTax,
			SelectedUnitIDs: group.unitIDs,
		}
		s.bindLine(ctx, &line, group, unitsByID, breakdown, nil, &result)
		order.Lines = append(order.Lines, line)
	}
	for _, service := range snapshot.Services {
		order.Lines = append(order.Lines, domain.OrderLine{
			ProductID:  service.ProductID,
			Quantity:   service.Quantity,
			UnitPrice:  service.UnitPrice,
			TaxApplied: snapshot.ApplyTax,
		})
	}

	saved, err := s.orders.Insert(ctx, order)
	if err != nil {
		return Order{}, fmt.Errorf("%w: insert order: %v", ErrOrderUnavailable, err)
	}

	if err := s.carts.ClearCart(ctx, authorization.SellerID); err != nil {
		s.logger(ctx, "orders.cart_clear_failed", map[string]any{
			"sellerId": authorization.SellerID,
			"error":    err.Error(),
		})
	}

	s.logger(ctx, "orders.materialized", map[string]any{
		"orderId":         saved.ID,
		"authorizationId": authorization.ID,
	})
	return saved, nil
}

// confirmDraft updates a pre-existing draft order's line prices from the
// authorization and confirms it.
func (s *orderService) confirmDraft(ctx context.Context, draftID string, authorization Authorization, authorized map[string]decimal.Decimal) (Order, error) {
	order, err := s.orders.FindByID(ctx, draftID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, fmt.Errorf("%w: draft order %s", ErrOrderNotFound, draftID)
		}
		return Order{}, fmt.Errorf("%w: load draft order: %v", ErrOrderUnavailable, err)
	}

	for i := range order.Lines {
		if price, ok := authorized[order.Lines[i].ProductID]; ok {
			order.Lines[i].UnitPrice = price
		}
	}
	order.Status = domain.OrderStatusConfirmed
	order.ConfirmedAt = s.now()
	order.Notes = orderNotes(order.Notes, authorization.ProjectID, "", authorization.ID)

	if err := s.orders.Save(ctx, order); err != nil {
		return Order{}, fmt.Errorf("%w: confirm draft order: %v", ErrOrderUnavailable, err)
	}

	s.logger(ctx, "orders.draft_confirmed", map[string]any{
		"orderId":         order.ID,
		"authorizationId": authorization.ID,
	})
	return order, nil
}

// bindLine re-binds the selected units through the matcher, replacing any
// automatic allocation. Unit-level failures are recorded and skipped rather
// than aborting the line; unmet demand is surfaced on the result.
func (s *orderService) bindLine(ctx context.Context, line *domain.OrderLine, group productGroup, unitsByID map[string]domain.InventoryUnit, breakdown, cartQty map[string]decimal.Decimal, result *OrderSubmissionResult) {
	candidates := make([]domain.InventoryUnit, 0, len(group.unitIDs))
	for _, unitID := range group.unitIDs {
		unit, ok := unitsByID[unitID]
		if !ok {
			result.BindFailures = append(result.BindFailures, UnitBindFailure{
				UnitID: unitID,
				Reason: "unit no longer exists",
			})
			s.logger(ctx, "orders.bind_failed", map[string]any{"unitId": unitID, "productId": group.productID})
			continue
		}
		candidates = append(candidates, unit)
	}

	match := s.matcher.MatchUnits(MatchRequest{
		Demand:         group.totalQty,
		Candidates:     candidates,
		Breakdown:      breakdown,
		CartQuantities: cartQty,
	})
	line.Assignments = match.Assignments

	if match.Remainder.GreaterThan(domain.NegligibleQuantity) {
		if result.UnmetRemainder == nil {
			result.UnmetRemainder = make(map[string]decimal.Decimal)
		}
		result.UnmetRemainder[group.productID] = match.Remainder
		s.logger(ctx, "orders.unmet_demand", map[string]any{
			"productId": group.productID,
			"remainder": match.Remainder.String(),
		})
	}
}

func (s *orderService) runGate(ctx context.Context, role, currency string, groups []productGroup, prices map[string]decimal.Decimal) (GateResult, error) {
	lines := make([]GateLine, 0, len(groups))
	for _, group := range groups {
		tiers, err := s.tiersFor(ctx, group.productID, currency)
		if err != nil {
			return GateResult{}, err
		}
		lines = append(lines, GateLine{
			ProductID:      group.productID,
			ProductName:    group.productName,
			Quantity:       group.totalQty,
			UnitCount:      len(group.unitIDs),
			RequestedPrice: prices[group.productID],
			Tiers:          tiers,
		})
	}
	return s.gate.NeedsAuthorization(GateInput{Role: role, Currency: currency, Lines: lines}), nil
}

// tiersFor selects the product's tier set for the quote currency. Products
// without a pricing record yield an empty set, which the gate skips.
func (s *orderService) tiersFor(ctx context.Context, productID, currency string) (TierSet, error) {
	product, err := s.pricing.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return TierSet{}, nil
		}
		return TierSet{}, fmt.Errorf("%w: load pricing: %v", ErrOrderUnavailable, err)
	}
	if strings.EqualFold(currency, s.foreign) {
		return product.Tiers.Foreign, nil
	}
	return product.Tiers.Local, nil
}

func (s *orderService) lookupUnits(ctx context.Context, unitIDs []string) (map[string]domain.InventoryUnit, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	units, err := s.units.ListByIDs(ctx, unitIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: load units: %v", ErrOrderUnavailable, err)
	}
	byID := make(map[string]domain.InventoryUnit, len(units))
	for _, unit := range units {
		byID[unit.ID] = unit
	}
	return byID, nil
}

func groupCartItems(view CartView) []productGroup {
	groups := make([]productGroup, 0, len(view.Items))
	index := make(map[string]int, len(view.Items))
	for _, item := range view.Items {
		idx, ok := index[item.ProductID]
		if !ok {
			idx = len(groups)
			index[item.ProductID] = idx
			groups = append(groups, productGroup{
				productID:   item.ProductID,
				productName: item.ProductName,
				totalQty:    decimal.Zero,
			})
		}
		groups[idx].totalQty = groups[idx].totalQty.Add(item.Quantity)
		groups[idx].unitIDs = append(groups[idx].unitIDs, item.UnitID)
		groups[idx].snapshots = append(groups[idx].snapshots, domain.UnitSnapshot{
			UnitID:   item.UnitID,
			LotName:  item.LotName,
			Quantity: item.Quantity,
		})
	}
	return groups
}

// validateHolds rejects the submission when any selected unit is held for a
// different customer, enumerating the offending lots.
func validateHolds(unitsByID map[string]domain.InventoryUnit, customerID string) error {
	var held []string
	for _, unit := range unitsByID {
		if unit.Held() && unit.HoldCustomer != customerID {
			held = append(held, unit.LotName)
		}
	}
	if len(held) == 0 {
		return nil
	}
	return fmt.Errorf("%w: units held for another customer: %s", ErrOrderInvalidInput, strings.Join(held, ", "))
}

func snapshotGroups(groups []productGroup, prices map[string]decimal.Decimal) []domain.ProductGroup {
	out := make([]domain.ProductGroup, 0, len(groups))
	for _, group := range groups {
		out = append(out, domain.ProductGroup{
			ProductID:     group.productID,
			ProductName:   group.productName,
			TotalQuantity: group.totalQty,
			UnitPrice:     prices[group.productID],
			Units:         group.snapshots,
		})
	}
	return out
}

func cartUnitIDs(view CartView) []string {
	ids := make([]string, 0, len(view.Items))
	for _, item := range view.Items {
		ids = append(ids, item.UnitID)
	}
	return ids
}

func quantitiesFromView(view CartView) map[string]decimal.Decimal {
	if len(view.Items) == 0 {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(view.Items))
	for _, item := range view.Items {
		out[item.UnitID] = item.Quantity
	}
	return out
}

func orderNotes(notes, projectID, architectID, authorizationID string) string {
	parts := make([]string, 0, 4)
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		parts = append(parts, trimmed)
	}
	if trimmed := strings.TrimSpace(projectID); trimmed != "" {
		parts = append(parts, "Project: "+trimmed)
	}
	if trimmed := strings.TrimSpace(architectID); trimmed != "" {
		parts = append(parts, "Architect: "+trimmed)
	}
	if trimmed := strings.TrimSpace(authorizationID); trimmed != "" {
		parts = append(parts, "Authorization: "+trimmed)
	}
	return strings.Join(parts, " | ")
}
