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
	// ErrHoldInvalidInput indicates the caller supplied invalid input.
	ErrHoldInvalidInput = errors.New("hold service: invalid input")
	// ErrHoldUnavailable indicates a backing store failure.
	ErrHoldUnavailable = errors.New("hold service: unavailable")
)

// holdDurationBusinessDays is how long an apartado blocks its unit before an
// out-of-band sweep releases it.
const holdDurationBusinessDays = 5

// HoldServiceDeps wires hold creation dependencies.
type HoldServiceDeps struct {
	Holds           repositories.HoldRepository
	Units           repositories.InventoryUnitRepository
	Pricing         repositories.ProductPricingRepository
	Carts           CartService
	Authorizations  AuthorizationOpener
	Gate            *AuthorizationGate
	LocalCurrency   string
	ForeignCurrency string
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          func(context.Context, string, map[string]any)
}

type holdService struct {
	holds          repositories.HoldRepository
	units          repositories.InventoryUnitRepository
	pricing        repositories.ProductPricingRepository
	carts          CartService
	authorizations AuthorizationOpener
	gate           *AuthorizationGate
	local          string
	foreign        string
	now            func() time.Time
	newID          func() string
	logger         func(context.Context, string, map[string]any)
}

// NewHoldService constructs a HoldService enforcing dependency validation.
func NewHoldService(deps HoldServiceDeps) (HoldService, error) {
	if deps.Holds == nil {
		return nil, errors.New("hold service: hold repository is required")
	}
	if deps.Units == nil {
		return nil, errors.New("hold service: inventory unit repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("hold service: pricing repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("hold service: cart service is required")
	}
	if deps.Authorizations == nil {
		return nil, errors.New("hold service: authorization opener is required")
	}

	gate := deps.Gate
	if gate == nil {
		gate = NewAuthorizationGate()
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

	return &holdService{
		holds:          deps.Holds,
		units:          deps.Units,
		pricing:        deps.Pricing,
		carts:          deps.Carts,
		authorizations: deps.Authorizations,
		gate:           gate,
		local:          local,
		foreign:        foreign,
		now:            func() time.Time { return clock().UTC() },
		newID:          idGen,
		logger:         logger,
	}, nil
}

// holdParams carries the shared inputs of hold creation, whether the holds
// come from a direct submission or a materialized authorization.
type holdParams struct {
	sellerID    string
	customerID  string
	customer    string
	projectID   string
	architectID string
	currency    string
	notes       string
	prices      map[string]decimal.Decimal
}

// CreateFromCart places a hold on every unit in the seller's cart. The
// authorization gate runs first; on violation a pending authorization is
// opened and no holds are created.
func (s *holdService) CreateFromCart(ctx context.Context, cmd CreateHoldsCommand) (HoldCreationResult, error) {
	seller := strings.TrimSpace(cmd.SellerID)
	customer := strings.TrimSpace(cmd.CustomerID)
	if seller == "" || customer == "" {
		return HoldCreationResult{}, fmt.Errorf("%w: seller and customer are required", ErrHoldInvalidInput)
	}
	project := strings.TrimSpace(cmd.ProjectID)
	if project == "" {
		return HoldCreationResult{}, fmt.Errorf("%w: a project must be selected", ErrHoldInvalidInput)
	}
	architect := strings.TrimSpace(cmd.ArchitectID)
	if architect == "" {
		return HoldCreationResult{}, fmt.Errorf("%w: an architect must be selected", ErrHoldInvalidInput)
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.local
	}
	if !domain.ValidCurrency(currency) {
		return HoldCreationResult{}, fmt.Errorf("%w: invalid currency %q", ErrHoldInvalidInput, cmd.Currency)
	}

	view, err := s.carts.GetCart(ctx, seller)
	if err != nil {
		return HoldCreationResult{}, err
	}
	if len(view.Items) == 0 {
		return HoldCreationResult{}, fmt.Errorf("%w: cart is empty", ErrHoldInvalidInput)
	}

	groups := groupCartItems(view)
	for _, group := range groups {
		if _, ok := cmd.UnitPrices[group.productID]; !ok {
			return HoldCreationResult{}, fmt.Errorf("%w: missing price for product %s", ErrHoldInvalidInput, group.productID)
		}
	}

	gateResult, err := s.runGate(ctx, cmd.SellerRole, currency, groups, cmd.UnitPrices)
	if err != nil {
		return HoldCreationResult{}, err
	}
	if gateResult.Required {
		authorization, err := s.authorizations.Open(ctx, OpenAuthorizationCommand{
			SellerID:   seller,
			Kind:       domain.OperationReservation,
			CustomerID: customer,
			ProjectID:  project,
			Currency:   currency,
			Lines:      gateResult.Violations,
			Notes:      strings.TrimSpace(cmd.Notes),
			Payload: domain.DeferredPayload{
				Reservation: &domain.ReservationSnapshot{
					UnitIDs:     cartUnitIDs(view),
					UnitPrices:  cmd.UnitPrices,
					ArchitectID: architect,
				},
			},
		})
		if err != nil {
			return HoldCreationResult{}, err
		}
		s.logger(ctx, "holds.authorization_required", map[string]any{
			"sellerId":        seller,
			"authorizationId": authorization.ID,
			"violations":      len(authorization.Lines),
		})
		return HoldCreationResult{Authorization: &authorization}, nil
	}

	units, err := s.units.ListByIDs(ctx, cartUnitIDs(view))
	if err != nil {
		return HoldCreationResult{}, fmt.Errorf("%w: load units: %v", ErrHoldUnavailable, err)
	}

	result, err := s.createHolds(ctx, units, holdParams{
		sellerID:    seller,
		customerID:  customer,
		customer:    strings.TrimSpace(cmd.CustomerName),
		projectID:   project,
		architectID: architect,
		currency:    currency,
		notes:       strings.TrimSpace(cmd.Notes),
		prices:      cmd.UnitPrices,
	})
	if err != nil {
		return result, err
	}

	if _, err := s.carts.RemoveHeldUnits(ctx, seller); err != nil {
		s.logger(ctx, "holds.cart_sweep_failed", map[string]any{"sellerId": seller, "error": err.Error()})
	}

	s.logger(ctx, "holds.created", map[string]any{
		"sellerId": seller,
		"created":  result.Created,
		"failed":   result.Failed,
	})
	return result, nil
}

// MaterializeReservation turns an approved reservation authorization into
// holds on the snapshot units. Authorized prices are rounded up so the holds
// never undercut what was approved.
func (s *holdService) MaterializeReservation(ctx context.Context, authorization Authorization) (HoldCreationResult, error) {
	snapshot := authorization.Payload.Reservation
	if snapshot == nil {
		return HoldCreationResult{}, fmt.Errorf("%w: authorization %s has no reservation payload", ErrHoldInvalidInput, authorization.ID)
	}
	if len(snapshot.UnitIDs) == 0 {
		return HoldCreationResult{}, fmt.Errorf("%w: authorization %s snapshots no units", ErrHoldInvalidInput, authorization.ID)
	}

	prices := make(map[string]decimal.Decimal, len(snapshot.UnitPrices))
	for productID, price := range snapshot.UnitPrices {
		prices[productID] = price
	}
	for _, line := range authorization.Lines {
		prices[line.ProductID] = domain.CeilPrice(line.AuthorizedPrice)
	}

	units, err := s.units.ListByIDs(ctx, snapshot.UnitIDs)
	if err != nil {
		return HoldCreationResult{}, fmt.Errorf("%w: load units: %v", ErrHoldUnavailable, err)
	}

	result, err := s.createHolds(ctx, units, holdParams{
		sellerID:    authorization.SellerID,
		customerID:  authorization.CustomerID,
		projectID:   authorization.ProjectID,
		architectID: snapshot.ArchitectID,
		currency:    authorization.Currency,
		notes:       orderNotes(authorization.Notes, authorization.ProjectID, snapshot.ArchitectID, authorization.ID),
		prices:      prices,
	})
	if err != nil {
		return result, err
	}

	if _, err := s.carts.RemoveHeldUnits(ctx, authorization.SellerID); err != nil {
		s.logger(ctx, "holds.cart_sweep_failed", map[string]any{
			"sellerId": authorization.SellerID,
			"error":    err.Error(),
		})
	}

	s.logger(ctx, "holds.materialized", map[string]any{
		"authorizationId": authorization.ID,
		"created":         result.Created,
		"failed":          result.Failed,
	})
	return result, nil
}

// createHolds places one hold per unit. Units already held are skipped and
// reported as failures; a store failure on one unit does not roll back the
// holds already placed.
func (s *holdService) createHolds(ctx context.Context, units []domain.InventoryUnit, params holdParams) (HoldCreationResult, error) {
	now := s.now()
	expires := addBusinessDays(now, holdDurationBusinessDays)

	result := HoldCreationResult{}
	for _, unit := range units {
		if unit.Held() {
			result.Failures = append(result.Failures, UnitBindFailure{
				UnitID: unit.ID,
				Reason: fmt.Sprintf("lot %s already held for %s", unit.LotName, unit.HoldCustomer),
			})
			result.Failed++
			continue
		}

		hold := domain.Hold{
			ID:          s.newID(),
			UnitID:      unit.ID,
			LotID:       unit.LotID,
			LotName:     unit.LotName,
			ProductID:   unit.ProductID,
			CustomerID:  params.customerID,
			ProjectID:   params.projectID,
			ArchitectID: params.architectID,
			SellerID:    params.sellerID,
			Currency:    params.currency,
			UnitPrice:   params.prices[unit.ProductID],
			Notes:       params.notes,
			StartsAt:    now,
			ExpiresAt:   expires,
			CreatedAt:   now,
		}
		saved, err := s.holds.Insert(ctx, hold)
		if err != nil {
			result.Failures = append(result.Failures, UnitBindFailure{
				UnitID: unit.ID,
				Reason: "hold could not be stored",
			})
			result.Failed++
			s.logger(ctx, "holds.insert_failed", map[string]any{"unitId": unit.ID, "error": err.Error()})
			continue
		}

		customer := params.customer
		if customer == "" {
			customer = params.customerID
		}
		if err := s.units.SetHold(ctx, unit.ID, saved.ID, customer); err != nil {
			result.Failures = append(result.Failures, UnitBindFailure{
				UnitID: unit.ID,
				Reason: "unit could not be flagged as held",
			})
			result.Failed++
			s.logger(ctx, "holds.flag_failed", map[string]any{
				"unitId": unit.ID,
				"holdId": saved.ID,
				"error":  err.Error(),
			})
			continue
		}

		result.Holds = append(result.Holds, saved)
		result.Created++
	}

	if result.Created == 0 && result.Failed > 0 {
		return result, fmt.Errorf("%w: no holds could be created", ErrHoldUnavailable)
	}
	return result, nil
}

func (s *holdService) runGate(ctx context.Context, role, currency string, groups []productGroup, prices map[string]decimal.Decimal) (GateResult, error) {
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

func (s *holdService) tiersFor(ctx context.Context, productID, currency string) (TierSet, error) {
	product, err := s.pricing.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return TierSet{}, nil
		}
		return TierSet{}, fmt.Errorf("%w: load pricing: %v", ErrHoldUnavailable, err)
	}
	if strings.EqualFold(currency, s.foreign) {
		return product.Tiers.Foreign, nil
	}
	return product.Tiers.Local, nil
}

// addBusinessDays advances a timestamp by n weekdays, skipping Saturdays and
// Sundays.
func addBusinessDays(from time.Time, n int) time.Time {
	t := from
	for added := 0; added < n; {
		t = t.AddDate(0, 0, 1)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			added++
		}
	}
	return t
}
