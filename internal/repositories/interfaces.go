package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/stoneyard/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	ProductPricing() ProductPricingRepository
	Purchases() PurchaseRepository
	Tariffs() TariffRepository
	Rates() RateRepository
	InventoryUnits() InventoryUnitRepository
	Carts() CartRepository
	Authorizations() AuthorizationRepository
	Orders() OrderRepository
	Holds() HoldRepository
	Transfers() TransferRepository
	Users() UserRepository
	Locations() LocationRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductPricingRepository persists per-product pricing records including the
// derived cost and tier fields.
type ProductPricingRepository interface {
	FindByID(ctx context.Context, productID string) (domain.ProductPricing, error)
	SaveCosts(ctx context.Context, productID string, breakdown domain.CostBreakdown, updatedAt time.Time) error
	SaveTiers(ctx context.Context, productID string, tiers domain.TierPrices, updatedAt time.Time) error
	ListPriced(ctx context.Context) ([]domain.ProductPricing, error)
}

// PurchaseRepository reads confirmed purchase history, ordered by approval date ascending.
type PurchaseRepository interface {
	ListConfirmedByProduct(ctx context.Context, productID string) ([]domain.PurchaseLine, error)
}

// TariffRepository looks up logistics tariffs by shipping route.
type TariffRepository interface {
	FindByRoute(ctx context.Context, origin, loadPort, dischargePort string) (domain.Tariff, error)
}

// RateRepository owns the process-wide exchange-rate configuration document.
type RateRepository interface {
	Get(ctx context.Context) (domain.RateConfig, error)
	Save(ctx context.Context, cfg domain.RateConfig) error
	// RateOn resolves the exchange rate effective on the given day, falling
	// back to the active configured rate when no daily record exists.
	RateOn(ctx context.Context, day time.Time) (decimal.Decimal, error)
}

// InventoryUnitRepository reads lot-level inventory units and flips their hold reference.
type InventoryUnitRepository interface {
	FindByID(ctx context.Context, unitID string) (domain.InventoryUnit, error)
	ListByIDs(ctx context.Context, unitIDs []string) ([]domain.InventoryUnit, error)
	SetHold(ctx context.Context, unitID, holdID, customerName string) error
	ClearHold(ctx context.Context, unitID string) error
}

// CartRepository owns per-user cart persistence.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	ReplaceItems(ctx context.Context, userID string, items []domain.CartItem, updatedAt time.Time) (domain.Cart, error)
}

// AuthorizationListFilter narrows authorization listings.
type AuthorizationListFilter struct {
	SellerID   string
	States     []domain.AuthorizationState
	Pagination domain.Pagination
}

// AuthorizationDecision carries the fields written by the pending to terminal
// transition. AuthorizedPrices overrides line authorized prices by product id
// inside the same transaction.
type AuthorizationDecision struct {
	State            domain.AuthorizationState
	DeciderID        string
	Notes            string
	DecidedAt        time.Time
	AuthorizedPrices map[string]decimal.Decimal
}

// AuthorizationRepository persists price-authorization requests. Decide runs the
// terminal-state check and the transition in one transaction and fails with a
// conflict-classified error when the request is no longer pending.
type AuthorizationRepository interface {
	Insert(ctx context.Context, authorization domain.Authorization) error
	FindByID(ctx context.Context, authorizationID string) (domain.Authorization, error)
	List(ctx context.Context, filter AuthorizationListFilter) (domain.CursorPage[domain.Authorization], error)
	Decide(ctx context.Context, authorizationID string, decision AuthorizationDecision) (domain.Authorization, error)
	SetOrderRef(ctx context.Context, authorizationID, orderID string) error
}

// OrderRepository persists sale orders.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	Save(ctx context.Context, order domain.Order) error
}

// HoldRepository persists customer holds on inventory units.
type HoldRepository interface {
	Insert(ctx context.Context, hold domain.Hold) (domain.Hold, error)
}

// TransferRepository persists internal stock transfers.
type TransferRepository interface {
	Insert(ctx context.Context, transfer domain.Transfer) (domain.Transfer, error)
}

// UserRepository reads the user directory for role checks and notification fan-out.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserAccount, error)
	ListByRole(ctx context.Context, role string) ([]domain.UserAccount, error)
}

// LocationRepository reads stock locations for transfer validation.
type LocationRepository interface {
	FindByID(ctx context.Context, locationID string) (domain.Location, error)
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
