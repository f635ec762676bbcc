package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/stoneyard/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	InventoryUnit      = domain.InventoryUnit
	UnitAssignment     = domain.UnitAssignment
	TierSet            = domain.TierSet
	TierPrices         = domain.TierPrices
	CostBreakdown      = domain.CostBreakdown
	ProductPricing     = domain.ProductPricing
	RateConfig         = domain.RateConfig
	Authorization      = domain.Authorization
	AuthorizationLine  = domain.AuthorizationLine
	DeferredPayload    = domain.DeferredPayload
	SaleSnapshot       = domain.SaleSnapshot
	ReservationSnapshot = domain.ReservationSnapshot
	ServiceLine        = domain.ServiceLine
	Hold               = domain.Hold
	Order              = domain.Order
	OrderLine          = domain.OrderLine
	Transfer           = domain.Transfer
	SystemHealthReport = domain.SystemHealthReport
)

// CostRollupService derives the all-in cost of a product from its purchase
// history, logistics tariff and duty inputs.
type CostRollupService interface {
	ComputeAllInCost(ctx context.Context, productID string) (CostBreakdown, error)
	ApplyRollup(ctx context.Context, productID string) (RollupResult, error)
}

// RollupResult reports a computed breakdown and whether it was persisted.
type RollupResult struct {
	Breakdown CostBreakdown
	Persisted bool
}

// PricingService derives and persists the tier-price ladder and answers
// gate-preview quotes.
type PricingService interface {
	ComputeLadder(ctx context.Context, productID string) (TierPrices, error)
	ApplyLadder(ctx context.Context, productID string) (TierPrices, error)
	RecomputeProduct(ctx context.Context, productID string) (ProductPricing, error)
	ListTierPrices(ctx context.Context, productID, currency string) ([]TierPrice, error)
	QuoteGate(ctx context.Context, cmd GateQuoteCommand) (GateResult, error)
}

// TierPrice is one labelled rung of the ladder in a single currency.
type TierPrice struct {
	Label    string
	Amount   decimal.Decimal
	Currency string
}

// GateQuoteCommand asks whether a set of requested prices would require authorization.
type GateQuoteCommand struct {
	Role            string
	Currency        string
	RequestedPrices map[string]decimal.Decimal
}

// RateRefreshService fetches the market exchange rate and re-runs the ladder
// for every priced product.
type RateRefreshService interface {
	RefreshExchangeRate(ctx context.Context) (RateRefreshResult, error)
}

// RateRefreshResult reports the outcome of one refresh cycle. A failed fetch
// is not an error: the cycle is skipped and the reason recorded.
type RateRefreshResult struct {
	Rate             decimal.Decimal
	Skipped          bool
	Reason           string
	ProductsRepriced int
}

// AuthorizationService owns the price-authorization state machine.
type AuthorizationService interface {
	Open(ctx context.Context, cmd OpenAuthorizationCommand) (Authorization, error)
	Get(ctx context.Context, query AuthorizationQuery) (Authorization, error)
	List(ctx context.Context, query ListAuthorizationsQuery) (domain.CursorPage[Authorization], error)
	Approve(ctx context.Context, cmd DecideAuthorizationCommand) (DecisionResult, error)
	Reject(ctx context.Context, cmd DecideAuthorizationCommand) (DecisionResult, error)
}

// OpenAuthorizationCommand captures the submit-time snapshot of a gated operation.
type OpenAuthorizationCommand struct {
	SellerID   string
	Kind       domain.OperationKind
	CustomerID string
	ProjectID  string
	Currency   string
	Lines      []AuthorizationLine
	Notes      string
	Payload    DeferredPayload
}

// AuthorizationQuery scopes a single-request read to the viewer.
type AuthorizationQuery struct {
	AuthorizationID string
	ViewerID        string
	ViewerRoles     []string
}

// ListAuthorizationsQuery scopes a listing to the viewer; sellers only see their own.
type ListAuthorizationsQuery struct {
	ViewerID    string
	ViewerRoles []string
	States      []domain.AuthorizationState
	Pagination  Pagination
}

// DecideAuthorizationCommand carries an approve or reject decision.
type DecideAuthorizationCommand struct {
	AuthorizationID  string
	DeciderID        string
	DeciderRoles     []string
	Notes            string
	AuthorizedPrices map[string]decimal.Decimal
}

// DecisionResult reports the terminal authorization and, for approved sale
// operations, the materialized order reference.
type DecisionResult struct {
	Authorization Authorization
	OrderID       string
}

// SaleMaterializer turns an approved sale authorization into a confirmed order.
type SaleMaterializer interface {
	MaterializeSale(ctx context.Context, authorization Authorization) (Order, error)
}

// ReservationMaterializer turns an approved reservation authorization into holds.
type ReservationMaterializer interface {
	MaterializeReservation(ctx context.Context, authorization Authorization) (HoldCreationResult, error)
}

// CartService manages the per-user set of selected inventory units.
type CartService interface {
	GetCart(ctx context.Context, userID string) (CartView, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, userID, unitID string) (CartView, error)
	ClearCart(ctx context.Context, userID string) error
	SyncItems(ctx context.Context, cmd SyncCartCommand) (CartView, error)
	RemoveHeldUnits(ctx context.Context, userID string) (CartView, error)
	QuantityByUnit(ctx context.Context, userID string) (map[string]decimal.Decimal, error)
}

// CartView is a cart read model with hold status resolved per item.
type CartView struct {
	UserID    string
	Items     []CartViewItem
	UpdatedAt time.Time
}

// CartViewItem decorates a cart item with the current hold state of its unit.
type CartViewItem struct {
	CartItem
	Held         bool
	HoldCustomer string
}

// AddCartItemCommand adds one inventory unit to the user's cart.
type AddCartItemCommand struct {
	UserID   string
	UnitID   string
	Quantity decimal.Decimal
}

// SyncCartCommand replaces the cart contents from client state.
type SyncCartCommand struct {
	UserID string
	Items  []AddCartItemCommand
}

// OrderService creates sale orders from the cart, running the authorization
// gate at submit time.
type OrderService interface {
	SaleMaterializer
	CreateFromCart(ctx context.Context, cmd CreateOrderCommand) (OrderSubmissionResult, error)
}

// CreateOrderCommand submits the seller's cart as a sale order.
type CreateOrderCommand struct {
	SellerID    string
	SellerRole  string
	CustomerID  string
	ProjectID   string
	ArchitectID string
	Currency    string
	Notes       string
	ApplyTax    bool
	UnitPrices  map[string]decimal.Decimal
	Services    []ServiceLine
}

// OrderSubmissionResult carries either the created order or the authorization
// opened in its place, plus any per-unit binding failures and unmet demand.
type OrderSubmissionResult struct {
	Order          *Order
	Authorization  *Authorization
	BindFailures   []UnitBindFailure
	UnmetRemainder map[string]decimal.Decimal
}

// UnitBindFailure records one inventory unit that could not be bound.
type UnitBindFailure struct {
	UnitID string
	Reason string
}

// HoldService creates customer holds (apartados) from the cart.
type HoldService interface {
	ReservationMaterializer
	CreateFromCart(ctx context.Context, cmd CreateHoldsCommand) (HoldCreationResult, error)
}

// CreateHoldsCommand places holds on every unit in the seller's cart.
type CreateHoldsCommand struct {
	SellerID     string
	SellerRole   string
	CustomerID   string
	CustomerName string
	ProjectID    string
	ArchitectID  string
	Currency     string
	Notes        string
	UnitPrices   map[string]decimal.Decimal
}

// HoldCreationResult reports per-unit outcomes; units already held are skipped
// rather than failing the whole batch.
type HoldCreationResult struct {
	Holds         []Hold
	Failures      []UnitBindFailure
	Created       int
	Failed        int
	Authorization *Authorization
}

// TransferService moves cart units between stock locations.
type TransferService interface {
	CreateFromCart(ctx context.Context, cmd CreateTransferCommand) ([]Transfer, error)
}

// CreateTransferCommand moves every cart unit to the destination location,
// one transfer per source location.
type CreateTransferCommand struct {
	UserID         string
	DestLocationID string
	Notes          string
}

// SystemService aggregates utility surfaces such as readiness reporting.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	Build() BuildInfo
}

// NotificationMessage is the fan-out payload emitted on authorization lifecycle events.
type NotificationMessage struct {
	Event           string    `json:"event"`
	AuthorizationID string    `json:"authorizationId,omitempty"`
	OrderID         string    `json:"orderId,omitempty"`
	ActorID         string    `json:"actorId,omitempty"`
	RecipientIDs    []string  `json:"recipientIds,omitempty"`
	Subject         string    `json:"subject,omitempty"`
	Body            string    `json:"body,omitempty"`
	OccurredAt      time.Time `json:"occurredAt"`
}

// NotificationPublisher delivers notification messages to the activity pipeline.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, message NotificationMessage) (string, error)
}
