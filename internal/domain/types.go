package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of results together with the next page token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// UnitType classifies how an inventory unit may be reserved.
type UnitType string

const (
	// UnitTypeWhole marks units (slabs) that must be reserved in full, never split.
	UnitTypeWhole UnitType = "whole"
	// UnitTypeDivisible marks units (cut formats) that may be partially reserved.
	UnitTypeDivisible UnitType = "divisible"
)

// ParseUnitType normalises a stored unit type, defaulting to whole when the
// value is missing or unknown. Whole is the conservative choice: an
// unclassified slab is never split by mistake.
func ParseUnitType(value string) UnitType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(UnitTypeDivisible):
		return UnitTypeDivisible
	default:
		return UnitTypeWhole
	}
}

// InventoryUnit is a lot-identified quantity of physical stock at a location.
// Owned by the inventory subsystem; this core only flips the hold reference.
type InventoryUnit struct {
	ID           string
	LotID        string
	LotName      string
	ProductID    string
	ProductName  string
	LocationID   string
	LocationName string
	Quantity     decimal.Decimal
	UnitType     UnitType
	HoldID       string
	HoldCustomer string
}

// Held reports whether the unit carries an active hold.
func (u InventoryUnit) Held() bool {
	return strings.TrimSpace(u.HoldID) != ""
}

// TierSet holds the three sale-price tiers for one currency.
type TierSet struct {
	High    decimal.Decimal
	Medium  decimal.Decimal
	Minimum decimal.Decimal
}

// IsZero reports whether no tier carries a positive price.
func (t TierSet) IsZero() bool {
	return !t.High.IsPositive() && !t.Medium.IsPositive() && !t.Minimum.IsPositive()
}

// TierPrices carries the six derived tier prices, local and foreign currency.
type TierPrices struct {
	Local   TierSet
	Foreign TierSet
}

// CostBreakdown is the output of the cost rollup for a product.
type CostBreakdown struct {
	AllInCost             decimal.Decimal
	HistoricalMaxAvgCost  decimal.Decimal
	LogisticsCostUnit     decimal.Decimal
	DutyCostUnit          decimal.Decimal
	HasConfirmedPurchases bool
}

// ProductPricing is the per-product pricing record: cost-trigger inputs, the
// rolled-up cost fields, and the derived tier ladder. The derived fields are
// never authoritative; any write to a trigger field re-derives them.
type ProductPricing struct {
	ProductID   string
	ProductName string

	StandardCost          decimal.Decimal
	HistoricalMaxAvgCost  decimal.Decimal
	LogisticsCostUnit     decimal.Decimal
	DutyCostUnit          decimal.Decimal
	AllInCost             decimal.Decimal
	HasConfirmedPurchases bool

	MarginPercent          decimal.Decimal
	DiscountMediumPercent  decimal.Decimal
	DiscountMinimumPercent decimal.Decimal

	Origin            string
	LoadPort          string
	DischargePort     string
	ContainerCapacity decimal.Decimal
	DutyPercent       decimal.Decimal

	Tiers     TierPrices
	UpdatedAt time.Time
}

// PurchaseLine is one confirmed purchase of a product, ordered by approval date.
type PurchaseLine struct {
	ProductID  string
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	Currency   string
	ApprovedAt time.Time
	Confirmed  bool
}

// Tariff is the logistics all-in cost for an (origin, load port, discharge
// port) route, per container.
type Tariff struct {
	Origin        string
	LoadPort      string
	DischargePort string
	AllInCost     decimal.Decimal
	Currency      string
}

// RateConfig is the process-wide exchange-rate record: the last market rate
// fetched from the provider plus the official spot rate used as fallback.
type RateConfig struct {
	MarketRate   decimal.Decimal
	OfficialRate decimal.Decimal
	Source       string
	FetchedAt    time.Time
	UpdatedAt    time.Time
}

// ActiveRate returns the market rate when positive, else the official rate.
func (r RateConfig) ActiveRate() decimal.Decimal {
	if r.MarketRate.IsPositive() {
		return r.MarketRate
	}
	return r.OfficialRate
}

// Cart is the per-user persistent set of selected inventory units.
type Cart struct {
	UserID    string
	Items     []CartItem
	UpdatedAt time.Time
}

// CartItem is one selected inventory unit with the quantity the seller wants.
type CartItem struct {
	UnitID       string
	LotID        string
	LotName      string
	ProductID    string
	ProductName  string
	Quantity     decimal.Decimal
	LocationName string
	AddedAt      time.Time
}

// UnitIDs returns the selected unit ids in cart order.
func (c Cart) UnitIDs() []string {
	if len(c.Items) == 0 {
		return nil
	}
	ids := make([]string, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.UnitID)
	}
	return ids
}

// QuantityByUnit builds the unit-id keyed quantity lookup the reservation
// matcher consumes as its fallback source.
func (c Cart) QuantityByUnit() map[string]decimal.Decimal {
	if len(c.Items) == 0 {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(c.Items))
	for _, item := range c.Items {
		out[item.UnitID] = item.Quantity
	}
	return out
}

// Hold reserves a specific inventory unit for a customer until it expires.
type Hold struct {
	ID          string
	UnitID      string
	LotID       string
	LotName     string
	ProductID   string
	CustomerID  string
	ProjectID   string
	ArchitectID string
	SellerID    string
	Currency    string
	UnitPrice   decimal.Decimal
	Notes       string
	StartsAt    time.Time
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// UnitAssignment binds a quantity of one inventory unit to a demand line.
type UnitAssignment struct {
	UnitID   string
	LotName  string
	Quantity decimal.Decimal
}

// OrderStatus tracks the lifecycle of a sale order created by this core.
type OrderStatus string

const (
	// OrderStatusDraft marks an order awaiting confirmation.
	OrderStatusDraft OrderStatus = "draft"
	// OrderStatusConfirmed marks a confirmed order with bound inventory.
	OrderStatusConfirmed OrderStatus = "confirmed"
)

// OrderLine is one sale order line, optionally carrying selected lot units.
type OrderLine struct {
	ProductID       string
	ProductName     string
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	TaxApplied      bool
	SelectedUnitIDs []string
	Assignments     []UnitAssignment
}

// Order is a sale order materialised from a cart or an approved authorization.
type Order struct {
	ID          string
	CustomerID  string
	SellerID    string
	ProjectID   string
	ArchitectID string
	Currency    string
	Status      OrderStatus
	Notes       string
	Lines       []OrderLine
	CreatedAt   time.Time
	ConfirmedAt time.Time
}

// UserAccount is the minimal directory record consumed for role lookups and
// notification fan-out.
type UserAccount struct {
	ID          string
	DisplayName string
	Email       string
	Role        string
}

// Location is a stock location. Internal transfers may only target locations
// flagged as internal.
type Location struct {
	ID       string
	Name     string
	Internal bool
}

// TransferLine groups the units of one product moved in an internal transfer.
type TransferLine struct {
	ProductID string
	Quantity  decimal.Decimal
	Units     []UnitAssignment
}

// Transfer is an internal stock move from one location to another.
type Transfer struct {
	ID             string
	UserID         string
	SourceLocation string
	DestLocationID string
	Notes          string
	Lines          []TransferLine
	CreatedAt      time.Time
}
