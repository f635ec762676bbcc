package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuthorizationState is the lifecycle state of a price-authorization request.
type AuthorizationState string

const (
	// AuthorizationPending awaits an authorizer decision.
	AuthorizationPending AuthorizationState = "pending"
	// AuthorizationApproved is terminal; the deferred payload was materialised.
	AuthorizationApproved AuthorizationState = "approved"
	// AuthorizationRejected is terminal; the deferred payload was discarded.
	AuthorizationRejected AuthorizationState = "rejected"
	// AuthorizationExpired is terminal, set by an out-of-band scheduler.
	AuthorizationExpired AuthorizationState = "expired"
)

// Terminal reports whether no further decision is accepted in this state.
func (s AuthorizationState) Terminal() bool {
	switch s {
	case AuthorizationApproved, AuthorizationRejected, AuthorizationExpired:
		return true
	}
	return false
}

// OperationKind distinguishes what an approved authorization materialises.
type OperationKind string

const (
	// OperationSale materialises a sale order.
	OperationSale OperationKind = "sale"
	// OperationReservation materialises holds on the selected units.
	OperationReservation OperationKind = "reservation"
)

// PriceLevel classifies how far a requested price sits below the ladder.
type PriceLevel string

const (
	// PriceBelowMinimum is a request below the minimum tier.
	PriceBelowMinimum PriceLevel = "below_minimum"
	// PriceAtMinimum is a request exactly at the minimum tier.
	PriceAtMinimum PriceLevel = "minimum"
	// PriceBelowMedium is a request between minimum and medium.
	PriceBelowMedium PriceLevel = "below_medium"
)

// ClassifyPriceLevel computes the level for a requested price against the
// minimum tier.
func ClassifyPriceLevel(requested, minimum decimal.Decimal) PriceLevel {
	switch requested.Cmp(minimum) {
	case -1:
		return PriceBelowMinimum
	case 0:
		return PriceAtMinimum
	default:
		return PriceBelowMedium
	}
}

// AuthorizationLine snapshots one violating product with its requested and
// ladder prices. AuthorizedPrice defaults to the requested price and may be
// adjusted by the authorizer before approval.
type AuthorizationLine struct {
	ProductID       string
	ProductName     string
	Quantity        decimal.Decimal
	UnitCount       int
	RequestedPrice  decimal.Decimal
	MediumPrice     decimal.Decimal
	MinimumPrice    decimal.Decimal
	AuthorizedPrice decimal.Decimal
	Level           PriceLevel
}

// UnitSnapshot captures a selected inventory unit at open time so the
// materialisation never re-reads mutable cart state.
type UnitSnapshot struct {
	UnitID   string
	LotName  string
	Quantity decimal.Decimal
}

// ProductGroup groups the snapshot units of one product. UnitPrice is the
// price requested at submit time; approved authorizations override it for
// violating products only.
type ProductGroup struct {
	ProductID     string
	ProductName   string
	TotalQuantity decimal.Decimal
	UnitPrice     decimal.Decimal
	Units         []UnitSnapshot
}

// ServiceLine is a non-stock line (cutting, delivery) carried on the order.
type ServiceLine struct {
	ProductID string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// SaleSnapshot is the deferred payload variant for sale operations.
type SaleSnapshot struct {
	DraftOrderID string
	Groups       []ProductGroup
	Services     []ServiceLine
	ApplyTax     bool
	ArchitectID  string
}

// ReservationSnapshot is the deferred payload variant for hold operations.
// UnitPrices carries the price requested per product at submit time; approved
// authorizations override it for violating products only.
type ReservationSnapshot struct {
	UnitIDs     []string
	UnitPrices  map[string]decimal.Decimal
	ArchitectID string
}

// DeferredPayload is a tagged union: exactly one variant is set, selected by
// the authorization's operation kind.
type DeferredPayload struct {
	Sale        *SaleSnapshot
	Reservation *ReservationSnapshot
}

// Authorization is a price-authorization request. Created once per violating
// submission, mutated only by the approve/reject transition, never deleted.
type Authorization struct {
	ID            string
	SellerID      string
	AuthorizerID  string
	State         AuthorizationState
	Kind          OperationKind
	CustomerID    string
	ProjectID     string
	Currency      string
	Lines         []AuthorizationLine
	Notes         string
	DecisionNotes string
	Payload       DeferredPayload
	OrderID       string
	CreatedAt     time.Time
	DecidedAt     time.Time
}
