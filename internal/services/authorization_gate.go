package services

import (
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/stoneyard/api/internal/domain"
)

const (
	roleSeller     = "seller"
	roleAuthorizer = "authorizer"
	roleAdmin      = "admin"
)

// GateLine is one product line evaluated by the authorization gate.
type GateLine struct {
	ProductID      string
	ProductName    string
	Quantity       decimal.Decimal
	UnitCount      int
	RequestedPrice decimal.Decimal
	Tiers          TierSet
}

// GateInput bundles the requester role, the quote currency and the lines to evaluate.
type GateInput struct {
	Role     string
	Currency string
	Lines    []GateLine
}

// GateResult reports whether authorization is required and which lines violate.
type GateResult struct {
	Required   bool
	Violations []AuthorizationLine
}

// AuthorizationGate is the pure submit-time predicate deciding whether a set
// of requested prices needs an authorizer sign-off. It has no side effects and
// is safe to call from cart-edit previews as well as the authoritative
// submit-time check.
type AuthorizationGate struct {
	tolerance decimal.Decimal
}

// NewAuthorizationGate constructs a gate with the standard price tolerance.
func NewAuthorizationGate() *AuthorizationGate {
	return &AuthorizationGate{tolerance: domain.PriceTolerance}
}

// NeedsAuthorization evaluates each requested price against the medium tier.
// Only the seller role is gated. A line violates when the requested price sits
// below medium minus the tolerance; the tolerance absorbs rounding noise from
// upstream currency conversion. Lines for products without a priced medium
// tier are skipped.
func (g *AuthorizationGate) NeedsAuthorization(input GateInput) GateResult {
	if !strings.EqualFold(strings.TrimSpace(input.Role), roleSeller) {
		return GateResult{}
	}

	var violations []AuthorizationLine
	for _, line := range input.Lines {
		medium := line.Tiers.Medium
		if !medium.IsPositive() {
			continue
		}
		if line.RequestedPrice.GreaterThanOrEqual(medium.Sub(g.tolerance)) {
			continue
		}
		violations = append(violations, AuthorizationLine{
			ProductID:       line.ProductID,
			ProductName:     line.ProductName,
			Quantity:        line.Quantity,
			UnitCount:       line.UnitCount,
			RequestedPrice:  line.RequestedPrice,
			MediumPrice:     medium,
			MinimumPrice:    line.Tiers.Minimum,
			AuthorizedPrice: line.RequestedPrice,
			Level:           domain.ClassifyPriceLevel(line.RequestedPrice, line.Tiers.Minimum),
		})
	}

	if len(violations) == 0 {
		return GateResult{}
	}
	return GateResult{Required: true, Violations: violations}
}
