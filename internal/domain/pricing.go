package domain

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	// PriceTolerance absorbs float/rounding noise from upstream currency math
	// when comparing a requested price against the medium tier.
	PriceTolerance = decimal.NewFromFloat(0.01)
	// NegligibleQuantity is the threshold below which a matcher binding is
	// skipped rather than persisted.
	NegligibleQuantity = decimal.NewFromFloat(0.001)

	minLadderDivisor = decimal.NewFromFloat(0.01)
	hundred          = decimal.NewFromInt(100)
	one              = decimal.NewFromInt(1)
)

// ValidCurrency reports whether code is a well-formed ISO 4217 currency code.
func ValidCurrency(code string) bool {
	_, err := currency.ParseISO(strings.TrimSpace(code))
	return err == nil
}

// CeilPrice rounds a price up to the nearest whole currency unit. Authorized
// prices entering an order or hold must never round down below what was
// approved.
func CeilPrice(price decimal.Decimal) decimal.Decimal {
	return price.Ceil()
}

// ComputeTierSet derives the three-tier ladder for one currency from the
// all-in cost, the margin percentage and the two cascading discounts.
// Each tier is the previous tier times a factor in [0,1], so
// High >= Medium >= Minimum >= 0 holds by construction.
func ComputeTierSet(allInCost, marginPercent, discountMedium, discountMinimum decimal.Decimal) TierSet {
	divisor := one.Sub(marginPercent.Div(hundred))
	if divisor.LessThan(minLadderDivisor) {
		divisor = minLadderDivisor
	}
	high := allInCost.Div(divisor)
	medium := high.Mul(one.Sub(clampFraction(discountMedium)))
	minimum := medium.Mul(one.Sub(clampFraction(discountMinimum)))
	return TierSet{High: high, Medium: medium, Minimum: minimum}
}

// ConvertTierSet mirrors a local-currency tier set into the foreign currency
// by dividing each tier by the active exchange rate. A non-positive rate
// yields a zero set rather than a division error.
func ConvertTierSet(local TierSet, rate decimal.Decimal) TierSet {
	if !rate.IsPositive() {
		return TierSet{}
	}
	return TierSet{
		High:    local.High.Div(rate),
		Medium:  local.Medium.Div(rate),
		Minimum: local.Minimum.Div(rate),
	}
}

func clampFraction(percent decimal.Decimal) decimal.Decimal {
	fraction := percent.Div(hundred)
	if fraction.IsNegative() {
		return decimal.Zero
	}
	if fraction.GreaterThan(one) {
		return one
	}
	return fraction
}
