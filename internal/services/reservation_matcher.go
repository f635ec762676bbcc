package services

import (
	"github.com/shopspring/decimal"

	domain "github.com/stoneyard/api/internal/domain"
)

// MatchRequest is one demand line to allocate against candidate units.
// Candidates are consumed in caller-supplied order. Breakdown is an optional
// per-unit quantity override; CartQuantities is the fallback lookup consumed
// when no breakdown entry exists.
type MatchRequest struct {
	Demand         decimal.Decimal
	Candidates     []InventoryUnit
	Breakdown      map[string]decimal.Decimal
	CartQuantities map[string]decimal.Decimal
}

// MatchResult carries the per-unit assignments plus the unmet remainder.
type MatchResult struct {
	Assignments []UnitAssignment
	Remainder   decimal.Decimal
}

// Bound returns the total quantity assigned across all units.
func (r MatchResult) Bound() decimal.Decimal {
	total := decimal.Zero
	for _, assignment := range r.Assignments {
		total = total.Add(assignment.Quantity)
	}
	return total
}

// ReservationMatcher greedily allocates inventory units against a demand
// quantity. Whole units (slabs) bind all or nothing; divisible units may be
// partially allocated.
type ReservationMatcher struct {
	negligible decimal.Decimal
}

// NewReservationMatcher constructs a matcher with the standard negligible threshold.
func NewReservationMatcher() *ReservationMatcher {
	return &ReservationMatcher{negligible: domain.NegligibleQuantity}
}

// MatchUnits walks the candidates in order, binding quantities until the
// demand is met. A whole unit binds its full available quantity or is skipped
// when the remainder cannot absorb it. A divisible unit takes the breakdown
// entry, then the cart quantity, then its full available quantity, clamped to
// both its availability and the remaining demand. Bindings at or below the
// negligible threshold are dropped.
func (m *ReservationMatcher) MatchUnits(req MatchRequest) MatchResult {
	remaining := req.Demand
	var assignments []UnitAssignment

	for _, unit := range req.Candidates {
		if !remaining.GreaterThan(m.negligible) {
			break
		}

		var bind decimal.Decimal
		if unit.UnitType == domain.UnitTypeWhole {
			if unit.Quantity.GreaterThan(remaining) {
				continue
			}
			bind = unit.Quantity
		} else {
			requested := unit.Quantity
			if qty, ok := req.Breakdown[unit.ID]; ok {
				requested = qty
			} else if qty, ok := req.CartQuantities[unit.ID]; ok {
				requested = qty
			}
			if requested.GreaterThan(unit.Quantity) {
				requested = unit.Quantity
			}
			bind = decimal.Min(requested, remaining)
		}

		if !bind.GreaterThan(m.negligible) {
			continue
		}

		assignments = append(assignments, UnitAssignment{
			UnitID:   unit.ID,
			LotName:  unit.LotName,
			Quantity: bind,
		})
		remaining = remaining.Sub(bind)
	}

	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return MatchResult{Assignments: assignments, Remainder: remaining}
}
