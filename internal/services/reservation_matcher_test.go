package services

import (
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/stoneyard/api/internal/domain"
)

func divisibleUnit(id, qty string) InventoryUnit {
	return InventoryUnit{
		ID:       id,
		LotName:  "lot-" + id,
		Quantity: dec(qty),
		UnitType: domain.UnitTypeDivisible,
	}
}

func wholeUnit(id, qty string) InventoryUnit {
	unit := divisibleUnit(id, qty)
	unit.UnitType = domain.UnitTypeWhole
	return unit
}

func TestMatchUnitsDivisibleFallbackChain(t *testing.T) {
	matcher := NewReservationMatcher()

	result := matcher.MatchUnits(MatchRequest{
		Demand: dec("20"),
		Candidates: []InventoryUnit{
			divisibleUnit("u1", "10"),
			divisibleUnit("u2", "10"),
			divisibleUnit("u3", "10"),
		},
		Breakdown:      map[string]decimal.Decimal{"u1": dec("4")},
		CartQuantities: map[string]decimal.Decimal{"u2": dec("6")},
	})

	if len(result.Assignments) != 3 {
		t.Fatalf("expected 3 assignments, got %d: %#v", len(result.Assignments), result.Assignments)
	}
	wantQty := map[string]string{"u1": "4", "u2": "6", "u3": "10"}
	for _, assignment := range result.Assignments {
		if !assignment.Quantity.Equal(dec(wantQty[assignment.UnitID])) {
			t.Fatalf("unit %s bound %s, want %s", assignment.UnitID, assignment.Quantity, wantQty[assignment.UnitID])
		}
	}
	if !result.Remainder.IsZero() {
		t.Fatalf("expected zero remainder, got %s", result.Remainder)
	}
}

func TestMatchUnitsSplitExample(t *testing.T) {
	matcher := NewReservationMatcher()

	result := matcher.MatchUnits(MatchRequest{
		Demand: dec("12.5"),
		Candidates: []InventoryUnit{
			divisibleUnit("u1", "8"),
			divisibleUnit("u2", "10"),
		},
	})

	if len(result.Assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %#v", result.Assignments)
	}
	if !result.Assignments[0].Quantity.Equal(dec("8")) {
		t.Fatalf("first unit bound %s, want 8", result.Assignments[0].Quantity)
	}
	if !result.Assignments[1].Quantity.Equal(dec("4.5")) {
		t.Fatalf("second unit bound %s, want 4.5", result.Assignments[1].Quantity)
	}
	if !result.Remainder.IsZero() {
		t.Fatalf("expected zero remainder, got %s", result.Remainder)
	}
}

func TestMatchUnitsWholeUnitsNeverSplit(t *testing.T) {
	matcher := NewReservationMatcher()

	result := matcher.MatchUnits(MatchRequest{
		Demand: dec("10"),
		Candidates: []InventoryUnit{
			wholeUnit("slab-1", "8"),
			wholeUnit("slab-2", "6"),
			wholeUnit("slab-3", "2"),
		},
	})

	// slab-2 exceeds the remaining 2 and is skipped; slab-3 fits exactly.
	if len(result.Assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %#v", result.Assignments)
	}
	if result.Assignments[0].UnitID != "slab-1" || !result.Assignments[0].Quantity.Equal(dec("8")) {
		t.Fatalf("unexpected first assignment: %#v", result.Assignments[0])
	}
	if result.Assignments[1].UnitID != "slab-3" || !result.Assignments[1].Quantity.Equal(dec("2")) {
		t.Fatalf("unexpected second assignment: %#v", result.Assignments[1])
	}
	if !result.Remainder.IsZero() {
		t.Fatalf("expected zero remainder, got %s", result.Remainder)
	}
}

func TestMatchUnitsConservation(t *testing.T) {
	matcher := NewReservationMatcher()

	candidates := []InventoryUnit{
		wholeUnit("slab-1", "5"),
		divisibleUnit("u1", "3.25"),
		divisibleUnit("u2", "7"),
		wholeUnit("slab-2", "4"),
	}

	for _, demand := range []string{"0.5", "3", "7.75", "12", "50"} {
		result := matcher.MatchUnits(MatchRequest{Demand: dec(demand), Candidates: candidates})

		bound := result.Bound()
		if bound.GreaterThan(dec(demand)) {
			t.Fatalf("demand %s: bound %s exceeds demand", demand, bound)
		}
		if !bound.Add(result.Remainder).Equal(dec(demand)) {
			t.Fatalf("demand %s: bound %s + remainder %s does not reconcile", demand, bound, result.Remainder)
		}
		byID := make(map[string]InventoryUnit, len(candidates))
		for _, unit := range candidates {
			byID[unit.ID] = unit
		}
		for _, assignment := range result.Assignments {
			unit := byID[assignment.UnitID]
			if assignment.Quantity.GreaterThan(unit.Quantity) {
				t.Fatalf("demand %s: unit %s over-bound %s > %s", demand, unit.ID, assignment.Quantity, unit.Quantity)
			}
			if unit.UnitType == domain.UnitTypeWhole && !assignment.Quantity.Equal(unit.Quantity) {
				t.Fatalf("demand %s: whole unit %s partially bound %s", demand, unit.ID, assignment.Quantity)
			}
		}
	}
}

func TestMatchUnitsSkipsNegligibleBindings(t *testing.T) {
	matcher := NewReservationMatcher()

	result := matcher.MatchUnits(MatchRequest{
		Demand: dec("5"),
		Candidates: []InventoryUnit{
			divisibleUnit("u1", "0.0005"),
			divisibleUnit("u2", "5"),
		},
	})

	if len(result.Assignments) != 1 || result.Assignments[0].UnitID != "u2" {
		t.Fatalf("expected only u2 bound, got %#v", result.Assignments)
	}
	if !result.Remainder.IsZero() {
		t.Fatalf("expected zero remainder, got %s", result.Remainder)
	}
}

func TestMatchUnitsSurfacesUnmetRemainder(t *testing.T) {
	matcher := NewReservationMatcher()

	result := matcher.MatchUnits(MatchRequest{
		Demand:     dec("20"),
		Candidates: []InventoryUnit{divisibleUnit("u1", "8")},
	})

	if !result.Remainder.Equal(dec("12")) {
		t.Fatalf("expected remainder 12, got %s", result.Remainder)
	}
}
