package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/stoneyard/api/internal/domain"
	"github.com/stoneyard/api/internal/repositories"
)

var (
	// ErrCostRollupInvalidInput indicates the caller supplied invalid input.
	ErrCostRollupInvalidInput = errors.New("cost rollup: invalid input")
	// ErrCostRollupProductNotFound indicates the product has no pricing record.
	ErrCostRollupProductNotFound = errors.New("cost rollup: product not found")
	// ErrCostRollupUnavailable indicates a backing store failure.
	ErrCostRollupUnavailable = errors.New("cost rollup: unavailable")
)

var oneHundred = decimal.NewFromInt(100)

// CostRollupDeps wires the repositories consumed by the cost rollup.
type CostRollupDeps struct {
	Pricing       repositories.ProductPricingRepository
	Purchases     repositories.PurchaseRepository
	Tariffs       repositories.TariffRepository
	Rates         repositories.RateRepository
	LocalCurrency string
	Clock         func() time.Time
	Logger        func(context.Context, string, map[string]any)
}

type costRollupService struct {
	pricing   repositories.ProductPricingRepository
	purchases repositories.PurchaseRepository
	tariffs   repositories.TariffRepository
	rates     repositories.RateRepository
	local     string
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewCostRollupService constructs a CostRollupService enforcing dependency validation.
func NewCostRollupService(deps CostRollupDeps) (CostRollupService, error) {
	if deps.Pricing == nil {
		return nil, errors.New("cost rollup service: pricing repository is required")
	}
	if deps.Purchases == nil {
		return nil, errors.New("cost rollup service: purchase repository is required")
	}
	if deps.Tariffs == nil {
		return nil, errors.New("cost rollup service: tariff repository is required")
	}
	if deps.Rates == nil {
		return nil, errors.New("cost rollup service: rate repository is required")
	}

	local := strings.ToUpper(strings.TrimSpace(deps.LocalCurrency))
	if local == "" {
		local = "MXN"
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &costRollupService{
		pricing:   deps.Pricing,
		purchases: deps.Purchases,
		tariffs:   deps.Tariffs,
		rates:     deps.Rates,
		local:     local,
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

// ComputeAllInCost derives the product's all-in cost from its confirmed
// purchase history, the route tariff and the duty percentage.
func (s *costRollupService) ComputeAllInCost(ctx context.Context, productID string) (CostBreakdown, error) {
	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return CostBreakdown{}, err
	}
	return s.compute(ctx, product)
}

// ApplyRollup recomputes the breakdown and persists it only when the all-in
// cost actually changed.
func (s *costRollupService) ApplyRollup(ctx context.Context, productID string) (RollupResult, error) {
	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return RollupResult{}, err
	}

	breakdown, err := s.compute(ctx, product)
	if err != nil {
		return RollupResult{}, err
	}

	if product.AllInCost.Equal(breakdown.AllInCost) {
		return RollupResult{Breakdown: breakdown}, nil
	}

	if err := s.pricing.SaveCosts(ctx, product.ProductID, breakdown, s.now()); err != nil {
		return RollupResult{}, fmt.Errorf("%w: persist costs: %v", ErrCostRollupUnavailable, err)
	}

	s.logger(ctx, "cost_rollup.persisted", map[string]any{
		"productId": product.ProductID,
		"allInCost": breakdown.AllInCost.String(),
	})
	return RollupResult{Breakdown: breakdown, Persisted: true}, nil
}

func (s *costRollupService) loadProduct(ctx context.Context, productID string) (domain.ProductPricing, error) {
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return domain.ProductPricing{}, fmt.Errorf("%w: product id is required", ErrCostRollupInvalidInput)
	}

	product, err := s.pricing.FindByID(ctx, pid)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.ProductPricing{}, fmt.Errorf("%w: %s", ErrCostRollupProductNotFound, pid)
		}
		return domain.ProductPricing{}, fmt.Errorf("%w: load product: %v", ErrCostRollupUnavailable, err)
	}
	return product, nil
}

func (s *costRollupService) compute(ctx context.Context, product domain.ProductPricing) (CostBreakdown, error) {
	lines, err := s.purchases.ListConfirmedByProduct(ctx, product.ProductID)
	if err != nil {
		return CostBreakdown{}, fmt.Errorf("%w: load purchases: %v", ErrCostRollupUnavailable, err)
	}

	if len(lines) == 0 {
		return CostBreakdown{AllInCost: product.StandardCost}, nil
	}

	historicalMax, err := s.historicalMaxAverage(ctx, lines)
	if err != nil {
		return CostBreakdown{}, err
	}

	logistics, err := s.logisticsCostUnit(ctx, product)
	if err != nil {
		return CostBreakdown{}, err
	}

	duty := historicalMax.Mul(product.DutyPercent).Div(oneHundred)

	return CostBreakdown{
		AllInCost:             historicalMax.Add(logistics).Add(duty),
		HistoricalMaxAvgCost:  historicalMax,
		LogisticsCostUnit:     logistics,
		DutyCostUnit:          duty,
		HasConfirmedPurchases: true,
	}, nil
}

// historicalMaxAverage walks the purchase lines chronologically and keeps the
// maximum running weighted average ever observed. Each line is normalised to
// the local currency at its own approval-date rate.
func (s *costRollupService) historicalMaxAverage(ctx context.Context, lines []domain.PurchaseLine) (decimal.Decimal, error) {
	totalQty := decimal.Zero
	totalValue := decimal.Zero
	maxAvg := decimal.Zero

	for _, line := range lines {
		if !line.Quantity.IsPositive() {
			continue
		}

		unitCost := line.UnitCost
		currency := strings.ToUpper(strings.TrimSpace(line.Currency))
		if currency != "" && currency != s.local {
			rate, err := s.rates.RateOn(ctx, line.ApprovedAt)
			if err != nil {
				return decimal.Zero, fmt.Errorf("%w: rate on %s: %v", ErrCostRollupUnavailable, line.ApprovedAt.Format("2006-01-02"), err)
			}
			if rate.IsPositive() {
				unitCost = unitCost.Mul(rate)
			}
		}

		totalQty = totalQty.Add(line.Quantity)
		totalValue = totalValue.Add(unitCost.Mul(line.Quantity))

		avg := totalValue.Div(totalQty)
		if avg.GreaterThan(maxAvg) {
			maxAvg = avg
		}
	}

	return maxAvg, nil
}

// logisticsCostUnit resolves the route tariff and spreads it over the
// container capacity, converted at today's active rate. Missing route data or
// a missing tariff yields zero logistics cost.
func (s *costRollupService) logisticsCostUnit(ctx context.Context, product domain.ProductPricing) (decimal.Decimal, error) {
	if strings.TrimSpace(product.Origin) == "" ||
		strings.TrimSpace(product.LoadPort) == "" ||
		strings.TrimSpace(product.DischargePort) == "" {
		return decimal.Zero, nil
	}
	if !product.ContainerCapacity.IsPositive() {
		return decimal.Zero, nil
	}

	tariff, err := s.tariffs.FindByRoute(ctx, product.Origin, product.LoadPort, product.DischargePort)
	if err != nil {
		if isRepoNotFound(err) {
			s.logger(ctx, "cost_rollup.tariff_missing", map[string]any{
				"productId": product.ProductID,
				"origin":    product.Origin,
			})
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("%w: load tariff: %v", ErrCostRollupUnavailable, err)
	}

	perUnit := tariff.AllInCost.Div(product.ContainerCapacity)

	currency := strings.ToUpper(strings.TrimSpace(tariff.Currency))
	if currency != "" && currency != s.local {
		cfg, err := s.rates.Get(ctx)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: load rate config: %v", ErrCostRollupUnavailable, err)
		}
		if rate := cfg.ActiveRate(); rate.IsPositive() {
			perUnit = perUnit.Mul(rate)
		}
	}

	return perUnit, nil
}
