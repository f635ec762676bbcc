package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/stoneyard/api/internal/domain"
	"github.com/stoneyard/api/internal/repositories"
)

var (
	// ErrPricingInvalidInput indicates the caller supplied invalid input.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingProductNotFound indicates the product has no pricing record.
	ErrPricingProductNotFound = errors.New("pricing: product not found")
	// ErrPricingUnavailable indicates a backing store failure.
	ErrPricingUnavailable = errors.New("pricing: unavailable")
)

// Tier labels exposed by ListTierPrices.
const (
	TierLabelHigh    = "high"
	TierLabelMedium  = "medium"
	TierLabelMinimum = "minimum"
)

// PricingServiceDeps wires the ladder calculator dependencies.
type PricingServiceDeps struct {
	Pricing         repositories.ProductPricingRepository
	Rates           repositories.RateRepository
	Rollup          CostRollupService
	Gate            *AuthorizationGate
	LocalCurrency   string
	ForeignCurrency string
	Clock           func() time.Time
	Logger          func(context.Context, string, map[string]any)
}

type pricingService struct {
	pricing repositories.ProductPricingRepository
	rates   repositories.RateRepository
	rollup  CostRollupService
	gate    *AuthorizationGate
	local   string
	foreign string
	now     func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewPricingService constructs a PricingService enforcing dependency validation.
func NewPricingService(deps PricingServiceDeps) (PricingService, error) {
	if deps.Pricing == nil {
		return nil, errors.New("pricing service: pricing repository is required")
	}
	if deps.Rates == nil {
		return nil, errors.New("pricing service: rate repository is required")
	}
	if deps.Rollup == nil {
		return nil, errors.New("pricing service: cost rollup service is required")
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
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &pricingService{
		pricing: deps.Pricing,
		rates:   deps.Rates,
		rollup:  deps.Rollup,
		gate:    gate,
		local:   local,
		foreign: foreign,
		now:     func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

// ComputeLadder derives the six tier prices from the stored all-in cost,
// margin, discounts and the active exchange rate.
func (s *pricingService) ComputeLadder(ctx context.Context, productID string) (TierPrices, error) {
	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return TierPrices{}, err
	}
	return s.ladderFor(ctx, product)
}

// ApplyLadder recomputes the ladder and persists it on the pricing record.
func (s *pricingService) ApplyLadder(ctx context.Context, productID string) (TierPrices, error) {
	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return TierPrices{}, err
	}

	tiers, err := s.ladderFor(ctx, product)
	if err != nil {
		return TierPrices{}, err
	}

	if err := s.pricing.SaveTiers(ctx, product.ProductID, tiers, s.now()); err != nil {
		return TierPrices{}, fmt.Errorf("%w: persist tiers: %v", ErrPricingUnavailable, err)
	}
	return tiers, nil
}

// RecomputeProduct chains the cost rollup and the ladder, the full
// trigger-field recomputation path.
func (s *pricingService) RecomputeProduct(ctx context.Context, productID string) (ProductPricing, error) {
	if _, err := s.rollup.ApplyRollup(ctx, productID); err != nil {
		switch {
		case errors.Is(err, ErrCostRollupProductNotFound):
			return ProductPricing{}, fmt.Errorf("%w: %s", ErrPricingProductNotFound, strings.TrimSpace(productID))
		case errors.Is(err, ErrCostRollupInvalidInput):
			return ProductPricing{}, fmt.Errorf("%w: %v", ErrPricingInvalidInput, err)
		default:
			return ProductPricing{}, fmt.Errorf("%w: rollup: %v", ErrPricingUnavailable, err)
		}
	}

	if _, err := s.ApplyLadder(ctx, productID); err != nil {
		return ProductPricing{}, err
	}

	return s.loadProduct(ctx, productID)
}

// ListTierPrices returns the non-zero tiers for one currency, high to minimum.
func (s *pricingService) ListTierPrices(ctx context.Context, productID, currency string) ([]TierPrice, error) {
	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	code, set, err := s.tierSetFor(product.Tiers, currency)
	if err != nil {
		return nil, err
	}

	prices := make([]TierPrice, 0, 3)
	for _, tier := range []struct {
		label  string
		amount decimal.Decimal
	}{
		{TierLabelHigh, set.High},
		{TierLabelMedium, set.Medium},
		{TierLabelMinimum, set.Minimum},
	} {
		if !tier.amount.IsPositive() {
			continue
		}
		prices = append(prices, TierPrice{Label: tier.label, Amount: tier.amount, Currency: code})
	}
	return prices, nil
}

// QuoteGate answers whether the requested prices would require authorization,
// without side effects. Used for live cart-edit feedback.
func (s *pricingService) QuoteGate(ctx context.Context, cmd GateQuoteCommand) (GateResult, error) {
	if len(cmd.RequestedPrices) == 0 {
		return GateResult{}, fmt.Errorf("%w: requested prices are required", ErrPricingInvalidInput)
	}

	productIDs := make([]string, 0, len(cmd.RequestedPrices))
	for productID := range cmd.RequestedPrices {
		productIDs = append(productIDs, productID)
	}
	sort.Strings(productIDs)

	lines := make([]GateLine, 0, len(productIDs))
	for _, productID := range productIDs {
		product, err := s.loadProduct(ctx, productID)
		if err != nil {
			return GateResult{}, err
		}
		_, set, err := s.tierSetFor(product.Tiers, cmd.Currency)
		if err != nil {
			return GateResult{}, err
		}
		lines = append(lines, GateLine{
			ProductID:      product.ProductID,
			ProductName:    product.ProductName,
			RequestedPrice: cmd.RequestedPrices[productID],
			Tiers:          set,
		})
	}

	return s.gate.NeedsAuthorization(GateInput{
		Role:     cmd.Role,
		Currency: cmd.Currency,
		Lines:    lines,
	}), nil
}

func (s *pricingService) loadProduct(ctx context.Context, productID string) (domain.ProductPricing, error) {
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return domain.ProductPricing{}, fmt.Errorf("%w: product id is required", ErrPricingInvalidInput)
	}

	product, err := s.pricing.FindByID(ctx, pid)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.ProductPricing{}, fmt.Errorf("%w: %s", ErrPricingProductNotFound, pid)
		}
		return domain.ProductPricing{}, fmt.Errorf("%w: load product: %v", ErrPricingUnavailable, err)
	}
	return product, nil
}

func (s *pricingService) ladderFor(ctx context.Context, product domain.ProductPricing) (TierPrices, error) {
	cfg, err := s.rates.Get(ctx)
	if err != nil && !isRepoNotFound(err) {
		return TierPrices{}, fmt.Errorf("%w: load rate config: %v", ErrPricingUnavailable, err)
	}

	local := domain.ComputeTierSet(
		product.AllInCost,
		product.MarginPercent,
		product.DiscountMediumPercent,
		product.DiscountMinimumPercent,
	)
	return TierPrices{
		Local:   local,
		Foreign: domain.ConvertTierSet(local, cfg.ActiveRate()),
	}, nil
}

func (s *pricingService) tierSetFor(tiers TierPrices, currency string) (string, TierSet, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	switch code {
	case "", s.local:
		return s.local, tiers.Local, nil
	case s.foreign:
		return s.foreign, tiers.Foreign, nil
	default:
		return "", TierSet{}, fmt.Errorf("%w: unsupported currency %s", ErrPricingInvalidInput, code)
	}
}
