package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stoneyard/api/internal/repositories"
)

// ErrRateRefreshUnavailable indicates the rate store or pricing store failed.
// Provider fetch failures are not errors; the cycle is skipped instead.
var ErrRateRefreshUnavailable = errors.New("rate refresh: unavailable")

const (
	defaultRateFetchTimeout = 10 * time.Second
	maxRateResponseBytes    = 1 << 16
)

// RateRefreshDeps wires the scheduled exchange-rate refresh job.
type RateRefreshDeps struct {
	Rates       repositories.RateRepository
	Products    repositories.ProductPricingRepository
	Pricing     PricingService
	HTTPClient  *http.Client
	ProviderURL string
	APIKey      string
	Timeout     time.Duration
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
}

type rateRefreshService struct {
	rates    repositories.RateRepository
	products repositories.ProductPricingRepository
	pricing  PricingService
	client   *http.Client
	url      string
	apiKey   string
	timeout  time.Duration
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewRateRefreshService constructs a RateRefreshService enforcing dependency validation.
func NewRateRefreshService(deps RateRefreshDeps) (RateRefreshService, error) {
	if deps.Rates == nil {
		return nil, errors.New("rate refresh service: rate repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("rate refresh service: pricing repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("rate refresh service: pricing service is required")
	}
	if strings.TrimSpace(deps.ProviderURL) == "" {
		return nil, errors.New("rate refresh service: provider url is required")
	}

	client := deps.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultRateFetchTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &rateRefreshService{
		rates:    deps.Rates,
		products: deps.Products,
		pricing:  deps.Pricing,
		client:   client,
		url:      strings.TrimSpace(deps.ProviderURL),
		apiKey:   strings.TrimSpace(deps.APIKey),
		timeout:  timeout,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// RefreshExchangeRate fetches the market rate, persists it when positive and
// re-runs the ladder for every priced product. A failed fetch keeps the last
// known rate and skips the cycle without error, as does a rate that already
// matches the value stored earlier the same day.
func (s *rateRefreshService) RefreshExchangeRate(ctx context.Context) (RateRefreshResult, error) {
	rate, err := s.fetchRate(ctx)
	if err != nil {
		s.logger(ctx, "rates.fetch_failed", map[string]any{"error": err.Error()})
		return RateRefreshResult{Skipped: true, Reason: err.Error()}, nil
	}
	if !rate.IsPositive() {
		reason := fmt.Sprintf("non-positive rate %s", rate)
		s.logger(ctx, "rates.fetch_rejected", map[string]any{"rate": rate.String()})
		return RateRefreshResult{Skipped: true, Reason: reason}, nil
	}

	cfg, err := s.rates.Get(ctx)
	if err != nil && !isRepoNotFound(err) {
		return RateRefreshResult{}, fmt.Errorf("%w: load rate config: %v", ErrRateRefreshUnavailable, err)
	}

	now := s.now()
	if rate.Equal(cfg.MarketRate) && sameUTCDay(cfg.FetchedAt, now) {
		s.logger(ctx, "rates.unchanged", map[string]any{"rate": rate.String()})
		return RateRefreshResult{Skipped: true, Reason: "rate unchanged since the last fetch today"}, nil
	}

	cfg.MarketRate = rate
	cfg.Source = s.url
	cfg.FetchedAt = now
	cfg.UpdatedAt = now

	if err := s.rates.Save(ctx, cfg); err != nil {
		return RateRefreshResult{}, fmt.Errorf("%w: persist rate: %v", ErrRateRefreshUnavailable, err)
	}

	products, err := s.products.ListPriced(ctx)
	if err != nil {
		return RateRefreshResult{}, fmt.Errorf("%w: list priced products: %v", ErrRateRefreshUnavailable, err)
	}

	repriced := 0
	for _, product := range products {
		if _, err := s.pricing.ApplyLadder(ctx, product.ProductID); err != nil {
			s.logger(ctx, "rates.reprice_failed", map[string]any{
				"productId": product.ProductID,
				"error":     err.Error(),
			})
			continue
		}
		repriced++
	}

	s.logger(ctx, "rates.refreshed", map[string]any{
		"rate":     rate.String(),
		"repriced": repriced,
	})
	return RateRefreshResult{Rate: rate, ProductsRepriced: repriced}, nil
}

func (s *rateRefreshService) fetchRate(ctx context.Context) (decimal.Decimal, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, s.url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch rate: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRateResponseBytes))
	if err != nil {
		return decimal.Zero, fmt.Errorf("read response: %w", err)
	}

	return parseRateValue(body)
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// parseRateValue accepts either a JSON object with a rate field or a raw
// decimal string, stripping currency symbols and separators.
func parseRateValue(body []byte) (decimal.Decimal, error) {
	value := strings.TrimSpace(string(body))

	var payload struct {
		Rate string `json:"rate"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && strings.TrimSpace(payload.Rate) != "" {
		value = payload.Rate
	}

	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '$', ',', ' ', '"':
			return -1
		}
		return r
	}, value)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return decimal.Zero, errors.New("empty rate value")
	}

	rate, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse rate %q: %w", cleaned, err)
	}
	return rate, nil
}
