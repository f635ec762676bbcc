package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/stoneyard/api/internal/domain"
)

type stubPricingService struct {
	applyLadderFn func(ctx context.Context, productID string) (TierPrices, error)
}

func (s *stubPricingService) ComputeLadder(_ context.Context, _ string) (TierPrices, error) {
	return TierPrices{}, nil
}

func (s *stubPricingService) ApplyLadder(ctx context.Context, productID string) (TierPrices, error) {
	if s.applyLadderFn != nil {
		return s.applyLadderFn(ctx, productID)
	}
	return TierPrices{}, nil
}

func (s *stubPricingService) RecomputeProduct(_ context.Context, _ string) (ProductPricing, error) {
	return ProductPricing{}, nil
}

func (s *stubPricingService) ListTierPrices(_ context.Context, _, _ string) ([]TierPrice, error) {
	return nil, nil
}

func (s *stubPricingService) QuoteGate(_ context.Context, _ GateQuoteCommand) (GateResult, error) {
	return GateResult{}, nil
}

func newRefreshForTest(t *testing.T, url string, rates *stubRateRepo, products *stubPricingRepo, pricing PricingService) RateRefreshService {
	t.Helper()
	if pricing == nil {
		pricing = &stubPricingService{}
	}
	svc, err := NewRateRefreshService(RateRefreshDeps{
		Rates:       rates,
		Products:    products,
		Pricing:     pricing,
		ProviderURL: url,
		Timeout:     2 * time.Second,
		Clock:       func() time.Time { return time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new rate refresh service: %v", err)
	}
	return svc
}

func TestRefreshExchangeRatePersistsAndReprices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("missing accept header")
		}
		_, _ = w.Write([]byte(`{"rate": "17.85"}`))
	}))
	defer server.Close()

	var saved *domain.RateConfig
	rates := &stubRateRepo{
		getFn: func(_ context.Context) (domain.RateConfig, error) {
			return domain.RateConfig{OfficialRate: dec("17.50")}, nil
		},
		saveFn: func(_ context.Context, cfg domain.RateConfig) error {
			saved = &cfg
			return nil
		},
	}
	products := &stubPricingRepo{
		listPricedFn: func(_ context.Context) ([]domain.ProductPricing, error) {
			return []domain.ProductPricing{{ProductID: "prod-1"}, {ProductID: "prod-2"}}, nil
		},
	}
	repriced := make([]string, 0, 2)
	pricing := &stubPricingService{
		applyLadderFn: func(_ context.Context, productID string) (TierPrices, error) {
			repriced = append(repriced, productID)
			return TierPrices{}, nil
		},
	}

	svc := newRefreshForTest(t, server.URL, rates, products, pricing)
	result, err := svc.RefreshExchangeRate(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if result.Skipped {
		t.Fatalf("unexpected skip: %s", result.Reason)
	}
	if !result.Rate.Equal(dec("17.85")) {
		t.Fatalf("expected rate 17.85, got %s", result.Rate)
	}
	if result.ProductsRepriced != 2 || len(repriced) != 2 {
		t.Fatalf("expected both products repriced, got %d", result.ProductsRepriced)
	}
	if saved == nil {
		t.Fatal("expected rate config saved")
	}
	if !saved.MarketRate.Equal(dec("17.85")) || !saved.OfficialRate.Equal(dec("17.50")) {
		t.Fatalf("unexpected saved config %+v", saved)
	}
	if saved.Source != server.URL {
		t.Fatalf("expected source %s, got %s", server.URL, saved.Source)
	}
}

func TestRefreshExchangeRateSkipsOnProviderFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	saves := 0
	rates := &stubRateRepo{
		saveFn: func(_ context.Context, _ domain.RateConfig) error {
			saves++
			return nil
		},
	}
	svc := newRefreshForTest(t, server.URL, rates, &stubPricingRepo{}, nil)

	result, err := svc.RefreshExchangeRate(context.Background())
	if err != nil {
		t.Fatalf("fetch failure must not error: %v", err)
	}
	if !result.Skipped || result.Reason == "" {
		t.Fatalf("expected skipped cycle with reason, got %+v", result)
	}
	if saves != 0 {
		t.Fatal("skipped cycle must not touch the stored rate")
	}
}

func TestRefreshExchangeRateSkipsWhenRateUnchangedToday(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"rate": "17.85"}`))
	}))
	defer server.Close()

	saves := 0
	rates := &stubRateRepo{
		getFn: func(_ context.Context) (domain.RateConfig, error) {
			return domain.RateConfig{
				MarketRate: dec("17.85"),
				FetchedAt:  time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC),
			}, nil
		},
		saveFn: func(_ context.Context, _ domain.RateConfig) error {
			saves++
			return nil
		},
	}
	repriced := 0
	pricing := &stubPricingService{
		applyLadderFn: func(_ context.Context, _ string) (TierPrices, error) {
			repriced++
			return TierPrices{}, nil
		},
	}
	svc := newRefreshForTest(t, server.URL, rates, &stubPricingRepo{}, pricing)

	result, err := svc.RefreshExchangeRate(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !result.Skipped || result.Reason == "" {
		t.Fatalf("expected unchanged-rate skip, got %+v", result)
	}
	if saves != 0 || repriced != 0 {
		t.Fatalf("skip must not persist or reprice, saves=%d repriced=%d", saves, repriced)
	}
}

func TestRefreshExchangeRatePersistsUnchangedRateFromEarlierDay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"rate": "17.85"}`))
	}))
	defer server.Close()

	saves := 0
	rates := &stubRateRepo{
		getFn: func(_ context.Context) (domain.RateConfig, error) {
			return domain.RateConfig{
				MarketRate: dec("17.85"),
				FetchedAt:  time.Date(2026, 3, 1, 5, 0, 0, 0, time.UTC),
			}, nil
		},
		saveFn: func(_ context.Context, _ domain.RateConfig) error {
			saves++
			return nil
		},
	}
	svc := newRefreshForTest(t, server.URL, rates, &stubPricingRepo{}, nil)

	result, err := svc.RefreshExchangeRate(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if result.Skipped {
		t.Fatalf("stale fetch timestamp must refresh, got %+v", result)
	}
	if saves != 1 {
		t.Fatalf("expected rate persisted once, got %d", saves)
	}
}

func TestRefreshExchangeRateRejectsNonPositiveRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"rate": "0"}`))
	}))
	defer server.Close()

	saves := 0
	rates := &stubRateRepo{
		saveFn: func(_ context.Context, _ domain.RateConfig) error {
			saves++
			return nil
		},
	}
	svc := newRefreshForTest(t, server.URL, rates, &stubPricingRepo{}, nil)

	result, err := svc.RefreshExchangeRate(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !result.Skipped || saves != 0 {
		t.Fatalf("expected non-positive rate rejected, got %+v saves=%d", result, saves)
	}
}

func TestRefreshExchangeRateContinuesPastRepriceFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`18.10`))
	}))
	defer server.Close()

	products := &stubPricingRepo{
		listPricedFn: func(_ context.Context) ([]domain.ProductPricing, error) {
			return []domain.ProductPricing{{ProductID: "prod-1"}, {ProductID: "prod-2"}, {ProductID: "prod-3"}}, nil
		},
	}
	pricing := &stubPricingService{
		applyLadderFn: func(_ context.Context, productID string) (TierPrices, error) {
			if productID == "prod-2" {
				return TierPrices{}, ErrPricingUnavailable
			}
			return TierPrices{}, nil
		},
	}
	svc := newRefreshForTest(t, server.URL, &stubRateRepo{}, products, pricing)

	result, err := svc.RefreshExchangeRate(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if result.ProductsRepriced != 2 {
		t.Fatalf("expected 2 of 3 repriced, got %d", result.ProductsRepriced)
	}
}

func TestParseRateValueFormats(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"json", `{"rate": "17.85"}`, "17.85"},
		{"raw", `17.85`, "17.85"},
		{"currency symbol", `$17.85`, "17.85"},
		{"thousands separator", `1,234.5`, "1234.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rate, err := parseRateValue([]byte(tc.body))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if !rate.Equal(dec(tc.want)) {
				t.Fatalf("expected %s, got %s", tc.want, rate)
			}
		})
	}

	if _, err := parseRateValue([]byte("   ")); err == nil {
		t.Fatal("expected error on empty body")
	}
}
