package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stoneyard/api/internal/platform/config"
	"github.com/stoneyard/api/internal/platform/observability"
	"github.com/stoneyard/api/internal/repositories"
	"github.com/stoneyard/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Carts          services.CartService
	CostRollup     services.CostRollupService
	Pricing        services.PricingService
	RateRefresh    services.RateRefreshService
	Authorizations services.AuthorizationService
	Orders         services.OrderService
	Holds          services.HoldService
	Transfers      services.TransferService
	System         services.SystemService
}

// Deps carries the runtime dependencies that are constructed outside the
// container: the repository registry, the notification fan-out, and the build
// metadata stamped at process start.
type Deps struct {
	Registry      repositories.Registry
	Notifications services.NotificationPublisher
	Build         services.BuildInfo
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. The order/hold services and
// the authorization workflow reference each other, so the materializer registry
// is bound after all three exist.
func NewContainer(ctx context.Context, cfg config.Config, deps Deps) (*Container, error) {
	reg := deps.Registry
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	logFor := func(component string) func(context.Context, string, map[string]any) {
		return observability.ServiceLogger(deps.Logger, component)
	}

	var svc Services

	carts, err := services.NewCartService(services.CartServiceDeps{
		Carts:  reg.Carts(),
		Units:  reg.InventoryUnits(),
		Clock:  time.Now,
		Logger: logFor("cart"),
	})
	if err != nil {
		return nil, fmt.Errorf("build cart service: %w", err)
	}
	svc.Carts = carts

	rollup, err := services.NewCostRollupService(services.CostRollupDeps{
		Pricing:       reg.ProductPricing(),
		Purchases:     reg.Purchases(),
		Tariffs:       reg.Tariffs(),
		Rates:         reg.Rates(),
		LocalCurrency: cfg.Currencies.Local,
		Clock:         time.Now,
		Logger:        logFor("cost_rollup"),
	})
	if err != nil {
		return nil, fmt.Errorf("build cost rollup service: %w", err)
	}
	svc.CostRollup = rollup

	gate := services.NewAuthorizationGate()

	pricing, err := services.NewPricingService(services.PricingServiceDeps{
		Pricing:         reg.ProductPricing(),
		Rates:           reg.Rates(),
		Rollup:          rollup,
		Gate:            gate,
		LocalCurrency:   cfg.Currencies.Local,
		ForeignCurrency: cfg.Currencies.Foreign,
		Clock:           time.Now,
		Logger:          logFor("pricing"),
	})
	if err != nil {
		return nil, fmt.Errorf("build pricing service: %w", err)
	}
	svc.Pricing = pricing

	// Without a provider URL the refresh endpoint stays unwired and answers 503.
	if strings.TrimSpace(cfg.Rates.ProviderURL) != "" {
		rateRefresh, err := services.NewRateRefreshService(services.RateRefreshDeps{
			Rates:       reg.Rates(),
			Products:    reg.ProductPricing(),
			Pricing:     pricing,
			HTTPClient:  deps.HTTPClient,
			ProviderURL: cfg.Rates.ProviderURL,
			APIKey:      cfg.Rates.APIKey,
			Timeout:     cfg.Rates.FetchTimeout,
			Clock:       time.Now,
			Logger:      logFor("rates"),
		})
		if err != nil {
			return nil, fmt.Errorf("build rate refresh service: %w", err)
		}
		svc.RateRefresh = rateRefresh
	}

	materializers := services.NewMaterializerRegistry()

	authorizations, err := services.NewAuthorizationService(services.AuthorizationServiceDeps{
		Authorizations: reg.Authorizations(),
		Users:          reg.Users(),
		Materializers:  materializers,
		Notifications:  deps.Notifications,
		Clock:          time.Now,
		Logger:         logFor("authorizations"),
	})
	if err != nil {
		return nil, fmt.Errorf("build authorization service: %w", err)
	}
	svc.Authorizations = authorizations

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:          reg.Orders(),
		Units:           reg.InventoryUnits(),
		Pricing:         reg.ProductPricing(),
		Carts:           carts,
		Authorizations:  authorizations,
		Gate:            gate,
		Matcher:         services.NewReservationMatcher(),
		LocalCurrency:   cfg.Currencies.Local,
		ForeignCurrency: cfg.Currencies.Foreign,
		Clock:           time.Now,
		Logger:          logFor("orders"),
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	holds, err := services.NewHoldService(services.HoldServiceDeps{
		Holds:           reg.Holds(),
		Units:           reg.InventoryUnits(),
		Pricing:         reg.ProductPricing(),
		Carts:           carts,
		Authorizations:  authorizations,
		Gate:            gate,
		LocalCurrency:   cfg.Currencies.Local,
		ForeignCurrency: cfg.Currencies.Foreign,
		Clock:           time.Now,
		Logger:          logFor("holds"),
	})
	if err != nil {
		return nil, fmt.Errorf("build hold service: %w", err)
	}
	svc.Holds = holds

	materializers.BindSale(orders)
	materializers.BindReservation(holds)

	transfers, err := services.NewTransferService(services.TransferServiceDeps{
		Transfers: reg.Transfers(),
		Units:     reg.InventoryUnits(),
		Locations: reg.Locations(),
		Carts:     carts,
		Clock:     time.Now,
		Logger:    logFor("transfers"),
	})
	if err != nil {
		return nil, fmt.Errorf("build transfer service: %w", err)
	}
	svc.Transfers = transfers

	if health := reg.Health(); health != nil {
		system, err := services.NewSystemService(services.SystemServiceDeps{
			Health: health,
			Build:  deps.Build,
			Logger: logFor("system"),
		})
		if err != nil {
			return nil, fmt.Errorf("build system service: %w", err)
		}
		svc.System = system
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}
