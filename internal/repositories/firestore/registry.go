package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/stoneyard/api/internal/platform/firestore"
	"github.com/stoneyard/api/internal/repositories"
)

// Registry wires every Firestore-backed repository over one shared provider.
type Registry struct {
	provider *pfirestore.Provider

	productPricing *ProductPricingRepository
	purchases      *PurchaseRepository
	tariffs        *TariffRepository
	rates          *RateRepository
	inventoryUnits *InventoryUnitRepository
	carts          *CartRepository
	authorizations *AuthorizationRepository
	orders         *OrderRepository
	holds          *HoldRepository
	transfers      *TransferRepository
	users          *UserRepository
	locations      *LocationRepository
	health         repositories.HealthRepository
}

// NewRegistry constructs the repository registry. The health repository is
// injected so the caller decides which dependency probes readiness covers.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	if health == nil {
		return nil, errors.New("registry requires health repository")
	}

	registry := &Registry{provider: provider, health: health}

	var err error
	if registry.productPricing, err = NewProductPricingRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: product pricing: %w", err)
	}
	if registry.purchases, err = NewPurchaseRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: purchases: %w", err)
	}
	if registry.tariffs, err = NewTariffRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: tariffs: %w", err)
	}
	if registry.rates, err = NewRateRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: rates: %w", err)
	}
	if registry.inventoryUnits, err = NewInventoryUnitRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: inventory units: %w", err)
	}
	if registry.carts, err = NewCartRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: carts: %w", err)
	}
	if registry.authorizations, err = NewAuthorizationRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: authorizations: %w", err)
	}
	if registry.orders, err = NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: orders: %w", err)
	}
	if registry.holds, err = NewHoldRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: holds: %w", err)
	}
	if registry.transfers, err = NewTransferRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: transfers: %w", err)
	}
	if registry.users, err = NewUserRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: users: %w", err)
	}
	if registry.locations, err = NewLocationRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: locations: %w", err)
	}

	return registry, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// RunInTx executes fn within a Firestore transaction boundary.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	if fn == nil {
		return errors.New("registry: transaction function is required")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}

func (r *Registry) ProductPricing() repositories.ProductPricingRepository { return r.productPricing }
func (r *Registry) Purchases() repositories.PurchaseRepository           { return r.purchases }
func (r *Registry) Tariffs() repositories.TariffRepository               { return r.tariffs }
func (r *Registry) Rates() repositories.RateRepository                   { return r.rates }
func (r *Registry) InventoryUnits() repositories.InventoryUnitRepository { return r.inventoryUnits }
func (r *Registry) Carts() repositories.CartRepository                   { return r.carts }
func (r *Registry) Authorizations() repositories.AuthorizationRepository { return r.authorizations }
func (r *Registry) Orders() repositories.OrderRepository                 { return r.orders }
func (r *Registry) Holds() repositories.HoldRepository                   { return r.holds }
func (r *Registry) Transfers() repositories.TransferRepository           { return r.transfers }
func (r *Registry) Users() repositories.UserRepository                   { return r.users }
func (r *Registry) Locations() repositories.LocationRepository           { return r.locations }
func (r *Registry) Health() repositories.HealthRepository                { return r.health }

var _ repositories.Registry = (*Registry)(nil)
