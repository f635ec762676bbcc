package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/stoneyard/api/internal/domain"
	pfirestore "github.com/stoneyard/api/internal/platform/firestore"
	"github.com/stoneyard/api/internal/repositories"
)

const inventoryUnitCollection = "inventoryUnits"

// InventoryUnitRepository reads lot-level inventory units and flips their hold
// reference. Stock quantities are owned by the inventory subsystem.
type InventoryUnitRepository struct {
	base *pfirestore.BaseRepository[inventoryUnitDocument]
}

// NewInventoryUnitRepository constructs a Firestore-backed inventory unit repository.
func NewInventoryUnitRepository(provider *pfirestore.Provider) (*InventoryUnitRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory unit repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[inventoryUnitDocument](provider, inventoryUnitCollection, nil, nil)
	return &InventoryUnitRepository{base: base}, nil
}

// FindByID loads one inventory unit.
func (r *InventoryUnitRepository) FindByID(ctx context.Context, unitID string) (domain.InventoryUnit, error) {
	if r == nil || r.base == nil {
		return domain.InventoryUnit{}, errors.New("inventory unit repository not initialised")
	}
	uid := strings.TrimSpace(unitID)
	if uid == "" {
		return domain.InventoryUnit{}, errors.New("inventory unit repository: unit id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.InventoryUnit{}, err
	}
	return decodeInventoryUnit(doc.ID, doc.Data), nil
}

// ListByIDs loads the given units, silently skipping ids that no longer exist.
// Callers detect the gap by comparing against the requested ids.
func (r *InventoryUnitRepository) ListByIDs(ctx context.Context, unitIDs []string) ([]domain.InventoryUnit, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("inventory unit repository not initialised")
	}

	units := make([]domain.InventoryUnit, 0, len(unitIDs))
	for _, unitID := range unitIDs {
		uid := strings.TrimSpace(unitID)
		if uid == "" {
			continue
		}
		doc, err := r.base.Get(ctx, uid)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		units = append(units, decodeInventoryUnit(doc.ID, doc.Data))
	}
	return units, nil
}

// SetHold flags the unit as held, recording the hold id and customer name.
func (r *InventoryUnitRepository) SetHold(ctx context.Context, unitID, holdID, customerName string) error {
	if r == nil || r.base == nil {
		return errors.New("inventory unit repository not initialised")
	}
	uid := strings.TrimSpace(unitID)
	if uid == "" {
		return errors.New("inventory unit repository: unit id is required")
	}

	_, err := r.base.Update(ctx, uid, []firestore.Update{
		{Path: "holdId", Value: strings.TrimSpace(holdID)},
		{Path: "holdCustomer", Value: strings.TrimSpace(customerName)},
	})
	return err
}

// ClearHold removes the hold reference from the unit.
func (r *InventoryUnitRepository) ClearHold(ctx context.Context, unitID string) error {
	if r == nil || r.base == nil {
		return errors.New("inventory unit repository not initialised")
	}
	uid := strings.TrimSpace(unitID)
	if uid == "" {
		return errors.New("inventory unit repository: unit id is required")
	}

	_, err := r.base.Update(ctx, uid, []firestore.Update{
		{Path: "holdId", Value: firestore.Delete},
		{Path: "holdCustomer", Value: firestore.Delete},
	})
	return err
}

func decodeInventoryUnit(id string, doc inventoryUnitDocument) domain.InventoryUnit {
	return domain.InventoryUnit{
		ID:           id,
		LotID:        doc.LotID,
		LotName:      doc.LotName,
		ProductID:    doc.ProductID,
		ProductName:  doc.ProductName,
		LocationID:   doc.LocationID,
		LocationName: doc.LocationName,
		Quantity:     decodeDecimal(doc.Quantity),
		UnitType:     domain.ParseUnitType(doc.UnitType),
		HoldID:       doc.HoldID,
		HoldCustomer: doc.HoldCustomer,
	}
}

type inventoryUnitDocument struct {
	LotID        string `firestore:"lotId,omitempty"`
	LotName      string `firestore:"lotName,omitempty"`
	ProductID    string `firestore:"productId"`
	ProductName  string `firestore:"productName,omitempty"`
	LocationID   string `firestore:"locationId,omitempty"`
	LocationName string `firestore:"locationName,omitempty"`
	Quantity     string `firestore:"quantity"`
	UnitType     string `firestore:"unitType,omitempty"`
	HoldID       string `firestore:"holdId,omitempty"`
	HoldCustomer string `firestore:"holdCustomer,omitempty"`
}

var _ repositories.InventoryUnitRepository = (*InventoryUnitRepository)(nil)
