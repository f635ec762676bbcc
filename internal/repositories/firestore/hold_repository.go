package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/stoneyard/api/internal/domain"
	pfirestore "github.com/stoneyard/api/internal/platform/firestore"
	"github.com/stoneyard/api/internal/repositories"
)

const holdCollection = "holds"

// HoldRepository persists customer holds on inventory units.
type HoldRepository struct {
	base *pfirestore.BaseRepository[holdDocument]
}

// NewHoldRepository constructs a Firestore-backed hold repository.
func NewHoldRepository(provider *pfirestore.Provider) (*HoldRepository, error) {
	if provider == nil {
		return nil, errors.New("hold repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[holdDocument](provider, holdCollection, nil, nil)
	return &HoldRepository{base: base}, nil
}

// Insert stores a new hold and returns it as persisted.
func (r *HoldRepository) Insert(ctx context.Context, hold domain.Hold) (domain.Hold, error) {
	if r == nil || r.base == nil {
		return domain.Hold{}, errors.New("hold repository not initialised")
	}
	id := strings.TrimSpace(hold.ID)
	if id == "" {
		return domain.Hold{}, errors.New("hold repository: hold id is required")
	}

	doc := holdDocument{
		UnitID:      hold.UnitID,
		LotID:       hold.LotID,
		LotName:     hold.LotName,
		ProductID:   hold.ProductID,
		CustomerID:  hold.CustomerID,
		ProjectID:   hold.ProjectID,
		ArchitectID: hold.ArchitectID,
		SellerID:    hold.SellerID,
		Currency:    hold.Currency,
		UnitPrice:   encodeDecimal(hold.UnitPrice),
		Notes:       hold.Notes,
		StartsAt:    hold.StartsAt.UTC(),
		ExpiresAt:   hold.ExpiresAt.UTC(),
		CreatedAt:   hold.CreatedAt.UTC(),
	}
	if _, err := r.base.Set(ctx, id, doc); err != nil {
		return domain.Hold{}, err
	}

	saved := hold
	saved.ID = id
	return saved, nil
}

type holdDocument struct {
	UnitID      string    `firestore:"unitId"`
	LotID       string    `firestore:"lotId,omitempty"`
	LotName     string    `firestore:"lotName,omitempty"`
	ProductID   string    `firestore:"productId"`
	CustomerID  string    `firestore:"customerId"`
	ProjectID   string    `firestore:"projectId,omitempty"`
	ArchitectID string    `firestore:"architectId,omitempty"`
	SellerID    string    `firestore:"sellerId"`
	Currency    string    `firestore:"currency"`
	UnitPrice   string    `firestore:"unitPrice"`
	Notes       string    `firestore:"notes,omitempty"`
	StartsAt    time.Time `firestore:"startsAt"`
	ExpiresAt   time.Time `firestore:"expiresAt"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

var _ repositories.HoldRepository = (*HoldRepository)(nil)
