package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/stoneyard/api/internal/domain"
	pfirestore "github.com/stoneyard/api/internal/platform/firestore"
	"github.com/stoneyard/api/internal/repositories"
)

const purchaseCollection = "purchaseLines"

// PurchaseRepository reads confirmed purchase lines from Firestore. The
// purchasing subsystem owns the writes.
type PurchaseRepository struct {
	base *pfirestore.BaseRepository[purchaseLineDocument]
}

// NewPurchaseRepository constructs a Firestore-backed purchase reader.
func NewPurchaseRepository(provider *pfirestore.Provider) (*PurchaseRepository, error) {
	if provider == nil {
		return nil, errors.New("purchase repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[purchaseLineDocument](provider, purchaseCollection, nil, nil)
	return &PurchaseRepository{base: base}, nil
}

// ListConfirmedByProduct returns the confirmed purchase history for one
// product ordered by approval date, oldest first.
func (r *PurchaseRepository) ListConfirmedByProduct(ctx context.Context, productID string) ([]domain.PurchaseLine, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("purchase repository not initialised")
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return nil, errors.New("purchase repository: product id is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("productId", "==", pid).
			Where("confirmed", "==", true).
			OrderBy("approvedAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	lines := make([]domain.PurchaseLine, 0, len(docs))
	for _, doc := range docs {
		lines = append(lines, domain.PurchaseLine{
			ProductID:  doc.Data.ProductID,
			Quantity:   decodeDecimal(doc.Data.Quantity),
			UnitCost:   decodeDecimal(doc.Data.UnitCost),
			Currency:   strings.ToUpper(strings.TrimSpace(doc.Data.Currency)),
			ApprovedAt: doc.Data.ApprovedAt,
			Confirmed:  doc.Data.Confirmed,
		})
	}
	return lines, nil
}

type purchaseLineDocument struct {
	ProductID  string    `firestore:"productId"`
	Quantity   string    `firestore:"quantity"`
	UnitCost   string    `firestore:"unitCost"`
	Currency   string    `firestore:"currency"`
	ApprovedAt time.Time `firestore:"approvedAt"`
	Confirmed  bool      `firestore:"confirmed"`
}

var _ repositories.PurchaseRepository = (*PurchaseRepository)(nil)
