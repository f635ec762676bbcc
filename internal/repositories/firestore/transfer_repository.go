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

const transferCollection = "transfers"

// TransferRepository persists internal stock transfers.
type TransferRepository struct {
	base *pfirestore.BaseRepository[transferDocument]
}

// NewTransferRepository constructs a Firestore-backed transfer repository.
func NewTransferRepository(provider *pfirestore.Provider) (*TransferRepository, error) {
	if provider == nil {
		return nil, errors.New("transfer repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[transferDocument](provider, transferCollection, nil, nil)
	return &TransferRepository{base: base}, nil
}

// Insert stores a new transfer and returns it as persisted.
func (r *TransferRepository) Insert(ctx context.Context, transfer domain.Transfer) (domain.Transfer, error) {
	if r == nil || r.base == nil {
		return domain.Transfer{}, errors.New("transfer repository not initialised")
	}
	id := strings.TrimSpace(transfer.ID)
	if id == "" {
		return domain.Transfer{}, errors.New("transfer repository: transfer id is required")
	}

	lines := make([]transferLineDocument, 0, len(transfer.Lines))
	for _, line := range transfer.Lines {
		lines = append(lines, transferLineDocument{
			ProductID: line.ProductID,
			Quantity:  encodeDecimal(line.Quantity),
			Units:     encodeAssignments(line.Units),
		})
	}

	doc := transferDocument{
		UserID:         transfer.UserID,
		SourceLocation: transfer.SourceLocation,
		DestLocationID: transfer.DestLocationID,
		Notes:          transfer.Notes,
		Lines:          lines,
		CreatedAt:      transfer.CreatedAt.UTC(),
	}
	if _, err := r.base.Set(ctx, id, doc); err != nil {
		return domain.Transfer{}, err
	}

	saved := transfer
	saved.ID = id
	return saved, nil
}

type transferDocument struct {
	UserID         string                 `firestore:"userId"`
	SourceLocation string                 `firestore:"sourceLocation"`
	DestLocationID string                 `firestore:"destLocationId"`
	Notes          string                 `firestore:"notes,omitempty"`
	Lines          []transferLineDocument `firestore:"lines"`
	CreatedAt      time.Time              `firestore:"createdAt"`
}

type transferLineDocument struct {
	ProductID string                   `firestore:"productId"`
	Quantity  string                   `firestore:"quantity"`
	Units     []unitAssignmentDocument `firestore:"units"`
}

var _ repositories.TransferRepository = (*TransferRepository)(nil)
