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

const orderCollection = "orders"

// OrderRepository persists sale orders.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base}, nil
}

// Insert stores a new order and returns it as persisted.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc := encodeOrder(order)
	if _, err := r.base.Set(ctx, id, doc); err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(id, doc), nil
}

// FindByID loads one order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// Save replaces the stored order document.
func (r *OrderRepository) Save(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}

	_, err := r.base.Set(ctx, id, encodeOrder(order))
	return err
}

func encodeOrder(order domain.Order) orderDocument {
	lines := make([]orderLineDocument, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineDocument{
			ProductID:       line.ProductID,
			ProductName:     line.ProductName,
			Quantity:        encodeDecimal(line.Quantity),
			UnitPrice:       encodeDecimal(line.UnitPrice),
			TaxApplied:      line.TaxApplied,
			SelectedUnitIDs: append([]string(nil), line.SelectedUnitIDs...),
			Assignments:     encodeAssignments(line.Assignments),
		})
	}

	doc := orderDocument{
		CustomerID:  order.CustomerID,
		SellerID:    order.SellerID,
		ProjectID:   order.ProjectID,
		ArchitectID: order.ArchitectID,
		Currency:    order.Currency,
		Status:      string(order.Status),
		Notes:       order.Notes,
		Lines:       lines,
		CreatedAt:   order.CreatedAt.UTC(),
	}
	if !order.ConfirmedAt.IsZero() {
		doc.ConfirmedAt = order.ConfirmedAt.UTC()
	}
	return doc
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	lines := make([]domain.OrderLine, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		lines = append(lines, domain.OrderLine{
			ProductID:       line.ProductID,
			ProductName:     line.ProductName,
			Quantity:        decodeDecimal(line.Quantity),
			UnitPrice:       decodeDecimal(line.UnitPrice),
			TaxApplied:      line.TaxApplied,
			SelectedUnitIDs: append([]string(nil), line.SelectedUnitIDs...),
			Assignments:     decodeAssignments(line.Assignments),
		})
	}

	return domain.Order{
		ID:          id,
		CustomerID:  doc.CustomerID,
		SellerID:    doc.SellerID,
		ProjectID:   doc.ProjectID,
		ArchitectID: doc.ArchitectID,
		Currency:    doc.Currency,
		Status:      domain.OrderStatus(doc.Status),
		Notes:       doc.Notes,
		Lines:       lines,
		CreatedAt:   doc.CreatedAt,
		ConfirmedAt: doc.ConfirmedAt,
	}
}

func encodeAssignments(assignments []domain.UnitAssignment) []unitAssignmentDocument {
	if len(assignments) == 0 {
		return nil
	}
	out := make([]unitAssignmentDocument, 0, len(assignments))
	for _, assignment := range assignments {
		out = append(out, unitAssignmentDocument{
			UnitID:   assignment.UnitID,
			LotName:  assignment.LotName,
			Quantity: encodeDecimal(assignment.Quantity),
		})
	}
	return out
}

func decodeAssignments(docs []unitAssignmentDocument) []domain.UnitAssignment {
	if len(docs) == 0 {
		return nil
	}
	out := make([]domain.UnitAssignment, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.UnitAssignment{
			UnitID:   doc.UnitID,
			LotName:  doc.LotName,
			Quantity: decodeDecimal(doc.Quantity),
		})
	}
	return out
}

type orderDocument struct {
	CustomerID  string              `firestore:"customerId"`
	SellerID    string              `firestore:"sellerId"`
	ProjectID   string              `firestore:"projectId,omitempty"`
	ArchitectID string              `firestore:"architectId,omitempty"`
	Currency    string              `firestore:"currency"`
	Status      string              `firestore:"status"`
	Notes       string              `firestore:"notes,omitempty"`
	Lines       []orderLineDocument `firestore:"lines"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	ConfirmedAt time.Time           `firestore:"confirmedAt,omitempty"`
}

type orderLineDocument struct {
	ProductID       string                   `firestore:"productId"`
	ProductName     string                   `firestore:"productName,omitempty"`
	Quantity        string                   `firestore:"quantity"`
	UnitPrice       string                   `firestore:"unitPrice"`
	TaxApplied      bool                     `firestore:"taxApplied"`
	SelectedUnitIDs []string                 `firestore:"selectedUnitIds,omitempty"`
	Assignments     []unitAssignmentDocument `firestore:"assignments,omitempty"`
}

type unitAssignmentDocument struct {
	UnitID   string `firestore:"unitId"`
	LotName  string `firestore:"lotName,omitempty"`
	Quantity string `firestore:"quantity"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
