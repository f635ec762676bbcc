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

const cartCollection = "carts"

// CartRepository persists one cart document per user, keyed by user id.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{base: base}, nil
}

// GetCart loads the cart for the given user. A user with no cart surfaces as a
// not-found repository error; callers treat that as an empty cart.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	return decodeCart(doc.ID, doc.Data), nil
}

// UpsertCart replaces the user's cart document with the given cart.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc := encodeCart(cart)
	if _, err := r.base.Set(ctx, uid, doc); err != nil {
		return domain.Cart{}, err
	}
	return decodeCart(uid, doc), nil
}

// ReplaceItems swaps the cart's item list in full, keeping the document keyed
// by user id. An empty item list leaves an empty cart rather than deleting the
// document.
func (r *CartRepository) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem, updatedAt time.Time) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	return r.UpsertCart(ctx, domain.Cart{
		UserID:    uid,
		Items:     items,
		UpdatedAt: updatedAt,
	})
}

func encodeCart(cart domain.Cart) cartDocument {
	items := make([]cartItemDocument, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemDocument{
			UnitID:       item.UnitID,
			LotID:        item.LotID,
			LotName:      item.LotName,
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			Quantity:     encodeDecimal(item.Quantity),
			LocationName: item.LocationName,
			AddedAt:      item.AddedAt.UTC(),
		})
	}
	return cartDocument{
		Items:     items,
		UpdatedAt: cart.UpdatedAt.UTC(),
	}
}

func decodeCart(userID string, doc cartDocument) domain.Cart {
	items := make([]domain.CartItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.CartItem{
			UnitID:       item.UnitID,
			LotID:        item.LotID,
			LotName:      item.LotName,
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			Quantity:     decodeDecimal(item.Quantity),
			LocationName: item.LocationName,
			AddedAt:      item.AddedAt,
		})
	}
	return domain.Cart{
		UserID:    userID,
		Items:     items,
		UpdatedAt: doc.UpdatedAt,
	}
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	UnitID       string    `firestore:"unitId"`
	LotID        string    `firestore:"lotId,omitempty"`
	LotName      string    `firestore:"lotName,omitempty"`
	ProductID    string    `firestore:"productId"`
	ProductName  string    `firestore:"productName,omitempty"`
	Quantity     string    `firestore:"quantity"`
	LocationName string    `firestore:"locationName,omitempty"`
	AddedAt      time.Time `firestore:"addedAt"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
