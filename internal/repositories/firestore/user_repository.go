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

const userCollection = "users"

// UserRepository reads the user directory. Account writes are owned by the
// identity subsystem; this core only resolves names, roles, and addresses for
// notification fan-out.
type UserRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user directory reader.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil)
	return &UserRepository{base: base}, nil
}

// FindByID loads one directory record by user id.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserAccount, error) {
	if r == nil || r.base == nil {
		return domain.UserAccount{}, errors.New("user repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.UserAccount{}, errors.New("user repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.UserAccount{}, err
	}
	return decodeUserAccount(doc.ID, doc.Data), nil
}

// ListByRole returns every account holding the given role.
func (r *UserRepository) ListByRole(ctx context.Context, role string) ([]domain.UserAccount, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("user repository not initialised")
	}
	normalised := strings.ToLower(strings.TrimSpace(role))
	if normalised == "" {
		return nil, errors.New("user repository: role is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("role", "==", normalised)
	})
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.UserAccount, 0, len(docs))
	for _, doc := range docs {
		accounts = append(accounts, decodeUserAccount(doc.ID, doc.Data))
	}
	return accounts, nil
}

func decodeUserAccount(id string, doc userDocument) domain.UserAccount {
	return domain.UserAccount{
		ID:          id,
		DisplayName: doc.DisplayName,
		Email:       strings.TrimSpace(doc.Email),
		Role:        strings.ToLower(strings.TrimSpace(doc.Role)),
	}
}

type userDocument struct {
	DisplayName string `firestore:"displayName"`
	Email       string `firestore:"email,omitempty"`
	Role        string `firestore:"role"`
}

var _ repositories.UserRepository = (*UserRepository)(nil)
