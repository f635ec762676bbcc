package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/stoneyard/api/internal/domain"
	pfirestore "github.com/stoneyard/api/internal/platform/firestore"
	"github.com/stoneyard/api/internal/repositories"
)

const locationCollection = "locations"

// LocationRepository reads stock locations for transfer validation.
type LocationRepository struct {
	base *pfirestore.BaseRepository[locationDocument]
}

// NewLocationRepository constructs a Firestore-backed location reader.
func NewLocationRepository(provider *pfirestore.Provider) (*LocationRepository, error) {
	if provider == nil {
		return nil, errors.New("location repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[locationDocument](provider, locationCollection, nil, nil)
	return &LocationRepository{base: base}, nil
}

// FindByID loads one stock location.
func (r *LocationRepository) FindByID(ctx context.Context, locationID string) (domain.Location, error) {
	if r == nil || r.base == nil {
		return domain.Location{}, errors.New("location repository not initialised")
	}
	id := strings.TrimSpace(locationID)
	if id == "" {
		return domain.Location{}, errors.New("location repository: location id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Location{}, err
	}
	return domain.Location{
		ID:       doc.ID,
		Name:     doc.Data.Name,
		Internal: doc.Data.Internal,
	}, nil
}

type locationDocument struct {
	Name     string `firestore:"name"`
	Internal bool   `firestore:"internal"`
}

var _ repositories.LocationRepository = (*LocationRepository)(nil)
