package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/stoneyard/api/internal/domain"
	pfirestore "github.com/stoneyard/api/internal/platform/firestore"
	"github.com/stoneyard/api/internal/repositories"
)

const tariffCollection = "tariffs"

// TariffRepository reads logistics tariffs keyed by shipping route.
type TariffRepository struct {
	base *pfirestore.BaseRepository[tariffDocument]
}

// NewTariffRepository constructs a Firestore-backed tariff reader.
func NewTariffRepository(provider *pfirestore.Provider) (*TariffRepository, error) {
	if provider == nil {
		return nil, errors.New("tariff repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[tariffDocument](provider, tariffCollection, nil, nil)
	return &TariffRepository{base: base}, nil
}

// FindByRoute loads the tariff for an (origin, load port, discharge port)
// route. A missing route surfaces as a not-found repository error.
func (r *TariffRepository) FindByRoute(ctx context.Context, origin, loadPort, dischargePort string) (domain.Tariff, error) {
	if r == nil || r.base == nil {
		return domain.Tariff{}, errors.New("tariff repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("origin", "==", strings.TrimSpace(origin)).
			Where("loadPort", "==", strings.TrimSpace(loadPort)).
			Where("dischargePort", "==", strings.TrimSpace(dischargePort)).
			Limit(1)
	})
	if err != nil {
		return domain.Tariff{}, err
	}
	if len(docs) == 0 {
		return domain.Tariff{}, pfirestore.WrapError("tariffs.find", status.Error(codes.NotFound, "tariff route not found"))
	}

	doc := docs[0].Data
	return domain.Tariff{
		Origin:        doc.Origin,
		LoadPort:      doc.LoadPort,
		DischargePort: doc.DischargePort,
		AllInCost:     decodeDecimal(doc.AllInCost),
		Currency:      strings.ToUpper(strings.TrimSpace(doc.Currency)),
	}, nil
}

type tariffDocument struct {
	Origin        string `firestore:"origin"`
	LoadPort      string `firestore:"loadPort"`
	DischargePort string `firestore:"dischargePort"`
	AllInCost     string `firestore:"allInCost"`
	Currency      string `firestore:"currency"`
}

var _ repositories.TariffRepository = (*TariffRepository)(nil)
