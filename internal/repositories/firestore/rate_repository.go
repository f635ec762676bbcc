package firestore

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/stoneyard/api/internal/domain"
	pfirestore "github.com/stoneyard/api/internal/platform/firestore"
	"github.com/stoneyard/api/internal/repositories"
)

const (
	configCollection    = "config"
	exchangeRateDocID   = "exchangeRate"
	dailyRateCollection = "exchangeRatesDaily"
	dailyRateKeyLayout  = "2006-01-02"
)

// RateRepository owns the process-wide exchange-rate configuration plus the
// per-day rate history used to convert historic purchases.
type RateRepository struct {
	config *pfirestore.BaseRepository[rateConfigDocument]
	daily  *pfirestore.BaseRepository[dailyRateDocument]
}

// NewRateRepository constructs a Firestore-backed rate repository.
func NewRateRepository(provider *pfirestore.Provider) (*RateRepository, error) {
	if provider == nil {
		return nil, errors.New("rate repository requires firestore provider")
	}
	return &RateRepository{
		config: pfirestore.NewBaseRepository[rateConfigDocument](provider, configCollection, nil, nil),
		daily:  pfirestore.NewBaseRepository[dailyRateDocument](provider, dailyRateCollection, nil, nil),
	}, nil
}

// Get loads the exchange-rate configuration document.
func (r *RateRepository) Get(ctx context.Context) (domain.RateConfig, error) {
	if r == nil || r.config == nil {
		return domain.RateConfig{}, errors.New("rate repository not initialised")
	}

	doc, err := r.config.Get(ctx, exchangeRateDocID)
	if err != nil {
		return domain.RateConfig{}, err
	}
	return domain.RateConfig{
		MarketRate:   decodeDecimal(doc.Data.MarketRate),
		OfficialRate: decodeDecimal(doc.Data.OfficialRate),
		Source:       doc.Data.Source,
		FetchedAt:    doc.Data.FetchedAt,
		UpdatedAt:    doc.Data.UpdatedAt,
	}, nil
}

// Save upserts the exchange-rate configuration and records the day's rate in
// the daily history.
func (r *RateRepository) Save(ctx context.Context, cfg domain.RateConfig) error {
	if r == nil || r.config == nil {
		return errors.New("rate repository not initialised")
	}

	if _, err := r.config.Set(ctx, exchangeRateDocID, rateConfigDocument{
		MarketRate:   encodeDecimal(cfg.MarketRate),
		OfficialRate: encodeDecimal(cfg.OfficialRate),
		Source:       cfg.Source,
		FetchedAt:    cfg.FetchedAt.UTC(),
		UpdatedAt:    cfg.UpdatedAt.UTC(),
	}); err != nil {
		return err
	}

	if rate := cfg.ActiveRate(); rate.IsPositive() {
		day := cfg.FetchedAt.UTC()
		if day.IsZero() {
			day = cfg.UpdatedAt.UTC()
		}
		if _, err := r.daily.Set(ctx, day.Format(dailyRateKeyLayout), dailyRateDocument{
			Rate:       encodeDecimal(rate),
			RecordedAt: day,
		}); err != nil {
			return err
		}
	}
	return nil
}

// RateOn resolves the rate effective on the given day, falling back to the
// active configured rate when no daily record exists.
func (r *RateRepository) RateOn(ctx context.Context, day time.Time) (decimal.Decimal, error) {
	if r == nil || r.daily == nil {
		return decimal.Zero, errors.New("rate repository not initialised")
	}

	doc, err := r.daily.Get(ctx, day.UTC().Format(dailyRateKeyLayout))
	if err == nil {
		return decodeDecimal(doc.Data.Rate), nil
	}
	if !isNotFound(err) {
		return decimal.Zero, err
	}

	cfg, err := r.Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return cfg.ActiveRate(), nil
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

type rateConfigDocument struct {
	MarketRate   string    `firestore:"marketRate,omitempty"`
	OfficialRate string    `firestore:"officialRate,omitempty"`
	Source       string    `firestore:"source,omitempty"`
	FetchedAt    time.Time `firestore:"fetchedAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

type dailyRateDocument struct {
	Rate       string    `firestore:"rate"`
	RecordedAt time.Time `firestore:"recordedAt"`
}

var _ repositories.RateRepository = (*RateRepository)(nil)
