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

const productPricingCollection = "productPricing"

// ProductPricingRepository persists per-product pricing records within Firestore.
type ProductPricingRepository struct {
	base *pfirestore.BaseRepository[productPricingDocument]
}

// NewProductPricingRepository constructs a Firestore-backed pricing repository.
func NewProductPricingRepository(provider *pfirestore.Provider) (*ProductPricingRepository, error) {
	if provider == nil {
		return nil, errors.New("product pricing repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productPricingDocument](provider, productPricingCollection, nil, nil)
	return &ProductPricingRepository{base: base}, nil
}

// FindByID loads the pricing record for one product.
func (r *ProductPricingRepository) FindByID(ctx context.Context, productID string) (domain.ProductPricing, error) {
	if r == nil || r.base == nil {
		return domain.ProductPricing{}, errors.New("product pricing repository not initialised")
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return domain.ProductPricing{}, errors.New("product pricing repository: product id is required")
	}

	doc, err := r.base.Get(ctx, pid)
	if err != nil {
		return domain.ProductPricing{}, err
	}
	return decodeProductPricing(doc.ID, doc.Data), nil
}

// SaveCosts writes the rolled-up cost fields without touching the tier ladder.
func (r *ProductPricingRepository) SaveCosts(ctx context.Context, productID string, breakdown domain.CostBreakdown, updatedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("product pricing repository not initialised")
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return errors.New("product pricing repository: product id is required")
	}

	_, err := r.base.Update(ctx, pid, []firestore.Update{
		{Path: "allInCost", Value: encodeDecimal(breakdown.AllInCost)},
		{Path: "historicalMaxAvgCost", Value: encodeDecimal(breakdown.HistoricalMaxAvgCost)},
		{Path: "logisticsCostUnit", Value: encodeDecimal(breakdown.LogisticsCostUnit)},
		{Path: "dutyCostUnit", Value: encodeDecimal(breakdown.DutyCostUnit)},
		{Path: "hasConfirmedPurchases", Value: breakdown.HasConfirmedPurchases},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
	return err
}

// SaveTiers writes the derived tier ladder.
func (r *ProductPricingRepository) SaveTiers(ctx context.Context, productID string, tiers domain.TierPrices, updatedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("product pricing repository not initialised")
	}
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return errors.New("product pricing repository: product id is required")
	}

	_, err := r.base.Update(ctx, pid, []firestore.Update{
		{Path: "tiers", Value: encodeTierPrices(tiers)},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
	return err
}

// ListPriced returns every pricing record, ordered by product id for stable
// batch repricing.
func (r *ProductPricingRepository) ListPriced(ctx context.Context) ([]domain.ProductPricing, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("product pricing repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	products := make([]domain.ProductPricing, 0, len(docs))
	for _, doc := range docs {
		products = append(products, decodeProductPricing(doc.ID, doc.Data))
	}
	return products, nil
}

func decodeProductPricing(id string, doc productPricingDocument) domain.ProductPricing {
	return domain.ProductPricing{
		ProductID:   id,
		ProductName: doc.ProductName,

		StandardCost:          decodeDecimal(doc.StandardCost),
		HistoricalMaxAvgCost:  decodeDecimal(doc.HistoricalMaxAvgCost),
		LogisticsCostUnit:     decodeDecimal(doc.LogisticsCostUnit),
		DutyCostUnit:          decodeDecimal(doc.DutyCostUnit),
		AllInCost:             decodeDecimal(doc.AllInCost),
		HasConfirmedPurchases: doc.HasConfirmedPurchases,

		MarginPercent:          decodeDecimal(doc.MarginPercent),
		DiscountMediumPercent:  decodeDecimal(doc.DiscountMediumPercent),
		DiscountMinimumPercent: decodeDecimal(doc.DiscountMinimumPercent),

		Origin:            doc.Origin,
		LoadPort:          doc.LoadPort,
		DischargePort:     doc.DischargePort,
		ContainerCapacity: decodeDecimal(doc.ContainerCapacity),
		DutyPercent:       decodeDecimal(doc.DutyPercent),

		Tiers:     decodeTierPrices(doc.Tiers),
		UpdatedAt: doc.UpdatedAt,
	}
}

func encodeTierPrices(tiers domain.TierPrices) tierPricesDocument {
	return tierPricesDocument{
		Local:   encodeTierSet(tiers.Local),
		Foreign: encodeTierSet(tiers.Foreign),
	}
}

func decodeTierPrices(doc tierPricesDocument) domain.TierPrices {
	return domain.TierPrices{
		Local:   decodeTierSet(doc.Local),
		Foreign: decodeTierSet(doc.Foreign),
	}
}

func encodeTierSet(set domain.TierSet) tierSetDocument {
	return tierSetDocument{
		High:    encodeDecimal(set.High),
		Medium:  encodeDecimal(set.Medium),
		Minimum: encodeDecimal(set.Minimum),
	}
}

func decodeTierSet(doc tierSetDocument) domain.TierSet {
	return domain.TierSet{
		High:    decodeDecimal(doc.High),
		Medium:  decodeDecimal(doc.Medium),
		Minimum: decodeDecimal(doc.Minimum),
	}
}

type productPricingDocument struct {
	ProductName string `firestore:"productName"`

	StandardCost          string `firestore:"standardCost,omitempty"`
	HistoricalMaxAvgCost  string `firestore:"historicalMaxAvgCost,omitempty"`
	LogisticsCostUnit     string `firestore:"logisticsCostUnit,omitempty"`
	DutyCostUnit          string `firestore:"dutyCostUnit,omitempty"`
	AllInCost             string `firestore:"allInCost,omitempty"`
	HasConfirmedPurchases bool   `firestore:"hasConfirmedPurchases"`

	MarginPercent          string `firestore:"marginPercent,omitempty"`
	DiscountMediumPercent  string `firestore:"discountMediumPercent,omitempty"`
	DiscountMinimumPercent string `firestore:"discountMinimumPercent,omitempty"`

	Origin            string `firestore:"origin,omitempty"`
	LoadPort          string `firestore:"loadPort,omitempty"`
	DischargePort     string `firestore:"dischargePort,omitempty"`
	ContainerCapacity string `firestore:"containerCapacity,omitempty"`
	DutyPercent       string `firestore:"dutyPercent,omitempty"`

	Tiers     tierPricesDocument `firestore:"tiers"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type tierPricesDocument struct {
	Local   tierSetDocument `firestore:"local"`
	Foreign tierSetDocument `firestore:"foreign"`
}

type tierSetDocument struct {
	High    string `firestore:"high,omitempty"`
	Medium  string `firestore:"medium,omitempty"`
	Minimum string `firestore:"minimum,omitempty"`
}

var _ repositories.ProductPricingRepository = (*ProductPricingRepository)(nil)
