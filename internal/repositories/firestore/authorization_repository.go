package firestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/stoneyard/api/internal/domain"
	pfirestore "github.com/stoneyard/api/internal/platform/firestore"
	"github.com/stoneyard/api/internal/repositories"
)

const authorizationCollection = "authorizations"

// AuthorizationRepository persists price-authorization requests. Requests are
// append-only apart from the single pending to terminal transition.
type AuthorizationRepository struct {
	base     *pfirestore.BaseRepository[authorizationDocument]
	provider *pfirestore.Provider
}

// NewAuthorizationRepository constructs a Firestore-backed authorization repository.
func NewAuthorizationRepository(provider *pfirestore.Provider) (*AuthorizationRepository, error) {
	if provider == nil {
		return nil, errors.New("authorization repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[authorizationDocument](provider, authorizationCollection, nil, nil)
	return &AuthorizationRepository{base: base, provider: provider}, nil
}

// Insert stores a new authorization request.
func (r *AuthorizationRepository) Insert(ctx context.Context, authorization domain.Authorization) error {
	if r == nil || r.base == nil {
		return errors.New("authorization repository not initialised")
	}
	id := strings.TrimSpace(authorization.ID)
	if id == "" {
		return errors.New("authorization repository: authorization id is required")
	}

	_, err := r.base.Set(ctx, id, encodeAuthorization(authorization))
	return err
}

// FindByID loads one authorization request.
func (r *AuthorizationRepository) FindByID(ctx context.Context, authorizationID string) (domain.Authorization, error) {
	if r == nil || r.base == nil {
		return domain.Authorization{}, errors.New("authorization repository not initialised")
	}
	id := strings.TrimSpace(authorizationID)
	if id == "" {
		return domain.Authorization{}, errors.New("authorization repository: authorization id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Authorization{}, err
	}
	return decodeAuthorization(doc.ID, doc.Data), nil
}

// List returns authorization requests newest first, optionally narrowed by
// seller and state.
func (r *AuthorizationRepository) List(ctx context.Context, filter repositories.AuthorizationListFilter) (domain.CursorPage[domain.Authorization], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Authorization]{}, errors.New("authorization repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := 0
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var tokenTime time.Time
	var tokenID string
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		ts, id, err := decodeAuthorizationToken(token)
		if err != nil {
			return domain.CursorPage[domain.Authorization]{}, fmt.Errorf("authorizations.list: invalid page token: %w", err)
		}
		tokenTime, tokenID = ts, id
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if sellerID := strings.TrimSpace(filter.SellerID); sellerID != "" {
			query = query.Where("sellerId", "==", sellerID)
		}
		if len(filter.States) > 0 {
			states := make([]string, 0, len(filter.States))
			for _, state := range filter.States {
				states = append(states, string(state))
			}
			query = query.Where("state", "in", states)
		}
		query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if tokenID != "" {
			query = query.StartAfter(tokenTime, tokenID)
		}
		if fetchLimit > 0 {
			query = query.Limit(fetchLimit)
		}
		return query
	})
	if err != nil {
		return domain.CursorPage[domain.Authorization]{}, err
	}

	nextToken := ""
	if fetchLimit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeAuthorizationToken(last.Data.CreatedAt, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Authorization, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeAuthorization(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Authorization]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// Decide applies the pending to terminal transition. The state check and the
// write run in one transaction; a request that is no longer pending fails with
// a conflict-classified error so a second decision never materialises twice.
func (r *AuthorizationRepository) Decide(ctx context.Context, authorizationID string, decision repositories.AuthorizationDecision) (domain.Authorization, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.Authorization{}, errors.New("authorization repository not initialised")
	}
	id := strings.TrimSpace(authorizationID)
	if id == "" {
		return domain.Authorization{}, errors.New("authorization repository: authorization id is required")
	}

	var decided authorizationDocument
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}

		var doc authorizationDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode authorization %s: %w", id, err)
		}
		if domain.AuthorizationState(doc.State).Terminal() {
			return status.Errorf(codes.FailedPrecondition, "authorization %s already %s", id, doc.State)
		}

		doc.State = string(decision.State)
		doc.AuthorizerID = strings.TrimSpace(decision.DeciderID)
		doc.DecisionNotes = strings.TrimSpace(decision.Notes)
		doc.DecidedAt = decision.DecidedAt.UTC()
		for i, line := range doc.Lines {
			if price, ok := decision.AuthorizedPrices[line.ProductID]; ok {
				doc.Lines[i].AuthorizedPrice = encodeDecimal(price)
			}
		}

		decided = doc
		return tx.Set(docRef, doc)
	})
	if err != nil {
		return domain.Authorization{}, pfirestore.WrapError("authorizations.decide", err)
	}
	return decodeAuthorization(id, decided), nil
}

// SetOrderRef records the order created when a sale authorization materialised.
func (r *AuthorizationRepository) SetOrderRef(ctx context.Context, authorizationID, orderID string) error {
	if r == nil || r.base == nil {
		return errors.New("authorization repository not initialised")
	}
	id := strings.TrimSpace(authorizationID)
	if id == "" {
		return errors.New("authorization repository: authorization id is required")
	}

	_, err := r.base.Update(ctx, id, []firestore.Update{
		{Path: "orderId", Value: strings.TrimSpace(orderID)},
	})
	return err
}

func encodeAuthorization(a domain.Authorization) authorizationDocument {
	lines := make([]authorizationLineDocument, 0, len(a.Lines))
	for _, line := range a.Lines {
		lines = append(lines, authorizationLineDocument{
			ProductID:       line.ProductID,
			ProductName:     line.ProductName,
			Quantity:        encodeDecimal(line.Quantity),
			UnitCount:       line.UnitCount,
			RequestedPrice:  encodeDecimal(line.RequestedPrice),
			MediumPrice:     encodeDecimal(line.MediumPrice),
			MinimumPrice:    encodeDecimal(line.MinimumPrice),
			AuthorizedPrice: encodeDecimal(line.AuthorizedPrice),
			Level:           string(line.Level),
		})
	}

	doc := authorizationDocument{
		SellerID:      a.SellerID,
		AuthorizerID:  a.AuthorizerID,
		State:         string(a.State),
		Kind:          string(a.Kind),
		CustomerID:    a.CustomerID,
		ProjectID:     a.ProjectID,
		Currency:      a.Currency,
		Lines:         lines,
		Notes:         a.Notes,
		DecisionNotes: a.DecisionNotes,
		OrderID:       a.OrderID,
		CreatedAt:     a.CreatedAt.UTC(),
	}
	if !a.DecidedAt.IsZero() {
		doc.DecidedAt = a.DecidedAt.UTC()
	}
	if a.Payload.Sale != nil {
		doc.Sale = encodeSaleSnapshot(*a.Payload.Sale)
	}
	if a.Payload.Reservation != nil {
		doc.Reservation = encodeReservationSnapshot(*a.Payload.Reservation)
	}
	return doc
}

func decodeAuthorization(id string, doc authorizationDocument) domain.Authorization {
	lines := make([]domain.AuthorizationLine, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		lines = append(lines, domain.AuthorizationLine{
			ProductID:       line.ProductID,
			ProductName:     line.ProductName,
			Quantity:        decodeDecimal(line.Quantity),
			UnitCount:       line.UnitCount,
			RequestedPrice:  decodeDecimal(line.RequestedPrice),
			MediumPrice:     decodeDecimal(line.MediumPrice),
			MinimumPrice:    decodeDecimal(line.MinimumPrice),
			AuthorizedPrice: decodeDecimal(line.AuthorizedPrice),
			Level:           domain.PriceLevel(line.Level),
		})
	}

	a := domain.Authorization{
		ID:            id,
		SellerID:      doc.SellerID,
		AuthorizerID:  doc.AuthorizerID,
		State:         domain.AuthorizationState(doc.State),
		Kind:          domain.OperationKind(doc.Kind),
		CustomerID:    doc.CustomerID,
		ProjectID:     doc.ProjectID,
		Currency:      doc.Currency,
		Lines:         lines,
		Notes:         doc.Notes,
		DecisionNotes: doc.DecisionNotes,
		OrderID:       doc.OrderID,
		CreatedAt:     doc.CreatedAt,
		DecidedAt:     doc.DecidedAt,
	}
	if doc.Sale != nil {
		sale := decodeSaleSnapshot(*doc.Sale)
		a.Payload.Sale = &sale
	}
	if doc.Reservation != nil {
		reservation := decodeReservationSnapshot(*doc.Reservation)
		a.Payload.Reservation = &reservation
	}
	return a
}

func encodeSaleSnapshot(sale domain.SaleSnapshot) *saleSnapshotDocument {
	groups := make([]productGroupDocument, 0, len(sale.Groups))
	for _, group := range sale.Groups {
		units := make([]unitSnapshotDocument, 0, len(group.Units))
		for _, unit := range group.Units {
			units = append(units, unitSnapshotDocument{
				UnitID:   unit.UnitID,
				LotName:  unit.LotName,
				Quantity: encodeDecimal(unit.Quantity),
			})
		}
		groups = append(groups, productGroupDocument{
			ProductID:     group.ProductID,
			ProductName:   group.ProductName,
			TotalQuantity: encodeDecimal(group.TotalQuantity),
			UnitPrice:     encodeDecimal(group.UnitPrice),
			Units:         units,
		})
	}

	services := make([]serviceLineDocument, 0, len(sale.Services))
	for _, service := range sale.Services {
		services = append(services, serviceLineDocument{
			ProductID: service.ProductID,
			Quantity:  encodeDecimal(service.Quantity),
			UnitPrice: encodeDecimal(service.UnitPrice),
		})
	}

	return &saleSnapshotDocument{
		DraftOrderID: sale.DraftOrderID,
		Groups:       groups,
		Services:     services,
		ApplyTax:     sale.ApplyTax,
		ArchitectID:  sale.ArchitectID,
	}
}

func decodeSaleSnapshot(doc saleSnapshotDocument) domain.SaleSnapshot {
	groups := make([]domain.ProductGroup, 0, len(doc.Groups))
	for _, group := range doc.Groups {
		units := make([]domain.UnitSnapshot, 0, len(group.Units))
		for _, unit := range group.Units {
			units = append(units, domain.UnitSnapshot{
				UnitID:   unit.UnitID,
				LotName:  unit.LotName,
				Quantity: decodeDecimal(unit.Quantity),
			})
		}
		groups = append(groups, domain.ProductGroup{
			ProductID:     group.ProductID,
			ProductName:   group.ProductName,
			TotalQuantity: decodeDecimal(group.TotalQuantity),
			UnitPrice:     decodeDecimal(group.UnitPrice),
			Units:         units,
		})
	}

	services := make([]domain.ServiceLine, 0, len(doc.Services))
	for _, service := range doc.Services {
		services = append(services, domain.ServiceLine{
			ProductID: service.ProductID,
			Quantity:  decodeDecimal(service.Quantity),
			UnitPrice: decodeDecimal(service.UnitPrice),
		})
	}

	return domain.SaleSnapshot{
		DraftOrderID: doc.DraftOrderID,
		Groups:       groups,
		Services:     services,
		ApplyTax:     doc.ApplyTax,
		ArchitectID:  doc.ArchitectID,
	}
}

func encodeReservationSnapshot(reservation domain.ReservationSnapshot) *reservationSnapshotDocument {
	prices := make(map[string]string, len(reservation.UnitPrices))
	for productID, price := range reservation.UnitPrices {
		prices[productID] = encodeDecimal(price)
	}
	return &reservationSnapshotDocument{
		UnitIDs:     append([]string(nil), reservation.UnitIDs...),
		UnitPrices:  prices,
		ArchitectID: reservation.ArchitectID,
	}
}

func decodeReservationSnapshot(doc reservationSnapshotDocument) domain.ReservationSnapshot {
	prices := make(map[string]decimal.Decimal, len(doc.UnitPrices))
	for productID, price := range doc.UnitPrices {
		prices[productID] = decodeDecimal(price)
	}
	return domain.ReservationSnapshot{
		UnitIDs:     append([]string(nil), doc.UnitIDs...),
		UnitPrices:  prices,
		ArchitectID: doc.ArchitectID,
	}
}

func encodeAuthorizationToken(createdAt time.Time, docID string) string {
	payload := fmt.Sprintf("%s|%s", createdAt.UTC().Format(time.RFC3339Nano), docID)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeAuthorizationToken(token string) (time.Time, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", errors.New("invalid token format")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, parts[1], nil
}

type authorizationDocument struct {
	SellerID      string                       `firestore:"sellerId"`
	AuthorizerID  string                       `firestore:"authorizerId,omitempty"`
	State         string                       `firestore:"state"`
	Kind          string                       `firestore:"kind"`
	CustomerID    string                       `firestore:"customerId,omitempty"`
	ProjectID     string                       `firestore:"projectId,omitempty"`
	Currency      string                       `firestore:"currency"`
	Lines         []authorizationLineDocument  `firestore:"lines"`
	Notes         string                       `firestore:"notes,omitempty"`
	DecisionNotes string                       `firestore:"decisionNotes,omitempty"`
	Sale          *saleSnapshotDocument        `firestore:"sale,omitempty"`
	Reservation   *reservationSnapshotDocument `firestore:"reservation,omitempty"`
	OrderID       string                       `firestore:"orderId,omitempty"`
	CreatedAt     time.Time                    `firestore:"createdAt"`
	DecidedAt     time.Time                    `firestore:"decidedAt,omitempty"`
}

type authorizationLineDocument struct {
	ProductID       string `firestore:"productId"`
	ProductName     string `firestore:"productName,omitempty"`
	Quantity        string `firestore:"quantity"`
	UnitCount       int    `firestore:"unitCount"`
	RequestedPrice  string `firestore:"requestedPrice"`
	MediumPrice     string `firestore:"mediumPrice"`
	MinimumPrice    string `firestore:"minimumPrice"`
	AuthorizedPrice string `firestore:"authorizedPrice"`
	Level           string `firestore:"level"`
}

type saleSnapshotDocument struct {
	DraftOrderID string                 `firestore:"draftOrderId,omitempty"`
	Groups       []productGroupDocument `firestore:"groups"`
	Services     []serviceLineDocument  `firestore:"services,omitempty"`
	ApplyTax     bool                   `firestore:"applyTax"`
	ArchitectID  string                 `firestore:"architectId,omitempty"`
}

type productGroupDocument struct {
	ProductID     string                 `firestore:"productId"`
	ProductName   string                 `firestore:"productName,omitempty"`
	TotalQuantity string                 `firestore:"totalQuantity"`
	UnitPrice     string                 `firestore:"unitPrice"`
	Units         []unitSnapshotDocument `firestore:"units"`
}

type unitSnapshotDocument struct {
	UnitID   string `firestore:"unitId"`
	LotName  string `firestore:"lotName,omitempty"`
	Quantity string `firestore:"quantity"`
}

type serviceLineDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  string `firestore:"quantity"`
	UnitPrice string `firestore:"unitPrice"`
}

type reservationSnapshotDocument struct {
	UnitIDs     []string          `firestore:"unitIds"`
	UnitPrices  map[string]string `firestore:"unitPrices,omitempty"`
	ArchitectID string            `firestore:"architectId,omitempty"`
}

var _ repositories.AuthorizationRepository = (*AuthorizationRepository)(nil)
