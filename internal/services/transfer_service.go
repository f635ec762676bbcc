package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/stoneyard/api/internal/domain"
	"github.com/stoneyard/api/internal/repositories"
)

var (
	// ErrTransferInvalidInput indicates the caller supplied invalid input, such
	// as an empty cart or a destination that is not an internal location.
	ErrTransferInvalidInput = errors.New("transfer service: invalid input")
	// ErrTransferUnavailable indicates a backing store failure.
	ErrTransferUnavailable = errors.New("transfer service: unavailable")
)

// TransferServiceDeps wires internal transfer dependencies.
type TransferServiceDeps struct {
	Transfers   repositories.TransferRepository
	Units       repositories.InventoryUnitRepository
	Locations   repositories.LocationRepository
	Carts       CartService
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type transferService struct {
	transfers repositories.TransferRepository
	units     repositories.InventoryUnitRepository
	locations repositories.LocationRepository
	carts     CartService
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewTransferService constructs a TransferService enforcing dependency validation.
func NewTransferService(deps TransferServiceDeps) (TransferService, error) {
	if deps.Transfers == nil {
		return nil, errors.New("transfer service: transfer repository is required")
	}
	if deps.Units == nil {
		return nil, errors.New("transfer service: inventory unit repository is required")
	}
	if deps.Locations == nil {
		return nil, errors.New("transfer service: location repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("transfer service: cart service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &transferService{
		transfers: deps.Transfers,
		units:     deps.Units,
		locations: deps.Locations,
		carts:     deps.Carts,
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

// CreateFromCart moves every cart unit to the destination location, emitting
// one transfer per source location. Units already at the destination are
// skipped.
func (s *transferService) CreateFromCart(ctx context.Context, cmd CreateTransferCommand) ([]Transfer, error) {
	userID := strings.TrimSpace(cmd.UserID)
	destID := strings.TrimSpace(cmd.DestLocationID)
	if userID == "" || destID == "" {
		return nil, fmt.Errorf("%w: user and destination location are required", ErrTransferInvalidInput)
	}

	dest, err := s.locations.FindByID(ctx, destID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, fmt.Errorf("%w: location %s does not exist", ErrTransferInvalidInput, destID)
		}
		return nil, fmt.Errorf("%w: load location: %v", ErrTransferUnavailable, err)
	}
	if !dest.Internal {
		return nil, fmt.Errorf("%w: location %s is not an internal location", ErrTransferInvalidInput, destID)
	}

	view, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(view.Items) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrTransferInvalidInput)
	}

	units, err := s.units.ListByIDs(ctx, cartUnitIDs(view))
	if err != nil {
		return nil, fmt.Errorf("%w: load units: %v", ErrTransferUnavailable, err)
	}
	unitsByID := make(map[string]domain.InventoryUnit, len(units))
	for _, unit := range units {
		unitsByID[unit.ID] = unit
	}

	// Group cart units by source location in cart order, then by product
	// within each source.
	sources := make([]string, 0)
	bySource := make(map[string][]domain.InventoryUnit)
	for _, item := range view.Items {
		unit, ok := unitsByID[item.UnitID]
		if !ok {
			s.logger(ctx, "transfers.unit_missing", map[string]any{"unitId": item.UnitID})
			continue
		}
		if unit.LocationID == destID {
			continue
		}
		if _, seen := bySource[unit.LocationID]; !seen {
			sources = append(sources, unit.LocationID)
		}
		bySource[unit.LocationID] = append(bySource[unit.LocationID], unit)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no cart units to move", ErrTransferInvalidInput)
	}

	now := s.now()
	transfers := make([]Transfer, 0, len(sources))
	for _, source := range sources {
		transfer := domain.Transfer{
			ID:             s.newID(),
			UserID:         userID,
			SourceLocation: source,
			DestLocationID: destID,
			Notes:          strings.TrimSpace(cmd.Notes),
			Lines:          transferLines(bySource[source]),
			CreatedAt:      now,
		}
		saved, err := s.transfers.Insert(ctx, transfer)
		if err != nil {
			return transfers, fmt.Errorf("%w: insert transfer: %v", ErrTransferUnavailable, err)
		}
		transfers = append(transfers, saved)
	}

	if err := s.carts.ClearCart(ctx, userID); err != nil {
		s.logger(ctx, "transfers.cart_clear_failed", map[string]any{"userId": userID, "error": err.Error()})
	}

	s.logger(ctx, "transfers.created", map[string]any{
		"userId":    userID,
		"transfers": len(transfers),
		"destId":    destID,
	})
	return transfers, nil
}

func transferLines(units []domain.InventoryUnit) []domain.TransferLine {
	lines := make([]domain.TransferLine, 0, len(units))
	index := make(map[string]int, len(units))
	for _, unit := range units {
		idx, ok := index[unit.ProductID]
		if !ok {
			idx = len(lines)
			index[unit.ProductID] = idx
			lines = append(lines, domain.TransferLine{ProductID: unit.ProductID})
		}
		lines[idx].Quantity = lines[idx].Quantity.Add(unit.Quantity)
		lines[idx].Units = append(lines[idx].Units, domain.UnitAssignment{
			UnitID:   unit.ID,
			LotName:  unit.LotName,
			Quantity: unit.Quantity,
		})
	}
	return lines
}
