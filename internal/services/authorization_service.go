package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/stoneyard/api/internal/domain"
	"github.com/stoneyard/api/internal/repositories"
)

var (
	// ErrAuthorizationInvalidInput indicates the caller supplied invalid input.
	ErrAuthorizationInvalidInput = errors.New("authorization service: invalid input")
	// ErrAuthorizationNotFound indicates the request does not exist.
	ErrAuthorizationNotFound = errors.New("authorization service: not found")
	// ErrAuthorizationPermissionDenied indicates the caller may not act on the request.
	ErrAuthorizationPermissionDenied = errors.New("authorization service: permission denied")
	// ErrAuthorizationConflict indicates the request is already in a terminal state.
	ErrAuthorizationConflict = errors.New("authorization service: conflict")
	// ErrAuthorizationUnavailable indicates a backing store failure.
	ErrAuthorizationUnavailable = errors.New("authorization service: unavailable")
)

// Notification event names emitted by the workflow.
const (
	EventAuthorizationOpened   = "authorization.opened"
	EventAuthorizationApproved = "authorization.approved"
	EventAuthorizationRejected = "authorization.rejected"
)

// MaterializerRegistry defers materializer resolution so the authorization
// workflow and the order/hold services can reference each other. Bind both
// materializers during wiring, before the first decision is processed.
type MaterializerRegistry struct {
	mu          sync.RWMutex
	sale        SaleMaterializer
	reservation ReservationMaterializer
}

// NewMaterializerRegistry constructs an empty registry.
func NewMaterializerRegistry() *MaterializerRegistry {
	return &MaterializerRegistry{}
}

// BindSale registers the sale materializer.
func (r *MaterializerRegistry) BindSale(m SaleMaterializer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sale = m
}

// BindReservation registers the reservation materializer.
func (r *MaterializerRegistry) BindReservation(m ReservationMaterializer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reservation = m
}

// Sale returns the registered sale materializer, if any.
func (r *MaterializerRegistry) Sale() SaleMaterializer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sale
}

// Reservation returns the registered reservation materializer, if any.
func (r *MaterializerRegistry) Reservation() ReservationMaterializer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reservation
}

// AuthorizationServiceDeps wires the workflow dependencies.
type AuthorizationServiceDeps struct {
	Authorizations repositories.AuthorizationRepository
	Users          repositories.UserRepository
	Materializers  *MaterializerRegistry
	Notifications  NotificationPublisher
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(context.Context, string, map[string]any)
}

type authorizationService struct {
	repo          repositories.AuthorizationRepository
	users         repositories.UserRepository
	materializers *MaterializerRegistry
	notifications NotificationPublisher
	now           func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewAuthorizationService constructs an AuthorizationService enforcing dependency validation.
func NewAuthorizationService(deps AuthorizationServiceDeps) (AuthorizationService, error) {
	if deps.Authorizations == nil {
		return nil, errors.New("authorization service: authorization repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("authorization service: user repository is required")
	}
	if deps.Materializers == nil {
		return nil, errors.New("authorization service: materializer registry is required")
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

	return &authorizationService{
		repo:          deps.Authorizations,
		users:         deps.Users,
		materializers: deps.Materializers,
		notifications: deps.Notifications,
		now:           func() time.Time { return clock().UTC() },
		newID:         idGen,
		logger:        logger,
	}, nil
}

// Open records a pending request with a full snapshot of the gated operation
// and fans a notification out to every authorizer except the requester.
func (s *authorizationService) Open(ctx context.Context, cmd OpenAuthorizationCommand) (Authorization, error) {
	if err := validateOpenCommand(cmd); err != nil {
		return Authorization{}, err
	}

	now := s.now()
	lines := make([]AuthorizationLine, len(cmd.Lines))
	copy(lines, cmd.Lines)
	for i := range lines {
		if !lines[i].AuthorizedPrice.IsPositive() {
			lines[i].AuthorizedPrice = lines[i].RequestedPrice
		}
	}

	authorization := domain.Authorization{
		ID:         s.newID(),
		SellerID:   strings.TrimSpace(cmd.SellerID),
		State:      domain.AuthorizationPending,
		Kind:       cmd.Kind,
		CustomerID: strings.TrimSpace(cmd.CustomerID),
		ProjectID:  strings.TrimSpace(cmd.ProjectID),
		Currency:   strings.ToUpper(strings.TrimSpace(cmd.Currency)),
		Lines:      lines,
		Notes:      strings.TrimSpace(cmd.Notes),
		Payload:    cmd.Payload,
		CreatedAt:  now,
	}

	if err := s.repo.Insert(ctx, authorization); err != nil {
		return Authorization{}, fmt.Errorf("%w: insert: %v", ErrAuthorizationUnavailable, err)
	}

	s.notifyAuthorizers(ctx, authorization)

	s.logger(ctx, "authorization.opened", map[string]any{
		"authorizationId": authorization.ID,
		"sellerId":        authorization.SellerID,
		"kind":            string(authorization.Kind),
		"lines":           len(authorization.Lines),
	})
	return authorization, nil
}

// Get loads a single request; sellers only see their own.
func (s *authorizationService) Get(ctx context.Context, query AuthorizationQuery) (Authorization, error) {
	id := strings.TrimSpace(query.AuthorizationID)
	if id == "" {
		return Authorization{}, fmt.Errorf("%w: authorization id is required", ErrAuthorizationInvalidInput)
	}

	authorization, err := s.load(ctx, id)
	if err != nil {
		return Authorization{}, err
	}

	if !hasAnyRole(query.ViewerRoles, roleAuthorizer, roleAdmin) &&
		authorization.SellerID != strings.TrimSpace(query.ViewerID) {
		return Authorization{}, fmt.Errorf("%w: not the requester", ErrAuthorizationPermissionDenied)
	}
	return authorization, nil
}

// List pages through requests; sellers are scoped to their own.
func (s *authorizationService) List(ctx context.Context, query ListAuthorizationsQuery) (domain.CursorPage[Authorization], error) {
	filter := repositories.AuthorizationListFilter{
		States:     query.States,
		Pagination: query.Pagination,
	}
	if !hasAnyRole(query.ViewerRoles, roleAuthorizer, roleAdmin) {
		viewer := strings.TrimSpace(query.ViewerID)
		if viewer == "" {
			return domain.CursorPage[Authorization]{}, fmt.Errorf("%w: viewer is required", ErrAuthorizationInvalidInput)
		}
		filter.SellerID = viewer
	}

	page, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Authorization]{}, fmt.Errorf("%w: list: %v", ErrAuthorizationUnavailable, err)
	}
	return page, nil
}

// Approve transitions pending to approved and materializes the deferred
// payload exactly once. A second decision fails with a conflict.
func (s *authorizationService) Approve(ctx context.Context, cmd DecideAuthorizationCommand) (DecisionResult, error) {
	authorization, err := s.decide(ctx, cmd, domain.AuthorizationApproved)
	if err != nil {
		return DecisionResult{}, err
	}

	result := DecisionResult{Authorization: authorization}

	switch authorization.Kind {
	case domain.OperationSale:
		materializer := s.materializers.Sale()
		if materializer == nil {
			return result, fmt.Errorf("%w: sale materializer not bound", ErrAuthorizationUnavailable)
		}
		order, err := materializer.MaterializeSale(ctx, authorization)
		if err != nil {
			s.logger(ctx, "authorization.materialize_failed", map[string]any{
				"authorizationId": authorization.ID,
				"kind":            string(authorization.Kind),
				"error":           err.Error(),
			})
			return result, fmt.Errorf("%w: materialize sale: %v", ErrAuthorizationUnavailable, err)
		}
		result.OrderID = order.ID
		result.Authorization.OrderID = order.ID
		if err := s.repo.SetOrderRef(ctx, authorization.ID, order.ID); err != nil {
			s.logger(ctx, "authorization.order_ref_failed", map[string]any{
				"authorizationId": authorization.ID,
				"orderId":         order.ID,
				"error":           err.Error(),
			})
		}
	case domain.OperationReservation:
		materializer := s.materializers.Reservation()
		if materializer == nil {
			return result, fmt.Errorf("%w: reservation materializer not bound", ErrAuthorizationUnavailable)
		}
		outcome, err := materializer.MaterializeReservation(ctx, authorization)
		if err != nil {
			s.logger(ctx, "authorization.materialize_failed", map[string]any{
				"authorizationId": authorization.ID,
				"kind":            string(authorization.Kind),
				"error":           err.Error(),
			})
			return result, fmt.Errorf("%w: materialize reservation: %v", ErrAuthorizationUnavailable, err)
		}
		s.logger(ctx, "authorization.holds_created", map[string]any{
			"authorizationId": authorization.ID,
			"created":         outcome.Created,
			"failed":          outcome.Failed,
		})
	}

	s.notifyRequester(ctx, result.Authorization, EventAuthorizationApproved, cmd.DeciderID, result.OrderID)
	return result, nil
}

// Reject transitions pending to rejected and discards the deferred payload.
func (s *authorizationService) Reject(ctx context.Context, cmd DecideAuthorizationCommand) (DecisionResult, error) {
	authorization, err := s.decide(ctx, cmd, domain.AuthorizationRejected)
	if err != nil {
		return DecisionResult{}, err
	}

	s.notifyRequester(ctx, authorization, EventAuthorizationRejected, cmd.DeciderID, "")
	return DecisionResult{Authorization: authorization}, nil
}

func (s *authorizationService) decide(ctx context.Context, cmd DecideAuthorizationCommand, state domain.AuthorizationState) (Authorization, error) {
	id := strings.TrimSpace(cmd.AuthorizationID)
	if id == "" {
		return Authorization{}, fmt.Errorf("%w: authorization id is required", ErrAuthorizationInvalidInput)
	}
	decider := strings.TrimSpace(cmd.DeciderID)
	if decider == "" {
		return Authorization{}, fmt.Errorf("%w: decider is required", ErrAuthorizationInvalidInput)
	}
	if !hasAnyRole(cmd.DeciderRoles, roleAuthorizer, roleAdmin) {
		return Authorization{}, fmt.Errorf("%w: authorizer role required", ErrAuthorizationPermissionDenied)
	}

	authorization, err := s.repo.Decide(ctx, id, repositories.AuthorizationDecision{
		State:            state,
		DeciderID:        decider,
		Notes:            strings.TrimSpace(cmd.Notes),
		DecidedAt:        s.now(),
		AuthorizedPrices: cmd.AuthorizedPrices,
	})
	if err != nil {
		switch {
		case isRepoNotFound(err):
			return Authorization{}, fmt.Errorf("%w: %s", ErrAuthorizationNotFound, id)
		case isRepoConflict(err):
			return Authorization{}, fmt.Errorf("%w: %s already decided", ErrAuthorizationConflict, id)
		default:
			return Authorization{}, fmt.Errorf("%w: decide: %v", ErrAuthorizationUnavailable, err)
		}
	}
	return authorization, nil
}

func (s *authorizationService) load(ctx context.Context, id string) (Authorization, error) {
	authorization, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			return Authorization{}, fmt.Errorf("%w: %s", ErrAuthorizationNotFound, id)
		}
		return Authorization{}, fmt.Errorf("%w: load: %v", ErrAuthorizationUnavailable, err)
	}
	return authorization, nil
}

// notifyAuthorizers fans the opened event out to every authorizer except the
// requester. An empty authorizer set is a silent no-op; publish failures are
// logged, never surfaced.
func (s *authorizationService) notifyAuthorizers(ctx context.Context, authorization domain.Authorization) {
	if s.notifications == nil {
		return
	}

	authorizers, err := s.users.ListByRole(ctx, roleAuthorizer)
	if err != nil {
		s.logger(ctx, "authorization.fanout_lookup_failed", map[string]any{
			"authorizationId": authorization.ID,
			"error":           err.Error(),
		})
		return
	}

	recipients := make([]string, 0, len(authorizers))
	for _, account := range authorizers {
		if account.ID == authorization.SellerID {
			continue
		}
		recipients = append(recipients, account.ID)
	}
	if len(recipients) == 0 {
		return
	}

	message := NotificationMessage{
		Event:           EventAuthorizationOpened,
		AuthorizationID: authorization.ID,
		ActorID:         authorization.SellerID,
		RecipientIDs:    recipients,
		Subject:         "Price authorization requested",
		Body:            fmt.Sprintf("%d product(s) priced below the medium tier", len(authorization.Lines)),
		OccurredAt:      authorization.CreatedAt,
	}
	if _, err := s.notifications.PublishNotification(ctx, message); err != nil {
		s.logger(ctx, "authorization.fanout_failed", map[string]any{
			"authorizationId": authorization.ID,
			"error":           err.Error(),
		})
	}
}

func (s *authorizationService) notifyRequester(ctx context.Context, authorization Authorization, event, actorID, orderID string) {
	if s.notifications == nil {
		return
	}

	body := authorization.DecisionNotes
	if event == EventAuthorizationApproved {
		body = "Your price authorization was approved"
		if orderID != "" {
			body = fmt.Sprintf("Your price authorization was approved; order %s", orderID)
		}
	} else if body == "" {
		body = "Your price authorization was rejected"
	}

	message := NotificationMessage{
		Event:           event,
		AuthorizationID: authorization.ID,
		OrderID:         orderID,
		ActorID:         actorID,
		RecipientIDs:    []string{authorization.SellerID},
		Subject:         "Price authorization decided",
		Body:            body,
		OccurredAt:      s.now(),
	}
	if _, err := s.notifications.PublishNotification(ctx, message); err != nil {
		s.logger(ctx, "authorization.notify_failed", map[string]any{
			"authorizationId": authorization.ID,
			"event":           event,
			"error":           err.Error(),
		})
	}
}

func validateOpenCommand(cmd OpenAuthorizationCommand) error {
	if strings.TrimSpace(cmd.SellerID) == "" {
		return fmt.Errorf("%w: seller is required", ErrAuthorizationInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrAuthorizationInvalidInput)
	}
	if !domain.ValidCurrency(cmd.Currency) {
		return fmt.Errorf("%w: invalid currency %q", ErrAuthorizationInvalidInput, cmd.Currency)
	}

	switch cmd.Kind {
	case domain.OperationSale:
		if cmd.Payload.Sale == nil || cmd.Payload.Reservation != nil {
			return fmt.Errorf("%w: sale operation requires a sale payload", ErrAuthorizationInvalidInput)
		}
	case domain.OperationReservation:
		if cmd.Payload.Reservation == nil || cmd.Payload.Sale != nil {
			return fmt.Errorf("%w: reservation operation requires a reservation payload", ErrAuthorizationInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown operation kind %q", ErrAuthorizationInvalidInput, cmd.Kind)
	}
	return nil
}

func hasAnyRole(roles []string, wanted ...string) bool {
	for _, role := range roles {
		for _, want := range wanted {
			if strings.EqualFold(strings.TrimSpace(role), want) {
				return true
			}
		}
	}
	return false
}
