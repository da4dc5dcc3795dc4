package service

import (
	"context"
	"fmt"

	"mcp-logistics/internal/core/domain"
	"mcp-logistics/internal/core/ports"
	"mcp-logistics/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// OrderServiceImpl drives the order state machine. Every transition runs in
// one DB transaction with the order row locked, so concurrent events on the
// same order serialize; the COMPLETED transition settles payment inside that
// same transaction.
type OrderServiceImpl struct {
	orderRepo      ports.OrderRepository
	userRepo       ports.UserRepository
	walletSvc      ports.WalletService
	transactor     ports.DBTransactor
	sink           ports.NotificationSink
	commissionRate decimal.Decimal
	log            zerolog.Logger
}

// NewOrderService creates a new OrderServiceImpl.
func NewOrderService(
	orderRepo ports.OrderRepository,
	userRepo ports.UserRepository,
	walletSvc ports.WalletService,
	transactor ports.DBTransactor,
	sink ports.NotificationSink,
	commissionRate decimal.Decimal,
	log zerolog.Logger,
) *OrderServiceImpl {
	return &OrderServiceImpl{
		orderRepo:      orderRepo,
		userRepo:       userRepo,
		walletSvc:      walletSvc,
		transactor:     transactor,
		sink:           sink,
		commissionRate: commissionRate,
		log:            log,
	}
}

// Create registers a PENDING order owned by the MCP. Commission defaults to
// the configured rate applied to the amount.
func (s *OrderServiceImpl) Create(ctx context.Context, req ports.CreateOrderRequest) (*domain.Order, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	mcp, err := s.userRepo.GetByID(ctx, req.MCPID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get mcp: %w", err))
	}
	if mcp == nil || mcp.Role != domain.RoleMCP || mcp.Status != domain.UserStatusActive {
		return nil, apperror.ErrUnauthorized()
	}

	commission := req.Amount.Mul(s.commissionRate)
	if req.Commission != nil {
		if req.Commission.IsNegative() {
			return nil, apperror.ErrInvalidAmount()
		}
		commission = *req.Commission
	}

	order := domain.NewOrder(req.MCPID, req.CustomerID, req.Amount, commission, req.Note)
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create order: %w", err))
	}

	s.log.Info().
		Str("order_id", order.ID.String()).
		Str("mcp_id", order.MCPID.String()).
		Str("amount", order.Amount.String()).
		Msg("order created")

	return order, nil
}

// Apply applies one lifecycle event to the order on behalf of the actor.
// Authorization is checked before transition legality: a principal who may
// never touch the order sees Unauthorized even when the transition itself
// would also be illegal.
func (s *OrderServiceImpl) Apply(ctx context.Context, orderID uuid.UUID, event domain.OrderEvent, actor domain.Principal) (*domain.Order, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	order, err := s.orderRepo.GetByIDForUpdate(ctx, dbTx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrOrderNotFound()
	}

	var change domain.StatusChange
	var settlement *ports.SettlementResult
	switch event.Type {
	case domain.OrderEventAssign:
		if !isMCPOwner(actor, order) {
			return nil, apperror.ErrUnauthorized()
		}
		if order.Status != domain.OrderStatusPending {
			return nil, apperror.ErrInvalidStateTransition(string(order.Status), string(event.Type))
		}
		partner, err := s.userRepo.GetByID(ctx, event.PartnerID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("get partner: %w", err))
		}
		if partner == nil || !partner.IsAssignablePartner(order.MCPID) {
			return nil, apperror.ErrInvalidPartner()
		}
		order.PickupPartnerID = &partner.ID
		change = order.Advance(domain.OrderStatusAssigned, event.Note)

	case domain.OrderEventAccept:
		if !isAssignedPartner(actor, order) {
			return nil, apperror.ErrUnauthorized()
		}
		if order.Status != domain.OrderStatusAssigned {
			return nil, apperror.ErrInvalidStateTransition(string(order.Status), string(event.Type))
		}
		change = order.Advance(domain.OrderStatusInProgress, event.Note)

	case domain.OrderEventReject:
		if !isAssignedPartner(actor, order) {
			return nil, apperror.ErrUnauthorized()
		}
		if order.Status != domain.OrderStatusAssigned {
			return nil, apperror.ErrInvalidStateTransition(string(order.Status), string(event.Type))
		}
		change = order.Advance(domain.OrderStatusCancelled, event.Note)

	case domain.OrderEventComplete:
		if !isAssignedPartner(actor, order) && !isMCPOwner(actor, order) {
			return nil, apperror.ErrUnauthorized()
		}
		if order.Status != domain.OrderStatusInProgress {
			return nil, apperror.ErrInvalidStateTransition(string(order.Status), string(event.Type))
		}
		change = order.Advance(domain.OrderStatusCompleted, event.Note)
		settlement, err = s.walletSvc.SettleOrder(ctx, dbTx, order)
		if err != nil {
			return nil, apperror.ErrSettlementFailed(err)
		}
		order.PaymentStatus = domain.PaymentStatusCompleted

	case domain.OrderEventCancel:
		if !isMCPOwner(actor, order) {
			return nil, apperror.ErrUnauthorized()
		}
		if order.Status.Terminal() {
			return nil, apperror.ErrInvalidStateTransition(string(order.Status), string(event.Type))
		}
		change = order.Advance(domain.OrderStatusCancelled, event.Note)

	default:
		return nil, apperror.ErrInvalidStateTransition(string(order.Status), string(event.Type))
	}

	if err := s.orderRepo.Save(ctx, dbTx, order, change); err != nil {
		if apperror.CodeOf(err) == apperror.CodeStaleWrite {
			return nil, err
		}
		return nil, apperror.InternalError(fmt.Errorf("save order: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.notifyStatusUpdated(ctx, order, actor)
	// The settlement debit is durable now; only a committed balance may alert.
	if settlement != nil {
		s.walletSvc.NotifyLowBalance(ctx, order.MCPID, settlement.MCPBalance)
	}

	s.log.Info().
		Str("order_id", order.ID.String()).
		Str("event", string(event.Type)).
		Str("status", string(order.Status)).
		Str("actor_id", actor.UserID.String()).
		Msg("order transition applied")

	return order, nil
}

// Get returns the order if the actor may read it: the owning MCP, the
// assigned partner, or the customer it was created for.
func (s *OrderServiceImpl) Get(ctx context.Context, orderID uuid.UUID, actor domain.Principal) (*domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrOrderNotFound()
	}
	if !isMCPOwner(actor, order) && !isAssignedPartner(actor, order) && actor.UserID != order.CustomerID {
		return nil, apperror.ErrUnauthorized()
	}
	return order, nil
}

func isMCPOwner(actor domain.Principal, order *domain.Order) bool {
	return actor.Role == domain.RoleMCP && actor.UserID == order.MCPID
}

func isAssignedPartner(actor domain.Principal, order *domain.Order) bool {
	return actor.Role == domain.RolePickupPartner &&
		order.PickupPartnerID != nil && *order.PickupPartnerID == actor.UserID
}

func (s *OrderServiceImpl) notifyStatusUpdated(ctx context.Context, order *domain.Order, actor domain.Principal) {
	event := domain.Event{
		Type: domain.EventOrderStatusUpdated,
		Payload: domain.OrderStatusPayload{
			OrderID:   order.ID,
			NewStatus: order.Status,
			ActorID:   actor.UserID,
			MCPID:     order.MCPID,
		},
	}
	if err := s.sink.Publish(ctx, domain.MCPRoom(order.MCPID), event); err != nil {
		s.log.Warn().Err(err).Str("order_id", order.ID.String()).Msg("failed to publish order status event")
	}
}
