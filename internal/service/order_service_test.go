package service

import (
	"context"
	"errors"
	"testing"

	"mcp-logistics/internal/core/domain"
	"mcp-logistics/internal/core/ports"
	"mcp-logistics/internal/core/ports/mocks"
	"mcp-logistics/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type orderTestDeps struct {
	svc        *OrderServiceImpl
	orderRepo  *mocks.MockOrderRepository
	userRepo   *mocks.MockUserRepository
	walletSvc  *mocks.MockWalletService
	transactor *mocks.MockDBTransactor
	sink       *mocks.MockNotificationSink
	ctrl       *gomock.Controller
}

func setupOrderService(t *testing.T) *orderTestDeps {
	ctrl := gomock.NewController(t)
	d := &orderTestDeps{
		orderRepo:  mocks.NewMockOrderRepository(ctrl),
		userRepo:   mocks.NewMockUserRepository(ctrl),
		walletSvc:  mocks.NewMockWalletService(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		sink:       mocks.NewMockNotificationSink(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewOrderService(
		d.orderRepo, d.userRepo, d.walletSvc, d.transactor, d.sink,
		decimal.NewFromFloat(0.10), zerolog.Nop(),
	)
	return d
}

func mcpPrincipal(id uuid.UUID) domain.Principal {
	return domain.Principal{UserID: id, Role: domain.RoleMCP}
}

func partnerPrincipal(id uuid.UUID) domain.Principal {
	return domain.Principal{UserID: id, Role: domain.RolePickupPartner}
}

func orderAt(mcpID uuid.UUID, status domain.OrderStatus, partnerID *uuid.UUID) *domain.Order {
	o := domain.NewOrder(mcpID, uuid.New(), dec("300"), dec("30"), "")
	o.Status = status
	o.PickupPartnerID = partnerID
	return o
}

// ==================== Create Tests ====================

func TestOrderService_Create_Success(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()

	d.userRepo.EXPECT().GetByID(ctx, mcpID).Return(&domain.User{
		ID: mcpID, Role: domain.RoleMCP, Status: domain.UserStatusActive,
	}, nil)
	d.orderRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)

	order, err := d.svc.Create(ctx, ports.CreateOrderRequest{
		MCPID:      mcpID,
		CustomerID: uuid.New(),
		Amount:     dec("500"),
	})
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
	// Commission defaults to amount x rate.
	assert.True(t, order.Commission.Equal(dec("50")))
	assert.Equal(t, int64(1), order.Version)
	require.Len(t, order.StatusHistory, 1)
	assert.Equal(t, domain.OrderStatusPending, order.StatusHistory[0].Status)
}

func TestOrderService_Create_ExplicitCommission(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()
	commission := dec("75")

	d.userRepo.EXPECT().GetByID(ctx, mcpID).Return(&domain.User{
		ID: mcpID, Role: domain.RoleMCP, Status: domain.UserStatusActive,
	}, nil)
	d.orderRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)

	order, err := d.svc.Create(ctx, ports.CreateOrderRequest{
		MCPID:      mcpID,
		CustomerID: uuid.New(),
		Amount:     dec("500"),
		Commission: &commission,
	})
	require.NoError(t, err)
	assert.True(t, order.Commission.Equal(dec("75")))
}

func TestOrderService_Create_NonMCPRejected(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	d.userRepo.EXPECT().GetByID(ctx, userID).Return(&domain.User{
		ID: userID, Role: domain.RolePickupPartner, Status: domain.UserStatusActive,
	}, nil)

	order, err := d.svc.Create(ctx, ports.CreateOrderRequest{
		MCPID:      userID,
		CustomerID: uuid.New(),
		Amount:     dec("500"),
	})
	assert.Nil(t, order)
	assertAppError(t, err, "ORD_002")
}

func TestOrderService_Create_InvalidAmount(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	order, err := d.svc.Create(context.Background(), ports.CreateOrderRequest{
		MCPID:      uuid.New(),
		CustomerID: uuid.New(),
		Amount:     decimal.Zero,
	})
	assert.Nil(t, order)
	assertAppError(t, err, "WAL_001")
}

// ==================== Apply: assign ====================

func TestOrderService_Apply_Assign_Success(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()
	partnerID := uuid.New()
	order := orderAt(mcpID, domain.OrderStatusPending, nil)
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, order.ID).Return(order, nil)
	d.userRepo.EXPECT().GetByID(ctx, partnerID).Return(&domain.User{
		ID: partnerID, Role: domain.RolePickupPartner, Status: domain.UserStatusActive, MCPID: &mcpID,
	}, nil)
	d.orderRepo.EXPECT().Save(ctx, tx, order, gomock.Any()).Return(nil)
	d.sink.EXPECT().Publish(ctx, domain.MCPRoom(mcpID), gomock.Any()).Return(nil)

	result, err := d.svc.Apply(ctx, order.ID,
		domain.OrderEvent{Type: domain.OrderEventAssign, PartnerID: partnerID},
		mcpPrincipal(mcpID))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusAssigned, result.Status)
	require.NotNil(t, result.PickupPartnerID)
	assert.Equal(t, partnerID, *result.PickupPartnerID)
	assert.Len(t, result.StatusHistory, 2)
}

func TestOrderService_Apply_Assign_InvalidPartner(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()
	otherMCP := uuid.New()
	partnerID := uuid.New()
	order := orderAt(mcpID, domain.OrderStatusPending, nil)
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, order.ID).Return(order, nil)
	// Partner belongs to a different MCP.
	d.userRepo.EXPECT().GetByID(ctx, partnerID).Return(&domain.User{
		ID: partnerID, Role: domain.RolePickupPartner, Status: domain.UserStatusActive, MCPID: &otherMCP,
	}, nil)

	result, err := d.svc.Apply(ctx, order.ID,
		domain.OrderEvent{Type: domain.OrderEventAssign, PartnerID: partnerID},
		mcpPrincipal(mcpID))
	assert.Nil(t, result)
	assertAppError(t, err, "ORD_001")
}

func TestOrderService_Apply_Assign_WrongActor(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()
	order := orderAt(mcpID, domain.OrderStatusPending, nil)
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, order.ID).Return(order, nil)

	// A different MCP cannot assign someone else's order.
	result, err := d.svc.Apply(ctx, order.ID,
		domain.OrderEvent{Type: domain.OrderEventAssign, PartnerID: uuid.New()},
		mcpPrincipal(uuid.New()))
	assert.Nil(t, result)
	assertAppError(t, err, "ORD_002")
}

func TestOrderService_Apply_Assign_WrongState(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()
	partnerID := uuid.New()
	order := orderAt(mcpID, domain.OrderStatusInProgress, &partnerID)
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, order.ID).Return(order, nil)

	result, err := d.svc.Apply(ctx, order.ID,
		domain.OrderEvent{Type: domain.OrderEventAssign, PartnerID: partnerID},
		mcpPrincipal(mcpID))
	assert.Nil(t, result)
	assertAppError(t, err, "ORD_003")
}

// ==================== Apply: accept / reject ====================

func TestOrderService_Apply_Accept_Success(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()
	partnerID := uuid.New()
	order := orderAt(mcpID, domain.OrderStatusAssigned, &partnerID)
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, order.ID).Return(order, nil)
	d.orderRepo.EXPECT().Save(ctx, tx, order, gomock.Any()).Return(nil)
	d.sink.EXPECT().Publish(ctx, domain.MCPRoom(mcpID), gomock.Any()).Return(nil)

	result, err := d.svc.Apply(ctx, order.ID,
		domain.OrderEvent{Type: domain.OrderEventAccept},
		partnerPrincipal(partnerID))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusInProgress, result.Status)
}

func TestOrderService_Apply_Accept_UnassignedPartner(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()
	partnerID := uuid.New()
	order := orderAt(mcpID, domain.OrderStatusAssigned, &partnerID)
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, order.ID).Return(order, nil)

	result, err := d.svc.Apply(ctx, order.ID,
		domain.OrderEvent{Type: domain.OrderEventAccept},
		partnerPrincipal(uuid.New()))
	assert.Nil(t, result)
	assertAppError(t, err, "ORD_002")
}

func TestOrderService_Apply_Reject_Cancels(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()
	partnerID := uuid.New()
	order := orderAt(mcpID, domain.OrderStatusAssigned, &partnerID)
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, order.ID).Return(order, nil)
	d.orderRepo.EXPECT().Save(ctx, tx, order, gomock.Any()).Return(nil)
	d.sink.EXPECT().Publish(ctx, domain.MCPRoom(mcpID), gomock.Any()).Return(nil)

	result, err := d.svc.Apply(ctx, order.ID,
		domain.OrderEvent{Type: domain.OrderEventReject, Note: "unavailable"},
		partnerPrincipal(partnerID))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, result.Status)
}

// ==================== Apply: complete ====================

func TestOrderService_Apply_Complete_SettlesInSameTx(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()
	partnerID := uuid.New()
	order := orderAt(mcpID, domain.OrderStatusInProgress, &partnerID)
	tx := &mockTx{}

	balanceAfter := dec("700")
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, order.ID).Return(order, nil)
	d.walletSvc.EXPECT().SettleOrder(ctx, tx, order).Return(&ports.SettlementResult{
		Credit:     &domain.Transaction{ID: uuid.New()},
		MCPBalance: balanceAfter,
	}, nil)
	d.orderRepo.EXPECT().Save(ctx, tx, order, gomock.Any()).Return(nil)
	d.sink.EXPECT().Publish(ctx, domain.MCPRoom(mcpID), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, event domain.Event) error {
			payload, ok := event.Payload.(domain.OrderStatusPayload)
			require.True(t, ok)
			assert.Equal(t, domain.OrderStatusCompleted, payload.NewStatus)
			return nil
		})
	// The low-balance check runs after commit, against the settled balance.
	d.walletSvc.EXPECT().NotifyLowBalance(ctx, mcpID, balanceAfter)

	result, err := d.svc.Apply(ctx, order.ID,
		domain.OrderEvent{Type: domain.OrderEventComplete},
		partnerPrincipal(partnerID))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, result.Status)
	assert.Equal(t, domain.PaymentStatusCompleted, result.PaymentStatus)
	assert.NotNil(t, result.CompletedAt)
}

func TestOrderService_Apply_Complete_ByMCPOwner(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()
	partnerID := uuid.New()
	order := orderAt(mcpID, domain.OrderStatusInProgress, &partnerID)
	tx := &mockTx{}

	balanceAfter := dec("700")
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, order.ID).Return(order, nil)
	d.walletSvc.EXPECT().SettleOrder(ctx, tx, order).Return(&ports.SettlementResult{
		Credit:     &domain.Transaction{ID: uuid.New()},
		MCPBalance: balanceAfter,
	}, nil)
	d.orderRepo.EXPECT().Save(ctx, tx, order, gomock.Any()).Return(nil)
	d.sink.EXPECT().Publish(ctx, domain.MCPRoom(mcpID), gomock.Any()).Return(nil)
	d.walletSvc.EXPECT().NotifyLowBalance(ctx, mcpID, balanceAfter)

	result, err := d.svc.Apply(ctx, order.ID,
		domain.OrderEvent{Type: domain.OrderEventComplete},
		mcpPrincipal(mcpID))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, result.Status)
}

func TestOrderService_Apply_Complete_SettlementFailureAborts(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()
	partnerID := uuid.New()
	order := orderAt(mcpID, domain.OrderStatusInProgress, &partnerID)
	tx := &mockTx{}

	cause := errors.New("insufficient balance")
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, order.ID).Return(order, nil)
	d.walletSvc.EXPECT().SettleOrder(ctx, tx, order).Return(nil, cause)
	// No Save, no Publish: the whole transition rolls back.

	result, err := d.svc.Apply(ctx, order.ID,
		domain.OrderEvent{Type: domain.OrderEventComplete},
		partnerPrincipal(partnerID))
	assert.Nil(t, result)
	assertAppError(t, err, "ORD_006")
	assert.ErrorIs(t, err, cause)
}

func TestOrderService_Apply_Complete_StaleWriteEmitsNoAlert(t *testing.T) {
	// Settlement succeeded in-tx and left the MCP below the threshold, but the
	// order write lost the version race, so the whole transaction rolls back.
	// Neither the status event nor the low-balance alert may fire.
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()
	partnerID := uuid.New()
	order := orderAt(mcpID, domain.OrderStatusInProgress, &partnerID)
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, order.ID).Return(order, nil)
	d.walletSvc.EXPECT().SettleOrder(ctx, tx, order).Return(&ports.SettlementResult{
		Credit:     &domain.Transaction{ID: uuid.New()},
		MCPBalance: dec("50"),
	}, nil)
	d.orderRepo.EXPECT().Save(ctx, tx, order, gomock.Any()).Return(apperror.ErrStaleWrite())
	// No Publish and no NotifyLowBalance: nothing was committed.

	result, err := d.svc.Apply(ctx, order.ID,
		domain.OrderEvent{Type: domain.OrderEventComplete},
		partnerPrincipal(partnerID))
	assert.Nil(t, result)
	assertAppError(t, err, "ORD_005")
}

func TestOrderService_Apply_Complete_FromPendingIllegal(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()
	order := orderAt(mcpID, domain.OrderStatusPending, nil)
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, order.ID).Return(order, nil)

	result, err := d.svc.Apply(ctx, order.ID,
		domain.OrderEvent{Type: domain.OrderEventComplete},
		mcpPrincipal(mcpID))
	assert.Nil(t, result)
	assertAppError(t, err, "ORD_003")
}

// ==================== Apply: cancel ====================

func TestOrderService_Apply_Cancel_Success(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()
	partnerID := uuid.New()
	order := orderAt(mcpID, domain.OrderStatusInProgress, &partnerID)
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, order.ID).Return(order, nil)
	d.orderRepo.EXPECT().Save(ctx, tx, order, gomock.Any()).Return(nil)
	d.sink.EXPECT().Publish(ctx, domain.MCPRoom(mcpID), gomock.Any()).Return(nil)

	result, err := d.svc.Apply(ctx, order.ID,
		domain.OrderEvent{Type: domain.OrderEventCancel, Note: "customer cancelled"},
		mcpPrincipal(mcpID))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, result.Status)
}

func TestOrderService_Apply_Cancel_TerminalIllegal(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()
	partnerID := uuid.New()
	order := orderAt(mcpID, domain.OrderStatusCompleted, &partnerID)
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, order.ID).Return(order, nil)

	result, err := d.svc.Apply(ctx, order.ID,
		domain.OrderEvent{Type: domain.OrderEventCancel},
		mcpPrincipal(mcpID))
	assert.Nil(t, result)
	assertAppError(t, err, "ORD_003")
}

func TestOrderService_Apply_Cancel_PartnerUnauthorized(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()
	partnerID := uuid.New()
	order := orderAt(mcpID, domain.OrderStatusAssigned, &partnerID)
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, order.ID).Return(order, nil)

	result, err := d.svc.Apply(ctx, order.ID,
		domain.OrderEvent{Type: domain.OrderEventCancel},
		partnerPrincipal(partnerID))
	assert.Nil(t, result)
	assertAppError(t, err, "ORD_002")
}

// ==================== Apply: misc ====================

func TestOrderService_Apply_OrderNotFound(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	orderID := uuid.New()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, orderID).Return(nil, nil)

	result, err := d.svc.Apply(ctx, orderID,
		domain.OrderEvent{Type: domain.OrderEventCancel},
		mcpPrincipal(uuid.New()))
	assert.Nil(t, result)
	assertAppError(t, err, "ORD_004")
}

func TestOrderService_Apply_StaleWrite(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()
	order := orderAt(mcpID, domain.OrderStatusPending, nil)
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, order.ID).Return(order, nil)
	d.orderRepo.EXPECT().Save(ctx, tx, order, gomock.Any()).Return(apperror.ErrStaleWrite())

	result, err := d.svc.Apply(ctx, order.ID,
		domain.OrderEvent{Type: domain.OrderEventCancel},
		mcpPrincipal(mcpID))
	assert.Nil(t, result)
	assertAppError(t, err, "ORD_005")
}

// ==================== Get Tests ====================

func TestOrderService_Get_MCPOwner(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()
	order := orderAt(mcpID, domain.OrderStatusPending, nil)

	d.orderRepo.EXPECT().GetByID(ctx, order.ID).Return(order, nil)

	result, err := d.svc.Get(ctx, order.ID, mcpPrincipal(mcpID))
	require.NoError(t, err)
	assert.Equal(t, order.ID, result.ID)
}

func TestOrderService_Get_StrangerUnauthorized(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	order := orderAt(uuid.New(), domain.OrderStatusPending, nil)

	d.orderRepo.EXPECT().GetByID(ctx, order.ID).Return(order, nil)

	result, err := d.svc.Get(ctx, order.ID, partnerPrincipal(uuid.New()))
	assert.Nil(t, result)
	assertAppError(t, err, "ORD_002")
}

func TestOrderService_Get_NotFound(t *testing.T) {
	d := setupOrderService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	orderID := uuid.New()

	d.orderRepo.EXPECT().GetByID(ctx, orderID).Return(nil, nil)

	result, err := d.svc.Get(ctx, orderID, mcpPrincipal(uuid.New()))
	assert.Nil(t, result)
	assertAppError(t, err, "ORD_004")
}
