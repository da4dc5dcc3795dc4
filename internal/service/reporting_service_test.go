package service

import (
	"context"
	"testing"

	"mcp-logistics/internal/core/domain"
	"mcp-logistics/internal/core/ports"
	"mcp-logistics/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type reportingTestDeps struct {
	svc        ports.ReportingService
	walletRepo *mocks.MockWalletRepository
	txRepo     *mocks.MockTransactionRepository
	orderRepo  *mocks.MockOrderRepository
	ctrl       *gomock.Controller
}

func setupReportingService(t *testing.T) *reportingTestDeps {
	ctrl := gomock.NewController(t)
	d := &reportingTestDeps{
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		orderRepo:  mocks.NewMockOrderRepository(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewReportingService(d.walletRepo, d.txRepo, d.orderRepo)
	return d
}

func TestReportingService_GetWalletBalance(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	ownerID := uuid.New()
	d.walletRepo.EXPECT().GetByOwnerID(ctx, ownerID).Return(wallet(ownerID, "321.50"), nil)

	balance, err := d.svc.GetWalletBalance(ctx, ownerID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("321.50")))
}

func TestReportingService_GetWalletBalance_NotFound(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	ownerID := uuid.New()
	d.walletRepo.EXPECT().GetByOwnerID(ctx, ownerID).Return(nil, nil)

	_, err := d.svc.GetWalletBalance(ctx, ownerID)
	assertAppError(t, err, "WAL_004")
}

func TestReportingService_ListTransactions_ScopesToOwnerWallet(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	ownerID := uuid.New()
	w := wallet(ownerID, "100")

	d.walletRepo.EXPECT().GetByOwnerID(ctx, ownerID).Return(w, nil)
	d.txRepo.EXPECT().List(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
			// The wallet filter always comes from the owner, never the caller.
			assert.Equal(t, w.ID, params.WalletID)
			return []domain.Transaction{{ID: uuid.New(), WalletID: w.ID}}, 1, nil
		})

	txns, total, err := d.svc.ListTransactions(ctx, ownerID, ports.TransactionListParams{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, txns, 1)
	assert.Equal(t, int64(1), total)
}

func TestReportingService_ListOrders_RequiresScope(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	_, _, err := d.svc.ListOrders(context.Background(), ports.OrderListParams{})
	require.Error(t, err)
}

func TestReportingService_GetOrderStats(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	mcpID := uuid.New()
	d.orderRepo.EXPECT().CountByStatus(ctx, mcpID).Return(map[domain.OrderStatus]int64{
		domain.OrderStatusPending:    3,
		domain.OrderStatusInProgress: 2,
		domain.OrderStatusCompleted:  5,
	}, nil)

	stats, err := d.svc.GetOrderStats(ctx, mcpID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.Total)
	assert.Equal(t, int64(3), stats.Pending)
	assert.Equal(t, int64(0), stats.Assigned)
	assert.Equal(t, int64(2), stats.InProgress)
	assert.Equal(t, int64(5), stats.Completed)
	assert.Equal(t, int64(0), stats.Cancelled)
}
