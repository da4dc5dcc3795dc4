package service

import (
	"context"
	"fmt"

	"mcp-logistics/internal/core/domain"
	"mcp-logistics/internal/core/ports"
	"mcp-logistics/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// reportingService implements ports.ReportingService. Read paths only, no
// locking and no writes.
type reportingService struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	orderRepo  ports.OrderRepository
}

// NewReportingService creates a new reporting service.
func NewReportingService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	orderRepo ports.OrderRepository,
) ports.ReportingService {
	return &reportingService{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		orderRepo:  orderRepo,
	}
}

// GetWalletBalance returns the current balance for the owner.
func (s *reportingService) GetWalletBalance(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error) {
	wallet, err := s.walletRepo.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return decimal.Zero, apperror.InternalError(err)
	}
	if wallet == nil {
		return decimal.Zero, apperror.ErrWalletNotFound()
	}
	return wallet.Balance, nil
}

// ListTransactions returns the owner's ledger entries, filtered and paginated.
func (s *reportingService) ListTransactions(ctx context.Context, ownerID uuid.UUID, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	wallet, err := s.walletRepo.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	if wallet == nil {
		return nil, 0, apperror.ErrWalletNotFound()
	}

	params.WalletID = wallet.ID
	txns, total, err := s.txRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return txns, total, nil
}

// ListOrders returns orders matching the role-scoped filter.
func (s *reportingService) ListOrders(ctx context.Context, params ports.OrderListParams) ([]domain.Order, int64, error) {
	if params.MCPID == nil && params.PartnerID == nil {
		return nil, 0, apperror.Validation("either mcp or partner filter is required")
	}
	orders, total, err := s.orderRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return orders, total, nil
}

// GetOrderStats aggregates order counts for the MCP dashboard.
func (s *reportingService) GetOrderStats(ctx context.Context, mcpID uuid.UUID) (*ports.OrderStats, error) {
	counts, err := s.orderRepo.CountByStatus(ctx, mcpID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("count orders: %w", err))
	}

	stats := &ports.OrderStats{
		Pending:    counts[domain.OrderStatusPending],
		Assigned:   counts[domain.OrderStatusAssigned],
		InProgress: counts[domain.OrderStatusInProgress],
		Completed:  counts[domain.OrderStatusCompleted],
		Cancelled:  counts[domain.OrderStatusCancelled],
	}
	stats.Total = stats.Pending + stats.Assigned + stats.InProgress + stats.Completed + stats.Cancelled
	return stats, nil
}
