package dto

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AddFundsRequest is the request body for funding the caller's wallet.
type AddFundsRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Method string          `json:"method" binding:"omitempty,max=50"`
}

// TransferRequest is the request body for a wallet-to-wallet transfer.
// Reference is the caller-supplied idempotency key; retrying with the same
// reference returns the original result.
type TransferRequest struct {
	ToOwnerID   uuid.UUID       `json:"to_owner_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Reference   string          `json:"reference" binding:"required,max=100"`
	Description string          `json:"description" binding:"omitempty,max=255"`
}

// WithdrawRequest is the request body for a withdrawal request.
type WithdrawRequest struct {
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Destination string          `json:"destination" binding:"omitempty,max=255"`
}

// UpdateTransactionStatusRequest finalizes a pending withdrawal.
type UpdateTransactionStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=COMPLETED FAILED"`
}

// CreateOrderRequest is the request body for creating a pickup order.
// Commission nil means "apply the configured default rate".
type CreateOrderRequest struct {
	CustomerID uuid.UUID        `json:"customer_id" binding:"required"`
	Amount     decimal.Decimal  `json:"amount" binding:"required"`
	Commission *decimal.Decimal `json:"commission,omitempty"`
	Note       string           `json:"note" binding:"omitempty,max=500"`
}

// AssignOrderRequest names the pickup partner for an assignment.
type AssignOrderRequest struct {
	PartnerID uuid.UUID `json:"partner_id" binding:"required"`
	Note      string    `json:"note" binding:"omitempty,max=500"`
}

// OrderEventRequest carries the optional note for accept/reject/complete/cancel.
type OrderEventRequest struct {
	Note string `json:"note" binding:"omitempty,max=500"`
}

// WalletBalanceResponse is the response for a balance query.
type WalletBalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// TransactionResponse is the wire form of a ledger entry.
type TransactionResponse struct {
	ID          string          `json:"id"`
	WalletID    string          `json:"wallet_id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference"`
	Status      string          `json:"status"`
	CreatedAt   string          `json:"created_at"`
}

// WalletOperationResponse is the {balance, transaction} pair returned by
// single-wallet operations.
type WalletOperationResponse struct {
	Balance     decimal.Decimal     `json:"balance"`
	Transaction TransactionResponse `json:"transaction"`
}

// TransferResponse carries both legs of a completed transfer.
type TransferResponse struct {
	FromBalance decimal.Decimal     `json:"from_balance"`
	ToBalance   decimal.Decimal     `json:"to_balance"`
	Debit       TransactionResponse `json:"debit"`
	Credit      TransactionResponse `json:"credit"`
}

// StatusChangeResponse is one audit entry in an order's history.
type StatusChangeResponse struct {
	Status    string `json:"status"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

// OrderResponse is the wire form of an order.
type OrderResponse struct {
	ID              string                 `json:"id"`
	MCPID           string                 `json:"mcp_id"`
	CustomerID      string                 `json:"customer_id"`
	PickupPartnerID *string                `json:"pickup_partner_id,omitempty"`
	Status          string                 `json:"status"`
	Amount          decimal.Decimal        `json:"amount"`
	Commission      decimal.Decimal        `json:"commission"`
	PaymentStatus   string                 `json:"payment_status"`
	StatusHistory   []StatusChangeResponse `json:"status_history,omitempty"`
	Note            string                 `json:"note,omitempty"`
	CreatedAt       string                 `json:"created_at"`
	CompletedAt     *string                `json:"completed_at,omitempty"`
}

// TransactionListResponse wraps a paginated transaction list.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

// OrderListResponse wraps a paginated order list.
type OrderListResponse struct {
	Items      []OrderResponse `json:"items"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

// OrderStatsResponse is the dashboard status breakdown.
type OrderStatsResponse struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Assigned   int64 `json:"assigned"`
	InProgress int64 `json:"in_progress"`
	Completed  int64 `json:"completed"`
	Cancelled  int64 `json:"cancelled"`
}
