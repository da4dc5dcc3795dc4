package ports

import (
	"context"
	"time"

	"mcp-logistics/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// NotificationSink receives fire-and-forget events keyed by role-id room
// strings ("mcp-<id>", "partner-<id>"). Delivery, retries and connection
// state are the sink's concern; the core never blocks on it.
type NotificationSink interface {
	Publish(ctx context.Context, room string, event domain.Event) error
}

// IdempotencyCache is the fast-path replay check in front of the DB log.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// TokenService validates the bearer tokens the authorization gate receives.
type TokenService interface {
	Generate(userID uuid.UUID, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed token claims before role normalization.
type TokenClaims struct {
	UserID uuid.UUID
	Role   string
}

// --- Wallet Service ---

// WalletService is the public surface of the wallet ledger. Every operation
// runs as one atomic unit; callers may safely retry a failed Transfer with
// the same reference.
type WalletService interface {
	AddFunds(ctx context.Context, req AddFundsRequest) (*WalletOperationResult, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	Withdraw(ctx context.Context, req WithdrawRequest) (*WalletOperationResult, error)
	UpdateTransactionStatus(ctx context.Context, ownerID, txnID uuid.UUID, status domain.TransactionStatus) (*WalletOperationResult, error)
	// SettleOrder runs inside the caller's database transaction so the order
	// status write and the settlement transfer commit or roll back together.
	SettleOrder(ctx context.Context, dbTx pgx.Tx, order *domain.Order) (*SettlementResult, error)
	GetBalance(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error)
	// NotifyLowBalance emits a low-balance alert for the owner when balance
	// sits below the configured threshold. Best-effort; callers invoke it
	// after their transaction has committed.
	NotifyLowBalance(ctx context.Context, ownerID uuid.UUID, balance decimal.Decimal)
}

// AddFundsRequest funds the owner's wallet from an external payment method.
type AddFundsRequest struct {
	OwnerID uuid.UUID
	Amount  decimal.Decimal
	Method  string
}

// TransferRequest moves funds between two wallets. Reference is the
// caller-supplied idempotency key shared by the debit and credit legs.
type TransferRequest struct {
	FromOwnerID uuid.UUID
	ToOwnerID   uuid.UUID
	Amount      decimal.Decimal
	Reference   string
	Description string
}

// WithdrawRequest records a pending withdrawal to an external destination.
type WithdrawRequest struct {
	OwnerID     uuid.UUID
	Amount      decimal.Decimal
	Destination string
}

// WalletOperationResult is the {balance, transaction} pair every single-wallet
// operation returns.
type WalletOperationResult struct {
	Balance     decimal.Decimal     `json:"balance"`
	Transaction *domain.Transaction `json:"transaction"`
}

// TransferResult carries both legs of a completed transfer.
type TransferResult struct {
	FromBalance decimal.Decimal     `json:"from_balance"`
	ToBalance   decimal.Decimal     `json:"to_balance"`
	Debit       *domain.Transaction `json:"debit"`
	Credit      *domain.Transaction `json:"credit"`
}

// SettlementResult carries the credit leg of an order settlement and the
// payer's balance after it, so the caller can alert on a low balance once
// its own transaction has committed.
type SettlementResult struct {
	Credit     *domain.Transaction
	MCPBalance decimal.Decimal
}

// --- Order Service ---

// OrderService drives the order state machine.
type OrderService interface {
	Create(ctx context.Context, req CreateOrderRequest) (*domain.Order, error)
	Apply(ctx context.Context, orderID uuid.UUID, event domain.OrderEvent, actor domain.Principal) (*domain.Order, error)
	Get(ctx context.Context, orderID uuid.UUID, actor domain.Principal) (*domain.Order, error)
}

// CreateOrderRequest creates a PENDING order owned by the MCP.
// Commission nil means "use the configured default rate".
type CreateOrderRequest struct {
	MCPID      uuid.UUID
	CustomerID uuid.UUID
	Amount     decimal.Decimal
	Commission *decimal.Decimal
	Note       string
}

// --- Reporting Service ---

// ReportingService serves read-only queries; it never mutates state.
type ReportingService interface {
	GetWalletBalance(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, ownerID uuid.UUID, params TransactionListParams) ([]domain.Transaction, int64, error)
	ListOrders(ctx context.Context, params OrderListParams) ([]domain.Order, int64, error)
	GetOrderStats(ctx context.Context, mcpID uuid.UUID) (*OrderStats, error)
}

// OrderStats aggregates order counts for the MCP dashboard.
type OrderStats struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Assigned   int64 `json:"assigned"`
	InProgress int64 `json:"in_progress"`
	Completed  int64 `json:"completed"`
	Cancelled  int64 `json:"cancelled"`
}

// HealthChecker verifies connectivity of one infrastructure dependency.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string
}
