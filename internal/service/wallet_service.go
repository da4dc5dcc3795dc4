package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mcp-logistics/internal/core/domain"
	"mcp-logistics/internal/core/ports"
	"mcp-logistics/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const transferIdempotencyTTL = 24 * time.Hour

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	ledger     *Ledger
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	userRepo   ports.UserRepository
	idempRepo  ports.IdempotencyRepository
	idempCache ports.IdempotencyCache
	transactor ports.DBTransactor
	sink       ports.NotificationSink
	lowBalance decimal.Decimal
	log        zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	userRepo ports.UserRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	sink ports.NotificationSink,
	lowBalance decimal.Decimal,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		ledger:     NewLedger(walletRepo, txRepo),
		walletRepo: walletRepo,
		txRepo:     txRepo,
		userRepo:   userRepo,
		idempRepo:  idempRepo,
		idempCache: idempCache,
		transactor: transactor,
		sink:       sink,
		lowBalance: lowBalance,
		log:        log,
	}
}

// AddFunds credits the owner's wallet from an external payment method,
// creating the wallet on first funding.
func (s *WalletServiceImpl) AddFunds(ctx context.Context, req ports.AddFundsRequest) (*ports.WalletOperationResult, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.lockOrCreateWallet(ctx, dbTx, req.OwnerID)
	if err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = "UPI"
	}
	txn := &domain.Transaction{
		Type:        domain.TransactionTypeCredit,
		Amount:      req.Amount,
		Description: fmt.Sprintf("Added funds via %s", method),
		Reference:   fmt.Sprintf("ADD-%s", uuid.New()),
		Status:      domain.TransactionStatusCompleted,
		Metadata:    domain.TransactionMetadata{PaymentMethod: method},
	}

	balance, applied, err := s.ledger.Append(ctx, dbTx, wallet.ID, txn)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.NotifyLowBalance(ctx, req.OwnerID, balance)

	s.log.Info().
		Str("owner_id", req.OwnerID.String()).
		Str("amount", req.Amount.String()).
		Str("method", method).
		Msg("funds added")

	return &ports.WalletOperationResult{Balance: balance, Transaction: applied}, nil
}

// Transfer moves funds between two wallets as one atomic unit: a COMPLETED
// DEBIT on the source and a COMPLETED CREDIT on the destination sharing one
// reference, both legs or neither. Retrying with the same reference returns
// the original result without moving money again.
func (s *WalletServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.Reference == "" {
		return nil, apperror.ErrInvalidTransaction("missing reference")
	}
	if req.FromOwnerID == req.ToOwnerID {
		return nil, apperror.ErrInvalidTransaction("source and destination wallets are the same")
	}

	idempKey := domain.BuildIdempotencyKey(req.FromOwnerID, req.Reference)

	// Layer 1: Redis replay check
	cached, err := s.idempCache.Get(ctx, idempKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return unmarshalTransferResult(cached)
	}

	// Layer 2: DB replay check
	idempLog, err := s.idempRepo.Get(ctx, idempKey)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if idempLog != nil {
		return unmarshalTransferResult(idempLog.ResponseJSON)
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	description := req.Description
	if description == "" {
		description = "Wallet transfer"
	}
	result, replayed, err := s.transferLegs(ctx, dbTx, transferLegsParams{
		FromOwnerID: req.FromOwnerID,
		ToOwnerID:   req.ToOwnerID,
		Amount:      req.Amount,
		Reference:   req.Reference,
		Description: description,
	})
	if err != nil {
		return nil, err
	}

	// A concurrent request with this reference committed both legs after our
	// replay checks ran. Its idempotency log row already exists, so inserting
	// another would collide on the key; return the prior result as-is.
	if replayed {
		if err := dbTx.Commit(ctx); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
		}
		s.log.Info().
			Str("from", req.FromOwnerID.String()).
			Str("reference", req.Reference).
			Msg("transfer replayed from ledger")
		return result, nil
	}

	respJSON, err := json.Marshal(result)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
	}
	if err := s.idempRepo.Create(ctx, dbTx, &domain.IdempotencyLog{
		Key:           idempKey,
		TransactionID: result.Debit.ID,
		ResponseJSON:  respJSON,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("save idempotency log: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	// Post-commit: cache replay result (best-effort)
	if err := s.idempCache.Set(ctx, idempKey, respJSON, transferIdempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache transfer result")
	}

	s.NotifyLowBalance(ctx, req.FromOwnerID, result.FromBalance)

	s.log.Info().
		Str("from", req.FromOwnerID.String()).
		Str("to", req.ToOwnerID.String()).
		Str("amount", req.Amount.String()).
		Str("reference", req.Reference).
		Msg("transfer completed")

	return result, nil
}

// SettleOrder pays the assigned partner order.Amount from the MCP wallet.
// It runs inside the caller's transaction: if the order-completion write rolls
// back, so does the settlement, and vice versa. It reports rather than emits
// the post-settlement MCP balance; nothing should alert on a debit that may
// still roll back with the caller's transaction.
func (s *WalletServiceImpl) SettleOrder(ctx context.Context, dbTx pgx.Tx, order *domain.Order) (*ports.SettlementResult, error) {
	if order.PickupPartnerID == nil {
		return nil, apperror.ErrInvalidTransaction("order has no assigned partner")
	}

	result, _, err := s.transferLegs(ctx, dbTx, transferLegsParams{
		FromOwnerID: order.MCPID,
		ToOwnerID:   *order.PickupPartnerID,
		Amount:      order.Amount,
		Reference:   fmt.Sprintf("ORD-%s", order.ID),
		Description: fmt.Sprintf("Payment for order %s", order.ID),
		OrderID:     &order.ID,
	})
	if err != nil {
		return nil, err
	}

	return &ports.SettlementResult{Credit: result.Credit, MCPBalance: result.FromBalance}, nil
}

// Withdraw records a PENDING DEBIT for asynchronous external settlement. The
// balance is untouched until UpdateTransactionStatus completes the withdrawal.
func (s *WalletServiceImpl) Withdraw(ctx context.Context, req ports.WithdrawRequest) (*ports.WalletOperationResult, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByOwnerIDForUpdate(ctx, dbTx, req.OwnerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	if wallet.Balance.LessThan(req.Amount) {
		return nil, apperror.ErrInsufficientBalance()
	}

	txn := &domain.Transaction{
		Type:        domain.TransactionTypeDebit,
		Amount:      req.Amount,
		Description: "Withdrawal request",
		Reference:   fmt.Sprintf("WDR-%s", uuid.New()),
		Status:      domain.TransactionStatusPending,
		Metadata:    domain.TransactionMetadata{PaymentMethod: req.Destination},
	}

	balance, applied, err := s.ledger.Append(ctx, dbTx, wallet.ID, txn)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("owner_id", req.OwnerID.String()).
		Str("amount", req.Amount.String()).
		Str("txn_id", applied.ID.String()).
		Msg("withdrawal requested")

	return &ports.WalletOperationResult{Balance: balance, Transaction: applied}, nil
}

// UpdateTransactionStatus finalizes a PENDING withdrawal. Completing a debit
// applies it to the balance (with a sufficiency check) atomically; failing it
// leaves the balance untouched.
func (s *WalletServiceImpl) UpdateTransactionStatus(ctx context.Context, ownerID, txnID uuid.UUID, status domain.TransactionStatus) (*ports.WalletOperationResult, error) {
	if status != domain.TransactionStatusCompleted && status != domain.TransactionStatusFailed {
		return nil, apperror.ErrInvalidTransaction(fmt.Sprintf("cannot move a transaction to %q", status))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByOwnerIDForUpdate(ctx, dbTx, ownerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	txn, err := s.txRepo.GetByID(ctx, txnID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
	}
	if txn == nil || txn.WalletID != wallet.ID {
		return nil, apperror.ErrTransactionNotFound()
	}
	if txn.Status == status {
		return &ports.WalletOperationResult{Balance: wallet.Balance, Transaction: txn}, nil
	}
	if txn.Status != domain.TransactionStatusPending {
		return nil, apperror.ErrInvalidTransaction("transaction is already finalized")
	}

	balance := wallet.Balance
	if status == domain.TransactionStatusCompleted {
		balance = wallet.Balance.Add(txn.SignedAmount())
		if balance.IsNegative() {
			return nil, apperror.ErrInsufficientBalance()
		}
		if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, balance); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
		}
	}

	if err := s.txRepo.UpdateStatus(ctx, dbTx, txn.ID, status); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update transaction status: %w", err))
	}
	txn.Status = status

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.NotifyLowBalance(ctx, ownerID, balance)

	s.log.Info().
		Str("txn_id", txn.ID.String()).
		Str("status", string(status)).
		Msg("transaction finalized")

	return &ports.WalletOperationResult{Balance: balance, Transaction: txn}, nil
}

// GetBalance returns the owner's current balance.
func (s *WalletServiceImpl) GetBalance(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error) {
	wallet, err := s.walletRepo.GetByOwnerID(ctx, ownerID)
	if err != nil {
		return decimal.Zero, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return decimal.Zero, apperror.ErrWalletNotFound()
	}
	return wallet.Balance, nil
}

type transferLegsParams struct {
	FromOwnerID uuid.UUID
	ToOwnerID   uuid.UUID
	Amount      decimal.Decimal
	Reference   string
	Description string
	OrderID     *uuid.UUID
}

// transferLegs executes both halves of a transfer inside dbTx. Wallet rows
// are locked in ascending owner-id order regardless of money direction so two
// opposing transfers cannot deadlock. The destination wallet is created
// lazily (first funding event); the source must exist.
//
// replayed reports that this reference was already settled by an earlier
// transaction: the returned legs were read from the ledger, not written.
func (s *WalletServiceImpl) transferLegs(ctx context.Context, dbTx pgx.Tx, p transferLegsParams) (result *ports.TransferResult, replayed bool, err error) {
	lockFirst, lockSecond := p.FromOwnerID, p.ToOwnerID
	if bytes.Compare(lockSecond[:], lockFirst[:]) < 0 {
		lockFirst, lockSecond = lockSecond, lockFirst
	}

	wallets := make(map[uuid.UUID]*domain.Wallet, 2)
	for _, ownerID := range []uuid.UUID{lockFirst, lockSecond} {
		w, err := s.walletRepo.GetByOwnerIDForUpdate(ctx, dbTx, ownerID)
		if err != nil {
			return nil, false, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
		}
		wallets[ownerID] = w
	}

	source := wallets[p.FromOwnerID]
	if source == nil {
		return nil, false, apperror.ErrWalletNotFound()
	}
	dest := wallets[p.ToOwnerID]
	if dest == nil {
		dest = domain.NewWallet(p.ToOwnerID)
		if err := s.walletRepo.Create(ctx, dbTx, dest); err != nil {
			return nil, false, apperror.InternalError(fmt.Errorf("create destination wallet: %w", err))
		}
	}

	debit := &domain.Transaction{
		Type:        domain.TransactionTypeDebit,
		Amount:      p.Amount,
		Description: p.Description,
		Reference:   p.Reference,
		Status:      domain.TransactionStatusCompleted,
		Metadata:    domain.TransactionMetadata{CounterpartyID: &p.ToOwnerID, OrderID: p.OrderID},
	}
	fromBalance, appliedDebit, err := s.ledger.Append(ctx, dbTx, source.ID, debit)
	if err != nil {
		return nil, false, err
	}

	// The debit leg already existed: this reference was settled before. The
	// credit leg committed with it, so look it up and return the prior result.
	if appliedDebit.ID != debit.ID {
		appliedCredit, err := s.txRepo.GetByReferenceForUpdate(ctx, dbTx, dest.ID, p.Reference)
		if err != nil {
			return nil, false, apperror.InternalError(fmt.Errorf("load credit leg: %w", err))
		}
		if appliedCredit == nil {
			return nil, false, apperror.InternalError(fmt.Errorf("transfer %s has a debit leg but no credit leg", p.Reference))
		}
		return &ports.TransferResult{
			FromBalance: fromBalance,
			ToBalance:   dest.Balance,
			Debit:       appliedDebit,
			Credit:      appliedCredit,
		}, true, nil
	}

	credit := &domain.Transaction{
		Type:        domain.TransactionTypeCredit,
		Amount:      p.Amount,
		Description: p.Description,
		Reference:   p.Reference,
		Status:      domain.TransactionStatusCompleted,
		Metadata:    domain.TransactionMetadata{CounterpartyID: &p.FromOwnerID, OrderID: p.OrderID},
	}
	toBalance, appliedCredit, err := s.ledger.Append(ctx, dbTx, dest.ID, credit)
	if err != nil {
		return nil, false, err
	}

	return &ports.TransferResult{
		FromBalance: fromBalance,
		ToBalance:   toBalance,
		Debit:       appliedDebit,
		Credit:      appliedCredit,
	}, false, nil
}

// lockOrCreateWallet locks the owner's wallet row, creating the wallet if
// this is the owner's first funding event.
func (s *WalletServiceImpl) lockOrCreateWallet(ctx context.Context, dbTx pgx.Tx, ownerID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByOwnerIDForUpdate(ctx, dbTx, ownerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet != nil {
		return wallet, nil
	}
	wallet = domain.NewWallet(ownerID)
	if err := s.walletRepo.Create(ctx, dbTx, wallet); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}
	return wallet, nil
}

// NotifyLowBalance emits a lowBalanceAlert to the owner's room when the
// balance sits below the configured threshold. Best-effort: never fails the
// operation that triggered it. Call it only once the balance is committed.
func (s *WalletServiceImpl) NotifyLowBalance(ctx context.Context, ownerID uuid.UUID, balance decimal.Decimal) {
	if balance.GreaterThanOrEqual(s.lowBalance) {
		return
	}

	room := domain.MCPRoom(ownerID)
	if user, err := s.userRepo.GetByID(ctx, ownerID); err == nil && user != nil {
		room = domain.RoomFor(user.Role, ownerID)
	}

	event := domain.Event{
		Type:    domain.EventLowBalanceAlert,
		Payload: domain.LowBalancePayload{OwnerID: ownerID, Balance: balance},
	}
	if err := s.sink.Publish(ctx, room, event); err != nil {
		s.log.Warn().Err(err).Str("room", room).Msg("failed to publish low balance alert")
	}
}

func unmarshalTransferResult(data []byte) (*ports.TransferResult, error) {
	result := &ports.TransferResult{}
	if err := json.Unmarshal(data, result); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached transfer: %w", err))
	}
	return result, nil
}
