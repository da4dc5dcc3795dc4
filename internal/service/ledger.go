package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mcp-logistics/internal/core/domain"
	"mcp-logistics/internal/core/ports"
	"mcp-logistics/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Ledger applies transactions to wallet balances. Append is the only way a
// balance changes: the balance write and the transaction insert happen inside
// the caller's database transaction, with the wallet row locked, so no
// intermediate state is observable.
type Ledger struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
}

// NewLedger creates a Ledger over the given repositories.
func NewLedger(walletRepo ports.WalletRepository, txRepo ports.TransactionRepository) *Ledger {
	return &Ledger{walletRepo: walletRepo, txRepo: txRepo}
}

// Append validates txn and applies it to the wallet.
//
// Re-submitting the reference of an already-COMPLETED transaction is a no-op
// returning the prior transaction and the current balance. Only a COMPLETED
// transaction moves the balance; PENDING entries are recorded with zero
// effect. A COMPLETED DEBIT that would drive the balance negative fails with
// InsufficientBalance and writes nothing.
//
// The wallet row is locked FOR UPDATE; locking is re-entrant within dbTx, so
// callers that already hold the lock (e.g. a transfer holding both wallets)
// may call Append safely.
func (l *Ledger) Append(ctx context.Context, dbTx pgx.Tx, walletID uuid.UUID, txn *domain.Transaction) (decimal.Decimal, *domain.Transaction, error) {
	if err := validateTransaction(txn); err != nil {
		return decimal.Zero, nil, err
	}

	wallet, err := l.walletRepo.GetByIDForUpdate(ctx, dbTx, walletID)
	if err != nil {
		return decimal.Zero, nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return decimal.Zero, nil, apperror.ErrWalletNotFound()
	}

	// Idempotency: the reference is unique per wallet.
	existing, err := l.txRepo.GetByReferenceForUpdate(ctx, dbTx, wallet.ID, txn.Reference)
	if err != nil {
		return decimal.Zero, nil, apperror.InternalError(fmt.Errorf("check reference: %w", err))
	}
	if existing != nil {
		if existing.Status == domain.TransactionStatusCompleted {
			return wallet.Balance, existing, nil
		}
		return decimal.Zero, nil, apperror.ErrDuplicateReference(txn.Reference)
	}

	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	txn.WalletID = wallet.ID
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}

	newBalance := wallet.Balance
	if txn.AffectsBalance() {
		newBalance = wallet.Balance.Add(txn.SignedAmount())
		if newBalance.IsNegative() {
			return decimal.Zero, nil, apperror.ErrInsufficientBalance()
		}
		if err := l.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, newBalance); err != nil {
			return decimal.Zero, nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
		}
	}

	if err := l.txRepo.Create(ctx, dbTx, txn); err != nil {
		if apperror.CodeOf(err) == apperror.CodeDuplicateReference {
			return decimal.Zero, nil, err
		}
		return decimal.Zero, nil, apperror.InternalError(fmt.Errorf("insert transaction: %w", err))
	}

	return newBalance, txn, nil
}

func validateTransaction(txn *domain.Transaction) error {
	if txn == nil {
		return apperror.ErrInvalidTransaction("missing transaction")
	}
	if !txn.Type.Valid() {
		return apperror.ErrInvalidTransaction(fmt.Sprintf("unrecognized type %q", txn.Type))
	}
	if !txn.Status.Valid() {
		return apperror.ErrInvalidTransaction(fmt.Sprintf("unrecognized status %q", txn.Status))
	}
	if !txn.Amount.IsPositive() {
		return apperror.ErrInvalidAmount()
	}
	if strings.TrimSpace(txn.Reference) == "" {
		return apperror.ErrInvalidTransaction("missing reference")
	}
	if strings.TrimSpace(txn.Description) == "" {
		return apperror.ErrInvalidTransaction("missing description")
	}
	return nil
}
