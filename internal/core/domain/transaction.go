package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the direction of a ledger entry.
type TransactionType string

const (
	TransactionTypeCredit TransactionType = "CREDIT"
	TransactionTypeDebit  TransactionType = "DEBIT"
)

// Valid reports whether t is one of the recognized types.
func (t TransactionType) Valid() bool {
	return t == TransactionTypeCredit || t == TransactionTypeDebit
}

// TransactionStatus represents the lifecycle state of a ledger entry.
// Only a COMPLETED transaction affects the wallet balance, exactly once.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Valid reports whether s is one of the recognized statuses.
func (s TransactionStatus) Valid() bool {
	return s == TransactionStatusPending || s == TransactionStatusCompleted || s == TransactionStatusFailed
}

// TransactionMetadata carries optional correlation data for a ledger entry.
type TransactionMetadata struct {
	CounterpartyID *uuid.UUID `json:"counterparty_id,omitempty"`
	OrderID        *uuid.UUID `json:"order_id,omitempty"`
	PaymentMethod  string     `json:"payment_method,omitempty"`
}

// Transaction is an immutable ledger entry once COMPLETED. The Reference is
// the idempotency/correlation key: unique per wallet, shared by the two legs
// of a transfer.
type Transaction struct {
	ID          uuid.UUID           `json:"id"`
	WalletID    uuid.UUID           `json:"wallet_id"`
	Type        TransactionType     `json:"type"`
	Amount      decimal.Decimal     `json:"amount"`
	Description string              `json:"description"`
	Reference   string              `json:"reference"`
	Status      TransactionStatus   `json:"status"`
	Metadata    TransactionMetadata `json:"metadata"`
	CreatedAt   time.Time           `json:"created_at"`
}

// AffectsBalance reports whether this transaction moves money: only
// COMPLETED entries do. PENDING withdrawals and FAILED entries have no effect.
func (t *Transaction) AffectsBalance() bool {
	return t.Status == TransactionStatusCompleted
}

// SignedAmount returns the balance delta this transaction applies when
// COMPLETED: positive for credits, negative for debits.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Type == TransactionTypeDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}
