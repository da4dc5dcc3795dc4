package service

import (
	"context"
	"testing"

	"mcp-logistics/internal/core/domain"
	"mcp-logistics/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setupLedger(t *testing.T) (*Ledger, *mocks.MockWalletRepository, *mocks.MockTransactionRepository, *gomock.Controller) {
	ctrl := gomock.NewController(t)
	walletRepo := mocks.NewMockWalletRepository(ctrl)
	txRepo := mocks.NewMockTransactionRepository(ctrl)
	return NewLedger(walletRepo, txRepo), walletRepo, txRepo, ctrl
}

func TestLedger_Append_CompletedCreditMovesBalance(t *testing.T) {
	l, walletRepo, txRepo, ctrl := setupLedger(t)
	defer ctrl.Finish()

	ctx := context.Background()
	w := wallet(uuid.New(), "100")
	tx := &mockTx{}

	walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, w.ID).Return(w, nil)
	txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, w.ID, "REF-1").Return(nil, nil)
	walletRepo.EXPECT().UpdateBalance(ctx, tx, w.ID, dec("150")).Return(nil)
	txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	balance, applied, err := l.Append(ctx, tx, w.ID, &domain.Transaction{
		Type:        domain.TransactionTypeCredit,
		Amount:      dec("50"),
		Description: "credit",
		Reference:   "REF-1",
		Status:      domain.TransactionStatusCompleted,
	})
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("150")))
	assert.Equal(t, w.ID, applied.WalletID)
	assert.NotEqual(t, uuid.Nil, applied.ID)
	assert.False(t, applied.CreatedAt.IsZero())
}

func TestLedger_Append_PendingDebitLeavesBalance(t *testing.T) {
	l, walletRepo, txRepo, ctrl := setupLedger(t)
	defer ctrl.Finish()

	ctx := context.Background()
	w := wallet(uuid.New(), "100")
	tx := &mockTx{}

	walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, w.ID).Return(w, nil)
	txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, w.ID, "REF-2").Return(nil, nil)
	// No UpdateBalance for a PENDING entry.
	txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	balance, _, err := l.Append(ctx, tx, w.ID, &domain.Transaction{
		Type:        domain.TransactionTypeDebit,
		Amount:      dec("500"), // exceeds the balance, but pending entries skip the check
		Description: "withdrawal",
		Reference:   "REF-2",
		Status:      domain.TransactionStatusPending,
	})
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("100")))
}

func TestLedger_Append_OverdraftRejected(t *testing.T) {
	l, walletRepo, txRepo, ctrl := setupLedger(t)
	defer ctrl.Finish()

	ctx := context.Background()
	w := wallet(uuid.New(), "100")
	tx := &mockTx{}

	walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, w.ID).Return(w, nil)
	txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, w.ID, "REF-3").Return(nil, nil)

	_, _, err := l.Append(ctx, tx, w.ID, &domain.Transaction{
		Type:        domain.TransactionTypeDebit,
		Amount:      dec("100.01"),
		Description: "debit",
		Reference:   "REF-3",
		Status:      domain.TransactionStatusCompleted,
	})
	assertAppError(t, err, "WAL_003")
}

func TestLedger_Append_ExactBalanceToZeroAllowed(t *testing.T) {
	l, walletRepo, txRepo, ctrl := setupLedger(t)
	defer ctrl.Finish()

	ctx := context.Background()
	w := wallet(uuid.New(), "100")
	tx := &mockTx{}

	walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, w.ID).Return(w, nil)
	txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, w.ID, "REF-4").Return(nil, nil)
	walletRepo.EXPECT().UpdateBalance(ctx, tx, w.ID, gomock.Cond(func(d decimal.Decimal) bool { return d.Equal(dec("0")) })).Return(nil)
	txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	balance, _, err := l.Append(ctx, tx, w.ID, &domain.Transaction{
		Type:        domain.TransactionTypeDebit,
		Amount:      dec("100"),
		Description: "debit",
		Reference:   "REF-4",
		Status:      domain.TransactionStatusCompleted,
	})
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestLedger_Append_ReplayedReferenceIsNoOp(t *testing.T) {
	l, walletRepo, txRepo, ctrl := setupLedger(t)
	defer ctrl.Finish()

	ctx := context.Background()
	w := wallet(uuid.New(), "100")
	tx := &mockTx{}
	prior := &domain.Transaction{
		ID:        uuid.New(),
		WalletID:  w.ID,
		Type:      domain.TransactionTypeCredit,
		Amount:    dec("50"),
		Reference: "REF-5",
		Status:    domain.TransactionStatusCompleted,
	}

	walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, w.ID).Return(w, nil)
	txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, w.ID, "REF-5").Return(prior, nil)

	balance, applied, err := l.Append(ctx, tx, w.ID, &domain.Transaction{
		Type:        domain.TransactionTypeCredit,
		Amount:      dec("50"),
		Description: "credit",
		Reference:   "REF-5",
		Status:      domain.TransactionStatusCompleted,
	})
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("100"))) // unchanged
	assert.Equal(t, prior.ID, applied.ID)
}

func TestLedger_Append_PendingDuplicateReferenceRejected(t *testing.T) {
	l, walletRepo, txRepo, ctrl := setupLedger(t)
	defer ctrl.Finish()

	ctx := context.Background()
	w := wallet(uuid.New(), "100")
	tx := &mockTx{}

	walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, w.ID).Return(w, nil)
	txRepo.EXPECT().GetByReferenceForUpdate(ctx, tx, w.ID, "REF-6").Return(&domain.Transaction{
		ID:        uuid.New(),
		Reference: "REF-6",
		Status:    domain.TransactionStatusPending,
	}, nil)

	_, _, err := l.Append(ctx, tx, w.ID, &domain.Transaction{
		Type:        domain.TransactionTypeCredit,
		Amount:      dec("50"),
		Description: "credit",
		Reference:   "REF-6",
		Status:      domain.TransactionStatusCompleted,
	})
	assertAppError(t, err, "WAL_005")
}

func TestLedger_Append_Validation(t *testing.T) {
	l, _, _, ctrl := setupLedger(t)
	defer ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	walletID := uuid.New()

	tests := []struct {
		name     string
		txn      *domain.Transaction
		wantCode string
	}{
		{
			name:     "nil transaction",
			txn:      nil,
			wantCode: "WAL_002",
		},
		{
			name: "bad type",
			txn: &domain.Transaction{
				Type: "SIDEWAYS", Amount: dec("10"), Description: "d", Reference: "r",
				Status: domain.TransactionStatusCompleted,
			},
			wantCode: "WAL_002",
		},
		{
			name: "bad status",
			txn: &domain.Transaction{
				Type: domain.TransactionTypeCredit, Amount: dec("10"), Description: "d", Reference: "r",
				Status: "MAYBE",
			},
			wantCode: "WAL_002",
		},
		{
			name: "zero amount",
			txn: &domain.Transaction{
				Type: domain.TransactionTypeCredit, Amount: dec("0"), Description: "d", Reference: "r",
				Status: domain.TransactionStatusCompleted,
			},
			wantCode: "WAL_001",
		},
		{
			name: "negative amount",
			txn: &domain.Transaction{
				Type: domain.TransactionTypeCredit, Amount: dec("-5"), Description: "d", Reference: "r",
				Status: domain.TransactionStatusCompleted,
			},
			wantCode: "WAL_001",
		},
		{
			name: "blank reference",
			txn: &domain.Transaction{
				Type: domain.TransactionTypeCredit, Amount: dec("10"), Description: "d", Reference: "  ",
				Status: domain.TransactionStatusCompleted,
			},
			wantCode: "WAL_002",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := l.Append(ctx, tx, walletID, tt.txn)
			assertAppError(t, err, tt.wantCode)
		})
	}
}
