package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("WAL_003", "Insufficient wallet balance", http.StatusPaymentRequired),
			expected: "[WAL_003] Insufficient wallet balance",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_001", "DB error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[SYS_001] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap(CodeInternal, "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_IsNilUnwrap(t *testing.T) {
	appErr := New(CodeInvalidAmount, "test", http.StatusBadRequest)
	assert.Nil(t, appErr.Unwrap())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeInsufficientBalance, CodeOf(ErrInsufficientBalance()))
	assert.Equal(t, CodeInsufficientBalance, CodeOf(fmt.Errorf("during transfer: %w", ErrInsufficientBalance())))
	assert.Equal(t, "", CodeOf(fmt.Errorf("plain error")))
	assert.Equal(t, "", CodeOf(nil))
}

func TestWalletErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"InvalidAmount", ErrInvalidAmount(), CodeInvalidAmount, 400},
		{"InvalidTransaction", ErrInvalidTransaction("missing reference"), CodeInvalidTransaction, 400},
		{"InsufficientBalance", ErrInsufficientBalance(), CodeInsufficientBalance, 402},
		{"WalletNotFound", ErrWalletNotFound(), CodeWalletNotFound, 404},
		{"DuplicateReference", ErrDuplicateReference("TRF-1"), CodeDuplicateReference, 409},
		{"TransactionNotFound", ErrTransactionNotFound(), CodeTransactionNotFound, 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestOrderErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"InvalidPartner", ErrInvalidPartner(), CodeInvalidPartner, 422},
		{"Unauthorized", ErrUnauthorized(), CodeUnauthorized, 403},
		{"InvalidStateTransition", ErrInvalidStateTransition("PENDING", "complete"), CodeInvalidStateTransition, 409},
		{"OrderNotFound", ErrOrderNotFound(), CodeOrderNotFound, 404},
		{"StaleWrite", ErrStaleWrite(), CodeStaleWrite, 409},
		{"SettlementFailed", ErrSettlementFailed(fmt.Errorf("insufficient")), CodeSettlementFailed, 409},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestSettlementFailed_WrapsCause(t *testing.T) {
	cause := ErrInsufficientBalance()
	err := ErrSettlementFailed(cause)
	assert.True(t, errors.Is(err, cause))
}
