package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
// Callers branch on Code rather than string-matching messages.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// CodeOf extracts the AppError code from err, or "" if err is not an AppError.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Error codes. WAL = wallet/ledger, ORD = order lifecycle, SYS = infrastructure.
const (
	CodeInvalidAmount          = "WAL_001"
	CodeInvalidTransaction     = "WAL_002"
	CodeInsufficientBalance    = "WAL_003"
	CodeWalletNotFound         = "WAL_004"
	CodeDuplicateReference     = "WAL_005"
	CodeTransactionNotFound    = "WAL_006"
	CodeInvalidPartner         = "ORD_001"
	CodeUnauthorized           = "ORD_002"
	CodeInvalidStateTransition = "ORD_003"
	CodeOrderNotFound          = "ORD_004"
	CodeStaleWrite             = "ORD_005"
	CodeSettlementFailed       = "ORD_006"
	CodeInternal               = "SYS_001"
	CodeInvalidToken           = "AUTH_001"
)

// ---- Authorization gate (AUTH) ----

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Wallet & Ledger (WAL) ----

func ErrInvalidAmount() *AppError {
	return New(CodeInvalidAmount, "Amount must be greater than zero", http.StatusBadRequest)
}

func ErrInvalidTransaction(reason string) *AppError {
	return New(CodeInvalidTransaction, fmt.Sprintf("Invalid transaction: %s", reason), http.StatusBadRequest)
}

func ErrInsufficientBalance() *AppError {
	return New(CodeInsufficientBalance, "Insufficient wallet balance", http.StatusPaymentRequired)
}

func ErrWalletNotFound() *AppError {
	return New(CodeWalletNotFound, "Wallet not found", http.StatusNotFound)
}

func ErrDuplicateReference(reference string) *AppError {
	return New(CodeDuplicateReference, fmt.Sprintf("Reference %q already used on this wallet", reference), http.StatusConflict)
}

func ErrTransactionNotFound() *AppError {
	return New(CodeTransactionNotFound, "Transaction not found", http.StatusNotFound)
}

// ---- Order Lifecycle (ORD) ----

func ErrInvalidPartner() *AppError {
	return New(CodeInvalidPartner, "Target user is not an active pickup partner of this MCP", http.StatusUnprocessableEntity)
}

func ErrUnauthorized() *AppError {
	return New(CodeUnauthorized, "Caller is not authorized for this transition", http.StatusForbidden)
}

func ErrInvalidStateTransition(from string, event string) *AppError {
	return New(CodeInvalidStateTransition, fmt.Sprintf("Cannot apply %q to an order in state %s", event, from), http.StatusConflict)
}

func ErrOrderNotFound() *AppError {
	return New(CodeOrderNotFound, "Order not found", http.StatusNotFound)
}

func ErrStaleWrite() *AppError {
	return New(CodeStaleWrite, "Order was modified concurrently, retry the operation", http.StatusConflict)
}

func ErrSettlementFailed(err error) *AppError {
	return Wrap(CodeSettlementFailed, "Order settlement failed, transition aborted", http.StatusConflict, err)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an infrastructure failure. Distinct from business-rule
// errors so callers can tell "retry later" from "this request is invalid".
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request-validation error.
func Validation(message string) *AppError {
	return New(CodeInvalidTransaction, message, http.StatusBadRequest)
}
