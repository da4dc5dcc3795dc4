package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the state of an order in its lifecycle.
// COMPLETED and CANCELLED are terminal.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusAssigned   OrderStatus = "ASSIGNED"
	OrderStatusInProgress OrderStatus = "IN_PROGRESS"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// PaymentStatus tracks the settlement of a completed order.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// OrderEventType names the lifecycle events an actor can apply to an order.
type OrderEventType string

const (
	OrderEventAssign   OrderEventType = "assign"
	OrderEventAccept   OrderEventType = "accept"
	OrderEventReject   OrderEventType = "reject"
	OrderEventComplete OrderEventType = "complete"
	OrderEventCancel   OrderEventType = "cancel"
)

// OrderEvent is a lifecycle event together with its parameters.
// PartnerID is required for assign, ignored otherwise.
type OrderEvent struct {
	Type      OrderEventType
	PartnerID uuid.UUID
	Note      string
}

// StatusChange is one append-only audit entry in an order's history.
type StatusChange struct {
	Status    OrderStatus `json:"status"`
	Note      string      `json:"note,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Order is a pickup job created by an MCP and fulfilled by a pickup partner.
// PickupPartnerID is set iff status is ASSIGNED, IN_PROGRESS or COMPLETED.
type Order struct {
	ID              uuid.UUID       `json:"id"`
	MCPID           uuid.UUID       `json:"mcp_id"`
	CustomerID      uuid.UUID       `json:"customer_id"`
	PickupPartnerID *uuid.UUID      `json:"pickup_partner_id,omitempty"`
	Status          OrderStatus     `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	Commission      decimal.Decimal `json:"commission"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	StatusHistory   []StatusChange  `json:"status_history"`
	Note            string          `json:"note,omitempty"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// NewOrder creates a PENDING order with its initial history entry.
func NewOrder(mcpID, customerID uuid.UUID, amount, commission decimal.Decimal, note string) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:            uuid.New(),
		MCPID:         mcpID,
		CustomerID:    customerID,
		Status:        OrderStatusPending,
		Amount:        amount,
		Commission:    commission,
		PaymentStatus: PaymentStatusPending,
		StatusHistory: []StatusChange{{Status: OrderStatusPending, Note: note, CreatedAt: now}},
		Note:          note,
		Version:       1,
		CreatedAt:     now,
	}
}

// Advance moves the order to the given status and appends the audit entry.
// It does not validate the transition; the lifecycle engine owns the table.
func (o *Order) Advance(status OrderStatus, note string) StatusChange {
	now := time.Now().UTC()
	change := StatusChange{Status: status, Note: note, CreatedAt: now}
	o.Status = status
	o.StatusHistory = append(o.StatusHistory, change)
	if status == OrderStatusCompleted {
		o.CompletedAt = &now
	}
	return change
}
