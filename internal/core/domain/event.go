package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType names the outbound notification events the core produces.
type EventType string

const (
	EventOrderStatusUpdated EventType = "orderStatusUpdated"
	EventLowBalanceAlert    EventType = "lowBalanceAlert"
)

// Event is a JSON-serializable notification delivered to a role-keyed room.
// Delivery is the sink's problem; the core only produces well-formed events.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// OrderStatusPayload is the payload of an orderStatusUpdated event.
type OrderStatusPayload struct {
	OrderID   uuid.UUID   `json:"orderId"`
	NewStatus OrderStatus `json:"newStatus"`
	ActorID   uuid.UUID   `json:"actorId"`
	MCPID     uuid.UUID   `json:"mcpId"`
}

// LowBalancePayload is the payload of a lowBalanceAlert event.
type LowBalancePayload struct {
	OwnerID uuid.UUID       `json:"ownerId"`
	Balance decimal.Decimal `json:"balance"`
}

// MCPRoom returns the notification room for an MCP.
func MCPRoom(id uuid.UUID) string { return fmt.Sprintf("mcp-%s", id) }

// PartnerRoom returns the notification room for a pickup partner.
func PartnerRoom(id uuid.UUID) string { return fmt.Sprintf("partner-%s", id) }

// RoomFor returns the notification room for an arbitrary principal.
func RoomFor(role Role, id uuid.UUID) string {
	switch role {
	case RolePickupPartner:
		return PartnerRoom(id)
	default:
		return MCPRoom(id)
	}
}
