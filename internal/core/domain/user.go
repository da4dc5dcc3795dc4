package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Role is the closed set of principal roles. The original system passed
// free-form role strings around with inconsistent casing; roles are
// normalized exactly once at the authorization gate via ParseRole.
type Role string

const (
	RoleMCP           Role = "MCP"
	RolePickupPartner Role = "PICKUP_PARTNER"
	RoleCustomer      Role = "CUSTOMER"
)

// ParseRole normalizes the role spellings observed at the boundary.
// Returns false for anything outside the closed set.
func ParseRole(s string) (Role, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MCP":
		return RoleMCP, true
	case "PICKUP_PARTNER", "PICKUPPARTNER", "PARTNER":
		return RolePickupPartner, true
	case "CUSTOMER":
		return RoleCustomer, true
	default:
		return "", false
	}
}

// UserStatus is the account state of a user.
type UserStatus string

const (
	UserStatusActive   UserStatus = "ACTIVE"
	UserStatusInactive UserStatus = "INACTIVE"
)

// User is the minimal account record the core needs: identity, role and,
// for pickup partners, the MCP they belong to.
type User struct {
	ID     uuid.UUID  `json:"id"`
	Name   string     `json:"name"`
	Email  string     `json:"email"`
	Role   Role       `json:"role"`
	Status UserStatus `json:"status"`
	MCPID  *uuid.UUID `json:"mcp_id,omitempty"`
}

// IsAssignablePartner reports whether u can be assigned orders by mcpID:
// an ACTIVE pickup partner belonging to that MCP.
func (u *User) IsAssignablePartner(mcpID uuid.UUID) bool {
	return u.Role == RolePickupPartner &&
		u.Status == UserStatusActive &&
		u.MCPID != nil && *u.MCPID == mcpID
}

// Principal is the verified caller identity supplied by the authorization
// gate. The core trusts it but still re-validates ownership chains.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}
