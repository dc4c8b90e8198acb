// Package domain contains core business types and interfaces.
//
// This file defines roles and the role-to-plan mapping that governs
// quota limit lookup.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies a user's access level.
type Role string

const (
	RoleFree  Role = "free"
	RoleUser  Role = "user"
	RolePro   Role = "pro"
	RoleSuper Role = "super"
	RoleAdmin Role = "admin"
)

// ParseRole normalizes and validates a role string.
// Parsing is case-insensitive because historical role rows were written
// with mixed casing.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleFree:
		return RoleFree, true
	case RoleUser:
		return RoleUser, true
	case RolePro:
		return RolePro, true
	case RoleSuper:
		return RoleSuper, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// PlanType returns the billing plan that governs quota limits for the role.
func (r Role) PlanType() PlanType {
	switch r {
	case RoleUser, RolePro:
		return PlanPro
	case RoleSuper, RoleAdmin:
		return PlanSuper
	default:
		return PlanFree
	}
}

// IsAdmin reports whether the role bypasses quota accounting entirely.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// RoleAssignment is a persisted role grant. At most one active assignment
// exists per user, enforced by a partial unique index at the storage layer.
type RoleAssignment struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Role      Role
	IsActive  bool
	GrantedAt time.Time
	UpdatedAt time.Time
}
