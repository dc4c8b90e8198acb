package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// User is a row of the users table.
type User struct {
	ID                 uuid.UUID
	Email              string
	PasswordHash       string
	Name               sql.NullString
	StripeCustomerID   sql.NullString
	SubscriptionStatus string
	SubscriptionID     sql.NullString
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Session is a row of the sessions table.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// RoleAssignment is a row of the role_assignments table. A partial unique
// index guarantees at most one active row per user.
type RoleAssignment struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Role      string
	IsActive  bool
	GrantedAt time.Time
	UpdatedAt time.Time
}

// PlanQuotaLimit is a row of the plan_quota_limits reference table,
// seeded by migration and immutable at runtime.
type PlanQuotaLimit struct {
	ID           int32
	PlanType     string
	QuotaType    string
	MonthlyLimit int32
	DailyLimit   int32
}

// UserQuota is a ledger row: per-(user, category) usage counters with
// denormalized limit snapshots and reset timestamps.
type UserQuota struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	QuotaType      string
	PlanType       string
	MonthlyUsed    int32
	DailyUsed      int32
	MonthlyLimit   int32
	DailyLimit     int32
	ResetMonthlyAt time.Time
	ResetDailyAt   time.Time
	UpdatedAt      time.Time
}

// CheckRecord is a row of the check_history table.
type CheckRecord struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	CheckType    string
	TargetDomain string
	Summary      string
	CreatedAt    time.Time
}
