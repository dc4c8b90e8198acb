package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const getPlanQuotaLimit = `
SELECT id, plan_type, quota_type, monthly_limit, daily_limit
FROM plan_quota_limits
WHERE plan_type = $1 AND quota_type = $2
`

type GetPlanQuotaLimitParams struct {
	PlanType  string
	QuotaType string
}

// GetPlanQuotaLimit returns the static limit row for (plan, category).
// A missing row is a seed defect and surfaces as sql.ErrNoRows.
func (q *Queries) GetPlanQuotaLimit(ctx context.Context, arg GetPlanQuotaLimitParams) (PlanQuotaLimit, error) {
	row := q.db.QueryRowContext(ctx, getPlanQuotaLimit, arg.PlanType, arg.QuotaType)
	var i PlanQuotaLimit
	err := row.Scan(&i.ID, &i.PlanType, &i.QuotaType, &i.MonthlyLimit, &i.DailyLimit)
	return i, err
}

const getUserQuota = `
SELECT id, user_id, quota_type, plan_type, monthly_used, daily_used,
       monthly_limit, daily_limit, reset_monthly_at, reset_daily_at, updated_at
FROM user_quotas
WHERE user_id = $1 AND quota_type = $2
`

type GetUserQuotaParams struct {
	UserID    uuid.UUID
	QuotaType string
}

// GetUserQuota returns the ledger row for (user, category).
func (q *Queries) GetUserQuota(ctx context.Context, arg GetUserQuotaParams) (UserQuota, error) {
	row := q.db.QueryRowContext(ctx, getUserQuota, arg.UserID, arg.QuotaType)
	return scanUserQuota(row)
}

const createUserQuota = `
INSERT INTO user_quotas (
  id, user_id, quota_type, plan_type, monthly_used, daily_used,
  monthly_limit, daily_limit, reset_monthly_at, reset_daily_at
) VALUES ($1, $2, $3, $4, 0, 0, $5, $6, $7, $8)
ON CONFLICT (user_id, quota_type) DO UPDATE SET updated_at = now()
RETURNING id, user_id, quota_type, plan_type, monthly_used, daily_used,
          monthly_limit, daily_limit, reset_monthly_at, reset_daily_at, updated_at
`

type CreateUserQuotaParams struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	QuotaType      string
	PlanType       string
	MonthlyLimit   int32
	DailyLimit     int32
	ResetMonthlyAt time.Time
	ResetDailyAt   time.Time
}

// CreateUserQuota lazily creates a ledger row with zero usage. Two
// concurrent first checks race on the unique (user_id, quota_type) key; the
// conflict clause makes the loser observe the winner's row instead of
// failing.
func (q *Queries) CreateUserQuota(ctx context.Context, arg CreateUserQuotaParams) (UserQuota, error) {
	row := q.db.QueryRowContext(ctx, createUserQuota,
		arg.ID, arg.UserID, arg.QuotaType, arg.PlanType,
		arg.MonthlyLimit, arg.DailyLimit, arg.ResetMonthlyAt, arg.ResetDailyAt)
	return scanUserQuota(row)
}

const rolloverUserQuota = `
UPDATE user_quotas
SET monthly_used = $3, daily_used = $4,
    reset_monthly_at = $5, reset_daily_at = $6, updated_at = now()
WHERE user_id = $1 AND quota_type = $2
RETURNING id, user_id, quota_type, plan_type, monthly_used, daily_used,
          monthly_limit, daily_limit, reset_monthly_at, reset_daily_at, updated_at
`

type RolloverUserQuotaParams struct {
	UserID         uuid.UUID
	QuotaType      string
	MonthlyUsed    int32
	DailyUsed      int32
	ResetMonthlyAt time.Time
	ResetDailyAt   time.Time
}

// RolloverUserQuota persists elapsed-window counter resets before the
// usability verdict is computed (write-then-check).
func (q *Queries) RolloverUserQuota(ctx context.Context, arg RolloverUserQuotaParams) (UserQuota, error) {
	row := q.db.QueryRowContext(ctx, rolloverUserQuota,
		arg.UserID, arg.QuotaType, arg.MonthlyUsed, arg.DailyUsed,
		arg.ResetMonthlyAt, arg.ResetDailyAt)
	return scanUserQuota(row)
}

const consumeUserQuota = `
UPDATE user_quotas
SET monthly_used = monthly_used + $3,
    daily_used = daily_used + $3,
    updated_at = now()
WHERE user_id = $1 AND quota_type = $2
  AND monthly_used + $3 <= monthly_limit
  AND (daily_limit <= 0 OR daily_used + $3 <= daily_limit)
RETURNING id, user_id, quota_type, plan_type, monthly_used, daily_used,
          monthly_limit, daily_limit, reset_monthly_at, reset_daily_at, updated_at
`

type ConsumeUserQuotaParams struct {
	UserID    uuid.UUID
	QuotaType string
	Amount    int32
}

// ConsumeUserQuota increments both usage counters only if headroom remains
// for the full amount. The conditional update makes concurrent consumption
// of the same ledger row safe: a loser matches zero rows and gets
// sql.ErrNoRows instead of pushing usage past the limit.
func (q *Queries) ConsumeUserQuota(ctx context.Context, arg ConsumeUserQuotaParams) (UserQuota, error) {
	row := q.db.QueryRowContext(ctx, consumeUserQuota, arg.UserID, arg.QuotaType, arg.Amount)
	return scanUserQuota(row)
}

const resetUserQuota = `
INSERT INTO user_quotas (
  id, user_id, quota_type, plan_type, monthly_used, daily_used,
  monthly_limit, daily_limit, reset_monthly_at, reset_daily_at
) VALUES ($1, $2, $3, $4, 0, 0, $5, $6, $7, $8)
ON CONFLICT (user_id, quota_type) DO UPDATE SET
  plan_type = EXCLUDED.plan_type,
  monthly_used = 0,
  daily_used = 0,
  monthly_limit = EXCLUDED.monthly_limit,
  daily_limit = EXCLUDED.daily_limit,
  reset_monthly_at = EXCLUDED.reset_monthly_at,
  reset_daily_at = EXCLUDED.reset_daily_at,
  updated_at = now()
RETURNING id, user_id, quota_type, plan_type, monthly_used, daily_used,
          monthly_limit, daily_limit, reset_monthly_at, reset_daily_at, updated_at
`

type ResetUserQuotaParams struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	QuotaType      string
	PlanType       string
	MonthlyLimit   int32
	DailyLimit     int32
	ResetMonthlyAt time.Time
	ResetDailyAt   time.Time
}

// ResetUserQuota overwrites a ledger row with a fresh allotment for the
// given plan: zero usage, new limits, new reset timestamps. This upsert is
// the only path that rewrites a row's limits after creation.
func (q *Queries) ResetUserQuota(ctx context.Context, arg ResetUserQuotaParams) (UserQuota, error) {
	row := q.db.QueryRowContext(ctx, resetUserQuota,
		arg.ID, arg.UserID, arg.QuotaType, arg.PlanType,
		arg.MonthlyLimit, arg.DailyLimit, arg.ResetMonthlyAt, arg.ResetDailyAt)
	return scanUserQuota(row)
}

const listUserQuotas = `
SELECT id, user_id, quota_type, plan_type, monthly_used, daily_used,
       monthly_limit, daily_limit, reset_monthly_at, reset_daily_at, updated_at
FROM user_quotas
WHERE user_id = $1
ORDER BY quota_type
`

// ListUserQuotas returns every ledger row for a user, for admin inspection.
func (q *Queries) ListUserQuotas(ctx context.Context, userID uuid.UUID) ([]UserQuota, error) {
	rows, err := q.db.QueryContext(ctx, listUserQuotas, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []UserQuota
	for rows.Next() {
		var i UserQuota
		if err := rows.Scan(
			&i.ID, &i.UserID, &i.QuotaType, &i.PlanType,
			&i.MonthlyUsed, &i.DailyUsed, &i.MonthlyLimit, &i.DailyLimit,
			&i.ResetMonthlyAt, &i.ResetDailyAt, &i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserQuota(row rowScanner) (UserQuota, error) {
	var i UserQuota
	err := row.Scan(
		&i.ID, &i.UserID, &i.QuotaType, &i.PlanType,
		&i.MonthlyUsed, &i.DailyUsed, &i.MonthlyLimit, &i.DailyLimit,
		&i.ResetMonthlyAt, &i.ResetDailyAt, &i.UpdatedAt,
	)
	return i, err
}
