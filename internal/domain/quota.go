// Package domain contains core business types and interfaces.
//
// This file defines the quota model: billable check categories, plan types,
// the static guest table, and the check/consume result snapshots.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// QuotaType identifies a billable check category.
type QuotaType string

const (
	QuotaTypeDRCheck       QuotaType = "dr_check"
	QuotaTypeTrafficCheck  QuotaType = "traffic_check"
	QuotaTypeBacklinkCheck QuotaType = "backlink_check"
	QuotaTypeBacklinkView  QuotaType = "backlink_view"
)

// ParseQuotaType normalizes and validates a quota category string.
// Both "dr_check" and "dr-check" spellings are accepted on the wire.
func ParseQuotaType(s string) (QuotaType, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch QuotaType(normalized) {
	case QuotaTypeDRCheck:
		return QuotaTypeDRCheck, true
	case QuotaTypeTrafficCheck:
		return QuotaTypeTrafficCheck, true
	case QuotaTypeBacklinkCheck:
		return QuotaTypeBacklinkCheck, true
	case QuotaTypeBacklinkView:
		return QuotaTypeBacklinkView, true
	}
	return "", false
}

// QuotaTypes lists every category in a fixed order, used by the plan-change
// reset path and the dashboard.
var QuotaTypes = []QuotaType{
	QuotaTypeDRCheck,
	QuotaTypeTrafficCheck,
	QuotaTypeBacklinkCheck,
	QuotaTypeBacklinkView,
}

// PlanType is the billing plan derived from a user's role.
type PlanType string

const (
	PlanFree  PlanType = "free"
	PlanPro   PlanType = "pro"
	PlanSuper PlanType = "super"
)

// GuestUserID is the sentinel userId for unauthenticated checks. Guest quota
// is advisory only: the server always reports canUse=true and never persists
// guest usage.
const GuestUserID = "guest"

// AdminQuotaLimit is the limit reported for admin users. Admins bypass the
// ledger entirely; this value only appears in response snapshots.
const AdminQuotaLimit = 999999

// QuotaAllotment is a {monthly, daily} limit pair. A zero daily limit means
// no daily ceiling.
type QuotaAllotment struct {
	MonthlyLimit int32
	DailyLimit   int32
}

// GuestQuotas is the static guest limit table. Guest usage is tracked
// client-side; these limits are returned for display only.
var GuestQuotas = map[QuotaType]QuotaAllotment{
	QuotaTypeDRCheck:       {MonthlyLimit: 5, DailyLimit: 2},
	QuotaTypeTrafficCheck:  {MonthlyLimit: 5, DailyLimit: 2},
	QuotaTypeBacklinkCheck: {MonthlyLimit: 3, DailyLimit: 1},
	QuotaTypeBacklinkView:  {MonthlyLimit: 10, DailyLimit: 5},
}

// PlanAllotments is the fixed per-plan quota table used by the plan-change
// reset path. The seeded plan_quota_limits rows mirror these values; the
// reset path deliberately uses literals so a billing event always restores
// the canonical allotment even if reference rows drift.
var PlanAllotments = map[PlanType]map[QuotaType]QuotaAllotment{
	PlanFree: {
		QuotaTypeDRCheck:       {MonthlyLimit: 10, DailyLimit: 5},
		QuotaTypeTrafficCheck:  {MonthlyLimit: 10, DailyLimit: 10},
		QuotaTypeBacklinkCheck: {MonthlyLimit: 10, DailyLimit: 5},
		QuotaTypeBacklinkView:  {MonthlyLimit: 50, DailyLimit: 20},
	},
	PlanPro: {
		QuotaTypeDRCheck:       {MonthlyLimit: 500, DailyLimit: 50},
		QuotaTypeTrafficCheck:  {MonthlyLimit: 500, DailyLimit: 50},
		QuotaTypeBacklinkCheck: {MonthlyLimit: 500, DailyLimit: 50},
		QuotaTypeBacklinkView:  {MonthlyLimit: 2000, DailyLimit: 200},
	},
	PlanSuper: {
		QuotaTypeDRCheck:       {MonthlyLimit: 5000, DailyLimit: 0},
		QuotaTypeTrafficCheck:  {MonthlyLimit: 5000, DailyLimit: 0},
		QuotaTypeBacklinkCheck: {MonthlyLimit: 5000, DailyLimit: 0},
		QuotaTypeBacklinkView:  {MonthlyLimit: 20000, DailyLimit: 0},
	},
}

// CheckResult is the usability snapshot returned by a quota check.
type CheckResult struct {
	CanUse         bool
	MonthlyUsed    int32
	MonthlyLimit   int32
	DailyUsed      int32
	DailyLimit     int32
	PlanType       PlanType
	ResetMonthlyAt time.Time
	ResetDailyAt   time.Time
	IsGuest        bool
	IsAdmin        bool
}

// RemainingQuota returns the headroom available for a single consume call:
// the smaller of the monthly and daily remainders. A zero daily limit
// imposes no daily ceiling.
func (r *CheckResult) RemainingQuota() int32 {
	remaining := r.MonthlyLimit - r.MonthlyUsed
	if r.DailyLimit > 0 {
		if daily := r.DailyLimit - r.DailyUsed; daily < remaining {
			remaining = daily
		}
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// ConsumeResult is returned by a successful quota consumption.
type ConsumeResult struct {
	Consumed         int32
	MonthlyUsed      int32
	MonthlyLimit     int32
	DailyUsed        int32
	DailyLimit       int32
	RemainingMonthly int32
	RemainingDaily   int32
	PlanType         PlanType
	IsGuest          bool
	IsAdmin          bool
}

// Quota denial reasons. "Exceeded" means the checker already reports no
// headroom; "insufficient" means there is some headroom but less than the
// requested amount. Both are user-actionable (wait for reset or upgrade),
// never retryable as-is.
const (
	QuotaDenyExceeded     = "quota exceeded"
	QuotaDenyInsufficient = "insufficient quota"
)

// QuotaDeniedError is a business-rule rejection carrying the checker
// snapshot so callers can render remaining/used without a second round trip.
type QuotaDeniedError struct {
	Reason   string
	Snapshot CheckResult
}

func (e *QuotaDeniedError) Error() string {
	return fmt.Sprintf("%s: %d/%d monthly, %d/%d daily",
		e.Reason, e.Snapshot.MonthlyUsed, e.Snapshot.MonthlyLimit,
		e.Snapshot.DailyUsed, e.Snapshot.DailyLimit)
}

// QuotaExceeded creates a denial for a caller with no headroom.
func QuotaExceeded(snapshot CheckResult) *QuotaDeniedError {
	return &QuotaDeniedError{Reason: QuotaDenyExceeded, Snapshot: snapshot}
}

// InsufficientQuota creates a denial for a request larger than the
// remaining headroom.
func InsufficientQuota(snapshot CheckResult) *QuotaDeniedError {
	return &QuotaDeniedError{Reason: QuotaDenyInsufficient, Snapshot: snapshot}
}
