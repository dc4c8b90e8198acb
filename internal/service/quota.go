// Package service contains the business logic layer.
//
// This file implements quota checking, consumption, and the plan-change
// reset. All quota state lives in the user_quotas ledger; there is no
// in-process cache, so concurrent requests coordinate only through the
// database. Consumption uses a conditional increment so concurrent consume
// calls for the same (user, category) cannot push usage past the limit.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ranklens-io/ranklens/internal/domain"
	"github.com/ranklens-io/ranklens/internal/metrics"
	"github.com/ranklens-io/ranklens/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// QuotaService defines the quota accounting operations.
type QuotaService interface {
	// Check reports whether the user has headroom for the category,
	// applying any elapsed time-window rollover first. userID may be the
	// guest sentinel.
	Check(ctx context.Context, userID string, quotaType domain.QuotaType) (*domain.CheckResult, error)

	// Consume decrements headroom by amount after re-checking usability.
	// Denials are returned as *domain.QuotaDeniedError carrying the
	// checker snapshot.
	Consume(ctx context.Context, userID string, quotaType domain.QuotaType, amount int32) (*domain.ConsumeResult, error)

	// ResetForPlan overwrites every ledger row for the user with the
	// plan's fresh allotment. Invoked on billing lifecycle events.
	ResetForPlan(ctx context.Context, userID uuid.UUID, plan domain.PlanType) error
}

// QuotaStore is the subset of repository queries used by the quota service.
type QuotaStore interface {
	GetPlanQuotaLimit(ctx context.Context, arg repository.GetPlanQuotaLimitParams) (repository.PlanQuotaLimit, error)
	GetUserQuota(ctx context.Context, arg repository.GetUserQuotaParams) (repository.UserQuota, error)
	CreateUserQuota(ctx context.Context, arg repository.CreateUserQuotaParams) (repository.UserQuota, error)
	RolloverUserQuota(ctx context.Context, arg repository.RolloverUserQuotaParams) (repository.UserQuota, error)
	ConsumeUserQuota(ctx context.Context, arg repository.ConsumeUserQuotaParams) (repository.UserQuota, error)
	ResetUserQuota(ctx context.Context, arg repository.ResetUserQuotaParams) (repository.UserQuota, error)
}

// =============================================================================
// Implementation
// =============================================================================

type quotaService struct {
	store  QuotaStore
	roles  RoleService
	logger *slog.Logger
	now    func() time.Time // swappable for rollover tests
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(store QuotaStore, roles RoleService, logger *slog.Logger) QuotaService {
	return &quotaService{
		store:  store,
		roles:  roles,
		logger: logger,
		now:    time.Now,
	}
}

// Check resolves the user's plan, loads or creates the ledger row, rolls
// over elapsed windows, and returns the usability snapshot.
func (s *quotaService) Check(ctx context.Context, userID string, quotaType domain.QuotaType) (*domain.CheckResult, error) {
	const op = "quota.check"

	metrics.QuotaChecksTotal.WithLabelValues(string(quotaType)).Inc()

	now := s.now().UTC()
	if userID == domain.GuestUserID {
		return guestCheck(quotaType, now), nil
	}

	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, domain.Invalid(op, "invalid user ID")
	}

	role := s.roles.Resolve(ctx, uid)
	plan := role.PlanType()

	// Admin usage is never recorded; short-circuit before touching the
	// ledger.
	if role.IsAdmin() {
		return &domain.CheckResult{
			CanUse:         true,
			MonthlyLimit:   domain.AdminQuotaLimit,
			DailyLimit:     domain.AdminQuotaLimit,
			PlanType:       plan,
			ResetMonthlyAt: startOfNextMonth(now),
			ResetDailyAt:   now.Add(24 * time.Hour),
			IsAdmin:        true,
		}, nil
	}

	limit, err := s.store.GetPlanQuotaLimit(ctx, repository.GetPlanQuotaLimitParams{
		PlanType:  string(plan),
		QuotaType: string(quotaType),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A missing plan limit row means the seed data is broken.
			// Surface it rather than inventing a default.
			return nil, domain.Errorf(domain.ENOTFOUND, op,
				"plan quota not found for plan %q and type %q", plan, quotaType)
		}
		return nil, domain.Internal(err, op, "failed to load plan quota limit")
	}

	row, err := s.store.GetUserQuota(ctx, repository.GetUserQuotaParams{
		UserID:    uid,
		QuotaType: string(quotaType),
	})
	if errors.Is(err, sql.ErrNoRows) {
		// Lazy create: zero usage, limits copied from the plan table. A
		// freshly created row always has headroom.
		row, err = s.store.CreateUserQuota(ctx, repository.CreateUserQuotaParams{
			ID:             uuid.New(),
			UserID:         uid,
			QuotaType:      string(quotaType),
			PlanType:       string(plan),
			MonthlyLimit:   limit.MonthlyLimit,
			DailyLimit:     limit.DailyLimit,
			ResetMonthlyAt: startOfNextMonth(now),
			ResetDailyAt:   now.Add(24 * time.Hour),
		})
		if err != nil {
			return nil, domain.Internal(err, op, "failed to create quota ledger row")
		}
		return resultFromRow(row, role), nil
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load quota ledger row")
	}

	// Roll over each elapsed window independently, then persist before
	// evaluating usability so the verdict never reads stale counts.
	changed := false
	if !now.Before(row.ResetMonthlyAt) {
		row.MonthlyUsed = 0
		row.ResetMonthlyAt = startOfNextMonth(now)
		changed = true
	}
	if !now.Before(row.ResetDailyAt) {
		row.DailyUsed = 0
		row.ResetDailyAt = now.Add(24 * time.Hour)
		changed = true
	}
	if changed {
		row, err = s.store.RolloverUserQuota(ctx, repository.RolloverUserQuotaParams{
			UserID:         uid,
			QuotaType:      string(quotaType),
			MonthlyUsed:    row.MonthlyUsed,
			DailyUsed:      row.DailyUsed,
			ResetMonthlyAt: row.ResetMonthlyAt,
			ResetDailyAt:   row.ResetDailyAt,
		})
		if err != nil {
			return nil, domain.Internal(err, op, "failed to persist quota rollover")
		}
	}

	return resultFromRow(row, role), nil
}

// Consume re-checks usability, verifies headroom for the requested amount,
// then performs a conditional increment.
func (s *quotaService) Consume(ctx context.Context, userID string, quotaType domain.QuotaType, amount int32) (*domain.ConsumeResult, error) {
	const op = "quota.consume"

	if amount <= 0 {
		return nil, domain.Invalid(op, "amount must be positive")
	}

	check, err := s.Check(ctx, userID, quotaType)
	if err != nil {
		return nil, err
	}

	// Guest consumption is a no-op: the client tracks its own usage.
	if check.IsGuest {
		return &domain.ConsumeResult{
			Consumed:         amount,
			MonthlyLimit:     check.MonthlyLimit,
			DailyLimit:       check.DailyLimit,
			RemainingMonthly: check.MonthlyLimit,
			RemainingDaily:   check.DailyLimit,
			PlanType:         check.PlanType,
			IsGuest:          true,
		}, nil
	}

	if check.IsAdmin {
		return &domain.ConsumeResult{
			Consumed:         amount,
			MonthlyLimit:     check.MonthlyLimit,
			DailyLimit:       check.DailyLimit,
			RemainingMonthly: check.MonthlyLimit,
			RemainingDaily:   check.DailyLimit,
			PlanType:         check.PlanType,
			IsAdmin:          true,
		}, nil
	}

	if !check.CanUse {
		metrics.QuotaDenialsTotal.WithLabelValues(string(quotaType), "exceeded").Inc()
		return nil, domain.QuotaExceeded(*check)
	}
	if check.RemainingQuota() < amount {
		metrics.QuotaDenialsTotal.WithLabelValues(string(quotaType), "insufficient").Inc()
		return nil, domain.InsufficientQuota(*check)
	}

	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, domain.Invalid(op, "invalid user ID")
	}

	row, err := s.store.ConsumeUserQuota(ctx, repository.ConsumeUserQuotaParams{
		UserID:    uid,
		QuotaType: string(quotaType),
		Amount:    amount,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A concurrent consumer took the remaining headroom between
			// the check and the increment.
			s.logger.Info("concurrent quota consumption lost",
				"user_id", uid, "quota_type", quotaType, "amount", amount)
			metrics.QuotaDenialsTotal.WithLabelValues(string(quotaType), "exceeded").Inc()
			return nil, domain.QuotaExceeded(*check)
		}
		return nil, domain.Internal(err, op, "failed to record quota consumption")
	}

	metrics.QuotaConsumedTotal.WithLabelValues(string(quotaType)).Add(float64(amount))

	remainingDaily := row.DailyLimit - row.DailyUsed
	if row.DailyLimit <= 0 {
		// No daily ceiling on this plan. Echo the monthly remainder so
		// the field never reads as "nothing left today".
		remainingDaily = row.MonthlyLimit - row.MonthlyUsed
	}
	return &domain.ConsumeResult{
		Consumed:         amount,
		MonthlyUsed:      row.MonthlyUsed,
		MonthlyLimit:     row.MonthlyLimit,
		DailyUsed:        row.DailyUsed,
		DailyLimit:       row.DailyLimit,
		RemainingMonthly: row.MonthlyLimit - row.MonthlyUsed,
		RemainingDaily:   remainingDaily,
		PlanType:         check.PlanType,
	}, nil
}

// ResetForPlan upserts a fresh allotment for every category: zero usage,
// the plan's literal limits, and a reset date one calendar month out.
func (s *quotaService) ResetForPlan(ctx context.Context, userID uuid.UUID, plan domain.PlanType) error {
	const op = "quota.reset_for_plan"

	allotments, ok := domain.PlanAllotments[plan]
	if !ok {
		return domain.Invalid(op, "unknown plan type")
	}

	now := s.now().UTC()
	resetMonthly := now.AddDate(0, 1, 0)
	resetDaily := now.Add(24 * time.Hour)

	for _, quotaType := range domain.QuotaTypes {
		allotment := allotments[quotaType]
		if _, err := s.store.ResetUserQuota(ctx, repository.ResetUserQuotaParams{
			ID:             uuid.New(),
			UserID:         userID,
			QuotaType:      string(quotaType),
			PlanType:       string(plan),
			MonthlyLimit:   allotment.MonthlyLimit,
			DailyLimit:     allotment.DailyLimit,
			ResetMonthlyAt: resetMonthly,
			ResetDailyAt:   resetDaily,
		}); err != nil {
			return domain.Internal(err, op, "failed to reset quota ledger row")
		}
	}

	s.logger.Info("quotas reset for plan change", "user_id", userID, "plan", plan)
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// guestCheck returns the static guest table entry. Guests always report
// canUse=true; the server never persists guest usage.
func guestCheck(quotaType domain.QuotaType, now time.Time) *domain.CheckResult {
	allotment := domain.GuestQuotas[quotaType]
	return &domain.CheckResult{
		CanUse:         true,
		MonthlyLimit:   allotment.MonthlyLimit,
		DailyLimit:     allotment.DailyLimit,
		PlanType:       domain.PlanFree,
		ResetMonthlyAt: startOfNextMonth(now),
		ResetDailyAt:   now.Add(24 * time.Hour),
		IsGuest:        true,
	}
}

// resultFromRow computes the usability verdict from a ledger row.
// A zero daily limit means no daily ceiling.
func resultFromRow(row repository.UserQuota, role domain.Role) *domain.CheckResult {
	canUseMonthly := row.MonthlyUsed < row.MonthlyLimit
	canUseDaily := true
	if row.DailyLimit > 0 {
		canUseDaily = row.DailyUsed < row.DailyLimit
	}
	return &domain.CheckResult{
		CanUse:         canUseMonthly && canUseDaily,
		MonthlyUsed:    row.MonthlyUsed,
		MonthlyLimit:   row.MonthlyLimit,
		DailyUsed:      row.DailyUsed,
		DailyLimit:     row.DailyLimit,
		PlanType:       role.PlanType(),
		ResetMonthlyAt: row.ResetMonthlyAt,
		ResetDailyAt:   row.ResetDailyAt,
	}
}

// startOfNextMonth returns midnight UTC on the first day of the month
// after the given time. All window arithmetic is UTC.
func startOfNextMonth(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
