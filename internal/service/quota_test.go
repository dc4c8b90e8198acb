package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ranklens-io/ranklens/internal/domain"
	"github.com/ranklens-io/ranklens/internal/repository"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeQuotaStore is an in-memory QuotaStore. It mirrors the conditional
// semantics of the SQL queries: ConsumeUserQuota only succeeds when headroom
// remains for the full amount.
type fakeQuotaStore struct {
	planLimits map[string]repository.PlanQuotaLimit // key: plan|quota
	rows       map[string]repository.UserQuota      // key: userID|quota

	createCalls   int
	rolloverCalls int
	consumeCalls  int
	resetCalls    int

	failGetPlan error
	failConsume error
}

func newFakeQuotaStore() *fakeQuotaStore {
	s := &fakeQuotaStore{
		planLimits: make(map[string]repository.PlanQuotaLimit),
		rows:       make(map[string]repository.UserQuota),
	}
	for plan, allotments := range domain.PlanAllotments {
		for quotaType, a := range allotments {
			s.planLimits[string(plan)+"|"+string(quotaType)] = repository.PlanQuotaLimit{
				PlanType:     string(plan),
				QuotaType:    string(quotaType),
				MonthlyLimit: a.MonthlyLimit,
				DailyLimit:   a.DailyLimit,
			}
		}
	}
	return s
}

func rowKey(userID uuid.UUID, quotaType string) string {
	return userID.String() + "|" + quotaType
}

func (s *fakeQuotaStore) GetPlanQuotaLimit(ctx context.Context, arg repository.GetPlanQuotaLimitParams) (repository.PlanQuotaLimit, error) {
	if s.failGetPlan != nil {
		return repository.PlanQuotaLimit{}, s.failGetPlan
	}
	limit, ok := s.planLimits[arg.PlanType+"|"+arg.QuotaType]
	if !ok {
		return repository.PlanQuotaLimit{}, sql.ErrNoRows
	}
	return limit, nil
}

func (s *fakeQuotaStore) GetUserQuota(ctx context.Context, arg repository.GetUserQuotaParams) (repository.UserQuota, error) {
	row, ok := s.rows[rowKey(arg.UserID, arg.QuotaType)]
	if !ok {
		return repository.UserQuota{}, sql.ErrNoRows
	}
	return row, nil
}

func (s *fakeQuotaStore) CreateUserQuota(ctx context.Context, arg repository.CreateUserQuotaParams) (repository.UserQuota, error) {
	s.createCalls++
	key := rowKey(arg.UserID, arg.QuotaType)
	if existing, ok := s.rows[key]; ok {
		return existing, nil
	}
	row := repository.UserQuota{
		ID:             arg.ID,
		UserID:         arg.UserID,
		QuotaType:      arg.QuotaType,
		PlanType:       arg.PlanType,
		MonthlyLimit:   arg.MonthlyLimit,
		DailyLimit:     arg.DailyLimit,
		ResetMonthlyAt: arg.ResetMonthlyAt,
		ResetDailyAt:   arg.ResetDailyAt,
	}
	s.rows[key] = row
	return row, nil
}

func (s *fakeQuotaStore) RolloverUserQuota(ctx context.Context, arg repository.RolloverUserQuotaParams) (repository.UserQuota, error) {
	s.rolloverCalls++
	key := rowKey(arg.UserID, arg.QuotaType)
	row, ok := s.rows[key]
	if !ok {
		return repository.UserQuota{}, sql.ErrNoRows
	}
	row.MonthlyUsed = arg.MonthlyUsed
	row.DailyUsed = arg.DailyUsed
	row.ResetMonthlyAt = arg.ResetMonthlyAt
	row.ResetDailyAt = arg.ResetDailyAt
	s.rows[key] = row
	return row, nil
}

func (s *fakeQuotaStore) ConsumeUserQuota(ctx context.Context, arg repository.ConsumeUserQuotaParams) (repository.UserQuota, error) {
	s.consumeCalls++
	if s.failConsume != nil {
		return repository.UserQuota{}, s.failConsume
	}
	key := rowKey(arg.UserID, arg.QuotaType)
	row, ok := s.rows[key]
	if !ok {
		return repository.UserQuota{}, sql.ErrNoRows
	}
	if row.MonthlyUsed+arg.Amount > row.MonthlyLimit {
		return repository.UserQuota{}, sql.ErrNoRows
	}
	if row.DailyLimit > 0 && row.DailyUsed+arg.Amount > row.DailyLimit {
		return repository.UserQuota{}, sql.ErrNoRows
	}
	row.MonthlyUsed += arg.Amount
	row.DailyUsed += arg.Amount
	s.rows[key] = row
	return row, nil
}

func (s *fakeQuotaStore) ResetUserQuota(ctx context.Context, arg repository.ResetUserQuotaParams) (repository.UserQuota, error) {
	s.resetCalls++
	key := rowKey(arg.UserID, arg.QuotaType)
	row := repository.UserQuota{
		ID:             arg.ID,
		UserID:         arg.UserID,
		QuotaType:      arg.QuotaType,
		PlanType:       arg.PlanType,
		MonthlyLimit:   arg.MonthlyLimit,
		DailyLimit:     arg.DailyLimit,
		ResetMonthlyAt: arg.ResetMonthlyAt,
		ResetDailyAt:   arg.ResetDailyAt,
	}
	s.rows[key] = row
	return row, nil
}

// fakeRoleService returns a fixed role.
type fakeRoleService struct {
	role domain.Role
}

func (f *fakeRoleService) Resolve(ctx context.Context, userID uuid.UUID) domain.Role {
	return f.role
}

func (f *fakeRoleService) Assign(ctx context.Context, userID uuid.UUID, role domain.Role) error {
	f.role = role
	return nil
}

func quotaTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestQuotaService builds a service with a frozen clock.
func newTestQuotaService(store *fakeQuotaStore, role domain.Role, now time.Time) *quotaService {
	return &quotaService{
		store:  store,
		roles:  &fakeRoleService{role: role},
		logger: quotaTestLogger(),
		now:    func() time.Time { return now },
	}
}

// =============================================================================
// Check Tests
// =============================================================================

func TestQuotaCheck_LazyCreatesLedgerRow(t *testing.T) {
	store := newFakeQuotaStore()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestQuotaService(store, domain.RoleFree, now)
	userID := uuid.New()

	res, err := svc.Check(context.Background(), userID.String(), domain.QuotaTypeDRCheck)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if !res.CanUse {
		t.Error("fresh ledger row should have headroom")
	}
	if res.MonthlyUsed != 0 || res.DailyUsed != 0 {
		t.Errorf("fresh row usage = %d/%d, want 0/0", res.MonthlyUsed, res.DailyUsed)
	}
	if res.MonthlyLimit != 10 || res.DailyLimit != 5 {
		t.Errorf("free dr_check limits = %d/%d, want 10/5", res.MonthlyLimit, res.DailyLimit)
	}
	if res.PlanType != domain.PlanFree {
		t.Errorf("PlanType = %q, want %q", res.PlanType, domain.PlanFree)
	}
	if store.createCalls != 1 {
		t.Errorf("createCalls = %d, want 1", store.createCalls)
	}

	wantMonthlyReset := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	if !res.ResetMonthlyAt.Equal(wantMonthlyReset) {
		t.Errorf("ResetMonthlyAt = %v, want %v", res.ResetMonthlyAt, wantMonthlyReset)
	}
	if !res.ResetDailyAt.Equal(now.Add(24 * time.Hour)) {
		t.Errorf("ResetDailyAt = %v, want %v", res.ResetDailyAt, now.Add(24*time.Hour))
	}

	// A second check reuses the row
	if _, err := svc.Check(context.Background(), userID.String(), domain.QuotaTypeDRCheck); err != nil {
		t.Fatalf("second Check() error = %v", err)
	}
	if store.createCalls != 1 {
		t.Errorf("createCalls after second check = %d, want 1", store.createCalls)
	}
}

func TestQuotaCheck_IsReadOnly(t *testing.T) {
	store := newFakeQuotaStore()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestQuotaService(store, domain.RoleFree, now)
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		res, err := svc.Check(context.Background(), userID.String(), domain.QuotaTypeTrafficCheck)
		if err != nil {
			t.Fatalf("Check() #%d error = %v", i+1, err)
		}
		if res.MonthlyUsed != 0 {
			t.Errorf("Check() #%d MonthlyUsed = %d, repeated checks must not consume", i+1, res.MonthlyUsed)
		}
	}
}

func TestQuotaCheck_MonthlyCapBlocks(t *testing.T) {
	store := newFakeQuotaStore()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestQuotaService(store, domain.RoleFree, now)
	userID := uuid.New()

	store.rows[rowKey(userID, string(domain.QuotaTypeDRCheck))] = repository.UserQuota{
		UserID: userID, QuotaType: string(domain.QuotaTypeDRCheck), PlanType: "free",
		MonthlyUsed: 10, MonthlyLimit: 10, DailyUsed: 0, DailyLimit: 5,
		ResetMonthlyAt: now.AddDate(0, 0, 16), ResetDailyAt: now.Add(12 * time.Hour),
	}

	res, err := svc.Check(context.Background(), userID.String(), domain.QuotaTypeDRCheck)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if res.CanUse {
		t.Error("CanUse = true at monthly cap, want false")
	}
}

func TestQuotaCheck_DailyCapBlocksIndependently(t *testing.T) {
	store := newFakeQuotaStore()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestQuotaService(store, domain.RoleFree, now)
	userID := uuid.New()

	// Monthly headroom remains but the daily cap is hit
	store.rows[rowKey(userID, string(domain.QuotaTypeDRCheck))] = repository.UserQuota{
		UserID: userID, QuotaType: string(domain.QuotaTypeDRCheck), PlanType: "free",
		MonthlyUsed: 5, MonthlyLimit: 10, DailyUsed: 5, DailyLimit: 5,
		ResetMonthlyAt: now.AddDate(0, 0, 16), ResetDailyAt: now.Add(12 * time.Hour),
	}

	res, err := svc.Check(context.Background(), userID.String(), domain.QuotaTypeDRCheck)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if res.CanUse {
		t.Error("CanUse = true at daily cap, want false")
	}
}

func TestQuotaCheck_ZeroDailyLimitMeansNoCeiling(t *testing.T) {
	store := newFakeQuotaStore()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestQuotaService(store, domain.RoleSuper, now)
	userID := uuid.New()

	store.rows[rowKey(userID, string(domain.QuotaTypeDRCheck))] = repository.UserQuota{
		UserID: userID, QuotaType: string(domain.QuotaTypeDRCheck), PlanType: "super",
		MonthlyUsed: 100, MonthlyLimit: 5000, DailyUsed: 400, DailyLimit: 0,
		ResetMonthlyAt: now.AddDate(0, 0, 16), ResetDailyAt: now.Add(12 * time.Hour),
	}

	res, err := svc.Check(context.Background(), userID.String(), domain.QuotaTypeDRCheck)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !res.CanUse {
		t.Error("CanUse = false with zero daily limit, want true regardless of daily usage")
	}
}

func TestQuotaCheck_DailyRollover(t *testing.T) {
	store := newFakeQuotaStore()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestQuotaService(store, domain.RoleFree, now)
	userID := uuid.New()

	monthlyReset := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	store.rows[rowKey(userID, string(domain.QuotaTypeDRCheck))] = repository.UserQuota{
		UserID: userID, QuotaType: string(domain.QuotaTypeDRCheck), PlanType: "free",
		MonthlyUsed: 7, MonthlyLimit: 10, DailyUsed: 5, DailyLimit: 5,
		ResetMonthlyAt: monthlyReset,
		ResetDailyAt:   now.Add(-time.Hour), // daily window elapsed
	}

	res, err := svc.Check(context.Background(), userID.String(), domain.QuotaTypeDRCheck)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if res.DailyUsed != 0 {
		t.Errorf("DailyUsed after rollover = %d, want 0", res.DailyUsed)
	}
	if res.MonthlyUsed != 7 {
		t.Errorf("MonthlyUsed = %d, daily rollover must not touch monthly usage", res.MonthlyUsed)
	}
	if !res.ResetMonthlyAt.Equal(monthlyReset) {
		t.Errorf("ResetMonthlyAt = %v, daily rollover must not move the monthly window", res.ResetMonthlyAt)
	}
	if !res.ResetDailyAt.Equal(now.Add(24 * time.Hour)) {
		t.Errorf("ResetDailyAt = %v, want %v", res.ResetDailyAt, now.Add(24*time.Hour))
	}
	if !res.CanUse {
		t.Error("CanUse = false after daily rollover freed headroom, want true")
	}
	if store.rolloverCalls != 1 {
		t.Errorf("rolloverCalls = %d, want 1 (rollover must persist)", store.rolloverCalls)
	}
}

func TestQuotaCheck_MonthlyRollover(t *testing.T) {
	store := newFakeQuotaStore()
	now := time.Date(2026, time.April, 2, 8, 0, 0, 0, time.UTC)
	svc := newTestQuotaService(store, domain.RoleFree, now)
	userID := uuid.New()

	store.rows[rowKey(userID, string(domain.QuotaTypeDRCheck))] = repository.UserQuota{
		UserID: userID, QuotaType: string(domain.QuotaTypeDRCheck), PlanType: "free",
		MonthlyUsed: 10, MonthlyLimit: 10, DailyUsed: 2, DailyLimit: 5,
		ResetMonthlyAt: time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), // elapsed
		ResetDailyAt:   now.Add(12 * time.Hour),                              // not elapsed
	}

	res, err := svc.Check(context.Background(), userID.String(), domain.QuotaTypeDRCheck)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if res.MonthlyUsed != 0 {
		t.Errorf("MonthlyUsed after rollover = %d, want 0", res.MonthlyUsed)
	}
	if res.DailyUsed != 2 {
		t.Errorf("DailyUsed = %d, monthly rollover must not touch daily usage", res.DailyUsed)
	}
	wantReset := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)
	if !res.ResetMonthlyAt.Equal(wantReset) {
		t.Errorf("ResetMonthlyAt = %v, want %v", res.ResetMonthlyAt, wantReset)
	}
}

func TestQuotaCheck_Guest(t *testing.T) {
	store := newFakeQuotaStore()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestQuotaService(store, domain.RoleFree, now)

	res, err := svc.Check(context.Background(), domain.GuestUserID, domain.QuotaTypeDRCheck)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if !res.IsGuest {
		t.Error("IsGuest = false, want true")
	}
	if !res.CanUse {
		t.Error("guest checks always report CanUse = true")
	}
	if res.MonthlyLimit != 5 || res.DailyLimit != 2 {
		t.Errorf("guest dr_check limits = %d/%d, want 5/2", res.MonthlyLimit, res.DailyLimit)
	}
	if len(store.rows) != 0 || store.createCalls != 0 {
		t.Error("guest check must not touch the ledger")
	}
}

func TestQuotaCheck_Admin(t *testing.T) {
	store := newFakeQuotaStore()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestQuotaService(store, domain.RoleAdmin, now)
	userID := uuid.New()

	res, err := svc.Check(context.Background(), userID.String(), domain.QuotaTypeBacklinkCheck)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	if !res.IsAdmin {
		t.Error("IsAdmin = false, want true")
	}
	if !res.CanUse {
		t.Error("admin checks always report CanUse = true")
	}
	if res.MonthlyLimit != domain.AdminQuotaLimit || res.DailyLimit != domain.AdminQuotaLimit {
		t.Errorf("admin limits = %d/%d, want %d/%d",
			res.MonthlyLimit, res.DailyLimit, domain.AdminQuotaLimit, domain.AdminQuotaLimit)
	}
	if len(store.rows) != 0 {
		t.Error("admin check must not create ledger rows")
	}
}

func TestQuotaCheck_InvalidUserID(t *testing.T) {
	store := newFakeQuotaStore()
	svc := newTestQuotaService(store, domain.RoleFree, time.Now())

	_, err := svc.Check(context.Background(), "not-a-uuid", domain.QuotaTypeDRCheck)
	if err == nil {
		t.Fatal("expected error for malformed user ID")
	}
	if domain.ErrorCode(err) != domain.EINVALID {
		t.Errorf("error code = %q, want %q", domain.ErrorCode(err), domain.EINVALID)
	}
}

func TestQuotaCheck_MissingPlanLimitIsNotFound(t *testing.T) {
	store := newFakeQuotaStore()
	delete(store.planLimits, "free|dr_check")
	svc := newTestQuotaService(store, domain.RoleFree, time.Now())

	_, err := svc.Check(context.Background(), uuid.New().String(), domain.QuotaTypeDRCheck)
	if err == nil {
		t.Fatal("expected error for missing plan limit row")
	}
	if domain.ErrorCode(err) != domain.ENOTFOUND {
		t.Errorf("error code = %q, want %q", domain.ErrorCode(err), domain.ENOTFOUND)
	}
}

// =============================================================================
// Consume Tests
// =============================================================================

func TestQuotaConsume_IncrementsBothCounters(t *testing.T) {
	store := newFakeQuotaStore()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestQuotaService(store, domain.RoleFree, now)
	userID := uuid.New()

	res, err := svc.Consume(context.Background(), userID.String(), domain.QuotaTypeDRCheck, 1)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	if res.Consumed != 1 {
		t.Errorf("Consumed = %d, want 1", res.Consumed)
	}
	if res.MonthlyUsed != 1 || res.DailyUsed != 1 {
		t.Errorf("usage = %d/%d, want 1/1 (both counters increment)", res.MonthlyUsed, res.DailyUsed)
	}
	if res.RemainingMonthly != 9 {
		t.Errorf("RemainingMonthly = %d, want 9", res.RemainingMonthly)
	}
	if res.RemainingDaily != 4 {
		t.Errorf("RemainingDaily = %d, want 4", res.RemainingDaily)
	}
}

func TestQuotaConsume_ZeroDailyLimitReportsMonthlyRemainder(t *testing.T) {
	store := newFakeQuotaStore()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestQuotaService(store, domain.RoleSuper, now)
	userID := uuid.New()

	store.rows[rowKey(userID, string(domain.QuotaTypeDRCheck))] = repository.UserQuota{
		UserID: userID, QuotaType: string(domain.QuotaTypeDRCheck), PlanType: "super",
		MonthlyUsed: 100, MonthlyLimit: 5000, DailyUsed: 400, DailyLimit: 0,
		ResetMonthlyAt: now.AddDate(0, 0, 16), ResetDailyAt: now.Add(12 * time.Hour),
	}

	res, err := svc.Consume(context.Background(), userID.String(), domain.QuotaTypeDRCheck, 1)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if res.RemainingDaily != 4899 {
		t.Errorf("RemainingDaily = %d, want 4899 (monthly remainder when no daily ceiling)", res.RemainingDaily)
	}
	if res.RemainingMonthly != 4899 {
		t.Errorf("RemainingMonthly = %d, want 4899", res.RemainingMonthly)
	}
}

func TestQuotaConsume_DeniedAtCap(t *testing.T) {
	store := newFakeQuotaStore()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestQuotaService(store, domain.RoleFree, now)
	userID := uuid.New()

	store.rows[rowKey(userID, string(domain.QuotaTypeDRCheck))] = repository.UserQuota{
		UserID: userID, QuotaType: string(domain.QuotaTypeDRCheck), PlanType: "free",
		MonthlyUsed: 10, MonthlyLimit: 10, DailyUsed: 0, DailyLimit: 5,
		ResetMonthlyAt: now.AddDate(0, 0, 16), ResetDailyAt: now.Add(12 * time.Hour),
	}

	_, err := svc.Consume(context.Background(), userID.String(), domain.QuotaTypeDRCheck, 1)
	if err == nil {
		t.Fatal("expected denial at monthly cap")
	}

	var denial *domain.QuotaDeniedError
	if !errors.As(err, &denial) {
		t.Fatalf("error type = %T, want *domain.QuotaDeniedError", err)
	}
	if denial.Reason != domain.QuotaDenyExceeded {
		t.Errorf("Reason = %q, want %q", denial.Reason, domain.QuotaDenyExceeded)
	}
	if denial.Snapshot.MonthlyUsed != 10 {
		t.Errorf("Snapshot.MonthlyUsed = %d, want 10", denial.Snapshot.MonthlyUsed)
	}
	if store.consumeCalls != 0 {
		t.Error("denied consume must not reach the conditional update")
	}
}

func TestQuotaConsume_InsufficientForAmount(t *testing.T) {
	store := newFakeQuotaStore()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestQuotaService(store, domain.RoleFree, now)
	userID := uuid.New()

	store.rows[rowKey(userID, string(domain.QuotaTypeDRCheck))] = repository.UserQuota{
		UserID: userID, QuotaType: string(domain.QuotaTypeDRCheck), PlanType: "free",
		MonthlyUsed: 8, MonthlyLimit: 10, DailyUsed: 0, DailyLimit: 5,
		ResetMonthlyAt: now.AddDate(0, 0, 16), ResetDailyAt: now.Add(12 * time.Hour),
	}

	// 2 remaining monthly, ask for 3
	_, err := svc.Consume(context.Background(), userID.String(), domain.QuotaTypeDRCheck, 3)
	if err == nil {
		t.Fatal("expected denial for insufficient headroom")
	}

	var denial *domain.QuotaDeniedError
	if !errors.As(err, &denial) {
		t.Fatalf("error type = %T, want *domain.QuotaDeniedError", err)
	}
	if denial.Reason != domain.QuotaDenyInsufficient {
		t.Errorf("Reason = %q, want %q", denial.Reason, domain.QuotaDenyInsufficient)
	}

	// Partial consumption must not happen
	row := store.rows[rowKey(userID, string(domain.QuotaTypeDRCheck))]
	if row.MonthlyUsed != 8 {
		t.Errorf("MonthlyUsed after denial = %d, want 8 (no partial consumption)", row.MonthlyUsed)
	}
}

func TestQuotaConsume_ConcurrentLoserIsDenied(t *testing.T) {
	store := newFakeQuotaStore()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestQuotaService(store, domain.RoleFree, now)
	userID := uuid.New()

	store.rows[rowKey(userID, string(domain.QuotaTypeDRCheck))] = repository.UserQuota{
		UserID: userID, QuotaType: string(domain.QuotaTypeDRCheck), PlanType: "free",
		MonthlyUsed: 9, MonthlyLimit: 10, DailyUsed: 0, DailyLimit: 5,
		ResetMonthlyAt: now.AddDate(0, 0, 16), ResetDailyAt: now.Add(12 * time.Hour),
	}

	// Simulate a concurrent consumer winning between the check and the
	// conditional update.
	store.failConsume = sql.ErrNoRows

	_, err := svc.Consume(context.Background(), userID.String(), domain.QuotaTypeDRCheck, 1)
	if err == nil {
		t.Fatal("expected denial when conditional update matches no rows")
	}

	var denial *domain.QuotaDeniedError
	if !errors.As(err, &denial) {
		t.Fatalf("error type = %T, want *domain.QuotaDeniedError", err)
	}
	if denial.Reason != domain.QuotaDenyExceeded {
		t.Errorf("Reason = %q, want %q", denial.Reason, domain.QuotaDenyExceeded)
	}
}

func TestQuotaConsume_GuestIsNoOp(t *testing.T) {
	store := newFakeQuotaStore()
	svc := newTestQuotaService(store, domain.RoleFree, time.Now())

	res, err := svc.Consume(context.Background(), domain.GuestUserID, domain.QuotaTypeDRCheck, 1)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	if !res.IsGuest {
		t.Error("IsGuest = false, want true")
	}
	if store.consumeCalls != 0 || len(store.rows) != 0 {
		t.Error("guest consume must not touch the ledger")
	}
}

func TestQuotaConsume_AdminBypassesLedger(t *testing.T) {
	store := newFakeQuotaStore()
	svc := newTestQuotaService(store, domain.RoleAdmin, time.Now())
	userID := uuid.New()

	res, err := svc.Consume(context.Background(), userID.String(), domain.QuotaTypeDRCheck, 5)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	if !res.IsAdmin {
		t.Error("IsAdmin = false, want true")
	}
	if res.RemainingMonthly != domain.AdminQuotaLimit {
		t.Errorf("RemainingMonthly = %d, want %d", res.RemainingMonthly, domain.AdminQuotaLimit)
	}
	if store.consumeCalls != 0 || len(store.rows) != 0 {
		t.Error("admin consume must not touch the ledger")
	}
}

func TestQuotaConsume_RejectsNonPositiveAmount(t *testing.T) {
	store := newFakeQuotaStore()
	svc := newTestQuotaService(store, domain.RoleFree, time.Now())

	for _, amount := range []int32{0, -1} {
		_, err := svc.Consume(context.Background(), uuid.New().String(), domain.QuotaTypeDRCheck, amount)
		if err == nil {
			t.Errorf("Consume(amount=%d) expected error", amount)
			continue
		}
		if domain.ErrorCode(err) != domain.EINVALID {
			t.Errorf("Consume(amount=%d) error code = %q, want %q", amount, domain.ErrorCode(err), domain.EINVALID)
		}
	}
}

func TestQuotaConsume_ThenCheckReflectsUsage(t *testing.T) {
	store := newFakeQuotaStore()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestQuotaService(store, domain.RoleFree, now)
	userID := uuid.New()

	if _, err := svc.Consume(context.Background(), userID.String(), domain.QuotaTypeDRCheck, 1); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	res, err := svc.Check(context.Background(), userID.String(), domain.QuotaTypeDRCheck)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if res.MonthlyUsed != 1 || res.DailyUsed != 1 {
		t.Errorf("usage after consume = %d/%d, want 1/1", res.MonthlyUsed, res.DailyUsed)
	}
}

// =============================================================================
// ResetForPlan Tests
// =============================================================================

func TestResetForPlan_OverwritesEveryCategory(t *testing.T) {
	store := newFakeQuotaStore()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestQuotaService(store, domain.RoleFree, now)
	userID := uuid.New()

	// Existing free-plan row with usage
	store.rows[rowKey(userID, string(domain.QuotaTypeDRCheck))] = repository.UserQuota{
		UserID: userID, QuotaType: string(domain.QuotaTypeDRCheck), PlanType: "free",
		MonthlyUsed: 9, MonthlyLimit: 10, DailyUsed: 3, DailyLimit: 5,
		ResetMonthlyAt: now.AddDate(0, 0, 16), ResetDailyAt: now.Add(12 * time.Hour),
	}

	if err := svc.ResetForPlan(context.Background(), userID, domain.PlanPro); err != nil {
		t.Fatalf("ResetForPlan() error = %v", err)
	}

	if store.resetCalls != len(domain.QuotaTypes) {
		t.Errorf("resetCalls = %d, want %d (every category)", store.resetCalls, len(domain.QuotaTypes))
	}

	row := store.rows[rowKey(userID, string(domain.QuotaTypeDRCheck))]
	if row.MonthlyUsed != 0 || row.DailyUsed != 0 {
		t.Errorf("usage after reset = %d/%d, want 0/0", row.MonthlyUsed, row.DailyUsed)
	}
	if row.MonthlyLimit != 500 || row.DailyLimit != 50 {
		t.Errorf("pro dr_check limits = %d/%d, want 500/50", row.MonthlyLimit, row.DailyLimit)
	}
	if row.PlanType != "pro" {
		t.Errorf("PlanType = %q, want %q", row.PlanType, "pro")
	}
	if !row.ResetMonthlyAt.Equal(now.AddDate(0, 1, 0)) {
		t.Errorf("ResetMonthlyAt = %v, want one month out (%v)", row.ResetMonthlyAt, now.AddDate(0, 1, 0))
	}
}

func TestResetForPlan_DowngradeAppliesLowerLimits(t *testing.T) {
	store := newFakeQuotaStore()
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	svc := newTestQuotaService(store, domain.RolePro, now)
	userID := uuid.New()

	if err := svc.ResetForPlan(context.Background(), userID, domain.PlanFree); err != nil {
		t.Fatalf("ResetForPlan() error = %v", err)
	}

	row := store.rows[rowKey(userID, string(domain.QuotaTypeBacklinkView))]
	if row.MonthlyLimit != 50 || row.DailyLimit != 20 {
		t.Errorf("free backlink_view limits = %d/%d, want 50/20", row.MonthlyLimit, row.DailyLimit)
	}
}

func TestResetForPlan_UnknownPlan(t *testing.T) {
	store := newFakeQuotaStore()
	svc := newTestQuotaService(store, domain.RoleFree, time.Now())

	err := svc.ResetForPlan(context.Background(), uuid.New(), domain.PlanType("platinum"))
	if err == nil {
		t.Fatal("expected error for unknown plan")
	}
	if domain.ErrorCode(err) != domain.EINVALID {
		t.Errorf("error code = %q, want %q", domain.ErrorCode(err), domain.EINVALID)
	}
	if store.resetCalls != 0 {
		t.Error("unknown plan must not touch the ledger")
	}
}
