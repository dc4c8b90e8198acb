package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/ranklens-io/ranklens/internal/domain"
	"github.com/ranklens-io/ranklens/internal/repository"
)

type fakeRoleStore struct {
	assignment  repository.RoleAssignment
	getErr      error
	ensureErr   error
	ensureCalls int
}

func (f *fakeRoleStore) GetActiveRoleAssignment(ctx context.Context, userID uuid.UUID) (repository.RoleAssignment, error) {
	if f.getErr != nil {
		return repository.RoleAssignment{}, f.getErr
	}
	return f.assignment, nil
}

func (f *fakeRoleStore) EnsureRoleAssignment(ctx context.Context, arg repository.EnsureRoleAssignmentParams) (repository.RoleAssignment, error) {
	f.ensureCalls++
	if f.ensureErr != nil {
		return repository.RoleAssignment{}, f.ensureErr
	}
	f.assignment = repository.RoleAssignment{
		ID:       arg.ID,
		UserID:   arg.UserID,
		Role:     arg.Role,
		IsActive: true,
	}
	return f.assignment, nil
}

func newTestRoleService(store *fakeRoleStore) *roleService {
	return &roleService{
		store:  store,
		logger: quotaTestLogger(),
	}
}

func TestRoleResolve_ReturnsActiveAssignment(t *testing.T) {
	userID := uuid.New()
	store := &fakeRoleStore{
		assignment: repository.RoleAssignment{
			ID:       uuid.New(),
			UserID:   userID,
			Role:     "pro",
			IsActive: true,
		},
	}
	svc := newTestRoleService(store)

	role := svc.Resolve(context.Background(), userID)
	if role != domain.RolePro {
		t.Errorf("Resolve() = %q, want %q", role, domain.RolePro)
	}
	if store.ensureCalls != 0 {
		t.Error("existing assignment must not trigger a lazy insert")
	}
}

func TestRoleResolve_UnknownRoleStringFallsBackToFree(t *testing.T) {
	userID := uuid.New()
	store := &fakeRoleStore{
		assignment: repository.RoleAssignment{
			UserID:   userID,
			Role:     "superduper",
			IsActive: true,
		},
	}
	svc := newTestRoleService(store)

	if role := svc.Resolve(context.Background(), userID); role != domain.RoleFree {
		t.Errorf("Resolve() = %q, want %q for unrecognized stored role", role, domain.RoleFree)
	}
}

func TestRoleResolve_StorageErrorFailsOpenToFree(t *testing.T) {
	store := &fakeRoleStore{getErr: errors.New("connection refused")}
	svc := newTestRoleService(store)

	if role := svc.Resolve(context.Background(), uuid.New()); role != domain.RoleFree {
		t.Errorf("Resolve() = %q, want %q when storage is unavailable", role, domain.RoleFree)
	}
	if store.ensureCalls != 0 {
		t.Error("storage errors must not trigger a lazy insert")
	}
}

func TestRoleResolve_NoAssignmentLazilyGrantsFree(t *testing.T) {
	userID := uuid.New()
	store := &fakeRoleStore{getErr: sql.ErrNoRows}
	svc := newTestRoleService(store)

	role := svc.Resolve(context.Background(), userID)
	if role != domain.RoleFree {
		t.Errorf("Resolve() = %q, want %q", role, domain.RoleFree)
	}
	if store.ensureCalls != 1 {
		t.Errorf("ensureCalls = %d, want 1 (missing assignment is created)", store.ensureCalls)
	}
	if store.assignment.Role != string(domain.RoleFree) {
		t.Errorf("persisted role = %q, want %q", store.assignment.Role, domain.RoleFree)
	}
}

func TestRoleResolve_LazyGrantFailureStillReturnsFree(t *testing.T) {
	store := &fakeRoleStore{getErr: sql.ErrNoRows, ensureErr: errors.New("deadlock detected")}
	svc := newTestRoleService(store)

	if role := svc.Resolve(context.Background(), uuid.New()); role != domain.RoleFree {
		t.Errorf("Resolve() = %q, want %q even when the lazy grant fails", role, domain.RoleFree)
	}
}

func TestRoleAssign_RejectsUnknownRole(t *testing.T) {
	svc := newTestRoleService(&fakeRoleStore{})

	err := svc.Assign(context.Background(), uuid.New(), domain.Role("owner"))
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
	if domain.ErrorCode(err) != domain.EINVALID {
		t.Errorf("error code = %q, want %q", domain.ErrorCode(err), domain.EINVALID)
	}
}

func TestRoleAssign_RequiresDatabaseHandle(t *testing.T) {
	// Assign swaps role assignments transactionally; a service wired
	// without a database handle cannot do that.
	svc := newTestRoleService(&fakeRoleStore{})

	err := svc.Assign(context.Background(), uuid.New(), domain.RolePro)
	if err == nil {
		t.Fatal("expected error when no database handle is configured")
	}
	if domain.ErrorCode(err) != domain.EINTERNAL {
		t.Errorf("error code = %q, want %q", domain.ErrorCode(err), domain.EINTERNAL)
	}
}
