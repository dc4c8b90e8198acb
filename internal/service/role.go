// Package service contains the business logic layer.
//
// This file implements role resolution and role management. Role resolution
// is deliberately fail-open: a quota check must never be blocked by a
// role-storage failure, so any error here degrades to the least-privileged
// "free" role. Quota bookkeeping itself fails closed (see quota.go).
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/ranklens-io/ranklens/internal/domain"
	"github.com/ranklens-io/ranklens/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// RoleService defines operations for resolving and changing user roles.
type RoleService interface {
	// Resolve returns the user's active role, lazily creating a "free"
	// assignment if none exists. It never returns an error: storage
	// failures fail open to the free role.
	Resolve(ctx context.Context, userID uuid.UUID) domain.Role

	// Assign replaces the user's active role assignment with the given
	// role, retiring any previous active assignment.
	Assign(ctx context.Context, userID uuid.UUID, role domain.Role) error
}

// RoleStore is the subset of repository queries used by the role service.
type RoleStore interface {
	GetActiveRoleAssignment(ctx context.Context, userID uuid.UUID) (repository.RoleAssignment, error)
	EnsureRoleAssignment(ctx context.Context, arg repository.EnsureRoleAssignmentParams) (repository.RoleAssignment, error)
}

// =============================================================================
// Implementation
// =============================================================================

type roleService struct {
	store  RoleStore
	db     *sql.DB // nil in tests; required for Assign's transaction
	logger *slog.Logger
}

// NewRoleService creates a new RoleService.
func NewRoleService(store RoleStore, db *sql.DB, logger *slog.Logger) RoleService {
	return &roleService{
		store:  store,
		db:     db,
		logger: logger,
	}
}

// Resolve looks up the active role assignment for the user.
func (s *roleService) Resolve(ctx context.Context, userID uuid.UUID) domain.Role {
	const op = "role.resolve"

	assignment, err := s.store.GetActiveRoleAssignment(ctx, userID)
	if err == nil {
		if role, ok := domain.ParseRole(assignment.Role); ok {
			return role
		}
		// Unknown role string in storage: treat as free rather than fail.
		s.logger.Warn("unknown role in storage, defaulting to free",
			"op", op, "user_id", userID, "role", assignment.Role)
		return domain.RoleFree
	}

	if !errors.Is(err, sql.ErrNoRows) {
		// Storage failure on lookup: fail open.
		s.logger.Error("role lookup failed, defaulting to free",
			"op", op, "user_id", userID, "error", err)
		return domain.RoleFree
	}

	// Not-found is expected for first-time users; lazily create the
	// default assignment. The upsert returns the existing row if a
	// concurrent request created one first.
	assignment, err = s.store.EnsureRoleAssignment(ctx, repository.EnsureRoleAssignmentParams{
		ID:     uuid.New(),
		UserID: userID,
		Role:   string(domain.RoleFree),
	})
	if err != nil {
		// Fail open; the next call will retry the insert.
		s.logger.Error("default role creation failed, defaulting to free",
			"op", op, "user_id", userID, "error", err)
		return domain.RoleFree
	}

	if role, ok := domain.ParseRole(assignment.Role); ok {
		return role
	}
	return domain.RoleFree
}

// Assign retires the user's active assignment and inserts the new role
// inside one transaction, keeping the one-active-row invariant.
func (s *roleService) Assign(ctx context.Context, userID uuid.UUID, role domain.Role) error {
	const op = "role.assign"

	if _, ok := domain.ParseRole(string(role)); !ok {
		return domain.Invalid(op, "unknown role")
	}
	if s.db == nil {
		return domain.Internal(nil, op, "role service has no transactional database handle")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Internal(err, op, "failed to begin transaction")
	}
	defer tx.Rollback()

	q := repository.New(tx)
	if err := q.DeactivateRoleAssignments(ctx, userID); err != nil {
		return domain.Internal(err, op, "failed to retire active role assignment")
	}
	if _, err := q.CreateRoleAssignment(ctx, repository.CreateRoleAssignmentParams{
		ID:     uuid.New(),
		UserID: userID,
		Role:   string(role),
	}); err != nil {
		return domain.Internal(err, op, "failed to create role assignment")
	}

	if err := tx.Commit(); err != nil {
		return domain.Internal(err, op, "failed to commit role change")
	}

	s.logger.Info("role assigned", "user_id", userID, "role", role)
	return nil
}
