package repository

import (
	"context"

	"github.com/google/uuid"
)

const getActiveRoleAssignment = `
SELECT id, user_id, role, is_active, granted_at, updated_at
FROM role_assignments
WHERE user_id = $1 AND is_active
`

// GetActiveRoleAssignment returns the active role grant for a user.
// Not-found is an expected outcome for users who have never been checked.
func (q *Queries) GetActiveRoleAssignment(ctx context.Context, userID uuid.UUID) (RoleAssignment, error) {
	row := q.db.QueryRowContext(ctx, getActiveRoleAssignment, userID)
	var i RoleAssignment
	err := row.Scan(&i.ID, &i.UserID, &i.Role, &i.IsActive, &i.GrantedAt, &i.UpdatedAt)
	return i, err
}

const ensureRoleAssignment = `
INSERT INTO role_assignments (id, user_id, role, is_active)
VALUES ($1, $2, $3, true)
ON CONFLICT (user_id) WHERE is_active DO UPDATE SET updated_at = now()
RETURNING id, user_id, role, is_active, granted_at, updated_at
`

type EnsureRoleAssignmentParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Role   string
}

// EnsureRoleAssignment inserts an active role grant unless one already
// exists. The partial unique index on (user_id) WHERE is_active turns the
// lazy-create race into a no-op that returns the existing row's role.
func (q *Queries) EnsureRoleAssignment(ctx context.Context, arg EnsureRoleAssignmentParams) (RoleAssignment, error) {
	row := q.db.QueryRowContext(ctx, ensureRoleAssignment, arg.ID, arg.UserID, arg.Role)
	var i RoleAssignment
	err := row.Scan(&i.ID, &i.UserID, &i.Role, &i.IsActive, &i.GrantedAt, &i.UpdatedAt)
	return i, err
}

const deactivateRoleAssignments = `
UPDATE role_assignments
SET is_active = false, updated_at = now()
WHERE user_id = $1 AND is_active
`

// DeactivateRoleAssignments retires the user's active grant ahead of a role
// change. Run inside the same transaction as the following insert.
func (q *Queries) DeactivateRoleAssignments(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deactivateRoleAssignments, userID)
	return err
}

const createRoleAssignment = `
INSERT INTO role_assignments (id, user_id, role, is_active)
VALUES ($1, $2, $3, true)
RETURNING id, user_id, role, is_active, granted_at, updated_at
`

type CreateRoleAssignmentParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Role   string
}

// CreateRoleAssignment inserts a new active role grant.
func (q *Queries) CreateRoleAssignment(ctx context.Context, arg CreateRoleAssignmentParams) (RoleAssignment, error) {
	row := q.db.QueryRowContext(ctx, createRoleAssignment, arg.ID, arg.UserID, arg.Role)
	var i RoleAssignment
	err := row.Scan(&i.ID, &i.UserID, &i.Role, &i.IsActive, &i.GrantedAt, &i.UpdatedAt)
	return i, err
}
