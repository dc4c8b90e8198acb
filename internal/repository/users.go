package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const userColumns = `id, email, password_hash, name, stripe_customer_id,
       subscription_status, subscription_id, created_at, updated_at`

const createUser = `
INSERT INTO users (id, email, password_hash, name)
VALUES ($1, $2, $3, $4)
RETURNING ` + userColumns

type CreateUserParams struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Name         sql.NullString
}

// CreateUser inserts a new user. A duplicate email violates the unique
// constraint and surfaces as a driver error the service maps to a conflict.
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, createUser, arg.ID, arg.Email, arg.PasswordHash, arg.Name)
	return scanUser(row)
}

const getUserByID = `
SELECT ` + userColumns + `
FROM users
WHERE id = $1
`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByID, id))
}

const getUserByEmail = `
SELECT ` + userColumns + `
FROM users
WHERE email = $1
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByEmail, email))
}

const getUserByStripeCustomerID = `
SELECT ` + userColumns + `
FROM users
WHERE stripe_customer_id = $1
`

func (q *Queries) GetUserByStripeCustomerID(ctx context.Context, customerID string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByStripeCustomerID, customerID))
}

const updateUserPassword = `
UPDATE users
SET password_hash = $2, updated_at = now()
WHERE id = $1
`

type UpdateUserPasswordParams struct {
	ID           uuid.UUID
	PasswordHash string
}

func (q *Queries) UpdateUserPassword(ctx context.Context, arg UpdateUserPasswordParams) error {
	_, err := q.db.ExecContext(ctx, updateUserPassword, arg.ID, arg.PasswordHash)
	return err
}

const updateUserStripeCustomer = `
UPDATE users
SET stripe_customer_id = $2, updated_at = now()
WHERE id = $1
`

type UpdateUserStripeCustomerParams struct {
	ID               uuid.UUID
	StripeCustomerID sql.NullString
}

func (q *Queries) UpdateUserStripeCustomer(ctx context.Context, arg UpdateUserStripeCustomerParams) error {
	_, err := q.db.ExecContext(ctx, updateUserStripeCustomer, arg.ID, arg.StripeCustomerID)
	return err
}

const updateUserSubscription = `
UPDATE users
SET subscription_status = $2, subscription_id = $3, updated_at = now()
WHERE id = $1
`

type UpdateUserSubscriptionParams struct {
	ID                 uuid.UUID
	SubscriptionStatus string
	SubscriptionID     sql.NullString
}

func (q *Queries) UpdateUserSubscription(ctx context.Context, arg UpdateUserSubscriptionParams) error {
	_, err := q.db.ExecContext(ctx, updateUserSubscription, arg.ID, arg.SubscriptionStatus, arg.SubscriptionID)
	return err
}

func scanUser(row rowScanner) (User, error) {
	var i User
	err := row.Scan(
		&i.ID, &i.Email, &i.PasswordHash, &i.Name, &i.StripeCustomerID,
		&i.SubscriptionStatus, &i.SubscriptionID, &i.CreatedAt, &i.UpdatedAt,
	)
	return i, err
}
