package repository

import (
	"context"

	"github.com/google/uuid"
)

const createCheckRecord = `
INSERT INTO check_history (id, user_id, check_type, target_domain, summary)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, user_id, check_type, target_domain, summary, created_at
`

type CreateCheckRecordParams struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	CheckType    string
	TargetDomain string
	Summary      string
}

func (q *Queries) CreateCheckRecord(ctx context.Context, arg CreateCheckRecordParams) (CheckRecord, error) {
	row := q.db.QueryRowContext(ctx, createCheckRecord,
		arg.ID, arg.UserID, arg.CheckType, arg.TargetDomain, arg.Summary)
	var i CheckRecord
	err := row.Scan(&i.ID, &i.UserID, &i.CheckType, &i.TargetDomain, &i.Summary, &i.CreatedAt)
	return i, err
}

const listRecentChecks = `
SELECT id, user_id, check_type, target_domain, summary, created_at
FROM check_history
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`

type ListRecentChecksParams struct {
	UserID uuid.UUID
	Limit  int32
}

func (q *Queries) ListRecentChecks(ctx context.Context, arg ListRecentChecksParams) ([]CheckRecord, error) {
	rows, err := q.db.QueryContext(ctx, listRecentChecks, arg.UserID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CheckRecord
	for rows.Next() {
		var i CheckRecord
		if err := rows.Scan(&i.ID, &i.UserID, &i.CheckType, &i.TargetDomain, &i.Summary, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
