package domain

import (
	"time"

	"github.com/google/uuid"
)

// CheckRecord is one row of the check-history ledger: a completed SEO check
// run by a user. Guest checks are never recorded.
type CheckRecord struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	CheckType    QuotaType
	TargetDomain string
	Summary      string
	CreatedAt    time.Time
}
