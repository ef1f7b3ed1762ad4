package repository

import (
	"context"

	"github.com/google/uuid"

	"referralhub/internal/model"
)

// CounterDelta is applied to a referral code's aggregates in a single UPDATE.
type CounterDelta struct {
	Clicks        int64
	Signups       int64
	Orders        int64
	EarningsCents int64
}

func (d CounterDelta) IsZero() bool {
	return d.Clicks == 0 && d.Signups == 0 && d.Orders == 0 && d.EarningsCents == 0
}

type ReferralCodeRepository interface {
	Create(ctx context.Context, code *model.ReferralCode) error
	// GetByCode loads the code together with its owner.
	GetByCode(ctx context.Context, code string) (*model.ReferralCode, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*model.ReferralCode, error)
	// LockByID re-reads the row and, on PostgreSQL, holds a row lock until the surrounding transaction ends.
	LockByID(ctx context.Context, id uuid.UUID) (*model.ReferralCode, error)
	IncrementCounters(ctx context.Context, id uuid.UUID, delta CounterDelta) error
	SetActive(ctx context.Context, code string, active bool) error
}
