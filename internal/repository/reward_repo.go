package repository

import (
	"context"

	"github.com/google/uuid"

	"referralhub/internal/model"
)

type RewardRepository interface {
	Create(ctx context.Context, reward *model.Reward) error
	// CountHeld counts rewards of the given type in AVAILABLE or USED status.
	CountHeld(ctx context.Context, beneficiaryID uuid.UUID, rewardType model.RewardType) (int64, error)
	ListByBeneficiary(ctx context.Context, beneficiaryID uuid.UUID) ([]model.Reward, error)
	// LockBeneficiary serializes cap checks for one beneficiary until the surrounding transaction ends.
	LockBeneficiary(ctx context.Context, beneficiaryID uuid.UUID) error
}
