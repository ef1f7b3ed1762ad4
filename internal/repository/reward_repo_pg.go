package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"referralhub/internal/model"
)

type pgRewardRepository struct {
	db *gorm.DB
}

func NewPGRewardRepository(db *gorm.DB) RewardRepository {
	return &pgRewardRepository{db: db}
}

func (r *pgRewardRepository) Create(ctx context.Context, reward *model.Reward) error {
	return r.db.WithContext(ctx).Create(reward).Error
}

func (r *pgRewardRepository) CountHeld(ctx context.Context, beneficiaryID uuid.UUID, rewardType model.RewardType) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.Reward{}).
		Where("beneficiary_user_id = ? AND type = ? AND status IN ?",
			beneficiaryID, rewardType, model.HeldRewardStatuses).
		Count(&n).Error
	return n, err
}

func (r *pgRewardRepository) ListByBeneficiary(ctx context.Context, beneficiaryID uuid.UUID) ([]model.Reward, error) {
	var rewards []model.Reward
	err := r.db.WithContext(ctx).
		Where("beneficiary_user_id = ?", beneficiaryID).
		Order("created_at DESC").
		Find(&rewards).Error
	return rewards, err
}

func (r *pgRewardRepository) LockBeneficiary(ctx context.Context, beneficiaryID uuid.UUID) error {
	// SQLite has a single writer; only PostgreSQL needs the advisory lock.
	if !isPostgres(r.db) {
		return nil
	}
	return r.db.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(hashtext(?))", beneficiaryID.String()).
		Error
}
