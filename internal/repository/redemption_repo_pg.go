package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"referralhub/internal/model"
)

type pgRedemptionRepository struct {
	db *gorm.DB
}

func NewPGRedemptionRepository(db *gorm.DB) RedemptionRepository {
	return &pgRedemptionRepository{db: db}
}

func (r *pgRedemptionRepository) Create(ctx context.Context, redemption *model.Redemption) error {
	return r.db.WithContext(ctx).Create(redemption).Error
}

func (r *pgRedemptionRepository) Update(ctx context.Context, redemption *model.Redemption) error {
	return r.db.WithContext(ctx).Save(redemption).Error
}

func (r *pgRedemptionRepository) FindPending(ctx context.Context, codeID uuid.UUID, email string) (*model.Redemption, error) {
	var redemption model.Redemption
	err := r.db.WithContext(ctx).
		Where("referral_code_id = ? AND referee_email = ? AND status = ?",
			codeID, email, model.RedemptionStatusPending).
		First(&redemption).Error
	if err != nil {
		return nil, err
	}
	return &redemption, nil
}

func (r *pgRedemptionRepository) FindCompletedByOrder(ctx context.Context, codeID uuid.UUID, orderID string) (*model.Redemption, error) {
	var redemption model.Redemption
	err := r.db.WithContext(ctx).
		Where("referral_code_id = ? AND referee_order_id = ? AND status = ?",
			codeID, orderID, model.RedemptionStatusCompleted).
		First(&redemption).Error
	if err != nil {
		return nil, err
	}
	return &redemption, nil
}

func (r *pgRedemptionRepository) CountByStatus(ctx context.Context, codeID uuid.UUID) (map[model.RedemptionStatus]int64, error) {
	var rows []struct {
		Status model.RedemptionStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Redemption{}).
		Select("status, COUNT(*) AS count").
		Where("referral_code_id = ?", codeID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[model.RedemptionStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
