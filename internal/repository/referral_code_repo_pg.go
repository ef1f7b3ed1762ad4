package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"referralhub/internal/model"
)

type pgReferralCodeRepository struct {
	db *gorm.DB
}

func NewPGReferralCodeRepository(db *gorm.DB) ReferralCodeRepository {
	return &pgReferralCodeRepository{db: db}
}

func (r *pgReferralCodeRepository) Create(ctx context.Context, code *model.ReferralCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

func (r *pgReferralCodeRepository) GetByCode(ctx context.Context, code string) (*model.ReferralCode, error) {
	var rc model.ReferralCode
	if err := r.db.WithContext(ctx).Preload("Owner").Where("code = ?", code).First(&rc).Error; err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *pgReferralCodeRepository) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*model.ReferralCode, error) {
	var rc model.ReferralCode
	if err := r.db.WithContext(ctx).Where("owner_user_id = ?", ownerID).First(&rc).Error; err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *pgReferralCodeRepository) LockByID(ctx context.Context, id uuid.UUID) (*model.ReferralCode, error) {
	q := r.db.WithContext(ctx)
	if isPostgres(r.db) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rc model.ReferralCode
	if err := q.Where("id = ?", id).First(&rc).Error; err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *pgReferralCodeRepository) IncrementCounters(ctx context.Context, id uuid.UUID, delta CounterDelta) error {
	if delta.IsZero() {
		return nil
	}
	updates := map[string]interface{}{}
	if delta.Clicks != 0 {
		updates["total_clicks"] = gorm.Expr("total_clicks + ?", delta.Clicks)
	}
	if delta.Signups != 0 {
		updates["total_signups"] = gorm.Expr("total_signups + ?", delta.Signups)
	}
	if delta.Orders != 0 {
		updates["total_orders"] = gorm.Expr("total_orders + ?", delta.Orders)
	}
	if delta.EarningsCents != 0 {
		updates["total_earnings_cents"] = gorm.Expr("total_earnings_cents + ?", delta.EarningsCents)
	}
	return r.db.WithContext(ctx).
		Model(&model.ReferralCode{}).
		Where("id = ?", id).
		UpdateColumns(updates).
		Error
}

func (r *pgReferralCodeRepository) SetActive(ctx context.Context, code string, active bool) error {
	res := r.db.WithContext(ctx).
		Model(&model.ReferralCode{}).
		Where("code = ?", code).
		UpdateColumn("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
