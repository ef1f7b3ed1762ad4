package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories bundles the repositories bound to one connection or transaction.
type Repositories struct {
	Users       UserRepository
	Codes       ReferralCodeRepository
	Redemptions RedemptionRepository
	Rewards     RewardRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:       NewPGUserRepository(db),
		Codes:       NewPGReferralCodeRepository(db),
		Redemptions: NewPGRedemptionRepository(db),
		Rewards:     NewPGRewardRepository(db),
	}
}

// UnitOfWork runs fn inside one database transaction. fn must only touch the store through repos;
// returning an error rolls everything back.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(repos Repositories) error) error
}

type gormUnitOfWork struct {
	db *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &gormUnitOfWork{db: db}
}

func (u *gormUnitOfWork) Do(ctx context.Context, fn func(repos Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

func isPostgres(db *gorm.DB) bool {
	return db.Dialector != nil && db.Dialector.Name() == "postgres"
}
