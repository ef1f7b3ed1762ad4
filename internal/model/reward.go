package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RewardType string

const (
	RewardTypeReferralCredit RewardType = "REFERRAL_CREDIT"
	RewardTypeMilestoneBonus RewardType = "MILESTONE_BONUS"
)

type RewardStatus string

const (
	RewardStatusAvailable RewardStatus = "AVAILABLE"
	RewardStatusUsed      RewardStatus = "USED"
	RewardStatusExpired   RewardStatus = "EXPIRED"
)

// HeldRewardStatuses are the statuses that count against a beneficiary's caps.
var HeldRewardStatuses = []string{string(RewardStatusAvailable), string(RewardStatusUsed)}

// Reward is created by the ledger; later status transitions belong to checkout.
type Reward struct {
	ID                uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	BeneficiaryUserID uuid.UUID    `gorm:"type:uuid;not null;index" json:"beneficiary_user_id"`
	RedemptionID      *uuid.UUID   `gorm:"type:uuid" json:"redemption_id,omitempty"`
	AmountCents       int64        `gorm:"not null" json:"amount_cents"`
	Type              RewardType   `gorm:"type:varchar(32);not null" json:"type"`
	Description       string       `gorm:"type:varchar(512);not null" json:"description"`
	Status            RewardStatus `gorm:"type:varchar(16);not null" json:"status"`
	ExpiresAt         time.Time    `gorm:"not null" json:"expires_at"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

func (Reward) TableName() string { return "rewards" }

func (r *Reward) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
