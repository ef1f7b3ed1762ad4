package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RedemptionStatus string

const (
	RedemptionStatusPending   RedemptionStatus = "PENDING"
	RedemptionStatusCompleted RedemptionStatus = "COMPLETED"
)

// Redemption tracks one referee's progression for one code. COMPLETED rows are never modified.
type Redemption struct {
	ID              uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	ReferralCodeID  uuid.UUID        `gorm:"type:uuid;not null;index" json:"referral_code_id"`
	RefereeEmail    string           `gorm:"type:varchar(320);not null" json:"referee_email"`
	RefereeID       *string          `gorm:"type:varchar(128)" json:"referee_id,omitempty"`
	Status          RedemptionStatus `gorm:"type:varchar(16);not null" json:"status"`
	ClickedAt       *time.Time       `json:"clicked_at,omitempty"`
	SignedUpAt      *time.Time       `json:"signed_up_at,omitempty"`
	PurchasedAt     *time.Time       `json:"purchased_at,omitempty"`
	RefereeOrderID  *string          `gorm:"type:varchar(128)" json:"referee_order_id,omitempty"`
	OrderValueCents *int64           `json:"order_value_cents,omitempty"`
	RewardIssuedAt  *time.Time       `json:"reward_issued_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (Redemption) TableName() string { return "redemptions" }

func (r *Redemption) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
