package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReferralCode is the token a user shares. Codes are never deleted; aggregates only move through atomic increments.
type ReferralCode struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Code               string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	OwnerUserID        uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"owner_user_id"`
	IsActive           bool       `gorm:"not null;default:true" json:"is_active"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	TotalClicks        int64      `gorm:"not null;default:0" json:"total_clicks"`
	TotalSignups       int64      `gorm:"not null;default:0" json:"total_signups"`
	TotalOrders        int64      `gorm:"not null;default:0" json:"total_orders"`
	TotalEarningsCents int64      `gorm:"not null;default:0" json:"total_earnings_cents"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	Owner User `gorm:"foreignKey:OwnerUserID" json:"-"`
}

func (ReferralCode) TableName() string { return "referral_codes" }

func (c *ReferralCode) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
