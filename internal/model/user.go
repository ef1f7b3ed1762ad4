package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserStatus int

const (
	UserStatusActive   UserStatus = 1
	UserStatusDisabled UserStatus = 2
	UserStatusBanned   UserStatus = 3
)

// User is a storefront customer. The storefront owns the row; this service only reads it to resolve
// referral code owners.
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string         `gorm:"type:varchar(320);not null" json:"email"`
	Name      string         `gorm:"type:varchar(128)" json:"name"`
	Status    UserStatus     `gorm:"type:smallint;not null;default:1" json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
