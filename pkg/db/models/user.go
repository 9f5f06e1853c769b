package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/trustlend-backend/pkg/enums"
)

// User represents the canonical identity entity. TrustScore is the cached
// resulting score of the user's latest trust event; TrustVersion guards it
// against concurrent writers.
type User struct {
	ID            uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Email         string         `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash  string         `gorm:"column:password_hash;not null"`
	DisplayName   string         `gorm:"column:display_name;not null"`
	Phone         *string        `gorm:"column:phone"`
	Role          enums.UserRole `gorm:"column:role;type:text;not null;default:'member'"`
	TrustScore    int            `gorm:"column:trust_score;not null"`
	TrustVersion  int64          `gorm:"column:trust_version;not null;default:0"`
	IsBlacklisted bool           `gorm:"column:is_blacklisted;not null;default:false"`
	IsVerified    bool           `gorm:"column:is_verified;not null;default:false"`
	LastLoginAt   *time.Time     `gorm:"column:last_login_at"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
