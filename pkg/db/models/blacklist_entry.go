package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/trustlend-backend/pkg/enums"
)

// BlacklistEntry bars a user from the platform. At most one entry per user is
// active; removal deactivates the row instead of deleting it.
type BlacklistEntry struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Reason        string              `gorm:"column:reason;type:text;not null"`
	ReporterKind  enums.ReporterKind  `gorm:"column:reporter_kind;type:text;not null"`
	ReporterID    *uuid.UUID          `gorm:"column:reporter_id;type:uuid"`
	Evidence      string              `gorm:"column:evidence;type:text"`
	Severity      enums.FraudSeverity `gorm:"column:severity;type:text;not null"`
	IsActive      bool                `gorm:"column:is_active;not null;default:true"`
	ExpiresAt     *time.Time          `gorm:"column:expires_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	DeactivatedAt *time.Time          `gorm:"column:deactivated_at"`
}

func (b *BlacklistEntry) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// ActiveAt reports whether the entry bars the user at the provided instant.
func (b BlacklistEntry) ActiveAt(now time.Time) bool {
	if !b.IsActive {
		return false
	}
	return b.ExpiresAt == nil || now.Before(*b.ExpiresAt)
}
