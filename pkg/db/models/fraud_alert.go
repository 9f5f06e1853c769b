package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/trustlend-backend/pkg/enums"
)

// FraudAlert is the audit record of a detection run that produced an alert.
type FraudAlert struct {
	ID              uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID                   `gorm:"column:user_id;type:uuid;not null;index"`
	AlertType       enums.FraudAlertType        `gorm:"column:alert_type;type:text;not null"`
	Severity        enums.FraudSeverity         `gorm:"column:severity;type:text;not null"`
	SuspicionScore  int                         `gorm:"column:suspicion_score;not null"`
	RedFlags        datatypes.JSONSlice[string] `gorm:"column:red_flags;type:jsonb;not null"`
	Details         datatypes.JSON              `gorm:"column:details;type:jsonb"`
	ActionTaken     enums.FraudAction           `gorm:"column:action_taken;type:text;not null"`
	RequestedAmount *string                     `gorm:"column:requested_amount;type:text"`
	CreatedAt       time.Time                   `gorm:"column:created_at;autoCreateTime"`
}

func (a *FraudAlert) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
