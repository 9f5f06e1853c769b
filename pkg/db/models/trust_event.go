package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/trustlend-backend/pkg/enums"
)

// TrustEvent is one immutable entry of a user's trust ledger. Sequence is
// 1-based and unique per user; it defines ledger order.
type TrustEvent struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	UserID         uuid.UUID            `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_trust_events_user_sequence,priority:1"`
	Sequence       int64                `gorm:"column:sequence;not null;uniqueIndex:idx_trust_events_user_sequence,priority:2"`
	Kind           enums.TrustEventKind `gorm:"column:kind;type:text;not null"`
	Policy         string               `gorm:"column:policy;type:text;not null"`
	Delta          int                  `gorm:"column:delta;not null"`
	PreviousScore  int                  `gorm:"column:previous_score;not null"`
	ResultingScore int                  `gorm:"column:resulting_score;not null"`
	RelatedLoanID  *uuid.UUID           `gorm:"column:related_loan_id;type:uuid"`
	Description    string               `gorm:"column:description;type:text;not null"`
	Metadata       datatypes.JSON       `gorm:"column:metadata;type:jsonb"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (e *TrustEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
