package trust

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/angelmondragon/trustlend-backend/pkg/enums"
)

// EventMetadata is the structured context stored with a trust event. Typed
// fields cover the kinds that carry context; Extra holds free-form audit data.
type EventMetadata struct {
	DaysLate     *int               `json:"days_late,omitempty"`
	DueDate      *time.Time         `json:"due_date,omitempty"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
	Amount       *decimal.Decimal   `json:"amount,omitempty"`
	DisputeID    *uuid.UUID         `json:"dispute_id,omitempty"`
	FraudAlertID *uuid.UUID         `json:"fraud_alert_id,omitempty"`
	ReporterKind enums.ReporterKind `json:"reporter_kind,omitempty"`
	ReporterID   *uuid.UUID         `json:"reporter_id,omitempty"`
	Extra        map[string]any     `json:"extra,omitempty"`
}

func (m *EventMetadata) isEmpty() bool {
	return m == nil || (m.DaysLate == nil && m.DueDate == nil && m.CompletedAt == nil &&
		m.Amount == nil && m.DisputeID == nil && m.FraudAlertID == nil &&
		m.ReporterKind == "" && m.ReporterID == nil && len(m.Extra) == 0)
}

func encodeMetadata(m *EventMetadata) (datatypes.JSON, error) {
	if m.isEmpty() {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// DecodeMetadata parses a stored metadata column; empty columns yield nil.
func DecodeMetadata(raw datatypes.JSON) (*EventMetadata, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var m EventMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
