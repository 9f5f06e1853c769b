package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/trustlend-backend/pkg/enums"
)

// Loan is a peer-to-peer loan between a lender and a borrower. LenderID is
// empty while the loan is an open request nobody has funded yet.
type Loan struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	BorrowerID  uuid.UUID        `gorm:"column:borrower_id;type:uuid;not null;index"`
	LenderID    *uuid.UUID       `gorm:"column:lender_id;type:uuid;index"`
	Amount      decimal.Decimal  `gorm:"column:amount;type:numeric(14,2);not null"`
	Status      enums.LoanStatus `gorm:"column:status;type:text;not null"`
	Purpose     string           `gorm:"column:purpose;type:text"`
	DueDate     *time.Time       `gorm:"column:due_date"`
	FundedAt    *time.Time       `gorm:"column:funded_at"`
	CompletedAt *time.Time       `gorm:"column:completed_at"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *Loan) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// Repayment is money sent by the borrower and confirmed (or disputed) by the lender.
type Repayment struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	LoanID      uuid.UUID             `gorm:"column:loan_id;type:uuid;not null;index"`
	PayerID     uuid.UUID             `gorm:"column:payer_id;type:uuid;not null;index"`
	PayeeID     uuid.UUID             `gorm:"column:payee_id;type:uuid;not null;index"`
	Amount      decimal.Decimal       `gorm:"column:amount;type:numeric(14,2);not null"`
	Status      enums.RepaymentStatus `gorm:"column:status;type:text;not null"`
	DueDate     *time.Time            `gorm:"column:due_date"`
	CompletedAt *time.Time            `gorm:"column:completed_at"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Repayment) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Dispute is a thread opened by either party of a loan.
type Dispute struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	LoanID      uuid.UUID           `gorm:"column:loan_id;type:uuid;not null;index"`
	RepaymentID *uuid.UUID          `gorm:"column:repayment_id;type:uuid"`
	RaisedByID  uuid.UUID           `gorm:"column:raised_by_id;type:uuid;not null;index"`
	AgainstID   uuid.UUID           `gorm:"column:against_id;type:uuid;not null;index"`
	Status      enums.DisputeStatus `gorm:"column:status;type:text;not null"`
	Reason      string              `gorm:"column:reason;type:text;not null"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	ResolvedAt  *time.Time          `gorm:"column:resolved_at"`
}

func (d *Dispute) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
