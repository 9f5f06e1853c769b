package enums

import "fmt"

// RepaymentStatus tracks the borrower/lender handshake on a repayment.
type RepaymentStatus string

const (
	RepaymentStatusPending   RepaymentStatus = "pending"
	RepaymentStatusConfirmed RepaymentStatus = "confirmed"
	RepaymentStatusDisputed  RepaymentStatus = "disputed"
)

var validRepaymentStatuses = []RepaymentStatus{
	RepaymentStatusPending,
	RepaymentStatusConfirmed,
	RepaymentStatusDisputed,
}

// IsValid reports whether the value is a known RepaymentStatus.
func (s RepaymentStatus) IsValid() bool {
	for _, candidate := range validRepaymentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseRepaymentStatus converts raw input into RepaymentStatus.
func ParseRepaymentStatus(value string) (RepaymentStatus, error) {
	for _, candidate := range validRepaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid repayment status %q", value)
}

// DisputeStatus tracks a dispute thread between lender and borrower.
type DisputeStatus string

const (
	DisputeStatusOpen     DisputeStatus = "open"
	DisputeStatusResolved DisputeStatus = "resolved"
	DisputeStatusRejected DisputeStatus = "rejected"
)

// IsValid reports whether the value is a known DisputeStatus.
func (s DisputeStatus) IsValid() bool {
	switch s {
	case DisputeStatusOpen, DisputeStatusResolved, DisputeStatusRejected:
		return true
	}
	return false
}
