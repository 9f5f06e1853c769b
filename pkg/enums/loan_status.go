package enums

import "fmt"

// LoanStatus tracks a loan through its lifecycle.
type LoanStatus string

const (
	LoanStatusRequested LoanStatus = "requested"
	LoanStatusFunded    LoanStatus = "funded"
	LoanStatusActive    LoanStatus = "active"
	LoanStatusRepaid    LoanStatus = "repaid"
	LoanStatusDefaulted LoanStatus = "defaulted"
	LoanStatusCancelled LoanStatus = "cancelled"
)

var validLoanStatuses = []LoanStatus{
	LoanStatusRequested,
	LoanStatusFunded,
	LoanStatusActive,
	LoanStatusRepaid,
	LoanStatusDefaulted,
	LoanStatusCancelled,
}

// OpenLoanStatuses count toward a borrower's concurrent active loan limit.
var OpenLoanStatuses = []LoanStatus{
	LoanStatusRequested,
	LoanStatusFunded,
	LoanStatusActive,
}

// IsValid reports whether the value is a known LoanStatus.
func (s LoanStatus) IsValid() bool {
	for _, candidate := range validLoanStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsOpen reports whether the loan still counts against borrowing limits.
func (s LoanStatus) IsOpen() bool {
	for _, candidate := range OpenLoanStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLoanStatus converts raw input into LoanStatus.
func ParseLoanStatus(value string) (LoanStatus, error) {
	for _, candidate := range validLoanStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loan status %q", value)
}
