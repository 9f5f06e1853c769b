package enums

import "fmt"

// TrustEventKind maps to the trust_events.kind column. The vocabulary covers
// both score policies; each policy rejects the kinds it does not score.
type TrustEventKind string

const (
	TrustEventLoanCreated           TrustEventKind = "loan_created"
	TrustEventLoanFunded            TrustEventKind = "loan_funded"
	TrustEventRepaymentOnTime       TrustEventKind = "repayment_on_time"
	TrustEventRepaymentEarly        TrustEventKind = "repayment_early"
	TrustEventRepaymentLate         TrustEventKind = "repayment_late"
	TrustEventLoanDefaulted         TrustEventKind = "loan_defaulted"
	TrustEventDisputeRaised         TrustEventKind = "dispute_raised"
	TrustEventDisputeResolved       TrustEventKind = "dispute_resolved"
	TrustEventBlacklistReported     TrustEventKind = "blacklist_reported"
	TrustEventInstallmentOnTime     TrustEventKind = "installment_paid_on_time"
	TrustEventInstallmentLate       TrustEventKind = "installment_paid_late"
	TrustEventInstallmentMissed     TrustEventKind = "installment_missed"
	TrustEventRegistrationBonus     TrustEventKind = "registration_bonus"
	TrustEventRepaymentSlightlyLate TrustEventKind = "repayment_slightly_late"
	TrustEventRepaymentVeryLate     TrustEventKind = "repayment_very_late"
	TrustEventRepaymentOverdue      TrustEventKind = "repayment_overdue"
	TrustEventRepaymentDisputed     TrustEventKind = "repayment_disputed"
	TrustEventFirstLoanBonus        TrustEventKind = "first_loan_bonus"

	// TrustEventRegistrationBonusReversed is written by the duplicate bonus
	// cleanup only. No policy scores it, so callers cannot append it.
	TrustEventRegistrationBonusReversed TrustEventKind = "registration_bonus_reversed"
)

var validTrustEventKinds = []TrustEventKind{
	TrustEventLoanCreated,
	TrustEventLoanFunded,
	TrustEventRepaymentOnTime,
	TrustEventRepaymentEarly,
	TrustEventRepaymentLate,
	TrustEventLoanDefaulted,
	TrustEventDisputeRaised,
	TrustEventDisputeResolved,
	TrustEventBlacklistReported,
	TrustEventInstallmentOnTime,
	TrustEventInstallmentLate,
	TrustEventInstallmentMissed,
	TrustEventRegistrationBonus,
	TrustEventRepaymentSlightlyLate,
	TrustEventRepaymentVeryLate,
	TrustEventRepaymentOverdue,
	TrustEventRepaymentDisputed,
	TrustEventFirstLoanBonus,
	TrustEventRegistrationBonusReversed,
}

// String implements fmt.Stringer.
func (k TrustEventKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known TrustEventKind.
func (k TrustEventKind) IsValid() bool {
	for _, candidate := range validTrustEventKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseTrustEventKind converts raw input into TrustEventKind.
func ParseTrustEventKind(value string) (TrustEventKind, error) {
	for _, candidate := range validTrustEventKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid trust event kind %q", value)
}
