package enums

import "fmt"

// FraudSeverity grades a fraud alert.
type FraudSeverity string

const (
	FraudSeverityLow      FraudSeverity = "low"
	FraudSeverityMedium   FraudSeverity = "medium"
	FraudSeverityHigh     FraudSeverity = "high"
	FraudSeverityCritical FraudSeverity = "critical"
)

var validFraudSeverities = []FraudSeverity{
	FraudSeverityLow,
	FraudSeverityMedium,
	FraudSeverityHigh,
	FraudSeverityCritical,
}

// IsValid reports whether the value is a known FraudSeverity.
func (s FraudSeverity) IsValid() bool {
	for _, candidate := range validFraudSeverities {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseFraudSeverity converts raw input into FraudSeverity.
func ParseFraudSeverity(value string) (FraudSeverity, error) {
	for _, candidate := range validFraudSeverities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fraud severity %q", value)
}

// FraudAlertType classifies the dominant signal behind an alert.
type FraudAlertType string

const (
	FraudAlertVelocity        FraudAlertType = "velocity"
	FraudAlertNewAccount      FraudAlertType = "new_account"
	FraudAlertAmountAnomaly   FraudAlertType = "amount_anomaly"
	FraudAlertDisputeRatio    FraudAlertType = "dispute_ratio"
	FraudAlertLowTrustVolume  FraudAlertType = "low_trust_volume"
	FraudAlertCircularLending FraudAlertType = "circular_lending"
	FraudAlertMultipleSignals FraudAlertType = "multiple_signals"
)

// FraudAction records what the platform did with an alert.
type FraudAction string

const (
	FraudActionNone     FraudAction = "none"
	FraudActionReviewed FraudAction = "reviewed"
	FraudActionBlocked  FraudAction = "blocked"
)

// ReporterKind distinguishes human from automated blacklist reporters.
type ReporterKind string

const (
	ReporterUser   ReporterKind = "user"
	ReporterSystem ReporterKind = "system"
)

// IsValid reports whether the value is a known ReporterKind.
func (r ReporterKind) IsValid() bool {
	return r == ReporterUser || r == ReporterSystem
}
